package handlers

import (
	"net/http"

	"github.com/ranqly/contest-engine/middleware"
	"github.com/ranqly/contest-engine/models"
	"github.com/ranqly/contest-engine/services"
)

type VoteHandler struct {
	voteService *services.VoteService
}

func NewVoteHandler(vs *services.VoteService) *VoteHandler {
	return &VoteHandler{voteService: vs}
}

// MintCredentialHandler обрабатывает POST /contests/{contestID}/credentials
func (h *VoteHandler) MintCredentialHandler(w http.ResponseWriter, r *http.Request) {
	contestID, err := getIDFromURL(r, "contestID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	cred, err := h.voteService.MintCredential(r.Context(), contestID, currentUserID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"credential": cred}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type commitVoteRequest struct {
	EntryID        int                  `json:"entry_id"`
	Direction      models.VoteDirection `json:"direction"`
	CommitmentHash string               `json:"commitment_hash"`
}

// CommitHandler обрабатывает POST /contests/{contestID}/votes/commit
func (h *VoteHandler) CommitHandler(w http.ResponseWriter, r *http.Request) {
	contestID, err := getIDFromURL(r, "contestID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input commitVoteRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	commit, err := h.voteService.CommitVote(r.Context(), contestID, input.EntryID, currentUserID, input.Direction, input.CommitmentHash)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"commit": commit}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type revealVoteRequest struct {
	EntryID       int                  `json:"entry_id"`
	Direction     models.VoteDirection `json:"direction"`
	Justification string               `json:"justification"`
	Nonce         string               `json:"nonce"`
}

// RevealHandler обрабатывает POST /contests/{contestID}/votes/reveal
func (h *VoteHandler) RevealHandler(w http.ResponseWriter, r *http.Request) {
	contestID, err := getIDFromURL(r, "contestID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input revealVoteRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	err = h.voteService.RevealVote(r.Context(), contestID, input.EntryID, currentUserID,
		input.Direction, input.Justification, input.Nonce)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TallyHandler обрабатывает GET /contests/{contestID}/votes/tally —
// нормализованная community-оценка после закрытия окна раскрытия.
func (h *VoteHandler) TallyHandler(w http.ResponseWriter, r *http.Request) {
	contestID, err := getIDFromURL(r, "contestID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tally, err := h.voteService.Tally(r.Context(), contestID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tally": tally}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
