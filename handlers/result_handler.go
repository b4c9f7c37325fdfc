package handlers

import (
	"net/http"

	"github.com/ranqly/contest-engine/middleware"
	"github.com/ranqly/contest-engine/services"
)

type ResultHandler struct {
	resultService *services.ResultService
}

func NewResultHandler(rs *services.ResultService) *ResultHandler {
	return &ResultHandler{resultService: rs}
}

type algorithmicScoreRequest struct {
	EntryID int     `json:"entry_id"`
	Score   float64 `json:"score"`
}

// SetAlgorithmicScoreHandler обрабатывает PUT /contests/{contestID}/scores/algorithmic —
// приём нормализованной оценки внешнего скорера.
func (h *ResultHandler) SetAlgorithmicScoreHandler(w http.ResponseWriter, r *http.Request) {
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

	var input algorithmicScoreRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.resultService.SetAlgorithmicScore(r.Context(), contestID, input.EntryID, currentUserID, input.Score); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// FinalizeHandler обрабатывает POST /contests/{contestID}/finalize
func (h *ResultHandler) FinalizeHandler(w http.ResponseWriter, r *http.Request) {
	contestID, err := getIDFromURL(r, "contestID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	ranking, err := h.resultService.Finalize(r.Context(), contestID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"ranking": ranking}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RankingHandler обрабатывает GET /contests/{contestID}/ranking
func (h *ResultHandler) RankingHandler(w http.ResponseWriter, r *http.Request) {
	contestID, err := getIDFromURL(r, "contestID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	ranking, err := h.resultService.GetRanking(r.Context(), contestID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"ranking": ranking}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
