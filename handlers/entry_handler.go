package handlers

import (
	"errors"
	"net/http"

	"github.com/ranqly/contest-engine/middleware"
	"github.com/ranqly/contest-engine/services"
)

type EntryHandler struct {
	entryService *services.EntryService
}

func NewEntryHandler(es *services.EntryService) *EntryHandler {
	return &EntryHandler{entryService: es}
}

// SubmitHandler обрабатывает POST /contests/{contestID}/entries
func (h *EntryHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	contestID, err := getIDFromURL(r, "contestID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to submit an entry")
		return
	}

	var input services.SubmitEntryInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	entry, err := h.entryService.Submit(r.Context(), contestID, currentUserID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"entry": entry}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// EditHandler обрабатывает PATCH /entries/{entryID}
func (h *EntryHandler) EditHandler(w http.ResponseWriter, r *http.Request) {
	entryID, err := getIDFromURL(r, "entryID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input services.EditEntryInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	entry, err := h.entryService.Edit(r.Context(), entryID, currentUserID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"entry": entry}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// WithdrawHandler обрабатывает POST /entries/{entryID}/withdraw
func (h *EntryHandler) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	entryID, err := getIDFromURL(r, "entryID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	if err := h.entryService.Withdraw(r.Context(), entryID, currentUserID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DisqualifyHandler обрабатывает POST /entries/{entryID}/disqualify
func (h *EntryHandler) DisqualifyHandler(w http.ResponseWriter, r *http.Request) {
	entryID, err := getIDFromURL(r, "entryID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input struct {
		Reason string `json:"reason"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Reason == "" {
		badRequestResponse(w, r, errors.New("disqualification reason is required"))
		return
	}

	if err := h.entryService.Disqualify(r.Context(), entryID, currentUserID, input.Reason); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListByContestHandler обрабатывает GET /contests/{contestID}/entries
func (h *EntryHandler) ListByContestHandler(w http.ResponseWriter, r *http.Request) {
	contestID, err := getIDFromURL(r, "contestID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	onlyLive := r.URL.Query().Get("only_live") == "true"

	entries, err := h.entryService.ListByContest(r.Context(), contestID, onlyLive)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"entries": entries}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// MyEntriesHandler обрабатывает GET /me/entries
func (h *EntryHandler) MyEntriesHandler(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	entries, err := h.entryService.ListByAuthor(r.Context(), currentUserID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"entries": entries}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
