package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ranqly/contest-engine/middleware"
	"github.com/ranqly/contest-engine/models"
	"github.com/ranqly/contest-engine/services"
)

type ContestHandler struct {
	contestService *services.ContestService
}

func NewContestHandler(cs *services.ContestService) *ContestHandler {
	return &ContestHandler{contestService: cs}
}

// CreateHandler обрабатывает POST /contests
func (h *ContestHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to create contest")
		return
	}

	var input services.CreateContestInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	contest, err := h.contestService.CreateContest(r.Context(), currentUserID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"contest": contest}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetByIDHandler обрабатывает GET /contests/{contestID}
func (h *ContestHandler) GetByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "contestID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	contest, err := h.contestService.GetContest(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"contest": contest}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListHandler обрабатывает GET /contests
func (h *ContestHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	var filter services.ListContestsFilter
	query := r.URL.Query()

	if categoryStr := query.Get("category"); categoryStr != "" {
		category := models.ContestCategory(categoryStr)
		filter.Category = &category
	}
	if organizerIDStr := query.Get("organizer_id"); organizerIDStr != "" {
		if id, err := strconv.Atoi(organizerIDStr); err == nil && id > 0 {
			filter.OrganizerID = &id
		} else {
			badRequestResponse(w, r, errors.New("invalid organizer_id query parameter"))
			return
		}
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = limit
		} else {
			badRequestResponse(w, r, errors.New("invalid limit query parameter"))
			return
		}
	} else {
		filter.Limit = 20
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		} else {
			badRequestResponse(w, r, errors.New("invalid offset query parameter"))
			return
		}
	}

	contests, err := h.contestService.ListContests(r.Context(), filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"contests": contests}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type transitionRequest struct {
	Target       models.ContestPhase `json:"target"`
	Reason       string              `json:"reason"`
	ExtendBySecs int64               `json:"extend_by_secs"`
}

// TransitionHandler обрабатывает POST /contests/{contestID}/transitions —
// ранний переход на следующую фазу либо продление текущей.
func (h *ContestHandler) TransitionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "contestID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input transitionRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	err = h.contestService.RequestTransition(r.Context(), id, currentUserID,
		input.Target, input.Reason, time.Duration(input.ExtendBySecs)*time.Second)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListOverridesHandler обрабатывает GET /contests/{contestID}/overrides
func (h *ContestHandler) ListOverridesHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "contestID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	overrides, err := h.contestService.ListOverrides(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"overrides": overrides}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
