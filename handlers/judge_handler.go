package handlers

import (
	"errors"
	"net/http"

	"github.com/ranqly/contest-engine/middleware"
	"github.com/ranqly/contest-engine/services"
)

type JudgeHandler struct {
	judgeService *services.JudgeService
}

func NewJudgeHandler(js *services.JudgeService) *JudgeHandler {
	return &JudgeHandler{judgeService: js}
}

// AssignHandler обрабатывает POST /contests/{contestID}/judges
func (h *JudgeHandler) AssignHandler(w http.ResponseWriter, r *http.Request) {
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

	var input struct {
		JudgeID int `json:"judge_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.JudgeID <= 0 {
		badRequestResponse(w, r, errors.New("judge_id is required"))
		return
	}

	if err := h.judgeService.AssignJudge(r.Context(), contestID, currentUserID, input.JudgeID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SubmitBallotHandler обрабатывает PUT /contests/{contestID}/ballot —
// идемпотентная отправка бюллетеня текущего судьи.
func (h *JudgeHandler) SubmitBallotHandler(w http.ResponseWriter, r *http.Request) {
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

	var input services.BallotInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	ballot, err := h.judgeService.SubmitBallot(r.Context(), contestID, currentUserID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"ballot": ballot}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
