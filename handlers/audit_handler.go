package handlers

import (
	"net/http"

	"github.com/ranqly/contest-engine/services"
)

type AuditHandler struct {
	auditService *services.AuditService
}

func NewAuditHandler(as *services.AuditService) *AuditHandler {
	return &AuditHandler{auditService: as}
}

// BuildHandler обрабатывает POST /contests/{contestID}/audit-pack
func (h *AuditHandler) BuildHandler(w http.ResponseWriter, r *http.Request) {
	contestID, err := getIDFromURL(r, "contestID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	pack, err := h.auditService.Build(r.Context(), contestID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"audit_pack": pack}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetHandler обрабатывает GET /contests/{contestID}/audit-pack
func (h *AuditHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	contestID, err := getIDFromURL(r, "contestID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	pack, err := h.auditService.GetByContest(r.Context(), contestID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"audit_pack": pack}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
