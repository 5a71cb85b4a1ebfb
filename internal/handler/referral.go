package handler

import (
	"net/http"

	"github.com/tradejournalai/backend/internal/contextkeys"
	"github.com/tradejournalai/backend/internal/domain"
	"github.com/tradejournalai/backend/internal/service"
)

// ReferralHandler handles referral code endpoints.
type ReferralHandler struct {
	svc *service.ReferralService
}

// NewReferralHandler creates a new ReferralHandler.
func NewReferralHandler(svc *service.ReferralService) *ReferralHandler {
	return &ReferralHandler{svc: svc}
}

// Apply handles POST /api/referral/apply.
func (h *ReferralHandler) Apply(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(contextkeys.UserID).(string)
	if !ok || userID == "" {
		JSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req domain.ApplyCodeRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	resp, err := h.svc.ApplyCode(r.Context(), userID, req)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, resp)
}

// Generate handles POST /api/referral/generate.
func (h *ReferralHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(contextkeys.UserID).(string)
	if !ok || userID == "" {
		JSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	code, err := h.svc.GenerateCode(r.Context(), userID)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]string{"code": code})
}

// Me handles GET /api/referral/me.
func (h *ReferralHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(contextkeys.UserID).(string)
	if !ok || userID == "" {
		JSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	overview, err := h.svc.Overview(r.Context(), userID)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, overview)
}
