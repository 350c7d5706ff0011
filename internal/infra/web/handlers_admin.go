package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fanpay/internal/domain/model"
)

func (s *Server) handleAdminListPayouts(w http.ResponseWriter, r *http.Request) {
	status := model.PayoutStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = model.PayoutStatusPendingApproval
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	payouts, total, err := s.withdrawalUC.ListByStatus(r.Context(), status, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payouts": payouts, "total": total})
}

func (s *Server) handleAdminApprovePayout(w http.ResponseWriter, r *http.Request) {
	payout, err := s.withdrawalUC.Approve(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleAdminRejectPayout(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		writeJSON(w, http.StatusBadRequest, apiError{"reason required"})
		return
	}
	payout, err := s.withdrawalUC.Reject(r.Context(), chi.URLParam(r, "id"), userID(r), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

func (s *Server) handleAdminCompletePayout(w http.ResponseWriter, r *http.Request) {
	payout, err := s.withdrawalUC.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

type rewardRequest struct {
	UserID string `json:"userId"`
	Kind   string `json:"kind"`
	Amount int64  `json:"amount"`
}

// handleAdminReward credits engagement rewards. Called by the
// gamification service with an admin-scoped token.
func (s *Server) handleAdminReward(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Kind == "" {
		writeJSON(w, http.StatusBadRequest, apiError{"userId and kind required"})
		return
	}
	balance, err := s.ledgerUC.Reward(r.Context(), req.UserID, req.Kind, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

// handleAdminExpireSubscriptions triggers the overdue sweep on demand;
// the same sweep also runs on a ticker.
func (s *Server) handleAdminExpireSubscriptions(w http.ResponseWriter, r *http.Request) {
	n, err := s.subUC.ExpireOverdue(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expired": n})
}

func (s *Server) handleAdminGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settingsUC.All(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleAdminUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil || len(updates) == 0 {
		writeJSON(w, http.StatusBadRequest, apiError{"invalid request body"})
		return
	}
	if err := s.settingsUC.Update(r.Context(), updates, userID(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	settings, err := s.settingsUC.All(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
