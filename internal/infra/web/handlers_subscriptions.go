package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type subscribeRequest struct {
	CreatorID string  `json:"creatorId"`
	TierID    *string `json:"tierId,omitempty"`
	Price     string  `json:"price"`
	Provider  string  `json:"provider"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CreatorID == "" {
		writeJSON(w, http.StatusBadRequest, apiError{"creatorId required"})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{"invalid price"})
		return
	}
	if req.Provider == "" {
		req.Provider = "mercadopago"
	}
	checkout, err := s.checkoutUC.StartSubscription(r.Context(), userID(r), req.CreatorID, req.TierID, price, req.Provider)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkout)
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.subUC.ListByFan(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.subUC.Cancel(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	ok, err := s.subUC.HasAccess(r.Context(), userID(r), chi.URLParam(r, "creatorId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"hasAccess": ok})
}
