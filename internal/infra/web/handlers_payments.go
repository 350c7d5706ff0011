package web

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.checkoutUC.Providers(r.Context()))
}

func (s *Server) handlePackages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.checkoutUC.Packages(r.Context()))
}

type buyCoinsRequest struct {
	PackageID     string `json:"packageId"`
	Provider      string `json:"provider"`
	PaymentMethod string `json:"paymentMethod"`
}

func (s *Server) handleBuyCoins(w http.ResponseWriter, r *http.Request) {
	var req buyCoinsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{"invalid request body"})
		return
	}
	if req.Provider == "" {
		req.Provider = "mercadopago"
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "pix"
	}
	checkout, err := s.checkoutUC.BuyCoins(r.Context(), userID(r), req.PackageID, req.Provider, req.PaymentMethod)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkout)
}

func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	p, err := s.checkoutUC.PaymentStatus(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePaymentHistory(w http.ResponseWriter, r *http.Request) {
	ps, err := s.checkoutUC.History(r.Context(), userID(r), 50)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

type captureRequest struct {
	PaymentID string `json:"paymentId"`
}

func (s *Server) handlePayPalCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PaymentID == "" {
		writeJSON(w, http.StatusBadRequest, apiError{"paymentId required"})
		return
	}
	p, err := s.checkoutUC.CaptureOrder(r.Context(), userID(r), req.PaymentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleWebhook acknowledges with 200 whenever the delivery was read,
// including signature and processing failures: providers retry on non-2xx
// and a retry storm cannot fix a bad event. The body carries the verdict.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{"unreadable body"})
		return
	}

	if err := s.reconcileUC.HandleWebhook(r.Context(), provider, r.Header, body); err != nil {
		s.log.Warn().Err(err).Str("provider", provider).Msg("webhook processing")
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "processed": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true, "processed": true})
}
