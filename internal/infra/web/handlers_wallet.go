package web

import (
	"encoding/json"
	"net/http"
	"strconv"
)

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.ledgerUC.Wallet(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (s *Server) handleWalletTransactions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txs, err := s.ledgerUC.Transactions(r.Context(), userID(r), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

type tipRequest struct {
	CreatorID string  `json:"creatorId"`
	Amount    int64   `json:"amount"`
	PostID    *string `json:"postId,omitempty"`
}

func (s *Server) handleTip(w http.ResponseWriter, r *http.Request) {
	var req tipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CreatorID == "" {
		writeJSON(w, http.StatusBadRequest, apiError{"creatorId required"})
		return
	}
	res, err := s.ledgerUC.Tip(r.Context(), userID(r), req.CreatorID, req.Amount, req.PostID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type unlockRequest struct {
	PostID string `json:"postId"`
}

func (s *Server) handleUnlockPPV(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PostID == "" {
		writeJSON(w, http.StatusBadRequest, apiError{"postId required"})
		return
	}
	res, err := s.ledgerUC.UnlockPPV(r.Context(), userID(r), req.PostID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
