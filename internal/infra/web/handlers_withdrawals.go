package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"fanpay/internal/domain/model"
	"fanpay/internal/usecase"
)

func (s *Server) handleEarnings(w http.ResponseWriter, r *http.Request) {
	summary, err := s.withdrawalUC.Earnings(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	coins, err := strconv.ParseInt(r.URL.Query().Get("coins"), 10, 64)
	if err != nil || coins <= 0 {
		writeJSON(w, http.StatusBadRequest, apiError{"coins query parameter required"})
		return
	}
	rate := s.settingsUC.Decimal(r.Context(), usecase.SettingCoinToBRL)
	fiat := decimal.NewFromInt(coins).Mul(rate)
	assessment, err := s.withdrawalUC.Assess(r.Context(), userID(r), fiat)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

type withdrawalRequest struct {
	Coins         int64          `json:"coins"`
	Method        string         `json:"method"`
	PixKey        string         `json:"pixKey,omitempty"`
	BankDetails   map[string]any `json:"bankDetails,omitempty"`
	CryptoAddress string         `json:"cryptoAddress,omitempty"`
	CryptoNetwork string         `json:"cryptoNetwork,omitempty"`
}

func (s *Server) handleRequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{"invalid request body"})
		return
	}
	payout, err := s.withdrawalUC.Request(r.Context(), usecase.WithdrawalRequest{
		CreatorID:     userID(r),
		CoinAmount:    req.Coins,
		Method:        model.PayoutMethod(req.Method),
		PixKey:        req.PixKey,
		BankDetails:   req.BankDetails,
		CryptoAddress: req.CryptoAddress,
		CryptoNetwork: req.CryptoNetwork,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payout)
}

func (s *Server) handleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	payouts, err := s.withdrawalUC.ListByCreator(r.Context(), userID(r), 50)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payouts)
}
