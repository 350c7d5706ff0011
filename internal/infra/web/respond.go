package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"fanpay/internal/domain"
)

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainError maps sentinel errors onto HTTP statuses. Internal
// error text never reaches the client for 5xx.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, apiError{"not found"})
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrSelfOperation),
		errors.Is(err, domain.ErrBelowMinimumPayout):
		writeJSON(w, http.StatusBadRequest, apiError{err.Error()})
	case errors.Is(err, domain.ErrInsufficientBalance):
		writeJSON(w, http.StatusPaymentRequired, apiError{err.Error()})
	case errors.Is(err, domain.ErrWithdrawalBlocked):
		writeJSON(w, http.StatusUnprocessableEntity, apiError{err.Error()})
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrAlreadySubscribed),
		errors.Is(err, domain.ErrAlreadyUnlocked),
		errors.Is(err, domain.ErrAlreadyProcessed):
		writeJSON(w, http.StatusConflict, apiError{err.Error()})
	case errors.Is(err, domain.ErrInvalidSignature):
		writeJSON(w, http.StatusUnauthorized, apiError{"invalid signature"})
	case errors.Is(err, domain.ErrProviderUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, apiError{"payment provider unavailable"})
	case errors.Is(err, domain.ErrProviderRejected):
		writeJSON(w, http.StatusBadGateway, apiError{"payment provider rejected the charge"})
	default:
		writeJSON(w, http.StatusInternalServerError, apiError{"internal error"})
	}
}
