package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrInvalidExecContext = errors.New("invalid executor context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Provider / webhook errors
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrProviderRejected    = errors.New("payment rejected by provider")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrAlreadyProcessed    = errors.New("payment already processed")

	// Ledger / payout errors
	ErrInsufficientBalance = errors.New("insufficient coin balance")
	ErrWithdrawalBlocked   = errors.New("withdrawal blocked by risk limits")
	ErrBelowMinimumPayout  = errors.New("amount below minimum payout")
	ErrAlreadyUnlocked     = errors.New("post already unlocked")
	ErrAlreadySubscribed   = errors.New("already subscribed to this creator")
	ErrSelfOperation       = errors.New("operation not allowed on own account")
)
