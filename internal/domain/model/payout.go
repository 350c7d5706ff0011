package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	PayoutStatusPending         PayoutStatus = "pending"
	PayoutStatusPendingApproval PayoutStatus = "pending_approval"
	PayoutStatusCompleted       PayoutStatus = "completed"
	PayoutStatusRejected        PayoutStatus = "rejected"
)

type PayoutMethod string

const (
	PayoutMethodPix          PayoutMethod = "pix"
	PayoutMethodBankTransfer PayoutMethod = "bank_transfer"
	PayoutMethodCrypto       PayoutMethod = "crypto"
)

// Risk flags raised by the withdrawal assessment. The first two are hard
// blocks; the rest only contribute to the score.
const (
	RiskFlagDailyLimitExceeded  = "DAILY_LIMIT_EXCEEDED"
	RiskFlagDailyAmountExceeded = "DAILY_AMOUNT_EXCEEDED"
	RiskFlagCooldownActive      = "COOLDOWN_ACTIVE"
	RiskFlagAboveThreshold      = "ABOVE_MANUAL_THRESHOLD"
	RiskFlagVeryNewAccount      = "VERY_NEW_ACCOUNT"
	RiskFlagNewAccount          = "NEW_ACCOUNT"
	RiskFlagHighWithdrawalRatio = "HIGH_WITHDRAWAL_RATIO"
)

// RiskAssessment is the outcome of scoring a withdrawal request.
type RiskAssessment struct {
	Score   int
	Flags   []string
	Blocked bool
}

// HasFlag reports whether a given flag was raised.
func (r RiskAssessment) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Payout is a creator withdrawal request. Coins are debited from the
// wallet in the same transaction that creates this row; a rejected payout
// always refunds the exact debited amount.
type Payout struct {
	ID                     string
	CreatorID              string
	FiatAmount             decimal.Decimal
	CoinAmount             int64
	Currency               string
	Method                 PayoutMethod
	Status                 PayoutStatus
	PixKey                 *string
	BankDetails            map[string]any
	CryptoAddress          *string
	CryptoNetwork          *string
	RiskScore              int
	RiskFlags              []string
	RequiresManualApproval bool
	ApprovedBy             *string
	RejectedReason         *string
	ProcessedAt            *time.Time
	CreatedAt              time.Time
}
