package model

import "time"

// Wallet holds a user's FanCoin balance. Balances are integers in the
// smallest coin unit and must equal the running sum of the user's
// transaction log after every mutation.
type Wallet struct {
	UserID      string
	Balance     int64
	TotalEarned int64
	TotalSpent  int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Age returns how long the wallet has existed, the account-age signal
// used by withdrawal risk scoring.
func (w *Wallet) Age(now time.Time) time.Duration {
	if w.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(w.CreatedAt)
}

type TransactionType string

const (
	TxTypePurchase         TransactionType = "purchase"
	TxTypeTipSent          TransactionType = "tip_sent"
	TxTypeTipReceived      TransactionType = "tip_received"
	TxTypePPVUnlock        TransactionType = "ppv_unlock"
	TxTypePPVReceived      TransactionType = "ppv_received"
	TxTypeWithdrawal       TransactionType = "withdrawal"
	TxTypeWithdrawalRefund TransactionType = "withdrawal_refund"
	TxTypeSubEarning       TransactionType = "subscription_earning"
)

// RewardTxType builds a reward_* transaction type for engagement rewards.
func RewardTxType(kind string) TransactionType {
	return TransactionType("reward_" + kind)
}

// WalletTransaction is an append-only ledger entry. Amount is signed;
// BalanceAfter is the wallet balance resulting from this entry. Entries
// are never updated or deleted. IDs are ULIDs so the log sorts by time.
type WalletTransaction struct {
	ID           string
	UserID       string
	Type         TransactionType
	Amount       int64
	BalanceAfter int64
	ReferenceID  *string // tipped post, source payment, payout id
	Description  string
	CreatedAt    time.Time
}
