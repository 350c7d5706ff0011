package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // record created; awaiting provider outcome
	PaymentStatusCompleted PaymentStatus = "completed" // settled; terminal and immutable
	PaymentStatusFailed    PaymentStatus = "failed"    // provider declined or verification failed
	PaymentStatusRefunded  PaymentStatus = "refunded"  // provider-side refund
	PaymentStatusExpired   PaymentStatus = "expired"   // invoice/checkout expired unpaid
)

type PaymentKind string

const (
	PaymentKindCurrencyPurchase PaymentKind = "currency_purchase"
	PaymentKindPayPerView       PaymentKind = "pay_per_view"
	PaymentKindSubscription     PaymentKind = "subscription"
)

// Payment records a single external payment intent and its settlement outcome.
// A payment is created `pending` before the provider is ever contacted, so the
// internal ID can travel to the provider as the external reference and a crash
// mid-checkout still leaves a recoverable record.
type Payment struct {
	ID              string // UUID; also the external_reference/order_id at the provider
	PayerID         string
	RecipientID     *string // creator receiving the funds, nil for coin purchases
	Kind            PaymentKind
	Amount          decimal.Decimal
	Currency        string // BRL, USD for crypto invoices
	PlatformFee     decimal.Decimal
	RecipientAmount decimal.Decimal
	Provider        string  // mercadopago | nowpayments | paypal | fancoins
	ProviderTxID    *string // nil until the provider assigns one
	Status          PaymentStatus
	Metadata        map[string]any // package id, post id, preapproval id, provider details
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Terminal reports whether no further status transition is allowed.
func (p *Payment) Terminal() bool {
	switch p.Status {
	case PaymentStatusCompleted, PaymentStatusRefunded, PaymentStatusExpired:
		return true
	}
	return false
}

// MetaString returns a string metadata field, or "" when absent.
func (p *Payment) MetaString(key string) string {
	if p.Metadata == nil {
		return ""
	}
	if v, ok := p.Metadata[key].(string); ok {
		return v
	}
	return ""
}
