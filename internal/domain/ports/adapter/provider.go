package adapter

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
)

// Outcome is the shared vocabulary every provider-specific status maps to
// at the adapter boundary. Nothing downstream of an adapter ever branches
// on provider field names.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomePending  Outcome = "pending"
	OutcomeDeclined Outcome = "declined"
	OutcomeRefunded Outcome = "refunded"
	OutcomeExpired  Outcome = "expired"
)

// EventKind classifies a normalized webhook event.
type EventKind string

const (
	EventPaymentStatusChanged   EventKind = "payment-status-changed"
	EventRecurringAuthorized    EventKind = "recurring-authorized"
	EventRecurringStatusChanged EventKind = "recurring-status-changed"
)

// WebhookEvent is a provider webhook reduced to its normalized form.
// Reference is the internal id we handed the provider at charge creation
// (external_reference / order_id); it is the only identifier the
// reconciliation engine trusts for record resolution.
type WebhookEvent struct {
	Provider        string
	Kind            EventKind
	Reference       string
	ProviderTxID    string
	PreapprovalID   string // recurring-billing id, recurring events only
	Outcome         Outcome
	Amount          decimal.Decimal // zero when the provider omits it
	RecurringStatus string          // provider recurring state: authorized|paused|cancelled
	Raw             map[string]any
}

// ChargeRequest describes a charge to create at a provider.
type ChargeRequest struct {
	Reference   string // internal payment id
	Amount      decimal.Decimal
	Currency    string
	Description string
	Method      string // pix | credit_card | crypto | paypal
	Recurring   bool   // request a preapproval instead of a one-off charge
	PayerID     string
	Metadata    map[string]any
}

// Charge is the provider's answer to a ChargeRequest. ProviderTxID is
// set only when the provider already created a pollable payment; a
// checkout artifact that precedes the payment (a MercadoPago preference)
// goes in ProviderRef instead.
type Charge struct {
	ProviderTxID  string
	ProviderRef   string
	CheckoutURL   string
	PreapprovalID string
	Sandbox       bool
}

// PaymentProvider is the port every external payment network is wrapped
// behind. Implementations translate provider request/response shapes into
// the shared vocabulary above and never leak provider types.
type PaymentProvider interface {
	Name() string
	// Methods lists the payment methods this provider can take.
	Methods() []string
	Sandbox() bool

	// CreateCharge registers a charge with the provider. The payment record
	// referenced by req.Reference must already exist as `pending`.
	CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error)

	// FetchStatus polls the provider for the current state of a charge.
	FetchStatus(ctx context.Context, providerTxID string) (Outcome, error)

	// VerifyWebhook authenticates an inbound event payload. It returns
	// domain.ErrInvalidSignature when a configured secret does not match,
	// and succeeds without checking only when no secret is configured and
	// the adapter was built in dev mode.
	VerifyWebhook(header http.Header, body []byte) error

	// ParseWebhook maps a (verified) payload to a normalized event.
	// A nil event with nil error means the payload is a type this
	// adapter deliberately ignores.
	ParseWebhook(ctx context.Context, header http.Header, body []byte) (*WebhookEvent, error)

	// CancelRecurring tears down a preapproval at the provider. Providers
	// without recurring billing return domain.ErrInvalidArgument.
	CancelRecurring(ctx context.Context, preapprovalID string) error
}
