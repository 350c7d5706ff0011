package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fanpay/internal/config"
	"fanpay/internal/domain"
	"fanpay/internal/domain/ports/adapter"
)

var _ adapter.PaymentProvider = (*NOWPayments)(nil)

// NOWPayments wraps the NOWPayments crypto invoice API. Invoices are
// priced in USD; amounts are converted from BRL at a configured rate.
type NOWPayments struct {
	apiKey      string
	ipnSecret   string
	sandbox     bool
	dev         bool
	brlPerUSD   decimal.Decimal
	baseURL     string
	frontendURL string
	client      *http.Client
}

func NewNOWPayments(cfg config.NOWPaymentsConfig, baseURL, frontendURL string, dev bool) *NOWPayments {
	return &NOWPayments{
		apiKey:      cfg.APIKey,
		ipnSecret:   cfg.IPNSecret,
		sandbox:     cfg.Sandbox,
		dev:         dev,
		brlPerUSD:   decimal.NewFromFloat(cfg.BRLPerUSD),
		baseURL:     strings.TrimRight(baseURL, "/"),
		frontendURL: strings.TrimRight(frontendURL, "/"),
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (n *NOWPayments) Name() string      { return "nowpayments" }
func (n *NOWPayments) Methods() []string { return []string{"crypto"} }
func (n *NOWPayments) Sandbox() bool     { return n.sandbox }

func (n *NOWPayments) endpoint(path string) string {
	if n.sandbox {
		return "https://api-sandbox.nowpayments.io/v1" + path
	}
	return "https://api.nowpayments.io/v1" + path
}

func (n *NOWPayments) do(ctx context.Context, method, path string, payload any, out any) error {
	if n.apiKey == "" {
		return fmt.Errorf("%w: nowpayments not configured", domain.ErrProviderUnavailable)
	}
	var body io.Reader
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, n.endpoint(path), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", n.apiKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: nowpayments http %d", domain.ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: nowpayments http %d", domain.ErrProviderRejected, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (n *NOWPayments) CreateCharge(ctx context.Context, req adapter.ChargeRequest) (adapter.Charge, error) {
	if req.Recurring {
		return adapter.Charge{}, fmt.Errorf("%w: nowpayments has no recurring billing", domain.ErrInvalidArgument)
	}
	priceUSD, _ := req.Amount.Div(n.brlPerUSD).Round(2).Float64()
	payload := map[string]any{
		"price_amount":      priceUSD,
		"price_currency":    "usd",
		"order_id":          req.Reference,
		"order_description": req.Description,
		"ipn_callback_url":  n.baseURL + "/api/v1/payments/webhook/nowpayments",
		"success_url":       n.frontendURL + "/wallet?payment=success&provider=nowpayments",
		"cancel_url":        n.frontendURL + "/wallet?payment=failure&provider=nowpayments",
	}

	var out struct {
		ID         json.Number `json:"id"`
		InvoiceURL string      `json:"invoice_url"`
	}
	if err := n.do(ctx, http.MethodPost, "/invoice", payload, &out); err != nil {
		return adapter.Charge{}, err
	}
	return adapter.Charge{ProviderTxID: out.ID.String(), CheckoutURL: out.InvoiceURL, Sandbox: n.sandbox}, nil
}

// npOutcome maps NOWPayments IPN statuses to the shared vocabulary.
func npOutcome(status string) adapter.Outcome {
	switch status {
	case "finished", "confirmed":
		return adapter.OutcomeApproved
	case "failed":
		return adapter.OutcomeDeclined
	case "refunded":
		return adapter.OutcomeRefunded
	case "expired":
		return adapter.OutcomeExpired
	default: // waiting, confirming, sending, partially_paid
		return adapter.OutcomePending
	}
}

func (n *NOWPayments) FetchStatus(ctx context.Context, providerTxID string) (adapter.Outcome, error) {
	var out struct {
		PaymentStatus string `json:"payment_status"`
	}
	if err := n.do(ctx, http.MethodGet, "/payment/"+providerTxID, nil, &out); err != nil {
		return "", err
	}
	return npOutcome(out.PaymentStatus), nil
}

// VerifyWebhook checks the x-nowpayments-sig header: HMAC-SHA512 over the
// IPN body re-serialized with sorted keys.
func (n *NOWPayments) VerifyWebhook(header http.Header, body []byte) error {
	if n.ipnSecret == "" {
		if n.dev {
			return nil
		}
		return domain.ErrInvalidSignature
	}
	sig := header.Get("x-nowpayments-sig")
	if sig == "" {
		return domain.ErrInvalidSignature
	}

	sorted, err := sortedJSON(body)
	if err != nil {
		return domain.ErrInvalidSignature
	}
	mac := hmac.New(sha512.New, []byte(n.ipnSecret))
	mac.Write(sorted)
	computed := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(computed), []byte(sig)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

// sortedJSON re-serializes a JSON object with lexicographically sorted
// keys, matching what NOWPayments signs. Decoding into json.RawMessage
// keeps numbers byte-identical to the original payload.
func sortedJSON(body []byte) ([]byte, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func (n *NOWPayments) ParseWebhook(ctx context.Context, header http.Header, body []byte) (*adapter.WebhookEvent, error) {
	var payload struct {
		OrderID       string      `json:"order_id"`
		PaymentID     json.Number `json:"payment_id"`
		PaymentStatus string      `json:"payment_status"`
		PriceAmount   float64     `json:"price_amount"`
		PayCurrency   string      `json:"pay_currency"`
		PayAmount     float64     `json:"pay_amount"`
		ActuallyPaid  float64     `json:"actually_paid"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed IPN body", domain.ErrInvalidArgument)
	}
	if payload.OrderID == "" {
		return nil, nil
	}

	// price_amount is the USD invoice price; convert back so the amount
	// check compares BRL with BRL.
	amount := decimal.NewFromFloat(payload.PriceAmount).Mul(n.brlPerUSD).Round(2)

	return &adapter.WebhookEvent{
		Provider:     n.Name(),
		Kind:         adapter.EventPaymentStatusChanged,
		Reference:    payload.OrderID,
		ProviderTxID: payload.PaymentID.String(),
		Outcome:      npOutcome(payload.PaymentStatus),
		Amount:       amount,
		Raw: map[string]any{
			"npStatus":     payload.PaymentStatus,
			"payCurrency":  payload.PayCurrency,
			"payAmount":    payload.PayAmount,
			"actuallyPaid": payload.ActuallyPaid,
		},
	}, nil
}

func (n *NOWPayments) CancelRecurring(ctx context.Context, preapprovalID string) error {
	return fmt.Errorf("%w: nowpayments has no recurring billing", domain.ErrInvalidArgument)
}
