package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
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

var _ adapter.PaymentProvider = (*MercadoPago)(nil)

// MercadoPago wraps the MercadoPago checkout-preference and preapproval
// APIs. One-off charges go through a checkout preference; subscriptions
// through a preapproval (recurring authorization).
type MercadoPago struct {
	accessToken   string
	webhookSecret string
	sandbox       bool
	dev           bool
	baseURL       string // API origin of this service, for notification URLs
	frontendURL   string
	client        *http.Client
}

func NewMercadoPago(cfg config.MercadoPagoConfig, baseURL, frontendURL string, dev bool) *MercadoPago {
	return &MercadoPago{
		accessToken:   cfg.AccessToken,
		webhookSecret: cfg.WebhookSecret,
		sandbox:       cfg.Sandbox,
		dev:           dev,
		baseURL:       strings.TrimRight(baseURL, "/"),
		frontendURL:   strings.TrimRight(frontendURL, "/"),
		client:        &http.Client{Timeout: 15 * time.Second},
	}
}

func (m *MercadoPago) Name() string      { return "mercadopago" }
func (m *MercadoPago) Methods() []string { return []string{"pix", "credit_card"} }
func (m *MercadoPago) Sandbox() bool     { return m.sandbox }

const mpAPI = "https://api.mercadopago.com"

func (m *MercadoPago) do(ctx context.Context, method, path string, payload any, out any) error {
	if m.accessToken == "" {
		return fmt.Errorf("%w: mercadopago not configured", domain.ErrProviderUnavailable)
	}
	var body io.Reader
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, mpAPI+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.accessToken)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: mercadopago http %d", domain.ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: mercadopago http %d", domain.ErrProviderRejected, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (m *MercadoPago) CreateCharge(ctx context.Context, req adapter.ChargeRequest) (adapter.Charge, error) {
	if req.Recurring {
		return m.createPreapproval(ctx, req)
	}
	return m.createPreference(ctx, req)
}

func (m *MercadoPago) createPreference(ctx context.Context, req adapter.ChargeRequest) (adapter.Charge, error) {
	amount, _ := req.Amount.Float64()
	excluded := []map[string]string{}
	installments := 1
	if req.Method == "pix" {
		excluded = append(excluded, map[string]string{"id": "credit_card"})
	}
	if req.Method == "credit_card" {
		installments = 12
	}
	payload := map[string]any{
		"items": []map[string]any{{
			"title":       req.Description,
			"quantity":    1,
			"currency_id": req.Currency,
			"unit_price":  amount,
		}},
		"external_reference": req.Reference,
		"payment_methods": map[string]any{
			"excluded_payment_types": excluded,
			"installments":           installments,
		},
		"back_urls": map[string]string{
			"success": m.frontendURL + "/wallet?payment=success&provider=mercadopago",
			"failure": m.frontendURL + "/wallet?payment=failure&provider=mercadopago",
			"pending": m.frontendURL + "/wallet?payment=pending&provider=mercadopago",
		},
		"auto_return":          "approved",
		"notification_url":     m.baseURL + "/api/v1/payments/webhook/mercadopago",
		"statement_descriptor": "FANPAY",
	}

	var out struct {
		ID               string `json:"id"`
		InitPoint        string `json:"init_point"`
		SandboxInitPoint string `json:"sandbox_init_point"`
	}
	if err := m.do(ctx, http.MethodPost, "/checkout/preferences", payload, &out); err != nil {
		return adapter.Charge{}, err
	}
	url := out.InitPoint
	if m.sandbox {
		url = out.SandboxInitPoint
	}
	// The preference is not a payment: its id cannot be polled on
	// /v1/payments and must not pass for a transaction id. The webhook
	// for the actual payment supplies that later.
	return adapter.Charge{ProviderRef: out.ID, CheckoutURL: url, Sandbox: m.sandbox}, nil
}

func (m *MercadoPago) createPreapproval(ctx context.Context, req adapter.ChargeRequest) (adapter.Charge, error) {
	amount, _ := req.Amount.Float64()
	payload := map[string]any{
		"reason":             req.Description,
		"external_reference": req.Reference,
		"auto_recurring": map[string]any{
			"frequency":          1,
			"frequency_type":     "months",
			"transaction_amount": amount,
			"currency_id":        req.Currency,
		},
		"back_url": m.frontendURL + "/subscriptions?provider=mercadopago",
		"status":   "pending",
	}

	var out struct {
		ID        string `json:"id"`
		InitPoint string `json:"init_point"`
	}
	if err := m.do(ctx, http.MethodPost, "/preapproval", payload, &out); err != nil {
		return adapter.Charge{}, err
	}
	return adapter.Charge{PreapprovalID: out.ID, CheckoutURL: out.InitPoint, Sandbox: m.sandbox}, nil
}

// mpOutcome maps MercadoPago payment statuses to the shared vocabulary.
func mpOutcome(status string) adapter.Outcome {
	switch status {
	case "approved":
		return adapter.OutcomeApproved
	case "rejected", "cancelled":
		return adapter.OutcomeDeclined
	case "refunded", "charged_back":
		return adapter.OutcomeRefunded
	case "expired":
		return adapter.OutcomeExpired
	default: // pending, in_process, authorized, in_mediation
		return adapter.OutcomePending
	}
}

func (m *MercadoPago) FetchStatus(ctx context.Context, providerTxID string) (adapter.Outcome, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := m.do(ctx, http.MethodGet, "/v1/payments/"+providerTxID, nil, &out); err != nil {
		return "", err
	}
	return mpOutcome(out.Status), nil
}

// VerifyWebhook checks the x-signature header. The signed manifest is
// `id:<data.id>;request-id:<x-request-id>;ts:<ts>;` with HMAC-SHA256 over
// the webhook secret.
func (m *MercadoPago) VerifyWebhook(header http.Header, body []byte) error {
	if m.webhookSecret == "" {
		if m.dev {
			return nil
		}
		return domain.ErrInvalidSignature
	}
	signature := header.Get("x-signature")
	requestID := header.Get("x-request-id")
	if signature == "" || requestID == "" {
		return domain.ErrInvalidSignature
	}

	var ts, hash string
	for _, part := range strings.Split(signature, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "ts":
			ts = kv[1]
		case "v1":
			hash = kv[1]
		}
	}
	if ts == "" || hash == "" {
		return domain.ErrInvalidSignature
	}

	var payload struct {
		Data struct {
			ID json.Number `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.ErrInvalidSignature
	}

	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", payload.Data.ID.String(), requestID, ts)
	mac := hmac.New(sha256.New, []byte(m.webhookSecret))
	mac.Write([]byte(manifest))
	computed := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(computed), []byte(hash)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

func (m *MercadoPago) ParseWebhook(ctx context.Context, header http.Header, body []byte) (*adapter.WebhookEvent, error) {
	var payload struct {
		Type   string `json:"type"`
		Action string `json:"action"`
		Data   struct {
			ID json.Number `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed webhook body", domain.ErrInvalidArgument)
	}
	kind := payload.Type
	if kind == "" {
		kind = payload.Action
	}
	dataID := payload.Data.ID.String()
	if dataID == "" {
		return nil, nil
	}

	// MercadoPago webhooks carry only an id; the event body comes from the
	// API. This also makes forged references harmless: we trust only what
	// MercadoPago returns for the id.
	switch {
	case kind == "payment" || strings.HasPrefix(kind, "payment."):
		return m.fetchPaymentEvent(ctx, dataID)
	case kind == "subscription_preapproval":
		return m.fetchPreapprovalEvent(ctx, dataID)
	case kind == "subscription_authorized_payment":
		return m.fetchAuthorizedPaymentEvent(ctx, dataID)
	default:
		return nil, nil
	}
}

func (m *MercadoPago) fetchPaymentEvent(ctx context.Context, id string) (*adapter.WebhookEvent, error) {
	var out struct {
		ID                json.Number `json:"id"`
		Status            string      `json:"status"`
		StatusDetail      string      `json:"status_detail"`
		ExternalReference string      `json:"external_reference"`
		TransactionAmount float64     `json:"transaction_amount"`
		PaymentMethodID   string      `json:"payment_method_id"`
	}
	if err := m.do(ctx, http.MethodGet, "/v1/payments/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &adapter.WebhookEvent{
		Provider:     m.Name(),
		Kind:         adapter.EventPaymentStatusChanged,
		Reference:    out.ExternalReference,
		ProviderTxID: out.ID.String(),
		Outcome:      mpOutcome(out.Status),
		Amount:       decimal.NewFromFloat(out.TransactionAmount),
		Raw: map[string]any{
			"mpStatus":        out.Status,
			"mpStatusDetail":  out.StatusDetail,
			"mpPaymentMethod": out.PaymentMethodID,
		},
	}, nil
}

func (m *MercadoPago) fetchPreapprovalEvent(ctx context.Context, id string) (*adapter.WebhookEvent, error) {
	var out struct {
		ID                string `json:"id"`
		Status            string `json:"status"`
		ExternalReference string `json:"external_reference"`
		AutoRecurring     struct {
			TransactionAmount float64 `json:"transaction_amount"`
		} `json:"auto_recurring"`
	}
	if err := m.do(ctx, http.MethodGet, "/preapproval/"+id, nil, &out); err != nil {
		return nil, err
	}

	ev := &adapter.WebhookEvent{
		Provider:      m.Name(),
		Reference:     out.ExternalReference,
		PreapprovalID: out.ID,
		Amount:        decimal.NewFromFloat(out.AutoRecurring.TransactionAmount),
		Raw:           map[string]any{"mpPreapprovalStatus": out.Status},
	}
	switch out.Status {
	case "authorized":
		ev.Kind = adapter.EventRecurringAuthorized
		ev.Outcome = adapter.OutcomeApproved
		ev.RecurringStatus = "authorized"
	case "paused":
		ev.Kind = adapter.EventRecurringStatusChanged
		ev.RecurringStatus = "paused"
	case "cancelled":
		ev.Kind = adapter.EventRecurringStatusChanged
		ev.RecurringStatus = "cancelled"
	default: // pending: nothing to do yet
		return nil, nil
	}
	return ev, nil
}

func (m *MercadoPago) fetchAuthorizedPaymentEvent(ctx context.Context, id string) (*adapter.WebhookEvent, error) {
	var out struct {
		ID                json.Number `json:"id"`
		PreapprovalID     string      `json:"preapproval_id"`
		Status            string      `json:"status"`
		ExternalReference string      `json:"external_reference"`
		Transaction       struct {
			TransactionAmount float64 `json:"transaction_amount"`
		} `json:"transaction"`
	}
	if err := m.do(ctx, http.MethodGet, "/authorized_payments/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &adapter.WebhookEvent{
		Provider:      m.Name(),
		Kind:          adapter.EventPaymentStatusChanged,
		Reference:     out.ExternalReference,
		ProviderTxID:  out.ID.String(),
		PreapprovalID: out.PreapprovalID,
		Outcome:       mpOutcome(out.Status),
		Amount:        decimal.NewFromFloat(out.Transaction.TransactionAmount),
		Raw:           map[string]any{"mpAuthorizedPaymentStatus": out.Status},
	}, nil
}

func (m *MercadoPago) CancelRecurring(ctx context.Context, preapprovalID string) error {
	payload := map[string]string{"status": "cancelled"}
	return m.do(ctx, http.MethodPut, "/preapproval/"+preapprovalID, payload, nil)
}
