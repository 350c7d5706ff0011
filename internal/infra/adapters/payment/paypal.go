package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fanpay/internal/config"
	"fanpay/internal/domain"
	"fanpay/internal/domain/ports/adapter"
)

var _ adapter.PaymentProvider = (*PayPal)(nil)

// PayPal wraps the PayPal Orders v2 API. Orders need an explicit capture
// after buyer approval; the capture funnels into the same settlement path
// as webhooks via usecase.OrderCapturer.
type PayPal struct {
	clientID     string
	clientSecret string
	webhookID    string
	sandbox      bool
	dev          bool
	frontendURL  string
	client       *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewPayPal(cfg config.PayPalConfig, frontendURL string, dev bool) *PayPal {
	return &PayPal{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		webhookID:    cfg.WebhookID,
		sandbox:      cfg.Sandbox,
		dev:          dev,
		frontendURL:  strings.TrimRight(frontendURL, "/"),
		client:       &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *PayPal) Name() string      { return "paypal" }
func (p *PayPal) Methods() []string { return []string{"paypal"} }
func (p *PayPal) Sandbox() bool     { return p.sandbox }

func (p *PayPal) endpoint(path string) string {
	if p.sandbox {
		return "https://api-m.sandbox.paypal.com" + path
	}
	return "https://api-m.paypal.com" + path
}

// token returns a cached client-credentials access token, refreshing when
// less than a minute of validity remains.
func (p *PayPal) token(ctx context.Context) (string, error) {
	if p.clientID == "" || p.clientSecret == "" {
		return "", fmt.Errorf("%w: paypal not configured", domain.ErrProviderUnavailable)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accessToken != "" && time.Until(p.tokenExpiry) > time.Minute {
		return p.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/v1/oauth2/token"),
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(p.clientID + ":" + p.clientSecret))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK || out.AccessToken == "" {
		return "", fmt.Errorf("%w: paypal auth failed http %d", domain.ErrProviderUnavailable, resp.StatusCode)
	}
	p.accessToken = out.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	return p.accessToken, nil
}

func (p *PayPal) do(ctx context.Context, method, path string, payload any, out any) error {
	token, err := p.token(ctx)
	if err != nil {
		return err
	}
	var body io.Reader
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.endpoint(path), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: paypal http %d", domain.ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: paypal http %d", domain.ErrProviderRejected, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (p *PayPal) CreateCharge(ctx context.Context, req adapter.ChargeRequest) (adapter.Charge, error) {
	if req.Recurring {
		return adapter.Charge{}, fmt.Errorf("%w: paypal recurring billing is not wired", domain.ErrInvalidArgument)
	}
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": req.Reference,
			"description":  req.Description,
			"amount": map[string]string{
				"currency_code": req.Currency,
				"value":         req.Amount.StringFixed(2),
			},
		}},
		"application_context": map[string]string{
			"brand_name":  "FanPay",
			"return_url":  p.frontendURL + "/wallet?payment=success&provider=paypal",
			"cancel_url":  p.frontendURL + "/wallet?payment=failure&provider=paypal",
			"user_action": "PAY_NOW",
		},
	}

	var out struct {
		ID    string `json:"id"`
		Links []struct {
			Href string `json:"href"`
			Rel  string `json:"rel"`
		} `json:"links"`
	}
	if err := p.do(ctx, http.MethodPost, "/v2/checkout/orders", payload, &out); err != nil {
		return adapter.Charge{}, err
	}
	var approveURL string
	for _, l := range out.Links {
		if l.Rel == "approve" {
			approveURL = l.Href
		}
	}
	return adapter.Charge{ProviderTxID: out.ID, CheckoutURL: approveURL, Sandbox: p.sandbox}, nil
}

// ppOutcome maps PayPal order statuses to the shared vocabulary.
// APPROVED counts as approved: the buyer consented and the capture call
// settles the funds.
func ppOutcome(status string) adapter.Outcome {
	switch status {
	case "COMPLETED", "APPROVED":
		return adapter.OutcomeApproved
	case "VOIDED", "DECLINED":
		return adapter.OutcomeDeclined
	default: // CREATED, SAVED, PAYER_ACTION_REQUIRED
		return adapter.OutcomePending
	}
}

func (p *PayPal) FetchStatus(ctx context.Context, providerTxID string) (adapter.Outcome, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := p.do(ctx, http.MethodGet, "/v2/checkout/orders/"+providerTxID, nil, &out); err != nil {
		return "", err
	}
	return ppOutcome(out.Status), nil
}

// CaptureOrder performs the explicit capture step and returns the outcome
// plus the capture id. Implements usecase.OrderCapturer.
func (p *PayPal) CaptureOrder(ctx context.Context, orderID string) (adapter.Outcome, string, error) {
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := p.do(ctx, http.MethodPost, "/v2/checkout/orders/"+orderID+"/capture", struct{}{}, &out); err != nil {
		return "", "", err
	}
	if out.Status == "COMPLETED" {
		return adapter.OutcomeApproved, out.ID, nil
	}
	return adapter.OutcomePending, out.ID, nil
}

// VerifyWebhook calls PayPal's verify-webhook-signature endpoint with the
// transmission headers. There is no shared-secret scheme to check locally.
func (p *PayPal) VerifyWebhook(header http.Header, body []byte) error {
	if p.webhookID == "" {
		if p.dev {
			return nil
		}
		return domain.ErrInvalidSignature
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payload := map[string]any{
		"auth_algo":         header.Get("paypal-auth-algo"),
		"cert_url":          header.Get("paypal-cert-url"),
		"transmission_id":   header.Get("paypal-transmission-id"),
		"transmission_sig":  header.Get("paypal-transmission-sig"),
		"transmission_time": header.Get("paypal-transmission-time"),
		"webhook_id":        p.webhookID,
		"webhook_event":     json.RawMessage(body),
	}
	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := p.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", payload, &out); err != nil {
		return err
	}
	if out.VerificationStatus != "SUCCESS" {
		return domain.ErrInvalidSignature
	}
	return nil
}

func (p *PayPal) ParseWebhook(ctx context.Context, header http.Header, body []byte) (*adapter.WebhookEvent, error) {
	var payload struct {
		Resource struct {
			ID            string `json:"id"`
			Status        string `json:"status"`
			PurchaseUnits []struct {
				ReferenceID string `json:"reference_id"`
				Amount      struct {
					Value string `json:"value"`
				} `json:"amount"`
			} `json:"purchase_units"`
			SupplementaryData struct {
				RelatedIDs struct {
					OrderID string `json:"order_id"`
				} `json:"related_ids"`
			} `json:"supplementary_data"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed webhook body", domain.ErrInvalidArgument)
	}
	r := payload.Resource
	if len(r.PurchaseUnits) == 0 || r.PurchaseUnits[0].ReferenceID == "" {
		return nil, nil
	}

	orderID := r.SupplementaryData.RelatedIDs.OrderID
	if orderID == "" {
		orderID = r.ID
	}
	amount := decimal.Zero
	if v := r.PurchaseUnits[0].Amount.Value; v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			amount = d
		}
	}
	return &adapter.WebhookEvent{
		Provider:     p.Name(),
		Kind:         adapter.EventPaymentStatusChanged,
		Reference:    r.PurchaseUnits[0].ReferenceID,
		ProviderTxID: orderID,
		Outcome:      ppOutcome(r.Status),
		Amount:       amount,
		Raw:          map[string]any{"ppStatus": r.Status, "ppOrderId": orderID},
	}, nil
}

func (p *PayPal) CancelRecurring(ctx context.Context, preapprovalID string) error {
	return fmt.Errorf("%w: paypal recurring billing is not wired", domain.ErrInvalidArgument)
}
