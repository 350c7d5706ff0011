//go:build !integration

package payment

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"fanpay/internal/config"
	"fanpay/internal/domain"
	"fanpay/internal/domain/ports/adapter"

	"github.com/shopspring/decimal"
)

func TestPPOutcome(t *testing.T) {
	cases := map[string]adapter.Outcome{
		"COMPLETED":             adapter.OutcomeApproved,
		"APPROVED":              adapter.OutcomeApproved,
		"VOIDED":                adapter.OutcomeDeclined,
		"DECLINED":              adapter.OutcomeDeclined,
		"CREATED":               adapter.OutcomePending,
		"SAVED":                 adapter.OutcomePending,
		"PAYER_ACTION_REQUIRED": adapter.OutcomePending,
	}
	for status, want := range cases {
		if got := ppOutcome(status); got != want {
			t.Errorf("ppOutcome(%q) = %q, want %q", status, got, want)
		}
	}
}

func TestPayPalParseWebhook(t *testing.T) {
	pp := NewPayPal(config.PayPalConfig{WebhookID: "wh-1"}, "", false)

	t.Run("capture event resolves order id from supplementary data", func(t *testing.T) {
		body := []byte(`{
			"event_type": "PAYMENT.CAPTURE.COMPLETED",
			"resource": {
				"id": "CAP-9",
				"status": "COMPLETED",
				"purchase_units": [{"reference_id": "ref-1", "amount": {"value": "10.00"}}],
				"supplementary_data": {"related_ids": {"order_id": "ORD-5"}}
			}
		}`)
		ev, err := pp.ParseWebhook(context.Background(), http.Header{}, body)
		if err != nil {
			t.Fatalf("ParseWebhook: %v", err)
		}
		if ev == nil {
			t.Fatal("event is nil")
		}
		if ev.Provider != "paypal" || ev.Reference != "ref-1" {
			t.Errorf("provider/reference = %q/%q", ev.Provider, ev.Reference)
		}
		if ev.ProviderTxID != "ORD-5" {
			t.Errorf("ProviderTxID = %q, want order id ORD-5", ev.ProviderTxID)
		}
		if ev.Outcome != adapter.OutcomeApproved {
			t.Errorf("outcome = %q", ev.Outcome)
		}
		if !ev.Amount.Equal(decimal.NewFromInt(10)) {
			t.Errorf("amount = %s", ev.Amount)
		}
	})

	t.Run("order event falls back to resource id", func(t *testing.T) {
		body := []byte(`{
			"event_type": "CHECKOUT.ORDER.APPROVED",
			"resource": {
				"id": "ORD-5",
				"status": "APPROVED",
				"purchase_units": [{"reference_id": "ref-1", "amount": {"value": "10.00"}}]
			}
		}`)
		ev, err := pp.ParseWebhook(context.Background(), http.Header{}, body)
		if err != nil {
			t.Fatalf("ParseWebhook: %v", err)
		}
		if ev == nil || ev.ProviderTxID != "ORD-5" {
			t.Fatalf("event = %+v, want ProviderTxID ORD-5", ev)
		}
	})

	t.Run("no purchase units is not ours", func(t *testing.T) {
		ev, err := pp.ParseWebhook(context.Background(), http.Header{}, []byte(`{"resource":{"id":"X","status":"COMPLETED"}}`))
		if err != nil || ev != nil {
			t.Errorf("got (%v, %v), want (nil, nil)", ev, err)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		_, err := pp.ParseWebhook(context.Background(), http.Header{}, []byte("not json"))
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("err = %v, want ErrInvalidArgument", err)
		}
	})
}

func TestPayPalVerifyWebhookUnconfigured(t *testing.T) {
	t.Run("no webhook id outside dev mode", func(t *testing.T) {
		pp := NewPayPal(config.PayPalConfig{}, "", false)
		if err := pp.VerifyWebhook(http.Header{}, []byte("{}")); !errors.Is(err, domain.ErrInvalidSignature) {
			t.Errorf("err = %v, want ErrInvalidSignature", err)
		}
	})
	t.Run("no webhook id in dev mode", func(t *testing.T) {
		pp := NewPayPal(config.PayPalConfig{}, "", true)
		if err := pp.VerifyWebhook(http.Header{}, []byte("{}")); err != nil {
			t.Errorf("dev mode without webhook id should pass, got %v", err)
		}
	})
}

func TestPayPalNoRecurring(t *testing.T) {
	pp := NewPayPal(config.PayPalConfig{ClientID: "c", ClientSecret: "s"}, "", false)

	_, err := pp.CreateCharge(context.Background(), adapter.ChargeRequest{
		Reference: "ref-1",
		Amount:    decimal.NewFromInt(20),
		Currency:  "BRL",
		Recurring: true,
	})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("recurring CreateCharge err = %v, want ErrInvalidArgument", err)
	}
	if err := pp.CancelRecurring(context.Background(), "pre-1"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("CancelRecurring err = %v, want ErrInvalidArgument", err)
	}
}
