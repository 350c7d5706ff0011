//go:build !integration

package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"fanpay/internal/config"
	"fanpay/internal/domain"
	"fanpay/internal/domain/ports/adapter"
)

func TestMPOutcome(t *testing.T) {
	cases := map[string]adapter.Outcome{
		"approved":     adapter.OutcomeApproved,
		"rejected":     adapter.OutcomeDeclined,
		"cancelled":    adapter.OutcomeDeclined,
		"refunded":     adapter.OutcomeRefunded,
		"charged_back": adapter.OutcomeRefunded,
		"expired":      adapter.OutcomeExpired,
		"pending":      adapter.OutcomePending,
		"in_process":   adapter.OutcomePending,
		"in_mediation": adapter.OutcomePending,
		"":             adapter.OutcomePending,
	}
	for status, want := range cases {
		if got := mpOutcome(status); got != want {
			t.Errorf("mpOutcome(%q) = %q, want %q", status, got, want)
		}
	}
}

func mpSign(secret, dataID, requestID, ts string) string {
	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", dataID, requestID, ts)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestMercadoPagoVerifyWebhook(t *testing.T) {
	const secret = "mp-secret"
	mp := NewMercadoPago(config.MercadoPagoConfig{WebhookSecret: secret}, "https://api.test", "https://app.test", false)

	body := []byte(`{"type":"payment","data":{"id":12345}}`)
	requestID := "req-abc"
	ts := "1723500000"

	t.Run("valid signature", func(t *testing.T) {
		h := http.Header{}
		h.Set("x-request-id", requestID)
		h.Set("x-signature", fmt.Sprintf("ts=%s,v1=%s", ts, mpSign(secret, "12345", requestID, ts)))
		if err := mp.VerifyWebhook(h, body); err != nil {
			t.Fatalf("VerifyWebhook: %v", err)
		}
	})

	t.Run("tampered body", func(t *testing.T) {
		h := http.Header{}
		h.Set("x-request-id", requestID)
		h.Set("x-signature", fmt.Sprintf("ts=%s,v1=%s", ts, mpSign(secret, "12345", requestID, ts)))
		err := mp.VerifyWebhook(h, []byte(`{"type":"payment","data":{"id":99999}}`))
		if !errors.Is(err, domain.ErrInvalidSignature) {
			t.Errorf("err = %v, want ErrInvalidSignature", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		h := http.Header{}
		h.Set("x-request-id", requestID)
		h.Set("x-signature", fmt.Sprintf("ts=%s,v1=%s", ts, mpSign("other", "12345", requestID, ts)))
		if err := mp.VerifyWebhook(h, body); !errors.Is(err, domain.ErrInvalidSignature) {
			t.Errorf("err = %v, want ErrInvalidSignature", err)
		}
	})

	t.Run("missing headers", func(t *testing.T) {
		if err := mp.VerifyWebhook(http.Header{}, body); !errors.Is(err, domain.ErrInvalidSignature) {
			t.Errorf("err = %v, want ErrInvalidSignature", err)
		}
	})

	t.Run("malformed signature header", func(t *testing.T) {
		h := http.Header{}
		h.Set("x-request-id", requestID)
		h.Set("x-signature", "garbage")
		if err := mp.VerifyWebhook(h, body); !errors.Is(err, domain.ErrInvalidSignature) {
			t.Errorf("err = %v, want ErrInvalidSignature", err)
		}
	})

	t.Run("no secret outside dev mode", func(t *testing.T) {
		bare := NewMercadoPago(config.MercadoPagoConfig{}, "", "", false)
		if err := bare.VerifyWebhook(http.Header{}, body); !errors.Is(err, domain.ErrInvalidSignature) {
			t.Errorf("err = %v, want ErrInvalidSignature", err)
		}
	})

	t.Run("no secret in dev mode", func(t *testing.T) {
		dev := NewMercadoPago(config.MercadoPagoConfig{}, "", "", true)
		if err := dev.VerifyWebhook(http.Header{}, body); err != nil {
			t.Errorf("dev mode without secret should pass, got %v", err)
		}
	})
}

func TestMercadoPagoIdentity(t *testing.T) {
	mp := NewMercadoPago(config.MercadoPagoConfig{Sandbox: true}, "", "", false)
	if mp.Name() != "mercadopago" {
		t.Errorf("Name() = %q", mp.Name())
	}
	if !mp.Sandbox() {
		t.Error("Sandbox() = false, want true")
	}
	methods := mp.Methods()
	if len(methods) != 2 || methods[0] != "pix" || methods[1] != "credit_card" {
		t.Errorf("Methods() = %v", methods)
	}
}
