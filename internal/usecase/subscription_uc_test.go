//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fanpay/internal/domain"
	"fanpay/internal/domain/model"
	"fanpay/internal/domain/ports/adapter"
	"fanpay/internal/usecase"
)

type subDeps struct {
	subs     *MockSubscriptionRepo
	payments *MockPaymentRepo
	profile  *MockProfileUpdater
	provider *MockProvider
	tm       *MockTxManager
}

func newSubDeps() *subDeps {
	return &subDeps{
		subs:     NewMockSubscriptionRepo(),
		payments: NewMockPaymentRepo(),
		profile:  NewMockProfileUpdater(),
		provider: &MockProvider{NameVal: "mercadopago"},
		tm:       NewMockTxManager(),
	}
}

func (d *subDeps) uc() usecase.SubscriptionUseCase {
	lookup := func(name string) (adapter.PaymentProvider, bool) {
		if name == d.provider.NameVal {
			return d.provider, true
		}
		return nil, false
	}
	return usecase.NewSubscriptionUseCase(d.subs, d.payments, d.profile, lookup, d.tm, newTestLogger())
}

func TestSubscriptionUseCase_Begin(t *testing.T) {
	ctx := context.Background()
	price := decimal.NewFromInt(20)

	t.Run("creates a pending subscription", func(t *testing.T) {
		deps := newSubDeps()
		uc := deps.uc()

		s, err := uc.Begin(ctx, "fan-1", "creator-1", nil, price, "mercadopago")
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if s.Status != model.SubscriptionStatusPending {
			t.Errorf("expected pending, got %s", s.Status)
		}
		if !s.AutoRenew {
			t.Error("expected auto renew on")
		}
	})

	t.Run("zero price activates immediately", func(t *testing.T) {
		deps := newSubDeps()
		uc := deps.uc()

		s, err := uc.Begin(ctx, "fan-1", "creator-1", nil, decimal.Zero, "none")
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if s.Status != model.SubscriptionStatusActive {
			t.Errorf("expected active, got %s", s.Status)
		}
		if deps.profile.Deltas["creator-1"] != 1 {
			t.Errorf("expected subscriber delta +1, got %d", deps.profile.Deltas["creator-1"])
		}
	})

	t.Run("subscribing to yourself is rejected", func(t *testing.T) {
		uc := newSubDeps().uc()
		_, err := uc.Begin(ctx, "user-1", "user-1", nil, price, "mercadopago")
		if !errors.Is(err, domain.ErrSelfOperation) {
			t.Fatalf("expected ErrSelfOperation, got %v", err)
		}
	})

	t.Run("an active subscription blocks a second one", func(t *testing.T) {
		deps := newSubDeps()
		uc := deps.uc()

		s, err := uc.Begin(ctx, "fan-1", "creator-1", nil, price, "mercadopago")
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if _, err := uc.Activate(ctx, s.ID, nil, price); err != nil {
			t.Fatalf("activate: %v", err)
		}
		_, err = uc.Begin(ctx, "fan-1", "creator-1", nil, price, "mercadopago")
		if !errors.Is(err, domain.ErrAlreadySubscribed) {
			t.Fatalf("expected ErrAlreadySubscribed, got %v", err)
		}
	})

	t.Run("an expired pair row is reused, not duplicated", func(t *testing.T) {
		deps := newSubDeps()
		uc := deps.uc()

		first, err := uc.Begin(ctx, "fan-1", "creator-1", nil, price, "mercadopago")
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		first.Status = model.SubscriptionStatusExpired
		deps.subs.Save(ctx, nil, first)

		second, err := uc.Begin(ctx, "fan-1", "creator-1", nil, price, "mercadopago")
		if err != nil {
			t.Fatalf("re-begin: %v", err)
		}
		if second.ID != first.ID {
			t.Errorf("expected the pair row to be reused, got %s vs %s", second.ID, first.ID)
		}
	})
}

func TestSubscriptionUseCase_Activate(t *testing.T) {
	ctx := context.Background()
	price := decimal.NewFromInt(20)

	t.Run("opens a one-month period and accrues earnings", func(t *testing.T) {
		deps := newSubDeps()
		uc := deps.uc()
		s, _ := uc.Begin(ctx, "fan-1", "creator-1", nil, price, "mercadopago")

		pre := "preapproval-9"
		activated, err := uc.Activate(ctx, s.ID, &pre, price)
		if err != nil {
			t.Fatalf("activate: %v", err)
		}
		if activated.Status != model.SubscriptionStatusActive {
			t.Errorf("expected active, got %s", activated.Status)
		}
		if activated.CurrentPeriodEnd == nil {
			t.Fatal("expected a period end")
		}
		wantEnd := activated.CurrentPeriodStart.AddDate(0, 1, 0)
		if !activated.CurrentPeriodEnd.Equal(wantEnd) {
			t.Errorf("expected one-month period, got %v", activated.CurrentPeriodEnd)
		}
		if activated.ProviderSubID == nil || *activated.ProviderSubID != pre {
			t.Errorf("expected preapproval id stored")
		}
		// 12% platform fee on 20.00 leaves 17.60 for the creator.
		if len(deps.profile.Earnings) != 1 || deps.profile.Earnings[0] != "creator-1:17.60" {
			t.Errorf("expected net earnings 17.60, got %v", deps.profile.Earnings)
		}
	})

	t.Run("activating an already active row is a no-op", func(t *testing.T) {
		deps := newSubDeps()
		uc := deps.uc()
		s, _ := uc.Begin(ctx, "fan-1", "creator-1", nil, price, "mercadopago")

		if _, err := uc.Activate(ctx, s.ID, nil, price); err != nil {
			t.Fatalf("first activate: %v", err)
		}
		if _, err := uc.Activate(ctx, s.ID, nil, price); err != nil {
			t.Fatalf("second activate: %v", err)
		}
		if deps.profile.Deltas["creator-1"] != 1 {
			t.Errorf("expected a single subscriber delta, got %d", deps.profile.Deltas["creator-1"])
		}
	})
}

func TestSubscriptionUseCase_Cancel(t *testing.T) {
	ctx := context.Background()
	price := decimal.NewFromInt(20)

	t.Run("graceful cancel keeps access until period end", func(t *testing.T) {
		deps := newSubDeps()
		uc := deps.uc()
		s, _ := uc.Begin(ctx, "fan-1", "creator-1", nil, price, "mercadopago")
		pre := "preapproval-1"
		uc.Activate(ctx, s.ID, &pre, price)

		cancelled, err := uc.Cancel(ctx, s.ID, "fan-1")
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if cancelled.Status != model.SubscriptionStatusActive {
			t.Errorf("expected status to stay active, got %s", cancelled.Status)
		}
		if cancelled.AutoRenew {
			t.Error("expected auto renew off")
		}
		if cancelled.CancelledAt == nil {
			t.Error("expected CancelledAt set")
		}
		ok, err := uc.HasAccess(ctx, "fan-1", "creator-1")
		if err != nil || !ok {
			t.Errorf("expected access to survive until period end, got %v/%v", ok, err)
		}
		if len(deps.provider.CancelledPreapprovals) != 1 || deps.provider.CancelledPreapprovals[0] != pre {
			t.Errorf("expected recurring cancel at the provider, got %v", deps.provider.CancelledPreapprovals)
		}
	})

	t.Run("cancelling someone else's subscription is not found", func(t *testing.T) {
		deps := newSubDeps()
		uc := deps.uc()
		s, _ := uc.Begin(ctx, "fan-1", "creator-1", nil, price, "mercadopago")

		_, err := uc.Cancel(ctx, s.ID, "fan-2")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSubscriptionUseCase_ExpireOverdue(t *testing.T) {
	ctx := context.Background()
	price := decimal.NewFromInt(20)

	t.Run("expires overdue non-renewing rows and drops the subscriber count", func(t *testing.T) {
		deps := newSubDeps()
		uc := deps.uc()
		s, _ := uc.Begin(ctx, "fan-1", "creator-1", nil, price, "mercadopago")
		uc.Activate(ctx, s.ID, nil, price)
		uc.Cancel(ctx, s.ID, "fan-1")

		// Rewind the paid period so the row is overdue.
		row, _ := deps.subs.FindByID(ctx, nil, s.ID)
		past := time.Now().Add(-time.Hour)
		row.CurrentPeriodEnd = &past
		deps.subs.Save(ctx, nil, row)

		n, err := uc.ExpireOverdue(ctx)
		if err != nil {
			t.Fatalf("expire: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 expired, got %d", n)
		}
		after, _ := deps.subs.FindByID(ctx, nil, s.ID)
		if after.Status != model.SubscriptionStatusExpired {
			t.Errorf("expected expired, got %s", after.Status)
		}
		if deps.profile.Deltas["creator-1"] != 0 {
			t.Errorf("expected subscriber delta back to 0, got %d", deps.profile.Deltas["creator-1"])
		}
		ok, _ := uc.HasAccess(ctx, "fan-1", "creator-1")
		if ok {
			t.Error("expected access gone after expiry")
		}
	})

	t.Run("auto-renewing rows are left to the provider", func(t *testing.T) {
		deps := newSubDeps()
		uc := deps.uc()
		s, _ := uc.Begin(ctx, "fan-1", "creator-1", nil, price, "mercadopago")
		uc.Activate(ctx, s.ID, nil, price)

		row, _ := deps.subs.FindByID(ctx, nil, s.ID)
		past := time.Now().Add(-time.Hour)
		row.CurrentPeriodEnd = &past
		deps.subs.Save(ctx, nil, row)

		n, err := uc.ExpireOverdue(ctx)
		if err != nil {
			t.Fatalf("expire: %v", err)
		}
		if n != 0 {
			t.Errorf("expected 0 expired with auto renew on, got %d", n)
		}
	})
}

func TestSubscriptionUseCase_ProviderStateChanged(t *testing.T) {
	ctx := context.Background()
	price := decimal.NewFromInt(20)

	t.Run("provider cancel on an active row cancels it", func(t *testing.T) {
		deps := newSubDeps()
		uc := deps.uc()
		s, _ := uc.Begin(ctx, "fan-1", "creator-1", nil, price, "mercadopago")
		pre := "preapproval-1"
		uc.Activate(ctx, s.ID, &pre, price)

		if err := uc.ProviderStateChanged(ctx, pre, "cancelled"); err != nil {
			t.Fatalf("state change: %v", err)
		}
		after, _ := deps.subs.FindByID(ctx, nil, s.ID)
		if after.Status != model.SubscriptionStatusCancelled {
			t.Errorf("expected cancelled, got %s", after.Status)
		}
		if deps.profile.Deltas["creator-1"] != 0 {
			t.Errorf("expected subscriber delta back to 0, got %d", deps.profile.Deltas["creator-1"])
		}
	})

	t.Run("provider cancel after a graceful cancel changes nothing", func(t *testing.T) {
		deps := newSubDeps()
		uc := deps.uc()
		s, _ := uc.Begin(ctx, "fan-1", "creator-1", nil, price, "mercadopago")
		pre := "preapproval-1"
		uc.Activate(ctx, s.ID, &pre, price)
		uc.Cancel(ctx, s.ID, "fan-1")

		if err := uc.ProviderStateChanged(ctx, pre, "cancelled"); err != nil {
			t.Fatalf("state change: %v", err)
		}
		after, _ := deps.subs.FindByID(ctx, nil, s.ID)
		if after.Status != model.SubscriptionStatusActive {
			t.Errorf("expected graceful cancel to keep access, got %s", after.Status)
		}
	})

	t.Run("pause only applies to active rows", func(t *testing.T) {
		deps := newSubDeps()
		uc := deps.uc()
		s, _ := uc.Begin(ctx, "fan-1", "creator-1", nil, price, "mercadopago")
		pre := "preapproval-1"
		uc.Activate(ctx, s.ID, &pre, price)

		if err := uc.ProviderStateChanged(ctx, pre, "paused"); err != nil {
			t.Fatalf("pause: %v", err)
		}
		after, _ := deps.subs.FindByID(ctx, nil, s.ID)
		if after.Status != model.SubscriptionStatusPaused {
			t.Errorf("expected paused, got %s", after.Status)
		}
	})
}
