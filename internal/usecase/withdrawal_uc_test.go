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
	"fanpay/internal/usecase"
)

type withdrawalDeps struct {
	payouts  *MockPayoutRepo
	wallets  *MockWalletRepo
	notifier *MockNotifier
	tm       *MockTxManager
	ledger   usecase.LedgerUseCase
}

func newWithdrawalDeps() *withdrawalDeps {
	d := &withdrawalDeps{
		payouts:  NewMockPayoutRepo(),
		wallets:  NewMockWalletRepo(),
		notifier: &MockNotifier{},
		tm:       NewMockTxManager(),
	}
	settings := usecase.NewSettingsUseCase(NewMockSettingsRepo(), newTestLogger())
	d.ledger = usecase.NewLedgerUseCase(d.wallets, NewMockPaymentRepo(), settings, &MockContentGateway{}, d.notifier, d.tm, newTestLogger())
	return d
}

func (d *withdrawalDeps) uc() usecase.WithdrawalUseCase {
	settings := usecase.NewSettingsUseCase(NewMockSettingsRepo(), newTestLogger())
	return usecase.NewWithdrawalUseCase(d.payouts, d.wallets, d.ledger, settings, d.notifier, d.tm, newTestLogger())
}

// seasonedCreator installs a wallet old enough to dodge the account-age
// risk signals, holding the given balance.
func (d *withdrawalDeps) seasonedCreator(id string, balance, totalEarned int64) {
	d.wallets.Seed(id, balance, totalEarned, time.Now().AddDate(0, -3, 0))
}

func pixRequest(creatorID string, coins int64) usecase.WithdrawalRequest {
	return usecase.WithdrawalRequest{
		CreatorID:  creatorID,
		CoinAmount: coins,
		Method:     model.PayoutMethodPix,
		PixKey:     "creator@bank.example",
	}
}

func TestWithdrawalUseCase_Request(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path debits coins and creates a pending payout", func(t *testing.T) {
		deps := newWithdrawalDeps()
		uc := deps.uc()
		deps.seasonedCreator("creator-1", 50_000, 200_000)

		// 10000 coins at 0.01 = 100 BRL, above min payout, below threshold.
		p, err := uc.Request(ctx, pixRequest("creator-1", 10_000))
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		if p.Status != model.PayoutStatusPending {
			t.Errorf("expected pending, got %s", p.Status)
		}
		if !p.FiatAmount.Equal(decimal.NewFromInt(100)) {
			t.Errorf("expected 100 BRL, got %s", p.FiatAmount)
		}
		if p.RequiresManualApproval {
			t.Error("expected no manual approval for a clean request")
		}
		w, _ := deps.wallets.GetOrCreate(ctx, nil, "creator-1")
		if w.Balance != 40_000 {
			t.Errorf("expected 40000 coins left, got %d", w.Balance)
		}
	})

	t.Run("below minimum payout is rejected before any debit", func(t *testing.T) {
		deps := newWithdrawalDeps()
		uc := deps.uc()
		deps.seasonedCreator("creator-1", 50_000, 200_000)

		// 100 coins at 0.01 = 1 BRL, under the 50 BRL minimum.
		_, err := uc.Request(ctx, pixRequest("creator-1", 100))
		if !errors.Is(err, domain.ErrBelowMinimumPayout) {
			t.Fatalf("expected ErrBelowMinimumPayout, got %v", err)
		}
		w, _ := deps.wallets.GetOrCreate(ctx, nil, "creator-1")
		if w.Balance != 50_000 {
			t.Errorf("expected balance untouched, got %d", w.Balance)
		}
	})

	t.Run("fourth request in a day is hard blocked", func(t *testing.T) {
		deps := newWithdrawalDeps()
		uc := deps.uc()
		deps.seasonedCreator("creator-1", 500_000, 2_000_000)

		for i := 0; i < 3; i++ {
			if _, err := uc.Request(ctx, pixRequest("creator-1", 10_000)); err != nil {
				t.Fatalf("request %d: %v", i, err)
			}
		}
		_, err := uc.Request(ctx, pixRequest("creator-1", 10_000))
		if !errors.Is(err, domain.ErrWithdrawalBlocked) {
			t.Fatalf("expected ErrWithdrawalBlocked, got %v", err)
		}
		w, _ := deps.wallets.GetOrCreate(ctx, nil, "creator-1")
		if w.Balance != 470_000 {
			t.Errorf("blocked request must not debit, got %d", w.Balance)
		}
	})

	t.Run("amount above the manual threshold needs approval", func(t *testing.T) {
		deps := newWithdrawalDeps()
		uc := deps.uc()
		deps.seasonedCreator("creator-1", 500_000, 2_000_000)

		// 60000 coins = 600 BRL, above the 500 BRL threshold.
		p, err := uc.Request(ctx, pixRequest("creator-1", 60_000))
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		if !p.RequiresManualApproval {
			t.Error("expected manual approval")
		}
		if p.Status != model.PayoutStatusPendingApproval {
			t.Errorf("expected pending_approval, got %s", p.Status)
		}
		if !p.RequiresManualApproval || len(p.RiskFlags) == 0 {
			t.Errorf("expected risk flags recorded, got %v", p.RiskFlags)
		}
	})

	t.Run("brand new account scores the age signal", func(t *testing.T) {
		deps := newWithdrawalDeps()
		uc := deps.uc()
		deps.wallets.Seed("creator-1", 50_000, 200_000, time.Now().Add(-24*time.Hour))

		a, err := uc.Assess(ctx, "creator-1", decimal.NewFromInt(100))
		if err != nil {
			t.Fatalf("assess: %v", err)
		}
		if !a.HasFlag(model.RiskFlagVeryNewAccount) {
			t.Errorf("expected VERY_NEW_ACCOUNT flag, got %v", a.Flags)
		}
		if a.Blocked {
			t.Error("age alone must not hard block")
		}
	})

	t.Run("insufficient balance fails without a payout row", func(t *testing.T) {
		deps := newWithdrawalDeps()
		uc := deps.uc()
		deps.seasonedCreator("creator-1", 1_000, 1_000)

		_, err := uc.Request(ctx, pixRequest("creator-1", 10_000))
		if !errors.Is(err, domain.ErrInsufficientBalance) {
			t.Fatalf("expected ErrInsufficientBalance, got %v", err)
		}
		list, _ := uc.ListByCreator(ctx, "creator-1", 10)
		if len(list) != 0 {
			t.Errorf("expected no payouts, got %d", len(list))
		}
	})

	t.Run("missing destination details are rejected", func(t *testing.T) {
		uc := newWithdrawalDeps().uc()
		req := pixRequest("creator-1", 10_000)
		req.PixKey = ""
		if _, err := uc.Request(ctx, req); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for missing pix key, got %v", err)
		}
		req = usecase.WithdrawalRequest{CreatorID: "creator-1", CoinAmount: 10_000, Method: model.PayoutMethodCrypto, CryptoAddress: "0xabc"}
		if _, err := uc.Request(ctx, req); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for missing crypto network, got %v", err)
		}
	})
}

func TestWithdrawalUseCase_Decisions(t *testing.T) {
	ctx := context.Background()

	requestHeld := func(t *testing.T, deps *withdrawalDeps, uc usecase.WithdrawalUseCase) *model.Payout {
		t.Helper()
		deps.seasonedCreator("creator-1", 500_000, 2_000_000)
		p, err := uc.Request(ctx, pixRequest("creator-1", 60_000))
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		if p.Status != model.PayoutStatusPendingApproval {
			t.Fatalf("expected a held payout, got %s", p.Status)
		}
		return p
	}

	t.Run("approve releases a held payout", func(t *testing.T) {
		deps := newWithdrawalDeps()
		uc := deps.uc()
		p := requestHeld(t, deps, uc)

		approved, err := uc.Approve(ctx, p.ID, "admin-1")
		if err != nil {
			t.Fatalf("approve: %v", err)
		}
		if approved.Status != model.PayoutStatusPending {
			t.Errorf("expected pending after approval, got %s", approved.Status)
		}
		if approved.ApprovedBy == nil || *approved.ApprovedBy != "admin-1" {
			t.Error("expected approver recorded")
		}
	})

	t.Run("reject refunds the exact debited coins", func(t *testing.T) {
		deps := newWithdrawalDeps()
		uc := deps.uc()
		p := requestHeld(t, deps, uc)

		before, _ := deps.wallets.GetOrCreate(ctx, nil, "creator-1")

		rejected, err := uc.Reject(ctx, p.ID, "admin-1", "document mismatch")
		if err != nil {
			t.Fatalf("reject: %v", err)
		}
		if rejected.Status != model.PayoutStatusRejected {
			t.Errorf("expected rejected, got %s", rejected.Status)
		}
		after, _ := deps.wallets.GetOrCreate(ctx, nil, "creator-1")
		if after.Balance != before.Balance+p.CoinAmount {
			t.Errorf("expected exact refund of %d coins, got balance %d (was %d)", p.CoinAmount, after.Balance, before.Balance)
		}
		if len(deps.notifier.Payouts) != 1 {
			t.Errorf("expected a payout decision notification, got %d", len(deps.notifier.Payouts))
		}
	})

	t.Run("a rejected payout frees up the daily quota", func(t *testing.T) {
		deps := newWithdrawalDeps()
		uc := deps.uc()
		deps.seasonedCreator("creator-1", 500_000, 2_000_000)

		var ids []string
		for i := 0; i < 3; i++ {
			p, err := uc.Request(ctx, pixRequest("creator-1", 10_000))
			if err != nil {
				t.Fatalf("request %d: %v", i, err)
			}
			ids = append(ids, p.ID)
		}
		if _, err := uc.Reject(ctx, ids[0], "admin-1", "typo"); err != nil {
			t.Fatalf("reject: %v", err)
		}
		if _, err := uc.Request(ctx, pixRequest("creator-1", 10_000)); err != nil {
			t.Fatalf("expected quota freed after rejection, got %v", err)
		}
	})

	t.Run("complete closes a released payout", func(t *testing.T) {
		deps := newWithdrawalDeps()
		uc := deps.uc()
		p := requestHeld(t, deps, uc)
		uc.Approve(ctx, p.ID, "admin-1")

		done, err := uc.Complete(ctx, p.ID)
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
		if done.Status != model.PayoutStatusCompleted {
			t.Errorf("expected completed, got %s", done.Status)
		}
		if done.ProcessedAt == nil {
			t.Error("expected ProcessedAt set")
		}
	})

	t.Run("completing a held payout is invalid", func(t *testing.T) {
		deps := newWithdrawalDeps()
		uc := deps.uc()
		p := requestHeld(t, deps, uc)

		if _, err := uc.Complete(ctx, p.ID); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("rejecting twice is invalid", func(t *testing.T) {
		deps := newWithdrawalDeps()
		uc := deps.uc()
		p := requestHeld(t, deps, uc)

		if _, err := uc.Reject(ctx, p.ID, "admin-1", "first"); err != nil {
			t.Fatalf("first reject: %v", err)
		}
		if _, err := uc.Reject(ctx, p.ID, "admin-1", "second"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestWithdrawalUseCase_Earnings(t *testing.T) {
	ctx := context.Background()

	t.Run("reports balance at the configured rate", func(t *testing.T) {
		deps := newWithdrawalDeps()
		uc := deps.uc()
		deps.seasonedCreator("creator-1", 25_000, 100_000)

		e, err := uc.Earnings(ctx, "creator-1")
		if err != nil {
			t.Fatalf("earnings: %v", err)
		}
		if e.Balance != 25_000 {
			t.Errorf("expected balance 25000, got %d", e.Balance)
		}
		if !e.AvailableFiat.Equal(decimal.NewFromInt(250)) {
			t.Errorf("expected 250 BRL available, got %s", e.AvailableFiat)
		}
		if !e.MinPayout.Equal(decimal.NewFromInt(50)) {
			t.Errorf("expected min payout 50, got %s", e.MinPayout)
		}
	})
}
