package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fanpay/internal/domain"
	"fanpay/internal/domain/model"
	"fanpay/internal/domain/ports/adapter"
	"fanpay/internal/domain/ports/repository"
	"fanpay/internal/infra/metrics"
)

// Risk score contributions. The two hard-block flags score 100 so any one
// of them alone clears every sensible approval threshold.
const (
	scoreDailyLimit      = 100
	scoreDailyAmount     = 100
	scoreCooldown        = 50
	scoreAboveThreshold  = 30
	scoreVeryNewAccount  = 40
	scoreNewAccount      = 15
	scoreHighRatio       = 25
	veryNewAccountWindow = 7 * 24 * time.Hour
	newAccountWindow     = 30 * 24 * time.Hour
	highRatioBound       = 0.9
)

// WithdrawalRequest carries a creator's cash-out ask.
type WithdrawalRequest struct {
	CreatorID     string
	CoinAmount    int64
	Method        model.PayoutMethod
	PixKey        string
	BankDetails   map[string]any
	CryptoAddress string
	CryptoNetwork string
}

// EarningsSummary is the creator-facing earnings view.
type EarningsSummary struct {
	Balance        int64           `json:"balance"`
	TotalEarned    int64           `json:"totalEarned"`
	AvailableFiat  decimal.Decimal `json:"availableFiat"`
	WithdrawnFiat  decimal.Decimal `json:"withdrawnFiat"`
	MinPayout      decimal.Decimal `json:"minPayout"`
	CoinToFiatRate decimal.Decimal `json:"coinToFiatRate"`
}

var _ WithdrawalUseCase = (*withdrawalUC)(nil)

// WithdrawalUseCase converts creator coin balances into fiat payouts,
// gated by the risk assessment. The coin debit and the payout row are
// written in one transaction; money never leaves the ledger without a
// payout row accounting for it.
type WithdrawalUseCase interface {
	// Assess scores a hypothetical withdrawal without creating anything.
	Assess(ctx context.Context, creatorID string, fiat decimal.Decimal) (*model.RiskAssessment, error)
	// Request debits the coins and creates the payout. Hard-blocked
	// requests return domain.ErrWithdrawalBlocked and debit nothing.
	Request(ctx context.Context, req WithdrawalRequest) (*model.Payout, error)
	// Approve releases a payout held for manual approval.
	Approve(ctx context.Context, payoutID, adminID string) (*model.Payout, error)
	// Reject declines a payout and refunds the exact debited coins.
	Reject(ctx context.Context, payoutID, adminID, reason string) (*model.Payout, error)
	// Complete marks a released payout as paid out.
	Complete(ctx context.Context, payoutID string) (*model.Payout, error)

	Earnings(ctx context.Context, creatorID string) (*EarningsSummary, error)
	ListByCreator(ctx context.Context, creatorID string, limit int) ([]*model.Payout, error)
	ListByStatus(ctx context.Context, status model.PayoutStatus, limit, offset int) ([]*model.Payout, int, error)
}

type withdrawalUC struct {
	payouts  repository.PayoutRepository
	wallets  repository.WalletRepository
	ledger   LedgerUseCase
	settings SettingsUseCase
	notifier adapter.Notifier
	tm       repository.TransactionManager
	log      *zerolog.Logger
}

func NewWithdrawalUseCase(
	payouts repository.PayoutRepository,
	wallets repository.WalletRepository,
	ledger LedgerUseCase,
	settings SettingsUseCase,
	notifier adapter.Notifier,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *withdrawalUC {
	l := logger.With().Str("component", "WithdrawalUC").Logger()
	return &withdrawalUC{
		payouts: payouts, wallets: wallets, ledger: ledger,
		settings: settings, notifier: notifier, tm: tm, log: &l,
	}
}

func (u *withdrawalUC) Assess(ctx context.Context, creatorID string, fiat decimal.Decimal) (*model.RiskAssessment, error) {
	return u.assess(ctx, nil, creatorID, fiat, time.Now())
}

// assess runs every risk signal. Signals are additive; the two volume
// limits additionally hard-block regardless of score.
func (u *withdrawalUC) assess(ctx context.Context, tx repository.Tx, creatorID string, fiat decimal.Decimal, now time.Time) (*model.RiskAssessment, error) {
	a := &model.RiskAssessment{}
	add := func(flag string, score int) {
		a.Flags = append(a.Flags, flag)
		a.Score += score
	}
	dayAgo := now.Add(-24 * time.Hour)

	count, err := u.payouts.CountSince(ctx, tx, creatorID, dayAgo)
	if err != nil {
		return nil, err
	}
	if count >= u.settings.Int(ctx, SettingMaxDailyWithdrawals) {
		add(model.RiskFlagDailyLimitExceeded, scoreDailyLimit)
		a.Blocked = true
	}

	sumToday, err := u.payouts.SumFiatSince(ctx, tx, creatorID, dayAgo)
	if err != nil {
		return nil, err
	}
	if sumToday.Add(fiat).GreaterThan(u.settings.Decimal(ctx, SettingMaxDailyAmount)) {
		add(model.RiskFlagDailyAmountExceeded, scoreDailyAmount)
		a.Blocked = true
	}

	cooldown := time.Duration(u.settings.Int(ctx, SettingCooldownHours)) * time.Hour
	inCooldown, err := u.payouts.HasCompletedSince(ctx, tx, creatorID, now.Add(-cooldown))
	if err != nil {
		return nil, err
	}
	if inCooldown {
		add(model.RiskFlagCooldownActive, scoreCooldown)
	}

	if fiat.GreaterThanOrEqual(u.settings.Decimal(ctx, SettingManualThreshold)) {
		add(model.RiskFlagAboveThreshold, scoreAboveThreshold)
	}

	w, err := u.wallets.GetOrCreate(ctx, tx, creatorID)
	if err != nil {
		return nil, err
	}
	switch age := w.Age(now); {
	case age < veryNewAccountWindow:
		add(model.RiskFlagVeryNewAccount, scoreVeryNewAccount)
	case age < newAccountWindow:
		add(model.RiskFlagNewAccount, scoreNewAccount)
	}

	rate := u.settings.Decimal(ctx, SettingCoinToBRL)
	earnedFiat := decimal.NewFromInt(w.TotalEarned).Mul(rate)
	if earnedFiat.IsPositive() {
		withdrawn, err := u.payouts.SumCompletedFiat(ctx, tx, creatorID)
		if err != nil {
			return nil, err
		}
		ratio := withdrawn.Add(fiat).Div(earnedFiat)
		if ratio.GreaterThan(decimal.NewFromFloat(highRatioBound)) {
			add(model.RiskFlagHighWithdrawalRatio, scoreHighRatio)
		}
	}

	return a, nil
}

func (u *withdrawalUC) Request(ctx context.Context, req WithdrawalRequest) (*model.Payout, error) {
	if req.CoinAmount <= 0 {
		return nil, fmt.Errorf("%w: non-positive amount", domain.ErrInvalidArgument)
	}
	p := &model.Payout{
		ID:        newUUID(),
		CreatorID: req.CreatorID,
		Method:    req.Method,
		Currency:  "BRL",
	}
	switch req.Method {
	case model.PayoutMethodPix:
		if req.PixKey == "" {
			return nil, fmt.Errorf("%w: pix key required", domain.ErrInvalidArgument)
		}
		p.PixKey = &req.PixKey
	case model.PayoutMethodBankTransfer:
		if len(req.BankDetails) == 0 {
			return nil, fmt.Errorf("%w: bank details required", domain.ErrInvalidArgument)
		}
		p.BankDetails = req.BankDetails
	case model.PayoutMethodCrypto:
		if req.CryptoAddress == "" || req.CryptoNetwork == "" {
			return nil, fmt.Errorf("%w: crypto address and network required", domain.ErrInvalidArgument)
		}
		p.CryptoAddress = &req.CryptoAddress
		p.CryptoNetwork = &req.CryptoNetwork
	default:
		return nil, fmt.Errorf("%w: unknown payout method %q", domain.ErrInvalidArgument, req.Method)
	}

	rate := u.settings.Decimal(ctx, SettingCoinToBRL)
	fiat := decimal.NewFromInt(req.CoinAmount).Mul(rate)
	if fiat.LessThan(u.settings.Decimal(ctx, SettingMinPayout)) {
		return nil, domain.ErrBelowMinimumPayout
	}
	p.CoinAmount = req.CoinAmount
	p.FiatAmount = fiat

	now := time.Now()
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		// The assessment reads inside the same transaction the debit writes
		// in, so two concurrent requests cannot both pass the daily limits.
		assessment, err := u.assess(ctx, tx, req.CreatorID, fiat, now)
		if err != nil {
			return err
		}
		p.RiskScore = assessment.Score
		p.RiskFlags = assessment.Flags
		if assessment.Blocked {
			return fmt.Errorf("%w: %v", domain.ErrWithdrawalBlocked, assessment.Flags)
		}

		p.RequiresManualApproval = assessment.Score >= u.settings.Int(ctx, SettingApprovalScore) ||
			assessment.HasFlag(model.RiskFlagAboveThreshold)
		if p.RequiresManualApproval {
			p.Status = model.PayoutStatusPendingApproval
		} else {
			p.Status = model.PayoutStatusPending
		}
		p.CreatedAt = now

		ref := p.ID
		if _, err := u.ledger.DebitInTx(ctx, tx, req.CreatorID, req.CoinAmount,
			model.TxTypeWithdrawal, &ref, "Withdrawal request"); err != nil {
			return err
		}
		return u.payouts.Save(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}

	metrics.IncWithdrawalRequested(string(p.Status))
	u.log.Info().Str("payout", p.ID).Str("creator", req.CreatorID).
		Int("score", p.RiskScore).Strs("flags", p.RiskFlags).
		Msg("withdrawal requested")
	return p, nil
}

func (u *withdrawalUC) Approve(ctx context.Context, payoutID, adminID string) (*model.Payout, error) {
	p, err := u.payouts.FindByID(ctx, nil, payoutID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.PayoutStatusPendingApproval {
		return nil, fmt.Errorf("%w: payout is %s", domain.ErrInvalidArgument, p.Status)
	}
	p.Status = model.PayoutStatusPending
	p.ApprovedBy = &adminID
	if err := u.payouts.Save(ctx, nil, p); err != nil {
		return nil, err
	}
	metrics.IncWithdrawalDecided("approved")
	if u.notifier != nil {
		u.notifier.PayoutDecided(ctx, p.CreatorID, p.ID, true, "")
	}
	return p, nil
}

func (u *withdrawalUC) Reject(ctx context.Context, payoutID, adminID, reason string) (*model.Payout, error) {
	var p *model.Payout
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		p, err = u.payouts.FindByID(ctx, tx, payoutID)
		if err != nil {
			return err
		}
		switch p.Status {
		case model.PayoutStatusPending, model.PayoutStatusPendingApproval:
		default:
			return fmt.Errorf("%w: payout is %s", domain.ErrInvalidArgument, p.Status)
		}
		now := time.Now()
		p.Status = model.PayoutStatusRejected
		p.ApprovedBy = &adminID
		p.RejectedReason = &reason
		p.ProcessedAt = &now

		// Refund exactly what Request debited.
		ref := p.ID
		if _, err := u.ledger.CreditInTx(ctx, tx, p.CreatorID, p.CoinAmount,
			model.TxTypeWithdrawalRefund, &ref, "Withdrawal rejected: "+reason); err != nil {
			return err
		}
		return u.payouts.Save(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}
	metrics.IncWithdrawalDecided("rejected")
	if u.notifier != nil {
		u.notifier.PayoutDecided(ctx, p.CreatorID, p.ID, false, reason)
	}
	return p, nil
}

func (u *withdrawalUC) Complete(ctx context.Context, payoutID string) (*model.Payout, error) {
	p, err := u.payouts.FindByID(ctx, nil, payoutID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.PayoutStatusPending {
		return nil, fmt.Errorf("%w: payout is %s", domain.ErrInvalidArgument, p.Status)
	}
	now := time.Now()
	p.Status = model.PayoutStatusCompleted
	p.ProcessedAt = &now
	if err := u.payouts.Save(ctx, nil, p); err != nil {
		return nil, err
	}
	metrics.IncWithdrawalDecided("completed")
	return p, nil
}

func (u *withdrawalUC) Earnings(ctx context.Context, creatorID string) (*EarningsSummary, error) {
	w, err := u.ledger.Wallet(ctx, creatorID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if w == nil {
		w = &model.Wallet{UserID: creatorID}
	}
	withdrawn, err := u.payouts.SumCompletedFiat(ctx, nil, creatorID)
	if err != nil {
		return nil, err
	}
	rate := u.settings.Decimal(ctx, SettingCoinToBRL)
	return &EarningsSummary{
		Balance:        w.Balance,
		TotalEarned:    w.TotalEarned,
		AvailableFiat:  decimal.NewFromInt(w.Balance).Mul(rate),
		WithdrawnFiat:  withdrawn,
		MinPayout:      u.settings.Decimal(ctx, SettingMinPayout),
		CoinToFiatRate: rate,
	}, nil
}

func (u *withdrawalUC) ListByCreator(ctx context.Context, creatorID string, limit int) ([]*model.Payout, error) {
	return u.payouts.ListByCreator(ctx, nil, creatorID, limit)
}

func (u *withdrawalUC) ListByStatus(ctx context.Context, status model.PayoutStatus, limit, offset int) ([]*model.Payout, int, error) {
	return u.payouts.ListByStatus(ctx, nil, status, limit, offset)
}
