package usecase

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fanpay/internal/domain"
	"fanpay/internal/domain/model"
	"fanpay/internal/domain/ports/adapter"
	"fanpay/internal/domain/ports/repository"
	"fanpay/internal/infra/metrics"
)

// Compile-time check
var _ LedgerUseCase = (*ledgerUC)(nil)

// TipResult reports the split of a delivered tip.
type TipResult struct {
	Sent            int64
	CreatorReceived int64
	PlatformFee     int64
	SenderBalance   int64
}

// UnlockResult reports a completed pay-per-view unlock.
type UnlockResult struct {
	CoinsSpent int64
	NewBalance int64
	PaymentID  string
}

// LedgerUseCase is the only component that mutates wallets. Every mutation
// writes the wallet update and the transaction row in one atomic unit, so
// balance always equals the running sum of the log.
type LedgerUseCase interface {
	Credit(ctx context.Context, userID string, amount int64, txType model.TransactionType, refID *string, description string) (int64, error)
	Debit(ctx context.Context, userID string, amount int64, txType model.TransactionType, refID *string, description string) (int64, error)
	// CreditInTx / DebitInTx run inside a caller-owned transaction, for
	// callers that must couple a ledger move with other writes (payout
	// creation, refunds). The caller is responsible for the user lock.
	CreditInTx(ctx context.Context, tx repository.Tx, userID string, amount int64, txType model.TransactionType, refID *string, description string) (int64, error)
	DebitInTx(ctx context.Context, tx repository.Tx, userID string, amount int64, txType model.TransactionType, refID *string, description string) (int64, error)

	Tip(ctx context.Context, fromUserID, toCreatorID string, amount int64, postID *string) (*TipResult, error)
	UnlockPPV(ctx context.Context, userID, postID string) (*UnlockResult, error)
	Reward(ctx context.Context, userID, kind string, amount int64) (int64, error)

	Wallet(ctx context.Context, userID string) (*model.Wallet, error)
	Transactions(ctx context.Context, userID string, limit int) ([]*model.WalletTransaction, error)
}

type ledgerUC struct {
	wallets  repository.WalletRepository
	payments repository.PaymentRepository
	settings SettingsUseCase
	content  adapter.ContentGateway
	notifier adapter.Notifier
	tm       repository.TransactionManager
	log      *zerolog.Logger
}

func NewLedgerUseCase(
	wallets repository.WalletRepository,
	payments repository.PaymentRepository,
	settings SettingsUseCase,
	content adapter.ContentGateway,
	notifier adapter.Notifier,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *ledgerUC {
	l := logger.With().Str("component", "LedgerUC").Logger()
	return &ledgerUC{wallets: wallets, payments: payments, settings: settings, content: content, notifier: notifier, tm: tm, log: &l}
}

func hashToInt64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64() & ((1 << 63) - 1))
}

// lockUser takes the per-user advisory xact lock when running on a real
// database transaction. In-memory test doubles pass a non-pgx Tx and skip it.
func lockUser(ctx context.Context, tx repository.Tx, userID string) error {
	px, ok := tx.(pgx.Tx)
	if !ok {
		return nil
	}
	_, err := px.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", hashToInt64(userID))
	return err
}

// apply is the single mutation path for wallets. amount is signed.
func (u *ledgerUC) apply(ctx context.Context, tx repository.Tx, userID string, amount int64, txType model.TransactionType, refID *string, description string) (int64, error) {
	if amount == 0 {
		return 0, domain.ErrInvalidArgument
	}
	w, err := u.wallets.GetOrCreate(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	newBalance := w.Balance + amount
	if newBalance < 0 {
		return 0, domain.ErrInsufficientBalance
	}
	w.Balance = newBalance
	if amount > 0 {
		w.TotalEarned += amount
	} else {
		w.TotalSpent += -amount
	}
	w.UpdatedAt = time.Now()
	if err := u.wallets.Save(ctx, tx, w); err != nil {
		return 0, err
	}
	entry := &model.WalletTransaction{
		ID:           ulid.Make().String(),
		UserID:       userID,
		Type:         txType,
		Amount:       amount,
		BalanceAfter: newBalance,
		ReferenceID:  refID,
		Description:  description,
		CreatedAt:    time.Now(),
	}
	if err := u.wallets.AppendTransaction(ctx, tx, entry); err != nil {
		return 0, err
	}
	metrics.ObserveLedgerOp(string(txType), amount)
	return newBalance, nil
}

func (u *ledgerUC) Credit(ctx context.Context, userID string, amount int64, txType model.TransactionType, refID *string, description string) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	var balance int64
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		balance, err = u.apply(ctx, tx, userID, amount, txType, refID, description)
		return err
	})
	return balance, err
}

func (u *ledgerUC) Debit(ctx context.Context, userID string, amount int64, txType model.TransactionType, refID *string, description string) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	var balance int64
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		balance, err = u.apply(ctx, tx, userID, -amount, txType, refID, description)
		return err
	})
	return balance, err
}

func (u *ledgerUC) CreditInTx(ctx context.Context, tx repository.Tx, userID string, amount int64, txType model.TransactionType, refID *string, description string) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	return u.apply(ctx, tx, userID, amount, txType, refID, description)
}

func (u *ledgerUC) DebitInTx(ctx context.Context, tx repository.Tx, userID string, amount int64, txType model.TransactionType, refID *string, description string) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	return u.apply(ctx, tx, userID, -amount, txType, refID, description)
}

// Tip moves coins from a fan to a creator, net of the platform cut.
// Both legs run in one transaction: a failed sender debit leaves the
// creator untouched.
func (u *ledgerUC) Tip(ctx context.Context, fromUserID, toCreatorID string, amount int64, postID *string) (*TipResult, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if fromUserID == toCreatorID {
		return nil, domain.ErrSelfOperation
	}
	cut := model.TipPlatformCut(amount)
	creatorAmount := amount - cut

	res := &TipResult{Sent: amount, CreatorReceived: creatorAmount, PlatformFee: cut}
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		// Lock both wallets in a stable order so two crossing tips cannot deadlock.
		first, second := fromUserID, toCreatorID
		if second < first {
			first, second = second, first
		}
		if err := lockUser(ctx, tx, first); err != nil {
			return err
		}
		if err := lockUser(ctx, tx, second); err != nil {
			return err
		}

		senderBalance, err := u.apply(ctx, tx, fromUserID, -amount, model.TxTypeTipSent, postID,
			fmt.Sprintf("Tip sent to creator %s", toCreatorID))
		if err != nil {
			return err
		}
		res.SenderBalance = senderBalance

		_, err = u.apply(ctx, tx, toCreatorID, creatorAmount, model.TxTypeTipReceived, postID,
			fmt.Sprintf("Tip received from user %s", fromUserID))
		return err
	})
	if err != nil {
		return nil, err
	}
	if u.notifier != nil {
		u.notifier.TipReceived(ctx, toCreatorID, fromUserID, creatorAmount)
	}
	return res, nil
}

// UnlockPPV pays for a pay-per-view post with coins: debit the buyer,
// credit the creator net of the fee, and record a completed payment row
// for access tracking, all in one transaction.
func (u *ledgerUC) UnlockPPV(ctx context.Context, userID, postID string) (*UnlockResult, error) {
	creatorID, priceCoins, err := u.content.PPVPrice(ctx, postID)
	if err != nil {
		return nil, err
	}
	if creatorID == userID {
		return nil, domain.ErrSelfOperation
	}
	unlocked, err := u.payments.HasCompletedPPV(ctx, nil, userID, postID)
	if err != nil {
		return nil, err
	}
	if unlocked {
		return nil, domain.ErrAlreadyUnlocked
	}

	cut := model.PPVPlatformCut(priceCoins)
	creatorAmount := priceCoins - cut
	rate := u.settings.Decimal(ctx, SettingCoinToBRL)
	fiat := decimal.NewFromInt(priceCoins).Mul(rate)

	res := &UnlockResult{CoinsSpent: priceCoins}
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		first, second := userID, creatorID
		if second < first {
			first, second = second, first
		}
		if err := lockUser(ctx, tx, first); err != nil {
			return err
		}
		if err := lockUser(ctx, tx, second); err != nil {
			return err
		}

		balance, err := u.apply(ctx, tx, userID, -priceCoins, model.TxTypePPVUnlock, &postID,
			fmt.Sprintf("PPV unlock, post %s", postID))
		if err != nil {
			return err
		}
		res.NewBalance = balance

		if _, err := u.apply(ctx, tx, creatorID, creatorAmount, model.TxTypePPVReceived, &postID,
			fmt.Sprintf("PPV received from user %s", userID)); err != nil {
			return err
		}

		now := time.Now()
		p := &model.Payment{
			ID:              newUUID(),
			PayerID:         userID,
			RecipientID:     &creatorID,
			Kind:            model.PaymentKindPayPerView,
			Amount:          fiat,
			Currency:        "BRL",
			PlatformFee:     fiat.Mul(model.FeePPV),
			RecipientAmount: fiat.Sub(fiat.Mul(model.FeePPV)),
			Provider:        "fancoins",
			Status:          model.PaymentStatusCompleted,
			Metadata:        map[string]any{"postId": postID, "method": "fancoins", "coinsSpent": priceCoins},
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		res.PaymentID = p.ID
		return u.payments.Save(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}

	// Unlock signal is fire-and-forget; the payment already settled.
	u.content.Unlocked(ctx, postID, userID)
	return res, nil
}

func (u *ledgerUC) Reward(ctx context.Context, userID, kind string, amount int64) (int64, error) {
	return u.Credit(ctx, userID, amount, model.RewardTxType(kind), nil, fmt.Sprintf("Reward: %s", kind))
}

func (u *ledgerUC) Wallet(ctx context.Context, userID string) (*model.Wallet, error) {
	return u.wallets.GetOrCreate(ctx, nil, userID)
}

func (u *ledgerUC) Transactions(ctx context.Context, userID string, limit int) ([]*model.WalletTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return u.wallets.ListTransactions(ctx, nil, userID, limit)
}
