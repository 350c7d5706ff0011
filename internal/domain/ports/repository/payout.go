package repository

import (
	"context"
	"time"

	"fanpay/internal/domain/model"

	"github.com/shopspring/decimal"
)

type PayoutRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payout) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payout, error)
	CountSince(ctx context.Context, tx Tx, creatorID string, since time.Time) (int, error)
	SumFiatSince(ctx context.Context, tx Tx, creatorID string, since time.Time) (decimal.Decimal, error)
	// HasCompletedSince reports whether a completed payout exists inside the
	// cooldown window.
	HasCompletedSince(ctx context.Context, tx Tx, creatorID string, since time.Time) (bool, error)
	SumCompletedFiat(ctx context.Context, tx Tx, creatorID string) (decimal.Decimal, error)
	ListByCreator(ctx context.Context, tx Tx, creatorID string, limit int) ([]*model.Payout, error)
	ListByStatus(ctx context.Context, tx Tx, status model.PayoutStatus, limit, offset int) ([]*model.Payout, int, error)
}
