package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"fanpay/internal/domain"
	"fanpay/internal/domain/model"
	"fanpay/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `id, fan_id, creator_id, tier_id, status, price_paid, currency, provider, provider_sub_id, current_period_start, current_period_end, cancelled_at, auto_renew, created_at, updated_at`

// Upsert relies on the UNIQUE (fan_id, creator_id) constraint. On conflict
// the existing row is rewritten for the new attempt and its id survives;
// s.ID is replaced so the caller always holds the canonical id.
func (r *subscriptionRepo) Upsert(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (
  id, fan_id, creator_id, tier_id, status, price_paid, currency, provider, provider_sub_id, current_period_start, current_period_end, cancelled_at, auto_renew, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
) ON CONFLICT (fan_id, creator_id) DO UPDATE SET
  tier_id=$4, status=$5, price_paid=$6, currency=$7, provider=$8,
  provider_sub_id=$9, current_period_start=$10, current_period_end=$11,
  cancelled_at=$12, auto_renew=$13, updated_at=$15
RETURNING id;`

	row, err := pickRow(ctx, r.pool, tx, q,
		s.ID, s.FanID, s.CreatorID, s.TierID, s.Status, s.PricePaid.String(), s.Currency,
		s.Provider, s.ProviderSubID, s.CurrentPeriodStart, s.CurrentPeriodEnd,
		s.CancelledAt, s.AutoRenew, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&s.ID); err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
UPDATE subscriptions SET
  tier_id=$2, status=$3, price_paid=$4, currency=$5, provider=$6,
  provider_sub_id=$7, current_period_start=$8, current_period_end=$9,
  cancelled_at=$10, auto_renew=$11, updated_at=$12
WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.TierID, s.Status, s.PricePaid.String(), s.Currency, s.Provider,
		s.ProviderSubID, s.CurrentPeriodStart, s.CurrentPeriodEnd,
		s.CancelledAt, s.AutoRenew, s.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	var price string
	if err := row.Scan(&s.ID, &s.FanID, &s.CreatorID, &s.TierID, &s.Status, &price,
		&s.Currency, &s.Provider, &s.ProviderSubID, &s.CurrentPeriodStart,
		&s.CurrentPeriodEnd, &s.CancelledAt, &s.AutoRenew, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	var err error
	if s.PricePaid, err = decimal.NewFromString(price); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

func (r *subscriptionRepo) findOne(ctx context.Context, tx repository.Tx, where string, args ...interface{}) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE ` + where
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	return r.findOne(ctx, tx, `id=$1`, id)
}

func (r *subscriptionRepo) FindByPair(ctx context.Context, tx repository.Tx, fanID, creatorID string) (*model.Subscription, error) {
	return r.findOne(ctx, tx, `fan_id=$1 AND creator_id=$2`, fanID, creatorID)
}

func (r *subscriptionRepo) FindByProviderSubID(ctx context.Context, tx repository.Tx, providerSubID string) (*model.Subscription, error) {
	return r.findOne(ctx, tx, `provider_sub_id=$1`, providerSubID)
}

func (r *subscriptionRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Subscription, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *subscriptionRepo) ListByFan(ctx context.Context, tx repository.Tx, fanID string) ([]*model.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE fan_id=$1 ORDER BY created_at DESC;`
	return r.list(ctx, tx, q, fanID)
}

func (r *subscriptionRepo) ListOverdue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + subscriptionColumns + ` FROM subscriptions
 WHERE status='active' AND auto_renew=FALSE AND current_period_end IS NOT NULL AND current_period_end < $1
 ORDER BY current_period_end ASC LIMIT $2;`
	return r.list(ctx, tx, q, now, limit)
}
