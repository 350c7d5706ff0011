package repository

import (
	"context"
	"time"

	"fanpay/internal/domain/model"
)

type SubscriptionRepository interface {
	// Upsert inserts the subscription or, when a row for the same
	// (fan, creator) pair exists, updates it in place and rewrites s.ID
	// with the surviving row's id. This is what enforces the one-row-per-pair
	// invariant under concurrent webhook delivery.
	Upsert(ctx context.Context, tx Tx, s *model.Subscription) error
	Save(ctx context.Context, tx Tx, s *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	FindByPair(ctx context.Context, tx Tx, fanID, creatorID string) (*model.Subscription, error)
	FindByProviderSubID(ctx context.Context, tx Tx, providerSubID string) (*model.Subscription, error)
	ListByFan(ctx context.Context, tx Tx, fanID string) ([]*model.Subscription, error)
	// ListOverdue returns active rows whose paid period ended before `now`
	// and which will not auto-renew; the expiry sweep consumes this.
	ListOverdue(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.Subscription, error)
}
