package repository

import (
	"context"
	"time"

	"fanpay/internal/domain/model"
)

type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	// FindByProviderTxID resolves a payment by the provider's own
	// transaction id. Recurring charges dedup on it: each provider-side
	// charge is recorded at most once.
	FindByProviderTxID(ctx context.Context, tx Tx, provider, providerTxID string) (*model.Payment, error)
	// UpdateStatus sets the status unconditionally (initiation-path failures).
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.PaymentStatus, providerTxID *string) error
	// AttachProviderCharge stores provider-side identifiers on a payment
	// without touching its status. A fast webhook can finalize the row
	// before the initiating request gets to write these back; the
	// finalized status must survive.
	AttachProviderCharge(ctx context.Context, tx Tx, id string, providerTxID *string, extraMeta map[string]any) error
	// FinalizeIfPending atomically moves a payment out of `pending` and
	// merges extra metadata. It reports false when the payment had already
	// left `pending`, which gates duplicate webhook deliveries.
	FinalizeIfPending(ctx context.Context, tx Tx, id string, status model.PaymentStatus, providerTxID *string, extraMeta map[string]any) (bool, error)
	// HasCompletedPPV reports whether the user already paid to unlock a post.
	HasCompletedPPV(ctx context.Context, tx Tx, userID, postID string) (bool, error)
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Payment, error)
	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.Payment, error)
}
