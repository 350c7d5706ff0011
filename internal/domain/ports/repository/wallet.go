package repository

import (
	"context"

	"fanpay/internal/domain/model"
)

type WalletRepository interface {
	// GetOrCreate returns the user's wallet, creating a zero-balance row on
	// first touch. When called with a live Tx the row is locked
	// (SELECT ... FOR UPDATE) so the balance read and the following Save are
	// one atomic unit against the store.
	GetOrCreate(ctx context.Context, tx Tx, userID string) (*model.Wallet, error)
	Save(ctx context.Context, tx Tx, w *model.Wallet) error
	// AppendTransaction writes one ledger entry. Entries are append-only;
	// there is no update or delete.
	AppendTransaction(ctx context.Context, tx Tx, t *model.WalletTransaction) error
	ListTransactions(ctx context.Context, tx Tx, userID string, limit int) ([]*model.WalletTransaction, error)
	// SumTransactions returns the running sum of a user's signed amounts,
	// used to audit the balance invariant.
	SumTransactions(ctx context.Context, tx Tx, userID string) (int64, error)
}
