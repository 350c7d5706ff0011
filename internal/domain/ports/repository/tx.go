package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager executes a function within a database transaction,
// passing the underlying transaction handle via `tx`.
//
// Use-case interfaces stay clean (no driver types leaking out); repository
// methods accept a Tx and detect it implementation-side to run
// SELECT ... FOR UPDATE or tx-bound Exec/Query. Repositories MUST accept a
// nil Tx (non-transactional path). The concrete type of `tx` is
// infra-defined (pgx.Tx for Postgres).
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
