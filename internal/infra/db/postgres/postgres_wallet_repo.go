package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"fanpay/internal/domain"
	"fanpay/internal/domain/model"
	"fanpay/internal/domain/ports/repository"
)

var _ repository.WalletRepository = (*walletRepo)(nil)

type walletRepo struct{ pool *pgxpool.Pool }

func NewWalletRepo(pool *pgxpool.Pool) *walletRepo {
	return &walletRepo{pool: pool}
}

// GetOrCreate inserts the zero row on first touch, then reads it back.
// Inside a live transaction the read takes FOR UPDATE so the caller's
// balance math holds the row lock until commit.
func (r *walletRepo) GetOrCreate(ctx context.Context, tx repository.Tx, userID string) (*model.Wallet, error) {
	const ins = `INSERT INTO wallets (user_id, balance, total_earned, total_spent, created_at, updated_at)
 VALUES ($1, 0, 0, 0, NOW(), NOW()) ON CONFLICT (user_id) DO NOTHING;`
	if _, err := execSQL(ctx, r.pool, tx, ins, userID); err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}

	q := `SELECT user_id, balance, total_earned, total_spent, created_at, updated_at FROM wallets WHERE user_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	w := &model.Wallet{}
	if err := row.Scan(&w.UserID, &w.Balance, &w.TotalEarned, &w.TotalSpent, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return w, nil
}

func (r *walletRepo) Save(ctx context.Context, tx repository.Tx, w *model.Wallet) error {
	const q = `UPDATE wallets SET balance=$2, total_earned=$3, total_spent=$4, updated_at=NOW() WHERE user_id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, w.UserID, w.Balance, w.TotalEarned, w.TotalSpent)
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

func (r *walletRepo) AppendTransaction(ctx context.Context, tx repository.Tx, t *model.WalletTransaction) error {
	const q = `
INSERT INTO wallet_transactions (id, user_id, type, amount, balance_after, reference_id, description, created_at)
 VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`
	_, err := execSQL(ctx, r.pool, tx, q,
		t.ID, t.UserID, t.Type, t.Amount, t.BalanceAfter, t.ReferenceID, t.Description, t.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *walletRepo) ListTransactions(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.WalletTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT id, user_id, type, amount, balance_after, reference_id, description, created_at
 FROM wallet_transactions WHERE user_id=$1 ORDER BY id DESC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.WalletTransaction
	for rows.Next() {
		t := new(model.WalletTransaction)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.BalanceAfter, &t.ReferenceID, &t.Description, &t.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *walletRepo) SumTransactions(ctx context.Context, tx repository.Tx, userID string) (int64, error) {
	const q = `SELECT COALESCE(SUM(amount),0) FROM wallet_transactions WHERE user_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}
