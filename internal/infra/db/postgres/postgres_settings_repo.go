package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"fanpay/internal/domain"
	"fanpay/internal/domain/ports/repository"
)

var _ repository.SettingsRepository = (*settingsRepo)(nil)

type settingsRepo struct{ pool *pgxpool.Pool }

func NewSettingsRepo(pool *pgxpool.Pool) *settingsRepo {
	return &settingsRepo{pool: pool}
}

func (r *settingsRepo) Get(ctx context.Context, tx repository.Tx, key string) (string, error) {
	const q = `SELECT value FROM payment_settings WHERE key=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, key)
	if err != nil {
		return "", err
	}
	var v string
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", domain.ErrReadDatabaseRow
	}
	return v, nil
}

func (r *settingsRepo) Set(ctx context.Context, tx repository.Tx, key, value, updatedBy string) error {
	const q = `
INSERT INTO payment_settings (key, value, updated_by, updated_at)
 VALUES ($1,$2,$3,NOW())
 ON CONFLICT (key) DO UPDATE SET value=$2, updated_by=$3, updated_at=NOW();`
	_, err := execSQL(ctx, r.pool, tx, q, key, value, updatedBy)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *settingsRepo) All(ctx context.Context, tx repository.Tx) (map[string]string, error) {
	const q = `SELECT key, value FROM payment_settings;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[k] = v
	}
	return out, nil
}
