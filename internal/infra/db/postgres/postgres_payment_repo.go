package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"fanpay/internal/domain"
	"fanpay/internal/domain/model"
	"fanpay/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, payer_id, recipient_id, kind, amount, currency, platform_fee, recipient_amount, provider, provider_tx_id, status, metadata, created_at, updated_at`

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (
  id, payer_id, recipient_id, kind, amount, currency, platform_fee, recipient_amount, provider, provider_tx_id, status, metadata, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
) ON CONFLICT (id) DO UPDATE SET
  provider_tx_id=$10, status=$11, metadata=$12, updated_at=$14;`

	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	_, err = execSQL(ctx, r.pool, tx, q,
		p.ID, p.PayerID, p.RecipientID, p.Kind,
		p.Amount.String(), p.Currency, p.PlatformFee.String(), p.RecipientAmount.String(),
		p.Provider, p.ProviderTxID, p.Status, meta, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	var amount, fee, recipientAmount string
	var meta []byte
	if err := row.Scan(&p.ID, &p.PayerID, &p.RecipientID, &p.Kind, &amount, &p.Currency,
		&fee, &recipientAmount, &p.Provider, &p.ProviderTxID, &p.Status, &meta,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	var err error
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	if p.PlatformFee, err = decimal.NewFromString(fee); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	if p.RecipientAmount, err = decimal.NewFromString(recipientAmount); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &p.Metadata); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return p, nil
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByProviderTxID(ctx context.Context, tx repository.Tx, provider, providerTxID string) (*model.Payment, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE provider=$1 AND provider_tx_id=$2;`
	row, err := pickRow(ctx, r.pool, tx, q, provider, providerTxID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, providerTxID *string) error {
	const q = `UPDATE payments SET status=$2, provider_tx_id=COALESCE($3, provider_tx_id), updated_at=NOW() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, status, providerTxID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) AttachProviderCharge(ctx context.Context, tx repository.Tx, id string, providerTxID *string, extraMeta map[string]any) error {
	const q = `
    UPDATE payments
       SET provider_tx_id = COALESCE($2, provider_tx_id),
           metadata = metadata || $3::jsonb,
           updated_at = NOW()
     WHERE id = $1;`

	if extraMeta == nil {
		extraMeta = map[string]any{}
	}
	meta, err := json.Marshal(extraMeta)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	_, err = execSQL(ctx, r.pool, tx, q, id, providerTxID, meta)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

// FinalizeIfPending atomically moves a payment out of 'pending'. The WHERE
// clause is the idempotency gate: the first caller wins, every duplicate
// delivery sees zero rows affected.
func (r *paymentRepo) FinalizeIfPending(
	ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, providerTxID *string, extraMeta map[string]any,
) (bool, error) {
	const q = `
    UPDATE payments
       SET status = $2,
           provider_tx_id = COALESCE($3, provider_tx_id),
           metadata = metadata || $4::jsonb,
           updated_at = NOW()
     WHERE id = $1
       AND status = 'pending';`

	if extraMeta == nil {
		extraMeta = map[string]any{}
	}
	meta, err := json.Marshal(extraMeta)
	if err != nil {
		return false, domain.ErrInvalidArgument
	}
	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(status), providerTxID, meta)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) HasCompletedPPV(ctx context.Context, tx repository.Tx, userID, postID string) (bool, error) {
	const q = `SELECT EXISTS (
  SELECT 1 FROM payments
   WHERE payer_id=$1 AND kind='pay_per_view' AND status='completed'
     AND metadata->>'postId' = $2);`
	row, err := pickRow(ctx, r.pool, tx, q, userID, postID)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}

func (r *paymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE status='pending' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *paymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE payer_id=$1 ORDER BY created_at DESC LIMIT $2;`
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

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
