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

var _ repository.PayoutRepository = (*payoutRepo)(nil)

type payoutRepo struct{ pool *pgxpool.Pool }

func NewPayoutRepo(pool *pgxpool.Pool) *payoutRepo {
	return &payoutRepo{pool: pool}
}

const payoutColumns = `id, creator_id, fiat_amount, coin_amount, currency, method, status, pix_key, bank_details, crypto_address, crypto_network, risk_score, risk_flags, requires_manual_approval, approved_by, rejected_reason, processed_at, created_at`

func (r *payoutRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payout) error {
	const q = `
INSERT INTO payouts (
  id, creator_id, fiat_amount, coin_amount, currency, method, status, pix_key, bank_details, crypto_address, crypto_network, risk_score, risk_flags, requires_manual_approval, approved_by, rejected_reason, processed_at, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
) ON CONFLICT (id) DO UPDATE SET
  status=$7, approved_by=$15, rejected_reason=$16, processed_at=$17;`

	bank, err := json.Marshal(p.BankDetails)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	_, err = execSQL(ctx, r.pool, tx, q,
		p.ID, p.CreatorID, p.FiatAmount.String(), p.CoinAmount, p.Currency, p.Method, p.Status,
		p.PixKey, bank, p.CryptoAddress, p.CryptoNetwork,
		p.RiskScore, p.RiskFlags, p.RequiresManualApproval,
		p.ApprovedBy, p.RejectedReason, p.ProcessedAt, p.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func scanPayout(row pgx.Row) (*model.Payout, error) {
	p := &model.Payout{}
	var fiat string
	var bank []byte
	if err := row.Scan(&p.ID, &p.CreatorID, &fiat, &p.CoinAmount, &p.Currency, &p.Method,
		&p.Status, &p.PixKey, &bank, &p.CryptoAddress, &p.CryptoNetwork,
		&p.RiskScore, &p.RiskFlags, &p.RequiresManualApproval,
		&p.ApprovedBy, &p.RejectedReason, &p.ProcessedAt, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	var err error
	if p.FiatAmount, err = decimal.NewFromString(fiat); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	if len(bank) > 0 {
		if err := json.Unmarshal(bank, &p.BankDetails); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return p, nil
}

func (r *payoutRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payout, error) {
	q := `SELECT ` + payoutColumns + ` FROM payouts WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPayout(row)
}

// CountSince counts every non-rejected request in the window. Rejected
// payouts do not consume the daily quota; the coins came back.
func (r *payoutRepo) CountSince(ctx context.Context, tx repository.Tx, creatorID string, since time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM payouts WHERE creator_id=$1 AND created_at >= $2 AND status <> 'rejected';`
	row, err := pickRow(ctx, r.pool, tx, q, creatorID, since)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *payoutRepo) SumFiatSince(ctx context.Context, tx repository.Tx, creatorID string, since time.Time) (decimal.Decimal, error) {
	const q = `SELECT COALESCE(SUM(fiat_amount),0) FROM payouts WHERE creator_id=$1 AND created_at >= $2 AND status <> 'rejected';`
	return r.sumFiat(ctx, tx, q, creatorID, since)
}

func (r *payoutRepo) SumCompletedFiat(ctx context.Context, tx repository.Tx, creatorID string) (decimal.Decimal, error) {
	const q = `SELECT COALESCE(SUM(fiat_amount),0) FROM payouts WHERE creator_id=$1 AND status='completed';`
	return r.sumFiat(ctx, tx, q, creatorID)
}

func (r *payoutRepo) sumFiat(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (decimal.Decimal, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return decimal.Zero, err
	}
	var sum string
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, domain.ErrReadDatabaseRow
	}
	d, err := decimal.NewFromString(sum)
	if err != nil {
		return decimal.Zero, domain.ErrReadDatabaseRow
	}
	return d, nil
}

func (r *payoutRepo) HasCompletedSince(ctx context.Context, tx repository.Tx, creatorID string, since time.Time) (bool, error) {
	const q = `SELECT EXISTS (
  SELECT 1 FROM payouts WHERE creator_id=$1 AND status='completed' AND processed_at >= $2);`
	row, err := pickRow(ctx, r.pool, tx, q, creatorID, since)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}

func (r *payoutRepo) ListByCreator(ctx context.Context, tx repository.Tx, creatorID string, limit int) ([]*model.Payout, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT ` + payoutColumns + ` FROM payouts WHERE creator_id=$1 ORDER BY created_at DESC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, creatorID, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *payoutRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.PayoutStatus, limit, offset int) ([]*model.Payout, int, error) {
	if limit <= 0 {
		limit = 50
	}
	const cq = `SELECT COUNT(*) FROM payouts WHERE status=$1;`
	row, err := pickRow(ctx, r.pool, tx, cq, status)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := row.Scan(&total); err != nil {
		return nil, 0, domain.ErrReadDatabaseRow
	}

	const q = `SELECT ` + payoutColumns + ` FROM payouts WHERE status=$1 ORDER BY created_at ASC LIMIT $2 OFFSET $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, status, limit, offset)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, 0, err
		default:
			return nil, 0, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, nil
}
