package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/domain"
)

// LedgerRepository stores owners' point balances.
type LedgerRepository struct {
	db
}

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: db{pool: pool}}
}

// GetBalance returns zero for an owner without a balance row.
func (r *LedgerRepository) GetBalance(ctx context.Context, ownerID string) (int64, error) {
	var points int64
	err := r.queryRow(ctx, `SELECT points FROM balances WHERE owner_id = $1`, ownerID).Scan(&points)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, storeErr("get balance", err)
	}
	return points, nil
}

// DebitBalance subtracts amount only when the balance covers it.
func (r *LedgerRepository) DebitBalance(ctx context.Context, ownerID string, amount int64) error {
	if amount < 0 {
		return domain.ErrInvariantViolation
	}
	const stmt = `
UPDATE balances
SET points = points - $2, updated_at = NOW()
WHERE owner_id = $1 AND points >= $2`

	tag, err := r.exec(ctx, stmt, ownerID, amount)
	if err != nil {
		if isCheckViolation(err) {
			return domain.ErrInsufficientFunds
		}
		return storeErr("debit balance", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}
	return nil
}
