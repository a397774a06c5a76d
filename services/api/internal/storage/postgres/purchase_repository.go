package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/domain"
)

type PurchaseRepository struct {
	db
}

func NewPurchaseRepository(pool *pgxpool.Pool) *PurchaseRepository {
	return &PurchaseRepository{db: db{pool: pool}}
}

func (r *PurchaseRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *PurchaseRepository) FindPurchaseByIdempotencyKey(ctx context.Context, ownerID, key string) (*domain.Purchase, error) {
	const query = `
SELECT id, owner_id, session_id, idempotency_key, total, unit_ids, created_at
FROM purchases
WHERE owner_id = $1 AND idempotency_key = $2`

	var p domain.Purchase
	err := r.queryRow(ctx, query, ownerID, key).
		Scan(&p.ID, &p.OwnerID, &p.SessionID, &p.IdempotencyKey, &p.Total, &p.UnitIDs, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storeErr("find purchase by idempotency key", err)
	}
	return &p, nil
}

func (r *PurchaseRepository) CreatePurchase(ctx context.Context, p domain.Purchase) error {
	const stmt = `
INSERT INTO purchases (id, owner_id, session_id, idempotency_key, total, unit_ids, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.exec(ctx, stmt, p.ID, p.OwnerID, p.SessionID, p.IdempotencyKey, p.Total, p.UnitIDs, p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrIdempotencyConflict
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return storeErr("create purchase", err)
	}
	return nil
}

// AppendHoldings inserts every holding in one round trip.
func (r *PurchaseRepository) AppendHoldings(ctx context.Context, holdings []domain.Holding) error {
	if len(holdings) == 0 {
		return nil
	}
	const stmt = `
INSERT INTO holdings (id, owner_id, unit_id, purchase_id, scope, redemption_code, original_price, sale_price, expiry, acquired_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	b := &pgx.Batch{}
	for _, h := range holdings {
		b.Queue(stmt, h.ID, h.OwnerID, h.UnitID, h.PurchaseID, h.Scope, h.RedemptionCode,
			h.OriginalPrice, h.SalePrice, h.Expiry, h.AcquiredAt)
	}
	if err := r.sendBatch(ctx, b).Close(); err != nil {
		if isUniqueViolation(err) {
			// A unit can only be owned once.
			return domain.ErrInvariantViolation
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return storeErr("append holdings", err)
	}
	return nil
}

func (r *PurchaseRepository) ListHoldings(ctx context.Context, ownerID string) ([]domain.Holding, error) {
	const query = `
SELECT id, owner_id, unit_id, purchase_id, scope, redemption_code, original_price, sale_price, expiry, acquired_at
FROM holdings
WHERE owner_id = $1
ORDER BY acquired_at, id`

	rows, err := r.query(ctx, query, ownerID)
	if err != nil {
		return nil, storeErr("list holdings", err)
	}
	holdings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Holding, error) {
		var h domain.Holding
		err := row.Scan(&h.ID, &h.OwnerID, &h.UnitID, &h.PurchaseID, &h.Scope, &h.RedemptionCode,
			&h.OriginalPrice, &h.SalePrice, &h.Expiry, &h.AcquiredAt)
		return h, err
	})
	if err != nil {
		return nil, storeErr("list holdings", err)
	}
	return holdings, nil
}
