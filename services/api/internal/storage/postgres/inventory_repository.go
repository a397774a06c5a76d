package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/domain"
)

const unitColumns = `id, scope, expiry, redemption_code, original_price, sale_price, status, reserved_by, reserved_at`

// InventoryRepository is the shared unit pool. Every status change is a
// single conditional UPDATE, so concurrent sessions only ever race on rows.
type InventoryRepository struct {
	db
}

func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{db: db{pool: pool}}
}

func (r *InventoryRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *InventoryRepository) QueryUnits(ctx context.Context, q domain.UnitQuery) ([]domain.Unit, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if q.Scope != "" {
		add("scope = $%d", q.Scope)
	}
	if q.Status != "" {
		add("status = $%d", q.Status)
	}
	if q.Price != nil {
		add("original_price >= $%d", q.Price.Min)
		if q.Price.Max > 0 {
			add("original_price < $%d", q.Price.Max)
		}
	}
	if !q.ValidOn.IsZero() {
		add("expiry >= $%d", q.ValidOn)
	}
	if len(q.ExcludeIDs) > 0 {
		add("NOT (id = ANY($%d))", q.ExcludeIDs)
	}

	sql := `SELECT ` + unitColumns + ` FROM units`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY id`

	rows, err := r.query(ctx, sql, args...)
	if err != nil {
		return nil, unitErr("query units", err)
	}
	units, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Unit, error) {
		return scanUnit(row)
	})
	if err != nil {
		return nil, unitErr("query units", err)
	}
	return units, nil
}

func (r *InventoryRepository) GetUnit(ctx context.Context, unitID string) (domain.Unit, error) {
	u, err := scanUnit(r.queryRow(ctx, `SELECT `+unitColumns+` FROM units WHERE id = $1`, unitID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Unit{}, domain.ErrUnitNotFound
		}
		return domain.Unit{}, unitErr("get unit", err)
	}
	return u, nil
}

// ConditionalUpdateStatus applies t when the row still matches. A row that no
// longer matches reports applied=false without error.
func (r *InventoryRepository) ConditionalUpdateStatus(ctx context.Context, t domain.Transition) (domain.Unit, bool, error) {
	holder, at := reservation(t.To, t.SessionID, t.At)
	const stmt = `
UPDATE units
SET status = $3, reserved_by = $4, reserved_at = $5
WHERE id = $1
  AND status = $2
  AND ($2::text <> 'reserved' OR reserved_by = $6)
RETURNING ` + unitColumns

	u, err := scanUnit(r.queryRow(ctx, stmt, t.UnitID, t.From, t.To, holder, at, t.SessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Unit{}, false, nil
		}
		return domain.Unit{}, false, unitErr("update unit status", err)
	}
	return u, true, nil
}

// BatchUpdateStatus applies t to every matching row in one statement and
// returns the ids that changed.
func (r *InventoryRepository) BatchUpdateStatus(ctx context.Context, t domain.BatchTransition) ([]string, error) {
	if len(t.UnitIDs) == 0 {
		return nil, nil
	}
	holder, at := reservation(t.To, t.SessionID, t.At)
	const stmt = `
UPDATE units
SET status = $3, reserved_by = $4, reserved_at = $5
WHERE id = ANY($1)
  AND status = $2
  AND ($2::text <> 'reserved' OR reserved_by = $6)
RETURNING id`

	rows, err := r.query(ctx, stmt, t.UnitIDs, t.From, t.To, holder, at, t.SessionID)
	if err != nil {
		return nil, unitErr("batch update unit status", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, unitErr("batch update unit status", err)
	}
	return ids, nil
}

// ReleaseStale frees reservations taken before the cutoff whose holder is not
// in keepSessions.
func (r *InventoryRepository) ReleaseStale(ctx context.Context, before time.Time, keepSessions []string) ([]string, error) {
	if keepSessions == nil {
		// ANY(NULL) would filter out every row.
		keepSessions = []string{}
	}
	const stmt = `
UPDATE units
SET status = 'available', reserved_by = NULL, reserved_at = NULL
WHERE status = 'reserved'
  AND reserved_at < $1
  AND NOT (reserved_by = ANY($2))
RETURNING id`

	rows, err := r.query(ctx, stmt, before, keepSessions)
	if err != nil {
		return nil, storeErr("release stale claims", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, storeErr("release stale claims", err)
	}
	return ids, nil
}

func reservation(to domain.UnitStatus, sessionID string, at time.Time) (*string, *time.Time) {
	if to != domain.UnitStatusReserved {
		return nil, nil
	}
	return &sessionID, &at
}

func scanUnit(row pgx.Row) (domain.Unit, error) {
	var (
		u          domain.Unit
		reservedBy *string
	)
	err := row.Scan(
		&u.ID,
		&u.Scope,
		&u.Expiry,
		&u.RedemptionCode,
		&u.OriginalPrice,
		&u.SalePrice,
		&u.Status,
		&reservedBy,
		&u.ReservedAt,
	)
	if err != nil {
		return domain.Unit{}, err
	}
	if reservedBy != nil {
		u.ReservedBy = *reservedBy
	}
	return u, nil
}

func unitErr(op string, err error) error {
	if isInvalidUUID(err) {
		return domain.ErrInvalidID
	}
	return storeErr(op, err)
}
