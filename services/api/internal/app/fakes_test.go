package app

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/domain"
)

var testNow = time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

func testUnit(id string, orig, sale int64, expiry time.Time) domain.Unit {
	return domain.Unit{
		ID:             id,
		Scope:          "cafe",
		Expiry:         expiry,
		RedemptionCode: "code-" + id,
		OriginalPrice:  orig,
		SalePrice:      sale,
		Status:         domain.UnitStatusAvailable,
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// fakeStore stands in for Postgres: inventory, ledger and purchases behind
// one mutex, with WithTx rolling everything back on error.
type fakeStore struct {
	mu        sync.Mutex
	order     []string
	units     map[string]domain.Unit
	balances  map[string]int64
	purchases []domain.Purchase
	holdings  []domain.Holding

	queryErr  error
	updateErr error
	batchErr  error
	debitErr  error
	claimErrs map[string]error
	queries   int
}

func newFakeStore(units ...domain.Unit) *fakeStore {
	f := &fakeStore{
		units:    make(map[string]domain.Unit),
		balances: make(map[string]int64),
	}
	for _, u := range units {
		f.order = append(f.order, u.ID)
		f.units[u.ID] = u
	}
	return f
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	units := maps.Clone(f.units)
	balances := maps.Clone(f.balances)
	purchases := slices.Clone(f.purchases)
	holdings := slices.Clone(f.holdings)
	f.mu.Unlock()

	if err := fn(ctx); err != nil {
		f.mu.Lock()
		f.units = units
		f.balances = balances
		f.purchases = purchases
		f.holdings = holdings
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeStore) QueryUnits(_ context.Context, q domain.UnitQuery) ([]domain.Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []domain.Unit
	for _, id := range f.order {
		u := f.units[id]
		if q.Scope != "" && u.Scope != q.Scope {
			continue
		}
		if q.Status != "" && u.Status != q.Status {
			continue
		}
		if q.Price != nil && !q.Price.Contains(u.OriginalPrice) {
			continue
		}
		if !q.ValidOn.IsZero() && u.Expiry.Before(q.ValidOn) {
			continue
		}
		if slices.Contains(q.ExcludeIDs, u.ID) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeStore) GetUnit(_ context.Context, id string) (domain.Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[id]
	if !ok {
		return domain.Unit{}, domain.ErrUnitNotFound
	}
	return u, nil
}

func (f *fakeStore) ConditionalUpdateStatus(_ context.Context, t domain.Transition) (domain.Unit, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return domain.Unit{}, false, f.updateErr
	}
	if err := f.claimErrs[t.UnitID]; err != nil && t.To == domain.UnitStatusReserved {
		return domain.Unit{}, false, err
	}
	u, ok := f.apply(t.UnitID, t.From, t.To, t.SessionID, t.At)
	return u, ok, nil
}

func (f *fakeStore) BatchUpdateStatus(_ context.Context, t domain.BatchTransition) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	var applied []string
	for _, id := range t.UnitIDs {
		if _, ok := f.apply(id, t.From, t.To, t.SessionID, t.At); ok {
			applied = append(applied, id)
		}
	}
	return applied, nil
}

func (f *fakeStore) ReleaseStale(_ context.Context, before time.Time, keep []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var released []string
	for _, id := range f.order {
		u := f.units[id]
		if u.Status != domain.UnitStatusReserved || slices.Contains(keep, u.ReservedBy) {
			continue
		}
		if u.ReservedAt != nil && u.ReservedAt.Before(before) {
			f.apply(id, domain.UnitStatusReserved, domain.UnitStatusAvailable, u.ReservedBy, before)
			released = append(released, id)
		}
	}
	return released, nil
}

// apply must be called with mu held.
func (f *fakeStore) apply(id string, from, to domain.UnitStatus, sessionID string, at time.Time) (domain.Unit, bool) {
	u, ok := f.units[id]
	if !ok || u.Status != from {
		return domain.Unit{}, false
	}
	if from == domain.UnitStatusReserved && u.ReservedBy != sessionID {
		return domain.Unit{}, false
	}
	u.Status = to
	if to == domain.UnitStatusReserved {
		at := at
		u.ReservedBy = sessionID
		u.ReservedAt = &at
	} else {
		u.ReservedBy = ""
		u.ReservedAt = nil
	}
	f.units[id] = u
	return u, true
}

func (f *fakeStore) GetBalance(_ context.Context, ownerID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return 0, f.queryErr
	}
	return f.balances[ownerID], nil
}

func (f *fakeStore) DebitBalance(_ context.Context, ownerID string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.debitErr != nil {
		return f.debitErr
	}
	if f.balances[ownerID] < amount {
		return domain.ErrInsufficientFunds
	}
	f.balances[ownerID] -= amount
	return nil
}

func (f *fakeStore) FindPurchaseByIdempotencyKey(_ context.Context, ownerID, key string) (*domain.Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.purchases {
		if p.OwnerID == ownerID && p.IdempotencyKey == key {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreatePurchase(_ context.Context, p domain.Purchase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.purchases {
		if existing.OwnerID == p.OwnerID && existing.IdempotencyKey == p.IdempotencyKey {
			return domain.ErrIdempotencyConflict
		}
	}
	f.purchases = append(f.purchases, p)
	return nil
}

func (f *fakeStore) AppendHoldings(_ context.Context, holdings []domain.Holding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holdings = append(f.holdings, holdings...)
	return nil
}

func (f *fakeStore) ListHoldings(_ context.Context, ownerID string) ([]domain.Holding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Holding
	for _, h := range f.holdings {
		if h.OwnerID == ownerID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeStore) unit(id string) domain.Unit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.units[id]
}

func (f *fakeStore) setStatus(id string, status domain.UnitStatus, holder string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.units[id]
	u.Status = status
	u.ReservedBy = holder
	if status == domain.UnitStatusReserved {
		at := testNow
		u.ReservedAt = &at
	} else {
		u.ReservedAt = nil
	}
	f.units[id] = u
}
