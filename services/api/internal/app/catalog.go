package app

import (
	"context"

	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/clock"
	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/domain"
	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/ranking"
)

// Catalog answers read-only questions about the available pool.
type Catalog struct {
	store InventoryStore
	clock clock.Clock
}

func NewCatalog(store InventoryStore, clk clock.Clock) *Catalog {
	return &Catalog{store: store, clock: clk}
}

// Recommendations returns the best available, unexpired unit of every price
// tier in scope.
func (c *Catalog) Recommendations(ctx context.Context, scope string) ([]domain.Unit, error) {
	units, err := c.available(ctx, scope, nil, nil)
	if err != nil {
		return nil, err
	}
	return ranking.Recommend(units), nil
}

// AllocationCandidates returns one unit per tier ordered for the allocator.
func (c *Catalog) AllocationCandidates(ctx context.Context, scope string) ([]domain.Unit, error) {
	units, err := c.available(ctx, scope, nil, nil)
	if err != nil {
		return nil, err
	}
	return ranking.Candidates(units), nil
}

// Alternatives returns ranked available units in the tier, minus exclude.
func (c *Catalog) Alternatives(ctx context.Context, scope string, tier int64, exclude []string) ([]domain.Unit, error) {
	rng := domain.TierRange(tier)
	units, err := c.available(ctx, scope, &rng, exclude)
	if err != nil {
		return nil, err
	}
	return ranking.Rank(units), nil
}

func (c *Catalog) available(ctx context.Context, scope string, price *domain.PriceRange, exclude []string) ([]domain.Unit, error) {
	if scope == "" {
		return nil, domain.ErrScopeRequired
	}
	return c.store.QueryUnits(ctx, domain.UnitQuery{
		Scope:      scope,
		Status:     domain.UnitStatusAvailable,
		Price:      price,
		ValidOn:    domain.Day(c.clock.Now()),
		ExcludeIDs: exclude,
	})
}
