package app

import (
	"context"
	"errors"

	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/domain"
)

// AllocationResult is what the greedy allocator managed to claim.
type AllocationResult struct {
	Units           []domain.Unit
	Budget          int64
	Points          int64
	RemainingBudget int64
	RemainingPoints int64
	Spent           int64
	// Exhausted means nothing fit; it is reported as "no matches".
	Exhausted bool
}

type claimFunc func(ctx context.Context, unitID string) (ClaimResult, error)

// Allocate walks candidates once in order and claims every unit whose
// original price fits the remaining budget and whose sale price fits the
// remaining points. Skipped or lost units are never revisited.
//
// On a store error the partial result is returned with the error so the
// caller can release what was claimed.
func Allocate(ctx context.Context, candidates []domain.Unit, budget, points int64, claim claimFunc) (AllocationResult, error) {
	res := AllocationResult{
		Budget:          budget,
		Points:          points,
		RemainingBudget: budget,
		RemainingPoints: points,
	}
	for _, u := range candidates {
		if u.OriginalPrice > res.RemainingBudget || res.Spent+u.SalePrice > points {
			continue
		}
		cr, err := claim(ctx, u.ID)
		if errors.Is(err, domain.ErrInvariantViolation) || errors.Is(err, domain.ErrUnitNotFound) {
			// Sold or removed since the candidates were read.
			continue
		}
		if err != nil {
			return res, err
		}
		if !cr.Acquired() {
			continue
		}
		res.Units = append(res.Units, cr.Unit)
		res.RemainingBudget -= cr.Unit.OriginalPrice
		res.Spent += cr.Unit.SalePrice
		res.RemainingPoints = points - res.Spent
	}
	res.Exhausted = len(res.Units) == 0
	return res, nil
}
