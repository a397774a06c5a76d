package domain

import "time"

// PriceRange bounds original price, Min inclusive and Max exclusive.
// A zero Max means unbounded.
type PriceRange struct {
	Min int64
	Max int64
}

// TierRange returns the price range covered by tier.
func TierRange(tier int64) PriceRange {
	return PriceRange{Min: tier, Max: tier + TierWidth}
}

func (r PriceRange) Contains(price int64) bool {
	if price < r.Min {
		return false
	}
	return r.Max == 0 || price < r.Max
}

// UnitQuery filters inventory reads.
type UnitQuery struct {
	Scope  string
	Status UnitStatus
	Price  *PriceRange
	// ValidOn drops units whose expiry is before this day when set.
	ValidOn    time.Time
	ExcludeIDs []string
}

// Transition is a conditional status change of one unit. SessionID is the
// expected holder when From is reserved and the new holder when To is reserved.
type Transition struct {
	UnitID    string
	From      UnitStatus
	To        UnitStatus
	SessionID string
	At        time.Time
}

// BatchTransition applies the same conditional change to many units.
type BatchTransition struct {
	UnitIDs   []string
	From      UnitStatus
	To        UnitStatus
	SessionID string
	At        time.Time
}
