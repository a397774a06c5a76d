// Package ranking orders gifticons and reduces them to one candidate per
// price tier.
package ranking

import (
	"cmp"
	"slices"

	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/domain"
)

// Compare orders units by expiry ascending, efficiency descending, sale price
// ascending and finally id, so equal-looking units still sort the same way.
func Compare(a, b domain.Unit) int {
	if c := a.Expiry.Compare(b.Expiry); c != 0 {
		return c
	}
	if c := compareEfficiency(a, b); c != 0 {
		return c
	}
	if c := cmp.Compare(a.SalePrice, b.SalePrice); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// CompareValue orders units for budget allocation: efficiency descending,
// sale price ascending, expiry ascending, then id.
func CompareValue(a, b domain.Unit) int {
	if c := compareEfficiency(a, b); c != 0 {
		return c
	}
	if c := cmp.Compare(a.SalePrice, b.SalePrice); c != 0 {
		return c
	}
	if c := a.Expiry.Compare(b.Expiry); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// compareEfficiency sorts higher (orig-sale)/sale first. The ratios are
// compared by cross-multiplication so no precision is lost.
func compareEfficiency(a, b domain.Unit) int {
	if a.SalePrice <= 0 || b.SalePrice <= 0 {
		return cmp.Compare(b.SalePrice, a.SalePrice)
	}
	left := a.Discount() * b.SalePrice
	right := b.Discount() * a.SalePrice
	return cmp.Compare(right, left)
}

// Rank returns a sorted copy of units.
func Rank(units []domain.Unit) []domain.Unit {
	return sortedBy(units, Compare)
}

// RankByValue returns a copy of units sorted with CompareValue.
func RankByValue(units []domain.Unit) []domain.Unit {
	return sortedBy(units, CompareValue)
}

func sortedBy(units []domain.Unit, fn func(a, b domain.Unit) int) []domain.Unit {
	out := slices.Clone(units)
	slices.SortStableFunc(out, fn)
	return out
}

// GroupByTier keeps the first unit seen for each tier and drops the rest.
// Input order is preserved.
func GroupByTier(ranked []domain.Unit) []domain.Unit {
	seen := make(map[int64]struct{}, len(ranked))
	out := make([]domain.Unit, 0, len(ranked))
	for _, u := range ranked {
		tier := u.Tier()
		if _, ok := seen[tier]; ok {
			continue
		}
		seen[tier] = struct{}{}
		out = append(out, u)
	}
	return out
}

// Recommend returns the best unit of every tier, ranked.
func Recommend(units []domain.Unit) []domain.Unit {
	return GroupByTier(Rank(units))
}

// Candidates returns the best-value unit of every tier, ordered by value.
func Candidates(units []domain.Unit) []domain.Unit {
	return GroupByTier(RankByValue(units))
}
