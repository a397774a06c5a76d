package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type UnitStatus string

const (
	UnitStatusAvailable UnitStatus = "available"
	UnitStatusReserved  UnitStatus = "reserved"
	UnitStatusSold      UnitStatus = "sold"
)

// TierWidth is the width of a price tier in currency units.
const TierWidth = 1000

// Unit is a single sellable gifticon.
type Unit struct {
	ID             string
	Scope          string
	Expiry         time.Time
	RedemptionCode string
	OriginalPrice  int64
	SalePrice      int64
	Status         UnitStatus
	// ReservedBy and ReservedAt are only set while Status is reserved.
	ReservedBy string
	ReservedAt *time.Time
}

// Tier returns the original price rounded down to the nearest thousand.
func (u Unit) Tier() int64 {
	return TierOf(u.OriginalPrice)
}

// TierOf returns the tier a given original price falls into.
func TierOf(originalPrice int64) int64 {
	if originalPrice < 0 {
		return 0
	}
	return originalPrice / TierWidth * TierWidth
}

// Discount is the absolute amount saved against the original price.
func (u Unit) Discount() int64 {
	return u.OriginalPrice - u.SalePrice
}

// Efficiency is discount divided by sale price, for display.
func (u Unit) Efficiency() decimal.Decimal {
	if u.SalePrice <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(u.Discount()).Div(decimal.NewFromInt(u.SalePrice))
}

// ExpiredAt reports whether the unit is no longer redeemable at t.
// A unit stays redeemable through the whole expiry day.
func (u Unit) ExpiredAt(t time.Time) bool {
	return u.Expiry.Before(Day(t))
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
