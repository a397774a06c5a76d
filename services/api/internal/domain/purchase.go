package domain

import "time"

// Purchase records one completed checkout of a session's selections.
type Purchase struct {
	ID             string
	OwnerID        string
	SessionID      string
	IdempotencyKey string
	Total          int64
	UnitIDs        []string
	CreatedAt      time.Time
}

// Holding is an owned unit, appended once per unit at purchase time.
type Holding struct {
	ID             string
	OwnerID        string
	UnitID         string
	PurchaseID     string
	Scope          string
	RedemptionCode string
	OriginalPrice  int64
	SalePrice      int64
	Expiry         time.Time
	AcquiredAt     time.Time
}
