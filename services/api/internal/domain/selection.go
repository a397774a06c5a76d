package domain

// Selection maps a displayed unit to the reserved unit backing it.
type Selection struct {
	UnitID        string
	ClaimID       string
	SalePrice     int64
	OriginalPrice int64
}

// SessionMode separates hand-picked selection from budget allocation.
type SessionMode string

const (
	SessionModeInteractive SessionMode = "interactive"
	SessionModeAllocator   SessionMode = "allocator"
)
