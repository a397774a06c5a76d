package domain

import "errors"

var (
	ErrClaimConflict          = errors.New("claim conflict")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrStoreUnavailable       = errors.New("store unavailable")
	ErrInvariantViolation     = errors.New("invariant violation")
	ErrUnitNotFound           = errors.New("unit not found")
	ErrUnitUnavailable        = errors.New("unit not offered in this session")
	ErrFinalizeIncomplete     = errors.New("finalize incomplete")
	ErrSessionNotFound        = errors.New("session not found")
	ErrSessionClosed          = errors.New("session closed")
	ErrInvalidBudget          = errors.New("invalid budget")
	ErrBudgetNotSet           = errors.New("budget not set")
	ErrEmptySelection         = errors.New("empty selection")
	ErrNotSelected            = errors.New("unit not selected")
	ErrAlreadySelected        = errors.New("unit already selected")
	ErrWrongMode              = errors.New("operation not allowed in current mode")
	ErrIdempotencyKeyRequired = errors.New("idempotency key required")
	ErrIdempotencyConflict    = errors.New("idempotency conflict")
	ErrOwnerRequired          = errors.New("owner id required")
	ErrScopeRequired          = errors.New("scope required")
	ErrInvalidID              = errors.New("invalid id")
)
