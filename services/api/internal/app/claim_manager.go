package app

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/clock"
	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/domain"
)

// InventoryStore is the shared unit pool. Status changes only go through the
// conditional update methods.
type InventoryStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	QueryUnits(ctx context.Context, q domain.UnitQuery) ([]domain.Unit, error)
	GetUnit(ctx context.Context, unitID string) (domain.Unit, error)
	// ConditionalUpdateStatus applies t only when the unit still matches t.From
	// (and the holder, for reserved). It reports whether the row changed and
	// returns the unit as stored afterwards.
	ConditionalUpdateStatus(ctx context.Context, t domain.Transition) (domain.Unit, bool, error)
	// BatchUpdateStatus applies t to every matching unit and returns the ids
	// that changed.
	BatchUpdateStatus(ctx context.Context, t domain.BatchTransition) ([]string, error)
	// ReleaseStale frees reservations taken before the cutoff, skipping the
	// listed sessions.
	ReleaseStale(ctx context.Context, before time.Time, keepSessions []string) ([]string, error)
}

type ClaimOutcome int

const (
	ClaimAcquired ClaimOutcome = iota
	ClaimConflict
)

func (o ClaimOutcome) String() string {
	if o == ClaimAcquired {
		return "acquired"
	}
	return "conflict"
}

// ClaimResult is the typed outcome of a claim attempt. A lost race is not an
// error: the caller re-queries and picks another unit.
type ClaimResult struct {
	ClaimID string
	Unit    domain.Unit
	Outcome ClaimOutcome
}

func (r ClaimResult) Acquired() bool {
	return r.Outcome == ClaimAcquired
}

// FinalizeResult lists the claims moved to sold.
type FinalizeResult struct {
	Finalized []string
}

// FinalizeError is returned when some claims could not be sold.
type FinalizeError struct {
	Failed []string
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("finalize incomplete: %d claim(s) not held: %v", len(e.Failed), e.Failed)
}

func (e *FinalizeError) Unwrap() error {
	return domain.ErrFinalizeIncomplete
}

// ClaimManager owns every status transition of a unit.
type ClaimManager struct {
	store  InventoryStore
	clock  clock.Clock
	logger *zap.Logger
}

type ClaimManagerOption func(*ClaimManager)

// WithClaimLogger sets the logger used for best-effort failures.
func WithClaimLogger(l *zap.Logger) ClaimManagerOption {
	return func(m *ClaimManager) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewClaimManager(store InventoryStore, clk clock.Clock, opts ...ClaimManagerOption) *ClaimManager {
	m := &ClaimManager{
		store:  store,
		clock:  clk,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Claim moves unitID from available to reserved for sessionID in a single
// conditional update.
func (m *ClaimManager) Claim(ctx context.Context, sessionID, unitID string) (ClaimResult, error) {
	if sessionID == "" || unitID == "" {
		return ClaimResult{}, domain.ErrInvalidID
	}

	unit, applied, err := m.store.ConditionalUpdateStatus(ctx, domain.Transition{
		UnitID:    unitID,
		From:      domain.UnitStatusAvailable,
		To:        domain.UnitStatusReserved,
		SessionID: sessionID,
		At:        m.clock.Now(),
	})
	if err != nil {
		return ClaimResult{}, err
	}
	if applied {
		return ClaimResult{ClaimID: unit.ID, Unit: unit, Outcome: ClaimAcquired}, nil
	}

	current, err := m.store.GetUnit(ctx, unitID)
	if err != nil {
		return ClaimResult{}, err
	}
	switch {
	case current.Status == domain.UnitStatusSold:
		m.logger.Error("refused claim on sold unit",
			zap.String("session_id", sessionID),
			zap.String("unit_id", unitID),
		)
		return ClaimResult{}, fmt.Errorf("claim sold unit %s: %w", unitID, domain.ErrInvariantViolation)
	case current.Status == domain.UnitStatusReserved && current.ReservedBy == sessionID:
		return ClaimResult{ClaimID: current.ID, Unit: current, Outcome: ClaimAcquired}, nil
	default:
		return ClaimResult{ClaimID: "", Unit: current, Outcome: ClaimConflict}, nil
	}
}

// Release returns a claim to the pool. Releasing an available unit, or one
// that another session has since claimed, is a no-op.
func (m *ClaimManager) Release(ctx context.Context, sessionID, claimID string) error {
	if sessionID == "" || claimID == "" {
		return domain.ErrInvalidID
	}

	_, applied, err := m.store.ConditionalUpdateStatus(ctx, domain.Transition{
		UnitID:    claimID,
		From:      domain.UnitStatusReserved,
		To:        domain.UnitStatusAvailable,
		SessionID: sessionID,
		At:        m.clock.Now(),
	})
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	current, err := m.store.GetUnit(ctx, claimID)
	if err != nil {
		return err
	}
	switch current.Status {
	case domain.UnitStatusSold:
		m.logger.Error("refused release of sold unit",
			zap.String("session_id", sessionID),
			zap.String("unit_id", claimID),
		)
		return fmt.Errorf("release sold unit %s: %w", claimID, domain.ErrInvariantViolation)
	case domain.UnitStatusReserved:
		m.logger.Debug("release skipped, unit held by another session",
			zap.String("session_id", sessionID),
			zap.String("unit_id", claimID),
		)
	}
	return nil
}

// ReleaseMany releases claims in one batch. Claims that did not transition
// are logged and not retried. The released ids are returned.
func (m *ClaimManager) ReleaseMany(ctx context.Context, sessionID string, claimIDs []string) ([]string, error) {
	claimIDs = uniqueIDs(claimIDs)
	if len(claimIDs) == 0 {
		return nil, nil
	}

	released, err := m.store.BatchUpdateStatus(ctx, domain.BatchTransition{
		UnitIDs:   claimIDs,
		From:      domain.UnitStatusReserved,
		To:        domain.UnitStatusAvailable,
		SessionID: sessionID,
		At:        m.clock.Now(),
	})
	if err != nil {
		m.logger.Warn("batch release failed",
			zap.String("session_id", sessionID),
			zap.Strings("claim_ids", claimIDs),
			zap.Error(err),
		)
		return nil, err
	}
	if missed := difference(claimIDs, released); len(missed) > 0 {
		m.logger.Warn("claims not released",
			zap.String("session_id", sessionID),
			zap.Strings("claim_ids", missed),
		)
	}
	return released, nil
}

// Finalize moves the session's claims to sold. Any claim the session no
// longer holds fails the whole call; run it inside a transaction to keep the
// batch all-or-nothing.
func (m *ClaimManager) Finalize(ctx context.Context, sessionID string, claimIDs []string) (FinalizeResult, error) {
	claimIDs = uniqueIDs(claimIDs)
	if len(claimIDs) == 0 {
		return FinalizeResult{}, domain.ErrEmptySelection
	}

	sold, err := m.store.BatchUpdateStatus(ctx, domain.BatchTransition{
		UnitIDs:   claimIDs,
		From:      domain.UnitStatusReserved,
		To:        domain.UnitStatusSold,
		SessionID: sessionID,
		At:        m.clock.Now(),
	})
	if err != nil {
		return FinalizeResult{}, err
	}
	if failed := difference(claimIDs, sold); len(failed) > 0 {
		return FinalizeResult{Finalized: sold}, &FinalizeError{Failed: failed}
	}
	return FinalizeResult{Finalized: sold}, nil
}

// ReleaseStale frees reservations older than ttl that belong to none of the
// live sessions.
func (m *ClaimManager) ReleaseStale(ctx context.Context, ttl time.Duration, liveSessions []string) ([]string, error) {
	cutoff := m.clock.Now().Add(-ttl)
	released, err := m.store.ReleaseStale(ctx, cutoff, liveSessions)
	if err != nil {
		return nil, err
	}
	if len(released) > 0 {
		m.logger.Info("released stale claims",
			zap.Int("count", len(released)),
			zap.Time("cutoff", cutoff),
		)
	}
	return released, nil
}

func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// difference returns the ids in all that are not in done, keeping order.
func difference(all, done []string) []string {
	var out []string
	for _, id := range all {
		if !slices.Contains(done, id) {
			out = append(out, id)
		}
	}
	return out
}
