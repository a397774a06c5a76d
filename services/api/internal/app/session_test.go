package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/clock"
	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/domain"
)

// cafeUnits ranks as a2, a1, a3 in tier 5000 and b1, b2 in tier 3000.
func cafeUnits() []domain.Unit {
	exp := day(2025, 12, 31)
	return []domain.Unit{
		testUnit("a1", 5000, 4000, exp),
		testUnit("a2", 5200, 4100, exp),
		testUnit("a3", 5500, 4500, exp),
		testUnit("b1", 3000, 2500, exp),
		testUnit("b2", 3100, 2700, exp),
	}
}

type sessionFixture struct {
	store    *fakeStore
	clock    *clock.Manual
	claims   *ClaimManager
	sessions *SessionManager
}

func newSessionFixture(t *testing.T, units ...domain.Unit) sessionFixture {
	t.Helper()
	store := newFakeStore(units...)
	store.balances["owner-1"] = 10000
	clk := clock.NewManual(testNow)
	claims := NewClaimManager(store, clk)
	sessions := NewSessionManager(NewCatalog(store, clk), claims, store, clk)
	return sessionFixture{store: store, clock: clk, claims: claims, sessions: sessions}
}

func (f sessionFixture) open(t *testing.T) *Session {
	t.Helper()
	s, err := f.sessions.Open(context.Background(), OpenSessionInput{OwnerID: "owner-1", Scope: "cafe"})
	require.NoError(t, err)
	return s
}

func displayedIDs(t *testing.T, s *Session) []string {
	t.Helper()
	snap, err := s.Snapshot()
	require.NoError(t, err)
	ids := make([]string, 0, len(snap.Displayed))
	for _, d := range snap.Displayed {
		ids = append(ids, d.Unit.ID)
	}
	return ids
}

func TestSessionManager_Open(t *testing.T) {
	t.Parallel()

	t.Run("shows best unit per tier", func(t *testing.T) {
		f := newSessionFixture(t, cafeUnits()...)
		s := f.open(t)

		assert.Equal(t, []string{"a2", "b1"}, displayedIDs(t, s))
		snap, err := s.Snapshot()
		require.NoError(t, err)
		assert.Equal(t, domain.SessionModeInteractive, snap.Mode)
		assert.Empty(t, snap.Selections)
	})

	t.Run("skips expired units", func(t *testing.T) {
		units := cafeUnits()
		units[1].Expiry = day(2025, 9, 30)
		f := newSessionFixture(t, units...)

		assert.Equal(t, []string{"a1", "b1"}, displayedIDs(t, f.open(t)))
	})

	t.Run("validates input", func(t *testing.T) {
		f := newSessionFixture(t)
		_, err := f.sessions.Open(context.Background(), OpenSessionInput{Scope: "cafe"})
		require.ErrorIs(t, err, domain.ErrOwnerRequired)
		_, err = f.sessions.Open(context.Background(), OpenSessionInput{OwnerID: "owner-1"})
		require.ErrorIs(t, err, domain.ErrScopeRequired)
	})
}

func TestSession_SelectExpands(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t, cafeUnits()...)
	s := f.open(t)
	ctx := context.Background()

	sel, err := s.Select(ctx, "a2")
	require.NoError(t, err)
	assert.Equal(t, "a2", sel.ClaimID)
	assert.Equal(t, int64(4100), sel.SalePrice)

	assert.Equal(t, []string{"a2", "a1", "b1"}, displayedIDs(t, s))
	assert.Equal(t, domain.UnitStatusReserved, f.store.unit("a2").Status)
	assert.Equal(t, s.ID(), f.store.unit("a1").ReservedBy)
	assert.Equal(t, domain.UnitStatusAvailable, f.store.unit("a3").Status)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Displayed, 3)
	alt := snap.Displayed[1]
	assert.Equal(t, "a2", alt.AddedFor)
	assert.True(t, alt.Held)
	assert.False(t, alt.Selected)
	assert.Equal(t, int64(4100), snap.Total)

	_, err = s.Select(ctx, "a2")
	require.ErrorIs(t, err, domain.ErrAlreadySelected)
}

func TestSession_SelectConflictReplacesUnit(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t, cafeUnits()...)
	s := f.open(t)
	f.store.setStatus("a2", domain.UnitStatusReserved, "someone-else")

	_, err := s.Select(context.Background(), "a2")
	require.ErrorIs(t, err, domain.ErrClaimConflict)

	assert.Equal(t, []string{"a1", "b1"}, displayedIDs(t, s))
	assert.Equal(t, "someone-else", f.store.unit("a2").ReservedBy)
	assert.Equal(t, domain.UnitStatusAvailable, f.store.unit("a1").Status)
}

func TestSession_SelectStoreFailureKeepsState(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t, cafeUnits()...)
	s := f.open(t)
	f.store.updateErr = domain.ErrStoreUnavailable

	_, err := s.Select(context.Background(), "a2")
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap.Selections)
	assert.Equal(t, []string{"a2", "b1"}, displayedIDs(t, s))
}

func TestSession_DeselectCascades(t *testing.T) {
	t.Parallel()

	t.Run("releases unselected alternatives and keeps origin displayed", func(t *testing.T) {
		f := newSessionFixture(t, cafeUnits()...)
		s := f.open(t)
		ctx := context.Background()

		_, err := s.Select(ctx, "a2")
		require.NoError(t, err)

		released, err := s.Deselect(ctx, "a2")
		require.NoError(t, err)
		assert.Equal(t, []string{"a1"}, released)

		assert.Equal(t, []string{"a2", "b1"}, displayedIDs(t, s))
		assert.Equal(t, domain.UnitStatusAvailable, f.store.unit("a2").Status)
		assert.Equal(t, domain.UnitStatusAvailable, f.store.unit("a1").Status)

		_, err = s.Deselect(ctx, "a2")
		require.ErrorIs(t, err, domain.ErrNotSelected)
	})

	t.Run("selected alternative stays, its alternatives go", func(t *testing.T) {
		f := newSessionFixture(t, cafeUnits()...)
		s := f.open(t)
		ctx := context.Background()

		_, err := s.Select(ctx, "a2")
		require.NoError(t, err)
		_, err = s.Select(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, []string{"a2", "a1", "a3", "b1"}, displayedIDs(t, s))

		released, err := s.Deselect(ctx, "a2")
		require.NoError(t, err)
		assert.Equal(t, []string{"a3"}, released)
		assert.Equal(t, domain.UnitStatusAvailable, f.store.unit("a2").Status)
		assert.Equal(t, domain.UnitStatusReserved, f.store.unit("a1").Status)
		assert.Equal(t, domain.UnitStatusAvailable, f.store.unit("a3").Status)
		assert.Equal(t, []string{"a2", "a1", "b1"}, displayedIDs(t, s))

		released, err = s.Deselect(ctx, "a1")
		require.NoError(t, err)
		assert.Empty(t, released)
		assert.Equal(t, domain.UnitStatusAvailable, f.store.unit("a1").Status)
	})

	t.Run("failed release keeps the selection", func(t *testing.T) {
		f := newSessionFixture(t, cafeUnits()...)
		s := f.open(t)
		ctx := context.Background()

		_, err := s.Select(ctx, "a2")
		require.NoError(t, err)
		f.store.batchErr = domain.ErrStoreUnavailable

		released, err := s.Deselect(ctx, "a2")
		require.ErrorIs(t, err, domain.ErrStoreUnavailable)
		assert.Nil(t, released)
		assert.Equal(t, domain.UnitStatusReserved, f.store.unit("a2").Status)
		assert.Equal(t, domain.UnitStatusReserved, f.store.unit("a1").Status)
		assert.Equal(t, []string{"a2", "a1", "b1"}, displayedIDs(t, s))

		f.store.batchErr = nil
		released, err = s.Deselect(ctx, "a2")
		require.NoError(t, err)
		assert.Equal(t, []string{"a1"}, released)
		assert.Equal(t, domain.UnitStatusAvailable, f.store.unit("a2").Status)
	})
}

func TestSession_SelectRejectsUnofferedUnits(t *testing.T) {
	t.Parallel()

	expired := testUnit("old", 5000, 4000, day(2025, 9, 30))
	foreign := testUnit("bk1", 5000, 4000, day(2025, 12, 31))
	foreign.Scope = "bakery"

	for _, u := range []domain.Unit{expired, foreign} {
		t.Run(u.ID, func(t *testing.T) {
			f := newSessionFixture(t, append(cafeUnits(), u)...)
			s := f.open(t)

			_, err := s.Select(context.Background(), u.ID)
			require.ErrorIs(t, err, domain.ErrUnitUnavailable)

			assert.Equal(t, domain.UnitStatusAvailable, f.store.unit(u.ID).Status)
			assert.Equal(t, []string{"a2", "b1"}, displayedIDs(t, s))
			snap, err := s.Snapshot()
			require.NoError(t, err)
			assert.Empty(t, snap.Selections)
			assert.Equal(t, domain.UnitStatusAvailable, f.store.unit("a1").Status)
		})
	}
}

func TestSession_BudgetMode(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t, cafeUnits()...)
	s := f.open(t)
	ctx := context.Background()

	_, err := s.ConfirmBudget(ctx)
	require.ErrorIs(t, err, domain.ErrBudgetNotSet)
	require.ErrorIs(t, s.SetBudget(0), domain.ErrInvalidBudget)

	_, err = s.Select(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, domain.UnitStatusReserved, f.store.unit("b2").Status)

	require.NoError(t, s.SetBudget(9000))
	res, err := s.ConfirmBudget(ctx)
	require.NoError(t, err)

	require.Len(t, res.Units, 2)
	assert.Equal(t, "a2", res.Units[0].ID)
	assert.Equal(t, "b1", res.Units[1].ID)
	assert.Equal(t, int64(800), res.RemainingBudget)
	assert.Equal(t, int64(6600), res.Spent)
	assert.Equal(t, int64(3400), res.RemainingPoints)
	assert.Equal(t, domain.UnitStatusAvailable, f.store.unit("b2").Status)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, domain.SessionModeAllocator, snap.Mode)
	assert.Equal(t, int64(6600), snap.Total)

	_, err = s.Select(ctx, "a1")
	require.ErrorIs(t, err, domain.ErrWrongMode)

	require.NoError(t, s.CancelBudget(ctx))
	for _, u := range cafeUnits() {
		assert.Equal(t, domain.UnitStatusAvailable, f.store.unit(u.ID).Status, u.ID)
	}
	snap, err = s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, domain.SessionModeInteractive, snap.Mode)
	assert.Empty(t, snap.Selections)
	assert.Equal(t, []string{"a2", "b1"}, displayedIDs(t, s))

	require.ErrorIs(t, s.CancelBudget(ctx), domain.ErrWrongMode)
}

func TestSession_BudgetWithNoMatches(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t, cafeUnits()...)
	s := f.open(t)
	require.NoError(t, s.SetBudget(1000))

	res, err := s.ConfirmBudget(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Exhausted)
	assert.Empty(t, res.Units)
}

func TestSession_BudgetRollbackFailureIsLogged(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	f := newSessionFixture(t, cafeUnits()...)
	sessions := NewSessionManager(NewCatalog(f.store, f.clock), f.claims, f.store, f.clock, WithSessionLogger(zap.New(core)))
	s, err := sessions.Open(context.Background(), OpenSessionInput{OwnerID: "owner-1", Scope: "cafe"})
	require.NoError(t, err)

	f.store.claimErrs = map[string]error{"b1": domain.ErrStoreUnavailable}
	f.store.batchErr = domain.ErrStoreUnavailable
	require.NoError(t, s.SetBudget(9000))

	_, err = s.ConfirmBudget(context.Background())
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	assert.Equal(t, domain.UnitStatusReserved, f.store.unit("a2").Status)
	entries := logs.FilterMessage("allocation rollback incomplete, held until close").All()
	require.Len(t, entries, 1)
	assert.Equal(t, []interface{}{"a2"}, entries[0].ContextMap()["unit_ids"])

	f.store.batchErr = nil
	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, domain.UnitStatusAvailable, f.store.unit("a2").Status)
}

func TestSession_Close(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t, cafeUnits()...)
	s := f.open(t)
	ctx := context.Background()

	_, err := s.Select(ctx, "a2")
	require.NoError(t, err)
	_, err = s.Select(ctx, "b1")
	require.NoError(t, err)

	require.NoError(t, f.sessions.End(ctx, s.ID()))
	for _, u := range cafeUnits() {
		assert.Equal(t, domain.UnitStatusAvailable, f.store.unit(u.ID).Status, u.ID)
	}

	_, err = s.Snapshot()
	require.ErrorIs(t, err, domain.ErrSessionClosed)
	_, err = s.Select(ctx, "a3")
	require.ErrorIs(t, err, domain.ErrSessionClosed)
	require.NoError(t, s.Close(ctx))

	_, err = f.sessions.Get(s.ID())
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	require.ErrorIs(t, f.sessions.End(ctx, s.ID()), domain.ErrSessionNotFound)
}

func TestSession_CloseLeavesSoldUnits(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t, cafeUnits()...)
	s := f.open(t)
	ctx := context.Background()

	_, err := s.Select(ctx, "a2")
	require.NoError(t, err)
	f.store.setStatus("a1", domain.UnitStatusSold, "")

	require.NoError(t, s.Close(ctx))
	assert.Equal(t, domain.UnitStatusSold, f.store.unit("a1").Status)
	assert.Equal(t, domain.UnitStatusAvailable, f.store.unit("a2").Status)
}

func TestSweeper_Sweep(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t, cafeUnits()...)
	ctx := context.Background()
	idle := f.open(t)
	_, err := idle.Select(ctx, "a2")
	require.NoError(t, err)
	f.store.setStatus("b2", domain.UnitStatusReserved, "crashed-process-session")

	f.clock.Advance(5 * time.Minute)
	active := f.open(t)
	_, err = active.Select(ctx, "b1")
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	_, err = active.Snapshot()
	require.NoError(t, err)

	w := NewSweeper(f.sessions, f.claims, SweeperConfig{SessionIdle: 10 * time.Minute, ClaimTTL: 15 * time.Minute}, nil)
	res, err := w.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.ClosedSessions)
	assert.Equal(t, []string{"b2"}, res.ReleasedClaims)
	assert.Equal(t, domain.UnitStatusAvailable, f.store.unit("a2").Status)
	assert.Equal(t, domain.UnitStatusAvailable, f.store.unit("a1").Status)
	assert.Equal(t, domain.UnitStatusReserved, f.store.unit("b1").Status)

	_, err = f.sessions.Get(idle.ID())
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = f.sessions.Get(active.ID())
	require.NoError(t, err)
}
