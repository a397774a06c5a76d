package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/clock"
	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/domain"
)

// BalanceReader reads an owner's point balance.
type BalanceReader interface {
	GetBalance(ctx context.Context, ownerID string) (int64, error)
}

// Session is one owner's browsing and purchase context. Its state only moves
// after the store has confirmed the matching transition. Operations on one
// session are serialized; sessions never share a lock.
type Session struct {
	id      string
	ownerID string
	scope   string

	catalog *Catalog
	claims  *ClaimManager
	ledger  BalanceReader
	clock   clock.Clock
	logger  *zap.Logger

	mu         sync.Mutex
	closed     bool
	mode       domain.SessionMode
	budget     int64
	displayed  []string
	units      map[string]domain.Unit
	selections map[string]domain.Selection
	held       map[string]struct{}
	relations  *RelationGraph
	lastActive time.Time
}

// DisplayedUnit is one row of the session's visible list.
type DisplayedUnit struct {
	Unit     domain.Unit
	Selected bool
	Held     bool
	// AddedFor is the unit this one was surfaced as an alternative to.
	AddedFor string
}

// SessionSnapshot is a copy of a session's visible state.
type SessionSnapshot struct {
	ID         string
	OwnerID    string
	Scope      string
	Mode       domain.SessionMode
	Budget     int64
	Displayed  []DisplayedUnit
	Selections []domain.Selection
	Total      int64
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) OwnerID() string {
	return s.ownerID
}

// LastActive reports when the session last served an operation.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) Snapshot() (SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return SessionSnapshot{}, err
	}

	snap := SessionSnapshot{
		ID:      s.id,
		OwnerID: s.ownerID,
		Scope:   s.scope,
		Mode:    s.mode,
		Budget:  s.budget,
	}
	for _, id := range s.displayed {
		_, selected := s.selections[id]
		_, held := s.held[id]
		parent, _ := s.relations.Parent(id)
		snap.Displayed = append(snap.Displayed, DisplayedUnit{
			Unit:     s.units[id],
			Selected: selected,
			Held:     held,
			AddedFor: parent,
		})
	}
	snap.Selections = s.orderedSelections()
	for _, sel := range snap.Selections {
		snap.Total += sel.SalePrice
	}
	return snap, nil
}

// Select claims unitID for this session and surfaces one same-tier
// alternative next to it. A unit the session already holds is selected
// without a new claim.
func (s *Session) Select(ctx context.Context, unitID string) (domain.Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return domain.Selection{}, err
	}
	if s.mode != domain.SessionModeInteractive {
		return domain.Selection{}, domain.ErrWrongMode
	}
	if _, ok := s.selections[unitID]; ok {
		return domain.Selection{}, domain.ErrAlreadySelected
	}

	unit, cached := s.units[unitID]
	if _, held := s.held[unitID]; !held || !cached {
		res, err := s.claims.Claim(ctx, s.id, unitID)
		if err != nil {
			return domain.Selection{}, err
		}
		if !res.Acquired() {
			s.replaceLost(ctx, unitID)
			return domain.Selection{}, domain.ErrClaimConflict
		}
		unit = res.Unit
		if err := s.offered(ctx, unit); err != nil {
			return domain.Selection{}, err
		}
		s.hold(unit)
		if !slices.Contains(s.displayed, unit.ID) {
			s.displayed = append(s.displayed, unit.ID)
		}
	}

	sel := domain.Selection{
		UnitID:        unit.ID,
		ClaimID:       unit.ID,
		SalePrice:     unit.SalePrice,
		OriginalPrice: unit.OriginalPrice,
	}
	s.selections[unit.ID] = sel
	s.expand(ctx, unit)
	return sel, nil
}

// Deselect releases the claim behind unitID and every alternative surfaced
// under it that is not itself selected. unitID stays displayed. The released
// alternatives are returned. Alternatives go first, so after a failed call
// unitID is still selected and the call can be repeated.
func (s *Session) Deselect(ctx context.Context, unitID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return nil, err
	}
	sel, ok := s.selections[unitID]
	if !ok {
		return nil, domain.ErrNotSelected
	}

	released, err := s.cascade(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("release alternatives of %s: %w", unitID, err)
	}
	if err := s.claims.Release(ctx, s.id, sel.ClaimID); err != nil {
		return nil, err
	}
	delete(s.selections, unitID)
	delete(s.held, sel.ClaimID)
	return released, nil
}

// SetBudget records the amount the allocator may spend in original price.
func (s *Session) SetBudget(amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return err
	}
	if amount <= 0 {
		return domain.ErrInvalidBudget
	}
	s.budget = amount
	return nil
}

// ConfirmBudget drops every claim the session holds and lets the allocator
// pick units for the configured budget, capped by the owner's points.
func (s *Session) ConfirmBudget(ctx context.Context) (AllocationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return AllocationResult{}, err
	}
	if s.budget <= 0 {
		return AllocationResult{}, domain.ErrBudgetNotSet
	}

	points, err := s.ledger.GetBalance(ctx, s.ownerID)
	if err != nil {
		return AllocationResult{}, err
	}
	if err := s.releaseAll(ctx); err != nil {
		return AllocationResult{}, err
	}
	s.mode = domain.SessionModeAllocator

	candidates, err := s.catalog.AllocationCandidates(ctx, s.scope)
	if err != nil {
		return AllocationResult{}, err
	}
	res, err := Allocate(ctx, candidates, s.budget, points, func(ctx context.Context, unitID string) (ClaimResult, error) {
		return s.claims.Claim(ctx, s.id, unitID)
	})
	if err != nil {
		if len(res.Units) > 0 {
			ids := make([]string, 0, len(res.Units))
			for _, u := range res.Units {
				ids = append(ids, u.ID)
			}
			if _, relErr := s.claims.ReleaseMany(ctx, s.id, ids); relErr != nil {
				for _, u := range res.Units {
					s.hold(u)
				}
				s.logger.Warn("allocation rollback incomplete, held until close",
					zap.String("session_id", s.id),
					zap.Strings("unit_ids", ids),
					zap.Error(relErr),
				)
			}
		}
		return AllocationResult{}, err
	}

	for _, u := range res.Units {
		s.hold(u)
		s.displayed = append(s.displayed, u.ID)
		s.selections[u.ID] = domain.Selection{
			UnitID:        u.ID,
			ClaimID:       u.ID,
			SalePrice:     u.SalePrice,
			OriginalPrice: u.OriginalPrice,
		}
	}
	s.logger.Info("budget allocated",
		zap.String("session_id", s.id),
		zap.Int64("budget", res.Budget),
		zap.Int64("points", res.Points),
		zap.Int("units", len(res.Units)),
		zap.Int64("spent", res.Spent),
	)
	return res, nil
}

// CancelBudget leaves allocator mode, releasing every allocated claim, and
// rebuilds the interactive recommendations.
func (s *Session) CancelBudget(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return err
	}
	if s.mode != domain.SessionModeAllocator {
		return domain.ErrWrongMode
	}
	if err := s.releaseAll(ctx); err != nil {
		return err
	}
	s.mode = domain.SessionModeInteractive
	return s.loadRecommendations(ctx)
}

// Close ends the session. Afterwards every claim it held that was not sold
// has been released, or the release was attempted and logged, and every
// other operation returns ErrSessionClosed. Close is safe to call twice.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	ids := s.heldIDs()
	var err error
	if len(ids) > 0 {
		_, err = s.claims.ReleaseMany(ctx, s.id, ids)
	}
	s.reset()
	s.logger.Debug("session closed",
		zap.String("session_id", s.id),
		zap.Int("released", len(ids)),
	)
	return err
}

func (s *Session) begin() error {
	if s.closed {
		return domain.ErrSessionClosed
	}
	s.lastActive = s.clock.Now()
	return nil
}

func (s *Session) loadRecommendations(ctx context.Context) error {
	recs, err := s.catalog.Recommendations(ctx, s.scope)
	if err != nil {
		return err
	}
	s.displayed = s.displayed[:0]
	for _, u := range recs {
		s.units[u.ID] = u
		s.displayed = append(s.displayed, u.ID)
	}
	return nil
}

// expand claims the best unsurfaced unit in origin's tier and shows it right
// after origin. Failures only cost the alternative.
func (s *Session) expand(ctx context.Context, origin domain.Unit) {
	log := s.logger.With(zap.String("session_id", s.id), zap.String("unit_id", origin.ID))

	candidates, err := s.catalog.Alternatives(ctx, origin.Scope, origin.Tier(), s.surfaced())
	if err != nil {
		log.Warn("expansion query failed", zap.Error(err))
		return
	}
	if len(candidates) == 0 {
		log.Debug("no alternative in tier", zap.Int64("tier", origin.Tier()))
		return
	}

	res, err := s.claims.Claim(ctx, s.id, candidates[0].ID)
	if err != nil {
		log.Warn("expansion claim failed", zap.String("candidate_id", candidates[0].ID), zap.Error(err))
		return
	}
	if !res.Acquired() {
		log.Debug("expansion lost race", zap.String("candidate_id", candidates[0].ID))
		return
	}

	alt := res.Unit
	s.hold(alt)
	s.relations.Add(alt.ID, origin.ID)
	s.insertAfter(origin.ID, alt.ID)
}

// cascade releases every unselected unit anywhere below origin. Selected
// units stay, but their own unselected alternatives go. State is untouched
// when the release fails.
func (s *Session) cascade(ctx context.Context, origin string) ([]string, error) {
	victims := s.relations.Descendants(origin, func(id string) bool {
		_, selected := s.selections[id]
		return selected
	})
	if len(victims) == 0 {
		return nil, nil
	}

	var claimIDs []string
	for _, id := range victims {
		if _, ok := s.held[id]; ok {
			claimIDs = append(claimIDs, id)
		}
	}
	if _, err := s.claims.ReleaseMany(ctx, s.id, claimIDs); err != nil {
		return nil, err
	}

	for _, id := range victims {
		s.relations.Remove(id)
		delete(s.held, id)
		delete(s.units, id)
		s.removeDisplayed(id)
	}
	return victims, nil
}

// offered rejects a freshly claimed unit that lies outside the session's
// scope or has expired, giving the claim back. A claim that cannot be given
// back stays held so Close releases it.
func (s *Session) offered(ctx context.Context, u domain.Unit) error {
	if u.Scope == s.scope && !u.ExpiredAt(s.clock.Now()) {
		return nil
	}
	if err := s.claims.Release(ctx, s.id, u.ID); err != nil {
		s.hold(u)
		s.logger.Warn("could not return unoffered unit",
			zap.String("session_id", s.id),
			zap.String("unit_id", u.ID),
			zap.Error(err),
		)
		return errors.Join(domain.ErrUnitUnavailable, err)
	}
	return domain.ErrUnitUnavailable
}

// replaceLost drops a unit another session won and shows the next best unit
// of the same tier in its place, unclaimed.
func (s *Session) replaceLost(ctx context.Context, unitID string) {
	lost, ok := s.units[unitID]
	idx := slices.Index(s.displayed, unitID)
	if !ok || idx < 0 {
		return
	}
	s.displayed = slices.Delete(s.displayed, idx, idx+1)
	delete(s.units, unitID)

	candidates, err := s.catalog.Alternatives(ctx, lost.Scope, lost.Tier(), s.surfaced())
	if err != nil || len(candidates) == 0 {
		return
	}
	next := candidates[0]
	s.units[next.ID] = next
	s.displayed = slices.Insert(s.displayed, idx, next.ID)
}

// releaseAll releases every held claim and clears the session state. The
// state is kept when the store call fails.
func (s *Session) releaseAll(ctx context.Context) error {
	if ids := s.heldIDs(); len(ids) > 0 {
		if _, err := s.claims.ReleaseMany(ctx, s.id, ids); err != nil {
			return err
		}
	}
	s.reset()
	return nil
}

func (s *Session) reset() {
	s.displayed = s.displayed[:0]
	clear(s.units)
	clear(s.selections)
	clear(s.held)
	s.relations.Reset()
}

func (s *Session) hold(u domain.Unit) {
	s.units[u.ID] = u
	s.held[u.ID] = struct{}{}
}

func (s *Session) heldIDs() []string {
	ids := make([]string, 0, len(s.held))
	for _, id := range s.displayed {
		if _, ok := s.held[id]; ok {
			ids = append(ids, id)
		}
	}
	for id := range s.held {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// surfaced lists every unit the session shows or holds.
func (s *Session) surfaced() []string {
	ids := slices.Clone(s.displayed)
	for id := range s.held {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Session) insertAfter(anchor, id string) {
	s.removeDisplayed(id)
	idx := slices.Index(s.displayed, anchor)
	if idx < 0 {
		s.displayed = append(s.displayed, id)
		return
	}
	s.displayed = slices.Insert(s.displayed, idx+1, id)
}

func (s *Session) removeDisplayed(id string) {
	if idx := slices.Index(s.displayed, id); idx >= 0 {
		s.displayed = slices.Delete(s.displayed, idx, idx+1)
	}
}

// orderedSelections returns selections in display order.
func (s *Session) orderedSelections() []domain.Selection {
	out := make([]domain.Selection, 0, len(s.selections))
	for _, id := range s.displayed {
		if sel, ok := s.selections[id]; ok {
			out = append(out, sel)
		}
	}
	return out
}

// forgetSold removes purchased units from every piece of session state.
func (s *Session) forgetSold(ids []string) {
	for _, id := range ids {
		delete(s.selections, id)
		delete(s.held, id)
		delete(s.units, id)
		s.relations.Remove(id)
		s.removeDisplayed(id)
	}
}
