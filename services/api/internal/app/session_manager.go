package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/clock"
	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/domain"
)

// SessionManager keeps the live sessions of this process. Its lock only
// guards the registry map.
type SessionManager struct {
	catalog *Catalog
	claims  *ClaimManager
	ledger  BalanceReader
	clock   clock.Clock
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

type SessionManagerOption func(*SessionManager)

func WithSessionLogger(l *zap.Logger) SessionManagerOption {
	return func(m *SessionManager) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewSessionManager(catalog *Catalog, claims *ClaimManager, ledger BalanceReader, clk clock.Clock, opts ...SessionManagerOption) *SessionManager {
	m := &SessionManager{
		catalog:  catalog,
		claims:   claims,
		ledger:   ledger,
		clock:    clk,
		logger:   zap.NewNop(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type OpenSessionInput struct {
	OwnerID string
	Scope   string
}

// Open starts an interactive session showing the scope's recommendations.
func (m *SessionManager) Open(ctx context.Context, in OpenSessionInput) (*Session, error) {
	if in.OwnerID == "" {
		return nil, domain.ErrOwnerRequired
	}
	if in.Scope == "" {
		return nil, domain.ErrScopeRequired
	}

	s := &Session{
		id:         newID(),
		ownerID:    in.OwnerID,
		scope:      in.Scope,
		catalog:    m.catalog,
		claims:     m.claims,
		ledger:     m.ledger,
		clock:      m.clock,
		mode:       domain.SessionModeInteractive,
		units:      make(map[string]domain.Unit),
		selections: make(map[string]domain.Selection),
		held:       make(map[string]struct{}),
		relations:  NewRelationGraph(),
		lastActive: m.clock.Now(),
	}
	s.logger = m.logger.With(zap.String("owner_id", in.OwnerID))
	if err := s.loadRecommendations(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Debug("session opened", zap.String("session_id", s.id), zap.String("scope", s.scope))
	return s, nil
}

// Start opens a session and returns its first snapshot.
func (m *SessionManager) Start(ctx context.Context, in OpenSessionInput) (SessionSnapshot, error) {
	s, err := m.Open(ctx, in)
	if err != nil {
		return SessionSnapshot{}, err
	}
	return s.Snapshot()
}

func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

func (m *SessionManager) Snapshot(id string) (SessionSnapshot, error) {
	s, err := m.Get(id)
	if err != nil {
		return SessionSnapshot{}, err
	}
	return s.Snapshot()
}

func (m *SessionManager) Select(ctx context.Context, id, unitID string) (domain.Selection, error) {
	s, err := m.Get(id)
	if err != nil {
		return domain.Selection{}, err
	}
	return s.Select(ctx, unitID)
}

func (m *SessionManager) Deselect(ctx context.Context, id, unitID string) ([]string, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return s.Deselect(ctx, unitID)
}

func (m *SessionManager) SetBudget(id string, amount int64) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return s.SetBudget(amount)
}

func (m *SessionManager) ConfirmBudget(ctx context.Context, id string) (AllocationResult, error) {
	s, err := m.Get(id)
	if err != nil {
		return AllocationResult{}, err
	}
	return s.ConfirmBudget(ctx)
}

func (m *SessionManager) CancelBudget(ctx context.Context, id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return s.CancelBudget(ctx)
}

// End removes the session and releases everything it still holds.
func (m *SessionManager) End(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	return s.Close(ctx)
}

// CloseIdle ends sessions that have not been used for idle.
func (m *SessionManager) CloseIdle(ctx context.Context, idle time.Duration) int {
	cutoff := m.clock.Now().Add(-idle)

	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	var stale []*Session
	for _, s := range all {
		if !s.LastActive().Before(cutoff) {
			continue
		}
		m.mu.Lock()
		if m.sessions[s.ID()] == s {
			delete(m.sessions, s.ID())
			stale = append(stale, s)
		}
		m.mu.Unlock()
	}

	for _, s := range stale {
		if err := s.Close(ctx); err != nil {
			m.logger.Warn("close idle session", zap.String("session_id", s.ID()), zap.Error(err))
		}
	}
	return len(stale)
}

// CloseAll ends every session; used on shutdown.
func (m *SessionManager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range all {
		if err := s.Close(ctx); err != nil {
			m.logger.Warn("close session on shutdown", zap.String("session_id", s.ID()), zap.Error(err))
		}
	}
}

// LiveIDs lists the sessions currently registered.
func (m *SessionManager) LiveIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}
