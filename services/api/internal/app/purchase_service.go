package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/clock"
	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/domain"
)

type PurchaseRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	FindPurchaseByIdempotencyKey(ctx context.Context, ownerID, key string) (*domain.Purchase, error)
	CreatePurchase(ctx context.Context, p domain.Purchase) error
	AppendHoldings(ctx context.Context, holdings []domain.Holding) error
	ListHoldings(ctx context.Context, ownerID string) ([]domain.Holding, error)
}

// Ledger holds owners' point balances.
type Ledger interface {
	BalanceReader
	// DebitBalance fails with domain.ErrInsufficientFunds instead of going
	// negative.
	DebitBalance(ctx context.Context, ownerID string, amount int64) error
}

type SessionLookup interface {
	Get(id string) (*Session, error)
}

type PurchaseService struct {
	repo     PurchaseRepository
	ledger   Ledger
	claims   *ClaimManager
	sessions SessionLookup
	clock    clock.Clock
	logger   *zap.Logger
}

type PurchaseServiceOption func(*PurchaseService)

func WithPurchaseLogger(l *zap.Logger) PurchaseServiceOption {
	return func(s *PurchaseService) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewPurchaseService(repo PurchaseRepository, ledger Ledger, claims *ClaimManager, sessions SessionLookup, clk clock.Clock, opts ...PurchaseServiceOption) *PurchaseService {
	svc := &PurchaseService{
		repo:     repo,
		ledger:   ledger,
		claims:   claims,
		sessions: sessions,
		clock:    clk,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type PurchaseInput struct {
	SessionID      string
	IdempotencyKey string
}

type PurchaseResult struct {
	Purchase domain.Purchase
	Holdings []domain.Holding
	Created  bool
}

// Purchase sells the session's selections to its owner. The debit, the sold
// transitions, the purchase row and the holdings commit together or not at
// all.
func (p *PurchaseService) Purchase(ctx context.Context, in PurchaseInput) (PurchaseResult, error) {
	if in.IdempotencyKey == "" {
		return PurchaseResult{}, domain.ErrIdempotencyKeyRequired
	}
	s, err := p.sessions.Get(in.SessionID)
	if err != nil {
		return PurchaseResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return PurchaseResult{}, err
	}

	existing, err := p.repo.FindPurchaseByIdempotencyKey(ctx, s.ownerID, in.IdempotencyKey)
	if err != nil {
		return PurchaseResult{}, err
	}
	if existing != nil {
		if existing.SessionID != s.id {
			return PurchaseResult{}, domain.ErrIdempotencyConflict
		}
		return PurchaseResult{Purchase: *existing, Created: false}, nil
	}

	selections := s.orderedSelections()
	if len(selections) == 0 {
		return PurchaseResult{}, domain.ErrEmptySelection
	}
	var total int64
	claimIDs := make([]string, 0, len(selections))
	for _, sel := range selections {
		total += sel.SalePrice
		claimIDs = append(claimIDs, sel.ClaimID)
	}

	balance, err := p.ledger.GetBalance(ctx, s.ownerID)
	if err != nil {
		return PurchaseResult{}, err
	}
	if total > balance {
		return PurchaseResult{}, domain.ErrInsufficientFunds
	}

	now := p.clock.Now()
	purchase := domain.Purchase{
		ID:             newID(),
		OwnerID:        s.ownerID,
		SessionID:      s.id,
		IdempotencyKey: in.IdempotencyKey,
		Total:          total,
		UnitIDs:        claimIDs,
		CreatedAt:      now,
	}
	holdings := make([]domain.Holding, 0, len(selections))
	for _, sel := range selections {
		u := s.units[sel.ClaimID]
		holdings = append(holdings, domain.Holding{
			ID:             newID(),
			OwnerID:        s.ownerID,
			UnitID:         sel.ClaimID,
			PurchaseID:     purchase.ID,
			Scope:          u.Scope,
			RedemptionCode: u.RedemptionCode,
			OriginalPrice:  sel.OriginalPrice,
			SalePrice:      sel.SalePrice,
			Expiry:         u.Expiry,
			AcquiredAt:     now,
		})
	}

	err = p.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := p.ledger.DebitBalance(txCtx, s.ownerID, total); err != nil {
			return err
		}
		if _, err := p.claims.Finalize(txCtx, s.id, claimIDs); err != nil {
			return err
		}
		if err := p.repo.CreatePurchase(txCtx, purchase); err != nil {
			return err
		}
		return p.repo.AppendHoldings(txCtx, holdings)
	})
	if err != nil {
		var fe *FinalizeError
		if errors.As(err, &fe) {
			p.logger.Warn("purchase aborted, claims no longer held",
				zap.String("session_id", s.id),
				zap.Strings("claim_ids", fe.Failed),
			)
		}
		return PurchaseResult{}, err
	}

	s.forgetSold(claimIDs)
	p.logger.Info("purchase completed",
		zap.String("session_id", s.id),
		zap.String("purchase_id", purchase.ID),
		zap.Int("units", len(claimIDs)),
		zap.Int64("total", total),
	)
	return PurchaseResult{Purchase: purchase, Holdings: holdings, Created: true}, nil
}

// Holdings lists everything the owner has bought.
func (p *PurchaseService) Holdings(ctx context.Context, ownerID string) ([]domain.Holding, error) {
	if ownerID == "" {
		return nil, domain.ErrOwnerRequired
	}
	return p.repo.ListHoldings(ctx, ownerID)
}
