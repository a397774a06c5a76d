package http

import (
	"context"
	"net/http"

	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/app"
	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/domain"
)

const idempotencyHeader = "Idempotency-Key"

// Purchaser is the minimal interface needed to check out a session.
type Purchaser interface {
	Purchase(ctx context.Context, in app.PurchaseInput) (app.PurchaseResult, error)
}

// HoldingsLister is the minimal interface needed to list owned units.
type HoldingsLister interface {
	Holdings(ctx context.Context, ownerID string) ([]domain.Holding, error)
}

// HandlePurchase buys the session's selections. A replayed key answers 200
// with the original purchase.
func HandlePurchase(svc Purchaser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(idempotencyHeader)
		if key == "" {
			writeError(w, http.StatusBadRequest, codeIdempotencyRequired, domain.ErrIdempotencyKeyRequired.Error())
			return
		}

		res, err := svc.Purchase(r.Context(), app.PurchaseInput{
			SessionID:      r.PathValue("id"),
			IdempotencyKey: key,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		status := http.StatusOK
		if res.Created {
			status = http.StatusCreated
		}
		writeJSON(w, status, purchaseResponse{
			ID:        res.Purchase.ID,
			SessionID: res.Purchase.SessionID,
			Total:     res.Purchase.Total,
			UnitIDs:   res.Purchase.UnitIDs,
			CreatedAt: res.Purchase.CreatedAt,
			Holdings:  newHoldingsResponse(res.Holdings),
		})
	}
}

func HandleHoldings(svc HoldingsLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		holdings, err := svc.Holdings(r.Context(), r.PathValue("id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newHoldingsResponse(holdings))
	}
}
