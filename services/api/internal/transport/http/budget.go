package http

import (
	"context"
	"net/http"

	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/app"
)

// BudgetService is the minimal interface needed for allocator mode.
type BudgetService interface {
	SetBudget(sessionID string, amount int64) error
	ConfirmBudget(ctx context.Context, sessionID string) (app.AllocationResult, error)
	CancelBudget(ctx context.Context, sessionID string) error
	Snapshot(id string) (app.SessionSnapshot, error)
}

type setBudgetRequest struct {
	Amount int64 `json:"amount"`
}

func HandleSetBudget(svc BudgetService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setBudgetRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := svc.SetBudget(r.PathValue("id"), req.Amount); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleConfirmBudget switches the session to allocator mode and claims
// units for the configured budget. Nothing fitting is reported with
// no_matches, not as an error.
func HandleConfirmBudget(svc BudgetService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.ConfirmBudget(r.Context(), r.PathValue("id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newAllocationResponse(res))
	}
}

// HandleCancelBudget returns the session to interactive mode.
func HandleCancelBudget(svc BudgetService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if err := svc.CancelBudget(r.Context(), sessionID); err != nil {
			writeServiceError(w, err)
			return
		}
		snap, err := svc.Snapshot(sessionID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newSessionResponse(snap))
	}
}
