package http

import (
	"context"
	"net/http"

	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/app"
	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/domain"
)

// Selector is the minimal interface needed to change a session's selections.
type Selector interface {
	Select(ctx context.Context, sessionID, unitID string) (domain.Selection, error)
	Deselect(ctx context.Context, sessionID, unitID string) ([]string, error)
	Snapshot(id string) (app.SessionSnapshot, error)
}

type selectRequest struct {
	UnitID string `json:"unit_id"`
}

type selectResponse struct {
	Selection selectionResponse `json:"selection"`
	Session   sessionResponse   `json:"session"`
}

type deselectResponse struct {
	Released []string        `json:"released"`
	Session  sessionResponse `json:"session"`
}

// HandleSelect claims a unit for the session. A lost race answers 409 and
// the session already shows a replacement.
func HandleSelect(svc Selector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req selectRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.UnitID == "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "unit_id is required")
			return
		}

		sessionID := r.PathValue("id")
		sel, err := svc.Select(r.Context(), sessionID, req.UnitID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		snap, err := svc.Snapshot(sessionID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, selectResponse{
			Selection: newSelectionResponse(sel),
			Session:   newSessionResponse(snap),
		})
	}
}

// HandleDeselect releases a selection and the alternatives surfaced for it.
func HandleDeselect(svc Selector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		released, err := svc.Deselect(r.Context(), sessionID, r.PathValue("unitID"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		snap, err := svc.Snapshot(sessionID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if released == nil {
			released = []string{}
		}
		writeJSON(w, http.StatusOK, deselectResponse{
			Released: released,
			Session:  newSessionResponse(snap),
		})
	}
}
