package http

import (
	"context"
	"net/http"

	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/app"
	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/domain"
)

// SessionStarter is the minimal interface needed to open a session.
type SessionStarter interface {
	Start(ctx context.Context, in app.OpenSessionInput) (app.SessionSnapshot, error)
}

// SessionReader is the minimal interface needed to show a session.
type SessionReader interface {
	Snapshot(id string) (app.SessionSnapshot, error)
}

// SessionEnder is the minimal interface needed to end a session.
type SessionEnder interface {
	End(ctx context.Context, id string) error
}

type openSessionRequest struct {
	OwnerID string `json:"owner_id"`
	Scope   string `json:"scope"`
}

func (r openSessionRequest) validate() error {
	if r.OwnerID == "" {
		return domain.ErrOwnerRequired
	}
	if r.Scope == "" {
		return domain.ErrScopeRequired
	}
	return nil
}

// HandleOpenSession starts an interactive session and returns its
// recommendations.
func HandleOpenSession(svc SessionStarter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req openSessionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := req.validate(); err != nil {
			writeServiceError(w, err)
			return
		}

		snap, err := svc.Start(r.Context(), app.OpenSessionInput{
			OwnerID: req.OwnerID,
			Scope:   req.Scope,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, newSessionResponse(snap))
	}
}

func HandleGetSession(svc SessionReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := svc.Snapshot(r.PathValue("id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newSessionResponse(snap))
	}
}

// HandleEndSession closes the session and releases every claim it holds.
func HandleEndSession(svc SessionEnder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.End(r.Context(), r.PathValue("id")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
