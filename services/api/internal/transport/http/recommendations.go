package http

import (
	"context"
	"net/http"

	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/domain"
)

// Recommender is the minimal interface needed to list recommendations.
type Recommender interface {
	Recommendations(ctx context.Context, scope string) ([]domain.Unit, error)
}

// HandleRecommendations returns the best available unit of every price tier
// in the requested scope.
func HandleRecommendations(svc Recommender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope := r.URL.Query().Get("scope")
		if scope == "" {
			writeError(w, http.StatusBadRequest, codeScopeRequired, domain.ErrScopeRequired.Error())
			return
		}

		units, err := svc.Recommendations(r.Context(), scope)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newUnitsResponse(units))
	}
}
