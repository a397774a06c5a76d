package http

import "net/http"

// SessionAPI is everything the session routes need.
type SessionAPI interface {
	SessionStarter
	SessionReader
	SessionEnder
	Selector
	BudgetService
}

// PurchaseAPI is everything the purchase routes need.
type PurchaseAPI interface {
	Purchaser
	HoldingsLister
}

type Services struct {
	Health    Pinger
	Catalog   Recommender
	Sessions  SessionAPI
	Purchases PurchaseAPI
}

// NewRouter registers every route. Unknown paths answer a JSON 404.
func NewRouter(svc Services) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /health", HandleHealth(svc.Health))
	mux.Handle("GET /recommendations", HandleRecommendations(svc.Catalog))

	mux.Handle("POST /sessions", HandleOpenSession(svc.Sessions))
	mux.Handle("GET /sessions/{id}", HandleGetSession(svc.Sessions))
	mux.Handle("DELETE /sessions/{id}", HandleEndSession(svc.Sessions))
	mux.Handle("POST /sessions/{id}/selections", HandleSelect(svc.Sessions))
	mux.Handle("DELETE /sessions/{id}/selections/{unitID}", HandleDeselect(svc.Sessions))
	mux.Handle("PUT /sessions/{id}/budget", HandleSetBudget(svc.Sessions))
	mux.Handle("POST /sessions/{id}/budget/confirm", HandleConfirmBudget(svc.Sessions))
	mux.Handle("DELETE /sessions/{id}/budget", HandleCancelBudget(svc.Sessions))

	mux.Handle("POST /sessions/{id}/purchase", HandlePurchase(svc.Purchases))
	mux.Handle("GET /owners/{id}/holdings", HandleHoldings(svc.Purchases))

	mux.Handle("/", NotFoundHandler())
	return mux
}
