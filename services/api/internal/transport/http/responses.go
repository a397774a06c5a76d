package http

import (
	"time"

	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/app"
	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/domain"
)

const dateLayout = "2006-01-02"

type unitResponse struct {
	ID            string `json:"id"`
	Scope         string `json:"scope"`
	Expiry        string `json:"expiry"`
	OriginalPrice int64  `json:"original_price"`
	SalePrice     int64  `json:"sale_price"`
	Discount      int64  `json:"discount"`
	Efficiency    string `json:"efficiency"`
	Tier          int64  `json:"tier"`
}

func newUnitResponse(u domain.Unit) unitResponse {
	return unitResponse{
		ID:            u.ID,
		Scope:         u.Scope,
		Expiry:        u.Expiry.Format(dateLayout),
		OriginalPrice: u.OriginalPrice,
		SalePrice:     u.SalePrice,
		Discount:      u.Discount(),
		Efficiency:    u.Efficiency().StringFixed(4),
		Tier:          u.Tier(),
	}
}

func newUnitsResponse(units []domain.Unit) []unitResponse {
	out := make([]unitResponse, 0, len(units))
	for _, u := range units {
		out = append(out, newUnitResponse(u))
	}
	return out
}

type displayedUnitResponse struct {
	unitResponse
	Selected bool   `json:"selected"`
	Held     bool   `json:"held"`
	AddedFor string `json:"added_for,omitempty"`
}

type selectionResponse struct {
	UnitID        string `json:"unit_id"`
	ClaimID       string `json:"claim_id"`
	SalePrice     int64  `json:"sale_price"`
	OriginalPrice int64  `json:"original_price"`
}

func newSelectionResponse(sel domain.Selection) selectionResponse {
	return selectionResponse{
		UnitID:        sel.UnitID,
		ClaimID:       sel.ClaimID,
		SalePrice:     sel.SalePrice,
		OriginalPrice: sel.OriginalPrice,
	}
}

type sessionResponse struct {
	ID         string                  `json:"id"`
	OwnerID    string                  `json:"owner_id"`
	Scope      string                  `json:"scope"`
	Mode       string                  `json:"mode"`
	Budget     int64                   `json:"budget,omitempty"`
	Displayed  []displayedUnitResponse `json:"displayed"`
	Selections []selectionResponse     `json:"selections"`
	Total      int64                   `json:"total"`
}

func newSessionResponse(snap app.SessionSnapshot) sessionResponse {
	resp := sessionResponse{
		ID:         snap.ID,
		OwnerID:    snap.OwnerID,
		Scope:      snap.Scope,
		Mode:       string(snap.Mode),
		Budget:     snap.Budget,
		Displayed:  make([]displayedUnitResponse, 0, len(snap.Displayed)),
		Selections: make([]selectionResponse, 0, len(snap.Selections)),
		Total:      snap.Total,
	}
	for _, d := range snap.Displayed {
		resp.Displayed = append(resp.Displayed, displayedUnitResponse{
			unitResponse: newUnitResponse(d.Unit),
			Selected:     d.Selected,
			Held:         d.Held,
			AddedFor:     d.AddedFor,
		})
	}
	for _, sel := range snap.Selections {
		resp.Selections = append(resp.Selections, newSelectionResponse(sel))
	}
	return resp
}

type allocationResponse struct {
	Units           []unitResponse `json:"units"`
	Budget          int64          `json:"budget"`
	Points          int64          `json:"points"`
	RemainingBudget int64          `json:"remaining_budget"`
	RemainingPoints int64          `json:"remaining_points"`
	Spent           int64          `json:"spent"`
	NoMatches       bool           `json:"no_matches"`
}

func newAllocationResponse(res app.AllocationResult) allocationResponse {
	return allocationResponse{
		Units:           newUnitsResponse(res.Units),
		Budget:          res.Budget,
		Points:          res.Points,
		RemainingBudget: res.RemainingBudget,
		RemainingPoints: res.RemainingPoints,
		Spent:           res.Spent,
		NoMatches:       res.Exhausted,
	}
}

type holdingResponse struct {
	ID             string    `json:"id"`
	UnitID         string    `json:"unit_id"`
	PurchaseID     string    `json:"purchase_id"`
	Scope          string    `json:"scope"`
	RedemptionCode string    `json:"redemption_code"`
	OriginalPrice  int64     `json:"original_price"`
	SalePrice      int64     `json:"sale_price"`
	Expiry         string    `json:"expiry"`
	AcquiredAt     time.Time `json:"acquired_at"`
}

func newHoldingsResponse(holdings []domain.Holding) []holdingResponse {
	out := make([]holdingResponse, 0, len(holdings))
	for _, h := range holdings {
		out = append(out, holdingResponse{
			ID:             h.ID,
			UnitID:         h.UnitID,
			PurchaseID:     h.PurchaseID,
			Scope:          h.Scope,
			RedemptionCode: h.RedemptionCode,
			OriginalPrice:  h.OriginalPrice,
			SalePrice:      h.SalePrice,
			Expiry:         h.Expiry.Format(dateLayout),
			AcquiredAt:     h.AcquiredAt,
		})
	}
	return out
}

type purchaseResponse struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	Total     int64             `json:"total"`
	UnitIDs   []string          `json:"unit_ids"`
	CreatedAt time.Time         `json:"created_at"`
	Holdings  []holdingResponse `json:"holdings,omitempty"`
}
