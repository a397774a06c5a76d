package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/domain"
)

const (
	codeNotFound             = "not_found"
	codeInvalidRequestBody   = "invalid_request_body"
	codeMissingRequiredField = "missing_required_field"
	codeInvalidID            = "invalid_id"
	codeOwnerRequired        = "owner_required"
	codeScopeRequired        = "scope_required"
	codeClaimConflict        = "claim_conflict"
	codeUnitUnavailable      = "unit_unavailable"
	codeUnitNotFound         = "unit_not_found"
	codeSessionNotFound      = "session_not_found"
	codeSessionClosed        = "session_closed"
	codeAlreadySelected      = "already_selected"
	codeNotSelected          = "not_selected"
	codeWrongMode            = "wrong_mode"
	codeInvalidBudget        = "invalid_budget"
	codeBudgetNotSet         = "budget_not_set"
	codeEmptySelection       = "empty_selection"
	codeInsufficientFunds    = "insufficient_funds"
	codeFinalizeIncomplete   = "finalize_incomplete"
	codeIdempotencyRequired  = "idempotency_key_required"
	codeIdempotencyConflict  = "idempotency_conflict"
	codeStoreUnavailable     = "store_unavailable"
	codeForbidden            = "forbidden"
	codeInternalError        = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

var serviceErrors = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrInvalidID, http.StatusBadRequest, codeInvalidID},
	{domain.ErrOwnerRequired, http.StatusBadRequest, codeOwnerRequired},
	{domain.ErrScopeRequired, http.StatusBadRequest, codeScopeRequired},
	{domain.ErrInvalidBudget, http.StatusBadRequest, codeInvalidBudget},
	{domain.ErrEmptySelection, http.StatusBadRequest, codeEmptySelection},
	{domain.ErrIdempotencyKeyRequired, http.StatusBadRequest, codeIdempotencyRequired},
	{domain.ErrSessionNotFound, http.StatusNotFound, codeSessionNotFound},
	{domain.ErrUnitNotFound, http.StatusNotFound, codeUnitNotFound},
	{domain.ErrNotSelected, http.StatusNotFound, codeNotSelected},
	{domain.ErrSessionClosed, http.StatusGone, codeSessionClosed},
	{domain.ErrClaimConflict, http.StatusConflict, codeClaimConflict},
	{domain.ErrUnitUnavailable, http.StatusConflict, codeUnitUnavailable},
	{domain.ErrInvariantViolation, http.StatusConflict, codeUnitUnavailable},
	{domain.ErrAlreadySelected, http.StatusConflict, codeAlreadySelected},
	{domain.ErrWrongMode, http.StatusConflict, codeWrongMode},
	{domain.ErrBudgetNotSet, http.StatusConflict, codeBudgetNotSet},
	{domain.ErrInsufficientFunds, http.StatusConflict, codeInsufficientFunds},
	{domain.ErrFinalizeIncomplete, http.StatusConflict, codeFinalizeIncomplete},
	{domain.ErrIdempotencyConflict, http.StatusConflict, codeIdempotencyConflict},
	{domain.ErrStoreUnavailable, http.StatusServiceUnavailable, codeStoreUnavailable},
}

// writeServiceError maps a service error onto a status and code. Unknown
// errors become a 500 without leaking their text.
func writeServiceError(w http.ResponseWriter, err error) {
	for _, e := range serviceErrors {
		if errors.Is(err, e.err) {
			msg := e.err.Error()
			if e.status == http.StatusServiceUnavailable {
				msg = "temporarily unavailable"
			}
			writeError(w, e.status, e.code, msg)
			return
		}
	}
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a strict JSON body and writes the 400 itself on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return false
	}
	return true
}
