package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/quillbooks/quillbooks/identity"
	"github.com/quillbooks/quillbooks/ledger"
	"github.com/quillbooks/quillbooks/storage"
)

// Stable error codes returned in the JSON envelope. Pipeline rejections use
// codes rather than prose so clients can branch without string matching.
const (
	codeValidation      = "validation_error"
	codeUnauthenticated = "unauthenticated"
	codeCSRFMismatch    = "csrf_mismatch"
	codeReadOnly        = "read_only"
	codeAccessDenied    = "access_denied"
	codeNotFound        = "not_found"
	codeRateLimited     = "rate_limited"
	codeInternal        = "internal_error"
	codeUpstream        = "upstream_unavailable"
)

// ErrorResponse is the uniform JSON error envelope.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, ctx context.Context, status int, code string) {
	writeJSON(w, status, ErrorResponse{Error: code, RequestID: requestIDFromContext(ctx)})
}

// mapError translates domain errors into the envelope. Access denials and
// missing ledgers both answer not_found so a caller cannot probe which
// ledger IDs exist. Raw upstream error text is never forwarded.
func (a *API) mapError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, ledger.ErrAccessDenied), errors.Is(err, ledger.ErrLedgerNotFound):
		writeError(w, ctx, http.StatusNotFound, codeNotFound)
	case errors.Is(err, ledger.ErrOrganizationNotFound), errors.Is(err, storage.ErrNotFound):
		writeError(w, ctx, http.StatusNotFound, codeNotFound)
	case errors.Is(err, identity.ErrInvalidSession):
		writeError(w, ctx, http.StatusUnauthorized, codeUnauthenticated)
	case errors.Is(err, ledger.ErrEngineRejected):
		writeError(w, ctx, http.StatusBadRequest, codeValidation)
	case errors.Is(err, ledger.ErrEngineUnavailable), errors.Is(err, identity.ErrUnavailable):
		a.logger.ErrorContext(ctx, "upstream failure",
			"error", err, "request_id", requestIDFromContext(ctx))
		writeError(w, ctx, http.StatusBadGateway, codeUpstream)
	default:
		a.logger.ErrorContext(ctx, "internal error",
			"error", err, "request_id", requestIDFromContext(ctx))
		writeError(w, ctx, http.StatusInternalServerError, codeInternal)
	}
}
