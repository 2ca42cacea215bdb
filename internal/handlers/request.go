package handlers

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/storefront-field/quote-api/internal/platform/auth"
	"github.com/storefront-field/quote-api/internal/platform/httpx"
	"github.com/storefront-field/quote-api/internal/platform/requestctx"
)

// decodeJSONBody decodes a bounded JSON body into dst, writing a 400/413 envelope and
// returning false on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, limit int64) bool {
	ctx := r.Context()
	if r.Body == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return false
	}
	err := httpx.DecodeJSON(r, dst, limit)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, io.EOF):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload: "+err.Error(), http.StatusBadRequest))
	}
	return false
}

// requireIdentity returns the authenticated caller or writes a 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

// clientKey identifies the caller for rate limiting: the buyer session when present,
// otherwise the remote address.
func clientKey(r *http.Request) string {
	if session := requestctx.SessionID(r.Context()); session != "" {
		return "session:" + session
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		host = strings.TrimSpace(r.RemoteAddr)
	}
	return "ip:" + host
}

// money renders an amount as a JSON number rounded to paise.
func money(amount decimal.Decimal) float64 {
	return amount.Round(2).InexactFloat64()
}

func parseBoolFlag(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return false, true
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	default:
		return false, false
	}
}
