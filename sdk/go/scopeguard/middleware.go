package scopeguard

import (
	"encoding/json"
	"errors"
	"net/http"
)

// RequestFunc extracts the check request from an inbound HTTP request.
// Returning false passes the request through unchecked.
type RequestFunc func(r *http.Request) (CheckRequest, bool)

// Middleware returns an http.Handler that checks the chat message carried by
// each request before passing it to next. Out-of-scope messages receive a
// 403 with the decision as JSON; an unavailable provider yields a 503.
func (c *Client) Middleware(extract RequestFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req, ok := extract(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			result, err := c.Check(r.Context(), req)
			switch {
			case errors.Is(err, ErrProjectNotFound):
				writeJSON(w, http.StatusNotFound, map[string]any{"error": "project not found"})
				return
			case err != nil && result.Basis == BasisUnavailable:
				writeJSON(w, http.StatusServiceUnavailable, blockedBody(result))
				return
			case err != nil:
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
				return
			case !result.Allowed:
				writeJSON(w, http.StatusForbidden, blockedBody(result))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func blockedBody(r Result) map[string]any {
	return map[string]any{
		"blocked":           true,
		"reasoning":         r.Reasoning,
		"suggestedResponse": r.SuggestedResponse,
		"signature":         r.Signature,
		"basis":             string(r.Basis),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
