// Package httpapi exposes the guardian over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ppiankov/scopeguard/internal/guardian"
	"github.com/ppiankov/scopeguard/internal/model"
	"github.com/ppiankov/scopeguard/internal/ratelimit"
)

// ScopeCheckPath is the evaluation endpoint.
const ScopeCheckPath = "/api/ai/scope-check"

const maxBodyBytes = 64 << 10

// Evaluator is the guardian as seen by the HTTP layer.
type Evaluator interface {
	Evaluate(ctx context.Context, req guardian.Request) (model.Decision, error)
}

// Limiter admits or rejects a user's scope check.
type Limiter interface {
	Allow(userID string) ratelimit.CheckResult
}

// Handler serves the scope-check API.
type Handler struct {
	eval    Evaluator
	secret  []byte
	limiter Limiter
	logger  *zap.Logger
}

// NewHandler creates a handler. Requests are authenticated with HS256
// tokens signed by secret; an empty secret rejects every request.
func NewHandler(eval Evaluator, secret []byte, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{eval: eval, secret: secret, logger: logger}
}

// WithLimiter rate-limits scope checks per authenticated user.
func (h *Handler) WithLimiter(l Limiter) *Handler {
	h.limiter = l
	return h
}

// RegisterRoutes registers the API routes on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.Handle(ScopeCheckPath, h.requireUser(http.HandlerFunc(h.handleScopeCheck))).Methods(http.MethodPost)
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
}

// Router returns a router with all routes registered.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r
}

type scopeCheckRequest struct {
	Message           string `json:"message"`
	ProjectID         string `json:"projectId"`
	PreviousSignature string `json:"previousSignature"`
}

func (h *Handler) handleScopeCheck(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil {
		if res := h.limiter.Allow(userFrom(r.Context())); res.Exceeded {
			h.logger.Warn("scope check rate limited",
				zap.String("user_id", res.UserID),
				zap.Int("limit", res.Limit))
			secs := int(res.RetryAfter.Seconds())
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeError(w, http.StatusTooManyRequests, res.Reason)
			return
		}
	}

	var body scopeCheckRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}
	prior, err := model.ParseSignature(body.PreviousSignature)
	if err != nil {
		writeError(w, http.StatusBadRequest, "previousSignature must be base64")
		return
	}

	decision, err := h.eval.Evaluate(r.Context(), guardian.Request{
		UserID:         userFrom(r.Context()),
		ProjectID:      body.ProjectID,
		Message:        body.Message,
		PriorSignature: prior,
	})
	if err != nil {
		h.writeEvalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (h *Handler) writeEvalError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *guardian.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, model.ErrProjectNotFound):
		writeError(w, http.StatusNotFound, "project not found")
	case errors.Is(err, guardian.ErrProviderUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Scope check is temporarily unavailable. Please try again.")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The turn is still audited; the client is usually gone.
		h.logger.Debug("scope check abandoned by client", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		h.logger.Error("scope check failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
