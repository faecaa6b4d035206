package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/scopeguard/internal/guardian"
	"github.com/ppiankov/scopeguard/internal/model"
	"github.com/ppiankov/scopeguard/internal/ratelimit"
)

var testSecret = []byte("test-secret")

type fakeEvaluator struct {
	decision model.Decision
	err      error
	got      []guardian.Request
}

func (f *fakeEvaluator) Evaluate(_ context.Context, req guardian.Request) (model.Decision, error) {
	f.got = append(f.got, req)
	return f.decision, f.err
}

func token(t *testing.T, user string) string {
	t.Helper()
	tok, err := IssueToken(testSecret, user, time.Hour, time.Now())
	require.NoError(t, err)
	return tok
}

func post(t *testing.T, h http.Handler, auth, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, ScopeCheckPath, strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestScopeCheckAllowed(t *testing.T) {
	eval := &fakeEvaluator{decision: model.Decision{
		IsAllowed:         true,
		Reasoning:         "Video editing is in scope.",
		SuggestedResponse: "Sure, I'll trim it.",
		NewSignature:      model.NewSignature([]byte("sig-2")),
	}}
	h := NewHandler(eval, testSecret, nil).Router()

	rec := post(t, h, token(t, "user-7"),
		`{"message":"trim the intro","projectId":"promo","previousSignature":"c2lnLTE="}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["isAllowed"])
	assert.Equal(t, "Sure, I'll trim it.", resp["suggestedResponse"])
	assert.Equal(t, "c2lnLTI=", resp["signature"])

	require.Len(t, eval.got, 1)
	assert.Equal(t, "user-7", eval.got[0].UserID)
	assert.Equal(t, "promo", eval.got[0].ProjectID)
	assert.Equal(t, "trim the intro", eval.got[0].Message)
	assert.Equal(t, []byte("sig-1"), eval.got[0].PriorSignature.Bytes())
}

func TestScopeCheckAuth(t *testing.T) {
	expired, err := IssueToken(testSecret, "u", time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	foreign, err := IssueToken([]byte("other"), "u", time.Hour, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name string
		auth string
	}{
		{"missing", ""},
		{"garbage", "not-a-token"},
		{"expired", expired},
		{"wrong key", foreign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval := &fakeEvaluator{}
			rec := post(t, NewHandler(eval, testSecret, nil).Router(), tt.auth, `{"message":"hi","projectId":"p"}`)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Empty(t, eval.got)
		})
	}
}

func TestScopeCheckEmptySecretRejectsEverything(t *testing.T) {
	eval := &fakeEvaluator{}
	rec := post(t, NewHandler(eval, nil, nil).Router(), token(t, "u"), `{"message":"hi","projectId":"p"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestScopeCheckErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"validation", &guardian.ValidationError{Field: "message", Reason: "must not be empty"}, http.StatusBadRequest, "invalid message"},
		{"not found", fmt.Errorf("scope: %w", model.ErrProjectNotFound), http.StatusNotFound, "project not found"},
		{"unavailable", &guardian.ProviderUnavailableError{Provider: "stub", Err: context.DeadlineExceeded}, http.StatusServiceUnavailable, "temporarily unavailable"},
		{"internal", fmt.Errorf("disk on fire"), http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&fakeEvaluator{err: tt.err}, testSecret, nil).Router()
			rec := post(t, h, token(t, "u"), `{"message":"hi","projectId":"p"}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
			assert.NotContains(t, rec.Body.String(), "disk on fire")
		})
	}
}

func TestScopeCheckBadBody(t *testing.T) {
	h := NewHandler(&fakeEvaluator{}, testSecret, nil).Router()

	rec := post(t, h, token(t, "u"), `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(t, h, token(t, "u"), `{"message":"hi","projectId":"p","previousSignature":"%%%"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScopeCheckMethod(t *testing.T) {
	h := NewHandler(&fakeEvaluator{}, testSecret, nil).Router()
	req := httptest.NewRequest(http.MethodGet, ScopeCheckPath, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	h := NewHandler(&fakeEvaluator{}, testSecret, nil).Router()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestIssueTokenValidation(t *testing.T) {
	_, err := IssueToken(nil, "u", 0, time.Now())
	assert.Error(t, err)
	_, err = IssueToken(testSecret, " ", 0, time.Now())
	assert.Error(t, err)

	tok, err := IssueToken(testSecret, "u", 0, time.Now())
	require.NoError(t, err)
	sub, err := ParseToken(testSecret, tok)
	require.NoError(t, err)
	assert.Equal(t, "u", sub)
}

func TestScopeCheckRateLimited(t *testing.T) {
	eval := &fakeEvaluator{decision: model.Decision{IsAllowed: true, Reasoning: "ok"}}
	limiter := ratelimit.NewTracker(ratelimit.Config{"*": {MaxRequests: 1, Window: time.Minute}})
	h := NewHandler(eval, testSecret, nil).WithLimiter(limiter).Router()
	body := `{"message":"Trim the intro","projectId":"promo"}`

	rec := post(t, h, token(t, "user-7"), body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = post(t, h, token(t, "user-7"), body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
	assert.Len(t, eval.got, 1)

	rec = post(t, h, token(t, "user-8"), body)
	assert.Equal(t, http.StatusOK, rec.Code)
}
