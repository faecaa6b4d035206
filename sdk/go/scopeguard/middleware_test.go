package scopeguard

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queryExtract(r *http.Request) (CheckRequest, bool) {
	msg := r.URL.Query().Get("message")
	if msg == "" {
		return CheckRequest{}, false
	}
	return CheckRequest{
		UserID:    r.Header.Get("X-User-ID"),
		ProjectID: r.URL.Query().Get("project"),
		Message:   msg,
	}, true
}

func serve(t *testing.T, c *Client, target string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	c.Middleware(queryExtract)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, nil))
	return rec, reached
}

func TestMiddlewarePassesInScope(t *testing.T) {
	c := newTestClient(t, &scriptedProvider{})
	rec, reached := serve(t, c, "/chat?project=promo&message=Trim+the+intro")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached)
}

func TestMiddlewareBlocksOutOfScope(t *testing.T) {
	c := newTestClient(t, &scriptedProvider{})
	rec, reached := serve(t, c, "/chat?project=promo&message=Add+a+3D+flyover")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, reached)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["blocked"])
	assert.True(t, strings.Contains(body["suggestedResponse"].(string), "change order"))
}

func TestMiddlewareUnknownProject(t *testing.T) {
	c := newTestClient(t, &scriptedProvider{})
	rec, reached := serve(t, c, "/chat?project=ghost&message=hello")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, reached)
}

func TestMiddlewareProviderDown(t *testing.T) {
	c := newTestClient(t, &scriptedProvider{err: errors.New("timeout")})
	rec, reached := serve(t, c, "/chat?project=promo&message=Trim")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, reached)
}

func TestMiddlewareSkipsUnextracted(t *testing.T) {
	c := newTestClient(t, &scriptedProvider{})
	rec, reached := serve(t, c, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached)
}
