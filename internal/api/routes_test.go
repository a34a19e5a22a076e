package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MacJediWizard/tenancy/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// pingStore satisfies Store for routes that only touch health checks.
type pingStore struct {
	Store
}

func (pingStore) Ping(context.Context) error { return nil }

func (pingStore) Health() map[string]any { return map[string]any{} }

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := metrics.NewPrometheusMetrics(reg)
	require.NoError(t, err)

	router, err := NewRouter(DefaultConfig(), Dependencies{
		Store:    pingStore{},
		Metrics:  m,
		Gatherer: reg,
	}, zerolog.Nop())
	require.NoError(t, err)
	return router
}

func serve(r *Router, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestRouter_Health(t *testing.T) {
	r := newTestRouter(t)

	w := serve(r, http.MethodGet, "/health/ready")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestRouter_AuthenticationRequired(t *testing.T) {
	r := newTestRouter(t)

	w := serve(r, http.MethodGet, "/api/v1/me/memberships")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodPost, "/api/v1/organizations")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// The tenant context endpoint answers anonymous callers with an empty context.
	w = serve(r, http.MethodGet, "/api/v1/me/context")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_Metrics(t *testing.T) {
	r := newTestRouter(t)

	serve(r, http.MethodGet, "/health")
	w := serve(r, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `tenancy_http_request_duration_seconds_count{method="GET",route="/health",status="200"} 1`)
}

func TestRouter_Docs(t *testing.T) {
	r := newTestRouter(t)

	w := serve(r, http.MethodGet, "/api/docs/doc.json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"title": "Tenancy API"`)
	assert.Contains(t, w.Body.String(), "/organizations/{id}/invitations")

	cfg := DefaultConfig()
	cfg.EnableDocs = false
	hidden, err := NewRouter(cfg, Dependencies{Store: pingStore{}}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, serve(hidden, http.MethodGet, "/api/docs/doc.json").Code)
}
