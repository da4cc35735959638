package routers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/haierkeys/psnotes-service/internal/app"
	"github.com/haierkeys/psnotes-service/internal/dao"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestApp(t *testing.T, yaml string) *app.App {
	t.Helper()
	cfg, err := app.ParseConfig([]byte(yaml))
	require.NoError(t, err)
	cfg.Database.Path = ":memory:"

	db, err := dao.NewDBEngineWithConfig(cfg.GetDatabaseConfig(), zap.NewNop())
	require.NoError(t, err)

	a, err := app.NewApp(context.Background(), cfg, zap.NewNop(), db, app.WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a
}

func TestNewRouter_Routes(t *testing.T) {
	a := newTestApp(t, "events:\n  publisher: none\n")
	r := NewRouter(a, ut.New(en.New(), en.New(), zh.New()))

	req := httptest.NewRequest(http.MethodPost, "/api/notes/alice", strings.NewReader(`{"title":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/notes/alice", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewRouter_RateLimit(t *testing.T) {
	a := newTestApp(t, `
events:
  publisher: none
limiter:
  enabled: true
  rules:
    - key: /api/version
      fill-interval: 1h
      capacity: 1
      quantum: 1
`)
	r := NewRouter(a, ut.New(en.New(), en.New()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestNewPrivateRouter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "psnotes_test_total"})
	reg.MustRegister(c)
	c.Inc()

	r := NewPrivateRouterWithLogger("release", zap.NewNop(), reg)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "psnotes_test_total 1")
}

func TestNewPrivateRouter_Expvar(t *testing.T) {
	r := NewPrivateRouterWithLogger("release", zap.NewNop(), prometheus.NewRegistry())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	for _, key := range []string{`"goroutines"`, `"uptime_seconds"`, `"memstats"`} {
		assert.Contains(t, w.Body.String(), key)
	}
}
