package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cozy-creator/lesion-server/internal/app"
	"github.com/cozy-creator/lesion-server/internal/config"
	"github.com/cozy-creator/lesion-server/internal/model"
	"github.com/cozy-creator/lesion-server/internal/predictor"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{
		Host:           "127.0.0.1",
		Port:           5000,
		Environment:    "test",
		Locale:         "en",
		MaxUploadBytes: 1 << 20,
		Model:          &config.ModelConfig{ImageSize: 128},
		Classes:        config.DefaultClasses(),
	}

	a, err := app.NewApp(cfg, app.WithMetrics(), app.WithModelLoader(predictor.LoaderFunc(func(context.Context) *model.LoadedModel {
		return model.Unavailable()
	})))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	s, err := NewServer(cfg)
	require.NoError(t, err)
	s.SetupRoutes(a)
	return s
}

func TestServer(t *testing.T) {
	t.Run("Should answer the liveness probe", func(t *testing.T) {
		s := newTestServer(t)

		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("Should tag responses with a request id", func(t *testing.T) {
		s := newTestServer(t)

		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Len(t, rec.Header().Get(requestIDHeader), 36)

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set(requestIDHeader, "client-id")
		rec = httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, "client-id", rec.Header().Get(requestIDHeader))
	})

	t.Run("Should expose metrics and api routes", func(t *testing.T) {
		s := newTestServer(t)

		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `lesion_model_ready{provenance="unavailable"} 0`)

		rec = httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"ready":false`)
	})

	t.Run("Should map environments to gin modes", func(t *testing.T) {
		assert.Equal(t, gin.DebugMode, getGinMode("dev"))
		assert.Equal(t, gin.TestMode, getGinMode("test"))
		assert.Equal(t, gin.ReleaseMode, getGinMode("prod"))
	})
}
