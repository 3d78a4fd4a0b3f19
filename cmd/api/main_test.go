package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"example.com/formcoach/internal/api"
	"example.com/formcoach/internal/bootstrap"
	"example.com/formcoach/internal/config"
)

func testRouter(t *testing.T) (http.Handler, config.Config) {
	t.Helper()
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("CHAT_PROVIDER", "mock")
	cfg, err := config.Load()
	require.NoError(t, err)

	store, err := bootstrap.OpenStore(t.Context(), cfg, zerolog.Nop())
	require.NoError(t, err)
	service, err := bootstrap.NewService(cfg, store, zerolog.Nop())
	require.NoError(t, err)
	uploads, err := api.NewUploadStore(t.TempDir(), cfg.MaxUploadBytes)
	require.NoError(t, err)

	return newRouter(cfg, api.NewHandler(service, uploads), zerolog.Nop()), cfg
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	router, _ := testRouter(t)

	for _, path := range []string{"/healthz", "/metrics"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rr.Code, path)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/analyses", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"items":[]}`, rr.Body.String())
}

func TestRouterAnswersPreflight(t *testing.T) {
	router, cfg := testRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/v1/chat", nil))

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, cfg.CORSOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestWriteTimeoutCoversQueueWaitAndRun(t *testing.T) {
	cfg := config.Config{AnalyzerQueueTimeout: time.Minute, AnalyzerTimeout: 2 * time.Minute}
	require.Greater(t, writeTimeout(cfg), cfg.AnalyzerQueueTimeout+cfg.AnalyzerTimeout)
}
