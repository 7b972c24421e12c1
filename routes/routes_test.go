package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_report_backend/app"
	"signal_report_backend/config"
	"signal_report_backend/middleware"
	"signal_report_backend/models"
)

const testSecret = "routes-secret"

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	cfg := &config.Config{
		Environment:        "test",
		DBDriver:           "sqlite",
		SQLitePath:         filepath.Join(dir, "reports.db"),
		LedgerBackend:      "sql",
		JWTSecret:          testSecret,
		ReportTimezone:     "Africa/Johannesburg",
		SettingsCacheTTL:   30 * time.Second,
		SendTimeout:        2 * time.Second,
		JobsFile:           filepath.Join(dir, "jobs.yaml"),
		Channels:           []string{models.ChannelDashboard},
		OperatorRatePerMin: 30,
	}

	ctx, cancel := context.WithCancel(context.Background())
	a, err := app.New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		a.Shutdown(shutdownCtx)
	})

	router := gin.New()
	SetupRoutes(ctx, router, a)
	return router
}

func bearer(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Email:            "ops@khulafx.co.za",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func TestSetupRoutes_Probes(t *testing.T) {
	router := setupRouter(t)

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestSetupRoutes_APIRequiresToken(t *testing.T) {
	router := setupRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/notifiers", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSetupRoutes_OperatorFlow(t *testing.T) {
	router := setupRouter(t)
	auth := bearer(t)

	call := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Authorization", auth)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := call(http.MethodPost, "/api/v1/notifiers", `{"notifier_name":"Dashboard","is_enabled":false}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"updated_by":"ops@khulafx.co.za"`)

	w = call(http.MethodPost, "/api/v1/reports/dispatch", `{"job_id":"daily-report"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"status":"SKIPPED_DISABLED"`)

	w = call(http.MethodGet, "/api/v1/reports/daily?date=2024-06-03", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"win_rate":"0.00"`)

	w = call(http.MethodGet, "/api/v1/jobs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "weekly-report")
}
