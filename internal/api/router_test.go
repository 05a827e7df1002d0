package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/valuecheck/internal/api/handlers"
	"github.com/wonny/valuecheck/internal/fetcher/memory"
	"github.com/wonny/valuecheck/internal/strategyconfig"
	"github.com/wonny/valuecheck/pkg/logger"
	"github.com/wonny/valuecheck/pkg/redis"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	store := memory.New()
	store.AddCompanies("AAA", "BBB")

	evalH, err := handlers.NewEvaluationHandler(store, store, strategyconfig.Default(), redis.NewCache(redis.Disabled(), "test"), logger.Nop())
	require.NoError(t, err)
	return NewRouter(evalH, handlers.NewBacktestHandler(store, store, 1, logger.Nop()), logger.Nop())
}

func TestRouter_Health(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "valuecheck-api", body["service"])
}

func TestRouter_Routes(t *testing.T) {
	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/api/companies", http.StatusOK},
		{http.MethodGet, "/api/companies/aaa/evaluation?date=2020-01-02", http.StatusNotFound},
		{http.MethodGet, "/api/companies/AAA/evaluation", http.StatusBadRequest},
		{http.MethodGet, "/api/backtests", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/companies", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/companies/AAA/evaluation", http.StatusMethodNotAllowed},
		{http.MethodPut, "/health", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}

	router := testRouter(t)
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}
