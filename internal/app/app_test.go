package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermes-erp/hermes/internal/accounting/mappings"
	"github.com/hermes-erp/hermes/internal/observability"
	"github.com/hermes-erp/hermes/internal/shared"
	_ "github.com/hermes-erp/hermes/internal/testing/guard"
	"github.com/hermes-erp/hermes/jobs"
)

func TestTestModeFlag(t *testing.T) {
	require.True(t, InTestMode())
	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	require.False(t, InTestMode())
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, "0.18", cfg.TaxRate().String())
	assert.Equal(t, int64(1), cfg.SalesWarehouseID)
	assert.Equal(t, 10*time.Minute, cfg.CurrencyCacheTTL)
	assert.Equal(t, mappings.Defaults(), cfg.RoleMap())
	assert.False(t, cfg.IsProduction())
}

func TestLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("module", "sales"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "sales", entry["module"])

	buf.Reset()
	newLogger(&Config{LogLevel: "loud"}, &buf).Info("fallback")
	assert.Contains(t, buf.String(), "msg=fallback")
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SALES_TAX_RATE", "0.19")
	t.Setenv("ACCOUNT_ROLES", "accounts-payable:220510,cash:111005")
	t.Setenv("ALLOW_NEGATIVE_STOCK", "true")
	t.Setenv("WORKER_CONCURRENCY", "12")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 12, cfg.WorkerConcurrency)
	assert.Equal(t, "0.19", cfg.TaxRate().String())
	assert.True(t, cfg.AllowNegativeStock)

	roles := cfg.RoleMap()
	assert.Equal(t, "220510", roles[mappings.RoleAccountsPayable])
	assert.Equal(t, "111005", roles[mappings.RoleCash])
	assert.Equal(t, "130505", roles[mappings.RoleAccountsReceivable])
}

func TestLoadConfigRejectsBadTaxRate(t *testing.T) {
	for _, rate := range []string{"abc", "-0.1", "1"} {
		t.Setenv("SALES_TAX_RATE", rate)
		_, err := LoadConfig()
		assert.Error(t, err, rate)
	}
}

func TestRouterHealthAndHeaders(t *testing.T) {
	router := NewRouter(RouterParams{
		Config:     &Config{AppRequestTimeout: time.Second},
		JobHandler: jobs.NewHandler(nil, nil, jobs.Sources{}, nil),
		Metrics:    observability.NewMetrics(),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Queues []struct {
			Queue   string `json:"queue"`
			Pending int    `json:"pending"`
		} `json:"queues"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Queues, 2)
	assert.Equal(t, jobs.QueuePostings, body.Queues[0].Queue)
	assert.Equal(t, jobs.QueueDefault, body.Queues[1].Queue)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `hermes_http_requests_total{code="200",route="/healthz"} 1`)
}

func TestPostingSourcesSkipsMissingServices(t *testing.T) {
	assert.Empty(t, PostingSources(nil, nil, nil))
}

type memoryKeys struct {
	keys map[string]string
}

func (m *memoryKeys) CheckAndInsert(ctx context.Context, key, module string) error {
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = module
	return nil
}

func (m *memoryKeys) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

func TestIdempotencyMiddleware(t *testing.T) {
	store := &memoryKeys{keys: map[string]string{}}
	calls := 0
	status := http.StatusCreated
	handler := Idempotency(store, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	}))
	send := func(method, key string) int {
		req := httptest.NewRequest(method, "/sales/invoices", nil)
		if key != "" {
			req.Header.Set(IdempotencyKeyHeader, key)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusCreated, send(http.MethodPost, "k1"))
	assert.Equal(t, http.StatusConflict, send(http.MethodPost, "k1"))
	assert.Equal(t, 1, calls)
	assert.Equal(t, "/sales/invoices", store.keys["k1"])

	status = http.StatusBadRequest
	assert.Equal(t, http.StatusBadRequest, send(http.MethodPost, "k2"))
	assert.NotContains(t, store.keys, "k2", "failed requests release their key")

	status = http.StatusOK
	assert.Equal(t, http.StatusOK, send(http.MethodPost, ""))
	assert.Equal(t, http.StatusOK, send(http.MethodGet, "k1"))
	assert.Equal(t, 4, calls)
}
