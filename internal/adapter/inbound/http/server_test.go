package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/verdant-market/storecore/internal/adapter/outbound/local"
	"github.com/verdant-market/storecore/internal/adapter/outbound/memory"
	"github.com/verdant-market/storecore/internal/domain/cart"
	"github.com/verdant-market/storecore/internal/domain/csrf"
	"github.com/verdant-market/storecore/internal/domain/event"
	"github.com/verdant-market/storecore/internal/domain/favorites"
	"github.com/verdant-market/storecore/internal/domain/monitor"
	"github.com/verdant-market/storecore/internal/domain/ratelimit"
	"github.com/verdant-market/storecore/internal/domain/sanitize"
	"github.com/verdant-market/storecore/internal/domain/session"
	"github.com/verdant-market/storecore/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := testLogger()

	store := memory.NewDataStore()
	provider := local.NewProvider(logger)
	limiter := ratelimit.New(ratelimit.Config{}, logger)
	tokens := csrf.NewManager()
	bus := event.NewBus(logger)

	ctrl := session.NewController(provider, store, limiter, tokens, bus, session.Config{}, logger)
	ctrl.Start(context.Background())
	t.Cleanup(ctrl.Stop)

	svc := service.NewStorefrontService(sanitize.New(), limiter, tokens, ctrl,
		cart.NewEngine(store, ctrl, bus, logger),
		favorites.NewEngine(store, ctrl, bus, logger),
		provider, store, bus, logger)

	mon := monitor.New(limiter, ctrl, logger, time.Hour)

	return NewServer("127.0.0.1:0", "test", svc, mon, prometheus.NewRegistry(), logger)
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Version != "test" {
		t.Errorf("version = %q, want test", resp.Version)
	}
	if _, ok := resp.Checks["rate_limiter"]; !ok {
		t.Errorf("checks = %v, want a rate_limiter entry", resp.Checks)
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, metric := range []string{
		"storecore_sign_in_successes_total",
		"storecore_rate_limit_denials_total",
		"storecore_csrf_failures_total",
		"storecore_sanitizer_degradations_total",
		"storecore_rate_limit_keys",
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("metrics output missing %s", metric)
		}
	}
}
