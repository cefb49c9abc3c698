package otel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Strob0t/CredForge/internal/config"
	"github.com/Strob0t/CredForge/internal/middleware"
)

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.OTEL{Enabled: false})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.CacheLookup(ctx, "provider", true)
	m.TierLookup(ctx, "l1")
	m.DecryptFailed(ctx, "openai")
	m.Write(ctx, "save", "openai", nil)
	m.Resolved(ctx, 0.1)
}

func counterSum(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != name {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is %T, want Sum[int64]", name, md.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := newMetrics(mp.Meter(meterName))
	if err != nil {
		t.Fatalf("newMetrics: %v", err)
	}

	ctx := context.Background()
	m.CacheLookup(ctx, "provider", true)
	m.CacheLookup(ctx, "provider", true)
	m.CacheLookup(ctx, "provider", false)
	m.TierLookup(ctx, "l2")
	m.DecryptFailed(ctx, "openai")
	m.Write(ctx, "save", "openai", nil)
	m.Write(ctx, "save", "openai", errors.New("boom"))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	tests := map[string]int64{
		"credforge.credentials.cache.hits":       2,
		"credforge.credentials.cache.misses":     1,
		"credforge.credentials.decrypt.failures": 1,
		"credforge.credentials.writes":           2,
		"credforge.cache.tier.lookups":           1,
	}
	for name, want := range tests {
		if got := counterSum(t, rm, name); got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}
}

func TestHTTPMiddleware(t *testing.T) {
	h := HTTPMiddleware("credforge")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}

func TestHTTPMiddlewareNamesSpanAfterRoute(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	r := chi.NewRouter()
	r.Use(HTTPMiddleware("credforge"))
	r.With(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithTenantID(r.Context(), "t-1")))
		})
	}, TenantSpanAttribute).Get("/providers/{provider}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {})

	for _, path := range []string{"/providers/openai", "/providers/anthropic", "/health"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, http.NoBody))
	}

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2 (health untraced)", len(spans))
	}
	for _, s := range spans {
		if s.Name() != "GET /providers/{provider}" {
			t.Errorf("span name = %q", s.Name())
		}
		var tenant string
		for _, kv := range s.Attributes() {
			if kv.Key == "credforge.tenant_id" {
				tenant = kv.Value.AsString()
			}
		}
		if tenant != "t-1" {
			t.Errorf("tenant attribute = %q, want t-1", tenant)
		}
	}
}
