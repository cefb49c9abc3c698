package otel

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Strob0t/CredForge/internal/middleware"
)

// untracedPaths are probe endpoints hit every few seconds.
var untracedPaths = map[string]bool{"/health": true, "/ready": true}

// HTTPMiddleware opens a server span per request. The span is renamed to the
// matched chi route once routing has run, so credentials paths with ids
// collapse into one span name, and carries the tenant when one was resolved.
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)

			span := trace.SpanFromContext(r.Context())
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if p := rc.RoutePattern(); p != "" {
					span.SetName(r.Method + " " + p)
				}
			}
		})
		return otelhttp.NewHandler(inner, serviceName,
			otelhttp.WithFilter(func(r *http.Request) bool { return !untracedPaths[r.URL.Path] }),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
}

// TenantSpanAttribute tags the request span with the tenant. Mount it after
// middleware.TenantID.
func TenantSpanAttribute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.TenantIDFromContext(r.Context()); id != "" {
			trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("credforge.tenant_id", id))
		}
		next.ServeHTTP(w, r)
	})
}
