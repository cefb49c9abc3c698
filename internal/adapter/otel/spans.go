package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "credforge"

// StartResolveSpan starts a span for building a tenant's provider configurations.
func StartResolveSpan(ctx context.Context, tenantID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "credentials.resolve",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
}

// StartWriteSpan starts a span for a credential write operation.
func StartWriteSpan(ctx context.Context, op, tenantID, providerName string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "credentials."+op,
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("provider", providerName),
		),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
