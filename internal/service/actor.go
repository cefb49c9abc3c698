package service

import (
	"context"
	"log/slog"

	"github.com/Strob0t/CredForge/internal/logger"
)

type actorKey struct{}

// WithActor records who performs a write; it lands in created_by/updated_by
// and on every log record written with the returned context.
func WithActor(ctx context.Context, actor string) context.Context {
	ctx = logger.With(ctx, slog.String("actor", actor))
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(ctx context.Context) string {
	a, _ := ctx.Value(actorKey{}).(string)
	return a
}
