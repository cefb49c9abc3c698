// Package logger provides structured logging setup for CredForge.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/Strob0t/CredForge/internal/config"
	"github.com/Strob0t/CredForge/internal/domain/credential"
)

const (
	asyncBufferSize = 4096
	asyncWorkers    = 2
)

// secretKeys are attribute key fragments whose values are always masked.
var secretKeys = []string{"api_key", "secret", "token", "password", "private_key", "credentials"}

// redacted replaces non-string values under a secret key.
const redacted = "[REDACTED]"

// New creates a *slog.Logger from the given Logging config.
// Output goes to stdout with a "service" attribute on every record: JSON by
// default, text when configured or when stdout is a terminal. The returned
// Closer flushes the async handler and must be called on shutdown.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	return newWithWriter(cfg, os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
}

func newWithWriter(cfg config.Logging, w io.Writer, tty bool) (*slog.Logger, Closer) {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: scrubSecrets,
	}

	var handler slog.Handler
	if cfg.Format == "text" || (cfg.Format == "" && tty) {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	var closer Closer = nopCloser{}
	if cfg.Async {
		ah := NewAsyncHandler(handler, asyncBufferSize, asyncWorkers, slog.LevelWarn)
		handler, closer = ah, ah
	}

	return slog.New(&contextHandler{inner: handler}).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// scrubSecrets masks attributes whose key names a secret.
func scrubSecrets(_ []string, a slog.Attr) slog.Attr {
	if !isSecretKey(a.Key) {
		return a
	}
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, credential.Mask(a.Value.String()))
	}
	return slog.String(a.Key, redacted)
}

func isSecretKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// contextHandler copies the request ID and attributes attached with With
// from the context onto each record. It sits outside the async handler,
// which drops the context.
type contextHandler struct {
	inner slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	if id := RequestID(ctx); id != "" {
		rec.AddAttrs(slog.String("request_id", id))
	}
	rec.AddAttrs(contextAttrs(ctx)...)
	return h.inner.Handle(ctx, rec)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{inner: h.inner.WithGroup(name)}
}
