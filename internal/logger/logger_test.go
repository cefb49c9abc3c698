package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/Strob0t/CredForge/internal/config"
)

func TestNewFormats(t *testing.T) {
	for _, cfg := range []config.Logging{
		{Level: "debug", Service: "credforge", Format: "json"},
		{Level: "info", Service: "credforge", Format: "text"},
		{Level: "warn", Service: "credforge", Async: true},
	} {
		l, closer := New(cfg)
		if l == nil {
			t.Fatalf("New(%+v) returned nil logger", cfg)
		}
		closer.Close()
		// Close is idempotent.
		closer.Close()
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input).String()
			if got != tt.want {
				t.Errorf("parseLevel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()

	// Empty context returns empty string
	if got := RequestID(ctx); got != "" {
		t.Errorf("expected empty request ID, got %q", got)
	}

	// Set and retrieve
	ctx = WithRequestID(ctx, "req-123")
	if got := RequestID(ctx); got != "req-123" {
		t.Errorf("expected req-123, got %q", got)
	}
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return m
}

func TestScrubSecrets(t *testing.T) {
	var buf bytes.Buffer
	l, closer := newWithWriter(config.Logging{Level: "info", Service: "svc"}, &buf, false)
	defer closer.Close()

	l.Info("saved",
		"provider", "openai",
		"openai_api_key", "sk-abcdefghijkl1234",
		"credentials", map[string]any{"openai_api_key": "sk-abcdefghijkl1234"},
		"tenant_id", "t-1",
	)

	m := decodeLine(t, &buf)
	if got := m["openai_api_key"]; got != "sk-a****1234" {
		t.Errorf("api key not masked: %v", got)
	}
	if got := m["credentials"]; got != redacted {
		t.Errorf("credentials map not redacted: %v", got)
	}
	if got := m["provider"]; got != "openai" {
		t.Errorf("provider should pass through, got %v", got)
	}
	if got := m["service"]; got != "svc" {
		t.Errorf("expected service attribute, got %v", got)
	}
	if strings.Contains(buf.String(), "abcdefghijkl") {
		t.Errorf("log line leaks secret: %s", buf.String())
	}
}

func TestIsSecretKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"api_key", true},
		{"OPENAI_API_KEY", true},
		{"client_secret", true},
		{"access_token", true},
		{"private_key", true},
		{"provider", false},
		{"tenant_id", false},
		{"field", false},
	}
	for _, tt := range tests {
		if got := isSecretKey(tt.key); got != tt.want {
			t.Errorf("isSecretKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestRequestIDAttached(t *testing.T) {
	var buf bytes.Buffer
	l, closer := newWithWriter(config.Logging{Level: "info"}, &buf, false)
	defer closer.Close()

	l.InfoContext(WithRequestID(context.Background(), "req-42"), "hello")

	if got := decodeLine(t, &buf)["request_id"]; got != "req-42" {
		t.Errorf("expected request_id req-42, got %v", got)
	}
}

func TestFormatSelection(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		tty      bool
		wantJSON bool
	}{
		{"explicit json on tty", "json", true, true},
		{"explicit text", "text", false, false},
		{"auto on tty", "", true, false},
		{"auto off tty", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l, closer := newWithWriter(config.Logging{Format: tt.format}, &buf, tt.tty)
			l.Info("x")
			closer.Close()
			isJSON := strings.HasPrefix(buf.String(), "{")
			if isJSON != tt.wantJSON {
				t.Errorf("json output = %v, want %v (%q)", isJSON, tt.wantJSON, buf.String())
			}
		})
	}
}

func TestAsyncLoggerKeepsRequestID(t *testing.T) {
	var buf bytes.Buffer
	l, closer := newWithWriter(config.Logging{Async: true}, &buf, false)
	l.LogAttrs(WithRequestID(context.Background(), "req-7"), slog.LevelInfo, "async")
	closer.Close()

	if got := decodeLine(t, &buf)["request_id"]; got != "req-7" {
		t.Errorf("expected request_id through async handler, got %v", got)
	}
}

func TestWithAttachesContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	l, closer := newWithWriter(config.Logging{Async: true}, &buf, false)

	ctx := With(context.Background(), slog.String("tenant_id", "t-1"))
	ctx = With(ctx, slog.String("actor", "alice"))
	ctx = With(ctx)
	l.InfoContext(ctx, "credentials saved", "provider", "openai")
	closer.Close()

	line := decodeLine(t, &buf)
	if line["tenant_id"] != "t-1" || line["actor"] != "alice" || line["provider"] != "openai" {
		t.Errorf("unexpected record: %v", line)
	}
}

func TestWithDoesNotLeakIntoParent(t *testing.T) {
	parent := With(context.Background(), slog.String("tenant_id", "t-1"))
	_ = With(parent, slog.String("actor", "alice"))

	if got := len(contextAttrs(parent)); got != 1 {
		t.Errorf("parent has %d attrs, want 1", got)
	}
}
