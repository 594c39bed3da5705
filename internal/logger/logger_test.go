package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONWriter(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: slog.LevelInfo, Format: "json", Writer: &buf})
	log.Info("book created", "book_id", "b1")

	var rec map[string]any
	require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "book created", rec["msg"])
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "b1", rec["book_id"])
}

func TestNew_FormatAutoDetection(t *testing.T) {
	tests := []struct {
		environment string
		wantJSON    bool
	}{
		{"production", true},
		{"development", false},
		{"staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.environment, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(Config{Environment: tt.environment, Writer: &buf})
			log.Info("hello")

			assert.Equal(t, tt.wantJSON, bytes.HasPrefix(buf.Bytes(), []byte("{")))
		})
	}
}

func TestNew_ContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: "json", Writer: &buf})

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = WithActor(ctx, "admin", "adm-1")
	log.InfoContext(ctx, "checkout")

	var rec map[string]any
	require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "req-123", rec["request_id"])
	assert.Equal(t, "admin", rec["actor_role"])
	assert.Equal(t, "adm-1", rec["actor_id"])
}

func TestNew_ContextAttributesSurviveWith(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: "pretty", Writer: &buf}).WithField("component", "ledger")

	log.InfoContext(WithRequestID(context.Background(), "req-9"), "returned")

	out := buf.String()
	assert.Contains(t, out, "component=ledger")
	assert.Contains(t, out, "request_id=req-9")
}

func TestFromContext(t *testing.T) {
	fallback := Discard()
	assert.Same(t, fallback, FromContext(context.Background(), fallback))

	scoped := Discard().WithField("k", "v")
	ctx := WithContext(context.Background(), scoped)
	assert.Same(t, scoped, FromContext(ctx, fallback))
}

func TestRequestID_Empty(t *testing.T) {
	assert.Empty(t, RequestID(context.Background()))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestPrettyHandler_Enabled(t *testing.T) {
	h := NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelInfo})

	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestNewPrettyHandler_NilOptions(t *testing.T) {
	h := NewPrettyHandler(&bytes.Buffer{}, nil)
	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
}

func TestPrettyHandler_Handle(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, nil))
	log.Warn("quota reached", "reader", "alice", "open", 5, "note", "two words")

	out := buf.String()
	assert.Contains(t, out, "WRN")
	assert.Contains(t, out, "quota reached")
	assert.Contains(t, out, "reader=alice")
	assert.Contains(t, out, "open=5")
	assert.Contains(t, out, `note="two words"`)
}

func TestPrettyHandler_Groups(t *testing.T) {
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil)

	assert.Same(t, h, h.WithGroup(""))

	log := slog.New(h.WithGroup("http")).With("method", "GET")
	log.Info("request", "status", 200, slog.Group("route", "path", "/books"))

	out := buf.String()
	assert.Contains(t, out, "http.method=GET")
	assert.Contains(t, out, "http.status=200")
	assert.Contains(t, out, "http.route.path=/books")
}

func TestPrettyHandler_WithSource(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, &slog.HandlerOptions{AddSource: true}))
	log.Info("test message")

	assert.Contains(t, buf.String(), "logger_test.go:")
}

func TestFormatValue(t *testing.T) {
	now := time.Now()

	assert.Equal(t, "plain", formatValue(slog.StringValue("plain")))
	assert.Equal(t, `""`, formatValue(slog.StringValue("")))
	assert.Equal(t, `"a=b"`, formatValue(slog.StringValue("a=b")))
	assert.Equal(t, now.Format(time.RFC3339), formatValue(slog.TimeValue(now)))
	assert.Equal(t, "5s", formatValue(slog.DurationValue(5*time.Second)))
	assert.Equal(t, "42", formatValue(slog.IntValue(42)))
}

func TestLogger_WithHelpers(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: "pretty", Writer: &buf})

	log.WithError(errors.New("boom")).
		WithFields(map[string]any{"book_id": "b1"}).
		Error("checkout failed")

	out := buf.String()
	assert.Contains(t, out, "ERR")
	assert.Contains(t, out, "error=boom")
	assert.Contains(t, out, "book_id=b1")
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: "pretty", Level: slog.LevelWarn, Writer: &buf})

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
