package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNew_WritesServiceAttr(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "forecaster", slog.LevelInfo)
	log.Debug("hidden")
	log.Info("cycle done", slog.Int("assets", 2))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (debug filtered), got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["service"] != "forecaster" || rec["msg"] != "cycle done" || rec["assets"] != 2.0 {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	if tid := TraceID(ctx); tid != "" {
		t.Errorf("expected empty trace id, got %q", tid)
	}

	ctx = WithTraceID(ctx, "cycle-123")
	if tid := TraceID(ctx); tid != "cycle-123" {
		t.Errorf("expected 'cycle-123', got %q", tid)
	}
}

func TestGenerateTraceID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	tid := GenerateTraceID("cycle", ts)

	if !strings.HasPrefix(tid, "cycle-") {
		t.Errorf("expected trace id to start with 'cycle-', got %s", tid)
	}
	if !strings.Contains(tid, "123456789") {
		t.Errorf("expected trace id to contain nanoseconds, got %s", tid)
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, "svc", slog.LevelInfo)

	if LogWithTrace(context.Background()) != nil {
		t.Errorf("expected nil attrs when no trace id")
	}
	if FromContext(context.Background(), base) != base {
		t.Errorf("logger without trace should be returned unchanged")
	}

	ctx := WithTraceID(context.Background(), "abc-123")
	FromContext(ctx, base).Info("hello")
	if !strings.Contains(buf.String(), `"trace_id":"abc-123"`) {
		t.Errorf("trace id missing from %q", buf.String())
	}
}
