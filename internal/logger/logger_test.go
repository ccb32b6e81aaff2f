package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/chaintara/shopchat-linebot-go/internal/ctxutil"
)

func parseLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("failed to parse log line %q: %v", line, err)
	}
	return entry
}

func TestJSONOutputRenamesKeys(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)

	log.Info("hello")

	entry := parseLine(t, &buf)
	if entry["message"] != "hello" {
		t.Errorf("message = %v, want hello", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("timestamp key missing")
	}
}

func TestWarnLevelIsSpelledOut(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("debug", &buf)

	log.Warn("careful")

	entry := parseLine(t, &buf)
	if entry["level"] != "warning" {
		t.Errorf("level = %v, want warning", entry["level"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("error", &buf)

	log.Info("not logged")
	if buf.Len() != 0 {
		t.Errorf("info record should be filtered at error level, got %q", buf.String())
	}

	log.Error("logged")
	if buf.Len() == 0 {
		t.Error("error record should pass at error level")
	}
}

func TestWithFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)

	log.WithModule("checkout").WithField("order_id", "ORD-1").Info("created")

	entry := parseLine(t, &buf)
	if entry["module"] != "checkout" {
		t.Errorf("module = %v, want checkout", entry["module"])
	}
	if entry["order_id"] != "ORD-1" {
		t.Errorf("order_id = %v, want ORD-1", entry["order_id"])
	}
}

func TestContextHandlerExtractsTracing(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)

	ctx := ctxutil.WithUserID(context.Background(), "U42")
	ctx = ctxutil.WithRequestID(ctx, "req-7")
	log.InfoContext(ctx, "traced")

	entry := parseLine(t, &buf)
	if entry["user_id"] != "U42" {
		t.Errorf("user_id = %v, want U42", entry["user_id"])
	}
	if entry["request_id"] != "req-7" {
		t.Errorf("request_id = %v, want req-7", entry["request_id"])
	}
}

func TestMultiHandlerFanOut(t *testing.T) {
	var a, b bytes.Buffer
	ha := slog.NewJSONHandler(&a, nil)
	hb := slog.NewJSONHandler(&b, nil)

	log := slog.New(NewMultiHandler(ha, hb, nil))
	log.Info("fan out")

	if a.Len() == 0 || b.Len() == 0 {
		t.Errorf("both handlers should receive the record, got a=%d b=%d bytes", a.Len(), b.Len())
	}
}
