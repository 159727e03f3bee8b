package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: "json", Output: &buf})
	l.Info("command dispatched", "cmd", "SET", "db", 0)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["msg"] != "command dispatched" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["cmd"] != "SET" {
		t.Errorf("cmd = %v", entry["cmd"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Format: "text", Output: &buf})
	l.Info("hidden")
	l.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line emitted at warn level")
	}
	if !strings.Contains(out, "visible") {
		t.Error("warn line missing")
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: "text", Output: &buf})

	SetLevel("error")
	defer SetLevel("info")
	if GetLevel() != "error" {
		t.Fatalf("GetLevel = %q", GetLevel())
	}
	l.Warn("suppressed")
	if buf.Len() != 0 {
		t.Error("warn line emitted at error level")
	}
}

func TestContextPropagation(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Format: "json", Output: &buf})

	ctx := WithLogger(context.Background(), l)
	ctx = WithClientID(ctx, 7)
	L(ctx).Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["client_id"] != float64(7) {
		t.Errorf("client_id = %v", entry["client_id"])
	}
}

func TestFromContextFallback(t *testing.T) {
	// Must not panic and must not write anywhere.
	FromContext(context.Background()).Info("dropped")
}
