package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewWriterFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWriter("warn", &buf)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	log.Info("hidden")
	log.Warn("shown")
	_ = log.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected json log line: %v", err)
	}
	if entry["msg"] != "shown" || entry["level"] != "warn" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key: %v", entry)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("loud"); err == nil {
		t.Fatal("expected invalid level error")
	}
	if _, err := NewWriter("", &bytes.Buffer{}); err != nil {
		t.Fatalf("empty level should default to info: %v", err)
	}
}
