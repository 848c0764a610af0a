package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONWithSessionFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chatsyncd.log")

	logger, err := New(path, "work", Options{Quiet: true})
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("hidden")
	logger.Info("connected")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1 (debug filtered): %s", len(lines), data)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["session"] != "work" || entry["msg"] != "connected" {
		t.Errorf("unexpected entry %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Error("missing ts field")
	}
}

func TestDebugLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatsyncd.log")
	logger, err := New(path, "main", Options{Debug: true, Quiet: true})
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("visible")
	_ = logger.Sync()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "visible") {
		t.Errorf("debug entry missing: %s", data)
	}
}
