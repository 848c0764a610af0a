package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultSession = "work"
	cfg.Chat.TypingTTL.Duration = 4 * time.Second
	cfg.Notify.Command = []string{"notify-send", "-a", "chatsync"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.Chat.TypingTTL.Duration != 4*time.Second {
		t.Errorf("TypingTTL = %v, want 4s", loaded.Chat.TypingTTL)
	}
	if len(loaded.Notify.Command) != 3 {
		t.Errorf("Notify.Command = %v, want 3 args", loaded.Notify.Command)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}

	cfg, err := LoadOrDefault("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Chat.PageSize != 30 {
		t.Errorf("PageSize = %d, want default 30", cfg.Chat.PageSize)
	}
}

func TestPartialFileGetsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	raw := "[realtime]\nurl = \"wss://chat.example.com/ws\"\nping_interval = \"10s\"\n\n[chat]\npage_size = 50\n"
	if err := os.WriteFile(path, []byte(raw), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadOrDefault(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Realtime.URL != "wss://chat.example.com/ws" {
		t.Errorf("URL = %q", cfg.Realtime.URL)
	}
	if cfg.Realtime.PingInterval.Duration != 10*time.Second {
		t.Errorf("PingInterval = %v, want 10s", cfg.Realtime.PingInterval)
	}
	if cfg.Chat.PageSize != 50 {
		t.Errorf("PageSize = %d, want 50", cfg.Chat.PageSize)
	}
	if cfg.Chat.TypingTTL.Duration != 2*time.Second {
		t.Errorf("TypingTTL = %v, want default 2s", cfg.Chat.TypingTTL)
	}
}

func TestBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[chat]\ntyping_ttl = \"soon\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrDefault(path); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultSession: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
