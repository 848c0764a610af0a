package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"main", false},
		{"work-2", false},
		{"team_chat", false},
		{strings.Repeat("x", 64), false},
		{"", true},
		{"Work", true},
		{"../etc", true},
		{"a b", true},
		{"a.b", true},
		{strings.Repeat("x", 65), true},
	}
	for _, tt := range tests {
		err := ValidateName(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
	}
}

func TestList(t *testing.T) {
	home := t.TempDir()
	t.Setenv("CHATSYNC_HOME", home)

	names, err := List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Fatalf("List() on empty home = %v", names)
	}

	for _, n := range []string{"work", "main"} {
		if err := EnsureDir(n); err != nil {
			t.Fatal(err)
		}
	}
	// Not sessions: a stray file and a directory with an invalid name.
	if err := os.WriteFile(filepath.Join(home, "sessions", "notes"), nil, 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(home, "sessions", "Bad Name"), 0700); err != nil {
		t.Fatal(err)
	}

	names, err = List()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(names, ",") != "main,work" {
		t.Errorf("List() = %v, want [main work]", names)
	}
}
