package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/scopeguard/internal/config"
)

func TestRunInitWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	out, err := executeCommand(t, "init", "--config", path)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !strings.Contains(out, "Created "+path) {
		t.Errorf("output = %q", out)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.Guardian.MaxMessageChars != 1000 {
		t.Errorf("max_message_chars = %d", cfg.Guardian.MaxMessageChars)
	}
}

func TestRunInitNoOverwriteWithoutForce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := executeCommand(t, "init", "--config", path)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !strings.Contains(out, "already exists") {
		t.Errorf("output = %q", out)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "log:\n  level: warn\n" {
		t.Error("existing config was overwritten")
	}

	if _, err := executeCommand(t, "init", "--config", path, "--force"); err != nil {
		t.Fatalf("init --force failed: %v", err)
	}
	data, _ = os.ReadFile(path)
	if !strings.Contains(string(data), "provider:") {
		t.Error("--force did not overwrite")
	}
}
