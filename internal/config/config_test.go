package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/scopeguard/internal/redact"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, hash, err := LoadWithHash(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.Name != "gemini" || cfg.Provider.APIKeyEnv != "GEMINI_API_KEY" {
		t.Errorf("provider defaults = %+v", cfg.Provider)
	}
	if cfg.Guardian.MaxMessageChars != 1000 {
		t.Errorf("max_message_chars = %d, want 1000", cfg.Guardian.MaxMessageChars)
	}
	// sha256 of empty input
	if hash != "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("hash = %s", hash)
	}
	if cfg.ExtensionSet() == nil || cfg.ExtensionSet().Len() != 0 {
		t.Error("expected an empty compiled extension set")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
provider:
  name: chat
  model: llama3
  base_url: http://localhost:11434/v1/chat/completions
  timeout: 5s
guardian:
  truncate_overlong: true
storage:
  cache_ttl: 1m
grpc:
  port: 9443
extensions:
  - id: studio.3d
    when: project.name.contains("Drone")
    text: 3D Animation is in scope for drone projects.
`)
	cfg, hash, err := LoadWithHash(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.Name != "chat" || cfg.Provider.Model != "llama3" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Provider.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", cfg.Provider.Timeout)
	}
	if cfg.Provider.APIKeyEnv != "GEMINI_API_KEY" {
		t.Error("unset keys should keep their defaults")
	}
	if !cfg.Guardian.TruncateOverlong || cfg.Guardian.MaxMessageChars != 1000 {
		t.Errorf("guardian = %+v", cfg.Guardian)
	}
	if cfg.Storage.CacheTTL != time.Minute {
		t.Errorf("cache_ttl = %v", cfg.Storage.CacheTTL)
	}
	if cfg.GRPC.Port != 9443 {
		t.Errorf("grpc port = %d", cfg.GRPC.Port)
	}
	if cfg.ExtensionSet().Len() != 1 {
		t.Errorf("extensions = %d, want 1", cfg.ExtensionSet().Len())
	}
	if cfg.RedactMode() != redact.ModeLocal {
		t.Errorf("redact mode = %s, want local for a localhost endpoint", cfg.RedactMode())
	}
	if !strings.HasPrefix(hash, "sha256:") || len(hash) != len("sha256:")+64 {
		t.Errorf("hash = %s", hash)
	}
}

func TestLoadSchemaRejections(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown top-level key", "providers:\n  name: gemini\n"},
		{"unknown nested key", "guardian:\n  max_chars: 10\n"},
		{"unsupported provider", "provider:\n  name: openai\n"},
		{"non-positive length cap", "guardian:\n  max_message_chars: 0\n"},
		{"bad duration", "provider:\n  timeout: soon\n"},
		{"port out of range", "grpc:\n  port: 70000\n"},
		{"alert without url", "alerts:\n  - format: slack\n"},
		{"unknown alert event", "alerts:\n  - url: https://hooks.example.com/x\n    events: [everything]\n"},
		{"bad redact mode", "redact:\n  mode: sometimes\n"},
		{"bad rate limit window", "rate_limit:\n  \"*\":\n    window: 1 minute\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Fatal("expected schema error")
			}
		})
	}
}

func TestLoadRejectsInvalidCEL(t *testing.T) {
	path := writeConfig(t, `
extensions:
  - id: broken
    when: project.name ==
    text: never applied
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected CEL compile error")
	}
}

func TestLoadRejectsInvalidRedactPattern(t *testing.T) {
	path := writeConfig(t, `
redact:
  extra_patterns:
    - name: ticket
      regex: "([a-z"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected regex error")
	}
}

func TestHashChangesWithContent(t *testing.T) {
	_, h1, err := LoadWithHash(writeConfig(t, "log:\n  level: debug\n"))
	if err != nil {
		t.Fatal(err)
	}
	_, h2, err := LoadWithHash(writeConfig(t, "log:\n  level: warn\n"))
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("different files should hash differently")
	}
}

func TestSecretsFromEnv(t *testing.T) {
	t.Setenv("TEST_SG_KEY", "  key-123 \n")
	t.Setenv("TEST_SG_JWT", "s3cret")
	cfg, err := Parse([]byte("provider:\n  api_key_env: TEST_SG_KEY\nhttp:\n  jwt_secret_env: TEST_SG_JWT\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIKey() != "key-123" {
		t.Errorf("APIKey = %q", cfg.APIKey())
	}
	if string(cfg.JWTSecret()) != "s3cret" {
		t.Errorf("JWTSecret = %q", cfg.JWTSecret())
	}
}

func TestLoadEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("TEST_SG_FROM_FILE=file\nTEST_SG_PRESET=file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TEST_SG_PRESET", "process")
	t.Setenv("TEST_SG_FROM_FILE", "")
	os.Unsetenv("TEST_SG_FROM_FILE")

	if err := LoadEnv(envFile, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := os.Getenv("TEST_SG_FROM_FILE"); got != "file" {
		t.Errorf("TEST_SG_FROM_FILE = %q", got)
	}
	if got := os.Getenv("TEST_SG_PRESET"); got != "process" {
		t.Errorf("TEST_SG_PRESET = %q, existing variables must win", got)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome("~/x.db"); got != filepath.Join(home, "x.db") {
		t.Errorf("expandHome = %s", got)
	}
	if got := expandHome("/abs/x.db"); got != "/abs/x.db" {
		t.Errorf("expandHome = %s", got)
	}
}

func TestDefaultYAMLMatchesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(DefaultYAML()))
	if err != nil {
		t.Fatalf("default config does not load: %v", err)
	}
	def := DefaultConfig()
	if cfg.Provider != def.Provider {
		t.Errorf("provider = %+v, want %+v", cfg.Provider, def.Provider)
	}
	if cfg.Guardian != def.Guardian {
		t.Errorf("guardian = %+v, want %+v", cfg.Guardian, def.Guardian)
	}
	if cfg.HTTP != def.HTTP || cfg.GRPC != def.GRPC {
		t.Errorf("listeners = %+v %+v", cfg.HTTP, cfg.GRPC)
	}
	if cfg.Storage.CacheTTL != def.Storage.CacheTTL {
		t.Errorf("cache_ttl = %v", cfg.Storage.CacheTTL)
	}
}

func TestLoadRateLimit(t *testing.T) {
	cfg, err := Load(writeConfig(t, "rate_limit:\n  \"*\":\n    max_requests: 30\n    window: 1m\n  admin:\n    max_requests: 500\n    window: 1h\n"))
	if err != nil {
		t.Fatal(err)
	}
	if l, ok := cfg.RateLimit.For("client-1"); !ok || l.MaxRequests != 30 || l.Window != time.Minute {
		t.Errorf("wildcard limit = %+v, %v", l, ok)
	}
	if l, ok := cfg.RateLimit.For("admin"); !ok || l.Window != time.Hour {
		t.Errorf("admin limit = %+v, %v", l, ok)
	}
}
