// Package config loads the scopeguard service configuration.
//
// Loading starts from DefaultConfig and overlays the YAML file, so a file only
// needs the keys it changes. The raw file is validated against an embedded
// CUE schema first; unknown keys and out-of-range values fail the load.
// Secrets never live in the file: it names the environment variables that
// hold them, and those may come from a .env file.
package config

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/scopeguard/internal/alert"
	"github.com/ppiankov/scopeguard/internal/logging"
	"github.com/ppiankov/scopeguard/internal/ratelimit"
	"github.com/ppiankov/scopeguard/internal/redact"
	"github.com/ppiankov/scopeguard/internal/scope"
)

//go:embed schema.cue
var schemaSource string

//go:embed default.yaml
var defaultYAML string

// ProviderConfig selects the reasoning backend.
type ProviderConfig struct {
	Name            string        `yaml:"name"`
	Model           string        `yaml:"model"`
	APIKeyEnv       string        `yaml:"api_key_env"`
	BaseURL         string        `yaml:"base_url"`
	Timeout         time.Duration `yaml:"timeout"`
	IncludeThoughts bool          `yaml:"include_thoughts"`
	MaxTokens       int           `yaml:"max_tokens"`
}

// GuardianConfig tunes the decision engine.
type GuardianConfig struct {
	MaxMessageChars  int           `yaml:"max_message_chars"`
	TruncateOverlong bool          `yaml:"truncate_overlong"`
	AuditTimeout     time.Duration `yaml:"audit_timeout"`
}

// StorageConfig locates the project store, transcript log and cache.
type StorageConfig struct {
	Database      string        `yaml:"database"`
	TranscriptLog string        `yaml:"transcript_log"`
	RedisURL      string        `yaml:"redis_url"` // empty disables the project cache
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

// HTTPConfig configures the HTTP API.
type HTTPConfig struct {
	Addr         string `yaml:"addr"` // empty disables the HTTP API
	JWTSecretEnv string `yaml:"jwt_secret_env"`
}

// GRPCConfig configures the gRPC API.
type GRPCConfig struct {
	Port int `yaml:"port"` // 0 disables the gRPC API
}

// Config is the full service configuration.
type Config struct {
	Provider   ProviderConfig        `yaml:"provider"`
	Guardian   GuardianConfig        `yaml:"guardian"`
	Storage    StorageConfig         `yaml:"storage"`
	HTTP       HTTPConfig            `yaml:"http"`
	GRPC       GRPCConfig            `yaml:"grpc"`
	Extensions []scope.ExtensionSpec `yaml:"extensions"`
	Alerts     []alert.Config        `yaml:"alerts"`
	Redact     redact.Config         `yaml:"redact"`
	RateLimit  ratelimit.Config      `yaml:"rate_limit"` // per user ID, "*" for everyone else
	Log        logging.Config        `yaml:"log"`

	extensions  *scope.ExtensionSet
	redactRules *redact.Rules
}

// DefaultDir is the state directory used when paths are not configured.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".scopeguard"
	}
	return filepath.Join(home, ".scopeguard")
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	dir := DefaultDir()
	return &Config{
		Provider: ProviderConfig{
			Name:      "gemini",
			Model:     "gemini-2.5-flash",
			APIKeyEnv: "GEMINI_API_KEY",
			Timeout:   20 * time.Second,
			MaxTokens: 600,
		},
		Guardian: GuardianConfig{
			MaxMessageChars: 1000,
			AuditTimeout:    10 * time.Second,
		},
		Storage: StorageConfig{
			Database:      filepath.Join(dir, "scopeguard.db"),
			TranscriptLog: filepath.Join(dir, "transcript.jsonl"),
			CacheTTL:      5 * time.Minute,
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			JWTSecretEnv: "SCOPEGUARD_JWT_SECRET",
		},
		Redact: redact.Config{Mode: "auto"},
		Log:    logging.Config{Level: "info"},
	}
}

// DefaultYAML returns a commented config file matching DefaultConfig.
func DefaultYAML() string { return defaultYAML }

// DefaultPath is the config file used when none is given.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Load reads the config at path. Empty path falls back to DefaultPath.
// A missing file returns defaults; invalid content returns an error.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash loads the config and returns the SHA-256 of the raw file.
// When no file exists the hash is the SHA-256 of empty input.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("config: read %s: %w", path, err)
	}
	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	cfg, err := Parse(data)
	if err != nil {
		return nil, "", fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, hash, nil
}

// Parse validates raw YAML and overlays it on DefaultConfig.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if len(bytes.TrimSpace(data)) > 0 {
		if err := validateSchema(data); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse: %w", err)
		}
	}
	if err := cfg.compile(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateSchema(data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err := cueyaml.Validate(data, def); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

func (c *Config) compile() error {
	c.Storage.Database = expandHome(c.Storage.Database)
	c.Storage.TranscriptLog = expandHome(c.Storage.TranscriptLog)

	ext, err := scope.CompileExtensions(c.Extensions)
	if err != nil {
		return err
	}
	rules, err := redact.Compile(c.Redact)
	if err != nil {
		return fmt.Errorf("redact: %w", err)
	}
	c.extensions = ext
	c.redactRules = rules
	return nil
}

// ExtensionSet returns the compiled scope extensions.
func (c *Config) ExtensionSet() *scope.ExtensionSet { return c.extensions }

// RedactRules returns the compiled redaction rules.
func (c *Config) RedactRules() *redact.Rules { return c.redactRules }

// RedactMode resolves the redaction mode for the configured provider endpoint.
// The public Gemini API is always remote.
func (c *Config) RedactMode() redact.Mode {
	return redact.ResolveMode(c.Provider.BaseURL, c.Redact.Mode)
}

// APIKey returns the provider key from the configured environment variable.
func (c *Config) APIKey() string {
	return secret(c.Provider.APIKeyEnv)
}

// JWTSecret returns the HTTP token signing secret.
func (c *Config) JWTSecret() []byte {
	return []byte(secret(c.HTTP.JWTSecretEnv))
}

func secret(env string) string {
	if env == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(env))
}

// LoadEnv loads .env files into the process environment without overriding
// variables that are already set. Missing files are skipped.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("config: load env %s: %w", f, err)
		}
	}
	return nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
