package scopeguard

import (
	"go.uber.org/zap"

	"github.com/ppiankov/scopeguard/internal/provider"
)

// Option configures a Client at creation time.
type Option func(*clientConfig)

type clientConfig struct {
	configPath string
	envFiles   []string
	userID     string
	logger     *zap.Logger
	provider   provider.Provider
}

// WithConfigPath sets the config YAML path. The default is
// ~/.scopeguard/config.yaml; a missing file means built-in defaults.
func WithConfigPath(path string) Option {
	return func(c *clientConfig) { c.configPath = path }
}

// WithEnvFiles loads secrets from .env files. Variables already set in the
// environment win.
func WithEnvFiles(files ...string) Option {
	return func(c *clientConfig) { c.envFiles = append(c.envFiles, files...) }
}

// WithUserID sets the user recorded for checks that do not name one.
func WithUserID(id string) Option {
	return func(c *clientConfig) { c.userID = id }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = l }
}

// withProvider replaces the configured reasoning backend.
func withProvider(p provider.Provider) Option {
	return func(c *clientConfig) { c.provider = p }
}

// WrapOption configures a single Wrap call.
type WrapOption func(*wrapConfig)

type wrapConfig struct {
	projectID string
	userID    string
	signature string
}

// WrapWithProject sets the project messages are checked against. Required.
func WrapWithProject(id string) WrapOption {
	return func(w *wrapConfig) { w.projectID = id }
}

// WrapWithUser overrides the client-level user for this wrap.
func WrapWithUser(id string) WrapOption {
	return func(w *wrapConfig) { w.userID = id }
}

// WrapWithSignature resumes a conversation from a signature returned by an
// earlier check.
func WrapWithSignature(sig string) WrapOption {
	return func(w *wrapConfig) { w.signature = sig }
}
