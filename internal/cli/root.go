package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/scopeguard/internal/config"
	"github.com/ppiankov/scopeguard/internal/logging"
)

var (
	configPath string
	envFile    string
	debug      bool

	// cfg and cfgHash are loaded before every command that needs them.
	cfg     *config.Config
	cfgHash string
)

var rootCmd = &cobra.Command{
	Use:   "scopeguard",
	Short: "Scope compliance guardian for project chat",
	Long: "Checks client chat messages against a project's contracted scope of work\n" +
		"before anyone replies, and keeps a tamper-evident transcript of every decision.",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config YAML (default ~/.scopeguard/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file with secrets (skipped when missing)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Development logging at debug level")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errDenied) {
			os.Exit(exitDenied)
		}
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if cmd.Annotations["config"] == "skip" {
		return nil
	}
	if err := config.LoadEnv(envFile); err != nil {
		return err
	}
	loaded, hash, err := config.LoadWithHash(configPath)
	if err != nil {
		return err
	}
	cfg, cfgHash = loaded, hash
	return nil
}

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}

func newLogger() (*zap.Logger, error) {
	lc := cfg.Log
	if debug {
		lc = logging.Config{Level: "debug", Development: true}
	}
	return logging.New(lc)
}
