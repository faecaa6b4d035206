package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/scopeguard/internal/config"
)

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default scopeguard configuration",
	Long: `Creates the state directory and a commented config.yaml.

Default location:  ~/.scopeguard/config.yaml
With --config:     the given path`,
	Annotations: map[string]string{"config": "skip"},
	Args:        cobra.NoArgs,
	RunE:        runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := resolvedConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	wrote, err := writeIfMissing(path, config.DefaultYAML())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if wrote {
		fmt.Fprintf(w, "Created %s\n\n", path)
	} else {
		fmt.Fprintf(w, "%s already exists (use --force to overwrite).\n\n", path)
	}
	fmt.Fprintln(w, "Next:")
	fmt.Fprintln(w, "  export GEMINI_API_KEY=...          # or put it in .env")
	fmt.Fprintln(w, "  export SCOPEGUARD_JWT_SECRET=...")
	fmt.Fprintln(w, "  scopeguard project add --id promo --name \"Drone Launch Promo\" --deliverable \"Edited master\"")
	fmt.Fprintln(w, "  scopeguard check -p promo \"Can you add a 3D flyover?\"")
	return nil
}

// writeIfMissing writes content to path unless it exists and --force is not set.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
