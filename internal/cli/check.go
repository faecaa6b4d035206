package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/scopeguard/internal/app"
	"github.com/ppiankov/scopeguard/internal/client"
	"github.com/ppiankov/scopeguard/internal/guardian"
	"github.com/ppiankov/scopeguard/internal/model"
)

// exitDenied is the exit code for a message that is not in scope.
const exitDenied = 2

var (
	checkProject   string
	checkUser      string
	checkSignature string
	checkServer    string
	checkFormat    string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVarP(&checkProject, "project", "p", "", "Project ID (required)")
	checkCmd.Flags().StringVarP(&checkUser, "user", "u", "", "User ID recorded in the transcript (default $USER)")
	checkCmd.Flags().StringVarP(&checkSignature, "signature", "s", "", "Signature from the previous check in this conversation")
	checkCmd.Flags().StringVar(&checkServer, "server", "", "Check through a remote gRPC server (host:port) instead of in-process")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
	_ = checkCmd.MarkFlagRequired("project")
}

type evaluator interface {
	Evaluate(ctx context.Context, req guardian.Request) (model.Decision, error)
}

var checkCmd = &cobra.Command{
	Use:   "check <message>",
	Short: "Check one chat message against a project's scope",
	Long: "Evaluates a single message and prints the decision, the suggested reply and\n" +
		"the signature to pass to the next check in the same conversation.\n\n" +
		"Exit code 0 if allowed, 2 if not in scope, 1 on error.",
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	prior, err := model.ParseSignature(checkSignature)
	if err != nil {
		return fmt.Errorf("--signature: %w", err)
	}
	user := checkUser
	if user == "" {
		user = os.Getenv("USER")
	}
	if user == "" {
		user = "cli"
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var eval evaluator
	if checkServer != "" {
		c, err := client.New(checkServer)
		if err != nil {
			return err
		}
		defer c.Close()
		eval = c
	} else {
		a, err := app.Open(ctx, cfg, app.Options{Logger: logger})
		if err != nil {
			return err
		}
		defer a.Close()
		eval = a.Engine()
	}

	d, err := eval.Evaluate(ctx, guardian.Request{
		UserID:         user,
		ProjectID:      checkProject,
		Message:        strings.Join(args, " "),
		PriorSignature: prior,
	})
	if err != nil && !errors.Is(err, guardian.ErrProviderUnavailable) {
		return err
	}
	if err != nil {
		// Remote fail-closed decisions are printed, then reported.
		if d.Reasoning == "" {
			return err
		}
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	if err := printDecision(cmd.OutOrStdout(), d, checkFormat); err != nil {
		return err
	}
	if !d.IsAllowed {
		// Let deferred closes drain the transcript first.
		cmd.SilenceErrors = true
		return errDenied
	}
	return nil
}

var errDenied = errors.New("not in scope")

func printDecision(w io.Writer, d model.Decision, format string) error {
	if format == "json" {
		out, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(out))
		return nil
	}

	verdict := "ALLOWED"
	if !d.IsAllowed {
		verdict = "NOT IN SCOPE"
	}
	fmt.Fprintf(w, "%s", verdict)
	if d.Basis != "" && d.Basis != model.BasisProvider {
		fmt.Fprintf(w, " (%s)", d.Basis)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Reasoning:  %s\n", d.Reasoning)
	fmt.Fprintf(w, "Reply:      %s\n", d.SuggestedResponse)
	if sig := d.NewSignature.Encode(); sig != "" {
		fmt.Fprintf(w, "Signature:  %s\n", sig)
	}
	return nil
}
