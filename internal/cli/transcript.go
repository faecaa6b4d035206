package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/scopeguard/internal/transcript"
)

var (
	tailLines int

	replayProject string
	replayUser    string
	replayFrom    string
	replayTo      string
	replayLast    int
	replayFormat  string
	replaySource  string
)

func init() {
	rootCmd.AddCommand(transcriptCmd)
	transcriptCmd.AddCommand(transcriptVerifyCmd)
	transcriptCmd.AddCommand(transcriptTailCmd)
	transcriptCmd.AddCommand(transcriptReplayCmd)

	transcriptTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")

	transcriptReplayCmd.Flags().StringVarP(&replayProject, "project", "p", "", "Only entries for this project")
	transcriptReplayCmd.Flags().StringVarP(&replayUser, "user", "u", "", "Only entries for this user")
	transcriptReplayCmd.Flags().StringVar(&replayFrom, "from", "", "Start time filter (RFC3339)")
	transcriptReplayCmd.Flags().StringVar(&replayTo, "to", "", "End time filter (RFC3339)")
	transcriptReplayCmd.Flags().IntVar(&replayLast, "last", 0, "Only the most recent N entries")
	transcriptReplayCmd.Flags().StringVarP(&replayFormat, "format", "f", "text", "Output format (text|json)")
	transcriptReplayCmd.Flags().StringVar(&replaySource, "source", "log", "Read from the hash-chained log or the database (log|db)")
}

var transcriptCmd = &cobra.Command{
	Use:   "transcript",
	Short: "Transcript operations",
	Long:  "Commands for verifying and inspecting the hash-chained decision transcript.",
}

var transcriptVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify hash chain integrity of the transcript",
	Long: "Walks the JSONL transcript and validates that every entry's prev_hash\n" +
		"matches the SHA-256 of the previous entry and that no entry ID repeats.\n" +
		"Exits 0 if valid, 1 if tampered.",
	Args: cobra.MaximumNArgs(1),
	RunE: runTranscriptVerify,
}

var transcriptTailCmd = &cobra.Command{
	Use:   "tail [path]",
	Short: "Show recent transcript entries",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTranscriptTail,
}

var transcriptReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay decisions for a project or user",
	Long: "Filters the transcript by project, user and time range and renders a\n" +
		"decision timeline with an outcome summary.",
	Args: cobra.NoArgs,
	RunE: runTranscriptReplay,
}

func transcriptPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.Storage.TranscriptLog
}

func runTranscriptVerify(cmd *cobra.Command, args []string) error {
	result := transcript.Verify(transcriptPath(args))
	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	os.Exit(1)
	return nil
}

func runTranscriptTail(cmd *cobra.Command, args []string) error {
	result, err := transcript.Replay(transcriptPath(args), transcript.Filter{Last: tailLines})
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), transcript.FormatTimeline(result))
	return nil
}

func runTranscriptReplay(cmd *cobra.Command, args []string) error {
	filter := transcript.Filter{ProjectID: replayProject, UserID: replayUser, Last: replayLast}
	if replayFrom != "" {
		from, err := time.Parse(time.RFC3339, replayFrom)
		if err != nil {
			return fmt.Errorf("invalid --from time %q: %w", replayFrom, err)
		}
		filter.From = from
	}
	if replayTo != "" {
		to, err := time.Parse(time.RFC3339, replayTo)
		if err != nil {
			return fmt.Errorf("invalid --to time %q: %w", replayTo, err)
		}
		filter.To = to
	}

	var result *transcript.Result
	switch replaySource {
	case "db":
		store, err := transcript.OpenStore(cfg.Storage.Database)
		if err != nil {
			return err
		}
		defer store.Close()
		result, err = store.Query(cmd.Context(), filter)
		if err != nil {
			return err
		}
	case "log":
		var err error
		result, err = transcript.Replay(cfg.Storage.TranscriptLog, filter)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown --source %q (log|db)", replaySource)
	}

	switch replayFormat {
	case "json":
		out, err := transcript.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	default:
		fmt.Fprint(cmd.OutOrStdout(), transcript.FormatTimeline(result))
	}
	return nil
}
