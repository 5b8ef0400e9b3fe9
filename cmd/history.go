package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the 'history' command.
func NewHistoryCommand(deps *AppCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultAppDeps()
	}
	var video string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently answered questions",
		Long: `List questions recorded in the history database, newest first.

History is kept in PostgreSQL when history.enabled is true and
history.url (or VIDQ_HISTORY_URL) is set.

Examples:
  vidq history
  vidq history --video dQw4w9WgXcQ --limit 5 --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), cmd.OutOrStdout(), deps, video, limit)
		},
	}
	cmd.Flags().StringVarP(&video, "video", "v", "", "Only questions about this video ID")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show")
	return cmd
}

func runHistory(ctx context.Context, out io.Writer, deps *AppCommandDeps, video string, limit int) error {
	a, cfg, err := deps.open()
	if err != nil {
		return err
	}
	defer a.Close()

	h, err := a.History()
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	if h == nil {
		return errors.New("history is not configured; set history.enabled and history.url")
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	entries, err := h.Recent(ctx, strings.TrimSpace(video), limit)
	if err != nil {
		return err
	}
	if done, err := writeStructured(out, cfg.OutputFormat, entries); done {
		return err
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, DimStyle.Render("No questions recorded."))
		return nil
	}
	for _, e := range entries {
		outcome := OKStyle.Render(e.Outcome)
		if e.ErrorCode != "" {
			outcome = ErrorStyle.Render(e.Outcome + " " + e.ErrorCode)
		}
		fmt.Fprintf(out, "%s  %s  %s  %s\n",
			DimStyle.Render(e.CreatedAt.Local().Format("2006-01-02 15:04")),
			padRight(valueOrDefault(e.VideoID, "-"), 11),
			padRight(e.Intent, 10),
			outcome)
		fmt.Fprintf(out, "  %s\n", e.Query)
	}
	return nil
}
