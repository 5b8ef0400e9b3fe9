package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/vidq/pkg/app"
	"github.com/otherjamesbrown/vidq/pkg/logging"
	"github.com/otherjamesbrown/vidq/pkg/scrape"
	"github.com/otherjamesbrown/vidq/pkg/youtube"
)

var errNoScrapeQueue = errors.New("no scrape queue; set scrape.backend to redis")

// NewScrapeCommand creates the 'scrape' command group.
func NewScrapeCommand(deps *AppCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultAppDeps()
	}

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Manage the transcript fetch queue",
		Long: `Queue transcript fetches and run the worker that completes them.

Questions about a video with no stored transcript queue a fetch
automatically. The worker ingests caption files that an external
downloader (such as yt-dlp) writes to a directory, named after the video
ID, for example "dQw4w9WgXcQ.en.vtt".

The memory backend only lives as long as one process, so use the redis
backend when queueing and working from separate commands.`,
	}

	cmd.AddCommand(newScrapeAddCommand(deps))
	cmd.AddCommand(newScrapeStatusCommand(deps))
	cmd.AddCommand(newScrapeWorkCommand(deps))
	return cmd
}

func newScrapeAddCommand(deps *AppCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "add <video>...",
		Short: "Queue transcript fetches",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrapeAdd(cmd.Context(), cmd.OutOrStdout(), deps, args)
		},
	}
}

func newScrapeStatusCommand(deps *AppCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the queue depth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrapeStatus(cmd.Context(), cmd.OutOrStdout(), deps)
		},
	}
}

func newScrapeWorkCommand(deps *AppCommandDeps) *cobra.Command {
	var dir string
	cfg := scrape.DefaultWorkerConfig()
	cmd := &cobra.Command{
		Use:   "work --dir <captions>",
		Short: "Ingest queued videos from a caption directory",
		Long: `Run the scrape worker until interrupted. Each queued video is looked up
in --dir; when no caption file exists yet the job is retried with
backoff, then dead-lettered.

Examples:
  vidq scrape work --dir ~/captions`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrapeWork(cmd.Context(), cmd.OutOrStdout(), deps, dir, cfg)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directory holding caption files (required)")
	cmd.Flags().IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "Jobs taken per poll")
	cmd.Flags().DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "How long to wait for new jobs")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func openQueue(deps *AppCommandDeps) (*app.App, scrape.Queue, error) {
	a, _, err := deps.open()
	if err != nil {
		return nil, nil, err
	}
	q, err := a.ScrapeQueue()
	if err != nil {
		a.Close()
		return nil, nil, fmt.Errorf("opening scrape queue: %w", err)
	}
	if q == nil {
		a.Close()
		return nil, nil, errNoScrapeQueue
	}
	return a, q, nil
}

func runScrapeAdd(ctx context.Context, out io.Writer, deps *AppCommandDeps, videos []string) error {
	a, q, err := openQueue(deps)
	if err != nil {
		return err
	}
	defer a.Close()

	trigger := scrape.NewTrigger(q, deps.logger())
	for _, v := range videos {
		url := v
		if youtube.IsVideoID(v) {
			url = youtube.WatchURL(v)
		}
		if err := trigger.TriggerScrape(ctx, url); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s\n", OKStyle.Render("Queued"), v)
	}
	return nil
}

func runScrapeStatus(ctx context.Context, out io.Writer, deps *AppCommandDeps) error {
	a, q, err := openQueue(deps)
	if err != nil {
		return err
	}
	defer a.Close()

	depth, err := q.Depth(ctx)
	if err != nil {
		return fmt.Errorf("reading queue depth: %w", err)
	}
	if done, err := writeStructured(out, a.Config().OutputFormat, map[string]any{
		"backend": a.Config().Scrape.Backend,
		"pending": depth,
	}); done {
		return err
	}
	fmt.Fprintf(out, "%s %s\n", label("Backend"), a.Config().Scrape.Backend)
	fmt.Fprintf(out, "%s %d\n", label("Pending"), depth)
	return nil
}

func runScrapeWork(ctx context.Context, out io.Writer, deps *AppCommandDeps, dir string, cfg scrape.WorkerConfig) error {
	a, q, err := openQueue(deps)
	if err != nil {
		return err
	}
	defer a.Close()
	log := deps.logger()

	worker := scrape.NewWorker(q, a.DirectoryHandler(dir), cfg, log)
	log.Info("Scrape worker started", logging.F("dir", dir))
	runErr := worker.Run(ctx)

	processed, failed := worker.Stats()
	fmt.Fprintf(out, "%s %d processed, %d failed\n", TitleStyle.Render("Worker stopped:"), processed, failed)
	return runErr
}
