package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/vidq/pkg/app"
	"github.com/otherjamesbrown/vidq/pkg/logging"
	"github.com/otherjamesbrown/vidq/pkg/scrape"
	"github.com/otherjamesbrown/vidq/pkg/server"
)

type serveFlags struct {
	httpAddr       string
	grpcAddr       string
	transcriptsDir string
}

// NewServeCommand creates the 'serve' command.
func NewServeCommand(deps *AppCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultAppDeps()
	}
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the question API over HTTP until interrupted.

Endpoints:
  POST /v1/ask       answer a question
  POST /v1/resolve   route a question without calling the model
  GET  /healthz      liveness
  GET  /readyz       backend readiness (postgres, history, redis)
  GET  /version      build info
  GET  /metrics      Prometheus metrics

A gRPC health service runs on --grpc-addr when set. With
--transcripts-dir, queued scrape requests are picked up from caption
files written to that directory (for example by yt-dlp).

Examples:
  vidq serve
  vidq serve --http-addr :8088 --grpc-addr ""
  vidq serve --transcripts-dir ~/captions`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), deps, flags, cmd.Flags().Changed("grpc-addr"))
		},
	}

	cmd.Flags().StringVar(&flags.httpAddr, "http-addr", "", "HTTP listen address (default: server.http_address)")
	cmd.Flags().StringVar(&flags.grpcAddr, "grpc-addr", "", "gRPC health listen address, empty to disable (default: server.grpc_address)")
	cmd.Flags().StringVar(&flags.transcriptsDir, "transcripts-dir", "", "Directory the scrape worker reads caption files from")
	return cmd
}

func runServe(ctx context.Context, deps *AppCommandDeps, flags serveFlags, grpcSet bool) error {
	a, cfg, err := deps.open()
	if err != nil {
		return err
	}
	defer a.Close()
	log := deps.logger()

	asst, err := a.Assistant()
	if err != nil {
		return fmt.Errorf("starting assistant: %w", err)
	}

	opts := server.Options{
		HTTPAddress:       cfg.Server.HTTPAddress,
		GRPCAddress:       cfg.Server.GRPCAddress,
		CORSOrigins:       cfg.Server.CORSOrigins,
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		RequestTimeout:    cfg.Timeout,
		Gatherer:          a.Gatherer(),
		Readiness:         a.Readiness(),
		Logger:            log,
	}
	if flags.httpAddr != "" {
		opts.HTTPAddress = flags.httpAddr
	}
	if grpcSet {
		opts.GRPCAddress = flags.grpcAddr
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workerDone := make(chan error, 1)
	if flags.transcriptsDir != "" {
		if err := startWorker(ctx, a, flags.transcriptsDir, log, workerDone); err != nil {
			return err
		}
	} else {
		workerDone <- nil
	}

	runErr := server.New(asst, opts).Run(ctx)
	cancel()
	if err := <-workerDone; err != nil {
		log.Warn("Scrape worker stopped", logging.Err(err))
	}
	return runErr
}

func startWorker(ctx context.Context, a *app.App, dir string, log logging.Logger, done chan<- error) error {
	q, err := a.ScrapeQueue()
	if err != nil {
		return fmt.Errorf("opening scrape queue: %w", err)
	}
	if q == nil {
		return fmt.Errorf("--transcripts-dir needs a scrape backend; set scrape.backend to memory or redis")
	}
	worker := scrape.NewWorker(q, a.DirectoryHandler(dir), scrape.DefaultWorkerConfig(), log)
	log.Info("Scrape worker started", logging.F("dir", dir))
	go func() { done <- worker.Run(ctx) }()
	return nil
}
