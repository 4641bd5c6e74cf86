// Command catalog-worker runs the catalog ingestion worker and the cache
// maintenance tasks.
//
// Usage:
//
//	catalog-worker [-config path] [command] [args]
//
// Commands:
//
//	run                  consume ingestion jobs until interrupted (default)
//	warm                 load the first page of every hot list into the cache
//	flush                retire every cached list
//	check                report cache backend health as JSON
//	reprocess <id>...    probe the given tracks again and wait for the result
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/goliatone/go-catalog-cache/ingest"
	"github.com/goliatone/go-catalog-cache/internal/logging"
	"github.com/goliatone/go-catalog-cache/pkg/config"
	"github.com/goliatone/go-catalog-cache/pkg/di"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "path to a YAML config file (default $"+config.PathEnvVar+" or ./catalog.yaml)")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.Parse()

	if showVersion {
		fmt.Printf("catalog-worker %s\n", Version)
		return
	}

	if err := run(configPath, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	command := "run"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(cfg.Logging).With().Str("command", command).Logger()

	var opts []di.Option
	var finished chan finishedJob
	if command == "reprocess" {
		if len(args) == 0 {
			return errors.New("reprocess needs at least one music id")
		}
		finished = make(chan finishedJob, len(args))
		opts = append(opts, di.WithWorkerOptions(ingest.WithObserver(func(job ingest.Job, out ingest.Outcome, err error) {
			if !job.Reprocess {
				return
			}
			select {
			case finished <- finishedJob{job: job, out: out, err: err}:
			default:
			}
		})))
	}

	c, err := di.NewContainer(ctx, cfg, append(opts, di.WithLogger(logger))...)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn().Err(err).Msg("shutdown incomplete")
		}
	}()

	switch command {
	case "run":
		return serve(ctx, c, logger)
	case "warm":
		return c.QueryCache().Warm(ctx)
	case "flush":
		return c.Coordinator().Flush(ctx)
	case "check":
		return check(ctx, c)
	case "reprocess":
		return reprocess(ctx, c, args, finished, logger)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// serve supervises the ingestion worker and the metrics endpoint until ctx
// is cancelled.
func serve(ctx context.Context, c *di.Container, logger zerolog.Logger) error {
	cfg := c.Config()

	handler := &sutureslog.Handler{Logger: logging.Slog(logging.Component(logger, "supervisor"))}
	sup := suture.New("catalog-worker", suture.Spec{
		EventHook: handler.MustHook(),
		Timeout:   cfg.Ingest.CloseTimeout,
	})
	sup.Add(c.Worker())
	if cfg.Metrics.Enabled {
		sup.Add(newMetricsService(cfg.Metrics.Addr, c))
	}

	if cfg.Warm {
		if err := c.QueryCache().Warm(ctx); err != nil {
			logger.Warn().Err(err).Msg("cache warm-up incomplete")
		}
	}

	logger.Info().
		Str("version", Version).
		Int("workers", cfg.Ingest.Workers).
		Str("topic", cfg.Ingest.Topic).
		Msg("catalog worker started")

	err := sup.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info().Msg("catalog worker stopped")
		return nil
	}
	return err
}

func check(ctx context.Context, c *di.Container) error {
	status := c.QueryCache().Check(ctx)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(status); err != nil {
		return err
	}
	if !status.Healthy {
		return errors.New("cache backend unhealthy")
	}
	return nil
}

type finishedJob struct {
	job ingest.Job
	out ingest.Outcome
	err error
}

// reprocess runs the worker in the background, enqueues ids and waits for
// every job to finish.
func reprocess(ctx context.Context, c *di.Container, ids []string, finished <-chan finishedJob, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Worker().Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	select {
	case <-c.Worker().Running():
	case err := <-done:
		return fmt.Errorf("worker failed to start: %w", err)
	case <-time.After(30 * time.Second):
		return errors.New("worker failed to start")
	}

	pending := 0
	var errs []error
	for _, id := range ids {
		if err := c.Dispatcher().Reprocess(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("reprocess %s: %w", id, err))
			continue
		}
		pending++
	}

	for ; pending > 0; pending-- {
		select {
		case f := <-finished:
			if f.err != nil {
				errs = append(errs, fmt.Errorf("reprocess %s: %w", f.job.MusicID, f.err))
				continue
			}
			ev := logger.Info().Str("music_id", f.job.MusicID).Str("status", string(f.out.Status))
			if f.out.Duration != nil {
				ev = ev.Int("duration", *f.out.Duration)
			}
			ev.Msg("reprocessed")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errors.Join(errs...)
}
