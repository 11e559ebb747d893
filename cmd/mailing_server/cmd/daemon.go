package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/artisan-hosting/mailing-server/internal/config"
	"github.com/artisan-hosting/mailing-server/internal/mailer"
	"github.com/artisan-hosting/mailing-server/internal/server"
	"github.com/artisan-hosting/mailing-server/internal/spool"
	"github.com/artisan-hosting/mailing-server/internal/state"
	"github.com/artisan-hosting/mailing-server/internal/telemetry"
)

// runDaemon is the no-argument default: the installed unit starts the
// binary bare, with the config directory as its working directory.
func runDaemon(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("mailing_server: %w", err)
	}

	logger := setupLogger(cfg.App.LogLevel)
	logger.Info("starting mailing_server", "version", buildVersion, "config", cfg.String())

	store := state.NewStore(cfg.App.StatePath, "mailing_server", buildVersion, logger)
	if err := store.Load(); err != nil {
		return fmt.Errorf("mailing_server: %w", err)
	}

	metrics := telemetry.NewMetrics()
	sender := mailer.NewSMTPSender(cfg.SMTP, logger)
	queue := spool.NewDispatcher(spool.Config{
		Interval:  cfg.LoopInterval(),
		TTL:       cfg.QueueTTL(),
		RateLimit: cfg.App.RateLimit,
	}, sender, metrics, logger)
	intake := server.New(server.Config{Bind: cfg.App.Bind}, queue, store, metrics, logger)

	// SIGUSR1 is the daemon's historical shutdown signal; SIGTERM/SIGINT
	// are what systemd and interactive use actually deliver.
	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGTERM, unix.SIGINT, unix.SIGUSR1)
	defer stop()

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, unix.SIGHUP)
	defer signal.Stop(reload)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return intake.Run(gctx) })
	g.Go(func() error { return queue.Run(gctx) })
	g.Go(func() error { return metrics.Serve(gctx, cfg.App.MetricsBind, logger) })
	g.Go(func() error { return reloadLoop(gctx, reload, intake, queue, logger) })

	if err := store.SetActive(true, "Running"); err != nil {
		return fmt.Errorf("mailing_server: %w", err)
	}
	logger.Info("mailing server ready", "bind", cfg.App.Bind)

	err = g.Wait()

	if werr := store.WindDown(); werr != nil {
		logger.Error("state wind-down failed", "error", werr)
	}
	logger.Info("mailing server stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// reloadLoop handles SIGHUP: pause intake, drop the queue, re-read the
// config documents, resume. Settings that shape the running loops (bind
// address, intervals) need a restart to change; the reload validates the
// documents and applies the log level.
func reloadLoop(ctx context.Context, reload <-chan os.Signal, intake *server.Server, queue *spool.Dispatcher, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reload:
			logger.Info("received SIGHUP, reloading")
			intake.Pause()
			dropped := queue.Clear()

			cfg, err := config.Load(".")
			if err != nil {
				logger.Error("reload failed, keeping previous configuration", "error", err)
			} else {
				logLevel.Set(parseLevel(cfg.App.LogLevel))
				logger.Info("configuration reloaded", "config", cfg.String())
			}

			intake.Resume()
			logger.Info("reload complete", "dropped", dropped)
		}
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// logLevel backs the handler so a SIGHUP reload can adjust verbosity
// without rebuilding the logger.
var logLevel = new(slog.LevelVar)

func setupLogger(level string) *slog.Logger {
	logLevel.Set(parseLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
