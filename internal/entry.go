// Package internal provides the main application initialization and
// runtime logic.
package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/willingning/minote-sync/internal/assets"
	"github.com/willingning/minote-sync/internal/engine"
	"github.com/willingning/minote-sync/internal/gateway"
	"github.com/willingning/minote-sync/internal/manifest"
	"github.com/willingning/minote-sync/internal/progress"
	"github.com/willingning/minote-sync/internal/storage"
)

// Run executes one sync with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("root", cfg.Sync.Root),
		slog.Int("concurrency", cfg.Sync.Concurrency),
		slog.Bool("dry_run", cfg.Sync.DryRun),
		slog.String("log_level", cfg.App.LogLevel.String()))

	gw := app.gateway
	if gw == nil {
		if cfg.Remote.Cookie == "" {
			return fmt.Errorf("remote cookie is empty; set MINOTE_COOKIE or remote.cookie")
		}
		gw = gateway.NewMiCloud(cfg.Remote.BaseURL, cfg.Remote.Cookie, cfg.Remote.Timeout(), gateway.Backoff{
			MaxAttempts: cfg.Attachments.MaxRetries,
			Base:        500 * time.Millisecond,
			Max:         10 * time.Second,
		})
	}

	root, err := storage.NewRoot(cfg.Sync.Root)
	if err != nil {
		return fmt.Errorf("init sync root: %w", err)
	}
	store, err := manifest.Open(filepath.Join(root.Dir(), manifest.Filename))
	if err != nil {
		return fmt.Errorf("init manifest: %w", err)
	}
	defer store.Close()

	// Cancel the run on SIGINT/SIGTERM; in-flight notes finish or are
	// abandoned cleanly between pipeline stages.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker := progress.NewBroker()
	defer broker.Close()
	events := broker.Subscribe()
	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		for ev := range events {
			logger.Debug("progress",
				slog.String("stage", ev.Stage),
				slog.String("note_id", ev.NoteID),
				slog.String("detail", ev.Detail))
		}
	}()

	eng := engine.New(gw, store, root, engine.Options{
		Concurrency:      cfg.Sync.Concurrency,
		AttachmentFanOut: cfg.Attachments.FanOut,
		DryRun:           cfg.Sync.DryRun,
		Rule: assets.Rule{
			AudioIDMinLength: cfg.Attachments.AudioIDMinLength,
			AudioIDPrefixes:  cfg.Attachments.AudioIDPrefixes,
		},
	}, logger, broker)

	report, runErr := eng.Run(ctx)

	broker.Close()
	<-eventsDone

	logger.Info("Sync finished",
		slog.Int("created", len(report.Created)),
		slog.Int("updated", len(report.Updated)),
		slog.Int("skipped", len(report.Skipped)),
		slog.Int("failed", len(report.Failed)),
		slog.Int("failed_attachments", len(report.FailedAttachments)),
		slog.Int("orphans", len(report.Orphans)),
		slog.Int("anomalies", len(report.Anomalies)))

	for _, f := range report.Failed {
		logger.Warn("note failed", slog.String("note_id", f.NoteID), slog.String("title", f.Title), slog.String("error", f.Err))
	}
	for _, f := range report.FailedAttachments {
		logger.Warn("attachment failed", slog.String("note_id", f.NoteID), slog.String("attachment_id", f.AttachmentID), slog.String("error", f.Err))
	}
	for _, a := range report.Anomalies {
		logger.Warn("anomaly", slog.String("kind", a.Kind), slog.String("subject", a.Subject), slog.String("detail", a.Detail))
	}
	for _, id := range report.Orphans {
		logger.Info("orphaned manifest entry (remote note gone; not deleted locally)", slog.String("note_id", id))
	}

	if runErr != nil {
		return runErr
	}
	return nil
}
