// loom-ingest loads NDJSON channel record files into the record store and
// optionally replays them on the live feed.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MikeSquared-Agency/loom/internal/config"
	"github.com/MikeSquared-Agency/loom/internal/feed"
	"github.com/MikeSquared-Agency/loom/internal/ingest"
	"github.com/MikeSquared-Agency/loom/internal/store"
)

func main() {
	var (
		dir        = flag.String("dir", "", "directory of .ndjson record files")
		singleFile = flag.String("file", "", "ingest a single file instead of a directory")
		channelID  = flag.String("channel", "", "channel id to ingest into (required)")
		batchSize  = flag.Int("batch", 500, "records per insert batch")
		dryRun     = flag.Bool("dry-run", false, "parse and count, write nothing")
		publish    = flag.Bool("publish", false, "also publish ingested records on the live feed")
	)
	flag.Parse()

	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	if *channelID == "" {
		slog.Error("-channel is required")
		os.Exit(1)
	}
	if *dir == "" && *singleFile == "" {
		slog.Error("one of -dir or -file is required")
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("interrupt received, stopping after current file")
		cancel()
	}()

	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var publisher ingest.Publisher
	if *publish {
		feedClient, err := feed.Connect(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer feedClient.Close()
		publisher = feedClient
	}

	runner := ingest.NewRunner(ingest.Config{
		Dir:        *dir,
		SingleFile: *singleFile,
		ChannelID:  *channelID,
		BatchSize:  *batchSize,
		DryRun:     *dryRun,
	}, db, publisher, slog.Default())

	sum, err := runner.Run(ctx)
	if err != nil {
		slog.Error("ingest failed", "error", err, "files_done", sum.Files, "records", sum.Records)
		os.Exit(1)
	}
	slog.Info("ingest complete",
		"files", sum.Files, "records", sum.Records, "malformed", sum.Malformed, "dry_run", *dryRun)
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
