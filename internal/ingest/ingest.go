// Package ingest loads channel record files into the record store. Files are
// newline-delimited JSON, one raw record per line, named so lexicographic
// order matches delivery order.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Sink receives parsed records in delivery order. Satisfied by *store.Store.
type Sink interface {
	InsertRecords(ctx context.Context, channelID string, records []json.RawMessage) (int, error)
}

// Publisher optionally fans ingested records out on the live feed.
type Publisher interface {
	Publish(channelID string, record any) error
}

// Config holds the ingest command configuration.
type Config struct {
	Dir        string
	SingleFile string // process a single file only
	ChannelID  string
	BatchSize  int
	DryRun     bool // parse and count, write nothing
}

// Summary reports what one run did.
type Summary struct {
	Files     int
	Records   int
	Malformed int
}

type Runner struct {
	cfg    Config
	sink   Sink
	feed   Publisher // nil disables fan-out
	logger *slog.Logger
}

func NewRunner(cfg Config, sink Sink, feed Publisher, logger *slog.Logger) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Runner{cfg: cfg, sink: sink, feed: feed, logger: logger}
}

// Run ingests every discovered file. Interruption via ctx stops between
// files; records already written stay written.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	files, err := r.discoverFiles()
	if err != nil {
		return Summary{}, fmt.Errorf("discover files: %w", err)
	}
	r.logger.Info("files discovered", "count", len(files), "channel_id", r.cfg.ChannelID)

	var sum Summary
	for _, path := range files {
		select {
		case <-ctx.Done():
			r.logger.Info("ingest interrupted", "files_done", sum.Files)
			return sum, ctx.Err()
		default:
		}

		records, malformed, err := parseFile(path)
		if err != nil {
			r.logger.Warn("failed to read file", "path", path, "error", err)
			continue
		}
		sum.Malformed += malformed

		if r.cfg.DryRun {
			r.logger.Info("dry run", "path", path, "records", len(records), "malformed", malformed)
			sum.Files++
			sum.Records += len(records)
			continue
		}

		if err := r.write(ctx, records); err != nil {
			return sum, fmt.Errorf("write %s: %w", path, err)
		}
		r.logger.Info("file ingested", "path", path, "records", len(records), "malformed", malformed)
		sum.Files++
		sum.Records += len(records)
	}
	return sum, nil
}

func (r *Runner) write(ctx context.Context, records []json.RawMessage) error {
	for start := 0; start < len(records); start += r.cfg.BatchSize {
		end := start + r.cfg.BatchSize
		if end > len(records) {
			end = len(records)
		}
		if _, err := r.sink.InsertRecords(ctx, r.cfg.ChannelID, records[start:end]); err != nil {
			return err
		}
	}
	if r.feed != nil {
		for _, rec := range records {
			if err := r.feed.Publish(r.cfg.ChannelID, rec); err != nil {
				r.logger.Warn("failed to publish ingested record", "error", err)
			}
		}
	}
	return nil
}

func (r *Runner) discoverFiles() ([]string, error) {
	if r.cfg.SingleFile != "" {
		return []string{r.cfg.SingleFile}, nil
	}
	entries, err := os.ReadDir(r.cfg.Dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".ndjson") {
			continue
		}
		files = append(files, filepath.Join(r.cfg.Dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// parseFile reads one NDJSON file. Lines that are not valid JSON are kept as
// JSON string literals so the channel adapters degrade them downstream
// instead of the record silently disappearing.
func parseFile(path string) ([]json.RawMessage, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var (
		records   []json.RawMessage
		malformed int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if json.Valid([]byte(line)) {
			records = append(records, json.RawMessage(line))
			continue
		}
		malformed++
		wrapped, err := json.Marshal(line)
		if err != nil {
			continue
		}
		records = append(records, json.RawMessage(wrapped))
	}
	if err := scanner.Err(); err != nil {
		return nil, malformed, err
	}
	return records, malformed, nil
}
