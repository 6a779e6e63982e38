// Package json implements an exporter that keeps records in a JSON array file.
package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ArionMiles/kakeibo/pkg/api"
	"github.com/ArionMiles/kakeibo/pkg/export/buffered"
	"github.com/ArionMiles/kakeibo/pkg/logging"
)

// Writer writes records to a JSON file with buffered batching.
// Records already in the file are kept; a record whose key is already
// present is replaced in place.
type Writer struct {
	filePath string
	records  []*api.Record
	index    map[string]int
	mu       sync.Mutex
	buffered *buffered.Writer
	logger   *slog.Logger
}

// Config holds configuration for the JSON writer.
type Config struct {
	// FilePath is the path to the JSON output file.
	FilePath string
	// BatchSize is the number of records to buffer before writing.
	BatchSize int
	// FlushInterval is the interval between automatic flushes.
	FlushInterval time.Duration
}

// New creates a JSON writer, loading any records already in the file.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	logger = logging.OrDefault(logger)

	w := &Writer{
		filePath: cfg.FilePath,
		index:    make(map[string]int),
		logger:   logger,
	}

	if err := w.loadExisting(); err != nil {
		return nil, fmt.Errorf("loading existing records: %w", err)
	}

	w.buffered = buffered.New(w.flushBatch, buffered.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, logger.With("component", "json_buffer"))

	logger.Info("json writer initialized", "file", cfg.FilePath, "existing_count", len(w.records))
	return w, nil
}

func (w *Writer) loadExisting() error {
	data, err := os.ReadFile(w.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, &w.records); err != nil {
		return err
	}
	for i, r := range w.records {
		w.index[r.Key] = i
	}
	return nil
}

// Write consumes records from in and writes them to the file.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Record) error {
	return w.buffered.Write(ctx, in)
}

func (w *Writer) flushBatch(_ context.Context, records []*api.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, r := range records {
		if i, ok := w.index[r.Key]; ok {
			w.records[i] = r
			continue
		}
		w.index[r.Key] = len(w.records)
		w.records = append(w.records, r)
	}

	// JSON arrays can't be appended to, so the whole file is rewritten.
	data, err := json.MarshalIndent(w.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling json: %w", err)
	}

	if err := os.WriteFile(w.filePath, data, 0o600); err != nil {
		return fmt.Errorf("writing json file: %w", err)
	}

	w.logger.Debug("wrote records to json",
		"batch_count", len(records),
		"total_count", len(w.records),
	)
	return nil
}

// RecordCount returns the number of records in the file.
func (w *Writer) RecordCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.records)
}
