// Package buffered provides a buffered writer base for batch exports.
package buffered

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ArionMiles/kakeibo/pkg/api"
	"github.com/ArionMiles/kakeibo/pkg/logging"
)

// DefaultBatchSize is the default number of records to buffer before flushing.
const DefaultBatchSize = 10

// DefaultFlushInterval is the default interval between automatic flushes.
const DefaultFlushInterval = 30 * time.Second

// Flusher is called with each batch that needs to be written.
type Flusher func(ctx context.Context, records []*api.Record) error

// Config holds configuration for buffered writing.
type Config struct {
	// BatchSize is the number of records to buffer before flushing.
	// Defaults to DefaultBatchSize.
	BatchSize int
	// FlushInterval is the interval between automatic flushes.
	// Defaults to DefaultFlushInterval.
	FlushInterval time.Duration
}

// Writer buffers records and flushes them in batches.
type Writer struct {
	buffer  []*api.Record
	mu      sync.Mutex
	flusher Flusher
	config  Config
	logger  *slog.Logger
	flushed int
	// failed holds the first flush error seen while running.
	failed error
}

// New creates a new buffered writer with the given flusher function.
func New(flusher Flusher, cfg Config, logger *slog.Logger) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}

	return &Writer{
		buffer:  make([]*api.Record, 0, cfg.BatchSize),
		flusher: flusher,
		config:  cfg,
		logger:  logging.OrDefault(logger),
	}
}

// Write consumes records until in is closed or ctx is canceled. Whatever is
// still buffered is flushed before returning. A failed flush drops its batch
// but keeps consuming; once in is closed, Write returns the first flush error
// joined with the final one. Cancellation returns context.Canceled.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Record) error {
	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()

	w.logger.Debug("buffered writer started",
		"batch_size", w.config.BatchSize,
		"flush_interval", w.config.FlushInterval,
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("buffered writer stopping, flushing remaining buffer")
			if err := w.flush(context.WithoutCancel(ctx)); err != nil {
				w.logger.Error("failed to flush on shutdown", "error", err)
			}
			return context.Canceled
		case <-ticker.C:
			if err := w.flush(ctx); err != nil {
				w.logger.Error("failed to flush on interval", "error", err)
				w.fail(err)
			}
		case record, ok := <-in:
			if !ok {
				return errors.Join(w.firstError(), w.flush(ctx))
			}
			if record == nil {
				continue
			}
			if w.add(record) {
				if err := w.flush(ctx); err != nil {
					w.logger.Error("failed to flush on batch size", "error", err)
					w.fail(err)
				}
			}
		}
	}
}

func (w *Writer) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failed == nil {
		w.failed = err
	}
}

func (w *Writer) firstError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failed
}

// add buffers r and reports whether the batch is full.
func (w *Writer) add(r *api.Record) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buffer = append(w.buffer, r)
	return len(w.buffer) >= w.config.BatchSize
}

func (w *Writer) flush(ctx context.Context) error {
	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return nil
	}
	batch := make([]*api.Record, len(w.buffer))
	copy(batch, w.buffer)
	w.buffer = w.buffer[:0]
	w.mu.Unlock()

	if err := w.flusher(ctx, batch); err != nil {
		return err
	}

	w.mu.Lock()
	w.flushed += len(batch)
	w.mu.Unlock()

	w.logger.Debug("flushed records", "count", len(batch))
	return nil
}

// BufferLen returns the current number of buffered records.
func (w *Writer) BufferLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}

// Flushed returns how many records have been handed to the flusher successfully.
func (w *Writer) Flushed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushed
}
