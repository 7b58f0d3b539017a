package migrate

import (
	"context"
	"errors"
	"time"

	"histsync/internal/history"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Destination is the write side of a store. UpsertHistory must apply the
// records as one statement: all rows or none.
type Destination interface {
	Name() string
	UpsertHistory(ctx context.Context, records []history.Record, mode history.Mode) (int64, error)
	CountHistory(ctx context.Context, r history.Range) (int64, error)
}

// Result describes one applied batch.
type Result struct {
	Submitted int   // records in the statement
	Affected  int64 // rows inserted or replaced, as reported by the store
}

// BatchWriter applies pages to one destination with a fixed write mode.
type BatchWriter struct {
	dest    Destination
	mode    history.Mode
	timeout time.Duration

	maxRetries   int
	retryBackoff time.Duration

	dumper *Dumper
	logger *zap.Logger
}

type WriterOption func(*BatchWriter)

// WithWriteTimeout bounds every write attempt.
func WithWriteTimeout(d time.Duration) WriterOption {
	return func(w *BatchWriter) { w.timeout = d }
}

// WithRetry retries a failed statement up to n times with exponential
// backoff starting at initial. The default is no retry.
func WithRetry(n int, initial time.Duration) WriterOption {
	return func(w *BatchWriter) {
		w.maxRetries = n
		w.retryBackoff = initial
	}
}

// WithDumper writes each statement to disk before it is applied.
func WithDumper(d *Dumper) WriterOption {
	return func(w *BatchWriter) { w.dumper = d }
}

func WithWriterLogger(l *zap.Logger) WriterOption {
	return func(w *BatchWriter) { w.logger = l }
}

func NewBatchWriter(dest Destination, mode history.Mode, opts ...WriterOption) *BatchWriter {
	w := &BatchWriter{dest: dest, mode: mode, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *BatchWriter) Destination() Destination { return w.dest }

func (w *BatchWriter) Mode() history.Mode { return w.mode }

// Export renders the batch statement to the dump directory, if one is set.
func (w *BatchWriter) Export(batch int, records []history.Record) error {
	if w.dumper == nil || len(records) == 0 {
		return nil
	}
	path, err := w.dumper.Dump(batch, w.dest.Name(), records, w.mode)
	if err != nil {
		return err
	}
	w.logger.Debug("statement dumped", zap.Int("batch", batch), zap.String("path", path))
	return nil
}

// Apply writes records as one bulk idempotent statement. Any failure means
// none of the batch is considered written and is returned as *WriteError.
func (w *BatchWriter) Apply(ctx context.Context, batch int, records []history.Record) (Result, error) {
	if len(records) == 0 {
		return Result{}, nil
	}

	var affected int64
	op := func() error {
		attemptCtx, cancel := w.withTimeout(ctx)
		defer cancel()

		n, err := w.dest.UpsertHistory(attemptCtx, records, w.mode)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		affected = n
		return nil
	}

	var policy backoff.BackOff = &backoff.StopBackOff{}
	if w.maxRetries > 0 {
		eb := backoff.NewExponentialBackOff()
		if w.retryBackoff > 0 {
			eb.InitialInterval = w.retryBackoff
		}
		eb.MaxElapsedTime = 0
		policy = backoff.WithMaxRetries(eb, uint64(w.maxRetries))
	}

	notify := func(err error, wait time.Duration) {
		w.logger.Warn("batch write failed, retrying",
			zap.Int("batch", batch),
			zap.String("destination", w.dest.Name()),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(policy, ctx), notify); err != nil {
		var transport *TransportError
		if !errors.As(err, &transport) {
			err = &TransportError{Op: "upsert", Store: w.dest.Name(), Err: err}
		}
		return Result{}, &WriteError{Batch: batch, Destination: w.dest.Name(), Err: err}
	}

	return Result{Submitted: len(records), Affected: affected}, nil
}

func (w *BatchWriter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.timeout)
}
