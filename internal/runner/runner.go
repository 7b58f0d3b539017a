package runner

import (
	"context"
	"errors"
	"fmt"

	"histsync/config"
	"histsync/internal/history"
	"histsync/internal/migrate"
	"histsync/pkg/storage/postgres"

	"go.uber.org/zap"
)

// Exit codes of the migrator process.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitMismatch = 2
)

// Run opens the configured Postgres stores and executes one migration.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*migrate.Report, error) {
	src, err := postgres.Open(cfg.Source, cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	dests := make([]migrate.Destination, 0, len(cfg.Destinations))
	for _, dc := range cfg.Destinations {
		dest, err := postgres.Open(dc, cfg.Env)
		if err != nil {
			return nil, fmt.Errorf("failed to open destination: %w", err)
		}
		defer dest.Close()
		dests = append(dests, dest)
	}

	return Execute(ctx, cfg, logger, src, dests)
}

// Execute builds the reader, writers and controller from cfg and runs them
// against the given stores, resuming from the checkpoint when requested.
func Execute(ctx context.Context, cfg *config.Config, logger *zap.Logger, src migrate.Source, dests []migrate.Destination) (*migrate.Report, error) {
	m := cfg.Migration

	mode, err := history.ParseMode(m.Mode)
	if err != nil {
		return nil, err
	}
	pagination, err := migrate.ParsePagination(m.Pagination)
	if err != nil {
		return nil, err
	}

	var dumper *migrate.Dumper
	if m.DumpDir != "" {
		if dumper, err = migrate.NewDumper(m.DumpDir); err != nil {
			return nil, err
		}
	}

	writers := make([]*migrate.BatchWriter, 0, len(dests))
	for _, d := range dests {
		opts := []migrate.WriterOption{
			migrate.WithWriteTimeout(m.QueryTimeout),
			migrate.WithRetry(m.MaxRetries, m.RetryBackoff),
			migrate.WithWriterLogger(logger),
		}
		if dumper != nil {
			opts = append(opts, migrate.WithDumper(dumper))
		}
		writers = append(writers, migrate.NewBatchWriter(d, mode, opts...))
	}

	opts := []migrate.ControllerOption{
		migrate.WithLogger(logger),
		migrate.WithPacer(migrate.NewPacer(m.BatchDelay)),
	}
	var cp *migrate.CheckpointStore
	if m.CheckpointFile != "" {
		cp = migrate.NewCheckpointStore(m.CheckpointFile)
		opts = append(opts, migrate.WithCheckpoint(cp))
	}

	reader := migrate.NewPageReader(src, m.Range(), m.QueryTimeout)
	ctrl, err := migrate.NewController(reader, writers, m.BatchSize, pagination, opts...)
	if err != nil {
		return nil, err
	}

	state := ctrl.NewState()
	if m.Resume && cp != nil {
		loaded, err := cp.Load()
		switch {
		case errors.Is(err, migrate.ErrNoCheckpoint):
			logger.Info("no checkpoint found, starting from the beginning", zap.String("path", cp.Path()))
		case err != nil:
			return nil, err
		default:
			logger.Info("resuming from checkpoint",
				zap.String("path", cp.Path()),
				zap.Int("batches", loaded.Batches),
				zap.Int64("total_written", loaded.TotalWritten),
			)
			state = loaded
		}
	}

	return ctrl.Run(ctx, state)
}

// ExitCode maps a run outcome to the process exit status. A verification
// mismatch only fails the process when strict is set.
func ExitCode(report *migrate.Report, err error, strict bool) int {
	if err != nil {
		return ExitFailure
	}
	if report != nil && report.Mismatch() && strict {
		return ExitMismatch
	}
	return ExitOK
}

// Finish logs the outcome the controller did not already log and returns
// the exit code. Failures inside a run are logged by the controller, so
// only errors raised before it started are logged here.
func Finish(logger *zap.Logger, report *migrate.Report, err error, strict bool) int {
	code := ExitCode(report, err, strict)
	switch {
	case err != nil && report == nil:
		logger.Error("migration could not start", zap.Error(err))
	case code == ExitMismatch:
		logger.Error("verification mismatch with strict_verify enabled")
	}
	return code
}
