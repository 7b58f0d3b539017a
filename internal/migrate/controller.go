package migrate

import (
	"context"
	"errors"
	"fmt"

	"histsync/internal/history"

	"go.uber.org/zap"
)

// Phase is a step of a migration run.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseFetchingTotal
	PhasePaging
	PhaseExporting
	PhaseWriting
	PhaseAdvancing
	PhaseVerifying
	PhaseSucceeded
	PhaseMismatchWarning
	PhaseFailed
)

var phaseNames = [...]string{
	"start", "fetching_total", "paging", "exporting", "writing", "advancing",
	"verifying", "succeeded", "mismatch_warning", "failed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// UnknownTotal is Report.Total when the source count could not be read.
const UnknownTotal int64 = -1

// Verification compares one destination's count with the rows written.
type Verification struct {
	Destination string
	Expected    int64
	Actual      int64
	Err         error // count failed; the destination could not be verified
}

func (v Verification) Passed() bool {
	return v.Err == nil && v.Actual >= v.Expected
}

// Report is the outcome of Run.
type Report struct {
	State         MigrationState
	Total         int64
	Phase         Phase
	Verifications []Verification
}

// Mismatch reports whether any destination failed verification.
func (r *Report) Mismatch() bool {
	for _, v := range r.Verifications {
		if !v.Passed() {
			return true
		}
	}
	return false
}

// Controller runs the sequential page, export, write, advance loop and
// verifies destination counts afterwards.
type Controller struct {
	reader     *PageReader
	writers    []*BatchWriter
	batchSize  int
	pagination Pagination

	pacer      Pacer
	checkpoint *CheckpointStore
	logger     *zap.Logger
	log        *zap.Logger // logger tagged with the run id
	onPhase    func(Phase)
}

type ControllerOption func(*Controller)

func WithPacer(p Pacer) ControllerOption {
	return func(c *Controller) { c.pacer = p }
}

// WithCheckpoint persists the state after every committed batch.
func WithCheckpoint(cs *CheckpointStore) ControllerOption {
	return func(c *Controller) { c.checkpoint = cs }
}

func WithLogger(l *zap.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// WithPhaseHook is called on every phase transition.
func WithPhaseHook(fn func(Phase)) ControllerOption {
	return func(c *Controller) { c.onPhase = fn }
}

// NewController builds a controller that writes every page to each writer
// in order. All writers must share one mode.
func NewController(reader *PageReader, writers []*BatchWriter, batchSize int, pagination Pagination, opts ...ControllerOption) (*Controller, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if len(writers) == 0 {
		return nil, errors.New("at least one destination is required")
	}
	for _, w := range writers[1:] {
		if w.Mode() != writers[0].Mode() {
			return nil, errors.New("destinations must share one write mode")
		}
	}
	if _, err := ParsePagination(string(pagination)); err != nil {
		return nil, err
	}

	c := &Controller{
		reader:     reader,
		writers:    writers,
		batchSize:  batchSize,
		pagination: pagination,
		pacer:      NewPacer(0),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewState returns an empty state matching this controller's run.
func (c *Controller) NewState() MigrationState {
	return NewState(c.reader.Range(), c.writers[0].Mode(), c.pagination)
}

// Run continues from state until the source returns an empty page, then
// verifies. The returned report always carries the last committed state;
// err is non-nil only for fatal failures.
func (c *Controller) Run(ctx context.Context, state MigrationState) (*Report, error) {
	report := &Report{State: state, Total: UnknownTotal}

	c.log = c.logger
	if state.RunID != "" {
		c.log = c.logger.With(zap.String("run_id", state.RunID))
	}

	if err := state.Compatible(c.reader.Range(), c.writers[0].Mode(), c.pagination); err != nil {
		return c.fail(report, err)
	}

	c.enter(report, PhaseStart)
	c.log.Info("migration started",
		zap.Stringer("range", state.Range),
		zap.Stringer("mode", state.Mode),
		zap.String("pagination", string(c.pagination)),
		zap.Int("batch_size", c.batchSize),
		zap.Int("destinations", len(c.writers)),
		zap.Int("resumed_batches", state.Batches),
	)

	c.enter(report, PhaseFetchingTotal)
	if total, err := c.reader.FetchTotal(ctx); err != nil {
		c.log.Warn("total count unavailable, progress is unbounded", zap.Error(err))
	} else {
		report.Total = total
		c.log.Info("source total", zap.Int64("total", total))
	}

	for {
		if err := c.pacer.Wait(ctx); err != nil {
			return c.fail(report, fmt.Errorf("wait for next batch: %w", err))
		}

		c.enter(report, PhasePaging)
		page, err := c.fetch(ctx, report.State)
		if err != nil {
			return c.fail(report, err)
		}
		if len(page) == 0 {
			break
		}

		batch := report.State.Batches + 1
		last := page[len(page)-1].Key()
		if cur := report.State.Cursor; c.pagination == Keyset && cur != nil && !advanced(*cur, last) {
			return c.fail(report, fmt.Errorf("batch %d: cursor did not advance past %s", batch, cur))
		}

		c.enter(report, PhaseExporting)
		for _, w := range c.writers {
			if err := w.Export(batch, page); err != nil {
				return c.fail(report, err)
			}
		}

		c.enter(report, PhaseWriting)
		results := make([]zap.Field, 0, len(c.writers))
		for _, w := range c.writers {
			res, err := w.Apply(ctx, batch, page)
			if err != nil {
				return c.fail(report, err)
			}
			results = append(results, zap.Int64(w.Destination().Name()+"_affected", res.Affected))
		}

		c.enter(report, PhaseAdvancing)
		next := report.State
		next.advance(c.batchSize, len(page), last)
		if c.checkpoint != nil {
			if err := c.checkpoint.Save(next); err != nil {
				return c.fail(report, fmt.Errorf("batch %d committed but checkpoint failed: %w", batch, err))
			}
		}
		report.State = next

		fields := []zap.Field{
			zap.Int("batch", batch),
			zap.Int("rows", len(page)),
			zap.Int64("total_written", next.TotalWritten),
			zap.Stringer("last_key", last),
		}
		if report.Total > 0 {
			fields = append(fields, zap.Float64("progress_pct", progress(next.TotalWritten, report.Total)))
		}
		c.log.Info("batch written", append(fields, results...)...)
	}

	c.enter(report, PhaseVerifying)
	report.Verifications = c.verify(ctx, report.State)

	if report.Mismatch() {
		c.enter(report, PhaseMismatchWarning)
		for _, v := range report.Verifications {
			if v.Passed() {
				continue
			}
			c.log.Warn("VERIFICATION MISMATCH",
				zap.String("destination", v.Destination),
				zap.Int64("expected", v.Expected),
				zap.Int64("actual", v.Actual),
				zap.Error(v.Err),
			)
		}
		return report, nil
	}

	c.enter(report, PhaseSucceeded)
	c.log.Info("migration completed",
		zap.Int("batches", report.State.Batches),
		zap.Int64("total_written", report.State.TotalWritten),
	)
	return report, nil
}

func (c *Controller) fetch(ctx context.Context, s MigrationState) ([]history.Record, error) {
	if c.pagination == Offset {
		return c.reader.FetchPage(ctx, s.Offset, c.batchSize)
	}
	return c.reader.FetchAfter(ctx, s.Cursor, c.batchSize)
}

func (c *Controller) verify(ctx context.Context, s MigrationState) []Verification {
	out := make([]Verification, 0, len(c.writers))
	for _, w := range c.writers {
		dest := w.Destination()
		v := Verification{Destination: dest.Name(), Expected: s.TotalWritten}

		n, err := dest.CountHistory(ctx, s.Range)
		if err != nil {
			v.Err = &TransportError{Op: "count", Store: dest.Name(), Err: err}
		} else {
			v.Actual = n
		}

		if v.Passed() {
			c.log.Info("verification passed",
				zap.String("destination", v.Destination),
				zap.Int64("expected", v.Expected),
				zap.Int64("actual", v.Actual),
			)
		}
		out = append(out, v)
	}
	return out
}

func (c *Controller) enter(r *Report, p Phase) {
	r.Phase = p
	if c.onPhase != nil {
		c.onPhase(p)
	}
}

func (c *Controller) fail(r *Report, err error) (*Report, error) {
	c.enter(r, PhaseFailed)
	c.log.Error("migration failed",
		zap.Int("committed_batches", r.State.Batches),
		zap.Int64("total_written", r.State.TotalWritten),
		zap.Error(err),
	)
	return r, err
}

// advanced reports whether a keyset page ending at last moved past cur.
// Text columns follow the store's collation, so only the timestamp order
// and a changed key are checked.
func advanced(cur, last history.Key) bool {
	return last != cur && last.HourTimestamp >= cur.HourTimestamp
}

func progress(done, total int64) float64 {
	pct := float64(done) / float64(total) * 100
	return float64(int64(pct*10)) / 10
}
