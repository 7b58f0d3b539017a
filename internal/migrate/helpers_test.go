package migrate_test

import (
	"context"
	"sync"
	"testing"

	"histsync/internal/history"
	"histsync/internal/migrate"
	"histsync/pkg/storage/memory"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const baseTS int64 = 1767348000

// seed inserts n hourly rows for one pair starting at baseTS.
func seed(t *testing.T, store *memory.MemoryStore, exchange, symbol string, n int) {
	t.Helper()
	rows := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, map[string]any{
			"exchange":       exchange,
			"symbol":         symbol,
			"hour_timestamp": baseTS + int64(i)*3600,
			"min_price":      "42000.5",
			"max_price":      "42100.25",
			"sample_count":   int64(60),
			"volatility":     "0.013",
		})
	}
	require.NoError(t, store.Insert(rows...))
}

// recordingDest remembers every submitted batch.
type recordingDest struct {
	*memory.MemoryStore

	mu      sync.Mutex
	batches [][]history.Key
}

func newRecordingDest(name string) *recordingDest {
	return &recordingDest{MemoryStore: memory.NewMemoryStore(name)}
}

func (d *recordingDest) UpsertHistory(ctx context.Context, records []history.Record, mode history.Mode) (int64, error) {
	keys := make([]history.Key, 0, len(records))
	for _, r := range records {
		keys = append(keys, r.Key())
	}
	d.mu.Lock()
	d.batches = append(d.batches, keys)
	d.mu.Unlock()
	return d.MemoryStore.UpsertHistory(ctx, records, mode)
}

func (d *recordingDest) sizes() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int, 0, len(d.batches))
	for _, b := range d.batches {
		out = append(out, len(b))
	}
	return out
}

func (d *recordingDest) keys() []history.Key {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []history.Key
	for _, b := range d.batches {
		out = append(out, b...)
	}
	return out
}

type runOpts struct {
	rng        history.Range
	mode       history.Mode
	pagination migrate.Pagination
	batchSize  int
	extra      []migrate.ControllerOption
}

func defaults() runOpts {
	return runOpts{
		rng:        history.NewRange(baseTS, 0),
		mode:       history.InsertIfAbsent,
		pagination: migrate.Keyset,
		batchSize:  500,
	}
}

func newController(t *testing.T, src migrate.Source, dests []migrate.Destination, o runOpts) *migrate.Controller {
	t.Helper()
	logger := zaptest.NewLogger(t)

	writers := make([]*migrate.BatchWriter, 0, len(dests))
	for _, d := range dests {
		writers = append(writers, migrate.NewBatchWriter(d, o.mode, migrate.WithWriterLogger(logger)))
	}

	opts := append([]migrate.ControllerOption{migrate.WithLogger(logger)}, o.extra...)
	c, err := migrate.NewController(migrate.NewPageReader(src, o.rng, 0), writers, o.batchSize, o.pagination, opts...)
	require.NoError(t, err)
	return c
}

func run(t *testing.T, src migrate.Source, dests []migrate.Destination, o runOpts) (*migrate.Report, error) {
	t.Helper()
	c := newController(t, src, dests, o)
	return c.Run(context.Background(), c.NewState())
}

// pacerFunc adapts a function to migrate.Pacer.
type pacerFunc func(ctx context.Context) error

func (f pacerFunc) Wait(ctx context.Context) error { return f(ctx) }

// orderedSource serves rows in a fixed order, the way a store with a
// linguistic collation orders text keys. A keyset cursor resumes after its
// position in that order. With stuck set every query returns the first page.
type orderedSource struct {
	rows  []map[string]any
	stuck bool
}

func (s *orderedSource) Name() string { return "ordered" }

func (s *orderedSource) QueryHistory(_ context.Context, q history.PageQuery) ([]map[string]any, error) {
	start := q.Offset
	if q.After != nil {
		start = s.after(*q.After)
	}
	if start >= len(s.rows) {
		return nil, nil
	}
	end := start + q.Limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return s.rows[start:end], nil
}

func (s *orderedSource) after(cur history.Key) int {
	if s.stuck {
		return 0
	}
	for i, row := range s.rows {
		if k, err := history.KeyOf(row); err == nil && k == cur {
			return i + 1
		}
	}
	return len(s.rows)
}

func (s *orderedSource) CountHistory(context.Context, history.Range) (int64, error) {
	return int64(len(s.rows)), nil
}
