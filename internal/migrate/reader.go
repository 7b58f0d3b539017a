package migrate

import (
	"context"
	"fmt"
	"time"

	"histsync/internal/history"
)

// Source is the read side of a store.
type Source interface {
	Name() string
	QueryHistory(ctx context.Context, q history.PageQuery) ([]map[string]any, error)
	CountHistory(ctx context.Context, r history.Range) (int64, error)
}

// PageReader fetches ordered, decoded pages of one range from a source.
type PageReader struct {
	src     Source
	rng     history.Range
	timeout time.Duration
}

// NewPageReader scopes reads to rng. A positive timeout bounds every call.
func NewPageReader(src Source, rng history.Range, timeout time.Duration) *PageReader {
	return &PageReader{src: src, rng: rng, timeout: timeout}
}

func (r *PageReader) Range() history.Range { return r.rng }

// FetchPage returns up to limit records starting at offset.
func (r *PageReader) FetchPage(ctx context.Context, offset, limit int) ([]history.Record, error) {
	return r.fetch(ctx, history.PageQuery{Range: r.rng, Limit: limit, Offset: offset})
}

// FetchAfter returns up to limit records strictly after the cursor key.
// A nil cursor starts at the beginning of the range.
func (r *PageReader) FetchAfter(ctx context.Context, after *history.Key, limit int) ([]history.Record, error) {
	return r.fetch(ctx, history.PageQuery{Range: r.rng, Limit: limit, After: after})
}

// FetchTotal counts the rows in range. The result is advisory: the source
// may still be growing.
func (r *PageReader) FetchTotal(ctx context.Context) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	n, err := r.src.CountHistory(ctx, r.rng)
	if err != nil {
		return 0, &TransportError{Op: "count", Store: r.src.Name(), Err: err}
	}
	return n, nil
}

func (r *PageReader) fetch(ctx context.Context, q history.PageQuery) ([]history.Record, error) {
	if q.Limit <= 0 {
		return nil, fmt.Errorf("page limit must be positive, got %d", q.Limit)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.src.QueryHistory(ctx, q)
	if err != nil {
		return nil, &TransportError{Op: "query", Store: r.src.Name(), Err: err}
	}

	records := make([]history.Record, 0, len(rows))
	for i, row := range rows {
		rec, err := history.Decode(row)
		if err != nil {
			return nil, fmt.Errorf("%s: row %d of page: %w", r.src.Name(), i, err)
		}
		if !r.rng.Contains(rec.HourTimestamp) {
			return nil, fmt.Errorf("%s: row %d of page: %w", r.src.Name(), i, &history.DecodeError{
				Field:  history.ColHourTimestamp,
				Value:  rec.HourTimestamp,
				Reason: "outside requested range " + r.rng.String(),
			})
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *PageReader) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}
