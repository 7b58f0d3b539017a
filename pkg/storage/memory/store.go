package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"histsync/internal/history"
)

// ErrInjected is returned by calls configured to fail.
var ErrInjected = errors.New("injected failure")

// MemoryStore is an in-process market_history table. It serves as source
// and destination in tests and dry runs, with optional failure injection.
type MemoryStore struct {
	mu   sync.Mutex
	name string
	rows map[history.Key]map[string]any

	upsertCalls int
	failUpsert  map[int]error // 1-based call number -> error
	queryErr    error
	countErr    error

	// CountHook rewrites the result of CountHistory, e.g. to simulate a
	// stale total or a short destination.
	CountHook func(n int64) (int64, error)
	// QueryHook runs before every page query, outside the lock, so it may
	// insert rows to simulate concurrent writers.
	QueryHook func(q history.PageQuery)
}

func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{
		name:       name,
		rows:       make(map[history.Key]map[string]any),
		failUpsert: make(map[int]error),
	}
}

func (m *MemoryStore) Name() string {
	return m.name
}

// Insert seeds raw rows, replacing rows with the same key.
func (m *MemoryStore) Insert(rows ...map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range rows {
		key, err := history.KeyOf(row)
		if err != nil {
			return err
		}
		m.rows[key] = copyRow(row)
	}
	return nil
}

// Get returns the stored row for key.
func (m *MemoryStore) Get(key history.Key) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[key]
	if !ok {
		return nil, false
	}
	return copyRow(row), true
}

// Len returns the number of stored rows.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// FailUpsertOn makes the n-th UpsertHistory call (1-based) return err.
func (m *MemoryStore) FailUpsertOn(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	m.failUpsert[n] = err
}

// FailQueries makes every QueryHistory call return err; nil clears it.
func (m *MemoryStore) FailQueries(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryErr = err
}

// FailCounts makes every CountHistory call return err; nil clears it.
func (m *MemoryStore) FailCounts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.countErr = err
}

// UpsertCalls returns how many UpsertHistory calls were made.
func (m *MemoryStore) UpsertCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertCalls
}

func (m *MemoryStore) QueryHistory(ctx context.Context, q history.PageQuery) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.QueryHook != nil {
		m.QueryHook(q)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.queryErr != nil {
		return nil, m.queryErr
	}

	keys := m.sortedKeys(q.Range)
	var start int
	if q.After != nil {
		start = sort.Search(len(keys), func(i int) bool { return q.After.Less(keys[i]) })
	} else {
		start = q.Offset
	}
	if start >= len(keys) {
		return []map[string]any{}, nil
	}

	end := len(keys)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}

	page := make([]map[string]any, 0, end-start)
	for _, k := range keys[start:end] {
		page = append(page, copyRow(m.rows[k]))
	}
	return page, nil
}

func (m *MemoryStore) CountHistory(ctx context.Context, r history.Range) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	if m.countErr != nil {
		m.mu.Unlock()
		return 0, m.countErr
	}
	n := int64(len(m.sortedKeys(r)))
	hook := m.CountHook
	m.mu.Unlock()

	if hook != nil {
		return hook(n)
	}
	return n, nil
}

// UpsertHistory applies the whole batch or nothing.
func (m *MemoryStore) UpsertHistory(ctx context.Context, records []history.Record, mode history.Mode) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.upsertCalls++
	if err, ok := m.failUpsert[m.upsertCalls]; ok {
		return 0, fmt.Errorf("%s: upsert call %d: %w", m.name, m.upsertCalls, err)
	}

	var affected int64
	for _, r := range records {
		key := r.Key()
		if _, exists := m.rows[key]; exists && mode == history.InsertIfAbsent {
			continue
		}
		m.rows[key] = history.Fields(r)
		affected++
	}
	return affected, nil
}

func (m *MemoryStore) sortedKeys(r history.Range) []history.Key {
	keys := make([]history.Key, 0, len(m.rows))
	for k := range m.rows {
		if r.Contains(k.HourTimestamp) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

func copyRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
