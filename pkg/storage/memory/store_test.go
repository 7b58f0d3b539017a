package memory

import (
	"context"
	"errors"
	"testing"

	"histsync/internal/history"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(exchange, symbol string, ts int64) map[string]any {
	return map[string]any{"exchange": exchange, "symbol": symbol, "hour_timestamp": ts}
}

// go test -v --run TestQueryOrderingAndPaging
func TestQueryOrderingAndPaging(t *testing.T) {
	store := NewMemoryStore("src")
	require.NoError(t, store.Insert(
		row("okx", "BTCUSDT", 3600),
		row("binance", "ETHUSDT", 0),
		row("binance", "BTCUSDT", 3600),
		row("binance", "BTCUSDT", 0),
		row("binance", "BTCUSDT", 7200),
	))
	ctx := context.Background()

	all, err := store.QueryHistory(ctx, history.PageQuery{Range: history.NewRange(0, 0)})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "BTCUSDT", all[0]["symbol"])
	assert.Equal(t, "ETHUSDT", all[1]["symbol"])
	assert.Equal(t, "okx", all[3]["exchange"])

	page, err := store.QueryHistory(ctx, history.PageQuery{Range: history.NewRange(0, 3600), Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(3600), page[0]["hour_timestamp"])

	after := history.Key{Exchange: "binance", Symbol: "BTCUSDT", HourTimestamp: 3600}
	page, err = store.QueryHistory(ctx, history.PageQuery{Range: history.NewRange(0, 0), Limit: 10, After: &after})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "okx", page[0]["exchange"])

	empty, err := store.QueryHistory(ctx, history.PageQuery{Range: history.NewRange(0, 0), Limit: 10, Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, empty)

	n, err := store.CountHistory(ctx, history.NewRange(3600, 3600))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

// go test -v --run TestUpsertModes
func TestUpsertModes(t *testing.T) {
	store := NewMemoryStore("dest")
	ctx := context.Background()

	rec := history.Record{Exchange: "binance", Symbol: "BTCUSDT", HourTimestamp: 3600, Volatility: decimal.NewFromInt(1)}
	n, err := store.UpsertHistory(ctx, []history.Record{rec}, history.InsertIfAbsent)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	changed := rec
	changed.Volatility = decimal.NewFromInt(2)

	n, err = store.UpsertHistory(ctx, []history.Record{changed}, history.InsertIfAbsent)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	got, _ := store.Get(rec.Key())
	assert.Equal(t, "1", got["volatility"].(decimal.Decimal).String())

	n, err = store.UpsertHistory(ctx, []history.Record{changed}, history.InsertOrReplace)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, _ = store.Get(rec.Key())
	assert.Equal(t, "2", got["volatility"].(decimal.Decimal).String())

	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 3, store.UpsertCalls())
}

// go test -v --run TestFailureInjection
func TestFailureInjection(t *testing.T) {
	store := NewMemoryStore("dest")
	ctx := context.Background()
	store.FailUpsertOn(2, nil)

	batch := func(ts int64) []history.Record {
		return []history.Record{{Exchange: "binance", Symbol: "BTCUSDT", HourTimestamp: ts, Volatility: decimal.Zero}}
	}

	_, err := store.UpsertHistory(ctx, batch(0), history.InsertIfAbsent)
	require.NoError(t, err)
	_, err = store.UpsertHistory(ctx, batch(3600), history.InsertIfAbsent)
	assert.True(t, errors.Is(err, ErrInjected))
	assert.Equal(t, 1, store.Len(), "failed batch leaves no rows")

	boom := errors.New("connection reset")
	store.FailQueries(boom)
	_, err = store.QueryHistory(ctx, history.PageQuery{Range: history.NewRange(0, 0), Limit: 1})
	assert.ErrorIs(t, err, boom)

	store.CountHook = func(n int64) (int64, error) { return n + 10, nil }
	n, err := store.CountHistory(ctx, history.NewRange(0, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)

	store.FailCounts(boom)
	_, err = store.CountHistory(ctx, history.NewRange(0, 0))
	assert.ErrorIs(t, err, boom)
}
