package migrate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"histsync/internal/history"
	"histsync/internal/migrate"
	"histsync/pkg/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// outOfRangeSource ignores the requested range.
type outOfRangeSource struct{ *memory.MemoryStore }

func (s outOfRangeSource) QueryHistory(ctx context.Context, q history.PageQuery) ([]map[string]any, error) {
	q.Range = history.NewRange(0, 0)
	return s.MemoryStore.QueryHistory(ctx, q)
}

// slowSource blocks until the call's context ends.
type slowSource struct{ *memory.MemoryStore }

func (s slowSource) CountHistory(ctx context.Context, _ history.Range) (int64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

// go test -v --run TestFetchPages
func TestFetchPages(t *testing.T) {
	src := memory.NewMemoryStore("source")
	seed(t, src, "binance", "BTCUSDT", 12)
	reader := migrate.NewPageReader(src, history.NewRange(baseTS+2*3600, baseTS+9*3600), time.Second)
	ctx := context.Background()

	total, err := reader.FetchTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), total)

	page, err := reader.FetchPage(ctx, 5, 5)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, baseTS+7*3600, page[0].HourTimestamp)

	page, err = reader.FetchAfter(ctx, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, baseTS+2*3600, page[0].HourTimestamp)
	assert.Equal(t, "42000.5", page[0].MinPrice.Decimal.String())

	cursor := page[1].Key()
	page, err = reader.FetchAfter(ctx, &cursor, 100)
	require.NoError(t, err)
	assert.Len(t, page, 6)

	page, err = reader.FetchPage(ctx, 8, 5)
	require.NoError(t, err)
	assert.Empty(t, page)

	_, err = reader.FetchPage(ctx, 0, 0)
	assert.Error(t, err)
}

// go test -v --run TestFetchErrors
func TestFetchErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("transport", func(t *testing.T) {
		src := memory.NewMemoryStore("source")
		seed(t, src, "binance", "BTCUSDT", 3)
		boom := errors.New("server closed the connection unexpectedly")
		src.FailQueries(boom)

		page, err := migrate.NewPageReader(src, history.NewRange(0, 0), 0).FetchPage(ctx, 0, 10)
		assert.Nil(t, page, "a failed query is never an empty page")
		var transport *migrate.TransportError
		require.ErrorAs(t, err, &transport)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("out of range row", func(t *testing.T) {
		src := memory.NewMemoryStore("source")
		seed(t, src, "binance", "BTCUSDT", 3)
		reader := migrate.NewPageReader(outOfRangeSource{src}, history.NewRange(baseTS+3600, 0), 0)

		_, err := reader.FetchAfter(ctx, nil, 10)
		var decErr *history.DecodeError
		require.ErrorAs(t, err, &decErr)
		assert.Equal(t, "hour_timestamp", decErr.Field)
	})

	t.Run("timeout", func(t *testing.T) {
		src := memory.NewMemoryStore("source")
		reader := migrate.NewPageReader(slowSource{src}, history.NewRange(0, 0), 10*time.Millisecond)

		_, err := reader.FetchTotal(ctx)
		var transport *migrate.TransportError
		require.ErrorAs(t, err, &transport)
		assert.Equal(t, "count", transport.Op)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
