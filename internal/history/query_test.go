package history

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go test -v --run TestParseMode
func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"ifAbsent":  InsertIfAbsent,
		"IFABSENT":  InsertIfAbsent,
		"ignore":    InsertIfAbsent,
		"orReplace": InsertOrReplace,
		" replace ": InsertOrReplace,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMode("upsert")
	assert.Error(t, err)
}

// go test -v --run TestModeJSON
func TestModeJSON(t *testing.T) {
	b, err := json.Marshal(struct{ Mode Mode }{InsertOrReplace})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Mode":"orReplace"}`, string(b))

	var out struct{ Mode Mode }
	require.NoError(t, json.Unmarshal([]byte(`{"Mode":"ifAbsent"}`), &out))
	assert.Equal(t, InsertIfAbsent, out.Mode)
}

// go test -v --run TestRange
func TestRange(t *testing.T) {
	open := NewRange(1769640000, 0)
	assert.False(t, open.IsBounded())
	assert.True(t, open.Contains(1769640000))
	assert.True(t, open.Contains(1<<40))
	assert.False(t, open.Contains(1769639999))

	closed := NewRange(1767348000, 1767891600)
	assert.True(t, closed.IsBounded())
	assert.True(t, closed.Contains(1767891600))
	assert.False(t, closed.Contains(1767891601))
	assert.Equal(t, "[1767348000, 1767891600]", closed.String())
}

// go test -v --run TestKeyOrdering
func TestKeyOrdering(t *testing.T) {
	keys := []Key{
		{"okx", "BTCUSDT", 7200},
		{"binance", "ETHUSDT", 3600},
		{"binance", "BTCUSDT", 7200},
		{"binance", "BTCUSDT", 3600},
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	assert.Equal(t, []Key{
		{"binance", "BTCUSDT", 3600},
		{"binance", "ETHUSDT", 3600},
		{"binance", "BTCUSDT", 7200},
		{"okx", "BTCUSDT", 7200},
	}, keys)
}
