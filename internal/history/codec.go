package history

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// DecodeError reports a source row that cannot be turned into a Record.
type DecodeError struct {
	Field  string
	Value  any
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("decode %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("decode %s: %s (got %T %v)", e.Field, e.Reason, e.Value, e.Value)
}

// Decode converts a raw row, as returned by a store read, into a Record.
// Absent or null numeric fields become NULL; volatility becomes 0 instead.
// Values that are not numbers are rejected rather than coerced.
func Decode(row map[string]any) (Record, error) {
	key, err := KeyOf(row)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		Exchange:      key.Exchange,
		Symbol:        key.Symbol,
		HourTimestamp: key.HourTimestamp,
	}

	for i, dst := range rec.nullable() {
		col := nullableColumns[i]
		v, err := decodeNumeric(col, row[col])
		if err != nil {
			return Record{}, err
		}
		*dst = v
	}

	vol, err := decodeNumeric(ColVolatility, row[ColVolatility])
	if err != nil {
		return Record{}, err
	}
	if vol.Valid {
		rec.Volatility = vol.Decimal
	} else {
		rec.Volatility = decimal.Zero
	}

	return rec, nil
}

// KeyOf extracts only the compound key from a raw row.
func KeyOf(row map[string]any) (Key, error) {
	exchange, err := decodeString(ColExchange, row)
	if err != nil {
		return Key{}, err
	}
	symbol, err := decodeString(ColSymbol, row)
	if err != nil {
		return Key{}, err
	}
	ts, err := decodeTimestamp(row)
	if err != nil {
		return Key{}, err
	}
	return Key{Exchange: exchange, Symbol: symbol, HourTimestamp: ts}, nil
}

// Values encodes a record as bound-parameter values in Columns order.
// NULL numerics are nil; volatility is always a number.
func Values(r Record) []any {
	out := make([]any, 0, len(Columns))
	out = append(out, r.Exchange, r.Symbol, r.HourTimestamp)
	for _, n := range r.nullable() {
		if n.Valid {
			out = append(out, n.Decimal)
		} else {
			out = append(out, nil)
		}
	}
	return append(out, r.Volatility)
}

// Fields is Values keyed by column name.
func Fields(r Record) map[string]any {
	vals := Values(r)
	out := make(map[string]any, len(Columns))
	for i, col := range Columns {
		out[col] = vals[i]
	}
	return out
}

func decodeString(field string, row map[string]any) (string, error) {
	raw, ok := row[field]
	if !ok || raw == nil {
		return "", &DecodeError{Field: field, Reason: "missing key field"}
	}

	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return "", &DecodeError{Field: field, Value: raw, Reason: "expected string"}
	}

	if s == "" {
		return "", &DecodeError{Field: field, Reason: "empty key field"}
	}
	return s, nil
}

func decodeTimestamp(row map[string]any) (int64, error) {
	raw, ok := row[ColHourTimestamp]
	if !ok || raw == nil {
		return 0, &DecodeError{Field: ColHourTimestamp, Reason: "missing key field"}
	}

	fail := func(reason string) (int64, error) {
		return 0, &DecodeError{Field: ColHourTimestamp, Value: raw, Reason: reason}
	}

	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return fail("out of range")
		}
		return int64(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return fail("not an integer")
		}
		// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
		if v >= math.MaxInt64 || v < math.MinInt64 {
			return fail("out of range")
		}
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return fail("not an integer")
		}
		return n, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fail("not an integer")
		}
		return n, nil
	case []byte:
		n, err := strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
		if err != nil {
			return fail("not an integer")
		}
		return n, nil
	case decimal.Decimal:
		if !v.IsInteger() {
			return fail("not an integer")
		}
		return v.IntPart(), nil
	default:
		return fail("unsupported type")
	}
}

func decodeNumeric(field string, raw any) (decimal.NullDecimal, error) {
	if raw == nil {
		return decimal.NullDecimal{}, nil
	}

	fail := func(reason string) (decimal.NullDecimal, error) {
		return decimal.NullDecimal{}, &DecodeError{Field: field, Value: raw, Reason: reason}
	}
	valid := func(d decimal.Decimal) (decimal.NullDecimal, error) {
		return decimal.NullDecimal{Decimal: d, Valid: true}, nil
	}
	parse := func(s string) (decimal.NullDecimal, error) {
		s = strings.TrimSpace(s)
		// JSON exports of the old store carry the literal string "null"
		if strings.EqualFold(s, "null") {
			return decimal.NullDecimal{}, nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fail("not a number")
		}
		return valid(d)
	}

	switch v := raw.(type) {
	case string:
		return parse(v)
	case []byte:
		return parse(string(v))
	case json.Number:
		return parse(v.String())
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fail("not a finite number")
		}
		return valid(decimal.NewFromFloat(v))
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fail("not a finite number")
		}
		return valid(decimal.NewFromFloat32(v))
	case int:
		return valid(decimal.NewFromInt(int64(v)))
	case int8:
		return valid(decimal.NewFromInt(int64(v)))
	case int16:
		return valid(decimal.NewFromInt(int64(v)))
	case int32:
		return valid(decimal.NewFromInt32(v))
	case int64:
		return valid(decimal.NewFromInt(v))
	case uint:
		return parse(strconv.FormatUint(uint64(v), 10))
	case uint8:
		return valid(decimal.NewFromInt(int64(v)))
	case uint16:
		return valid(decimal.NewFromInt(int64(v)))
	case uint32:
		return valid(decimal.NewFromInt(int64(v)))
	case uint64:
		return parse(strconv.FormatUint(v, 10))
	case decimal.Decimal:
		return valid(v)
	case decimal.NullDecimal:
		return v, nil
	case *decimal.Decimal:
		if v == nil {
			return decimal.NullDecimal{}, nil
		}
		return valid(*v)
	default:
		return fail("unsupported type")
	}
}
