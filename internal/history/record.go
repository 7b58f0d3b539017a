package history

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Table is the name of the hourly market statistics table on every store.
const Table = "market_history"

// Column names in declared order. Every encoded tuple follows this order.
const (
	ColExchange             = "exchange"
	ColSymbol               = "symbol"
	ColHourTimestamp        = "hour_timestamp"
	ColMinPrice             = "min_price"
	ColMaxPrice             = "max_price"
	ColMarkPrice            = "mark_price"
	ColIndexPrice           = "index_price"
	ColVolumeBase           = "volume_base"
	ColVolumeQuote          = "volume_quote"
	ColOpenInterest         = "open_interest"
	ColOpenInterestUSD      = "open_interest_usd"
	ColMaxOpenInterestUSD   = "max_open_interest_usd"
	ColAvgFundingRate       = "avg_funding_rate"
	ColAvgFundingRateAnnual = "avg_funding_rate_annual"
	ColMinFundingRate       = "min_funding_rate"
	ColMaxFundingRate       = "max_funding_rate"
	ColSampleCount          = "sample_count"
	ColVolatility           = "volatility"
)

// Columns lists every column of market_history in the fixed encoding order.
var Columns = []string{
	ColExchange, ColSymbol, ColHourTimestamp,
	ColMinPrice, ColMaxPrice, ColMarkPrice, ColIndexPrice,
	ColVolumeBase, ColVolumeQuote, ColOpenInterest, ColOpenInterestUSD, ColMaxOpenInterestUSD,
	ColAvgFundingRate, ColAvgFundingRateAnnual, ColMinFundingRate, ColMaxFundingRate,
	ColSampleCount, ColVolatility,
}

// KeyColumns is the compound natural key; unique on every destination.
var KeyColumns = []string{ColExchange, ColSymbol, ColHourTimestamp}

// ValueColumns are the columns overwritten by an insert-or-replace write.
var ValueColumns = Columns[len(KeyColumns):]

// OrderBy is the deterministic page ordering shared by all stores.
const OrderBy = "hour_timestamp ASC, exchange ASC, symbol ASC"

// Record is one hourly aggregate for one exchange/symbol pair.
type Record struct {
	Exchange      string // e.g. "binance"
	Symbol        string // e.g. "BTCUSDT"
	HourTimestamp int64  // epoch seconds truncated to the hour

	MinPrice   decimal.NullDecimal
	MaxPrice   decimal.NullDecimal
	MarkPrice  decimal.NullDecimal
	IndexPrice decimal.NullDecimal

	VolumeBase         decimal.NullDecimal
	VolumeQuote        decimal.NullDecimal
	OpenInterest       decimal.NullDecimal
	OpenInterestUSD    decimal.NullDecimal
	MaxOpenInterestUSD decimal.NullDecimal

	AvgFundingRate       decimal.NullDecimal
	AvgFundingRateAnnual decimal.NullDecimal
	MinFundingRate       decimal.NullDecimal
	MaxFundingRate       decimal.NullDecimal

	SampleCount decimal.NullDecimal

	// Volatility is never NULL once decoded; absent values become zero.
	Volatility decimal.Decimal
}

// Key returns the compound natural key of the record.
func (r Record) Key() Key {
	return Key{Exchange: r.Exchange, Symbol: r.Symbol, HourTimestamp: r.HourTimestamp}
}

// nullable returns pointers to the nullable numeric fields in column order
// (min_price through sample_count).
func (r *Record) nullable() []*decimal.NullDecimal {
	return []*decimal.NullDecimal{
		&r.MinPrice, &r.MaxPrice, &r.MarkPrice, &r.IndexPrice,
		&r.VolumeBase, &r.VolumeQuote, &r.OpenInterest, &r.OpenInterestUSD, &r.MaxOpenInterestUSD,
		&r.AvgFundingRate, &r.AvgFundingRateAnnual, &r.MinFundingRate, &r.MaxFundingRate,
		&r.SampleCount,
	}
}

// nullableColumns matches the order returned by Record.nullable.
var nullableColumns = Columns[len(KeyColumns) : len(Columns)-1]

// Key identifies a record and doubles as the keyset pagination cursor.
type Key struct {
	Exchange      string `json:"exchange"`
	Symbol        string `json:"symbol"`
	HourTimestamp int64  `json:"hour_timestamp"`
}

// Less reports whether k sorts before other under (hour_timestamp, exchange, symbol),
// comparing text bytewise.
func (k Key) Less(other Key) bool {
	if k.HourTimestamp != other.HourTimestamp {
		return k.HourTimestamp < other.HourTimestamp
	}
	if k.Exchange != other.Exchange {
		return k.Exchange < other.Exchange
	}
	return k.Symbol < other.Symbol
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s@%d", k.Exchange, k.Symbol, k.HourTimestamp)
}
