package postgres

import (
	"histsync/internal/history"

	"github.com/shopspring/decimal"
)

// MarketHistoryRecord maps one market_history row. The table is owned by the
// upstream aggregation job; this model is never auto-migrated.
type MarketHistoryRecord struct {
	// unique compound key
	Exchange      string `gorm:"column:exchange;primaryKey;type:text"`
	Symbol        string `gorm:"column:symbol;primaryKey;type:text"`
	HourTimestamp int64  `gorm:"column:hour_timestamp;primaryKey;autoIncrement:false"`

	MinPrice   decimal.NullDecimal `gorm:"column:min_price;type:numeric"`
	MaxPrice   decimal.NullDecimal `gorm:"column:max_price;type:numeric"`
	MarkPrice  decimal.NullDecimal `gorm:"column:mark_price;type:numeric"`
	IndexPrice decimal.NullDecimal `gorm:"column:index_price;type:numeric"`

	VolumeBase         decimal.NullDecimal `gorm:"column:volume_base;type:numeric"`
	VolumeQuote        decimal.NullDecimal `gorm:"column:volume_quote;type:numeric"`
	OpenInterest       decimal.NullDecimal `gorm:"column:open_interest;type:numeric"`
	OpenInterestUSD    decimal.NullDecimal `gorm:"column:open_interest_usd;type:numeric"`
	MaxOpenInterestUSD decimal.NullDecimal `gorm:"column:max_open_interest_usd;type:numeric"`

	AvgFundingRate       decimal.NullDecimal `gorm:"column:avg_funding_rate;type:numeric"`
	AvgFundingRateAnnual decimal.NullDecimal `gorm:"column:avg_funding_rate_annual;type:numeric"`
	MinFundingRate       decimal.NullDecimal `gorm:"column:min_funding_rate;type:numeric"`
	MaxFundingRate       decimal.NullDecimal `gorm:"column:max_funding_rate;type:numeric"`

	SampleCount decimal.NullDecimal `gorm:"column:sample_count;type:numeric"`
	Volatility  decimal.Decimal     `gorm:"column:volatility;type:numeric;not null"`
}

// TableName overrides the default table name for GORM.
func (MarketHistoryRecord) TableName() string {
	return history.Table
}

// ToMarketHistoryRecord converts a decoded record into its row model.
func ToMarketHistoryRecord(r history.Record) MarketHistoryRecord {
	return MarketHistoryRecord{
		Exchange:             r.Exchange,
		Symbol:               r.Symbol,
		HourTimestamp:        r.HourTimestamp,
		MinPrice:             r.MinPrice,
		MaxPrice:             r.MaxPrice,
		MarkPrice:            r.MarkPrice,
		IndexPrice:           r.IndexPrice,
		VolumeBase:           r.VolumeBase,
		VolumeQuote:          r.VolumeQuote,
		OpenInterest:         r.OpenInterest,
		OpenInterestUSD:      r.OpenInterestUSD,
		MaxOpenInterestUSD:   r.MaxOpenInterestUSD,
		AvgFundingRate:       r.AvgFundingRate,
		AvgFundingRateAnnual: r.AvgFundingRateAnnual,
		MinFundingRate:       r.MinFundingRate,
		MaxFundingRate:       r.MaxFundingRate,
		SampleCount:          r.SampleCount,
		Volatility:           r.Volatility,
	}
}
