package postgres

import (
	"context"
	"fmt"
	"strings"

	"histsync/internal/history"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// selectColumns reads numerics as text so the codec parses them exactly,
// and materializes a missing volatility as 0.
var selectColumns = func() string {
	cols := make([]string, 0, len(history.Columns))
	for _, col := range history.Columns {
		switch col {
		case history.ColExchange, history.ColSymbol, history.ColHourTimestamp:
			cols = append(cols, col)
		case history.ColVolatility:
			cols = append(cols, "COALESCE(volatility, 0)::text AS volatility")
		default:
			cols = append(cols, col+"::text AS "+col)
		}
	}
	return strings.Join(cols, ", ")
}()

// QueryHistory returns one ordered page of raw rows for q.
func (p *PostgresClient) QueryHistory(ctx context.Context, q history.PageQuery) ([]map[string]any, error) {
	var rows []map[string]any
	if err := pageQuery(p.DB.WithContext(ctx), q).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query %s: %w", history.Table, err)
	}
	return rows, nil
}

// CountHistory counts the rows whose hour_timestamp falls in r.
func (p *PostgresClient) CountHistory(ctx context.Context, r history.Range) (int64, error) {
	var n int64
	if err := inRange(p.DB.WithContext(ctx).Table(history.Table), r).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", history.Table, err)
	}
	return n, nil
}

// UpsertHistory writes records as one bulk INSERT ... ON CONFLICT statement and
// returns the number of rows the server reports as affected.
func (p *PostgresClient) UpsertHistory(ctx context.Context, records []history.Record, mode history.Mode) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx := upsert(p.DB.WithContext(ctx), records, mode)
	if tx.Error != nil {
		return 0, fmt.Errorf("upsert %d rows into %s: %w", len(records), history.Table, tx.Error)
	}
	return tx.RowsAffected, nil
}

func inRange(db *gorm.DB, r history.Range) *gorm.DB {
	db = db.Where("hour_timestamp >= ?", r.Start)
	if r.IsBounded() {
		db = db.Where("hour_timestamp <= ?", r.End)
	}
	return db
}

func pageQuery(db *gorm.DB, q history.PageQuery) *gorm.DB {
	db = inRange(db.Table(history.Table).Select(selectColumns), q.Range)
	if q.After != nil {
		db = db.Where("(hour_timestamp, exchange, symbol) > (?, ?, ?)",
			q.After.HourTimestamp, q.After.Exchange, q.After.Symbol)
	} else if q.Offset > 0 {
		db = db.Offset(q.Offset)
	}
	return db.Order(history.OrderBy).Limit(q.Limit)
}

func conflictClause(mode history.Mode) clause.OnConflict {
	keys := make([]clause.Column, 0, len(history.KeyColumns))
	for _, col := range history.KeyColumns {
		keys = append(keys, clause.Column{Name: col})
	}

	if mode == history.InsertOrReplace {
		return clause.OnConflict{
			Columns:   keys,
			DoUpdates: clause.AssignmentColumns(history.ValueColumns),
		}
	}
	return clause.OnConflict{Columns: keys, DoNothing: true}
}

func upsert(db *gorm.DB, records []history.Record, mode history.Mode) *gorm.DB {
	rows := make([]MarketHistoryRecord, 0, len(records))
	for _, r := range records {
		rows = append(rows, ToMarketHistoryRecord(r))
	}
	return db.Clauses(conflictClause(mode)).Create(&rows)
}
