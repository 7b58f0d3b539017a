package history

import (
	"strconv"
	"strings"

	"github.com/lib/pq"
)

const nullLiteral = "NULL"

// Literal renders a record as a parenthesized literal tuple in Columns order.
// Strings are quoted with embedded quotes doubled, NULL numerics become NULL,
// and a zero volatility is still written as a number.
func Literal(r Record) string {
	var b strings.Builder
	b.WriteByte('(')
	b.WriteString(pq.QuoteLiteral(r.Exchange))
	b.WriteString(", ")
	b.WriteString(pq.QuoteLiteral(r.Symbol))
	b.WriteString(", ")
	b.WriteString(strconv.FormatInt(r.HourTimestamp, 10))
	for _, n := range r.nullable() {
		b.WriteString(", ")
		if n.Valid {
			b.WriteString(n.Decimal.String())
		} else {
			b.WriteString(nullLiteral)
		}
	}
	b.WriteString(", ")
	b.WriteString(r.Volatility.String())
	b.WriteByte(')')
	return b.String()
}

// RenderInsert renders one bulk statement for records with the conflict
// behaviour of mode. It is only used for statement dumps; stores execute the
// same write with bound parameters.
func RenderInsert(records []Record, mode Mode) string {
	if len(records) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pq.QuoteIdentifier(Table))
	b.WriteString(" (")
	b.WriteString(strings.Join(Columns, ", "))
	b.WriteString(") VALUES\n")
	for i, r := range records {
		if i > 0 {
			b.WriteString(",\n")
		}
		b.WriteString(Literal(r))
	}
	b.WriteString("\nON CONFLICT (")
	b.WriteString(strings.Join(KeyColumns, ", "))
	b.WriteString(") ")

	if mode == InsertOrReplace {
		b.WriteString("DO UPDATE SET ")
		for i, col := range ValueColumns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(col)
			b.WriteString(" = EXCLUDED.")
			b.WriteString(col)
		}
	} else {
		b.WriteString("DO NOTHING")
	}
	b.WriteString(";\n")
	return b.String()
}
