package venue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"marketfeed/internal/market"

	"github.com/shopspring/decimal"
)

// candle tuple layout: [timestampSeconds, baseVolume, close, high, low, open, quoteVolume]
const (
	colTime = iota
	colVolume
	colClose
	colHigh
	colLow
	colOpen
	colQuoteVolume
	candleColumns
)

// ParseCandleList converts REST candle tuples into candles with millisecond
// period starts. Rows that cannot be parsed are skipped and reported in errs.
func ParseCandleList(raw [][]json.RawMessage) (out []market.Candle, errs []error) {
	out = make([]market.Candle, 0, len(raw))
	for i, row := range raw {
		c, err := parseCandleRow(row)
		if err != nil {
			errs = append(errs, fmt.Errorf("row %d: %w", i, err))
			continue
		}
		out = append(out, c)
	}
	return out, errs
}

func parseCandleRow(row []json.RawMessage) (market.Candle, error) {
	if len(row) < candleColumns {
		return market.Candle{}, fmt.Errorf("expected %d columns, got %d", candleColumns, len(row))
	}

	ts, ok := scalar(row[colTime])
	if !ok {
		return market.Candle{}, fmt.Errorf("timestamp: %s", row[colTime])
	}
	seconds, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return market.Candle{}, fmt.Errorf("timestamp %q: %w", ts, err)
	}

	var vals [candleColumns]decimal.Decimal
	for col := colVolume; col < candleColumns; col++ {
		s, ok := scalar(row[col])
		if !ok {
			return market.Candle{}, fmt.Errorf("column %d: %s", col, row[col])
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return market.Candle{}, fmt.Errorf("column %d %q: %w", col, s, err)
		}
		vals[col] = v
	}

	return market.Candle{
		PeriodStart: time.UnixMilli(seconds * 1000).UTC(),
		Open:        vals[colOpen],
		High:        vals[colHigh],
		Low:         vals[colLow],
		Close:       vals[colClose],
		Volume:      vals[colVolume],
		QuoteVolume: vals[colQuoteVolume],
	}, nil
}
