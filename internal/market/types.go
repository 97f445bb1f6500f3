package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies one half of the order book.
type Side int

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// PriceLevel is a single price/volume pair. A zero volume means the level is absent.
type PriceLevel struct {
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
}

// OrderBookSnapshot is a full point-in-time book fetched over REST, already normalized.
type OrderBookSnapshot struct {
	Pair     string       `json:"pair"`
	UpdateID int64        `json:"updateId"`
	Bids     []PriceLevel `json:"bids"`
	Asks     []PriceLevel `json:"asks"`
}

// OrderBookUpdate is an incremental diff received on the order book stream.
type OrderBookUpdate struct {
	Pair          string       `json:"pair"`
	FirstUpdateID int64        `json:"firstUpdateId"`
	LastUpdateID  int64        `json:"lastUpdateId"`
	Bids          []PriceLevel `json:"bids"`
	Asks          []PriceLevel `json:"asks"`
	Time          time.Time    `json:"time"`
}

// Tick is a normalized ticker update.
type Tick struct {
	Pair        string          `json:"pair"`
	Last        decimal.Decimal `json:"last"`
	Bid         decimal.Decimal `json:"bid"`
	Ask         decimal.Decimal `json:"ask"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Volume      decimal.Decimal `json:"volume"`
	QuoteVolume decimal.Decimal `json:"quoteVolume"`
	Time        time.Time       `json:"time"`
}

// Candle is one OHLCV period. PeriodStart is a multiple of the candle's resolution.
type Candle struct {
	PeriodStart time.Time       `json:"periodStart"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	Volume      decimal.Decimal `json:"volume"`
	QuoteVolume decimal.Decimal `json:"quoteVolume"`
}

// Merge builds one candle out of consecutive candles: first open, last close,
// extreme high/low and summed volumes. The result starts at the first input.
func Merge(in []Candle) Candle {
	if len(in) == 0 {
		return Candle{}
	}
	out := Candle{
		PeriodStart: in[0].PeriodStart,
		Open:        in[0].Open,
		High:        in[0].High,
		Low:         in[0].Low,
		Close:       in[len(in)-1].Close,
	}
	for _, c := range in {
		if c.High.GreaterThan(out.High) {
			out.High = c.High
		}
		if c.Low.LessThan(out.Low) {
			out.Low = c.Low
		}
		out.Volume = out.Volume.Add(c.Volume)
		out.QuoteVolume = out.QuoteVolume.Add(c.QuoteVolume)
	}
	return out
}
