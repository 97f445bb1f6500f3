package memorystore

import (
	"time"

	"marketfeed/internal/market"
	"marketfeed/pkg/timedbuffer"
)

// TimeframeBuffer is the bounded candle history of one resolution.
// LastPeriodStart is the newest stored period, used for gap checks by readers.
type TimeframeBuffer struct {
	Resolution market.Resolution
	candles    *timedbuffer.Buffer[market.Candle]
}

func newTimeframeBuffer(res market.Resolution, capacity int) *TimeframeBuffer {
	return &TimeframeBuffer{
		Resolution: res,
		candles: timedbuffer.New(capacity,
			timedbuffer.WithKey(func(c market.Candle) time.Time { return c.PeriodStart }),
			timedbuffer.WithDedupe[market.Candle]()),
	}
}

// LastPeriodStart returns the period start of the newest candle, or the zero time.
func (b *TimeframeBuffer) LastPeriodStart() time.Time {
	c, ok := b.candles.Last()
	if !ok {
		return time.Time{}
	}
	return c.PeriodStart
}

// TotalReceived counts every candle ever accepted, evicted ones included.
func (b *TimeframeBuffer) TotalReceived() int64 { return b.candles.TotalCount() }

// Summary is a point-in-time count of one timeframe.
type Summary struct {
	Resolution      market.Resolution
	Count           int
	TotalReceived   int64
	LastPeriodStart time.Time
}
