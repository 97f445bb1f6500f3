// Package stream routes normalized events into the in-memory stores and the
// candle history writer.
package stream

import (
	"marketfeed/internal/events"
	"marketfeed/internal/memorystore"
	"marketfeed/pkg/storage/postgres"

	"go.uber.org/zap"
)

// MakeEventHandler returns a Publisher that stores ticks and completed
// candles. writer may be nil when persistence is disabled.
func MakeEventHandler(logger *zap.Logger, ticks *memorystore.TickStore,
	candles *memorystore.CandleStore, writer *CandleWriter) events.Publisher {
	return func(e events.Event) {
		switch ev := e.(type) {
		case events.Tick:
			if !ticks.Add(ev.Tick) {
				logger.Debug("duplicate tick skipped", zap.Time("time", ev.Time))
			}

		case events.CandleCompleted:
			if !candles.Add(ev.Resolution, ev.Candle) {
				logger.Debug("duplicate candle skipped",
					zap.Stringer("resolution", ev.Resolution),
					zap.Time("periodStart", ev.Candle.PeriodStart))
				return
			}
			if writer == nil {
				return
			}
			source := postgres.SourceAggregate
			if ev.Tier == 0 {
				source = postgres.SourceVenue
			}
			writer.Enqueue(ev.Pair, ev.Resolution, ev.Candle, source)
		}
	}
}
