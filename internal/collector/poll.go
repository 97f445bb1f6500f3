package collector

import (
	"context"
	"errors"
	"sort"
	"time"

	"marketfeed/internal/candles"
	"marketfeed/internal/market"
	"marketfeed/pkg/storage/postgres"
	"marketfeed/pkg/venue"

	"go.uber.org/zap"
)

// pollWindow is how many base periods each poll asks for.
const pollWindow = 12

// requestPoll pulls recent base candles and feeds the finished ones to the
// aggregator in order.
func (c *Collector) requestPoll() {
	if c.polling {
		return
	}
	c.polling = true
	ctx := c.loopCtx
	base := c.opts.Tiers[0]

	go func() {
		now := time.Now()
		list, skipped, err := c.deps.Venue.GetCandles(ctx, c.opts.Pair, base, venue.CandleQuery{
			From: now.Add(-pollWindow * base.Duration()),
			To:   now,
		})
		for _, e := range skipped {
			c.logger.Warn("skipping malformed candle", zap.Error(e))
		}
		c.post(ctx, func() {
			c.polling = false
			if err != nil {
				c.logger.Warn("candle poll failed", zap.Error(err))
				return
			}
			c.ingest(completed(list, base, now))
		})
	}()
}

// completed keeps the candles whose period had closed by now, oldest first.
func completed(list []market.Candle, res market.Resolution, now time.Time) []market.Candle {
	out := make([]market.Candle, 0, len(list))
	for _, cd := range list {
		if !res.Next(cd.PeriodStart).After(now) {
			out = append(out, cd)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.Before(out[j].PeriodStart) })
	return out
}

func (c *Collector) ingest(list []market.Candle) {
	last := c.agg.LastBase()
	for _, cd := range list {
		if !last.IsZero() && !cd.PeriodStart.After(last) {
			continue
		}
		if err := c.agg.IngestBase(cd); err != nil && !errors.Is(err, candles.ErrStale) {
			c.logger.Warn("candle rejected",
				zap.Time("periodStart", cd.PeriodStart),
				zap.Error(err))
		}
	}
}

// onGap backfills missing base candles straight into storage. They are not
// replayed through the aggregator.
func (c *Collector) onGap(g candles.Gap) {
	if c.deps.Writer == nil {
		c.logger.Info("no storage configured, gap left unfilled",
			zap.Time("from", g.From),
			zap.Time("to", g.To))
		return
	}
	ctx := c.loopCtx
	go c.backfill(ctx, g)
}

func (c *Collector) backfill(ctx context.Context, g candles.Gap) {
	list, _, err := c.deps.Venue.GetCandles(ctx, g.Pair, g.Resolution, venue.CandleQuery{
		From:  g.From,
		To:    g.To,
		Limit: g.Missing(),
	})
	if err != nil {
		c.logger.Warn("backfill failed",
			zap.Time("from", g.From),
			zap.Time("to", g.To),
			zap.Error(err))
		return
	}

	n := 0
	for _, cd := range list {
		if cd.PeriodStart.Before(g.From) || !cd.PeriodStart.Before(g.To) {
			continue
		}
		c.deps.Writer.Enqueue(g.Pair, g.Resolution, cd, postgres.SourceBackfill)
		n++
	}
	c.logger.Info("gap backfilled",
		zap.Time("from", g.From),
		zap.Int("missing", g.Missing()),
		zap.Int("found", n))
}
