package collector

import (
	"go.uber.org/zap"
)

// logHealth runs on the loop.
func (c *Collector) logHealth() {
	bids, asks := c.book.Depth()
	st := c.book.Stats(1)

	fields := []zap.Field{
		zap.Stringer("session", c.stream.State()),
		zap.Int("attempts", c.stream.Attempts()),
		zap.Duration("latency", c.stream.Latency()),
		zap.Bool("bookSynced", c.book.Synced()),
		zap.Int64("updateId", c.book.LastUpdateID()),
		zap.Time("lastSync", c.book.LastSyncTime()),
		zap.Int("syncs", c.syncs),
		zap.Bool("syncing", c.syncing),
		zap.Int("heldDiffs", len(c.buffered)),
		zap.Int64("staleDiffs", c.staleDiffs),
		zap.Int("bids", bids),
		zap.Int("asks", asks),
		zap.Stringer("bestBid", st.BestBid),
		zap.Stringer("bestAsk", st.BestAsk),
		zap.Int("ticks", c.ticks.Count()),
		zap.Time("lastBase", c.agg.LastBase()),
		zap.Int("pending1", len(c.agg.Pending(1))),
		zap.Int("pending2", len(c.agg.Pending(2))),
	}
	for _, s := range c.candles.Summaries() {
		fields = append(fields, zap.Int("candles"+s.Resolution.String(), s.Count))
	}
	if c.deps.Writer != nil {
		fields = append(fields,
			zap.Int64("written", c.deps.Writer.Written()),
			zap.Int64("writeDropped", c.deps.Writer.Dropped()))
	}
	for name, counter := range c.deps.Counters {
		fields = append(fields, zap.Int64(name, counter()))
	}
	c.logger.Info("health", fields...)
}
