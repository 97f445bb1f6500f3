package collector

import (
	"time"

	"marketfeed/internal/events"
	"marketfeed/internal/market"

	"go.uber.org/zap"
)

// maxBufferedDiffs bounds the diffs held back during one snapshot fetch.
const maxBufferedDiffs = 4096

// requestSync fetches a snapshot off the loop and swaps it in on the loop.
// Requests made while one is in flight are coalesced. Diffs arriving in the
// meantime are held back and replayed on top of the snapshot.
func (c *Collector) requestSync(reason string) {
	if c.syncing {
		return
	}
	c.syncing = true
	ctx := c.loopCtx

	go func() {
		start := time.Now()
		snap, err := c.book.Fetch(ctx)
		c.post(ctx, func() { c.finishSync(reason, start, snap, err) })
	}()
}

func (c *Collector) finishSync(reason string, start time.Time, snap market.OrderBookSnapshot, err error) {
	c.syncing = false
	held := c.buffered
	c.buffered = nil
	overflow := c.overflow
	c.overflow = false

	if err != nil {
		c.logger.Error("order book sync failed, keeping current book",
			zap.String("reason", reason),
			zap.Error(err))
		c.replay(held)
		return
	}

	at := time.Now()
	c.book.Replace(snap, at)
	c.syncs++

	bids, asks := c.book.Depth()
	c.logger.Info("order book synced",
		zap.String("reason", reason),
		zap.Int64("updateId", snap.UpdateID),
		zap.Int("bids", bids),
		zap.Int("asks", asks),
		zap.Int("held", len(held)),
		zap.Duration("took", at.Sub(start)))
	c.downstream(events.OrderBookSynced{
		Pair:     c.opts.Pair,
		UpdateID: snap.UpdateID,
		Bids:     bids,
		Asks:     asks,
		SyncedAt: at,
	})

	if overflow {
		// the held diffs no longer join up with the snapshot
		c.requestSync("buffer overflow")
		return
	}
	c.replay(held)
}

func (c *Collector) bufferDiff(upd market.OrderBookUpdate) {
	if len(c.buffered) >= maxBufferedDiffs {
		if !c.overflow {
			c.logger.Warn("too many diffs during sync, discarding held diffs",
				zap.Int("limit", maxBufferedDiffs))
		}
		c.buffered = c.buffered[:0]
		c.overflow = true
	}
	c.buffered = append(c.buffered, upd)
}

// replay applies held diffs in arrival order. Those covered by the snapshot
// come back stale and are skipped.
func (c *Collector) replay(held []market.OrderBookUpdate) {
	for i, upd := range held {
		c.applyDiff(upd)
		if c.syncing {
			// a gap restarted the sync; hold the rest for the next snapshot
			c.buffered = append(c.buffered, held[i+1:]...)
			return
		}
	}
}

func (c *Collector) applyDiff(upd market.OrderBookUpdate) {
	res := c.book.ApplyDiff(upd)
	switch {
	case res.Stale:
		c.staleDiffs++
		c.logger.Debug("dropping stale diff",
			zap.Int64("have", res.PrevUpdateID),
			zap.Int64("last", upd.LastUpdateID))
	case res.Gap:
		c.logger.Warn("order book update gap",
			zap.Int64("have", res.PrevUpdateID),
			zap.Int64("first", upd.FirstUpdateID))
		c.requestSync("gap")
	}
}
