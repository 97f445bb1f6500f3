// Package orderbook keeps a local order book consistent with the venue using a
// REST snapshot plus the streamed diff channel.
//
// A Reconciler is not safe for concurrent use. The collector owns it and drives
// every mutation from its single event loop; Fetch is the only method meant to
// run on another goroutine.
package orderbook

import (
	"context"
	"fmt"
	"sort"
	"time"

	"marketfeed/internal/market"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SnapshotFetcher loads a full depth snapshot. venue.RESTClient implements it.
type SnapshotFetcher interface {
	GetOrderBook(ctx context.Context, pair string, depth int) (market.OrderBookSnapshot, []error, error)
}

// SyncError reports a snapshot fetch that failed. The book is left untouched.
type SyncError struct {
	Pair string
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s order book: %v", e.Pair, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// DiffResult describes how a diff related to the book's update id.
type DiffResult struct {
	PrevUpdateID int64
	// Gap is set when diffs between PrevUpdateID and the diff's first id were missed.
	Gap bool
	// Stale is set when the diff ends at or before PrevUpdateID. A stale diff
	// is not applied.
	Stale bool
}

// Reconciler holds both sides of the book keyed by canonical price string.
type Reconciler struct {
	pair    string
	depth   int
	fetcher SnapshotFetcher
	logger  *zap.Logger

	bids         map[string]market.PriceLevel
	asks         map[string]market.PriceLevel
	lastUpdateID int64
	lastSync     time.Time
	synced       bool
}

func New(pair string, depth int, fetcher SnapshotFetcher, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		pair:    pair,
		depth:   depth,
		fetcher: fetcher,
		logger:  logger.Named("orderbook"),
		bids:    make(map[string]market.PriceLevel),
		asks:    make(map[string]market.PriceLevel),
	}
}

// Sync fetches a snapshot and replaces the book with it. On failure the
// previous state is kept and a *SyncError is returned.
func (r *Reconciler) Sync(ctx context.Context) error {
	snap, err := r.Fetch(ctx)
	if err != nil {
		return err
	}
	r.Replace(snap, time.Now())
	return nil
}

// Fetch loads a snapshot without touching the book. Unparsable levels are
// dropped with a warning.
func (r *Reconciler) Fetch(ctx context.Context) (market.OrderBookSnapshot, error) {
	snap, skipped, err := r.fetcher.GetOrderBook(ctx, r.pair, r.depth)
	if err != nil {
		return market.OrderBookSnapshot{}, &SyncError{Pair: r.pair, Err: err}
	}
	for _, e := range skipped {
		r.logger.Warn("skipping snapshot level", zap.String("pair", r.pair), zap.Error(e))
	}
	return snap, nil
}

// Replace swaps both sides for the snapshot's levels wholesale.
func (r *Reconciler) Replace(snap market.OrderBookSnapshot, at time.Time) {
	bids := make(map[string]market.PriceLevel, len(snap.Bids))
	asks := make(map[string]market.PriceLevel, len(snap.Asks))
	load(bids, snap.Bids)
	load(asks, snap.Asks)

	r.bids = bids
	r.asks = asks
	r.lastUpdateID = snap.UpdateID
	r.lastSync = at
	r.synced = true
}

func load(side map[string]market.PriceLevel, levels []market.PriceLevel) {
	for _, l := range levels {
		if l.Volume.IsZero() {
			continue
		}
		side[key(l.Price)] = l
	}
}

// ApplyDiff merges upd into the book. A zero volume removes the level. The
// update id advances to upd.LastUpdateID, gap or not; the result reports
// continuity so the caller can decide to resync. Once synced, a diff the book
// already covers is dropped so the id never moves backwards.
func (r *Reconciler) ApplyDiff(upd market.OrderBookUpdate) DiffResult {
	res := DiffResult{PrevUpdateID: r.lastUpdateID}
	if r.synced {
		res.Stale = upd.LastUpdateID <= r.lastUpdateID
		if res.Stale {
			return res
		}
		res.Gap = upd.FirstUpdateID > r.lastUpdateID+1
	}

	apply(r.bids, upd.Bids)
	apply(r.asks, upd.Asks)
	r.lastUpdateID = upd.LastUpdateID
	return res
}

func apply(side map[string]market.PriceLevel, changes []market.PriceLevel) {
	for _, l := range changes {
		k := key(l.Price)
		if l.Volume.IsZero() {
			delete(side, k)
			continue
		}
		side[k] = l
	}
}

// key normalizes a price so "100", "100.0" and "1e2" share one level.
func key(price decimal.Decimal) string {
	return price.String()
}

// Book is an immutable view of the top of the book.
type Book struct {
	Pair         string
	UpdateID     int64
	LastSyncTime time.Time
	Bids         []market.PriceLevel // descending price
	Asks         []market.PriceLevel // ascending price
}

// Snapshot returns up to depth levels per side. depth <= 0 returns every level.
func (r *Reconciler) Snapshot(depth int) Book {
	return Book{
		Pair:         r.pair,
		UpdateID:     r.lastUpdateID,
		LastSyncTime: r.lastSync,
		Bids:         sorted(r.bids, depth, true),
		Asks:         sorted(r.asks, depth, false),
	}
}

func sorted(side map[string]market.PriceLevel, depth int, desc bool) []market.PriceLevel {
	out := make([]market.PriceLevel, 0, len(side))
	for _, l := range side {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	if depth > 0 && len(out) > depth {
		out = out[:depth]
	}
	return out
}

// LastUpdateID returns the id of the last applied snapshot or diff.
func (r *Reconciler) LastUpdateID() int64 { return r.lastUpdateID }

// LastSyncTime returns when the last snapshot was applied.
func (r *Reconciler) LastSyncTime() time.Time { return r.lastSync }

// Synced reports whether a snapshot has been applied since construction.
func (r *Reconciler) Synced() bool { return r.synced }

// Depth returns the number of levels on each side.
func (r *Reconciler) Depth() (bids, asks int) { return len(r.bids), len(r.asks) }

func (r *Reconciler) Pair() string { return r.pair }
