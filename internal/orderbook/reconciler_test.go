package orderbook

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketfeed/internal/market"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFetcher struct {
	snap    market.OrderBookSnapshot
	skipped []error
	err     error
	calls   int
}

func (f *fakeFetcher) GetOrderBook(_ context.Context, _ string, _ int) (market.OrderBookSnapshot, []error, error) {
	f.calls++
	return f.snap, f.skipped, f.err
}

func lvl(price, volume string) market.PriceLevel {
	return market.PriceLevel{
		Price:  decimal.RequireFromString(price),
		Volume: decimal.RequireFromString(volume),
	}
}

func baseSnapshot() market.OrderBookSnapshot {
	return market.OrderBookSnapshot{
		Pair:     "BTCTRY",
		UpdateID: 10,
		Bids:     []market.PriceLevel{lvl("100", "1"), lvl("99", "2")},
		Asks:     []market.PriceLevel{lvl("101", "1")},
	}
}

func newSynced(t *testing.T) (*Reconciler, *fakeFetcher) {
	t.Helper()
	f := &fakeFetcher{snap: baseSnapshot()}
	r := New("BTCTRY", 50, f, zap.NewNop())
	require.NoError(t, r.Sync(context.Background()))
	return r, f
}

func assertOrdered(t *testing.T, b Book) {
	t.Helper()
	for i := 1; i < len(b.Bids); i++ {
		assert.True(t, b.Bids[i-1].Price.GreaterThan(b.Bids[i].Price), "bids not descending at %d", i)
	}
	for i := 1; i < len(b.Asks); i++ {
		assert.True(t, b.Asks[i-1].Price.LessThan(b.Asks[i].Price), "asks not ascending at %d", i)
	}
	for _, l := range append(b.Bids, b.Asks...) {
		assert.False(t, l.Volume.IsZero(), "zero volume level %s", l.Price)
	}
}

// go test -v --run TestStatsFromSnapshot
func TestStatsFromSnapshot(t *testing.T) {
	r, _ := newSynced(t)

	st := r.Stats(0)
	assert.Equal(t, "100", st.BestBid.String())
	assert.Equal(t, "101", st.BestAsk.String())
	assert.Equal(t, "1", st.Spread.String())
	assert.Equal(t, "100.5", st.Mid.String())
	assert.True(t, st.BuyPressure.Equal(decimal.NewFromInt(75)))
	assert.True(t, st.SellPressure.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, "0.995", st.SpreadPercent.StringFixed(3))
}

// go test -v --run TestApplyDiffRemovesZeroVolume
func TestApplyDiffRemovesZeroVolume(t *testing.T) {
	r, _ := newSynced(t)

	res := r.ApplyDiff(market.OrderBookUpdate{
		FirstUpdateID: 11,
		LastUpdateID:  11,
		Bids:          []market.PriceLevel{lvl("100", "0")},
	})
	assert.False(t, res.Gap)
	assert.Equal(t, int64(10), res.PrevUpdateID)

	assert.Equal(t, "99", r.Stats(0).BestBid.String())
	assert.Equal(t, int64(11), r.LastUpdateID())

	// removing an absent price is a no-op
	r.ApplyDiff(market.OrderBookUpdate{FirstUpdateID: 12, LastUpdateID: 12, Asks: []market.PriceLevel{lvl("500", "0")}})
	bids, asks := r.Depth()
	assert.Equal(t, 1, bids)
	assert.Equal(t, 1, asks)
}

// go test -v --run TestApplyDiffOverwritesLevels
func TestApplyDiffOverwritesLevels(t *testing.T) {
	r, _ := newSynced(t)

	r.ApplyDiff(market.OrderBookUpdate{
		FirstUpdateID: 11,
		LastUpdateID:  12,
		Bids:          []market.PriceLevel{lvl("99.0", "5"), lvl("98", "1")},
		Asks:          []market.PriceLevel{lvl("102", "3"), lvl("101", "0.5")},
	})

	book := r.Snapshot(0)
	assertOrdered(t, book)
	require.Len(t, book.Bids, 3)
	assert.Equal(t, "5", book.Bids[1].Volume.String())
	require.Len(t, book.Asks, 2)
	assert.Equal(t, "0.5", book.Asks[0].Volume.String())

	top := r.Snapshot(1)
	require.Len(t, top.Bids, 1)
	require.Len(t, top.Asks, 1)
	assert.Equal(t, "100", top.Bids[0].Price.String())
}

// go test -v --run TestApplyDiffReportsGap
func TestApplyDiffReportsGap(t *testing.T) {
	r, _ := newSynced(t)

	res := r.ApplyDiff(market.OrderBookUpdate{FirstUpdateID: 15, LastUpdateID: 16})
	assert.True(t, res.Gap)
	assert.Equal(t, int64(16), r.LastUpdateID())

	res = r.ApplyDiff(market.OrderBookUpdate{FirstUpdateID: 3, LastUpdateID: 4, Bids: []market.PriceLevel{lvl("100", "0")}})
	assert.True(t, res.Stale)
	assert.False(t, res.Gap)
	assert.Equal(t, int64(16), r.LastUpdateID(), "stale diff must not move the id back")
	assert.Equal(t, "100", r.Stats(0).BestBid.String(), "stale diff is not applied")
}

// go test -v --run TestApplyDiffOverlappingSnapshot
func TestApplyDiffOverlappingSnapshot(t *testing.T) {
	r, _ := newSynced(t)

	// 8..12 straddles the snapshot id 10
	res := r.ApplyDiff(market.OrderBookUpdate{FirstUpdateID: 8, LastUpdateID: 12, Asks: []market.PriceLevel{lvl("102", "4")}})
	assert.False(t, res.Gap)
	assert.False(t, res.Stale)
	assert.Equal(t, int64(12), r.LastUpdateID())
	_, asks := r.Depth()
	assert.Equal(t, 2, asks)
}

// go test -v --run TestApplyDiffBeforeSyncHasNoGap
func TestApplyDiffBeforeSyncHasNoGap(t *testing.T) {
	r := New("BTCTRY", 50, &fakeFetcher{}, zap.NewNop())
	res := r.ApplyDiff(market.OrderBookUpdate{FirstUpdateID: 100, LastUpdateID: 101, Bids: []market.PriceLevel{lvl("1", "1")}})
	assert.False(t, res.Gap)
	assert.False(t, r.Synced())
}

// go test -v --run TestSyncFailureKeepsState
func TestSyncFailureKeepsState(t *testing.T) {
	r, f := newSynced(t)
	r.ApplyDiff(market.OrderBookUpdate{FirstUpdateID: 11, LastUpdateID: 11, Asks: []market.PriceLevel{lvl("103", "4")}})
	before := r.Snapshot(0)

	f.err = errors.New("503 service unavailable")
	err := r.Sync(context.Background())

	var serr *SyncError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "BTCTRY", serr.Pair)
	assert.Equal(t, before, r.Snapshot(0))
	assert.Equal(t, int64(11), r.LastUpdateID())
}

// go test -v --run TestSyncReplacesWholesale
func TestSyncReplacesWholesale(t *testing.T) {
	r, f := newSynced(t)
	r.ApplyDiff(market.OrderBookUpdate{FirstUpdateID: 11, LastUpdateID: 11, Bids: []market.PriceLevel{lvl("98", "7")}})

	f.snap = market.OrderBookSnapshot{
		UpdateID: 40,
		Bids:     []market.PriceLevel{lvl("95", "1"), lvl("96", "0")},
		Asks:     []market.PriceLevel{lvl("97", "2")},
	}
	f.skipped = []error{errors.New("bad level")}
	require.NoError(t, r.Sync(context.Background()))

	book := r.Snapshot(0)
	assert.Equal(t, int64(40), book.UpdateID)
	require.Len(t, book.Bids, 1, "zero volume snapshot levels are not stored")
	assert.Equal(t, "95", book.Bids[0].Price.String())
	require.Len(t, book.Asks, 1)
	assert.WithinDuration(t, time.Now(), r.LastSyncTime(), time.Second)
}

// go test -v --run TestReplayMatchesDirectApply
func TestReplayMatchesDirectApply(t *testing.T) {
	diffs := []market.OrderBookUpdate{
		{FirstUpdateID: 11, LastUpdateID: 11, Bids: []market.PriceLevel{lvl("98", "1")}},
		{FirstUpdateID: 12, LastUpdateID: 12, Bids: []market.PriceLevel{lvl("98", "3")}, Asks: []market.PriceLevel{lvl("101", "0")}},
		{FirstUpdateID: 13, LastUpdateID: 13, Asks: []market.PriceLevel{lvl("104", "2"), lvl("102", "1")}},
	}

	a, _ := newSynced(t)
	for _, d := range diffs {
		a.ApplyDiff(d)
	}

	b := New("BTCTRY", 50, &fakeFetcher{}, zap.NewNop())
	b.Replace(baseSnapshot(), a.LastSyncTime())
	for _, d := range diffs {
		b.ApplyDiff(d)
	}

	assert.Equal(t, a.Snapshot(0), b.Snapshot(0))
	assertOrdered(t, a.Snapshot(0))
	assert.Equal(t, "3", a.Snapshot(0).Bids[2].Volume.String(), "last write wins")
}

// go test -v --run TestStatsEmptySide
func TestStatsEmptySide(t *testing.T) {
	r := New("BTCTRY", 50, &fakeFetcher{}, zap.NewNop())
	r.Replace(market.OrderBookSnapshot{Bids: []market.PriceLevel{lvl("100", "1")}}, time.Now())

	st := r.Stats(0)
	assert.True(t, st.BestBid.IsZero())
	assert.True(t, st.Spread.IsZero())
	assert.True(t, st.BuyPressure.Equal(decimal.NewFromInt(50)))
	assert.True(t, st.SellPressure.Equal(decimal.NewFromInt(50)))
}
