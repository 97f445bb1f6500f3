package orderbook

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
	fifty   = decimal.NewFromInt(50)
)

// Stats summarizes the visible book.
type Stats struct {
	BestBid       decimal.Decimal
	BestAsk       decimal.Decimal
	Spread        decimal.Decimal
	SpreadPercent decimal.Decimal // spread relative to mid, in percent
	Mid           decimal.Decimal
	BidVolume     decimal.Decimal
	AskVolume     decimal.Decimal
	BuyPressure   decimal.Decimal // bid share of visible volume, in percent
	SellPressure  decimal.Decimal
}

// Stats computes top-of-book figures over depth levels per side (all levels
// when depth <= 0). With either side empty it returns zero prices and a
// 50/50 pressure split.
func (r *Reconciler) Stats(depth int) Stats {
	book := r.Snapshot(depth)
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return Stats{BuyPressure: fifty, SellPressure: fifty}
	}

	st := Stats{
		BestBid: book.Bids[0].Price,
		BestAsk: book.Asks[0].Price,
	}
	st.Spread = st.BestAsk.Sub(st.BestBid)
	st.Mid = st.BestBid.Add(st.BestAsk).Div(two)
	if !st.Mid.IsZero() {
		st.SpreadPercent = st.Spread.Div(st.Mid).Mul(hundred)
	}

	for _, l := range book.Bids {
		st.BidVolume = st.BidVolume.Add(l.Volume)
	}
	for _, l := range book.Asks {
		st.AskVolume = st.AskVolume.Add(l.Volume)
	}
	total := st.BidVolume.Add(st.AskVolume)
	if total.IsZero() {
		st.BuyPressure, st.SellPressure = fifty, fifty
		return st
	}
	st.BuyPressure = st.BidVolume.Div(total).Mul(hundred)
	st.SellPressure = hundred.Sub(st.BuyPressure)
	return st
}
