package venue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"marketfeed/internal/market"

	"github.com/shopspring/decimal"
)

// Stream event names.
const (
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
	EventUpdate      = "update"
	EventError       = "error"
)

// SubscribeRequest is sent to add or remove a channel subscription.
type SubscribeRequest struct {
	Time    int64    `json:"time"` // unix seconds
	Channel string   `json:"channel"`
	Event   string   `json:"event"` // "subscribe" or "unsubscribe"
	Payload []string `json:"payload"`
}

// NewSubscribeRequest builds a subscribe or unsubscribe request stamped with now.
func NewSubscribeRequest(event, channel string, payload []string, now time.Time) SubscribeRequest {
	if payload == nil {
		payload = []string{}
	}
	return SubscribeRequest{
		Time:    now.Unix(),
		Channel: channel,
		Event:   event,
		Payload: payload,
	}
}

// FrameError is the error object attached to nack and error frames.
type FrameError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("venue error %d: %s", e.Code, e.Message)
}

// Frame is any inbound stream message.
type Frame struct {
	Time    int64           `json:"time"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *FrameError     `json:"error,omitempty"`
}

// DecodeFrame parses raw and validates the fields required for its event kind.
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Validate checks the fields required for the frame's event kind.
func (f Frame) Validate() error {
	if f.Time <= 0 {
		return fmt.Errorf("%w: missing time", ErrMalformedFrame)
	}
	if f.Channel == "" {
		return fmt.Errorf("%w: missing channel", ErrMalformedFrame)
	}
	switch f.Event {
	case EventSubscribe, EventUnsubscribe:
		if f.Error == nil && isEmpty(f.Result) {
			return fmt.Errorf("%w: %s ack without result or error", ErrMalformedFrame, f.Event)
		}
	case EventUpdate:
		if isEmpty(f.Result) {
			return fmt.Errorf("%w: update without result", ErrMalformedFrame)
		}
	case EventError:
		if f.Error == nil {
			return fmt.Errorf("%w: error event without error", ErrMalformedFrame)
		}
	default:
		return fmt.Errorf("%w: unknown event %q", ErrMalformedFrame, f.Event)
	}
	return nil
}

// At returns the frame time.
func (f Frame) At() time.Time {
	return time.Unix(f.Time, 0).UTC()
}

// Failed returns the error carried by a nack or error frame, if any.
func (f Frame) Failed() error {
	if f.Error != nil {
		return f.Error
	}
	return nil
}

// TickerPayload is the result of an update on the ticker channel.
type TickerPayload struct {
	PairSymbol  string      `json:"pairSymbol"`
	Last        json.Number `json:"last"`
	Bid         json.Number `json:"bid"`
	Ask         json.Number `json:"ask"`
	High        json.Number `json:"high"`
	Low         json.Number `json:"low"`
	Volume      json.Number `json:"volume"`
	QuoteVolume json.Number `json:"quoteVolume"`
	Timestamp   int64       `json:"timestamp"` // milliseconds, optional
}

// OrderBookPayload is the result of an update on the order book diff channel.
type OrderBookPayload struct {
	Symbol        string      `json:"symbol"`
	FirstUpdateID int64       `json:"firstUpdateId"`
	LastUpdateID  int64       `json:"lastUpdateId"`
	BidChanges    []WireLevel `json:"bidChanges"`
	AskChanges    []WireLevel `json:"askChanges"`
	Timestamp     int64       `json:"timestamp"` // milliseconds
}

// ParseTicker normalizes a ticker update. The pair and a positive last price are required.
func ParseTicker(f Frame) (market.Tick, error) {
	var p TickerPayload
	if err := json.Unmarshal(f.Result, &p); err != nil {
		return market.Tick{}, fmt.Errorf("%w: ticker: %v", ErrMalformedFrame, err)
	}
	if p.PairSymbol == "" {
		return market.Tick{}, fmt.Errorf("%w: ticker: missing pairSymbol", ErrMalformedFrame)
	}

	last, err := decimal.NewFromString(p.Last.String())
	if err != nil || !last.IsPositive() {
		return market.Tick{}, fmt.Errorf("%w: ticker: invalid last %q", ErrMalformedFrame, p.Last)
	}

	tick := market.Tick{Pair: p.PairSymbol, Last: last, Time: f.At()}
	if p.Timestamp > 0 {
		tick.Time = time.UnixMilli(p.Timestamp).UTC()
	}

	optional := []struct {
		raw json.Number
		dst *decimal.Decimal
	}{
		{p.Bid, &tick.Bid},
		{p.Ask, &tick.Ask},
		{p.High, &tick.High},
		{p.Low, &tick.Low},
		{p.Volume, &tick.Volume},
		{p.QuoteVolume, &tick.QuoteVolume},
	}
	for _, o := range optional {
		if o.raw == "" {
			continue
		}
		v, err := decimal.NewFromString(o.raw.String())
		if err != nil {
			return market.Tick{}, fmt.Errorf("%w: ticker: invalid field %q", ErrMalformedFrame, o.raw)
		}
		*o.dst = v
	}
	return tick, nil
}

// ParseOrderBookUpdate normalizes an order book diff. A single invalid level
// rejects the whole diff: applying a partial diff would hide the loss.
func ParseOrderBookUpdate(f Frame) (market.OrderBookUpdate, error) {
	var p OrderBookPayload
	if err := json.Unmarshal(f.Result, &p); err != nil {
		return market.OrderBookUpdate{}, fmt.Errorf("%w: orderbook: %v", ErrMalformedFrame, err)
	}
	if p.Symbol == "" {
		return market.OrderBookUpdate{}, fmt.Errorf("%w: orderbook: missing symbol", ErrMalformedFrame)
	}
	if p.LastUpdateID <= 0 || p.FirstUpdateID > p.LastUpdateID {
		return market.OrderBookUpdate{}, fmt.Errorf("%w: orderbook: bad update ids %d..%d",
			ErrMalformedFrame, p.FirstUpdateID, p.LastUpdateID)
	}

	bids, errs := ParseLevels(p.BidChanges)
	if len(errs) > 0 {
		return market.OrderBookUpdate{}, fmt.Errorf("%w: orderbook bid: %v", ErrMalformedFrame, errs[0])
	}
	asks, errs := ParseLevels(p.AskChanges)
	if len(errs) > 0 {
		return market.OrderBookUpdate{}, fmt.Errorf("%w: orderbook ask: %v", ErrMalformedFrame, errs[0])
	}

	at := f.At()
	if p.Timestamp > 0 {
		at = time.UnixMilli(p.Timestamp).UTC()
	}

	return market.OrderBookUpdate{
		Pair:          p.Symbol,
		FirstUpdateID: p.FirstUpdateID,
		LastUpdateID:  p.LastUpdateID,
		Bids:          bids,
		Asks:          asks,
		Time:          at,
	}, nil
}

func isEmpty(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
