package venue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"marketfeed/internal/market"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidLevel   = errors.New("invalid price level")
	ErrMalformedFrame = errors.New("malformed frame")
)

// Response is the envelope shared by every REST endpoint.
type Response struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`    // 0 means success
	Message string          `json:"message"` // human-readable error description
	Data    json.RawMessage `json:"data"`    // decoded per endpoint
}

// OrderBookResponse is the depth snapshot payload.
type OrderBookResponse struct {
	UpdateID int64       `json:"updateId"`
	Bids     []WireLevel `json:"bids"`
	Asks     []WireLevel `json:"asks"`
}

// PairListResponse is the instrument listing payload.
type PairListResponse struct {
	Symbols []struct {
		Name        string `json:"name"`        // e.g. "BTCTRY"
		Numerator   string `json:"numerator"`   // e.g. "BTC"
		Denominator string `json:"denominator"` // e.g. "TRY"
		Status      string `json:"status"`      // "TRADING" when open
	} `json:"symbols"`
}

// LevelEncoding tags which wire shape a level arrived in.
type LevelEncoding int

const (
	LevelUnknown LevelEncoding = iota
	LevelPair                  // ["100.5", "0.3"]
	LevelObject                // {"price": "100.5", "amount": "0.3"}
)

// WireLevel is a price level as decoded from the wire. Decoding never fails on
// shape; an unrecognized level keeps Encoding == LevelUnknown so a single bad
// level can be dropped without failing the whole response.
type WireLevel struct {
	Encoding LevelEncoding
	Price    string
	Amount   string
	raw      string
}

func (w *WireLevel) UnmarshalJSON(b []byte) error {
	*w = WireLevel{raw: string(b)}
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return nil
	}

	switch trimmed[0] {
	case '[':
		var pair []json.RawMessage
		if err := json.Unmarshal(trimmed, &pair); err != nil || len(pair) < 2 {
			return nil
		}
		price, ok1 := scalar(pair[0])
		amount, ok2 := scalar(pair[1])
		if ok1 && ok2 {
			w.Encoding, w.Price, w.Amount = LevelPair, price, amount
		}
	case '{':
		var obj struct {
			Price  json.RawMessage `json:"price"`
			Amount json.RawMessage `json:"amount"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil
		}
		price, ok1 := scalar(obj.Price)
		amount, ok2 := scalar(obj.Amount)
		if ok1 && ok2 {
			w.Encoding, w.Price, w.Amount = LevelObject, price, amount
		}
	}
	return nil
}

func (w WireLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{w.Price, w.Amount})
}

// Level converts the wire level into the internal representation.
// Zero volume is allowed: in a diff it means "remove this price".
func (w WireLevel) Level() (market.PriceLevel, error) {
	if w.Encoding == LevelUnknown {
		return market.PriceLevel{}, fmt.Errorf("%w: %s", ErrInvalidLevel, w.raw)
	}
	price, err := decimal.NewFromString(w.Price)
	if err != nil {
		return market.PriceLevel{}, fmt.Errorf("%w: price %q: %v", ErrInvalidLevel, w.Price, err)
	}
	amount, err := decimal.NewFromString(w.Amount)
	if err != nil {
		return market.PriceLevel{}, fmt.Errorf("%w: amount %q: %v", ErrInvalidLevel, w.Amount, err)
	}
	if !price.IsPositive() || amount.IsNegative() {
		return market.PriceLevel{}, fmt.Errorf("%w: price=%s amount=%s", ErrInvalidLevel, w.Price, w.Amount)
	}
	return market.PriceLevel{Price: price, Volume: amount}, nil
}

// ParseLevels converts every wire level it can. Levels that fail are reported
// in errs and left out of the result.
func ParseLevels(wire []WireLevel) (levels []market.PriceLevel, errs []error) {
	levels = make([]market.PriceLevel, 0, len(wire))
	for _, w := range wire {
		lvl, err := w.Level()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		levels = append(levels, lvl)
	}
	return levels, errs
}

// scalar returns a JSON string or number as its textual value.
func scalar(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	return n.String(), true
}
