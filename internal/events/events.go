// Package events defines the normalized events produced by the ingestion core
// for downstream consumers.
package events

import (
	"time"

	"marketfeed/internal/market"
)

// Kind names an event type. It is also used as the sink channel suffix.
type Kind string

const (
	KindTick            Kind = "tick"
	KindOrderBookDiff   Kind = "orderbook.diff"
	KindOrderBookSynced Kind = "orderbook.synced"
	KindCandleCompleted Kind = "candle.completed"
	KindConnection      Kind = "connection"
	KindHeartbeat       Kind = "heartbeat"
)

// Event is implemented by every normalized event.
type Event interface {
	Kind() Kind
}

// Tick carries a normalized ticker update.
type Tick struct {
	market.Tick
}

func (Tick) Kind() Kind { return KindTick }

// OrderBookDiff carries an incremental book update as received from the stream.
type OrderBookDiff struct {
	market.OrderBookUpdate
}

func (OrderBookDiff) Kind() Kind { return KindOrderBookDiff }

// OrderBookSynced is emitted after the local book was replaced by a snapshot.
type OrderBookSynced struct {
	Pair     string    `json:"pair"`
	UpdateID int64     `json:"updateId"`
	Bids     int       `json:"bids"`
	Asks     int       `json:"asks"`
	SyncedAt time.Time `json:"syncedAt"`
}

func (OrderBookSynced) Kind() Kind { return KindOrderBookSynced }

// CandleCompleted is emitted once per finished period on every tier.
// Tier 0 is the base resolution.
type CandleCompleted struct {
	Pair       string            `json:"pair"`
	Tier       int               `json:"tier"`
	Resolution market.Resolution `json:"resolution"`
	Candle     market.Candle     `json:"candle"`
}

func (CandleCompleted) Kind() Kind { return KindCandleCompleted }

// Status is a connection lifecycle transition.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusReady        Status = "ready"
	StatusDisconnected Status = "disconnected"
	StatusReconnecting Status = "reconnecting"
	StatusSubscribed   Status = "subscribed"
	StatusError        Status = "error"
	// StatusFatal is terminal: the session gave up reconnecting.
	StatusFatal Status = "fatal"
)

// Connection reports a session state change or a channel-level result.
type Connection struct {
	Status  Status        `json:"status"`
	Channel string        `json:"channel,omitempty"`
	Attempt int           `json:"attempt,omitempty"`
	Delay   time.Duration `json:"delay,omitempty"`
	Error   string        `json:"error,omitempty"`
}

func (Connection) Kind() Kind { return KindConnection }

// Heartbeat reports a pong received in time.
type Heartbeat struct {
	Latency time.Duration `json:"latency"`
}

func (Heartbeat) Kind() Kind { return KindHeartbeat }
