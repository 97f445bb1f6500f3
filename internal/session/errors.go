package session

import (
	"errors"
	"fmt"
)

var (
	ErrStopped            = errors.New("session stopped")
	ErrNotConnected       = errors.New("session not connected")
	ErrAckTimeout         = errors.New("subscription acknowledgment timed out")
	ErrPongTimeout        = errors.New("pong not received in time")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrUnsubscribed       = errors.New("channel unsubscribed")
)

// ConnectionError reports a transport open that failed or timed out.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SubscriptionError reports a channel that was nacked or never acknowledged.
type SubscriptionError struct {
	Channel string
	Err     error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscribe %s: %v", e.Channel, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }
