package session

import (
	"fmt"
	"sync"
	"time"
)

// heartbeat pings on a fixed interval and fails the connection when a pong
// does not arrive within the timeout. One heartbeat lives per connection.
type heartbeat struct {
	interval time.Duration
	timeout  time.Duration
	ping     func() error
	onPong   func(latency time.Duration)
	onFail   func(err error)

	mu      sync.Mutex
	sentAt  time.Time
	timer   *time.Timer
	stopped bool
	done    chan struct{}
}

func newHeartbeat(interval, timeout time.Duration, ping func() error,
	onPong func(time.Duration), onFail func(error)) *heartbeat {
	return &heartbeat{
		interval: interval,
		timeout:  timeout,
		ping:     ping,
		onPong:   onPong,
		onFail:   onFail,
		done:     make(chan struct{}),
	}
}

func (h *heartbeat) run() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.beat()
		}
	}
}

func (h *heartbeat) beat() {
	h.mu.Lock()
	if h.stopped || h.timer != nil {
		// previous ping still outstanding; its timer decides
		h.mu.Unlock()
		return
	}
	h.sentAt = time.Now()
	h.timer = time.AfterFunc(h.timeout, h.expire)
	h.mu.Unlock()

	if err := h.ping(); err != nil {
		if h.stop() {
			h.onFail(fmt.Errorf("ping: %w", err))
		}
	}
}

// pong records a pong. Unsolicited pongs are ignored.
func (h *heartbeat) pong() {
	h.mu.Lock()
	if h.stopped || h.timer == nil {
		h.mu.Unlock()
		return
	}
	h.timer.Stop()
	h.timer = nil
	latency := time.Since(h.sentAt)
	h.mu.Unlock()

	h.onPong(latency)
}

func (h *heartbeat) expire() {
	h.mu.Lock()
	if h.stopped || h.timer == nil {
		h.mu.Unlock()
		return
	}
	h.timer = nil
	h.mu.Unlock()

	if h.stop() {
		h.onFail(ErrPongTimeout)
	}
}

// stop cancels the loop and any pending timer. It returns true only for the first call.
func (h *heartbeat) stop() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.stopped = true
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	close(h.done)
	return true
}
