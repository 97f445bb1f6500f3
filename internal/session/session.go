// Package session maintains one self-healing streaming connection to the venue:
// connect, subscribe, heartbeat, detect failure and reconnect with backoff.
// Inbound frames are validated and normalized into events.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"marketfeed/internal/events"
	"marketfeed/pkg/venue"

	"go.uber.org/zap"
)

// Config holds the session timings and channel names.
type Config struct {
	URL            string
	ConnectTimeout time.Duration
	AckTimeout     time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration
	Backoff        Backoff
	// MaxAttempts caps consecutive reconnect attempts; 0 retries forever.
	MaxAttempts int

	TickerChannel    string
	OrderBookChannel string
}

// Session owns the streaming transport and its subscriptions.
type Session struct {
	cfg     Config
	dialer  Dialer
	publish events.Publisher
	logger  *zap.Logger

	mu             sync.Mutex
	state          State
	conn           Conn
	gen            uint64 // bumped per dial; callbacks from older connections are ignored
	attempts       int
	stopped        bool
	fatalErr       error
	subs           *subscriptions
	hb             *heartbeat
	reconnectTimer *time.Timer
	latency        time.Duration

	fatal chan struct{}
}

// New creates a disconnected session. publish receives every normalized event.
func New(cfg Config, dialer Dialer, publish events.Publisher, logger *zap.Logger) *Session {
	if publish == nil {
		publish = events.Discard
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 10 * time.Second
	}
	return &Session{
		cfg:     cfg,
		dialer:  dialer,
		publish: publish,
		logger:  logger.Named("session"),
		subs:    newSubscriptions(),
		fatal:   make(chan struct{}),
	}
}

// Connect opens the transport. On failure it returns a *ConnectionError and
// schedules a reconnect. Calling Connect on a live session is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.fatalErr != nil {
		err := s.fatalErr
		s.mu.Unlock()
		return err
	}
	s.stopped = false
	s.mu.Unlock()

	return s.connect(ctx)
}

func (s *Session) connect(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.state != Disconnected {
		s.mu.Unlock()
		return nil
	}
	s.state = Connecting
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	conn, err := s.dialer.Dial(dialCtx, s.cfg.URL, func() { s.onPong(gen) })
	if err != nil {
		cerr := &ConnectionError{URL: s.cfg.URL, Err: err}
		s.logger.Warn("failed to connect", zap.String("url", s.cfg.URL), zap.Error(err))

		s.mu.Lock()
		if s.gen == gen {
			s.state = Disconnected
		}
		s.mu.Unlock()

		s.publish(events.Connection{Status: events.StatusDisconnected, Error: err.Error()})
		s.scheduleReconnect(cerr)
		return cerr
	}

	s.mu.Lock()
	if s.stopped || s.gen != gen {
		s.mu.Unlock()
		_ = conn.Close()
		return ErrStopped
	}
	s.conn = conn
	s.state = Connected
	s.attempts = 0
	hb := newHeartbeat(s.cfg.PingInterval, s.cfg.PongTimeout, conn.Ping,
		func(latency time.Duration) { s.recordLatency(latency) },
		func(err error) { s.terminate(gen, err) })
	s.hb = hb
	s.subs.resetPending()
	resubscribe := s.subs.desiredSubs()
	s.mu.Unlock()

	s.logger.Info("connected", zap.String("url", s.cfg.URL))
	s.publish(events.Connection{Status: events.StatusConnected})

	go s.readLoop(gen, conn)
	go hb.run()

	if len(resubscribe) > 0 {
		go func() {
			if err := s.Subscribe(context.Background(), resubscribe...); err != nil {
				s.logger.Warn("resubscribe incomplete", zap.Error(err))
			}
		}()
	}
	return nil
}

// Subscribe sends a subscribe request per channel and waits for each
// acknowledgment up to the ack timeout. Channels succeed or fail independently;
// failures are returned as *SubscriptionError values joined together.
func (s *Session) Subscribe(ctx context.Context, subs ...Subscription) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	waits := make([]<-chan error, len(subs))
	for i, sub := range subs {
		waits[i] = s.subs.request(sub)
	}
	if s.state == Ready && len(subs) > 0 {
		s.state = Connected
	}
	s.mu.Unlock()

	for _, sub := range subs {
		req := venue.NewSubscribeRequest(venue.EventSubscribe, sub.Channel, sub.Payload, time.Now())
		if err := s.send(conn, req); err != nil {
			s.settle(sub.Channel, fmt.Errorf("send: %w", err))
		}
	}

	deadline := time.Now().Add(s.cfg.AckTimeout)
	var errs []error
	for i, sub := range subs {
		err := awaitAck(ctx, waits[i], deadline)
		if err == nil {
			continue
		}
		// no-op if the channel already settled
		s.settle(sub.Channel, err)
		errs = append(errs, &SubscriptionError{Channel: sub.Channel, Err: err})
	}
	return errors.Join(errs...)
}

func awaitAck(ctx context.Context, wait <-chan error, deadline time.Time) error {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case err := <-wait:
		return err
	case <-timer.C:
		return ErrAckTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unsubscribe sends an unsubscribe request and forgets the channel, so it is
// not reissued after a reconnect.
func (s *Session) Unsubscribe(ctx context.Context, channel string) error {
	s.mu.Lock()
	conn := s.conn
	var payload []string
	if e, ok := s.subs.entries[channel]; ok {
		payload = e.sub.Payload
	}
	s.subs.remove(channel, ErrUnsubscribed)
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.send(conn, venue.NewSubscribeRequest(venue.EventUnsubscribe, channel, payload, time.Now()))
}

// Disconnect stops the session: no further reconnects, timers cancelled,
// transport closed and subscriptions dropped. It is idempotent.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.stopped && s.conn == nil && s.reconnectTimer == nil {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	conn := s.conn
	hb := s.hb
	s.conn = nil
	s.hb = nil
	s.state = Disconnected
	s.gen++
	s.subs.clear(ErrStopped)
	s.mu.Unlock()

	hb.stop()
	if conn != nil {
		err := conn.Close()
		s.logger.Info("disconnected")
		s.publish(events.Connection{Status: events.StatusDisconnected})
		return err
	}
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempts returns the consecutive failed connection count.
func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Latency returns the round trip of the last answered ping.
func (s *Session) Latency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latency
}

// Subscriptions returns the status of every known channel.
func (s *Session) Subscriptions() map[string]SubStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs.snapshot()
}

// Fatal is closed when reconnect attempts are exhausted. Err then reports why.
func (s *Session) Fatal() <-chan struct{} { return s.fatal }

// Err returns the terminal error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatalErr
}

func (s *Session) send(conn Conn, req venue.SubscribeRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", req.Event, err)
	}
	return conn.WriteMessage(data)
}

// settle resolves a pending channel and moves to Ready when every desired
// channel is acknowledged.
func (s *Session) settle(channel string, err error) {
	s.mu.Lock()
	if !s.subs.resolve(channel, err) {
		s.mu.Unlock()
		return
	}
	ready := s.state == Connected && s.subs.allAcknowledged()
	if ready {
		s.state = Ready
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("subscription failed", zap.String("channel", channel), zap.Error(err))
		s.publish(events.Connection{Status: events.StatusError, Channel: channel, Error: err.Error()})
	} else {
		s.logger.Info("subscribed", zap.String("channel", channel))
		s.publish(events.Connection{Status: events.StatusSubscribed, Channel: channel})
	}
	if ready {
		s.publish(events.Connection{Status: events.StatusReady})
	}
}

func (s *Session) readLoop(gen uint64, conn Conn) {
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			s.terminate(gen, fmt.Errorf("read: %w", err))
			return
		}
		s.handleFrame(raw)
	}
}

// terminate tears down connection gen after a transport failure and schedules
// a reconnect unless the session was stopped.
func (s *Session) terminate(gen uint64, cause error) {
	s.mu.Lock()
	if gen != s.gen || s.conn == nil {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	hb := s.hb
	s.conn = nil
	s.hb = nil
	s.state = Disconnected
	s.subs.resetPending()
	s.mu.Unlock()

	hb.stop()
	_ = conn.Close()

	s.logger.Warn("connection lost", zap.Error(cause))
	s.publish(events.Connection{Status: events.StatusDisconnected, Error: cause.Error()})
	s.scheduleReconnect(cause)
}

func (s *Session) scheduleReconnect(cause error) {
	s.mu.Lock()
	if s.stopped || s.reconnectTimer != nil {
		s.mu.Unlock()
		return
	}
	s.attempts++
	attempt := s.attempts
	if s.cfg.MaxAttempts > 0 && attempt > s.cfg.MaxAttempts {
		s.stopped = true
		s.fatalErr = fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, s.cfg.MaxAttempts, cause)
		fatalErr := s.fatalErr
		s.subs.clear(fatalErr)
		close(s.fatal)
		s.mu.Unlock()

		s.logger.Error("giving up reconnecting", zap.Error(fatalErr))
		s.publish(events.Connection{Status: events.StatusFatal, Attempt: attempt, Error: fatalErr.Error()})
		return
	}
	delay := s.cfg.Backoff.Next(attempt)
	s.reconnectTimer = time.AfterFunc(delay, s.reconnect)
	s.mu.Unlock()

	s.logger.Info("reconnect scheduled", zap.Int("attempt", attempt), zap.Duration("delay", delay))
	s.publish(events.Connection{Status: events.StatusReconnecting, Attempt: attempt, Delay: delay})
}

func (s *Session) reconnect() {
	s.mu.Lock()
	s.reconnectTimer = nil
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}
	if err := s.connect(context.Background()); err != nil {
		s.logger.Debug("reconnect failed", zap.Error(err))
	}
}

func (s *Session) onPong(gen uint64) {
	s.mu.Lock()
	hb := s.hb
	live := gen == s.gen && hb != nil
	s.mu.Unlock()
	if live {
		hb.pong()
	}
}

func (s *Session) recordLatency(latency time.Duration) {
	s.mu.Lock()
	s.latency = latency
	s.mu.Unlock()
	s.publish(events.Heartbeat{Latency: latency})
}

// handleFrame classifies one inbound frame. Invalid frames are logged and
// dropped without touching session state.
func (s *Session) handleFrame(raw []byte) {
	f, err := venue.DecodeFrame(raw)
	if err != nil {
		s.logger.Warn("dropping invalid frame", zap.Error(err), zap.ByteString("frame", clip(raw)))
		return
	}

	switch f.Event {
	case venue.EventSubscribe:
		s.settle(f.Channel, f.Failed())
	case venue.EventUnsubscribe:
		s.logger.Debug("unsubscribe acknowledged", zap.String("channel", f.Channel))
	case venue.EventError:
		s.mu.Lock()
		pending := s.subs.pending(f.Channel)
		s.mu.Unlock()
		if pending {
			s.settle(f.Channel, f.Failed())
			return
		}
		s.logger.Warn("venue error", zap.String("channel", f.Channel), zap.Error(f.Failed()))
		s.publish(events.Connection{Status: events.StatusError, Channel: f.Channel, Error: f.Error.Error()})
	case venue.EventUpdate:
		s.handleUpdate(f)
	}
}

func (s *Session) handleUpdate(f venue.Frame) {
	switch f.Channel {
	case s.cfg.TickerChannel:
		tick, err := venue.ParseTicker(f)
		if err != nil {
			s.logger.Warn("dropping ticker update", zap.Error(err))
			return
		}
		s.publish(events.Tick{Tick: tick})
	case s.cfg.OrderBookChannel:
		upd, err := venue.ParseOrderBookUpdate(f)
		if err != nil {
			s.logger.Warn("dropping order book update", zap.Error(err))
			return
		}
		s.publish(events.OrderBookDiff{OrderBookUpdate: upd})
	default:
		s.logger.Debug("ignoring update", zap.String("channel", f.Channel))
	}
}

func clip(b []byte) []byte {
	const max = 256
	if len(b) > max {
		return b[:max]
	}
	return b
}
