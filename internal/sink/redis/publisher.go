// Package redis republishes normalized events on Redis Pub/Sub so downstream
// consumers can follow the feed without linking this module.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"marketfeed/config"
	"marketfeed/internal/events"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	queueSize      = 1024
	publishTimeout = 2 * time.Second
)

// sender is the part of the Redis client the publisher needs.
type sender interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type clientSender struct {
	rdb *redis.Client
}

func (s clientSender) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

type message struct {
	channel string
	env     events.Envelope
}

// Publisher queues events and sends them from a single worker, so a slow
// Redis never stalls the caller. Events are dropped when the queue is full.
type Publisher struct {
	rdb     *redis.Client
	send    sender
	prefix  string
	pair    string
	queue   chan message
	dropped atomic.Int64
	logger  *zap.Logger
}

// Dial connects to Redis and verifies the connection with a ping.
func Dial(ctx context.Context, cfg config.RedisConfig, pair string, logger *zap.Logger) (*Publisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	p := newPublisher(clientSender{rdb: rdb}, cfg.Prefix, pair, logger)
	p.rdb = rdb
	return p, nil
}

func newPublisher(s sender, prefix, pair string, logger *zap.Logger) *Publisher {
	if prefix == "" {
		prefix = "feed"
	}
	return &Publisher{
		send:   s,
		prefix: prefix,
		pair:   pair,
		queue:  make(chan message, queueSize),
		logger: logger.Named("redis"),
	}
}

// Channel returns the Pub/Sub channel for events of kind k.
func (p *Publisher) Channel(k events.Kind) string {
	return fmt.Sprintf("%s:%s:%s", p.prefix, p.pair, k)
}

// Publish enqueues e. It never blocks. Use it as an events.Publisher.
func (p *Publisher) Publish(e events.Event) {
	msg := message{channel: p.Channel(e.Kind()), env: events.Wrap(e, time.Now())}
	select {
	case p.queue <- msg:
	default:
		if n := p.dropped.Add(1); n%100 == 1 {
			p.logger.Warn("event queue full, dropping", zap.String("kind", string(e.Kind())), zap.Int64("dropped", n))
		}
	}
}

// Dropped returns how many events were discarded on a full queue.
func (p *Publisher) Dropped() int64 { return p.dropped.Load() }

// Run sends queued events until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-p.queue:
			p.deliver(ctx, msg)
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, msg message) {
	payload, err := json.Marshal(msg.env)
	if err != nil {
		p.logger.Warn("failed to encode event", zap.String("kind", string(msg.env.Kind)), zap.Error(err))
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.send.Publish(sendCtx, msg.channel, payload); err != nil {
		p.logger.Warn("failed to publish event", zap.String("channel", msg.channel), zap.Error(err))
	}
}

func (p *Publisher) Close() error {
	if p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}
