// Package collector wires the session, order book, candle cascade and stores
// together and serializes all of their work onto one event loop.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketfeed/internal/candles"
	"marketfeed/internal/events"
	"marketfeed/internal/market"
	"marketfeed/internal/memorystore"
	"marketfeed/internal/orderbook"
	"marketfeed/internal/session"
	"marketfeed/internal/stream"
	"marketfeed/pkg/venue"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Venue is the REST surface the collector polls. *venue.RESTClient implements it.
type Venue interface {
	orderbook.SnapshotFetcher
	GetCandles(ctx context.Context, pair string, res market.Resolution, query venue.CandleQuery) ([]market.Candle, []error, error)
	GetPairs(ctx context.Context) ([]string, error)
}

// Stream is the streaming session. *session.Session implements it.
type Stream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, subs ...session.Subscription) error
	Disconnect() error
	State() session.State
	Attempts() int
	Latency() time.Duration
	Fatal() <-chan struct{}
	Err() error
}

const historyTimeout = 10 * time.Second

type Options struct {
	Pair           string
	Depth          int
	Tiers          candles.Tiers
	ResyncInterval time.Duration
	PollInterval   time.Duration
	HealthInterval time.Duration
	TickCapacity   int
	CandleCapacity int

	TickerChannel    string
	OrderBookChannel string
}

// Deps are the collaborators built outside the collector. Only Venue and
// NewStream are required.
type Deps struct {
	Venue Venue
	// NewStream builds the session around the collector's inbound publisher.
	NewStream func(publish events.Publisher) Stream
	History   candles.HistorySource
	Writer    *stream.CandleWriter
	Sinks     []events.Publisher
	// Workers run alongside the loop and stop with it.
	Workers []func(ctx context.Context) error
	// Counters are included in the periodic health log.
	Counters map[string]func() int64
}

type Collector struct {
	opts   Options
	deps   Deps
	logger *zap.Logger

	stream  Stream
	book    *orderbook.Reconciler
	agg     *candles.Aggregator
	ticks   *memorystore.TickStore
	candles *memorystore.CandleStore

	// downstream receives every normalized event after the stores.
	downstream events.Publisher

	inbox chan events.Event
	tasks chan func()
	done  chan struct{}

	// loop-owned
	loopCtx    context.Context
	syncing    bool
	polling    bool
	dropped    bool
	subscribed bool
	syncs      int
	staleDiffs int64
	// diffs received while a snapshot fetch is in flight
	buffered []market.OrderBookUpdate
	overflow bool
}

func New(opts Options, deps Deps, logger *zap.Logger) (*Collector, error) {
	if deps.Venue == nil || deps.NewStream == nil {
		return nil, errors.New("collector: venue and stream are required")
	}
	if err := opts.Tiers.Validate(); err != nil {
		return nil, fmt.Errorf("collector: %w", err)
	}
	if opts.ResyncInterval <= 0 {
		opts.ResyncInterval = 5 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = opts.Tiers[0].Duration()
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = time.Minute
	}

	c := &Collector{
		opts:    opts,
		deps:    deps,
		logger:  logger.Named("collector"),
		ticks:   memorystore.NewTickStore(opts.TickCapacity),
		candles: memorystore.NewCandleStore(opts.CandleCapacity),
		inbox:   make(chan events.Event, 256),
		tasks:   make(chan func(), 64),
		done:    make(chan struct{}),
	}

	handler := stream.MakeEventHandler(c.logger, c.ticks, c.candles, deps.Writer)
	c.downstream = events.Fanout(append([]events.Publisher{handler}, deps.Sinks...)...)

	agg, err := candles.New(opts.Pair, opts.Tiers, c.downstream, c.onGap, logger)
	if err != nil {
		return nil, fmt.Errorf("collector: %w", err)
	}
	c.agg = agg
	c.book = orderbook.New(opts.Pair, opts.Depth, deps.Venue, logger)
	c.stream = deps.NewStream(c.receive)
	return c, nil
}

// receive is the session's publisher. It hands events to the loop and gives
// up once the loop has exited.
func (c *Collector) receive(e events.Event) {
	select {
	case c.inbox <- e:
	case <-c.done:
	}
}

// Run starts the pipeline and blocks until ctx is cancelled or the session
// gives up reconnecting.
func (c *Collector) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(c.done)
		return c.loop(ctx)
	})
	g.Go(func() error { return c.start(ctx) })
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stream.Fatal():
			return fmt.Errorf("stream: %w", c.stream.Err())
		}
	})
	for _, w := range c.deps.Workers {
		g.Go(func() error { return w(ctx) })
	}
	if c.deps.Writer != nil {
		g.Go(func() error { return c.deps.Writer.StartWorker(ctx) })
	}

	err := g.Wait()
	if derr := c.stream.Disconnect(); derr != nil {
		c.logger.Warn("disconnect failed", zap.Error(derr))
	}
	return err
}

// start opens the session. Subscriptions follow the first connected event; a
// failed dial is retried by the session itself.
func (c *Collector) start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		c.logger.Warn("initial connect failed, retrying in background", zap.Error(err))
	}
	return nil
}

// subscribe runs once per collector. The session reissues the channels after
// every reconnect.
func (c *Collector) subscribe() {
	if c.subscribed {
		return
	}
	c.subscribed = true
	ctx := c.loopCtx

	go func() {
		subs := []session.Subscription{
			{Channel: c.opts.TickerChannel, Payload: []string{c.opts.Pair}},
			{Channel: c.opts.OrderBookChannel, Payload: []string{c.opts.Pair}},
		}
		err := c.stream.Subscribe(ctx, subs...)
		if err == nil {
			return
		}
		c.logger.Warn("subscription incomplete", zap.Error(err))
		if errors.Is(err, session.ErrNotConnected) {
			// nothing was registered; retry on the next connect
			c.post(ctx, func() { c.subscribed = false })
		}
	}()
}

func (c *Collector) loop(ctx context.Context) error {
	c.loopCtx = ctx
	c.restore(ctx)

	resync := time.NewTicker(c.opts.ResyncInterval)
	defer resync.Stop()
	poll := time.NewTicker(c.opts.PollInterval)
	defer poll.Stop()
	health := time.NewTicker(c.opts.HealthInterval)
	defer health.Stop()

	c.requestSync("startup")
	c.requestPoll()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-c.inbox:
			c.dispatch(e)
		case fn := <-c.tasks:
			fn()
		case <-resync.C:
			c.requestSync("periodic")
		case <-poll.C:
			c.requestPoll()
		case <-health.C:
			c.logHealth()
		}
	}
}

// restore seeds the aggregator from storage before the first poll.
func (c *Collector) restore(ctx context.Context) {
	if c.deps.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()
	if err := c.agg.InitializeFromHistory(ctx, c.deps.History); err != nil {
		c.logger.Warn("candle history unavailable, starting empty", zap.Error(err))
	}
}

// post schedules fn on the loop.
func (c *Collector) post(ctx context.Context, fn func()) {
	select {
	case c.tasks <- fn:
	case <-ctx.Done():
	case <-c.done:
	}
}

// do runs fn on the loop and waits for it.
func (c *Collector) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	c.post(ctx, func() {
		fn()
		close(finished)
	})
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return errors.New("collector stopped")
	}
}

func (c *Collector) dispatch(e events.Event) {
	switch ev := e.(type) {
	case events.OrderBookDiff:
		if ev.Pair != "" && ev.Pair != c.opts.Pair {
			return
		}
		if c.syncing {
			c.bufferDiff(ev.OrderBookUpdate)
		} else {
			c.applyDiff(ev.OrderBookUpdate)
		}
	case events.Tick:
		if ev.Pair != "" && ev.Pair != c.opts.Pair {
			return
		}
	case events.Connection:
		switch ev.Status {
		case events.StatusConnected:
			c.subscribe()
		case events.StatusDisconnected:
			c.dropped = true
		case events.StatusReady:
			// diffs were lost while disconnected
			if c.dropped {
				c.dropped = false
				c.requestSync("reconnect")
			}
		}
	}
	c.downstream(e)
}

// Book returns the current order book view, read on the loop.
func (c *Collector) Book(ctx context.Context, depth int) (orderbook.Book, orderbook.Stats, error) {
	var (
		book  orderbook.Book
		stats orderbook.Stats
	)
	err := c.do(ctx, func() {
		book = c.book.Snapshot(depth)
		stats = c.book.Stats(depth)
	})
	return book, stats, err
}

func (c *Collector) Ticks() *memorystore.TickStore { return c.ticks }

func (c *Collector) Candles() *memorystore.CandleStore { return c.candles }
