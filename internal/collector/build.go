package collector

import (
	"context"
	"fmt"
	"time"

	"marketfeed/config"
	"marketfeed/internal/events"
	"marketfeed/internal/scheduler"
	"marketfeed/internal/session"
	"marketfeed/internal/sink/redis"
	"marketfeed/internal/stream"
	"marketfeed/pkg/storage/postgres"
	"marketfeed/pkg/venue"

	"go.uber.org/zap"
)

// FromConfig builds a collector and its optional storage and sink from cfg.
// The returned cleanup closes whatever was opened.
func FromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Collector, func(), error) {
	tiers, err := cfg.Market.Tiers()
	if err != nil {
		return nil, nil, err
	}

	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("cleanup failed", zap.Error(err))
			}
		}
	}

	rest := venue.NewRESTClient(cfg.Venue.REST.BaseURL, cfg.Venue.REST.Timeout, cfg.Venue.REST.RateLimit, cfg.Venue.REST.Burst)
	ws := cfg.Venue.WS
	deps := Deps{
		Venue: rest,
		NewStream: func(publish events.Publisher) Stream {
			return session.New(session.Config{
				URL:              ws.URL,
				ConnectTimeout:   ws.ConnectTimeout,
				AckTimeout:       ws.AckTimeout,
				PingInterval:     ws.PingInterval,
				PongTimeout:      ws.PongTimeout,
				Backoff:          session.Backoff{Base: ws.BackoffBase, Max: ws.BackoffMax},
				MaxAttempts:      ws.MaxAttempts,
				TickerChannel:    ws.TickerChannel,
				OrderBookChannel: ws.OrderBookChannel,
			}, session.WebsocketDialer{HandshakeTimeout: ws.ConnectTimeout, WriteTimeout: ws.AckTimeout}, publish, logger)
		},
		Counters: map[string]func() int64{},
	}

	var jobs []scheduler.Job
	if cfg.Postgres.Enabled {
		db, err := postgres.InitializeAndMigrate(cfg.Postgres, cfg.Log.Environment)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to DB: %w", err)
		}
		closers = append(closers, db.Close)
		deps.History = db
		deps.Writer = stream.NewCandleWriter(db, 1024, logger)

		if keep := cfg.Postgres.Retention; keep > 0 {
			jobs = append(jobs, scheduler.Job{
				Name: "candle-retention",
				Run: func(ctx context.Context) error {
					n, err := db.DeleteOldCandles(ctx, time.Now().Add(-keep))
					if err == nil && n > 0 {
						logger.Info("pruned candles", zap.Int64("deleted", n))
					}
					return err
				},
			})
		}
	}

	if cfg.Redis.Enabled {
		sink, err := redis.Dial(ctx, cfg.Redis, cfg.Market.Pair, logger)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, sink.Close)
		deps.Sinks = append(deps.Sinks, sink.Publish)
		deps.Workers = append(deps.Workers, sink.Run)
		deps.Counters["sinkDropped"] = sink.Dropped
	}

	c, err := New(Options{
		Pair:             cfg.Market.Pair,
		Depth:            cfg.Market.Depth,
		Tiers:            tiers,
		ResyncInterval:   cfg.Market.ResyncInterval,
		PollInterval:     cfg.Market.PollInterval,
		HealthInterval:   cfg.Market.HealthInterval,
		TickCapacity:     cfg.Market.TickCapacity,
		CandleCapacity:   cfg.Market.CandleCapacity,
		TickerChannel:    ws.TickerChannel,
		OrderBookChannel: ws.OrderBookChannel,
	}, deps, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	jobs = append(jobs, scheduler.Job{Name: "pair-check", Run: c.CheckPair})
	runner := &scheduler.MidnightRunner{Jobs: jobs, Logger: logger.Named("scheduler")}
	c.deps.Workers = append(c.deps.Workers, runner.Start)

	return c, cleanup, nil
}
