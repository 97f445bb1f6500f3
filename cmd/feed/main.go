package main

import (
	"context"
	"os/signal"
	"syscall"

	"marketfeed/config"
	"marketfeed/internal/collector"
	"marketfeed/logger"

	"go.uber.org/zap"
)

func main() {
	// viper config
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, cleanup, err := collector.FromConfig(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to build collector", zap.Error(err))
	}
	defer cleanup()

	log.Info("collector starting",
		zap.String("pair", cfg.Market.Pair),
		zap.String("ws", cfg.Venue.WS.URL))

	// run collector
	if err := c.Run(ctx); err != nil {
		cleanup()
		log.Fatal("collector failed", zap.Error(err))
	}
	log.Info("collector stopped")
}
