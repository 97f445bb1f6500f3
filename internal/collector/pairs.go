package collector

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
)

var ErrUnknownPair = errors.New("pair not listed by venue")

const pairCheckTimeout = 10 * time.Second

// CheckPair confirms the configured pair is still listed. It runs as a daily
// job; an unlisted pair is reported but does not stop the collector.
func (c *Collector) CheckPair(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pairCheckTimeout)
	defer cancel()

	pairs, err := c.deps.Venue.GetPairs(ctx)
	if err != nil {
		return fmt.Errorf("load pairs: %w", err)
	}
	c.logger.Info("loaded pairs", zap.Int("count", len(pairs)))

	if !slices.Contains(pairs, c.opts.Pair) {
		return fmt.Errorf("%s: %w", c.opts.Pair, ErrUnknownPair)
	}
	return nil
}
