package feed

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Varma0717/tradingbot/internal/gateway"
	"github.com/Varma0717/tradingbot/internal/models"
)

// PollFeed pulls the latest price from the gateway at a fixed interval.
// This is the default feed for paper mode, where a short delay between
// observations is acceptable.
type PollFeed struct {
	gw       gateway.Gateway
	symbol   string
	interval time.Duration
	logger   *zap.SugaredLogger
}

// NewPollFeed creates a polling feed.
func NewPollFeed(gw gateway.Gateway, symbol string, interval time.Duration, logger *zap.SugaredLogger) *PollFeed {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &PollFeed{gw: gw, symbol: symbol, interval: interval, logger: logger}
}

// Run polls until ctx is cancelled. A failed poll is logged and skipped;
// the engines see a gap, not a stale price.
func (f *PollFeed) Run(ctx context.Context, out chan<- models.PriceTick) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			price, err := f.gw.GetPrice(ctx, f.symbol)
			if err != nil {
				f.logger.Warnw("price poll failed", "symbol", f.symbol, "err", err)
				continue
			}
			tick := models.PriceTick{Symbol: f.symbol, Price: price, Timestamp: time.Now()}
			select {
			case out <- tick:
			case <-ctx.Done():
				return
			}
		}
	}
}
