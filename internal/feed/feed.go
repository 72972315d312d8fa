package feed

import (
	"context"

	"github.com/Varma0717/tradingbot/internal/models"
)

// Feed delivers price ticks for one symbol until the context is
// cancelled. Implementations must emit ticks with non-decreasing
// timestamps; the engines fail fast on out-of-order delivery.
type Feed interface {
	Run(ctx context.Context, out chan<- models.PriceTick)
}

// Factory builds the feed for a symbol at start time, letting the
// scheduler pick push or pull per trading mode.
type Factory func(symbol string) Feed
