package lifecycle

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Varma0717/tradingbot/internal/models"
)

// PaperSimulator fills orders locally without ever touching the
// exchange gateway. A submitted order fills as soon as a tick price
// crosses its limit price, optionally delayed by a synthetic latency.
type PaperSimulator struct {
	book
	latency time.Duration
	logger  *zap.SugaredLogger
}

// NewPaperSimulator creates a simulator. Latency of 0 fills on the first
// crossing tick.
func NewPaperSimulator(latency time.Duration, logger *zap.SugaredLogger) *PaperSimulator {
	return &PaperSimulator{
		book:    newBook(),
		latency: latency,
		logger:  logger,
	}
}

// Submit accepts every order immediately; paper mode has no balance or
// filter checks to fail.
func (p *PaperSimulator) Submit(_ context.Context, intent models.OrderIntent) (*models.Order, error) {
	o := newOrder(intent)
	if err := transition(o, models.OrderSubmitted); err != nil {
		return nil, err
	}
	p.add(o)
	cp := *o
	return &cp, nil
}

// Cancel resolves an open order. Cancelling an unknown or already
// resolved order is a no-op, mirroring the live gateway behaviour.
func (p *PaperSimulator) Cancel(_ context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok || o.State.IsTerminal() {
		return nil
	}
	return transition(o, models.OrderCancelled)
}

// Tick fills every open order for the tick's symbol whose price the tick
// has crossed: buys at or below the tick price, sells at or above. Limit
// orders execute at their own price.
func (p *PaperSimulator) Tick(_ context.Context, tick models.PriceTick) []models.FillEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	var open []*models.Order
	for _, o := range p.orders {
		if o.State == models.OrderSubmitted && o.Symbol == tick.Symbol {
			open = append(open, o)
		}
	}
	// Oldest order first so a buy and its paired sell resolve in the
	// order they were armed.
	sort.Slice(open, func(i, j int) bool { return open[i].CreatedAt.Before(open[j].CreatedAt) })

	var fills []models.FillEvent
	for _, o := range open {
		if p.latency > 0 && tick.Timestamp.Sub(o.CreatedAt) < p.latency {
			continue
		}
		crossed := (o.Side == models.Buy && tick.Price <= o.Price) ||
			(o.Side == models.Sell && tick.Price >= o.Price)
		if !crossed {
			continue
		}
		if err := transition(o, models.OrderFilled); err != nil {
			p.logger.Errorw("paper fill transition failed", "order", o.ID, "err", err)
			continue
		}
		fills = append(fills, models.FillEvent{
			OrderID:   o.ID,
			Price:     o.Price,
			Quantity:  o.Quantity,
			Timestamp: tick.Timestamp,
		})
	}
	return fills
}
