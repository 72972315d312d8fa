package lifecycle

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Varma0717/tradingbot/internal/gateway"
	"github.com/Varma0717/tradingbot/internal/models"
)

// GatewayReporter drives orders through a real exchange gateway. Submits
// are retried with bounded exponential backoff on transient failures;
// fills are discovered by polling open orders on every tick.
type GatewayReporter struct {
	book
	gw           gateway.Gateway
	attempts     int
	initialDelay time.Duration
	callTimeout  time.Duration
	logger       *zap.SugaredLogger
}

// NewGatewayReporter wires a lifecycle to a gateway. attempts bounds the
// submit retries, initialDelay doubles after every failed attempt.
func NewGatewayReporter(gw gateway.Gateway, attempts int, initialDelay, callTimeout time.Duration, logger *zap.SugaredLogger) *GatewayReporter {
	if attempts < 1 {
		attempts = 1
	}
	return &GatewayReporter{
		book:         newBook(),
		gw:           gw,
		attempts:     attempts,
		initialDelay: initialDelay,
		callTimeout:  callTimeout,
		logger:       logger,
	}
}

// Submit places the order on the exchange. GatewayErrors are retried up
// to the configured attempt count; a RejectedError resolves the order
// immediately and is returned to the caller.
func (r *GatewayReporter) Submit(ctx context.Context, intent models.OrderIntent) (*models.Order, error) {
	o := newOrder(intent)

	var exchangeID int64
	var err error
	delay := r.initialDelay
	for attempt := 1; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		exchangeID, err = r.gw.SubmitOrder(callCtx, intent, o.ID)
		cancel()
		if err == nil {
			break
		}

		var gwErr *models.GatewayError
		if !errors.As(err, &gwErr) {
			// Exchange-side rejection: terminal for this intent.
			_ = transition(o, models.OrderRejected)
			r.add(o)
			return nil, err
		}
		if attempt >= r.attempts {
			r.logger.Errorw("order submit retries exhausted",
				"symbol", intent.Symbol, "side", intent.Side, "price", intent.Price,
				"attempts", attempt, "err", err)
			return nil, err
		}

		r.logger.Warnw("order submit failed, retrying",
			"symbol", intent.Symbol, "attempt", attempt, "delay", delay, "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	o.ExchangeID = exchangeID
	if err := transition(o, models.OrderSubmitted); err != nil {
		return nil, err
	}
	r.add(o)
	cp := *o
	return &cp, nil
}

// Cancel cancels on the exchange first, then resolves the local order.
func (r *GatewayReporter) Cancel(ctx context.Context, orderID string) error {
	r.mu.Lock()
	o, ok := r.orders[orderID]
	if !ok || o.State.IsTerminal() {
		r.mu.Unlock()
		return nil
	}
	symbol, exchangeID := o.Symbol, o.ExchangeID
	r.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	if err := r.gw.CancelOrder(callCtx, symbol, exchangeID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if o.State.IsTerminal() {
		return nil
	}
	return transition(o, models.OrderCancelled)
}

// Tick polls the gateway for every open order of the tick's symbol. A
// poll failure on one order is logged and skipped; the next tick retries
// it.
func (r *GatewayReporter) Tick(ctx context.Context, tick models.PriceTick) []models.FillEvent {
	var fills []models.FillEvent
	for _, open := range r.OpenOrders() {
		if open.Symbol != tick.Symbol {
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		fill, err := r.gw.PollFill(callCtx, open.Symbol, open.ExchangeID)
		cancel()

		r.mu.Lock()
		o := r.orders[open.ID]
		switch {
		case err != nil:
			var rejected *models.RejectedError
			if errors.As(err, &rejected) {
				_ = transition(o, models.OrderRejected)
				r.logger.Warnw("order resolved as rejected", "order", o.ID, "reason", rejected.Reason)
			} else {
				r.logger.Warnw("fill poll failed", "order", o.ID, "err", err)
			}
		case fill != nil:
			if terr := transition(o, models.OrderFilled); terr == nil {
				fill.OrderID = o.ID
				fills = append(fills, *fill)
			}
		}
		r.mu.Unlock()
	}
	return fills
}
