package lifecycle

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/Varma0717/tradingbot/internal/models"
)

// Throttled caps how many submissions may be in flight at once across
// every engine sharing the semaphore, so a burst of crossed levels on
// many symbols cannot flood the exchange. Only Submit competes for a
// slot; cancels, ticks and lookups pass straight through.
type Throttled struct {
	inner Lifecycle
	sem   *semaphore.Weighted
}

// NewThrottled wraps a lifecycle with a shared submission semaphore.
func NewThrottled(inner Lifecycle, sem *semaphore.Weighted) *Throttled {
	return &Throttled{inner: inner, sem: sem}
}

func (t *Throttled) Submit(ctx context.Context, intent models.OrderIntent) (*models.Order, error) {
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer t.sem.Release(1)
	return t.inner.Submit(ctx, intent)
}

func (t *Throttled) Cancel(ctx context.Context, orderID string) error {
	return t.inner.Cancel(ctx, orderID)
}

func (t *Throttled) Tick(ctx context.Context, tick models.PriceTick) []models.FillEvent {
	return t.inner.Tick(ctx, tick)
}

func (t *Throttled) OpenOrders() []*models.Order { return t.inner.OpenOrders() }

func (t *Throttled) Order(id string) (*models.Order, bool) { return t.inner.Order(id) }

func (t *Throttled) Restore(o *models.Order) { t.inner.Restore(o) }
