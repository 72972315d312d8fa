package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Varma0717/tradingbot/internal/models"
)

// Lifecycle abstracts how orders are executed. The symbol engine depends
// only on this interface and must not know whether fills are simulated
// or reported by the exchange; that is what makes paper and live trading
// interchangeable.
type Lifecycle interface {
	// Submit places an order for the intent. The returned order is in
	// the Submitted state. A *models.RejectedError is terminal for the
	// intent; a *models.GatewayError means retries were exhausted.
	Submit(ctx context.Context, intent models.OrderIntent) (*models.Order, error)

	// Cancel resolves an open order to Cancelled.
	Cancel(ctx context.Context, orderID string) error

	// Tick advances the lifecycle with a new price observation and
	// returns any fills produced since the last call.
	Tick(ctx context.Context, tick models.PriceTick) []models.FillEvent

	// OpenOrders lists orders that have not reached a terminal state.
	OpenOrders() []*models.Order

	// Order looks up an order by client id.
	Order(id string) (*models.Order, bool)

	// Restore re-registers a persisted open order after a restart so the
	// level it belongs to does not submit a second time.
	Restore(o *models.Order)
}

// validTransitions encodes the one-way state machine:
// Planned -> Submitted -> {Filled | Cancelled | Rejected}. A rejection at
// submit time resolves a Planned order directly.
var validTransitions = map[models.OrderState][]models.OrderState{
	models.OrderPlanned:   {models.OrderSubmitted, models.OrderRejected, models.OrderCancelled},
	models.OrderSubmitted: {models.OrderFilled, models.OrderRejected, models.OrderCancelled},
}

// transition moves an order to the next state, refusing anything the
// state machine does not allow. Terminal states are immutable.
func transition(o *models.Order, to models.OrderState) error {
	for _, allowed := range validTransitions[o.State] {
		if allowed == to {
			o.State = to
			if to.IsTerminal() {
				o.ResolvedAt = time.Now()
			}
			return nil
		}
	}
	return fmt.Errorf("illegal order transition %s -> %s for order %s", o.State, to, o.ID)
}

// newOrder builds a Planned order for an intent with a fresh client id.
func newOrder(intent models.OrderIntent) *models.Order {
	return &models.Order{
		ID:          uuid.NewString(),
		Symbol:      intent.Symbol,
		Side:        intent.Side,
		Price:       intent.Price,
		Quantity:    intent.Quantity,
		State:       models.OrderPlanned,
		Source:      intent.Source,
		SourceLevel: intent.SourceLevel,
		CreatedAt:   time.Now(),
	}
}

// book is the shared, locked order index both lifecycle implementations
// embed.
type book struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func newBook() book {
	return book{orders: make(map[string]*models.Order)}
}

func (b *book) add(o *models.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders[o.ID] = o
}

// Restore inserts an already-submitted order into the book.
func (b *book) Restore(o *models.Order) {
	cp := *o
	b.add(&cp)
}

// Order returns a copy of the order so callers cannot race the book.
func (b *book) Order(id string) (*models.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok {
		return nil, false
	}
	cp := *o
	return &cp, true
}

// OpenOrders returns copies of all non-terminal orders, oldest first.
func (b *book) OpenOrders() []*models.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	var open []*models.Order
	for _, o := range b.orders {
		if !o.State.IsTerminal() {
			cp := *o
			open = append(open, &cp)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].CreatedAt.Before(open[j].CreatedAt) })
	return open
}
