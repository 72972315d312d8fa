package ledger

import (
	"sync"

	"github.com/Varma0717/tradingbot/internal/models"
)

// epsilon absorbs float64 drift when comparing quantities.
const epsilon = 1e-9

// Ledger tracks the position for one symbol. Accounting is
// weighted-average: buys move the average entry price, sells realize
// P&L against it and leave it unchanged. This is a deliberate choice
// over FIFO/LIFO and materially affects reported P&L.
type Ledger struct {
	mu  sync.Mutex
	pos models.Position
}

// New creates a ledger with a flat position for the symbol.
func New(symbol string) *Ledger {
	return &Ledger{pos: models.Position{Symbol: symbol}}
}

// Restore creates a ledger from a persisted position.
func Restore(pos models.Position) *Ledger {
	return &Ledger{pos: pos}
}

// ApplyFill folds a trade into the position and returns the updated
// position. Quantity and average entry price are updated atomically under
// the ledger's lock. A sell larger than the held quantity returns an
// InsufficientPositionError and leaves the position untouched.
func (l *Ledger) ApplyFill(trade *models.Trade) (models.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch trade.Side {
	case models.Buy:
		newQty := l.pos.Quantity + trade.Quantity
		if newQty > 0 {
			l.pos.AverageEntryPrice = (l.pos.Quantity*l.pos.AverageEntryPrice + trade.Quantity*trade.Price) / newQty
		}
		l.pos.Quantity = newQty
		l.pos.RealizedPnL -= trade.Fee
		trade.RealizedPnL = 0

	case models.Sell:
		if trade.Quantity > l.pos.Quantity+epsilon {
			return l.pos, &models.InsufficientPositionError{Have: l.pos.Quantity, Want: trade.Quantity}
		}
		pnl := (trade.Price-l.pos.AverageEntryPrice)*trade.Quantity - trade.Fee
		trade.RealizedPnL = pnl
		l.pos.RealizedPnL += pnl
		l.pos.Quantity -= trade.Quantity
		if l.pos.Quantity <= epsilon {
			// Position closed flat: reset the cycle.
			l.pos.Quantity = 0
			l.pos.AverageEntryPrice = 0
		}
	}

	return l.pos, nil
}

// Position returns a copy of the current position.
func (l *Ledger) Position() models.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pos
}

// IsFlat reports whether no quantity is held.
func (l *Ledger) IsFlat() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pos.Quantity <= epsilon
}
