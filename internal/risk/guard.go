package risk

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Varma0717/tradingbot/internal/models"
)

// Guard is the cross-cutting policy every order intent passes before it
// reaches an order lifecycle. Checks run in order: emergency stop,
// per-symbol position cap, aggregate daily loss cap. A denial drops the
// intent; it is never retried.
//
// The loss accumulator is shared across all symbol engines and is only
// touched at trade-fill time, never on ticks.
type Guard struct {
	cfg       models.RiskConfig
	emergency atomic.Bool
	logger    *zap.SugaredLogger

	mu         sync.Mutex
	day        time.Time // UTC day the realized counter belongs to
	realized   float64   // realized P&L accumulated today
	unrealized map[string]float64 // latest unrealized P&L per symbol
}

// NewGuard creates a guard. Caps of zero disable the respective check,
// the same convention the wallet exposure limit uses.
func NewGuard(cfg models.RiskConfig, logger *zap.SugaredLogger) *Guard {
	return &Guard{
		cfg:        cfg,
		logger:     logger,
		day:        dayOf(time.Now()),
		unrealized: make(map[string]float64),
	}
}

// Authorize allows or denies an intent. positionValue is the value the
// symbol's position would have after the intent executes.
func (g *Guard) Authorize(intent models.OrderIntent, positionValue float64) error {
	if g.emergency.Load() {
		return g.deny(intent, "emergency stop is active")
	}

	if intent.Side == models.Buy && g.cfg.MaxPositionSize > 0 && g.cfg.TotalCapital > 0 {
		limit := g.cfg.MaxPositionSize * g.cfg.TotalCapital
		if positionValue > limit {
			return g.deny(intent, fmt.Sprintf("position value %.2f exceeds cap %.2f", positionValue, limit))
		}
	}

	if g.cfg.MaxDailyLoss > 0 && g.cfg.TotalCapital > 0 {
		loss := -g.totalPnL()
		limit := g.cfg.MaxDailyLoss * g.cfg.TotalCapital
		if loss >= limit {
			return g.deny(intent, fmt.Sprintf("daily loss %.2f reached cap %.2f", loss, limit))
		}
	}

	return nil
}

// RecordFill updates the loss accumulator with a fill's realized P&L and
// the symbol's unrealized P&L at fill time.
func (g *Guard) RecordFill(symbol string, realized, unrealized float64, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if d := dayOf(at); !d.Equal(g.day) {
		g.day = d
		g.realized = 0
	}
	g.realized += realized
	g.unrealized[symbol] = unrealized
}

// ForgetSymbol drops a stopped symbol's unrealized contribution.
func (g *Guard) ForgetSymbol(symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.unrealized, symbol)
}

// SetEmergencyStop flips the kill switch for all new intents.
func (g *Guard) SetEmergencyStop(on bool) {
	g.emergency.Store(on)
	if on {
		g.logger.Warn("emergency stop engaged, all new order intents will be denied")
	} else {
		g.logger.Info("emergency stop released")
	}
}

// EmergencyStopped reports the kill-switch state.
func (g *Guard) EmergencyStopped() bool { return g.emergency.Load() }

// totalPnL is today's realized plus the latest unrealized across symbols.
func (g *Guard) totalPnL() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	total := g.realized
	for _, u := range g.unrealized {
		total += u
	}
	return total
}

func (g *Guard) deny(intent models.OrderIntent, reason string) error {
	g.logger.Warnw("order intent denied",
		"symbol", intent.Symbol, "side", intent.Side, "source", intent.Source, "reason", reason)
	return &models.RiskDeniedError{Reason: reason}
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
