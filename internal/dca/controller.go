package dca

import (
	"math"

	"github.com/Varma0717/tradingbot/internal/models"
)

// Controller decides when a drawdown justifies an extra buy and how many
// of those buys remain in the current cycle.
//
// Trigger thresholds compound: with trigger t and n levels already used,
// the next buy requires currentPrice <= reference * (1-t)^(n+1), so every
// successive buy needs a drop roughly t percent below the previous
// trigger price. This stops a single sharp dip from deploying the whole
// DCA budget at once.
type Controller struct {
	cfg   models.DCAConfig
	state models.DCAState
}

// Validate rejects parameter combinations the controller cannot trade
// with. A disabled config is always valid; its parameters are ignored.
func Validate(cfg models.DCAConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.TriggerPercentage <= 0 || cfg.TriggerPercentage >= 1 {
		return models.NewConfigError("dca trigger_percentage must be in (0, 1), got %v", cfg.TriggerPercentage)
	}
	if cfg.MaxLevels < 0 {
		return models.NewConfigError("dca max_levels must not be negative, got %d", cfg.MaxLevels)
	}
	return nil
}

// New creates a controller with a fresh cycle.
func New(cfg models.DCAConfig) *Controller {
	return &Controller{cfg: cfg}
}

// Restore creates a controller resuming a persisted cycle.
func Restore(cfg models.DCAConfig, state models.DCAState) *Controller {
	return &Controller{cfg: cfg, state: state}
}

// Evaluate checks the drawdown of currentPrice against referencePrice and
// returns whether a DCA buy triggers. A trigger consumes one level; the
// caller is expected to submit the returned intent.
func (c *Controller) Evaluate(currentPrice, referencePrice, investment float64) (*models.OrderIntent, bool) {
	if !c.cfg.Enabled || referencePrice <= 0 || currentPrice <= 0 {
		return nil, false
	}
	if c.state.LevelsUsed >= c.cfg.MaxLevels {
		return nil, false
	}

	threshold := referencePrice * math.Pow(1-c.cfg.TriggerPercentage, float64(c.state.LevelsUsed+1))
	if currentPrice > threshold {
		return nil, false
	}

	c.state.LevelsUsed++
	return &models.OrderIntent{
		Side:        models.Buy,
		Price:       currentPrice,
		Quantity:    investment / currentPrice,
		SourceLevel: models.DCASourceLevel,
		Source:      models.SourceDCA,
	}, true
}

// Release gives back one consumed level. Called when a triggered buy is
// denied or fails to submit, so the trigger fires again on the next tick.
func (c *Controller) Release() {
	if c.state.LevelsUsed > 0 {
		c.state.LevelsUsed--
	}
}

// Reset clears the used levels. Called when the position closes flat.
func (c *Controller) Reset() {
	c.state.LevelsUsed = 0
}

// State returns the mutable cycle state for persistence.
func (c *Controller) State() models.DCAState { return c.state }

// Config returns the controller's configuration.
func (c *Controller) Config() models.DCAConfig { return c.cfg }

// LevelsUsed reports how many DCA buys the current cycle has armed.
func (c *Controller) LevelsUsed() int { return c.state.LevelsUsed }
