package grid

import (
	"math"

	"github.com/Varma0717/tradingbot/internal/models"
)

// Plan computes the ordered set of grid levels for a config. It is pure
// and deterministic: the same config always yields the same levels.
// Prices are strictly increasing from LowerBound to UpperBound.
func Plan(cfg models.GridConfig) ([]models.GridLevel, error) {
	if cfg.LevelCount < 2 {
		return nil, models.NewConfigError("level_count must be >= 2, got %d", cfg.LevelCount)
	}
	if cfg.LowerBound <= 0 {
		return nil, models.NewConfigError("lower_bound must be positive, got %v", cfg.LowerBound)
	}
	if cfg.UpperBound <= cfg.LowerBound {
		return nil, models.NewConfigError("upper_bound %v must exceed lower_bound %v", cfg.UpperBound, cfg.LowerBound)
	}
	if cfg.InvestmentPerLevel <= 0 {
		return nil, models.NewConfigError("investment_per_level must be positive, got %v", cfg.InvestmentPerLevel)
	}

	steps := float64(cfg.LevelCount - 1)
	levels := make([]models.GridLevel, cfg.LevelCount)
	for i := range levels {
		var price float64
		switch cfg.Spacing {
		case models.SpacingGeometric:
			price = cfg.LowerBound * math.Pow(cfg.UpperBound/cfg.LowerBound, float64(i)/steps)
		case models.SpacingLinear, "":
			price = cfg.LowerBound + float64(i)*cfg.Width()/steps
		default:
			return nil, models.NewConfigError("unknown spacing model %q", cfg.Spacing)
		}
		levels[i] = models.GridLevel{
			Index: i,
			Price: price,
			Role:  models.Buy,
			State: models.LevelEmpty,
		}
	}

	// Pin the endpoints to the exact bounds; Pow can drift in the last ulp.
	levels[0].Price = cfg.LowerBound
	levels[cfg.LevelCount-1].Price = cfg.UpperBound

	for i := 1; i < len(levels); i++ {
		if levels[i].Price <= levels[i-1].Price {
			return nil, models.NewConfigError("grid too dense: levels %d and %d collapse at price %v", i-1, i, levels[i].Price)
		}
	}
	return levels, nil
}

// AssignRoles sets every level below the reference price to Buy and every
// level at or above it to Sell. Roles are re-derived per fill by the
// engine afterwards; this only sets the starting layout.
func AssignRoles(levels []models.GridLevel, refPrice float64) {
	for i := range levels {
		if levels[i].Price < refPrice {
			levels[i].Role = models.Buy
		} else {
			levels[i].Role = models.Sell
		}
	}
}

// LevelQuantity converts a per-level quote investment into a base
// quantity at the given price, floored to the lot size.
func LevelQuantity(investment, price float64, lotSize string) float64 {
	if price <= 0 {
		return 0
	}
	return RoundToStep(investment/price, lotSize)
}
