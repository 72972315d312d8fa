package grid

import "github.com/Varma0717/tradingbot/internal/models"

// ShouldRebalance reports whether the price has left the grid's range by
// more than the configured tolerance. With the default tolerance of 0 any
// breach triggers.
func ShouldRebalance(price float64, cfg models.GridConfig) bool {
	return !cfg.Contains(price)
}

// Recenter returns a config with the same width, level count and spacing
// model, centered on the given price. Recentering an already-centered
// grid returns an identical config, which makes rebalancing idempotent.
func Recenter(cfg models.GridConfig, price float64) models.GridConfig {
	half := cfg.Width() / 2
	out := cfg
	out.LowerBound = price - half
	out.UpperBound = price + half
	return out
}
