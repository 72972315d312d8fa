package models

import (
	"time"
)

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// SpacingModel selects how grid level prices are distributed between the bounds.
type SpacingModel string

const (
	SpacingLinear    SpacingModel = "linear"
	SpacingGeometric SpacingModel = "geometric"
)

// TradingMode selects how order fills are produced.
type TradingMode string

const (
	ModePaper TradingMode = "paper"
	ModeLive  TradingMode = "live"
)

// LevelState tracks the runtime state of a single grid level.
type LevelState string

const (
	LevelEmpty  LevelState = "EMPTY"  // no order outstanding for this level
	LevelArmed  LevelState = "ARMED"  // an order has been submitted and not yet resolved
	LevelFilled LevelState = "FILLED" // the level's order filled; waiting for the paired level
)

// OrderState is the lifecycle state of an order. Transitions are one-way:
// Planned -> Submitted -> {Filled | Cancelled | Rejected}.
type OrderState string

const (
	OrderPlanned   OrderState = "PLANNED"
	OrderSubmitted OrderState = "SUBMITTED"
	OrderFilled    OrderState = "FILLED"
	OrderCancelled OrderState = "CANCELLED"
	OrderRejected  OrderState = "REJECTED"
)

// IsTerminal reports whether the state admits no further transitions.
func (s OrderState) IsTerminal() bool {
	return s == OrderFilled || s == OrderCancelled || s == OrderRejected
}

// OrderSource records which part of the strategy emitted an order.
type OrderSource string

const (
	SourceGrid OrderSource = "grid"
	SourceDCA  OrderSource = "dca"
)

// DCASourceLevel is the SourceLevel marker for orders that did not
// originate from a grid level.
const DCASourceLevel = -1

// SymbolInfo holds the trading rules for a symbol. Immutable once an
// engine is running for it.
type SymbolInfo struct {
	Symbol   string `json:"symbol"`    // e.g. "BTCUSDT"
	TickSize string `json:"tick_size"` // minimum price increment, e.g. "0.01"
	LotSize  string `json:"lot_size"`  // minimum quantity increment, e.g. "0.00001"
}

// GridConfig defines the price grid for one symbol.
type GridConfig struct {
	LowerBound         float64      `json:"lower_bound"`
	UpperBound         float64      `json:"upper_bound"`
	LevelCount         int          `json:"level_count"` // must be >= 2
	Spacing            SpacingModel `json:"spacing"`
	InvestmentPerLevel float64      `json:"investment_per_level"` // quote value per grid order
	RebalanceTolerance float64      `json:"rebalance_tolerance"`  // fractional breach allowed before recentering
}

// Width returns the price span of the grid.
func (c GridConfig) Width() float64 { return c.UpperBound - c.LowerBound }

// Contains reports whether the price is inside the grid range, allowing
// the configured tolerance on both sides.
func (c GridConfig) Contains(price float64) bool {
	lo := c.LowerBound * (1 - c.RebalanceTolerance)
	hi := c.UpperBound * (1 + c.RebalanceTolerance)
	return price >= lo && price <= hi
}

// GridLevel is one price rung of the grid. The order fields are kept so a
// restarted engine can reconstruct armed orders instead of submitting
// them twice.
type GridLevel struct {
	Index           int        `json:"index"` // 0-based from the bottom
	Price           float64    `json:"price"`
	Role            Side       `json:"role"`
	State           LevelState `json:"state"`
	OrderID         string     `json:"order_id,omitempty"`          // set while the level is armed
	ExchangeOrderID int64      `json:"exchange_order_id,omitempty"` // live mode only
	ArmedQuantity   float64    `json:"armed_quantity,omitempty"`
}

// Position is the long-only holding for one symbol. Quantity and
// AverageEntryPrice move together on every fill; the accounting method is
// weighted-average, not FIFO/LIFO.
type Position struct {
	Symbol            string  `json:"symbol"`
	Quantity          float64 `json:"quantity"`
	AverageEntryPrice float64 `json:"average_entry_price"`
	RealizedPnL       float64 `json:"realized_pnl"`
}

// UnrealizedPnL values the open quantity against the given mark price.
func (p Position) UnrealizedPnL(price float64) float64 {
	return (price - p.AverageEntryPrice) * p.Quantity
}

// DCAConfig holds the drawdown-buy parameters for one symbol.
type DCAConfig struct {
	Enabled           bool    `json:"enabled"`
	TriggerPercentage float64 `json:"trigger_percentage"` // e.g. 0.04 for 4%
	MaxLevels         int     `json:"max_levels"`
}

// DCAState is the mutable part of the DCA cycle.
type DCAState struct {
	LevelsUsed int `json:"levels_used"`
}

// OrderIntent is a request to place an order, produced by the engine and
// checked by the risk guard before it reaches the order lifecycle.
type OrderIntent struct {
	Symbol      string      `json:"symbol"`
	Side        Side        `json:"side"`
	Price       float64     `json:"price"`
	Quantity    float64     `json:"quantity"`
	SourceLevel int         `json:"source_level"` // grid index, or DCASourceLevel
	Source      OrderSource `json:"source"`
}

// Order 定义了订单信息
type Order struct {
	ID          string      `json:"id"` // client order id
	Symbol      string      `json:"symbol"`
	Side        Side        `json:"side"`
	Price       float64     `json:"price"`
	Quantity    float64     `json:"quantity"`
	State       OrderState  `json:"state"`
	Source      OrderSource `json:"source"`
	SourceLevel int         `json:"source_level"`
	ExchangeID  int64       `json:"exchange_id,omitempty"` // exchange-assigned id, live mode only
	CreatedAt   time.Time   `json:"created_at"`
	ResolvedAt  time.Time   `json:"resolved_at,omitempty"`
}

// Trade is the immutable record of a fill. RealizedPnL is non-zero only
// on sells.
type Trade struct {
	OrderID     string      `json:"order_id"`
	Symbol      string      `json:"symbol"`
	Side        Side        `json:"side"`
	Price       float64     `json:"price"`
	Quantity    float64     `json:"quantity"`
	Fee         float64     `json:"fee"`
	RealizedPnL float64     `json:"realized_pnl"`
	Source      OrderSource `json:"source"`
	SourceLevel int         `json:"source_level"`
	Timestamp   time.Time   `json:"timestamp"`
}

// FillEvent is reported by an order lifecycle when an order executes.
type FillEvent struct {
	OrderID   string    `json:"order_id"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceTick is one observation from the price feed.
type PriceTick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// PerformanceSnapshot is the per-symbol rollup recomputed after every trade.
type PerformanceSnapshot struct {
	Symbol        string    `json:"symbol"`
	TotalTrades   int       `json:"total_trades"`
	SellTrades    int       `json:"sell_trades"`
	WinningTrades int       `json:"winning_trades"`
	WinRate       float64   `json:"win_rate"` // percent
	TotalProfit   float64   `json:"total_profit"`
	ROIPercentage float64   `json:"roi_percentage"`
	MaxDrawdown   float64   `json:"max_drawdown"` // percent, peak-to-trough on equity
	GridTrades    int       `json:"grid_trades"`  // completed buy/sell round trips
	DCATrades     int       `json:"dca_trades"`
	LastPrice     float64   `json:"last_price"`
	Position      Position  `json:"position"`
	Halted        bool      `json:"halted"`
	HaltReason    string    `json:"halt_reason,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}
