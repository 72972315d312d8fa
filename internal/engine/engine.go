package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Varma0717/tradingbot/internal/dca"
	"github.com/Varma0717/tradingbot/internal/grid"
	"github.com/Varma0717/tradingbot/internal/ledger"
	"github.com/Varma0717/tradingbot/internal/lifecycle"
	"github.com/Varma0717/tradingbot/internal/models"
	"github.com/Varma0717/tradingbot/internal/persistence"
	"github.com/Varma0717/tradingbot/internal/risk"
)

const (
	tickBuffer    = 256
	persistBuffer = 64
)

// Options collects everything a symbol engine needs. Restore is optional;
// when set the engine resumes from the persisted state instead of
// planning a fresh grid.
type Options struct {
	Symbol    models.SymbolInfo
	Mode      models.TradingMode
	Grid      models.GridConfig
	DCA       models.DCAConfig
	Lifecycle lifecycle.Lifecycle
	Guard     *risk.Guard
	Repo      persistence.StateRepository
	FeeRate   float64 // applied to paper fills; live fees come from the exchange
	Logger    *zap.SugaredLogger
	Restore   *models.EngineState
}

// Engine runs the grid strategy for exactly one symbol. All state is
// owned by the Run goroutine; the only concurrent surfaces are the tick
// channel going in and the snapshot copy coming out. 每个交易对一个引擎。
type Engine struct {
	symbol models.SymbolInfo
	mode   models.TradingMode
	cfg    models.GridConfig
	levels []models.GridLevel

	ledger *ledger.Ledger
	dca    *dca.Controller
	lc     lifecycle.Lifecycle
	guard  *risk.Guard
	repo   persistence.StateRepository
	logger *zap.SugaredLogger

	ticks     chan models.PriceTick
	persistCh chan *models.EngineState
	done      chan struct{}

	snapMu sync.RWMutex
	snap   models.PerformanceSnapshot

	// Tick sequencing. lastTickAt enforces monotonic timestamps within
	// one run; lastPrice is the previous observation used for crossing
	// detection.
	lastTickAt    time.Time
	lastPrice     float64
	rolesAssigned bool

	halted     bool
	haltReason string

	feeRate float64

	// Performance accumulators.
	invested      float64 // quote capital allocated to the grid
	peakEquity    float64
	maxDrawdown   float64
	totalTrades   int
	sellTrades    int
	winningTrades int
	gridTrades    int
	dcaTrades     int
}

// New builds an engine, planning the grid or restoring a persisted one.
func New(opts Options) (*Engine, error) {
	if err := dca.Validate(opts.DCA); err != nil {
		return nil, err
	}

	e := &Engine{
		symbol:    opts.Symbol,
		mode:      opts.Mode,
		cfg:       opts.Grid,
		lc:        opts.Lifecycle,
		guard:     opts.Guard,
		repo:      opts.Repo,
		logger:    opts.Logger,
		feeRate:   opts.FeeRate,
		ticks:     make(chan models.PriceTick, tickBuffer),
		persistCh: make(chan *models.EngineState, persistBuffer),
		done:      make(chan struct{}),
	}

	if opts.Restore != nil {
		e.restore(opts.Restore, opts.DCA)
	} else {
		levels, err := grid.Plan(opts.Grid)
		if err != nil {
			return nil, err
		}
		e.levels = levels
		e.ledger = ledger.New(opts.Symbol.Symbol)
		e.dca = dca.New(opts.DCA)
	}

	e.invested = e.cfg.InvestmentPerLevel * float64(e.cfg.LevelCount)
	e.peakEquity = e.invested
	e.refreshSnapshot(e.lastPrice, time.Now())
	return e, nil
}

// restore rebuilds the engine from a persisted state, re-registering
// still-open orders with the lifecycle so armed levels do not submit
// twice.
func (e *Engine) restore(st *models.EngineState, dcaCfg models.DCAConfig) {
	e.cfg = st.Grid
	e.levels = make([]models.GridLevel, len(st.Levels))
	copy(e.levels, st.Levels)
	e.ledger = ledger.Restore(st.Position)
	e.dca = dca.Restore(dcaCfg, st.DCAState)
	e.rolesAssigned = true
	e.lastPrice = st.Snapshot.LastPrice
	e.halted = st.Snapshot.Halted
	e.haltReason = st.Snapshot.HaltReason
	e.totalTrades = st.Snapshot.TotalTrades
	e.winningTrades = st.Snapshot.WinningTrades
	e.gridTrades = st.Snapshot.GridTrades
	e.dcaTrades = st.Snapshot.DCATrades
	e.maxDrawdown = st.Snapshot.MaxDrawdown
	e.sellTrades = st.Snapshot.SellTrades

	for i := range e.levels {
		lvl := &e.levels[i]
		if lvl.State != models.LevelArmed || lvl.OrderID == "" {
			continue
		}
		e.lc.Restore(&models.Order{
			ID:          lvl.OrderID,
			Symbol:      e.symbol.Symbol,
			Side:        lvl.Role,
			Price:       lvl.Price,
			Quantity:    lvl.ArmedQuantity,
			State:       models.OrderSubmitted,
			Source:      models.SourceGrid,
			SourceLevel: lvl.Index,
			ExchangeID:  lvl.ExchangeOrderID,
			CreatedAt:   time.Now(),
		})
	}
	e.logger.Infow("engine state restored",
		"symbol", e.symbol.Symbol, "levels", len(e.levels),
		"position", st.Position.Quantity, "dca_levels_used", st.DCAState.LevelsUsed)
}

// Symbol returns the symbol this engine trades.
func (e *Engine) Symbol() string { return e.symbol.Symbol }

// Enqueue hands a tick to the engine without blocking the feed. A full
// buffer drops the tick; the next one carries a fresher price anyway.
func (e *Engine) Enqueue(tick models.PriceTick) {
	select {
	case e.ticks <- tick:
	default:
		e.logger.Warnw("tick dropped, engine backed up", "symbol", e.symbol.Symbol)
	}
}

// Run processes ticks until the context is cancelled. State writes are
// handed to a separate goroutine so a slow disk never stalls trading.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Infow("engine started", "symbol", e.symbol.Symbol, "mode", e.mode,
		"lower", e.cfg.LowerBound, "upper", e.cfg.UpperBound, "levels", e.cfg.LevelCount)
	e.appendEvent(models.EventStart, nil)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		e.persistenceLoop()
	}()

	for {
		select {
		case <-ctx.Done():
			close(e.persistCh)
			<-loopDone
			close(e.done)
			return
		case tick := <-e.ticks:
			e.processTick(ctx, tick)
		}
	}
}

// Done is closed once Run has fully exited, including the persistence
// drain.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Halted reports whether the engine stopped itself.
func (e *Engine) Halted() bool {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snap.Halted
}

// Snapshot returns a copy of the latest performance rollup.
func (e *Engine) Snapshot() models.PerformanceSnapshot {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snap
}

// Drain cancels outstanding orders and writes a final state record. Call
// only after Run has exited.
func (e *Engine) Drain(ctx context.Context) {
	for _, o := range e.lc.OpenOrders() {
		if o.Symbol != e.symbol.Symbol {
			continue
		}
		if err := e.lc.Cancel(ctx, o.ID); err != nil {
			e.logger.Warnw("cancel on shutdown failed", "order", o.ID, "err", err)
		}
	}
	for i := range e.levels {
		if e.levels[i].State == models.LevelArmed {
			e.clearLevel(&e.levels[i])
		}
	}
	e.appendEvent(models.EventStop, nil)
	if err := e.repo.SaveState(e.State()); err != nil {
		e.logger.Errorw("final state save failed", "symbol", e.symbol.Symbol, "err", err)
	}
}

// State assembles the persistable triple plus level states and snapshot.
func (e *Engine) State() *models.EngineState {
	levels := make([]models.GridLevel, len(e.levels))
	copy(levels, e.levels)
	return &models.EngineState{
		Symbol:         e.symbol,
		Mode:           e.mode,
		Version:        models.StateVersion,
		Grid:           e.cfg,
		Levels:         levels,
		Position:       e.ledger.Position(),
		DCA:            e.dcaConfig(),
		DCAState:       e.dca.State(),
		Snapshot:       e.Snapshot(),
		LastUpdateTime: time.Now().UTC(),
	}
}

// processTick is the whole strategy for one observation: rebalance,
// arm crossed levels, collect fills, evaluate DCA, snapshot, persist.
func (e *Engine) processTick(ctx context.Context, tick models.PriceTick) {
	if e.halted || tick.Symbol != e.symbol.Symbol {
		return
	}
	if !e.lastTickAt.IsZero() && tick.Timestamp.Before(e.lastTickAt) {
		e.halt(fmt.Sprintf("out-of-order tick: %s before %s",
			tick.Timestamp.Format(time.RFC3339Nano), e.lastTickAt.Format(time.RFC3339Nano)))
		return
	}

	prev := e.lastPrice
	if !e.rolesAssigned {
		// First observation fixes the buy/sell split; nothing can have
		// been crossed yet.
		grid.AssignRoles(e.levels, tick.Price)
		e.rolesAssigned = true
		prev = tick.Price
	}
	if prev == 0 {
		prev = tick.Price
	}

	if grid.ShouldRebalance(tick.Price, e.cfg) {
		e.rebalance(ctx, tick)
		if e.halted {
			return
		}
		prev = tick.Price
	}

	e.armCrossedLevels(ctx, tick, prev)

	for _, fill := range e.lc.Tick(ctx, tick) {
		e.applyFill(ctx, fill, tick)
		if e.halted {
			return
		}
	}

	e.evaluateDCA(ctx, tick)

	e.lastPrice = tick.Price
	e.lastTickAt = tick.Timestamp
	e.refreshSnapshot(tick.Price, tick.Timestamp)
	e.persist()
}

// armCrossedLevels submits orders for every empty level the price moved
// through since the previous tick. Buys arm on the way down, sells on
// the way up; sells never exceed the unreserved position.
func (e *Engine) armCrossedLevels(ctx context.Context, tick models.PriceTick, prev float64) {
	for i := range e.levels {
		lvl := &e.levels[i]
		if lvl.State != models.LevelEmpty {
			continue
		}
		// Strict on the prev side so a level sitting exactly at the
		// last price (the center level right after a rebalance) does
		// not arm until the price actually moves through it.
		switch lvl.Role {
		case models.Buy:
			if tick.Price <= lvl.Price && lvl.Price < prev {
				qty := grid.LevelQuantity(e.cfg.InvestmentPerLevel, lvl.Price, e.symbol.LotSize)
				e.armLevel(ctx, i, qty, tick.Price)
			}
		case models.Sell:
			if prev < lvl.Price && lvl.Price <= tick.Price {
				qty := grid.LevelQuantity(e.cfg.InvestmentPerLevel, lvl.Price, e.symbol.LotSize)
				if avail := e.unreservedQuantity(); qty > avail {
					qty = grid.RoundToStep(avail, e.symbol.LotSize)
				}
				e.armLevel(ctx, i, qty, tick.Price)
			}
		}
	}
}

// armLevel runs one intent through the risk guard and the lifecycle. On
// any failure the level simply stays Empty; the next crossing retries.
func (e *Engine) armLevel(ctx context.Context, idx int, qty, markPrice float64) {
	lvl := &e.levels[idx]
	price := grid.RoundToStep(lvl.Price, e.symbol.TickSize)
	qty = grid.RoundToStep(qty, e.symbol.LotSize)
	if qty <= 0 {
		return
	}

	intent := models.OrderIntent{
		Symbol:      e.symbol.Symbol,
		Side:        lvl.Role,
		Price:       price,
		Quantity:    qty,
		SourceLevel: idx,
		Source:      models.SourceGrid,
	}

	pos := e.ledger.Position()
	value := pos.Quantity * markPrice
	if intent.Side == models.Buy {
		value += qty * price
	}
	if err := e.guard.Authorize(intent, value); err != nil {
		e.logger.Debugw("grid intent denied", "symbol", e.symbol.Symbol, "level", idx, "err", err)
		return
	}

	order, err := e.lc.Submit(ctx, intent)
	if err != nil {
		e.logger.Warnw("grid order submit failed",
			"symbol", e.symbol.Symbol, "level", idx, "side", intent.Side, "price", price, "err", err)
		return
	}

	lvl.State = models.LevelArmed
	lvl.OrderID = order.ID
	lvl.ExchangeOrderID = order.ExchangeID
	lvl.ArmedQuantity = order.Quantity
	e.logger.Infow("level armed", "symbol", e.symbol.Symbol, "level", idx,
		"side", intent.Side, "price", price, "qty", order.Quantity)
}

// applyFill folds one execution into the ledger and flips the grid
// levels around it.
func (e *Engine) applyFill(ctx context.Context, fill models.FillEvent, tick models.PriceTick) {
	order, ok := e.lc.Order(fill.OrderID)
	if !ok {
		e.logger.Warnw("fill for unknown order", "order", fill.OrderID)
		return
	}

	var fee float64
	if e.mode == models.ModePaper {
		fee = fill.Price * fill.Quantity * e.feeRate
	}
	trade := models.Trade{
		OrderID:     order.ID,
		Symbol:      e.symbol.Symbol,
		Side:        order.Side,
		Price:       fill.Price,
		Quantity:    fill.Quantity,
		Fee:         fee,
		Source:      order.Source,
		SourceLevel: order.SourceLevel,
		Timestamp:   fill.Timestamp,
	}

	pos, err := e.ledger.ApplyFill(&trade)
	if err != nil {
		// A sell we cannot cover means the books and the exchange have
		// diverged; trading on is unsafe.
		e.halt(fmt.Sprintf("fill rejected by ledger: %v", err))
		return
	}

	e.totalTrades++
	realizedDelta := trade.RealizedPnL
	if trade.Side == models.Sell {
		e.sellTrades++
		if trade.RealizedPnL > 0 {
			e.winningTrades++
		}
	} else {
		realizedDelta = -trade.Fee
	}
	if trade.Source == models.SourceDCA {
		e.dcaTrades++
	}
	e.guard.RecordFill(e.symbol.Symbol, realizedDelta, pos.UnrealizedPnL(tick.Price), fill.Timestamp)

	if pos.Quantity == 0 && e.dca.LevelsUsed() > 0 {
		// Flat again: the averaging cycle is over. A buy still resting
		// from it must not fill into the next cycle's fresh level budget.
		e.cancelDCAOrders(ctx, false)
		e.dca.Reset()
	}

	if trade.Source == models.SourceGrid {
		e.flipLevels(ctx, order, trade, tick)
	}

	e.logger.Infow("trade executed",
		"symbol", e.symbol.Symbol, "side", trade.Side, "source", trade.Source,
		"price", trade.Price, "qty", trade.Quantity, "realized_pnl", trade.RealizedPnL)
	e.appendEvent(models.EventFill, trade)
}

// flipLevels applies the grid cycle to a filled order's level: a buy
// fill arms the sell one step up, a sell fill frees its level and the
// buy level underneath.
func (e *Engine) flipLevels(ctx context.Context, order *models.Order, trade models.Trade, tick models.PriceTick) {
	idx := order.SourceLevel
	if idx < 0 || idx >= len(e.levels) || e.levels[idx].OrderID != order.ID {
		// Stale fill from before a rebalance; the ledger already has it.
		e.logger.Debugw("fill does not map to a current level", "order", order.ID, "level", idx)
		return
	}
	lvl := &e.levels[idx]

	if order.Side == models.Buy {
		lvl.State = models.LevelFilled
		lvl.OrderID = ""
		lvl.ExchangeOrderID = 0
		lvl.ArmedQuantity = trade.Quantity
		if pair := idx + 1; pair < len(e.levels) && e.levels[pair].State == models.LevelEmpty {
			e.levels[pair].Role = models.Sell
			e.armLevel(ctx, pair, trade.Quantity, tick.Price)
		}
		return
	}

	// Sell fill: free the level. Only a sell paired with a filled buy
	// underneath closes a round trip; a sell of averaged-in inventory
	// through an otherwise empty level does not.
	e.clearLevel(lvl)
	if below := idx - 1; below >= 0 && e.levels[below].State == models.LevelFilled {
		e.clearLevel(&e.levels[below])
		e.levels[below].Role = models.Buy
		e.gridTrades++
	}
}

func (e *Engine) clearLevel(lvl *models.GridLevel) {
	lvl.State = models.LevelEmpty
	lvl.OrderID = ""
	lvl.ExchangeOrderID = 0
	lvl.ArmedQuantity = 0
}

// evaluateDCA checks the drawdown trigger once per tick, after fills, so
// the reference price reflects the latest average entry.
func (e *Engine) evaluateDCA(ctx context.Context, tick models.PriceTick) {
	pos := e.ledger.Position()
	reference := pos.AverageEntryPrice
	if pos.Quantity == 0 {
		reference = e.cfg.LowerBound
	}

	intent, ok := e.dca.Evaluate(tick.Price, reference, e.cfg.InvestmentPerLevel)
	if !ok {
		return
	}
	intent.Symbol = e.symbol.Symbol
	intent.Price = grid.RoundToStep(intent.Price, e.symbol.TickSize)
	intent.Quantity = grid.RoundToStep(intent.Quantity, e.symbol.LotSize)
	if intent.Quantity <= 0 {
		e.dca.Release()
		return
	}

	value := (pos.Quantity + intent.Quantity) * tick.Price
	if err := e.guard.Authorize(*intent, value); err != nil {
		e.dca.Release()
		e.logger.Warnw("dca intent denied", "symbol", e.symbol.Symbol, "err", err)
		return
	}
	if _, err := e.lc.Submit(ctx, *intent); err != nil {
		e.dca.Release()
		e.logger.Warnw("dca order submit failed", "symbol", e.symbol.Symbol, "err", err)
		return
	}

	e.logger.Infow("dca level triggered", "symbol", e.symbol.Symbol,
		"price", intent.Price, "qty", intent.Quantity, "levels_used", e.dca.LevelsUsed())
	e.appendEvent(models.EventDCATrigger, intent)
}

// rebalance recenters the grid around the current price. Outstanding
// grid orders are cancelled wholesale; their level indices do not exist
// in the replanned grid.
func (e *Engine) rebalance(ctx context.Context, tick models.PriceTick) {
	newCfg := grid.Recenter(e.cfg, tick.Price)
	newLevels, err := grid.Plan(newCfg)
	if err != nil {
		e.halt(fmt.Sprintf("rebalance produced an invalid grid: %v", err))
		return
	}

	for i := range e.levels {
		if e.levels[i].State == models.LevelArmed && e.levels[i].OrderID != "" {
			if cerr := e.lc.Cancel(ctx, e.levels[i].OrderID); cerr != nil {
				e.logger.Warnw("cancel during rebalance failed",
					"order", e.levels[i].OrderID, "err", cerr)
			}
		}
	}
	// A resting averaging buy sits outside the recentered range too. Its
	// level is handed back so the trigger can re-fire at the new price.
	e.cancelDCAOrders(ctx, true)

	grid.AssignRoles(newLevels, tick.Price)
	e.cfg = newCfg
	e.levels = newLevels
	e.logger.Infow("grid recentered", "symbol", e.symbol.Symbol, "price", tick.Price,
		"lower", newCfg.LowerBound, "upper", newCfg.UpperBound)
	e.appendEvent(models.EventRebalance, newCfg)
}

// halt stops this engine permanently without touching any other symbol.
func (e *Engine) halt(reason string) {
	e.halted = true
	e.haltReason = reason
	e.logger.Errorw("engine halted", "symbol", e.symbol.Symbol, "reason", reason)
	e.appendEvent(models.EventHalt, map[string]string{"reason": reason})
	e.refreshSnapshot(e.lastPrice, time.Now())
	e.persist()
}

// cancelDCAOrders cancels every resting averaging buy for this symbol.
// With release set, each cancelled order hands its consumed level back.
func (e *Engine) cancelDCAOrders(ctx context.Context, release bool) {
	for _, o := range e.lc.OpenOrders() {
		if o.Symbol != e.symbol.Symbol || o.Source != models.SourceDCA {
			continue
		}
		if err := e.lc.Cancel(ctx, o.ID); err != nil {
			e.logger.Warnw("dca cancel failed", "order", o.ID, "err", err)
			continue
		}
		if release {
			e.dca.Release()
		}
	}
}

// unreservedQuantity is the held quantity not already committed to an
// armed sell order.
func (e *Engine) unreservedQuantity() float64 {
	avail := e.ledger.Position().Quantity
	for i := range e.levels {
		if e.levels[i].State == models.LevelArmed && e.levels[i].Role == models.Sell {
			avail -= e.levels[i].ArmedQuantity
		}
	}
	if avail < 0 {
		return 0
	}
	return avail
}

// refreshSnapshot recomputes the rollup the control API and reporter
// read.
func (e *Engine) refreshSnapshot(price float64, at time.Time) {
	pos := e.ledger.Position()
	var unrealized float64
	if pos.Quantity > 0 && price > 0 {
		unrealized = pos.UnrealizedPnL(price)
	}
	total := pos.RealizedPnL + unrealized

	equity := e.invested + total
	if equity > e.peakEquity {
		e.peakEquity = equity
	}
	if e.peakEquity > 0 {
		if dd := (e.peakEquity - equity) / e.peakEquity * 100; dd > e.maxDrawdown {
			e.maxDrawdown = dd
		}
	}

	snap := models.PerformanceSnapshot{
		Symbol:        e.symbol.Symbol,
		TotalTrades:   e.totalTrades,
		SellTrades:    e.sellTrades,
		WinningTrades: e.winningTrades,
		TotalProfit:   total,
		MaxDrawdown:   e.maxDrawdown,
		GridTrades:    e.gridTrades,
		DCATrades:     e.dcaTrades,
		LastPrice:     price,
		Position:      pos,
		Halted:        e.halted,
		HaltReason:    e.haltReason,
		UpdatedAt:     at,
	}
	if e.sellTrades > 0 {
		snap.WinRate = float64(e.winningTrades) / float64(e.sellTrades) * 100
	}
	if e.invested > 0 {
		snap.ROIPercentage = total / e.invested * 100
	}

	e.snapMu.Lock()
	e.snap = snap
	e.snapMu.Unlock()
}

// persist queues an async state write. The channel is buffered; losing a
// write only costs replaying from a slightly older state after a crash.
func (e *Engine) persist() {
	select {
	case e.persistCh <- e.State():
	default:
		e.logger.Warnw("persist queue full, state write skipped", "symbol", e.symbol.Symbol)
	}
}

func (e *Engine) persistenceLoop() {
	for st := range e.persistCh {
		if err := e.repo.SaveState(st); err != nil {
			e.logger.Errorw("state save failed", "symbol", st.Symbol.Symbol, "err", err)
		}
	}
}

func (e *Engine) appendEvent(typ models.EventType, payload any) {
	var raw json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}
	err := e.repo.AppendEvent(&models.EventRecord{
		Symbol:    e.symbol.Symbol,
		Type:      typ,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		e.logger.Warnw("event append failed", "symbol", e.symbol.Symbol, "type", typ, "err", err)
	}
}

func (e *Engine) dcaConfig() models.DCAConfig {
	return e.dca.Config()
}
