package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Varma0717/tradingbot/internal/engine"
	"github.com/Varma0717/tradingbot/internal/feed"
	"github.com/Varma0717/tradingbot/internal/gateway"
	"github.com/Varma0717/tradingbot/internal/lifecycle"
	"github.com/Varma0717/tradingbot/internal/models"
	"github.com/Varma0717/tradingbot/internal/persistence"
	"github.com/Varma0717/tradingbot/internal/risk"
)

// Scheduler owns the symbol engines: it starts them, feeds them ticks,
// stops them cleanly and resumes them after a restart. Engines never see
// each other; the only shared pieces are the risk guard, the state
// repository and the submission semaphore.
type Scheduler struct {
	cfg    *models.Config
	gw     gateway.Gateway
	repo   persistence.StateRepository
	guard  *risk.Guard
	feeds  feed.Factory
	logger *zap.SugaredLogger
	sem    *semaphore.Weighted

	mu      sync.Mutex
	engines map[string]*running
	closed  bool
}

type running struct {
	engine *engine.Engine
	cancel context.CancelFunc
}

// New creates a scheduler. MaxInFlight bounds concurrent order
// submissions across all engines; below 1 it is treated as 1.
func New(cfg *models.Config, gw gateway.Gateway, repo persistence.StateRepository,
	guard *risk.Guard, feeds feed.Factory, logger *zap.SugaredLogger) *Scheduler {
	k := cfg.MaxInFlight
	if k < 1 {
		k = 1
	}
	return &Scheduler{
		cfg:     cfg,
		gw:      gw,
		repo:    repo,
		guard:   guard,
		feeds:   feeds,
		logger:  logger,
		sem:     semaphore.NewWeighted(int64(k)),
		engines: make(map[string]*running),
	}
}

// StartSymbol launches an engine for one strategy. Missing trading rules
// are completed from the gateway before the grid is planned.
func (s *Scheduler) StartSymbol(ctx context.Context, req models.SymbolStart) error {
	symbol := req.Symbol.Symbol
	if symbol == "" {
		return models.NewConfigError("symbol is required")
	}
	if s.isRunning(symbol) {
		return models.NewConfigError("symbol %s is already running", symbol)
	}

	info := req.Symbol
	if info.TickSize == "" || info.LotSize == "" {
		fetched, err := s.gw.GetSymbolInfo(ctx, symbol)
		if err != nil {
			return err
		}
		info = *fetched
	}

	mode := req.Mode
	if mode == "" {
		mode = s.cfg.Mode
	}

	e, err := engine.New(engine.Options{
		Symbol:    info,
		Mode:      mode,
		Grid:      req.Grid,
		DCA:       req.DCA,
		Lifecycle: s.newLifecycle(mode),
		Guard:     s.guard,
		Repo:      s.repo,
		FeeRate:   s.cfg.PaperFeeRate,
		Logger:    s.logger,
	})
	if err != nil {
		return err
	}
	return s.launch(e)
}

// StopSymbol cancels the engine, waits for it to drain and removes its
// state record so the next boot does not resurrect a symbol the operator
// stopped on purpose. The event journal is kept.
func (s *Scheduler) StopSymbol(ctx context.Context, symbol string) error {
	s.mu.Lock()
	r, ok := s.engines[symbol]
	if !ok {
		s.mu.Unlock()
		return models.NewConfigError("symbol %s is not running", symbol)
	}
	delete(s.engines, symbol)
	s.mu.Unlock()

	r.cancel()
	select {
	case <-r.engine.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	r.engine.Drain(ctx)
	s.guard.ForgetSymbol(symbol)

	if err := s.repo.DeleteState(symbol); err != nil {
		s.logger.Warnw("state delete failed", "symbol", symbol, "err", err)
	}
	s.logger.Infow("symbol stopped", "symbol", symbol)
	return nil
}

// Resume restarts every persisted symbol, re-registering still-open
// orders instead of submitting them again.
func (s *Scheduler) Resume(ctx context.Context) error {
	states, err := s.repo.ListStates()
	if err != nil {
		return err
	}
	for _, st := range states {
		symbol := st.Symbol.Symbol
		if s.isRunning(symbol) {
			continue
		}
		e, err := engine.New(engine.Options{
			Symbol:    st.Symbol,
			Mode:      st.Mode,
			Grid:      st.Grid,
			DCA:       st.DCA,
			Lifecycle: s.newLifecycle(st.Mode),
			Guard:     s.guard,
			Repo:      s.repo,
			FeeRate:   s.cfg.PaperFeeRate,
			Logger:    s.logger,
			Restore:   st,
		})
		if err != nil {
			s.logger.Errorw("symbol resume failed", "symbol", symbol, "err", err)
			continue
		}
		if lerr := s.launch(e); lerr != nil {
			s.logger.Warnw("symbol resume skipped", "symbol", symbol, "err", lerr)
		} else {
			s.logger.Infow("symbol resumed", "symbol", symbol,
				"position", st.Position.Quantity, "grid_trades", st.Snapshot.GridTrades)
		}
	}
	return nil
}

// Snapshot returns one running symbol's latest rollup.
func (s *Scheduler) Snapshot(symbol string) (models.PerformanceSnapshot, bool) {
	s.mu.Lock()
	r, ok := s.engines[symbol]
	s.mu.Unlock()
	if !ok {
		return models.PerformanceSnapshot{}, false
	}
	return r.engine.Snapshot(), true
}

// Snapshots returns every running symbol's rollup, sorted by symbol.
func (s *Scheduler) Snapshots() []models.PerformanceSnapshot {
	s.mu.Lock()
	engines := make([]*running, 0, len(s.engines))
	for _, r := range s.engines {
		engines = append(engines, r)
	}
	s.mu.Unlock()

	snaps := make([]models.PerformanceSnapshot, 0, len(engines))
	for _, r := range engines {
		snaps = append(snaps, r.engine.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Symbol < snaps[j].Symbol })
	return snaps
}

// Close stops every engine but keeps their state records, so the next
// boot resumes where this one left off.
func (s *Scheduler) Close(ctx context.Context) {
	s.mu.Lock()
	s.closed = true
	stopped := make(map[string]*running, len(s.engines))
	for sym, r := range s.engines {
		stopped[sym] = r
	}
	s.engines = make(map[string]*running)
	s.mu.Unlock()

	for sym, r := range stopped {
		r.cancel()
		select {
		case <-r.engine.Done():
		case <-ctx.Done():
			s.logger.Warnw("engine shutdown timed out", "symbol", sym)
			continue
		}
		r.engine.Drain(ctx)
		s.logger.Infow("symbol shut down", "symbol", sym)
	}
}

func (s *Scheduler) isRunning(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.engines[symbol]
	return ok
}

// launch registers the engine and spins up its run loop and feed pump.
func (s *Scheduler) launch(e *engine.Engine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.NewConfigError("scheduler is shut down")
	}
	if _, ok := s.engines[e.Symbol()]; ok {
		return models.NewConfigError("symbol %s is already running", e.Symbol())
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.engines[e.Symbol()] = &running{engine: e, cancel: cancel}
	go e.Run(ctx)
	go s.pump(ctx, e)
	s.logger.Infow("symbol started", "symbol", e.Symbol())
	return nil
}

// pump connects the symbol's feed to its engine for as long as the
// engine lives.
func (s *Scheduler) pump(ctx context.Context, e *engine.Engine) {
	ticks := make(chan models.PriceTick, 64)
	go s.feeds(e.Symbol()).Run(ctx, ticks)
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticks:
			e.Enqueue(tick)
		}
	}
}

func (s *Scheduler) newLifecycle(mode models.TradingMode) lifecycle.Lifecycle {
	if mode == models.ModeLive {
		return lifecycle.NewThrottled(lifecycle.NewGatewayReporter(
			s.gw,
			s.cfg.RetryAttempts,
			time.Duration(s.cfg.RetryInitialDelayMs)*time.Millisecond,
			time.Duration(s.cfg.GatewayTimeoutSec)*time.Second,
			s.logger,
		), s.sem)
	}
	return lifecycle.NewThrottled(lifecycle.NewPaperSimulator(
		time.Duration(s.cfg.PaperLatencyMs)*time.Millisecond, s.logger,
	), s.sem)
}
