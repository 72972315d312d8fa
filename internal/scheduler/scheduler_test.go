package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Varma0717/tradingbot/internal/feed"
	"github.com/Varma0717/tradingbot/internal/models"
	"github.com/Varma0717/tradingbot/internal/risk"
)

type memoryRepo struct {
	mu     sync.Mutex
	states map[string]*models.EngineState
	events []*models.EventRecord
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{states: make(map[string]*models.EngineState)}
}

func (m *memoryRepo) SaveState(state *models.EngineState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.Symbol.Symbol] = state
	return nil
}

func (m *memoryRepo) LoadState(symbol string) (*models.EngineState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[symbol], nil
}

func (m *memoryRepo) ListStates() ([]*models.EngineState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.EngineState
	for _, s := range m.states {
		out = append(out, s)
	}
	return out, nil
}

func (m *memoryRepo) DeleteState(symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, symbol)
	return nil
}

func (m *memoryRepo) AppendEvent(event *models.EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memoryRepo) Events(symbol string) ([]*models.EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.EventRecord
	for _, e := range m.events {
		if e.Symbol == symbol {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryRepo) Close() error { return nil }

// stubGateway serves trading rules; paper engines never submit to it.
type stubGateway struct{}

func (stubGateway) SubmitOrder(context.Context, models.OrderIntent, string) (int64, error) {
	return 0, nil
}
func (stubGateway) CancelOrder(context.Context, string, int64) error { return nil }
func (stubGateway) PollFill(context.Context, string, int64) (*models.FillEvent, error) {
	return nil, nil
}
func (stubGateway) GetPrice(context.Context, string) (float64, error) { return 65000, nil }
func (stubGateway) GetSymbolInfo(_ context.Context, symbol string) (*models.SymbolInfo, error) {
	return &models.SymbolInfo{Symbol: symbol, TickSize: "0.01", LotSize: "0.00001"}, nil
}

// scriptFeed plays back a fixed price sequence, then idles until the
// context ends.
type scriptFeed struct {
	symbol string
	prices []float64
}

func (f *scriptFeed) Run(ctx context.Context, out chan<- models.PriceTick) {
	base := time.Now()
	for i, p := range f.prices {
		tick := models.PriceTick{Symbol: f.symbol, Price: p, Timestamp: base.Add(time.Duration(i) * time.Second)}
		select {
		case out <- tick:
		case <-ctx.Done():
			return
		}
	}
	<-ctx.Done()
}

func scriptFactory(prices []float64) feed.Factory {
	return func(symbol string) feed.Feed {
		return &scriptFeed{symbol: symbol, prices: prices}
	}
}

func testConfig() *models.Config {
	return &models.Config{
		Mode:        models.ModePaper,
		MaxInFlight: 4,
	}
}

func newScheduler(repo *memoryRepo, feeds feed.Factory) *Scheduler {
	logger := zap.NewNop().Sugar()
	guard := risk.NewGuard(models.RiskConfig{}, logger)
	return New(testConfig(), stubGateway{}, repo, guard, feeds, logger)
}

func startRequest(symbol string) models.SymbolStart {
	return models.SymbolStart{
		Symbol: models.SymbolInfo{Symbol: symbol},
		Grid: models.GridConfig{
			LowerBound:         60000,
			UpperBound:         70000,
			LevelCount:         11,
			Spacing:            models.SpacingLinear,
			InvestmentPerLevel: 100,
		},
	}
}

func TestStartSymbolRejectsDuplicates(t *testing.T) {
	s := newScheduler(newMemoryRepo(), scriptFactory(nil))
	defer s.Close(context.Background())

	require.NoError(t, s.StartSymbol(context.Background(), startRequest("BTCUSDT")))

	err := s.StartSymbol(context.Background(), startRequest("BTCUSDT"))
	var cfgErr *models.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestStartSymbolRejectsBadGrid(t *testing.T) {
	s := newScheduler(newMemoryRepo(), scriptFactory(nil))
	defer s.Close(context.Background())

	req := startRequest("BTCUSDT")
	req.Grid.LevelCount = 1
	err := s.StartSymbol(context.Background(), req)

	var cfgErr *models.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	_, running := s.Snapshot("BTCUSDT")
	assert.False(t, running)
}

func TestStartSymbolRejectsBadDCA(t *testing.T) {
	s := newScheduler(newMemoryRepo(), scriptFactory(nil))
	defer s.Close(context.Background())

	req := startRequest("BTCUSDT")
	req.DCA = models.DCAConfig{Enabled: true, TriggerPercentage: 1.5, MaxLevels: 3}
	err := s.StartSymbol(context.Background(), req)

	var cfgErr *models.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	_, running := s.Snapshot("BTCUSDT")
	assert.False(t, running)
}

func TestSymbolsRunIndependently(t *testing.T) {
	s := newScheduler(newMemoryRepo(), scriptFactory([]float64{65000, 64000, 66000}))
	defer s.Close(context.Background())

	require.NoError(t, s.StartSymbol(context.Background(), startRequest("BTCUSDT")))
	require.NoError(t, s.StartSymbol(context.Background(), startRequest("ETHUSDT")))

	require.Eventually(t, func() bool {
		b, okB := s.Snapshot("BTCUSDT")
		e, okE := s.Snapshot("ETHUSDT")
		return okB && okE && b.GridTrades == 1 && e.GridTrades == 1
	}, 3*time.Second, 10*time.Millisecond)

	snaps := s.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "BTCUSDT", snaps[0].Symbol)
	assert.Equal(t, "ETHUSDT", snaps[1].Symbol)
}

func TestStopSymbolDrainsAndForgets(t *testing.T) {
	repo := newMemoryRepo()
	s := newScheduler(repo, scriptFactory([]float64{65000, 64000}))
	defer s.Close(context.Background())

	require.NoError(t, s.StartSymbol(context.Background(), startRequest("BTCUSDT")))
	require.Eventually(t, func() bool {
		snap, ok := s.Snapshot("BTCUSDT")
		return ok && snap.TotalTrades == 1
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, s.StopSymbol(context.Background(), "BTCUSDT"))

	// An explicit stop removes the state record; a later boot must not
	// resurrect the symbol.
	saved, err := repo.LoadState("BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, saved)

	_, running := s.Snapshot("BTCUSDT")
	assert.False(t, running)

	// Stopping again is an error.
	var cfgErr *models.ConfigError
	assert.ErrorAs(t, s.StopSymbol(context.Background(), "BTCUSDT"), &cfgErr)
}

func TestCloseKeepsStateAndResumeRestores(t *testing.T) {
	repo := newMemoryRepo()
	s := newScheduler(repo, scriptFactory([]float64{65000, 64000}))

	require.NoError(t, s.StartSymbol(context.Background(), startRequest("BTCUSDT")))
	require.Eventually(t, func() bool {
		snap, ok := s.Snapshot("BTCUSDT")
		return ok && snap.TotalTrades == 1
	}, 3*time.Second, 10*time.Millisecond)

	s.Close(context.Background())

	saved, err := repo.LoadState("BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.InDelta(t, 0.00156, saved.Position.Quantity, 1e-9)

	// Fresh scheduler over the same repository picks the symbol back up.
	s2 := newScheduler(repo, scriptFactory(nil))
	defer s2.Close(context.Background())
	require.NoError(t, s2.Resume(context.Background()))

	snap, ok := s2.Snapshot("BTCUSDT")
	require.True(t, ok)
	assert.InDelta(t, 0.00156, snap.Position.Quantity, 1e-9)
	assert.Equal(t, 1, snap.TotalTrades)

	// Resuming twice does not double-start.
	require.NoError(t, s2.Resume(context.Background()))
	assert.Len(t, s2.Snapshots(), 1)
}

func TestStartAfterCloseFails(t *testing.T) {
	s := newScheduler(newMemoryRepo(), scriptFactory(nil))
	s.Close(context.Background())

	err := s.StartSymbol(context.Background(), startRequest("BTCUSDT"))
	var cfgErr *models.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
