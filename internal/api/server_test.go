package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Varma0717/tradingbot/internal/feed"
	"github.com/Varma0717/tradingbot/internal/models"
	"github.com/Varma0717/tradingbot/internal/risk"
	"github.com/Varma0717/tradingbot/internal/scheduler"
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

func (m *memoryRepo) ListStates() ([]*models.EngineState, error) { return nil, nil }

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

func (m *memoryRepo) Events(string) ([]*models.EventRecord, error) { return nil, nil }
func (m *memoryRepo) Close() error                                 { return nil }

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

type idleFeed struct{}

func (idleFeed) Run(ctx context.Context, _ chan<- models.PriceTick) { <-ctx.Done() }

func newTestServer(t *testing.T) (*Server, *scheduler.Scheduler, *risk.Guard) {
	t.Helper()
	logger := zap.NewNop().Sugar()
	guard := risk.NewGuard(models.RiskConfig{}, logger)
	cfg := &models.Config{Mode: models.ModePaper, MaxInFlight: 4}
	feeds := feed.Factory(func(string) feed.Feed { return idleFeed{} })
	sched := scheduler.New(cfg, stubGateway{}, newMemoryRepo(), guard, feeds, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		sched.Close(ctx)
	})
	return NewServer(":0", sched, guard, logger), sched, guard
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

const startBody = `{
	"symbol": {"symbol": "BTCUSDT"},
	"grid": {
		"lower_bound": 60000,
		"upper_bound": 70000,
		"level_count": 11,
		"spacing": "linear",
		"investment_per_level": 100
	},
	"dca": {"enabled": false}
}`

func TestStartStopSymbolEndpoints(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/api/v1/symbols", startBody)
	assert.Equal(t, http.StatusCreated, w.Code)

	// Starting twice is a config error.
	w = doRequest(s, http.MethodPost, "/api/v1/symbols", startBody)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.CodeConfigError, resp.Code)

	w = doRequest(s, http.MethodDelete, "/api/v1/symbols/BTCUSDT", "")
	assert.Equal(t, http.StatusOK, w.Code)

	// Stopping an unknown symbol is 404.
	w = doRequest(s, http.MethodDelete, "/api/v1/symbols/BTCUSDT", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartSymbolRejectsBadConfig(t *testing.T) {
	s, _, _ := newTestServer(t)

	bad := strings.Replace(startBody, `"level_count": 11`, `"level_count": 1`, 1)
	w := doRequest(s, http.MethodPost, "/api/v1/symbols", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.CodeConfigError, resp.Code)
	assert.Contains(t, resp.Message, "level_count")
}

func TestSnapshotEndpoints(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/api/v1/symbols/BTCUSDT/snapshot", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.Equal(t, http.StatusCreated, doRequest(s, http.MethodPost, "/api/v1/symbols", startBody).Code)

	w = doRequest(s, http.MethodGet, "/api/v1/symbols/BTCUSDT/snapshot", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap models.PerformanceSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "BTCUSDT", snap.Symbol)

	w = doRequest(s, http.MethodGet, "/api/v1/snapshots", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snaps []models.PerformanceSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snaps))
	assert.Len(t, snaps, 1)
}

func TestEmergencyStopEndpoints(t *testing.T) {
	s, _, guard := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/api/v1/emergency-stop", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, guard.EmergencyStopped())

	w = doRequest(s, http.MethodDelete, "/api/v1/emergency-stop", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, guard.EmergencyStopped())
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := doRequest(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
