package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Varma0717/tradingbot/internal/models"
)

func testGuard() *Guard {
	return NewGuard(models.RiskConfig{
		TotalCapital:    10000,
		MaxPositionSize: 0.2,  // 2000 per symbol
		MaxDailyLoss:    0.05, // 500 across all symbols
	}, zap.NewNop().Sugar())
}

func intent(side models.Side) models.OrderIntent {
	return models.OrderIntent{Symbol: "BTCUSDT", Side: side, Price: 64000, Quantity: 0.01, Source: models.SourceGrid}
}

func TestEmergencyStopShortCircuits(t *testing.T) {
	g := testGuard()
	require.NoError(t, g.Authorize(intent(models.Buy), 100))

	g.SetEmergencyStop(true)
	err := g.Authorize(intent(models.Buy), 100)
	var denied *models.RiskDeniedError
	require.ErrorAs(t, err, &denied)
	assert.True(t, g.EmergencyStopped())

	g.SetEmergencyStop(false)
	assert.NoError(t, g.Authorize(intent(models.Buy), 100))
}

func TestPositionSizeCap(t *testing.T) {
	g := testGuard()

	assert.NoError(t, g.Authorize(intent(models.Buy), 1999))
	assert.NoError(t, g.Authorize(intent(models.Buy), 2000))

	err := g.Authorize(intent(models.Buy), 2001)
	var denied *models.RiskDeniedError
	require.ErrorAs(t, err, &denied)

	// Sells reduce exposure and are not capped by position size.
	assert.NoError(t, g.Authorize(intent(models.Sell), 5000))
}

func TestDailyLossCapAggregatesSymbols(t *testing.T) {
	g := testGuard()
	now := time.Now()

	g.RecordFill("BTCUSDT", -300, 0, now)
	assert.NoError(t, g.Authorize(intent(models.Buy), 100))

	// Unrealized drawdown on a second symbol pushes the total past 500.
	g.RecordFill("ETHUSDT", -100, -150, now)
	err := g.Authorize(intent(models.Buy), 100)
	var denied *models.RiskDeniedError
	require.ErrorAs(t, err, &denied)

	// Dropping the symbol releases its unrealized contribution.
	g.ForgetSymbol("ETHUSDT")
	g.RecordFill("BTCUSDT", 0, 0, now)
	assert.NoError(t, g.Authorize(intent(models.Buy), 100))
}

func TestDailyLossResetsOnNewDay(t *testing.T) {
	g := testGuard()
	day1 := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)

	g.RecordFill("BTCUSDT", -600, 0, day1)
	var denied *models.RiskDeniedError
	require.ErrorAs(t, g.Authorize(intent(models.Buy), 100), &denied)

	// Next UTC day: the realized counter starts over.
	g.RecordFill("BTCUSDT", 0, 0, day1.Add(24*time.Hour))
	assert.NoError(t, g.Authorize(intent(models.Buy), 100))
}

func TestZeroCapsDisableChecks(t *testing.T) {
	g := NewGuard(models.RiskConfig{}, zap.NewNop().Sugar())
	g.RecordFill("BTCUSDT", -1e9, 0, time.Now())
	assert.NoError(t, g.Authorize(intent(models.Buy), 1e12))
}
