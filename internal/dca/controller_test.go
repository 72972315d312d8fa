package dca

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Varma0717/tradingbot/internal/models"
)

func controller(trigger float64, maxLevels int) *Controller {
	return New(models.DCAConfig{Enabled: true, TriggerPercentage: trigger, MaxLevels: maxLevels})
}

func TestSuccessiveTriggersRequireDeeperDrawdown(t *testing.T) {
	// Reference 1000, trigger 4%, 3 levels: buys arm at <=960, <=921
	// (4% below 960) and <=884, then no more.
	c := controller(0.04, 3)

	// Just above the first threshold: nothing.
	_, ok := c.Evaluate(961, 1000, 100)
	assert.False(t, ok)

	intent, ok := c.Evaluate(960, 1000, 100)
	require.True(t, ok)
	assert.Equal(t, models.Buy, intent.Side)
	assert.Equal(t, models.SourceDCA, intent.Source)
	assert.Equal(t, models.DCASourceLevel, intent.SourceLevel)
	assert.InDelta(t, 100.0/960.0, intent.Quantity, 1e-12)
	assert.Equal(t, 1, c.LevelsUsed())

	// Same price again: the second level needs a strictly deeper drop.
	_, ok = c.Evaluate(960, 1000, 100)
	assert.False(t, ok)
	_, ok = c.Evaluate(922, 1000, 100)
	assert.False(t, ok)

	_, ok = c.Evaluate(921, 1000, 100)
	require.True(t, ok)
	assert.Equal(t, 2, c.LevelsUsed())

	_, ok = c.Evaluate(885, 1000, 100)
	assert.False(t, ok)
	_, ok = c.Evaluate(884, 1000, 100)
	require.True(t, ok)
	assert.Equal(t, 3, c.LevelsUsed())

	// Max levels reached: even a crash arms nothing.
	_, ok = c.Evaluate(500, 1000, 100)
	assert.False(t, ok)
	assert.Equal(t, 3, c.LevelsUsed())
}

func TestResetStartsANewCycle(t *testing.T) {
	c := controller(0.04, 1)

	_, ok := c.Evaluate(960, 1000, 100)
	require.True(t, ok)
	_, ok = c.Evaluate(900, 1000, 100)
	assert.False(t, ok)

	c.Reset()
	assert.Zero(t, c.LevelsUsed())
	_, ok = c.Evaluate(900, 1000, 100)
	assert.True(t, ok)
}

func TestDisabledControllerNeverTriggers(t *testing.T) {
	c := New(models.DCAConfig{Enabled: false, TriggerPercentage: 0.04, MaxLevels: 3})
	_, ok := c.Evaluate(500, 1000, 100)
	assert.False(t, ok)
}

func TestDegenerateReferencePrice(t *testing.T) {
	c := controller(0.04, 3)
	_, ok := c.Evaluate(100, 0, 100)
	assert.False(t, ok)
	_, ok = c.Evaluate(0, 1000, 100)
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  models.DCAConfig
		ok   bool
	}{
		{"valid", models.DCAConfig{Enabled: true, TriggerPercentage: 0.04, MaxLevels: 3}, true},
		{"zero levels disables buys but is legal", models.DCAConfig{Enabled: true, TriggerPercentage: 0.04, MaxLevels: 0}, true},
		{"disabled ignores parameters", models.DCAConfig{Enabled: false, TriggerPercentage: -1, MaxLevels: -5}, true},
		{"negative trigger", models.DCAConfig{Enabled: true, TriggerPercentage: -0.04, MaxLevels: 3}, false},
		{"zero trigger", models.DCAConfig{Enabled: true, TriggerPercentage: 0, MaxLevels: 3}, false},
		{"trigger of one", models.DCAConfig{Enabled: true, TriggerPercentage: 1, MaxLevels: 3}, false},
		{"trigger above one", models.DCAConfig{Enabled: true, TriggerPercentage: 1.5, MaxLevels: 3}, false},
		{"negative levels", models.DCAConfig{Enabled: true, TriggerPercentage: 0.04, MaxLevels: -1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.cfg)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			var cfgErr *models.ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestRestoreResumesCycle(t *testing.T) {
	cfg := models.DCAConfig{Enabled: true, TriggerPercentage: 0.04, MaxLevels: 3}
	c := Restore(cfg, models.DCAState{LevelsUsed: 2})

	// Level 3 threshold is 1000 * 0.96^3 = 884.736.
	_, ok := c.Evaluate(885, 1000, 100)
	assert.False(t, ok)
	_, ok = c.Evaluate(884, 1000, 100)
	assert.True(t, ok)
	assert.Equal(t, 3, c.State().LevelsUsed)
}
