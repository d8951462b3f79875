package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
risk_tiers:
  "10000":
    per_trade_cap: 45
    daily_loss_limit: 225
    max_total_loss: 450
    fixed_lot: 0.1
  "5000":
    per_trade_cap: 22
    daily_loss_limit: 112
    max_total_loss: 225
    fixed_lot: 0.05
symbols:
  EURUSD:
    pip_size: 0.0001
    pip_value_per_std_lot: 10
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "bot.db", cfg.Storage.Path)
	assert.Equal(t, 1.0, cfg.RRRatio)
	assert.Equal(t, 3, cfg.ReEntry.MaxChainLevels)
	assert.Equal(t, 0.5, cfg.ReEntry.SLReductionPerLevel)
	assert.Equal(t, 30, cfg.ReEntry.RecoveryWindowMinutes)
	assert.Equal(t, "5000", cfg.DefaultTier, "default tier falls to the ladder floor")
}

func TestLoadRejectsBadReduction(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
re_entry:
  sl_reduction_per_level: 0.9
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sl_reduction_per_level")
}

func TestLoadRejectsNonNumericTierKey(t *testing.T) {
	_, err := Load(writeConfig(t, `
risk_tiers:
  small:
    per_trade_cap: 45
symbols:
  EURUSD:
    pip_size: 0.0001
    pip_value_per_std_lot: 10
`))
	assert.Error(t, err)
}

func TestLoadRejectsBadSymbol(t *testing.T) {
	_, err := Load(writeConfig(t, `
risk_tiers:
  "10000":
    per_trade_cap: 45
symbols:
  EURUSD:
    pip_size: 0
    pip_value_per_std_lot: 10
`))
	assert.Error(t, err)
}

func TestTierForDescendingScan(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	name, tier := cfg.TierFor(12000)
	assert.Equal(t, "10000", name)
	assert.Equal(t, 45.0, tier.PerTradeCap)

	name, _ = cfg.TierFor(6000)
	assert.Equal(t, "5000", name)

	// Below every threshold: the default tier applies.
	name, _ = cfg.TierFor(1000)
	assert.Equal(t, "5000", name)
}

func TestDurationHelpers(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "30m0s", cfg.ReEntry.RecoveryWindow().String())
	assert.Equal(t, "1m0s", cfg.ReEntry.SLHuntCooldown().String())
	assert.Equal(t, "30s", cfg.ReEntry.MonitorInterval().String())
}
