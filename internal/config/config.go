package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// RiskTier is one rung of the balance-keyed risk ladder.
type RiskTier struct {
	PerTradeCap    float64 `yaml:"per_trade_cap"`
	DailyLossLimit float64 `yaml:"daily_loss_limit"`
	MaxTotalLoss   float64 `yaml:"max_total_loss"`
	FixedLot       float64 `yaml:"fixed_lot"`
	LotOverride    float64 `yaml:"lot_override"` // manual operator override, 0 = unset
}

// SymbolConfig carries per-symbol pip arithmetic parameters.
type SymbolConfig struct {
	PipSize           float64 `yaml:"pip_size"`
	PipValuePerStdLot float64 `yaml:"pip_value_per_std_lot"`
	MinSLDistance     float64 `yaml:"min_sl_distance"`
	MaxLots           float64 `yaml:"max_lots"`
	IsGold            bool    `yaml:"is_gold"`
}

// ReEntryConfig groups the chain/monitor parameters.
type ReEntryConfig struct {
	MaxChainLevels          int     `yaml:"max_chain_levels"`
	SLReductionPerLevel     float64 `yaml:"sl_reduction_per_level"`
	RecoveryWindowMinutes   int     `yaml:"recovery_window_minutes"`
	SLHuntOffsetPips        float64 `yaml:"sl_hunt_offset_pips"`
	SLHuntCooldownSeconds   int     `yaml:"sl_hunt_cooldown_seconds"`
	TPContinuationGapPips   float64 `yaml:"tp_continuation_gap_pips"`
	MonitorIntervalSeconds  int     `yaml:"monitor_interval_seconds"`
	SLHuntEnabled           bool    `yaml:"sl_hunt_enabled"`
	TPContinuationEnabled   bool    `yaml:"tp_continuation_enabled"`
	ReversalExitEnabled     bool    `yaml:"reversal_exit_enabled"`
	ExitContinuationEnabled bool    `yaml:"exit_continuation_enabled"`
}

// RecoveryWindow returns the rolling window inside which SL/TP events
// stay eligible for chain continuation.
func (r ReEntryConfig) RecoveryWindow() time.Duration {
	return time.Duration(r.RecoveryWindowMinutes) * time.Minute
}

// SLHuntCooldown returns the minimum time between an SL hit and a
// recovery re-entry.
func (r ReEntryConfig) SLHuntCooldown() time.Duration {
	return time.Duration(r.SLHuntCooldownSeconds) * time.Second
}

// MonitorInterval returns the price monitor tick interval.
func (r ReEntryConfig) MonitorInterval() time.Duration {
	return time.Duration(r.MonitorIntervalSeconds) * time.Second
}

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Broker struct {
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
		Login        int64  `yaml:"login"`
		Password     string `yaml:"password"`
		Server       string `yaml:"server"`
		Simulate     bool   `yaml:"simulate"`
	} `yaml:"broker"`
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	RiskTiers   map[string]RiskTier     `yaml:"risk_tiers"`
	DefaultTier string                  `yaml:"default_tier"`
	Symbols     map[string]SymbolConfig `yaml:"symbols"`
	ReEntry     ReEntryConfig           `yaml:"re_entry"`
	RRRatio     float64                 `yaml:"rr_ratio"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fills defaults and checks documented ranges once at load time.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "bot.db"
	}
	if c.RRRatio == 0 {
		c.RRRatio = 1.0
	}

	if len(c.RiskTiers) == 0 {
		return fmt.Errorf("risk_tiers must not be empty")
	}
	for key := range c.RiskTiers {
		if _, err := strconv.Atoi(key); err != nil {
			return fmt.Errorf("risk tier key %q is not a balance threshold", key)
		}
	}
	if c.DefaultTier == "" {
		c.DefaultTier = c.tierLadder()[len(c.tierLadder())-1]
	}
	if _, ok := c.RiskTiers[c.DefaultTier]; !ok {
		return fmt.Errorf("default_tier %q not present in risk_tiers", c.DefaultTier)
	}

	for symbol, sc := range c.Symbols {
		if sc.PipSize <= 0 {
			return fmt.Errorf("symbol %s: pip_size must be positive", symbol)
		}
		if sc.PipValuePerStdLot <= 0 {
			return fmt.Errorf("symbol %s: pip_value_per_std_lot must be positive", symbol)
		}
	}

	r := &c.ReEntry
	if r.MaxChainLevels == 0 {
		r.MaxChainLevels = 3
	}
	if r.SLReductionPerLevel == 0 {
		r.SLReductionPerLevel = 0.5
	}
	if r.SLReductionPerLevel < 0.3 || r.SLReductionPerLevel > 0.7 {
		return fmt.Errorf("sl_reduction_per_level %.2f outside [0.3, 0.7]", r.SLReductionPerLevel)
	}
	if r.RecoveryWindowMinutes == 0 {
		r.RecoveryWindowMinutes = 30
	}
	if r.SLHuntCooldownSeconds == 0 {
		r.SLHuntCooldownSeconds = 60
	}
	if r.MonitorIntervalSeconds == 0 {
		r.MonitorIntervalSeconds = 30
	}
	if r.SLHuntOffsetPips == 0 {
		r.SLHuntOffsetPips = 1
	}
	if r.TPContinuationGapPips == 0 {
		r.TPContinuationGapPips = 2
	}

	return nil
}

// tierLadder returns the tier keys sorted by threshold, highest first.
func (c *Config) tierLadder() []string {
	keys := make([]string, 0, len(c.RiskTiers))
	for k := range c.RiskTiers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a > b
	})
	return keys
}

// TierFor resolves the highest tier whose threshold is at or below the
// balance, falling back to the floor tier.
func (c *Config) TierFor(balance float64) (string, RiskTier) {
	for _, key := range c.tierLadder() {
		threshold, _ := strconv.Atoi(key)
		if balance >= float64(threshold) {
			return key, c.RiskTiers[key]
		}
	}
	return c.DefaultTier, c.RiskTiers[c.DefaultTier]
}

// Symbol returns the pip configuration for a symbol, or false when the
// symbol is not configured for trading.
func (c *Config) Symbol(symbol string) (SymbolConfig, bool) {
	sc, ok := c.Symbols[symbol]
	return sc, ok
}
