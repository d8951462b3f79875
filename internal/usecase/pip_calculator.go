package usecase

import (
	"fmt"
	"math"

	"github.com/vitos/fx_reentry_bot/internal/config"
	"github.com/vitos/fx_reentry_bot/internal/domain"
)

// PipCalculator converts tier risk caps into price-space stop and
// target levels using the per-symbol pip geometry.
type PipCalculator struct {
	cfg *config.Config
}

func NewPipCalculator(cfg *config.Config) *PipCalculator {
	return &PipCalculator{cfg: cfg}
}

// StopDistance computes a stop distance in price units such that a full
// stop-out at the given lot size loses at most the tier's per-trade cap.
// Gold uses dollar distance directly; FX pairs go through pip value.
func (c *PipCalculator) StopDistance(symbol string, balance, lot float64) (float64, error) {
	symCfg, ok := c.cfg.Symbol(symbol)
	if !ok {
		return 0, fmt.Errorf("unknown symbol %q", symbol)
	}
	_, tier := c.cfg.TierFor(balance)
	if lot <= 0 {
		return 0, fmt.Errorf("invalid lot size %.2f", lot)
	}

	if symCfg.IsGold {
		dist := tier.PerTradeCap / lot
		if dist < 0.50 {
			dist = 0.50
		}
		return dist, nil
	}

	pipValue := symCfg.PipValuePerStdLot * lot
	if pipValue <= 0 {
		return 0, fmt.Errorf("symbol %q has no pip value configured", symbol)
	}
	slPips := tier.PerTradeCap / pipValue
	dist := slPips * symCfg.PipSize
	if dist < symCfg.MinSLDistance {
		dist = symCfg.MinSLDistance
	}
	return dist, nil
}

// StopLossPrice places the stop at the given distance behind entry.
func (c *PipCalculator) StopLossPrice(entry, distance float64, direction domain.TradeDirection) float64 {
	if direction == domain.DirectionBuy {
		return entry - distance
	}
	return entry + distance
}

// TakeProfitPrice places the target at the configured reward ratio of
// the stop distance on the profit side of entry.
func (c *PipCalculator) TakeProfitPrice(entry, stopLoss float64, direction domain.TradeDirection) float64 {
	dist := math.Abs(entry-stopLoss) * c.cfg.RRRatio
	if direction == domain.DirectionBuy {
		return entry + dist
	}
	return entry - dist
}

// PnL converts a price move into account currency for the closed lot.
func (c *PipCalculator) PnL(symbol string, direction domain.TradeDirection, entry, exit, lot float64) float64 {
	diff := exit - entry
	if direction == domain.DirectionSell {
		diff = -diff
	}
	symCfg, ok := c.cfg.Symbol(symbol)
	if !ok || symCfg.PipSize <= 0 {
		return 0
	}
	if symCfg.IsGold {
		return diff * lot
	}
	return diff / symCfg.PipSize * symCfg.PipValuePerStdLot * lot
}
