package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vitos/fx_reentry_bot/internal/config"
	"github.com/vitos/fx_reentry_bot/internal/domain"
	"go.uber.org/zap"
)

// Trade-blocking reasons returned by CanTrade.
var (
	ErrDailyLossLimit = errors.New("daily loss limit reached")
	ErrTotalLossLimit = errors.New("total loss limit reached")
)

// RiskManager tracks daily and lifetime loss counters and gates new
// entries against the tier ladder. Counters roll over when the UTC date
// changes; lifetime loss survives rollover.
type RiskManager struct {
	mu     sync.Mutex
	cfg    *config.Config
	repo   domain.TradeRepository
	stats  domain.RiskStats
	logger *zap.Logger
	now    func() time.Time
}

func NewRiskManager(cfg *config.Config, repo domain.TradeRepository, logger *zap.Logger) *RiskManager {
	m := &RiskManager{
		cfg:    cfg,
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
	if repo != nil {
		if stats, err := repo.GetRiskStats(context.Background()); err != nil {
			logger.Warn("Failed to load risk stats, starting fresh", zap.Error(err))
		} else if stats != nil {
			m.stats = *stats
		}
	}
	if m.stats.Date == "" {
		m.stats.Date = m.today()
	}
	return m
}

func (m *RiskManager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *RiskManager) today() string {
	return m.now().UTC().Format("2006-01-02")
}

// rolloverLocked resets the daily counters when the UTC date has changed.
func (m *RiskManager) rolloverLocked() {
	today := m.today()
	if m.stats.Date == today {
		return
	}
	m.logger.Info("Risk stats daily rollover",
		zap.String("from", m.stats.Date), zap.String("to", today),
		zap.Float64("daily_loss", m.stats.DailyLoss))
	m.stats.Date = today
	m.stats.DailyLoss = 0
	m.stats.DailyProfit = 0
}

// TierFor resolves the risk tier for the account balance.
func (m *RiskManager) TierFor(balance float64) (string, config.RiskTier) {
	return m.cfg.TierFor(balance)
}

// CanTrade reports whether a new entry is allowed, checking the daily
// loss limit and the lifetime loss limit of the resolved tier.
func (m *RiskManager) CanTrade(balance float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()

	name, tier := m.cfg.TierFor(balance)
	if tier.DailyLossLimit > 0 && m.stats.DailyLoss >= tier.DailyLossLimit {
		return fmt.Errorf("%w: %.2f >= %.2f (tier %s)", ErrDailyLossLimit, m.stats.DailyLoss, tier.DailyLossLimit, name)
	}
	if tier.MaxTotalLoss > 0 && m.stats.LifetimeLoss >= tier.MaxTotalLoss {
		return fmt.Errorf("%w: %.2f >= %.2f (tier %s)", ErrTotalLossLimit, m.stats.LifetimeLoss, tier.MaxTotalLoss, name)
	}
	return nil
}

// PositionSize returns the lot size for a new trade at the given balance.
// A tier lot override wins, then the tier's fixed lot, with a 0.01 floor.
func (m *RiskManager) PositionSize(balance float64) float64 {
	_, tier := m.cfg.TierFor(balance)
	lot := tier.FixedLot
	if tier.LotOverride > 0 {
		lot = tier.LotOverride
	}
	if lot < 0.01 {
		lot = 0.01
	}
	return lot
}

// RecordOutcome folds a closed trade's PnL into the counters and
// persists the updated stats.
func (m *RiskManager) RecordOutcome(ctx context.Context, pnl float64) {
	m.mu.Lock()
	m.rolloverLocked()

	m.stats.TotalTrades++
	if pnl >= 0 {
		m.stats.DailyProfit += pnl
		if pnl > 0 {
			m.stats.WinningTrades++
		}
	} else {
		m.stats.DailyLoss += -pnl
		m.stats.LifetimeLoss += -pnl
	}
	snapshot := m.stats
	m.mu.Unlock()

	if m.repo != nil {
		if err := m.repo.SaveRiskStats(ctx, &snapshot); err != nil {
			m.logger.Error("Failed to persist risk stats", zap.Error(err))
		}
	}
}

// Stats returns a copy of the current counters after rollover.
func (m *RiskManager) Stats() domain.RiskStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()
	return m.stats
}
