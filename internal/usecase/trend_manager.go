package usecase

import (
	"sync"
	"time"

	"github.com/vitos/fx_reentry_bot/internal/domain"
	"go.uber.org/zap"
)

// logicTimeframes statically binds each logic to the two timeframes it reads.
var logicTimeframes = map[domain.Logic][2]domain.Timeframe{
	domain.Logic1: {domain.Timeframe1h, domain.Timeframe15m},
	domain.Logic2: {domain.Timeframe1h, domain.Timeframe15m},
	domain.Logic3: {domain.Timeframe1d, domain.Timeframe1h},
}

// entryLogics maps an entry signal's timeframe to the logic gating it.
var entryLogics = map[domain.Timeframe]domain.Logic{
	domain.Timeframe5m:  domain.Logic1,
	domain.Timeframe15m: domain.Logic2,
	domain.Timeframe1h:  domain.Logic3,
}

// TrendManager holds the per (symbol, timeframe) trend table and answers
// alignment queries. All operations are total over default-initialized
// state: absent entries read as {NEUTRAL, AUTO}.
type TrendManager struct {
	mu     sync.RWMutex
	trends map[string]map[domain.Timeframe]domain.TrendEntry
	logger *zap.Logger
	now    func() time.Time
}

func NewTrendManager(logger *zap.Logger) *TrendManager {
	return &TrendManager{
		trends: make(map[string]map[domain.Timeframe]domain.TrendEntry),
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the time source, for deterministic tests.
func (m *TrendManager) SetClock(now func() time.Time) {
	m.now = now
}

// trendFromSignal maps signal directions onto trend directions.
func trendFromSignal(dir domain.SignalDirection) domain.TrendDirection {
	switch dir {
	case domain.SignalBull, domain.SignalBuy:
		return domain.TrendBullish
	case domain.SignalBear, domain.SignalSell:
		return domain.TrendBearish
	}
	return domain.TrendNeutral
}

// UpdateTrend overwrites the entry unless it is manually locked: a MANUAL
// entry ignores AUTO-origin writes until an explicit auto reset.
func (m *TrendManager) UpdateTrend(symbol string, tf domain.Timeframe, dir domain.SignalDirection, mode domain.TrendMode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.getLocked(symbol, tf)
	if current.Mode == domain.ModeManual && mode == domain.ModeAuto {
		m.logger.Info("Manual trend locked, skipping update",
			zap.String("symbol", symbol), zap.String("timeframe", string(tf)))
		return
	}

	if m.trends[symbol] == nil {
		m.trends[symbol] = make(map[domain.Timeframe]domain.TrendEntry)
	}
	m.trends[symbol][tf] = domain.TrendEntry{
		Direction: trendFromSignal(dir),
		Mode:      mode,
		UpdatedAt: m.now(),
	}
}

// GetTrend returns the entry for (symbol, timeframe), defaulting to
// {NEUTRAL, AUTO}.
func (m *TrendManager) GetTrend(symbol string, tf domain.Timeframe) domain.TrendEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(symbol, tf)
}

func (m *TrendManager) getLocked(symbol string, tf domain.Timeframe) domain.TrendEntry {
	if byTF, ok := m.trends[symbol]; ok {
		if entry, ok := byTF[tf]; ok {
			return entry
		}
	}
	return domain.TrendEntry{Direction: domain.TrendNeutral, Mode: domain.ModeAuto}
}

// SetManualTrend pins a trend so incoming signals cannot overwrite it.
func (m *TrendManager) SetManualTrend(symbol string, tf domain.Timeframe, trend domain.TrendDirection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.trends[symbol] == nil {
		m.trends[symbol] = make(map[domain.Timeframe]domain.TrendEntry)
	}
	m.trends[symbol][tf] = domain.TrendEntry{
		Direction: trend,
		Mode:      domain.ModeManual,
		UpdatedAt: m.now(),
	}
	m.logger.Info("Manual trend set",
		zap.String("symbol", symbol), zap.String("timeframe", string(tf)), zap.String("trend", string(trend)))
}

// SetAutoTrend releases a manual lock; the direction is kept until the
// next signal overwrites it.
func (m *TrendManager) SetAutoTrend(symbol string, tf domain.Timeframe) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.getLocked(symbol, tf)
	entry.Mode = domain.ModeAuto
	entry.UpdatedAt = m.now()
	if m.trends[symbol] == nil {
		m.trends[symbol] = make(map[domain.Timeframe]domain.TrendEntry)
	}
	m.trends[symbol][tf] = entry
}

// AllTrends returns all four timeframe entries for a symbol.
func (m *TrendManager) AllTrends(symbol string) map[domain.Timeframe]domain.TrendEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[domain.Timeframe]domain.TrendEntry, 4)
	for _, tf := range []domain.Timeframe{domain.Timeframe5m, domain.Timeframe15m, domain.Timeframe1h, domain.Timeframe1d} {
		result[tf] = m.getLocked(symbol, tf)
	}
	return result
}

// CheckLogicAlignment reads the two timeframes bound to the logic and
// reports whether they agree. Any NEUTRAL or disagreement yields
// {aligned=false, NEUTRAL}; there is no partial alignment.
func (m *TrendManager) CheckLogicAlignment(symbol string, logic domain.Logic) domain.AlignmentResult {
	result := domain.AlignmentResult{
		Direction: domain.TrendNeutral,
		Evidence:  make(map[domain.Timeframe]domain.TrendDirection, 2),
	}

	tfs, ok := logicTimeframes[logic]
	if !ok {
		return result
	}

	m.mu.RLock()
	slow := m.getLocked(symbol, tfs[0])
	fast := m.getLocked(symbol, tfs[1])
	m.mu.RUnlock()

	result.Evidence[tfs[0]] = slow.Direction
	result.Evidence[tfs[1]] = fast.Direction

	if slow.Direction != domain.TrendNeutral && slow.Direction == fast.Direction {
		result.Aligned = true
		result.Direction = slow.Direction
	}
	return result
}

// LogicForTimeframe maps an entry timeframe to the logic gating it.
func LogicForTimeframe(tf domain.Timeframe) (domain.Logic, bool) {
	logic, ok := entryLogics[tf]
	return logic, ok
}
