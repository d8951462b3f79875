package usecase

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/fx_reentry_bot/internal/config"
	"github.com/vitos/fx_reentry_bot/internal/domain"
	"go.uber.org/zap"
)

// Re-entry trigger kinds.
const (
	ReentryTPContinuation = "tp_continuation"
	ReentrySLRecovery     = "sl_recovery"
)

// slHitEvent records a stop-loss close eligible for recovery re-entry.
type slHitEvent struct {
	chainID   domain.ChainID
	direction domain.TradeDirection
	slPrice   float64
	hitAt     time.Time
}

// tpHitEvent records a take-profit close eligible for continuation.
type tpHitEvent struct {
	chainID   domain.ChainID
	direction domain.TradeDirection
	tpPrice   float64
	hitAt     time.Time
}

// ReentryOpportunity describes a matched re-entry: which chain, what
// kind of trigger, the level the new trade would sit at, and the stop
// distance multiplier for that level.
type ReentryOpportunity struct {
	Kind                 string
	ChainID              domain.ChainID
	Level                int
	SLAdjustment         float64
	OriginalStopDistance float64

	symbol string
	hitAt  time.Time
}

// ReEntryManager owns chain lifecycle state and the recent SL/TP hit
// queues used to qualify a new same-direction signal as a re-entry.
type ReEntryManager struct {
	mu     sync.Mutex
	cfg    *config.Config
	chains map[domain.ChainID]*domain.ReEntryChain
	slHits map[string][]slHitEvent
	tpHits map[string][]tpHitEvent
	logger *zap.Logger
	now    func() time.Time
}

func NewReEntryManager(cfg *config.Config, logger *zap.Logger) *ReEntryManager {
	return &ReEntryManager{
		cfg:    cfg,
		chains: make(map[domain.ChainID]*domain.ReEntryChain),
		slHits: make(map[string][]slHitEvent),
		tpHits: make(map[string][]tpHitEvent),
		logger: logger,
		now:    time.Now,
	}
}

func (m *ReEntryManager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SLAdjustment returns the stop distance multiplier for a chain level:
// level 1 trades at full distance, each further level shrinks it by the
// configured reduction factor.
func (m *ReEntryManager) SLAdjustment(level int) float64 {
	if level <= 1 {
		return 1.0
	}
	return math.Pow(1.0-m.cfg.ReEntry.SLReductionPerLevel, float64(level-1))
}

// CreateChain starts a new chain at level 1 for a fresh entry.
func (m *ReEntryManager) CreateChain(symbol string, direction domain.TradeDirection, entry, stopDistance float64, tradeID domain.TradeID) *domain.ReEntryChain {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := domain.ChainID(strings.ToUpper(symbol) + "_" + uuid.NewString()[:8])
	chain := &domain.ReEntryChain{
		ID:                   id,
		Symbol:               symbol,
		Direction:            direction,
		OriginalEntry:        entry,
		OriginalStopDistance: stopDistance,
		CurrentLevel:         1,
		MaxLevel:             m.cfg.ReEntry.MaxChainLevels,
		Trades:               []domain.TradeID{tradeID},
		Status:               domain.ChainActive,
		CreatedAt:            m.now(),
		LastUpdate:           m.now(),
	}
	m.chains[id] = chain
	m.logger.Info("Re-entry chain created",
		zap.String("chain_id", string(id)), zap.String("symbol", symbol),
		zap.String("direction", string(direction)), zap.Int("max_level", chain.MaxLevel))
	copied := *chain
	return &copied
}

// RecordSlHit queues a stop-loss close for recovery matching and marks
// the chain stopped until a recovery re-entry reactivates it.
func (m *ReEntryManager) RecordSlHit(chainID domain.ChainID, symbol string, direction domain.TradeDirection, slPrice float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(symbol)

	if chain, ok := m.chains[chainID]; ok {
		chain.Status = domain.ChainStopped
		chain.LastUpdate = m.now()
	}
	m.slHits[symbol] = append(m.slHits[symbol], slHitEvent{
		chainID:   chainID,
		direction: direction,
		slPrice:   slPrice,
		hitAt:     m.now(),
	})
}

// RecordTpHit queues a take-profit close for continuation matching and
// accumulates the chain's realized profit.
func (m *ReEntryManager) RecordTpHit(chainID domain.ChainID, symbol string, direction domain.TradeDirection, tpPrice, profit float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(symbol)

	if chain, ok := m.chains[chainID]; ok {
		chain.TotalProfit += profit
		chain.LastUpdate = m.now()
	}
	m.tpHits[symbol] = append(m.tpHits[symbol], tpHitEvent{
		chainID:   chainID,
		direction: direction,
		tpPrice:   tpPrice,
		hitAt:     m.now(),
	})
}

// CheckReentryOpportunity matches a same-direction signal against the
// recent hit queues. TP continuation outranks SL recovery, most recent
// hit first. SL recovery additionally requires the hunt cooldown to
// have elapsed and the price to have moved back past the stop in the
// trade's favor. The match is a read: nothing is consumed until the
// caller commits it with CommitReentry, so a failed broker open leaves
// the opportunity intact for the next trigger.
func (m *ReEntryManager) CheckReentryOpportunity(symbol string, direction domain.TradeDirection, price float64) (ReentryOpportunity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(symbol)
	now := m.now()

	if m.cfg.ReEntry.TPContinuationEnabled {
		hits := m.tpHits[symbol]
		for i := len(hits) - 1; i >= 0; i-- {
			hit := hits[i]
			if hit.direction != direction {
				continue
			}
			chain, ok := m.chains[hit.chainID]
			if !ok || chain.CurrentLevel >= chain.MaxLevel {
				continue
			}
			level := chain.CurrentLevel + 1
			return ReentryOpportunity{
				Kind:                 ReentryTPContinuation,
				ChainID:              chain.ID,
				Level:                level,
				SLAdjustment:         m.SLAdjustment(level),
				OriginalStopDistance: chain.OriginalStopDistance,
				symbol:               symbol,
				hitAt:                hit.hitAt,
			}, true
		}
	}

	if m.cfg.ReEntry.SLHuntEnabled {
		hits := m.slHits[symbol]
		for i := len(hits) - 1; i >= 0; i-- {
			hit := hits[i]
			if hit.direction != direction {
				continue
			}
			if now.Sub(hit.hitAt) < m.cfg.ReEntry.SLHuntCooldown() {
				continue
			}
			if !priceRecovered(direction, price, hit.slPrice) {
				continue
			}
			chain, ok := m.chains[hit.chainID]
			if !ok || chain.CurrentLevel >= chain.MaxLevel {
				continue
			}
			level := chain.CurrentLevel + 1
			return ReentryOpportunity{
				Kind:                 ReentrySLRecovery,
				ChainID:              chain.ID,
				Level:                level,
				SLAdjustment:         m.SLAdjustment(level),
				OriginalStopDistance: chain.OriginalStopDistance,
				symbol:               symbol,
				hitAt:                hit.hitAt,
			}, true
		}
	}

	return ReentryOpportunity{}, false
}

// CommitReentry consumes the hit event behind a matched opportunity and
// advances the chain for the newly opened trade in one step. Returns
// false when the chain is missing or already at its maximum level; the
// caller must then abort the re-entry.
func (m *ReEntryManager) CommitReentry(opp ReentryOpportunity, tradeID domain.TradeID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	chain, ok := m.chains[opp.ChainID]
	if !ok || chain.CurrentLevel >= chain.MaxLevel {
		return false
	}
	m.removeHitLocked(opp)
	m.advanceLocked(chain, tradeID)
	return true
}

// removeHitLocked drops the hit event behind an opportunity. Monitor
// triggers carry no hit timestamp and fall back to the most recent
// event for the chain.
func (m *ReEntryManager) removeHitLocked(opp ReentryOpportunity) {
	matches := func(chainID domain.ChainID, hitAt time.Time) bool {
		return chainID == opp.ChainID && (opp.hitAt.IsZero() || hitAt.Equal(opp.hitAt))
	}
	switch opp.Kind {
	case ReentryTPContinuation:
		hits := m.tpHits[opp.symbol]
		for i := len(hits) - 1; i >= 0; i-- {
			if matches(hits[i].chainID, hits[i].hitAt) {
				m.tpHits[opp.symbol] = append(hits[:i], hits[i+1:]...)
				return
			}
		}
	case ReentrySLRecovery:
		hits := m.slHits[opp.symbol]
		for i := len(hits) - 1; i >= 0; i-- {
			if matches(hits[i].chainID, hits[i].hitAt) {
				m.slHits[opp.symbol] = append(hits[:i], hits[i+1:]...)
				return
			}
		}
	}
}

// priceRecovered reports whether price has crossed back past the stop
// in the trade's favor.
func priceRecovered(direction domain.TradeDirection, price, slPrice float64) bool {
	if direction == domain.DirectionBuy {
		return price > slPrice
	}
	return price < slPrice
}

// UpdateChainLevel atomically advances the chain for a newly opened
// re-entry trade. Returns false when the chain is missing or already at
// its maximum level; the caller must then abort the re-entry. Reaching
// the maximum level marks the chain completed.
func (m *ReEntryManager) UpdateChainLevel(chainID domain.ChainID, tradeID domain.TradeID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	chain, ok := m.chains[chainID]
	if !ok || chain.CurrentLevel >= chain.MaxLevel {
		return false
	}
	m.advanceLocked(chain, tradeID)
	return true
}

func (m *ReEntryManager) advanceLocked(chain *domain.ReEntryChain, tradeID domain.TradeID) {
	chain.CurrentLevel++
	chain.Trades = append(chain.Trades, tradeID)
	chain.Status = domain.ChainActive
	chain.LastUpdate = m.now()
	if chain.CurrentLevel >= chain.MaxLevel {
		chain.Status = domain.ChainCompleted
	}
}

// Chain returns a copy of the chain, if known.
func (m *ReEntryManager) Chain(chainID domain.ChainID) (domain.ReEntryChain, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chain, ok := m.chains[chainID]
	if !ok {
		return domain.ReEntryChain{}, false
	}
	return *chain, true
}

// ActiveChains returns copies of all chains not yet pruned.
func (m *ReEntryManager) ActiveChains() []domain.ReEntryChain {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]domain.ReEntryChain, 0, len(m.chains))
	for _, chain := range m.chains {
		result = append(result, *chain)
	}
	return result
}

// pruneLocked discards hit events older than the recovery window and
// drops non-active chains untouched for longer than the window.
func (m *ReEntryManager) pruneLocked(symbol string) {
	cutoff := m.now().Add(-m.cfg.ReEntry.RecoveryWindow())

	slKept := m.slHits[symbol][:0]
	for _, hit := range m.slHits[symbol] {
		if hit.hitAt.After(cutoff) {
			slKept = append(slKept, hit)
		}
	}
	m.slHits[symbol] = slKept

	tpKept := m.tpHits[symbol][:0]
	for _, hit := range m.tpHits[symbol] {
		if hit.hitAt.After(cutoff) {
			tpKept = append(tpKept, hit)
		}
	}
	m.tpHits[symbol] = tpKept

	for id, chain := range m.chains {
		if chain.Status != domain.ChainActive && chain.LastUpdate.Before(cutoff) {
			delete(m.chains, id)
		}
	}
}
