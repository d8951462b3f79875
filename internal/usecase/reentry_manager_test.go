package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/fx_reentry_bot/internal/domain"
)

func newTestReEntryManager() *ReEntryManager {
	m := NewReEntryManager(testConfig(), testLogger())
	m.SetClock(fixedClock(testTime))
	return m
}

func TestSLAdjustmentLadder(t *testing.T) {
	m := newTestReEntryManager()

	assert.Equal(t, 1.0, m.SLAdjustment(1))
	assert.InDelta(t, 0.5, m.SLAdjustment(2), 1e-9)
	assert.InDelta(t, 0.25, m.SLAdjustment(3), 1e-9)
}

func TestCreateChainStartsAtLevelOne(t *testing.T) {
	m := newTestReEntryManager()

	chain := m.CreateChain("EURUSD", domain.DirectionBuy, 1.1000, 0.0045, "trade-1")
	assert.Contains(t, string(chain.ID), "EURUSD_")
	assert.Equal(t, 1, chain.CurrentLevel)
	assert.Equal(t, 3, chain.MaxLevel)
	assert.Equal(t, domain.ChainActive, chain.Status)
	assert.Equal(t, []domain.TradeID{"trade-1"}, chain.Trades)
}

func TestSLRecoveryRequiresCooldownAndRecovery(t *testing.T) {
	m := newTestReEntryManager()
	chain := m.CreateChain("EURUSD", domain.DirectionBuy, 1.1050, 0.0050, "trade-1")

	m.RecordSlHit(chain.ID, "EURUSD", domain.DirectionBuy, 1.1000)
	stored, ok := m.Chain(chain.ID)
	require.True(t, ok)
	assert.Equal(t, domain.ChainStopped, stored.Status)

	// Inside the 60s cooldown: no match even with recovered price.
	m.SetClock(fixedClock(testTime.Add(30 * time.Second)))
	_, ok = m.CheckReentryOpportunity("EURUSD", domain.DirectionBuy, 1.1005)
	assert.False(t, ok)

	// After cooldown but price still below the stop: no match.
	m.SetClock(fixedClock(testTime.Add(90 * time.Second)))
	_, ok = m.CheckReentryOpportunity("EURUSD", domain.DirectionBuy, 1.0995)
	assert.False(t, ok)

	// Cooldown elapsed and price back above the stop: recovery fires.
	opp, ok := m.CheckReentryOpportunity("EURUSD", domain.DirectionBuy, 1.1005)
	require.True(t, ok)
	assert.Equal(t, ReentrySLRecovery, opp.Kind)
	assert.Equal(t, chain.ID, opp.ChainID)
	assert.Equal(t, 2, opp.Level)
	assert.InDelta(t, 0.5, opp.SLAdjustment, 1e-9)
	assert.Equal(t, 0.0050, opp.OriginalStopDistance)

	// The match is a read: the chain stays stopped and the hit stays
	// queued until the opened trade commits it.
	stored, _ = m.Chain(chain.ID)
	assert.Equal(t, domain.ChainStopped, stored.Status)
	again, ok := m.CheckReentryOpportunity("EURUSD", domain.DirectionBuy, 1.1005)
	require.True(t, ok)
	assert.Equal(t, opp.ChainID, again.ChainID)

	require.True(t, m.CommitReentry(opp, "trade-2"))
	stored, _ = m.Chain(chain.ID)
	assert.Equal(t, domain.ChainActive, stored.Status)
	assert.Equal(t, 2, stored.CurrentLevel)
	_, ok = m.CheckReentryOpportunity("EURUSD", domain.DirectionBuy, 1.1005)
	assert.False(t, ok)
}

func TestSLRecoveryDirectionMismatch(t *testing.T) {
	m := newTestReEntryManager()
	chain := m.CreateChain("EURUSD", domain.DirectionBuy, 1.1050, 0.0050, "trade-1")
	m.RecordSlHit(chain.ID, "EURUSD", domain.DirectionBuy, 1.1000)

	m.SetClock(fixedClock(testTime.Add(2 * time.Minute)))
	_, ok := m.CheckReentryOpportunity("EURUSD", domain.DirectionSell, 1.0990)
	assert.False(t, ok)
}

func TestTPContinuationOutranksSLRecovery(t *testing.T) {
	m := newTestReEntryManager()
	slChain := m.CreateChain("EURUSD", domain.DirectionBuy, 1.1000, 0.0050, "trade-1")
	tpChain := m.CreateChain("EURUSD", domain.DirectionBuy, 1.1020, 0.0050, "trade-2")

	m.RecordSlHit(slChain.ID, "EURUSD", domain.DirectionBuy, 1.0950)
	m.RecordTpHit(tpChain.ID, "EURUSD", domain.DirectionBuy, 1.1070, 50)

	m.SetClock(fixedClock(testTime.Add(2 * time.Minute)))
	opp, ok := m.CheckReentryOpportunity("EURUSD", domain.DirectionBuy, 1.1075)
	require.True(t, ok)
	assert.Equal(t, ReentryTPContinuation, opp.Kind)
	assert.Equal(t, tpChain.ID, opp.ChainID)

	stored, _ := m.Chain(tpChain.ID)
	assert.Equal(t, 50.0, stored.TotalProfit)
}

func TestRecoveryWindowExpiry(t *testing.T) {
	m := newTestReEntryManager()
	chain := m.CreateChain("EURUSD", domain.DirectionBuy, 1.1050, 0.0050, "trade-1")
	m.RecordSlHit(chain.ID, "EURUSD", domain.DirectionBuy, 1.1000)

	// 31 minutes later the hit has aged out of the 30 minute window.
	m.SetClock(fixedClock(testTime.Add(31 * time.Minute)))
	_, ok := m.CheckReentryOpportunity("EURUSD", domain.DirectionBuy, 1.1010)
	assert.False(t, ok)
}

func TestUpdateChainLevelRefusesAtMax(t *testing.T) {
	m := newTestReEntryManager()
	chain := m.CreateChain("EURUSD", domain.DirectionBuy, 1.1000, 0.0050, "trade-1")

	require.True(t, m.UpdateChainLevel(chain.ID, "trade-2"))
	require.True(t, m.UpdateChainLevel(chain.ID, "trade-3"))

	stored, _ := m.Chain(chain.ID)
	assert.Equal(t, 3, stored.CurrentLevel)
	assert.Equal(t, domain.ChainCompleted, stored.Status)

	assert.False(t, m.UpdateChainLevel(chain.ID, "trade-4"))
	assert.False(t, m.UpdateChainLevel("missing", "trade-5"))
}

func TestCompletedChainYieldsNoOpportunity(t *testing.T) {
	m := newTestReEntryManager()
	chain := m.CreateChain("EURUSD", domain.DirectionBuy, 1.1000, 0.0050, "trade-1")
	m.UpdateChainLevel(chain.ID, "trade-2")
	m.UpdateChainLevel(chain.ID, "trade-3")

	m.RecordTpHit(chain.ID, "EURUSD", domain.DirectionBuy, 1.1070, 40)
	_, ok := m.CheckReentryOpportunity("EURUSD", domain.DirectionBuy, 1.1075)
	assert.False(t, ok)
}
