package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/fx_reentry_bot/internal/domain"
)

func openTrade(id string, symbol string, direction domain.TradeDirection) domain.Trade {
	return domain.Trade{
		ID:        domain.TradeID(id),
		Symbol:    symbol,
		Direction: direction,
		Entry:     1.1000,
		Status:    domain.TradeOpen,
	}
}

func mustSignal(t *testing.T, kind, symbol, tf, direction string, price float64) domain.Signal {
	t.Helper()
	sig, err := domain.NewSignal(kind, symbol, tf, direction, price, testTime)
	require.NoError(t, err)
	return sig
}

func TestReversalSignalClosesOpposedTrades(t *testing.T) {
	e := NewReversalExitEvaluator(testLogger())
	trades := []domain.Trade{
		openTrade("t1", "EURUSD", domain.DirectionSell),
		openTrade("t2", "EURUSD", domain.DirectionBuy),
	}

	sig := mustSignal(t, "reversal", "EURUSD", "15m", "reversal_bull", 1.1020)
	decisions := e.Evaluate(sig, trades)
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.TradeID("t1"), decisions[0].Trade.ID)
	assert.Equal(t, domain.ExitReversalBullish, decisions[0].Reason)
	assert.Equal(t, 1.1020, decisions[0].ExitPrice)

	sig = mustSignal(t, "reversal", "EURUSD", "15m", "reversal_bear", 1.0980)
	decisions = e.Evaluate(sig, trades)
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.TradeID("t2"), decisions[0].Trade.ID)
	assert.Equal(t, domain.ExitReversalBearish, decisions[0].Reason)
}

func TestOppositeEntryClosesTrade(t *testing.T) {
	e := NewReversalExitEvaluator(testLogger())
	trades := []domain.Trade{openTrade("t1", "EURUSD", domain.DirectionSell)}

	sig := mustSignal(t, "entry", "EURUSD", "5m", "buy", 1.1010)
	decisions := e.Evaluate(sig, trades)
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.ExitOppositeBuy, decisions[0].Reason)

	// Same-direction entry leaves the trade alone.
	sig = mustSignal(t, "entry", "EURUSD", "5m", "sell", 1.0990)
	assert.Empty(t, e.Evaluate(sig, trades))
}

func TestTrendFlipClosesTrade(t *testing.T) {
	e := NewReversalExitEvaluator(testLogger())
	trades := []domain.Trade{openTrade("t1", "EURUSD", domain.DirectionBuy)}

	sig := mustSignal(t, "trend", "EURUSD", "1h", "bear", 1.0950)
	decisions := e.Evaluate(sig, trades)
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.ExitTrendReversal, decisions[0].Reason)

	sig = mustSignal(t, "bias", "EURUSD", "1h", "bull", 1.1050)
	assert.Empty(t, e.Evaluate(sig, trades))

	// An opposing bias flags context, never an exit.
	sig = mustSignal(t, "bias", "EURUSD", "1d", "bear", 1.0950)
	assert.Empty(t, e.Evaluate(sig, trades))
}

func TestExitWarningClosesTrade(t *testing.T) {
	e := NewReversalExitEvaluator(testLogger())
	trades := []domain.Trade{openTrade("t1", "EURUSD", domain.DirectionSell)}

	sig := mustSignal(t, "exit", "EURUSD", "15m", "bull", 1.1030)
	decisions := e.Evaluate(sig, trades)
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.ExitAppearedBullish, decisions[0].Reason)
}

func TestEvaluateIgnoresOtherSymbolsAndClosed(t *testing.T) {
	e := NewReversalExitEvaluator(testLogger())
	closed := openTrade("t2", "EURUSD", domain.DirectionSell)
	closed.Status = domain.TradeClosed
	trades := []domain.Trade{
		openTrade("t1", "GBPUSD", domain.DirectionSell),
		closed,
	}

	sig := mustSignal(t, "reversal", "EURUSD", "15m", "reversal_bull", 1.1020)
	assert.Empty(t, e.Evaluate(sig, trades))
}

func TestContinuationEligibility(t *testing.T) {
	assert.True(t, ContinuationEligible(domain.ExitReversalBullish))
	assert.True(t, ContinuationEligible(domain.ExitAppearedBearish))
	assert.False(t, ContinuationEligible(domain.ExitTrendReversal))
	assert.False(t, ContinuationEligible(domain.ExitOppositeBuy))
	assert.False(t, ContinuationEligible(domain.ExitStopLossHit))

	dir, ok := ContinuationDirection(domain.ExitReversalBullish)
	assert.True(t, ok)
	assert.Equal(t, domain.DirectionBuy, dir)

	dir, ok = ContinuationDirection(domain.ExitAppearedBearish)
	assert.True(t, ok)
	assert.Equal(t, domain.DirectionSell, dir)

	_, ok = ContinuationDirection(domain.ExitTrendReversal)
	assert.False(t, ok)
}
