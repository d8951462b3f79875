package usecase

import (
	"github.com/vitos/fx_reentry_bot/internal/domain"
	"go.uber.org/zap"
)

// ExitDecision pairs an open trade with the reason it should be closed
// and the price the decision was taken at.
type ExitDecision struct {
	Trade     domain.Trade
	ExitPrice float64
	Reason    domain.ExitReason
}

// ReversalExitEvaluator decides which open trades a signal closes.
// Checks run in fixed priority: explicit reversal, opposite entry,
// trend flip, exit warning. The first matching rule decides; a trade is
// never closed twice by one signal.
type ReversalExitEvaluator struct {
	logger *zap.Logger
}

func NewReversalExitEvaluator(logger *zap.Logger) *ReversalExitEvaluator {
	return &ReversalExitEvaluator{logger: logger}
}

// Evaluate returns the exit decisions the signal implies for the given
// open trades. Trades on other symbols are ignored.
func (e *ReversalExitEvaluator) Evaluate(sig domain.Signal, openTrades []domain.Trade) []ExitDecision {
	var decisions []ExitDecision
	for _, trade := range openTrades {
		if trade.Symbol != sig.Symbol || trade.Status != domain.TradeOpen {
			continue
		}
		reason, ok := e.matchTrade(sig, trade)
		if !ok {
			continue
		}
		e.logger.Info("Reversal exit matched",
			zap.String("trade_id", string(trade.ID)), zap.String("symbol", trade.Symbol),
			zap.String("reason", string(reason)), zap.Float64("price", sig.Price))
		decisions = append(decisions, ExitDecision{Trade: trade, ExitPrice: sig.Price, Reason: reason})
	}
	return decisions
}

func (e *ReversalExitEvaluator) matchTrade(sig domain.Signal, trade domain.Trade) (domain.ExitReason, bool) {
	switch sig.Kind {
	case domain.KindReversal:
		if sig.Direction == domain.SignalReversalBull && trade.Direction == domain.DirectionSell {
			return domain.ExitReversalBullish, true
		}
		if sig.Direction == domain.SignalReversalBear && trade.Direction == domain.DirectionBuy {
			return domain.ExitReversalBearish, true
		}
	case domain.KindEntry:
		if sig.Direction == domain.SignalBuy && trade.Direction == domain.DirectionSell {
			return domain.ExitOppositeBuy, true
		}
		if sig.Direction == domain.SignalSell && trade.Direction == domain.DirectionBuy {
			return domain.ExitOppositeSell, true
		}
	case domain.KindTrend:
		// Only trend-change signals close against-trend positions. A
		// bias update on a slower timeframe is context, not an exit.
		if sig.Direction == domain.SignalBull && trade.Direction == domain.DirectionSell {
			return domain.ExitTrendReversal, true
		}
		if sig.Direction == domain.SignalBear && trade.Direction == domain.DirectionBuy {
			return domain.ExitTrendReversal, true
		}
	case domain.KindExit:
		if sig.Direction == domain.SignalBull && trade.Direction == domain.DirectionSell {
			return domain.ExitAppearedBullish, true
		}
		if sig.Direction == domain.SignalBear && trade.Direction == domain.DirectionBuy {
			return domain.ExitAppearedBearish, true
		}
	}
	return "", false
}

// ContinuationEligible reports whether a close for the given reason
// should arm an exit-continuation monitor in the new direction.
func ContinuationEligible(reason domain.ExitReason) bool {
	switch reason {
	case domain.ExitReversalBullish, domain.ExitReversalBearish,
		domain.ExitAppearedBullish, domain.ExitAppearedBearish:
		return true
	}
	return false
}

// ContinuationDirection gives the trade direction an exit-continuation
// entry would take after a close for the given reason.
func ContinuationDirection(reason domain.ExitReason) (domain.TradeDirection, bool) {
	switch reason {
	case domain.ExitReversalBullish, domain.ExitAppearedBullish:
		return domain.DirectionBuy, true
	case domain.ExitReversalBearish, domain.ExitAppearedBearish:
		return domain.DirectionSell, true
	}
	return "", false
}
