package domain

import "time"

type TradeDirection string

const (
	DirectionBuy  TradeDirection = "buy"
	DirectionSell TradeDirection = "sell"
)

// Opposite returns the other trade direction.
func (d TradeDirection) Opposite() TradeDirection {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}

type TradeStatus string

const (
	TradeOpen   TradeStatus = "open"
	TradeClosed TradeStatus = "closed"
)

// TradeID is an engine-generated opaque identifier. The broker-assigned
// ticket lives in Trade.BrokerTicket and is never used as identity.
type TradeID string

type ChainID string

// Trade is a single position opened by the engine. Owned exclusively by
// the engine while open; the historical record passes to storage on close.
type Trade struct {
	ID           TradeID
	BrokerTicket int64
	Symbol       string
	Direction    TradeDirection
	Entry        float64
	StopLoss     float64
	TakeProfit   float64
	LotSize      float64
	Strategy     Logic
	Status       TradeStatus
	ChainID      ChainID
	ChainLevel   int
	IsReEntry    bool
	OpenedAt     time.Time
	ClosedAt     time.Time
	PnL          float64
}

type ChainStatus string

const (
	ChainActive    ChainStatus = "active"
	ChainStopped   ChainStatus = "stopped"
	ChainCompleted ChainStatus = "completed"
)

// ReEntryChain is the lineage of trades opened at the same structural
// setup: the original entry plus SL-hunt recoveries and TP continuations.
type ReEntryChain struct {
	ID                   ChainID
	Symbol               string
	Direction            TradeDirection
	OriginalEntry        float64
	OriginalStopDistance float64
	CurrentLevel         int
	MaxLevel             int
	TotalProfit          float64
	Trades               []TradeID
	Status               ChainStatus
	CreatedAt            time.Time
	LastUpdate           time.Time
}

type ExitReason string

const (
	ExitReversalBullish  ExitReason = "REVERSAL_BULLISH"
	ExitReversalBearish  ExitReason = "REVERSAL_BEARISH"
	ExitOppositeBuy      ExitReason = "OPPOSITE_SIGNAL_BUY"
	ExitOppositeSell     ExitReason = "OPPOSITE_SIGNAL_SELL"
	ExitTrendReversal    ExitReason = "TREND_REVERSAL"
	ExitAppearedBullish  ExitReason = "EXIT_APPEARED_BULLISH"
	ExitAppearedBearish  ExitReason = "EXIT_APPEARED_BEARISH"
	ExitStopLossHit      ExitReason = "SL_HIT"
	ExitTakeProfitHit    ExitReason = "TP_HIT"
	ExitManual           ExitReason = "MANUAL_CLOSE"
)

// ReversalExitEvent records a position closed because an incoming signal
// contradicted its direction.
type ReversalExitEvent struct {
	TradeID   TradeID
	Symbol    string
	ExitPrice float64
	Reason    ExitReason
	PnL       float64
	At        time.Time
}

// ReentryEvent records a chain continuation (TP continuation, SL-hunt
// recovery or exit continuation).
type ReentryEvent struct {
	ChainID        ChainID
	Symbol         string
	Kind           string
	Level          int
	Price          float64
	SLReductionPct float64
	At             time.Time
}
