package domain

import (
	"fmt"
	"time"
)

type SignalKind string

const (
	KindBias     SignalKind = "bias"
	KindTrend    SignalKind = "trend"
	KindEntry    SignalKind = "entry"
	KindExit     SignalKind = "exit"
	KindReversal SignalKind = "reversal"
)

type Timeframe string

const (
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe1d  Timeframe = "1d"
)

type SignalDirection string

const (
	SignalBull         SignalDirection = "bull"
	SignalBear         SignalDirection = "bear"
	SignalBuy          SignalDirection = "buy"
	SignalSell         SignalDirection = "sell"
	SignalReversalBull SignalDirection = "reversal_bull"
	SignalReversalBear SignalDirection = "reversal_bear"
)

// Signal is a normalized alert from the upstream signal source.
// Immutable once constructed; NewSignal is the only way to build one.
type Signal struct {
	Kind       SignalKind
	Symbol     string
	Timeframe  Timeframe
	Direction  SignalDirection
	Price      float64
	ReceivedAt time.Time
}

var validDirections = map[SignalKind][]SignalDirection{
	KindBias:     {SignalBull, SignalBear},
	KindTrend:    {SignalBull, SignalBear},
	KindEntry:    {SignalBuy, SignalSell},
	KindExit:     {SignalBull, SignalBear},
	KindReversal: {SignalReversalBull, SignalReversalBear},
}

var validTimeframes = map[Timeframe]bool{
	Timeframe5m:  true,
	Timeframe15m: true,
	Timeframe1h:  true,
	Timeframe1d:  true,
}

// NewSignal validates and constructs a Signal. Unknown kinds, timeframes
// and kind/direction combinations are rejected at this boundary.
func NewSignal(kind, symbol, timeframe, direction string, price float64, receivedAt time.Time) (Signal, error) {
	k := SignalKind(kind)
	allowed, ok := validDirections[k]
	if !ok {
		return Signal{}, fmt.Errorf("invalid signal kind: %q", kind)
	}

	if symbol == "" {
		return Signal{}, fmt.Errorf("signal symbol is empty")
	}

	tf := Timeframe(timeframe)
	if !validTimeframes[tf] {
		return Signal{}, fmt.Errorf("invalid timeframe: %q", timeframe)
	}

	dir := SignalDirection(direction)
	compatible := false
	for _, d := range allowed {
		if d == dir {
			compatible = true
			break
		}
	}
	if !compatible {
		return Signal{}, fmt.Errorf("direction %q not valid for kind %q", direction, kind)
	}

	if k == KindEntry && price <= 0 {
		return Signal{}, fmt.Errorf("entry signal requires a positive price")
	}

	return Signal{
		Kind:       k,
		Symbol:     symbol,
		Timeframe:  tf,
		Direction:  dir,
		Price:      price,
		ReceivedAt: receivedAt,
	}, nil
}

// TradeDirection returns the buy/sell direction the signal implies,
// or "" when the signal carries no tradable direction.
func (s Signal) TradeDirection() TradeDirection {
	switch s.Direction {
	case SignalBuy, SignalBull, SignalReversalBull:
		return DirectionBuy
	case SignalSell, SignalBear, SignalReversalBear:
		return DirectionSell
	}
	return ""
}
