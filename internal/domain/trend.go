package domain

import "time"

type TrendDirection string

const (
	TrendBullish TrendDirection = "BULLISH"
	TrendBearish TrendDirection = "BEARISH"
	TrendNeutral TrendDirection = "NEUTRAL"
)

type TrendMode string

const (
	ModeAuto   TrendMode = "AUTO"
	ModeManual TrendMode = "MANUAL"
)

// TrendEntry is the last known directional trend for one (symbol, timeframe).
// MANUAL entries are pinned by the operator and ignore AUTO-origin updates.
type TrendEntry struct {
	Direction TrendDirection
	Mode      TrendMode
	UpdatedAt time.Time
}

// Logic is a named alignment rule pairing two timeframes whose agreement
// gates entries on a third, faster timeframe.
type Logic string

const (
	Logic1 Logic = "LOGIC1" // 1h + 15m gate 5m entries
	Logic2 Logic = "LOGIC2" // 1h + 15m gate 15m entries
	Logic3 Logic = "LOGIC3" // 1d + 1h gate 1h entries
)

// AlignmentResult is derived, never stored.
type AlignmentResult struct {
	Aligned   bool
	Direction TrendDirection
	Evidence  map[Timeframe]TrendDirection
}
