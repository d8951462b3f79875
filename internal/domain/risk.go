package domain

// RiskStats is the process-wide realized loss/profit bookkeeping.
// Daily figures reset when the wall-clock date rolls over relative to
// the last persisted date; lifetime figures never auto-reset.
type RiskStats struct {
	Date          string // YYYY-MM-DD of the last update
	DailyLoss     float64
	DailyProfit   float64
	LifetimeLoss  float64
	TotalTrades   int
	WinningTrades int
}

// WinRate returns the winning percentage, 0 when no trades were taken.
func (s RiskStats) WinRate() float64 {
	if s.TotalTrades == 0 {
		return 0
	}
	return float64(s.WinningTrades) / float64(s.TotalTrades) * 100
}
