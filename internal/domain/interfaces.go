package domain

import "context"

// Broker is the order-placement and price-sampling gateway. All calls are
// best-effort with bounded retry delegated to the implementation; the
// engine treats a failed open as "no trade" and a failed close as "retry
// on the next pass".
type Broker interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
	AccountBalance(ctx context.Context) (float64, error)
	OpenOrder(ctx context.Context, symbol string, direction TradeDirection, lot, entry, sl, tp float64, comment string) (int64, error)
	CloseOrder(ctx context.Context, ticket int64) error
}

// TradeRepository persists finalized trades, chains and risk snapshots.
// Writes are fire-and-forget from the engine's perspective.
type TradeRepository interface {
	SaveTrade(ctx context.Context, trade *Trade) error
	ListTrades(ctx context.Context, limit int) ([]*Trade, error)

	SaveChain(ctx context.Context, chain *ReEntryChain) error

	SaveRiskStats(ctx context.Context, stats *RiskStats) error
	GetRiskStats(ctx context.Context) (*RiskStats, error)

	SaveReversalExit(ctx context.Context, ev *ReversalExitEvent) error
	SaveReentryEvent(ctx context.Context, ev *ReentryEvent) error
}

// Notifier delivers human-readable event descriptions. Implementations
// must not block the caller.
type Notifier interface {
	Notify(text string)
}
