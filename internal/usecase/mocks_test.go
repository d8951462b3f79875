package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/vitos/fx_reentry_bot/internal/config"
	"github.com/vitos/fx_reentry_bot/internal/domain"
	"go.uber.org/zap"
)

type openedOrder struct {
	symbol    string
	direction domain.TradeDirection
	lot       float64
	entry     float64
	sl        float64
	tp        float64
	comment   string
	ticket    int64
}

type fakeBroker struct {
	mu         sync.Mutex
	prices     map[string]float64
	balance    float64
	priceErr   error
	openErr    error
	closeErr   error
	opened     []openedOrder
	closed     []int64
	nextTicket int64
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		prices:     make(map[string]float64),
		balance:    10000,
		nextTicket: 100,
	}
}

func (b *fakeBroker) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.priceErr != nil {
		return 0, b.priceErr
	}
	return b.prices[symbol], nil
}

func (b *fakeBroker) AccountBalance(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance, nil
}

func (b *fakeBroker) OpenOrder(ctx context.Context, symbol string, direction domain.TradeDirection, lot, entry, sl, tp float64, comment string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return 0, b.openErr
	}
	b.nextTicket++
	order := openedOrder{
		symbol: symbol, direction: direction, lot: lot,
		entry: entry, sl: sl, tp: tp, comment: comment, ticket: b.nextTicket,
	}
	b.opened = append(b.opened, order)
	return b.nextTicket, nil
}

func (b *fakeBroker) CloseOrder(ctx context.Context, ticket int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closeErr != nil {
		return b.closeErr
	}
	b.closed = append(b.closed, ticket)
	return nil
}

func (b *fakeBroker) setPrice(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[symbol] = price
}

func (b *fakeBroker) openedOrders() []openedOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]openedOrder(nil), b.opened...)
}

type fakeRepo struct {
	mu            sync.Mutex
	trades        map[domain.TradeID]domain.Trade
	chains        map[domain.ChainID]domain.ReEntryChain
	stats         *domain.RiskStats
	reversalExits []domain.ReversalExitEvent
	reentryEvents []domain.ReentryEvent
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		trades: make(map[domain.TradeID]domain.Trade),
		chains: make(map[domain.ChainID]domain.ReEntryChain),
	}
}

func (r *fakeRepo) SaveTrade(ctx context.Context, trade *domain.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades[trade.ID] = *trade
	return nil
}

func (r *fakeRepo) ListTrades(ctx context.Context, limit int) ([]*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Trade
	for _, t := range r.trades {
		copied := t
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeRepo) SaveChain(ctx context.Context, chain *domain.ReEntryChain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[chain.ID] = *chain
	return nil
}

func (r *fakeRepo) SaveRiskStats(ctx context.Context, stats *domain.RiskStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *stats
	r.stats = &copied
	return nil
}

func (r *fakeRepo) GetRiskStats(ctx context.Context) (*domain.RiskStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stats == nil {
		return &domain.RiskStats{}, nil
	}
	copied := *r.stats
	return &copied, nil
}

func (r *fakeRepo) SaveReversalExit(ctx context.Context, ev *domain.ReversalExitEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reversalExits = append(r.reversalExits, *ev)
	return nil
}

func (r *fakeRepo) SaveReentryEvent(ctx context.Context, ev *domain.ReentryEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reentryEvents = append(r.reentryEvents, *ev)
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
}

func testConfig() *config.Config {
	cfg := &config.Config{
		RiskTiers: map[string]config.RiskTier{
			"100000": {PerTradeCap: 450, DailyLossLimit: 2250, MaxTotalLoss: 4500, FixedLot: 1.0},
			"50000":  {PerTradeCap: 225, DailyLossLimit: 1125, MaxTotalLoss: 2250, FixedLot: 0.5},
			"25000":  {PerTradeCap: 112, DailyLossLimit: 562, MaxTotalLoss: 1125, FixedLot: 0.25},
			"10000":  {PerTradeCap: 45, DailyLossLimit: 225, MaxTotalLoss: 450, FixedLot: 0.1},
			"5000":   {PerTradeCap: 22, DailyLossLimit: 112, MaxTotalLoss: 225, FixedLot: 0.05},
		},
		DefaultTier: "5000",
		Symbols: map[string]config.SymbolConfig{
			"EURUSD": {PipSize: 0.0001, PipValuePerStdLot: 10, MinSLDistance: 0.0005, MaxLots: 5},
			"XAUUSD": {PipSize: 0.01, PipValuePerStdLot: 1, MinSLDistance: 0.5, MaxLots: 2, IsGold: true},
		},
		ReEntry: config.ReEntryConfig{
			MaxChainLevels:          3,
			SLReductionPerLevel:     0.5,
			RecoveryWindowMinutes:   30,
			SLHuntOffsetPips:        1,
			SLHuntCooldownSeconds:   60,
			TPContinuationGapPips:   2,
			MonitorIntervalSeconds:  30,
			SLHuntEnabled:           true,
			TPContinuationEnabled:   true,
			ReversalExitEnabled:     true,
			ExitContinuationEnabled: true,
		},
		RRRatio: 1.0,
	}
	return cfg
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

var testTime = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func testLogger() *zap.Logger {
	return zap.NewNop()
}
