package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/vitos/fx_reentry_bot/internal/config"
	"github.com/vitos/fx_reentry_bot/internal/domain"
	"go.uber.org/zap"
)

// signalExecutor is the engine surface the monitor fires into.
type signalExecutor interface {
	ExecuteReentry(ctx context.Context, kind string, symbol string, direction domain.TradeDirection, price float64, chainID domain.ChainID, logic domain.Logic) error
	ProcessSignal(ctx context.Context, sig domain.Signal) error
}

// SLHuntMonitor waits for price to recover past a hunted stop before
// re-entering the chain.
type SLHuntMonitor struct {
	Symbol    string
	Direction domain.TradeDirection
	SLPrice   float64
	ChainID   domain.ChainID
	Logic     domain.Logic
	ArmedAt   time.Time
}

// TPContinuationMonitor waits for price to push past a hit take-profit
// before continuing the chain.
type TPContinuationMonitor struct {
	Symbol    string
	Direction domain.TradeDirection
	TPPrice   float64
	ChainID   domain.ChainID
	Logic     domain.Logic
	ArmedAt   time.Time
}

// ExitContinuationMonitor waits for price confirmation after a reversal
// exit before entering in the new direction.
type ExitContinuationMonitor struct {
	Symbol    string
	Direction domain.TradeDirection
	ExitPrice float64
	Reason    domain.ExitReason
	Logic     domain.Logic
	Timeframe domain.Timeframe
	ArmedAt   time.Time
}

// PriceMonitor polls broker prices on a fixed interval and fires
// pending re-entry monitors. At most one monitor per symbol and kind;
// re-registering replaces. Each monitor fires at most once; a trigger
// whose trend alignment has gone void is dropped without firing.
type PriceMonitor struct {
	mu       sync.Mutex
	cfg      *config.Config
	broker   domain.Broker
	trends   *TrendManager
	engine   signalExecutor
	slHunt   map[string]SLHuntMonitor
	tpCont   map[string]TPContinuationMonitor
	exitCont map[string]ExitContinuationMonitor
	logger   *zap.Logger
	now      func() time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewPriceMonitor(cfg *config.Config, broker domain.Broker, trends *TrendManager, logger *zap.Logger) *PriceMonitor {
	return &PriceMonitor{
		cfg:      cfg,
		broker:   broker,
		trends:   trends,
		slHunt:   make(map[string]SLHuntMonitor),
		tpCont:   make(map[string]TPContinuationMonitor),
		exitCont: make(map[string]ExitContinuationMonitor),
		logger:   logger,
		now:      time.Now,
	}
}

// SetEngine wires the execution target. Called once at startup; the
// monitor and engine are constructed in either order.
func (p *PriceMonitor) SetEngine(engine signalExecutor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engine = engine
}

func (p *PriceMonitor) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// RegisterSLHunt arms the symbol's SL-hunt monitor, replacing any
// previous one.
func (p *PriceMonitor) RegisterSLHunt(symbol string, direction domain.TradeDirection, slPrice float64, chainID domain.ChainID, logic domain.Logic) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slHunt[symbol] = SLHuntMonitor{
		Symbol: symbol, Direction: direction, SLPrice: slPrice,
		ChainID: chainID, Logic: logic, ArmedAt: p.now(),
	}
	p.logger.Info("SL hunt monitor armed",
		zap.String("chain_id", string(chainID)), zap.String("symbol", symbol), zap.Float64("sl", slPrice))
}

// RegisterTPContinuation arms the symbol's TP-continuation monitor,
// replacing any previous one.
func (p *PriceMonitor) RegisterTPContinuation(symbol string, direction domain.TradeDirection, tpPrice float64, chainID domain.ChainID, logic domain.Logic) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tpCont[symbol] = TPContinuationMonitor{
		Symbol: symbol, Direction: direction, TPPrice: tpPrice,
		ChainID: chainID, Logic: logic, ArmedAt: p.now(),
	}
	p.logger.Info("TP continuation monitor armed",
		zap.String("chain_id", string(chainID)), zap.String("symbol", symbol), zap.Float64("tp", tpPrice))
}

// RegisterExitContinuation arms the symbol's exit-continuation monitor,
// replacing any previous one.
func (p *PriceMonitor) RegisterExitContinuation(symbol string, direction domain.TradeDirection, exitPrice float64, reason domain.ExitReason, logic domain.Logic, tf domain.Timeframe) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exitCont[symbol] = ExitContinuationMonitor{
		Symbol: symbol, Direction: direction, ExitPrice: exitPrice,
		Reason: reason, Logic: logic, Timeframe: tf, ArmedAt: p.now(),
	}
	p.logger.Info("Exit continuation monitor armed",
		zap.String("symbol", symbol), zap.String("direction", string(direction)),
		zap.Float64("exit_price", exitPrice), zap.String("reason", string(reason)))
}

// StopSLHunt disarms the SL-hunt monitor referencing the chain.
func (p *PriceMonitor) StopSLHunt(chainID domain.ChainID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for symbol, m := range p.slHunt {
		if m.ChainID == chainID {
			delete(p.slHunt, symbol)
		}
	}
}

// StopTPContinuation disarms the TP-continuation monitor referencing
// the chain.
func (p *PriceMonitor) StopTPContinuation(chainID domain.ChainID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for symbol, m := range p.tpCont {
		if m.ChainID == chainID {
			delete(p.tpCont, symbol)
		}
	}
}

// StopExitContinuation disarms the symbol's exit-continuation monitor.
func (p *PriceMonitor) StopExitContinuation(symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.exitCont, symbol)
}

// PendingCount reports how many monitors are armed, per kind.
func (p *PriceMonitor) PendingCount() (slHunt, tpCont, exitCont int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slHunt), len(p.tpCont), len(p.exitCont)
}

// Start launches the polling loop. Stop drains the in-flight tick.
func (p *PriceMonitor) Start(ctx context.Context) {
	p.stopChan = make(chan struct{})
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cfg.ReEntry.MonitorInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.CheckPending(ctx)
			case <-p.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (p *PriceMonitor) Stop() {
	if p.stopChan != nil {
		close(p.stopChan)
	}
	p.wg.Wait()
}

// CheckPending runs one monitor pass: snapshot each referenced symbol's
// price once, then evaluate all armed monitors against the snapshot.
func (p *PriceMonitor) CheckPending(ctx context.Context) {
	p.mu.Lock()
	engine := p.engine
	symbols := make(map[string]bool)
	for _, m := range p.slHunt {
		symbols[m.Symbol] = true
	}
	for _, m := range p.tpCont {
		symbols[m.Symbol] = true
	}
	for _, m := range p.exitCont {
		symbols[m.Symbol] = true
	}
	p.mu.Unlock()

	if engine == nil || len(symbols) == 0 {
		return
	}

	prices := make(map[string]float64, len(symbols))
	for symbol := range symbols {
		fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		price, err := p.broker.CurrentPrice(fetchCtx, symbol)
		cancel()
		if err != nil {
			p.logger.Warn("Price fetch failed, skipping symbol this tick",
				zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		prices[symbol] = price
	}

	if p.cfg.ReEntry.SLHuntEnabled {
		p.checkSLHunt(ctx, engine, prices)
	}
	if p.cfg.ReEntry.TPContinuationEnabled {
		p.checkTPContinuation(ctx, engine, prices)
	}
	if p.cfg.ReEntry.ExitContinuationEnabled {
		p.checkExitContinuation(ctx, engine, prices)
	}
}

// alignmentHolds re-validates that the logic's trend alignment still
// supports a trade in the given direction.
func (p *PriceMonitor) alignmentHolds(symbol string, logic domain.Logic, direction domain.TradeDirection) bool {
	alignment := p.trends.CheckLogicAlignment(symbol, logic)
	if !alignment.Aligned {
		return false
	}
	if direction == domain.DirectionBuy {
		return alignment.Direction == domain.TrendBullish
	}
	return alignment.Direction == domain.TrendBearish
}

func (p *PriceMonitor) pipSize(symbol string) float64 {
	if symCfg, ok := p.cfg.Symbol(symbol); ok && symCfg.PipSize > 0 {
		return symCfg.PipSize
	}
	return 0.0001
}

// pastPrice reports whether price has moved beyond the reference level
// in the trade's favor by the given margin.
func pastPrice(direction domain.TradeDirection, price, reference, margin float64) bool {
	if direction == domain.DirectionBuy {
		return price > reference+margin
	}
	return price < reference-margin
}

func (p *PriceMonitor) checkSLHunt(ctx context.Context, engine signalExecutor, prices map[string]float64) {
	p.mu.Lock()
	var triggered []SLHuntMonitor
	for symbol, m := range p.slHunt {
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		offset := p.cfg.ReEntry.SLHuntOffsetPips * p.pipSize(symbol)
		if !pastPrice(m.Direction, price, m.SLPrice, offset) {
			continue
		}
		delete(p.slHunt, symbol)
		if !p.alignmentHolds(symbol, m.Logic, m.Direction) {
			p.logger.Info("SL hunt trigger dropped, alignment void",
				zap.String("chain_id", string(m.ChainID)), zap.String("symbol", symbol))
			continue
		}
		triggered = append(triggered, m)
	}
	p.mu.Unlock()

	for _, m := range triggered {
		price := prices[m.Symbol]
		if err := engine.ExecuteReentry(ctx, ReentrySLRecovery, m.Symbol, m.Direction, price, m.ChainID, m.Logic); err != nil {
			p.logger.Error("SL hunt re-entry failed",
				zap.String("chain_id", string(m.ChainID)), zap.Error(err))
		}
	}
}

func (p *PriceMonitor) checkTPContinuation(ctx context.Context, engine signalExecutor, prices map[string]float64) {
	p.mu.Lock()
	var triggered []TPContinuationMonitor
	for symbol, m := range p.tpCont {
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		gap := p.cfg.ReEntry.TPContinuationGapPips * p.pipSize(symbol)
		if !pastPrice(m.Direction, price, m.TPPrice, gap) {
			continue
		}
		delete(p.tpCont, symbol)
		if !p.alignmentHolds(symbol, m.Logic, m.Direction) {
			p.logger.Info("TP continuation trigger dropped, alignment void",
				zap.String("chain_id", string(m.ChainID)), zap.String("symbol", symbol))
			continue
		}
		triggered = append(triggered, m)
	}
	p.mu.Unlock()

	for _, m := range triggered {
		price := prices[m.Symbol]
		if err := engine.ExecuteReentry(ctx, ReentryTPContinuation, m.Symbol, m.Direction, price, m.ChainID, m.Logic); err != nil {
			p.logger.Error("TP continuation re-entry failed",
				zap.String("chain_id", string(m.ChainID)), zap.Error(err))
		}
	}
}

func (p *PriceMonitor) checkExitContinuation(ctx context.Context, engine signalExecutor, prices map[string]float64) {
	p.mu.Lock()
	var triggered []ExitContinuationMonitor
	for symbol, m := range p.exitCont {
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		gap := p.cfg.ReEntry.TPContinuationGapPips * p.pipSize(symbol)
		if !pastPrice(m.Direction, price, m.ExitPrice, gap) {
			continue
		}
		delete(p.exitCont, symbol)
		if !p.alignmentHolds(symbol, m.Logic, m.Direction) {
			p.logger.Info("Exit continuation trigger dropped, alignment void",
				zap.String("symbol", symbol), zap.String("direction", string(m.Direction)))
			continue
		}
		triggered = append(triggered, m)
	}
	p.mu.Unlock()

	for _, m := range triggered {
		price := prices[m.Symbol]
		dirStr := string(domain.SignalBuy)
		if m.Direction == domain.DirectionSell {
			dirStr = string(domain.SignalSell)
		}
		sig, err := domain.NewSignal(string(domain.KindEntry), m.Symbol, string(m.Timeframe), dirStr, price, p.now())
		if err != nil {
			p.logger.Error("Exit continuation signal build failed", zap.Error(err))
			continue
		}
		if err := engine.ProcessSignal(ctx, sig); err != nil {
			p.logger.Error("Exit continuation entry failed",
				zap.String("symbol", m.Symbol), zap.Error(err))
		}
	}
}
