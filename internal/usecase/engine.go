package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/fx_reentry_bot/internal/config"
	"github.com/vitos/fx_reentry_bot/internal/domain"
	"go.uber.org/zap"
)

// ErrDuplicateSignal marks an identical signal received inside the
// suppression window.
var ErrDuplicateSignal = errors.New("duplicate signal suppressed")

// signalDedupeWindow suppresses webhook retries and duplicated alerts.
// Identity is (kind, symbol, timeframe, direction); price wobble between
// retries does not make a signal new.
const signalDedupeWindow = 5 * time.Minute

// EngineStatus is the snapshot served by the web status endpoint.
type EngineStatus struct {
	Paused        bool                  `json:"paused"`
	OpenTrades    int                   `json:"open_trades"`
	ActiveChains  int                   `json:"active_chains"`
	LogicEnabled  map[domain.Logic]bool `json:"logic_enabled"`
	RiskStats     domain.RiskStats      `json:"risk_stats"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
}

// TradingEngine is the decision core: it consumes validated signals,
// closes contradicted positions, gates entries through trend alignment
// and risk, and opens fresh or chained re-entry trades. One mutex
// serializes the signal path against monitor callbacks and the open
// trade poll.
type TradingEngine struct {
	mu       sync.Mutex
	cfg      *config.Config
	broker   domain.Broker
	repo     domain.TradeRepository
	notifier domain.Notifier
	trends   *TrendManager
	risk     *RiskManager
	reentry  *ReEntryManager
	pips     *PipCalculator
	exits    *ReversalExitEvaluator
	monitor  *PriceMonitor
	logger   *zap.Logger
	now      func() time.Time

	openTrades    map[domain.TradeID]*domain.Trade
	recentSignals map[string]time.Time
	paused        bool
	logicEnabled  map[domain.Logic]bool
	startedAt     time.Time
}

func NewTradingEngine(
	cfg *config.Config,
	broker domain.Broker,
	repo domain.TradeRepository,
	notifier domain.Notifier,
	trends *TrendManager,
	risk *RiskManager,
	reentry *ReEntryManager,
	pips *PipCalculator,
	exits *ReversalExitEvaluator,
	monitor *PriceMonitor,
	logger *zap.Logger,
) *TradingEngine {
	return &TradingEngine{
		cfg:           cfg,
		broker:        broker,
		repo:          repo,
		notifier:      notifier,
		trends:        trends,
		risk:          risk,
		reentry:       reentry,
		pips:          pips,
		exits:         exits,
		monitor:       monitor,
		logger:        logger,
		now:           time.Now,
		openTrades:    make(map[domain.TradeID]*domain.Trade),
		recentSignals: make(map[string]time.Time),
		logicEnabled: map[domain.Logic]bool{
			domain.Logic1: true,
			domain.Logic2: true,
			domain.Logic3: true,
		},
		startedAt: time.Now(),
	}
}

func (e *TradingEngine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// ProcessSignal runs the full decision path for one signal: duplicate
// suppression, trend update, reversal exits, then entry handling.
func (e *TradingEngine) ProcessSignal(ctx context.Context, sig domain.Signal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.isDuplicateLocked(sig) {
		e.logger.Debug("Duplicate signal suppressed",
			zap.String("symbol", sig.Symbol), zap.String("kind", string(sig.Kind)))
		return ErrDuplicateSignal
	}

	e.logger.Info("Processing signal",
		zap.String("kind", string(sig.Kind)), zap.String("symbol", sig.Symbol),
		zap.String("timeframe", string(sig.Timeframe)), zap.String("direction", string(sig.Direction)),
		zap.Float64("price", sig.Price))

	// Only bias and trend signals feed the trend table. Entry signals are
	// judged against it and must not satisfy their own alignment check.
	switch sig.Kind {
	case domain.KindBias, domain.KindTrend:
		e.trends.UpdateTrend(sig.Symbol, sig.Timeframe, sig.Direction, domain.ModeAuto)
	}

	if e.cfg.ReEntry.ReversalExitEnabled {
		e.handleReversalExitsLocked(ctx, sig)
	}

	if sig.Kind != domain.KindEntry {
		return nil
	}
	return e.handleEntryLocked(ctx, sig)
}

func (e *TradingEngine) isDuplicateLocked(sig domain.Signal) bool {
	now := e.now()
	for key, seen := range e.recentSignals {
		if now.Sub(seen) > signalDedupeWindow {
			delete(e.recentSignals, key)
		}
	}
	key := fmt.Sprintf("%s|%s|%s|%s", sig.Kind, sig.Symbol, sig.Timeframe, sig.Direction)
	if _, ok := e.recentSignals[key]; ok {
		return true
	}
	e.recentSignals[key] = now
	return false
}

func (e *TradingEngine) handleReversalExitsLocked(ctx context.Context, sig domain.Signal) {
	open := make([]domain.Trade, 0, len(e.openTrades))
	for _, t := range e.openTrades {
		open = append(open, *t)
	}
	for _, decision := range e.exits.Evaluate(sig, open) {
		trade, ok := e.openTrades[decision.Trade.ID]
		if !ok {
			continue
		}
		price := decision.ExitPrice
		if price <= 0 {
			fetched, err := e.broker.CurrentPrice(ctx, trade.Symbol)
			if err != nil {
				e.logger.Error("Price fetch failed for reversal exit", zap.Error(err))
				continue
			}
			price = fetched
		}
		if err := e.closeTradeLocked(ctx, trade, price, decision.Reason); err != nil {
			continue
		}
		if e.cfg.ReEntry.ExitContinuationEnabled && ContinuationEligible(decision.Reason) {
			if dir, ok := ContinuationDirection(decision.Reason); ok {
				e.monitor.RegisterExitContinuation(trade.Symbol, dir, price, decision.Reason,
					trade.Strategy, timeframeForLogic(trade.Strategy))
			}
		}
	}
}

// timeframeForLogic is the entry timeframe a logic trades on.
func timeframeForLogic(logic domain.Logic) domain.Timeframe {
	switch logic {
	case domain.Logic2:
		return domain.Timeframe15m
	case domain.Logic3:
		return domain.Timeframe1h
	}
	return domain.Timeframe5m
}

func (e *TradingEngine) handleEntryLocked(ctx context.Context, sig domain.Signal) error {
	if e.paused {
		e.logger.Info("Trading paused, entry ignored", zap.String("symbol", sig.Symbol))
		return nil
	}

	logic, ok := LogicForTimeframe(sig.Timeframe)
	if !ok {
		e.logger.Warn("No logic bound to entry timeframe",
			zap.String("timeframe", string(sig.Timeframe)))
		return nil
	}
	if !e.logicEnabled[logic] {
		e.logger.Info("Logic disabled, entry ignored",
			zap.String("logic", string(logic)), zap.String("symbol", sig.Symbol))
		return nil
	}

	direction := sig.TradeDirection()
	alignment := e.trends.CheckLogicAlignment(sig.Symbol, logic)
	if !alignment.Aligned || !directionMatchesTrend(direction, alignment.Direction) {
		e.logger.Info("Entry rejected, trend alignment missing",
			zap.String("symbol", sig.Symbol), zap.String("logic", string(logic)),
			zap.Bool("aligned", alignment.Aligned), zap.String("trend", string(alignment.Direction)))
		e.notifier.Notify(fmt.Sprintf("Entry %s %s skipped: %s trends not aligned", sig.Symbol, direction, logic))
		return nil
	}

	balance, err := e.broker.AccountBalance(ctx)
	if err != nil {
		e.logger.Error("Balance fetch failed", zap.Error(err))
		return fmt.Errorf("fetch balance: %w", err)
	}
	if err := e.risk.CanTrade(balance); err != nil {
		e.logger.Warn("Entry blocked by risk gate", zap.Error(err))
		e.notifier.Notify(fmt.Sprintf("Entry %s %s blocked: %v", sig.Symbol, direction, err))
		return nil
	}

	if opp, ok := e.reentry.CheckReentryOpportunity(sig.Symbol, direction, sig.Price); ok {
		return e.openReentryLocked(ctx, sig.Symbol, direction, sig.Price, balance, opp, logic)
	}
	return e.openFreshLocked(ctx, sig.Symbol, direction, sig.Price, balance, logic)
}

func directionMatchesTrend(direction domain.TradeDirection, trend domain.TrendDirection) bool {
	if direction == domain.DirectionBuy {
		return trend == domain.TrendBullish
	}
	return trend == domain.TrendBearish
}

func (e *TradingEngine) openFreshLocked(ctx context.Context, symbol string, direction domain.TradeDirection, price, balance float64, logic domain.Logic) error {
	lot := e.risk.PositionSize(balance)
	dist, err := e.pips.StopDistance(symbol, balance, lot)
	if err != nil {
		e.logger.Error("Stop distance calculation failed", zap.String("symbol", symbol), zap.Error(err))
		return err
	}
	sl := e.pips.StopLossPrice(price, dist, direction)
	tp := e.pips.TakeProfitPrice(price, sl, direction)

	comment := fmt.Sprintf("%s L1", logic)
	ticket, err := e.broker.OpenOrder(ctx, symbol, direction, lot, price, sl, tp, comment)
	if err != nil {
		e.logger.Error("Order open failed", zap.String("symbol", symbol), zap.Error(err))
		e.notifier.Notify(fmt.Sprintf("Order open failed %s %s: %v", symbol, direction, err))
		return fmt.Errorf("open order: %w", err)
	}

	trade := &domain.Trade{
		ID:           domain.TradeID(uuid.NewString()),
		BrokerTicket: ticket,
		Symbol:       symbol,
		Direction:    direction,
		Entry:        price,
		StopLoss:     sl,
		TakeProfit:   tp,
		LotSize:      lot,
		Strategy:     logic,
		Status:       domain.TradeOpen,
		ChainLevel:   1,
		OpenedAt:     e.now(),
	}
	chain := e.reentry.CreateChain(symbol, direction, price, dist, trade.ID)
	trade.ChainID = chain.ID
	e.openTrades[trade.ID] = trade

	e.persistTradeLocked(ctx, trade)
	e.persistChainLocked(ctx, chain.ID)
	e.logger.Info("Trade opened",
		zap.String("trade_id", string(trade.ID)), zap.String("symbol", symbol),
		zap.String("direction", string(direction)), zap.Float64("entry", price),
		zap.Float64("sl", sl), zap.Float64("tp", tp), zap.Float64("lot", lot),
		zap.String("chain_id", string(chain.ID)))
	e.notifier.Notify(fmt.Sprintf("Opened %s %s %.2f lots @ %.5f (SL %.5f, TP %.5f, %s)",
		symbol, direction, lot, price, sl, tp, logic))
	return nil
}

func (e *TradingEngine) openReentryLocked(ctx context.Context, symbol string, direction domain.TradeDirection, price, balance float64, opp ReentryOpportunity, logic domain.Logic) error {
	lot := e.risk.PositionSize(balance)
	dist := opp.OriginalStopDistance * opp.SLAdjustment
	if symCfg, ok := e.cfg.Symbol(symbol); ok && dist < symCfg.MinSLDistance {
		dist = symCfg.MinSLDistance
	}
	sl := e.pips.StopLossPrice(price, dist, direction)
	tp := e.pips.TakeProfitPrice(price, sl, direction)

	comment := fmt.Sprintf("%s L%d %s", logic, opp.Level, opp.Kind)
	ticket, err := e.broker.OpenOrder(ctx, symbol, direction, lot, price, sl, tp, comment)
	if err != nil {
		e.logger.Error("Re-entry order open failed",
			zap.String("symbol", symbol), zap.String("chain_id", string(opp.ChainID)), zap.Error(err))
		e.notifier.Notify(fmt.Sprintf("Re-entry open failed %s %s: %v", symbol, direction, err))
		return fmt.Errorf("open re-entry order: %w", err)
	}

	trade := &domain.Trade{
		ID:           domain.TradeID(uuid.NewString()),
		BrokerTicket: ticket,
		Symbol:       symbol,
		Direction:    direction,
		Entry:        price,
		StopLoss:     sl,
		TakeProfit:   tp,
		LotSize:      lot,
		Strategy:     logic,
		Status:       domain.TradeOpen,
		ChainID:      opp.ChainID,
		ChainLevel:   opp.Level,
		IsReEntry:    true,
		OpenedAt:     e.now(),
	}

	if !e.reentry.CommitReentry(opp, trade.ID) {
		// Chain filled up between the opportunity check and the open.
		e.logger.Warn("Chain advance refused, closing just-opened order",
			zap.String("chain_id", string(opp.ChainID)))
		if closeErr := e.broker.CloseOrder(ctx, ticket); closeErr != nil {
			e.logger.Error("Rollback close failed", zap.Int64("ticket", ticket), zap.Error(closeErr))
		}
		return fmt.Errorf("chain %s at maximum level", opp.ChainID)
	}
	e.openTrades[trade.ID] = trade

	// The chain moved on; a still-armed monitor for it is stale.
	e.monitor.StopSLHunt(opp.ChainID)
	e.monitor.StopTPContinuation(opp.ChainID)

	e.persistTradeLocked(ctx, trade)
	e.persistChainLocked(ctx, opp.ChainID)
	if e.repo != nil {
		ev := &domain.ReentryEvent{
			ChainID:        opp.ChainID,
			Symbol:         symbol,
			Kind:           opp.Kind,
			Level:          opp.Level,
			Price:          price,
			SLReductionPct: 1 - opp.SLAdjustment,
			At:             e.now(),
		}
		if err := e.repo.SaveReentryEvent(ctx, ev); err != nil {
			e.logger.Error("Failed to persist re-entry event", zap.Error(err))
		}
	}

	e.logger.Info("Re-entry trade opened",
		zap.String("trade_id", string(trade.ID)), zap.String("chain_id", string(opp.ChainID)),
		zap.String("kind", opp.Kind), zap.Int("level", opp.Level),
		zap.Float64("sl_adjustment", opp.SLAdjustment), zap.Float64("entry", price))
	e.notifier.Notify(fmt.Sprintf("Re-entry %s level %d (%s): %s %s @ %.5f, SL %.5f",
		opp.ChainID, opp.Level, opp.Kind, symbol, direction, price, sl))
	return nil
}

// ExecuteReentry is the price monitor's entry point: a fired SL-hunt or
// TP-continuation trigger re-enters the chain at the next level.
func (e *TradingEngine) ExecuteReentry(ctx context.Context, kind string, symbol string, direction domain.TradeDirection, price float64, chainID domain.ChainID, logic domain.Logic) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		e.logger.Info("Trading paused, monitor re-entry ignored", zap.String("chain_id", string(chainID)))
		return nil
	}

	chain, ok := e.reentry.Chain(chainID)
	if !ok {
		return fmt.Errorf("unknown chain %s", chainID)
	}
	if chain.CurrentLevel >= chain.MaxLevel {
		return fmt.Errorf("chain %s at maximum level", chainID)
	}

	balance, err := e.broker.AccountBalance(ctx)
	if err != nil {
		return fmt.Errorf("fetch balance: %w", err)
	}
	if err := e.risk.CanTrade(balance); err != nil {
		e.logger.Warn("Monitor re-entry blocked by risk gate", zap.Error(err))
		e.notifier.Notify(fmt.Sprintf("Re-entry %s blocked: %v", chainID, err))
		return nil
	}

	level := chain.CurrentLevel + 1
	opp := ReentryOpportunity{
		Kind:                 kind,
		ChainID:              chainID,
		Level:                level,
		SLAdjustment:         e.reentry.SLAdjustment(level),
		OriginalStopDistance: chain.OriginalStopDistance,
		symbol:               symbol,
	}
	return e.openReentryLocked(ctx, symbol, direction, price, balance, opp, logic)
}

// CheckOpenTrades polls the broker price for every open position and
// closes those whose stop or target level has been crossed. SL hits arm
// the hunt recovery path; TP hits arm continuation.
func (e *TradingEngine) CheckOpenTrades(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prices := make(map[string]float64)
	for _, trade := range e.openTrades {
		if _, ok := prices[trade.Symbol]; ok {
			continue
		}
		price, err := e.broker.CurrentPrice(ctx, trade.Symbol)
		if err != nil {
			e.logger.Warn("Price fetch failed during open trade poll",
				zap.String("symbol", trade.Symbol), zap.Error(err))
			continue
		}
		prices[trade.Symbol] = price
	}

	for _, trade := range e.openTrades {
		price, ok := prices[trade.Symbol]
		if !ok {
			continue
		}
		switch {
		case stopLossHit(trade, price):
			if err := e.closeTradeLocked(ctx, trade, trade.StopLoss, domain.ExitStopLossHit); err != nil {
				continue
			}
			e.reentry.RecordSlHit(trade.ChainID, trade.Symbol, trade.Direction, trade.StopLoss)
			if e.cfg.ReEntry.SLHuntEnabled {
				e.monitor.RegisterSLHunt(trade.Symbol, trade.Direction, trade.StopLoss, trade.ChainID, trade.Strategy)
			}
		case takeProfitHit(trade, price):
			if err := e.closeTradeLocked(ctx, trade, trade.TakeProfit, domain.ExitTakeProfitHit); err != nil {
				continue
			}
			profit := e.pips.PnL(trade.Symbol, trade.Direction, trade.Entry, trade.TakeProfit, trade.LotSize)
			e.reentry.RecordTpHit(trade.ChainID, trade.Symbol, trade.Direction, trade.TakeProfit, profit)
			if e.cfg.ReEntry.TPContinuationEnabled {
				e.monitor.RegisterTPContinuation(trade.Symbol, trade.Direction, trade.TakeProfit, trade.ChainID, trade.Strategy)
			}
		}
	}
}

func stopLossHit(trade *domain.Trade, price float64) bool {
	if trade.Direction == domain.DirectionBuy {
		return price <= trade.StopLoss
	}
	return price >= trade.StopLoss
}

func takeProfitHit(trade *domain.Trade, price float64) bool {
	if trade.Direction == domain.DirectionBuy {
		return price >= trade.TakeProfit
	}
	return price <= trade.TakeProfit
}

// closeTradeLocked closes the broker position and finalizes the trade
// record. A failed broker close leaves the trade open for the next pass.
func (e *TradingEngine) closeTradeLocked(ctx context.Context, trade *domain.Trade, price float64, reason domain.ExitReason) error {
	if err := e.broker.CloseOrder(ctx, trade.BrokerTicket); err != nil {
		e.logger.Error("Order close failed, will retry",
			zap.String("trade_id", string(trade.ID)), zap.Int64("ticket", trade.BrokerTicket), zap.Error(err))
		return err
	}

	trade.Status = domain.TradeClosed
	trade.ClosedAt = e.now()
	trade.PnL = e.pips.PnL(trade.Symbol, trade.Direction, trade.Entry, price, trade.LotSize)
	delete(e.openTrades, trade.ID)

	e.risk.RecordOutcome(ctx, trade.PnL)
	e.persistTradeLocked(ctx, trade)
	if e.repo != nil && reason != domain.ExitStopLossHit && reason != domain.ExitTakeProfitHit {
		ev := &domain.ReversalExitEvent{
			TradeID:   trade.ID,
			Symbol:    trade.Symbol,
			ExitPrice: price,
			Reason:    reason,
			PnL:       trade.PnL,
			At:        e.now(),
		}
		if err := e.repo.SaveReversalExit(ctx, ev); err != nil {
			e.logger.Error("Failed to persist reversal exit", zap.Error(err))
		}
	}

	e.logger.Info("Trade closed",
		zap.String("trade_id", string(trade.ID)), zap.String("symbol", trade.Symbol),
		zap.String("reason", string(reason)), zap.Float64("exit", price), zap.Float64("pnl", trade.PnL))
	e.notifier.Notify(fmt.Sprintf("Closed %s %s @ %.5f (%s), PnL %.2f",
		trade.Symbol, trade.Direction, price, reason, trade.PnL))
	return nil
}

func (e *TradingEngine) persistTradeLocked(ctx context.Context, trade *domain.Trade) {
	if e.repo == nil {
		return
	}
	copied := *trade
	if err := e.repo.SaveTrade(ctx, &copied); err != nil {
		e.logger.Error("Failed to persist trade", zap.String("trade_id", string(trade.ID)), zap.Error(err))
	}
}

func (e *TradingEngine) persistChainLocked(ctx context.Context, chainID domain.ChainID) {
	if e.repo == nil {
		return
	}
	chain, ok := e.reentry.Chain(chainID)
	if !ok {
		return
	}
	if err := e.repo.SaveChain(ctx, &chain); err != nil {
		e.logger.Error("Failed to persist chain", zap.String("chain_id", string(chainID)), zap.Error(err))
	}
}

// Pause stops new entries; open positions keep being managed.
func (e *TradingEngine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
	e.logger.Info("Trading paused")
}

func (e *TradingEngine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = false
	e.logger.Info("Trading resumed")
}

func (e *TradingEngine) EnableLogic(logic domain.Logic) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logicEnabled[logic] = true
}

func (e *TradingEngine) DisableLogic(logic domain.Logic) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logicEnabled[logic] = false
}

// OpenTrades returns copies of all open positions.
func (e *TradingEngine) OpenTrades() []domain.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]domain.Trade, 0, len(e.openTrades))
	for _, t := range e.openTrades {
		result = append(result, *t)
	}
	return result
}

func (e *TradingEngine) Status() EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	enabled := make(map[domain.Logic]bool, len(e.logicEnabled))
	for k, v := range e.logicEnabled {
		enabled[k] = v
	}
	active := 0
	for _, chain := range e.reentry.ActiveChains() {
		if chain.Status == domain.ChainActive {
			active++
		}
	}
	return EngineStatus{
		Paused:        e.paused,
		OpenTrades:    len(e.openTrades),
		ActiveChains:  active,
		LogicEnabled:  enabled,
		RiskStats:     e.risk.Stats(),
		UptimeSeconds: int64(e.now().Sub(e.startedAt).Seconds()),
	}
}
