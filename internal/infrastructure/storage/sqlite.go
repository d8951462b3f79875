package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/fx_reentry_bot/internal/domain"
)

// SQLiteStore persists trades, chains, risk stats and exit events.
// Implements domain.TradeRepository.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		broker_ticket INTEGER,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		entry REAL,
		stop_loss REAL,
		take_profit REAL,
		lot_size REAL,
		strategy TEXT,
		status TEXT,
		chain_id TEXT,
		chain_level INTEGER,
		is_reentry INTEGER,
		opened_at DATETIME,
		closed_at DATETIME,
		pnl REAL
	);
	CREATE TABLE IF NOT EXISTS chains (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		original_entry REAL,
		original_stop_distance REAL,
		current_level INTEGER,
		max_level INTEGER,
		total_profit REAL,
		trade_ids TEXT,
		status TEXT,
		created_at DATETIME,
		last_update DATETIME
	);
	CREATE TABLE IF NOT EXISTS risk_stats (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		date TEXT,
		daily_loss REAL,
		daily_profit REAL,
		lifetime_loss REAL,
		total_trades INTEGER,
		winning_trades INTEGER
	);
	CREATE TABLE IF NOT EXISTS reversal_exit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trade_id TEXT,
		symbol TEXT,
		exit_price REAL,
		reason TEXT,
		pnl REAL,
		occurred_at DATETIME
	);
	CREATE TABLE IF NOT EXISTS tp_reentry_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chain_id TEXT,
		symbol TEXT,
		kind TEXT,
		level INTEGER,
		price REAL,
		sl_reduction_pct REAL,
		occurred_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	CREATE INDEX IF NOT EXISTS idx_trades_chain ON trades(chain_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveTrade(ctx context.Context, trade *domain.Trade) error {
	query := `INSERT OR REPLACE INTO trades
		(id, broker_ticket, symbol, direction, entry, stop_loss, take_profit, lot_size,
		 strategy, status, chain_id, chain_level, is_reentry, opened_at, closed_at, pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var closedAt any
	if !trade.ClosedAt.IsZero() {
		closedAt = trade.ClosedAt
	}
	_, err := s.db.ExecContext(ctx, query,
		string(trade.ID), trade.BrokerTicket, trade.Symbol, string(trade.Direction),
		trade.Entry, trade.StopLoss, trade.TakeProfit, trade.LotSize,
		string(trade.Strategy), string(trade.Status), string(trade.ChainID),
		trade.ChainLevel, trade.IsReEntry, trade.OpenedAt, closedAt, trade.PnL)
	if err != nil {
		return fmt.Errorf("save trade %s: %w", trade.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListTrades(ctx context.Context, limit int) ([]*domain.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, broker_ticket, symbol, direction, entry, stop_loss, take_profit,
		lot_size, strategy, status, chain_id, chain_level, is_reentry, opened_at, closed_at, pnl
		FROM trades ORDER BY opened_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		var t domain.Trade
		var id, direction, strategy, status, chainID string
		var closedAt sql.NullTime
		if err := rows.Scan(&id, &t.BrokerTicket, &t.Symbol, &direction, &t.Entry,
			&t.StopLoss, &t.TakeProfit, &t.LotSize, &strategy, &status, &chainID,
			&t.ChainLevel, &t.IsReEntry, &t.OpenedAt, &closedAt, &t.PnL); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.ID = domain.TradeID(id)
		t.Direction = domain.TradeDirection(direction)
		t.Strategy = domain.Logic(strategy)
		t.Status = domain.TradeStatus(status)
		t.ChainID = domain.ChainID(chainID)
		if closedAt.Valid {
			t.ClosedAt = closedAt.Time
		}
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

func (s *SQLiteStore) SaveChain(ctx context.Context, chain *domain.ReEntryChain) error {
	tradeIDs := make([]string, len(chain.Trades))
	for i, id := range chain.Trades {
		tradeIDs[i] = string(id)
	}
	query := `INSERT OR REPLACE INTO chains
		(id, symbol, direction, original_entry, original_stop_distance, current_level,
		 max_level, total_profit, trade_ids, status, created_at, last_update)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		string(chain.ID), chain.Symbol, string(chain.Direction),
		chain.OriginalEntry, chain.OriginalStopDistance, chain.CurrentLevel,
		chain.MaxLevel, chain.TotalProfit, strings.Join(tradeIDs, ","),
		string(chain.Status), chain.CreatedAt, chain.LastUpdate)
	if err != nil {
		return fmt.Errorf("save chain %s: %w", chain.ID, err)
	}
	return nil
}

func (s *SQLiteStore) SaveRiskStats(ctx context.Context, stats *domain.RiskStats) error {
	query := `INSERT OR REPLACE INTO risk_stats
		(id, date, daily_loss, daily_profit, lifetime_loss, total_trades, winning_trades)
		VALUES (1, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		stats.Date, stats.DailyLoss, stats.DailyProfit, stats.LifetimeLoss,
		stats.TotalTrades, stats.WinningTrades)
	if err != nil {
		return fmt.Errorf("save risk stats: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRiskStats(ctx context.Context) (*domain.RiskStats, error) {
	query := `SELECT date, daily_loss, daily_profit, lifetime_loss, total_trades, winning_trades
		FROM risk_stats WHERE id = 1`
	var stats domain.RiskStats
	err := s.db.QueryRowContext(ctx, query).Scan(&stats.Date, &stats.DailyLoss,
		&stats.DailyProfit, &stats.LifetimeLoss, &stats.TotalTrades, &stats.WinningTrades)
	if err == sql.ErrNoRows {
		return &domain.RiskStats{Date: time.Now().UTC().Format("2006-01-02")}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get risk stats: %w", err)
	}
	return &stats, nil
}

func (s *SQLiteStore) SaveReversalExit(ctx context.Context, ev *domain.ReversalExitEvent) error {
	query := `INSERT INTO reversal_exit_events
		(trade_id, symbol, exit_price, reason, pnl, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		string(ev.TradeID), ev.Symbol, ev.ExitPrice, string(ev.Reason), ev.PnL, ev.At)
	if err != nil {
		return fmt.Errorf("save reversal exit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveReentryEvent(ctx context.Context, ev *domain.ReentryEvent) error {
	query := `INSERT INTO tp_reentry_events
		(chain_id, symbol, kind, level, price, sl_reduction_pct, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		string(ev.ChainID), ev.Symbol, ev.Kind, ev.Level, ev.Price, ev.SLReductionPct, ev.At)
	if err != nil {
		return fmt.Errorf("save reentry event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
