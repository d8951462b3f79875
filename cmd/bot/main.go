package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/fx_reentry_bot/internal/config"
	"github.com/vitos/fx_reentry_bot/internal/infrastructure/broker"
	"github.com/vitos/fx_reentry_bot/internal/infrastructure/logger"
	"github.com/vitos/fx_reentry_bot/internal/infrastructure/notify"
	"github.com/vitos/fx_reentry_bot/internal/infrastructure/storage"
	"github.com/vitos/fx_reentry_bot/internal/usecase"
	"github.com/vitos/fx_reentry_bot/internal/web"
	"go.uber.org/zap"
)

const openTradePollInterval = 5 * time.Second

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var zlog *zap.Logger
	if cfg.Logging.File != "" {
		zlog, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		zlog, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zlog.Sync()

	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		zlog.Fatal("Failed to open storage", zap.Error(err))
	}
	defer store.Close()

	mt5 := broker.NewMT5Bridge(cfg.Broker.RESTEndpoint, cfg.Broker.WSEndpoint,
		cfg.Broker.Login, cfg.Broker.Simulate, zlog)
	notifier := notify.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID, zlog)
	defer notifier.Close()

	trends := usecase.NewTrendManager(zlog)
	risk := usecase.NewRiskManager(cfg, store, zlog)
	reentry := usecase.NewReEntryManager(cfg, zlog)
	pips := usecase.NewPipCalculator(cfg)
	exits := usecase.NewReversalExitEvaluator(zlog)
	monitor := usecase.NewPriceMonitor(cfg, mt5, trends, zlog)
	engine := usecase.NewTradingEngine(cfg, mt5, store, notifier, trends, risk, reentry, pips, exits, monitor, zlog)
	monitor.SetEngine(engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	symbols := make([]string, 0, len(cfg.Symbols))
	for symbol := range cfg.Symbols {
		symbols = append(symbols, symbol)
	}
	mt5.StartPriceStream(symbols)
	monitor.Start(ctx)

	go func() {
		ticker := time.NewTicker(openTradePollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				engine.CheckOpenTrades(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	server := web.NewServer(cfg.Server.Port, engine, trends, reentry, store, zlog)
	go func() {
		if err := server.Start(); err != nil {
			zlog.Fatal("Web server failed", zap.Error(err))
		}
	}()

	zlog.Info("Bot started",
		zap.Int("port", cfg.Server.Port),
		zap.Bool("simulate", cfg.Broker.Simulate),
		zap.Int("symbols", len(symbols)))
	notifier.Notify("Bot started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("Shutting down")
	cancel()
	monitor.Stop()
	mt5.StopPriceStream()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("Web server shutdown failed", zap.Error(err))
	}
	zlog.Info("Bot stopped")
}
