package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vitos/fx_reentry_bot/internal/domain"
	"github.com/vitos/fx_reentry_bot/internal/usecase"
	"go.uber.org/zap"
)

// Server exposes the webhook ingress and the operator endpoints.
type Server struct {
	engine  *usecase.TradingEngine
	trends  *usecase.TrendManager
	reentry *usecase.ReEntryManager
	repo    domain.TradeRepository
	logger  *zap.Logger
	srv     *http.Server
}

func NewServer(port int, engine *usecase.TradingEngine, trends *usecase.TrendManager, reentry *usecase.ReEntryManager, repo domain.TradeRepository, logger *zap.Logger) *Server {
	s := &Server{
		engine:  engine,
		trends:  trends,
		reentry: reentry,
		repo:    repo,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /trades", s.handleTrades)
	mux.HandleFunc("GET /trends", s.handleTrends)
	mux.HandleFunc("GET /chains", s.handleChains)
	mux.HandleFunc("POST /pause", s.handlePause)
	mux.HandleFunc("POST /resume", s.handleResume)
	mux.HandleFunc("POST /trends/manual", s.handleManualTrend)
	mux.HandleFunc("POST /trends/auto", s.handleAutoTrend)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.logger.Info("Web server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// webhookRequest is the upstream alert payload.
type webhookRequest struct {
	Type   string  `json:"type"`
	Symbol string  `json:"symbol"`
	Signal string  `json:"signal"`
	TF     string  `json:"tf"`
	Price  float64 `json:"price"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	sig, err := domain.NewSignal(req.Type, req.Symbol, req.TF, req.Signal, req.Price, time.Now())
	if err != nil {
		s.logger.Warn("Webhook rejected", zap.Error(err))
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.engine.ProcessSignal(r.Context(), sig); err != nil {
		if errors.Is(err, usecase.ErrDuplicateSignal) {
			s.writeJSON(w, http.StatusOK, map[string]string{"status": "rejected", "reason": "duplicate"})
			return
		}
		s.logger.Error("Signal processing failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	open := s.engine.OpenTrades()
	history, err := s.repo.ListTrades(r.Context(), 100)
	if err != nil {
		s.logger.Error("Trade history fetch failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"open":    open,
		"history": history,
	})
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		s.writeError(w, http.StatusBadRequest, "symbol query parameter required")
		return
	}
	s.writeJSON(w, http.StatusOK, s.trends.AllTrends(symbol))
}

func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.reentry.ActiveChains())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.engine.Pause()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.engine.Resume()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

type manualTrendRequest struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"tf"`
	Trend     string `json:"trend"`
}

func (s *Server) handleManualTrend(w http.ResponseWriter, r *http.Request) {
	var req manualTrendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	tf := domain.Timeframe(req.Timeframe)
	trend := domain.TrendDirection(req.Trend)
	switch trend {
	case domain.TrendBullish, domain.TrendBearish, domain.TrendNeutral:
	default:
		s.writeError(w, http.StatusBadRequest, "trend must be BULLISH, BEARISH or NEUTRAL")
		return
	}
	s.trends.SetManualTrend(req.Symbol, tf, trend)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAutoTrend(w http.ResponseWriter, r *http.Request) {
	var req manualTrendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	s.trends.SetAutoTrend(req.Symbol, domain.Timeframe(req.Timeframe))
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
