package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/fx_reentry_bot/internal/config"
	"github.com/vitos/fx_reentry_bot/internal/domain"
	"github.com/vitos/fx_reentry_bot/internal/usecase"
	"go.uber.org/zap"
)

type stubBroker struct{}

func (stubBroker) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return 1.1000, nil
}
func (stubBroker) AccountBalance(ctx context.Context) (float64, error) { return 10000, nil }
func (stubBroker) OpenOrder(ctx context.Context, symbol string, direction domain.TradeDirection, lot, entry, sl, tp float64, comment string) (int64, error) {
	return 1001, nil
}
func (stubBroker) CloseOrder(ctx context.Context, ticket int64) error { return nil }

type stubRepo struct{}

func (stubRepo) SaveTrade(ctx context.Context, trade *domain.Trade) error { return nil }
func (stubRepo) ListTrades(ctx context.Context, limit int) ([]*domain.Trade, error) {
	return nil, nil
}
func (stubRepo) SaveChain(ctx context.Context, chain *domain.ReEntryChain) error { return nil }
func (stubRepo) SaveRiskStats(ctx context.Context, stats *domain.RiskStats) error { return nil }
func (stubRepo) GetRiskStats(ctx context.Context) (*domain.RiskStats, error) {
	return &domain.RiskStats{}, nil
}
func (stubRepo) SaveReversalExit(ctx context.Context, ev *domain.ReversalExitEvent) error {
	return nil
}
func (stubRepo) SaveReentryEvent(ctx context.Context, ev *domain.ReentryEvent) error { return nil }

type stubNotifier struct{}

func (stubNotifier) Notify(text string) {}

func testServerConfig() *config.Config {
	return &config.Config{
		RiskTiers: map[string]config.RiskTier{
			"10000": {PerTradeCap: 45, DailyLossLimit: 225, MaxTotalLoss: 450, FixedLot: 0.1},
		},
		DefaultTier: "10000",
		Symbols: map[string]config.SymbolConfig{
			"EURUSD": {PipSize: 0.0001, PipValuePerStdLot: 10, MinSLDistance: 0.0005},
		},
		ReEntry: config.ReEntryConfig{
			MaxChainLevels:        3,
			SLReductionPerLevel:   0.5,
			RecoveryWindowMinutes: 30,
			SLHuntCooldownSeconds: 60,
			ReversalExitEnabled:   true,
		},
		RRRatio: 1.0,
	}
}

func newTestServer(t *testing.T) (*Server, *usecase.TrendManager) {
	t.Helper()
	cfg := testServerConfig()
	log := zap.NewNop()
	trends := usecase.NewTrendManager(log)
	risk := usecase.NewRiskManager(cfg, stubRepo{}, log)
	reentry := usecase.NewReEntryManager(cfg, log)
	pips := usecase.NewPipCalculator(cfg)
	exits := usecase.NewReversalExitEvaluator(log)
	monitor := usecase.NewPriceMonitor(cfg, stubBroker{}, trends, log)
	engine := usecase.NewTradingEngine(cfg, stubBroker{}, stubRepo{}, stubNotifier{},
		trends, risk, reentry, pips, exits, monitor, log)
	monitor.SetEngine(engine)
	return NewServer(0, engine, trends, reentry, stubRepo{}, log), trends
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsInvalidPayload(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/webhook", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/webhook",
		`{"type":"tick","symbol":"EURUSD","signal":"buy","tf":"5m","price":1.1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/webhook",
		`{"type":"entry","symbol":"EURUSD","signal":"buy","tf":"5m","price":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookAcceptsSignal(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/webhook",
		`{"type":"bias","symbol":"EURUSD","signal":"bull","tf":"1h"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp["status"])
}

func TestWebhookReportsDuplicate(t *testing.T) {
	s, _ := newTestServer(t)
	payload := `{"type":"bias","symbol":"EURUSD","signal":"bull","tf":"1h"}`

	doRequest(t, s, http.MethodPost, "/webhook", payload)
	rec := doRequest(t, s, http.MethodPost, "/webhook", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "rejected", resp["status"])
	assert.Equal(t, "duplicate", resp["reason"])
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status usecase.EngineStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Paused)
	assert.Equal(t, 0, status.OpenTrades)
}

func TestPauseResume(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/status", "")
	var status usecase.EngineStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Paused)

	doRequest(t, s, http.MethodPost, "/resume", "")
	rec = doRequest(t, s, http.MethodGet, "/status", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Paused)
}

func TestManualTrendEndpoints(t *testing.T) {
	s, trends := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/trends/manual",
		`{"symbol":"EURUSD","tf":"1h","trend":"BULLISH"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	entry := trends.GetTrend("EURUSD", domain.Timeframe1h)
	assert.Equal(t, domain.TrendBullish, entry.Direction)
	assert.Equal(t, domain.ModeManual, entry.Mode)

	rec = doRequest(t, s, http.MethodPost, "/trends/manual",
		`{"symbol":"EURUSD","tf":"1h","trend":"SIDEWAYS"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/trends/auto",
		`{"symbol":"EURUSD","tf":"1h"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ModeAuto, trends.GetTrend("EURUSD", domain.Timeframe1h).Mode)
}

func TestTrendsEndpointRequiresSymbol(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/trends", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/trends?symbol=EURUSD", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
