package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/fx_reentry_bot/internal/domain"
	"go.uber.org/zap"
)

// MT5Bridge talks to an MT5 terminal bridge over REST for orders and
// account state, plus an optional websocket tick stream. Simulate mode
// serves cached stream prices and pseudo tickets without touching the
// terminal.
type MT5Bridge struct {
	restEndpoint string
	wsEndpoint   string
	login        int64
	simulate     bool
	client       *http.Client
	logger       *zap.Logger

	mu         sync.RWMutex
	lastPrices map[string]float64
	onPrice    func(symbol string, price float64)

	wsStop     chan struct{}
	wsDone     chan struct{}
	nextTicket int64
}

func NewMT5Bridge(restEndpoint, wsEndpoint string, login int64, simulate bool, logger *zap.Logger) *MT5Bridge {
	return &MT5Bridge{
		restEndpoint: restEndpoint,
		wsEndpoint:   wsEndpoint,
		login:        login,
		simulate:     simulate,
		client:       &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
		lastPrices:   make(map[string]float64),
		nextTicket:   1000000,
	}
}

type priceResponse struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

type balanceResponse struct {
	Balance float64 `json:"balance"`
	Equity  float64 `json:"equity"`
}

type orderRequest struct {
	Symbol     string  `json:"symbol"`
	Action     string  `json:"action"`
	Lot        float64 `json:"lot"`
	Price      float64 `json:"price"`
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
	Comment    string  `json:"comment"`
	Login      int64   `json:"login"`
}

type orderResponse struct {
	Ticket  int64  `json:"ticket"`
	Error   string `json:"error,omitempty"`
	Success bool   `json:"success"`
}

func (b *MT5Bridge) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.restEndpoint+path, nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bridge %s: status %d: %s", path, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (b *MT5Bridge) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.restEndpoint+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bridge %s: status %d: %s", path, resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (b *MT5Bridge) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if b.simulate {
		b.mu.RLock()
		price, ok := b.lastPrices[symbol]
		b.mu.RUnlock()
		if !ok {
			return 0, fmt.Errorf("no simulated price for %s", symbol)
		}
		return price, nil
	}

	var resp priceResponse
	if err := b.getJSON(ctx, "/price/"+symbol, &resp); err != nil {
		return 0, fmt.Errorf("fetch price %s: %w", symbol, err)
	}
	if resp.Bid <= 0 {
		return 0, fmt.Errorf("bridge returned zero price for %s", symbol)
	}
	price := (resp.Bid + resp.Ask) / 2
	b.mu.Lock()
	b.lastPrices[symbol] = price
	b.mu.Unlock()
	return price, nil
}

func (b *MT5Bridge) AccountBalance(ctx context.Context) (float64, error) {
	if b.simulate {
		return 10000, nil
	}
	var resp balanceResponse
	if err := b.getJSON(ctx, "/account", &resp); err != nil {
		return 0, fmt.Errorf("fetch balance: %w", err)
	}
	return resp.Balance, nil
}

func (b *MT5Bridge) OpenOrder(ctx context.Context, symbol string, direction domain.TradeDirection, lot, entry, sl, tp float64, comment string) (int64, error) {
	if b.simulate {
		b.mu.Lock()
		b.nextTicket++
		ticket := b.nextTicket
		b.mu.Unlock()
		b.logger.Info("Simulated order opened",
			zap.String("symbol", symbol), zap.String("direction", string(direction)),
			zap.Int64("ticket", ticket))
		return ticket, nil
	}

	req := orderRequest{
		Symbol:     symbol,
		Action:     string(direction),
		Lot:        lot,
		Price:      entry,
		StopLoss:   sl,
		TakeProfit: tp,
		Comment:    comment,
		Login:      b.login,
	}
	var resp orderResponse
	if err := b.postJSON(ctx, "/order/open", req, &resp); err != nil {
		return 0, fmt.Errorf("open order %s %s: %w", symbol, direction, err)
	}
	if !resp.Success {
		return 0, fmt.Errorf("open order %s %s rejected: %s", symbol, direction, resp.Error)
	}
	return resp.Ticket, nil
}

func (b *MT5Bridge) CloseOrder(ctx context.Context, ticket int64) error {
	if b.simulate {
		b.logger.Info("Simulated order closed", zap.Int64("ticket", ticket))
		return nil
	}
	var resp orderResponse
	if err := b.postJSON(ctx, "/order/close", map[string]int64{"ticket": ticket, "login": b.login}, &resp); err != nil {
		return fmt.Errorf("close order %d: %w", ticket, err)
	}
	if !resp.Success {
		return fmt.Errorf("close order %d rejected: %s", ticket, resp.Error)
	}
	return nil
}

// OnPriceUpdate sets the tick callback. Must be called before StartPriceStream.
func (b *MT5Bridge) OnPriceUpdate(fn func(symbol string, price float64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPrice = fn
}

type tickMessage struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

// StartPriceStream subscribes to the bridge tick stream and keeps the
// last-price cache warm. Reconnects with backoff until StopPriceStream.
func (b *MT5Bridge) StartPriceStream(symbols []string) {
	if b.wsEndpoint == "" || b.simulate {
		return
	}
	b.wsStop = make(chan struct{})
	b.wsDone = make(chan struct{})
	go func() {
		defer close(b.wsDone)
		backoff := time.Second
		for {
			select {
			case <-b.wsStop:
				return
			default:
			}
			if err := b.streamOnce(symbols); err != nil {
				b.logger.Warn("Price stream disconnected", zap.Error(err))
			}
			jitter := time.Duration(rand.Int63n(int64(time.Second)))
			select {
			case <-b.wsStop:
				return
			case <-time.After(backoff + jitter):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()
}

func (b *MT5Bridge) streamOnce(symbols []string) error {
	conn, _, err := websocket.DefaultDialer.Dial(b.wsEndpoint, nil)
	if err != nil {
		return fmt.Errorf("dial price stream: %w", err)
	}
	defer conn.Close()

	sub := map[string]any{"op": "subscribe", "symbols": symbols}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	for {
		select {
		case <-b.wsStop:
			return nil
		default:
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		var tick tickMessage
		if err := conn.ReadJSON(&tick); err != nil {
			return err
		}
		if tick.Symbol == "" || tick.Bid <= 0 {
			continue
		}
		price := (tick.Bid + tick.Ask) / 2
		b.mu.Lock()
		b.lastPrices[tick.Symbol] = price
		fn := b.onPrice
		b.mu.Unlock()
		if fn != nil {
			fn(tick.Symbol, price)
		}
	}
}

func (b *MT5Bridge) StopPriceStream() {
	if b.wsStop == nil {
		return
	}
	close(b.wsStop)
	<-b.wsDone
}

// SetSimulatedPrice seeds the price cache in simulate mode.
func (b *MT5Bridge) SetSimulatedPrice(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastPrices[symbol] = price
}
