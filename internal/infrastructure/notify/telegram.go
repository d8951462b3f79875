package notify

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// TelegramNotifier delivers messages through the Bot API. Sends are
// queued and dispatched by a single worker so callers never block;
// messages are dropped when the queue is full.
type TelegramNotifier struct {
	token  string
	chatID int64
	client *http.Client
	queue  chan string
	done   chan struct{}
	logger *zap.Logger
}

func NewTelegramNotifier(token string, chatID int64, logger *zap.Logger) *TelegramNotifier {
	n := &TelegramNotifier{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
		queue:  make(chan string, 64),
		done:   make(chan struct{}),
		logger: logger,
	}
	go n.worker()
	return n
}

func (n *TelegramNotifier) Notify(text string) {
	if n.token == "" {
		return
	}
	select {
	case n.queue <- text:
	default:
		n.logger.Warn("Notification queue full, message dropped")
	}
}

func (n *TelegramNotifier) worker() {
	for {
		select {
		case text := <-n.queue:
			if err := n.send(text); err != nil {
				n.logger.Error("Telegram send failed", zap.Error(err))
			}
		case <-n.done:
			return
		}
	}
}

func (n *TelegramNotifier) send(text string) error {
	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.token)
	resp, err := n.client.PostForm(endpoint, url.Values{
		"chat_id": {strconv.FormatInt(n.chatID, 10)},
		"text":    {text},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram responded %d", resp.StatusCode)
	}
	return nil
}

func (n *TelegramNotifier) Close() {
	close(n.done)
}
