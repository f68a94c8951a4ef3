// Package telegram delivers outbound notifications through the Telegram
// Bot API. SendMessage is the single transport primitive; the richer
// helpers compose HTML payloads over it and swallow delivery failures, so
// a dead bot never blocks a caller.
package telegram

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"vantage/internal/config"
)

const (
	apiBaseURL  = "https://api.telegram.org"
	sendTimeout = 10 * time.Second
)

// Notifier sends messages to a single chat. A notifier built without
// credentials is disabled and every send becomes a silent no-op.
type Notifier struct {
	http   *resty.Client
	chatID string
	log    zerolog.Logger
}

// NewNotifier creates a notifier from bot credentials. Empty credentials
// produce a disabled notifier rather than an error so the service can run
// without a configured channel.
func NewNotifier(cfg config.TelegramConfig, log zerolog.Logger) *Notifier {
	n := &Notifier{
		chatID: cfg.ChatID,
		log:    log.With().Str("component", "telegram").Logger(),
	}
	if cfg.BotToken == "" || cfg.ChatID == "" {
		n.log.Info().Msg("Telegram credentials missing, notifications disabled")
		return n
	}

	n.http = resty.New().
		SetBaseURL(apiBaseURL + "/bot" + cfg.BotToken).
		SetTimeout(sendTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")
	return n
}

// Enabled reports whether the notifier holds working credentials
func (n *Notifier) Enabled() bool {
	return n.http != nil
}

// apiResponse is the Bot API envelope
type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
}

// SendMessage delivers text to the configured chat with HTML parse mode.
// Disabled notifiers return nil immediately.
func (n *Notifier) SendMessage(ctx context.Context, text string) error {
	if !n.Enabled() {
		return nil
	}

	var result apiResponse
	resp, err := n.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"chat_id":                  n.chatID,
			"text":                     text,
			"parse_mode":               "HTML",
			"disable_web_page_preview": true,
		}).
		SetResult(&result).
		SetError(&result).
		Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	if resp.StatusCode() != http.StatusOK || !result.OK {
		return fmt.Errorf("telegram API rejected message: status %d: %s", resp.StatusCode(), result.Description)
	}
	return nil
}

// SendAlert pushes a technical signal notification
func (n *Notifier) SendAlert(ctx context.Context, ticker, signalType, message string) {
	text := fmt.Sprintf("🚨 <b>%s</b> — %s\n%s",
		html.EscapeString(ticker),
		html.EscapeString(signalType),
		html.EscapeString(message))
	n.deliver(ctx, "alert", text)
}

// SendTradeOpened announces a newly activated trade
func (n *Notifier) SendTradeOpened(ctx context.Context, ticker, direction string, entryPrice float64) {
	text := fmt.Sprintf("📂 <b>Trade opened</b>\n%s %s @ %.2f",
		html.EscapeString(ticker),
		html.EscapeString(direction),
		entryPrice)
	n.deliver(ctx, "trade_opened", text)
}

// SendTradeClosed announces a closed trade with its realised result.
// netPnL may be nil when the trade carried no position size.
func (n *Notifier) SendTradeClosed(ctx context.Context, ticker string, exitPrice float64, netPnL *float64) {
	text := fmt.Sprintf("📕 <b>Trade closed</b>\n%s @ %.2f", html.EscapeString(ticker), exitPrice)
	if netPnL != nil {
		emoji := "📈"
		if *netPnL < 0 {
			emoji = "📉"
		}
		text += fmt.Sprintf("\n%s Net P&L: %.2f", emoji, *netPnL)
	}
	n.deliver(ctx, "trade_closed", text)
}

// SendDailySummary wraps a pre-composed body under a summary header
func (n *Notifier) SendDailySummary(ctx context.Context, body string) {
	n.deliver(ctx, "daily_summary", "📊 <b>Daily Summary</b>\n"+body)
}

// SendTokenFailure warns that a broker token refresh failed terminally and
// the session needs a manual re-authentication.
func (n *Notifier) SendTokenFailure(ctx context.Context, broker string, err error) {
	text := fmt.Sprintf("⚠️ <b>%s token refresh failed</b>\n%s\nRe-authentication required.",
		html.EscapeString(broker),
		html.EscapeString(err.Error()))
	n.deliver(ctx, "token_failure", text)
}

func (n *Notifier) deliver(ctx context.Context, kind, text string) {
	if err := n.SendMessage(ctx, text); err != nil {
		n.log.Warn().Err(err).Str("kind", kind).Msg("Notification delivery failed")
		return
	}
	if n.Enabled() {
		n.log.Debug().Str("kind", kind).Msg("Notification sent")
	}
}
