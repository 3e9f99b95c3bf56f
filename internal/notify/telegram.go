package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/flathunters/flatwatch/internal/config"
	"github.com/flathunters/flatwatch/internal/model"
)

// Default wait when a 429 response carries no usable retry_after.
const defaultRetryAfter = 30 * time.Second

// Telegram delivers messages through the Bot API with MarkdownV2
// formatting. Consecutive sends are throttled to stay under the
// channel's implicit rate limits, and explicit 429 responses are
// retried with the server-provided wait.
type Telegram struct {
	cfg     config.TelegramConfig
	client  *http.Client
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration)
	log     *zap.Logger
}

// NewTelegram creates a Telegram notifier.
func NewTelegram(cfg config.TelegramConfig) *Telegram {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.SendInterval <= 0 {
		cfg.SendInterval = time.Second
	}
	return &Telegram{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(cfg.SendInterval), 1),
		sleep:   sleepCtx,
		log:     zap.L().With(zap.String("component", "notify.telegram")),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// NotifyListing renders and sends the standard listing message.
func (t *Telegram) NotifyListing(ctx context.Context, l model.Listing) error {
	return t.Send(ctx, FormatListing(l))
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Send delivers one message. On 429 it sleeps the server-provided wait
// and retries up to the configured attempt cap, then gives up. Any
// other delivery error is terminal for this message; the caller logs
// and drops.
func (t *Telegram) Send(ctx context.Context, text string) error {
	endpoint := t.cfg.BaseURL + "/bot" + t.cfg.BotToken + "/sendMessage"
	form := url.Values{
		"chat_id":                  {t.cfg.ChatID},
		"text":                     {text},
		"parse_mode":               {"MarkdownV2"},
		"disable_web_page_preview": {"true"},
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "telegram: send throttle")
	}

	for attempt := 1; attempt <= t.cfg.MaxRetries; attempt++ {
		status, body, err := t.post(ctx, endpoint, form)
		if err != nil {
			t.log.Error("message delivery failed", zap.Error(err))
			return eris.Wrap(err, "telegram: send message")
		}

		if status == http.StatusTooManyRequests {
			wait := retryAfterFrom(body)
			if attempt == t.cfg.MaxRetries {
				t.log.Error("rate limited, retries exhausted",
					zap.Int("attempts", attempt),
				)
				return eris.Errorf("telegram: rate limited after %d attempts", attempt)
			}
			t.log.Warn("rate limited, waiting before retry",
				zap.Duration("retry_after", wait),
				zap.Int("attempt", attempt),
			)
			t.sleep(ctx, wait)
			continue
		}

		if status != http.StatusOK {
			t.log.Error("telegram api error",
				zap.Int("status", status),
				zap.String("body", truncate(string(body), 200)),
			)
			return eris.Errorf("telegram: api status %d", status)
		}

		return nil
	}

	return eris.New("telegram: send message: retries exhausted")
}

func (t *Telegram) post(ctx context.Context, endpoint string, form url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, eris.Wrap(err, "telegram: create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, nil, eris.Wrap(err, "telegram: post")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, eris.Wrap(err, "telegram: read response")
	}
	return resp.StatusCode, body, nil
}

func retryAfterFrom(body []byte) time.Duration {
	var r telegramResponse
	if err := json.Unmarshal(body, &r); err != nil || r.Parameters.RetryAfter <= 0 {
		return defaultRetryAfter
	}
	return time.Duration(r.Parameters.RetryAfter) * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
