// Package telegram sends operator alerts to a Telegram chat.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/deusflow/enrich/internal/retry"
)

const defaultBaseURL = "https://api.telegram.org"

// maxMessageLen is Telegram's limit for a text message.
const maxMessageLen = 4096

// APIError is a non-2xx answer from the Bot API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram API error: status %d: %s", e.StatusCode, e.Body)
}

// Notifier posts messages with retry. A zero-value token makes Send a no-op.
type Notifier struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	retry   retry.RetryConfig
	logger  *slog.Logger
}

func NewNotifier(token, chatID string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		token:   token,
		chatID:  chatID,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		retry: retry.RetryConfig{
			MaxAttempts: 3,
			Delay:       2 * time.Second,
			Backoff:     true,
			Retryable:   retryable,
		},
		logger: logger.With("component", "telegram"),
	}
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.token != "" && n.chatID != ""
}

// Send delivers text as an HTML message without link previews.
func (n *Notifier) Send(ctx context.Context, text string) error {
	if !n.Enabled() {
		return nil
	}
	if r := []rune(text); len(r) > maxMessageLen {
		text = string(r[:maxMessageLen])
	}

	attempt := 0
	err := retry.WithRetry(ctx, n.retry, func(ctx context.Context) error {
		attempt++
		err := n.sendOnce(ctx, text)
		if err != nil {
			n.logger.Warn("send failed", "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	n.logger.Debug("message sent", "attempt", attempt)
	return nil
}

// Alert formats a failure notice and sends it. The cause is cut before
// escaping so the markup always stays well formed.
func (n *Notifier) Alert(ctx context.Context, subject string, cause error) error {
	head := fmt.Sprintf("<b>%s</b>\n<code>", html.EscapeString(subject))
	tail := "</code>\n" + time.Now().UTC().Format(time.RFC3339)
	budget := maxMessageLen - utf8.RuneCountInString(head) - utf8.RuneCountInString(tail)
	return n.Send(ctx, head+escapeWithin(cause.Error(), budget)+tail)
}

// escapeWithin HTML-escapes s, dropping whole runes once the escaped text
// would exceed limit runes.
func escapeWithin(s string, limit int) string {
	var b strings.Builder
	used := 0
	for _, r := range s {
		esc := html.EscapeString(string(r))
		n := utf8.RuneCountInString(esc)
		if used+n > limit {
			break
		}
		b.WriteString(esc)
		used += n
	}
	return b.String()
}

func (n *Notifier) sendOnce(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.token)

	payload := map[string]interface{}{
		"chat_id":                  n.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return nil
}

// retryable gives up on client errors other than rate limiting.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return !errors.Is(err, context.Canceled)
}
