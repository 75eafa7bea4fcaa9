package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/deusflow/enrich/internal/ratelimit"
	"github.com/deusflow/enrich/internal/retry"
)

var (
	// ErrExhaustedRetries means every attempt was throttled by the provider.
	ErrExhaustedRetries = errors.New("llm: exhausted retries")
	// ErrMalformedResponse means the model answered without a parsable JSON object.
	ErrMalformedResponse = errors.New("llm: malformed response")
)

// promptOverhead covers the system prompt and message framing that the
// character estimate does not see.
const promptOverhead = 100

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

type Config struct {
	MaxAttempts int
	MaxTokens   int
	Temperature float32
	System      string
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		MaxTokens:   1024,
		Temperature: 0.2,
		System:      "You are a precise assistant for a news processing pipeline.",
	}
}

// Client runs completion calls through the shared token gate and retries
// provider throttling with growing backoff.
type Client struct {
	provider Provider
	gate     *ratelimit.Gate
	cfg      Config
	logger   *slog.Logger
	sleep    func(context.Context, time.Duration) error
}

func NewClient(provider Provider, gate *ratelimit.Gate, cfg Config, logger *slog.Logger) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		provider: provider,
		gate:     gate,
		cfg:      cfg,
		logger:   logger.With("component", "llm", "provider", provider.Name()),
		sleep:    retry.Sleep,
	}
}

// EstimateTokens approximates the cost of a call from its input length.
func EstimateTokens(prompt, rawText string) int {
	return (len(prompt)+len(rawText))/4 + promptOverhead
}

// CompleteText sends prompt followed by rawText and returns the model text.
func (c *Client) CompleteText(ctx context.Context, prompt, rawText string) (string, error) {
	input := prompt
	if rawText != "" {
		input = prompt + "\n\n" + rawText
	}
	estimate := EstimateTokens(prompt, rawText)

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		// Waiting for budget is not an attempt.
		if err := c.gate.Wait(ctx, estimate); err != nil {
			return "", err
		}

		resp, err := c.provider.Generate(ctx, Request{
			System:      c.cfg.System,
			Prompt:      input,
			MaxTokens:   c.cfg.MaxTokens,
			Temperature: c.cfg.Temperature,
		})
		if err == nil {
			if resp.TokensUsed > 0 {
				c.gate.Settle(estimate, resp.TokensUsed)
			}
			return resp.Text, nil
		}

		var rl *RateLimitError
		if !errors.As(err, &rl) {
			return "", fmt.Errorf("completion failed: %w", err)
		}

		hint := ParseWaitHint(rl.Message)
		if th := ParseTokenHint(rl.Message); th.Used > 0 {
			c.gate.Correct(th.Used)
		}
		delay := BackoffDelay(hint, attempt)
		c.logger.Warn("provider rate limited call",
			"attempt", attempt, "max_attempts", c.cfg.MaxAttempts, "wait", delay,
			"budget", c.gate.Stats().String())

		if attempt == c.cfg.MaxAttempts {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("%w after %d attempts", ErrExhaustedRetries, c.cfg.MaxAttempts)
}

// CompleteJSON runs CompleteText and decodes the outermost JSON object of the
// answer into out.
func (c *Client) CompleteJSON(ctx context.Context, prompt, rawText string, out any) error {
	text, err := c.CompleteText(ctx, prompt, rawText)
	if err != nil {
		return err
	}
	return DecodeJSONObject(text, out)
}

// DecodeJSONObject locates the outermost {...} span in text and unmarshals it.
func DecodeJSONObject(text string, out any) error {
	text = strings.TrimSpace(text)
	span := jsonObjectRe.FindString(text)
	if span == "" {
		return fmt.Errorf("%w: no JSON object in %q", ErrMalformedResponse, truncate(text, 120))
	}
	if err := json.Unmarshal([]byte(span), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
