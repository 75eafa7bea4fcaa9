package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/deusflow/enrich/internal/retry"
)

// ErrFetchFailed wraps every error returned by Fetch.
var ErrFetchFailed = errors.New("fetch failed")

const maxPageBytes = 5 << 20

// StatusError is returned for non-200 responses. It is never retried.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error %d for %s", e.Code, e.URL)
}

type FetcherConfig struct {
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	UserAgent   string
}

func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Timeout:     15 * time.Second,
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		UserAgent:   "Mozilla/5.0 (compatible; enrichd/1.0)",
	}
}

// Fetcher downloads pages. It retries only connection resets and timeouts.
type Fetcher struct {
	client *http.Client
	cfg    FetcherConfig
	logger *slog.Logger
}

func NewFetcher(cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger.With("component", "fetcher"),
	}
}

// Fetch returns the page markup.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	var markup string
	attempt := 0

	err := retry.WithRetry(ctx, retry.RetryConfig{
		MaxAttempts: f.cfg.MaxAttempts,
		Delay:       f.cfg.BaseDelay,
		MaxDelay:    f.cfg.MaxDelay,
		Backoff:     true,
		Retryable:   IsTransient,
	}, func(ctx context.Context) error {
		attempt++
		body, err := f.get(ctx, url)
		if err != nil {
			if IsTransient(err) {
				f.logger.Warn("transient fetch error", "url", url, "attempt", attempt, "error", err)
			}
			return err
		}
		markup = body
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrFetchFailed, url, err)
	}
	return markup, nil
}

func (f *Fetcher) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{URL: url, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("error reading page: %w", err)
	}
	return string(body), nil
}

// IsTransient reports whether err is a timeout or a connection reset.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "timeout")
}
