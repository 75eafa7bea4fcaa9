package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Budget is a snapshot of the token window shared by every model call.
type Budget struct {
	TokensPerWindow int       `json:"tokens_per_window"`
	TokensUsed      int       `json:"tokens_used"`
	ResetAt         time.Time `json:"reset_at"`
	Granted         int       `json:"granted"`
	Denied          int       `json:"denied"`
}

// Reservation is the answer to a Reserve call. Wait is zero when Granted.
type Reservation struct {
	Granted bool
	Wait    time.Duration
}

// Gate enforces a token budget per fixed window for calls to an external
// language model. It never queues: denied callers sleep and ask again.
type Gate struct {
	mu              sync.Mutex
	tokensPerWindow int
	window          time.Duration
	used            int
	resetAt         time.Time
	granted         int
	denied          int
	now             func() time.Time
	logger          *slog.Logger
}

// Option customizes a Gate.
type Option func(*Gate)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithLogger sets the logger used for denial messages.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// NewGate creates a gate allowing tokensPerWindow tokens every window.
func NewGate(tokensPerWindow int, window time.Duration, opts ...Option) *Gate {
	g := &Gate{
		tokensPerWindow: tokensPerWindow,
		window:          window,
		now:             time.Now,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.resetAt = g.now().Add(window)
	return g
}

// Reserve tries to take tokens from the current window.
func (g *Gate) Reserve(tokens int) Reservation {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.checkReset(now)

	// A request larger than the whole window can only ever run against an
	// empty window, so charge it as a full one.
	if tokens > g.tokensPerWindow {
		tokens = g.tokensPerWindow
	}

	if g.used+tokens <= g.tokensPerWindow {
		g.used += tokens
		g.granted++
		return Reservation{Granted: true}
	}

	g.denied++
	wait := g.resetAt.Sub(now)
	if wait < 0 {
		wait = 0
	}
	g.logger.Debug("token budget exhausted",
		"used", g.used, "limit", g.tokensPerWindow, "requested", tokens, "wait", wait)
	return Reservation{Wait: wait}
}

// Wait blocks until tokens are granted or ctx is done.
func (g *Gate) Wait(ctx context.Context, tokens int) error {
	for {
		r := g.Reserve(tokens)
		if r.Granted {
			return nil
		}
		t := time.NewTimer(r.Wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Correct raises the used-token count to a figure reported by the provider.
// Lower figures are ignored so estimation drift only ever tightens the budget.
func (g *Gate) Correct(used int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.checkReset(g.now())
	if used > g.used {
		g.logger.Debug("correcting token usage from provider hint", "local", g.used, "provider", used)
		g.used = used
	}
}

// Settle charges the difference between an estimate already reserved and the
// usage the provider actually reported. Overestimates are kept so the budget
// only tightens.
func (g *Gate) Settle(estimate, actual int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.checkReset(g.now())
	if extra := actual - estimate; extra > 0 {
		g.used += extra
	}
}

// Stats returns a copy of the current budget.
func (g *Gate) Stats() Budget {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.checkReset(g.now())
	return Budget{
		TokensPerWindow: g.tokensPerWindow,
		TokensUsed:      g.used,
		ResetAt:         g.resetAt,
		Granted:         g.granted,
		Denied:          g.denied,
	}
}

// String renders the budget for log lines.
func (b Budget) String() string {
	return fmt.Sprintf("%d/%d tokens, resets %s", b.TokensUsed, b.TokensPerWindow, b.ResetAt.Format(time.RFC3339))
}

// checkReset starts a new window once the current one has passed.
// Must be called with mu held.
func (g *Gate) checkReset(now time.Time) {
	if now.Before(g.resetAt) {
		return
	}
	g.used = 0
	g.resetAt = g.resetAt.Add(g.window)
	if !g.resetAt.After(now) {
		g.resetAt = now.Add(g.window)
	}
}
