package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/enrich/internal/ratelimit"
)

type scriptedProvider struct {
	results []func() (Response, error)
	calls   int
	prompts []string
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(_ context.Context, req Request) (Response, error) {
	p.prompts = append(p.prompts, req.Prompt)
	i := p.calls
	p.calls++
	if i >= len(p.results) {
		i = len(p.results) - 1
	}
	return p.results[i]()
}

func ok(text string) func() (Response, error) {
	return func() (Response, error) { return Response{Text: text}, nil }
}

func throttled(msg string) func() (Response, error) {
	return func() (Response, error) { return Response{}, &RateLimitError{Provider: "scripted", Message: msg} }
}

func newTestClient(p Provider, gate *ratelimit.Gate) (*Client, *[]time.Duration) {
	c := NewClient(p, gate, DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	var sleeps []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return c, &sleeps
}

func TestCompleteTextRetriesRateLimitWithGrowingBackoff(t *testing.T) {
	p := &scriptedProvider{results: []func() (Response, error){
		throttled("Rate limit reached. Please try again in 200ms."),
		throttled("Rate limit reached. Please try again in 200ms."),
		throttled("Rate limit reached. Please try again in 200ms."),
		ok("done"),
	}}
	c, sleeps := newTestClient(p, ratelimit.NewGate(100000, time.Minute))

	text, err := c.CompleteText(context.Background(), "summarize", "body")
	require.NoError(t, err)
	assert.Equal(t, "done", text)
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 300 * time.Millisecond, 450 * time.Millisecond}, *sleeps)
}

func TestCompleteTextExhaustsRetries(t *testing.T) {
	p := &scriptedProvider{results: []func() (Response, error){throttled("slow down")}}
	c, sleeps := newTestClient(p, ratelimit.NewGate(100000, time.Minute))

	_, err := c.CompleteText(context.Background(), "p", "t")
	assert.ErrorIs(t, err, ErrExhaustedRetries)
	assert.Equal(t, 5, p.calls)
	assert.Len(t, *sleeps, 4)
	for i := 1; i < len(*sleeps); i++ {
		assert.GreaterOrEqual(t, (*sleeps)[i], (*sleeps)[i-1])
	}
}

func TestCompleteTextOtherErrorsAreFatal(t *testing.T) {
	boom := errors.New("bad request")
	p := &scriptedProvider{results: []func() (Response, error){
		func() (Response, error) { return Response{}, boom },
	}}
	c, sleeps := newTestClient(p, ratelimit.NewGate(100000, time.Minute))

	_, err := c.CompleteText(context.Background(), "p", "t")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, p.calls)
	assert.Empty(t, *sleeps)
}

func TestCompleteTextCorrectsBudgetFromHint(t *testing.T) {
	gate := ratelimit.NewGate(10000, time.Minute)
	p := &scriptedProvider{results: []func() (Response, error){
		throttled("Limit 10000, Used 9500, Requested 700. Please try again in 1.5s."),
		ok("x"),
	}}
	c, sleeps := newTestClient(p, gate)

	_, err := c.CompleteText(context.Background(), "p", "t")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, *sleeps)
	assert.GreaterOrEqual(t, gate.Stats().TokensUsed, 9500)
}

func TestCompleteTextSettlesReportedUsage(t *testing.T) {
	gate := ratelimit.NewGate(100000, time.Minute)
	p := &scriptedProvider{results: []func() (Response, error){
		func() (Response, error) { return Response{Text: "x", TokensUsed: 250}, nil },
	}}
	c, _ := newTestClient(p, gate)

	_, err := c.CompleteText(context.Background(), "p", "t")
	require.NoError(t, err)
	assert.Equal(t, 250, gate.Stats().TokensUsed, "estimate of %d topped up to the reported usage", EstimateTokens("p", "t"))
}

func TestCompleteTextCancelledWhileWaitingForBudget(t *testing.T) {
	gate := ratelimit.NewGate(10, time.Hour)
	gate.Reserve(10)
	p := &scriptedProvider{results: []func() (Response, error){ok("x")}}
	c, _ := newTestClient(p, gate)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.CompleteText(ctx, "p", "t")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, p.calls)
}

func TestCompleteJSON(t *testing.T) {
	p := &scriptedProvider{results: []func() (Response, error){
		ok("Sure! ```json\n{\"title\": \"A\", \"content\": \"B {nested}\", \"date\": \"2024-01-02\"}\n```"),
	}}
	c, _ := newTestClient(p, ratelimit.NewGate(100000, time.Minute))

	var out struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		Date    string `json:"date"`
	}
	require.NoError(t, c.CompleteJSON(context.Background(), "extract", "raw", &out))
	assert.Equal(t, "A", out.Title)
	assert.Equal(t, "B {nested}", out.Content)
	assert.Equal(t, "2024-01-02", out.Date)
}

func TestCompleteJSONMalformedIsNotRetried(t *testing.T) {
	p := &scriptedProvider{results: []func() (Response, error){ok("I cannot help with that.")}}
	c, _ := newTestClient(p, ratelimit.NewGate(100000, time.Minute))

	var out map[string]any
	err := c.CompleteJSON(context.Background(), "extract", "raw", &out)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Equal(t, 1, p.calls)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, promptOverhead+3, EstimateTokens("abcd", "abcdefgh"))
}
