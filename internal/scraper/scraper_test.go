package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/enrich/internal/domain"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func fastConfig() FetcherConfig {
	cfg := DefaultFetcherConfig()
	cfg.Timeout = 50 * time.Millisecond
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	return cfg
}

func TestFetch404IsFatalWithoutRetry(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	_, err := NewFetcher(fastConfig(), quietLogger()).Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailed)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchRetriesTimeouts(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			time.Sleep(200 * time.Millisecond)
		}
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	t.Cleanup(srv.Close)

	body, err := NewFetcher(fastConfig(), quietLogger()).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, body, "ok")
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchGivesUpAfterThreeAttempts(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	_, err := NewFetcher(fastConfig(), quietLogger()).Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, int32(3), calls.Load())
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(errors.New("read tcp: connection reset by peer")))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(&StatusError{Code: 500}))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(errors.New("no such host")))
}

type fakeCompleter struct {
	answer string
	err    error
	input  string
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, _ string, rawText string, out any) error {
	f.input = rawText
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.answer), out)
}

const samplePage = `<html><head><title>Site | Story</title><script>var x = "tracking";</script>
<style>.a{color:red}</style></head>
<body><noscript>enable js</noscript><iframe src="ad"></iframe>
<h1>Central bank   holds rates</h1>
<p>The central bank kept interest rates unchanged on Tuesday.</p>
</body></html>`

func TestExtractBuildsRawArticle(t *testing.T) {
	t.Parallel()
	llm := &fakeCompleter{answer: `{"title":"Central bank holds rates","content":"The central bank kept   interest rates unchanged.","date":"March 5, 2024"}`}
	e := NewExtractor(llm, 0, quietLogger())

	got := e.Extract(context.Background(), samplePage, "https://news.example/a", "Example")
	assert.False(t, got.IsPlaceholder)
	assert.Equal(t, "Central bank holds rates", got.Title)
	assert.Equal(t, "The central bank kept interest rates unchanged.", got.Content)
	assert.Equal(t, "2024-03-05", got.PublishedDate)
	assert.Equal(t, "https://news.example/a", got.SourceURL)
	assert.Equal(t, "Example", got.SourceName)

	assert.NotContains(t, llm.input, "tracking")
	assert.NotContains(t, llm.input, "color:red")
	assert.NotContains(t, llm.input, "enable js")
	assert.NotContains(t, llm.input, "  ")
}

func TestExtractFailureReturnsPlaceholder(t *testing.T) {
	t.Parallel()
	e := NewExtractor(&fakeCompleter{err: errors.New("exhausted")}, 0, quietLogger())

	got := e.Extract(context.Background(), samplePage, "https://news.example/b", "Example")
	assert.True(t, got.IsPlaceholder)
	assert.Equal(t, domain.Placeholder, got.Title)
	assert.Equal(t, domain.Placeholder, got.Content)
	assert.Equal(t, domain.Placeholder, got.PublishedDate)
	assert.Equal(t, "https://news.example/b", got.SourceURL)
}

func TestExtractFallsBackToPageTitle(t *testing.T) {
	t.Parallel()
	e := NewExtractor(&fakeCompleter{answer: `{"title":"","content":"body","date":""}`}, 0, quietLogger())

	got := e.Extract(context.Background(), samplePage, "https://news.example/c", "Example")
	assert.Equal(t, "Central bank holds rates", got.Title)
}

func TestCleanTextStripsNoise(t *testing.T) {
	text, title := CleanText(samplePage, "")
	assert.Equal(t, "Central bank holds rates", title)
	assert.True(t, strings.Contains(text, "interest rates unchanged"))
	assert.NotContains(t, text, "tracking")
}
