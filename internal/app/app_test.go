package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/enrich/internal/cache"
	"github.com/deusflow/enrich/internal/config"
	"github.com/deusflow/enrich/internal/domain"
	"github.com/deusflow/enrich/internal/logger"
	"github.com/deusflow/enrich/internal/metrics"
	"github.com/deusflow/enrich/internal/news"
	"github.com/deusflow/enrich/internal/rss"
	"github.com/deusflow/enrich/internal/scraper"
	"github.com/deusflow/enrich/internal/storage"
	"github.com/deusflow/enrich/internal/telegram"
)

func quiet() *slog.Logger { return logger.Discard() }

type staticSource struct {
	candidates []rss.Candidate
	err        error
}

func (s staticSource) Candidates(context.Context, int) ([]rss.Candidate, error) {
	return s.candidates, s.err
}

type stubExtractor struct{ calls int }

func (e *stubExtractor) Extract(_ context.Context, markup, pageURL, source string) domain.RawArticle {
	e.calls++
	return domain.RawArticle{Title: markup, Content: markup, SourceURL: pageURL, SourceName: source}
}

type knownLinks map[string]bool

func (k knownLinks) Exists(_ context.Context, _, url string) (bool, error) { return k[url], nil }

type recordingRunner struct{ got []domain.RawArticle }

func (r *recordingRunner) RunBatch(_ context.Context, c []domain.RawArticle) news.Report {
	r.got = append(r.got, c...)
	return news.Report{Candidates: len(c)}
}

func TestTickSurvivesFetch404(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	m := metrics.New()
	runner := &recordingRunner{}
	p := &Pipeline{
		Source:    staticSource{candidates: []rss.Candidate{{Title: "Gone", Link: srv.URL + "/gone", Source: "test"}}},
		Fetcher:   scraper.NewFetcher(scraper.DefaultFetcherConfig(), quiet()),
		Extractor: &stubExtractor{},
		Dedup:     knownLinks{},
		Runner:    runner,
		Metrics:   m,
		Logger:    quiet(),
	}

	require.NoError(t, p.Tick(context.Background()))
	assert.EqualValues(t, 1, hits.Load(), "404 is not retried")
	assert.EqualValues(t, 1, m.FetchFailures)
	assert.Empty(t, runner.got)
}

func TestTickSkipsKnownLinksAndCaps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	ext := &stubExtractor{}
	runner := &recordingRunner{}
	p := &Pipeline{
		Source: staticSource{candidates: []rss.Candidate{
			{Title: "a", Link: srv.URL + "/a", Source: "s"},
			{Title: "b", Link: srv.URL + "/b", Source: "s"},
			{Title: "c", Link: srv.URL + "/c", Source: "s"},
			{Title: "d", Link: srv.URL + "/d", Source: "s"},
		}},
		Fetcher:     scraper.NewFetcher(scraper.DefaultFetcherConfig(), quiet()),
		Extractor:   ext,
		Dedup:       knownLinks{srv.URL + "/a": true},
		Runner:      runner,
		MaxArticles: 2,
		Logger:      quiet(),
	}

	require.NoError(t, p.Tick(context.Background()))
	require.Len(t, runner.got, 2)
	assert.Equal(t, "/b", runner.got[0].Title)
	assert.Equal(t, "/c", runner.got[1].Title)
	assert.Equal(t, 2, ext.calls)
}

func TestTickFailsWhenNoCandidates(t *testing.T) {
	p := &Pipeline{Source: staticSource{err: errors.New("all feeds failed")}, Logger: quiet()}
	assert.ErrorContains(t, p.Tick(context.Background()), "all feeds failed")
}

func TestTickReturnsPipelineErrorWithAlertsDisabled(t *testing.T) {
	a := &App{
		logger:   quiet(),
		pipeline: &Pipeline{Source: staticSource{err: errors.New("dns")}, Logger: quiet()},
		notifier: telegram.NewNotifier("", "", quiet()),
	}
	assert.ErrorContains(t, a.tick(context.Background()), "dns")
}

type countingLister struct {
	calls    int
	articles []domain.EnrichedArticle
}

func (c *countingLister) List(_ context.Context, _ storage.ListOptions) ([]domain.EnrichedArticle, error) {
	c.calls++
	return c.articles, nil
}

func TestNewsFeedReadsThroughCache(t *testing.T) {
	mem := cache.NewMemory(time.Minute)
	defer mem.Close()
	rt := cache.NewReadThrough(mem, time.Hour, quiet())
	lister := &countingLister{articles: []domain.EnrichedArticle{{ID: 1, Title: "A"}}}
	feed := NewNewsFeed(lister, rt)
	ctx := context.Background()

	first, err := feed.List(ctx, storage.ListOptions{})
	require.NoError(t, err)
	second, err := feed.List(ctx, storage.ListOptions{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, lister.calls)

	_, err = feed.List(ctx, storage.ListOptions{Filters: domain.Filters{Category: "Business"}})
	require.NoError(t, err)
	assert.Equal(t, 2, lister.calls, "filtered listings bypass the cache")

	require.NoError(t, rt.Invalidate(ctx, cache.SummarizedNewsKey))
	_, err = feed.List(ctx, storage.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, lister.calls)
}

func TestNewWiresComponents(t *testing.T) {
	dir := t.TempDir()
	feedsPath := filepath.Join(dir, "feeds.yaml")
	require.NoError(t, os.WriteFile(feedsPath, []byte("feeds:\n  - https://example.com/rss\n"), 0o644))

	cfg := &config.Config{
		LLMProvider:          "openai",
		OpenAIAPIKey:         "sk-test",
		OpenAIModel:          "gpt-4o-mini",
		LLMMaxAttempts:       3,
		LLMMaxTokens:         512,
		TokensPerWindow:      1000,
		TokenWindow:          time.Minute,
		ExtractMaxInput:      4000,
		HFEndpoint:           "http://127.0.0.1:1",
		CategoryEmbedder:     "none",
		MainCategoryEmbedder: "none",
		StorageDriver:        "sqlite",
		SQLitePath:           filepath.Join(dir, "enrich.db"),
		CacheBackend:         "memory",
		CacheTTL:             time.Hour,
		Schedule:             "@hourly",
		Timezone:             "UTC",
		FeedsConfigPath:      feedsPath,
		MaxArticlesPerRun:    5,
		FetchTimeout:         time.Second,
		MaxContentChars:      5000,
		SummaryThreshold:     200,
	}

	a, err := New(context.Background(), cfg, quiet())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.pipeline)
	assert.Nil(t, a.admin)
	assert.False(t, a.scheduler.Running())

	cfg.RequireEmbeddings = true
	_, err = New(context.Background(), cfg, quiet())
	assert.Error(t, err, "keyword fallback refused when embeddings are required")
}
