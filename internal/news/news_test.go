package news

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/enrich/internal/cache"
	"github.com/deusflow/enrich/internal/classify"
	"github.com/deusflow/enrich/internal/domain"
	"github.com/deusflow/enrich/internal/embed"
	"github.com/deusflow/enrich/internal/metrics"
	"github.com/deusflow/enrich/internal/sentiment"
)

type memStore struct {
	mu       sync.Mutex
	articles []domain.EnrichedArticle
	failOn   string
}

func (s *memStore) Exists(_ context.Context, title, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.articles {
		if a.Title == title || a.SourceURL == url {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) Insert(_ context.Context, a domain.EnrichedArticle) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != "" && a.Title == s.failOn {
		return 0, errors.New("disk full")
	}
	s.articles = append(s.articles, a)
	return int64(len(s.articles)), nil
}

type countingSummarizer struct {
	calls  int
	output string
}

func (c *countingSummarizer) Summarize(_ context.Context, text string) string {
	c.calls++
	if c.output == "" {
		return text
	}
	return c.output
}

type stubCategorizer struct {
	label string
	err   error
	calls int
	panic bool
}

func (s *stubCategorizer) Categorize(context.Context, string) (string, error) {
	s.calls++
	if s.panic {
		panic("boom")
	}
	return s.label, s.err
}

type stubSentiment struct {
	label domain.Sentiment
	calls int
}

func (s *stubSentiment) Analyze(context.Context, string) sentiment.Result {
	s.calls++
	return sentiment.Result{Label: s.label}
}

type recordingCache struct {
	keys []string
	err  error
}

func (r *recordingCache) Invalidate(_ context.Context, key string) error {
	r.keys = append(r.keys, key)
	return r.err
}

type fixture struct {
	store   *memStore
	sum     *countingSummarizer
	fine    *stubCategorizer
	main    *stubCategorizer
	sent    *stubSentiment
	cache   *recordingCache
	metrics *metrics.Metrics
	runner  *Runner
	sleeps  int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   &memStore{},
		sum:     &countingSummarizer{},
		fine:    &stubCategorizer{label: "Technology"},
		main:    &stubCategorizer{label: "PRODUCT_LAUNCH"},
		sent:    &stubSentiment{label: domain.SentimentPositive},
		cache:   &recordingCache{},
		metrics: metrics.New(),
	}
	f.runner = f.build(Options{ItemDelay: time.Second})
	return f
}

func (f *fixture) build(opts Options) *Runner {
	r := NewRunner(Deps{
		Store:           f.store,
		Summarizer:      f.sum,
		Categorizer:     f.fine,
		MainCategorizer: f.main,
		Sentiment:       f.sent,
		Cache:           f.cache,
		Metrics:         f.metrics,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, opts)
	r.sleep = func(context.Context, time.Duration) error {
		f.sleeps++
		return nil
	}
	return r
}

func article(title, url, content string) domain.RawArticle {
	return domain.RawArticle{
		Title:         title,
		Content:       content,
		PublishedDate: "2024-03-15",
		SourceURL:     url,
		SourceName:    "example.com",
	}
}

func TestRunBatchPersistsEnrichedArticles(t *testing.T) {
	f := newFixture(t)

	rep := f.runner.RunBatch(context.Background(), []domain.RawArticle{
		article("New phone", "https://example.com/a", "Short body."),
		article("New chip", "https://example.com/b", "Another short body."),
	})

	assert.Equal(t, 2, rep.Persisted)
	assert.NotEmpty(t, rep.RunID)
	require.Len(t, f.store.articles, 2)
	got := f.store.articles[0]
	assert.Equal(t, "Technology", got.Category)
	assert.Equal(t, "PRODUCT_LAUNCH", got.MainCategory)
	assert.Equal(t, domain.SentimentPositive, got.Sentiment)
	assert.Equal(t, "2024-03-15", got.PublishedDate)
	assert.Equal(t, "example.com", got.SourceName)
	assert.Equal(t, []string{cache.SummarizedNewsKey}, f.cache.keys)
	assert.Equal(t, 1, f.sleeps, "delay only between items")
	assert.EqualValues(t, 2, f.metrics.ArticlesPersisted)
}

func TestRunBatchIsIdempotent(t *testing.T) {
	f := newFixture(t)
	batch := []domain.RawArticle{
		article("One", "https://example.com/1", strings.Repeat("x", 300)),
		article("Two", "https://example.com/2", "short"),
	}

	first := f.runner.RunBatch(context.Background(), batch)
	require.Equal(t, 2, first.Persisted)
	sumCalls, fineCalls, sentCalls := f.sum.calls, f.fine.calls, f.sent.calls

	second := f.runner.RunBatch(context.Background(), batch)
	assert.Equal(t, 0, second.Persisted)
	assert.Equal(t, 2, second.Duplicates)
	assert.Len(t, f.store.articles, 2)
	assert.Equal(t, sumCalls, f.sum.calls)
	assert.Equal(t, fineCalls, f.fine.calls)
	assert.Equal(t, sentCalls, f.sent.calls)
}

func TestRunBatchDedupMatchesTitleOrURL(t *testing.T) {
	f := newFixture(t)
	f.store.articles = []domain.EnrichedArticle{{Title: "Known", SourceURL: "https://example.com/known"}}

	rep := f.runner.RunBatch(context.Background(), []domain.RawArticle{
		article("Known", "https://example.com/other", "body"),
		article("Different", "https://example.com/known", "body"),
	})

	assert.Equal(t, 2, rep.Duplicates)
	assert.Zero(t, f.fine.calls)
}

func TestRunBatchSkipsPlaceholders(t *testing.T) {
	f := newFixture(t)

	rep := f.runner.RunBatch(context.Background(), []domain.RawArticle{
		domain.PlaceholderArticle("https://example.com/broken", "example.com"),
	})

	assert.Equal(t, 1, rep.Placeholders)
	assert.Empty(t, f.store.articles)
	assert.Zero(t, f.sum.calls)
	assert.Zero(t, f.sleeps)
}

func TestRunBatchSummarizesOnlyLongContent(t *testing.T) {
	f := newFixture(t)
	f.sum.output = "A short summary."

	f.runner.RunBatch(context.Background(), []domain.RawArticle{
		article("Exactly", "https://example.com/200", strings.Repeat("a", 200)),
		article("Longer", "https://example.com/201", strings.Repeat("a", 201)),
	})

	assert.Equal(t, 1, f.sum.calls)
	require.Len(t, f.store.articles, 2)
	assert.Len(t, f.store.articles[0].Content, 200)
	assert.Equal(t, "A short summary.", f.store.articles[1].Content)
}

func TestRunBatchTruncatesContent(t *testing.T) {
	f := newFixture(t)
	f.runner = f.build(Options{MaxContentChars: 50, SummaryThreshold: 1000})

	f.runner.RunBatch(context.Background(), []domain.RawArticle{
		article("Long", "https://example.com/long", strings.Repeat("é", 80)),
	})

	require.Len(t, f.store.articles, 1)
	assert.Equal(t, strings.Repeat("é", 50), f.store.articles[0].Content)
}

func TestRunBatchDropsWhenCategoryMissing(t *testing.T) {
	f := newFixture(t)
	f.fine.err = errors.New("classifier down")

	rep := f.runner.RunBatch(context.Background(), []domain.RawArticle{
		article("A", "https://example.com/a", "body"),
		article("B", "https://example.com/b", "body"),
	})

	assert.Equal(t, 2, rep.Dropped)
	assert.Zero(t, rep.Failed)
	assert.Empty(t, f.store.articles)
	assert.Equal(t, 2, f.sent.calls, "batch keeps going after a classifier error")
}

func TestRunBatchContinuesAfterFailures(t *testing.T) {
	f := newFixture(t)
	f.store.failOn = "Bad"

	rep := f.runner.RunBatch(context.Background(), []domain.RawArticle{
		article("Bad", "https://example.com/bad", "body"),
		article("Good", "https://example.com/good", "body"),
	})

	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Persisted)
	assert.EqualValues(t, 1, f.metrics.ItemFailures)
}

func TestRunBatchRecoversFromPanics(t *testing.T) {
	f := newFixture(t)
	f.main.panic = true

	var rep Report
	require.NotPanics(t, func() {
		rep = f.runner.RunBatch(context.Background(), []domain.RawArticle{
			article("A", "https://example.com/a", "body"),
		})
	})
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, []string{cache.SummarizedNewsKey}, f.cache.keys)
}

func TestRunBatchCacheFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.cache.err = errors.New("redis down")

	rep := f.runner.RunBatch(context.Background(), []domain.RawArticle{
		article("A", "https://example.com/a", "body"),
	})
	assert.Equal(t, 1, rep.Persisted)
}

func TestRunBatchStopsOnCancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := f.runner.RunBatch(ctx, []domain.RawArticle{
		article("A", "https://example.com/a", "body"),
		article("B", "https://example.com/b", "body"),
	})
	assert.Equal(t, 2, rep.Failed)
	assert.Empty(t, f.store.articles)
}

func TestRunBatchKeywordFallbackScenario(t *testing.T) {
	f := newFixture(t)
	f.sum.output = "The Federal Reserve cut interest rates by a quarter point on Wednesday."

	fineTax := classify.FineTaxonomy()
	fine, err := classify.New(context.Background(), embed.Disabled{}, fineTax, nil)
	require.Error(t, err)
	mainTax := classify.MainTaxonomy()
	main, err := classify.New(context.Background(), embed.Disabled{}, mainTax, nil)
	require.Error(t, err)

	r := NewRunner(Deps{
		Store:           f.store,
		Summarizer:      f.sum,
		Categorizer:     classify.Validated{Categorizer: fine, Taxonomy: fineTax},
		MainCategorizer: classify.Validated{Categorizer: main, Taxonomy: mainTax},
		Sentiment:       &stubSentiment{label: domain.SentimentNeutral},
		Cache:           f.cache,
	}, Options{})

	body := "Policymakers lowered the benchmark by 25 basis points, citing cooling price pressures. " +
		strings.Repeat("Officials signalled further moves were possible. ", 3)
	require.Greater(t, len(body), 200)

	rep := r.RunBatch(context.Background(), []domain.RawArticle{
		article("Fed cuts rates", "https://example.com/fed", body),
	})

	require.Equal(t, 1, rep.Persisted)
	assert.Equal(t, 1, f.sum.calls)
	got := f.store.articles[0]
	assert.Equal(t, "Business", got.Category)
	assert.Equal(t, "ECONOMIC", got.MainCategory)
	assert.Equal(t, domain.SentimentNeutral, got.Sentiment)
	assert.Equal(t, f.sum.output, got.Content)
}

func TestProcessAllRunsInBackground(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	f.runner.ProcessAll(ctx, []domain.RawArticle{article("A", "https://example.com/a", "body")})
	cancel()

	assert.Eventually(t, func() bool {
		ok, _ := f.store.Exists(context.Background(), "A", "")
		return ok
	}, time.Second, 10*time.Millisecond)
}
