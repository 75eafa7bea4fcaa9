// Package news runs the enrichment pipeline over a batch of extracted
// articles: dedup, summary, classification, sentiment, persistence.
package news

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/deusflow/enrich/internal/cache"
	"github.com/deusflow/enrich/internal/domain"
	"github.com/deusflow/enrich/internal/metrics"
	"github.com/deusflow/enrich/internal/retry"
	"github.com/deusflow/enrich/internal/sentiment"
)

// ArticleStore is the persistence the runner needs.
type ArticleStore interface {
	Exists(ctx context.Context, title, url string) (bool, error)
	Insert(ctx context.Context, a domain.EnrichedArticle) (int64, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, text string) string
}

type Categorizer interface {
	Categorize(ctx context.Context, text string) (string, error)
}

type SentimentAnalyzer interface {
	Analyze(ctx context.Context, text string) sentiment.Result
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context, key string) error
}

type Deps struct {
	Store           ArticleStore
	Summarizer      Summarizer
	Categorizer     Categorizer
	MainCategorizer Categorizer
	Sentiment       SentimentAnalyzer
	Cache           CacheInvalidator
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
}

type Options struct {
	MaxContentChars  int
	SummaryThreshold int
	ItemDelay        time.Duration
	CacheKey         string
}

func DefaultOptions() Options {
	return Options{
		MaxContentChars:  5000,
		SummaryThreshold: 200,
		ItemDelay:        3 * time.Second,
		CacheKey:         cache.SummarizedNewsKey,
	}
}

// Report summarizes one batch. Every candidate lands in exactly one bucket.
type Report struct {
	RunID        string        `json:"run_id"`
	Candidates   int           `json:"candidates"`
	Placeholders int           `json:"placeholders"`
	Duplicates   int           `json:"duplicates"`
	Persisted    int           `json:"persisted"`
	Dropped      int           `json:"dropped"`
	Failed       int           `json:"failed"`
	Summarized   int           `json:"summarized"`
	Duration     time.Duration `json:"duration"`
}

type outcome int

const (
	outcomePersisted outcome = iota
	outcomeDuplicate
	outcomePlaceholder
	outcomeDropped
	outcomeFailed
)

// Runner processes candidates one at a time, in order. Batches never overlap.
type Runner struct {
	deps  Deps
	opts  Options
	mu    sync.Mutex
	sleep func(context.Context, time.Duration) error
}

func NewRunner(deps Deps, opts Options) *Runner {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	def := DefaultOptions()
	if opts.MaxContentChars <= 0 {
		opts.MaxContentChars = def.MaxContentChars
	}
	if opts.SummaryThreshold <= 0 {
		opts.SummaryThreshold = def.SummaryThreshold
	}
	if opts.CacheKey == "" {
		opts.CacheKey = def.CacheKey
	}
	deps.Logger = deps.Logger.With("component", "batch")
	return &Runner{deps: deps, opts: opts, sleep: retry.Sleep}
}

// ProcessAll runs a batch in the background and returns immediately.
// The batch outlives ctx cancellation; results are only logged.
func (r *Runner) ProcessAll(ctx context.Context, candidates []domain.RawArticle) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.deps.Logger.Error("background batch panicked", "panic", rec)
			}
		}()
		r.RunBatch(ctx, candidates)
	}()
}

// RunBatch enriches and stores every new candidate. A failing candidate is
// logged and skipped; it never stops the batch.
func (r *Runner) RunBatch(ctx context.Context, candidates []domain.RawArticle) Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	rep := Report{RunID: uuid.NewString(), Candidates: len(candidates)}
	log := r.deps.Logger.With("run_id", rep.RunID)
	log.Info("batch started", "candidates", len(candidates))

	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			log.Warn("batch interrupted", "remaining", len(candidates)-i, "error", err)
			rep.Failed += len(candidates) - i
			break
		}

		r.deps.Metrics.IncrementCandidates()
		res, summarized, err := r.processItem(ctx, log, c)
		if summarized {
			rep.Summarized++
		}
		switch res {
		case outcomePersisted:
			rep.Persisted++
		case outcomeDuplicate:
			rep.Duplicates++
		case outcomePlaceholder:
			rep.Placeholders++
		case outcomeDropped:
			rep.Dropped++
		case outcomeFailed:
			rep.Failed++
			r.deps.Metrics.IncrementItemFailures()
			log.Error("article failed", "url", c.SourceURL, "error", err)
		}

		// Stay under provider throughput limits the token gate cannot see.
		madeCalls := res == outcomePersisted || res == outcomeDropped || (res == outcomeFailed && summarized)
		if madeCalls && i < len(candidates)-1 && r.opts.ItemDelay > 0 {
			if err := r.sleep(ctx, r.opts.ItemDelay); err != nil {
				continue
			}
		}
	}

	if r.deps.Cache != nil {
		if err := r.deps.Cache.Invalidate(ctx, r.opts.CacheKey); err != nil {
			log.Warn("cache invalidation failed", "key", r.opts.CacheKey, "error", err)
		}
	}

	rep.Duration = time.Since(start)
	r.deps.Metrics.IncrementBatches()
	r.deps.Metrics.RecordProcessingTime(rep.Duration)
	log.Info("batch finished",
		"persisted", rep.Persisted, "duplicates", rep.Duplicates, "placeholders", rep.Placeholders,
		"dropped", rep.Dropped, "failed", rep.Failed, "duration", rep.Duration)
	return rep
}

func (r *Runner) processItem(ctx context.Context, log *slog.Logger, c domain.RawArticle) (res outcome, summarized bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res = outcomeFailed
			err = fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
		}
	}()

	if c.IsPlaceholder || (c.Title == domain.Placeholder && c.Content == domain.Placeholder) {
		r.deps.Metrics.IncrementPlaceholders()
		log.Debug("skipping placeholder", "url", c.SourceURL)
		return outcomePlaceholder, false, nil
	}

	content := truncateRunes(c.Content, r.opts.MaxContentChars)

	dup, err := r.deps.Store.Exists(ctx, c.Title, c.SourceURL)
	if err != nil {
		return outcomeFailed, false, fmt.Errorf("dedup check: %w", err)
	}
	if dup {
		r.deps.Metrics.IncrementDuplicates()
		log.Debug("skipping duplicate", "title", c.Title, "url", c.SourceURL)
		return outcomeDuplicate, false, nil
	}

	if utf8.RuneCountInString(content) > r.opts.SummaryThreshold {
		content = r.deps.Summarizer.Summarize(ctx, content)
		summarized = true
		r.deps.Metrics.IncrementSummaries()
	}

	text := c.Title + ". " + content

	category, err := r.deps.Categorizer.Categorize(ctx, text)
	if err != nil {
		log.Warn("categorization failed", "url", c.SourceURL, "error", err)
		category = ""
	}

	mainCategory, err := r.deps.MainCategorizer.Categorize(ctx, text)
	if err != nil {
		log.Warn("main categorization failed", "url", c.SourceURL, "error", err)
	}

	sent := r.deps.Sentiment.Analyze(ctx, text)

	if category == "" || sent.Label == "" {
		r.deps.Metrics.IncrementDropped()
		log.Warn("dropping article without category or sentiment",
			"url", c.SourceURL, "category", category, "sentiment", sent.Label)
		return outcomeDropped, summarized, nil
	}

	id, err := r.deps.Store.Insert(ctx, domain.EnrichedArticle{
		Title:         c.Title,
		Content:       content,
		Category:      category,
		MainCategory:  mainCategory,
		Sentiment:     sent.Label,
		PublishedDate: c.PublishedDate,
		SourceURL:     c.SourceURL,
		SourceName:    c.SourceName,
	})
	if err != nil {
		return outcomeFailed, summarized, fmt.Errorf("persist: %w", err)
	}

	r.deps.Metrics.IncrementPersisted()
	log.Info("article stored", "id", id, "category", category, "main_category", mainCategory,
		"sentiment", sent.Label, "url", c.SourceURL)
	return outcomePersisted, summarized, nil
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
