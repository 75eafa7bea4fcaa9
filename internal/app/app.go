// Package app wires the enrichment service together and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deusflow/enrich/internal/admin"
	"github.com/deusflow/enrich/internal/cache"
	"github.com/deusflow/enrich/internal/classify"
	"github.com/deusflow/enrich/internal/config"
	"github.com/deusflow/enrich/internal/embed"
	"github.com/deusflow/enrich/internal/huggingface"
	"github.com/deusflow/enrich/internal/llm"
	"github.com/deusflow/enrich/internal/metrics"
	"github.com/deusflow/enrich/internal/news"
	"github.com/deusflow/enrich/internal/ratelimit"
	"github.com/deusflow/enrich/internal/rss"
	"github.com/deusflow/enrich/internal/scheduler"
	"github.com/deusflow/enrich/internal/scraper"
	"github.com/deusflow/enrich/internal/sentiment"
	"github.com/deusflow/enrich/internal/storage"
	"github.com/deusflow/enrich/internal/summary"
	"github.com/deusflow/enrich/internal/telegram"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	store     storage.Store
	runner    *news.Runner
	pipeline  *Pipeline
	scheduler *scheduler.Scheduler
	admin     *admin.Server
	notifier  *telegram.Notifier

	closers []func() error
}

// New builds every component. Classifier centroids are computed here, before
// the scheduler can fire, so an embedding outage shows up at startup.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, logger: logger, metrics: metrics.New()}
	ready := false
	defer func() {
		if !ready {
			_ = a.Close()
		}
	}()

	provider, err := a.newProvider(ctx)
	if err != nil {
		return nil, err
	}
	gate := ratelimit.NewGate(cfg.TokensPerWindow, cfg.TokenWindow, ratelimit.WithLogger(logger))
	llmCfg := llm.DefaultConfig()
	llmCfg.MaxAttempts = cfg.LLMMaxAttempts
	llmCfg.MaxTokens = cfg.LLMMaxTokens
	client := llm.NewClient(provider, gate, llmCfg, logger)

	hf := huggingface.NewClient(cfg.HFEndpoint, cfg.HFAPIToken)

	fineTax, mainTax := classify.FineTaxonomy(), classify.MainTaxonomy()
	fine, err := a.newClassifier(ctx, fineTax, a.newEmbedder(ctx, provider, hf, cfg.CategoryEmbedder, cfg.CategoryEmbeddingModel))
	if err != nil {
		return nil, err
	}
	mainCat, err := a.newClassifier(ctx, mainTax, a.newEmbedder(ctx, provider, hf, cfg.MainCategoryEmbedder, cfg.MainCategoryEmbeddingModel))
	if err != nil {
		return nil, err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, a.store.Close)

	cacheStore, err := a.openCache(ctx)
	if err != nil {
		return nil, err
	}
	readThrough := cache.NewReadThrough(cacheStore, cfg.CacheTTL, logger)

	a.runner = news.NewRunner(news.Deps{
		Store:           a.store,
		Summarizer:      summary.NewSummarizer(client, logger),
		Categorizer:     classify.Validated{Categorizer: fine, Taxonomy: fineTax},
		MainCategorizer: classify.Validated{Categorizer: mainCat, Taxonomy: mainTax},
		Sentiment:       sentiment.NewAnalyzer(hf, cfg.SentimentModel, logger),
		Cache:           readThrough,
		Metrics:         a.metrics,
		Logger:          logger,
	}, news.Options{
		MaxContentChars:  cfg.MaxContentChars,
		SummaryThreshold: cfg.SummaryThreshold,
		ItemDelay:        cfg.ItemDelay,
	})

	feeds, err := rss.LoadFeeds(cfg.FeedsConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load feeds: %w", err)
	}
	fetchCfg := scraper.DefaultFetcherConfig()
	fetchCfg.Timeout = cfg.FetchTimeout

	a.pipeline = &Pipeline{
		Source:      rss.NewReader(feeds, cfg.FetchTimeout, logger),
		Fetcher:     scraper.NewFetcher(fetchCfg, logger),
		Extractor:   scraper.NewExtractor(client, cfg.ExtractMaxInput, logger),
		Dedup:       a.store,
		Runner:      a.runner,
		MaxArticles: cfg.MaxArticlesPerRun,
		Metrics:     a.metrics,
		Logger:      logger,
	}

	a.notifier = telegram.NewNotifier(cfg.TelegramToken, cfg.TelegramChatID, logger)
	if !cfg.AlertsEnabled() {
		logger.Info("telegram failure alerts disabled")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	a.scheduler, err = scheduler.New(cfg.Schedule, loc, a.tick, a.metrics, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AdminAddr != "" {
		if !cfg.Debug {
			gin.SetMode(gin.ReleaseMode)
		}
		a.admin = admin.NewServer(cfg.AdminAddr, admin.Deps{
			Scheduler:   a.scheduler,
			Runner:      a.runner,
			News:        NewNewsFeed(a.store, readThrough),
			Metrics:     a.metrics,
			Budget:      gate.Stats,
			Logger:      logger,
			BaseContext: ctx,
			Token:       cfg.AdminToken,
		})
	}
	ready = true
	return a, nil
}

// tick runs the pipeline and reports failures to the alert channel.
func (a *App) tick(ctx context.Context) error {
	err := a.pipeline.Tick(ctx)
	if err != nil && a.notifier.Enabled() {
		if aerr := a.notifier.Alert(ctx, "Enrichment tick failed", err); aerr != nil {
			a.logger.Warn("failure alert not delivered", "error", aerr)
		}
	}
	return err
}

// Run starts the scheduler and admin API and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.SchedulerEnabled {
		a.scheduler.Start(ctx)
	} else {
		a.logger.Info("scheduler disabled at startup")
	}

	errCh := make(chan error, 1)
	if a.admin != nil {
		go func() { errCh <- a.admin.ListenAndServe() }()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			runErr = fmt.Errorf("admin server: %w", err)
		}
	}

	a.scheduler.Stop()
	if a.admin != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.admin.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("admin shutdown", "error", err)
		}
	}
	return runErr
}

// RunOnce executes a single tick synchronously.
func (a *App) RunOnce(ctx context.Context) error {
	return a.scheduler.RunNow(ctx)
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) newProvider(ctx context.Context) (llm.Provider, error) {
	switch a.cfg.LLMProvider {
	case "gemini":
		g, err := llm.NewGemini(ctx, a.cfg.GeminiAPIKey, a.cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { g.Close(); return nil })
		return g, nil
	case "openai":
		return llm.NewOpenAI(a.cfg.OpenAIAPIKey, a.cfg.OpenAIBaseURL, a.cfg.OpenAIModel), nil
	case "anthropic":
		return llm.NewAnthropic(a.cfg.AnthropicAPIKey, a.cfg.AnthropicModel), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", a.cfg.LLMProvider)
	}
}

// newEmbedder reuses the completion provider's client when the backends
// match. A backend that cannot be built degrades to keyword scoring.
func (a *App) newEmbedder(ctx context.Context, provider llm.Provider, hf *huggingface.Client, kind, model string) embed.Embedder {
	switch kind {
	case "huggingface":
		return embed.HuggingFace{Client: hf, Model: model}
	case "gemini":
		model = embeddingModel(model, "text-embedding-004")
		if g, ok := provider.(*llm.Gemini); ok {
			return embed.Gemini{Client: g.GenAI(), Model: model}
		}
		if a.cfg.GeminiAPIKey == "" {
			a.logger.Warn("gemini embedder selected without GEMINI_API_KEY")
			return embed.Disabled{}
		}
		g, err := llm.NewGemini(ctx, a.cfg.GeminiAPIKey, "")
		if err != nil {
			a.logger.Warn("gemini embedder unavailable", "error", err)
			return embed.Disabled{}
		}
		a.closers = append(a.closers, func() error { g.Close(); return nil })
		return embed.Gemini{Client: g.GenAI(), Model: model}
	case "openai":
		model = embeddingModel(model, "text-embedding-3-small")
		if o, ok := provider.(*llm.OpenAI); ok {
			return embed.OpenAI{Client: o.API(), Model: model}
		}
		if a.cfg.OpenAIAPIKey == "" {
			a.logger.Warn("openai embedder selected without OPENAI_API_KEY")
			return embed.Disabled{}
		}
		return embed.OpenAI{Client: llm.NewOpenAI(a.cfg.OpenAIAPIKey, a.cfg.OpenAIBaseURL, "").API(), Model: model}
	default:
		return embed.Disabled{}
	}
}

// embeddingModel swaps a Hugging Face repository id (the config default) for
// the provider's own default model.
func embeddingModel(model, def string) string {
	if model == "" || strings.Contains(model, "/") {
		return def
	}
	return model
}

func (a *App) newClassifier(ctx context.Context, tax classify.Taxonomy, e embed.Embedder) (classify.Categorizer, error) {
	c, err := classify.New(ctx, e, tax, a.logger)
	if err == nil {
		a.logger.Info("classifier ready", "taxonomy", tax.Name, "mode", "embedding", "labels", tax.Names())
		return c, nil
	}
	if a.cfg.RequireEmbeddings {
		return nil, fmt.Errorf("init %s classifier: %w", tax.Name, err)
	}
	a.logger.Warn("classifier using keyword scoring", "taxonomy", tax.Name, "error", err)
	return c, nil
}

func (a *App) openStore(ctx context.Context) (storage.Store, error) {
	switch a.cfg.StorageDriver {
	case "postgres":
		return storage.OpenSQL(ctx, "postgres", a.cfg.DatabaseURL, a.logger)
	case "sqlite":
		return storage.OpenSQL(ctx, "sqlite", a.cfg.SQLitePath, a.logger)
	case "file":
		return storage.NewFileStore(a.cfg.StoreFilePath)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", a.cfg.StorageDriver)
	}
}

func (a *App) openCache(ctx context.Context) (cache.Store, error) {
	switch a.cfg.CacheBackend {
	case "redis":
		r, err := cache.NewRedis(ctx, a.cfg.RedisURL, "enrich:")
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, r.Close)
		return r, nil
	default:
		m := cache.NewMemory(time.Minute)
		a.closers = append(a.closers, m.Close)
		return m, nil
	}
}
