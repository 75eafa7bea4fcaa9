package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/deusflow/enrich/internal/domain"
	"github.com/deusflow/enrich/internal/metrics"
	"github.com/deusflow/enrich/internal/news"
	"github.com/deusflow/enrich/internal/rss"
)

type CandidateSource interface {
	Candidates(ctx context.Context, max int) ([]rss.Candidate, error)
}

type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type ArticleExtractor interface {
	Extract(ctx context.Context, markup, pageURL, sourceName string) domain.RawArticle
}

type DuplicateChecker interface {
	Exists(ctx context.Context, title, url string) (bool, error)
}

type BatchRunner interface {
	RunBatch(ctx context.Context, candidates []domain.RawArticle) news.Report
}

// Pipeline is one scheduled tick: feeds, fetch, extract, then the batch runner.
type Pipeline struct {
	Source      CandidateSource
	Fetcher     PageFetcher
	Extractor   ArticleExtractor
	Dedup       DuplicateChecker
	Runner      BatchRunner
	MaxArticles int
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Tick fails only when no candidates could be listed. Per-article fetch and
// extraction problems are logged and skipped.
func (p *Pipeline) Tick(ctx context.Context) error {
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "pipeline")

	candidates, err := p.Source.Candidates(ctx, 0)
	if err != nil {
		return fmt.Errorf("list candidates: %w", err)
	}

	var raws []domain.RawArticle
	for _, c := range candidates {
		if p.MaxArticles > 0 && len(raws) >= p.MaxArticles {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		// Skip known links before paying for a fetch and an extraction.
		dup, err := p.Dedup.Exists(ctx, c.Title, c.Link)
		if err != nil {
			log.Warn("dedup pre-check failed", "url", c.Link, "error", err)
		} else if dup {
			continue
		}

		markup, err := p.Fetcher.Fetch(ctx, c.Link)
		if err != nil {
			if p.Metrics != nil {
				p.Metrics.IncrementFetchFailures()
			}
			log.Error("fetch failed", "url", c.Link, "error", err)
			continue
		}

		raws = append(raws, p.Extractor.Extract(ctx, markup, c.Link, c.Source))
	}

	log.Info("candidates prepared", "listed", len(candidates), "extracted", len(raws))
	if len(raws) == 0 {
		return nil
	}
	p.Runner.RunBatch(ctx, raws)
	return nil
}
