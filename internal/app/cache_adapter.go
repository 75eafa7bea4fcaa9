package app

import (
	"context"

	"github.com/deusflow/enrich/internal/cache"
	"github.com/deusflow/enrich/internal/domain"
	"github.com/deusflow/enrich/internal/storage"
)

type ArticleLister interface {
	List(ctx context.Context, opts storage.ListOptions) ([]domain.EnrichedArticle, error)
}

// NewsFeed serves the article listing. The unfiltered first page is read
// through the cache under cache.SummarizedNewsKey, which every batch run
// invalidates; anything else goes straight to the store.
type NewsFeed struct {
	store ArticleLister
	cache *cache.ReadThrough
}

func NewNewsFeed(store ArticleLister, c *cache.ReadThrough) *NewsFeed {
	return &NewsFeed{store: store, cache: c}
}

func (f *NewsFeed) List(ctx context.Context, opts storage.ListOptions) ([]domain.EnrichedArticle, error) {
	if f.cache == nil || !cacheable(opts) {
		return f.store.List(ctx, opts)
	}
	return cache.GetOrLoad(ctx, f.cache, cache.SummarizedNewsKey, func(ctx context.Context) ([]domain.EnrichedArticle, error) {
		return f.store.List(ctx, storage.ListOptions{Page: 1, PageSize: storage.DefaultPageSize})
	})
}

func cacheable(opts storage.ListOptions) bool {
	return opts.Page <= 1 &&
		(opts.PageSize == 0 || opts.PageSize == storage.DefaultPageSize) &&
		opts.Filters == (domain.Filters{})
}
