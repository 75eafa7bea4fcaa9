// Package storage persists enriched articles and answers the duplicate check
// that keeps batch runs idempotent.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/deusflow/enrich/internal/domain"
)

// ErrIncomplete is returned when an article lacks a category or sentiment.
var ErrIncomplete = errors.New("article is missing category or sentiment")

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Store is implemented by every backend.
type Store interface {
	Exists(ctx context.Context, title, url string) (bool, error)
	FindArticle(ctx context.Context, titleOrURL string) (*domain.EnrichedArticle, error)
	Insert(ctx context.Context, a domain.EnrichedArticle) (int64, error)
	List(ctx context.Context, opts ListOptions) ([]domain.EnrichedArticle, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// ListOptions selects a page. Page is 1-based.
type ListOptions struct {
	Page     int
	PageSize int
	Filters  domain.Filters
}

func (o ListOptions) normalized() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.PageSize > MaxPageSize {
		o.PageSize = MaxPageSize
	}
	return o
}

func validate(a domain.EnrichedArticle) error {
	if a.Category == "" || a.Sentiment == "" {
		return fmt.Errorf("%w: %q", ErrIncomplete, a.Title)
	}
	return nil
}
