// Package classify assigns taxonomy labels to article text, by nearest
// centroid over sentence embeddings when a backend is available and by
// keyword scoring otherwise.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/deusflow/enrich/internal/embed"
)

// Categorizer maps text to a label.
type Categorizer interface {
	Categorize(ctx context.Context, text string) (string, error)
}

// Centroid is the embedding of a label's description.
type Centroid struct {
	Label  string
	Vector []float32
}

// CentroidCategorizer picks the label whose centroid is closest to the text
// embedding. Centroids are fixed after construction.
type CentroidCategorizer struct {
	tax       Taxonomy
	embedder  embed.Embedder
	centroids []Centroid
	fallback  *KeywordCategorizer
	logger    *slog.Logger
}

var _ Categorizer = (*CentroidCategorizer)(nil)

// NewCentroidCategorizer embeds every label description in taxonomy order.
// Any failure aborts construction; callers decide whether that is fatal.
func NewCentroidCategorizer(ctx context.Context, embedder embed.Embedder, tax Taxonomy, logger *slog.Logger) (*CentroidCategorizer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(tax.Labels) == 0 {
		return nil, errors.New("taxonomy has no labels")
	}

	centroids := make([]Centroid, 0, len(tax.Labels))
	dim := 0
	for _, l := range tax.Labels {
		vec, err := embedder.Embed(ctx, l.Description)
		if err != nil {
			return nil, fmt.Errorf("embed centroid %q: %w", l.Name, err)
		}
		if dim == 0 {
			dim = len(vec)
		}
		if len(vec) == 0 || len(vec) != dim {
			return nil, fmt.Errorf("embed centroid %q: got %d dimensions, want %d", l.Name, len(vec), dim)
		}
		centroids = append(centroids, Centroid{Label: l.Name, Vector: vec})
	}

	return &CentroidCategorizer{
		tax:       tax,
		embedder:  embedder,
		centroids: centroids,
		fallback:  NewKeywordCategorizer(tax),
		logger:    logger.With("component", "classifier", "taxonomy", tax.Name),
	}, nil
}

// Centroids returns the label centroids in taxonomy order.
func (c *CentroidCategorizer) Centroids() []Centroid { return c.centroids }

// Categorize embeds text and returns the nearest label. When embedding fails
// the keyword scorer answers instead.
func (c *CentroidCategorizer) Categorize(ctx context.Context, text string) (string, error) {
	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		c.logger.Warn("embedding failed, using keyword scoring", "error", err)
		return c.fallback.Score(text), nil
	}
	label, err := Nearest(vec, c.centroids)
	if err != nil {
		c.logger.Warn("nearest centroid failed, using keyword scoring", "error", err)
		return c.fallback.Score(text), nil
	}
	return label, nil
}

// Nearest returns the label of the centroid with the smallest Euclidean
// distance to vec. The first centroid wins ties.
func Nearest(vec []float32, centroids []Centroid) (string, error) {
	best := -1
	bestDist := math.Inf(1)
	for i, c := range centroids {
		if len(c.Vector) != len(vec) {
			return "", fmt.Errorf("dimension mismatch: centroid %q has %d, input has %d", c.Label, len(c.Vector), len(vec))
		}
		d := euclidean(vec, c.Vector)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return "", errors.New("no centroids")
	}
	return centroids[best].Label, nil
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// New builds the embedding classifier for tax. If the centroids cannot be
// computed it returns the keyword categorizer together with the cause, and
// that choice holds for the life of the process.
func New(ctx context.Context, embedder embed.Embedder, tax Taxonomy, logger *slog.Logger) (Categorizer, error) {
	c, err := NewCentroidCategorizer(ctx, embedder, tax, logger)
	if err != nil {
		return NewKeywordCategorizer(tax), err
	}
	return c, nil
}

// Validated keeps a categorizer's output inside a taxonomy. Errors yield the
// taxonomy default alongside the error.
type Validated struct {
	Categorizer
	Taxonomy Taxonomy
}

func (v Validated) Categorize(ctx context.Context, text string) (string, error) {
	label, err := v.Categorizer.Categorize(ctx, text)
	if err != nil {
		return v.Taxonomy.Default, err
	}
	return v.Taxonomy.Coerce(label), nil
}
