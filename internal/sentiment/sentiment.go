// Package sentiment labels article text as Positive, Neutral or Negative.
package sentiment

import (
	"context"
	"log/slog"
	"strings"

	"github.com/deusflow/enrich/internal/domain"
	"github.com/deusflow/enrich/internal/huggingface"
)

// maxInputChars keeps requests under typical classifier context limits.
const maxInputChars = 2000

// Classifier is a text-classification backend.
type Classifier interface {
	TextClassification(ctx context.Context, model, text string) ([]huggingface.Label, error)
}

var _ Classifier = (*huggingface.Client)(nil)

type Result struct {
	Label    domain.Sentiment `json:"label"`
	RawLabel string           `json:"raw_label,omitempty"`
	Score    float64          `json:"score"`
}

type Analyzer struct {
	backend Classifier
	model   string
	logger  *slog.Logger
}

func NewAnalyzer(backend Classifier, model string, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{backend: backend, model: model, logger: logger.With("component", "sentiment")}
}

// Analyze never fails: any backend problem yields Neutral.
func (a *Analyzer) Analyze(ctx context.Context, text string) Result {
	if r := []rune(text); len(r) > maxInputChars {
		text = string(r[:maxInputChars])
	}
	labels, err := a.backend.TextClassification(ctx, a.model, text)
	if err != nil || len(labels) == 0 {
		a.logger.Warn("sentiment analysis failed, defaulting to neutral", "error", err)
		return Result{Label: domain.SentimentNeutral}
	}
	top := labels[0]
	return Result{Label: Fold(top.Label), RawLabel: top.Label, Score: top.Score}
}

// Fold maps a model label onto the three buckets.
func Fold(label string) domain.Sentiment {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "positive"):
		return domain.SentimentPositive
	case strings.Contains(l, "negative"):
		return domain.SentimentNegative
	default:
		return domain.SentimentNeutral
	}
}
