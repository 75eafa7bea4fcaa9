package sentiment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/deusflow/enrich/internal/domain"
	"github.com/deusflow/enrich/internal/huggingface"
)

type recordingBackend struct{ got string }

func (r *recordingBackend) TextClassification(_ context.Context, _, text string) ([]huggingface.Label, error) {
	r.got = text
	return []huggingface.Label{{Label: "neutral", Score: 1}}, nil
}

type stubBackend struct {
	labels []huggingface.Label
	err    error
}

func (s stubBackend) TextClassification(context.Context, string, string) ([]huggingface.Label, error) {
	return s.labels, s.err
}

func newAnalyzer(b Classifier) *Analyzer {
	return NewAnalyzer(b, "model", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFold(t *testing.T) {
	assert.Equal(t, domain.SentimentPositive, Fold("POSITIVE"))
	assert.Equal(t, domain.SentimentPositive, Fold("very positive"))
	assert.Equal(t, domain.SentimentNegative, Fold("Negative"))
	assert.Equal(t, domain.SentimentNeutral, Fold("neutral"))
	assert.Equal(t, domain.SentimentNeutral, Fold("LABEL_1"))
}

func TestAnalyzeUsesTopLabel(t *testing.T) {
	a := newAnalyzer(stubBackend{labels: []huggingface.Label{{Label: "negative", Score: 0.8}, {Label: "positive", Score: 0.1}}})
	got := a.Analyze(context.Background(), "markets crash")
	assert.Equal(t, domain.SentimentNegative, got.Label)
	assert.InDelta(t, 0.8, got.Score, 1e-9)
}

func TestAnalyzeDegradesToNeutral(t *testing.T) {
	a := newAnalyzer(stubBackend{err: errors.New("503")})
	assert.Equal(t, domain.SentimentNeutral, a.Analyze(context.Background(), "anything").Label)

	a = newAnalyzer(stubBackend{})
	assert.Equal(t, domain.SentimentNeutral, a.Analyze(context.Background(), "anything").Label)
}

func TestAnalyzeTruncatesByRunes(t *testing.T) {
	b := &recordingBackend{}
	newAnalyzer(b).Analyze(context.Background(), strings.Repeat("ø", maxInputChars+10))

	assert.True(t, utf8.ValidString(b.got))
	assert.Equal(t, maxInputChars, utf8.RuneCountInString(b.got))
}
