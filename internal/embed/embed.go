// Package embed turns text into sentence embeddings using one of the
// configured backends.
package embed

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	openai "github.com/sashabaranov/go-openai"

	"github.com/deusflow/enrich/internal/huggingface"
)

// ErrUnavailable is returned by Disabled and when no backend is configured.
var ErrUnavailable = errors.New("embedding backend unavailable")

// Embedder maps text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HuggingFace embeds through the Inference API feature-extraction task.
type HuggingFace struct {
	Client *huggingface.Client
	Model  string
}

func (h HuggingFace) Embed(ctx context.Context, text string) ([]float32, error) {
	return h.Client.FeatureExtraction(ctx, h.Model, text)
}

// Gemini embeds with a Google embedding model.
type Gemini struct {
	Client *genai.Client
	Model  string
}

func (g Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := g.Client.EmbeddingModel(g.Model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini embed: empty embedding")
	}
	return res.Embedding.Values, nil
}

// OpenAI embeds with an OpenAI compatible embeddings endpoint.
type OpenAI struct {
	Client *openai.Client
	Model  string
}

func (o OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.Client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(o.Model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai embed: empty embedding")
	}
	return resp.Data[0].Embedding, nil
}

// Disabled always fails; classifiers built on it use keyword scoring.
type Disabled struct{}

func (Disabled) Embed(context.Context, string) ([]float32, error) { return nil, ErrUnavailable }

var (
	_ Embedder = HuggingFace{}
	_ Embedder = Gemini{}
	_ Embedder = OpenAI{}
	_ Embedder = Disabled{}
)
