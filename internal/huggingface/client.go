// Package huggingface is a small client for the Hugging Face Inference API:
// sentence embeddings (feature extraction) and text classification.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

const DefaultEndpoint = "https://api-inference.huggingface.co"

// ErrEmptyResult is returned when the service answered with nothing usable.
var ErrEmptyResult = errors.New("huggingface: empty result")

// Label is one text-classification score.
type Label struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type Client struct {
	endpoint string
	token    string
	http     *http.Client
}

func NewClient(endpoint, token string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// FeatureExtraction embeds text with model. Token-level outputs are mean-pooled
// into a single vector.
func (c *Client) FeatureExtraction(ctx context.Context, model, text string) ([]float32, error) {
	var raw json.RawMessage
	// Sentence-transformers models default to the sentence-similarity task
	// under /models, so embeddings go through the explicit pipeline route.
	if err := c.post(ctx, "/pipeline/feature-extraction/"+model, text, &raw); err != nil {
		return nil, err
	}

	var flat []float32
	if err := json.Unmarshal(raw, &flat); err == nil {
		if len(flat) == 0 {
			return nil, ErrEmptyResult
		}
		return flat, nil
	}

	var tokens [][]float32
	if err := json.Unmarshal(raw, &tokens); err == nil {
		return meanPool(tokens)
	}

	// Some models wrap the token matrix in a batch dimension.
	var batch [][][]float32
	if err := json.Unmarshal(raw, &batch); err == nil && len(batch) > 0 {
		return meanPool(batch[0])
	}

	return nil, fmt.Errorf("decode embedding: unexpected shape")
}

// TextClassification returns labels sorted by descending score.
func (c *Client) TextClassification(ctx context.Context, model, text string) ([]Label, error) {
	var raw json.RawMessage
	if err := c.post(ctx, "/models/"+model, text, &raw); err != nil {
		return nil, err
	}

	var labels []Label
	var nested [][]Label
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested) > 0 {
		labels = nested[0]
	} else if err := json.Unmarshal(raw, &labels); err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, ErrEmptyResult
	}

	sort.SliceStable(labels, func(i, j int) bool { return labels[i].Score > labels[j].Score })
	return labels, nil
}

func (c *Client) post(ctx context.Context, path, text string, v any) error {
	body, err := json.Marshal(map[string]any{
		"inputs":  text,
		"options": map[string]any{"wait_for_model": true},
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func meanPool(tokens [][]float32) ([]float32, error) {
	if len(tokens) == 0 || len(tokens[0]) == 0 {
		return nil, ErrEmptyResult
	}
	dim := len(tokens[0])
	out := make([]float32, dim)
	for _, tok := range tokens {
		if len(tok) != dim {
			return nil, fmt.Errorf("decode embedding: ragged token matrix")
		}
		for i, v := range tok {
			out[i] += v
		}
	}
	n := float32(len(tokens))
	for i := range out {
		out[i] /= n
	}
	return out, nil
}
