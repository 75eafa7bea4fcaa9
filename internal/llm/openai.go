package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI is a Provider for any OpenAI compatible chat completion endpoint
// (OpenAI itself, Groq, local gateways).
type OpenAI struct {
	client *openai.Client
	model  string
	name   string
}

var _ Provider = (*OpenAI)(nil)

// NewOpenAI creates a provider. An empty baseURL targets api.openai.com.
func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	name := "openai"
	if baseURL != "" {
		cfg.BaseURL = baseURL
		name = "openai-compatible"
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model, name: name}
}

// API exposes the underlying client so the embedder can share it.
func (o *OpenAI) API() *openai.Client { return o.client }

func (o *OpenAI) Name() string { return o.name }

func (o *OpenAI) Generate(ctx context.Context, req Request) (Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return Response{}, &RateLimitError{Provider: o.name, Message: apiErr.Message, Err: err}
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return Response{}, &RateLimitError{Provider: o.name, Message: reqErr.Error(), Err: err}
		}
		return Response{}, fmt.Errorf("%s chat completion: %w", o.name, err)
	}

	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("no response from %s", o.name)
	}
	return Response{Text: resp.Choices[0].Message.Content, TokensUsed: resp.Usage.TotalTokens}, nil
}
