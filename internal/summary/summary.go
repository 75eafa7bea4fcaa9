// Package summary compresses long article bodies into one paragraph.
package summary

import (
	"context"
	"log/slog"
	"strings"
)

const prompt = `Summarize the following news article in one concise paragraph.
Return only the summary, no preamble, no headings and no quotation marks.`

// TextCompleter is the part of the llm client the summarizer needs.
type TextCompleter interface {
	CompleteText(ctx context.Context, prompt, rawText string) (string, error)
}

type Summarizer struct {
	llm    TextCompleter
	logger *slog.Logger
}

func NewSummarizer(llm TextCompleter, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{llm: llm, logger: logger.With("component", "summarizer")}
}

// Summarize returns text unchanged when the model call fails or answers
// with nothing.
func (s *Summarizer) Summarize(ctx context.Context, text string) string {
	out, err := s.llm.CompleteText(ctx, prompt, text)
	if err != nil {
		s.logger.Warn("summarization failed, keeping original text", "error", err)
		return text
	}
	out = cleanSummary(out)
	if out == "" {
		s.logger.Warn("empty summary, keeping original text")
		return text
	}
	return out
}

// cleanSummary drops labels some models prepend despite the prompt.
func cleanSummary(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"Summary:", "SUMMARY:", "Here is the summary:", "Here's the summary:"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
	}
	return strings.Trim(s, `"`)
}
