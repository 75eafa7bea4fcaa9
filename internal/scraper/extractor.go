package scraper

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/deusflow/enrich/internal/dates"
	"github.com/deusflow/enrich/internal/domain"
)

// noiseSelectors are removed before any text is taken from a page.
const noiseSelectors = "script, style, meta, link, noscript, iframe"

// minReadableChars is the shortest readability result we trust over the
// flattened body text.
const minReadableChars = 200

const extractPrompt = `Extract the news article from the page text below.
Respond with exactly one JSON object and nothing else, using these keys:
{"title": "<headline>", "content": "<full article body as plain text>", "date": "<publication date as written on the page, or empty>"}
Do not add commentary, markdown or extra keys.`

// JSONCompleter is the part of the llm client the extractor needs.
type JSONCompleter interface {
	CompleteJSON(ctx context.Context, prompt, rawText string, out any) error
}

// Extractor turns page markup into a RawArticle with the help of a model.
type Extractor struct {
	llm      JSONCompleter
	maxInput int
	logger   *slog.Logger
}

func NewExtractor(llm JSONCompleter, maxInput int, logger *slog.Logger) *Extractor {
	if maxInput <= 0 {
		maxInput = 12000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{llm: llm, maxInput: maxInput, logger: logger.With("component", "extractor")}
}

type extracted struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Date    string `json:"date"`
}

// Extract never fails. When the model call fails it returns a placeholder
// article that the batch runner skips.
func (e *Extractor) Extract(ctx context.Context, markup, pageURL, sourceName string) domain.RawArticle {
	text, pageTitle := CleanText(markup, pageURL)
	if text == "" {
		e.logger.Warn("no text left after cleaning", "url", pageURL)
		return domain.PlaceholderArticle(pageURL, sourceName)
	}
	text = truncateRunes(text, e.maxInput)

	var out extracted
	if err := e.llm.CompleteJSON(ctx, extractPrompt, text, &out); err != nil {
		e.logger.Warn("extraction failed, using placeholder", "url", pageURL, "error", err)
		return domain.PlaceholderArticle(pageURL, sourceName)
	}

	title := strings.TrimSpace(out.Title)
	if title == "" {
		title = pageTitle
	}
	content := collapseWhitespace(out.Content)
	if content == "" {
		content = text
	}

	date := dates.Normalize(out.Date)
	if !date.Parsed {
		e.logger.Debug("unparsed publication date, using today", "url", pageURL, "raw", date.Original)
	}

	return domain.RawArticle{
		Title:         title,
		Content:       content,
		PublishedDate: date.Date,
		SourceURL:     pageURL,
		SourceName:    sourceName,
	}
}

// CleanText strips noise nodes and returns the whitespace-collapsed page text
// plus the best title candidate found in the markup.
func CleanText(markup, pageURL string) (string, string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return collapseWhitespace(markup), ""
	}
	doc.Find(noiseSelectors).Remove()
	title := extractTitle(doc)

	if html, err := doc.Html(); err == nil {
		u, _ := url.Parse(pageURL)
		if article, err := readability.FromReader(strings.NewReader(html), u); err == nil {
			if text := collapseWhitespace(article.TextContent); len(text) >= minReadableChars {
				if title == "" {
					title = strings.TrimSpace(article.Title)
				}
				return removeJunk(text), title
			}
		}
	}

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	return removeJunk(collapseWhitespace(body.Text())), title
}

// extractTitle gets article title
func extractTitle(doc *goquery.Document) string {
	selectors := []string{
		"h1",
		".article-title",
		".headline",
		".entry-title",
		"title",
	}

	for _, selector := range selectors {
		title := strings.TrimSpace(doc.Find(selector).First().Text())
		if title != "" {
			return collapseWhitespace(title)
		}
	}
	return ""
}

var junkPhrases = []string{
	"Accept all cookies",
	"We use cookies",
	"Subscribe to our newsletter",
	"Sign up for our newsletter",
	"Share this article",
	"Read more:",
	"Advertisement",
	"Skip to main content",
}

func removeJunk(text string) string {
	for _, phrase := range junkPhrases {
		text = strings.ReplaceAll(text, phrase, "")
	}
	return collapseWhitespace(text)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
