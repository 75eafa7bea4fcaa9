package domain

import "time"

// Placeholder is written into every text field of a RawArticle whose
// extraction failed.
const Placeholder = "error"

// RawArticle is what the extractor produced from one fetched page.
// It lives only for the duration of a batch and is never stored as is.
type RawArticle struct {
	Title         string `json:"title"`
	Content       string `json:"content"`
	PublishedDate string `json:"published_date"`
	SourceURL     string `json:"source_url"`
	SourceName    string `json:"source_name"`

	// IsPlaceholder marks a record produced after extraction failed.
	IsPlaceholder bool `json:"-"`
}

// PlaceholderArticle is returned instead of an error when extraction fails
// so one bad page never aborts a batch.
func PlaceholderArticle(url, sourceName string) RawArticle {
	return RawArticle{
		Title:         Placeholder,
		Content:       Placeholder,
		PublishedDate: Placeholder,
		SourceURL:     url,
		SourceName:    sourceName,
		IsPlaceholder: true,
	}
}

// Sentiment is the folded label of the sentiment stage.
type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNeutral  Sentiment = "Neutral"
	SentimentNegative Sentiment = "Negative"
)

// EnrichedArticle is persisted exactly once per logical article. Category
// and Sentiment are never empty on a stored record.
type EnrichedArticle struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Category      string    `json:"category"`
	MainCategory  string    `json:"main_category"`
	Sentiment     Sentiment `json:"sentiment"`
	PublishedDate string    `json:"published_date"`
	SourceURL     string    `json:"source_url"`
	SourceName    string    `json:"source_name"`
	CreatedAt     time.Time `json:"created_at"`
}

// Filters narrow a listing of enriched articles. Empty fields match anything.
type Filters struct {
	Category     string `json:"category,omitempty" form:"category"`
	MainCategory string `json:"main_category,omitempty" form:"main_category"`
	Sentiment    string `json:"sentiment,omitempty" form:"sentiment"`
}
