// Package rss turns configured feeds into article candidates for a tick.
package rss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"
)

// Feed is one configured source. In YAML it is either a bare URL or a
// mapping with name and url.
type Feed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

func (f *Feed) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		f.URL = strings.TrimSpace(node.Value)
		return nil
	}
	type plain Feed
	return node.Decode((*plain)(f))
}

// FeedsConfig is the YAML file layout:
//
//	feeds:
//	  - https://...
//	  - name: Example
//	    url: https://...
type FeedsConfig struct {
	Feeds []Feed `yaml:"feeds"`
}

// LoadFeeds reads the feed list from a YAML file.
func LoadFeeds(path string) ([]Feed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg FeedsConfig
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	feeds := make([]Feed, 0, len(cfg.Feeds))
	for _, fd := range cfg.Feeds {
		if fd.URL == "" {
			continue
		}
		feeds = append(feeds, fd)
	}
	if len(feeds) == 0 {
		return nil, fmt.Errorf("no feeds configured in %s", path)
	}
	return feeds, nil
}

// Candidate is a feed item worth fetching.
type Candidate struct {
	Title     string
	Link      string
	Source    string
	Published string
	published time.Time
}

type Reader struct {
	feeds   []Feed
	parser  *gofeed.Parser
	timeout time.Duration
	logger  *slog.Logger
}

func NewReader(feeds []Feed, timeout time.Duration, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Reader{
		feeds:   feeds,
		parser:  gofeed.NewParser(),
		timeout: timeout,
		logger:  logger.With("component", "rss"),
	}
}

// Candidates downloads every feed and returns up to max unique items,
// newest first. A broken feed is logged and skipped; the call only fails
// when no feed could be read.
func (r *Reader) Candidates(ctx context.Context, max int) ([]Candidate, error) {
	var (
		all  []Candidate
		seen = make(map[string]bool)
		ok   int
		errs []error
	)

	for _, feed := range r.feeds {
		items, err := r.fetch(ctx, feed)
		if err != nil {
			r.logger.Warn("feed failed", "url", feed.URL, "error", err)
			errs = append(errs, err)
			continue
		}
		ok++
		for _, c := range items {
			if c.Link == "" || seen[c.Link] {
				continue
			}
			seen[c.Link] = true
			all = append(all, c)
		}
	}

	r.logger.Info("feeds processed", "ok", ok, "total", len(r.feeds), "items", len(all))
	if ok == 0 && len(r.feeds) > 0 {
		return nil, fmt.Errorf("all feeds failed: %w", errors.Join(errs...))
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].published.After(all[j].published)
	})
	if max > 0 && len(all) > max {
		all = all[:max]
	}
	return all, nil
}

func (r *Reader) fetch(ctx context.Context, feed Feed) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	parsed, err := r.parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		return nil, err
	}

	source := feed.Name
	if source == "" {
		source = strings.TrimSpace(parsed.Title)
	}
	if source == "" {
		source = hostOf(feed.URL)
	}

	out := make([]Candidate, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		c := Candidate{
			Title:     strings.TrimSpace(it.Title),
			Link:      strings.TrimSpace(it.Link),
			Source:    source,
			Published: it.Published,
		}
		if it.PublishedParsed != nil {
			c.published = *it.PublishedParsed
		} else if it.UpdatedParsed != nil {
			c.published = *it.UpdatedParsed
		}
		out = append(out, c)
	}
	return out, nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return strings.TrimPrefix(u.Host, "www.")
}
