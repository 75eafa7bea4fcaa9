package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/deusflow/enrich/internal/domain"
)

// FileStore keeps enriched articles in a JSON file. It is meant for local
// runs without a database.
type FileStore struct {
	filePath string
	items    []domain.EnrichedArticle
	byTitle  map[string]int
	byURL    map[string]int
	nextID   int64
	mu       sync.RWMutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store and loads existing records from filePath.
func NewFileStore(filePath string) (*FileStore, error) {
	fs := &FileStore{
		filePath: filePath,
		byTitle:  make(map[string]int),
		byURL:    make(map[string]int),
		nextID:   1,
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

// load loads existing records from file
func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read store file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var items []domain.EnrichedArticle
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("failed to unmarshal store: %w", err)
	}
	for _, a := range items {
		fs.index(a)
	}
	return nil
}

func (fs *FileStore) index(a domain.EnrichedArticle) {
	i := len(fs.items)
	fs.items = append(fs.items, a)
	if _, ok := fs.byTitle[a.Title]; !ok {
		fs.byTitle[a.Title] = i
	}
	if _, ok := fs.byURL[a.SourceURL]; !ok {
		fs.byURL[a.SourceURL] = i
	}
	if a.ID >= fs.nextID {
		fs.nextID = a.ID + 1
	}
}

// save writes all records through a temp file so a crash never leaves a
// truncated store behind. Must be called with mu held.
func (fs *FileStore) save(items []domain.EnrichedArticle) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}
	if dir := filepath.Dir(fs.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create store dir: %w", err)
		}
	}
	tmp := fs.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	return os.Rename(tmp, fs.filePath)
}

func (fs *FileStore) Exists(_ context.Context, title, url string) (bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	_, byTitle := fs.byTitle[title]
	_, byURL := fs.byURL[url]
	return byTitle || byURL, nil
}

func (fs *FileStore) FindArticle(_ context.Context, titleOrURL string) (*domain.EnrichedArticle, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	i, ok := fs.byTitle[titleOrURL]
	if j, okURL := fs.byURL[titleOrURL]; okURL && (!ok || j < i) {
		i, ok = j, true
	}
	if !ok {
		return nil, nil
	}
	a := fs.items[i]
	return &a, nil
}

func (fs *FileStore) Insert(_ context.Context, a domain.EnrichedArticle) (int64, error) {
	if err := validate(a); err != nil {
		return 0, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	a.ID = fs.nextID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	// Indexed only after the write succeeds.
	next := make([]domain.EnrichedArticle, len(fs.items), len(fs.items)+1)
	copy(next, fs.items)
	if err := fs.save(append(next, a)); err != nil {
		return 0, err
	}
	fs.index(a)
	return a.ID, nil
}

func (fs *FileStore) List(_ context.Context, opts ListOptions) ([]domain.EnrichedArticle, error) {
	opts = opts.normalized()

	fs.mu.RLock()
	matched := make([]domain.EnrichedArticle, 0, len(fs.items))
	for _, a := range fs.items {
		if matches(a, opts.Filters) {
			matched = append(matched, a)
		}
	}
	fs.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	start := (opts.Page - 1) * opts.PageSize
	if start >= len(matched) {
		return nil, nil
	}
	end := start + opts.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func (fs *FileStore) Count(context.Context) (int, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return len(fs.items), nil
}

func (fs *FileStore) Close() error { return nil }

func matches(a domain.EnrichedArticle, f domain.Filters) bool {
	if f.Category != "" && a.Category != f.Category {
		return false
	}
	if f.MainCategory != "" && a.MainCategory != f.MainCategory {
		return false
	}
	if f.Sentiment != "" && string(a.Sentiment) != f.Sentiment {
		return false
	}
	return true
}
