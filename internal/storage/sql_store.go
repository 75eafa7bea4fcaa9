package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/deusflow/enrich/internal/domain"
)

const table = "enriched_articles"

var articleColumns = []string{
	"id", "title", "content", "category", "main_category", "sentiment",
	"published_date", "source_url", "source_name", "created_at",
}

// SQLStore persists enriched articles in Postgres or SQLite.
type SQLStore struct {
	db     *sql.DB
	driver string
	sb     sq.StatementBuilderType
	now    func() time.Time
	logger *slog.Logger
}

var _ Store = (*SQLStore)(nil)

// OpenSQL connects with driver "postgres" or "sqlite" and creates the schema
// if it does not exist yet.
func OpenSQL(ctx context.Context, driver, dsn string, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var placeholder sq.PlaceholderFormat
	switch driver {
	case "postgres":
		placeholder = sq.Dollar
	case "sqlite":
		placeholder = sq.Question
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if driver == "sqlite" {
		// One writer keeps SQLite free of "database is locked" errors.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLStore{
		db:     db,
		driver: driver,
		sb:     sq.StatementBuilder.PlaceholderFormat(placeholder),
		now:    time.Now,
		logger: logger.With("component", "storage", "driver", driver),
	}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info("database connected")
	return s, nil
}

// initSchema creates the necessary tables if they don't exist
func (s *SQLStore) initSchema(ctx context.Context) error {
	idColumn := "id SERIAL PRIMARY KEY"
	if s.driver == "sqlite" {
		idColumn = "id INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
			` + idColumn + `,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			category TEXT NOT NULL,
			main_category TEXT NOT NULL,
			sentiment TEXT NOT NULL,
			published_date TEXT NOT NULL DEFAULT '',
			source_url TEXT NOT NULL,
			source_name TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_enriched_articles_title ON ` + table + `(title)`,
		`CREATE INDEX IF NOT EXISTS idx_enriched_articles_source_url ON ` + table + `(source_url)`,
		`CREATE INDEX IF NOT EXISTS idx_enriched_articles_created_at ON ` + table + `(created_at)`,
	}
	if s.driver == "sqlite" {
		stmts = append([]string{`PRAGMA journal_mode=WAL`}, stmts...)
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Exists reports whether an article with the same title or the same source
// URL was already stored.
func (s *SQLStore) Exists(ctx context.Context, title, url string) (bool, error) {
	query, args, err := s.sb.Select("1").From(table).
		Where(sq.Or{sq.Eq{"title": title}, sq.Eq{"source_url": url}}).
		Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return true, nil
}

// FindArticle returns the first article whose title or URL equals titleOrURL,
// or nil when there is none.
func (s *SQLStore) FindArticle(ctx context.Context, titleOrURL string) (*domain.EnrichedArticle, error) {
	query, args, err := s.sb.Select(articleColumns...).From(table).
		Where(sq.Or{sq.Eq{"title": titleOrURL}, sq.Eq{"source_url": titleOrURL}}).
		OrderBy("id").Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find query: %w", err)
	}

	a, err := scanArticle(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find article: %w", err)
	}
	return &a, nil
}

// Insert stores a new article and returns its id.
func (s *SQLStore) Insert(ctx context.Context, a domain.EnrichedArticle) (int64, error) {
	if err := validate(a); err != nil {
		return 0, err
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	query, args, err := s.sb.Insert(table).
		Columns(articleColumns[1:]...).
		Values(a.Title, a.Content, a.Category, a.MainCategory, string(a.Sentiment),
			a.PublishedDate, a.SourceURL, a.SourceName, createdAt.Unix()).
		Suffix("RETURNING id").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert article: %w", err)
	}
	return id, nil
}

// List returns one page of articles, newest first.
func (s *SQLStore) List(ctx context.Context, opts ListOptions) ([]domain.EnrichedArticle, error) {
	opts = opts.normalized()

	q := s.sb.Select(articleColumns...).From(table)
	if opts.Filters.Category != "" {
		q = q.Where(sq.Eq{"category": opts.Filters.Category})
	}
	if opts.Filters.MainCategory != "" {
		q = q.Where(sq.Eq{"main_category": opts.Filters.MainCategory})
	}
	if opts.Filters.Sentiment != "" {
		q = q.Where(sq.Eq{"sentiment": opts.Filters.Sentiment})
	}
	query, args, err := q.OrderBy("created_at DESC", "id DESC").
		Limit(uint64(opts.PageSize)).
		Offset(uint64((opts.Page - 1) * opts.PageSize)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var out []domain.EnrichedArticle
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// Count returns the number of stored articles.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	query, args, err := s.sb.Select("COUNT(*)").From(table).ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return n, nil
}

func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (domain.EnrichedArticle, error) {
	var (
		a         domain.EnrichedArticle
		sentiment string
		createdAt int64
	)
	err := row.Scan(&a.ID, &a.Title, &a.Content, &a.Category, &a.MainCategory, &sentiment,
		&a.PublishedDate, &a.SourceURL, &a.SourceName, &createdAt)
	if err != nil {
		return a, err
	}
	a.Sentiment = domain.Sentiment(sentiment)
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	return a, nil
}
