package metrics

import (
	"sync"
	"time"
)

// Metrics counts what the enrichment pipeline did since startup.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	CandidatesSeen      int64
	DuplicatesSkipped   int64
	PlaceholdersSkipped int64
	ArticlesPersisted   int64
	ArticlesDropped     int64
	ItemFailures        int64
	Summaries           int64
	FetchFailures       int64
	BatchesRun          int64
	TicksSkipped        int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

func New() *Metrics {
	return &Metrics{IsHealthy: true}
}

func (m *Metrics) add(field *int64, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*field += n
}

func (m *Metrics) IncrementCandidates() { m.add(&m.CandidatesSeen, 1) }
func (m *Metrics) IncrementDuplicates() { m.add(&m.DuplicatesSkipped, 1) }
func (m *Metrics) IncrementPlaceholders() { m.add(&m.PlaceholdersSkipped, 1) }
func (m *Metrics) IncrementPersisted() { m.add(&m.ArticlesPersisted, 1) }
func (m *Metrics) IncrementDropped() { m.add(&m.ArticlesDropped, 1) }
func (m *Metrics) IncrementItemFailures() { m.add(&m.ItemFailures, 1) }
func (m *Metrics) IncrementSummaries() { m.add(&m.Summaries, 1) }
func (m *Metrics) IncrementFetchFailures() { m.add(&m.FetchFailures, 1) }
func (m *Metrics) IncrementBatches() { m.add(&m.BatchesRun, 1) }
func (m *Metrics) IncrementTicksSkipped() { m.add(&m.TicksSkipped, 1) }

func (m *Metrics) RecordProcessingTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++

	if m.ProcessingCount > 0 {
		m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)
	}
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"candidates_seen":            m.CandidatesSeen,
		"duplicates_skipped":         m.DuplicatesSkipped,
		"placeholders_skipped":       m.PlaceholdersSkipped,
		"articles_persisted":         m.ArticlesPersisted,
		"articles_dropped":           m.ArticlesDropped,
		"item_failures":              m.ItemFailures,
		"summaries":                  m.Summaries,
		"fetch_failures":             m.FetchFailures,
		"batches_run":                m.BatchesRun,
		"ticks_skipped":              m.TicksSkipped,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_run_time":              m.LastRunTime.Format(time.RFC3339),
		"last_error_time":            m.LastErrorTime.Format(time.RFC3339),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
}
