package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-thumbnails/models"
	"github.com/aluiziolira/go-scrape-thumbnails/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrPipelineClosed is returned when Extract is called after Flush.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(records []models.ImageRecord) error
	Close() error
	Validate() error
}

// Pipeline accumulates image records in discovery order, applying the
// per-query de-duplication and cap.
type Pipeline struct {
	maxPerQuery int
	metrics     *metrics

	mu      sync.Mutex // guards records/closed
	records []models.ImageRecord
	closed  bool
}

// NewPipeline builds a pipeline that keeps at most maxPerQuery records per query.
func NewPipeline(maxPerQuery int) *Pipeline {
	if maxPerQuery <= 0 {
		maxPerQuery = 1
	}
	return &Pipeline{
		maxPerQuery: maxPerQuery,
		metrics:     newMetrics(),
	}
}

// Extract scans items in order and appends (query, thumbnail) records for
// thumbnails not yet seen for this query. Scanning stops once the per-query
// cap is reached. It returns the number of records added.
func (p *Pipeline) Extract(query string, items []models.ShoppingItem) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrPipelineClosed
	}

	// Never evicts: at most maxPerQuery keys are ever added.
	seen, err := lru.New[string, struct{}](p.maxPerQuery)
	if err != nil {
		return 0, fmt.Errorf("create seen set: %w", err)
	}

	count := 0
	for _, item := range items {
		url, ok := parser.Thumbnail(item)
		if !ok {
			p.metrics.addSkipped("missing_thumbnail")
			continue
		}
		if seen.Contains(url) {
			p.metrics.addSkipped("duplicate_url")
			continue
		}
		seen.Add(url, struct{}{})
		p.records = append(p.records, models.ImageRecord{Query: query, ThumbnailURL: url})
		count++
		if count >= p.maxPerQuery {
			break
		}
	}

	p.metrics.addProcessed(int64(count))
	return count, nil
}

// Records returns a copy of the accumulated records in production order.
func (p *Pipeline) Records() []models.ImageRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.ImageRecord, len(p.records))
	copy(out, p.records)
	return out
}

// Len returns the number of accumulated records.
func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// Flush writes every accumulated record to w in a single pass and closes it.
// The pipeline accepts no further input afterwards.
func (p *Pipeline) Flush(w OutputWriter) error {
	p.mu.Lock()
	p.closed = true
	records := p.records
	p.mu.Unlock()

	if err := w.Write(records); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return errors.Join(fmt.Errorf("write records: %w", err), closeErr)
		}
		return fmt.Errorf("write records: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Save opens filename for the given format (truncating it), writes all
// records and validates the result. Nothing is retried or cleaned up on failure.
func (p *Pipeline) Save(format, filename string) error {
	w, err := NewWriter(format, filename)
	if err != nil {
		return fmt.Errorf("create writer: %w", err)
	}
	if err := p.Flush(w); err != nil {
		return err
	}
	if err := w.Validate(); err != nil {
		return fmt.Errorf("validate output: %w", err)
	}
	return nil
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

type metrics struct {
	mu        sync.Mutex
	processed int64
	skipped   map[string]int
}

func newMetrics() *metrics {
	return &metrics{
		skipped: make(map[string]int),
	}
}

func (m *metrics) addProcessed(n int64) {
	m.mu.Lock()
	m.processed += n
	m.mu.Unlock()
}

func (m *metrics) addSkipped(kind string) {
	m.mu.Lock()
	m.skipped[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copySkipped := make(map[string]int, len(m.skipped))
	for k, v := range m.skipped {
		copySkipped[k] = v
	}

	return map[string]interface{}{
		"processed_images": m.processed,
		"skipped_items":    copySkipped,
	}
}
