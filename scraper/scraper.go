package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-thumbnails/config"
	"github.com/aluiziolira/go-scrape-thumbnails/models"
	"github.com/aluiziolira/go-scrape-thumbnails/parser"
	"github.com/aluiziolira/go-scrape-thumbnails/pipeline"
	"github.com/gocolly/colly/v2"
)

const (
	ctxKeyStart  = "start"
	ctxKeyStatus = "status"
	ctxKeyBody   = "body"
)

// Scraper issues one search API request per query through a synchronous
// colly collector and feeds the shopping results into a pipeline.
type Scraper struct {
	cfg       *config.Config
	collector *colly.Collector
	Metrics   *Metrics

	requestCount int64

	mu           sync.Mutex
	errorsByType map[string]int

	handlersOnce sync.Once
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	parsed, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("endpoint must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	// SerpApi reports bad keys and quota problems as JSON on 4xx responses.
	collector.ParseHTTPErrorResponse = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	s := &Scraper{
		cfg:          cfg,
		collector:    collector,
		errorsByType: make(map[string]int),
		Metrics:      NewMetrics(),
	}
	s.configureHandlers()
	return s, nil
}

// Run processes every configured query in order, one request at a time.
// Per-query failures are logged and skipped; only a cancelled ctx stops the
// run early.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := &models.ScraperResult{StartTime: time.Now()}
	slog.Info("starting shopping thumbnail scrape", slog.Int("queries", len(s.cfg.Queries)))

	for _, query := range s.cfg.Queries {
		if err := ctx.Err(); err != nil {
			s.fillResult(result, p)
			return result, fmt.Errorf("run interrupted: %w", err)
		}

		qr := s.processQuery(ctx, p, query)
		result.Queries = append(result.Queries, qr)
		switch qr.Status {
		case "empty":
			result.EmptyCount++
		case "error":
			result.ErrorCount++
		}
	}

	s.fillResult(result, p)
	s.Metrics.MarkRunFinished(result.EndTime)
	slog.Info("scraping complete", slog.Int("total_images", result.TotalCount))
	return result, nil
}

func (s *Scraper) fillResult(result *models.ScraperResult, p *pipeline.Pipeline) {
	result.EndTime = time.Now()
	result.TotalCount = p.Len()
	result.RequestCount = int(atomic.LoadInt64(&s.requestCount))
	result.ErrorsByType = s.snapshotErrors()
}

func (s *Scraper) processQuery(ctx context.Context, p *pipeline.Pipeline, query string) (qr models.QueryResult) {
	logger := slog.With(slog.String("query", query))
	qr = models.QueryResult{Query: query}

	fail := func(err error) models.QueryResult {
		category := s.recordError(err)
		s.Metrics.IncQuery("error")
		logger.Error("query failed", slog.String("category", category), slog.Any("error", err))
		qr.Status = "error"
		qr.Err = err.Error()
		return qr
	}

	defer func() {
		if r := recover(); r != nil {
			qr = fail(fmt.Errorf("panic while processing query: %v", r))
		}
	}()

	logger.Info("scraping results")

	res, err := s.Search(ctx, query)
	if err != nil {
		return fail(err)
	}

	if len(res.ShoppingResults) == 0 {
		s.recordError(ErrNoResults)
		s.Metrics.IncQuery("empty")
		logger.Warn("no shopping results found")
		qr.Status = "empty"
		return qr
	}

	n, err := p.Extract(query, res.ShoppingResults)
	if err != nil {
		return fail(err)
	}
	s.Metrics.AddImages(n)
	s.Metrics.IncQuery("ok")
	logger.Info("images found", slog.Int("images", n), slog.Int("items", len(res.ShoppingResults)))

	qr.Status = "ok"
	qr.Images = n
	return qr
}

// Search issues a single search request for query and decodes the response.
// An "error" field in the payload is returned as ErrAPI.
func (s *Scraper) Search(ctx context.Context, query string) (*models.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reqCtx := colly.NewContext()
	hdr := http.Header{}
	hdr.Set("Accept", "application/json")

	err := s.collector.Request(http.MethodGet, s.searchURL(query), nil, reqCtx, hdr)
	status, _ := reqCtx.GetAny(ctxKeyStatus).(int)
	body, _ := reqCtx.GetAny(ctxKeyBody).([]byte)
	if err != nil {
		redactURLError(err)
		s.Metrics.IncRequest("failed")
		return nil, classifyError(fmt.Errorf("search request: %w", err), status)
	}
	s.Metrics.IncRequest("completed")

	res, decodeErr := parser.DecodeSearchResult(body)
	if decodeErr != nil {
		if status >= http.StatusBadRequest {
			return nil, classifyError(fmt.Errorf("http status %d", status), status)
		}
		return nil, ErrDecode{Err: decodeErr}
	}

	if msg, ok := parser.APIError(res); ok {
		apiErr := ErrAPI{Message: msg}
		if status >= http.StatusBadRequest {
			apiErr.StatusCode = status
		}
		return nil, apiErr
	}
	if status >= http.StatusBadRequest {
		return nil, classifyError(fmt.Errorf("http status %d", status), status)
	}

	slog.Debug("search completed",
		slog.String("query", query),
		slog.Int("status", status),
		slog.Int("items", len(res.ShoppingResults)),
	)
	return res, nil
}

// searchURL builds the request URL. It embeds the API key and must not be logged.
func (s *Scraper) searchURL(query string) string {
	params := url.Values{}
	params.Set("engine", s.cfg.Engine)
	params.Set("q", query)
	params.Set("gl", s.cfg.Country)
	params.Set("hl", s.cfg.Language)
	params.Set("api_key", s.cfg.APIKey)
	return s.cfg.Endpoint + "?" + params.Encode()
}

// redactURLError strips the api_key parameter from any *url.Error in err's
// chain so the credential never reaches the logs.
func redactURLError(err error) {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return
	}
	u, parseErr := url.Parse(urlErr.URL)
	if parseErr != nil {
		urlErr.URL = "<redacted>"
		return
	}
	q := u.Query()
	if q.Has("api_key") {
		q.Set("api_key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	urlErr.URL = u.String()
}

func (s *Scraper) configureHandlers() {
	s.handlersOnce.Do(func() {
		s.collector.OnRequest(func(r *colly.Request) {
			r.Ctx.Put(ctxKeyStart, time.Now())
			current := atomic.AddInt64(&s.requestCount, 1)
			s.Metrics.IncRequest("started")
			slog.Debug("search request", slog.Int64("requests", current))
		})

		s.collector.OnResponse(func(r *colly.Response) {
			r.Ctx.Put(ctxKeyStatus, r.StatusCode)
			r.Ctx.Put(ctxKeyBody, r.Body)
			if r.StatusCode >= http.StatusBadRequest {
				slog.Warn("error status from search api", slog.Int("status", r.StatusCode))
			}
			if start, ok := r.Ctx.GetAny(ctxKeyStart).(time.Time); ok {
				s.Metrics.ObserveDuration(time.Since(start))
			}
		})

		s.collector.OnError(func(r *colly.Response, err error) {
			if r == nil || r.Ctx == nil {
				return
			}
			r.Ctx.Put(ctxKeyStatus, r.StatusCode)
			r.Ctx.Put(ctxKeyBody, r.Body)
		})
	})
}

func (s *Scraper) recordError(err error) string {
	category := errorTypeLabel(err)
	s.mu.Lock()
	s.errorsByType[category]++
	s.mu.Unlock()
	s.Metrics.IncError(category)
	return category
}

func (s *Scraper) snapshotErrors() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusUnauthorized:
			return ErrUnauthorized{Err: wrapped}
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
	}

	return err
}
