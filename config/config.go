package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// DefaultQueries is the compiled-in list of product searches.
var DefaultQueries = []string{
	"testosterone blood test",
	"ferritin test",
	"vitamin d test",
	"cmp blood test",
	"crp blood test",
	"tsh test",
	"hemoglobin a1c test",
	"lipid panel test",
	"alt blood test",
	"ast blood test",
}

// Config holds scraper configuration.
type Config struct {
	Endpoint          string
	Engine            string
	Country           string
	Language          string
	APIKey            string
	Queries           []string
	MaxImagesPerQuery int
	Timeout           time.Duration
	OutputFile        string
	OutputFormat      string // csv, json, or dual
	UserAgent         string
	Verbose           bool
	MetricsAddr       string
}

// DefaultConfig returns the settings of the stock shopping-thumbnail job.
// The API key has no default and must be supplied by the caller.
func DefaultConfig() *Config {
	queries := make([]string, len(DefaultQueries))
	copy(queries, DefaultQueries)

	return &Config{
		Endpoint:          "https://serpapi.com/search.json",
		Engine:            "google_shopping",
		Country:           "us",
		Language:          "en",
		Queries:           queries,
		MaxImagesPerQuery: 40,
		Timeout:           30 * time.Second,
		OutputFile:        "image_urls.csv",
		OutputFormat:      "csv",
		UserAgent:         "go-scrape-thumbnails/1.0",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	parsedURL, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("endpoint must include a host")
	}

	if c.Engine == "" {
		return fmt.Errorf("engine cannot be empty")
	}
	if c.APIKey == "" {
		return fmt.Errorf("api key cannot be empty (set SERPAPI_API_KEY or -api-key)")
	}
	if len(c.Queries) == 0 {
		return fmt.Errorf("queries cannot be empty")
	}
	if c.MaxImagesPerQuery <= 0 {
		return fmt.Errorf("max images per query must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	// dual writes a .jsonl file next to the CSV one, so the two must differ.
	if c.OutputFormat == "dual" && strings.EqualFold(filepath.Ext(c.OutputFile), ".jsonl") {
		return fmt.Errorf("output file %q collides with its dual-format .jsonl companion", c.OutputFile)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
