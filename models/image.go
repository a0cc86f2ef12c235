// Package models defines data structures for the scraper.
package models

import "time"

// ImageRecord pairs a search query with one thumbnail URL found for it.
type ImageRecord struct {
	Query        string `csv:"topic_name" json:"topic_name"`
	ThumbnailURL string `csv:"topic_name_image_url" json:"topic_name_image_url"`
}

// SearchResult is the subset of a SerpApi response the job reads. Error is
// non-nil whenever the payload carries an "error" key, whatever its value.
type SearchResult struct {
	Error           *string
	ShoppingResults []ShoppingItem
}

// ShoppingItem is one entry of shopping_results. Thumbnail is nil only when
// the key is absent from the entry.
type ShoppingItem struct {
	Thumbnail *string
}

// QueryResult summarises what happened to a single query.
type QueryResult struct {
	Query  string
	Images int
	Status string // ok, empty, or error
	Err    string
}

// ScraperResult holds the overall result of a scraping run
type ScraperResult struct {
	Queries      []QueryResult
	StartTime    time.Time
	EndTime      time.Time
	TotalCount   int
	ErrorCount   int
	EmptyCount   int
	ErrorsByType map[string]int
	RequestCount int
}
