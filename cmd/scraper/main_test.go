package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-thumbnails/models"
)

func TestPrintSummary(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	result := &models.ScraperResult{
		Queries: []models.QueryResult{
			{Query: "ferritin test", Status: "ok", Images: 40},
			{Query: "tsh test", Status: "error", Err: "api_error: Invalid API key."},
			{Query: "crp blood test", Status: "empty"},
		},
		StartTime:    start,
		EndTime:      start.Add(3 * time.Second),
		TotalCount:   40,
		ErrorCount:   1,
		EmptyCount:   1,
		ErrorsByType: map[string]int{"api_error": 1, "no_results": 1},
		RequestCount: 3,
	}
	metrics := map[string]interface{}{
		"processed_images": int64(40),
		"skipped_items":    map[string]int{"missing_thumbnail": 2},
	}

	var buf bytes.Buffer
	printSummary(&buf, result, "image_urls.csv", nil, metrics)
	out := buf.String()

	for _, want := range []string{
		"Queries:       3",
		"Requests:      3",
		"Succeeded:     1",
		"Total images:  40",
		"missing_thumbnail",
		"api_error: Invalid API key.",
		"Output file:   image_urls.csv\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestPrintSummaryWriteError(t *testing.T) {
	result := &models.ScraperResult{}
	var buf bytes.Buffer
	printSummary(&buf, result, "out/image_urls.csv", errors.New("permission denied"), nil)

	if !strings.Contains(buf.String(), "NOT WRITTEN: permission denied") {
		t.Fatalf("summary should report the write failure:\n%s", buf.String())
	}
}
