package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-thumbnails/models"
)

// DecodeSearchResult parses a SerpApi JSON payload. Only the top-level
// "error" key and the "thumbnail" key of each shopping_results entry are
// read; other fields may carry any type.
func DecodeSearchResult(body []byte) (*models.SearchResult, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, fmt.Errorf("empty response body")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("decode search result: %w", err)
	}

	result := &models.SearchResult{}
	if raw, ok := fields["error"]; ok {
		msg := rawText(raw)
		result.Error = &msg
	}

	raw, ok := fields["shopping_results"]
	if !ok {
		return result, nil
	}
	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode shopping_results: %w", err)
	}
	result.ShoppingResults = make([]models.ShoppingItem, 0, len(entries))
	for _, entry := range entries {
		var item models.ShoppingItem
		if thumb, ok := entry["thumbnail"]; ok {
			url := rawText(thumb)
			item.Thumbnail = &url
		}
		result.ShoppingResults = append(result.ShoppingResults, item)
	}
	return result, nil
}

// rawText renders a JSON value as text: strings are unquoted, null is empty,
// anything else is kept as its JSON source.
func rawText(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return trimmed
}

// Thumbnail returns the item's thumbnail URL and whether the key was
// present. The value is returned verbatim, including an empty string.
func Thumbnail(item models.ShoppingItem) (string, bool) {
	if item.Thumbnail == nil {
		return "", false
	}
	return *item.Thumbnail, true
}

// APIError reports whether the payload carried an "error" key and returns its
// message. A present but blank or null message is still an error.
func APIError(result *models.SearchResult) (string, bool) {
	if result == nil || result.Error == nil {
		return "", false
	}
	msg := strings.TrimSpace(*result.Error)
	if msg == "" {
		msg = "unspecified api error"
	}
	return msg, true
}
