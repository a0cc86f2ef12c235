// Package pipeline accumulates image records and writes them as CSV, JSON lines, or both.
package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aluiziolira/go-scrape-thumbnails/models"
)

// MultiWriter fans one batch of records out to several OutputWriters.
type MultiWriter struct {
	writers []OutputWriter
}

// NewMultiWriter wraps writers in the order given.
func NewMultiWriter(writers ...OutputWriter) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// NewDualWriter writes CSV to csvFilename and JSON lines to jsonFilename.
// The two paths must name different files.
func NewDualWriter(csvFilename, jsonFilename string) (*MultiWriter, error) {
	if strings.EqualFold(filepath.Clean(csvFilename), filepath.Clean(jsonFilename)) {
		return nil, fmt.Errorf("dual output needs two files, got %q twice", csvFilename)
	}

	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, err
	}
	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, err
	}
	return NewMultiWriter(csvWriter, jsonWriter), nil
}

// Write stops at the first writer that fails.
func (mw *MultiWriter) Write(records []models.ImageRecord) error {
	for i, w := range mw.writers {
		if err := w.Write(records); err != nil {
			return fmt.Errorf("writer %d: %w", i, err)
		}
	}
	return nil
}

// Close closes every writer, even after a failure.
func (mw *MultiWriter) Close() error {
	var errs []error
	for i, w := range mw.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (mw *MultiWriter) Validate() error {
	var errs []error
	for i, w := range mw.writers {
		if err := w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("validate writer %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
