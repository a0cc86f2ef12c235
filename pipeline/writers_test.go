package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aluiziolira/go-scrape-thumbnails/models"
)

func sampleRecords() []models.ImageRecord {
	return []models.ImageRecord{
		{Query: "vitamin d test", ThumbnailURL: "https://encrypted-tbn0.gstatic.com/shopping?q=tbn:1"},
		{Query: "lipid panel, fasting", ThumbnailURL: "http://x/img,with,commas.jpg"},
	}
}

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image_urls.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}

	if err := writer.Write(sampleRecords()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records=%d, want 3", len(records))
	}
	if records[0][0] != "topic_name" || records[0][1] != "topic_name_image_url" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[2][0] != "lipid panel, fasting" || records[2][1] != "http://x/img,with,commas.jpg" {
		t.Fatalf("embedded delimiters not round-tripped: %v", records[2])
	}
}

func TestCSVWriterTruncatesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image_urls.csv")
	if err := os.WriteFile(path, []byte("stale,data\nmore,stale\nrows,here\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if string(data) != "topic_name,topic_name_image_url\n" {
		t.Fatalf("file = %q, want header only", data)
	}
}

func TestCSVWriterCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out", "image_urls.csv")
	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected csv file: %v", err)
	}
}

func TestJSONWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image_urls.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}

	if err := writer.Write(sampleRecords()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var decoded []models.ImageRecord
	for scanner.Scan() {
		var rec models.ImageRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		decoded = append(decoded, rec)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if len(decoded) != 2 || decoded[1].Query != "lipid panel, fasting" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestNewWriterDual(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "image_urls.csv")

	writer, err := NewWriter("dual", csvPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	if err := writer.Write(sampleRecords()); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(filepath.Join(dir, "image_urls.jsonl")); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
}

func TestNewWriterDualRejectsJSONLOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.jsonl")
	if err := os.WriteFile(path, []byte("keep\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	if _, err := NewWriter("dual", path); err == nil {
		t.Fatalf("expected error when csv and jsonl paths coincide")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(data) != "keep\n" {
		t.Fatalf("existing file was modified: %q", data)
	}
}

func TestMultiWriterClosesAllOnFailure(t *testing.T) {
	boom := errors.New("disk full")
	first := &mockWriter{writeErr: boom, closeErr: boom}
	second := &mockWriter{}
	mw := NewMultiWriter(first, second)

	if err := mw.Write(sampleRecords()); !errors.Is(err, boom) {
		t.Fatalf("Write() error = %v, want %v", err, boom)
	}
	if second.writes != 0 {
		t.Fatalf("second writer should not be written after a failure")
	}
	if err := mw.Close(); !errors.Is(err, boom) {
		t.Fatalf("Close() error = %v, want %v", err, boom)
	}
	if !first.closed || !second.closed {
		t.Fatalf("all writers should be closed: first=%v second=%v", first.closed, second.closed)
	}
}

func TestNewWriterUnknownFormat(t *testing.T) {
	if _, err := NewWriter("xml", filepath.Join(t.TempDir(), "out.xml")); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestJSONCompanion(t *testing.T) {
	tests := map[string]string{
		"image_urls.csv":     "image_urls.jsonl",
		"out/images":         "out/images.jsonl",
		"out.v2/images.data": "out.v2/images.jsonl",
	}
	for in, want := range tests {
		if got := JSONCompanion(in); got != want {
			t.Errorf("JSONCompanion(%q) = %q, want %q", in, got, want)
		}
	}
}
