package eval

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func testConfig() *Config {
	return &Config{
		BatchSize:    100,
		WorkerCount:  2,
		ValidateData: true,
		MaxFailures:  10,
	}
}

func writeCorpus(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write corpus: %v", err)
	}
	return path
}

func TestProcessCSV(t *testing.T) {
	path := writeCorpus(t, "corpus.csv",
		"text,category,count\n"+
			"Patient MRN: 445566 admitted.,MRN,1\n"+
			"Dr. Smith and Dr. Jones consulted.,NAME,2\n"+
			"No identifiers here.,SSN,1\n")

	pipeline := NewPipeline(testConfig(), zap.NewNop())
	result, err := pipeline.ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.TotalRecords != 3 {
		t.Errorf("expected 3 records, got %d", result.TotalRecords)
	}
	if result.Passed != 2 || result.Failed != 1 {
		t.Errorf("expected 2 passed / 1 failed, got %d / %d", result.Passed, result.Failed)
	}
	if result.Residuals != 0 {
		t.Errorf("expected no residual matches, got %d", result.Residuals)
	}
	if stats := result.Categories["SSN"]; stats == nil || stats.Missed != 1 {
		t.Errorf("expected 1 missed SSN record, got %+v", stats)
	}
	if len(result.Failures) != 1 || result.Failures[0].Category != "SSN" {
		t.Errorf("unexpected failures: %+v", result.Failures)
	}
}

func TestProcessJSON(t *testing.T) {
	path := writeCorpus(t, "corpus.json",
		`{"text":"Call 555-123-4567 to confirm.","category":"PHONE","count":1}`+"\n"+
			`{"text":"Contact jane.doe@example.com today.","category":"email","count":1}`+"\n")

	pipeline := NewPipeline(testConfig(), zap.NewNop())
	result, err := pipeline.ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.TotalRecords != 2 || result.Passed != 2 {
		t.Errorf("expected 2 passing records, got total %d passed %d", result.TotalRecords, result.Passed)
	}
	// Category names are normalized to upper case.
	if stats := result.Categories["EMAIL"]; stats == nil || stats.Detected != 1 {
		t.Errorf("expected normalized EMAIL category, got %+v", result.Categories)
	}
}

func TestValidateRecord(t *testing.T) {
	pipeline := NewPipeline(testConfig(), zap.NewNop())

	if pipeline.validateRecord(&Record{Text: " ", Category: "NAME", Count: 1}) {
		t.Error("empty text should be rejected")
	}
	if pipeline.validateRecord(&Record{Text: "x", Category: "", Count: 1}) {
		t.Error("empty category should be rejected")
	}
	if pipeline.validateRecord(&Record{Text: "x", Category: "NAME", Count: -1}) {
		t.Error("negative count should be rejected")
	}
	if !pipeline.validateRecord(&Record{Text: "x", Category: "NAME", Count: 0}) {
		t.Error("valid record rejected")
	}
}

func TestDetectFileFormat(t *testing.T) {
	cases := map[string]FileFormat{
		"corpus.csv":     FormatCSV,
		"corpus.parquet": FormatParquet,
		"corpus.json":    FormatJSON,
		"corpus.txt":     FormatCSV,
	}
	for name, want := range cases {
		if got := DetectFileFormat(name); got != want {
			t.Errorf("DetectFileFormat(%q) = %q, want %q", name, got, want)
		}
	}
}
