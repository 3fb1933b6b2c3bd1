package eval

import (
	"time"
)

// Record is one labeled corpus entry: a snippet of clinical text, the PHI
// category it contains, and how many occurrences are expected.
type Record struct {
	Text     string `csv:"text" parquet:"text" json:"text"`
	Category string `csv:"category" parquet:"category" json:"category"`
	Count    int    `csv:"count" parquet:"count" json:"count"`
}

// Failure is one record the detector got wrong.
type Failure struct {
	Row      int64  `json:"row"`
	Category string `json:"category"`
	Expected int    `json:"expected"`
	Detected int    `json:"detected"`
}

// CategoryStats aggregates outcomes per PHI category.
type CategoryStats struct {
	Records  int64 `json:"records"`
	Detected int64 `json:"detected"`
	Missed   int64 `json:"missed"`
}

// Result represents the outcome of evaluating a corpus file.
type Result struct {
	TotalRecords int64                     `json:"total_records"`
	Passed       int64                     `json:"passed"`
	Failed       int64                     `json:"failed"`
	Residuals    int64                     `json:"residuals"`
	Categories   map[string]*CategoryStats `json:"categories"`
	Failures     []Failure                 `json:"failures,omitempty"`
	Duration     time.Duration             `json:"duration"`
}

// Config contains evaluation pipeline configuration
type Config struct {
	BatchSize      int  `yaml:"batch_size" mapstructure:"batch_size"`           // 1000
	WorkerCount    int  `yaml:"worker_count" mapstructure:"worker_count"`       // 4
	ValidateData   bool `yaml:"validate_data" mapstructure:"validate_data"`     // true
	ProgressReport int  `yaml:"progress_report" mapstructure:"progress_report"` // 1000
	MaxFailures    int  `yaml:"max_failures" mapstructure:"max_failures"`       // 100
}

// FileFormat represents supported corpus file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch {
	case len(filename) >= 4 && filename[len(filename)-4:] == ".csv":
		return FormatCSV
	case len(filename) >= 8 && filename[len(filename)-8:] == ".parquet":
		return FormatParquet
	case len(filename) >= 5 && filename[len(filename)-5:] == ".json":
		return FormatJSON
	default:
		return FormatCSV
	}
}
