// Package eval measures detection quality against a labeled corpus of
// clinical snippets. Corpus files are CSV, Parquet, or newline JSON; each
// record names the text, the expected category, and the expected number of
// occurrences.
package eval

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/elyn-health/phi-shield/internal/phi"
)

// Pipeline evaluates the detection rules against corpus files
type Pipeline struct {
	config *Config
	logger *zap.Logger
}

// NewPipeline creates an evaluation pipeline
func NewPipeline(config *Config, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		config: config,
		logger: logger,
	}
}

// ProcessFile evaluates a corpus file (CSV, Parquet, or JSON)
func (p *Pipeline) ProcessFile(ctx context.Context, filePath string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	p.logger.Info("Starting evaluation",
		zap.String("file", filePath),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.WorkerCount))

	start := time.Now()
	result := &Result{Categories: make(map[string]*CategoryStats)}

	format := DetectFileFormat(filePath)
	p.logger.Info("Detected file format", zap.String("format", string(format)))

	var err error
	switch format {
	case FormatCSV:
		err = p.processCSV(ctx, filePath, result)
	case FormatParquet:
		err = p.processParquet(ctx, filePath, result)
	case FormatJSON:
		err = p.processJSON(ctx, filePath, result)
	default:
		err = fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		return result, fmt.Errorf("%s evaluation failed: %w", format, err)
	}

	result.Duration = time.Since(start)

	p.logger.Info("Evaluation completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("passed", result.Passed),
		zap.Int64("failed", result.Failed),
		zap.Int64("residuals", result.Residuals),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// processCSV reads corpus records from a CSV file with a text,category,count
// header row
func (p *Pipeline) processCSV(ctx context.Context, filePath string, result *Result) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 3 // text, category, count

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	p.logger.Debug("CSV header detected", zap.Strings("columns", header))

	return p.processBatches(ctx, func() ([]*Record, error) {
		var batch []*Record
		for len(batch) < p.config.BatchSize {
			row, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("Failed to read CSV record", zap.Error(err))
				continue
			}
			if len(row) != 3 {
				p.logger.Warn("Invalid CSV record length", zap.Int("length", len(row)))
				continue
			}

			count, err := strconv.Atoi(strings.TrimSpace(row[2]))
			if err != nil {
				p.logger.Warn("Invalid count column", zap.String("value", row[2]))
				continue
			}

			record := &Record{
				Text:     row[0],
				Category: strings.ToUpper(strings.TrimSpace(row[1])),
				Count:    count,
			}
			if p.validateRecord(record) {
				batch = append(batch, record)
			}
		}
		return batch, nil
	}, result)
}

// processParquet reads corpus records from a Parquet file
func (p *Pipeline) processParquet(ctx context.Context, filePath string, result *Result) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open Parquet file: %w", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	return p.processBatches(ctx, func() ([]*Record, error) {
		var batch []*Record
		for len(batch) < p.config.BatchSize {
			var record Record
			err := reader.Read(&record)
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("Failed to read Parquet record", zap.Error(err))
				continue
			}
			record.Category = strings.ToUpper(strings.TrimSpace(record.Category))
			if p.validateRecord(&record) {
				r := record
				batch = append(batch, &r)
			}
		}
		return batch, nil
	}, result)
}

// processJSON reads corpus records from a file with one JSON object per line
func (p *Pipeline) processJSON(ctx context.Context, filePath string, result *Result) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)

	return p.processBatches(ctx, func() ([]*Record, error) {
		var batch []*Record
		for len(batch) < p.config.BatchSize {
			var record Record
			err := decoder.Decode(&record)
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("Failed to read JSON record", zap.Error(err))
				continue
			}
			record.Category = strings.ToUpper(strings.TrimSpace(record.Category))
			if p.validateRecord(&record) {
				r := record
				batch = append(batch, &r)
			}
		}
		return batch, nil
	}, result)
}

// processBatches drains the reader batch by batch and evaluates each batch
// with a worker pool
func (p *Pipeline) processBatches(ctx context.Context, readBatch func() ([]*Record, error), result *Result) error {
	var row int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := readBatch()
		if err != nil {
			return fmt.Errorf("failed to read batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		p.evaluateBatch(batch, row, result)
		row += int64(len(batch))

		if p.config.ProgressReport > 0 && result.TotalRecords%int64(p.config.ProgressReport) == 0 {
			p.logger.Info("Evaluation progress",
				zap.Int64("records", result.TotalRecords),
				zap.Int64("failed", result.Failed))
		}
	}
	return nil
}

type outcome struct {
	row      int64
	record   *Record
	detected int
	residual int
}

// evaluateBatch fans a batch out over the worker pool and folds the
// outcomes into the result
func (p *Pipeline) evaluateBatch(batch []*Record, firstRow int64, result *Result) {
	workers := p.config.WorkerCount
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int, len(batch))
	outcomes := make(chan outcome, len(batch))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				record := batch[i]
				outcomes <- evaluateRecord(firstRow+int64(i), record)
			}
		}()
	}

	for i := range batch {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	for o := range outcomes {
		result.TotalRecords++

		stats, ok := result.Categories[o.record.Category]
		if !ok {
			stats = &CategoryStats{}
			result.Categories[o.record.Category] = stats
		}
		stats.Records++

		result.Residuals += int64(o.residual)

		if o.detected >= o.record.Count && o.residual == 0 {
			result.Passed++
			stats.Detected++
			continue
		}

		result.Failed++
		stats.Missed++
		if len(result.Failures) < p.config.MaxFailures {
			result.Failures = append(result.Failures, Failure{
				Row:      o.row,
				Category: o.record.Category,
				Expected: o.record.Count,
				Detected: o.detected,
			})
		}
	}
}

// evaluateRecord runs one snippet through de-identification and scores it.
// The residual count re-applies every detection rule to the cleaned text;
// any remaining match means detectable PHI survived redaction.
func evaluateRecord(row int64, record *Record) outcome {
	result := phi.Deidentify(record.Text)

	detected := 0
	for _, token := range result.Tokens {
		if string(token.Category) == record.Category {
			detected++
		}
	}

	residual := 0
	for _, rule := range phi.Rules() {
		residual += len(rule.Pattern.FindAllString(result.CleanedText, -1))
	}

	return outcome{row: row, record: record, detected: detected, residual: residual}
}

// validateRecord validates a corpus record
func (p *Pipeline) validateRecord(record *Record) bool {
	if !p.config.ValidateData {
		return true
	}

	if strings.TrimSpace(record.Text) == "" {
		p.logger.Debug("Invalid record: empty text")
		return false
	}
	if record.Category == "" {
		p.logger.Debug("Invalid record: empty category")
		return false
	}
	if record.Count < 0 {
		p.logger.Debug("Invalid record: negative count", zap.Int("count", record.Count))
		return false
	}
	if len(record.Text) > 10000 {
		p.logger.Debug("Invalid record: text too long", zap.Int("length", len(record.Text)))
		return false
	}

	return true
}
