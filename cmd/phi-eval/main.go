package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/elyn-health/phi-shield/internal/audit"
	"github.com/elyn-health/phi-shield/internal/config"
	"github.com/elyn-health/phi-shield/internal/eval"
	"github.com/elyn-health/phi-shield/internal/logger"
)

func main() {
	var (
		configPath  = flag.String("config", "configs/default.yaml", "Configuration file path")
		inputFile   = flag.String("input", "", "Labeled corpus file (CSV, Parquet, or JSON)")
		batchSize   = flag.Int("batch-size", 1000, "Batch size for processing")
		workers     = flag.Int("workers", 4, "Number of worker goroutines")
		maxFailures = flag.Int("max-failures", 100, "Maximum failures to report in detail")
		jsonOutput  = flag.Bool("json", false, "Print the result as JSON")
		showTotals  = flag.Bool("totals", false, "Show audit totals for the last 24h and exit")
	)
	flag.Parse()

	if *inputFile == "" && !*showTotals {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input corpus.csv --batch-size 500\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input corpus.parquet --workers 8 --json\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --totals\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling...")
		cancel()
	}()

	if *showTotals {
		if err := showAuditTotals(ctx, cfg, log); err != nil {
			log.Fatal("Failed to show audit totals", zap.Error(err))
		}
		return
	}

	if _, err := os.Stat(*inputFile); os.IsNotExist(err) {
		log.Fatal("Input file does not exist", zap.String("file", *inputFile))
	}

	pipeline := eval.NewPipeline(&eval.Config{
		BatchSize:      *batchSize,
		WorkerCount:    *workers,
		ValidateData:   true,
		ProgressReport: 1000,
		MaxFailures:    *maxFailures,
	}, log.Logger)

	result, err := pipeline.ProcessFile(ctx, *inputFile)
	if err != nil {
		log.Fatal("Evaluation failed", zap.Error(err))
	}

	if *jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(result); err != nil {
			log.Fatal("Failed to encode result", zap.Error(err))
		}
		return
	}

	printResult(*inputFile, result)
}

// printResult writes a human-readable evaluation report
func printResult(inputFile string, result *eval.Result) {
	fmt.Printf("\n=== PHI Shield Detection Evaluation ===\n")
	fmt.Printf("Corpus:        %s\n", inputFile)
	fmt.Printf("Records:       %d\n", result.TotalRecords)
	fmt.Printf("Passed:        %d\n", result.Passed)
	fmt.Printf("Failed:        %d\n", result.Failed)
	fmt.Printf("Residual PHI:  %d\n", result.Residuals)
	fmt.Printf("Duration:      %v\n", result.Duration.Round(time.Millisecond))

	if result.TotalRecords > 0 {
		fmt.Printf("Pass Rate:     %.1f%%\n", float64(result.Passed)/float64(result.TotalRecords)*100)
	}

	categories := make([]string, 0, len(result.Categories))
	for category := range result.Categories {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	fmt.Printf("\n%-10s %8s %8s %8s\n", "CATEGORY", "RECORDS", "PASSED", "MISSED")
	for _, category := range categories {
		stats := result.Categories[category]
		fmt.Printf("%-10s %8d %8d %8d\n", category, stats.Records, stats.Detected, stats.Missed)
	}

	if len(result.Failures) > 0 {
		fmt.Printf("\n=== Failures (first %d) ===\n", len(result.Failures))
		for _, f := range result.Failures {
			fmt.Printf("row %d: %s expected %d, detected %d\n", f.Row, f.Category, f.Expected, f.Detected)
		}
	}
}

// showAuditTotals reports per-kind redaction counts from the audit store
func showAuditTotals(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if !cfg.Audit.Enabled {
		return fmt.Errorf("audit store is not enabled")
	}

	store, err := audit.NewStore(&cfg.Audit, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to open audit store: %w", err)
	}
	defer store.Close()

	totals, err := store.Totals(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return fmt.Errorf("failed to query totals: %w", err)
	}

	fmt.Printf("\n=== Redactions (last 24h) ===\n")
	kinds := make([]string, 0, len(totals))
	for kind := range totals {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Printf("%-10s %d\n", kind, totals[kind])
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		return fmt.Errorf("failed to query recent events: %w", err)
	}
	fmt.Printf("\n=== Recent Events ===\n")
	for _, e := range recent {
		fmt.Printf("%s  %-8s gaps=%d cache=%t %dms\n",
			e.CreatedAt.Format(time.RFC3339), e.Kind, e.GapCount, e.CacheHit, e.DurationMS)
	}

	return nil
}
