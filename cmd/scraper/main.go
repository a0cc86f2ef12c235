package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-thumbnails/config"
	"github.com/aluiziolira/go-scrape-thumbnails/models"
	"github.com/aluiziolira/go-scrape-thumbnails/pipeline"
	"github.com/aluiziolira/go-scrape-thumbnails/scraper"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	defaultCfg := config.DefaultConfig()

	configPath := flag.String("config", "", "Optional TOML job file")
	apiKey := flag.String("api-key", "", "SerpApi key (defaults to $SERPAPI_API_KEY)")
	endpoint := flag.String("endpoint", defaultCfg.Endpoint, "Search API endpoint")
	maxImages := flag.Int("max-images", defaultCfg.MaxImagesPerQuery, "Maximum unique thumbnails kept per query")
	timeout := flag.Duration("timeout", defaultCfg.Timeout, "Per-request timeout")
	outputFile := flag.String("output", defaultCfg.OutputFile, "Output file path")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "Output format: csv, json, or dual")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [query ...]\n\n", os.Args[0])
		fmt.Fprintln(flag.CommandLine.Output(), "Positional queries replace the configured query list.")
		flag.PrintDefaults()
	}

	flag.Parse()

	cfg := defaultCfg
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	if *configPath != "" {
		if err := config.LoadFile(*configPath, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}
	if err := config.ApplyEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}

	// Flags given explicitly win over file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "api-key":
			cfg.APIKey = *apiKey
		case "endpoint":
			cfg.Endpoint = *endpoint
		case "max-images":
			cfg.MaxImagesPerQuery = *maxImages
		case "timeout":
			cfg.Timeout = *timeout
		case "output":
			cfg.OutputFile = *outputFile
		case "format":
			cfg.OutputFormat = strings.ToLower(*outputFormat)
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		case "v":
			cfg.Verbose = *verbose
		}
	})
	if args := config.NormalizeQueries(flag.Args()); len(args) > 0 {
		cfg.Queries = args
	}

	logger, level := newLogger(os.Stderr, cfg.Verbose)
	logger = logger.With(slog.String("run_id", uuid.NewString()))
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	p := pipeline.NewPipeline(cfg.MaxImagesPerQuery)

	// The job is not cancellable: every query is attempted once.
	result, err := s.Run(context.Background(), p)
	if err != nil {
		slog.Error("scraping stopped early", slog.Any("error", err))
	}

	writeErr := p.Save(cfg.OutputFormat, cfg.OutputFile)
	if writeErr != nil {
		slog.Error("error writing output file", slog.String("file", cfg.OutputFile), slog.Any("error", writeErr))
	} else {
		slog.Info("results saved", slog.String("file", cfg.OutputFile), slog.Int("records", p.Len()))
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if result != nil {
		printSummary(os.Stderr, result, cfg.OutputFile, writeErr, p.GetMetrics())
	}
}

func printSummary(w io.Writer, result *models.ScraperResult, outputFile string, writeErr error, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Scrape complete")

	succeeded := len(result.Queries) - result.ErrorCount - result.EmptyCount
	fmt.Fprintf(w, "  Queries:       %d\n", len(result.Queries))
	fmt.Fprintf(w, "  Requests:      %d\n", result.RequestCount)
	fmt.Fprintf(w, "  Succeeded:     %d\n", succeeded)
	fmt.Fprintf(w, "  Empty:         %d\n", result.EmptyCount)
	fmt.Fprintf(w, "  Failed:        %d\n", result.ErrorCount)
	fmt.Fprintf(w, "  Total images:  %d\n", result.TotalCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(w, "  Error types:   %v\n", result.ErrorsByType)
	}
	if skipped, ok := metrics["skipped_items"].(map[string]int); ok && len(skipped) > 0 {
		fmt.Fprintf(w, "  Skipped items: %v\n", skipped)
	}
	for _, qr := range result.Queries {
		if qr.Err != "" {
			fmt.Fprintf(w, "    %-24s %-6s %d  %s\n", qr.Query, qr.Status, qr.Images, qr.Err)
			continue
		}
		fmt.Fprintf(w, "    %-24s %-6s %d\n", qr.Query, qr.Status, qr.Images)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", result.EndTime.Sub(result.StartTime))
	if writeErr != nil {
		fmt.Fprintf(w, "  Output file:   %s (NOT WRITTEN: %v)\n", outputFile, writeErr)
	} else {
		fmt.Fprintf(w, "  Output file:   %s\n", outputFile)
	}
	fmt.Fprintln(w, separator)
}

func newLogger(out *os.File, verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(out) {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
