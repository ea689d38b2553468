package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"

	"github.com/spektr-org/insight/helpers"
	"github.com/spektr-org/insight/internal/config"
	"github.com/spektr-org/insight/internal/logging"
	"github.com/spektr-org/insight/internal/report"
)

// ============================================================================
// INSIGHT CLI — Analytics reports over any record source
// ============================================================================

const version = "0.3.0"

func main() {
	// ── Flags ─────────────────────────────────────────────────────────────
	filePath := flag.String("file", "", "Path to data file: csv, json, ndjson, xlsx or sqlite (overrides source.path)")
	configPath := flag.String("config", "", "Path to YAML job file with the reports to run")
	discover := flag.Bool("discover", false, "Print the auto-detected schema of a csv/xlsx source (or, with --format yaml, a starter job) and exit")
	format := flag.String("format", "json", "Output format: json, pretty, csv, text, yaml (discover only)")
	outFile := flag.String("out", "", "Write output to file instead of stdout")
	concurrency := flag.Int("concurrency", 0, "Max reports computed at once (0 = all)")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Insight — Analytics reports for any dataset

Usage:
  insight --config job.yaml --file events.ndjson --format text
  insight --config job.yaml --format csv --out results.csv
  insight --file sales.csv --discover --format pretty
  insight --file sales.csv --discover --format yaml --out job.yaml

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Environment:
  INSIGHT_LOG_LEVEL     trace, debug, info, warn, error
  INSIGHT_LOG_FORMAT    json, console
  INSIGHT_SOURCE_PATH   Same as --file
  INSIGHT_<SECTION>_<KEY> overrides any job file setting

Formats:
  json      Full JSON output (default)
  pretty    Pretty-printed JSON
  csv       One table per report (ready for Sheets/Excel)
  text      Aligned tables for the terminal
  yaml      Starter job drafted from the discovered schema (--discover)
`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("insight %s\n", version)
		os.Exit(0)
	}

	switch *format {
	case "json", "pretty", "csv", "text":
	case "yaml":
		if !*discover {
			fmt.Fprintln(os.Stderr, "Error: --format yaml is only available with --discover")
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown --format %q\n", *format)
		flag.Usage()
		os.Exit(1)
	}

	// ── Configuration ─────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("%v", err)
	}
	if *filePath != "" {
		cfg.Source.Path = *filePath
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Caller: cfg.Log.Caller,
	})

	if cfg.Source.Path == "" {
		fmt.Fprintln(os.Stderr, "Error: --file or source.path is required")
		flag.Usage()
		os.Exit(1)
	}
	if !*discover && len(cfg.Reports) == 0 {
		fmt.Fprintln(os.Stderr, "Error: either --discover or a --config with reports is required")
		flag.Usage()
		os.Exit(1)
	}

	// ── Output writer ─────────────────────────────────────────────────────
	var writer io.Writer = os.Stdout
	if *outFile != "" {
		f, err := os.Create(*outFile)
		if err != nil {
			fatalf("Failed to create output file: %v", err)
		}
		defer f.Close()
		writer = f
	}

	// ── Discover mode ─────────────────────────────────────────────────────
	if *discover {
		sch, err := helpers.DiscoverSchema(cfg.SourceSpec())
		if err != nil {
			fatalf("Auto-Detect failed: %v", err)
		}
		logging.Info().
			Str("schema", sch.Name).
			Int("dimensions", len(sch.Dimensions)).
			Int("measures", len(sch.Measures)).
			Int("skipped", len(sch.SkippedColumns)).
			Msg("schema discovered")

		if *format == "yaml" {
			job := config.Starter(sch, cfg.Source)
			out, err := job.EncodeYAML()
			if err != nil {
				fatalf("%v", err)
			}
			if _, err := writer.Write(out); err != nil {
				fatalf("Failed to write output: %v", err)
			}
			logging.Info().Int("reports", len(job.Reports)).Msg("starter job drafted")
			return
		}
		if err := writeJSON(writer, sch, *format); err != nil {
			fatalf("%v", err)
		}
		return
	}

	// ── Report mode ───────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	records, err := helpers.Load(ctx, cfg.SourceSpec())
	if err != nil {
		fatalf("Failed to load records: %v", err)
	}
	logging.Info().Int("records", len(records)).Str("path", cfg.Source.Path).Msg("records loaded")

	results, err := report.Run(ctx, cfg, records, report.Options{Concurrency: *concurrency})
	if err != nil {
		fatalf("%v", err)
	}

	// ── Render output ─────────────────────────────────────────────────────
	switch *format {
	case "csv":
		err = report.WriteCSV(writer, tables(results))
	case "text":
		err = report.WriteText(writer, tables(results))
	default:
		err = writeJSON(writer, cliOutput{Source: cfg.Source.Path, Records: len(records), Reports: results}, *format)
	}
	if err != nil {
		fatalf("Failed to write output: %v", err)
	}
	if *outFile != "" {
		logging.Info().Str("path", *outFile).Msg("output written")
	}
}

// ============================================================================
// OUTPUT
// ============================================================================

type cliOutput struct {
	Source  string          `json:"source"`
	Records int             `json:"records"`
	Reports []report.Result `json:"reports"`
}

func tables(results []report.Result) []report.Table {
	out := make([]report.Table, len(results))
	for i, r := range results {
		out[i] = report.ToTable(r)
	}
	return out
}

func writeJSON(w io.Writer, v any, format string) error {
	var out []byte
	var err error

	if format == "pretty" {
		out, err = json.MarshalIndent(v, "", "  ")
	} else {
		out, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
