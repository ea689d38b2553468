package helpers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spektr-org/insight/engine"
	"github.com/spektr-org/insight/internal/logging"
	"github.com/spektr-org/insight/schema"
)

// Source formats understood by Load.
const (
	FormatAuto   = "auto"
	FormatCSV    = "csv"
	FormatJSON   = "json"
	FormatNDJSON = "ndjson"
	FormatExcel  = "xlsx"
	FormatSQLite = "sqlite"
)

// SourceSpec locates a record source.
type SourceSpec struct {
	Path   string
	Format string // auto (by extension), csv, json, ndjson, xlsx, sqlite
	Sheet  string // xlsx only; empty selects the first sheet
	Query  string // sqlite only
	Table  string // sqlite only, used when Query is empty

	KeepHeaders bool
}

// DetectFormat resolves the source format from spec.Format or the file
// extension.
func DetectFormat(spec SourceSpec) (string, error) {
	format := strings.ToLower(spec.Format)
	if format != "" && format != FormatAuto {
		switch format {
		case FormatCSV, FormatJSON, FormatNDJSON, FormatExcel, FormatSQLite:
			return format, nil
		}
		return "", fmt.Errorf("unsupported source format: %s", spec.Format)
	}

	switch strings.ToLower(filepath.Ext(spec.Path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".ndjson", ".jsonl":
		return FormatNDJSON, nil
	case ".xlsx", ".xlsm":
		return FormatExcel, nil
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite, nil
	}
	return "", fmt.Errorf("cannot detect format of %q; set the format explicitly", spec.Path)
}

// Load reads every record of the source described by spec.
func Load(ctx context.Context, spec SourceSpec) ([]engine.Record, error) {
	if spec.Path == "" {
		return nil, fmt.Errorf("source path is required")
	}
	format, err := DetectFormat(spec)
	if err != nil {
		return nil, err
	}

	opt := Options{KeepHeaders: spec.KeepHeaders}
	var records []engine.Record

	switch format {
	case FormatCSV:
		data, err := os.ReadFile(spec.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", spec.Path, err)
		}
		records, _, err = ParseCSVAuto(data, opt)
		if err != nil {
			return nil, err
		}

	case FormatJSON:
		data, err := os.ReadFile(spec.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", spec.Path, err)
		}
		records, err = ParseJSON(data)
		if err != nil {
			return nil, err
		}

	case FormatNDJSON:
		f, err := os.Open(spec.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", spec.Path, err)
		}
		defer f.Close()
		records, err = ParseNDJSON(f)
		if err != nil {
			return nil, err
		}

	case FormatExcel:
		records, _, err = ReadExcel(spec.Path, spec.Sheet, opt)
		if err != nil {
			return nil, err
		}

	case FormatSQLite:
		query := spec.Query
		if query == "" {
			if spec.Table == "" {
				return nil, fmt.Errorf("sqlite source needs a query or a table")
			}
			query = TableQuery(spec.Table)
		}
		records, err = ReadSQLite(ctx, spec.Path, query)
		if err != nil {
			return nil, err
		}
	}

	logger := logging.Ctx(ctx)
	logger.Debug().
		Str("path", spec.Path).
		Str("format", format).
		Int("records", len(records)).
		Msg("source loaded")

	return records, nil
}

// DiscoverSchema runs column discovery on a tabular source (CSV or xlsx).
func DiscoverSchema(spec SourceSpec) (*schema.Config, error) {
	format, err := DetectFormat(spec)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatCSV:
		data, err := os.ReadFile(spec.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", spec.Path, err)
		}
		return schema.DiscoverFromCSV(data, schema.DiscoverOptions{
			Name:   filepath.Base(spec.Path),
			Source: "CSV",
		})

	case FormatExcel:
		headers, rows, err := ReadExcelRows(spec.Path, spec.Sheet)
		if err != nil {
			return nil, err
		}
		return schema.Discover(headers, rows, schema.DiscoverOptions{
			Name:   filepath.Base(spec.Path),
			Source: "Excel",
		})
	}
	return nil, fmt.Errorf("schema discovery needs a tabular source (csv or xlsx), got %s", format)
}
