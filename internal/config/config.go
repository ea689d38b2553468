// Package config loads insight job files.
//
// Configuration is layered, each layer overriding the previous one:
//
//  1. Defaults: built-in values from Default()
//  2. Job file: optional YAML file passed to Load
//  3. Environment: INSIGHT_* variables (INSIGHT_LOG_LEVEL -> log.level)
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"golang.org/x/text/language"

	"github.com/spektr-org/insight/engine"
	"github.com/spektr-org/insight/helpers"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "INSIGHT_"

// Report kinds.
const (
	KindAggregate  = "aggregate"
	KindTimeSeries = "timeseries"
	KindCohort     = "cohort"
	KindFunnel     = "funnel"
	KindStatistics = "statistics"
	KindAnomalies  = "anomalies"
)

// Kinds lists every report kind in the order reports are documented.
var Kinds = []string{KindAggregate, KindTimeSeries, KindCohort, KindFunnel, KindStatistics, KindAnomalies}

// ============================================================================
// CONFIG TYPES
// ============================================================================

// Config is one insight job: where the records come from and which reports
// to compute over them.
type Config struct {
	Log     LogConfig    `koanf:"log" json:"log,omitempty"`
	Source  SourceConfig `koanf:"source" json:"source,omitempty"`
	Engine  EngineConfig `koanf:"engine" json:"engine,omitempty"`
	Reports []Report     `koanf:"reports" json:"reports,omitempty" validate:"dive"`
}

// LogConfig mirrors logging.Config.
type LogConfig struct {
	Level  string `koanf:"level" json:"level,omitempty" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" json:"format,omitempty" validate:"oneof=json console"`
	Caller bool   `koanf:"caller" json:"caller,omitempty"`
}

// SourceConfig locates the record source.
type SourceConfig struct {
	Path        string `koanf:"path" json:"path,omitempty"`
	Format      string `koanf:"format" json:"format,omitempty" validate:"omitempty,oneof=auto csv json ndjson xlsx sqlite"`
	Sheet       string `koanf:"sheet" json:"sheet,omitempty"`
	Query       string `koanf:"query" json:"query,omitempty"`
	Table       string `koanf:"table" json:"table,omitempty"`
	KeepHeaders bool   `koanf:"keep_headers" json:"keep_headers,omitempty"`
}

// EngineConfig holds calendar and collation settings shared by all reports.
type EngineConfig struct {
	Timezone string `koanf:"timezone" json:"timezone,omitempty"`
	Locale   string `koanf:"locale" json:"locale,omitempty"`
	Weeks    string `koanf:"weeks" json:"weeks,omitempty" validate:"oneof=month iso"`
}

// Report is one named computation. Exactly the section matching Kind is
// read; Filters narrow the records of every kind except aggregate, which
// carries its own. Title, when set, heads the rendered table.
type Report struct {
	Name    string          `koanf:"name" json:"name,omitempty" validate:"required"`
	Title   string          `koanf:"title" json:"title,omitempty"`
	Kind    string          `koanf:"kind" json:"kind,omitempty" validate:"required,oneof=aggregate timeseries cohort funnel statistics anomalies"`
	Filters []engine.Filter `koanf:"filters" json:"filters,omitempty"`

	Aggregate  *engine.AggregationConfig `koanf:"aggregate" json:"aggregate,omitempty"`
	TimeSeries *TimeSeriesReport         `koanf:"timeseries" json:"timeseries,omitempty"`
	Cohort     *CohortReport             `koanf:"cohort" json:"cohort,omitempty"`
	Funnel     *FunnelReport             `koanf:"funnel" json:"funnel,omitempty"`
	Statistics *FieldReport              `koanf:"statistics" json:"statistics,omitempty"`
	Anomalies  *AnomalyReport            `koanf:"anomalies" json:"anomalies,omitempty"`
}

// TimeSeriesReport configures engine.AggregateTimeSeries.
type TimeSeriesReport struct {
	DateField  string            `koanf:"dateField" json:"dateField,omitempty"`
	ValueField string            `koanf:"valueField" json:"valueField,omitempty"`
	Period     engine.Period     `koanf:"period" json:"period,omitempty"`
	DateRange  *engine.DateRange `koanf:"dateRange" json:"dateRange,omitempty"`
}

// CohortReport configures engine.AnalyzeCohorts.
type CohortReport struct {
	CohortDateField string `koanf:"cohortDateField" json:"cohortDateField,omitempty"`
	ReturnDateField string `koanf:"returnDateField" json:"returnDateField,omitempty"`
	UserIDField     string `koanf:"userIdField" json:"userIdField,omitempty"`
	Periods         []int  `koanf:"periods" json:"periods,omitempty"`
}

// FunnelReport configures engine.AnalyzeFunnel.
type FunnelReport struct {
	UserIDField string       `koanf:"userIdField" json:"userIdField,omitempty"`
	Steps       []FunnelStep `koanf:"steps" json:"steps,omitempty"`
}

// FunnelStep is reached by a record matching every filter.
type FunnelStep struct {
	Name    string          `koanf:"name" json:"name,omitempty"`
	Filters []engine.Filter `koanf:"filters" json:"filters,omitempty"`
}

// FieldReport names the numeric field a statistics report reads.
type FieldReport struct {
	Field string `koanf:"field" json:"field,omitempty"`
}

// AnomalyReport configures engine.DetectAnomalies.
type AnomalyReport struct {
	Field     string               `koanf:"field" json:"field,omitempty"`
	Method    engine.AnomalyMethod `koanf:"method" json:"method,omitempty"`
	Threshold float64              `koanf:"threshold" json:"threshold,omitempty"`
}

// Default returns the configuration used before any file or environment
// override.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
		Source: SourceConfig{
			Format: helpers.FormatAuto,
		},
		Engine: EngineConfig{
			Timezone: "UTC",
			Locale:   "en",
			Weeks:    "month",
		},
	}
}

// ============================================================================
// LOADING
// ============================================================================

// Load builds the configuration from defaults, the optional YAML job file
// at path, and INSIGHT_* environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: job file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Layer 3: environment
	// INSIGHT_LOG_LEVEL -> log.level, INSIGHT_SOURCE_KEEP_HEADERS -> source.keep_headers
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// envTransformFunc maps INSIGHT_SECTION_KEY to section.key.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	section, rest, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	return section + "." + rest
}

// ============================================================================
// VALIDATION
// ============================================================================

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field values and that every report carries the section
// its kind reads. Engine-level checks (field names, operators) happen when
// the report runs.
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			return err
		}
	}

	if _, err := c.Location(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := c.Locale(); err != nil {
		problems = append(problems, err.Error())
	}

	seen := make(map[string]bool, len(c.Reports))
	for i, r := range c.Reports {
		if r.Name != "" && seen[r.Name] {
			problems = append(problems, fmt.Sprintf("reports[%d]: duplicate report name %q", i, r.Name))
		}
		seen[r.Name] = true

		if r.Kind != "" && !r.hasSection() {
			problems = append(problems, fmt.Sprintf("reports[%d] (%s): missing %q section", i, r.Name, r.Kind))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func (r Report) hasSection() bool {
	switch r.Kind {
	case KindAggregate:
		return r.Aggregate != nil
	case KindTimeSeries:
		return r.TimeSeries != nil
	case KindCohort:
		return r.Cohort != nil
	case KindFunnel:
		return r.Funnel != nil
	case KindStatistics:
		return r.Statistics != nil
	case KindAnomalies:
		return r.Anomalies != nil
	}
	return false
}

// ============================================================================
// DERIVED SETTINGS
// ============================================================================

// Location resolves the engine timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return nil, fmt.Errorf("engine.timezone: %w", err)
	}
	return loc, nil
}

// Locale resolves the collation locale.
func (c *Config) Locale() (language.Tag, error) {
	tag, err := language.Parse(c.Engine.Locale)
	if err != nil {
		return language.Und, fmt.Errorf("engine.locale: %w", err)
	}
	return tag, nil
}

// EngineOptions turns the engine section into engine options.
func (c *Config) EngineOptions() ([]engine.Option, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	tag, err := c.Locale()
	if err != nil {
		return nil, err
	}
	weeks := engine.WeekOfMonth
	if c.Engine.Weeks == "iso" {
		weeks = engine.ISOWeeks
	}
	return []engine.Option{
		engine.WithLocation(loc),
		engine.WithLocale(tag),
		engine.WithWeekNumbering(weeks),
	}, nil
}

// SourceSpec converts the source section for helpers.Load.
func (c *Config) SourceSpec() helpers.SourceSpec {
	return helpers.SourceSpec{
		Path:        c.Source.Path,
		Format:      c.Source.Format,
		Sheet:       c.Source.Sheet,
		Query:       c.Source.Query,
		Table:       c.Source.Table,
		KeepHeaders: c.Source.KeepHeaders,
	}
}
