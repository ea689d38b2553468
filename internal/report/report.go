// Package report runs the reports of an insight job over a loaded record
// set and flattens their results into tables for csv and text output.
package report

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spektr-org/insight/engine"
	"github.com/spektr-org/insight/internal/config"
	"github.com/spektr-org/insight/internal/logging"
)

// ============================================================================
// RUNNER — Executes every report of a job concurrently
// ============================================================================
// Records are shared read-only by all reports; each report builds its own
// views, so no locking is needed. Results keep the job's report order.
// ============================================================================

// Result is the output of one report.
type Result struct {
	Name     string        `json:"name"`
	Kind     string        `json:"kind"`
	RunID    string        `json:"runId"`
	Duration time.Duration `json:"duration"`
	Data     any           `json:"data"`

	Report config.Report `json:"-"`
}

// Options tunes Run.
type Options struct {
	// Concurrency caps reports computed at once (0 = unlimited).
	Concurrency int
	// Engine options appended after those derived from the job's engine section.
	Engine []engine.Option
}

// Run computes every report in cfg over records. The first failing report
// cancels the rest and its error is returned.
func Run(ctx context.Context, cfg *config.Config, records []engine.Record, opts Options) ([]Result, error) {
	base, err := cfg.EngineOptions()
	if err != nil {
		return nil, err
	}
	base = append(base, opts.Engine...)

	view := engine.NewSliceView(records)
	results := make([]Result, len(cfg.Reports))

	g, gctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}

	for i, r := range cfg.Reports {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			runID := logging.NewRunID()
			rctx := logging.ContextWithRunID(gctx, runID)
			logger := logging.Ctx(rctx).With().Str("report", r.Name).Str("kind", r.Kind).Logger()

			start := time.Now()
			engineOpts := append(append([]engine.Option{}, base...), engine.WithLogger(logger))
			data, err := Compute(r, view, engineOpts...)
			if err != nil {
				logger.Error().Err(err).Msg("report failed")
				return fmt.Errorf("report %q: %w", r.Name, err)
			}

			results[i] = Result{
				Name:     r.Name,
				Kind:     r.Kind,
				RunID:    runID,
				Duration: time.Since(start),
				Data:     data,
				Report:   r,
			}
			logger.Info().Dur("duration", results[i].Duration).Msg("report done")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ============================================================================
// DISPATCH — One report kind → one engine operation
// ============================================================================

// Compute runs a single report over view. The concrete result type depends
// on the kind:
//
//	aggregate  → *engine.AggregationResult
//	timeseries → []engine.TimeSeriesPoint
//	cohort     → []engine.CohortResult
//	funnel     → []engine.FunnelStepResult
//	statistics → engine.StatisticsSummary
//	anomalies  → []engine.AnomalyResult
func Compute(r config.Report, view engine.RecordView, opts ...engine.Option) (any, error) {
	if r.Kind != config.KindAggregate && len(r.Filters) > 0 {
		if err := engine.ValidateFilters(r.Filters); err != nil {
			return nil, err
		}
		view = engine.ApplyFilters(view, r.Filters)
	}

	switch r.Kind {
	case config.KindAggregate:
		if r.Aggregate == nil {
			return nil, missingSection(r)
		}
		return engine.Aggregate(view, *r.Aggregate, opts...)

	case config.KindTimeSeries:
		ts := r.TimeSeries
		if ts == nil {
			return nil, missingSection(r)
		}
		return engine.AggregateTimeSeries(view, ts.DateField, ts.ValueField, ts.Period, ts.DateRange, opts...)

	case config.KindCohort:
		c := r.Cohort
		if c == nil {
			return nil, missingSection(r)
		}
		return engine.AnalyzeCohorts(view, c.CohortDateField, c.ReturnDateField, c.UserIDField, c.Periods, opts...)

	case config.KindFunnel:
		if r.Funnel == nil {
			return nil, missingSection(r)
		}
		steps, err := FunnelSteps(r.Funnel.Steps)
		if err != nil {
			return nil, err
		}
		return engine.AnalyzeFunnel(view, steps, r.Funnel.UserIDField, opts...)

	case config.KindStatistics:
		if r.Statistics == nil {
			return nil, missingSection(r)
		}
		if r.Statistics.Field == "" {
			return nil, fmt.Errorf("statistics: field is required")
		}
		return engine.CalculateStatistics(engine.ExtractNumbers(view, r.Statistics.Field)), nil

	case config.KindAnomalies:
		a := r.Anomalies
		if a == nil {
			return nil, missingSection(r)
		}
		if a.Field == "" {
			return nil, fmt.Errorf("anomalies: field is required")
		}
		method := a.Method
		if method == "" {
			method = engine.AnomalyZScore
		}
		return engine.DetectAnomalies(engine.ExtractNumbers(view, a.Field), method, a.Threshold)
	}
	return nil, fmt.Errorf("unknown report kind %q", r.Kind)
}

// FunnelSteps builds engine funnel steps from filter lists. Each step's
// filters are validated up front.
func FunnelSteps(specs []config.FunnelStep) ([]engine.FunnelStep, error) {
	steps := make([]engine.FunnelStep, 0, len(specs))
	for i, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("funnel step %d: name is required", i)
		}
		if len(s.Filters) == 0 {
			return nil, fmt.Errorf("funnel step %q: at least one filter is required", s.Name)
		}
		if err := engine.ValidateFilters(s.Filters); err != nil {
			return nil, fmt.Errorf("funnel step %q: %w", s.Name, err)
		}
		steps = append(steps, engine.StepFromFilters(s.Name, s.Filters...))
	}
	return steps, nil
}

func missingSection(r config.Report) error {
	return fmt.Errorf("report kind %s needs a %q section", r.Kind, r.Kind)
}
