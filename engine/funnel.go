package engine

import "fmt"

// ============================================================================
// FUNNEL — Ordered step progression per user
// ============================================================================
// Each user has a furthest-reached step index that only moves forward.
// Records are processed in the order supplied; one record may advance a user
// through several consecutive steps.
// ============================================================================

// FunnelStep is one stage of a conversion funnel.
type FunnelStep struct {
	Name      string
	Condition func(Record) bool
}

// StepFromFilters builds a step whose condition is the AND of filters.
func StepFromFilters(name string, filters ...Filter) FunnelStep {
	compiled := compileFilters(filters)
	return FunnelStep{
		Name: name,
		Condition: func(rec Record) bool {
			return matchAll(compiled, func(field string) (any, bool) { return Resolve(rec, field) })
		},
	}
}

// FunnelTracker accumulates per-user funnel progress.
type FunnelTracker struct {
	steps     []FunnelStep
	userField string
	reached   map[string]int
}

// NewFunnelTracker validates steps and returns an empty tracker.
func NewFunnelTracker(steps []FunnelStep, userIDField string) (*FunnelTracker, error) {
	var errs []ConfigError
	errs = requireField(errs, "userIdField", userIDField)
	if len(steps) == 0 {
		errs = append(errs, ConfigError{Field: "steps", Rule: "min", Message: "at least one step is required"})
	}
	for i, s := range steps {
		if s.Condition == nil {
			errs = append(errs, ConfigError{
				Field:   fmt.Sprintf("steps[%d].condition", i),
				Rule:    "required",
				Message: "is required",
			})
		}
	}
	if err := finish(errs); err != nil {
		return nil, err
	}
	return &FunnelTracker{
		steps:     steps,
		userField: userIDField,
		reached:   make(map[string]int),
	}, nil
}

// Observe advances the record's user as far as consecutive steps allow and
// returns the user's index afterwards. ok is false for records without a
// user id.
func (t *FunnelTracker) Observe(rec Record) (user string, index int, ok bool) {
	id, found := Resolve(rec, t.userField)
	if !found {
		return "", 0, false
	}
	user = Stringify(id)
	index = t.reached[user]
	for index < len(t.steps) && t.steps[index].Condition(rec) {
		index++
	}
	t.reached[user] = index
	return user, index, true
}

// Reached returns the furthest step index reached by user.
func (t *FunnelTracker) Reached(user string) int {
	return t.reached[user]
}

// Results reports, per step, the users whose final index passed it.
func (t *FunnelTracker) Results() []FunnelStepResult {
	counts := make([]int, len(t.steps))
	for _, index := range t.reached {
		for i := 0; i < index; i++ {
			counts[i]++
		}
	}

	total := len(t.reached)
	results := make([]FunnelStepResult, len(t.steps))
	for i, s := range t.steps {
		var conversion float64
		if total > 0 {
			conversion = float64(counts[i]) / float64(total) * 100
		}
		var dropOff float64
		if i > 0 {
			dropOff = 100 - conversion
		}
		results[i] = FunnelStepResult{
			Step:           s.Name,
			Users:          counts[i],
			ConversionRate: conversion,
			DropOffRate:    dropOff,
		}
	}
	return results
}

// AnalyzeFunnel runs every record of view through a FunnelTracker.
func AnalyzeFunnel(view RecordView, steps []FunnelStep, userIDField string, opts ...Option) ([]FunnelStepResult, error) {
	tracker, err := NewFunnelTracker(steps, userIDField)
	if err != nil {
		return nil, err
	}
	cfg := applyOptions(opts)

	for i := 0; i < view.Len(); i++ {
		tracker.Observe(view.Record(i))
	}

	results := tracker.Results()
	cfg.logger.Debug().
		Int("records", view.Len()).
		Int("users", len(tracker.reached)).
		Int("steps", len(steps)).
		Msg("funnel analyzed")
	return results, nil
}
