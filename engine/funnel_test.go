package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// FUNNEL TESTS
// ============================================================================

func eventStep(name string) FunnelStep {
	return StepFromFilters(name, Filter{Field: "events", Operator: OpContains, Value: name})
}

var checkoutSteps = []FunnelStep{eventStep("visit"), eventStep("signup"), eventStep("purchase")}

func TestAnalyzeFunnelOneRecordAdvancesSeveralSteps(t *testing.T) {
	view := NewSliceView([]Record{
		{"user": "u1", "events": "visit,signup"},
		{"user": "u1", "events": "purchase"},
	})

	results, err := AnalyzeFunnel(view, checkoutSteps, "user")
	require.NoError(t, err)
	assert.Equal(t, []FunnelStepResult{
		{Step: "visit", Users: 1, ConversionRate: 100, DropOffRate: 0},
		{Step: "signup", Users: 1, ConversionRate: 100, DropOffRate: 0},
		{Step: "purchase", Users: 1, ConversionRate: 100, DropOffRate: 0},
	}, results)
}

func TestAnalyzeFunnelOrderMatters(t *testing.T) {
	view := NewSliceView([]Record{
		{"user": "u1", "events": "purchase"},
		{"user": "u1", "events": "visit"},
		{"user": "u2", "events": "visit"},
		{"user": "u2", "events": "signup"},
		{"user": "u3", "events": "signup"},
		{"user": "u4", "events": "visit"},
		{"events": "visit"},
	})

	results, err := AnalyzeFunnel(view, checkoutSteps, "user")
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, 3, results[0].Users)
	assert.Equal(t, 75.0, results[0].ConversionRate)
	assert.Equal(t, 0.0, results[0].DropOffRate)

	assert.Equal(t, 1, results[1].Users)
	assert.Equal(t, 25.0, results[1].ConversionRate)
	assert.Equal(t, 75.0, results[1].DropOffRate)

	assert.Equal(t, 0, results[2].Users)
	assert.Equal(t, 0.0, results[2].ConversionRate)
	assert.Equal(t, 100.0, results[2].DropOffRate)
}

func TestAnalyzeFunnelNoUsers(t *testing.T) {
	results, err := AnalyzeFunnel(NewSliceView(nil), checkoutSteps, "user")
	require.NoError(t, err)
	for i, r := range results {
		assert.Equal(t, 0, r.Users)
		assert.Equal(t, 0.0, r.ConversionRate)
		if i > 0 {
			assert.Equal(t, 100.0, r.DropOffRate)
		}
	}
}

func TestFunnelTrackerIsMonotonic(t *testing.T) {
	tracker, err := NewFunnelTracker(checkoutSteps, "user")
	require.NoError(t, err)

	stream := []Record{
		{"user": "u1", "events": "visit"},
		{"user": "u1", "events": "purchase"},
		{"user": "u1", "events": "nothing"},
		{"user": "u1", "events": "visit"},
		{"user": "u1", "events": "signup,purchase"},
		{"user": "u1", "events": "visit"},
	}
	last := 0
	for _, rec := range stream {
		_, index, ok := tracker.Observe(rec)
		require.True(t, ok)
		assert.GreaterOrEqual(t, index, last)
		last = index
	}
	assert.Equal(t, 3, tracker.Reached("u1"))

	_, _, ok := tracker.Observe(Record{"events": "visit"})
	assert.False(t, ok)
}

func TestNewFunnelTrackerRejectsBadSteps(t *testing.T) {
	_, err := NewFunnelTracker([]FunnelStep{{Name: "broken"}}, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Errors, 2)

	_, err = AnalyzeFunnel(NewSliceView(nil), nil, "user")
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}
