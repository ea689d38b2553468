package engine

import (
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/spektr-org/insight/internal/logging"
)

// ============================================================================
// ENGINE OPTIONS — Functional options for every operation
// ============================================================================

// Option configures engine behavior via functional options pattern.
type Option func(*config)

type config struct {
	logger   zerolog.Logger
	location *time.Location // calendar used for bucketing and zone-less dates
	locale   language.Tag   // collation for string ordering
	weeks    WeekNumbering
	now      func() time.Time
}

// WithLogger routes engine debug logs to logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithLocation sets the calendar for period labels and cohort months.
// Default: UTC.
func WithLocation(loc *time.Location) Option {
	return func(c *config) {
		if loc != nil {
			c.location = loc
		}
	}
}

// WithLocale sets the collation language for string ordering (orderBy).
// Default: English.
func WithLocale(tag language.Tag) Option {
	return func(c *config) {
		c.locale = tag
	}
}

// WithWeekNumbering chooses how week buckets are labeled.
// Default: WeekOfMonth.
func WithWeekNumbering(w WeekNumbering) Option {
	return func(c *config) {
		c.weeks = w
	}
}

// WithClock replaces time.Now for processing-time measurement.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// applyOptions creates a config from functional options.
func applyOptions(opts []Option) *config {
	cfg := &config{
		logger:   logging.Logger(),
		location: time.UTC,
		locale:   language.English,
		weeks:    WeekOfMonth,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
