package engine

import (
	"fmt"
	"sort"
	"time"
)

// ============================================================================
// COHORTS — First-seen month cohorts and day-offset retention
// ============================================================================

// DefaultRetentionPeriods are the day offsets used when none are requested.
var DefaultRetentionPeriods = []int{1, 7, 30, 90}

type cohortMember struct {
	firstSeen time.Time
	returns   []time.Time
}

// AnalyzeCohorts assigns each user to the month of their earliest
// cohortDateField and reports, per requested day offset d, how many cohort
// members have a returnDateField inside (monthStart, monthStart+d days].
// Records without a user id or a readable cohort date do not form cohorts.
func AnalyzeCohorts(view RecordView, cohortDateField, returnDateField, userIDField string, periods []int, opts ...Option) ([]CohortResult, error) {
	var errs []ConfigError
	errs = requireField(errs, "cohortDateField", cohortDateField)
	errs = requireField(errs, "returnDateField", returnDateField)
	errs = requireField(errs, "userIdField", userIDField)
	for i, d := range periods {
		if d < 0 {
			errs = append(errs, ConfigError{
				Field:   fmt.Sprintf("periods[%d]", i),
				Rule:    "gte",
				Message: "must be >= 0",
			})
		}
	}
	if err := finish(errs); err != nil {
		return nil, err
	}
	if len(periods) == 0 {
		periods = DefaultRetentionPeriods
	}

	cfg := applyOptions(opts)

	// 1. First seen + activity per user
	members := make(map[string]*cohortMember)
	for i := 0; i < view.Len(); i++ {
		id, ok := view.Value(i, userIDField)
		if !ok {
			continue
		}
		user := Stringify(id)
		m, exists := members[user]
		if !exists {
			m = &cohortMember{}
			members[user] = m
		}
		if v, ok := view.Value(i, cohortDateField); ok {
			if t, ok := ToTime(v, cfg.location); ok && (m.firstSeen.IsZero() || t.Before(m.firstSeen)) {
				m.firstSeen = t
			}
		}
		if v, ok := view.Value(i, returnDateField); ok {
			if t, ok := ToTime(v, cfg.location); ok {
				m.returns = append(m.returns, t)
			}
		}
	}

	// 2. Bucket users by first-seen month
	cohorts := make(map[string][]*cohortMember)
	starts := make(map[string]time.Time)
	for _, m := range members {
		if m.firstSeen.IsZero() {
			continue
		}
		start := monthStart(m.firstSeen)
		label := start.Format("2006-01")
		cohorts[label] = append(cohorts[label], m)
		starts[label] = start
	}

	labels := make([]string, 0, len(cohorts))
	for label := range cohorts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	// 3. Retention per requested offset
	results := make([]CohortResult, 0, len(labels))
	for _, label := range labels {
		group := cohorts[label]
		start := starts[label]
		retention := make([]RetentionPoint, 0, len(periods))
		for _, d := range periods {
			end := start.AddDate(0, 0, d)
			retained := 0
			for _, m := range group {
				if returnedWithin(m.returns, start, end) {
					retained++
				}
			}
			retention = append(retention, RetentionPoint{
				Period:     d,
				Retained:   retained,
				Percentage: float64(retained) / float64(len(group)) * 100,
			})
		}
		results = append(results, CohortResult{
			Cohort:    label,
			Size:      len(group),
			Retention: retention,
		})
	}

	cfg.logger.Debug().
		Int("users", len(members)).
		Int("cohorts", len(results)).
		Ints("periods", periods).
		Msg("cohorts analyzed")
	return results, nil
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// returnedWithin reports whether any activity falls in (start, end].
func returnedWithin(returns []time.Time, start, end time.Time) bool {
	for _, t := range returns {
		if t.After(start) && !t.After(end) {
			return true
		}
	}
	return false
}
