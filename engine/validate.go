package engine

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ============================================================================
// VALIDATION — Fail fast on malformed configuration
// ============================================================================
// Struct tags cover per-field rules (required, oneof, ranges). Rules that
// span fields (operand shapes, orderBy columns, duplicate columns) are
// checked here in code. Both surface as ConfigErrors.
// ============================================================================

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report json names ("metrics[0].aggregation") instead of Go names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// validateStruct runs tag validation and translates failures.
func validateStruct(s any) []ConfigError {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ConfigError{{Rule: "invalid", Message: err.Error()}}
	}

	out := make([]ConfigError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ConfigError{
			Field:   trimNamespace(fe.Namespace()),
			Rule:    fe.Tag(),
			Message: describeFieldError(fe),
		})
	}
	return out
}

// trimNamespace drops the root struct name from a validator namespace.
func trimNamespace(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", fe.Param())
	case "gtefield":
		return fmt.Sprintf("must not be less than %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

func finish(errs []ConfigError) error {
	if len(errs) == 0 {
		return nil
	}
	return newValidationError(errs...)
}

// ValidateAggregationConfig rejects configurations Aggregate cannot honor:
// unknown operators, malformed filter operands, an orderBy column that no row
// would carry, duplicate output columns, an inverted date range.
func ValidateAggregationConfig(cfg AggregationConfig) error {
	errs := validateStruct(cfg)
	errs = append(errs, checkFilterOperands(cfg.Filters, "filters")...)

	columns := make(map[string]bool)
	for i := range cfg.GroupBy {
		columns[groupColumn(i)] = true
	}
	if cfg.TimePeriod != "" {
		columns[groupColumn(len(cfg.GroupBy))] = true
	}
	for i, m := range cfg.Metrics {
		col := m.Column()
		if columns[col] {
			errs = append(errs, ConfigError{
				Field:   fmt.Sprintf("metrics[%d]", i),
				Rule:    "unique_column",
				Message: fmt.Sprintf("output column %q is produced more than once", col),
			})
		}
		columns[col] = true
	}

	if cfg.OrderBy != nil && cfg.OrderBy.Field != "" && !columns[cfg.OrderBy.Field] {
		errs = append(errs, ConfigError{
			Field:   "orderBy.field",
			Rule:    "orderby_column",
			Message: fmt.Sprintf("%q is not an output column", cfg.OrderBy.Field),
		})
	}

	return finish(errs)
}

// ValidateFilters checks a standalone filter list.
func ValidateFilters(filters []Filter) error {
	var errs []ConfigError
	for i, f := range filters {
		for _, ce := range validateStruct(f) {
			ce.Field = fmt.Sprintf("filters[%d].%s", i, ce.Field)
			errs = append(errs, ce)
		}
	}
	errs = append(errs, checkFilterOperands(filters, "filters")...)
	return finish(errs)
}

// checkFilterOperands enforces operand shapes for between, in and not_in.
func checkFilterOperands(filters []Filter, prefix string) []ConfigError {
	var errs []ConfigError
	for i, f := range filters {
		field := prefix + "[" + strconv.Itoa(i) + "].value"
		switch f.Operator {
		case OpBetween:
			if _, _, ok := rangeOperand(f.Value); !ok {
				errs = append(errs, ConfigError{
					Field:   field,
					Rule:    "range",
					Message: "between needs a two-element numeric [low, high] range",
				})
			}
		case OpIn, OpNotIn:
			if _, ok := listOperand(f.Value); !ok {
				errs = append(errs, ConfigError{
					Field:   field,
					Rule:    "list",
					Message: fmt.Sprintf("%s needs a list operand", f.Operator),
				})
			}
		case OpGreaterThan, OpLessThan:
			if _, ok := CoerceNumber(f.Value); !ok {
				errs = append(errs, ConfigError{
					Field:   field,
					Rule:    "number",
					Message: fmt.Sprintf("%s needs a numeric operand", f.Operator),
				})
			}
		}
	}
	return errs
}

func requireField(errs []ConfigError, name, value string) []ConfigError {
	if strings.TrimSpace(value) == "" {
		return append(errs, ConfigError{Field: name, Rule: "required", Message: "is required"})
	}
	return errs
}
