package engine

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// numberLike covers json.Number and similar decoder types.
type numberLike interface {
	Float64() (float64, error)
}

// ToNumber reports whether v is a finite number and returns it as float64.
// Strings are not numbers here, even when they look like one.
func ToNumber(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case numberLike:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// CoerceNumber is the looser conversion used by numeric filter operators:
// numeric strings parse, booleans become 1 or 0, times become epoch millis.
func CoerceNumber(v any) (float64, bool) {
	if f, ok := ToNumber(v); ok {
		return f, true
	}
	switch x := v.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case time.Time:
		return float64(x.UnixMilli()), true
	}
	return 0, false
}

// ExtractNumbers projects field across view, keeping only valid numbers.
// Missing and non-numeric values are dropped, never turned into zero.
func ExtractNumbers(view RecordView, field string) []float64 {
	n := view.Len()
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v, ok := view.Value(i, field)
		if !ok {
			continue
		}
		if f, ok := ToNumber(v); ok {
			out = append(out, f)
		}
	}
	return out
}
