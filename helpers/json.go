package helpers

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/spektr-org/insight/engine"
)

// ============================================================================
// JSON HELPERS — JSON arrays and newline-delimited JSON
// ============================================================================
// Values keep their decoded JSON types: numbers are float64, objects are
// nested maps reachable with dot paths, null fields count as absent.
// ============================================================================

// ParseJSON decodes a JSON array of objects. A single top-level object is
// treated as one record.
func ParseJSON(data []byte) ([]engine.Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON input")
	}

	if data[0] == '{' {
		var rec engine.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode JSON object: %w", err)
		}
		return []engine.Record{rec}, nil
	}

	var records []engine.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode JSON array: %w", err)
	}
	return compact(records), nil
}

// ParseNDJSON decodes one JSON object per line. Blank lines are ignored.
func ParseNDJSON(r io.Reader) ([]engine.Record, error) {
	dec := json.NewDecoder(r)

	var records []engine.Record
	for n := 1; ; n++ {
		var rec engine.Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode NDJSON record %d: %w", n, err)
		}
		records = append(records, rec)
	}
	return compact(records), nil
}

// compact drops JSON null entries from an array of records.
func compact(records []engine.Record) []engine.Record {
	out := records[:0]
	for _, rec := range records {
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out
}
