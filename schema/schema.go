package schema

// ============================================================================
// SCHEMA — Describes the shape of a tabular record source
// ============================================================================
// Auto-discovered from CSV or spreadsheet rows, or written by hand.
// Loaders use it to turn cells into typed record values: measures become
// numbers, boolean dimensions become bools, everything else stays a string.
// ============================================================================

// Column value types.
const (
	TypeString = "string"
	TypeNumber = "number"
	TypeDate   = "date"
	TypeBool   = "bool"
)

// Cardinality hints on dimensions.
const (
	CardinalityLow    = "low"    // at most 10 distinct values
	CardinalityMedium = "medium" // at most 100
	CardinalityHigh   = "high"
)

// Default aggregations suggested for measures.
const (
	AggregateSum     = "sum"
	AggregateAverage = "average"
)

// Config describes the complete shape of a dataset.
type Config struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`

	Dimensions []DimensionMeta `json:"dimensions"`
	Measures   []MeasureMeta   `json:"measures"`

	// Auto-discovery metadata
	DiscoveredFrom string `json:"discoveredFrom,omitempty"`
	DiscoveredAt   string `json:"discoveredAt,omitempty"`

	// Columns skipped during auto-discovery. Loaders still keep their
	// values, as plain strings.
	SkippedColumns []SkippedColumn `json:"skippedColumns,omitempty"`
}

// DimensionMeta describes a field used for grouping/filtering.
type DimensionMeta struct {
	Key             string   `json:"key"`
	Column          string   `json:"column"`
	DisplayName     string   `json:"displayName"`
	Type            string   `json:"type"`
	SampleValues    []string `json:"sampleValues"`
	Parent          string   `json:"parent,omitempty"` // Parent dimension key for hierarchies
	IsTemporal      bool     `json:"isTemporal,omitempty"`
	TemporalFormat  string   `json:"temporalFormat,omitempty"`
	CardinalityHint string   `json:"cardinalityHint,omitempty"` // "low", "medium", "high"
}

// MeasureMeta describes a numeric field used for aggregation.
type MeasureMeta struct {
	Key                string `json:"key"`
	Column             string `json:"column"`
	DisplayName        string `json:"displayName"`
	HasDecimals        bool   `json:"hasDecimals,omitempty"`
	DefaultAggregation string `json:"defaultAggregation,omitempty"`
}

// SkippedColumn records why a column was excluded during auto-discovery.
type SkippedColumn struct {
	Column      string `json:"column"`
	Key         string `json:"key"`
	Reason      string `json:"reason"`
	Recoverable bool   `json:"recoverable"` // Can be restored if consumer overrides
}

// DefaultDimension creates a string DimensionMeta.
func DefaultDimension(key, displayName string, samples []string) DimensionMeta {
	return DimensionMeta{
		Key:          key,
		Column:       displayName,
		DisplayName:  displayName,
		Type:         TypeString,
		SampleValues: samples,
	}
}

// DefaultMeasure creates a MeasureMeta summed by default.
func DefaultMeasure(key, displayName string) MeasureMeta {
	return MeasureMeta{
		Key:                key,
		Column:             displayName,
		DisplayName:        displayName,
		DefaultAggregation: AggregateSum,
	}
}

// DimensionKeys returns all dimension keys.
func (c Config) DimensionKeys() []string {
	keys := make([]string, len(c.Dimensions))
	for i, d := range c.Dimensions {
		keys[i] = d.Key
	}
	return keys
}

// MeasureKeys returns all measure keys.
func (c Config) MeasureKeys() []string {
	keys := make([]string, len(c.Measures))
	for i, m := range c.Measures {
		keys[i] = m.Key
	}
	return keys
}

// Dimension looks up a dimension by key.
func (c Config) Dimension(key string) (DimensionMeta, bool) {
	for _, d := range c.Dimensions {
		if d.Key == key {
			return d, true
		}
	}
	return DimensionMeta{}, false
}

// Children returns the dimensions that roll up into key.
func (c Config) Children(key string) []DimensionMeta {
	var out []DimensionMeta
	for _, d := range c.Dimensions {
		if d.Parent == key {
			out = append(out, d)
		}
	}
	return out
}

// TypeOf returns the value type of a key. Unknown keys are strings.
func (c Config) TypeOf(key string) string {
	for _, m := range c.Measures {
		if m.Key == key {
			return TypeNumber
		}
	}
	for _, d := range c.Dimensions {
		if d.Key == key {
			if d.Type == "" {
				return TypeString
			}
			return d.Type
		}
	}
	return TypeString
}

// Key converts a column header to its record key: "Story Points" →
// "story_points", "Geo.Region" → "geo.region".
func Key(header string) string {
	return toSnakeCase(header)
}
