package schema

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ============================================================================
// AUTO-DISCOVERY — Heuristic column classification
// ============================================================================
// Inspects raw tabular data and generates a schema.Config automatically.
//
// Classification pipeline per column:
//   1. Sample values → detect type (numeric, date, bool, string)
//   2. Type + cardinality → classify role (dimension, measure, skip)
//   3. Pattern matching → detect temporal labels (Jan-2026, Q1-2026, ...)
//   4. Detect hierarchies between dimensions
// ============================================================================

// DiscoverOptions controls discovery behavior.
type DiscoverOptions struct {
	SampleSize     int      // Max rows to inspect (0 = all). Default: 1000
	RecoverColumns []string // Force-include columns that were auto-skipped
	Name           string   // Dataset name override (otherwise inferred)
	Source         string   // Recorded in Config.DiscoveredFrom
}

// DefaultDiscoverOptions returns sensible defaults.
func DefaultDiscoverOptions() DiscoverOptions {
	return DiscoverOptions{
		SampleSize: 1000,
	}
}

// ReadCSV reads a header row and all well-formed data rows.
func ReadCSV(data []byte) ([]string, [][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // skip malformed rows
		}
		rows = append(rows, row)
	}
	return headers, rows, nil
}

// DiscoverFromCSV generates a schema.Config by inspecting CSV data.
func DiscoverFromCSV(data []byte, opts ...DiscoverOptions) (*Config, error) {
	headers, rows, err := ReadCSV(data)
	if err != nil {
		return nil, err
	}
	opt := pickOptions(opts)
	if opt.Source == "" {
		opt.Source = "CSV"
	}
	return Discover(headers, rows, opt)
}

// Discover generates a schema.Config from a header row and data rows.
// Returns a Config with dimensions, measures and skipped columns.
func Discover(headers []string, rows [][]string, opts ...DiscoverOptions) (*Config, error) {
	opt := pickOptions(opts)

	if len(headers) == 0 {
		return nil, fmt.Errorf("dataset has no columns")
	}

	limit := opt.SampleSize
	if limit <= 0 || limit > len(rows) {
		limit = len(rows)
	}
	sample := rows[:limit]

	totalRows := len(sample)
	if totalRows == 0 {
		return nil, fmt.Errorf("dataset has no data rows")
	}

	// 1. Analyze each column
	columns := make([]columnAnalysis, len(headers))
	for i, header := range headers {
		columns[i] = analyzeColumn(header, i, sample, totalRows)
	}

	// 2. Apply recovery overrides
	recoverSet := make(map[string]bool)
	for _, col := range opt.RecoverColumns {
		recoverSet[strings.ToLower(col)] = true
	}

	// 3. Build schema
	config := &Config{
		Name:           opt.Name,
		Version:        "1.0",
		DiscoveredFrom: opt.Source,
		DiscoveredAt:   time.Now().Format(time.RFC3339),
	}
	if config.Name == "" {
		config.Name = "Auto-discovered Dataset"
	}

	for i := range columns {
		col := &columns[i]
		recovered := recoverSet[strings.ToLower(col.header)] || recoverSet[col.key]

		switch col.role {
		case roleDimension:
			config.Dimensions = append(config.Dimensions, col.toDimension())

		case roleMeasure:
			config.Measures = append(config.Measures, col.toMeasure())

		case roleSkipped:
			if recovered {
				col.role = roleDimension
				config.Dimensions = append(config.Dimensions, col.toDimension())
			} else {
				config.SkippedColumns = append(config.SkippedColumns, SkippedColumn{
					Column:      col.header,
					Key:         col.key,
					Reason:      col.skipReason,
					Recoverable: col.recoverable,
				})
			}
		}
	}

	// 4. Link dimension hierarchies
	linkHierarchies(config.Dimensions, sample, columns)

	return config, nil
}

func pickOptions(opts []DiscoverOptions) DiscoverOptions {
	if len(opts) > 0 {
		return opts[0]
	}
	return DefaultDiscoverOptions()
}

// ============================================================================
// COLUMN ANALYSIS
// ============================================================================

type columnRole int

const (
	roleDimension columnRole = iota
	roleMeasure
	roleSkipped
)

type columnType int

const (
	typeString columnType = iota
	typeNumeric
	typeDate
	typeBool
)

func (t columnType) String() string {
	switch t {
	case typeNumeric:
		return TypeNumber
	case typeDate:
		return TypeDate
	case typeBool:
		return TypeBool
	default:
		return TypeString
	}
}

type columnAnalysis struct {
	header      string
	key         string
	index       int
	colType     columnType
	role        columnRole
	skipReason  string
	recoverable bool

	// Stats
	uniqueCount int
	totalCount  int
	nullCount   int
	sampleVals  []string

	isTemporal     bool
	temporalFormat string
	hasDecimals    bool
}

// analyzeColumn inspects all values in a column and classifies it.
func analyzeColumn(header string, index int, rows [][]string, totalRows int) columnAnalysis {
	col := columnAnalysis{
		header:     header,
		key:        toSnakeCase(header),
		index:      index,
		totalCount: totalRows,
	}

	values := make([]string, 0, len(rows))
	uniqueSet := make(map[string]bool)

	for _, row := range rows {
		if index >= len(row) {
			col.nullCount++
			continue
		}
		val := strings.TrimSpace(row[index])
		if IsNull(val) {
			col.nullCount++
			continue
		}
		values = append(values, val)
		uniqueSet[val] = true
	}

	col.uniqueCount = len(uniqueSet)

	if len(values) == 0 {
		col.role = roleSkipped
		col.skipReason = "All values are empty/null"
		col.recoverable = false
		return col
	}

	col.sampleVals = collectSamples(uniqueSet, 10)

	// Step 1: Detect type
	col.colType = detectType(values)

	// Decimals signal continuous data → measure
	if col.colType == typeNumeric {
		for _, v := range values {
			if strings.Contains(v, ".") {
				col.hasDecimals = true
				break
			}
		}
	}

	// Step 2: Temporal labels
	if col.colType == typeString {
		col.isTemporal, col.temporalFormat = detectTemporalPattern(col.sampleVals)
	}
	if col.colType == typeDate {
		col.isTemporal = true
	}

	// Step 3: Classify role based on type + cardinality
	col.classifyRole(totalRows)
	return col
}

// classifyRole determines dimension vs measure vs skip.
func (col *columnAnalysis) classifyRole(totalRows int) {
	switch col.colType {

	case typeNumeric:
		if col.uniqueCount == totalRows && totalRows > 10 && !col.hasDecimals {
			// Every value a unique integer → likely an ID
			col.role = roleSkipped
			col.skipReason = "Unique per row — likely an ID column"
			col.recoverable = true
			return
		}
		if col.hasDecimals {
			col.role = roleMeasure
			return
		}
		// Few unique values at a low ratio → coded dimension (e.g., priority 1-5)
		uniqueRatio := float64(col.uniqueCount) / float64(totalRows)
		if col.uniqueCount < 20 && uniqueRatio < 0.3 {
			col.role = roleDimension
			return
		}
		col.role = roleMeasure

	case typeDate:
		col.role = roleDimension
		col.isTemporal = true

	case typeBool:
		col.role = roleDimension

	case typeString:
		if col.uniqueCount == totalRows && totalRows > 10 {
			col.role = roleSkipped
			col.skipReason = "Unique per row — likely an identifier"
			col.recoverable = true
			return
		}
		if col.uniqueCount > totalRows/2 && col.uniqueCount > 50 {
			col.role = roleSkipped
			col.skipReason = fmt.Sprintf("High cardinality (%d unique values) — not useful for grouping", col.uniqueCount)
			col.recoverable = true
			return
		}
		col.role = roleDimension
	}
}

// ============================================================================
// TYPE DETECTION
// ============================================================================

// IsNull reports whether a cell holds one of the usual empty markers.
func IsNull(s string) bool {
	switch s {
	case "", "null", "NULL", "N/A", "n/a":
		return true
	}
	return false
}

// detectType inspects values to determine column type.
// Requires 80%+ of non-null values to match for numeric/date/bool.
func detectType(values []string) columnType {
	if len(values) == 0 {
		return typeString
	}

	numCount := 0
	dateCount := 0
	boolCount := 0

	for _, v := range values {
		if _, ok := ParseNumber(v); ok {
			numCount++
		}
		if isDate(v) {
			dateCount++
		}
		if _, ok := ParseBool(v); ok {
			boolCount++
		}
	}

	threshold := int(math.Ceil(float64(len(values)) * 0.8))

	if boolCount >= threshold {
		return typeBool
	}
	if dateCount >= threshold {
		return typeDate
	}
	if numCount >= threshold {
		return typeNumeric
	}
	return typeString
}

// ParseNumber reads a measure cell, accepting thousands separators and a
// leading currency symbol: "$1,234.56" → 1234.56.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	for _, symbol := range []string{"$", "€", "£"} {
		s = strings.TrimPrefix(s, symbol)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		f = -f
	}
	return f, true
}

// ParseBool reads a boolean cell: true/false, yes/no, 1/0.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1":
		return true, true
	case "false", "no", "0":
		return false, true
	}
	return false, false
}

var dateFormats = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
	"02/01/2006",
	"Jan-2006",
	"January 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

func isDate(s string) bool {
	s = strings.TrimSpace(s)
	for _, layout := range dateFormats {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// ============================================================================
// TEMPORAL LABELS
// ============================================================================

var monthPatterns = []struct {
	re     *regexp.Regexp
	format string
}{
	{regexp.MustCompile(`^[A-Z][a-z]{2}-\d{4}$`), "MMM-yyyy"},   // Jan-2026
	{regexp.MustCompile(`^\d{4}-\d{2}$`), "yyyy-MM"},             // 2026-01
	{regexp.MustCompile(`^\d{4}-W\d{2}$`), "yyyy-Www"},           // 2026-W03
	{regexp.MustCompile(`^\d{4}-Q[1-4]$`), "yyyy-QN"},            // 2026-Q1
	{regexp.MustCompile(`^Q[1-4]-\d{4}$`), "QN-yyyy"},            // Q1-2026
	{regexp.MustCompile(`^Q[1-4]\s+\d{4}$`), "QN yyyy"},          // Q1 2026
	{regexp.MustCompile(`^\d{4}$`), "yyyy"},                       // 2026
	{regexp.MustCompile(`^[A-Z][a-z]+ \d{4}$`), "MMMM yyyy"},     // January 2026
}

// detectTemporalPattern checks if values match known month/week/quarter labels.
func detectTemporalPattern(samples []string) (bool, string) {
	if len(samples) == 0 {
		return false, ""
	}

	for _, pattern := range monthPatterns {
		matches := 0
		for _, s := range samples {
			if pattern.re.MatchString(strings.TrimSpace(s)) {
				matches++
			}
		}
		if float64(matches)/float64(len(samples)) >= 0.8 {
			return true, pattern.format
		}
	}

	return false, ""
}

// ============================================================================
// HIERARCHY DETECTION
// ============================================================================

// linkHierarchies sets Parent on every dimension whose values each belong to
// a single value of a coarser dimension. Among several candidate parents the
// finest one (most distinct values) wins; ties keep the earlier column.
// Temporal dimensions take no part.
func linkHierarchies(dims []DimensionMeta, rows [][]string, columns []columnAnalysis) {
	type level struct {
		index  int
		unique int
	}
	levels := make(map[string]level, len(dims))
	for _, col := range columns {
		if col.role == roleDimension && !col.isTemporal {
			levels[col.key] = level{index: col.index, unique: col.uniqueCount}
		}
	}

	for i := range dims {
		child, ok := levels[dims[i].Key]
		if !ok {
			continue
		}
		best := -1
		for j := range dims {
			parent, ok := levels[dims[j].Key]
			if !ok || i == j || parent.unique >= child.unique {
				continue
			}
			if best >= 0 && parent.unique <= levels[dims[best].Key].unique {
				continue
			}
			if rollsUp(rows, child.index, parent.index) {
				best = j
			}
		}
		if best >= 0 {
			dims[i].Parent = dims[best].Key
		}
	}
}

// rollsUp reports whether the child column determines the parent column
// and takes more than one value.
func rollsUp(rows [][]string, child, parent int) bool {
	owner := make(map[string]string)
	for _, row := range rows {
		if child >= len(row) || parent >= len(row) {
			continue
		}
		c, p := strings.TrimSpace(row[child]), strings.TrimSpace(row[parent])
		if IsNull(c) || IsNull(p) {
			continue
		}
		if prev, seen := owner[c]; seen && prev != p {
			return false
		}
		owner[c] = p
	}
	return len(owner) > 1
}

// ============================================================================
// CONVERSION HELPERS
// ============================================================================

func cardinalityOf(unique int) string {
	switch {
	case unique <= 10:
		return CardinalityLow
	case unique <= 100:
		return CardinalityMedium
	}
	return CardinalityHigh
}

func (col *columnAnalysis) toDimension() DimensionMeta {
	return DimensionMeta{
		Key:             col.key,
		Column:          col.header,
		DisplayName:     toDisplayName(col.header),
		Type:            col.colType.String(),
		SampleValues:    col.sampleVals,
		IsTemporal:      col.isTemporal,
		TemporalFormat:  col.temporalFormat,
		CardinalityHint: cardinalityOf(col.uniqueCount),
	}
}

// toMeasure suggests summing continuous measures and averaging whole-number
// ones (scores, points, counts per row).
func (col *columnAnalysis) toMeasure() MeasureMeta {
	m := DefaultMeasure(col.key, toDisplayName(col.header))
	m.Column = col.header
	m.HasDecimals = col.hasDecimals
	if !col.hasDecimals {
		m.DefaultAggregation = AggregateAverage
	}
	return m
}

// ============================================================================
// STRING UTILITIES
// ============================================================================

// toSnakeCase converts "Column Name" or "columnName" → "column_name".
// Dots survive so "Geo.Region" keeps addressing a nested field.
func toSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) && i > 0 {
			prev := rune(s[i-1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				result.WriteRune('_')
			}
		}
		result.WriteRune(r)
	}

	s = result.String()
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "__", "_")
	s = strings.Trim(s, "_")
	return s
}

// toDisplayName turns a header into a label: "story_points" → "Story
// Points". Headers that already contain spaces are kept as written.
func toDisplayName(header string) string {
	if strings.Contains(header, " ") {
		return strings.TrimSpace(header)
	}
	words := strings.FieldsFunc(header, func(r rune) bool { return r == '_' || r == '-' })
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// collectSamples picks up to maxSamples representative values.
func collectSamples(uniqueSet map[string]bool, maxSamples int) []string {
	samples := make([]string, 0, len(uniqueSet))
	for v := range uniqueSet {
		samples = append(samples, v)
	}

	// Sort for deterministic output
	sort.Strings(samples)

	if len(samples) > maxSamples {
		samples = samples[:maxSamples]
	}
	return samples
}
