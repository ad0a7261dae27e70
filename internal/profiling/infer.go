// Package profiling turns a loaded frame into the KPI payload and the
// dashboard view model. Column roles are inferred first; every aggregate
// reads them from the resulting Schema.
package profiling

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/vinodismyname/kpibrief/config"
	"github.com/vinodismyname/kpibrief/internal/frame"
	"github.com/vinodismyname/kpibrief/internal/kpi"
)

var percentPattern = regexp.MustCompile(`^\d+(\.\d+)?%$`)

// DerivedSuffix is appended to a percentage column's name for its numeric twin.
const DerivedSuffix = " (numeric)"

// ColumnType is the inferred role of one column.
type ColumnType struct {
	Name        string   `json:"name"`
	Role        kpi.Role `json:"role"`
	NonNull     int      `json:"non_null"`
	Unique      int      `json:"unique"`
	DerivedFrom string   `json:"derived_from,omitempty"`
}

// Schema lists inferred roles in frame order.
type Schema struct {
	Columns []ColumnType
	// Percent maps a percentage column to its derived numeric column.
	Percent *orderedmap.OrderedMap[string, string]
	index   map[string]int
}

// Role returns the role of a column, RoleUnclassified when unknown.
func (s *Schema) Role(name string) kpi.Role {
	if i, ok := s.index[name]; ok {
		return s.Columns[i].Role
	}
	return kpi.RoleUnclassified
}

// Numeric returns numeric column names in frame order.
func (s *Schema) Numeric() []string { return s.withRole(kpi.RoleNumeric) }

// Categorical returns categorical column names in frame order.
func (s *Schema) Categorical() []string { return s.withRole(kpi.RoleCategorical) }

// Dates returns date-like column names in frame order.
func (s *Schema) Dates() []string { return s.withRole(kpi.RoleDate) }

func (s *Schema) withRole(r kpi.Role) []string {
	var out []string
	for _, c := range s.Columns {
		if c.Role == r {
			out = append(out, c.Name)
		}
	}
	return out
}

// Inferer classifies columns using configurable thresholds.
type Inferer struct {
	Thresholds config.Thresholds
}

// NewInferer returns an Inferer; zero thresholds fall back to defaults.
func NewInferer(t config.Thresholds) *Inferer {
	if t.PercentMatchRatio <= 0 {
		t.PercentMatchRatio = config.DefaultPercentMatchRatio
	}
	if t.DateParseRatio <= 0 {
		t.DateParseRatio = config.DefaultDateParseRatio
	}
	if t.CategoricalMaxUniqueRatio <= 0 {
		t.CategoricalMaxUniqueRatio = config.DefaultCategoricalMaxUniqueRatio
	}
	return &Inferer{Thresholds: t}
}

// Infer assigns each column exactly one role, checked in the order numeric,
// percentage, date, categorical. Percentage columns get a derived
// "<name> (numeric)" column added to f holding value/100, which is itself
// classified numeric. Infer is idempotent on a frame it already processed.
func (in *Inferer) Infer(f *frame.Frame) (*Schema, error) {
	s := &Schema{Percent: orderedmap.New[string, string](), index: map[string]int{}}

	// Snapshot: derived columns are appended while iterating.
	source := make([]*frame.Column, 0, len(f.Columns))
	for _, c := range f.Columns {
		if !c.Derived {
			source = append(source, c)
		}
	}

	for _, col := range source {
		nonNull := col.NonNull()
		ct := ColumnType{Name: col.Name, NonNull: len(nonNull), Unique: col.Unique()}
		switch {
		case isNumeric(nonNull):
			ct.Role = kpi.RoleNumeric
		case in.isPercent(nonNull):
			ct.Role = kpi.RolePercentage
		case in.isDate(nonNull):
			ct.Role = kpi.RoleDate
		case in.isCategorical(ct.Unique, f.Rows()):
			ct.Role = kpi.RoleCategorical
		default:
			ct.Role = kpi.RoleUnclassified
		}
		s.add(ct)

		if ct.Role != kpi.RolePercentage {
			continue
		}
		name := col.Name + DerivedSuffix
		if err := f.AddColumn(name, derivePercent(col.Values)); err != nil {
			return nil, fmt.Errorf("profiling: derive %q: %w", name, err)
		}
		derived, _ := f.Column(name)
		s.add(ColumnType{
			Name:        name,
			Role:        kpi.RoleNumeric,
			NonNull:     len(derived.NonNull()),
			Unique:      derived.Unique(),
			DerivedFrom: col.Name,
		})
		s.Percent.Set(col.Name, name)
	}

	// Keep Schema order aligned with frame order (derived columns at the end).
	ordered := make([]ColumnType, 0, len(s.Columns))
	for _, name := range f.Names() {
		if i, ok := s.index[name]; ok {
			ordered = append(ordered, s.Columns[i])
		}
	}
	s.Columns = ordered
	for i, c := range s.Columns {
		s.index[c.Name] = i
	}
	return s, nil
}

func (s *Schema) add(ct ColumnType) {
	s.index[ct.Name] = len(s.Columns)
	s.Columns = append(s.Columns, ct)
}

func isNumeric(values []string) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if _, ok := ParseNumber(v); !ok {
			return false
		}
	}
	return true
}

func (in *Inferer) isPercent(values []string) bool {
	if len(values) == 0 {
		return false
	}
	n := 0
	for _, v := range values {
		if percentPattern.MatchString(v) {
			n++
		}
	}
	return float64(n)/float64(len(values)) >= in.Thresholds.PercentMatchRatio
}

func (in *Inferer) isDate(values []string) bool {
	if len(values) == 0 {
		return false
	}
	n := 0
	for _, v := range values {
		if _, ok := ParseDate(v); ok {
			n++
		}
	}
	return float64(n)/float64(len(values)) >= in.Thresholds.DateParseRatio
}

func (in *Inferer) isCategorical(unique, rows int) bool {
	return unique > 1 && float64(unique) < in.Thresholds.CategoricalMaxUniqueRatio*float64(rows)
}

func derivePercent(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if !percentPattern.MatchString(v) {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
		if err != nil {
			continue
		}
		out[i] = strconv.FormatFloat(f/100, 'g', -1, 64)
	}
	return out
}

// ParseNumber parses a numeric cell, tolerating thousands separators, a
// leading currency sign and surrounding spaces. Non-finite values are
// rejected.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if neg {
		f = -f
	}
	return f, true
}

// numbers returns the parseable values of a column, skipping missing cells.
func numbers(c *frame.Column) []float64 {
	out := make([]float64, 0, len(c.Values))
	for _, v := range c.Values {
		if frame.IsNull(v) {
			continue
		}
		if f, ok := ParseNumber(v); ok {
			out = append(out, f)
		}
	}
	return out
}
