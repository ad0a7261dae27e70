// Package kpi defines the profiling payload written to kpis.json and read back
// by the prompt builder. Mappings keep insertion order so the serialized file
// and the prompt list columns and counts the way the profiler produced them.
package kpi

import (
	"fmt"
	"math"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Role is the semantic type inferred for a column.
type Role string

const (
	RoleNumeric      Role = "numeric"
	RolePercentage   Role = "percentage"
	RoleDate         Role = "date"
	RoleCategorical  Role = "categorical"
	RoleUnclassified Role = "unclassified"
)

// Counts maps a label to an occurrence count, in insertion order.
type Counts = orderedmap.OrderedMap[string, int]

// NewCounts returns an empty ordered count mapping.
func NewCounts() *Counts { return orderedmap.New[string, int]() }

type NumericSummary struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Sum    float64 `json:"sum"`
}

type CategoricalSummary struct {
	UniqueValues int     `json:"unique_values"`
	TopValues    *Counts `json:"top_values"`
}

// DateSummary holds an ISO (YYYY-MM-DD) coverage range.
type DateSummary struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Metric summarizes the user-selected metric column.
type Metric struct {
	Total float64 `json:"total"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Payload is the KPI payload. The first block is always present; selection
// and orders keys only appear when the run produced them.
type Payload struct {
	TotalRows          int                                                `json:"total_rows"`
	TotalColumns       int                                                `json:"total_columns"`
	Columns            []string                                           `json:"columns"`
	DataTypes          *orderedmap.OrderedMap[string, Role]               `json:"data_types"`
	MissingValues      *Counts                                            `json:"missing_values"`
	MissingCells       int                                                `json:"missing_cells"`
	MissingPct         float64                                            `json:"missing_pct"`
	DuplicateRows      int                                                `json:"duplicate_rows"`
	DuplicatePct       float64                                            `json:"duplicate_pct"`
	NumericSummary     *orderedmap.OrderedMap[string, NumericSummary]     `json:"numeric_summary"`
	CategoricalSummary *orderedmap.OrderedMap[string, CategoricalSummary] `json:"categorical_summary"`
	DateSummary        *orderedmap.OrderedMap[string, DateSummary]        `json:"date_summary"`
	PercentColumns     *orderedmap.OrderedMap[string, string]             `json:"percent_columns,omitempty"`

	MetricColumn      string  `json:"metric_column,omitempty"`
	CategoryColumn    string  `json:"category_column,omitempty"`
	DateColumn        string  `json:"date_column,omitempty"`
	Metric            *Metric `json:"metric,omitempty"`
	CategoryBreakdown *Counts `json:"category_breakdown,omitempty"`

	TotalOrders     *int         `json:"total_orders,omitempty"`
	UniqueCustomers *int         `json:"unique_customers,omitempty"`
	UniqueOrderIDs  *int         `json:"unique_order_ids,omitempty"`
	OrdersByState   *Counts      `json:"orders_by_state,omitempty"`
	OrdersByCity    *Counts      `json:"orders_by_city,omitempty"`
	DateRange       *DateSummary `json:"date_range,omitempty"`
}

// New returns a payload with every always-present mapping allocated.
func New() *Payload {
	return &Payload{
		Columns:            []string{},
		DataTypes:          orderedmap.New[string, Role](),
		MissingValues:      NewCounts(),
		NumericSummary:     orderedmap.New[string, NumericSummary](),
		CategoricalSummary: orderedmap.New[string, CategoricalSummary](),
		DateSummary:        orderedmap.New[string, DateSummary](),
	}
}

// Validate checks the serialization invariants: every float is finite and
// the per-column missing counts add up to MissingCells.
func (p *Payload) Validate() error {
	if p == nil {
		return fmt.Errorf("kpi: nil payload")
	}
	check := func(field string, v float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("kpi: %s is not finite (%v)", field, v)
		}
		return nil
	}
	if err := check("missing_pct", p.MissingPct); err != nil {
		return err
	}
	if err := check("duplicate_pct", p.DuplicatePct); err != nil {
		return err
	}
	if p.NumericSummary != nil {
		for pair := p.NumericSummary.Oldest(); pair != nil; pair = pair.Next() {
			s := pair.Value
			for name, v := range map[string]float64{"min": s.Min, "max": s.Max, "mean": s.Mean, "median": s.Median, "sum": s.Sum} {
				if err := check("numeric_summary."+pair.Key+"."+name, v); err != nil {
					return err
				}
			}
		}
	}
	if m := p.Metric; m != nil {
		for name, v := range map[string]float64{"total": m.Total, "mean": m.Mean, "min": m.Min, "max": m.Max} {
			if err := check("metric."+name, v); err != nil {
				return err
			}
		}
	}
	if p.MissingValues != nil {
		sum := 0
		for pair := p.MissingValues.Oldest(); pair != nil; pair = pair.Next() {
			sum += pair.Value
		}
		if sum != p.MissingCells {
			return fmt.Errorf("kpi: missing_values sum %d != missing_cells %d", sum, p.MissingCells)
		}
	}
	return nil
}
