package profiling

import (
	"fmt"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/vinodismyname/kpibrief/config"
	"github.com/vinodismyname/kpibrief/internal/frame"
	"github.com/vinodismyname/kpibrief/internal/kpi"
	"github.com/vinodismyname/kpibrief/pkg/mcperr"
)

// Aggregator computes the KPI payload from a frame and its schema.
type Aggregator struct {
	Config config.Aggregation
}

// NewAggregator returns an Aggregator; non-positive sizes fall back to defaults.
func NewAggregator(cfg config.Aggregation) *Aggregator {
	if cfg.CategoricalTopN <= 0 {
		cfg.CategoricalTopN = config.DefaultCategoricalTopN
	}
	if cfg.BreakdownTopN <= 0 {
		cfg.BreakdownTopN = config.DefaultBreakdownTopN
	}
	if cfg.CategoryChartTop <= 0 {
		cfg.CategoryChartTop = config.DefaultCategoryChartTop
	}
	if cfg.HistogramBins <= 0 {
		cfg.HistogramBins = config.DefaultHistogramBins
	}
	return &Aggregator{Config: cfg}
}

// Profile builds the always-present part of the payload.
func (a *Aggregator) Profile(f *frame.Frame, s *Schema) (*kpi.Payload, error) {
	p := kpi.New()
	p.TotalRows = f.Rows()
	p.TotalColumns = f.Width()
	p.Columns = f.Names()

	for _, c := range f.Columns {
		p.DataTypes.Set(c.Name, s.Role(c.Name))
		p.MissingValues.Set(c.Name, c.NullCount())
	}
	p.MissingCells = f.NullCells()
	p.MissingPct = pct(p.MissingCells, f.Size())
	p.DuplicateRows = f.DuplicateRows()
	p.DuplicatePct = pct(p.DuplicateRows, f.Rows())

	for _, name := range s.Numeric() {
		col, _ := f.Column(name)
		vals := numbers(col)
		if len(vals) == 0 {
			continue
		}
		sum, err := summarize(vals)
		if err != nil {
			return nil, fmt.Errorf("profiling: summarize %q: %w", name, err)
		}
		p.NumericSummary.Set(name, sum)
	}

	for _, name := range s.Categorical() {
		col, _ := f.Column(name)
		p.CategoricalSummary.Set(name, kpi.CategoricalSummary{
			UniqueValues: col.Unique(),
			TopValues:    TopCounts(col.Values, a.Config.CategoricalTopN),
		})
	}

	for _, name := range s.Dates() {
		col, _ := f.Column(name)
		if r, ok := dateRange(col); ok {
			p.DateSummary.Set(name, r)
		}
	}

	if s.Percent.Len() > 0 {
		p.PercentColumns = s.Percent
	}
	return p, nil
}

// Selection names the columns a dashboard run focuses on. Empty fields mean
// "default" for Metric and "none" for Category and Date.
type Selection struct {
	Metric   string `json:"metric,omitempty"`
	Category string `json:"category,omitempty"`
	Date     string `json:"date,omitempty"`
}

// Resolve validates sel against the schema and fills the default metric (the
// first numeric column). Names match case- and space-insensitively; naming a
// percentage column selects its derived numeric column.
func (a *Aggregator) Resolve(f *frame.Frame, s *Schema, sel Selection) (Selection, error) {
	numeric := s.Numeric()
	if len(numeric) == 0 {
		return sel, mcperr.ErrNoNumericColumn
	}
	out := Selection{}

	if sel.Metric == "" {
		out.Metric = numeric[0]
	} else {
		col, ok := f.Lookup(sel.Metric)
		if !ok {
			return sel, fmt.Errorf("metric column %q not found: %w", sel.Metric, mcperr.ErrInvalidSelection)
		}
		name := col.Name
		if derived, ok := s.Percent.Get(name); ok {
			name = derived
		}
		if s.Role(name) != kpi.RoleNumeric {
			return sel, fmt.Errorf("metric column %q is %s, not numeric: %w", name, s.Role(name), mcperr.ErrInvalidSelection)
		}
		out.Metric = name
	}

	if sel.Category != "" {
		col, ok := f.Lookup(sel.Category)
		if !ok || s.Role(col.Name) != kpi.RoleCategorical {
			return sel, fmt.Errorf("category column %q is not categorical: %w", sel.Category, mcperr.ErrInvalidSelection)
		}
		out.Category = col.Name
	}

	if sel.Date != "" {
		col, ok := f.Lookup(sel.Date)
		if !ok || s.Role(col.Name) != kpi.RoleDate {
			return sel, fmt.Errorf("date column %q is not date-like: %w", sel.Date, mcperr.ErrInvalidSelection)
		}
		out.Date = col.Name
	}
	return out, nil
}

// ApplySelection adds the selection-dependent keys to p. sel must come from
// Resolve.
func (a *Aggregator) ApplySelection(p *kpi.Payload, f *frame.Frame, sel Selection) error {
	col, ok := f.Column(sel.Metric)
	if !ok {
		return fmt.Errorf("metric column %q not found: %w", sel.Metric, mcperr.ErrInvalidSelection)
	}
	p.MetricColumn = sel.Metric
	m, err := metricSummary(numbers(col))
	if err != nil {
		return fmt.Errorf("profiling: metric %q: %w", sel.Metric, err)
	}
	p.Metric = &m

	if sel.Category != "" {
		cat, ok := f.Column(sel.Category)
		if !ok {
			return fmt.Errorf("category column %q not found: %w", sel.Category, mcperr.ErrInvalidSelection)
		}
		p.CategoryColumn = sel.Category
		p.CategoryBreakdown = TopCounts(cat.Values, a.Config.BreakdownTopN)
	}
	p.DateColumn = sel.Date
	return nil
}

// Orders adds the orders preset keys. Each key is set when its own source
// column exists; total_orders, unique_order_ids and date_range additionally
// need the frame to look like an orders export (an "Order ID" or "Order
// Date" column). It reports whether any key was set.
func (a *Aggregator) Orders(p *kpi.Payload, f *frame.Frame) bool {
	applied := false
	if c, ok := f.Lookup("CustomerName"); ok {
		n := c.Unique()
		p.UniqueCustomers = &n
		applied = true
	}
	if c, ok := f.Lookup("State"); ok {
		p.OrdersByState = TopCounts(c.Values, 0)
		applied = true
	}
	if c, ok := f.Lookup("City"); ok {
		p.OrdersByCity = TopCounts(c.Values, a.Config.BreakdownTopN)
		applied = true
	}

	orderID, hasID := f.Lookup("Order ID")
	orderDate, hasDate := f.Lookup("Order Date")
	if !hasID && !hasDate {
		return applied
	}
	total := f.Rows()
	p.TotalOrders = &total
	if hasID {
		n := orderID.Unique()
		p.UniqueOrderIDs = &n
	}
	if hasDate {
		if r, ok := dateRange(orderDate); ok {
			p.DateRange = &r
		}
	}
	return true
}

// TopCounts counts non-missing values and returns the n most frequent in
// descending count order, ties broken by first appearance. n <= 0 keeps all.
func TopCounts(values []string, n int) *kpi.Counts {
	type entry struct {
		value string
		count int
	}
	pos := map[string]int{}
	var entries []entry
	for _, v := range values {
		if frame.IsNull(v) {
			continue
		}
		if i, ok := pos[v]; ok {
			entries[i].count++
			continue
		}
		pos[v] = len(entries)
		entries = append(entries, entry{value: v, count: 1})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].count > entries[j].count })
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	out := kpi.NewCounts()
	for _, e := range entries {
		out.Set(e.value, e.count)
	}
	return out
}

func summarize(vals []float64) (kpi.NumericSummary, error) {
	data := stats.Float64Data(vals)
	out := kpi.NumericSummary{Count: len(vals)}
	var err error
	if out.Min, err = data.Min(); err != nil {
		return out, err
	}
	if out.Max, err = data.Max(); err != nil {
		return out, err
	}
	if out.Mean, err = data.Mean(); err != nil {
		return out, err
	}
	if out.Median, err = data.Median(); err != nil {
		return out, err
	}
	if out.Sum, err = data.Sum(); err != nil {
		return out, err
	}
	return out, nil
}

// metricSummary is zero-valued when the metric has no values left.
func metricSummary(vals []float64) (kpi.Metric, error) {
	if len(vals) == 0 {
		return kpi.Metric{}, nil
	}
	s, err := summarize(vals)
	if err != nil {
		return kpi.Metric{}, err
	}
	return kpi.Metric{Total: s.Sum, Mean: s.Mean, Min: s.Min, Max: s.Max}, nil
}

func dateRange(c *frame.Column) (kpi.DateSummary, bool) {
	var lo, hi time.Time
	found := false
	for _, v := range c.Values {
		if frame.IsNull(v) {
			continue
		}
		t, ok := ParseDate(v)
		if !ok {
			continue
		}
		if !found || t.Before(lo) {
			lo = t
		}
		if !found || t.After(hi) {
			hi = t
		}
		found = true
	}
	if !found {
		return kpi.DateSummary{}, false
	}
	return kpi.DateSummary{StartDate: ISODate(lo), EndDate: ISODate(hi)}, true
}

// pct returns part/whole as a percentage rounded to two places; 0 when whole is 0.
func pct(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return round(100*float64(part)/float64(whole), 2)
}
