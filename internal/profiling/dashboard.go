package profiling

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vinodismyname/kpibrief/internal/frame"
	"github.com/vinodismyname/kpibrief/internal/kpi"
)

// Card is one headline tile of the dashboard.
type Card struct {
	Label  string `json:"label"`
	Value  string `json:"value"`
	Detail string `json:"detail,omitempty"`
}

// MissingColumn reports a column with missing cells.
type MissingColumn struct {
	Name      string  `json:"name"`
	Count     int     `json:"count"`
	PctOfRows float64 `json:"pct_of_rows"`
}

// MissingAnalysis explains where missing values sit.
type MissingAnalysis struct {
	TotalMissing   int             `json:"total_missing"`
	MissingPct     float64         `json:"missing_pct"`
	Columns        []MissingColumn `json:"columns"`
	Interpretation string          `json:"interpretation"`
}

// Bin is one histogram bucket, [Low, High) except the last which is closed.
type Bin struct {
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Count int     `json:"count"`
}

// TrendPoint is the metric summed over one date.
type TrendPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Dashboard is the view model a UI renders for one selection.
type Dashboard struct {
	Selection   Selection       `json:"selection"`
	Overview    []Card          `json:"overview"`
	MetricFocus []Card          `json:"metric_focus"`
	Missing     MissingAnalysis `json:"missing"`
	Histogram   []Bin           `json:"histogram"`
	ByCategory  *Concentration  `json:"by_category,omitempty"`
	Trend       []TrendPoint    `json:"trend,omitempty"`
}

// Dashboard builds the view model from a profiled payload. p must already
// carry the selection keys (see ApplySelection).
func (a *Aggregator) Dashboard(p *kpi.Payload, f *frame.Frame, sel Selection) (*Dashboard, error) {
	metric, ok := f.Column(sel.Metric)
	if !ok {
		return nil, fmt.Errorf("profiling: metric column %q not found", sel.Metric)
	}
	d := &Dashboard{Selection: sel}

	d.Overview = []Card{
		{Label: "Rows", Value: humanize.Comma(int64(p.TotalRows)), Detail: "Records after filters"},
		{Label: "Columns", Value: fmt.Sprint(p.TotalColumns), Detail: "Total features"},
		{Label: "Missing Cells", Value: fmt.Sprintf("%.1f%%", p.MissingPct), Detail: humanize.Comma(int64(p.MissingCells)) + " cells"},
		{Label: "Duplicate Rows", Value: fmt.Sprintf("%.1f%%", p.DuplicatePct), Detail: humanize.Comma(int64(p.DuplicateRows)) + " rows"},
	}
	if m := p.Metric; m != nil {
		d.MetricFocus = []Card{
			{Label: "Total " + sel.Metric, Value: money(m.Total)},
			{Label: "Average " + sel.Metric, Value: money(m.Mean)},
			{Label: "Min " + sel.Metric, Value: money(m.Min)},
			{Label: "Max " + sel.Metric, Value: money(m.Max)},
		}
	}

	d.Missing = missingAnalysis(p, f.Rows())
	d.Histogram = histogram(numbers(metric), a.Config.HistogramBins)

	if sel.Category != "" {
		if cat, ok := f.Column(sel.Category); ok {
			c := concentrate(cat, metric, a.Config.CategoryChartTop)
			d.ByCategory = &c
		}
	}
	if sel.Date != "" {
		if dc, ok := f.Column(sel.Date); ok {
			d.Trend = trend(dc, metric)
		}
	}
	return d, nil
}

func money(v float64) string { return humanize.FormatFloat("#,###.##", v) }

// missingAnalysis lists columns with missing cells by descending count and
// picks one of four interpretations.
func missingAnalysis(p *kpi.Payload, rows int) MissingAnalysis {
	out := MissingAnalysis{TotalMissing: p.MissingCells, MissingPct: p.MissingPct}
	for pair := p.MissingValues.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value == 0 {
			continue
		}
		out.Columns = append(out.Columns, MissingColumn{Name: pair.Key, Count: pair.Value, PctOfRows: pct(pair.Value, rows)})
	}
	sort.SliceStable(out.Columns, func(i, j int) bool { return out.Columns[i].Count > out.Columns[j].Count })

	switch {
	case len(out.Columns) == 0:
		out.Interpretation = "No missing values detected."
	case len(out.Columns) == 1 && out.Columns[0].PctOfRows > 70:
		c := out.Columns[0]
		out.Interpretation = fmt.Sprintf("Most missing data is concentrated in %s (%.1f%% of rows). "+
			"This often means that field only applies to a subset of records. "+
			"The rest of the dataset is mostly complete.", c.Name, c.PctOfRows)
	case out.MissingPct < 5:
		out.Interpretation = "Overall missing data is very low (<5%). The dataset is in good shape for most analyses."
	case out.MissingPct < 15:
		out.Interpretation = "There is moderate missing data. Consider imputing or filtering high-missing columns for more accurate models."
	default:
		out.Interpretation = "Missing data is relatively high in multiple columns. You may need to clean or drop some columns or rows."
	}
	return out
}

// histogram splits vals into at most maxBins equal-width bins over [min, max].
// A constant series yields a single bin.
func histogram(vals []float64, maxBins int) []Bin {
	if len(vals) == 0 {
		return nil
	}
	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi || maxBins <= 1 {
		return []Bin{{Low: lo, High: hi, Count: len(vals)}}
	}
	width := (hi - lo) / float64(maxBins)
	bins := make([]Bin, maxBins)
	for i := range bins {
		bins[i].Low = lo + float64(i)*width
		bins[i].High = lo + float64(i+1)*width
	}
	bins[maxBins-1].High = hi
	for _, v := range vals {
		i := int((v - lo) / width)
		if i >= maxBins {
			i = maxBins - 1
		}
		bins[i].Count++
	}
	return bins
}

// trend sums the metric per parsed date, ascending. Rows with an unparseable
// date or metric are skipped.
func trend(dates, metric *frame.Column) []TrendPoint {
	sums := map[time.Time]float64{}
	for i, raw := range dates.Values {
		t, ok := ParseDate(raw)
		if !ok {
			continue
		}
		v, ok := ParseNumber(metric.Values[i])
		if !ok {
			continue
		}
		sums[t] += v
	}
	keys := make([]time.Time, 0, len(sums))
	for t := range sums {
		keys = append(keys, t)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	out := make([]TrendPoint, 0, len(keys))
	for _, t := range keys {
		label := ISODate(t)
		if t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 {
			label = t.Format("2006-01-02 15:04:05")
		}
		out = append(out, TrendPoint{Date: label, Value: sums[t]})
	}
	return out
}
