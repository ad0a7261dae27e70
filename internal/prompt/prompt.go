// Package prompt renders a KPI payload into the instruction text sent to the
// summarization model. Output is deterministic for a given payload.
package prompt

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vinodismyname/kpibrief/internal/kpi"
	"github.com/vinodismyname/kpibrief/pkg/mcperr"
)

const preamble = "You are an experienced data analyst. You are given profiling information about a tabular dataset."

// Build renders p. A nil payload or one without columns yields
// mcperr.ErrMissingData.
func Build(p *kpi.Payload) (string, error) {
	if p == nil {
		return "", fmt.Errorf("prompt: nil payload: %w", mcperr.ErrMissingData)
	}
	if len(p.Columns) == 0 {
		return "", fmt.Errorf("prompt: payload has no columns: %w", mcperr.ErrMissingData)
	}

	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n")

	section(&b, "DATASET OVERVIEW", overview(p))
	section(&b, "COLUMNS AND DATA TYPES", dataTypes(p))
	section(&b, "MISSING VALUES PER COLUMN", missing(p))
	section(&b, "DATA QUALITY", []string{
		fmt.Sprintf("- Missing cells: %d (%.1f%% of all values)", p.MissingCells, p.MissingPct),
		fmt.Sprintf("- Duplicate rows: %d (%.1f%% of rows)", p.DuplicateRows, p.DuplicatePct),
	})
	section(&b, "NUMERIC COLUMNS SUMMARY (min, max, mean, median)", numeric(p))
	if p.MetricColumn != "" {
		section(&b, fmt.Sprintf("SELECTED METRIC (%s)", p.MetricColumn), metric(p))
	}
	section(&b, "CATEGORICAL COLUMNS SUMMARY (unique values and top categories)", categorical(p))
	section(&b, "DATE-LIKE COLUMNS (coverage ranges)", dates(p))
	section(&b, "ORDERS BY STATE", counts(p.OrdersByState, "orders"))
	section(&b, "TOP CITIES BY ORDERS", counts(p.OrdersByCity, "orders"))

	b.WriteString("\n")
	b.WriteString(task(p))
	return b.String(), nil
}

// BuildFromFile loads a kpis.json file and renders it.
func BuildFromFile(path string) (string, error) {
	p, err := kpi.Load(path)
	if err != nil {
		return "", err
	}
	return Build(p)
}

func section(b *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
}

func overview(p *kpi.Payload) []string {
	lines := []string{
		fmt.Sprintf("- Total rows: %d", p.TotalRows),
		fmt.Sprintf("- Total columns: %d", p.TotalColumns),
	}
	if p.MetricColumn != "" {
		lines = append(lines, "- Selected metric column: "+p.MetricColumn)
	}
	if p.CategoryColumn != "" {
		lines = append(lines, "- Selected category column: "+p.CategoryColumn)
	}
	if p.DateColumn != "" {
		lines = append(lines, "- Selected date column: "+p.DateColumn)
	}
	if r := p.DateRange; r != nil {
		lines = append(lines, fmt.Sprintf("- Date range: %s to %s", r.StartDate, r.EndDate))
	}
	if p.TotalOrders != nil {
		lines = append(lines, fmt.Sprintf("- Total orders: %d", *p.TotalOrders))
	}
	if p.UniqueCustomers != nil {
		lines = append(lines, fmt.Sprintf("- Unique customers: %d", *p.UniqueCustomers))
	}
	if p.UniqueOrderIDs != nil {
		lines = append(lines, fmt.Sprintf("- Unique order IDs: %d", *p.UniqueOrderIDs))
	}
	return lines
}

func dataTypes(p *kpi.Payload) []string {
	if p.DataTypes == nil {
		return nil
	}
	var lines []string
	for pair := p.DataTypes.Oldest(); pair != nil; pair = pair.Next() {
		lines = append(lines, fmt.Sprintf("- %s: %s", pair.Key, pair.Value))
	}
	return lines
}

func missing(p *kpi.Payload) []string {
	if p.MissingValues == nil {
		return nil
	}
	var lines []string
	for pair := p.MissingValues.Oldest(); pair != nil; pair = pair.Next() {
		lines = append(lines, fmt.Sprintf("- %s: %d missing", pair.Key, pair.Value))
	}
	return lines
}

func numeric(p *kpi.Payload) []string {
	if p.NumericSummary == nil {
		return nil
	}
	var lines []string
	for pair := p.NumericSummary.Oldest(); pair != nil; pair = pair.Next() {
		s := pair.Value
		lines = append(lines, fmt.Sprintf("- %s: min=%s, max=%s, mean=%s, median=%s",
			pair.Key, num(s.Min), num(s.Max), num(s.Mean), num(s.Median)))
	}
	return lines
}

func metric(p *kpi.Payload) []string {
	var lines []string
	if m := p.Metric; m != nil {
		lines = append(lines,
			fmt.Sprintf("- Total %s: %.2f", p.MetricColumn, m.Total),
			fmt.Sprintf("- Average %s: %.2f", p.MetricColumn, m.Mean),
			fmt.Sprintf("- Min %s: %.2f", p.MetricColumn, m.Min),
			fmt.Sprintf("- Max %s: %.2f", p.MetricColumn, m.Max),
		)
	}
	if p.CategoryColumn != "" && p.CategoryBreakdown != nil && p.CategoryBreakdown.Len() > 0 {
		lines = append(lines, fmt.Sprintf("- Most frequent %s values:", p.CategoryColumn))
		for pair := p.CategoryBreakdown.Oldest(); pair != nil; pair = pair.Next() {
			lines = append(lines, fmt.Sprintf("    • '%s' → %d rows", pair.Key, pair.Value))
		}
	}
	return lines
}

func categorical(p *kpi.Payload) []string {
	if p.CategoricalSummary == nil {
		return nil
	}
	var lines []string
	for pair := p.CategoricalSummary.Oldest(); pair != nil; pair = pair.Next() {
		info := pair.Value
		lines = append(lines, fmt.Sprintf("- %s: %d unique values; top values:", pair.Key, info.UniqueValues))
		if info.TopValues == nil {
			continue
		}
		for tv := info.TopValues.Oldest(); tv != nil; tv = tv.Next() {
			lines = append(lines, fmt.Sprintf("    • '%s' → %d rows", tv.Key, tv.Value))
		}
	}
	return lines
}

func dates(p *kpi.Payload) []string {
	if p.DateSummary == nil {
		return nil
	}
	var lines []string
	for pair := p.DateSummary.Oldest(); pair != nil; pair = pair.Next() {
		lines = append(lines, fmt.Sprintf("- %s: from %s to %s", pair.Key, pair.Value.StartDate, pair.Value.EndDate))
	}
	return lines
}

func counts(c *kpi.Counts, unit string) []string {
	if c == nil {
		return nil
	}
	var lines []string
	for pair := c.Oldest(); pair != nil; pair = pair.Next() {
		lines = append(lines, fmt.Sprintf("- %s: %d %s", pair.Key, pair.Value, unit))
	}
	return lines
}

func task(p *kpi.Payload) string {
	steps := []string{
		"Describe the overall structure of the dataset (rows, columns, important fields).",
		"Comment on numeric columns: ranges, central tendencies, and any potential outliers or skewness you can infer.",
		"Comment on categorical columns: variety of categories and any dominance patterns in top values.",
		"If date-like columns exist, describe the time coverage and possible use-cases (e.g., time-series analysis).",
		"Comment on data quality based on missing values, duplicates and data types.",
	}
	if p.MetricColumn != "" {
		steps = append(steps, fmt.Sprintf("Explain how the selected metric %q behaves (scale, spread, high and low values).", p.MetricColumn))
	}
	if p.OrdersByState != nil || p.OrdersByCity != nil {
		steps = append(steps, "Give key insights about states and cities (who performs best, any concentration).")
	}
	steps = append(steps, "Suggest 3-5 possible analytical questions or business recommendations this dataset supports.")

	var b strings.Builder
	b.WriteString("TASK:\nUsing the information above, write a clear dataset summary and analysis. Specifically:\n\n")
	for i, s := range steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	b.WriteString("\nKeep the language simple, professional, and non-technical. Focus on interpretation, not just repeating the numbers.\n")
	return b.String()
}

// num renders a float without trailing zeros: two decimals at magnitude 1
// and above, four significant digits below (derived percentages are
// fractions such as 0.0525).
func num(v float64) string {
	prec := 2
	if a := math.Abs(v); a > 0 && a < 1 {
		prec = min(3-int(math.Floor(math.Log10(a))), 12)
	}
	s := strconv.FormatFloat(v, 'f', prec, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
