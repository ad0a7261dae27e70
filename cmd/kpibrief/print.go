package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/vinodismyname/kpibrief/internal/pipeline"
)

func printOverview(w io.Writer, a *pipeline.Analysis) {
	p := a.Payload
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"KPI", "Value"})
	table.Append([]string{"Sheet", a.Dataset.Sheet})
	table.Append([]string{"Header row", fmt.Sprint(a.Dataset.HeaderRow + 1)})
	table.Append([]string{"Rows", humanize.Comma(int64(p.TotalRows))})
	table.Append([]string{"Columns", fmt.Sprint(p.TotalColumns)})
	table.Append([]string{"Missing cells", fmt.Sprintf("%s (%.1f%%)", humanize.Comma(int64(p.MissingCells)), p.MissingPct)})
	table.Append([]string{"Duplicate rows", fmt.Sprintf("%s (%.1f%%)", humanize.Comma(int64(p.DuplicateRows)), p.DuplicatePct)})
	if m := p.Metric; m != nil {
		table.Append([]string{"Total " + p.MetricColumn, humanize.FormatFloat("#,###.##", m.Total)})
		table.Append([]string{"Average " + p.MetricColumn, humanize.FormatFloat("#,###.##", m.Mean)})
	}
	if p.CategoryColumn != "" {
		table.Append([]string{"Category", p.CategoryColumn})
	}
	if r := p.DateRange; r != nil {
		table.Append([]string{"Order dates", r.StartDate + " to " + r.EndDate})
	}
	table.Render()

	roles := tablewriter.NewWriter(w)
	roles.SetHeader([]string{"Column", "Role", "Non-null", "Unique"})
	for _, c := range a.Schema.Columns {
		roles.Append([]string{c.Name, string(c.Role), fmt.Sprint(c.NonNull), fmt.Sprint(c.Unique)})
	}
	roles.Render()
}

func printArtifacts(w io.Writer, artifacts []pipeline.Artifact) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Artifact", "Path", "Size"})
	for _, a := range artifacts {
		table.Append([]string{a.Name, a.Path, humanize.Bytes(uint64(a.Bytes))})
	}
	table.Render()
}
