package profiling

import (
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/vinodismyname/kpibrief/internal/frame"
)

// GroupShare is one category's metric total and share of the grand total.
type GroupShare struct {
	Name  string  `json:"name"`
	Total float64 `json:"total"`
	Share float64 `json:"share"`
}

// Concentration is the metric summed by category, top-N groups plus a
// Herfindahl-Hirschman index over all groups.
type Concentration struct {
	Category   string       `json:"category"`
	Metric     string       `json:"metric"`
	TopN       int          `json:"top_n"`
	Groups     []GroupShare `json:"groups"`
	OtherShare float64      `json:"other_share"`
	HHI        float64      `json:"hhi"`
	Band       string       `json:"band"`
}

// concentrate sums metric per category value (missing categories become
// "(empty)", unparseable metrics are skipped) and orders groups by descending
// total, ties by first appearance. Shares and HHI are zero when the grand
// total is zero.
func concentrate(cat, metric *frame.Column, topN int) Concentration {
	out := Concentration{Category: cat.Name, Metric: metric.Name, TopN: topN}

	type group struct {
		name  string
		total float64
	}
	pos := map[string]int{}
	var groups []group
	for i, raw := range cat.Values {
		m := metric.Values[i]
		if frame.IsNull(m) {
			continue
		}
		v, ok := ParseNumber(m)
		if !ok {
			continue
		}
		name := raw
		if frame.IsNull(name) {
			name = "(empty)"
		}
		if j, ok := pos[name]; ok {
			groups[j].total += v
			continue
		}
		pos[name] = len(groups)
		groups = append(groups, group{name: name, total: v})
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].total > groups[j].total })

	var total float64
	for _, g := range groups {
		total += g.total
	}

	keep := topN
	if keep <= 0 || keep > len(groups) {
		keep = len(groups)
	}
	var topShare, hhi float64
	for i, g := range groups {
		var share float64
		if total != 0 {
			share = g.total / total
		}
		hhi += share * share
		if i < keep {
			out.Groups = append(out.Groups, GroupShare{Name: g.name, Total: g.total, Share: round(share, 3)})
			topShare += share
		}
	}
	if total != 0 && keep < len(groups) {
		out.OtherShare = round(1-topShare, 3)
	}
	out.HHI = round(hhi, 3)
	switch {
	case total == 0:
		out.Band = "undefined"
	case hhi < 0.15:
		out.Band = "unconcentrated"
	case hhi < 0.25:
		out.Band = "moderately_concentrated"
	default:
		out.Band = "highly_concentrated"
	}
	return out
}

func round(v float64, places int) float64 {
	r, err := stats.Round(v, places)
	if err != nil {
		return v
	}
	return r
}
