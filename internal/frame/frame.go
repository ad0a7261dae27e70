// Package frame holds the in-memory table a spreadsheet is loaded into.
// Cells are kept as the text the spreadsheet displays; typing happens later in
// profiling so heuristics can look at the raw values.
package frame

import (
	"fmt"
	"strings"
)

// Column is a named vector of raw cell values.
type Column struct {
	Name    string
	Values  []string
	Derived bool // added by profiling, not present in the source sheet
}

// Frame is a rectangular table: every column has Rows() values.
type Frame struct {
	Columns []*Column
	index   map[string]int
	rows    int
}

// nullTokens are treated as missing in addition to blank cells.
var nullTokens = map[string]struct{}{
	"nan": {}, "null": {}, "n/a": {}, "na": {}, "#n/a": {}, "none": {},
}

// IsNull reports whether a raw cell value counts as missing.
func IsNull(v string) bool {
	s := strings.TrimSpace(v)
	if s == "" {
		return true
	}
	_, ok := nullTokens[strings.ToLower(s)]
	return ok
}

// New builds a frame from a header and data rows. Short rows are padded with
// blanks, long rows are truncated to the header width. Blank header names
// become "Unnamed: i" and duplicates get a ".n" suffix.
func New(header []string, rows [][]string) *Frame {
	names := uniqueNames(header)
	f := &Frame{index: make(map[string]int, len(names)), rows: len(rows)}
	for i, n := range names {
		col := &Column{Name: n, Values: make([]string, len(rows))}
		for r, row := range rows {
			if i < len(row) {
				col.Values[r] = strings.TrimSpace(row[i])
			}
		}
		f.index[n] = len(f.Columns)
		f.Columns = append(f.Columns, col)
	}
	return f
}

func uniqueNames(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		out[i] = name
	}
	return out
}

// Rows returns the number of data rows.
func (f *Frame) Rows() int { return f.rows }

// Width returns the number of columns, derived ones included.
func (f *Frame) Width() int { return len(f.Columns) }

// Size returns the number of cells.
func (f *Frame) Size() int { return f.rows * len(f.Columns) }

// Names returns column names in frame order.
func (f *Frame) Names() []string {
	out := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		out[i] = c.Name
	}
	return out
}

// Column looks up a column by exact name.
func (f *Frame) Column(name string) (*Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.Columns[i], true
}

// Lookup finds a column ignoring case, spaces and underscores, so "order id",
// "Order ID" and "order_id" resolve to the same column.
func (f *Frame) Lookup(name string) (*Column, bool) {
	if c, ok := f.Column(name); ok {
		return c, true
	}
	want := foldName(name)
	for _, c := range f.Columns {
		if foldName(c.Name) == want {
			return c, true
		}
	}
	return nil, false
}

func foldName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(s)))
}

// AddColumn appends a derived column. It replaces an existing column of the
// same name so re-running profiling stays idempotent.
func (f *Frame) AddColumn(name string, values []string) error {
	if len(values) != f.rows {
		return fmt.Errorf("frame: column %q has %d values, want %d", name, len(values), f.rows)
	}
	col := &Column{Name: name, Values: values, Derived: true}
	if i, ok := f.index[name]; ok {
		f.Columns[i] = col
		return nil
	}
	f.index[name] = len(f.Columns)
	f.Columns = append(f.Columns, col)
	return nil
}

// Row returns the i-th row across all columns.
func (f *Frame) Row(i int) []string {
	out := make([]string, len(f.Columns))
	for c, col := range f.Columns {
		out[c] = col.Values[i]
	}
	return out
}

// Slice returns rows [from, to) as a new frame sharing no storage.
func (f *Frame) Slice(from, to int) *Frame {
	if from < 0 {
		from = 0
	}
	if to > f.rows {
		to = f.rows
	}
	if to < from {
		to = from
	}
	keep := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		keep = append(keep, i)
	}
	return f.pick(keep)
}

// Head returns the first n rows.
func (f *Frame) Head(n int) *Frame { return f.Slice(0, n) }

// Filter keeps rows whose value in column is one of values. An empty values
// list keeps every row.
func (f *Frame) Filter(column string, values []string) (*Frame, error) {
	col, ok := f.Column(column)
	if !ok {
		return nil, fmt.Errorf("frame: unknown column %q", column)
	}
	if len(values) == 0 {
		return f.Slice(0, f.rows), nil
	}
	want := make(map[string]struct{}, len(values))
	for _, v := range values {
		want[strings.TrimSpace(v)] = struct{}{}
	}
	keep := make([]int, 0, f.rows)
	for i, v := range col.Values {
		if _, ok := want[v]; ok && !IsNull(v) {
			keep = append(keep, i)
		}
	}
	return f.pick(keep), nil
}

func (f *Frame) pick(rows []int) *Frame {
	out := &Frame{index: make(map[string]int, len(f.Columns)), rows: len(rows)}
	for i, c := range f.Columns {
		vals := make([]string, len(rows))
		for j, r := range rows {
			vals[j] = c.Values[r]
		}
		out.Columns = append(out.Columns, &Column{Name: c.Name, Values: vals, Derived: c.Derived})
		out.index[c.Name] = i
	}
	return out
}

// NullCount counts missing cells in a column.
func (c *Column) NullCount() int {
	n := 0
	for _, v := range c.Values {
		if IsNull(v) {
			n++
		}
	}
	return n
}

// NonNull returns the non-missing values in row order.
func (c *Column) NonNull() []string {
	out := make([]string, 0, len(c.Values))
	for _, v := range c.Values {
		if !IsNull(v) {
			out = append(out, v)
		}
	}
	return out
}

// Unique counts distinct non-missing values.
func (c *Column) Unique() int {
	seen := make(map[string]struct{}, len(c.Values))
	for _, v := range c.Values {
		if IsNull(v) {
			continue
		}
		seen[v] = struct{}{}
	}
	return len(seen)
}

// NullCounts returns the missing-cell count of each column in frame order.
func (f *Frame) NullCounts() []int {
	out := make([]int, len(f.Columns))
	for i, c := range f.Columns {
		out[i] = c.NullCount()
	}
	return out
}

// NullCells counts missing cells across the whole frame.
func (f *Frame) NullCells() int {
	n := 0
	for _, c := range f.Columns {
		n += c.NullCount()
	}
	return n
}

// DuplicateRows counts rows identical to an earlier row in every column.
// Missing cells compare equal to each other regardless of their spelling.
func (f *Frame) DuplicateRows() int {
	seen := make(map[string]struct{}, f.rows)
	dups := 0
	var b strings.Builder
	for r := 0; r < f.rows; r++ {
		b.Reset()
		for _, c := range f.Columns {
			v := c.Values[r]
			if IsNull(v) {
				b.WriteString("\x00null")
			} else {
				b.WriteString(v)
			}
			b.WriteByte(0x1f)
		}
		key := b.String()
		if _, ok := seen[key]; ok {
			dups++
			continue
		}
		seen[key] = struct{}{}
	}
	return dups
}
