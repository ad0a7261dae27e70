package workbooks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/vinodismyname/kpibrief/pkg/mcperr"
)

// fakeGate implements WorkbookGate for tests with counters.
type fakeGate struct {
	acquireErr error
	acquires   atomic.Int64
	releases   atomic.Int64
}

func (g *fakeGate) AcquireWorkbook(ctx context.Context) error {
	g.acquires.Add(1)
	return g.acquireErr
}
func (g *fakeGate) ReleaseWorkbook() { g.releases.Add(1) }

func writeXLSX(t *testing.T, dir string, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	path := filepath.Join(dir, "orders.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
	return path
}

func TestLoadXLSX_SkipsTitleBanner(t *testing.T) {
	dir := t.TempDir()
	path := writeXLSX(t, dir, [][]any{
		{"Sales Sample Data"},
		{},
		{"Order ID", "State", "Sales"},
		{"A-1", "CA", 10},
		{"A-2", "NY", 20.5},
		{"A-3", "CA", nil},
	})

	gate := &fakeGate{}
	ds, err := NewLoader(gate, nil).Load(context.Background(), path, "")
	require.NoError(t, err)
	require.Equal(t, "Sheet1", ds.Sheet)
	require.Equal(t, 2, ds.HeaderRow)
	require.Equal(t, []string{"Order ID", "State", "Sales"}, ds.Frame.Names())
	require.Equal(t, 3, ds.Frame.Rows())
	sales, ok := ds.Frame.Column("Sales")
	require.True(t, ok)
	require.Equal(t, "20.5", sales.Values[1])
	require.Equal(t, int64(1), gate.acquires.Load())
	require.Equal(t, int64(1), gate.releases.Load())
}

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kpis.csv")
	body := "Region,Revenue,Revenue\nWest,100,1\nEast,,2\n,,\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	ds, err := NewLoader(nil, nil).Load(context.Background(), path, "")
	require.NoError(t, err)
	require.Equal(t, "kpis", ds.Sheet)
	require.Equal(t, []string{"Region", "Revenue", "Revenue.1"}, ds.Frame.Names())
	// Trailing blank record is dropped.
	require.Equal(t, 2, ds.Frame.Rows())
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(nil, nil)

	_, err := loader.Load(context.Background(), filepath.Join(dir, "missing.xlsx"), "")
	require.ErrorIs(t, err, mcperr.ErrInputNotFound)

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))
	_, err = loader.Load(context.Background(), txt, "")
	require.ErrorIs(t, err, mcperr.ErrUnsupportedFormat)

	path := writeXLSX(t, dir, [][]any{{"a", "b"}, {1, 2}})
	_, err = loader.Load(context.Background(), path, "NoSuchSheet")
	require.Error(t, err)
}

func TestLoadGateError(t *testing.T) {
	gate := &fakeGate{acquireErr: errors.New("busy")}
	_, err := NewLoader(gate, nil).Load(context.Background(), "x.xlsx", "")
	require.EqualError(t, err, "busy")
	require.Equal(t, int64(0), gate.releases.Load())
}

func TestDetectHeaderRow(t *testing.T) {
	require.Equal(t, 0, DetectHeaderRow(nil))
	require.Equal(t, 0, DetectHeaderRow([][]string{{"only"}}))
	require.Equal(t, 1, DetectHeaderRow([][]string{{"Title", "", "N/A"}, {"a", "b"}}))
}

func TestCacheReuseAndTTL(t *testing.T) {
	var now atomic.Int64
	now.Store(time.Now().UnixNano())
	clock := func() time.Time { return time.Unix(0, now.Load()) }

	dir := t.TempDir()
	path := writeXLSX(t, dir, [][]any{{"a", "b"}, {1, 2}})

	gate := &fakeGate{}
	c := NewCache(NewLoader(gate, nil), 50*time.Millisecond, 5*time.Millisecond, clock)

	h1, err := c.Open(context.Background(), path, "")
	require.NoError(t, err)
	h2, err := c.Open(context.Background(), path, "")
	require.NoError(t, err)
	require.Equal(t, h1.ID, h2.ID)
	require.Equal(t, int64(1), gate.acquires.Load())
	require.Equal(t, 1, c.Count())

	got, ok := c.Get(h1.ID)
	require.True(t, ok)
	require.Same(t, h1.Dataset, got.Dataset)

	now.Add(int64(100 * time.Millisecond))
	c.EvictExpired()
	require.Equal(t, 0, c.Count())
	_, ok = c.Get(h1.ID)
	require.False(t, ok)
	require.ErrorIs(t, c.Evict(h1.ID), ErrHandleNotFound)
}

func TestCacheReloadsOnModification(t *testing.T) {
	dir := t.TempDir()
	path := writeXLSX(t, dir, [][]any{{"a", "b"}, {1, 2}})

	c := NewCache(NewLoader(nil, nil), time.Minute, time.Minute, nil)
	h1, err := c.Open(context.Background(), path, "")
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))

	h2, err := c.Open(context.Background(), path, "")
	require.NoError(t, err)
	require.NotEqual(t, h1.ID, h2.ID)
	require.Equal(t, 1, c.Count())
}

func TestCacheStartClose(t *testing.T) {
	c := NewCache(NewLoader(nil, nil), time.Second, 5*time.Millisecond, nil)
	c.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Close(ctx))
	require.Equal(t, 0, c.Count())
}

func TestLoadCSV_StripsBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bom.csv")
	require.NoError(t, os.WriteFile(path, []byte("\ufeffRegion,Revenue\nWest,100\n"), 0o644))

	ds, err := NewLoader(nil, nil).Load(context.Background(), path, "")
	require.NoError(t, err)
	require.Equal(t, []string{"Region", "Revenue"}, ds.Frame.Names())
}

func TestLoadXLSX_DateCellsBecomeISO(t *testing.T) {
	f := excelize.NewFile()
	header := []any{"Order Date", "Shipped", "Sales"}
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &header))
	dates := []time.Time{
		time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC),
	}
	for i, d := range dates {
		row := []any{d, d.Add(14*time.Hour + 30*time.Minute), 10 * (i + 1)}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	dateOnly, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	require.NoError(t, err)
	custom := "dd/mm/yyyy hh:mm"
	dateTime, err := f.NewStyle(&excelize.Style{CustomNumFmt: &custom})
	require.NoError(t, err)
	require.NoError(t, f.SetCellStyle("Sheet1", "A2", "A4", dateOnly))
	require.NoError(t, f.SetCellStyle("Sheet1", "B2", "B4", dateTime))
	path := filepath.Join(t.TempDir(), "dates.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	ds, err := NewLoader(nil, nil).Load(context.Background(), path, "")
	require.NoError(t, err)
	col, ok := ds.Frame.Column("Order Date")
	require.True(t, ok)
	require.Equal(t, []string{"2024-01-20", "2024-03-04", "2024-02-10"}, col.Values)
	shipped, ok := ds.Frame.Column("Shipped")
	require.True(t, ok)
	require.Equal(t, "2024-03-04 14:30:00", shipped.Values[1])
	sales, ok := ds.Frame.Column("Sales")
	require.True(t, ok)
	require.Equal(t, []string{"10", "20", "30"}, sales.Values)
}

func TestCustomDateFormat(t *testing.T) {
	require.True(t, customDateFormat("yyyy-mm-dd"))
	require.True(t, customDateFormat("[$-409]d-mmm-yy;@"))
	require.False(t, customDateFormat(`#,##0.00 "days"`))
	require.False(t, customDateFormat("[Red]0.00%"))
	require.False(t, customDateFormat("hh:mm"))
}

func TestCacheKeyUsesCanonicalPath(t *testing.T) {
	dir := t.TempDir()
	path := writeXLSX(t, dir, [][]any{{"a", "b"}, {1, 2}})

	t.Chdir(dir)

	gate := &fakeGate{}
	c := NewCache(NewLoader(gate, nil), time.Minute, time.Minute, nil)
	h1, err := c.Open(context.Background(), "./orders.xlsx", "")
	require.NoError(t, err)
	h2, err := c.Open(context.Background(), path, " ")
	require.NoError(t, err)
	require.Equal(t, h1.ID, h2.ID)
	require.Equal(t, int64(1), gate.acquires.Load())
}
