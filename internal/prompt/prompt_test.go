package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vinodismyname/kpibrief/internal/kpi"
	"github.com/vinodismyname/kpibrief/pkg/mcperr"
)

func payload() *kpi.Payload {
	p := kpi.New()
	p.TotalRows = 3
	p.TotalColumns = 2
	p.Columns = []string{"State", "Sales"}
	p.DataTypes.Set("State", kpi.RoleCategorical)
	p.DataTypes.Set("Sales", kpi.RoleNumeric)
	p.MissingValues.Set("State", 0)
	p.MissingValues.Set("Sales", 1)
	p.MissingCells = 1
	p.MissingPct = 16.67
	p.NumericSummary.Set("Sales", kpi.NumericSummary{Count: 2, Min: 1.5, Max: 10, Mean: 5.75, Median: 5.75, Sum: 11.5})
	top := kpi.NewCounts()
	top.Set("CA", 2)
	top.Set("NY", 1)
	p.CategoricalSummary.Set("State", kpi.CategoricalSummary{UniqueValues: 2, TopValues: top})
	return p
}

func TestBuild_SectionsAndOmissions(t *testing.T) {
	out, err := Build(payload())
	require.NoError(t, err)

	require.Contains(t, out, "DATASET OVERVIEW:\n- Total rows: 3\n- Total columns: 2\n")
	require.Contains(t, out, "- State: categorical\n- Sales: numeric\n")
	require.Contains(t, out, "- Sales: 1 missing\n")
	require.Contains(t, out, "- Missing cells: 1 (16.7% of all values)")
	require.Contains(t, out, "- Sales: min=1.5, max=10, mean=5.75, median=5.75\n")
	require.Contains(t, out, "- State: 2 unique values; top values:\n    • 'CA' → 2 rows\n    • 'NY' → 1 rows\n")

	// Empty sections are left out entirely.
	require.NotContains(t, out, "DATE-LIKE COLUMNS")
	require.NotContains(t, out, "SELECTED METRIC")
	require.NotContains(t, out, "ORDERS BY STATE")

	order := []string{"DATASET OVERVIEW", "COLUMNS AND DATA TYPES", "MISSING VALUES PER COLUMN", "DATA QUALITY", "NUMERIC COLUMNS SUMMARY", "CATEGORICAL COLUMNS SUMMARY", "TASK:"}
	last := -1
	for _, h := range order {
		i := strings.Index(out, h)
		require.Greater(t, i, last, h)
		last = i
	}
}

func TestBuild_Deterministic(t *testing.T) {
	a, err := Build(payload())
	require.NoError(t, err)
	b, err := Build(payload())
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestBuild_SelectionAndOrders(t *testing.T) {
	p := payload()
	p.MetricColumn = "Sales"
	p.CategoryColumn = "State"
	p.Metric = &kpi.Metric{Total: 11.5, Mean: 5.75, Min: 1.5, Max: 10}
	p.CategoryBreakdown = p.CategoricalSummary.Value("State").TopValues
	total := 3
	p.TotalOrders = &total
	byState := kpi.NewCounts()
	byState.Set("CA", 2)
	byState.Set("NY", 1)
	p.OrdersByState = byState
	p.DateRange = &kpi.DateSummary{StartDate: "2024-01-01", EndDate: "2024-01-05"}

	out, err := Build(p)
	require.NoError(t, err)
	require.Contains(t, out, "- Selected metric column: Sales\n")
	require.Contains(t, out, "SELECTED METRIC (Sales):\n- Total Sales: 11.50\n")
	require.Contains(t, out, "- Date range: 2024-01-01 to 2024-01-05\n")
	require.Contains(t, out, "ORDERS BY STATE:\n- CA: 2 orders\n- NY: 1 orders\n")
	require.NotContains(t, out, "TOP CITIES BY ORDERS")
	require.Contains(t, out, `selected metric "Sales"`)
	require.Contains(t, out, "states and cities")
}

func TestBuild_MissingData(t *testing.T) {
	_, err := Build(nil)
	require.ErrorIs(t, err, mcperr.ErrMissingData)

	_, err = Build(kpi.New())
	require.ErrorIs(t, err, mcperr.ErrMissingData)
}

func TestBuildFromFile(t *testing.T) {
	dir := t.TempDir()
	_, err := BuildFromFile(filepath.Join(dir, "kpis.json"))
	require.ErrorIs(t, err, mcperr.ErrMissingData)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("[1,2"), 0o644))
	_, err = BuildFromFile(bad)
	require.ErrorIs(t, err, mcperr.ErrMissingData)

	good := filepath.Join(dir, "good.json")
	require.NoError(t, kpi.Save(good, payload()))
	fromFile, err := BuildFromFile(good)
	require.NoError(t, err)
	direct, err := Build(payload())
	require.NoError(t, err)
	require.Equal(t, direct, fromFile)
}

func TestNum_KeepsSmallFractions(t *testing.T) {
	require.Equal(t, "0.0525", num(0.0525))
	require.Equal(t, "0.004", num(0.004))
	require.Equal(t, "0.5", num(0.5))
	require.Equal(t, "0", num(0))
	require.Equal(t, "1234.57", num(1234.5678))
	require.Equal(t, "-0.1235", num(-0.123456))
}
