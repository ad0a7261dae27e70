package kpi

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vinodismyname/kpibrief/pkg/mcperr"
)

func samplePayload() *Payload {
	p := New()
	p.TotalRows = 3
	p.TotalColumns = 2
	p.Columns = []string{"State", "Sales"}
	p.DataTypes.Set("State", RoleCategorical)
	p.DataTypes.Set("Sales", RoleNumeric)
	p.MissingValues.Set("State", 0)
	p.MissingValues.Set("Sales", 1)
	p.MissingCells = 1
	p.NumericSummary.Set("Sales", NumericSummary{Count: 2, Min: 1, Max: 3, Mean: 2, Median: 2, Sum: 4})

	byState := NewCounts()
	byState.Set("NY", 2)
	byState.Set("CA", 1)
	p.OrdersByState = byState
	return p
}

func TestSaveLoadKeepsOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kpis.json")
	require.NoError(t, Save(path, samplePayload()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	// Insertion order survives serialization, not alphabetical order.
	require.Less(t, strings.Index(text, `"NY"`), strings.Index(text, `"CA"`))
	require.NotContains(t, text, "metric_column")

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, got.TotalRows)
	require.Equal(t, RoleNumeric, got.DataTypes.Value("Sales"))
	require.Equal(t, "NY", got.OrdersByState.Oldest().Key)
	require.Equal(t, 4.0, got.NumericSummary.Value("Sales").Sum)
}

func TestValidateRejectsNonFinite(t *testing.T) {
	p := samplePayload()
	p.NumericSummary.Set("Sales", NumericSummary{Mean: math.NaN()})
	require.ErrorContains(t, p.Validate(), "numeric_summary.Sales.mean")

	p = samplePayload()
	p.Metric = &Metric{Total: math.Inf(1)}
	require.Error(t, p.Validate())

	require.Error(t, Save(filepath.Join(t.TempDir(), "k.json"), p))
}

func TestValidateMissingSum(t *testing.T) {
	p := samplePayload()
	p.MissingCells = 5
	require.ErrorContains(t, p.Validate(), "missing_cells")
}

func TestLoadMissingOrMalformed(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "absent.json"))
	require.ErrorIs(t, err, mcperr.ErrMissingData)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err = Load(bad)
	require.ErrorIs(t, err, mcperr.ErrMissingData)
}
