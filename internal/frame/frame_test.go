package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sample() *Frame {
	return New(
		[]string{"State", "City", "", "State"},
		[][]string{
			{"CA", "LA", "1", "x"},
			{"CA", "LA", "1", "x"},
			{"NY", "", "NaN"},
			{"TX", "Austin", "3", "y"},
		},
	)
}

func TestNew_NamesAndPadding(t *testing.T) {
	f := sample()
	require.Equal(t, []string{"State", "City", "Unnamed: 2", "State.1"}, f.Names())
	require.Equal(t, 4, f.Rows())
	require.Equal(t, 16, f.Size())

	c, ok := f.Column("State.1")
	require.True(t, ok)
	require.Equal(t, "", c.Values[2])
}

func TestNullCountsAndDuplicates(t *testing.T) {
	f := sample()
	require.Equal(t, 3, f.NullCells()) // City blank, NaN, padded State.1
	require.Equal(t, 1, f.DuplicateRows())
	require.Equal(t, []int{0, 1, 1, 1}, f.NullCounts())

	city, _ := f.Column("City")
	require.Equal(t, 1, city.NullCount())
	require.Equal(t, 2, city.Unique())
}

func TestFilterAndLookup(t *testing.T) {
	f := sample()
	out, err := f.Filter("State", []string{"CA"})
	require.NoError(t, err)
	require.Equal(t, 2, out.Rows())
	require.Equal(t, f.Width(), out.Width())

	all, err := f.Filter("State", nil)
	require.NoError(t, err)
	require.Equal(t, 4, all.Rows())

	_, err = f.Filter("Nope", []string{"x"})
	require.Error(t, err)

	c, ok := f.Lookup("city")
	require.True(t, ok)
	require.Equal(t, "City", c.Name)
}

func TestAddColumn(t *testing.T) {
	f := sample()
	require.Error(t, f.AddColumn("bad", []string{"1"}))
	require.NoError(t, f.AddColumn("Score (numeric)", []string{"0.1", "0.2", "", "0.4"}))
	require.Equal(t, 5, f.Width())
	c, ok := f.Column("Score (numeric)")
	require.True(t, ok)
	require.True(t, c.Derived)

	// Re-adding replaces in place.
	require.NoError(t, f.AddColumn("Score (numeric)", []string{"1", "1", "1", "1"}))
	require.Equal(t, 5, f.Width())
}

func TestHeadAndRow(t *testing.T) {
	f := sample()
	h := f.Head(2)
	require.Equal(t, 2, h.Rows())
	require.Equal(t, []string{"CA", "LA", "1", "x"}, h.Row(0))
	require.Equal(t, 0, f.Slice(3, 1).Rows())
}
