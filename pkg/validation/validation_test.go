package validation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vinodismyname/kpibrief/pkg/pagination"
)

type input struct {
	Path   string `validate:"required,spreadsheet_ext"`
	Cursor string `validate:"omitempty,cursor"`
	Metric string `validate:"column"`
	Rows   int    `validate:"omitempty,min=1,max=500"`
}

func TestValidateStruct(t *testing.T) {
	require.Empty(t, ValidateStruct(input{Path: "/data/Orders.XLSX"}))
	require.Empty(t, ValidateStruct(input{Path: "sales.csv", Metric: "Sales", Rows: 20}))

	require.Equal(t, "VALIDATION: path is required", ValidateStruct(input{}))
	require.Contains(t, ValidateStruct(input{Path: "notes.txt"}), "VALIDATION: path must be a spreadsheet")
	require.Equal(t, "VALIDATION: metric must name a column", ValidateStruct(input{Path: "a.csv", Metric: "   "}))
	require.Equal(t, "VALIDATION: rows must satisfy max=500", ValidateStruct(input{Path: "a.csv", Rows: 900}))
	require.Contains(t, ValidateStruct(input{Path: "a.csv", Cursor: "!!"}), "CURSOR_INVALID")

	tok, err := pagination.EncodeCursor(pagination.Cursor{P: "/a.csv", S: "a", Ps: 10})
	require.NoError(t, err)
	require.Empty(t, ValidateStruct(input{Path: "a.csv", Cursor: tok}))
}
