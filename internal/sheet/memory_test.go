package sheet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRangeA1(t *testing.T) {
	a1, err := Range{Row: 3, Col: 1, Rows: 8, Cols: 9}.A1()
	require.NoError(t, err)
	assert.Equal(t, "A3:I10", a1)

	_, err = Range{Row: 0, Col: 1, Rows: 1, Cols: 1}.A1()
	require.Error(t, err)

	cell, err := CellRange("J1")
	require.NoError(t, err)
	assert.Equal(t, Range{Row: 1, Col: 10, Rows: 1, Cols: 1}, cell)
}

func TestMemoryTableReadPadsCells(t *testing.T) {
	ctx := context.Background()
	tbl := NewMemoryTable("t", Row{"a", "b"}, Row{"c"})

	rows, err := tbl.Read(ctx, Range{Row: 1, Col: 1, Rows: 3, Cols: 3})
	require.NoError(t, err)
	assert.Equal(t, []Row{{"a", "b", ""}, {"c", "", ""}, {"", "", ""}}, rows)

	rows, err = tbl.Read(ctx, Range{Row: 1, Col: 2, Rows: 1, Cols: 1})
	require.NoError(t, err)
	assert.Equal(t, []Row{{"b"}}, rows)
}

func TestMemoryTableWriteGrowsAndOffsets(t *testing.T) {
	ctx := context.Background()
	tbl := NewMemoryTable("t")

	require.NoError(t, tbl.Write(ctx, Range{Row: 2, Col: 3}, []Row{{"x", 1.5}}))
	last, err := tbl.LastRow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, last)

	rows, err := tbl.Read(ctx, Range{Row: 2, Col: 1, Rows: 1, Cols: 4})
	require.NoError(t, err)
	assert.Equal(t, []Row{{"", "", "x", 1.5}}, rows)
}

func TestMemoryTableClearKeepsRows(t *testing.T) {
	ctx := context.Background()
	tbl := NewMemoryTable("t", Row{"h"}, Row{"a", "b"}, Row{"c", "d"})

	require.NoError(t, tbl.Clear(ctx, Range{Row: 2, Col: 1, Rows: 2, Cols: 2}))
	last, err := tbl.LastRow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, last)
	assert.Equal(t, []Row{{"h"}, {"", ""}, {"", ""}}, tbl.Rows())
}

func TestReadFrom(t *testing.T) {
	ctx := context.Background()
	tbl := NewMemoryTable("t", Row{"h"}, Row{"a"})

	rows, err := ReadFrom(ctx, tbl, 2, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []Row{{"a"}}, rows)

	rows, err = ReadFrom(ctx, tbl, 5, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMemoryWorkbookEnsure(t *testing.T) {
	ctx := context.Background()
	wb := NewMemoryWorkbook()

	_, err := wb.Table("Ledger")
	require.Error(t, err)

	tbl, err := wb.Ensure(ctx, "Ledger", []string{"Date", "Deal ID"})
	require.NoError(t, err)
	again, err := wb.Ensure(ctx, "Ledger", []string{"ignored"})
	require.NoError(t, err)
	assert.Same(t, tbl, again)

	rows, err := tbl.Read(ctx, Range{Row: 1, Col: 1, Rows: 1, Cols: 2})
	require.NoError(t, err)
	assert.Equal(t, []Row{{"Date", "Deal ID"}}, rows)
}
