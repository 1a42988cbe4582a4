// Package sheet is the boundary to the tabular stores the pipeline reads and
// writes. A Table is addressed with 1-based rows and columns, like a spreadsheet,
// and every call moves a whole rectangular range so each pipeline phase costs one
// round trip per table.
package sheet

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

type Row = []any

// Range is a 1-based rectangle. Rows or Cols <= 0 is invalid.
type Range struct {
	Row  int
	Col  int
	Rows int
	Cols int
}

func (r Range) Valid() bool {
	return r.Row >= 1 && r.Col >= 1 && r.Rows >= 1 && r.Cols >= 1
}

func (r Range) LastRow() int { return r.Row + r.Rows - 1 }

func (r Range) LastCol() int { return r.Col + r.Cols - 1 }

// A1 renders the range as "A3:I10".
func (r Range) A1() (string, error) {
	if !r.Valid() {
		return "", fmt.Errorf("invalid range %+v", r)
	}
	from, err := excelize.CoordinatesToCellName(r.Col, r.Row)
	if err != nil {
		return "", err
	}
	to, err := excelize.CoordinatesToCellName(r.LastCol(), r.LastRow())
	if err != nil {
		return "", err
	}
	return from + ":" + to, nil
}

// CellRange parses a single cell reference such as "J1".
func CellRange(cell string) (Range, error) {
	col, row, err := excelize.CellNameToCoordinates(cell)
	if err != nil {
		return Range{}, err
	}
	return Range{Row: row, Col: col, Rows: 1, Cols: 1}, nil
}

type Table interface {
	Name() string
	// LastRow is the storage's own notion of the last used row. It may count
	// trailing rows whose cells are all blank.
	LastRow(ctx context.Context) (int, error)
	// Read returns exactly r.Rows rows of exactly r.Cols cells; missing cells are "".
	Read(ctx context.Context, r Range) ([]Row, error)
	// Write stores rows with the top-left cell at (r.Row, r.Col); r.Rows/r.Cols are ignored.
	Write(ctx context.Context, r Range, rows []Row) error
	// Clear blanks the contents of r, keeping the rows themselves.
	Clear(ctx context.Context, r Range) error
}

type Workbook interface {
	Table(name string) (Table, error)
	// Ensure creates name with a header row when it does not exist yet.
	Ensure(ctx context.Context, name string, headers []string) (Table, error)
	Close() error
}

// ReadFrom reads cols columns from row through the table's last row. It returns
// no rows when the table ends before row.
func ReadFrom(ctx context.Context, t Table, row, col, cols int) ([]Row, error) {
	last, err := t.LastRow(ctx)
	if err != nil {
		return nil, err
	}
	if last < row {
		return nil, nil
	}
	return t.Read(ctx, Range{Row: row, Col: col, Rows: last - row + 1, Cols: cols})
}

func padRow(row Row, cols int) Row {
	out := make(Row, cols)
	for i := range out {
		if i < len(row) && row[i] != nil {
			out[i] = row[i]
		} else {
			out[i] = ""
		}
	}
	return out
}
