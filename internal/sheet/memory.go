package sheet

import (
	"context"
	"fmt"
	"sync"
)

// MemoryTable keeps cells in a slice of rows. Cleared rows stay allocated, so
// LastRow keeps counting them, the same way a spreadsheet does.
type MemoryTable struct {
	mu   sync.Mutex
	name string
	rows []Row

	// FailWrite and FailClear inject errors; tests use them to break a phase.
	FailWrite error
	FailClear error
}

func NewMemoryTable(name string, rows ...Row) *MemoryTable {
	t := &MemoryTable{name: name}
	for _, r := range rows {
		t.rows = append(t.rows, append(Row(nil), r...))
	}
	return t
}

func (t *MemoryTable) Name() string { return t.name }

func (t *MemoryTable) LastRow(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows), nil
}

func (t *MemoryTable) Read(ctx context.Context, r Range) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !r.Valid() {
		return nil, fmt.Errorf("%s: invalid range %+v", t.name, r)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Row, 0, r.Rows)
	for i := 0; i < r.Rows; i++ {
		idx := r.Row - 1 + i
		cells := make(Row, r.Cols)
		for c := range cells {
			cells[c] = ""
			if idx < len(t.rows) {
				src := t.rows[idx]
				if col := r.Col - 1 + c; col < len(src) && src[col] != nil {
					cells[c] = src[col]
				}
			}
		}
		out = append(out, cells)
	}
	return out, nil
}

func (t *MemoryTable) Write(ctx context.Context, r Range, rows []Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.Row < 1 || r.Col < 1 {
		return fmt.Errorf("%s: invalid anchor %+v", t.name, r)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FailWrite != nil {
		return t.FailWrite
	}

	for i, row := range rows {
		idx := r.Row - 1 + i
		for len(t.rows) <= idx {
			t.rows = append(t.rows, Row{})
		}
		need := r.Col - 1 + len(row)
		if len(t.rows[idx]) < need {
			t.rows[idx] = padRow(t.rows[idx], need)
		}
		for c, v := range row {
			t.rows[idx][r.Col-1+c] = v
		}
	}
	return nil
}

func (t *MemoryTable) Clear(ctx context.Context, r Range) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !r.Valid() {
		return fmt.Errorf("%s: invalid range %+v", t.name, r)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FailClear != nil {
		return t.FailClear
	}

	for idx := r.Row - 1; idx < r.LastRow() && idx < len(t.rows); idx++ {
		for c := r.Col - 1; c < r.LastCol() && c < len(t.rows[idx]); c++ {
			t.rows[idx][c] = ""
		}
	}
	return nil
}

// Rows returns a copy of every stored row.
func (t *MemoryTable) Rows() []Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = append(Row(nil), r...)
	}
	return out
}

type MemoryWorkbook struct {
	mu     sync.Mutex
	tables map[string]*MemoryTable
}

func NewMemoryWorkbook(tables ...*MemoryTable) *MemoryWorkbook {
	wb := &MemoryWorkbook{tables: map[string]*MemoryTable{}}
	for _, t := range tables {
		wb.tables[t.Name()] = t
	}
	return wb
}

func (w *MemoryWorkbook) Table(name string) (Table, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tables[name]
	if !ok {
		return nil, fmt.Errorf("sheet not found: %s", name)
	}
	return t, nil
}

func (w *MemoryWorkbook) Ensure(_ context.Context, name string, headers []string) (Table, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.tables[name]; ok {
		return t, nil
	}
	t := NewMemoryTable(name)
	if len(headers) > 0 {
		t.rows = append(t.rows, headerRow(headers))
	}
	w.tables[name] = t
	return t, nil
}

func (w *MemoryWorkbook) Close() error { return nil }

func headerRow(headers []string) Row {
	row := make(Row, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	return row
}
