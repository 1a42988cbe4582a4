package xlsx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"

	"dealdesk/internal/sheet"
)

// Workbook is a local .xlsx file. Every mutating table call saves the file, so a
// batch write is durable once it returns.
type Workbook struct {
	mu   sync.Mutex
	path string
	f    *excelize.File
}

func Open(path string) (*Workbook, error) {
	if _, err := os.Stat(path); err == nil {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, err
		}
		return &Workbook{path: path, f: f}, nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	wb := &Workbook{path: path, f: excelize.NewFile()}
	if err := wb.save(); err != nil {
		_ = wb.f.Close()
		return nil, err
	}
	return wb, nil
}

func (w *Workbook) Table(name string) (sheet.Table, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx, err := w.f.GetSheetIndex(name)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return nil, fmt.Errorf("sheet not found: %s", name)
	}
	return &table{wb: w, name: name}, nil
}

func (w *Workbook) Ensure(_ context.Context, name string, headers []string) (sheet.Table, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx, err := w.f.GetSheetIndex(name)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		if _, err := w.f.NewSheet(name); err != nil {
			return nil, err
		}
		if len(headers) > 0 {
			row := make([]any, len(headers))
			for i, h := range headers {
				row[i] = h
			}
			if err := w.f.SetSheetRow(name, "A1", &row); err != nil {
				return nil, err
			}
		}
		w.dropPlaceholder(name)
		if err := w.save(); err != nil {
			return nil, err
		}
	}
	return &table{wb: w, name: name}, nil
}

// dropPlaceholder removes the empty "Sheet1" excelize adds to a new file once a
// real sheet exists.
func (w *Workbook) dropPlaceholder(keep string) {
	const placeholder = "Sheet1"
	if keep == placeholder {
		return
	}
	rows, err := w.f.GetRows(placeholder)
	if err != nil || len(rows) > 0 {
		return
	}
	if idx, err := w.f.GetSheetIndex(keep); err == nil && idx >= 0 {
		w.f.SetActiveSheet(idx)
	}
	_ = w.f.DeleteSheet(placeholder)
}

func (w *Workbook) Close() error {
	return w.f.Close()
}

func (w *Workbook) save() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	return w.f.SaveAs(w.path)
}

type table struct {
	wb   *Workbook
	name string
}

func (t *table) Name() string { return t.name }

func (t *table) LastRow(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.wb.mu.Lock()
	defer t.wb.mu.Unlock()
	rows, err := t.wb.f.GetRows(t.name, excelize.Options{RawCellValue: true})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (t *table) Read(ctx context.Context, r sheet.Range) ([]sheet.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !r.Valid() {
		return nil, fmt.Errorf("%s: invalid range %+v", t.name, r)
	}
	t.wb.mu.Lock()
	defer t.wb.mu.Unlock()

	all, err := t.wb.f.GetRows(t.name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}

	out := make([]sheet.Row, 0, r.Rows)
	for i := 0; i < r.Rows; i++ {
		idx := r.Row - 1 + i
		cells := make(sheet.Row, r.Cols)
		for c := range cells {
			cells[c] = ""
			if idx < len(all) {
				if col := r.Col - 1 + c; col < len(all[idx]) {
					cells[c] = all[idx][col]
				}
			}
		}
		out = append(out, cells)
	}
	return out, nil
}

func (t *table) Write(ctx context.Context, r sheet.Range, rows []sheet.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.wb.mu.Lock()
	defer t.wb.mu.Unlock()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(r.Col, r.Row+i)
		if err != nil {
			return err
		}
		values := append([]any(nil), row...)
		if err := t.wb.f.SetSheetRow(t.name, cell, &values); err != nil {
			return err
		}
	}
	return t.wb.save()
}

func (t *table) Clear(ctx context.Context, r sheet.Range) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !r.Valid() {
		return fmt.Errorf("%s: invalid range %+v", t.name, r)
	}
	t.wb.mu.Lock()
	defer t.wb.mu.Unlock()

	blank := make([]any, r.Cols)
	for i := range blank {
		blank[i] = ""
	}
	for row := r.Row; row <= r.LastRow(); row++ {
		cell, err := excelize.CoordinatesToCellName(r.Col, row)
		if err != nil {
			return err
		}
		values := append([]any(nil), blank...)
		if err := t.wb.f.SetSheetRow(t.name, cell, &values); err != nil {
			return err
		}
	}
	return t.wb.save()
}
