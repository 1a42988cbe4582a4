package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"dealdesk/internal"
	"dealdesk/internal/sheet"
)

// ReadLedger returns every non-blank ledger record from startRow on.
func ReadLedger(ctx context.Context, ledger sheet.Table, startRow int) ([]internal.DealRecord, error) {
	rows, err := sheet.ReadFrom(ctx, ledger, startRow, 1, internal.LedgerColumns)
	if err != nil {
		return nil, err
	}
	rows = trimTrailingBlank(rows)
	out := make([]internal.DealRecord, 0, len(rows))
	for _, row := range rows {
		rec := ParseLedgerRow(row)
		if rec.DealID == "" && rec.Partner == "" {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// ExportLedgerToXLSX writes records to a standalone workbook with the ledger headers.
func ExportLedgerToXLSX(records []internal.DealRecord, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	name := "Ledger"
	if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
		return err
	}

	for i, h := range internal.LedgerHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(name, cell, h)
	}

	for i, rec := range records {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col+1, r)
			_ = f.SetCellValue(name, cell, value)
		}

		if !rec.Date.IsZero() {
			set(internal.LedgerDate, rec.Date.Format(internal.LedgerDateLayout))
		}
		set(internal.LedgerDealID, rec.DealID)
		set(internal.LedgerPartner, rec.Partner)
		set(internal.LedgerPartnerPriority, rec.PartnerPriority)
		set(internal.LedgerGeo, rec.Geo)
		set(internal.LedgerLanguage, rec.Language)
		set(internal.LedgerSource, rec.Source)
		set(internal.LedgerCPA, rec.CPA)
		if rec.CRG != nil {
			set(internal.LedgerCRG, *rec.CRG)
		} else {
			set(internal.LedgerCRG, rec.CRGText)
		}
		set(internal.LedgerCR, derefAny(rec.CR))
		set(internal.LedgerFunnels, strings.Join(rec.Funnels, funnelJoiner))
		set(internal.LedgerClassification, string(rec.Classification))
		set(internal.LedgerFullDealText, rec.FullDealText)
	}

	if len(records) > 0 {
		_ = f.AutoFilter(name, "A1:P1", nil)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefAny(v any) any {
	if v == nil {
		return ""
	}
	return v
}
