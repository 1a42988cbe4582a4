// Package backend picks the Workbook implementation named by TABLE_BACKEND.
package backend

import (
	"context"
	"fmt"

	"dealdesk/internal/config"
	"dealdesk/internal/sheet"
	"dealdesk/internal/sheet/gsheets"
	"dealdesk/internal/sheet/xlsx"
)

func Open(ctx context.Context, cfg config.Config) (sheet.Workbook, error) {
	switch cfg.TableBackend {
	case config.BackendXLSX:
		if err := cfg.Require("WORKBOOK_PATH", cfg.WorkbookPath); err != nil {
			return nil, err
		}
		return xlsx.Open(cfg.WorkbookPath)
	case config.BackendSheets:
		if err := cfg.Require("SPREADSHEET_ID", cfg.SpreadsheetID); err != nil {
			return nil, err
		}
		svc, err := gsheets.NewService(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return gsheets.NewWorkbook(svc, cfg.SpreadsheetID, cfg.SheetsRateLimitRPS), nil
	default:
		return nil, fmt.Errorf("unknown TABLE_BACKEND %q", cfg.TableBackend)
	}
}
