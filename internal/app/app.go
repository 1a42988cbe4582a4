// Package app wires configuration, the run journal and the table backend into
// the pipeline services used by the dealdesk commands.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"dealdesk/internal"
	"dealdesk/internal/config"
	"dealdesk/internal/funnels"
	"dealdesk/internal/logger"
	"dealdesk/internal/pipeline"
	"dealdesk/internal/reference"
	"dealdesk/internal/sheet"
	"dealdesk/internal/sheet/backend"
	"dealdesk/internal/storage"
)

type App struct {
	Cfg      config.Config
	DB       *storage.DB
	Workbook sheet.Workbook
	Location *time.Location
	Log      *logger.Logger
}

// Open connects the journal database and the configured table backend.
func Open(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	wb, err := backend.Open(ctx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	a, err := New(cfg, db, wb, log)
	if err != nil {
		_ = multierr.Combine(wb.Close(), db.Close())
		return nil, err
	}
	return a, nil
}

func New(cfg config.Config, db *storage.DB, wb sheet.Workbook, log *logger.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &App{Cfg: cfg, DB: db, Workbook: wb, Location: loc, Log: log}, nil
}

func (a *App) Close() error {
	var err error
	if a.Workbook != nil {
		err = multierr.Append(err, a.Workbook.Close())
	}
	if a.DB != nil {
		err = multierr.Append(err, a.DB.Close())
	}
	return err
}

type SetupResult struct {
	Tables      []string `json:"tables"`
	TriggerCell string   `json:"triggerCell"`
}

// Setup creates missing tables with their header rows and puts the trigger
// cell into its ready state. Running it again is harmless.
func (a *App) Setup(ctx context.Context) (SetupResult, error) {
	res := SetupResult{TriggerCell: a.Cfg.TriggerCell}

	intake, err := a.Workbook.Ensure(ctx, a.Cfg.IntakeSheet, nil)
	if err != nil {
		return res, err
	}
	if headerRow := a.Cfg.IntakeStartRow - 1; headerRow >= 1 {
		row := make(sheet.Row, len(internal.IntakeHeaders))
		for i, h := range internal.IntakeHeaders {
			row[i] = h
		}
		if err := intake.Write(ctx, sheet.Range{Row: headerRow, Col: 1}, []sheet.Row{row}); err != nil {
			return res, err
		}
	}
	res.Tables = append(res.Tables, a.Cfg.IntakeSheet)

	ensure := []struct {
		name    string
		headers []string
	}{
		{a.Cfg.LedgerSheet, internal.LedgerHeaders},
		{a.Cfg.PartnerSheet, internal.ReferenceHeaders},
		{a.Cfg.FunnelSheet, nil},
	}
	for _, e := range ensure {
		if _, err := a.Workbook.Ensure(ctx, e.name, e.headers); err != nil {
			return res, err
		}
		res.Tables = append(res.Tables, e.name)
	}

	cell, err := sheet.CellRange(a.Cfg.TriggerCell)
	if err != nil {
		return res, fmt.Errorf("invalid TRIGGER_CELL %q: %w", a.Cfg.TriggerCell, err)
	}
	if err := intake.Write(ctx, cell, []sheet.Row{{internal.TriggerReady}}); err != nil {
		return res, err
	}

	a.Log.Info(ctx, "setup complete", map[string]any{"tables": res.Tables})
	return res, nil
}

func (a *App) Expander() (*pipeline.Expander, error) {
	intake, err := a.Workbook.Table(a.Cfg.IntakeSheet)
	if err != nil {
		return nil, err
	}
	return &pipeline.Expander{Intake: intake, StartRow: a.Cfg.IntakeStartRow, Journal: a.DB, Log: a.Log}, nil
}

func (a *App) Transfer() (*pipeline.TransferService, error) {
	intake, err := a.Workbook.Table(a.Cfg.IntakeSheet)
	if err != nil {
		return nil, err
	}
	ledger, err := a.Workbook.Table(a.Cfg.LedgerSheet)
	if err != nil {
		return nil, err
	}
	registry, err := a.Workbook.Table(a.Cfg.FunnelSheet)
	if err != nil {
		return nil, err
	}
	return &pipeline.TransferService{
		Intake:      intake,
		Ledger:      ledger,
		Funnels:     funnels.NewRegistry(registry, a.Cfg.RegistryStartRow),
		IntakeStart: a.Cfg.IntakeStartRow,
		LedgerStart: a.Cfg.LedgerStartRow,
		Location:    a.Location,
		Journal:     a.DB,
		Log:         a.Log,
	}, nil
}

func (a *App) Join() (*reference.Service, error) {
	ledger, err := a.Workbook.Table(a.Cfg.LedgerSheet)
	if err != nil {
		return nil, err
	}
	ref, err := a.Workbook.Table(a.Cfg.PartnerSheet)
	if err != nil {
		return nil, err
	}
	return &reference.Service{
		Ledger:         ledger,
		Reference:      ref,
		LedgerStart:    a.Cfg.LedgerStartRow,
		ReferenceStart: a.Cfg.ReferenceStartRow,
		Journal:        a.DB,
		Log:            a.Log,
	}, nil
}

func (a *App) Importer() (*pipeline.ImportService, error) {
	intake, err := a.Workbook.Table(a.Cfg.IntakeSheet)
	if err != nil {
		return nil, err
	}
	exp, err := a.Expander()
	if err != nil {
		return nil, err
	}
	return &pipeline.ImportService{
		Store:      a.DB,
		Intake:     intake,
		StartRow:   a.Cfg.IntakeStartRow,
		Expander:   exp,
		ArchiveDir: a.Cfg.ArchiveDir(),
		Journal:    a.DB,
		Log:        a.Log,
	}, nil
}

// Trigger loads the persisted trigger state. Callers load it per use so a
// reset made by another process is seen.
func (a *App) Trigger() (*pipeline.Trigger, error) {
	return pipeline.NewTrigger(a.DB)
}

// TriggerCell returns the intake table and the cell range the trigger lives in.
func (a *App) TriggerCell() (sheet.Table, sheet.Range, error) {
	intake, err := a.Workbook.Table(a.Cfg.IntakeSheet)
	if err != nil {
		return nil, sheet.Range{}, err
	}
	cell, err := sheet.CellRange(a.Cfg.TriggerCell)
	if err != nil {
		return nil, sheet.Range{}, fmt.Errorf("invalid TRIGGER_CELL %q: %w", a.Cfg.TriggerCell, err)
	}
	return intake, cell, nil
}

// RunTransfer drives one guarded transfer: the trigger must be idle, and any
// failure leaves it failed until reset. Composite strings still sitting in
// column A are expanded first so they are not cleared as ineligible rows.
func (a *App) RunTransfer(ctx context.Context, now time.Time) (pipeline.TransferResult, error) {
	trig, err := a.Trigger()
	if err != nil {
		return pipeline.TransferResult{}, err
	}
	exp, err := a.Expander()
	if err != nil {
		return pipeline.TransferResult{}, err
	}
	svc, err := a.Transfer()
	if err != nil {
		return pipeline.TransferResult{}, err
	}
	if err := trig.Start(); err != nil {
		return pipeline.TransferResult{}, err
	}
	res, err := a.expandAndTransfer(ctx, exp, svc, now)
	if err != nil {
		if ferr := trig.Fail(); ferr != nil {
			a.Log.Error(ctx, "mark trigger failed", ferr)
		}
		return res, err
	}
	return res, trig.Finish()
}

func (a *App) expandAndTransfer(ctx context.Context, exp *pipeline.Expander, svc *pipeline.TransferService, now time.Time) (pipeline.TransferResult, error) {
	if _, err := exp.Run(ctx); err != nil {
		return pipeline.TransferResult{}, err
	}
	return svc.Run(ctx, now)
}
