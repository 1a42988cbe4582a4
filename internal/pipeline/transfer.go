package pipeline

import (
	"context"
	"time"

	"go.uber.org/multierr"

	"dealdesk/internal"
	dealerrors "dealdesk/internal/errors"
	"dealdesk/internal/funnels"
	"dealdesk/internal/logger"
	"dealdesk/internal/sheet"
	"dealdesk/internal/util"
)

// Transfer phases named in PartialTransferFailure details.
const (
	PhaseAppend   = "append"
	PhaseClear    = "clear"
	PhaseRegistry = "registry"
)

// TransferFailure is attached as details to a PartialTransferFailure error.
type TransferFailure struct {
	Phase string `json:"phase"`
	// LedgerRows were written before the failure.
	LedgerRows internal.RowRange `json:"ledgerRows"`
	// IntakeRows still hold rows whose content is already in the ledger.
	IntakeRows internal.RowRange `json:"intakeRows"`
}

// TransferService moves eligible intake rows into the ledger.
type TransferService struct {
	Intake      sheet.Table
	Ledger      sheet.Table
	Funnels     *funnels.Registry
	IntakeStart int
	LedgerStart int
	Location    *time.Location
	Journal     Journal
	Log         *logger.Logger
}

type TransferResult struct {
	RunID        string            `json:"runId,omitempty"`
	Scanned      int               `json:"scanned"`
	Transferred  int               `json:"transferred"`
	Skipped      int               `json:"skipped"`
	LedgerRows   internal.RowRange `json:"ledgerRows"`
	IntakeRows   internal.RowRange `json:"intakeRows"`
	FunnelsAdded []string          `json:"funnelsAdded,omitempty"`
	Issues       []RowIssue        `json:"issues,omitempty"`

	errs error
}

// Err combines the row issues of the run.
func (r TransferResult) Err() error { return r.errs }

// Run performs one transfer dated today in the service's location. The ledger
// append comes first, then the funnel registry; intake rows are cleared only
// after both succeeded.
func (s *TransferService) Run(ctx context.Context, today time.Time) (TransferResult, error) {
	log := orNop(s.Log)
	run, ctx := beginRun(ctx, s.Journal, log, internal.RunTransfer)

	res, err := s.run(ctx, log, today)
	res.RunID = run.ID
	run.Scanned = res.Scanned
	run.Transferred = res.Transferred
	run.Skipped = res.Skipped
	run.Added = len(res.FunnelsAdded)
	run.LedgerRows = res.LedgerRows
	if f, ok := failureOf(err); ok {
		run.LedgerRows = f.LedgerRows
		run.IntakeRows = f.IntakeRows
	}
	finishRun(ctx, s.Journal, log, run, err)
	return res, err
}

func (s *TransferService) run(ctx context.Context, log *logger.Logger, today time.Time) (TransferResult, error) {
	var res TransferResult

	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	day := today.In(loc)

	rows, err := sheet.ReadFrom(ctx, s.Intake, s.IntakeStart, 1, internal.IntakeColumns)
	if err != nil {
		return res, dealerrors.Wrap(dealerrors.CodeStorage, err, "read intake")
	}
	rows = trimTrailingBlank(rows)
	if len(rows) == 0 {
		log.Info(ctx, "intake empty, nothing to transfer", nil)
		return res, nil
	}
	res.Scanned = len(rows)
	res.IntakeRows = internal.RowRange{From: s.IntakeStart, To: s.IntakeStart + len(rows) - 1}

	staged := make([]sheet.Row, 0, len(rows))
	var tags []string
	for i, cells := range rows {
		in := ParseIntakeRow(s.IntakeStart+i, cells)
		if in.Blank() {
			continue
		}
		if err := in.Validate(); err != nil {
			res.Skipped++
			res.Issues = append(res.Issues, issueFrom(in.Row, err))
			res.errs = multierr.Append(res.errs, err)
			continue
		}
		rec, err := NewDealRecord(in, day)
		if err != nil {
			res.Skipped++
			res.Issues = append(res.Issues, issueFrom(in.Row, err))
			res.errs = multierr.Append(res.errs, err)
			continue
		}
		staged = append(staged, LedgerRow(rec))
		tags = append(tags, rec.Funnels...)
	}

	if len(staged) > 0 {
		at, err := s.appendRow(ctx)
		if err != nil {
			return res, partialFailure(err, "read ledger", TransferFailure{Phase: PhaseAppend})
		}
		if err := s.Ledger.Write(ctx, sheet.Range{Row: at, Col: 1}, staged); err != nil {
			return res, partialFailure(err, "append ledger rows", TransferFailure{Phase: PhaseAppend})
		}
		res.Transferred = len(staged)
		res.LedgerRows = internal.RowRange{From: at, To: at + len(staged) - 1}
	}

	// The ledger now holds the batch; the remaining phases run even if ctx is
	// cancelled so the intake is not left half consumed.
	ctx = context.WithoutCancel(ctx)

	// Rows already in the ledger stay in the intake until resolved.
	pending := TransferFailure{LedgerRows: res.LedgerRows}
	if res.Transferred > 0 {
		pending.IntakeRows = res.IntakeRows
	}

	if s.Funnels != nil && len(tags) > 0 {
		added, err := s.Funnels.AddAllIfAbsent(ctx, util.UniqueOrdered(tags))
		if err != nil {
			pending.Phase = PhaseRegistry
			return res, partialFailure(err, "update funnel registry", pending)
		}
		res.FunnelsAdded = added
	}

	consumed := sheet.Range{Row: res.IntakeRows.From, Col: 1, Rows: res.IntakeRows.Len(), Cols: internal.IntakeColumns}
	if err := s.Intake.Clear(ctx, consumed); err != nil {
		pending.Phase = PhaseClear
		return res, partialFailure(err, "clear intake rows", pending)
	}

	log.Info(ctx, "transfer complete", map[string]any{
		"scanned":      res.Scanned,
		"transferred":  res.Transferred,
		"skipped":      res.Skipped,
		"ledgerFrom":   res.LedgerRows.From,
		"ledgerTo":     res.LedgerRows.To,
		"funnelsAdded": len(res.FunnelsAdded),
	})
	return res, nil
}

// appendRow is the row after the last ledger row holding any value. Trailing
// rows that only look used are ignored.
func (s *TransferService) appendRow(ctx context.Context) (int, error) {
	rows, err := sheet.ReadFrom(ctx, s.Ledger, 1, 1, internal.LedgerColumns)
	if err != nil {
		return 0, err
	}
	last := lastNonEmptyRow(rows)
	start := s.LedgerStart
	if start < 1 {
		start = 1
	}
	if last+1 < start {
		return start, nil
	}
	return last + 1, nil
}

// lastNonEmptyRow returns the 1-based index of the last row with a value, 0 if none.
func lastNonEmptyRow(rows []sheet.Row) int {
	for i := len(rows) - 1; i >= 0; i-- {
		if !util.IsBlankRow(rows[i]) {
			return i + 1
		}
	}
	return 0
}

func trimTrailingBlank(rows []sheet.Row) []sheet.Row {
	return rows[:lastNonEmptyRow(rows)]
}

func partialFailure(cause error, msg string, f TransferFailure) error {
	return dealerrors.Wrap(dealerrors.CodePartialTransferFailure, cause, msg).WithDetails(f)
}

func failureOf(err error) (TransferFailure, bool) {
	e, ok := dealerrors.As(err)
	if !ok || e.Code() != dealerrors.CodePartialTransferFailure {
		return TransferFailure{}, false
	}
	f, ok := e.Details().(TransferFailure)
	return f, ok
}

// ResolvableJournal can look up and close failed runs. *storage.DB implements it.
type ResolvableJournal interface {
	Journal
	GetRun(id string) (*internal.RunRecord, error)
	MarkRunResolved(id string) error
}

// Resolve finishes a failed transfer whose rows reached the ledger: the funnel
// tags of the recorded ledger rows are registered again, the intake rows left
// behind are cleared and the run is marked resolved. Nothing is appended to the
// ledger.
func (s *TransferService) Resolve(ctx context.Context, runID string) (internal.RowRange, error) {
	j, ok := s.Journal.(ResolvableJournal)
	if !ok {
		return internal.RowRange{}, dealerrors.New(dealerrors.CodeConfig, "run journal is not configured")
	}
	run, err := j.GetRun(runID)
	if err != nil {
		return internal.RowRange{}, dealerrors.Wrap(dealerrors.CodeStorage, err, "load run")
	}
	if run == nil {
		return internal.RowRange{}, dealerrors.Newf(dealerrors.CodeStateConflict, "run %s not found", runID)
	}
	if run.Kind != internal.RunTransfer || run.Status != internal.RunFailed || run.IntakeRows.Empty() {
		return internal.RowRange{}, dealerrors.Newf(dealerrors.CodeStateConflict, "run %s has nothing to resolve", runID)
	}

	added, err := s.registerLedgerFunnels(ctx, run.LedgerRows)
	if err != nil {
		return internal.RowRange{}, dealerrors.Wrap(dealerrors.CodeStorage, err, "update funnel registry")
	}

	r := run.IntakeRows
	if err := s.Intake.Clear(ctx, sheet.Range{Row: r.From, Col: 1, Rows: r.Len(), Cols: internal.IntakeColumns}); err != nil {
		return internal.RowRange{}, dealerrors.Wrap(dealerrors.CodeStorage, err, "clear intake rows")
	}
	if err := j.MarkRunResolved(runID); err != nil {
		return r, dealerrors.Wrap(dealerrors.CodeStorage, err, "mark run resolved")
	}
	orNop(s.Log).Info(ctx, "failed transfer resolved", map[string]any{"run_id": runID, "intakeFrom": r.From, "intakeTo": r.To, "funnelsAdded": len(added)})
	return r, nil
}

func (s *TransferService) registerLedgerFunnels(ctx context.Context, rows internal.RowRange) ([]string, error) {
	if s.Funnels == nil || rows.Empty() {
		return nil, nil
	}
	cells, err := s.Ledger.Read(ctx, sheet.Range{Row: rows.From, Col: 1, Rows: rows.Len(), Cols: internal.LedgerColumns})
	if err != nil {
		return nil, err
	}
	var tags []string
	for _, row := range cells {
		tags = append(tags, ParseLedgerRow(row).Funnels...)
	}
	if len(tags) == 0 {
		return nil, nil
	}
	return s.Funnels.AddAllIfAbsent(ctx, util.UniqueOrdered(tags))
}
