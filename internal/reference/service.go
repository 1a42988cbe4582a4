package reference

import (
	"context"

	"dealdesk/internal"
	dealerrors "dealdesk/internal/errors"
	"dealdesk/internal/logger"
	"dealdesk/internal/sheet"
	"dealdesk/internal/util"
)

type JoinResult struct {
	Rows    int      `json:"rows"`
	Matched int      `json:"matched"`
	Cleared int      `json:"cleared"`
	Choices []string `json:"choices"`
}

// Journal records join runs. *storage.DB implements it.
type Journal interface {
	StartRun(kind internal.RunKind) (internal.RunRecord, error)
	FinishRun(run internal.RunRecord) error
}

// Service rewrites the ledger classification column from the reference table.
type Service struct {
	Ledger         sheet.Table
	Reference      sheet.Table
	LedgerStart    int
	ReferenceStart int
	Journal        Journal
	Log            *logger.Logger
}

func (s *Service) Run(ctx context.Context) (JoinResult, error) {
	log := s.Log
	if log == nil {
		log = logger.Nop()
	}

	var run internal.RunRecord
	if s.Journal != nil {
		started, err := s.Journal.StartRun(internal.RunJoin)
		if err != nil {
			log.Warn(ctx, "run journal unavailable", map[string]any{"error": err.Error()})
		} else {
			run = started
			ctx = log.WithRunID(ctx, run.ID)
		}
	}

	result, err := s.join(ctx, log)
	if run.ID != "" {
		run.Scanned = result.Rows
		run.Transferred = result.Matched
		run.Skipped = result.Rows - result.Matched
		run.Status = internal.RunSucceeded
		if err != nil {
			run.Status = internal.RunFailed
			run.Error = err.Error()
		}
		if ferr := s.Journal.FinishRun(run); ferr != nil {
			log.Error(ctx, "record run", ferr)
		}
	}
	return result, err
}

func (s *Service) join(ctx context.Context, log *logger.Logger) (JoinResult, error) {
	types, err := LoadPartnerTypes(ctx, s.Reference, s.ReferenceStart)
	if err != nil {
		return JoinResult{}, dealerrors.Wrap(dealerrors.CodeStorage, err, "read reference table")
	}

	rows, err := sheet.ReadFrom(ctx, s.Ledger, s.LedgerStart, 1, internal.LedgerColumns)
	if err != nil {
		return JoinResult{}, dealerrors.Wrap(dealerrors.CodeStorage, err, "read ledger")
	}

	result := JoinResult{Choices: Choices(types)}
	if len(rows) == 0 {
		return result, nil
	}

	records := make([]internal.DealRecord, len(rows))
	previous := make([]internal.Classification, len(rows))
	for i, row := range rows {
		previous[i] = internal.Classification(util.CellString(row[internal.LedgerClassification]))
		records[i] = internal.DealRecord{
			Partner:        util.CellString(row[internal.LedgerPartner]),
			Classification: previous[i],
		}
	}

	result.Matched = Apply(records, types)
	result.Rows = len(records)

	column := make([]sheet.Row, len(records))
	for i, rec := range records {
		column[i] = sheet.Row{string(rec.Classification)}
		if previous[i] != "" && rec.Classification == "" {
			result.Cleared++
		}
	}

	target := sheet.Range{Row: s.LedgerStart, Col: internal.LedgerClassification + 1}
	if err := s.Ledger.Write(ctx, target, column); err != nil {
		return JoinResult{}, dealerrors.Wrap(dealerrors.CodeStorage, err, "write classification column")
	}

	log.Info(ctx, "reference join complete", map[string]any{
		"rows":     result.Rows,
		"matched":  result.Matched,
		"partners": types.Len(),
	})
	return result, nil
}
