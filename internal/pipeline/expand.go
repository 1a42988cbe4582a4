package pipeline

import (
	"context"

	"go.uber.org/multierr"

	"dealdesk/internal"
	"dealdesk/internal/dealkey"
	dealerrors "dealdesk/internal/errors"
	"dealdesk/internal/logger"
	"dealdesk/internal/sheet"
)

// Expander decodes composite strings typed into intake column A and fills the
// structured columns B..I of the same row.
type Expander struct {
	Intake   sheet.Table
	StartRow int
	Journal  Journal
	Log      *logger.Logger
}

type ExpandResult struct {
	RunID    string     `json:"runId,omitempty"`
	Scanned  int        `json:"scanned"`
	Expanded int        `json:"expanded"`
	Invalid  int        `json:"invalid"`
	Issues   []RowIssue `json:"issues,omitempty"`

	errs error
}

// Err combines the row issues of the run; nil when every row decoded.
func (r ExpandResult) Err() error { return r.errs }

// Run rewrites B..I of every row whose column A holds text. A row that does not
// decode gets the Invalid Format marker in its partner cell and keeps the rest.
// Each contiguous run of changed rows goes out in one write.
func (e *Expander) Run(ctx context.Context) (ExpandResult, error) {
	log := orNop(e.Log)
	run, ctx := beginRun(ctx, e.Journal, log, internal.RunExpand)

	res, err := e.run(ctx, log)
	res.RunID = run.ID
	run.Scanned = res.Scanned
	run.Transferred = res.Expanded
	run.Invalid = res.Invalid
	finishRun(ctx, e.Journal, log, run, err)
	return res, err
}

func (e *Expander) run(ctx context.Context, log *logger.Logger) (ExpandResult, error) {
	var res ExpandResult

	rows, err := sheet.ReadFrom(ctx, e.Intake, e.StartRow, 1, internal.IntakeColumns)
	if err != nil {
		return res, dealerrors.Wrap(dealerrors.CodeStorage, err, "read intake")
	}
	res.Scanned = len(rows)

	changed := make([]bool, len(rows))
	for i, cells := range rows {
		in := ParseIntakeRow(e.StartRow+i, cells)
		if in.Composite == "" {
			continue
		}
		changed[i] = true

		fields, err := dealkey.Decode(in.Composite)
		if err != nil {
			res.Invalid++
			res.Issues = append(res.Issues, issueFrom(in.Row, err))
			res.errs = multierr.Append(res.errs, err)
			cells[internal.IntakePartner] = internal.InvalidFormatMarker
			log.Warn(ctx, "invalid composite deal", map[string]any{"row": in.Row, "value": in.Composite})
			continue
		}

		res.Expanded++
		cells[internal.IntakePartner] = fields.Partner
		cells[internal.IntakeGeo] = fields.Geo
		cells[internal.IntakeLanguage] = fields.Language
		cells[internal.IntakeSource] = fields.Source
		cells[internal.IntakeCPA] = fields.CPA
		cells[internal.IntakeCRG] = fields.CRG
		cells[internal.IntakeFunnels] = fields.Funnels
		cells[internal.IntakeCR] = fields.CR
	}

	if res.Expanded+res.Invalid == 0 {
		return res, nil
	}

	// Rows without a composite string are never written back.
	for _, run := range changedRuns(changed) {
		block := make([]sheet.Row, 0, run.to-run.from+1)
		for _, cells := range rows[run.from : run.to+1] {
			block = append(block, cells[internal.IntakePartner:internal.IntakeColumns])
		}
		target := sheet.Range{Row: e.StartRow + run.from, Col: internal.IntakePartner + 1}
		if err := e.Intake.Write(ctx, target, block); err != nil {
			return res, dealerrors.Wrap(dealerrors.CodeStorage, err, "write expanded intake rows")
		}
	}

	log.Info(ctx, "intake expanded", map[string]any{
		"scanned":  res.Scanned,
		"expanded": res.Expanded,
		"invalid":  res.Invalid,
	})
	return res, nil
}

type span struct{ from, to int }

// changedRuns groups the set indices into contiguous inclusive 0-based spans.
func changedRuns(changed []bool) []span {
	var runs []span
	for i, c := range changed {
		if !c {
			continue
		}
		if n := len(runs); n > 0 && runs[n-1].to == i-1 {
			runs[n-1].to = i
			continue
		}
		runs = append(runs, span{from: i, to: i})
	}
	return runs
}
