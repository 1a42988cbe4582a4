package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealdesk/internal"
	dealerrors "dealdesk/internal/errors"
	"dealdesk/internal/funnels"
	"dealdesk/internal/sheet"
	"dealdesk/internal/storage"
)

var march1 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func intakeTable(rows ...sheet.Row) *sheet.MemoryTable {
	all := []sheet.Row{{"Deal Processing"}, headerRow(internal.IntakeHeaders)}
	return sheet.NewMemoryTable("Deal Processing", append(all, rows...)...)
}

func ledgerTable(rows ...sheet.Row) *sheet.MemoryTable {
	return sheet.NewMemoryTable("Supplier Deals", append([]sheet.Row{headerRow(internal.LedgerHeaders)}, rows...)...)
}

func headerRow(headers []string) sheet.Row {
	row := make(sheet.Row, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	return row
}

func blankRow(cols int) sheet.Row {
	row := make(sheet.Row, cols)
	for i := range row {
		row[i] = ""
	}
	return row
}

type fixture struct {
	intake   *sheet.MemoryTable
	ledger   *sheet.MemoryTable
	registry *sheet.MemoryTable
	svc      *TransferService
}

func newFixture(intake, ledger *sheet.MemoryTable) *fixture {
	registry := sheet.NewMemoryTable("Funnel List")
	return &fixture{
		intake:   intake,
		ledger:   ledger,
		registry: registry,
		svc: &TransferService{
			Intake:      intake,
			Ledger:      ledger,
			Funnels:     funnels.NewRegistry(registry, 1),
			IntakeStart: 3,
			LedgerStart: 2,
		},
	}
}

func TestTransferExampleDeal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(
		intakeTable(sheet.Row{"", "Acme", "US", "EN", "Display", "$10", 0.05, "[FunnelA, FunnelB]", "8%"}),
		ledgerTable(),
	)

	res, err := f.svc.Run(ctx, march1)
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.Equal(t, 1, res.Scanned)
	assert.Equal(t, 1, res.Transferred)
	assert.Equal(t, internal.RowRange{From: 2, To: 2}, res.LedgerRows)
	assert.Equal(t, []string{"FunnelA", "FunnelB"}, res.FunnelsAdded)

	ledger := f.ledger.Rows()
	require.Len(t, ledger, 2)
	row := ledger[1]
	assert.Equal(t, "2024-03-01", row[internal.LedgerDate])
	assert.Equal(t, "US-Acme-01032024", row[internal.LedgerDealID])
	assert.Equal(t, "Acme", row[internal.LedgerPartner])
	assert.Equal(t, "", row[internal.LedgerPartnerPriority])
	assert.Equal(t, "$10", row[internal.LedgerCPA])
	assert.Equal(t, 0.05, row[internal.LedgerCRG])
	assert.Equal(t, "8%", row[internal.LedgerCR])
	assert.Equal(t, "FunnelA, FunnelB", row[internal.LedgerFunnels])
	assert.Equal(t, "", row[internal.LedgerClassification])

	assert.Equal(t, blankRow(internal.IntakeColumns), f.intake.Rows()[2])
	assert.Equal(t, []sheet.Row{{"FunnelA"}, {"FunnelB"}}, f.registry.Rows())
}

func TestTransferSecondRunIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(
		intakeTable(sheet.Row{"", "Acme", "US", "EN", "Display", "10", 0.05, "FunnelA", "8"}),
		ledgerTable(),
	)

	_, err := f.svc.Run(ctx, march1)
	require.NoError(t, err)

	f.ledger.FailWrite = assert.AnError
	f.intake.FailClear = assert.AnError
	res, err := f.svc.Run(ctx, march1)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Transferred)
	assert.Equal(t, 0, res.Scanned)
	assert.Len(t, f.ledger.Rows(), 2)
}

func TestTransferSkipsIneligibleRowsButClearsThem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(
		intakeTable(
			sheet.Row{"", "Acme", "", "EN", "Display", "10", 0.05, "FunnelA", "8"},
			sheet.Row{"bad-deal", internal.InvalidFormatMarker, "", "", "", "", "", "", ""},
			sheet.Row{},
			sheet.Row{"", "Beta", "de", "EN", "SEO", "900", "4%", "FunnelB, FunnelB ,", 3.0},
		),
		ledgerTable(),
	)

	res, err := f.svc.Run(ctx, march1)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Scanned)
	assert.Equal(t, 1, res.Transferred)
	assert.Equal(t, 2, res.Skipped)
	require.Len(t, res.Issues, 2)
	assert.Equal(t, 3, res.Issues[0].Row)
	assert.Equal(t, dealerrors.CodeMissingRequiredField, res.Issues[0].Code)
	assert.Contains(t, res.Issues[0].Msg, "geo")
	assert.Contains(t, res.Issues[1].Msg, "invalid format")
	assert.True(t, dealerrors.IsCode(res.Err(), dealerrors.CodeMissingRequiredField))

	ledger := f.ledger.Rows()
	require.Len(t, ledger, 2)
	assert.Equal(t, "DE-Beta-01032024", ledger[1][internal.LedgerDealID])
	assert.Equal(t, 0.04, ledger[1][internal.LedgerCRG])
	assert.Equal(t, 3.0, ledger[1][internal.LedgerCR])
	assert.Equal(t, "FunnelB", ledger[1][internal.LedgerFunnels])

	for _, row := range f.intake.Rows()[2:] {
		assert.True(t, isBlank(row), "intake row not cleared: %v", row)
	}
}

func TestTransferAppendsAfterTrailingBlankRows(t *testing.T) {
	ctx := context.Background()
	existing := func(id string) sheet.Row {
		row := blankRow(internal.LedgerColumns)
		row[internal.LedgerDealID] = id
		return row
	}
	f := newFixture(
		intakeTable(sheet.Row{"", "Acme", "US", "EN", "Display", "10", 0.05, "FunnelA", "8"}),
		ledgerTable(
			existing("US-Old-01022024"),
			existing("DE-Old-01022024"),
			blankRow(internal.LedgerColumns),
			blankRow(internal.LedgerColumns),
			blankRow(internal.LedgerColumns),
		),
	)

	res, err := f.svc.Run(ctx, march1)
	require.NoError(t, err)
	assert.Equal(t, internal.RowRange{From: 4, To: 4}, res.LedgerRows)

	ledger := f.ledger.Rows()
	assert.Equal(t, "DE-Old-01022024", ledger[2][internal.LedgerDealID])
	assert.Equal(t, "US-Acme-01032024", ledger[3][internal.LedgerDealID])
	assert.True(t, isBlank(ledger[4]))
}

func TestTransferUsesConfiguredZone(t *testing.T) {
	f := newFixture(
		intakeTable(sheet.Row{"", "Acme", "US", "EN", "Display", "10", 0.05, "", "8"}),
		ledgerTable(),
	)
	f.svc.Location = time.FixedZone("UTC+3", 3*3600)

	_, err := f.svc.Run(context.Background(), time.Date(2024, 3, 1, 22, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	row := f.ledger.Rows()[1]
	assert.Equal(t, "2024-03-02", row[internal.LedgerDate])
	assert.Equal(t, "US-Acme-02032024", row[internal.LedgerDealID])
	assert.Empty(t, f.registry.Rows())
}

func TestTransferAppendFailureLeavesIntake(t *testing.T) {
	f := newFixture(
		intakeTable(sheet.Row{"", "Acme", "US", "EN", "Display", "10", 0.05, "FunnelA", "8"}),
		ledgerTable(),
	)
	f.ledger.FailWrite = assert.AnError

	_, err := f.svc.Run(context.Background(), march1)
	require.Error(t, err)
	assert.True(t, dealerrors.IsCode(err, dealerrors.CodePartialTransferFailure))
	failure, ok := failureOf(err)
	require.True(t, ok)
	assert.Equal(t, PhaseAppend, failure.Phase)
	assert.True(t, failure.IntakeRows.Empty())

	assert.Equal(t, "Acme", f.intake.Rows()[2][internal.IntakePartner])
	assert.Empty(t, f.registry.Rows())
}

func TestTransferClearFailureIsJournaledAndResolvable(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(filepath.Join(t.TempDir(), "dealdesk.db"))
	require.NoError(t, err)
	defer db.Close()

	f := newFixture(
		intakeTable(
			sheet.Row{"", "Acme", "US", "EN", "Display", "10", 0.05, "FunnelA", "8"},
			sheet.Row{"", "Beta", "DE", "EN", "SEO", "900", 0.04, "FunnelB", "3"},
		),
		ledgerTable(),
	)
	f.svc.Journal = db
	f.intake.FailClear = assert.AnError

	res, err := f.svc.Run(ctx, march1)
	require.Error(t, err)
	failure, ok := failureOf(err)
	require.True(t, ok)
	assert.Equal(t, PhaseClear, failure.Phase)
	assert.Equal(t, internal.RowRange{From: 2, To: 3}, failure.LedgerRows)
	assert.Equal(t, internal.RowRange{From: 3, To: 4}, failure.IntakeRows)
	assert.Equal(t, []sheet.Row{{"FunnelA"}, {"FunnelB"}}, f.registry.Rows())

	run, err := db.GetRun(res.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, internal.RunFailed, run.Status)
	assert.Equal(t, internal.RowRange{From: 3, To: 4}, run.IntakeRows)

	f.intake.FailClear = nil
	cleared, err := f.svc.Resolve(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, internal.RowRange{From: 3, To: 4}, cleared)
	for _, row := range f.intake.Rows()[2:] {
		assert.True(t, isBlank(row))
	}
	assert.Len(t, f.ledger.Rows(), 3)

	_, err = f.svc.Resolve(ctx, res.RunID)
	assert.True(t, dealerrors.IsCode(err, dealerrors.CodeStateConflict))
}

func TestTransferRegistryFailureIsResolvable(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(filepath.Join(t.TempDir(), "dealdesk.db"))
	require.NoError(t, err)
	defer db.Close()

	f := newFixture(
		intakeTable(
			sheet.Row{"", "Acme", "US", "EN", "Display", "10", 0.05, "[FunnelA, FunnelB]", "8"},
			sheet.Row{"", "Beta", "DE", "EN", "SEO", "900", 0.04, "FunnelC", "3"},
		),
		ledgerTable(),
	)
	f.svc.Journal = db
	f.registry.FailWrite = assert.AnError

	res, err := f.svc.Run(ctx, march1)
	require.Error(t, err)
	assert.True(t, dealerrors.IsCode(err, dealerrors.CodePartialTransferFailure))
	failure, ok := failureOf(err)
	require.True(t, ok)
	assert.Equal(t, PhaseRegistry, failure.Phase)
	assert.Equal(t, internal.RowRange{From: 2, To: 3}, failure.LedgerRows)
	assert.Equal(t, internal.RowRange{From: 3, To: 4}, failure.IntakeRows)

	assert.Equal(t, "Acme", f.intake.Rows()[2][internal.IntakePartner])
	assert.Empty(t, f.registry.Rows())

	f.registry.FailWrite = nil
	cleared, err := f.svc.Resolve(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, internal.RowRange{From: 3, To: 4}, cleared)
	assert.Equal(t, []sheet.Row{{"FunnelA"}, {"FunnelB"}, {"FunnelC"}}, f.registry.Rows())
	for _, row := range f.intake.Rows()[2:] {
		assert.True(t, isBlank(row))
	}
	assert.Len(t, f.ledger.Rows(), 3)

	run, err := db.GetRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, internal.RunResolved, run.Status)
}

func TestResolveWithoutJournal(t *testing.T) {
	f := newFixture(intakeTable(), ledgerTable())
	_, err := f.svc.Resolve(context.Background(), "x")
	assert.True(t, dealerrors.IsCode(err, dealerrors.CodeConfig))
}

func TestFormatFunnels(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"[FunnelA, FunnelB]", []string{"FunnelA", "FunnelB"}},
		{"FunnelA,FunnelA , ,FunnelC", []string{"FunnelA", "FunnelC"}},
		{"Crypto-Pro-X", []string{"Crypto-Pro-X"}},
		{"", []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatFunnels(tc.in))
		})
	}
}

func isBlank(row sheet.Row) bool {
	for _, c := range row {
		if c != "" && c != nil {
			return false
		}
	}
	return true
}

func TestTransferKeepsNonNumericCRG(t *testing.T) {
	ctx := context.Background()
	f := newFixture(
		intakeTable(
			sheet.Row{"", "Acme", "US", "EN", "Display", "10", "n/a", "", "8"},
			sheet.Row{"", "Beta", "DE", "EN", "SEO", "900", " 5-10 ", "", "3"},
		),
		ledgerTable(),
	)

	res, err := f.svc.Run(ctx, march1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Transferred)

	ledger := f.ledger.Rows()
	assert.Equal(t, "n/a", ledger[1][internal.LedgerCRG])
	assert.Equal(t, "5-10", ledger[2][internal.LedgerCRG])

	records, err := ReadLedger(ctx, f.ledger, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Nil(t, records[0].CRG)
	assert.Equal(t, "n/a", records[0].CRGText)
}
