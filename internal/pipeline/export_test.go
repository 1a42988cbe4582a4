package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"dealdesk/internal"
	"dealdesk/internal/sheet"
)

func TestExportLedger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(
		intakeTable(
			sheet.Row{"", "Acme", "US", "EN", "Display", "10", 0.05, "FunnelA, FunnelB", "8"},
			sheet.Row{"", "Beta", "DE", "EN", "SEO", "900", "", "", ""},
		),
		ledgerTable(),
	)
	_, err := f.svc.Run(ctx, march1)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Write(ctx, sheet.Range{Row: 10, Col: 1}, []sheet.Row{blankRow(internal.LedgerColumns)}))

	records, err := ReadLedger(ctx, f.ledger, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "US-Acme-01032024", records[0].DealID)
	assert.Equal(t, []string{"FunnelA", "FunnelB"}, records[0].Funnels)
	require.NotNil(t, records[0].CRG)
	assert.Equal(t, 0.05, *records[0].CRG)
	assert.Nil(t, records[1].CRG)
	assert.Equal(t, march1.Format(internal.LedgerDateLayout), records[1].Date.Format(internal.LedgerDateLayout))

	out := filepath.Join(t.TempDir(), "exports", "ledger.xlsx")
	require.NoError(t, ExportLedgerToXLSX(records, out))

	wb, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows("Ledger")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Deal ID", rows[0][internal.LedgerDealID])
	assert.Equal(t, "FULL DEAL", rows[0][internal.LedgerFullDealText])
	assert.Equal(t, "DE-Beta-01032024", rows[2][internal.LedgerDealID])
	assert.Equal(t, "FunnelA, FunnelB", rows[1][internal.LedgerFunnels])
}
