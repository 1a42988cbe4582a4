package pipeline

import (
	"strings"
	"time"

	"dealdesk/internal"
	"dealdesk/internal/dealkey"
	"dealdesk/internal/sheet"
	"dealdesk/internal/util"
)

const funnelJoiner = ", "

// FormatFunnels turns "[FunnelA, FunnelB ,,FunnelA]" into FunnelA, FunnelB.
func FormatFunnels(raw string) []string {
	cleaned := strings.NewReplacer("[", "", "]", "").Replace(raw)
	parts := strings.Split(cleaned, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		tags = append(tags, strings.TrimSpace(p))
	}
	return util.UniqueOrdered(tags)
}

// NewDealRecord maps an eligible intake row to a ledger record dated day.
func NewDealRecord(in IntakeRecord, day time.Time) (internal.DealRecord, error) {
	id, err := dealkey.Encode(in.Geo, in.Partner, day)
	if err != nil {
		return internal.DealRecord{}, err
	}

	rec := internal.DealRecord{
		Date:         day,
		DealID:       id,
		Partner:      in.Partner,
		Geo:          in.Geo,
		Language:     in.Language,
		Source:       in.Source,
		CPA:          in.CPA,
		CR:           in.CR,
		Funnels:      FormatFunnels(in.Funnels),
		FullDealText: in.Composite,
	}
	if crg, ok := util.CellFraction(in.CRG); ok {
		rec.CRG = &crg
	} else {
		rec.CRGText = strings.TrimSpace(util.CellString(in.CRG))
	}
	if s, ok := rec.CR.(string); ok {
		rec.CR = strings.TrimSpace(s)
	}
	return rec, nil
}

// LedgerRow renders rec in ledger column order.
func LedgerRow(rec internal.DealRecord) sheet.Row {
	row := make(sheet.Row, internal.LedgerColumns)
	for i := range row {
		row[i] = ""
	}
	row[internal.LedgerDate] = rec.Date.Format(internal.LedgerDateLayout)
	row[internal.LedgerDealID] = rec.DealID
	row[internal.LedgerPartner] = rec.Partner
	row[internal.LedgerPartnerPriority] = rec.PartnerPriority
	row[internal.LedgerGeo] = rec.Geo
	row[internal.LedgerLanguage] = rec.Language
	row[internal.LedgerSource] = rec.Source
	row[internal.LedgerCPA] = rec.CPA
	if rec.CRG != nil {
		row[internal.LedgerCRG] = *rec.CRG
	} else if rec.CRGText != "" {
		row[internal.LedgerCRG] = rec.CRGText
	}
	if rec.CR != nil {
		row[internal.LedgerCR] = rec.CR
	}
	row[internal.LedgerFunnels] = strings.Join(rec.Funnels, funnelJoiner)
	row[internal.LedgerClassification] = string(rec.Classification)
	row[internal.LedgerFullDealText] = rec.FullDealText
	return row
}

// ParseLedgerRow is the inverse of LedgerRow for rows read back from the ledger.
func ParseLedgerRow(cells sheet.Row) internal.DealRecord {
	cell := func(i int) any {
		if i < len(cells) {
			return cells[i]
		}
		return ""
	}
	str := func(i int) string { return strings.TrimSpace(util.CellString(cell(i))) }

	rec := internal.DealRecord{
		DealID:          str(internal.LedgerDealID),
		Partner:         str(internal.LedgerPartner),
		PartnerPriority: str(internal.LedgerPartnerPriority),
		Geo:             str(internal.LedgerGeo),
		Language:        str(internal.LedgerLanguage),
		Source:          str(internal.LedgerSource),
		CPA:             str(internal.LedgerCPA),
		CR:              cell(internal.LedgerCR),
		Classification:  internal.Classification(str(internal.LedgerClassification)),
		FullDealText:    str(internal.LedgerFullDealText),
	}
	if d, err := time.Parse(internal.LedgerDateLayout, str(internal.LedgerDate)); err == nil {
		rec.Date = d
	}
	if crg, ok := util.CellFraction(cell(internal.LedgerCRG)); ok {
		rec.CRG = &crg
	} else {
		rec.CRGText = str(internal.LedgerCRG)
	}
	if f := str(internal.LedgerFunnels); f != "" {
		rec.Funnels = FormatFunnels(f)
	}
	return rec
}
