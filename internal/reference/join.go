// Package reference classifies ledger deals by partner using the partner list
// table (partner name, classification).
package reference

import (
	"context"
	"strings"

	"dealdesk/internal"
	"dealdesk/internal/sheet"
	"dealdesk/internal/util"
)

type Entry struct {
	Partner        string
	Classification internal.Classification
}

// PartnerTypes is the partner → classification lookup in reference table order.
// The first entry for a partner wins.
type PartnerTypes struct {
	entries []Entry
	lookup  map[string]internal.Classification
}

func NewPartnerTypes(entries ...Entry) PartnerTypes {
	pt := PartnerTypes{lookup: make(map[string]internal.Classification, len(entries))}
	for _, e := range entries {
		partner := strings.TrimSpace(e.Partner)
		if partner == "" {
			continue
		}
		if _, ok := pt.lookup[partner]; ok {
			continue
		}
		e.Partner = partner
		e.Classification = internal.Classification(strings.TrimSpace(string(e.Classification)))
		pt.lookup[partner] = e.Classification
		pt.entries = append(pt.entries, e)
	}
	return pt
}

func (pt PartnerTypes) Lookup(partner string) (internal.Classification, bool) {
	c, ok := pt.lookup[strings.TrimSpace(partner)]
	return c, ok
}

func (pt PartnerTypes) Len() int { return len(pt.entries) }

// LoadPartnerTypes reads the reference table from startRow. It is read fresh on
// every call; nothing is cached between joins.
func LoadPartnerTypes(ctx context.Context, table sheet.Table, startRow int) (PartnerTypes, error) {
	rows, err := sheet.ReadFrom(ctx, table, startRow, 1, internal.ReferenceColumns)
	if err != nil {
		return PartnerTypes{}, err
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, Entry{
			Partner:        util.CellString(row[internal.ReferencePartner]),
			Classification: internal.Classification(util.CellString(row[internal.ReferenceClassification])),
		})
	}
	return NewPartnerTypes(entries...), nil
}

// Apply sets the classification of every record from types. A partner missing
// from types gets an empty classification so stale values do not survive.
// It returns how many records matched.
func Apply(records []internal.DealRecord, types PartnerTypes) int {
	matched := 0
	for i := range records {
		c, ok := types.Lookup(records[i].Partner)
		if ok {
			matched++
		} else {
			c = ""
		}
		records[i].Classification = c
	}
	return matched
}

// Choices lists the distinct non-empty classifications in first-seen order.
func Choices(types PartnerTypes) []string {
	values := make([]string, 0, len(types.entries))
	for _, e := range types.entries {
		values = append(values, string(e.Classification))
	}
	return util.UniqueOrdered(values)
}
