// Package funnels keeps the append-only list of every funnel tag ever
// transferred. Entries keep their first-seen order and are never rewritten.
package funnels

import (
	"context"
	"strings"

	"dealdesk/internal/sheet"
	"dealdesk/internal/util"
)

type Registry struct {
	table    sheet.Table
	startRow int
}

func NewRegistry(table sheet.Table, startRow int) *Registry {
	if startRow < 1 {
		startRow = 1
	}
	return &Registry{table: table, startRow: startRow}
}

// List returns the registered tags in table order, skipping blank cells.
func (r *Registry) List(ctx context.Context) ([]string, error) {
	tags, _, err := r.load(ctx)
	return tags, err
}

// AddAllIfAbsent appends the tags not yet registered, in input order. Matching
// is exact, case-sensitive and untrimmed; blank tags are skipped. It returns the
// tags it appended.
func (r *Registry) AddAllIfAbsent(ctx context.Context, tags []string) ([]string, error) {
	existing, lastUsed, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(existing))
	for _, tag := range existing {
		seen[tag] = struct{}{}
	}

	var added []string
	for _, tag := range tags {
		if strings.TrimSpace(tag) == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		added = append(added, tag)
	}
	if len(added) == 0 {
		return nil, nil
	}

	rows := make([]sheet.Row, len(added))
	for i, tag := range added {
		rows[i] = sheet.Row{tag}
	}
	if err := r.table.Write(ctx, sheet.Range{Row: lastUsed + 1, Col: 1}, rows); err != nil {
		return nil, err
	}
	return added, nil
}

// load reads the registry column once. lastUsed is the last row holding a tag,
// or startRow-1 when the registry is empty.
func (r *Registry) load(ctx context.Context) ([]string, int, error) {
	rows, err := sheet.ReadFrom(ctx, r.table, r.startRow, 1, 1)
	if err != nil {
		return nil, 0, err
	}
	lastUsed := r.startRow - 1
	var tags []string
	for i, row := range rows {
		tag := util.CellString(row[0])
		if strings.TrimSpace(tag) == "" {
			continue
		}
		tags = append(tags, tag)
		lastUsed = r.startRow + i
	}
	return tags, lastUsed, nil
}
