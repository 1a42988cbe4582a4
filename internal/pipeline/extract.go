package pipeline

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"dealdesk/internal"
	"dealdesk/internal/util"
)

var ignorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^--+$`),
	regexp.MustCompile(`(?i)^(thanks|thank you|regards|best regards|cheers)\b`),
	regexp.MustCompile(`(?i)^(tel|phone|skype|telegram)[:\s]`),
	regexp.MustCompile(`(?i)^e-?mail[:\s]`),
	regexp.MustCompile(`(?i)^(from|to|sent|subject)[:\s]`),
	regexp.MustCompile(`(?i)^http`),
}

// dealColumns maps each composite token to the header names that carry it in a
// structured table. Matching is exact after lower-casing.
var dealColumns = [][]string{
	{"partner", "affiliate", "brand", "advertiser"},
	{"geo", "country", "geo code"},
	{"language", "lang"},
	{"source", "traffic", "traffic source"},
	{"cpa", "payout"},
	{"crg", "crg %", "crg%"},
	{"funnel", "funnels", "offer"},
	{"cr", "cr %", "cr%"},
}

// ExtractDealLines pulls composite deal strings out of a file. The extension of
// name picks the parser; anything unknown is read as plain text.
func ExtractDealLines(name string, content []byte) ([]internal.DealLine, error) {
	var (
		lines []internal.DealLine
		err   error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".eml":
		lines, err = extractFromEmail(content)
	case ".html", ".htm":
		lines = parseHTMLTables(string(content))
		if len(lines) == 0 {
			lines = parseText(internal.SourceText, htmlText(string(content)))
		}
	case ".xlsx":
		lines, err = parseXLSX(content)
	case ".pdf":
		lines, err = parsePDF(content)
	case ".xls":
		return nil, fmt.Errorf("legacy .xls is not supported, save as .xlsx: %s", name)
	default:
		lines = parseText(internal.SourceText, string(content))
	}
	if err != nil {
		return nil, err
	}

	lines = dedupeLines(lines)
	for i := range lines {
		lines[i].LineNo = i + 1
	}
	return lines, nil
}

func extractFromEmail(raw []byte) ([]internal.DealLine, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	lines := make([]internal.DealLine, 0)
	if env.Text != "" {
		lines = append(lines, parseText(internal.SourceEmailText, env.Text)...)
	}
	if env.HTML != "" {
		lines = append(lines, parseHTMLTables(env.HTML)...)
	}

	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = "attachment"
		}
		var extra []internal.DealLine
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".xlsx":
			extra, err = parseXLSX(att.Content)
		case ".pdf":
			extra, err = parsePDF(att.Content)
		case ".txt", ".csv":
			extra, err = parseText(internal.SourceText, string(att.Content)), nil
		default:
			continue
		}
		if err != nil {
			continue
		}
		for i := range extra {
			if extra[i].Meta == nil {
				extra[i].Meta = map[string]any{}
			}
			extra[i].Meta["attachment"] = filename
		}
		lines = append(lines, extra...)
	}
	return lines, nil
}

// parseText keeps the lines, or ";"-separated parts of lines, that look like
// composite deal strings.
func parseText(source internal.LineSource, text string) []internal.DealLine {
	out := []internal.DealLine{}
	for _, line := range splitLines(text) {
		for _, candidate := range strings.Split(line, ";") {
			candidate = cleanCandidate(candidate)
			if !LooksLikeCompositeDeal(candidate).IsDeal {
				continue
			}
			out = append(out, internal.DealLine{Source: source, Text: candidate, Meta: map[string]any{}})
		}
	}
	return out
}

// parseHTMLTables reads deal tables. A table whose header names the deal
// columns is composed row by row; otherwise every cell is tried on its own.
func parseHTMLTables(html string) []internal.DealLine {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	out := []internal.DealLine{}
	doc.Find("table").Each(func(tableIdx int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() == 0 {
			return
		}

		headers := []string{}
		rows.First().Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			headers = append(headers, util.NormalizeSpaces(cell.Text()))
		})
		cols, structured := inferDealColumns(headers)

		body := rows
		if structured {
			body = rows.Slice(1, rows.Length())
		}
		body.Each(func(rowIdx int, row *goquery.Selection) {
			cells := []string{}
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, util.NormalizeSpaces(cell.Text()))
			})
			meta := map[string]any{"table": tableIdx + 1}
			out = append(out, rowToLines(internal.SourceHTMLTable, cells, cols, structured, meta)...)
		})
	})
	return out
}

func htmlText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	var b strings.Builder
	doc.Find("p,div,li,td,br").Each(func(_ int, s *goquery.Selection) {
		b.WriteString(s.Text())
		b.WriteString("\n")
	})
	if b.Len() == 0 {
		return doc.Text()
	}
	return b.String()
}

func parseXLSX(content []byte) ([]internal.DealLine, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := []internal.DealLine{}
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil || len(rows) == 0 {
			continue
		}

		var cols []int
		structured := false
		for i, row := range rows {
			cells := normalizeCells(row)
			if len(cells) == 0 {
				continue
			}
			if i < 3 && !structured {
				if cols, structured = inferDealColumns(cells); structured {
					continue
				}
			}
			meta := map[string]any{"sheet": sheetName, "rowNumber": i + 1}
			out = append(out, rowToLines(internal.SourceXLSX, cells, cols, structured, meta)...)
		}
	}
	return out, nil
}

func parsePDF(content []byte) ([]internal.DealLine, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	out := []internal.DealLine{}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		lines := parseText(internal.SourcePDF, text)
		for j := range lines {
			lines[j].Meta["page"] = i
		}
		out = append(out, lines...)
	}
	return out, nil
}

// inferDealColumns finds the column of each composite token. A header is
// structured when at least partner and geo are named.
func inferDealColumns(headers []string) ([]int, bool) {
	cols := make([]int, len(dealColumns))
	for i := range cols {
		cols[i] = -1
	}
	for h, header := range headers {
		name := strings.ToLower(strings.TrimSpace(header))
		for field, probes := range dealColumns {
			if cols[field] >= 0 {
				continue
			}
			for _, probe := range probes {
				if name == probe {
					cols[field] = h
					break
				}
			}
		}
	}
	return cols, cols[0] >= 0 && cols[1] >= 0
}

func rowToLines(source internal.LineSource, cells []string, cols []int, structured bool, meta map[string]any) []internal.DealLine {
	if structured {
		composite := composeDeal(cells, cols)
		if composite == "" || !LooksLikeCompositeDeal(composite).IsDeal {
			return nil
		}
		meta["row"] = cells
		return []internal.DealLine{{Source: source, Text: composite, Meta: meta}}
	}

	var out []internal.DealLine
	for _, cell := range cells {
		candidate := cleanCandidate(cell)
		if !LooksLikeCompositeDeal(candidate).IsDeal {
			continue
		}
		out = append(out, internal.DealLine{Source: source, Text: candidate, Meta: meta})
	}
	return out
}

// composeDeal joins a structured row into partner-geo-language-source-cpa-crg-funnels-cr.
func composeDeal(cells []string, cols []int) string {
	tokens := make([]string, len(cols))
	for field, idx := range cols {
		tokens[field] = strings.TrimSpace(pickCell(cells, idx, -1))
	}
	if tokens[0] == "" || tokens[1] == "" {
		return ""
	}
	tokens[5] = strings.TrimSuffix(tokens[5], "%")
	if tokens[6] == "" {
		tokens = append(tokens[:6:6], tokens[7])
	}
	return strings.Join(tokens, "-")
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// cleanCandidate drops list bullets and quoting around a candidate string.
func cleanCandidate(s string) string {
	s = util.NormalizeSpaces(s)
	s = strings.TrimLeft(s, "•*>·- \t")
	return strings.Trim(s, `"'`)
}

func isLikelyNoise(line string) bool {
	for _, re := range ignorePatterns {
		if re.MatchString(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}

func dedupeLines(lines []internal.DealLine) []internal.DealLine {
	seen := map[string]struct{}{}
	out := make([]internal.DealLine, 0, len(lines))
	for _, line := range lines {
		if _, exists := seen[line.Text]; exists {
			continue
		}
		seen[line.Text] = struct{}{}
		out = append(out, line)
	}
	return out
}

func pickCell(cells []string, idx int, fallback int) string {
	if idx >= 0 && idx < len(cells) {
		return strings.TrimSpace(cells[idx])
	}
	if fallback >= 0 && fallback < len(cells) {
		return strings.TrimSpace(cells[fallback])
	}
	return ""
}

func normalizeCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		out = append(out, util.NormalizeSpaces(c))
	}
	return out
}
