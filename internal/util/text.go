package util

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var reSpaces = regexp.MustCompile(`\s+`)

// StripWhitespace removes every whitespace rune, not only the ends.
func StripWhitespace(input string) string {
	return reSpaces.ReplaceAllString(input, "")
}

func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// CellString renders a table cell value the way a spreadsheet would display it.
func CellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format("2006-01-02")
	default:
		return ""
	}
}

func IsBlankCell(v any) bool {
	return strings.TrimSpace(CellString(v)) == ""
}

// IsBlankRow reports whether every cell of row is blank.
func IsBlankRow(row []any) bool {
	for _, cell := range row {
		if !IsBlankCell(cell) {
			return false
		}
	}
	return true
}

// UniqueOrdered drops empty and repeated values, keeping the first occurrence order.
func UniqueOrdered(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
