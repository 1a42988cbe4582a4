package util

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePercent converts a percentage-like string ("5", "5%", "5.5", "5,5") into a
// fraction (0.05, 0.05, 0.055, 0.055).
func ParsePercent(input string) (float64, error) {
	token := strings.TrimSpace(strings.ReplaceAll(input, "\u00a0", " "))
	token = strings.TrimSpace(strings.TrimSuffix(token, "%"))
	token = strings.ReplaceAll(token, " ", "")
	if strings.Contains(token, ",") && !strings.Contains(token, ".") {
		token = strings.ReplaceAll(token, ",", ".")
	}
	if token == "" {
		return 0, fmt.Errorf("empty percentage")
	}

	value, err := decimal.NewFromString(token)
	if err != nil {
		return 0, fmt.Errorf("not a percentage: %q", input)
	}
	fraction, _ := value.Shift(-2).Float64()
	return fraction, nil
}

// CellFraction reads a crg-like cell: numbers are already fractions, strings
// with a percent sign are percentages, other strings are parsed as-is.
func CellFraction(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if strings.HasSuffix(s, "%") {
			f, err := ParsePercent(s)
			return f, err == nil
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
