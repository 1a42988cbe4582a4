package pipeline

import (
	"regexp"
	"strings"

	"dealdesk/internal/dealkey"
)

type DetectResult struct {
	IsDeal bool
	Score  float64
	Reason string
}

var (
	reGeoToken   = regexp.MustCompile(`^[A-Za-z]{2,3}$`)
	reHasDigit   = regexp.MustCompile(`\d`)
	reWordy      = regexp.MustCompile(`\s\S+\s\S+\s`)
	reURLOrEmail = regexp.MustCompile(`(?i)(https?://|www\.|\S+@\S+\.\S+)`)
)

// LooksLikeCompositeDeal scores a free-text line. It must decode as a composite
// deal string; the score then weighs how plausible the decoded tokens are.
func LooksLikeCompositeDeal(line string) DetectResult {
	line = strings.TrimSpace(line)
	if line == "" || isLikelyNoise(line) || reURLOrEmail.MatchString(line) {
		return DetectResult{Reason: "noise"}
	}

	fields, err := dealkey.Decode(line)
	if err != nil {
		return DetectResult{Reason: "not_composite"}
	}

	score := 0.3
	if reGeoToken.MatchString(fields.Geo) {
		score += 0.25
	}
	if reHasDigit.MatchString(fields.CPA) {
		score += 0.2
	}
	if fields.CRG > 0 && fields.CRG <= 1 {
		score += 0.15
	}
	if fields.Funnels != "" {
		score += 0.1
	}
	if reWordy.MatchString(" " + fields.Partner + " ") {
		score -= 0.3
	}
	if score > 1 {
		score = 1
	}

	isDeal := score >= 0.6
	reason := "rules_negative"
	if isDeal {
		reason = "rules_positive"
	}
	return DetectResult{IsDeal: isDeal, Score: score, Reason: reason}
}
