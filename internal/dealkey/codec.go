// Package dealkey builds canonical deal IDs and parses the free-text composite
// deal strings typed into the intake table.
//
// A composite string is "-"-delimited: partner, geo, language, source, cpa, crg,
// one or more funnel segments, cr. The funnel may itself contain "-", so decoding
// takes a fixed head of six tokens, a fixed tail of one token and rejoins whatever
// is left in between.
package dealkey

import (
	"strings"
	"time"

	"dealdesk/internal"
	dealerrors "dealdesk/internal/errors"
	"dealdesk/internal/util"
)

const (
	Separator = "-"

	// IDDateLayout is ddMMyyyy.
	IDDateLayout = "02012006"

	headTokens = 6
	tailTokens = 1
)

// Encode returns GEO-Partner-ddMMyyyy. Whitespace is stripped from geo and
// partner, geo is upper-cased. A "-" inside geo or partner is kept as is, which
// makes the ID ambiguous to split; IDs are never decoded, so this is accepted.
func Encode(geo, partner string, date time.Time) (string, error) {
	g := strings.ToUpper(util.StripWhitespace(geo))
	p := util.StripWhitespace(partner)
	if g == "" || p == "" {
		return "", dealerrors.New(dealerrors.CodeMissingRequiredField, "geo and partner are required for a deal id")
	}
	return strings.Join([]string{g, p, date.Format(IDDateLayout)}, Separator), nil
}

// Decode parses a composite deal string into structured fields.
func Decode(composite string) (internal.DealFields, error) {
	head, funnels, tail, err := SplitFixed(strings.TrimSpace(composite), Separator, headTokens, tailTokens)
	if err != nil {
		return internal.DealFields{}, err
	}

	crg, err := util.ParsePercent(head[5])
	if err != nil {
		return internal.DealFields{}, dealerrors.Wrap(dealerrors.CodeInvalidFormat, err, "crg is not a percentage")
	}

	fields := internal.DealFields{
		Partner:  head[0],
		Geo:      head[1],
		Language: head[2],
		Source:   head[3],
		CPA:      head[4],
		CRG:      crg,
		Funnels:  strings.TrimSpace(funnels),
		CR:       tail[0],
	}
	if fields.Partner == "" {
		return internal.DealFields{}, dealerrors.New(dealerrors.CodeInvalidFormat, "partner token is empty")
	}
	return NormalizeChannel(fields), nil
}

// NormalizeChannel fixes a traffic channel typed into the language slot:
// "fb"/"google" become the source and the language becomes "Native"; a source of
// "fb" is spelled out as "Facebook".
func NormalizeChannel(fields internal.DealFields) internal.DealFields {
	switch strings.ToLower(fields.Language) {
	case "fb", "google":
		fields.Source = fields.Language
		fields.Language = "Native"
	}
	if strings.EqualFold(fields.Source, "fb") {
		fields.Source = "Facebook"
	}
	return fields
}
