package dealkey

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealdesk/internal"
	dealerrors "dealdesk/internal/errors"
)

func TestEncode(t *testing.T) {
	day := time.Date(2024, 3, 1, 15, 4, 0, 0, time.UTC)

	cases := []struct {
		name    string
		geo     string
		partner string
		want    string
	}{
		{name: "plain", geo: "US", partner: "Acme", want: "US-Acme-01032024"},
		{name: "geo lowercased and padded", geo: " us ", partner: "Acme", want: "US-Acme-01032024"},
		{name: "partner inner spaces", geo: "de", partner: "Big  Media Ltd", want: "DE-BigMediaLtd-01032024"},
		{name: "dash kept", geo: "UK", partner: "Ad-Co", want: "UK-Ad-Co-01032024"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Encode(tc.geo, tc.partner, day)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEncodeIsDeterministicPerDay(t *testing.T) {
	morning := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC)

	a, err := Encode("US", "Acme", morning)
	require.NoError(t, err)
	b, err := Encode("US", "Acme", evening)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncodeRequiresGeoAndPartner(t *testing.T) {
	_, err := Encode("  ", "Acme", time.Now())
	assert.True(t, dealerrors.IsCode(err, dealerrors.CodeMissingRequiredField))

	_, err = Encode("US", "", time.Now())
	assert.True(t, dealerrors.IsCode(err, dealerrors.CodeMissingRequiredField))
}

func TestDecode(t *testing.T) {
	got, err := Decode("PartnerX-US-EN-Display-10-5-FunnelA-FunnelB-8")
	require.NoError(t, err)

	assert.Equal(t, internal.DealFields{
		Partner:  "PartnerX",
		Geo:      "US",
		Language: "EN",
		Source:   "Display",
		CPA:      "10",
		CRG:      0.05,
		Funnels:  "FunnelA-FunnelB",
		CR:       "8",
	}, got)
}

func TestDecodeTrimsTokens(t *testing.T) {
	got, err := Decode(" Acme - DE - DE - Search - 1200 - 7.5 - Crypto Pro - 9% ")
	require.NoError(t, err)

	assert.Equal(t, "Acme", got.Partner)
	assert.Equal(t, "DE", got.Geo)
	assert.Equal(t, "1200", got.CPA)
	assert.Equal(t, 0.075, got.CRG)
	assert.Equal(t, "Crypto Pro", got.Funnels)
	assert.Equal(t, "9%", got.CR)
}

func TestDecodeRoundTripsFunnelWithDelimiter(t *testing.T) {
	funnels := []string{
		"FunnelA",
		"FunnelA-FunnelB",
		"Quantum-AI - v2-EU",
		"a--b",
		"[Bitcoin Era-Lite, Immediate-Edge]",
	}

	for _, funnel := range funnels {
		t.Run(funnel, func(t *testing.T) {
			composite := strings.Join([]string{"Acme", "US", "EN", "Display", "10", "5", funnel, "8"}, Separator)
			got, err := Decode(composite)
			require.NoError(t, err)
			assert.Equal(t, funnel, got.Funnels)
			assert.Equal(t, "8", got.CR)
			assert.Equal(t, "Acme", got.Partner)
		})
	}
}

func TestDecodeWithoutFunnel(t *testing.T) {
	got, err := Decode("Acme-US-EN-Display-10-5-8")
	require.NoError(t, err)
	assert.Empty(t, got.Funnels)
	assert.Equal(t, "8", got.CR)
}

func TestDecodeInvalid(t *testing.T) {
	cases := []string{
		"",
		"Acme-US-EN",
		"Acme-US-EN-Display-10-5",
		"Acme-US-EN-Display-10-five-Funnel-8",
		"-US-EN-Display-10-5-Funnel-8",
	}
	for _, input := range cases {
		t.Run(input, func(t *testing.T) {
			_, err := Decode(input)
			require.Error(t, err)
			assert.Equal(t, dealerrors.CodeInvalidFormat, dealerrors.CodeOf(err))
			assert.True(t, dealerrors.MetadataFor(dealerrors.CodeOf(err)).RowScoped)
		})
	}
}

func TestDecodeChannelNormalization(t *testing.T) {
	cases := []struct {
		name         string
		input        string
		wantLanguage string
		wantSource   string
	}{
		{name: "fb in language", input: "Acme-US-fb-Display-10-5-F-8", wantLanguage: "Native", wantSource: "Facebook"},
		{name: "FB upper in language", input: "Acme-US-FB-Display-10-5-F-8", wantLanguage: "Native", wantSource: "Facebook"},
		{name: "google in language", input: "Acme-US-Google-Display-10-5-F-8", wantLanguage: "Native", wantSource: "Google"},
		{name: "fb as source", input: "Acme-US-EN-fb-10-5-F-8", wantLanguage: "EN", wantSource: "Facebook"},
		{name: "untouched", input: "Acme-US-EN-Native-10-5-F-8", wantLanguage: "EN", wantSource: "Native"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.wantLanguage, got.Language)
			assert.Equal(t, tc.wantSource, got.Source)
		})
	}
}

func TestSplitFixed(t *testing.T) {
	head, middle, tail, err := SplitFixed("a|b|c|d|e", "|", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, head)
	assert.Equal(t, "b|c", middle)
	assert.Equal(t, []string{"d", "e"}, tail)

	head, middle, tail, err = SplitFixed("a|b", "|", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, head)
	assert.Empty(t, middle)
	assert.Equal(t, []string{"b"}, tail)

	_, _, _, err = SplitFixed("a|b", "|", 2, 1)
	assert.True(t, dealerrors.IsCode(err, dealerrors.CodeInvalidFormat))

	_, _, _, err = SplitFixed("a", "", 0, 0)
	assert.True(t, dealerrors.IsCode(err, dealerrors.CodeInternal))
}
