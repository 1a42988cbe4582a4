package pipeline

import (
	"strings"
	"testing"
)

func TestParseHTMLTableStructured(t *testing.T) {
	html := `<table>
<tr><th>Partner</th><th>Geo</th><th>Language</th><th>Source</th><th>CPA</th><th>CRG</th><th>Funnels</th><th>CR</th></tr>
<tr><td>Acme</td><td>US</td><td>EN</td><td>Display</td><td>1200</td><td>5%</td><td>Alpha, Beta</td><td>8</td></tr>
<tr><td></td><td>DE</td><td>EN</td><td>SEO</td><td>900</td><td>4</td><td>Gamma</td><td>2</td></tr>
</table>`
	lines := parseHTMLTables(html)
	if len(lines) != 1 {
		t.Fatalf("len=%d lines=%+v", len(lines), lines)
	}
	if lines[0].Text != "Acme-US-EN-Display-1200-5-Alpha, Beta-8" {
		t.Fatalf("text=%q", lines[0].Text)
	}
}

func TestParseHTMLTableWithoutHeaderScansCells(t *testing.T) {
	html := `<table><tr><td>New</td><td>PartnerX-US-EN-Display-10-5-FunnelA-8</td></tr><tr><td>old</td><td>nothing here</td></tr></table>`
	lines := parseHTMLTables(html)
	if len(lines) != 1 {
		t.Fatalf("len=%d", len(lines))
	}
	if !strings.HasPrefix(lines[0].Text, "PartnerX-US") {
		t.Fatalf("text=%q", lines[0].Text)
	}
}

func TestExtractDealLinesFromEmail(t *testing.T) {
	raw := strings.Join([]string{
		"From: Deals Desk <deals@example.com>",
		"To: ops@example.com",
		"Subject: New deals",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"PartnerX-US-EN-Display-10-5-FunnelA-FunnelB-8",
		"",
		"--b1",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<table><tr><th>Partner</th><th>Geo</th><th>Language</th><th>Source</th><th>CPA</th><th>CRG</th><th>Funnel</th><th>CR</th></tr>",
		"<tr><td>Acme</td><td>DE</td><td>EN</td><td>SEO</td><td>800</td><td>4</td><td>Alpha</td><td>2</td></tr></table>",
		"",
		"--b1--",
		"",
	}, "\r\n")

	lines, err := ExtractDealLines("deals.eml", []byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("len=%d lines=%+v", len(lines), lines)
	}
	if lines[1].Text != "Acme-DE-EN-SEO-800-4-Alpha-2" {
		t.Fatalf("text=%q", lines[1].Text)
	}
}
