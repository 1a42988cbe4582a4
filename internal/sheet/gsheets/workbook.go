package gsheets

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"dealdesk/internal/config"
	"dealdesk/internal/sheet"
)

const maxAttempts = 5

// NewService authenticates with a service-account/credentials file when one is
// configured, otherwise with an OAuth client refresh token.
func NewService(ctx context.Context, cfg config.Config) (*sheets.Service, error) {
	httpClient := &http.Client{Timeout: time.Duration(cfg.SheetsTimeoutMs) * time.Millisecond}

	if strings.TrimSpace(cfg.GoogleCredentialsFile) != "" {
		blob, err := os.ReadFile(cfg.GoogleCredentialsFile)
		if err != nil {
			return nil, err
		}
		creds, err := google.CredentialsFromJSON(ctx, blob, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, err
		}
		httpClient.Transport = &oauth2.Transport{Source: creds.TokenSource}
		return sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	}

	if err := cfg.Require("GOOGLE_CLIENT_ID", cfg.GoogleClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("GOOGLE_CLIENT_SECRET", cfg.GoogleClientSecret); err != nil {
		return nil, err
	}
	if err := cfg.Require("GOOGLE_REFRESH_TOKEN", cfg.GoogleRefreshToken); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GoogleRedirectURI,
		Scopes:       []string{sheets.SpreadsheetsScope},
	}
	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GoogleRefreshToken})
	httpClient.Transport = &oauth2.Transport{Source: tokenSource}
	return sheets.NewService(ctx, option.WithHTTPClient(httpClient))
}

// Workbook is one spreadsheet addressed by ID.
type Workbook struct {
	svc           *sheets.Service
	spreadsheetID string
	limiter       *RateLimiter
	backoff       time.Duration
}

func NewWorkbook(svc *sheets.Service, spreadsheetID string, requestsPerSecond int) *Workbook {
	return &Workbook{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		limiter:       NewRateLimiter(requestsPerSecond),
		backoff:       250 * time.Millisecond,
	}
}

func (w *Workbook) Table(name string) (sheet.Table, error) {
	ctx := context.Background()
	titles, err := w.sheetTitles(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := titles[name]; !ok {
		return nil, fmt.Errorf("sheet not found: %s", name)
	}
	return &table{wb: w, name: name}, nil
}

func (w *Workbook) Ensure(ctx context.Context, name string, headers []string) (sheet.Table, error) {
	titles, err := w.sheetTitles(ctx)
	if err != nil {
		return nil, err
	}
	t := &table{wb: w, name: name}
	if _, ok := titles[name]; ok {
		return t, nil
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{Requests: []*sheets.Request{{
		AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: name}},
	}}}
	err = w.do(ctx, func() error {
		_, err := w.svc.Spreadsheets.BatchUpdate(w.spreadsheetID, req).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(headers) > 0 {
		row := make(sheet.Row, len(headers))
		for i, h := range headers {
			row[i] = h
		}
		if err := t.Write(ctx, sheet.Range{Row: 1, Col: 1}, []sheet.Row{row}); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (w *Workbook) Close() error { return nil }

func (w *Workbook) sheetTitles(ctx context.Context) (map[string]struct{}, error) {
	var resp *sheets.Spreadsheet
	err := w.do(ctx, func() error {
		var err error
		resp, err = w.svc.Spreadsheets.Get(w.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	out := map[string]struct{}{}
	for _, s := range resp.Sheets {
		if s != nil && s.Properties != nil {
			out[s.Properties.Title] = struct{}{}
		}
	}
	return out, nil
}

// do rate-limits call and retries it on quota and server errors.
func (w *Workbook) do(ctx context.Context, call func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := w.limiter.WaitTurn(ctx); err != nil {
			return err
		}
		err := call()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == maxAttempts {
			break
		}
		backoff := w.backoff*time.Duration(1<<(attempt-1)) + time.Duration(rand.Intn(100))*time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}

func isRetryable(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// a1 quotes the sheet name: 'Deal Processing'!A3:I10.
func a1(name, ref string) string {
	quoted := "'" + strings.ReplaceAll(name, "'", "''") + "'"
	if ref == "" {
		return quoted
	}
	return quoted + "!" + ref
}

type table struct {
	wb   *Workbook
	name string
}

func (t *table) Name() string { return t.name }

func (t *table) LastRow(ctx context.Context) (int, error) {
	var resp *sheets.ValueRange
	err := t.wb.do(ctx, func() error {
		var err error
		resp, err = t.wb.svc.Spreadsheets.Values.Get(t.wb.spreadsheetID, a1(t.name, "")).
			MajorDimension("ROWS").Context(ctx).Do()
		return err
	})
	if err != nil {
		return 0, err
	}
	return len(resp.Values), nil
}

func (t *table) Read(ctx context.Context, r sheet.Range) ([]sheet.Row, error) {
	ref, err := r.A1()
	if err != nil {
		return nil, err
	}
	var resp *sheets.ValueRange
	err = t.wb.do(ctx, func() error {
		var err error
		resp, err = t.wb.svc.Spreadsheets.Values.Get(t.wb.spreadsheetID, a1(t.name, ref)).
			MajorDimension("ROWS").
			ValueRenderOption("UNFORMATTED_VALUE").
			DateTimeRenderOption("FORMATTED_STRING").
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]sheet.Row, 0, r.Rows)
	for i := 0; i < r.Rows; i++ {
		cells := make(sheet.Row, r.Cols)
		for c := range cells {
			cells[c] = ""
			if i < len(resp.Values) && c < len(resp.Values[i]) && resp.Values[i][c] != nil {
				cells[c] = resp.Values[i][c]
			}
		}
		out = append(out, cells)
	}
	return out, nil
}

func (t *table) Write(ctx context.Context, r sheet.Range, rows []sheet.Row) error {
	if len(rows) == 0 {
		return nil
	}
	cols := 0
	for _, row := range rows {
		if len(row) > cols {
			cols = len(row)
		}
	}
	ref, err := sheet.Range{Row: r.Row, Col: r.Col, Rows: len(rows), Cols: cols}.A1()
	if err != nil {
		return err
	}
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		values[i] = append([]interface{}(nil), row...)
	}
	body := &sheets.ValueRange{MajorDimension: "ROWS", Values: values}

	return t.wb.do(ctx, func() error {
		_, err := t.wb.svc.Spreadsheets.Values.Update(t.wb.spreadsheetID, a1(t.name, ref), body).
			ValueInputOption("USER_ENTERED").Context(ctx).Do()
		return err
	})
}

func (t *table) Clear(ctx context.Context, r sheet.Range) error {
	ref, err := r.A1()
	if err != nil {
		return err
	}
	return t.wb.do(ctx, func() error {
		_, err := t.wb.svc.Spreadsheets.Values.Clear(t.wb.spreadsheetID, a1(t.name, ref), &sheets.ClearValuesRequest{}).
			Context(ctx).Do()
		return err
	})
}
