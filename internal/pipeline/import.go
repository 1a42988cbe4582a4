package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"dealdesk/internal"
	dealerrors "dealdesk/internal/errors"
	"dealdesk/internal/logger"
	"dealdesk/internal/sheet"
)

// ImportStore remembers imported file hashes. *storage.DB implements it.
type ImportStore interface {
	GetImportByHash(hash string) (*internal.ImportRow, error)
	RecordImport(source, hash string, lines int) (internal.ImportRow, bool, error)
}

// ImportService appends composite deal strings found in files to intake
// column A and expands them.
type ImportService struct {
	Store      ImportStore
	Intake     sheet.Table
	StartRow   int
	Expander   *Expander
	ArchiveDir string
	Journal    Journal
	Log        *logger.Logger
}

type ImportResult struct {
	RunID      string            `json:"runId,omitempty"`
	Source     string            `json:"source"`
	Hash       string            `json:"hash"`
	Lines      int               `json:"lines"`
	Duplicate  bool              `json:"duplicate"`
	IntakeRows internal.RowRange `json:"intakeRows"`
	Expand     *ExpandResult     `json:"expand,omitempty"`
}

func (s *ImportService) ImportFile(ctx context.Context, path string) (ImportResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ImportResult{}, err
	}
	return s.Import(ctx, filepath.Base(path), raw)
}

// Import handles one file's content. The same content is imported only once.
func (s *ImportService) Import(ctx context.Context, name string, raw []byte) (ImportResult, error) {
	log := orNop(s.Log)
	run, ctx := beginRun(ctx, s.Journal, log, internal.RunImport)

	res, err := s.importContent(ctx, log, name, raw)
	res.RunID = run.ID
	run.Scanned = res.Lines
	if !res.Duplicate {
		run.Transferred = res.IntakeRows.Len()
	}
	finishRun(ctx, s.Journal, log, run, err)
	return res, err
}

func (s *ImportService) importContent(ctx context.Context, log *logger.Logger, name string, raw []byte) (ImportResult, error) {
	hashBytes := sha256.Sum256(raw)
	res := ImportResult{Source: name, Hash: hex.EncodeToString(hashBytes[:])}

	if s.Store != nil {
		existing, err := s.Store.GetImportByHash(res.Hash)
		if err != nil {
			return res, dealerrors.Wrap(dealerrors.CodeStorage, err, "look up import")
		}
		if existing != nil {
			res.Duplicate = true
			res.Lines = existing.Lines
			log.Info(ctx, "file already imported", map[string]any{"source": name, "hash": res.Hash, "first": existing.Source})
			return res, nil
		}
	}

	lines, err := ExtractDealLines(name, raw)
	if err != nil {
		return res, dealerrors.Wrap(dealerrors.CodeInvalidFormat, err, "extract deal lines")
	}
	res.Lines = len(lines)

	if len(lines) > 0 {
		at, err := s.nextIntakeRow(ctx)
		if err != nil {
			return res, dealerrors.Wrap(dealerrors.CodeStorage, err, "read intake")
		}
		column := make([]sheet.Row, len(lines))
		for i, line := range lines {
			column[i] = sheet.Row{line.Text}
		}
		if err := s.Intake.Write(ctx, sheet.Range{Row: at, Col: 1}, column); err != nil {
			return res, dealerrors.Wrap(dealerrors.CodeStorage, err, "append intake rows")
		}
		res.IntakeRows = internal.RowRange{From: at, To: at + len(lines) - 1}
	}

	if s.ArchiveDir != "" {
		if err := archive(s.ArchiveDir, res.Hash, name, raw); err != nil {
			log.Warn(ctx, "archive import", map[string]any{"source": name, "error": err.Error()})
		}
	}
	if s.Store != nil {
		if _, _, err := s.Store.RecordImport(name, res.Hash, res.Lines); err != nil {
			return res, dealerrors.Wrap(dealerrors.CodeStorage, err, "record import")
		}
	}

	log.Info(ctx, "file imported", map[string]any{"source": name, "lines": res.Lines, "intakeFrom": res.IntakeRows.From})

	if s.Expander != nil && res.Lines > 0 {
		expanded, err := s.Expander.Run(ctx)
		if err != nil {
			return res, err
		}
		res.Expand = &expanded
	}
	return res, nil
}

// nextIntakeRow is the row after the last intake row with any value.
func (s *ImportService) nextIntakeRow(ctx context.Context) (int, error) {
	rows, err := sheet.ReadFrom(ctx, s.Intake, s.StartRow, 1, internal.IntakeColumns)
	if err != nil {
		return 0, err
	}
	return s.StartRow + lastNonEmptyRow(rows), nil
}

func archive(dir, hash, name string, raw []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	ext := strings.ToLower(filepath.Ext(name))
	path := filepath.Join(dir, hash+ext)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.WriteFile(path, raw, 0o644)
	}
	return nil
}
