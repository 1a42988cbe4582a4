package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"dealdesk/internal"
)

type DB struct {
	conn *sql.DB
	now  func() time.Time
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn, now: time.Now}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  status TEXT NOT NULL,
  startedAt TEXT NOT NULL,
  finishedAt TEXT,
  scanned INTEGER NOT NULL DEFAULT 0,
  transferred INTEGER NOT NULL DEFAULT 0,
  skipped INTEGER NOT NULL DEFAULT 0,
  invalid INTEGER NOT NULL DEFAULT 0,
  added INTEGER NOT NULL DEFAULT 0,
  ledgerFrom INTEGER NOT NULL DEFAULT 0,
  ledgerTo INTEGER NOT NULL DEFAULT 0,
  intakeFrom INTEGER NOT NULL DEFAULT 0,
  intakeTo INTEGER NOT NULL DEFAULT 0,
  error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_startedAt ON runs(startedAt);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

CREATE TABLE IF NOT EXISTS imports (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  source TEXT NOT NULL,
  hash TEXT NOT NULL UNIQUE,
  lines INTEGER NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) timestamp() string {
	return d.now().UTC().Format(time.RFC3339)
}

// StartRun inserts a running journal entry with a fresh ID.
func (d *DB) StartRun(kind internal.RunKind) (internal.RunRecord, error) {
	run := internal.RunRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    internal.RunRunning,
		StartedAt: d.timestamp(),
	}
	_, err := d.conn.Exec(`INSERT INTO runs (id, kind, status, startedAt) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Kind), string(run.Status), run.StartedAt)
	if err != nil {
		return internal.RunRecord{}, err
	}
	return run, nil
}

// FinishRun stores the final counters, ranges and status of run.
func (d *DB) FinishRun(run internal.RunRecord) error {
	if run.FinishedAt == "" {
		run.FinishedAt = d.timestamp()
	}
	res, err := d.conn.Exec(`
UPDATE runs SET
  status = ?, finishedAt = ?,
  scanned = ?, transferred = ?, skipped = ?, invalid = ?, added = ?,
  ledgerFrom = ?, ledgerTo = ?, intakeFrom = ?, intakeTo = ?,
  error = ?
WHERE id = ?
`, string(run.Status), run.FinishedAt,
		run.Scanned, run.Transferred, run.Skipped, run.Invalid, run.Added,
		run.LedgerRows.From, run.LedgerRows.To, run.IntakeRows.From, run.IntakeRows.To,
		run.Error, run.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", run.ID)
	}
	return nil
}

const runColumns = `id, kind, status, startedAt, COALESCE(finishedAt, ''),
  scanned, transferred, skipped, invalid, added,
  ledgerFrom, ledgerTo, intakeFrom, intakeTo, error`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (internal.RunRecord, error) {
	var run internal.RunRecord
	var kind, status string
	err := row.Scan(
		&run.ID, &kind, &status, &run.StartedAt, &run.FinishedAt,
		&run.Scanned, &run.Transferred, &run.Skipped, &run.Invalid, &run.Added,
		&run.LedgerRows.From, &run.LedgerRows.To, &run.IntakeRows.From, &run.IntakeRows.To, &run.Error,
	)
	run.Kind = internal.RunKind(kind)
	run.Status = internal.RunStatus(status)
	return run, err
}

func (d *DB) GetRun(id string) (*internal.RunRecord, error) {
	run, err := scanRun(d.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the newest runs first.
func (d *DB) ListRuns(limit int) ([]internal.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.Query(`SELECT `+runColumns+` FROM runs ORDER BY startedAt DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// ListUnresolved returns failed transfer runs that left intake rows behind.
func (d *DB) ListUnresolved() ([]internal.RunRecord, error) {
	rows, err := d.conn.Query(`SELECT `+runColumns+` FROM runs
WHERE kind = ? AND status = ? AND intakeFrom > 0
ORDER BY startedAt ASC, rowid ASC`, string(internal.RunTransfer), string(internal.RunFailed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (d *DB) MarkRunResolved(id string) error {
	res, err := d.conn.Exec(`UPDATE runs SET status = ?, finishedAt = ? WHERE id = ? AND status = ?`,
		string(internal.RunResolved), d.timestamp(), id, string(internal.RunFailed))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no failed run with id %s", id)
	}
	return nil
}

// RecordImport stores a file hash once. inserted is false when the same
// content was imported before; the earlier row is returned then.
func (d *DB) RecordImport(source, hash string, lines int) (row internal.ImportRow, inserted bool, err error) {
	res, err := d.conn.Exec(`
INSERT INTO imports (source, hash, lines) VALUES (?, ?, ?)
ON CONFLICT(hash) DO NOTHING
`, source, hash, lines)
	if err != nil {
		return internal.ImportRow{}, false, err
	}
	n, _ := res.RowsAffected()

	existing, err := d.GetImportByHash(hash)
	if err != nil {
		return internal.ImportRow{}, false, err
	}
	if existing == nil {
		return internal.ImportRow{}, false, errors.New("failed to record import")
	}
	return *existing, n > 0, nil
}

func (d *DB) GetImportByHash(hash string) (*internal.ImportRow, error) {
	var row internal.ImportRow
	err := d.conn.QueryRow(`SELECT id, source, hash, lines, createdAt FROM imports WHERE hash = ?`, hash).
		Scan(&row.ID, &row.Source, &row.Hash, &row.Lines, &row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) DeleteImport(hash string) error {
	_, err := d.conn.Exec(`DELETE FROM imports WHERE hash = ?`, hash)
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
