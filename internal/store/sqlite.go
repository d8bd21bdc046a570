package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-enricher/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer; WAL lets the serve command read while a run writes.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	total        INTEGER NOT NULL DEFAULT 0,
	succeeded    INTEGER NOT NULL DEFAULT 0,
	skipped      INTEGER NOT NULL DEFAULT 0,
	write_failed INTEGER NOT NULL DEFAULT 0,
	started_at   DATETIME NOT NULL,
	finished_at  DATETIME
);

CREATE TABLE IF NOT EXISTS attempts (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	company    TEXT NOT NULL,
	domain     TEXT NOT NULL,
	attempt    INTEGER NOT NULL,
	outcome    TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS lead_results (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	company     TEXT NOT NULL,
	domain      TEXT NOT NULL,
	state       TEXT NOT NULL,
	attempts    INTEGER NOT NULL,
	disposition TEXT NOT NULL,
	written     INTEGER NOT NULL DEFAULT 0,
	write_error TEXT NOT NULL DEFAULT '',
	final       TEXT NOT NULL,
	finished_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS history_logs (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	id             TEXT NOT NULL UNIQUE,
	company_name   TEXT NOT NULL DEFAULT '',
	domain         TEXT NOT NULL,
	agent          TEXT NOT NULL DEFAULT '',
	disposition    TEXT NOT NULL DEFAULT '',
	remarks        TEXT NOT NULL DEFAULT '',
	headquarters   TEXT NOT NULL DEFAULT '',
	run_id         TEXT NOT NULL DEFAULT '',
	screenshot_url TEXT NOT NULL DEFAULT '',
	google_query   TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_attempts_run_id ON attempts(run_id);
CREATE INDEX IF NOT EXISTS idx_lead_results_run_id ON lead_results(run_id);
CREATE INDEX IF NOT EXISTS idx_history_logs_created_at ON history_logs(created_at);
CREATE INDEX IF NOT EXISTS idx_history_logs_domain ON history_logs(domain);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = model.RunStatusRunning
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, total, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Status), run.Total, run.StartedAt,
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.Run) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, total = ?, succeeded = ?, skipped = ?, write_failed = ?, finished_at = ? WHERE id = ?`,
		string(run.Status), run.Total, run.Succeeded, run.Skipped, run.WriteFailed, nullTime(run.FinishedAt), run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", run.ID)
	}
	return checkRowsAffected(res, "run", run.ID)
}

const runColumns = `id, status, total, succeeded, skipped, write_failed, started_at, finished_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if err != nil {
		return nil, err
	}

	if r.Attempts, err = s.listAttempts(ctx, runID); err != nil {
		return nil, err
	}
	if r.Results, err = s.ListResults(ctx, runID); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`,
		limitOr(limit, 100),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer func() { _ = rows.Close() }()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) RecordAttempt(ctx context.Context, runID string, a model.Attempt) error {
	outcome, err := json.Marshal(a.Outcome)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal outcome")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO attempts (run_id, company, domain, attempt, outcome, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, a.Lead.Company, a.Lead.Domain, a.Number, string(outcome), a.At,
	)
	return eris.Wrapf(err, "sqlite: insert attempt for run %s", runID)
}

func (s *SQLiteStore) listAttempts(ctx context.Context, runID string) ([]model.Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT company, domain, attempt, outcome, created_at FROM attempts WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list attempts")
	}
	defer func() { _ = rows.Close() }()

	var out []model.Attempt
	for rows.Next() {
		var a model.Attempt
		var outcome string
		if err := rows.Scan(&a.Lead.Company, &a.Lead.Domain, &a.Number, &outcome, &a.At); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan attempt")
		}
		if err := json.Unmarshal([]byte(outcome), &a.Outcome); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal outcome")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list attempts iterate")
}

func (s *SQLiteStore) RecordResult(ctx context.Context, runID string, r model.LeadResult) error {
	final, err := json.Marshal(r.Final)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal final outcome")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lead_results (run_id, company, domain, state, attempts, disposition, written, write_error, final, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, r.Lead.Company, r.Lead.Domain, string(r.State), r.Attempts, string(r.Disposition),
		r.Written, r.WriteError, string(final), r.FinishedAt,
	)
	return eris.Wrapf(err, "sqlite: insert result for run %s", runID)
}

func (s *SQLiteStore) ListResults(ctx context.Context, runID string) ([]model.LeadResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT company, domain, state, attempts, disposition, written, write_error, final, finished_at
		 FROM lead_results WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list results")
	}
	defer func() { _ = rows.Close() }()

	var out []model.LeadResult
	for rows.Next() {
		var r model.LeadResult
		var final string
		if err := rows.Scan(&r.Lead.Company, &r.Lead.Domain, &r.State, &r.Attempts, &r.Disposition,
			&r.Written, &r.WriteError, &final, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		if err := json.Unmarshal([]byte(final), &r.Final); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal final outcome")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list results iterate")
}

func (s *SQLiteStore) InsertHistory(ctx context.Context, h *model.HistoryLog) error {
	prepareHistory(h)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history_logs (id, company_name, domain, agent, disposition, remarks, headquarters, run_id, screenshot_url, google_query, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.CompanyName, h.Domain, h.Agent, h.Disposition, h.Remarks, h.Headquarters,
		h.RunID, h.ScreenshotURL, h.GoogleQuery, h.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert history")
}

func (s *SQLiteStore) ListHistory(ctx context.Context, limit int) ([]model.HistoryLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_name, domain, agent, disposition, remarks, headquarters, run_id, screenshot_url, google_query, created_at
		 FROM history_logs ORDER BY created_at DESC, seq DESC LIMIT ?`,
		limitOr(limit, DefaultHistoryLimit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list history")
	}
	defer func() { _ = rows.Close() }()

	var out []model.HistoryLog
	for rows.Next() {
		var h model.HistoryLog
		if err := rows.Scan(&h.ID, &h.CompanyName, &h.Domain, &h.Agent, &h.Disposition, &h.Remarks,
			&h.Headquarters, &h.RunID, &h.ScreenshotURL, &h.GoogleQuery, &h.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history")
		}
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list history iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var finished sql.NullTime
	err := row.Scan(&r.ID, &r.Status, &r.Total, &r.Succeeded, &r.Skipped, &r.WriteFailed, &r.StartedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// prepareHistory assigns an id and timestamp to a new entry.
func prepareHistory(h *model.HistoryLog) {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
}
