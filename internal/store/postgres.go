package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/internal/model"
)

// Pool is the subset of *pgxpool.Pool used by PostgresStore. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	total        INTEGER NOT NULL DEFAULT 0,
	succeeded    INTEGER NOT NULL DEFAULT 0,
	skipped      INTEGER NOT NULL DEFAULT 0,
	write_failed INTEGER NOT NULL DEFAULT 0,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS attempts (
	seq        BIGSERIAL PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	company    TEXT NOT NULL,
	domain     TEXT NOT NULL,
	attempt    INTEGER NOT NULL,
	outcome    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lead_results (
	seq         BIGSERIAL PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	company     TEXT NOT NULL,
	domain      TEXT NOT NULL,
	state       TEXT NOT NULL,
	attempts    INTEGER NOT NULL,
	disposition TEXT NOT NULL,
	written     BOOLEAN NOT NULL DEFAULT false,
	write_error TEXT NOT NULL DEFAULT '',
	final       JSONB NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS history_logs (
	seq            BIGSERIAL PRIMARY KEY,
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
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_attempts_run_id ON attempts(run_id);
CREATE INDEX IF NOT EXISTS idx_lead_results_run_id ON lead_results(run_id);
CREATE INDEX IF NOT EXISTS idx_history_logs_created_at ON history_logs(created_at);
CREATE INDEX IF NOT EXISTS idx_history_logs_domain ON history_logs(domain);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = model.RunStatusRunning
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, total, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, string(run.Status), run.Total, run.StartedAt,
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *model.Run) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, total = $2, succeeded = $3, skipped = $4, write_failed = $5, finished_at = $6 WHERE id = $7`,
		string(run.Status), run.Total, run.Succeeded, run.Skipped, run.WriteFailed, run.FinishedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, runID)
	r, err := scanPgRun(row)
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

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT $1`,
		limitOr(limit, 100),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) RecordAttempt(ctx context.Context, runID string, a model.Attempt) error {
	outcome, err := json.Marshal(a.Outcome)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal outcome")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO attempts (run_id, company, domain, attempt, outcome, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		runID, a.Lead.Company, a.Lead.Domain, a.Number, outcome, a.At,
	)
	return eris.Wrapf(err, "postgres: insert attempt for run %s", runID)
}

func (s *PostgresStore) listAttempts(ctx context.Context, runID string) ([]model.Attempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT company, domain, attempt, outcome, created_at FROM attempts WHERE run_id = $1 ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list attempts")
	}
	defer rows.Close()

	var out []model.Attempt
	for rows.Next() {
		var a model.Attempt
		var outcome []byte
		if err := rows.Scan(&a.Lead.Company, &a.Lead.Domain, &a.Number, &outcome, &a.At); err != nil {
			return nil, eris.Wrap(err, "postgres: scan attempt")
		}
		if err := json.Unmarshal(outcome, &a.Outcome); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal outcome")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list attempts iterate")
}

func (s *PostgresStore) RecordResult(ctx context.Context, runID string, r model.LeadResult) error {
	final, err := json.Marshal(r.Final)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal final outcome")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO lead_results (run_id, company, domain, state, attempts, disposition, written, write_error, final, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		runID, r.Lead.Company, r.Lead.Domain, string(r.State), r.Attempts, string(r.Disposition),
		r.Written, r.WriteError, final, r.FinishedAt,
	)
	return eris.Wrapf(err, "postgres: insert result for run %s", runID)
}

func (s *PostgresStore) ListResults(ctx context.Context, runID string) ([]model.LeadResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT company, domain, state, attempts, disposition, written, write_error, final, finished_at
		 FROM lead_results WHERE run_id = $1 ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list results")
	}
	defer rows.Close()

	var out []model.LeadResult
	for rows.Next() {
		var r model.LeadResult
		var state, disposition string
		var final []byte
		if err := rows.Scan(&r.Lead.Company, &r.Lead.Domain, &state, &r.Attempts, &disposition,
			&r.Written, &r.WriteError, &final, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		r.State = model.LeadState(state)
		r.Disposition = model.Disposition(disposition)
		if err := json.Unmarshal(final, &r.Final); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal final outcome")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list results iterate")
}

func (s *PostgresStore) InsertHistory(ctx context.Context, h *model.HistoryLog) error {
	prepareHistory(h)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO history_logs (id, company_name, domain, agent, disposition, remarks, headquarters, run_id, screenshot_url, google_query, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		h.ID, h.CompanyName, h.Domain, h.Agent, h.Disposition, h.Remarks, h.Headquarters,
		h.RunID, h.ScreenshotURL, h.GoogleQuery, h.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert history")
}

func (s *PostgresStore) ListHistory(ctx context.Context, limit int) ([]model.HistoryLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company_name, domain, agent, disposition, remarks, headquarters, run_id, screenshot_url, google_query, created_at
		 FROM history_logs ORDER BY created_at DESC, seq DESC LIMIT $1`,
		limitOr(limit, DefaultHistoryLimit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list history")
	}
	defer rows.Close()

	var out []model.HistoryLog
	for rows.Next() {
		var h model.HistoryLog
		if err := rows.Scan(&h.ID, &h.CompanyName, &h.Domain, &h.Agent, &h.Disposition, &h.Remarks,
			&h.Headquarters, &h.RunID, &h.ScreenshotURL, &h.GoogleQuery, &h.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history")
		}
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list history iterate")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	err := row.Scan(&r.ID, &status, &r.Total, &r.Succeeded, &r.Skipped, &r.WriteFailed, &r.StartedAt, &r.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get run")
	}
	r.Status = model.RunStatus(status)
	return &r, nil
}
