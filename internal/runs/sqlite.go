package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

const runsSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	thread_id     TEXT NOT NULL,
	project_id    TEXT NOT NULL,
	status        TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMP NOT NULL,
	completed_at  TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project_id);
`

// SQLiteStore persists runs in SQLite. Terminal-status monotonicity is
// enforced in the UPDATE predicate, so concurrent writers cannot overwrite
// a terminal status.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) a SQLite-backed run store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(runsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate runs schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// NewSQLiteStore wraps an existing database handle, migrating the runs
// schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(runsSchema); err != nil {
		return nil, fmt.Errorf("migrate runs schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Create(ctx context.Context, run *models.Run) error {
	if run == nil {
		return errors.New("run is required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = models.RunStatusRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, thread_id, project_id, status, error_message, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ThreadID, run.ProjectID, string(run.Status), run.ErrorMessage, run.StartedAt, run.CompletedAt,
	)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, thread_id, project_id, status, error_message, started_at, completed_at
		FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status models.RunStatus, errorMessage string) error {
	var completedAt any
	if status.Terminal() {
		completedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, error_message = ?, completed_at = COALESCE(?, completed_at)
		WHERE id = ? AND status NOT IN ('completed', 'failed', 'stopped')`,
		string(status), errorMessage, completedAt, id,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyTerminal
	}
	return nil
}

func (s *SQLiteStore) ListByProject(ctx context.Context, projectID string) ([]*models.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, project_id, status, error_message, started_at, completed_at
		FROM runs WHERE project_id = ? ORDER BY started_at`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var run models.Run
	var status string
	var completedAt sql.NullTime
	err := row.Scan(&run.ID, &run.ThreadID, &run.ProjectID, &status, &run.ErrorMessage, &run.StartedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	run.Status = models.RunStatus(status)
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return &run, nil
}
