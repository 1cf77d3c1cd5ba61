// Package history keeps an operational ledger of pipeline runs in SQLite:
// when each run happened, how it ended, and how every source fared. It is
// not an item store; articles live only in the committed snapshot.
package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Custom errors for ledger operations
var (
	ErrRunNotFound  = errors.New("run not found")
	ErrDuplicateRun = errors.New("run already recorded")
)

// Store records runs using SQLite.
type Store struct {
	db *sql.DB
}

// Run is one recorded pipeline run.
type Run struct {
	RunID      uuid.UUID   `json:"run_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	State      string      `json:"state"` // terminal state: Done or Aborted
	ExitCode   int         `json:"exit_code"`
	Code       string      `json:"code,omitempty"` // failure code when aborted
	ItemCount  int         `json:"item_count"`
	Written    bool        `json:"written"`
	Sources    []SourceRun `json:"sources"`
}

// SourceRun is how one source fared in a run.
type SourceRun struct {
	SourceID  string   `json:"source_id"`
	ItemCount int      `json:"item_count"`
	Degraded  bool     `json:"degraded"`
	Errors    []string `json:"errors"`
}

// NewStore opens (or creates) the ledger at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		state TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		code TEXT,
		item_count INTEGER NOT NULL DEFAULT 0,
		written INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS run_sources (
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		source_id TEXT NOT NULL,
		item_count INTEGER NOT NULL DEFAULT 0,
		degraded INTEGER NOT NULL DEFAULT 0,
		errors TEXT NOT NULL,
		PRIMARY KEY (run_id, source_id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun stores a run and its sources in one transaction.
func (s *Store) RecordRun(run Run) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var code *string
	if run.Code != "" {
		code = &run.Code
	}

	_, err = tx.Exec(`
		INSERT INTO runs (
			run_id, started_at, finished_at, state,
			exit_code, code, item_count, written
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.RunID.String(),
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		run.State,
		run.ExitCode,
		code,
		run.ItemCount,
		run.Written,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrDuplicateRun
		}
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, src := range run.Sources {
		errs := src.Errors
		if errs == nil {
			errs = []string{}
		}
		data, err := json.Marshal(errs)
		if err != nil {
			return fmt.Errorf("failed to marshal source errors: %w", err)
		}

		_, err = tx.Exec(`
			INSERT INTO run_sources (run_id, source_id, item_count, degraded, errors)
			VALUES (?, ?, ?, ?, ?)
		`, run.RunID.String(), src.SourceID, src.ItemCount, src.Degraded, string(data))
		if err != nil {
			return fmt.Errorf("failed to insert run source: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun retrieves a run with its sources.
func (s *Store) GetRun(runID uuid.UUID) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, started_at, finished_at, state, exit_code, code, item_count, written
		FROM runs
		WHERE run_id = ?
	`, runID.String())

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	if run.Sources, err = s.listSources(run.RunID); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first. A limit of zero
// returns every run.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	query := `
		SELECT run_id, started_at, finished_at, state, exit_code, code, item_count, written
		FROM runs
		ORDER BY started_at DESC, run_id
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	for i := range runs {
		if runs[i].Sources, err = s.listSources(runs[i].RunID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *Store) listSources(runID uuid.UUID) ([]SourceRun, error) {
	rows, err := s.db.Query(`
		SELECT source_id, item_count, degraded, errors
		FROM run_sources
		WHERE run_id = ?
		ORDER BY source_id
	`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query run sources: %w", err)
	}
	defer rows.Close()

	sources := []SourceRun{}
	for rows.Next() {
		var src SourceRun
		var errorsJSON string
		if err := rows.Scan(&src.SourceID, &src.ItemCount, &src.Degraded, &errorsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run source: %w", err)
		}
		if err := json.Unmarshal([]byte(errorsJSON), &src.Errors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal source errors: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var runIDStr, startedAtStr, finishedAtStr, state string
	var code sql.NullString
	var run Run

	err := row.Scan(
		&runIDStr, &startedAtStr, &finishedAtStr, &state,
		&run.ExitCode, &code, &run.ItemCount, &run.Written,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	if run.RunID, err = uuid.Parse(runIDStr); err != nil {
		return nil, fmt.Errorf("failed to parse run ID: %w", err)
	}
	run.StartedAt = parseTime(startedAtStr)
	run.FinishedAt = parseTime(finishedAtStr)
	run.State = state
	if code.Valid {
		run.Code = code.String
	}

	return &run, nil
}

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t.UTC()
}
