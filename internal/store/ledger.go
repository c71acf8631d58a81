package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// DBName is the ledger database file name.
const DBName = "simwrap.db"

// ErrRunNotFound is returned by Get for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Status is the lifecycle state of a recorded run.
type Status string

const (
	StatusStarted   Status = "started"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one ledger row.
type Run struct {
	ID             string     `json:"id"`
	Type           string     `json:"type"`
	Mode           string     `json:"mode,omitempty"`
	Source         string     `json:"source,omitempty"`
	OutputDir      string     `json:"output_dir,omitempty"`
	ConfigPath     string     `json:"config_path,omitempty"`
	DerivedPlans   string     `json:"derived_plans,omitempty"`
	CleanedNetwork string     `json:"cleaned_network,omitempty"`
	Status         Status     `json:"status"`
	Error          string     `json:"error,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// Ledger is a SQLite-backed record of dispatched runs.
type Ledger struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

// Open opens (creating if needed) the ledger database in dir.
func Open(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	dbPath := filepath.Join(dir, DBName)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Ledger{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (l *Ledger) Path() string {
	return l.dbPath
}

// Begin records r as started. StartedAt defaults to now.
func (l *Ledger) Begin(ctx context.Context, r Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO runs (id, run_type, mode, source, output_dir, config_path,
			derived_plans, cleaned_network, status, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)`,
		r.ID, r.Type, nullString(r.Mode), nullString(r.Source), nullString(r.OutputDir),
		nullString(r.ConfigPath), nullString(r.DerivedPlans), nullString(r.CleanedNetwork),
		string(StatusStarted), r.StartedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.ID, err)
	}
	return nil
}

// Finish records the final state of r. Empty fields keep the values stored
// by Begin.
func (l *Ledger) Finish(ctx context.Context, r Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r.Status != StatusSucceeded && r.Status != StatusFailed {
		return fmt.Errorf("invalid final status %q", r.Status)
	}
	finished := time.Now()
	if r.FinishedAt != nil {
		finished = *r.FinishedAt
	}
	res, err := l.db.ExecContext(ctx, `
		UPDATE runs SET
			mode = COALESCE(?, mode),
			source = COALESCE(?, source),
			config_path = COALESCE(?, config_path),
			derived_plans = COALESCE(?, derived_plans),
			cleaned_network = COALESCE(?, cleaned_network),
			status = ?,
			error = ?,
			finished_at = ?
		WHERE id = ?`,
		nullString(r.Mode), nullString(r.Source), nullString(r.ConfigPath),
		nullString(r.DerivedPlans), nullString(r.CleanedNetwork),
		string(r.Status), nullString(r.Error), finished.UTC().Format(time.RFC3339Nano), r.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", r.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, r.ID)
	}
	return nil
}

const selectRun = `SELECT id, run_type, mode, source, output_dir, config_path,
	derived_plans, cleaned_network, status, error, started_at, finished_at FROM runs`

// Get returns the run with the given ID.
func (l *Ledger) Get(ctx context.Context, id string) (Run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	row := l.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// List returns the most recent runs first. A limit <= 0 returns all runs.
func (l *Ledger) List(ctx context.Context, limit int) ([]Run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	query := selectRun + ` ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r                                                   Run
		mode, source, outputDir, configPath, derived, clean sql.NullString
		status, startedAt                                   string
		errMsg, finishedAt                                  sql.NullString
	)
	if err := s.Scan(&r.ID, &r.Type, &mode, &source, &outputDir, &configPath,
		&derived, &clean, &status, &errMsg, &startedAt, &finishedAt); err != nil {
		return Run{}, err
	}
	r.Mode, r.Source, r.OutputDir = mode.String, source.String, outputDir.String
	r.ConfigPath, r.DerivedPlans, r.CleanedNetwork = configPath.String, derived.String, clean.String
	r.Status, r.Error = Status(status), errMsg.String

	t, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("failed to parse started_at for run %s: %w", r.ID, err)
	}
	r.StartedAt = t
	if finishedAt.Valid {
		ft, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return Run{}, fmt.Errorf("failed to parse finished_at for run %s: %w", r.ID, err)
		}
		r.FinishedAt = &ft
	}
	return r, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
