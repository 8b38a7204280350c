// Package state keeps a local ledger of deployment runs and the remote
// resources they created. Runs that failed part-way leave resources behind;
// the ledger is how they are found again.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/systemstart/launchpad/pkg/logging"
	"github.com/systemstart/launchpad/pkg/pipeline"
	"github.com/systemstart/launchpad/pkg/provision"
)

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is one pipeline execution.
type Run struct {
	ID         string
	Name       string
	App        string
	Status     RunStatus
	FailedTask string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// ResourceRecord is a created resource together with the outcome of the
// run that created it.
type ResourceRecord struct {
	RunID     string
	Kind      provision.Kind
	Name      string
	App       string
	CreatedAt time.Time
	RunStatus RunStatus
}

// Orphaned reports whether the creating run did not finish successfully.
func (r ResourceRecord) Orphaned() bool { return r.RunStatus != RunSucceeded }

// Ledger is a SQLite-backed run ledger.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens or creates the ledger at path, creating parent directories.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	l := &Ledger{
		db:     db,
		logger: logging.Component("state"),
		now:    time.Now,
	}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	l.logger.Debug("ledger opened", "path", path)
	return l, nil
}

func (l *Ledger) createSchema() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			app         TEXT NOT NULL,
			status      TEXT NOT NULL,
			failed_task TEXT NOT NULL DEFAULT '',
			error       TEXT NOT NULL DEFAULT '',
			started_at  TEXT NOT NULL,
			finished_at TEXT NOT NULL DEFAULT '',
			CHECK (status IN ('running', 'succeeded', 'failed'))
		);

		CREATE INDEX IF NOT EXISTS idx_runs_name ON runs(name);

		CREATE TABLE IF NOT EXISTS tasks (
			run_id     TEXT NOT NULL,
			idx        INTEGER NOT NULL,
			title      TEXT NOT NULL,
			status     TEXT NOT NULL,
			elapsed_ms INTEGER NOT NULL DEFAULT 0,
			error      TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, idx),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		);

		CREATE TABLE IF NOT EXISTS resources (
			run_id     TEXT NOT NULL,
			kind       TEXT NOT NULL,
			name       TEXT NOT NULL,
			app        TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(id)
		);

		CREATE INDEX IF NOT EXISTS idx_resources_app ON resources(app);
	`)
	return err
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// StartRun inserts a running run with a fresh ID.
func (l *Ledger) StartRun(ctx context.Context, name, app string) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Name:      name,
		App:       app,
		Status:    RunRunning,
		StartedAt: l.now().UTC(),
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, name, app, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.App, string(run.Status), run.StartedAt.Format(timeFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting run: %w", err)
	}
	l.logger.Debug("run started", "id", run.ID, "name", name)
	return run, nil
}

// FinishRun closes a run. A nil runErr marks it succeeded; a
// *pipeline.TaskError additionally records the failing task.
func (l *Ledger) FinishRun(ctx context.Context, id string, runErr error) error {
	status := RunSucceeded
	var failedTask, msg string
	if runErr != nil {
		status = RunFailed
		msg = runErr.Error()
		var te *pipeline.TaskError
		if errors.As(runErr, &te) {
			failedTask = te.Title
		}
	}

	res, err := l.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, failed_task = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), failedTask, msg, l.now().UTC().Format(timeFormat), id,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetRun loads one run.
func (l *Ledger) GetRun(ctx context.Context, id string) (*Run, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

const runColumns = `id, name, app, status, failed_task, error, started_at, finished_at`

// ListRuns returns the most recent runs first. name filters when non-empty.
func (l *Ledger) ListRuns(ctx context.Context, name string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.queryRuns(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE ? = '' OR name = ?
		ORDER BY started_at DESC
		LIMIT ?`, name, name, limit)
}

// RunningRuns returns every run for name that never finished. A running
// entry means another process is deploying the same name, or a process died.
func (l *Ledger) RunningRuns(ctx context.Context, name string) ([]*Run, error) {
	return l.queryRuns(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE name = ? AND status = ?
		ORDER BY started_at DESC`, name, string(RunRunning))
}

func (l *Ledger) queryRuns(ctx context.Context, query string, args ...any) ([]*Run, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
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

func scanRun(row rowScanner) (*Run, error) {
	var (
		run               Run
		status            string
		started, finished string
	)
	if err := row.Scan(&run.ID, &run.Name, &run.App, &status, &run.FailedTask, &run.Error, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	run.Status = RunStatus(status)
	run.StartedAt, _ = time.Parse(timeFormat, started)
	if finished != "" {
		run.FinishedAt, _ = time.Parse(timeFormat, finished)
	}
	return &run, nil
}

// RecordResource notes a resource created by run runID.
func (l *Ledger) RecordResource(ctx context.Context, runID string, r provision.Resource) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO resources (run_id, kind, name, app, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, string(r.Kind), r.Name, r.App, l.now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting resource: %w", err)
	}
	l.logger.Debug("resource recorded", "run", runID, "kind", r.Kind, "name", r.Name)
	return nil
}

// ListResources returns recorded resources, oldest first. app filters when
// non-empty.
func (l *Ledger) ListResources(ctx context.Context, app string) ([]ResourceRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT r.run_id, r.kind, r.name, r.app, r.created_at, runs.status
		FROM resources r JOIN runs ON runs.id = r.run_id
		WHERE ? = '' OR r.app = ?
		ORDER BY r.created_at, r.rowid`, app, app)
	if err != nil {
		return nil, fmt.Errorf("querying resources: %w", err)
	}
	defer rows.Close()

	var out []ResourceRecord
	for rows.Next() {
		var (
			rec           ResourceRecord
			kind, created string
			status        string
		)
		if err := rows.Scan(&rec.RunID, &kind, &rec.Name, &rec.App, &created, &status); err != nil {
			return nil, fmt.Errorf("scanning resource: %w", err)
		}
		rec.Kind = provision.Kind(kind)
		rec.RunStatus = RunStatus(status)
		rec.CreatedAt, _ = time.Parse(timeFormat, created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Recorder returns a provision.Recorder that files resources under runID.
func (l *Ledger) Recorder(runID string) provision.Recorder {
	return &runRecorder{ledger: l, runID: runID}
}

type runRecorder struct {
	ledger *Ledger
	runID  string
}

func (r *runRecorder) Record(ctx context.Context, res provision.Resource) error {
	return r.ledger.RecordResource(ctx, r.runID, res)
}

// Observer returns a pipeline.Observer that writes task progress for runID.
// Write failures are logged and otherwise ignored.
func (l *Ledger) Observer(runID string) pipeline.Observer {
	return &taskObserver{ledger: l, runID: runID}
}

type taskObserver struct {
	ledger *Ledger
	runID  string
}

func (o *taskObserver) TaskStarted(index int, title string) {
	_, err := o.ledger.db.Exec(
		`INSERT OR REPLACE INTO tasks (run_id, idx, title, status) VALUES (?, ?, ?, ?)`,
		o.runID, index, title, "running",
	)
	if err != nil {
		o.ledger.logger.Warn("failed to record task start", "task", title, "error", err)
	}
}

func (o *taskObserver) TaskFinished(index int, _ string, elapsed time.Duration, taskErr error) {
	status, msg := "done", ""
	if taskErr != nil {
		status, msg = "failed", taskErr.Error()
	}
	_, err := o.ledger.db.Exec(
		`UPDATE tasks SET status = ?, elapsed_ms = ?, error = ? WHERE run_id = ? AND idx = ?`,
		status, elapsed.Milliseconds(), msg, o.runID, index,
	)
	if err != nil {
		o.ledger.logger.Warn("failed to record task result", "index", index, "error", err)
	}
}

// TaskRecord is one task row of a run.
type TaskRecord struct {
	Index   int
	Title   string
	Status  string
	Elapsed time.Duration
	Error   string
}

// Tasks returns the task rows of a run in execution order.
func (l *Ledger) Tasks(ctx context.Context, runID string) ([]TaskRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT idx, title, status, elapsed_ms, error FROM tasks WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var (
			tr TaskRecord
			ms int64
		)
		if err := rows.Scan(&tr.Index, &tr.Title, &tr.Status, &ms, &tr.Error); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		tr.Elapsed = time.Duration(ms) * time.Millisecond
		out = append(out, tr)
	}
	return out, rows.Err()
}
