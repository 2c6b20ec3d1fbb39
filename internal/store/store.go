// Package store provides SQLite-backed persistence for planwise.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fentz26/planwise/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var _ Repository = (*Store)(nil)

// Store provides access to the planwise SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		estimated_hours REAL NOT NULL,
		deadline_ms INTEGER NOT NULL,
		priority INTEGER NOT NULL,
		dependency_id TEXT,
		start_ms INTEGER,
		end_ms INTEGER,
		status TEXT NOT NULL DEFAULT 'pending',
		created_ms INTEGER NOT NULL,
		updated_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pdr (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		owner_id TEXT,
		task_id TEXT,
		details TEXT,
		timestamp_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_owner_status ON tasks(owner_id, status);
	CREATE INDEX IF NOT EXISTS idx_tasks_dependency ON tasks(dependency_id);
	CREATE INDEX IF NOT EXISTS idx_pdr_owner ON pdr(owner_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Task Operations ---

const taskColumns = `id, owner_id, title, description, estimated_hours, deadline_ms, priority, dependency_id, start_ms, end_ms, status, created_ms, updated_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (models.Task, error) {
	var (
		task             models.Task
		deadline         int64
		dependency       sql.NullString
		start, end       sql.NullInt64
		created, updated int64
	)
	err := row.Scan(&task.ID, &task.OwnerID, &task.Title, &task.Description, &task.EstimatedHours,
		&deadline, &task.Priority, &dependency, &start, &end, &task.Status, &created, &updated)
	if err != nil {
		return task, err
	}
	task.Deadline = FromMillis(deadline)
	task.CreatedAt = FromMillis(created)
	task.UpdatedAt = FromMillis(updated)
	if dependency.Valid {
		task.Dependency = models.DependsOn(dependency.String)
	}
	if start.Valid && end.Valid {
		task.Placement = &models.Placement{Start: FromMillis(start.Int64), End: FromMillis(end.Int64)}
	}
	return task, nil
}

func placementArgs(p *models.Placement) (sql.NullInt64, sql.NullInt64) {
	if p == nil {
		return sql.NullInt64{}, sql.NullInt64{}
	}
	return sql.NullInt64{Int64: ToMillis(p.Start), Valid: true}, sql.NullInt64{Int64: ToMillis(p.End), Valid: true}
}

func dependencyArg(d models.Dependency) sql.NullString {
	id, ok := d.TaskID()
	return sql.NullString{String: id, Valid: ok}
}

// CreateTask inserts a new task. A missing ID, status or timestamp is filled in.
func (s *Store) CreateTask(ctx context.Context, task models.Task) (*models.Task, error) {
	now := time.Now().UTC()
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	task.CreatedAt = now
	task.UpdatedAt = now

	start, end := placementArgs(task.Placement)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.OwnerID, task.Title, task.Description, task.EstimatedHours,
		ToMillis(task.Deadline), task.Priority, dependencyArg(task.Dependency), start, end,
		task.Status, ToMillis(now), ToMillis(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return &task, nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (*models.Task, error) {
	task, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return &task, nil
}

// ListTasks returns tasks, optionally filtered by owner and status.
func (s *Store) ListTasks(ctx context.Context, ownerID string, status models.TaskStatus) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1 = 1`
	var args []any

	if ownerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, ownerID)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY deadline_ms, id`

	return s.queryTasks(ctx, "query tasks", query, args...)
}

// UpdateTask overwrites the mutable fields of an existing task.
func (s *Store) UpdateTask(ctx context.Context, task models.Task) error {
	start, end := placementArgs(task.Placement)
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, estimated_hours = ?, deadline_ms = ?, priority = ?,
		dependency_id = ?, start_ms = ?, end_ms = ?, status = ?, updated_ms = ? WHERE id = ?`,
		task.Title, task.Description, task.EstimatedHours, ToMillis(task.Deadline), task.Priority,
		dependencyArg(task.Dependency), start, end, task.Status, ToMillis(time.Now()), task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return expectRow(res)
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return expectRow(res)
}

// ListDependents returns the tasks whose immediate dependency is id.
func (s *Store) ListDependents(ctx context.Context, id string) ([]models.Task, error) {
	return s.queryTasks(ctx, "query dependents",
		`SELECT `+taskColumns+` FROM tasks WHERE dependency_id = ? ORDER BY id`, id)
}

// ListOwners returns every owner that has at least one task that is not completed.
func (s *Store) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT owner_id FROM tasks WHERE status != ? ORDER BY owner_id`, models.TaskStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("query owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

// --- Scheduling Operations ---

// ListActiveByOwner returns the owner's tasks that are not completed.
func (s *Store) ListActiveByOwner(ctx context.Context, ownerID string) ([]models.Task, error) {
	return s.queryTasks(ctx, "query active tasks",
		`SELECT `+taskColumns+` FROM tasks WHERE owner_id = ? AND status != ? ORDER BY id`,
		ownerID, models.TaskStatusCompleted)
}

// ListPlacedByOwner returns the owner's tasks that currently hold a placement.
func (s *Store) ListPlacedByOwner(ctx context.Context, ownerID string) ([]models.Task, error) {
	return s.queryTasks(ctx, "query placed tasks",
		`SELECT `+taskColumns+` FROM tasks WHERE owner_id = ? AND status != ? AND start_ms IS NOT NULL AND end_ms IS NOT NULL ORDER BY start_ms`,
		ownerID, models.TaskStatusCompleted)
}

// ClearPlacement removes a task's start and end.
func (s *Store) ClearPlacement(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET start_ms = NULL, end_ms = NULL, updated_ms = ? WHERE id = ?`,
		ToMillis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("clear placement: %w", err)
	}
	return expectRow(res)
}

// SavePlacement writes a placement and status for a task.
func (s *Store) SavePlacement(ctx context.Context, id string, p models.Placement, status models.TaskStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET start_ms = ?, end_ms = ?, status = ?, updated_ms = ? WHERE id = ?`,
		ToMillis(p.Start), ToMillis(p.End), status, ToMillis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("save placement: %w", err)
	}
	return expectRow(res)
}

func (s *Store) queryTasks(ctx context.Context, op, query string, args ...any) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- PDR Operations ---

// WritePDR writes a Process Decision Record. ID and timestamp are assigned when empty.
func (s *Store) WritePDR(ctx context.Context, entry models.PDREntry) (*models.PDREntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pdr (id, action, inputs_hash, outcome, owner_id, task_id, details, timestamp_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Action, entry.InputsHash, entry.Outcome, entry.OwnerID, entry.TaskID, entry.Details, ToMillis(entry.Timestamp),
	)
	if err != nil {
		return nil, fmt.Errorf("insert pdr: %w", err)
	}
	return &entry, nil
}

// ListPDR returns the most recent records for an owner, newest first.
// An empty ownerID lists all owners.
func (s *Store) ListPDR(ctx context.Context, ownerID string, limit int) ([]models.PDREntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, action, inputs_hash, outcome, owner_id, task_id, details, timestamp_ms FROM pdr`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY timestamp_ms DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pdr: %w", err)
	}
	defer rows.Close()

	var entries []models.PDREntry
	for rows.Next() {
		var e models.PDREntry
		var owner, task, details sql.NullString
		var ts int64
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &owner, &task, &details, &ts); err != nil {
			return nil, fmt.Errorf("scan pdr: %w", err)
		}
		e.OwnerID, e.TaskID, e.Details = owner.String, task.String, details.String
		e.Timestamp = FromMillis(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
