// Package postgres provides a pgx-backed Repository for deployments that share
// one database between several planwise daemons.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/planwise/internal/models"
	"github.com/fentz26/planwise/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ store.Repository = (*Repo)(nil)

// Repo stores tasks and decision records in Postgres.
type Repo struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, verifies the connection and migrates the schema.
func Open(ctx context.Context, dsn string) (*Repo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	repo := New(pool)
	if err := repo.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return repo, nil
}

func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (repo *Repo) migrate(ctx context.Context) error {
	const q = `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		estimated_hours DOUBLE PRECISION NOT NULL,
		deadline TIMESTAMPTZ NOT NULL,
		priority INTEGER NOT NULL,
		dependency_id TEXT,
		start_at TIMESTAMPTZ,
		end_at TIMESTAMPTZ,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS pdr (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		owner_id TEXT NOT NULL DEFAULT '',
		task_id TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL DEFAULT '',
		ts TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_owner_status ON tasks(owner_id, status);
	CREATE INDEX IF NOT EXISTS idx_tasks_dependency ON tasks(dependency_id);
	CREATE INDEX IF NOT EXISTS idx_pdr_owner ON pdr(owner_id);
	`
	_, err := repo.pool.Exec(ctx, q)
	return err
}

func (repo *Repo) Ping(ctx context.Context) error {
	return repo.pool.Ping(ctx)
}

func (repo *Repo) Close() error {
	repo.pool.Close()
	return nil
}

const taskColumns = `id, owner_id, title, description, estimated_hours, deadline, priority, dependency_id, start_at, end_at, status, created_at, updated_at`

func scanTask(row pgx.Row) (models.Task, error) {
	var (
		task       models.Task
		dependency *string
		start, end *time.Time
		status     string
	)
	err := row.Scan(&task.ID, &task.OwnerID, &task.Title, &task.Description, &task.EstimatedHours,
		&task.Deadline, &task.Priority, &dependency, &start, &end, &status, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return task, err
	}
	task.Status = models.TaskStatus(status)
	task.Deadline = task.Deadline.UTC()
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	if dependency != nil {
		task.Dependency = models.DependsOn(*dependency)
	}
	if start != nil && end != nil {
		task.Placement = &models.Placement{Start: start.UTC(), End: end.UTC()}
	}
	return task, nil
}

func placementArgs(p *models.Placement) (*time.Time, *time.Time) {
	if p == nil {
		return nil, nil
	}
	s, e := p.Start.UTC(), p.End.UTC()
	return &s, &e
}

func dependencyArg(d models.Dependency) *string {
	if id, ok := d.TaskID(); ok {
		return &id
	}
	return nil
}

func (repo *Repo) CreateTask(ctx context.Context, task models.Task) (*models.Task, error) {
	now := time.Now().UTC()
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	task.CreatedAt, task.UpdatedAt = now, now

	start, end := placementArgs(task.Placement)
	const q = `INSERT INTO tasks (` + taskColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	if _, err := repo.pool.Exec(ctx, q,
		task.ID, task.OwnerID, task.Title, task.Description, task.EstimatedHours, task.Deadline.UTC(),
		task.Priority, dependencyArg(task.Dependency), start, end, string(task.Status), now, now,
	); err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return &task, nil
}

func (repo *Repo) GetTask(ctx context.Context, id string) (*models.Task, error) {
	task, err := scanTask(repo.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return &task, nil
}

func (repo *Repo) ListTasks(ctx context.Context, ownerID string, status models.TaskStatus) ([]models.Task, error) {
	const q = `SELECT ` + taskColumns + ` FROM tasks
	WHERE ($1::text = '' OR owner_id = $1) AND ($2::text = '' OR status = $2)
	ORDER BY deadline, id`
	return repo.queryTasks(ctx, "query tasks", q, ownerID, string(status))
}

func (repo *Repo) UpdateTask(ctx context.Context, task models.Task) error {
	start, end := placementArgs(task.Placement)
	const q = `UPDATE tasks SET title = $1, description = $2, estimated_hours = $3, deadline = $4,
	priority = $5, dependency_id = $6, start_at = $7, end_at = $8, status = $9, updated_at = $10
	WHERE id = $11`
	tag, err := repo.pool.Exec(ctx, q,
		task.Title, task.Description, task.EstimatedHours, task.Deadline.UTC(), task.Priority,
		dependencyArg(task.Dependency), start, end, string(task.Status), time.Now().UTC(), task.ID)
	if err != nil {
		return fmt.Errorf("update task %s: %w", task.ID, err)
	}
	return expectRow(tag)
}

func (repo *Repo) DeleteTask(ctx context.Context, id string) error {
	tag, err := repo.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete for %s: %w", id, err)
	}
	return expectRow(tag)
}

func (repo *Repo) ListDependents(ctx context.Context, id string) ([]models.Task, error) {
	return repo.queryTasks(ctx, "query dependents",
		`SELECT `+taskColumns+` FROM tasks WHERE dependency_id = $1 ORDER BY id`, id)
}

func (repo *Repo) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := repo.pool.Query(ctx,
		`SELECT DISTINCT owner_id FROM tasks WHERE status <> $1 ORDER BY owner_id`, string(models.TaskStatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("query owners: %w", err)
	}
	owners, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("rows owners: %w", err)
	}
	return owners, nil
}

func (repo *Repo) ListActiveByOwner(ctx context.Context, ownerID string) ([]models.Task, error) {
	return repo.queryTasks(ctx, "query active tasks",
		`SELECT `+taskColumns+` FROM tasks WHERE owner_id = $1 AND status <> $2 ORDER BY id`,
		ownerID, string(models.TaskStatusCompleted))
}

func (repo *Repo) ListPlacedByOwner(ctx context.Context, ownerID string) ([]models.Task, error) {
	return repo.queryTasks(ctx, "query placed tasks",
		`SELECT `+taskColumns+` FROM tasks
		WHERE owner_id = $1 AND status <> $2 AND start_at IS NOT NULL AND end_at IS NOT NULL
		ORDER BY start_at`,
		ownerID, string(models.TaskStatusCompleted))
}

func (repo *Repo) ClearPlacement(ctx context.Context, id string) error {
	tag, err := repo.pool.Exec(ctx,
		`UPDATE tasks SET start_at = NULL, end_at = NULL, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("clear placement for %s: %w", id, err)
	}
	return expectRow(tag)
}

func (repo *Repo) SavePlacement(ctx context.Context, id string, p models.Placement, status models.TaskStatus) error {
	tag, err := repo.pool.Exec(ctx,
		`UPDATE tasks SET start_at = $1, end_at = $2, status = $3, updated_at = $4 WHERE id = $5`,
		p.Start.UTC(), p.End.UTC(), string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("save placement for %s: %w", id, err)
	}
	return expectRow(tag)
}

func (repo *Repo) queryTasks(ctx context.Context, op, q string, args ...any) ([]models.Task, error) {
	rows, err := repo.pool.Query(ctx, q, args...)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows %s: %w", op, err)
	}
	return tasks, nil
}

func expectRow(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (repo *Repo) WritePDR(ctx context.Context, entry models.PDREntry) (*models.PDREntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	const q = `INSERT INTO pdr (id, action, inputs_hash, outcome, owner_id, task_id, details, ts)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := repo.pool.Exec(ctx, q, entry.ID, entry.Action, entry.InputsHash, entry.Outcome,
		entry.OwnerID, entry.TaskID, entry.Details, entry.Timestamp.UTC()); err != nil {
		return nil, fmt.Errorf("insert pdr: %w", err)
	}
	return &entry, nil
}

func (repo *Repo) ListPDR(ctx context.Context, ownerID string, limit int) ([]models.PDREntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT id, action, inputs_hash, outcome, owner_id, task_id, details, ts FROM pdr
	WHERE ($1::text = '' OR owner_id = $1) ORDER BY ts DESC, id LIMIT $2`
	rows, err := repo.pool.Query(ctx, q, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query pdr: %w", err)
	}
	defer rows.Close()

	var entries []models.PDREntry
	for rows.Next() {
		var e models.PDREntry
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &e.OwnerID, &e.TaskID, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Timestamp = e.Timestamp.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows pdr: %w", err)
	}
	return entries, nil
}
