package store

import (
	"context"
	"errors"
	"time"

	"github.com/fentz26/planwise/internal/models"
)

// ErrNotFound is returned by writes that target a task which does not exist.
// Lookups return (nil, nil) instead.
var ErrNotFound = errors.New("task not found")

// Repository is the persistence surface shared by the SQLite and Postgres backends.
type Repository interface {
	CreateTask(ctx context.Context, task models.Task) (*models.Task, error)
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, ownerID string, status models.TaskStatus) ([]models.Task, error)
	UpdateTask(ctx context.Context, task models.Task) error
	DeleteTask(ctx context.Context, id string) error
	ListDependents(ctx context.Context, id string) ([]models.Task, error)
	ListOwners(ctx context.Context) ([]string, error)

	ListActiveByOwner(ctx context.Context, ownerID string) ([]models.Task, error)
	ListPlacedByOwner(ctx context.Context, ownerID string) ([]models.Task, error)
	ClearPlacement(ctx context.Context, id string) error
	SavePlacement(ctx context.Context, id string, p models.Placement, status models.TaskStatus) error

	WritePDR(ctx context.Context, entry models.PDREntry) (*models.PDREntry, error)
	ListPDR(ctx context.Context, ownerID string, limit int) ([]models.PDREntry, error)

	Ping(ctx context.Context) error
	Close() error
}

// ToMillis converts t to unix milliseconds.
func ToMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

// FromMillis converts unix milliseconds to a UTC time.
func FromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
