package persistence

import (
	"context"
	"errors"

	"github.com/diagramq/diagramq/pkg/domain"
)

var (
	// ErrNotFound is returned when a task id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when a task id already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrContention is returned when an atomic update could not be applied
	// within the backend's retry budget. The write was not applied; callers
	// may retry.
	ErrContention = errors.New("update contention")
)

// Filter narrows List results. A zero Status matches every task. Limit == 0
// means no limit; Offset skips that many matching tasks.
type Filter struct {
	Status domain.TaskStatus
	Limit  int
	Offset int
}

// TaskStore is the durable record store for tasks.
//
// Update must be atomic per task id: the mutator runs against the latest
// persisted record and the resulting record is written back as one unit, with
// concurrent updates to the same id serialized. If the mutator returns an
// error the update is abandoned without writing and that error is returned.
// Every applied update bumps UpdatedAt so it strictly increases per task.
type TaskStore interface {
	Create(ctx context.Context, task *domain.Task) error
	Get(ctx context.Context, id string) (*domain.Task, error)
	Update(ctx context.Context, id string, mutate func(*domain.Task) error) (*domain.Task, error)

	// List returns tasks matching the filter ordered by CreatedAt ascending
	// (id as tie break).
	List(ctx context.Context, f Filter) ([]*domain.Task, error)

	// Delete removes a record, reporting whether it existed.
	Delete(ctx context.Context, id string) (bool, error)
}

// Store is the interface persistence backends implement.
type Store interface {
	Tasks() TaskStore

	// Health checks whether the backend can serve reads and writes.
	Health(ctx context.Context) error

	Close() error
}
