package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/diagramq/diagramq/pkg/domain"
	"github.com/diagramq/diagramq/pkg/persistence"
)

// Plugin implements persistence.Store with an in-process map. It backs tests
// and single-node deployments that can tolerate losing records on restart.
type Plugin struct {
	mu    sync.RWMutex
	tasks map[string]*domain.Task
	now   func() time.Time
}

// NewPlugin creates a new in-memory persistence backend.
func NewPlugin(config persistence.PluginConfig) (persistence.Store, error) {
	return &Plugin{
		tasks: make(map[string]*domain.Task),
		now:   time.Now,
	}, nil
}

func (p *Plugin) Tasks() persistence.TaskStore { return &taskStore{plugin: p} }

func (p *Plugin) Health(ctx context.Context) error { return nil }

func (p *Plugin) Close() error { return nil }

func init() {
	persistence.RegisterProvider("memory", NewPlugin)
}

type taskStore struct {
	plugin *Plugin
}

func (s *taskStore) Create(ctx context.Context, task *domain.Task) error {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()

	if _, exists := s.plugin.tasks[task.ID]; exists {
		return persistence.ErrAlreadyExists
	}
	s.plugin.tasks[task.ID] = task.Clone()
	return nil
}

func (s *taskStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	s.plugin.mu.RLock()
	defer s.plugin.mu.RUnlock()

	task, exists := s.plugin.tasks[id]
	if !exists {
		return nil, persistence.ErrNotFound
	}
	return task.Clone(), nil
}

func (s *taskStore) Update(ctx context.Context, id string, mutate func(*domain.Task) error) (*domain.Task, error) {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()

	current, exists := s.plugin.tasks[id]
	if !exists {
		return nil, persistence.ErrNotFound
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}

	next.UpdatedAt = s.plugin.now()
	if !next.UpdatedAt.After(current.UpdatedAt) {
		next.UpdatedAt = current.UpdatedAt.Add(time.Nanosecond)
	}
	s.plugin.tasks[id] = next
	return next.Clone(), nil
}

func (s *taskStore) List(ctx context.Context, f persistence.Filter) ([]*domain.Task, error) {
	s.plugin.mu.RLock()
	out := make([]*domain.Task, 0, len(s.plugin.tasks))
	for _, task := range s.plugin.tasks {
		if f.Status != "" && task.Status != f.Status {
			continue
		}
		out = append(out, task.Clone())
	}
	s.plugin.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return paginate(out, f.Limit, f.Offset), nil
}

func (s *taskStore) Delete(ctx context.Context, id string) (bool, error) {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()

	if _, exists := s.plugin.tasks[id]; !exists {
		return false, nil
	}
	delete(s.plugin.tasks, id)
	return true, nil
}

func paginate(tasks []*domain.Task, limit, offset int) []*domain.Task {
	if offset > 0 {
		if offset >= len(tasks) {
			return nil
		}
		tasks = tasks[offset:]
	}
	if limit > 0 && limit < len(tasks) {
		tasks = tasks[:limit]
	}
	return tasks
}
