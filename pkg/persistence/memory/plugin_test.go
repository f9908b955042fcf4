package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/diagramq/diagramq/pkg/domain"
	"github.com/diagramq/diagramq/pkg/persistence"
)

func setupStore(t *testing.T) (context.Context, persistence.TaskStore) {
	t.Helper()
	p, err := NewPlugin(persistence.PluginConfig{})
	if err != nil {
		t.Fatalf("new plugin: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return context.Background(), p.Tasks()
}

func newTask(id string, createdAt time.Time, status domain.TaskStatus) *domain.Task {
	return &domain.Task{
		ID:        id,
		Type:      domain.TypeImage,
		Status:    status,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestCreateDuplicate(t *testing.T) {
	ctx, store := setupStore(t)
	task := newTask("t1", time.Now(), domain.StatusPending)
	if err := store.Create(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, task); !errors.Is(err, persistence.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	ctx, store := setupStore(t)
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateMutatorErrorLeavesRecordUntouched(t *testing.T) {
	ctx, store := setupStore(t)
	if err := store.Create(ctx, newTask("t1", time.Now(), domain.StatusPending)); err != nil {
		t.Fatalf("create: %v", err)
	}
	boom := errors.New("refuse")
	_, err := store.Update(ctx, "t1", func(task *domain.Task) error {
		task.Progress = 99
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutator error, got %v", err)
	}
	got, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Progress != 0 {
		t.Fatalf("aborted update leaked a write: progress=%d", got.Progress)
	}
}

func TestUpdateBumpsUpdatedAtStrictly(t *testing.T) {
	ctx, store := setupStore(t)
	if err := store.Create(ctx, newTask("t1", time.Now(), domain.StatusPending)); err != nil {
		t.Fatalf("create: %v", err)
	}
	var prev time.Time
	for i := 0; i < 5; i++ {
		got, err := store.Update(ctx, "t1", func(task *domain.Task) error {
			task.Progress = i
			return nil
		})
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		if !got.UpdatedAt.After(prev) {
			t.Fatalf("UpdatedAt did not strictly increase at update %d", i)
		}
		prev = got.UpdatedAt
	}
}

func TestUpdateSerializesConcurrentWriters(t *testing.T) {
	ctx, store := setupStore(t)
	if err := store.Create(ctx, newTask("t1", time.Now(), domain.StatusPending)); err != nil {
		t.Fatalf("create: %v", err)
	}
	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Update(ctx, "t1", func(task *domain.Task) error {
				task.StageIndex++
				return nil
			})
		}()
	}
	wg.Wait()
	got, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.StageIndex != writers {
		t.Fatalf("lost updates: stage index %d, want %d", got.StageIndex, writers)
	}
}

func TestListOrderingFilterPagination(t *testing.T) {
	ctx, store := setupStore(t)
	base := time.Now()
	statuses := []domain.TaskStatus{
		domain.StatusPending, domain.StatusCompleted, domain.StatusPending,
		domain.StatusFailed, domain.StatusPending,
	}
	for i, st := range statuses {
		task := newTask(fmt.Sprintf("t%d", i), base.Add(time.Duration(i)*time.Second), st)
		if err := store.Create(ctx, task); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	all, err := store.List(ctx, persistence.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 tasks, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.Before(all[i-1].CreatedAt) {
			t.Fatalf("list not ordered by created_at ascending")
		}
	}

	pending, err := store.List(ctx, persistence.Filter{Status: domain.StatusPending})
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending, got %d", len(pending))
	}

	page, err := store.List(ctx, persistence.Filter{Status: domain.StatusPending, Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 1 || page[0].ID != "t2" {
		t.Fatalf("unexpected page: %+v", page)
	}

	empty, err := store.List(ctx, persistence.Filter{Offset: 10})
	if err != nil {
		t.Fatalf("list past end: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty page, got %d", len(empty))
	}
}

func TestDelete(t *testing.T) {
	ctx, store := setupStore(t)
	if err := store.Create(ctx, newTask("t1", time.Now(), domain.StatusPending)); err != nil {
		t.Fatalf("create: %v", err)
	}
	existed, err := store.Delete(ctx, "t1")
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	existed, err = store.Delete(ctx, "t1")
	if err != nil || existed {
		t.Fatalf("second delete: existed=%v err=%v", existed, err)
	}
	if _, err := store.Get(ctx, "t1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("deleted task still readable: %v", err)
	}
}
