package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/diagramq/diagramq/internal/analyzer"
	"github.com/diagramq/diagramq/internal/artifacts"
	"github.com/diagramq/diagramq/internal/diagram"
	"github.com/diagramq/diagramq/internal/pipeline"
	"github.com/diagramq/diagramq/internal/scheduler"
	"github.com/diagramq/diagramq/pkg/domain"
	"github.com/diagramq/diagramq/pkg/persistence"
	"github.com/diagramq/diagramq/pkg/persistence/memory"
)

const sampleMDJ = `{
	"_type": "Project",
	"ownedElements": [{
		"_type": "UMLModel",
		"ownedElements": [
			{"_type": "UMLClass", "name": "Order"},
			{"_type": "UMLInterface", "name": "Payable"}
		]
	}]
}`

type fixture struct {
	svc   TaskService
	stats StatsService
	tasks persistence.TaskStore
	blobs artifacts.Store
	sched *scheduler.Scheduler
}

func newFixture(t *testing.T, opts scheduler.Options) *fixture {
	t.Helper()
	st, err := memory.NewPlugin(persistence.PluginConfig{})
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	blobs := artifacts.NewLocalStore(t.TempDir())
	reg, err := pipeline.DefaultRegistry(&analyzer.Stub{})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	sched := scheduler.New(st.Tasks(), blobs, reg, opts)
	return &fixture{
		svc:   NewTaskService(st.Tasks(), blobs, reg, sched, nil),
		stats: NewStatsService(st.Tasks(), sched),
		tasks: st.Tasks(),
		blobs: blobs,
		sched: sched,
	}
}

func samplePNG(t *testing.T) []byte {
	t.Helper()
	png, err := diagram.Render(&diagram.Model{
		Elements: []diagram.Element{{Kind: "class", Name: "Order"}},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	return png
}

func TestSubmitCreatesPendingTask(t *testing.T) {
	f := newFixture(t, scheduler.Options{})
	ctx := context.Background()

	task, err := f.svc.Submit(ctx, "image", "order.png", samplePNG(t))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if task.ID == "" {
		t.Fatal("task has no id")
	}
	if task.Status != domain.StatusPending || task.Progress != 0 {
		t.Fatalf("task = %s/%d, want pending/0", task.Status, task.Progress)
	}
	if task.OriginalFilename != "order.png" {
		t.Fatalf("filename = %q", task.OriginalFilename)
	}

	rec, err := f.tasks.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if rec.InputRef == "" {
		t.Fatal("record has no input ref")
	}
	if _, err := f.blobs.Get(ctx, task.ID, domain.KindInput); err != nil {
		t.Fatalf("input blob not stored: %v", err)
	}
	if f.sched.QueueDepth() != 1 {
		t.Fatalf("queue depth = %d, want 1", f.sched.QueueDepth())
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, scheduler.Options{})
	ctx := context.Background()

	tests := []struct {
		name    string
		typ     string
		payload []byte
		want    error
	}{
		{"unknown type", "pdf", []byte("x"), ErrUnsupportedType},
		{"empty payload", "image", nil, ErrEmptyInput},
		{"text as image", "image", []byte("hello"), ErrInvalidInput},
		{"image as diagram file", "diagram-file", samplePNG(t), ErrInvalidInput},
		{"json array as diagram file", "diagram-file", []byte(`[1,2]`), ErrInvalidInput},
		{"truncated json", "diagram-file", []byte(`{"_type":`), ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, tt.typ, "f", tt.payload)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	// JPEG magic bytes are accepted for image tasks.
	if _, err := f.svc.Submit(ctx, "image", "a.jpg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}); err != nil {
		t.Fatalf("jpeg submit: %v", err)
	}
	if _, err := f.svc.Submit(ctx, "diagram-file", "a.mdj", []byte(sampleMDJ)); err != nil {
		t.Fatalf("mdj submit: %v", err)
	}
}

func TestSubmitQueueFullRollsBack(t *testing.T) {
	f := newFixture(t, scheduler.Options{QueueCapacity: 1})
	ctx := context.Background()

	if _, err := f.svc.Submit(ctx, "image", "a.png", samplePNG(t)); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	task, err := f.svc.Submit(ctx, "image", "b.png", samplePNG(t))
	if !errors.Is(err, scheduler.ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if task != nil {
		t.Fatal("rejected submission returned a task")
	}

	// Exactly one record survives: the rejected one was rolled back.
	all, total, err := f.svc.List(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(all) != 1 {
		t.Fatalf("records = %d/%d, want 1/1", len(all), total)
	}
}

func TestListPaginationAndFilter(t *testing.T) {
	f := newFixture(t, scheduler.Options{QueueCapacity: 16})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		task, err := f.svc.Submit(ctx, "image", "a.png", samplePNG(t))
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		ids = append(ids, task.ID)
		time.Sleep(time.Millisecond)
	}
	if _, err := f.tasks.Update(ctx, ids[0], func(rec *domain.Task) error {
		rec.Status = domain.StatusProcessing
		return nil
	}); err != nil {
		t.Fatalf("seed processing: %v", err)
	}

	page, total, err := f.svc.List(ctx, "", 2, 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 5 {
		t.Fatalf("total = %d, want 5", total)
	}
	if len(page) != 2 {
		t.Fatalf("page = %d, want 2", len(page))
	}
	if page[0].ID != ids[1] || page[1].ID != ids[2] {
		t.Fatal("page not in creation order")
	}

	pending, total, err := f.svc.List(ctx, "pending", 0, 0)
	if err != nil {
		t.Fatalf("List pending: %v", err)
	}
	if total != 4 || len(pending) != 4 {
		t.Fatalf("pending = %d/%d, want 4/4", len(pending), total)
	}

	if _, _, err := f.svc.List(ctx, "bogus", 0, 0); err == nil {
		t.Fatal("List accepted unknown status")
	}
}

func TestDeletePendingIsImmediate(t *testing.T) {
	f := newFixture(t, scheduler.Options{})
	ctx := context.Background()

	task, err := f.svc.Submit(ctx, "image", "a.png", samplePNG(t))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	deferred, err := f.svc.Delete(ctx, task.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deferred {
		t.Fatal("pending deletion should be immediate")
	}
	if _, err := f.tasks.Get(ctx, task.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("record survived: %v", err)
	}
	if _, err := f.blobs.Get(ctx, task.ID, domain.KindInput); !errors.Is(err, artifacts.ErrNotFound) {
		t.Fatalf("input blob survived: %v", err)
	}
}

func TestDeleteProcessingIsDeferred(t *testing.T) {
	f := newFixture(t, scheduler.Options{})
	ctx := context.Background()

	task, err := f.svc.Submit(ctx, "image", "a.png", samplePNG(t))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.tasks.Update(ctx, task.ID, func(rec *domain.Task) error {
		rec.Status = domain.StatusProcessing
		return nil
	}); err != nil {
		t.Fatalf("seed processing: %v", err)
	}

	deferred, err := f.svc.Delete(ctx, task.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deferred {
		t.Fatal("processing deletion should defer")
	}
	rec, err := f.tasks.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("record gone: %v", err)
	}
	if !rec.DeleteRequested {
		t.Fatal("DeleteRequested flag not set")
	}
}

func TestDeleteUnknownTask(t *testing.T) {
	f := newFixture(t, scheduler.Options{})
	if _, err := f.svc.Delete(context.Background(), "nope"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestArtifactLifecycle(t *testing.T) {
	f := newFixture(t, scheduler.Options{})
	ctx := context.Background()

	task, err := f.svc.Submit(ctx, "image", "a.png", samplePNG(t))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Input is available from the moment of submission.
	data, ct, err := f.svc.Artifact(ctx, task.ID, "input")
	if err != nil {
		t.Fatalf("input artifact: %v", err)
	}
	if ct != "image/png" || len(data) == 0 {
		t.Fatalf("input artifact = %q/%d bytes", ct, len(data))
	}

	// Results are not ready before their stage ran.
	if _, _, err := f.svc.Artifact(ctx, task.ID, "error_analysis"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
	if _, _, err := f.svc.Artifact(ctx, task.ID, "bogus"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
	if _, _, err := f.svc.Artifact(ctx, "nope", "input"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	// Simulate a completed stage and fetch its artifact.
	ref, err := f.blobs.Put(ctx, task.ID, domain.KindErrorAnalysis, []byte(`{"findings":[]}`))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := f.tasks.Update(ctx, task.ID, func(rec *domain.Task) error {
		rec.SetResultRef(domain.KindErrorAnalysis, ref)
		return nil
	}); err != nil {
		t.Fatalf("record ref: %v", err)
	}
	data, ct, err = f.svc.Artifact(ctx, task.ID, "error_analysis")
	if err != nil {
		t.Fatalf("analysis artifact: %v", err)
	}
	if ct != "application/json" || len(data) == 0 {
		t.Fatalf("analysis artifact = %q/%d bytes", ct, len(data))
	}
}

func TestStatsSnapshot(t *testing.T) {
	f := newFixture(t, scheduler.Options{QueueCapacity: 16, Workers: 2})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.svc.Submit(ctx, "image", "a.png", samplePNG(t)); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	task, err := f.svc.Submit(ctx, "diagram-file", "a.mdj", []byte(sampleMDJ))
	if err != nil {
		t.Fatalf("submit mdj: %v", err)
	}
	if _, err := f.tasks.Update(ctx, task.ID, func(rec *domain.Task) error {
		rec.Status = domain.StatusProcessing
		rec.Status = domain.StatusFailed
		rec.ErrorMessage = "x"
		return nil
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	stats, err := f.stats.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalTasks != 4 || stats.PendingTasks != 3 || stats.FailedTasks != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.PendingTasks+stats.ProcessingTasks+stats.CompletedTasks+stats.FailedTasks != stats.TotalTasks {
		t.Fatalf("status counts do not sum to total: %+v", stats)
	}
	if stats.Workers != 2 {
		t.Fatalf("workers = %d, want 2", stats.Workers)
	}
	if stats.QueueDepth != 4 {
		t.Fatalf("queue depth = %d, want 4", stats.QueueDepth)
	}
}
