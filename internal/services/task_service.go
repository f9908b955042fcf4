package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/diagramq/diagramq/internal/artifacts"
	"github.com/diagramq/diagramq/internal/metrics"
	"github.com/diagramq/diagramq/internal/pipeline"
	"github.com/diagramq/diagramq/internal/scheduler"
	"github.com/diagramq/diagramq/internal/tracing"
	"github.com/diagramq/diagramq/pkg/domain"
	"github.com/diagramq/diagramq/pkg/persistence"
)

type TaskService interface {
	// Submit validates the payload, persists it, and queues the task.
	Submit(ctx context.Context, taskType, filename string, payload []byte) (*domain.Task, error)

	Get(ctx context.Context, id string) (*domain.Task, error)

	// List returns one page of tasks plus the total match count.
	List(ctx context.Context, status string, limit, offset int) ([]*domain.Task, int, error)

	// Delete removes the task and its artifacts. A task that is processing is
	// flagged instead and purged after its terminal transition; the returned
	// bool reports that deferral.
	Delete(ctx context.Context, id string) (bool, error)

	// Artifact returns the stored blob for a result kind with its MIME type.
	Artifact(ctx context.Context, id, kind string) ([]byte, string, error)
}

type taskService struct {
	tasks     persistence.TaskStore
	blobs     artifacts.Store
	pipelines *pipeline.Registry
	sched     *scheduler.Scheduler
	logger    *slog.Logger
	now       func() time.Time
}

func NewTaskService(tasks persistence.TaskStore, blobs artifacts.Store, pipelines *pipeline.Registry, sched *scheduler.Scheduler, logger *slog.Logger) TaskService {
	if logger == nil {
		logger = slog.Default()
	}
	return &taskService{
		tasks:     tasks,
		blobs:     blobs,
		pipelines: pipelines,
		sched:     sched,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *taskService) Submit(ctx context.Context, taskType, filename string, payload []byte) (*domain.Task, error) {
	typ, ok := domain.ParseTaskType(taskType)
	if !ok {
		return nil, ErrUnsupportedType
	}
	if _, err := s.pipelines.Lookup(typ); err != nil {
		return nil, ErrUnsupportedType
	}
	if len(payload) == 0 {
		return nil, ErrEmptyInput
	}
	if err := validatePayload(typ, payload); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	ref, err := s.blobs.Put(ctx, id, domain.KindInput, payload)
	if err != nil {
		return nil, fmt.Errorf("store input: %w", err)
	}

	now := s.now().UTC()
	traceParent, traceState := tracing.TraceContextStrings(ctx)
	task := &domain.Task{
		ID:               id,
		Type:             typ,
		Status:           domain.StatusPending,
		OriginalFilename: filename,
		InputRef:         ref,
		TraceParent:      traceParent,
		TraceState:       traceState,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		s.rollback(id)
		return nil, fmt.Errorf("create task record: %w", err)
	}

	if err := s.sched.Enqueue(id); err != nil {
		if _, derr := s.tasks.Delete(ctx, id); derr != nil {
			s.logger.Error("rollback record delete failed",
				slog.String("task_id", id), slog.String("error", derr.Error()))
		}
		s.rollback(id)
		return nil, err
	}

	metrics.TaskSubmittedTotal.WithLabelValues(string(typ)).Inc()
	s.logger.Info("task submitted",
		slog.String("task_id", id),
		slog.String("type", string(typ)),
		slog.Int("bytes", len(payload)))
	return task, nil
}

// rollback drops the input blob after a failed submission.
func (s *taskService) rollback(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.blobs.Delete(ctx, id); err != nil {
		s.logger.Error("rollback artifact delete failed",
			slog.String("task_id", id), slog.String("error", err.Error()))
	}
}

func (s *taskService) Get(ctx context.Context, id string) (*domain.Task, error) {
	return s.tasks.Get(ctx, id)
}

func (s *taskService) List(ctx context.Context, status string, limit, offset int) ([]*domain.Task, int, error) {
	var st domain.TaskStatus
	if status != "" {
		parsed, ok := domain.ParseStatus(status)
		if !ok {
			return nil, 0, fmt.Errorf("unknown status %q", status)
		}
		st = parsed
	}
	all, err := s.tasks.List(ctx, persistence.Filter{Status: st})
	if err != nil {
		return nil, 0, err
	}
	total := len(all)
	if offset > 0 {
		if offset >= len(all) {
			return nil, total, nil
		}
		all = all[offset:]
	}
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (s *taskService) Delete(ctx context.Context, id string) (bool, error) {
	var wasProcessing bool
	_, err := s.tasks.Update(ctx, id, func(rec *domain.Task) error {
		wasProcessing = rec.Status == domain.StatusProcessing
		if wasProcessing {
			rec.DeleteRequested = true
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if wasProcessing {
		s.logger.Info("deletion deferred until terminal", slog.String("task_id", id))
		return true, nil
	}

	if err := s.blobs.Delete(ctx, id); err != nil {
		return false, fmt.Errorf("delete artifacts: %w", err)
	}
	if _, err := s.tasks.Delete(ctx, id); err != nil {
		return false, err
	}
	s.logger.Info("task deleted", slog.String("task_id", id))
	return false, nil
}

func (s *taskService) Artifact(ctx context.Context, id, kind string) ([]byte, string, error) {
	k, ok := domain.ParseResultKind(kind)
	if !ok {
		return nil, "", ErrUnknownKind
	}
	task, err := s.tasks.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}

	if k != domain.KindInput {
		if _, recorded := task.ResultRefs[k]; !recorded {
			return nil, "", ErrNotReady
		}
	}
	data, err := s.blobs.Get(ctx, id, k)
	if err != nil {
		if errors.Is(err, artifacts.ErrNotFound) {
			return nil, "", ErrNotReady
		}
		return nil, "", err
	}

	ct := k.ContentType()
	if k == domain.KindInput {
		ct = sniffInputType(task.Type, data)
	}
	return data, ct, nil
}

func sniffInputType(typ domain.TaskType, data []byte) string {
	if typ == domain.TypeDiagramFile {
		return "application/json"
	}
	if isJPEG(data) {
		return "image/jpeg"
	}
	return "image/png"
}

var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func isPNG(data []byte) bool { return bytes.HasPrefix(data, pngMagic) }

func isJPEG(data []byte) bool {
	return len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF
}

// validatePayload checks content, not extension: rasters must carry PNG or
// JPEG magic bytes, diagram files must be a JSON object.
func validatePayload(typ domain.TaskType, payload []byte) error {
	switch typ {
	case domain.TypeImage:
		if !isPNG(payload) && !isJPEG(payload) {
			return ErrInvalidInput
		}
	case domain.TypeDiagramFile:
		trimmed := bytes.TrimSpace(payload)
		if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
			return ErrInvalidInput
		}
	default:
		return ErrUnsupportedType
	}
	return nil
}
