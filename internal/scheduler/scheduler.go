// Package scheduler runs submitted tasks through their pipelines on a fixed
// pool of workers fed by a bounded FIFO queue.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/diagramq/diagramq/internal/artifacts"
	"github.com/diagramq/diagramq/internal/metrics"
	"github.com/diagramq/diagramq/internal/pipeline"
	"github.com/diagramq/diagramq/internal/tracing"
	"github.com/diagramq/diagramq/pkg/domain"
	"github.com/diagramq/diagramq/pkg/persistence"
)

// ErrQueueFull is returned by Enqueue when the bounded queue is at capacity.
var ErrQueueFull = errors.New("task queue full")

const (
	defaultWorkers       = 2
	defaultQueueCapacity = 128
	defaultStageTimeout  = 120 * time.Second

	// interruptedMessage is recorded on tasks found mid-flight at startup.
	interruptedMessage = "interrupted: server restarted mid-stage"
)

// Options tunes the scheduler; zero values take defaults.
type Options struct {
	Workers       int
	QueueCapacity int
	StageTimeout  time.Duration
	Logger        *slog.Logger
	Now           func() time.Time
}

// Scheduler owns the worker pool. Enqueue never blocks; workers claim tasks
// one at a time and run every stage of the task's pipeline, persisting state
// after each stage.
type Scheduler struct {
	tasks     persistence.TaskStore
	blobs     artifacts.Store
	pipelines *pipeline.Registry

	queue        chan string
	workers      int
	stageTimeout time.Duration
	log          *slog.Logger
	now          func() time.Time

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(tasks persistence.TaskStore, blobs artifacts.Store, pipelines *pipeline.Registry, opts Options) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = defaultQueueCapacity
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = defaultStageTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		tasks:        tasks,
		blobs:        blobs,
		pipelines:    pipelines,
		queue:        make(chan string, opts.QueueCapacity),
		workers:      opts.Workers,
		stageTimeout: opts.StageTimeout,
		log:          opts.Logger,
		now:          opts.Now,
	}
}

// Start recovers interrupted work from the store and launches the workers.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}

	if err := s.recover(ctx); err != nil {
		return fmt.Errorf("startup recovery: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.started = true
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(runCtx, i)
	}
	s.log.Info("scheduler started",
		slog.Int("workers", s.workers),
		slog.Int("queue_capacity", cap(s.queue)))
	return nil
}

// Stop cancels in-flight stages and waits for the workers to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// Enqueue queues a pending task id for execution without blocking.
func (s *Scheduler) Enqueue(id string) error {
	select {
	case s.queue <- id:
		return nil
	default:
		return ErrQueueFull
	}
}

// QueueDepth reports how many task ids are waiting in the queue.
func (s *Scheduler) QueueDepth() int { return len(s.queue) }

// Workers reports the pool size.
func (s *Scheduler) Workers() int { return s.workers }

// recover reconciles store state from before a restart: tasks stuck in
// processing cannot resume mid-stage and are failed; pending tasks are
// re-enqueued in creation order.
func (s *Scheduler) recover(ctx context.Context) error {
	stuck, err := s.tasks.List(ctx, persistence.Filter{Status: domain.StatusProcessing})
	if err != nil {
		return err
	}
	for _, t := range stuck {
		_, err := s.tasks.Update(ctx, t.ID, func(rec *domain.Task) error {
			if rec.Status != domain.StatusProcessing {
				return nil
			}
			if err := rec.Transition(domain.StatusFailed); err != nil {
				return err
			}
			rec.ErrorMessage = interruptedMessage
			return nil
		})
		if err != nil && !errors.Is(err, persistence.ErrNotFound) {
			return err
		}
		s.log.Warn("failed interrupted task", slog.String("task_id", t.ID))
	}

	pending, err := s.tasks.List(ctx, persistence.Filter{Status: domain.StatusPending})
	if err != nil {
		return err
	}
	for _, t := range pending {
		if err := s.Enqueue(t.ID); err != nil {
			s.log.Warn("recovery enqueue failed",
				slog.String("task_id", t.ID),
				slog.String("error", err.Error()))
		}
	}
	if len(stuck) > 0 || len(pending) > 0 {
		s.log.Info("recovery complete",
			slog.Int("interrupted", len(stuck)),
			slog.Int("requeued", len(pending)))
	}
	return nil
}

func (s *Scheduler) worker(ctx context.Context, n int) {
	defer s.wg.Done()
	log := s.log.With(slog.Int("worker", n))
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.queue:
			s.process(ctx, log, id)
		}
	}
}

// process claims the task and drives it to a terminal status. Errors are
// recorded on the task record, never returned.
func (s *Scheduler) process(ctx context.Context, log *slog.Logger, id string) {
	task, err := s.claim(ctx, id)
	if err != nil {
		if !errors.Is(err, persistence.ErrNotFound) && !errors.Is(err, errNotClaimable) {
			log.Error("claim failed", slog.String("task_id", id), slog.String("error", err.Error()))
		}
		return
	}
	log = log.With(slog.String("task_id", id), slog.String("type", string(task.Type)))

	// Continue the trace started by the submit request.
	ctx = tracing.ContextWithRemoteParent(ctx, task.TraceParent, task.TraceState)
	ctx, span := otel.Tracer("diagramq/scheduler").Start(ctx, "task.process",
		trace.WithAttributes(
			attribute.String("task.id", task.ID),
			attribute.String("task.type", string(task.Type)),
		))
	defer span.End()

	pl, err := s.pipelines.Lookup(task.Type)
	if err != nil {
		s.finish(ctx, log, task, err)
		return
	}

	input, err := s.blobs.Get(ctx, task.ID, domain.KindInput)
	if err != nil {
		s.finish(ctx, log, task, fmt.Errorf("load input: %w", err))
		return
	}

	pc := &pipeline.Context{Task: task, Input: input}
	for i, stage := range pl.Stages {
		if err := ctx.Err(); err != nil {
			// Shutdown mid-task: leave the record in processing for the next
			// startup's recovery pass.
			log.Warn("stage interrupted by shutdown", slog.String("stage", stage.Name))
			return
		}
		if err := s.runStage(ctx, task, pc, stage, i); err != nil {
			metrics.StageFailuresTotal.WithLabelValues(stage.Name).Inc()
			span.RecordError(err)
			s.finish(ctx, log, task, &pipeline.StageError{Stage: stage.Name, Err: err})
			return
		}
	}
	s.finish(ctx, log, task, nil)
}

var errNotClaimable = errors.New("task not claimable")

// claim atomically moves the task from pending to processing.
func (s *Scheduler) claim(ctx context.Context, id string) (*domain.Task, error) {
	return s.tasks.Update(ctx, id, func(rec *domain.Task) error {
		if rec.Status != domain.StatusPending {
			return errNotClaimable
		}
		if err := rec.Transition(domain.StatusProcessing); err != nil {
			return err
		}
		rec.Progress = 0
		rec.StageIndex = 0
		return nil
	})
}

// runStage executes one stage under the stage timeout, stores its artifact,
// then advances the persisted record to the stage's milestone.
func (s *Scheduler) runStage(ctx context.Context, task *domain.Task, pc *pipeline.Context, stage pipeline.Stage, index int) error {
	if _, err := s.tasks.Update(ctx, task.ID, func(rec *domain.Task) error {
		rec.CurrentStage = stage.Name
		return nil
	}); err != nil {
		return err
	}

	stageCtx, cancel := context.WithTimeout(ctx, s.stageTimeout)
	defer cancel()

	start := s.now()
	out, err := stage.Run(stageCtx, pc)
	metrics.StageDurationSeconds.WithLabelValues(stage.Name).Observe(s.now().Sub(start).Seconds())
	if err != nil {
		return err
	}

	ref, err := s.blobs.Put(ctx, task.ID, stage.Kind, out)
	if err != nil {
		return fmt.Errorf("store %s artifact: %w", stage.Kind, err)
	}

	_, err = s.tasks.Update(ctx, task.ID, func(rec *domain.Task) error {
		if !rec.SetResultRef(stage.Kind, ref) {
			return fmt.Errorf("result kind %s already recorded", stage.Kind)
		}
		rec.Progress = stage.Milestone
		rec.StageIndex = index + 1
		return nil
	})
	return err
}

// finish applies the terminal transition and honors a deferred deletion.
func (s *Scheduler) finish(ctx context.Context, log *slog.Logger, task *domain.Task, runErr error) {
	// Terminal writes must land even when shutdown canceled the run context.
	wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status := domain.StatusCompleted
	if runErr != nil {
		status = domain.StatusFailed
	}
	updated, err := s.tasks.Update(wctx, task.ID, func(rec *domain.Task) error {
		if err := rec.Transition(status); err != nil {
			return err
		}
		if runErr != nil {
			rec.ErrorMessage = runErr.Error()
		} else {
			rec.Progress = 100
		}
		return nil
	})
	if err != nil {
		log.Error("terminal update failed", slog.String("error", err.Error()))
		return
	}
	if runErr != nil {
		log.Warn("task failed", slog.String("error", runErr.Error()))
	} else {
		log.Info("task completed")
	}

	metrics.TaskCompletedTotal.WithLabelValues(string(task.Type), string(status)).Inc()
	metrics.TaskProcessingLatencySeconds.WithLabelValues(string(task.Type), string(status)).
		Observe(s.now().Sub(task.CreatedAt).Seconds())

	if updated.DeleteRequested {
		s.purge(wctx, log, task.ID)
	}
}

// purge removes a task whose deletion was deferred while it was processing.
func (s *Scheduler) purge(ctx context.Context, log *slog.Logger, id string) {
	if err := s.blobs.Delete(ctx, id); err != nil {
		log.Error("deferred artifact delete failed", slog.String("error", err.Error()))
		return
	}
	if _, err := s.tasks.Delete(ctx, id); err != nil {
		log.Error("deferred record delete failed", slog.String("error", err.Error()))
		return
	}
	log.Info("deferred deletion applied")
}
