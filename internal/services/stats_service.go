package services

import (
	"context"

	"github.com/diagramq/diagramq/internal/scheduler"
	"github.com/diagramq/diagramq/pkg/domain"
	"github.com/diagramq/diagramq/pkg/persistence"
)

type StatsService interface {
	Stats(ctx context.Context) (*domain.Stats, error)
}

type statsService struct {
	tasks persistence.TaskStore
	sched *scheduler.Scheduler
}

func NewStatsService(tasks persistence.TaskStore, sched *scheduler.Scheduler) StatsService {
	return &statsService{tasks: tasks, sched: sched}
}

// Stats counts tasks from a single store snapshot so the per-status numbers
// always sum to the total.
func (s *statsService) Stats(ctx context.Context) (*domain.Stats, error) {
	all, err := s.tasks.List(ctx, persistence.Filter{})
	if err != nil {
		return nil, err
	}
	stats := &domain.Stats{}
	for _, t := range all {
		stats.Add(t.Status)
	}
	if s.sched != nil {
		stats.QueueDepth = s.sched.QueueDepth()
		stats.Workers = s.sched.Workers()
	}
	return stats, nil
}
