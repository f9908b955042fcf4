// Package pipeline defines the staged processing model: an ordered list of
// named stages per task type, each producing one artifact and advancing the
// task's progress to a fixed milestone.
package pipeline

import (
	"context"
	"fmt"

	"github.com/diagramq/diagramq/internal/analyzer"
	"github.com/diagramq/diagramq/internal/diagram"
	"github.com/diagramq/diagramq/pkg/domain"
)

// Context is the mutable state threaded through a pipeline run. Stages read
// the fields earlier stages populated and fill in their own.
type Context struct {
	Task *domain.Task

	// Input is the raw submitted payload (raster bytes or .mdj JSON).
	Input []byte

	Structure *diagram.Model
	Analysis  *analyzer.ErrorAnalysis

	// Source is PlantUML text once a stage has produced it.
	Source string

	// Image is the working raster: the submitted one for image tasks,
	// the rendered one for diagram-file tasks.
	Image []byte
}

// Stage is one unit of pipeline work. Run returns the artifact bytes to
// persist under Kind; it must leave Context updated for downstream stages.
type Stage struct {
	Name      string
	Milestone int
	Kind      domain.ResultKind
	Run       func(ctx context.Context, pc *Context) ([]byte, error)
}

// StageError wraps a failure with the stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return "stage " + e.Stage + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// Pipeline is the ordered stage list for one task type.
type Pipeline struct {
	Type   domain.TaskType
	Stages []Stage
}

// Registry maps task types to their pipelines.
type Registry struct {
	pipelines map[domain.TaskType]*Pipeline
}

func NewRegistry() *Registry {
	return &Registry{pipelines: make(map[domain.TaskType]*Pipeline)}
}

// Register validates and adds a pipeline. Milestones must be strictly
// increasing and below 100; stage names must be unique within the pipeline.
func (r *Registry) Register(p *Pipeline) error {
	if p == nil || len(p.Stages) == 0 {
		return fmt.Errorf("pipeline for %q has no stages", p.Type)
	}
	if _, exists := r.pipelines[p.Type]; exists {
		return fmt.Errorf("pipeline for %q already registered", p.Type)
	}
	seen := make(map[string]bool, len(p.Stages))
	prev := 0
	for i, s := range p.Stages {
		if s.Name == "" {
			return fmt.Errorf("pipeline %q: stage %d has no name", p.Type, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("pipeline %q: duplicate stage %q", p.Type, s.Name)
		}
		seen[s.Name] = true
		if s.Run == nil {
			return fmt.Errorf("pipeline %q: stage %q has no run func", p.Type, s.Name)
		}
		if s.Milestone <= prev || s.Milestone >= 100 {
			return fmt.Errorf("pipeline %q: stage %q milestone %d not in (%d, 100)", p.Type, s.Name, s.Milestone, prev)
		}
		prev = s.Milestone
	}
	r.pipelines[p.Type] = p
	return nil
}

// Lookup returns the pipeline for the task type.
func (r *Registry) Lookup(t domain.TaskType) (*Pipeline, error) {
	p, ok := r.pipelines[t]
	if !ok {
		return nil, fmt.Errorf("no pipeline registered for task type %q", t)
	}
	return p, nil
}

// Types lists the registered task types.
func (r *Registry) Types() []domain.TaskType {
	out := make([]domain.TaskType, 0, len(r.pipelines))
	for t := range r.pipelines {
		out = append(out, t)
	}
	return out
}

// DefaultRegistry wires both built-in pipelines against the given analyzer.
func DefaultRegistry(client analyzer.Client) (*Registry, error) {
	r := NewRegistry()
	if err := r.Register(ImagePipeline(client)); err != nil {
		return nil, err
	}
	if err := r.Register(DiagramFilePipeline(client)); err != nil {
		return nil, err
	}
	return r, nil
}
