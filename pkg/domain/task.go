package domain

import (
	"encoding"
	"fmt"
	"time"
)

type TaskType string

const (
	TypeImage       TaskType = "image"
	TypeDiagramFile TaskType = "diagram-file"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// AllStatuses lists every task status in a stable order.
var AllStatuses = []TaskStatus{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}

// Terminal reports whether no further stage execution occurs in this status.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether the status graph permits moving to next.
// Valid paths: pending -> processing -> processing* -> completed | failed.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusProcessing || next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// ParseTaskType converts s into a TaskType, or reports it as unsupported.
func ParseTaskType(s string) (TaskType, bool) {
	switch TaskType(s) {
	case TypeImage:
		return TypeImage, true
	case TypeDiagramFile:
		return TypeDiagramFile, true
	default:
		return "", false
	}
}

// ParseStatus converts s into a TaskStatus, or reports it as unknown.
func ParseStatus(s string) (TaskStatus, bool) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// ResultKind names one artifact slot of a task. Every pipeline writes each kind
// at most once; `input` is written by submission, the rest by stages.
type ResultKind string

const (
	KindInput            ResultKind = "input"
	KindStructure        ResultKind = "structure"
	KindErrorAnalysis    ResultKind = "error_analysis"
	KindAnnotatedImage   ResultKind = "annotated_image"
	KindCorrectedDiagram ResultKind = "corrected_diagram"
	KindCorrectedImage   ResultKind = "corrected_image"
)

// ResultKinds lists the kinds a completed pipeline produces (input excluded).
var ResultKinds = []ResultKind{
	KindStructure,
	KindErrorAnalysis,
	KindAnnotatedImage,
	KindCorrectedDiagram,
	KindCorrectedImage,
}

// ParseResultKind converts s into a ResultKind, or reports it as unknown.
func ParseResultKind(s string) (ResultKind, bool) {
	if ResultKind(s) == KindInput {
		return KindInput, true
	}
	for _, k := range ResultKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// ContentType returns the MIME type artifacts of this kind are served with.
func (k ResultKind) ContentType() string {
	switch k {
	case KindStructure, KindErrorAnalysis:
		return "application/json"
	case KindAnnotatedImage, KindCorrectedImage:
		return "image/png"
	case KindCorrectedDiagram:
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

type Task struct {
	ID     string     `json:"id"`
	Type   TaskType   `json:"type"`
	Status TaskStatus `json:"status"`
	// Progress is 0-100 and non-decreasing while the task is not failed.
	Progress int `json:"progress"`
	// StageIndex counts completed stages; CurrentStage names the stage that is
	// active, or the last one that ran once the task is terminal.
	StageIndex       int    `json:"stageIndex"`
	CurrentStage     string `json:"currentStage,omitempty"`
	OriginalFilename string `json:"originalFilename,omitempty"`
	ErrorMessage     string `json:"errorMessage,omitempty"`
	InputRef         string `json:"inputRef,omitempty"`
	// ResultRefs maps result kinds to artifact store references. Entries are
	// written at most once per kind.
	ResultRefs map[ResultKind]string `json:"resultRefs,omitempty"`
	// DeleteRequested marks a task whose deletion was deferred because it was
	// processing at the time; the owning worker purges it after the terminal
	// transition.
	DeleteRequested bool `json:"deleteRequested,omitempty"`
	// TraceParent/TraceState carry W3C trace context from the submit request
	// so worker-side spans correlate with it.
	TraceParent string    `json:"traceParent,omitempty"`
	TraceState  string    `json:"traceState,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Clone returns a deep copy; stores hand out clones so callers never share
// the map with a record held inside a store.
func (t *Task) Clone() *Task {
	cp := *t
	if t.ResultRefs != nil {
		cp.ResultRefs = make(map[ResultKind]string, len(t.ResultRefs))
		for k, v := range t.ResultRefs {
			cp.ResultRefs[k] = v
		}
	}
	return &cp
}

// Transition moves the task to next after validating it against the
// status graph; writers go through here so the invariant lives in one place.
func (t *Task) Transition(next TaskStatus) error {
	if !t.Status.CanTransition(next) {
		return fmt.Errorf("invalid status transition %s -> %s", t.Status, next)
	}
	t.Status = next
	return nil
}

// SetResultRef records ref under kind, refusing to overwrite an existing
// entry. Returns false when the kind was already set.
func (t *Task) SetResultRef(kind ResultKind, ref string) bool {
	if t.ResultRefs == nil {
		t.ResultRefs = make(map[ResultKind]string)
	}
	if _, ok := t.ResultRefs[kind]; ok {
		return false
	}
	t.ResultRefs[kind] = ref
	return true
}

var (
	_ encoding.BinaryMarshaler = TaskType("")
	_ encoding.TextMarshaler   = TaskType("")
	_ encoding.BinaryMarshaler = TaskStatus("")
	_ encoding.TextMarshaler   = TaskStatus("")
)

func (t TaskType) MarshalBinary() ([]byte, error) { return []byte(string(t)), nil }
func (t TaskType) MarshalText() ([]byte, error)   { return []byte(string(t)), nil }

func (s TaskStatus) MarshalBinary() ([]byte, error) { return []byte(string(s)), nil }
func (s TaskStatus) MarshalText() ([]byte, error)   { return []byte(string(s)), nil }
