// Package analyzer wraps the external multimodal analysis capability behind
// an explicit request/response contract. Callers never see provider payloads;
// they get typed results validated against a JSON schema.
package analyzer

import (
	"context"

	"github.com/diagramq/diagramq/internal/diagram"
)

// Op selects which analysis the capability performs.
type Op string

const (
	OpAnalyzeStructure   Op = "analyze-structure"
	OpDetectErrors       Op = "detect-errors"
	OpGenerateCorrection Op = "generate-correction"
)

// Request carries whatever forms of the diagram are available. Image is a
// raster (PNG or JPEG), Source is PlantUML text, Structure the parsed model;
// any subset may be set depending on the pipeline position.
type Request struct {
	Op        Op
	Image     []byte
	Source    string
	Structure *diagram.Model
	Analysis  *ErrorAnalysis
}

// Finding is one detected problem in a diagram.
type Finding struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Element  string `json:"element,omitempty"`
}

type Summary struct {
	ErrorCount    int    `json:"error_count"`
	SeverityLevel string `json:"severity_level"`
}

type ErrorAnalysis struct {
	Findings []Finding `json:"findings"`
	Summary  Summary   `json:"summary"`
}

// Correction is a proposed fixed version of the diagram.
type Correction struct {
	Source string   `json:"corrected_plantuml"`
	Notes  []string `json:"notes,omitempty"`
}

// Response holds exactly the field corresponding to the requested op.
type Response struct {
	Structure  *diagram.Model `json:"structure,omitempty"`
	Analysis   *ErrorAnalysis `json:"analysis,omitempty"`
	Correction *Correction    `json:"correction,omitempty"`
}

// Client is the analysis capability. Implementations must honor ctx
// cancellation; a single call has exactly one outcome.
type Client interface {
	Analyze(ctx context.Context, req Request) (*Response, error)
}

// Markers converts findings into annotation markers for the image overlay.
func Markers(a *ErrorAnalysis) []diagram.Marker {
	if a == nil {
		return nil
	}
	out := make([]diagram.Marker, 0, len(a.Findings))
	for _, f := range a.Findings {
		out = append(out, diagram.Marker{Label: f.Message, Severity: f.Severity})
	}
	return out
}
