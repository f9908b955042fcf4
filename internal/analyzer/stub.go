package analyzer

import (
	"context"

	"github.com/diagramq/diagramq/internal/diagram"
)

// Stub is a deterministic Client for tests and for running without an
// analyzer backend. Responses are fixed per op.
type Stub struct {
	// FailOp makes the named op return Err (or a generic error).
	FailOp Op
	Err    error
	// Hook runs before every call when set; returning an error aborts the op.
	Hook func(ctx context.Context, req Request) error
}

func (s *Stub) Analyze(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Hook != nil {
		if err := s.Hook(ctx, req); err != nil {
			return nil, err
		}
	}
	if s.FailOp == req.Op {
		if s.Err != nil {
			return nil, s.Err
		}
		return nil, &opError{op: req.Op}
	}

	switch req.Op {
	case OpAnalyzeStructure:
		return &Response{Structure: stubStructure()}, nil
	case OpDetectErrors:
		return &Response{Analysis: stubAnalysis()}, nil
	case OpGenerateCorrection:
		return &Response{Correction: stubCorrection(req.Source)}, nil
	default:
		return nil, &opError{op: req.Op}
	}
}

type opError struct{ op Op }

func (e *opError) Error() string { return "analyzer op failed: " + string(e.op) }

func stubStructure() *diagram.Model {
	return &diagram.Model{
		DiagramType: "class",
		Elements: []diagram.Element{
			{
				Kind:       "class",
				Name:       "Order",
				Attributes: []string{"- id: UUID", "- total: Decimal"},
				Methods:    []string{"+ place(): void"},
			},
			{
				Kind:    "interface",
				Name:    "Payable",
				Methods: []string{"+ pay(): Receipt"},
			},
		},
		Relationships: []diagram.Relationship{
			{Kind: "realization", Source: "Order", Target: "Payable"},
		},
	}
}

func stubAnalysis() *ErrorAnalysis {
	return &ErrorAnalysis{
		Findings: []Finding{
			{
				Code:     "missing-type",
				Severity: "medium",
				Message:  "attribute 'total' should declare a unit-aware money type",
				Element:  "Order",
			},
			{
				Code:     "naming",
				Severity: "low",
				Message:  "interface 'Payable' methods should document failure modes",
				Element:  "Payable",
			},
		},
		Summary: Summary{ErrorCount: 2, SeverityLevel: "medium"},
	}
}

func stubCorrection(source string) *Correction {
	corrected := source
	if corrected == "" {
		corrected = "@startuml\nclass Order {\n  - id: UUID\n  - total: Money\n  + place(): void\n}\ninterface Payable {\n  + pay(): Receipt\n}\nOrder ..|> Payable\n@enduml\n"
	}
	return &Correction{
		Source: corrected,
		Notes:  []string{"declared Money type for Order.total", "kept realization arrow direction"},
	}
}
