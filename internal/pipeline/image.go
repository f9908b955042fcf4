package pipeline

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/diagramq/diagramq/internal/analyzer"
	"github.com/diagramq/diagramq/internal/diagram"
	"github.com/diagramq/diagramq/pkg/domain"
)

// ImagePipeline analyzes a submitted raster: extract structure, find errors,
// annotate the original, propose a correction, render the corrected diagram.
func ImagePipeline(client analyzer.Client) *Pipeline {
	return &Pipeline{
		Type: domain.TypeImage,
		Stages: []Stage{
			{
				Name:      "analyze-structure",
				Milestone: 30,
				Kind:      domain.KindStructure,
				Run: func(ctx context.Context, pc *Context) ([]byte, error) {
					resp, err := client.Analyze(ctx, analyzer.Request{
						Op:    analyzer.OpAnalyzeStructure,
						Image: pc.Input,
					})
					if err != nil {
						return nil, err
					}
					if resp.Structure == nil {
						return nil, errors.New("analyzer returned no structure")
					}
					pc.Structure = resp.Structure
					pc.Image = pc.Input
					return json.Marshal(resp.Structure)
				},
			},
			{
				Name:      "detect-errors",
				Milestone: 50,
				Kind:      domain.KindErrorAnalysis,
				Run:       detectErrorsStage(client),
			},
			{
				Name:      "annotate-image",
				Milestone: 70,
				Kind:      domain.KindAnnotatedImage,
				Run:       annotateImageStage(),
			},
			{
				Name:      "generate-correction",
				Milestone: 85,
				Kind:      domain.KindCorrectedDiagram,
				Run: func(ctx context.Context, pc *Context) ([]byte, error) {
					source := pc.Source
					if source == "" && pc.Structure != nil {
						source = diagram.GeneratePlantUML(pc.Structure)
					}
					resp, err := client.Analyze(ctx, analyzer.Request{
						Op:       analyzer.OpGenerateCorrection,
						Source:   source,
						Analysis: pc.Analysis,
					})
					if err != nil {
						return nil, err
					}
					if resp.Correction == nil || resp.Correction.Source == "" {
						return nil, errors.New("analyzer returned no correction")
					}
					pc.Source = resp.Correction.Source
					return []byte(resp.Correction.Source), nil
				},
			},
			{
				Name:      "render-corrected-image",
				Milestone: 95,
				Kind:      domain.KindCorrectedImage,
				Run: func(ctx context.Context, pc *Context) ([]byte, error) {
					if pc.Structure == nil {
						return nil, errors.New("no structure to render")
					}
					return diagram.Render(pc.Structure)
				},
			},
		},
	}
}

// detectErrorsStage is shared by both pipelines; it needs pc.Structure set.
func detectErrorsStage(client analyzer.Client) func(context.Context, *Context) ([]byte, error) {
	return func(ctx context.Context, pc *Context) ([]byte, error) {
		if pc.Structure == nil {
			return nil, errors.New("no structure to analyze")
		}
		resp, err := client.Analyze(ctx, analyzer.Request{
			Op:        analyzer.OpDetectErrors,
			Structure: pc.Structure,
		})
		if err != nil {
			return nil, err
		}
		if resp.Analysis == nil {
			return nil, errors.New("analyzer returned no analysis")
		}
		pc.Analysis = resp.Analysis
		return json.Marshal(resp.Analysis)
	}
}

// annotateImageStage overlays finding markers on pc.Image.
func annotateImageStage() func(context.Context, *Context) ([]byte, error) {
	return func(ctx context.Context, pc *Context) ([]byte, error) {
		if len(pc.Image) == 0 {
			return nil, errors.New("no image to annotate")
		}
		return diagram.Annotate(pc.Image, analyzer.Markers(pc.Analysis))
	}
}
