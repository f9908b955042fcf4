package pipeline

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/diagramq/diagramq/internal/analyzer"
	"github.com/diagramq/diagramq/internal/diagram"
	"github.com/diagramq/diagramq/pkg/domain"
)

// DiagramFilePipeline processes a StarUML .mdj file: parse it into the
// intermediate model, emit PlantUML, render a raster, then run the same
// error detection and annotation the image pipeline uses.
func DiagramFilePipeline(client analyzer.Client) *Pipeline {
	return &Pipeline{
		Type: domain.TypeDiagramFile,
		Stages: []Stage{
			{
				Name:      "parse-structure",
				Milestone: 30,
				Kind:      domain.KindStructure,
				Run: func(ctx context.Context, pc *Context) ([]byte, error) {
					model, err := diagram.ParseStarUML(pc.Input)
					if err != nil {
						return nil, err
					}
					pc.Structure = model
					return json.Marshal(model)
				},
			},
			{
				Name:      "generate-intermediate-representation",
				Milestone: 50,
				Kind:      domain.KindCorrectedDiagram,
				Run: func(ctx context.Context, pc *Context) ([]byte, error) {
					if pc.Structure == nil {
						return nil, errors.New("no structure to convert")
					}
					pc.Source = diagram.GeneratePlantUML(pc.Structure)
					return []byte(pc.Source), nil
				},
			},
			{
				Name:      "render-image",
				Milestone: 70,
				Kind:      domain.KindCorrectedImage,
				Run: func(ctx context.Context, pc *Context) ([]byte, error) {
					if pc.Structure == nil {
						return nil, errors.New("no structure to render")
					}
					img, err := diagram.Render(pc.Structure)
					if err != nil {
						return nil, err
					}
					pc.Image = img
					return img, nil
				},
			},
			{
				Name:      "detect-errors",
				Milestone: 85,
				Kind:      domain.KindErrorAnalysis,
				Run:       detectErrorsStage(client),
			},
			{
				Name:      "annotate-image",
				Milestone: 95,
				Kind:      domain.KindAnnotatedImage,
				Run:       annotateImageStage(),
			},
		},
	}
}
