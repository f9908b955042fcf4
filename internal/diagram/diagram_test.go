package diagram

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
)

const sampleMDJ = `{
  "_type": "Project",
  "name": "shop",
  "ownedElements": [
    {
      "_type": "UMLModel",
      "name": "Model",
      "ownedElements": [
        {
          "_type": "UMLClass",
          "name": "Order",
          "attributes": [
            {"_type": "UMLAttribute", "name": "id", "type": "int", "visibility": "private"},
            {"_type": "UMLAttribute", "name": "total", "type": "decimal", "visibility": "private"}
          ],
          "operations": [
            {"_type": "UMLOperation", "name": "checkout", "visibility": "public", "returnType": "bool"}
          ]
        },
        {
          "_type": "UMLInterface",
          "name": "Payable",
          "operations": [
            {"_type": "UMLOperation", "name": "pay", "visibility": "public"}
          ]
        },
        {
          "_type": "UMLRealization",
          "name": "",
          "source": {"name": "Order"},
          "target": {"name": "Payable"}
        }
      ]
    }
  ]
}`

func TestParseStarUML(t *testing.T) {
	model, err := ParseStarUML([]byte(sampleMDJ))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(model.Elements) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(model.Elements))
	}
	order := model.Elements[0]
	if order.Name != "Order" || order.Kind != "class" {
		t.Fatalf("unexpected first element: %+v", order)
	}
	if len(order.Attributes) != 2 || order.Attributes[0] != "private id: int" {
		t.Fatalf("unexpected attributes: %v", order.Attributes)
	}
	if len(order.Methods) != 1 || order.Methods[0] != "public checkout(): bool" {
		t.Fatalf("unexpected methods: %v", order.Methods)
	}
	if model.Elements[1].Kind != "interface" {
		t.Fatalf("expected interface, got %s", model.Elements[1].Kind)
	}
	if len(model.Relationships) != 1 || model.Relationships[0].Kind != "implementation" {
		t.Fatalf("unexpected relationships: %+v", model.Relationships)
	}
	if model.Relationships[0].Source != "Order" || model.Relationships[0].Target != "Payable" {
		t.Fatalf("relationship endpoints wrong: %+v", model.Relationships[0])
	}
}

func TestParseStarUMLRejectsGarbage(t *testing.T) {
	if _, err := ParseStarUML([]byte("not json")); err == nil {
		t.Fatalf("expected error for invalid json")
	}
	if _, err := ParseStarUML([]byte(`{"_type":"Project"}`)); err == nil {
		t.Fatalf("expected error for file without UML elements")
	}
}

func TestGeneratePlantUML(t *testing.T) {
	model, err := ParseStarUML([]byte(sampleMDJ))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	src := GeneratePlantUML(model)

	for _, want := range []string{
		"@startuml", "@enduml",
		"class Order {", "interface Payable {",
		"private id: int", "--", "public checkout(): bool",
		"Order ..|> Payable",
	} {
		if !strings.Contains(src, want) {
			t.Fatalf("plantuml source missing %q:\n%s", want, src)
		}
	}
}

func TestRenderProducesValidPNG(t *testing.T) {
	model, err := ParseStarUML([]byte(sampleMDJ))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := Render(model)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a valid png: %v", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		t.Fatalf("degenerate canvas: %dx%d", cfg.Width, cfg.Height)
	}
}

func TestRenderEmptyModel(t *testing.T) {
	if _, err := Render(&Model{}); err == nil {
		t.Fatalf("expected error for empty model")
	}
}

func TestAnnotateKeepsDimensions(t *testing.T) {
	model, err := ParseStarUML([]byte(sampleMDJ))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	base, err := Render(model)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	annotated, err := Annotate(base, []Marker{
		{Label: "missing multiplicity", Severity: "high"},
		{Label: "ambiguous name", Severity: "low"},
	})
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}
	if bytes.Equal(annotated, base) {
		t.Fatalf("annotation did not change the image")
	}

	src, err := imaging.Decode(bytes.NewReader(base))
	if err != nil {
		t.Fatalf("decode base: %v", err)
	}
	out, err := imaging.Decode(bytes.NewReader(annotated))
	if err != nil {
		t.Fatalf("decode annotated: %v", err)
	}
	if src.Bounds() != out.Bounds() {
		t.Fatalf("annotation changed dimensions: %v vs %v", src.Bounds(), out.Bounds())
	}
}

func TestAnnotateRejectsBadImage(t *testing.T) {
	if _, err := Annotate([]byte("not an image"), nil); err == nil {
		t.Fatalf("expected decode error")
	}
}
