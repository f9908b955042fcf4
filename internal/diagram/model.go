// Package diagram holds the intermediate representation of a parsed diagram
// and the transforms between its forms: StarUML JSON in, PlantUML source and
// rendered raster out.
package diagram

// Model is the normalized structure extracted from a diagram, independent of
// whether it came from a .mdj file or a multimodal analysis of a raster.
type Model struct {
	DiagramType   string         `json:"diagram_type"`
	Elements      []Element      `json:"elements"`
	Relationships []Relationship `json:"relationships"`
	Notes         []string       `json:"notes,omitempty"`
}

type Element struct {
	// Kind is one of class, interface, enum.
	Kind        string   `json:"type"`
	Name        string   `json:"name"`
	Attributes  []string `json:"attributes,omitempty"`
	Methods     []string `json:"methods,omitempty"`
	Stereotypes []string `json:"stereotypes,omitempty"`
}

type Relationship struct {
	// Kind is one of inheritance, implementation, association, dependency.
	Kind         string `json:"type"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	Multiplicity string `json:"multiplicity,omitempty"`
	Label        string `json:"label,omitempty"`
}
