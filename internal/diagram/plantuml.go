package diagram

import (
	"strings"
)

// GeneratePlantUML turns a model into PlantUML source. The output is the
// canonical text form of a diagram in this system: corrections are expressed
// as PlantUML and rendered back to raster from it.
func GeneratePlantUML(m *Model) string {
	var b strings.Builder
	b.WriteString("@startuml\n")

	title := titleCase(strings.ReplaceAll(m.DiagramType, "_", " "))
	if title != "" {
		b.WriteString("title " + title + "\n")
	}
	b.WriteString("\n")

	for _, el := range m.Elements {
		switch el.Kind {
		case "interface":
			b.WriteString("interface " + el.Name + " {\n")
		case "enum":
			b.WriteString("enum " + el.Name + " {\n")
		default:
			b.WriteString("class " + el.Name + " {\n")
		}
		for _, attr := range el.Attributes {
			b.WriteString("  " + attr + "\n")
		}
		if len(el.Attributes) > 0 && len(el.Methods) > 0 {
			b.WriteString("  --\n")
		}
		for _, method := range el.Methods {
			b.WriteString("  " + method + "\n")
		}
		b.WriteString("}\n\n")
	}

	for _, rel := range m.Relationships {
		line := rel.Source + " " + relationshipArrow(rel.Kind) + " " + rel.Target
		if rel.Label != "" {
			line += " : " + rel.Label
		}
		if rel.Multiplicity != "" {
			line += " [" + rel.Multiplicity + "]"
		}
		b.WriteString(line + "\n")
	}

	for _, note := range m.Notes {
		b.WriteString("note top : " + note + "\n")
	}

	b.WriteString("@enduml\n")
	return b.String()
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func relationshipArrow(kind string) string {
	switch kind {
	case "inheritance", "generalization":
		return "--|>"
	case "implementation", "realization":
		return "..|>"
	case "dependency":
		return "..>"
	default:
		return "-->"
	}
}
