package diagram

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseStarUML extracts the UML structure from a StarUML .mdj project file.
// The .mdj format is a JSON tree of typed nodes; classes, interfaces, enums
// and the relationships between them can appear at any depth under
// ownedElements, so the whole tree is walked.
func ParseStarUML(data []byte) (*Model, error) {
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse staruml json: %w", err)
	}

	model := &Model{DiagramType: "class_diagram"}
	walkStarUML(root, model)
	if len(model.Elements) == 0 {
		return nil, fmt.Errorf("no UML elements found in staruml file")
	}
	return model, nil
}

func walkStarUML(node any, model *Model) {
	switch v := node.(type) {
	case map[string]any:
		switch nodeType(v) {
		case "UMLClass", "UMLInterface", "UMLEnumeration":
			model.Elements = append(model.Elements, elementFrom(v))
		case "UMLGeneralization":
			model.Relationships = append(model.Relationships, relationshipFrom(v, "inheritance"))
		case "UMLRealization":
			model.Relationships = append(model.Relationships, relationshipFrom(v, "implementation"))
		case "UMLAssociation":
			model.Relationships = append(model.Relationships, relationshipFrom(v, "association"))
		case "UMLDependency":
			model.Relationships = append(model.Relationships, relationshipFrom(v, "dependency"))
		}
		for key, child := range v {
			if key == "_type" || key == "_id" || key == "_parent" {
				continue
			}
			walkStarUML(child, model)
		}
	case []any:
		for _, item := range v {
			walkStarUML(item, model)
		}
	}
}

func nodeType(node map[string]any) string {
	t, _ := node["_type"].(string)
	return t
}

func nodeName(node map[string]any) string {
	if n, ok := node["name"].(string); ok && n != "" {
		return n
	}
	return "Unknown"
}

func elementFrom(node map[string]any) Element {
	el := Element{
		Kind: strings.ToLower(strings.TrimPrefix(nodeType(node), "UML")),
		Name: nodeName(node),
	}
	if el.Kind == "enumeration" {
		el.Kind = "enum"
	}
	for _, raw := range childList(node, "attributes") {
		attr, ok := raw.(map[string]any)
		if !ok || nodeName(attr) == "Unknown" {
			continue
		}
		s := strings.TrimSpace(str(attr, "visibility") + " " + nodeName(attr))
		if t := str(attr, "type"); t != "" {
			s += ": " + t
		}
		el.Attributes = append(el.Attributes, s)
	}
	for _, raw := range childList(node, "operations") {
		op, ok := raw.(map[string]any)
		if !ok || nodeName(op) == "Unknown" {
			continue
		}
		s := strings.TrimSpace(str(op, "visibility") + " " + nodeName(op) + "()")
		if rt := str(op, "returnType"); rt != "" {
			s = strings.TrimSuffix(s, "()") + "(): " + rt
		}
		el.Methods = append(el.Methods, s)
	}
	return el
}

func relationshipFrom(node map[string]any, kind string) Relationship {
	rel := Relationship{
		Kind:         kind,
		Source:       endpointName(node, "source"),
		Target:       endpointName(node, "target"),
		Multiplicity: str(node, "multiplicity"),
	}
	if n, ok := node["name"].(string); ok {
		rel.Label = n
	}
	return rel
}

func endpointName(node map[string]any, key string) string {
	end, ok := node[key].(map[string]any)
	if !ok {
		return "Unknown"
	}
	return nodeName(end)
}

func childList(node map[string]any, key string) []any {
	list, _ := node[key].([]any)
	return list
}

func str(node map[string]any, key string) string {
	s, _ := node[key].(string)
	return s
}
