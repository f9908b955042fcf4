package analyzer

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Provider output is untrusted; each op's response is validated against a
// compiled schema before it is decoded into typed results.

const structureSchema = `{
	"type": "object",
	"required": ["structure"],
	"properties": {
		"structure": {
			"type": "object",
			"required": ["elements"],
			"properties": {
				"diagram_type": {"type": "string"},
				"elements": {
					"type": "array",
					"minItems": 1,
					"items": {
						"type": "object",
						"required": ["type", "name"],
						"properties": {
							"type": {"type": "string", "enum": ["class", "interface", "enum"]},
							"name": {"type": "string", "minLength": 1},
							"attributes": {"type": "array", "items": {"type": "string"}},
							"methods": {"type": "array", "items": {"type": "string"}}
						}
					}
				},
				"relationships": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["type", "source", "target"],
						"properties": {
							"type": {"type": "string"},
							"source": {"type": "string"},
							"target": {"type": "string"}
						}
					}
				}
			}
		}
	}
}`

const analysisSchema = `{
	"type": "object",
	"required": ["analysis"],
	"properties": {
		"analysis": {
			"type": "object",
			"required": ["findings", "summary"],
			"properties": {
				"findings": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["code", "severity", "message"],
						"properties": {
							"code": {"type": "string", "minLength": 1},
							"severity": {"type": "string", "enum": ["high", "medium", "low"]},
							"message": {"type": "string", "minLength": 1},
							"element": {"type": "string"}
						}
					}
				},
				"summary": {
					"type": "object",
					"required": ["error_count", "severity_level"],
					"properties": {
						"error_count": {"type": "integer", "minimum": 0},
						"severity_level": {"type": "string"}
					}
				}
			}
		}
	}
}`

const correctionSchema = `{
	"type": "object",
	"required": ["correction"],
	"properties": {
		"correction": {
			"type": "object",
			"required": ["corrected_plantuml"],
			"properties": {
				"corrected_plantuml": {"type": "string", "minLength": 1},
				"notes": {"type": "array", "items": {"type": "string"}}
			}
		}
	}
}`

var responseSchemas = map[Op]*jsonschema.Schema{
	OpAnalyzeStructure:   jsonschema.MustCompileString("analyzer://structure.json", structureSchema),
	OpDetectErrors:       jsonschema.MustCompileString("analyzer://analysis.json", analysisSchema),
	OpGenerateCorrection: jsonschema.MustCompileString("analyzer://correction.json", correctionSchema),
}

// validateResponse checks raw against the op's schema and decodes it.
func validateResponse(op Op, raw []byte) (*Response, error) {
	schema, ok := responseSchemas[op]
	if !ok {
		return nil, fmt.Errorf("no schema for op %s", op)
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("analyzer response is not valid JSON: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("analyzer response failed schema validation: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode analyzer response: %w", err)
	}
	return &resp, nil
}
