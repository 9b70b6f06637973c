package ingest

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// callbackSchema is the contract every inbound callback must satisfy before
// anything is persisted.
var callbackSchema = map[string]any{
	"type":     "object",
	"required": []any{"workflowId", "step", "stepIndex", "traceId"},
	"properties": map[string]any{
		"workflowId": map[string]any{"type": "string", "minLength": 1},
		"step":       map[string]any{"type": "string", "minLength": 1},
		"stepIndex":  map[string]any{"type": "integer", "minimum": 1},
		"traceId":    map[string]any{"type": "string", "minLength": 1},
		"output":     map[string]any{"type": "object"},
		"executionId": map[string]any{
			"type": "string",
		},
		"status": map[string]any{
			"type": "string",
			"enum": []any{"success", "failed", "in_progress"},
		},
		"errorMessage": map[string]any{"type": "string"},
		"details":      map[string]any{"type": "object"},
	},
}

// ValidationError lists every schema violation of a rejected callback.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid callback: %s", strings.Join(e.Violations, "; "))
}

func validateCallback(payload map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(callbackSchema)
	dataLoader := gojsonschema.NewGoLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("callback schema validation failed: %w", err)
	}

	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, violation := range result.Errors() {
			violations = append(violations, violation.String())
		}

		return &ValidationError{Violations: violations}
	}

	return nil
}
