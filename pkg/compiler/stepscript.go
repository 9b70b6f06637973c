// Package compiler turns a workflow manifest into an executable node graph
// for the external automation engine.
package compiler

import (
	"sort"

	"github.com/pitchwire/pitchwire/pkg/models"
)

// requestBodyField is the prepare-output field holding the outbound provider
// request; it is the one field never passed through to later steps.
const requestBodyField = "request_body"

// FieldMapping binds one prompt placeholder to a runtime value.
type FieldMapping struct {
	Name       string `json:"name"`
	Source     string `json:"source"`
	Path       string `json:"path"`
	FormatExpr string `json:"format_expr,omitempty"`
	Append     bool   `json:"append,omitempty"`
}

// ExtractPolicy describes how a parse script recovers structured output from
// raw model text. Decode failures always degrade to an empty value for
// OutputKey; the policy never makes the engine raise.
type ExtractPolicy struct {
	OutputKey   string `json:"output_key"`
	OutputSlice *int   `json:"output_slice,omitempty"`
	StripFences bool   `json:"strip_fences"`
	FirstObject bool   `json:"first_object"`
}

// PassThroughPolicy lists prepare-output fields excluded from the parse
// script's context accumulation.
type PassThroughPolicy struct {
	Exclude []string `json:"exclude"`
}

// StepScript is the declarative descriptor of one step sub-node's runtime
// behavior. The compiler core builds and reasons about these; they are
// flattened into engine node params only at the serialization boundary.
type StepScript struct {
	StepID      string             `json:"step_id"`
	Phase       string             `json:"phase"`
	Prompt      string             `json:"prompt,omitempty"`
	Inputs      []FieldMapping     `json:"inputs,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	MaxTokens   *int               `json:"max_tokens,omitempty"`
	Extract     *ExtractPolicy     `json:"extract,omitempty"`
	PassThrough *PassThroughPolicy `json:"pass_through,omitempty"`
}

// prepareScript builds the descriptor for a step's prepare sub-node.
func prepareScript(step *models.ManifestStep) *StepScript {
	script := &StepScript{
		StepID:      step.ID,
		Phase:       "prepare",
		Prompt:      step.Prompt,
		Temperature: step.Temperature,
		MaxTokens:   step.MaxTokens,
	}

	names := make([]string, 0, len(step.PromptInputs))
	for name := range step.PromptInputs {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		input := step.PromptInputs[name]
		script.Inputs = append(script.Inputs, FieldMapping{
			Name:       name,
			Source:     input.Source,
			Path:       input.Path,
			FormatExpr: input.FormatExpr,
			Append:     input.Append,
		})
	}

	return script
}

// parseScript builds the descriptor for a step's parse sub-node.
func parseScript(step *models.ManifestStep) *StepScript {
	outputKey := step.OutputKey
	if outputKey == "" {
		outputKey = step.ID
	}

	return &StepScript{
		StepID: step.ID,
		Phase:  "parse",
		Extract: &ExtractPolicy{
			OutputKey:   outputKey,
			OutputSlice: step.OutputSlice,
			StripFences: true,
			FirstObject: true,
		},
		PassThrough: &PassThroughPolicy{
			Exclude: []string{requestBodyField},
		},
	}
}

// Params flattens the descriptor into engine node params.
func (s *StepScript) Params() map[string]any {
	params := map[string]any{
		"phase":   s.Phase,
		"step_id": s.StepID,
	}

	if s.Prompt != "" {
		params["prompt"] = s.Prompt
	}

	if len(s.Inputs) > 0 {
		inputs := make([]map[string]any, 0, len(s.Inputs))
		for _, input := range s.Inputs {
			entry := map[string]any{
				"name":   input.Name,
				"source": input.Source,
				"path":   input.Path,
			}
			if input.FormatExpr != "" {
				entry["format_expr"] = input.FormatExpr
			}

			if input.Append {
				entry["append"] = true
			}

			inputs = append(inputs, entry)
		}

		params["inputs"] = inputs
	}

	if s.Temperature != nil {
		params["temperature"] = *s.Temperature
	}

	if s.MaxTokens != nil {
		params["max_tokens"] = *s.MaxTokens
	}

	if s.Extract != nil {
		extract := map[string]any{
			"output_key":   s.Extract.OutputKey,
			"strip_fences": s.Extract.StripFences,
			"first_object": s.Extract.FirstObject,
		}
		if s.Extract.OutputSlice != nil {
			extract["output_slice"] = *s.Extract.OutputSlice
		}

		params["extract"] = extract
	}

	if s.PassThrough != nil {
		params["pass_through"] = map[string]any{"exclude": s.PassThrough.Exclude}
	}

	return params
}
