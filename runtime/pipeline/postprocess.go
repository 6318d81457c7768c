package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/fieldforge/extract/runtime/diagnostic"
	"github.com/fieldforge/extract/runtime/plan"
)

// PostprocessInput mirrors PreprocessInput's shape but operates on the
// field values an extraction produced rather than the raw request.
type PostprocessInput struct {
	ParsedData map[string]any
	Plan       *plan.SearchPlan
}

// Postprocessor is a single ordered response transformation step. Unlike a
// Preprocessor, a Postprocessor failure never aborts the response: findings
// are recorded as diagnostics and the chain continues, since by this stage
// the caller already has a result worth returning.
type Postprocessor interface {
	Name() string
	Process(in *PostprocessInput, diags *diagnostic.Collector)
}

// PostprocessorFunc adapts a plain function to the Postprocessor interface.
type PostprocessorFunc struct {
	FuncName string
	Fn       func(in *PostprocessInput, diags *diagnostic.Collector)
}

// Name implements Postprocessor.
func (f PostprocessorFunc) Name() string { return f.FuncName }

// Process implements Postprocessor.
func (f PostprocessorFunc) Process(in *PostprocessInput, diags *diagnostic.Collector) {
	f.Fn(in, diags)
}

// RunPostprocessors runs an ordered list of Postprocessors against in.
func RunPostprocessors(postprocessors []Postprocessor, in *PostprocessInput, diags *diagnostic.Collector) {
	for _, p := range postprocessors {
		p.Process(in, diags)
	}
}

// validationSchemas maps a ValidationType to the JSON Schema fragment a
// resolved value must satisfy. Types with no natural JSON Schema shape
// (ValidationCustom, ValidationObject) are left unvalidated.
var validationSchemas = map[plan.ValidationType]string{
	plan.ValidationString:      `{"type":"string"}`,
	plan.ValidationNumber:      `{"type":"number"}`,
	plan.ValidationBoolean:     `{"type":"boolean"}`,
	plan.ValidationEmail:       `{"type":"string","format":"email"}`,
	plan.ValidationPhone:       `{"type":"string"}`,
	plan.ValidationDate:        `{"type":"string"}`,
	plan.ValidationISODate:     `{"type":"string","format":"date"}`,
	plan.ValidationURL:         `{"type":"string","format":"uri"}`,
	plan.ValidationStringArray: `{"type":"array","items":{"type":"string"}}`,
	plan.ValidationNumberArray: `{"type":"array","items":{"type":"number"}}`,
	plan.ValidationCurrency:    `{"type":"string"}`,
	plan.ValidationPercentage:  `{"type":"string"}`,
	plan.ValidationAddress:    `{"type":"string"}`,
	plan.ValidationName:       `{"type":"string"}`,
}

var compiledValidationSchemas = compileValidationSchemas()

func compileValidationSchemas() map[plan.ValidationType]*jsonschema.Schema {
	out := make(map[plan.ValidationType]*jsonschema.Schema, len(validationSchemas))
	for vtype, raw := range validationSchemas {
		var doc any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			continue
		}
		resourceID := fmt.Sprintf("validation-%s.json", vtype)
		c := jsonschema.NewCompiler()
		if err := c.AddResource(resourceID, doc); err != nil {
			continue
		}
		schema, err := c.Compile(resourceID)
		if err != nil {
			continue
		}
		out[vtype] = schema
	}
	return out
}

// ValidateOutput checks each resolved field's value against the JSON Schema
// shape implied by its ValidationType. A mismatch is recorded as a warning
// diagnostic, never as an error: the value still came from a resolver and
// the caller may still find it useful, but the mismatch is worth surfacing.
func ValidateOutput() Postprocessor {
	return PostprocessorFunc{FuncName: "validate-output", Fn: func(in *PostprocessInput, diags *diagnostic.Collector) {
		if in.Plan == nil {
			return
		}
		for _, step := range in.Plan.Steps {
			value, present := in.ParsedData[step.TargetKey]
			if !present || value == nil {
				continue
			}
			schema, ok := compiledValidationSchemas[step.ValidationType]
			if !ok {
				continue
			}
			if err := schema.Validate(value); err != nil {
				diags.Addf(step.TargetKey, diagnostic.StagePostprocess, diagnostic.SeverityWarning,
					"value failed %s validation: %v", step.ValidationType, err)
			}
		}
	}}
}

// DropEmptyStrings removes fields whose resolved value is an empty string,
// treating them as unresolved rather than resolved-to-blank.
var DropEmptyStrings = PostprocessorFunc{FuncName: "drop-empty-strings", Fn: func(in *PostprocessInput, _ *diagnostic.Collector) {
	for key, value := range in.ParsedData {
		if s, ok := value.(string); ok && s == "" {
			delete(in.ParsedData, key)
		}
	}
}}

// ApplyFallbackValues fills in any schema field still missing from
// ParsedData with its step's FallbackValue, when one was configured.
var ApplyFallbackValues = PostprocessorFunc{FuncName: "apply-fallback-values", Fn: func(in *PostprocessInput, _ *diagnostic.Collector) {
	if in.Plan == nil {
		return
	}
	for _, step := range in.Plan.Steps {
		if _, present := in.ParsedData[step.TargetKey]; present {
			continue
		}
		if step.FallbackValue != nil {
			in.ParsedData[step.TargetKey] = step.FallbackValue
		}
	}
}}
