package heuristics

import (
	"strings"

	"github.com/fieldforge/extract/runtime/plan"
)

// FieldDescriptor is the caller-supplied descriptor for one outputSchema
// key: validation type, human description, required flag, and fallback.
type FieldDescriptor struct {
	ValidationType plan.ValidationType
	Description    string
	Required       bool
	FallbackValue  any
}

// BuildStepsOptions configures BuildSteps.
type BuildStepsOptions struct {
	// Instructions is the caller's free-form guidance string.
	Instructions string
	// ContextSummary is the detected system-context's summary text, only
	// applied when ContextConfidence >= 0.6.
	ContextSummary    string
	ContextConfidence float64
}

const contextHintMinConfidence = 0.6

// BuildSteps constructs one SearchStep per schema key, in the schema's
// iteration order given by keys, inferring a validation type when the
// descriptor omits one and composing each step's search instruction from
// its description, any qualifying context hint, and any field-specific
// guidance parsed from the caller's instructions.
func BuildSteps(keys []string, schema map[string]FieldDescriptor, opts BuildStepsOptions) []plan.SearchStep {
	guidance := ParseFieldGuidance(opts.Instructions)
	applyContext := opts.ContextConfidence >= contextHintMinConfidence && opts.ContextSummary != ""

	steps := make([]plan.SearchStep, 0, len(keys))
	for _, key := range keys {
		desc := schema[key]
		vtype := desc.ValidationType
		if vtype == "" {
			vtype = InferValidationType(key)
		}

		parts := []string{}
		if desc.Description != "" {
			parts = append(parts, desc.Description)
		}
		if applyContext {
			parts = append(parts, opts.ContextSummary)
		}
		if g, ok := guidance[normalizeLabel(key)]; ok {
			parts = append(parts, g)
		}

		steps = append(steps, plan.SearchStep{
			TargetKey:         key,
			Description:       desc.Description,
			SearchInstruction: strings.Join(parts, "; "),
			ValidationType:    vtype,
			IsRequired:        desc.Required,
			FallbackValue:     desc.FallbackValue,
		})
	}
	return steps
}
