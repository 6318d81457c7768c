// Package pipeline implements the ordered preprocessor/postprocessor
// chains that run immediately before and after extraction. Each stage is
// a pure function over its input plus shared scratch state, returning an
// optional partial update and diagnostics; no stage may panic past its
// own boundary.
package pipeline

import (
	"strings"

	"github.com/fieldforge/extract/runtime/diagnostic"
)

// PreprocessInput is the mutable request state a Preprocessor chain
// transforms in place.
type PreprocessInput struct {
	InputData    string
	SchemaKeys   []string
	Instructions string
}

// Preprocessor is a single ordered request transformation step.
type Preprocessor interface {
	Name() string
	Process(in *PreprocessInput, diags *diagnostic.Collector) error
}

// PreprocessorFunc adapts a plain function to the Preprocessor interface.
type PreprocessorFunc struct {
	FuncName string
	Fn       func(in *PreprocessInput, diags *diagnostic.Collector) error
}

// Name implements Preprocessor.
func (f PreprocessorFunc) Name() string { return f.FuncName }

// Process implements Preprocessor.
func (f PreprocessorFunc) Process(in *PreprocessInput, diags *diagnostic.Collector) error {
	return f.Fn(in, diags)
}

// Chain runs an ordered list of Preprocessors against in, stopping at the
// first preprocessor that returns an error (a required preprocessor
// rejecting the request, per the fatal-preprocess failure mode).
func Chain(preprocessors []Preprocessor, in *PreprocessInput, diags *diagnostic.Collector) error {
	for _, p := range preprocessors {
		if err := p.Process(in, diags); err != nil {
			diags.Addf("*", diagnostic.StagePreprocess, diagnostic.SeverityError, "%s: %v", p.Name(), err)
			return err
		}
	}
	return nil
}

// TrimInput trims leading/trailing whitespace from InputData.
var TrimInput = PreprocessorFunc{FuncName: "trim-input", Fn: func(in *PreprocessInput, _ *diagnostic.Collector) error {
	in.InputData = strings.TrimSpace(in.InputData)
	return nil
}}

// NormalizeLineEndings converts CRLF/CR line endings to LF.
var NormalizeLineEndings = PreprocessorFunc{FuncName: "normalize-line-endings", Fn: func(in *PreprocessInput, _ *diagnostic.Collector) error {
	in.InputData = strings.ReplaceAll(in.InputData, "\r\n", "\n")
	in.InputData = strings.ReplaceAll(in.InputData, "\r", "\n")
	return nil
}}

// NormalizeSchemaKeys trims whitespace from every schema key, aborting the
// parse if the number of keys that needed stripping exceeds maxSchemaFields
// (a signal the schema is malformed rather than merely untidy).
func NormalizeSchemaKeys(maxSchemaFields int) Preprocessor {
	return PreprocessorFunc{FuncName: "normalize-schema-keys", Fn: func(in *PreprocessInput, diags *diagnostic.Collector) error {
		stripped := 0
		for i, key := range in.SchemaKeys {
			trimmed := strings.TrimSpace(key)
			if trimmed != key {
				stripped++
			}
			in.SchemaKeys[i] = trimmed
		}
		if maxSchemaFields > 0 && stripped > maxSchemaFields {
			return errSchemaTooLarge
		}
		return nil
	}}
}

var errSchemaTooLarge = schemaTooLargeError{}

type schemaTooLargeError struct{}

func (schemaTooLargeError) Error() string {
	return "schema field count exceeds maxSchemaFields after normalization"
}
