package resolve

import (
	"context"
	"strings"

	"github.com/fieldforge/extract/runtime/heuristics"
	"github.com/fieldforge/extract/runtime/plan"
)

var looseKVSeparators = []string{":", "=", "—", "-"}

// LooseKVResolver matches against a normalized key->candidate-values map
// built once per parse from lines shaped like "key: v", "key = v", or
// "key — v".
type LooseKVResolver struct{}

// Name implements Resolver.
func (LooseKVResolver) Name() string { return "loose-kv" }

// Supports applies whenever at least one loose key-value pair was found
// for this parse's input.
func (LooseKVResolver) Supports(_ plan.SearchStep, ectx *ExtractionContext) bool {
	return len(ectx.LooseKV()) > 0
}

// Resolve looks up candidate values for step.TargetKey and tries
// validation-typed extraction on each; if none pass, it takes the first
// candidate verbatim at a lower confidence.
func (r LooseKVResolver) Resolve(_ context.Context, step plan.SearchStep, ectx *ExtractionContext) (Result, error) {
	kv := ectx.LooseKV()
	var candidates []string
	for _, variant := range heuristics.NormalizeKeyVariants(step.TargetKey) {
		if vs, ok := kv[variant]; ok {
			candidates = append(candidates, vs...)
		}
	}
	if len(candidates) == 0 {
		return Result{}, nil
	}

	for i, c := range candidates {
		if value, ok := heuristics.ExtractByValidationType(step.ValidationType, c); ok {
			n := i
			if n > 2 {
				n = 2
			}
			confidence := clamp(0.6+0.18+float64(n)*0.03, 0, 0.86)
			return Result{Value: value, Confidence: confidence, HasValue: true}, nil
		}
	}

	confidence := clamp(0.5+0.08, 0, 0.86)
	return Result{Value: candidates[0], Confidence: confidence, HasValue: true}, nil
}

func buildLooseKV(input string) map[string][]string {
	kv := make(map[string][]string)
	for _, line := range strings.Split(input, "\n") {
		line = strings.TrimRight(line, "\r")
		key, value, ok := splitLooseKVLine(line)
		if !ok {
			continue
		}
		for _, variant := range heuristics.NormalizeKeyVariants(key) {
			kv[variant] = append(kv[variant], value)
		}
	}
	return kv
}

func splitLooseKVLine(line string) (key, value string, ok bool) {
	for _, sep := range looseKVSeparators {
		idx := strings.Index(line, sep)
		if idx <= 0 {
			continue
		}
		k := strings.TrimSpace(line[:idx])
		v := strings.TrimSpace(line[idx+len(sep):])
		if k == "" || v == "" || strings.ContainsAny(k, "{}[]") {
			continue
		}
		return k, v, true
	}
	return "", "", false
}
