package resolve

import (
	"context"
	"strings"

	"github.com/fieldforge/extract/runtime/heuristics"
	"github.com/fieldforge/extract/runtime/plan"
)

const sectionMatchThreshold = 0.3

// SectionResolver scores each segmented section against the target key
// using heading equality, substring, and shared-word overlap, then runs
// validation-typed extraction within the winning section.
type SectionResolver struct{}

// Name implements Resolver.
func (SectionResolver) Name() string { return "section" }

// Supports applies whenever the input segments into at least one section
// with a non-empty heading.
func (SectionResolver) Supports(_ plan.SearchStep, ectx *ExtractionContext) bool {
	for _, s := range ectx.Sections() {
		if s.Heading != "" {
			return true
		}
	}
	return false
}

// Resolve finds the best-scoring section for step.TargetKey and extracts a
// validation-typed value from it, falling back to the section's first
// line when typed extraction finds nothing.
func (r SectionResolver) Resolve(_ context.Context, step plan.SearchStep, ectx *ExtractionContext) (Result, error) {
	sections := ectx.Sections()
	bestScore := 0.0
	bestIdx := -1
	for i, s := range sections {
		score := scoreSection(s, step.TargetKey)
		if score > bestScore {
			bestScore, bestIdx = score, i
		}
	}
	if bestIdx < 0 || bestScore <= sectionMatchThreshold {
		return Result{}, nil
	}

	section := sections[bestIdx]
	body := strings.Join(section.Lines, "\n")
	value, found := heuristics.ExtractByValidationType(step.ValidationType, body)
	if !found && len(section.Lines) > 0 {
		value, found = strings.TrimSpace(section.Lines[0]), true
	}
	if !found {
		return Result{}, nil
	}

	confidence := clamp(0.45+bestScore*0.4, 0, 0.88)
	return Result{Value: value, Confidence: confidence, HasValue: true}, nil
}

func scoreSection(s heuristics.Section, targetKey string) float64 {
	heading := strings.ToLower(s.Heading)
	key := strings.ToLower(strings.ReplaceAll(targetKey, "_", " "))
	if heading == "" {
		return 0
	}
	if heading == key {
		return 1.0
	}
	var score float64
	if strings.Contains(heading, key) || strings.Contains(key, heading) {
		score += 0.6
	}
	score += wordOverlap(heading, key) * 0.4
	for _, line := range s.Lines {
		if strings.Contains(strings.ToLower(line), key) {
			score += 0.1
			break
		}
	}
	return score
}

func wordOverlap(a, b string) float64 {
	aw := strings.Fields(a)
	bw := make(map[string]struct{})
	for _, w := range strings.Fields(b) {
		bw[w] = struct{}{}
	}
	if len(aw) == 0 || len(bw) == 0 {
		return 0
	}
	hits := 0
	for _, w := range aw {
		if _, ok := bw[w]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(aw))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
