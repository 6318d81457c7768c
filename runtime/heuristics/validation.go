package heuristics

import (
	"regexp"
	"strings"

	"github.com/fieldforge/extract/runtime/plan"
)

var nameValidationHints = []struct {
	substr string
	vtype  plan.ValidationType
}{
	{"email", plan.ValidationEmail},
	{"date", plan.ValidationDate},
	{"phone", plan.ValidationPhone},
	{"url", plan.ValidationURL},
	{"percent", plan.ValidationPercentage},
	{"total", plan.ValidationCurrency},
	{"amount", plan.ValidationCurrency},
	{"price", plan.ValidationCurrency},
	{"address", plan.ValidationAddress},
	{"name", plan.ValidationName},
}

// InferValidationType guesses a field's ValidationType from its schema
// name when no explicit descriptor is supplied. The caller-declared
// descriptor always wins over this inference.
func InferValidationType(fieldName string) plan.ValidationType {
	lower := strings.ToLower(fieldName)
	for _, hint := range nameValidationHints {
		if strings.Contains(lower, hint.substr) {
			return hint.vtype
		}
	}
	return plan.ValidationString
}

var (
	emailPattern      = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)
	phonePattern      = regexp.MustCompile(`\+?\d[\d\-.() ]{7,}\d`)
	isoDatePattern    = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	datePattern       = regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}-\d{2}-\d{2}`)
	urlPattern        = regexp.MustCompile(`https?://[^\s]+`)
	currencyPattern   = regexp.MustCompile(`[$€£]\s?[\d,]+(?:\.\d{1,2})?`)
	percentagePattern = regexp.MustCompile(`\d+(?:\.\d+)?\s?%`)
	numberPattern     = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	booleanPattern    = regexp.MustCompile(`(?i)\b(true|false|yes|no)\b`)
)

// ExtractByValidationType applies the validation-typed regex/heuristic for
// vtype against text, returning the first matching candidate string and
// whether a match was found.
func ExtractByValidationType(vtype plan.ValidationType, text string) (string, bool) {
	switch vtype {
	case plan.ValidationEmail:
		return firstMatch(emailPattern, text)
	case plan.ValidationPhone:
		return firstMatch(phonePattern, text)
	case plan.ValidationISODate:
		return firstMatch(isoDatePattern, text)
	case plan.ValidationDate:
		return firstMatch(datePattern, text)
	case plan.ValidationURL:
		return firstMatch(urlPattern, text)
	case plan.ValidationCurrency:
		return firstMatch(currencyPattern, text)
	case plan.ValidationPercentage:
		return firstMatch(percentagePattern, text)
	case plan.ValidationNumber:
		return firstMatch(numberPattern, text)
	case plan.ValidationBoolean:
		return firstMatch(booleanPattern, text)
	default:
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return "", false
		}
		return trimmed, true
	}
}

func firstMatch(re *regexp.Regexp, text string) (string, bool) {
	m := re.FindString(text)
	if m == "" {
		return "", false
	}
	return m, true
}
