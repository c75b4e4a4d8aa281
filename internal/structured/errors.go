package structured

import (
	"fmt"
	"strings"
)

// ExtractionError means no JSON could be recovered from the model output.
// It is not retried by the validation loop.
type ExtractionError struct {
	OriginalPreview  string
	SanitizedPreview string
	Cause            error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to parse JSON response even after sanitization: %v", e.Cause)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// ValidationError means the JSON parsed but violated the shape. Data holds
// the parsed object so it can be repaired.
type ValidationError struct {
	Shape      string
	Violations []Violation
	Data       map[string]interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%d validation error(s) for %s\n%s", len(e.Violations), e.Shape, FormatViolations(e.Violations))
}

// FormatViolations renders violations one per line in the wording the
// models are prompted with.
func FormatViolations(violations []Violation) string {
	lines := make([]string, 0, len(violations))
	for _, v := range violations {
		switch v.Kind {
		case KindTooLong:
			lines = append(lines, fmt.Sprintf(
				"- Field '%s': String is too long (%d characters). Maximum allowed is %d characters. Please shorten this field.",
				v.Path, v.Actual, v.Limit))
		case KindTooShort:
			lines = append(lines, fmt.Sprintf(
				"- Field '%s': String is too short (%d characters). Minimum required is %d characters. Please expand this field.",
				v.Path, v.Actual, v.Limit))
		case KindListTooShort:
			lines = append(lines, fmt.Sprintf(
				"- Field '%s': List has %d items. Minimum required is %d items. Please add more items.",
				v.Path, v.Actual, v.Limit))
		default:
			lines = append(lines, fmt.Sprintf("- Field '%s': %s", v.Path, v.Message))
		}
	}
	return strings.Join(lines, "\n")
}

// CorrectivePrompt is the user turn appended after a validation failure.
func CorrectivePrompt(err *ValidationError) string {
	return fmt.Sprintf(`
Your previous response had validation errors. Please fix these issues and try again:

%s

IMPORTANT: Make sure your response is valid JSON and follows ALL the schema constraints exactly.
`, FormatViolations(err.Violations))
}
