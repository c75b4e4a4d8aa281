package structured

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codefionn/castcheck/internal/consts"
	"github.com/codefionn/castcheck/internal/logger"
)

// Record is a validated JSON object.
type Record = map[string]interface{}

// Extract pulls a JSON object out of raw model output and validates it
// against shape. It returns *ExtractionError when nothing parses and
// *ValidationError when the object violates the shape.
func Extract(ctx context.Context, raw string, shape *Shape) (Record, error) {
	log := logger.FromContext(ctx)
	body := strings.TrimSpace(unfence(raw))

	data, err := parseLenient(body)
	if err != nil {
		log.Debug("initial JSON parse failed: %v, attempting sanitization", err)

		sanitized := Sanitize(body)
		data, err = parseLenient(sanitized)
		if err != nil {
			log.Debug("original response (first %d chars): %s", consts.PreviewLength, preview(raw))
			log.Debug("sanitized response (first %d chars): %s", consts.PreviewLength, preview(sanitized))
			return nil, &ExtractionError{
				OriginalPreview:  preview(raw),
				SanitizedPreview: preview(sanitized),
				Cause:            err,
			}
		}
		log.Debug("JSON parsing succeeded after sanitization")
	}

	if violations := Validate(data, shape); len(violations) > 0 {
		return nil, &ValidationError{Shape: shapeName(shape), Violations: violations, Data: data}
	}
	return data, nil
}

// Decode converts a validated record into a typed value.
func Decode(record Record, target interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	return nil
}

// unfence returns the interior of the first ```json block, else of the first
// ``` block, else the text unchanged. An unterminated fence runs to the end.
func unfence(text string) string {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return rest[:end]
		}
		return rest
	}

	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		return dropInfoString(rest)
	}
	return text
}

// dropInfoString removes a language tag such as "javascript" on the opening
// fence line.
func dropInfoString(block string) string {
	nl := strings.IndexByte(block, '\n')
	if nl <= 0 {
		return block
	}
	tag := strings.TrimSpace(block[:nl])
	if tag == "" {
		return block
	}
	for _, r := range tag {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return block
		}
	}
	return block[nl+1:]
}

// parseLenient decodes a JSON object, accepting raw control characters
// inside string literals.
func parseLenient(text string) (map[string]interface{}, error) {
	if text == "" {
		return nil, fmt.Errorf("empty response")
	}
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(escapeControlInStrings(text)), &data); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("response is not a JSON object")
	}
	return data, nil
}

func escapeControlInStrings(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}

		switch {
		case escaped:
			escaped = false
			b.WriteByte(c)
		case c == '\\':
			escaped = true
			b.WriteByte(c)
		case c == '"':
			inString = false
			b.WriteByte(c)
		case c < 0x20:
			writeEscaped(&b, c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Sanitize escapes every newline, tab and carriage return not preceded by a
// backslash.
func Sanitize(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 16)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if (c == '\n' || c == '\t' || c == '\r') && (i == 0 || text[i-1] != '\\') {
			writeEscaped(&b, c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func writeEscaped(b *strings.Builder, c byte) {
	switch c {
	case '\n':
		b.WriteString(`\n`)
	case '\t':
		b.WriteString(`\t`)
	case '\r':
		b.WriteString(`\r`)
	default:
		fmt.Fprintf(b, `\u%04x`, c)
	}
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= consts.PreviewLength {
		return s
	}
	return string(r[:consts.PreviewLength])
}

func shapeName(shape *Shape) string {
	if shape == nil || shape.Name == "" {
		return "record"
	}
	return shape.Name
}
