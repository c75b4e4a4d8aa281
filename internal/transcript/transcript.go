// Package transcript reads podcast transcripts from requests and files.
package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/codefionn/castcheck/internal/consts"
)

// Segment is one speaker turn.
type Segment struct {
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Input is a transcript either as plain text or as segments, with optional
// metadata such as title, date or speakers.
type Input struct {
	Transcript string            `json:"transcript"`
	Segments   []Segment         `json:"segments,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// InputError reports an unusable transcript. It maps to a 400 response.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

// Normalize returns the transcript text. Segments take precedence and are
// rendered as "speaker: text" lines; segments without text are skipped.
func (in *Input) Normalize() string {
	if len(in.Segments) == 0 {
		return strings.TrimSpace(in.Transcript)
	}
	lines := make([]string, 0, len(in.Segments))
	for _, seg := range in.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		speaker := strings.TrimSpace(seg.Speaker)
		if speaker == "" {
			speaker = "Speaker"
		}
		lines = append(lines, speaker+": "+text)
	}
	return strings.Join(lines, "\n")
}

// Validate checks the normalized transcript length.
func (in *Input) Validate() error {
	if n := utf8.RuneCountInString(in.Normalize()); n < consts.MinTranscriptLength {
		return &InputError{Message: fmt.Sprintf("Transcript too short (minimum %d characters, got %d)", consts.MinTranscriptLength, n)}
	}
	return nil
}

// UnmarshalJSON accepts "transcript" as a string or as an array of segments,
// and metadata values of any JSON type.
func (in *Input) UnmarshalJSON(data []byte) error {
	var raw struct {
		Transcript json.RawMessage            `json:"transcript"`
		Segments   []Segment                  `json:"segments"`
		Metadata   map[string]json.RawMessage `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*in = Input{Segments: raw.Segments, Metadata: flattenMetadata(raw.Metadata)}
	trimmed := bytes.TrimSpace(raw.Transcript)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
	case trimmed[0] == '[':
		var segs []Segment
		if err := json.Unmarshal(trimmed, &segs); err != nil {
			return fmt.Errorf("transcript segments: %w", err)
		}
		in.Segments = append(segs, in.Segments...)
	default:
		if err := json.Unmarshal(trimmed, &in.Transcript); err != nil {
			return fmt.Errorf("transcript: %w", err)
		}
	}
	return nil
}

// flattenMetadata keeps strings as they are and renders other values as
// compact JSON; lists of strings are joined with ", ".
func flattenMetadata(raw map[string]json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		var list []string
		if err := json.Unmarshal(v, &list); err == nil {
			out[k] = strings.Join(list, ", ")
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err == nil {
			out[k] = buf.String()
		}
	}
	return out
}

// ReadFile parses an uploaded or local transcript. ".json" files hold an
// object with "transcript" (text or segments) or a bare segment array;
// anything else is read as UTF-8 text and gets the file name as metadata.
func ReadFile(name string, r io.Reader) (*Input, error) {
	data, err := io.ReadAll(io.LimitReader(r, consts.MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) > consts.MaxUploadSize {
		return nil, &InputError{Message: fmt.Sprintf("File too large (maximum %d bytes)", consts.MaxUploadSize)}
	}

	var in Input
	if strings.EqualFold(filepath.Ext(name), ".json") {
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			if err := json.Unmarshal(trimmed, &in.Segments); err != nil {
				return nil, &InputError{Message: "Invalid JSON file"}
			}
		} else if err := json.Unmarshal(trimmed, &in); err != nil {
			return nil, &InputError{Message: "Invalid JSON file"}
		}
	} else {
		if !utf8.Valid(data) {
			return nil, &InputError{Message: "File encoding not supported"}
		}
		in.Transcript = string(data)
		in.Metadata = map[string]string{"filename": filepath.Base(name)}
	}

	if err := in.Validate(); err != nil {
		return nil, err
	}
	return &in, nil
}
