// Package secretdetect finds API keys in text and redacts them from progress
// events before they leave the process.
package secretdetect

import (
	"sort"
	"strings"

	"github.com/codefionn/castcheck/internal/progress"
)

// Placeholder replaces every redacted secret.
const Placeholder = "[REDACTED]"

// minLiteralLength keeps short or empty configured values from matching
// ordinary words.
const minLiteralLength = 8

// Match is one detected secret, as a byte range of the scanned text.
type Match struct {
	Pattern string
	Start   int
	End     int
}

// Detector matches the default patterns plus literal secret values.
type Detector struct {
	patterns []Pattern
	literals []string
}

// New creates a detector that also matches the given literal values, such
// as the configured API keys. Values shorter than eight bytes are ignored.
func New(literals ...string) *Detector {
	d := &Detector{patterns: DefaultPatterns()}
	for _, l := range literals {
		if l = strings.TrimSpace(l); len(l) >= minLiteralLength {
			d.literals = append(d.literals, l)
		}
	}
	return d
}

// AddPattern adds a pattern to the detector.
func (d *Detector) AddPattern(p Pattern) {
	d.patterns = append(d.patterns, p)
}

// Scan returns non-overlapping matches in content ordered by position.
func (d *Detector) Scan(content string) []Match {
	var found []Match
	for _, lit := range d.literals {
		for off := 0; ; {
			i := strings.Index(content[off:], lit)
			if i < 0 {
				break
			}
			start := off + i
			found = append(found, Match{Pattern: "Configured Secret", Start: start, End: start + len(lit)})
			off = start + len(lit)
		}
	}
	for _, p := range d.patterns {
		for _, loc := range p.Regex.FindAllStringIndex(content, -1) {
			found = append(found, Match{Pattern: p.Name, Start: loc[0], End: loc[1]})
		}
	}
	if len(found) == 0 {
		return nil
	}

	// earliest start first, longest first on ties
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Start != found[j].Start {
			return found[i].Start < found[j].Start
		}
		return found[i].End > found[j].End
	})
	merged := found[:1]
	for _, m := range found[1:] {
		last := &merged[len(merged)-1]
		if m.Start < last.End {
			if m.End > last.End {
				last.End = m.End
			}
			continue
		}
		merged = append(merged, m)
	}
	return merged
}

// Redact replaces every secret in content with Placeholder.
func (d *Detector) Redact(content string) string {
	matches := d.Scan(content)
	if len(matches) == 0 {
		return content
	}
	var b strings.Builder
	b.Grow(len(content))
	prev := 0
	for _, m := range matches {
		b.WriteString(content[prev:m.Start])
		b.WriteString(Placeholder)
		prev = m.End
	}
	b.WriteString(content[prev:])
	return b.String()
}

// Event redacts the free-text fields of ev. Structured results are left
// alone; they carry model output, not transport errors.
func (d *Detector) Event(ev progress.Event) progress.Event {
	ev.Message = d.Redact(ev.Message)
	ev.Traceback = d.Redact(ev.Traceback)
	return ev
}

// Wrap returns a callback that redacts every event before passing it on.
func (d *Detector) Wrap(cb progress.Callback) progress.Callback {
	if cb == nil {
		return nil
	}
	return func(ev progress.Event) error {
		return cb(d.Event(ev))
	}
}
