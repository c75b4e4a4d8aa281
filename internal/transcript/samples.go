package transcript

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"unicode"
)

//go:embed samples/*.json
var sampleFS embed.FS

// ErrSampleNotFound is returned for an unknown sample ID.
var ErrSampleNotFound = errors.New("sample not found")

// Sample describes a bundled transcript.
type Sample struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Filename string `json:"filename"`
}

// Samples lists the bundled transcripts sorted by ID.
func Samples() ([]Sample, error) {
	entries, err := fs.ReadDir(sampleFS, "samples")
	if err != nil {
		return nil, err
	}
	samples := make([]Sample, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".json" {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		samples = append(samples, Sample{ID: id, Name: displayName(id), Filename: e.Name()})
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].ID < samples[j].ID })
	return samples, nil
}

// LoadSample parses a bundled transcript.
func LoadSample(id string) (*Input, error) {
	if id == "" || strings.ContainsAny(id, "/\\.") {
		return nil, fmt.Errorf("%w: %q", ErrSampleNotFound, id)
	}
	f, err := sampleFS.Open("samples/" + id + ".json")
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrSampleNotFound, id)
	}
	defer f.Close()
	return ReadFile(id+".json", f)
}

// displayName turns "tech_talk_42" into "Tech Talk 42".
func displayName(id string) string {
	words := strings.Fields(strings.ReplaceAll(id, "_", " "))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
