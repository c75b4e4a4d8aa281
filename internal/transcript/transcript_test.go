package transcript

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var longText = strings.Repeat("Host: welcome back to the show, today we talk about rockets. ", 3)

func TestNormalizeSegments(t *testing.T) {
	in := Input{
		Transcript: "ignored",
		Segments: []Segment{
			{Speaker: "Alice", Text: "Hello there."},
			{Speaker: "", Text: " Anonymous line "},
			{Speaker: "Bob", Text: "   "},
		},
	}
	assert.Equal(t, "Alice: Hello there.\nSpeaker: Anonymous line", in.Normalize())
}

func TestValidate(t *testing.T) {
	short := Input{Transcript: "too short"}
	var ierr *InputError
	require.True(t, errors.As(short.Validate(), &ierr))
	assert.Contains(t, ierr.Message, "minimum 100 characters")

	ok := Input{Transcript: longText}
	assert.NoError(t, ok.Validate())
}

func TestUnmarshalTranscriptForms(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"text", `{"transcript": "Host: hi"}`, "Host: hi"},
		{"segment array", `{"transcript": [{"speaker": "Host", "text": "hi"}, {"text": "there"}]}`, "Host: hi\nSpeaker: there"},
		{"segments field", `{"segments": [{"speaker": "Guest", "text": "yo"}]}`, "Guest: yo"},
		{"null", `{"transcript": null}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in Input
			require.NoError(t, json.Unmarshal([]byte(tt.body), &in))
			assert.Equal(t, tt.want, in.Normalize())
		})
	}

	var in Input
	assert.Error(t, json.Unmarshal([]byte(`{"transcript": 42}`), &in))
}

func TestUnmarshalMetadata(t *testing.T) {
	var in Input
	body := `{"transcript": "x", "metadata": {"title": "Ep 1", "speakers": ["Ann", "Bob"], "episode": 42, "extra": null, "info": {"a": 1}}}`
	require.NoError(t, json.Unmarshal([]byte(body), &in))
	assert.Equal(t, map[string]string{
		"title":    "Ep 1",
		"speakers": "Ann, Bob",
		"episode":  "42",
		"info":     `{"a":1}`,
	}, in.Metadata)
}

func TestReadFile(t *testing.T) {
	in, err := ReadFile("episode.txt", strings.NewReader(longText))
	require.NoError(t, err)
	assert.Equal(t, "episode.txt", in.Metadata["filename"])
	assert.Equal(t, strings.TrimSpace(longText), in.Normalize())

	segs := `[{"speaker": "Host", "text": "` + strings.Repeat("rockets ", 20) + `"}]`
	in, err = ReadFile("episode.JSON", strings.NewReader(segs))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(in.Normalize(), "Host: rockets"))

	_, err = ReadFile("episode.json", strings.NewReader("{not json"))
	var ierr *InputError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, "Invalid JSON file", ierr.Message)

	_, err = ReadFile("episode.txt", strings.NewReader(string([]byte{0xff, 0xfe, 0xfd})))
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, "File encoding not supported", ierr.Message)

	_, err = ReadFile("episode.txt", strings.NewReader("short"))
	assert.True(t, errors.As(err, &ierr))
}

func TestSamples(t *testing.T) {
	samples, err := Samples()
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, Sample{ID: "space_history", Name: "Space History", Filename: "space_history.json"}, samples[0])
	assert.Equal(t, "tech_talk", samples[1].ID)

	for _, s := range samples {
		in, err := LoadSample(s.ID)
		require.NoError(t, err, s.ID)
		assert.NotEmpty(t, in.Metadata["title"])
	}

	in, err := LoadSample("tech_talk")
	require.NoError(t, err)
	assert.Equal(t, "Alice, Bob", in.Metadata["speakers"])
	assert.True(t, strings.HasPrefix(in.Normalize(), "Alice: Welcome back to Tech Talk."))

	_, err = LoadSample("../config")
	assert.ErrorIs(t, err, ErrSampleNotFound)
	_, err = LoadSample("missing")
	assert.ErrorIs(t, err, ErrSampleNotFound)
}
