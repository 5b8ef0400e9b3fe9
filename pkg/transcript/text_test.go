package transcript

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseText_SpeakerFormat(t *testing.T) {
	txtContent := `0:11 : Sara : Hey, we didn't talk about notes.
0:20 : Massiel : Yes.
12:45 : Sara : Twelve minutes forty-five.
`

	result, err := ParseText(strings.NewReader(txtContent))
	require.NoError(t, err)
	require.Len(t, result.Segments, 3)

	assert.Equal(t, "Sara", result.Segments[0].Speaker)
	assert.Equal(t, "Hey, we didn't talk about notes.", result.Segments[0].Text)
	assert.Equal(t, 11000, result.Segments[0].StartMs)
	assert.Equal(t, 20000, result.Segments[0].EndMs)
	assert.Equal(t, 765000, result.Segments[2].StartMs)
	assert.Equal(t, []string{"Sara", "Massiel"}, result.Speakers)
}

func TestParseText_StampsAndUntimed(t *testing.T) {
	txtContent := `[0:05] Five seconds in.
1:02:03 - Over an hour.

A line with no stamp.
`

	result, err := ParseText(strings.NewReader(txtContent))
	require.NoError(t, err)
	require.Len(t, result.Segments, 3)

	assert.Equal(t, 5000, result.Segments[0].StartMs)
	assert.Equal(t, 3723000, result.Segments[0].EndMs)
	assert.Equal(t, "Over an hour.", result.Segments[1].Text)
	assert.False(t, result.Segments[2].Timed)
	assert.Equal(t, "A line with no stamp.", result.Segments[2].Text)
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		file string
		head string
		want Format
	}{
		{"vtt_extension", "captions.VTT", "", FormatVTT},
		{"srt_extension", "captions.srt", "", FormatSRT},
		{"vtt_header", "captions", "WEBVTT\n\n00:00.000 --> 00:01.000", FormatVTT},
		{"srt_sniffed", "captions", "1\n00:00:00,000 --> 00:00:01,000\nhi", FormatSRT},
		{"plain", "notes.txt", "just words", FormatText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.file, []byte(tt.head)))
		})
	}
}

func TestParse_UnsupportedFormat(t *testing.T) {
	_, err := Parse(strings.NewReader(""), Format("docx"))
	require.Error(t, err)
}
