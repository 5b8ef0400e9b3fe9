// Package transcript provides video transcript types, caption file parsers
// and the chunker that turns timed segments into ordered transcript chunks.
package transcript

import (
	"strings"
	"time"
)

// Format names a caption file format.
type Format string

const (
	FormatVTT  Format = "vtt"
	FormatSRT  Format = "srt"
	FormatText Format = "txt"
)

// Segment represents a single caption cue.
type Segment struct {
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text"`
	StartMs int    `json:"start_ms"`
	EndMs   int    `json:"end_ms"`
	// Timed is false for cues read from untimed plain text.
	Timed bool `json:"timed"`
}

// Result is the result of parsing a caption file.
type Result struct {
	Segments        []Segment `json:"segments"`
	Speakers        []string  `json:"speakers"`
	DurationSeconds int       `json:"duration_seconds"`
	FullText        string    `json:"full_text"`
	Format          Format    `json:"format"`
}

// Chunk is a contiguous piece of a video transcript. Order is 0-based and
// is the only addressable axis when StartSec and EndSec are nil.
type Chunk struct {
	VideoID  string   `json:"video_id"`
	Order    int      `json:"order"`
	Text     string   `json:"text"`
	StartSec *float64 `json:"start_sec,omitempty"`
	EndSec   *float64 `json:"end_sec,omitempty"`
}

// HasTiming reports whether the chunk carries start and end offsets.
func (c Chunk) HasTiming() bool {
	return c.StartSec != nil && c.EndSec != nil
}

// Overlaps reports whether the chunk's [start, end) window intersects
// [start, end). Chunks without timing never overlap.
func (c Chunk) Overlaps(start, end float64) bool {
	if !c.HasTiming() {
		return false
	}
	return *c.StartSec < end && *c.EndSec > start
}

// Seconds returns a pointer to v, for building timed chunks.
func Seconds(v float64) *float64 {
	return &v
}

// AnyTimed reports whether at least one chunk carries timing metadata.
func AnyTimed(chunks []Chunk) bool {
	for _, c := range chunks {
		if c.HasTiming() {
			return true
		}
	}
	return false
}

// Blank reports whether every chunk has empty text.
func Blank(chunks []Chunk) bool {
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) != "" {
			return false
		}
	}
	return true
}

// VideoMetadata describes a video independently of its transcript.
type VideoMetadata struct {
	VideoID     string    `json:"video_id" yaml:"video_id"`
	Title       string    `json:"title,omitempty" yaml:"title,omitempty"`
	Channel     string    `json:"channel,omitempty" yaml:"channel,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	DurationSec int       `json:"duration_sec,omitempty" yaml:"duration_sec,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty" yaml:"published_at,omitempty"`
	ViewCount   int64     `json:"view_count,omitempty" yaml:"view_count,omitempty"`
	LikeCount   int64     `json:"like_count,omitempty" yaml:"like_count,omitempty"`
	Tags        []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
}
