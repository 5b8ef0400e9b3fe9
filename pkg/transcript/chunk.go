package transcript

import "strings"

// ChunkerConfig controls how segments are grouped into chunks.
type ChunkerConfig struct {
	// TargetWords is the size at which a chunk closes on the next sentence end.
	TargetWords int `yaml:"target_words"`
	// MaxWords closes a chunk regardless of sentence boundaries.
	MaxWords int `yaml:"max_words"`
}

// DefaultChunkerConfig returns the chunk sizes used for ingestion.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{TargetWords: 120, MaxWords: 220}
}

// Chunk groups consecutive segments into ordered chunks. A chunk carries
// StartSec/EndSec only when every segment in it is timed.
func (cfg ChunkerConfig) Chunk(videoID string, segments []Segment) []Chunk {
	if cfg.TargetWords <= 0 {
		cfg.TargetWords = DefaultChunkerConfig().TargetWords
	}
	if cfg.MaxWords < cfg.TargetWords {
		cfg.MaxWords = cfg.TargetWords
	}

	chunks := make([]Chunk, 0)
	var (
		parts []string
		words int
		group []Segment
	)

	closeChunk := func() {
		if len(group) == 0 {
			return
		}
		c := Chunk{
			VideoID: videoID,
			Order:   len(chunks),
			Text:    strings.Join(parts, " "),
		}
		if allTimed(group) {
			start := group[0].StartMs
			end := group[0].EndMs
			for _, s := range group {
				start = min(start, s.StartMs)
				end = max(end, s.EndMs)
			}
			c.StartSec = Seconds(float64(start) / 1000)
			c.EndSec = Seconds(float64(end) / 1000)
		}
		chunks = append(chunks, c)
		parts, words, group = nil, 0, nil
	}

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		group = append(group, seg)
		words += len(strings.Fields(text))

		if words >= cfg.MaxWords || (words >= cfg.TargetWords && endsSentence(text)) {
			closeChunk()
		}
	}
	closeChunk()
	return chunks
}

func allTimed(segments []Segment) bool {
	for _, s := range segments {
		if !s.Timed {
			return false
		}
	}
	return true
}

func endsSentence(text string) bool {
	return strings.HasSuffix(text, ".") || strings.HasSuffix(text, "!") || strings.HasSuffix(text, "?")
}
