// Package segments maps resolved time references onto ordered transcript
// chunks. Selection never fails: empty input or out-of-range indices yield
// an empty slice.
package segments

import (
	"math"
	"sort"

	"github.com/otherjamesbrown/vidq/pkg/transcript"
	"github.com/otherjamesbrown/vidq/services/search/query"
)

// heuristicMinutes is the video length assumed by the minute and second
// selectors when chunks carry no timing metadata.
const heuristicMinutes = 10

// Selector selects chunk slices for ranges and points. It is stateless apart
// from the default duration and safe for concurrent use.
type Selector struct {
	defaultDuration int
}

// NewSelector creates a Selector. A non-positive defaultDuration falls back
// to query.DefaultDurationSec.
func NewSelector(defaultDuration int) *Selector {
	if defaultDuration <= 0 {
		defaultDuration = query.DefaultDurationSec
	}
	return &Selector{defaultDuration: defaultDuration}
}

// Select dispatches on the reference kind. None selects nothing.
func (s *Selector) Select(chunks []transcript.Chunk, ref query.TimeReference, durationSec int) []transcript.Chunk {
	switch r := ref.(type) {
	case query.Range:
		return s.SelectByRange(chunks, r.Start, r.End, durationSec)
	case query.Minute:
		return s.SelectByMinute(chunks, r.N)
	case query.Instant:
		return s.SelectBySeconds(chunks, r.Seconds)
	case query.RelativeLastMinute:
		return s.SelectLastMinute(chunks)
	default:
		return []transcript.Chunk{}
	}
}

// SelectByRange returns chunks overlapping [start, end). With timing
// metadata the overlap is exact; otherwise indices are proportional to
// durationSec.
func (s *Selector) SelectByRange(chunks []transcript.Chunk, start, end, durationSec int) []transcript.Chunk {
	ordered := sortByOrder(chunks)
	if len(ordered) == 0 || end <= start {
		return []transcript.Chunk{}
	}

	if transcript.AnyTimed(ordered) {
		return overlapping(ordered, float64(start), float64(end))
	}

	if durationSec <= 0 {
		durationSec = s.defaultDuration
	}
	count := float64(len(ordered))
	startIdx := int(math.Floor(float64(start) / float64(durationSec) * count))
	endIdx := int(math.Ceil(float64(end) / float64(durationSec) * count))
	return slice(ordered, startIdx, endIdx)
}

// SelectByMinute returns the chunks of a 1-based minute. Without timing
// metadata the video is assumed to span ten minutes.
func (s *Selector) SelectByMinute(chunks []transcript.Chunk, minute int) []transcript.Chunk {
	ordered := sortByOrder(chunks)
	if len(ordered) == 0 || minute < 1 {
		return []transcript.Chunk{}
	}

	if transcript.AnyTimed(ordered) {
		return overlapping(ordered, float64((minute-1)*60), float64(minute*60))
	}

	cpm := chunksPerMinute(len(ordered))
	return slice(ordered, (minute-1)*cpm, minute*cpm)
}

// SelectBySeconds returns the chunk containing the given offset. Timed
// chunks must match exactly; untimed chunks map proportionally onto a
// ten-minute span.
func (s *Selector) SelectBySeconds(chunks []transcript.Chunk, seconds int) []transcript.Chunk {
	ordered := sortByOrder(chunks)
	if len(ordered) == 0 || seconds < 0 {
		return []transcript.Chunk{}
	}

	if transcript.AnyTimed(ordered) {
		sec := float64(seconds)
		for _, c := range ordered {
			if c.HasTiming() && *c.StartSec <= sec && sec < *c.EndSec {
				return []transcript.Chunk{c}
			}
		}
		return []transcript.Chunk{}
	}

	idx := int(math.Floor(float64(seconds) / float64(heuristicMinutes*60) * float64(len(ordered))))
	return slice(ordered, idx, idx+1)
}

// SelectLastMinute returns the final minute of chunks.
func (s *Selector) SelectLastMinute(chunks []transcript.Chunk) []transcript.Chunk {
	ordered := sortByOrder(chunks)
	if len(ordered) == 0 {
		return []transcript.Chunk{}
	}

	if transcript.AnyTimed(ordered) {
		last := 0.0
		for _, c := range ordered {
			if c.HasTiming() && *c.EndSec > last {
				last = *c.EndSec
			}
		}
		return overlapping(ordered, math.Max(0, last-60), last)
	}

	cpm := chunksPerMinute(len(ordered))
	return slice(ordered, len(ordered)-cpm, len(ordered))
}

func chunksPerMinute(count int) int {
	return int(math.Ceil(float64(count) / heuristicMinutes))
}

func overlapping(chunks []transcript.Chunk, start, end float64) []transcript.Chunk {
	out := make([]transcript.Chunk, 0)
	for _, c := range chunks {
		if c.Overlaps(start, end) {
			out = append(out, c)
		}
	}
	return out
}

// slice returns a copy of chunks[from:to] with bounds clamped.
func slice(chunks []transcript.Chunk, from, to int) []transcript.Chunk {
	from = max(0, from)
	to = min(len(chunks), to)
	if from >= to {
		return []transcript.Chunk{}
	}
	out := make([]transcript.Chunk, to-from)
	copy(out, chunks[from:to])
	return out
}

// sortByOrder returns a copy sorted by Order, leaving the input untouched.
func sortByOrder(chunks []transcript.Chunk) []transcript.Chunk {
	out := make([]transcript.Chunk, len(chunks))
	copy(out, chunks)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
