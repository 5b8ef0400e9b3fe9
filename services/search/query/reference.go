// Package query resolves free-form questions about a video into time
// references and query intents. It covers temporal phrase parsing, range and
// point extraction, and the topic, sentiment and metadata detectors.
package query

import "fmt"

// DefaultDurationSec is the assumed video length when no metadata is known.
const DefaultDurationSec = 10800

// ReferenceKind identifies the shape of a TimeReference.
type ReferenceKind int

const (
	// KindNone means no temporal reference was found.
	KindNone ReferenceKind = iota
	// KindInstant is a single offset in seconds.
	KindInstant
	// KindMinute is an "Nth minute" reference.
	KindMinute
	// KindRange is a closed interval in seconds.
	KindRange
	// KindLastMinute is the final minute of the video.
	KindLastMinute
)

// String returns the string representation of a ReferenceKind.
func (k ReferenceKind) String() string {
	switch k {
	case KindInstant:
		return "instant"
	case KindMinute:
		return "minute"
	case KindRange:
		return "range"
	case KindLastMinute:
		return "last_minute"
	default:
		return "none"
	}
}

// TimeReference is a resolved temporal reference. Exactly one of the concrete
// types below implements it; switch on the value to inspect it.
type TimeReference interface {
	Kind() ReferenceKind
	fmt.Stringer
}

// None is the absence of a temporal reference.
type None struct{}

// Instant is a point in time, in seconds from the start of the video.
type Instant struct {
	Seconds int
}

// Minute is a 1-based minute index ("the 5th minute").
type Minute struct {
	N int
}

// Range is an interval [Start, End] in seconds.
type Range struct {
	Start int
	End   int
}

// RelativeLastMinute refers to the final minute of the video.
type RelativeLastMinute struct{}

func (None) Kind() ReferenceKind { return KindNone }
func (Instant) Kind() ReferenceKind { return KindInstant }
func (Minute) Kind() ReferenceKind { return KindMinute }
func (Range) Kind() ReferenceKind { return KindRange }
func (RelativeLastMinute) Kind() ReferenceKind { return KindLastMinute }

func (None) String() string { return "none" }
func (i Instant) String() string { return "at " + FormatSeconds(i.Seconds) }
func (m Minute) String() string { return fmt.Sprintf("minute %d", m.N) }
func (r Range) String() string { return FormatSeconds(r.Start) + " - " + FormatSeconds(r.End) }
func (RelativeLastMinute) String() string { return "last minute" }

// Clamp bounds both ends into [0, durationSec] and keeps Start <= End.
func (r Range) Clamp(durationSec int) Range {
	if durationSec <= 0 {
		durationSec = DefaultDurationSec
	}
	r.Start = clamp(r.Start, 0, durationSec)
	r.End = clamp(r.End, 0, durationSec)
	if r.Start > r.End {
		r.Start, r.End = r.End, r.Start
	}
	return r
}

// Len returns the length of the range in seconds.
func (r Range) Len() int {
	return r.End - r.Start
}

// FormatSeconds renders an offset as H:MM:SS.
func FormatSeconds(sec int) string {
	if sec < 0 {
		sec = 0
	}
	return fmt.Sprintf("%d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
