package transcript

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// Matches: 0:11 : Speaker Name : Text content
	textSpeakerLineRegex = regexp.MustCompile(`^\[?((?:\d+:)?\d+:\d{2})\]?\s*:\s*([^:]+?)\s*:\s*(.+)$`)

	// Matches: [1:02:03] text, 12:45 text, 0:05 - text
	textStampLineRegex = regexp.MustCompile(`^\[?((?:\d+:)?\d+:\d{2})\]?\s*[-–]?\s*(.+)$`)
)

// ParseText parses a plain text transcript. Lines may start with an M:SS or
// H:MM:SS stamp, optionally followed by ": Speaker :". A line without a stamp
// becomes an untimed segment. A stamped segment ends where the next begins.
func ParseText(r io.Reader) (*Result, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	b := newResultBuilder(FormatText)

	var segments []Segment
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if m := textSpeakerLineRegex.FindStringSubmatch(line); m != nil {
			ms := parseCueTimestamp(m[1] + ".000")
			segments = append(segments, Segment{Speaker: m[2], Text: m[3], StartMs: ms, EndMs: ms, Timed: true})
			continue
		}
		if m := textStampLineRegex.FindStringSubmatch(line); m != nil {
			ms := parseCueTimestamp(m[1] + ".000")
			segments = append(segments, Segment{Text: m[2], StartMs: ms, EndMs: ms, Timed: true})
			continue
		}
		segments = append(segments, Segment{Text: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for i := range segments {
		if segments[i].Timed && i+1 < len(segments) && segments[i+1].Timed && segments[i+1].StartMs > segments[i].StartMs {
			segments[i].EndMs = segments[i+1].StartMs
		}
		b.add(segments[i])
	}
	return b.result(), nil
}

// DetectFormat guesses the caption format from a file name and its first
// bytes.
func DetectFormat(name string, head []byte) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".vtt":
		return FormatVTT
	case ".srt":
		return FormatSRT
	}
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(head, []byte("\ufeff")))
	if bytes.HasPrefix(trimmed, []byte("WEBVTT")) {
		return FormatVTT
	}
	if cueTimingRegex.Match(firstTimingLine(trimmed)) {
		return FormatSRT
	}
	return FormatText
}

func firstTimingLine(b []byte) []byte {
	for _, line := range bytes.Split(b, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if bytes.Contains(line, []byte("-->")) {
			return line
		}
	}
	return nil
}

// Parse parses a caption file in the given format.
func Parse(r io.Reader, format Format) (*Result, error) {
	switch format {
	case FormatVTT:
		return ParseVTT(r)
	case FormatSRT:
		return ParseSRT(r)
	case FormatText:
		return ParseText(r)
	default:
		return nil, fmt.Errorf("unsupported transcript format %q", format)
	}
}
