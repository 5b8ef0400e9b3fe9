package transcript

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Caption parsing regular expressions
var (
	// Matches cue timing: 00:00:05.579 --> 00:00:06.858, hours optional,
	// comma or dot before the milliseconds.
	cueTimingRegex = regexp.MustCompile(`^((?:\d+:)?\d{1,2}:\d{2}[.,]\d{1,3})\s+-->\s+((?:\d+:)?\d{1,2}:\d{2}[.,]\d{1,3})`)

	// Matches a voice span: <v Speaker Name>text
	vttVoiceRegex = regexp.MustCompile(`^<v(?:\.[^ >]+)?\s+([^>]+)>`)

	// Inline tags such as <c>, </c> and <00:00:01.000>.
	vttTagRegex = regexp.MustCompile(`<[^>]*>`)
)

// ParseVTT parses a WebVTT caption file. Cue identifiers, NOTE/STYLE blocks
// and inline tags are dropped; voice spans become speakers.
func ParseVTT(r io.Reader) (*Result, error) {
	return parseCues(r, FormatVTT)
}

// ParseSRT parses a SubRip caption file.
func ParseSRT(r io.Reader) (*Result, error) {
	return parseCues(r, FormatSRT)
}

func parseCues(r io.Reader, format Format) (*Result, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	b := newResultBuilder(format)

	var current *Segment
	skipBlock := false

	flush := func() {
		if current != nil && current.Text != "" {
			b.add(*current)
		}
		current = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))

		if line == "" {
			flush()
			skipBlock = false
			continue
		}
		if skipBlock || strings.HasPrefix(line, "WEBVTT") {
			continue
		}
		if format == FormatVTT && (strings.HasPrefix(line, "NOTE") || line == "STYLE" || line == "REGION") {
			skipBlock = true
			continue
		}

		if matches := cueTimingRegex.FindStringSubmatch(line); matches != nil {
			flush()
			current = &Segment{
				StartMs: parseCueTimestamp(matches[1]),
				EndMs:   parseCueTimestamp(matches[2]),
				Timed:   true,
			}
			continue
		}

		// Cue identifiers and SRT sequence numbers precede the timing line.
		if current == nil || isDigitOnly(line) {
			continue
		}

		if m := vttVoiceRegex.FindStringSubmatch(line); m != nil {
			current.Speaker = strings.TrimSpace(m[1])
		}
		text := strings.TrimSpace(vttTagRegex.ReplaceAllString(line, ""))
		if text == "" {
			continue
		}
		if current.Text != "" {
			current.Text += " "
		}
		current.Text += text
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return b.result(), nil
}

// parseCueTimestamp parses HH:MM:SS.mmm, MM:SS.mmm or the SRT comma form
// to milliseconds.
func parseCueTimestamp(ts string) int {
	ts = strings.ReplaceAll(ts, ",", ".")
	parts := strings.Split(ts, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}

	hours := 0
	if len(parts) == 3 {
		hours, _ = strconv.Atoi(parts[0])
		parts = parts[1:]
	}
	minutes, _ := strconv.Atoi(parts[0])

	secParts := strings.SplitN(parts[1], ".", 2)
	seconds, _ := strconv.Atoi(secParts[0])
	milliseconds := 0
	if len(secParts) > 1 {
		frac := (secParts[1] + "00")[:3]
		milliseconds, _ = strconv.Atoi(frac)
	}

	return hours*3600000 + minutes*60000 + seconds*1000 + milliseconds
}

// isDigitOnly reports whether s is a non-empty run of ASCII digits.
func isDigitOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// resultBuilder accumulates segments, speakers and full text.
type resultBuilder struct {
	res        *Result
	speakerSet map[string]bool
	text       strings.Builder
	lastEndMs  int
}

func newResultBuilder(format Format) *resultBuilder {
	return &resultBuilder{
		res: &Result{
			Segments: make([]Segment, 0),
			Speakers: make([]string, 0),
			Format:   format,
		},
		speakerSet: make(map[string]bool),
	}
}

func (b *resultBuilder) add(seg Segment) {
	b.res.Segments = append(b.res.Segments, seg)
	if seg.Speaker != "" && !b.speakerSet[seg.Speaker] {
		b.speakerSet[seg.Speaker] = true
		b.res.Speakers = append(b.res.Speakers, seg.Speaker)
	}
	if seg.EndMs > b.lastEndMs {
		b.lastEndMs = seg.EndMs
	}
	if b.text.Len() > 0 {
		b.text.WriteString(" ")
	}
	b.text.WriteString(seg.Text)
}

func (b *resultBuilder) result() *Result {
	b.res.DurationSeconds = b.lastEndMs / 1000
	b.res.FullText = b.text.String()
	return b.res
}
