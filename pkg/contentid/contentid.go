// Package contentid generates short identifiers for answers, ingested
// transcripts and scrape jobs.
//
// Format: <kind:2>-<base62 time:4><base62 random:4>, 11 characters in all.
// The time part wraps every 62^4 hundredths of a second (about 40 hours);
// the random part gives 14M+ values per tick.
package contentid

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"
)

// Kinds of identified object.
const (
	KindAnswer     = "an"
	KindTranscript = "tr"
	KindScrape     = "sc"
)

var kinds = map[string]string{
	KindAnswer:     "answer",
	KindTranscript: "transcript",
	KindScrape:     "scrape",
}

const (
	alphabet  = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	wrap      = 62 * 62 * 62 * 62
	idLength  = 11
	partWidth = 4
)

var (
	ErrInvalidFormat = errors.New("invalid id format")
	ErrUnknownKind   = errors.New("unknown id kind")
)

// ID is a parsed identifier.
type ID struct {
	Kind   string
	Time   string
	Random string
	Raw    string
}

func (id ID) String() string { return id.Raw }

// KindName returns the readable name of the ID's kind.
func (id ID) KindName() string { return kinds[id.Kind] }

// New returns a fresh identifier of the given kind. It panics on an
// unknown kind, which is a programming error.
func New(kind string) string {
	return newAt(kind, time.Now())
}

func newAt(kind string, now time.Time) string {
	if _, ok := kinds[kind]; !ok {
		panic(fmt.Sprintf("contentid: unknown kind %q", kind))
	}
	tick := uint64(now.UnixNano()/int64(10*time.Millisecond)) % wrap
	return kind + "-" + encode(tick) + random(partWidth)
}

// Parse validates s and splits it into its parts.
func Parse(s string) (ID, error) {
	if len(s) != idLength {
		return ID{}, fmt.Errorf("%w: want %d characters, got %d", ErrInvalidFormat, idLength, len(s))
	}
	if s[2] != '-' {
		return ID{}, fmt.Errorf("%w: no dash after kind", ErrInvalidFormat)
	}
	kind := s[:2]
	if _, ok := kinds[kind]; !ok {
		return ID{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	body := s[3:]
	if !base62(body) {
		return ID{}, fmt.Errorf("%w: non base62 characters", ErrInvalidFormat)
	}
	return ID{Kind: kind, Time: body[:partWidth], Random: body[partWidth:], Raw: s}, nil
}

// IsValid reports whether s parses.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// KindOf returns the kind prefix of a valid ID, or "".
func KindOf(s string) string {
	id, err := Parse(s)
	if err != nil {
		return ""
	}
	return id.Kind
}

func encode(n uint64) string {
	out := make([]byte, partWidth)
	for i := partWidth - 1; i >= 0; i-- {
		out[i] = alphabet[n%62]
		n /= 62
	}
	return string(out)
}

// random draws n base62 characters with rejection sampling so every
// character is equally likely.
func random(n int) string {
	const limit = 248 // largest multiple of 62 below 256
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			panic(fmt.Sprintf("contentid: read random: %v", err))
		}
		for _, b := range buf {
			if b < limit && len(out) < n {
				out = append(out, alphabet[b%62])
			}
		}
	}
	return string(out)
}

func base62(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		default:
			return false
		}
	}
	return true
}
