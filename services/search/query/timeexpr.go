package query

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// unitPattern matches a time unit word and its common abbreviations.
const unitPattern = `(hours?|hrs?|minutes?|mins?|seconds?|secs?)`

var (
	// The number must open the phrase or follow a preposition, so "last 5
	// minutes" and "2hr 30min" reach their own rules.
	unqualifiedMinuteRe = regexp.MustCompile(`^(?:.*?\b(?:at|in|during|by|to|on|around|about)\s+)?(?:the\s+)?(\d+)(?:st|nd|rd|th)?\s*(?:minutes?|mins?)\b(.*)$`)
	trailingSecondsRe   = regexp.MustCompile(`^\s*(?:and\s+)?\d+\s*(?:seconds?|secs?|s)\b`)
	firstWindowRe       = regexp.MustCompile(`\bfirst\s+(\d+)\s*` + unitPattern + `\b`)
	lastWindowRe        = regexp.MustCompile(`\blast\s+(\d+)\s*` + unitPattern + `\b`)
	afterOffsetRe       = regexp.MustCompile(`\bafter\s+(\d+)\s*` + unitPattern + `\b`)
	beforeOffsetRe      = regexp.MustCompile(`\bbefore\s+(\d+)\s*` + unitPattern + `\b`)
	compositeHoursRe    = regexp.MustCompile(`(\d+)\s*(?:hours?|hrs?|h)\b`)
	compositeMinutesRe  = regexp.MustCompile(`(\d+)\s*(?:minutes?|mins?|m)\b`)
	// A bare "s" suffix needs a short standalone number so "1990s" is not an offset.
	compositeSecondsRe  = regexp.MustCompile(`(\d+)\s*(?:seconds?|secs?)\b|\b(\d{1,3})s\b`)
	clockRe             = regexp.MustCompile(`\b(\d{1,2}):(\d{2})(?::(\d{2}))?\b`)
	halfHourRe          = regexp.MustCompile(`\bhalf\s+an?\s+hour\b`)
	quarterRe           = regexp.MustCompile(`\bquarter\b`)
	midpointRe          = regexp.MustCompile(`\b(?:midway|middle|halfway)\b`)
	spaceRe             = regexp.MustCompile(`\s+`)
)

// parseRule is one step of the time expression cascade. eval reports false
// when the rule declines a phrase its pattern matched.
type parseRule struct {
	name string
	eval func(phrase string, durationSec int) (int, bool)
}

// Parser turns temporal phrases and whole utterances into time references.
// A Parser is immutable after construction and safe for concurrent use.
type Parser struct {
	defaultDuration int
	rules           []parseRule
	rangeRules      []rangeRule
	pointRules      []pointRule
}

// Option configures a Parser.
type Option func(*Parser)

// WithDefaultDuration sets the duration used when callers pass a
// non-positive duration.
func WithDefaultDuration(sec int) Option {
	return func(p *Parser) {
		if sec > 0 {
			p.defaultDuration = sec
		}
	}
}

// NewParser creates a new Parser instance.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		defaultDuration: DefaultDurationSec,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.rules = []parseRule{
		{"unqualified_minute", parseUnqualifiedMinute},
		// "first N unit" resolves to the start of the window only.
		// Callers that need the window use ExtractRange.
		{"first_window", func(s string, _ int) (int, bool) { return 0, firstWindowRe.MatchString(s) }},
		{"last_window", parseLastWindow},
		{"after_offset", offsetRule(afterOffsetRe)},
		{"before_offset", offsetRule(beforeOffsetRe)},
		{"composite", parseComposite},
		{"clock", parseClock},
		{"literal", parseLiteral},
	}
	p.rangeRules = p.defaultRangeRules()
	p.pointRules = defaultPointRules()
	return p
}

// DefaultDuration returns the duration assumed when none is known.
func (p *Parser) DefaultDuration() int {
	return p.defaultDuration
}

// Normalize lower-cases an utterance, applies NFKC and collapses whitespace.
func (p *Parser) Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Lower(language.Und).String(s)
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// Parse converts a temporal phrase into a second offset. Rules are tried in
// order and the first match wins; a phrase no rule recognises yields 0.
func (p *Parser) Parse(phrase string, durationSec int) int {
	sec, _ := p.Resolve(phrase, durationSec)
	return sec
}

// Resolve is Parse that also reports whether any rule matched.
func (p *Parser) Resolve(phrase string, durationSec int) (int, bool) {
	_, sec, ok := p.Explain(phrase, durationSec)
	return sec, ok
}

// Explain runs the cascade and returns the name of the rule that matched.
func (p *Parser) Explain(phrase string, durationSec int) (rule string, sec int, ok bool) {
	if durationSec <= 0 {
		durationSec = p.defaultDuration
	}
	phrase = p.Normalize(phrase)
	if phrase == "" {
		return "", 0, false
	}
	for _, r := range p.rules {
		if sec, ok := r.eval(phrase, durationSec); ok {
			return r.name, sec, true
		}
	}
	return "", 0, false
}

func parseUnqualifiedMinute(s string, _ int) (int, bool) {
	m := unqualifiedMinuteRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	// "5 min 30 sec" belongs to the composite rule.
	if trailingSecondsRe.MatchString(m[2]) {
		return 0, false
	}
	return atoi(m[1]) * 60, true
}

func parseLastWindow(s string, durationSec int) (int, bool) {
	m := lastWindowRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	return max(0, durationSec-atoi(m[1])*unitSeconds(m[2])), true
}

func offsetRule(re *regexp.Regexp) func(string, int) (int, bool) {
	return func(s string, _ int) (int, bool) {
		m := re.FindStringSubmatch(s)
		if m == nil {
			return 0, false
		}
		return atoi(m[1]) * unitSeconds(m[2]), true
	}
}

func parseComposite(s string, _ int) (int, bool) {
	total := 0
	found := false
	for _, c := range []struct {
		re  *regexp.Regexp
		mul int
	}{
		{compositeHoursRe, 3600},
		{compositeMinutesRe, 60},
		{compositeSecondsRe, 1},
	} {
		if m := c.re.FindStringSubmatch(s); m != nil {
			total += atoi(firstGroup(m)) * c.mul
			found = true
		}
	}
	return total, found
}

func parseClock(s string, _ int) (int, bool) {
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	return atoi(m[1])*3600 + atoi(m[2])*60 + atoi(m[3]), true
}

func parseLiteral(s string, durationSec int) (int, bool) {
	switch {
	case halfHourRe.MatchString(s):
		return 1800, true
	case quarterRe.MatchString(s):
		return 900, true
	case midpointRe.MatchString(s):
		return durationSec / 2, true
	}
	return 0, false
}

// unitSeconds returns the number of seconds in a unit word.
func unitSeconds(unit string) int {
	switch {
	case strings.HasPrefix(unit, "h"):
		return 3600
	case strings.HasPrefix(unit, "m"):
		return 60
	default:
		return 1
	}
}

// firstGroup returns the first non-empty capture group of m.
func firstGroup(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

// atoi parses a regex digit group; empty groups are zero.
func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
