package query

import (
	"regexp"
	"strings"
)

var (
	fromToRe         = regexp.MustCompile(`\bfrom\s+(.+?)\s+(?:to|until|till|through)\s+(.+)`)
	betweenAndRe     = regexp.MustCompile(`\bbetween\s+(.+?)\s+and\s+(.+)`)
	minutesSpanRe    = regexp.MustCompile(`\bminutes?\s+(\d+)\s*(?:to|-|through|and)\s*(?:minutes?\s+)?(\d+)\b`)
	firstSpanRe      = regexp.MustCompile(`\bfirst\s+(\d+)\s*` + unitPattern + `\b`)
	lastSpanRe       = regexp.MustCompile(`\blast\s+(\d+)\s*` + unitPattern + `\b`)
	afterSpanRe      = regexp.MustCompile(`\bafter\s+(.+)`)
	beforeSpanRe     = regexp.MustCompile(`\bbefore\s+(.+)`)
	aroundSpanRe     = regexp.MustCompile(`\b(?:around|about|approximately|roughly)\s+(.+)`)
	bareNumberRe     = regexp.MustCompile(`^\d+$`)
	unitWordRe       = regexp.MustCompile(`\b` + unitPattern + `\b`)
	startAnchorRe    = regexp.MustCompile(`^(?:the\s+)?(?:very\s+)?(?:beginning|start|intro|opening)$`)
	endAnchorRe      = regexp.MustCompile(`^(?:the\s+)?(?:very\s+)?end$`)
	endpointSuffixRe = regexp.MustCompile(`\s+(?:in|of|into|from)\s+(?:the|this|that)\s+(?:video|clip|talk|stream|recording|episode)\b.*$`)
)

// aroundWindowSec is the half-width of an "around X" window.
const aroundWindowSec = 60

// rangeRule is one range-forming pattern family.
type rangeRule struct {
	name  string
	build func(utterance string, durationSec int) (Range, bool)
}

func (p *Parser) defaultRangeRules() []rangeRule {
	return []rangeRule{
		{"from_to", p.explicitRule(fromToRe)},
		{"between_and", p.explicitRule(betweenAndRe)},
		{"minutes_span", func(u string, _ int) (Range, bool) {
			m := minutesSpanRe.FindStringSubmatch(u)
			if m == nil {
				return Range{}, false
			}
			return ordered(atoi(m[1])*60, atoi(m[2])*60), true
		}},
		{"first", func(u string, _ int) (Range, bool) {
			m := firstSpanRe.FindStringSubmatch(u)
			if m == nil {
				return Range{}, false
			}
			return Range{Start: 0, End: atoi(m[1]) * unitSeconds(m[2])}, true
		}},
		{"last", func(u string, d int) (Range, bool) {
			m := lastSpanRe.FindStringSubmatch(u)
			if m == nil {
				return Range{}, false
			}
			return Range{Start: max(0, d-atoi(m[1])*unitSeconds(m[2])), End: d}, true
		}},
		{"after", func(u string, d int) (Range, bool) {
			x, ok := p.endpoint(afterSpanRe, u, d)
			if !ok {
				return Range{}, false
			}
			return ordered(x, d), true
		}},
		{"before", func(u string, d int) (Range, bool) {
			y, ok := p.endpoint(beforeSpanRe, u, d)
			if !ok {
				return Range{}, false
			}
			return Range{Start: 0, End: y}, true
		}},
		{"around", func(u string, d int) (Range, bool) {
			c, ok := p.endpoint(aroundSpanRe, u, d)
			if !ok {
				if !midpointRe.MatchString(u) {
					return Range{}, false
				}
				c = d / 2
			}
			return Range{Start: max(0, c-aroundWindowSec), End: c + aroundWindowSec}, true
		}},
	}
}

// ExtractRange scans an utterance for a range-forming phrase. The first
// family that matches wins. The upper bound is not clamped to the duration;
// use Range.Clamp before selecting chunks.
func (p *Parser) ExtractRange(utterance string, durationSec int) (Range, bool) {
	_, r, ok := p.ExplainRange(utterance, durationSec)
	return r, ok
}

// ExplainRange is ExtractRange that also returns the matching family name.
func (p *Parser) ExplainRange(utterance string, durationSec int) (string, Range, bool) {
	if durationSec <= 0 {
		durationSec = p.defaultDuration
	}
	u := p.Normalize(utterance)
	if u == "" {
		return "", Range{}, false
	}
	for _, rule := range p.rangeRules {
		if r, ok := rule.build(u, durationSec); ok {
			return rule.name, r, true
		}
	}
	return "", Range{}, false
}

// explicitRule handles two-endpoint phrases. A bare number borrows the unit
// of the other endpoint, "the start" and "the end" anchor to the video's
// bounds, and an endpoint no rule recognises parses to 0. The phrase is
// rejected only when neither endpoint resolves.
func (p *Parser) explicitRule(re *regexp.Regexp) func(string, int) (Range, bool) {
	return func(u string, d int) (Range, bool) {
		m := re.FindStringSubmatch(u)
		if m == nil {
			return Range{}, false
		}
		a, b := cleanEndpoint(m[1]), cleanEndpoint(m[2])
		a, b = inheritUnit(a, b), inheritUnit(b, a)
		start, okStart := p.resolveEndpoint(a, d)
		end, okEnd := p.resolveEndpoint(b, d)
		if !okStart && !okEnd {
			return Range{}, false
		}
		return ordered(start, end), true
	}
}

// resolveEndpoint is Resolve plus the start and end anchors. An
// unresolved endpoint is 0.
func (p *Parser) resolveEndpoint(s string, d int) (int, bool) {
	switch {
	case startAnchorRe.MatchString(s):
		return 0, true
	case endAnchorRe.MatchString(s):
		return d, true
	}
	return p.Resolve(s, d)
}

func (p *Parser) endpoint(re *regexp.Regexp, u string, d int) (int, bool) {
	m := re.FindStringSubmatch(u)
	if m == nil {
		return 0, false
	}
	return p.Resolve(cleanEndpoint(m[1]), d)
}

// cleanEndpoint trims punctuation and trailing "in the video" style phrases.
func cleanEndpoint(s string) string {
	if i := strings.IndexAny(s, "?!,;"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(strings.TrimSpace(s), ".")
	return strings.TrimSpace(endpointSuffixRe.ReplaceAllString(s, ""))
}

func inheritUnit(endpoint, other string) string {
	if !bareNumberRe.MatchString(endpoint) {
		return endpoint
	}
	if unit := unitWordRe.FindString(other); unit != "" {
		return endpoint + " " + unit
	}
	return endpoint
}

func ordered(a, b int) Range {
	a, b = max(0, a), max(0, b)
	if a > b {
		a, b = b, a
	}
	return Range{Start: a, End: b}
}
