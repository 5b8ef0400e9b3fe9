package query

import "regexp"

var (
	ordinalMinuteRe = regexp.MustCompile(`\b(\d+)(?:st|nd|rd|th)?\s+minute\b`)
	minuteNumberRe  = regexp.MustCompile(`\bminute\s+(\d+)\b`)
	atMinutesRe     = regexp.MustCompile(`\bat\s+(\d+)\s*(?:minutes?|mins?)\b`)
	atLongClockRe   = regexp.MustCompile(`\bat\s+(\d{1,2}):(\d{2}):(\d{2})\b`)
	atClockRe       = regexp.MustCompile(`\bat\s+(\d{1,2}):(\d{2})\b`)
	lastMinuteRe    = regexp.MustCompile(`\blast\s+minute\b`)
)

type pointRule struct {
	name  string
	match func(utterance string) (TimeReference, bool)
}

func minuteRule(re *regexp.Regexp) func(string) (TimeReference, bool) {
	return func(u string) (TimeReference, bool) {
		m := re.FindStringSubmatch(u)
		if m == nil {
			return None{}, false
		}
		return Minute{N: atoi(m[1])}, true
	}
}

func defaultPointRules() []pointRule {
	return []pointRule{
		{"ordinal_minute", minuteRule(ordinalMinuteRe)},
		{"minute_number", minuteRule(minuteNumberRe)},
		{"at_minutes", minuteRule(atMinutesRe)},
		{"at_long_clock", func(u string) (TimeReference, bool) {
			m := atLongClockRe.FindStringSubmatch(u)
			if m == nil {
				return None{}, false
			}
			return Instant{Seconds: atoi(m[1])*3600 + atoi(m[2])*60 + atoi(m[3])}, true
		}},
		// "at H:MM" reads as minutes and seconds.
		{"at_clock", func(u string) (TimeReference, bool) {
			m := atClockRe.FindStringSubmatch(u)
			if m == nil {
				return None{}, false
			}
			return Instant{Seconds: atoi(m[1])*60 + atoi(m[2])}, true
		}},
		{"last_minute", func(u string) (TimeReference, bool) {
			if !lastMinuteRe.MatchString(u) {
				return None{}, false
			}
			return RelativeLastMinute{}, true
		}},
	}
}

// ExtractPoint scans an utterance for a single-point reference and returns
// a Minute, Instant or RelativeLastMinute. It returns None when nothing
// matches.
func (p *Parser) ExtractPoint(utterance string) TimeReference {
	_, ref := p.ExplainPoint(utterance)
	return ref
}

// ExplainPoint is ExtractPoint that also returns the matching rule name.
func (p *Parser) ExplainPoint(utterance string) (string, TimeReference) {
	u := p.Normalize(utterance)
	for _, rule := range p.pointRules {
		if ref, ok := rule.match(u); ok {
			return rule.name, ref
		}
	}
	return "", None{}
}

// Extract resolves the utterance to a range if one is present, otherwise to
// a point reference, otherwise None.
func (p *Parser) Extract(utterance string, durationSec int) TimeReference {
	if r, ok := p.ExtractRange(utterance, durationSec); ok {
		return r
	}
	return p.ExtractPoint(utterance)
}
