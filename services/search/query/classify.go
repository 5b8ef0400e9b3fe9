package query

import (
	"regexp"
	"strings"
)

var (
	aboutTopicRe  = regexp.MustCompile(`\babout\s+([^,.?!;\n]+)`)
	topicPhraseRe = regexp.MustCompile(`\btopics?\s+(?:of\s+|on\s+)?([^,.?!;\n]+)`)
	quotedRe      = regexp.MustCompile(`"([^"]+)"|“([^”]+)”|(?:^|\s)'([^']+)'(?:\s|$|[?.!,])`)
	topicSuffixRe = regexp.MustCompile(`\s+(?:in|from|on)\s+(?:the|this|that)\s+(?:video|clip|talk|stream|episode)\b.*$`)

	sentimentRe = regexp.MustCompile(`\b(?:sentiment|tone|mood|emotions?|emotional|feel|feels|feeling|feelings|attitude|vibe|positive|negative|optimistic|pessimistic)\b`)
	metadataRe  = regexp.MustCompile(`\b(?:title|channel|uploader|uploaded|upload date|published|view count|like count|likes? ratio|how many (?:views|likes|dislikes|comments)|number of (?:views|likes|comments)|duration|video length|(?:length|runtime) of (?:the|this|that) (?:video|clip|talk|stream|episode)|how long is (?:it|this|that|(?:the|this|that) (?:video|clip|talk|stream|episode))|description|tags?|metadata|who (?:made|created|uploaded|posted))\b`)
)

// ExtractTopic returns the subject of an "about X", "topic X" or quoted
// phrase, or "" when there is none.
func (p *Parser) ExtractTopic(utterance string) string {
	u := p.Normalize(utterance)
	for _, re := range []*regexp.Regexp{aboutTopicRe, topicPhraseRe} {
		if m := re.FindStringSubmatch(u); m != nil {
			if topic := cleanTopic(m[1]); topic != "" {
				return topic
			}
		}
	}
	if m := quotedRe.FindStringSubmatch(u); m != nil {
		for _, g := range m[1:] {
			if topic := cleanTopic(g); topic != "" {
				return topic
			}
		}
	}
	return ""
}

// IsSentimentQuery reports whether the utterance asks about tone or mood.
func (p *Parser) IsSentimentQuery(utterance string) bool {
	return sentimentRe.MatchString(p.Normalize(utterance))
}

// IsMetadataQuery reports whether the utterance asks about video facts such
// as title, channel or view count.
func (p *Parser) IsMetadataQuery(utterance string) bool {
	return metadataRe.MatchString(p.Normalize(utterance))
}

func cleanTopic(s string) string {
	s = topicSuffixRe.ReplaceAllString(strings.TrimSpace(s), "")
	return strings.TrimSpace(s)
}
