package analysis

import (
	"strings"
	"text/template"

	"github.com/otherjamesbrown/vidq/pkg/router"
	"github.com/otherjamesbrown/vidq/pkg/transcript"
)

const (
	templateAnalyze   = "analyze"
	templateSummarize = "summarize"
)

// PromptTemplates holds the prompt templates for each stage.
type PromptTemplates struct {
	Templates map[string]*template.Template
}

// DefaultPromptTemplates returns the built-in prompt templates.
func DefaultPromptTemplates() *PromptTemplates {
	funcs := template.FuncMap{"join": strings.Join}
	templates := make(map[string]*template.Template)
	templates[templateAnalyze] = template.Must(template.New(templateAnalyze).Funcs(funcs).Parse(analyzePromptTemplate))
	templates[templateSummarize] = template.Must(template.New(templateSummarize).Funcs(funcs).Parse(summarizePromptTemplate))
	return &PromptTemplates{Templates: templates}
}

type promptData struct {
	Query       string
	Instruction string
	TimeRange   string
	Topic       string
	Metadata    *transcript.VideoMetadata
	Transcript  string
}

var instructions = map[router.Intent]string{
	router.IntentTimeRange:   "Describe what happens in this part of the video, in order.",
	router.IntentTimestamp:   "Explain what is being said or shown at this moment of the video.",
	router.IntentTopic:       "Collect everything the video says about the topic. Ignore unrelated material.",
	router.IntentSentiment:   "Assess the overall tone and sentiment of the speakers, citing the passages that show it.",
	router.IntentMetadata:    "Answer using the video details first and the transcript only to add context.",
	router.IntentFullSummary: "Summarize the whole video: its purpose, main points and conclusion.",
}

func instructionFor(intent router.Intent) string {
	if s, ok := instructions[intent]; ok {
		return s
	}
	return instructions[router.IntentFullSummary]
}

const analyzeSystemPrompt = `You analyze YouTube video transcripts to answer questions about them.
Base every statement on the transcript or video details provided. If the transcript does not cover the question, say so.
Output valid JSON only.`

const summarizeSystemPrompt = `You turn structured notes about a video into a clear, friendly reply.
Write plain prose, no JSON and no headings. Keep it under 200 words unless the question asks for detail.`

const conversationSystemPrompt = `You are a helpful assistant for questions about YouTube videos.
No video was identified in this message, so answer conversationally. If the user seems to want a specific video, ask for its link.`

const analyzePromptTemplate = `QUESTION:
{{.Query}}

TASK:
{{.Instruction}}
{{- if .TimeRange}}

SEGMENT: {{.TimeRange}}
{{- end}}
{{- if .Topic}}

TOPIC: {{.Topic}}
{{- end}}
{{- with .Metadata}}

VIDEO DETAILS:
{{- if .Title}}
Title: {{.Title}}
{{- end}}
{{- if .Channel}}
Channel: {{.Channel}}
{{- end}}
{{- if .DurationSec}}
Duration (seconds): {{.DurationSec}}
{{- end}}
{{- if not .PublishedAt.IsZero}}
Published: {{.PublishedAt.Format "2006-01-02"}}
{{- end}}
{{- if .ViewCount}}
Views: {{.ViewCount}}
{{- end}}
{{- if .LikeCount}}
Likes: {{.LikeCount}}
{{- end}}
{{- if .Tags}}
Tags: {{join .Tags ", "}}
{{- end}}
{{- if .Description}}
Description: {{.Description}}
{{- end}}
{{- end}}

TRANSCRIPT:
{{.Transcript}}

Respond with a JSON object:
{"answer": "direct answer to the question", "key_points": ["point", "..."], "time_range": "the part of the video covered, if known"}`

const summarizePromptTemplate = `QUESTION:
{{.Query}}

ANALYSIS:
{{.Result.Answer}}
{{- if .Result.KeyPoints}}

KEY POINTS:
{{- range .Result.KeyPoints}}
- {{.}}
{{- end}}
{{- end}}
{{- if .Result.TimeRange}}

COVERS: {{.Result.TimeRange}}
{{- end}}

Write the reply to the question.`
