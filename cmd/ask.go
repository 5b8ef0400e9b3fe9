package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/vidq/pkg/assistant"
	"github.com/otherjamesbrown/vidq/pkg/transcript"
	"github.com/otherjamesbrown/vidq/services/search/query"
)

// askFlags are shared by ask and resolve.
type askFlags struct {
	video    string
	duration int
}

func (f *askFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.video, "video", "v", "", "YouTube video ID or URL (default: a link in the question)")
	cmd.Flags().IntVar(&f.duration, "duration", 0, "Video length in seconds when the store has no metadata")
}

func (f *askFlags) request(args []string) assistant.AskRequest {
	req := assistant.AskRequest{Query: strings.Join(args, " "), DurationSec: f.duration}
	if v := strings.TrimSpace(f.video); v != "" {
		if strings.Contains(v, "/") {
			req.VideoURL = v
		} else {
			req.VideoID = v
		}
	}
	return req
}

// NewAskCommand creates the 'ask' command.
func NewAskCommand(deps *AppCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultAppDeps()
	}
	var flags askFlags

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about a YouTube video",
		Long: `Ask a natural language question about a video's transcript.

The question is routed by what it asks for: a time range ("the last 5
minutes", "between 2:00 and 4:30"), a moment ("at 12:15", "halfway"), a
topic ("what do they say about pricing"), the tone of the video, its
metadata, or a summary of the whole thing. Only the matching part of the
transcript is sent to the model.

Videos without a stored transcript are queued for fetching; ask again once
'vidq ingest' or the scrape worker has stored it.

Examples:
  vidq ask "what happens in the first 10 minutes?" --video dQw4w9WgXcQ
  vidq ask "summarize https://youtu.be/dQw4w9WgXcQ"
  vidq ask "what is the tone at the end?" -v dQw4w9WgXcQ --output json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), cmd.OutOrStdout(), deps, flags.request(args))
		},
	}
	flags.register(cmd)
	return cmd
}

func runAsk(ctx context.Context, out io.Writer, deps *AppCommandDeps, req assistant.AskRequest) error {
	a, cfg, err := deps.open()
	if err != nil {
		return err
	}
	defer a.Close()

	asst, err := a.Assistant()
	if err != nil {
		return fmt.Errorf("starting assistant: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	answer, err := asst.Ask(ctx, req)
	if err != nil {
		return err
	}
	if done, err := writeStructured(out, cfg.OutputFormat, answer); done {
		return err
	}
	printAnswer(out, answer)
	return nil
}

func printAnswer(out io.Writer, a *assistant.Answer) {
	fmt.Fprintln(out, a.Text)
	if len(a.KeyPoints) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, TitleStyle.Render("Key points"))
		for _, p := range a.KeyPoints {
			fmt.Fprintf(out, "  %s %s\n", BulletStyle.Render("•"), p)
		}
	}

	var meta []string
	if a.VideoID != "" {
		meta = append(meta, "video "+a.VideoID)
	}
	if a.Intent != "" {
		meta = append(meta, "intent "+string(a.Intent))
	}
	if a.TimeRange != "" {
		meta = append(meta, "time "+a.TimeRange)
	}
	if a.Topic != "" {
		meta = append(meta, "topic "+a.Topic)
	}
	if len(meta) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, DimStyle.Render(strings.Join(meta, " · ")))
	}
}

// NewResolveCommand creates the 'resolve' command.
func NewResolveCommand(deps *AppCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultAppDeps()
	}
	var flags askFlags
	var showText bool

	cmd := &cobra.Command{
		Use:   "resolve <question>",
		Short: "Show how a question would be routed",
		Long: `Resolve a question to an intent and the transcript chunks it selects,
without calling the model. Useful for checking how a time expression or
topic is understood.

Examples:
  vidq resolve "the last 5 minutes" --video dQw4w9WgXcQ
  vidq resolve "what do they say about pricing?" -v dQw4w9WgXcQ --text`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd.Context(), cmd.OutOrStdout(), deps, flags.request(args), showText)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&showText, "text", false, "Print the text of each selected chunk")
	return cmd
}

func runResolve(ctx context.Context, out io.Writer, deps *AppCommandDeps, req assistant.AskRequest, showText bool) error {
	a, cfg, err := deps.open()
	if err != nil {
		return err
	}
	defer a.Close()

	asst, err := a.Assistant()
	if err != nil {
		return fmt.Errorf("starting assistant: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	res, err := asst.Resolve(ctx, req)
	if err != nil {
		return err
	}
	if done, err := writeStructured(out, cfg.OutputFormat, res); done {
		return err
	}
	printResolution(out, res, showText)
	return nil
}

func printResolution(out io.Writer, res *assistant.Resolution, showText bool) {
	d := res.Decision
	fmt.Fprintf(out, "%s %s\n", label("Video"), valueOrDefault(res.VideoID, "(none)"))
	fmt.Fprintf(out, "%s %s\n", label("Outcome"), res.Outcome)
	if d.Intent != "" {
		fmt.Fprintf(out, "%s %s\n", label("Intent"), d.Intent)
	}
	if d.Rule != "" {
		fmt.Fprintf(out, "%s %s\n", label("Rule"), d.Rule)
	}
	if d.TimeRange != "" {
		fmt.Fprintf(out, "%s %s\n", label("Time"), d.TimeRange)
	}
	if d.Topic != "" {
		fmt.Fprintf(out, "%s %s\n", label("Topic"), d.Topic)
	}
	if d.DurationSec > 0 {
		fmt.Fprintf(out, "%s %s\n", label("Duration"), query.FormatSeconds(d.DurationSec))
	}
	if res.Message != "" {
		fmt.Fprintf(out, "%s %s\n", label("Message"), WarnStyle.Render(res.Message))
	}
	fmt.Fprintf(out, "%s %d\n", label("Chunks"), len(d.Chunks))
	for _, c := range d.Chunks {
		fmt.Fprintf(out, "  %s %s\n", BulletStyle.Render(fmt.Sprintf("#%d", c.Order)), chunkSpan(c))
		if showText {
			fmt.Fprintf(out, "     %s\n", DimStyle.Render(c.Text))
		}
	}
}

func chunkSpan(c transcript.Chunk) string {
	if !c.HasTiming() {
		return "(untimed)"
	}
	return query.FormatSeconds(int(*c.StartSec)) + " - " + query.FormatSeconds(int(*c.EndSec))
}
