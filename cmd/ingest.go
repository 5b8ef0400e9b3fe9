package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/vidq/pkg/app"
	"github.com/otherjamesbrown/vidq/pkg/transcript"
	"github.com/otherjamesbrown/vidq/pkg/youtube"
	"github.com/otherjamesbrown/vidq/services/search/query"
)

type ingestFlags struct {
	video    string
	format   string
	title    string
	channel  string
	duration int
}

// NewIngestCommand creates the 'ingest' command.
func NewIngestCommand(deps *AppCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultAppDeps()
	}
	var flags ingestFlags

	cmd := &cobra.Command{
		Use:   "ingest <caption-file>",
		Short: "Store a video transcript",
		Long: `Ingest a caption file (WebVTT, SRT or plain text) for a video.

The transcript is split into chunks that keep their start and end times,
stored in the configured store, and added to the topic index. Cached
answers for the video are dropped. Use "-" to read from stdin.

When --video is omitted the video ID is taken from the file name, so
yt-dlp output such as "dQw4w9WgXcQ.en.vtt" needs no flags.

Examples:
  vidq ingest dQw4w9WgXcQ.en.vtt
  vidq ingest talk.srt --video https://youtu.be/dQw4w9WgXcQ --title "Keynote"
  yt-dlp --write-auto-subs --skip-download -o - URL | vidq ingest - --video URL --format vtt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd.OutOrStdout(), cmd.InOrStdin(), deps, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.video, "video", "v", "", "YouTube video ID or URL (default: from the file name)")
	cmd.Flags().StringVar(&flags.format, "format", "", "Caption format: vtt, srt or txt (default: detect)")
	cmd.Flags().StringVar(&flags.title, "title", "", "Video title")
	cmd.Flags().StringVar(&flags.channel, "channel", "", "Channel name")
	cmd.Flags().IntVar(&flags.duration, "duration", 0, "Video length in seconds (default: end of the last caption)")
	return cmd
}

func runIngest(ctx context.Context, out io.Writer, stdin io.Reader, deps *AppCommandDeps, path string, flags ingestFlags) error {
	videoID := flags.video
	if videoID == "" && path != "-" {
		videoID = videoIDFromFileName(path)
	}
	if videoID == "" {
		return fmt.Errorf("cannot tell the video from %q; pass --video", path)
	}

	format := transcript.Format(strings.ToLower(flags.format))
	switch format {
	case "", transcript.FormatVTT, transcript.FormatSRT, transcript.FormatText:
	default:
		return fmt.Errorf("invalid format %q (must be vtt, srt or txt)", flags.format)
	}

	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening caption file: %w", err)
		}
		defer f.Close()
		r = f
	}

	a, cfg, err := deps.open()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	res, err := a.Ingest(ctx, app.IngestRequest{
		VideoID: videoID,
		Name:    path,
		Format:  format,
		Reader:  r,
		Metadata: &transcript.VideoMetadata{
			Title:       flags.title,
			Channel:     flags.channel,
			DurationSec: flags.duration,
		},
	})
	if err != nil {
		return err
	}

	if done, err := writeStructured(out, cfg.OutputFormat, res); done {
		return err
	}
	fmt.Fprintf(out, "%s %s\n", OKStyle.Render("Ingested"), res.VideoID)
	fmt.Fprintf(out, "%s %s\n", label("Format"), res.Format)
	fmt.Fprintf(out, "%s %d\n", label("Segments"), res.Segments)
	fmt.Fprintf(out, "%s %d\n", label("Chunks"), res.Chunks)
	fmt.Fprintf(out, "%s %s\n", label("Duration"), query.FormatSeconds(res.DurationSec))
	if !res.Timed {
		fmt.Fprintln(out, WarnStyle.Render("No timing found; time questions will use proportional positions."))
	}
	return nil
}

// videoIDFromFileName reads the video ID from names like
// "dQw4w9WgXcQ.en.vtt" or "Talk title [dQw4w9WgXcQ].vtt".
func videoIDFromFileName(path string) string {
	base := filepath.Base(path)
	if i := strings.LastIndex(base, "["); i >= 0 {
		if j := strings.Index(base[i:], "]"); j > 0 && youtube.IsVideoID(base[i+1:i+j]) {
			return base[i+1 : i+j]
		}
	}
	if i := strings.Index(base, "."); i > 0 && youtube.IsVideoID(base[:i]) {
		return base[:i]
	}
	return ""
}
