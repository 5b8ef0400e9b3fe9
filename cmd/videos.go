package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/vidq/pkg/transcript"
	"github.com/otherjamesbrown/vidq/services/search/query"
)

// NewVideosCommand creates the 'videos' command.
func NewVideosCommand(deps *AppCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultAppDeps()
	}
	return &cobra.Command{
		Use:   "videos",
		Short: "List videos with stored transcripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVideos(cmd.Context(), cmd.OutOrStdout(), deps)
		},
	}
}

func runVideos(ctx context.Context, out io.Writer, deps *AppCommandDeps) error {
	a, cfg, err := deps.open()
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.Store()
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	ids, err := st.Videos(ctx)
	if err != nil {
		return err
	}

	videos := make([]*transcript.VideoMetadata, 0, len(ids))
	for _, id := range ids {
		meta, err := st.Metadata(ctx, id)
		if err != nil {
			meta = &transcript.VideoMetadata{VideoID: id}
		}
		videos = append(videos, meta)
	}

	if done, err := writeStructured(out, cfg.OutputFormat, videos); done {
		return err
	}
	if len(videos) == 0 {
		fmt.Fprintln(out, DimStyle.Render("No transcripts stored. Add one with 'vidq ingest'."))
		return nil
	}
	for _, v := range videos {
		length := "-"
		if v.DurationSec > 0 {
			length = query.FormatSeconds(v.DurationSec)
		}
		fmt.Fprintf(out, "%s  %s  %s\n", v.VideoID, padRight(length, 8), valueOrDefault(v.Title, DimStyle.Render("(untitled)")))
	}
	return nil
}
