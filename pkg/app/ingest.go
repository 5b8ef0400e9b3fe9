package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	vqerrors "github.com/otherjamesbrown/vidq/pkg/errors"
	"github.com/otherjamesbrown/vidq/pkg/logging"
	"github.com/otherjamesbrown/vidq/pkg/scrape"
	"github.com/otherjamesbrown/vidq/pkg/transcript"
	"github.com/otherjamesbrown/vidq/pkg/youtube"
)

// MaxTranscriptBytes bounds a single caption file.
const MaxTranscriptBytes = 32 << 20

// IngestRequest is one caption file to store.
type IngestRequest struct {
	VideoID string
	// Name is the file name, used to detect the format.
	Name   string
	Format transcript.Format
	Reader io.Reader
	// Metadata is stored alongside the chunks. Its VideoID is overwritten.
	Metadata *transcript.VideoMetadata
}

// IngestResult summarises a stored transcript.
type IngestResult struct {
	VideoID     string            `json:"video_id"`
	Format      transcript.Format `json:"format"`
	Segments    int               `json:"segments"`
	Chunks      int               `json:"chunks"`
	Timed       bool              `json:"timed"`
	DurationSec int               `json:"duration_sec"`
	Indexed     bool              `json:"indexed"`
}

// Ingest parses a caption file, chunks it and stores the chunks and
// metadata. The topic index is refreshed and cached analyses of the video
// are dropped.
func (a *App) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	videoID := req.VideoID
	if !youtube.IsVideoID(videoID) {
		videoID = youtube.ExtractVideoID(req.VideoID)
	}
	if videoID == "" {
		return nil, fmt.Errorf("%w: %q is not a YouTube video ID or URL", vqerrors.ErrValidation, req.VideoID)
	}

	data, err := io.ReadAll(io.LimitReader(req.Reader, MaxTranscriptBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	if len(data) > MaxTranscriptBytes {
		return nil, vqerrors.NewQueryError(vqerrors.ErrContentTooLarge, vqerrors.StageIngest,
			fmt.Sprintf("transcript exceeds %d bytes", MaxTranscriptBytes), nil)
	}

	format := req.Format
	if format == "" {
		format = transcript.DetectFormat(req.Name, data)
	}
	parsed, err := transcript.Parse(bytes.NewReader(data), format)
	if err != nil {
		return nil, fmt.Errorf("parsing %s transcript: %w", format, err)
	}

	chunks := transcript.DefaultChunkerConfig().Chunk(videoID, parsed.Segments)
	if transcript.Blank(chunks) {
		return nil, vqerrors.NewQueryError(vqerrors.ErrEmptyTranscript, vqerrors.StageIngest,
			"transcript has no text", nil)
	}

	st, err := a.Store()
	if err != nil {
		return nil, err
	}
	if err := st.PutChunks(ctx, videoID, chunks); err != nil {
		return nil, fmt.Errorf("storing chunks: %w", err)
	}

	meta := transcript.VideoMetadata{}
	if req.Metadata != nil {
		meta = *req.Metadata
	}
	meta.VideoID = videoID
	if meta.DurationSec == 0 {
		meta.DurationSec = parsed.DurationSeconds
	}
	if err := st.PutMetadata(ctx, &meta); err != nil {
		return nil, fmt.Errorf("storing metadata: %w", err)
	}

	res := &IngestResult{
		VideoID:     videoID,
		Format:      format,
		Segments:    len(parsed.Segments),
		Chunks:      len(chunks),
		Timed:       transcript.AnyTimed(chunks),
		DurationSec: meta.DurationSec,
	}

	log := a.logger.WithContext(ctx).With(logging.F("video_id", videoID))

	index, err := a.Index()
	if err != nil {
		return nil, err
	}
	if index != nil {
		if err := index.IndexChunks(ctx, videoID, chunks); err != nil {
			// The store is the source of truth; topic queries fall back to
			// keyword matching for unindexed videos.
			log.Warn("Indexing failed", logging.Err(err))
		} else {
			res.Indexed = true
		}
	}

	c, err := a.Cache()
	if err != nil {
		return nil, err
	}
	if c != nil {
		if err := c.DropVideo(videoID); err != nil {
			log.Warn("Dropping cached analyses failed", logging.Err(err))
		}
	}

	log.Info("Transcript ingested",
		logging.F("format", string(format)),
		logging.F("chunks", res.Chunks),
		logging.F("duration_sec", res.DurationSec),
	)
	return res, nil
}

// captionExts lists the extensions DirectoryHandler looks for, in order of
// preference.
var captionExts = []string{".vtt", ".srt", ".txt"}

// DirectoryHandler returns a scrape handler that ingests caption files
// dropped into dir by an external downloader. Files are matched by video
// ID prefix, so "dQw4w9WgXcQ.en.vtt" serves video dQw4w9WgXcQ. A job whose
// file has not arrived yet fails and is retried by the queue.
func (a *App) DirectoryHandler(dir string) scrape.Handler {
	return func(ctx context.Context, job scrape.Job) error {
		path, err := findCaptionFile(dir, job.VideoID)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()

		_, err = a.Ingest(ctx, IngestRequest{VideoID: job.VideoID, Name: path, Reader: f})
		return err
	}
}

func findCaptionFile(dir, videoID string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, videoID+"*"))
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", dir, err)
	}
	sort.Strings(matches)
	for _, ext := range captionExts {
		for _, m := range matches {
			if filepath.Ext(m) == ext {
				return m, nil
			}
		}
	}
	return "", fmt.Errorf("%w: no caption file for %s in %s", vqerrors.ErrNotFound, videoID, dir)
}
