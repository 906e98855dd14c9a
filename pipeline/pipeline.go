// Package pipeline drives one job through its stages: download, extract
// audio, upload audio, transcribe, format subtitles, upload subtitles.
// It owns the per-job scratch directory and never leaves a job in a
// processing:* state — on any failure it delegates to the retry
// controller before returning.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/catalystforge/subtitle-worker/audio"
	"github.com/catalystforge/subtitle-worker/config"
	"github.com/catalystforge/subtitle-worker/jobstate"
	"github.com/catalystforge/subtitle-worker/log"
	"github.com/catalystforge/subtitle-worker/metrics"
	"github.com/catalystforge/subtitle-worker/retry"
	"github.com/catalystforge/subtitle-worker/semaphore"
	"github.com/catalystforge/subtitle-worker/srt"
	"github.com/catalystforge/subtitle-worker/store"
	"github.com/catalystforge/subtitle-worker/transcribe"
)

// BlobStore is the narrow blob.Client surface the pipeline needs,
// satisfied by *blob.Client in production and a fake in tests.
type BlobStore interface {
	Get(ctx context.Context, key, localPath string) error
	Put(ctx context.Context, key, contentType string, body io.Reader) error
}

// Executor runs one job at a time, synchronously, on behalf of the
// worker loop that invokes it.
type Executor struct {
	store       *store.Client
	state       *jobstate.Writer
	blob        BlobStore
	transcriber transcribe.Client
	aiSlots     *semaphore.Limiter
	retry       *retry.Controller
	scratchRoot string
}

func NewExecutor(
	s *store.Client,
	state *jobstate.Writer,
	blobClient BlobStore,
	transcriber transcribe.Client,
	aiSlots *semaphore.Limiter,
	retryCtl *retry.Controller,
	scratchRoot string,
) *Executor {
	return &Executor{
		store:       s,
		state:       state,
		blob:        blobClient,
		transcriber: transcriber,
		aiSlots:     aiSlots,
		retry:       retryCtl,
		scratchRoot: scratchRoot,
	}
}

// Run executes the full pipeline for jobID. It never returns an error
// that leaves the job unaccounted for: any failure is routed through
// the retry controller before Run returns.
func (e *Executor) Run(ctx context.Context, jobID string) (err error) {
	metrics.Metrics.Pipeline.JobsStarted.Inc()

	// Step 1: claim the job and create its scratch directory.
	if addErr := e.store.SetAdd(ctx, config.KeyJobsProcessing, jobID); addErr != nil {
		return fmt.Errorf("adding job %s to jobs:processing: %w", jobID, addErr)
	}

	scratch := filepath.Join(e.scratchRoot, jobID)
	if mkErr := os.MkdirAll(scratch, 0o755); mkErr != nil {
		return fmt.Errorf("creating scratch directory for job %s: %w", jobID, mkErr)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in pipeline for job %s: %v", jobID, rec)
		}
		if err != nil {
			if handleErr := e.retry.Handle(ctx, jobID, err); handleErr != nil {
				log.LogError(jobID, "retry controller failed to handle pipeline failure", handleErr)
			}
		}

		// Step 10: unconditional cleanup, never alters job outcome.
		if remErr := e.store.SetRemove(ctx, config.KeyJobsProcessing, jobID); remErr != nil {
			log.LogError(jobID, "failed to remove job from jobs:processing", remErr)
		}
		if rmErr := os.RemoveAll(scratch); rmErr != nil {
			log.LogError(jobID, "failed to remove scratch directory", rmErr)
		}
	}()

	// Step 1: claim the job and create its scratch directory.
	if err = e.store.SetAdd(ctx, config.KeyJobsProcessing, jobID); err != nil {
		return fmt.Errorf("adding job %s to jobs:processing: %w", jobID, err)
	}
	if err = os.MkdirAll(scratch, 0o755); err != nil {
		return fmt.Errorf("creating scratch directory for job %s: %w", jobID, err)
	}

	videoURL, err := e.downloadVideo(ctx, jobID, scratch)
	if err != nil {
		return err
	}

	audioKey, err := e.extractAndUploadAudio(ctx, jobID, scratch, videoURL)
	if err != nil {
		return err
	}

	segments, err := e.transcribeAudio(ctx, jobID, audioKey)
	if err != nil {
		return err
	}

	if err = e.formatAndUploadSubtitles(ctx, jobID, videoURL, segments); err != nil {
		return err
	}

	if err = e.state.SetStatus(ctx, jobID, jobstate.StatusCompleted); err != nil {
		return fmt.Errorf("setting completed status for job %s: %w", jobID, err)
	}
	metrics.Metrics.Pipeline.JobsCompleted.Inc()
	return nil
}

// downloadVideo implements steps 2-3: read videoUrl, stream it locally.
func (e *Executor) downloadVideo(ctx context.Context, jobID, scratch string) (videoURL string, err error) {
	start := time.Now()
	defer func() {
		metrics.Metrics.Pipeline.StageDuration.WithLabelValues("download_video").Observe(time.Since(start).Seconds())
	}()

	if err = e.state.SetStatus(ctx, jobID, jobstate.StatusProcessingDownloadVideo); err != nil {
		return "", fmt.Errorf("setting downloading_video status for job %s: %w", jobID, err)
	}

	videoURL, ok, err := e.state.GetField(ctx, jobID, "videoUrl")
	if err != nil {
		return "", fmt.Errorf("reading videoUrl for job %s: %w", jobID, err)
	}
	if !ok || videoURL == "" {
		return "", fmt.Errorf("job %s has no videoUrl recorded", jobID)
	}

	localVideo := filepath.Join(scratch, basename(videoURL))
	if err = e.blob.Get(ctx, videoURL, localVideo); err != nil {
		return "", fmt.Errorf("downloading video for job %s: %w", jobID, err)
	}
	return videoURL, nil
}

// extractAndUploadAudio implements steps 4-5.
func (e *Executor) extractAndUploadAudio(ctx context.Context, jobID, scratch, videoURL string) (audioKey string, err error) {
	start := time.Now()
	defer func() {
		metrics.Metrics.Pipeline.StageDuration.WithLabelValues("extract_audio").Observe(time.Since(start).Seconds())
	}()

	if err = e.state.SetStatus(ctx, jobID, jobstate.StatusProcessingExtractAudio); err != nil {
		return "", fmt.Errorf("setting extracting_audio status for job %s: %w", jobID, err)
	}

	localVideo := filepath.Join(scratch, basename(videoURL))
	stemName := stem(videoURL)
	localAudioPath := filepath.Join(scratch, stemName+".mp3")

	if err = audio.Extract(ctx, localVideo, localAudioPath); err != nil {
		return "", fmt.Errorf("extracting audio for job %s: %w", jobID, err)
	}

	audioKey = stemName + ".mp3"
	f, err := os.Open(localAudioPath)
	if err != nil {
		return "", fmt.Errorf("opening extracted audio for job %s: %w", jobID, err)
	}
	defer f.Close()

	if err = e.blob.Put(ctx, audioKey, "audio/mpeg", f); err != nil {
		return "", fmt.Errorf("uploading audio for job %s: %w", jobID, err)
	}
	if err = e.state.SetAudioURL(ctx, jobID, audioKey); err != nil {
		return "", fmt.Errorf("recording audioUrl for job %s: %w", jobID, err)
	}
	return audioKey, nil
}

// transcribeAudio implements steps 6-8: acquire the AI slot, call the
// transcription client, release the slot on every exit path.
func (e *Executor) transcribeAudio(ctx context.Context, jobID, audioKey string) (segments []transcribe.Segment, err error) {
	if err = e.aiSlots.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("acquiring AI slot for job %s: %w", jobID, err)
	}
	defer func() {
		if relErr := e.aiSlots.Release(ctx); relErr != nil {
			log.LogError(jobID, "failed to release AI semaphore slot", relErr)
		}
	}()

	start := time.Now()
	defer func() {
		metrics.Metrics.Pipeline.StageDuration.WithLabelValues("transcribe").Observe(time.Since(start).Seconds())
	}()

	if err = e.state.SetStatus(ctx, jobID, jobstate.StatusProcessingTranscribe); err != nil {
		return nil, fmt.Errorf("setting transcribing_audio status for job %s: %w", jobID, err)
	}

	segments, err = e.transcriber.Transcribe(ctx, audioKey)
	if err != nil {
		return nil, fmt.Errorf("transcribing audio for job %s: %w", jobID, err)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("Transcription service returned no segments.")
	}
	return segments, nil
}

// formatAndUploadSubtitles implements step 9.
func (e *Executor) formatAndUploadSubtitles(ctx context.Context, jobID, videoURL string, segments []transcribe.Segment) error {
	start := time.Now()
	defer func() {
		metrics.Metrics.Pipeline.StageDuration.WithLabelValues("format_subtitles").Observe(time.Since(start).Seconds())
	}()

	doc := srt.Format(segments)
	subtitleKey := stem(videoURL) + ".srt"

	if err := e.blob.Put(ctx, subtitleKey, "application/x-subrip", strings.NewReader(doc)); err != nil {
		return fmt.Errorf("uploading subtitles for job %s: %w", jobID, err)
	}
	if err := e.state.SetSubtitleURL(ctx, jobID, subtitleKey); err != nil {
		return fmt.Errorf("recording subtitleUrl for job %s: %w", jobID, err)
	}
	return nil
}

func basename(blobKey string) string {
	if u, err := url.Parse(blobKey); err == nil && u.Path != "" {
		return filepath.Base(u.Path)
	}
	return filepath.Base(blobKey)
}

func stem(blobKey string) string {
	base := basename(blobKey)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
