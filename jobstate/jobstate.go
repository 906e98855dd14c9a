// Package jobstate writes the job hash fields the pipeline mutates. Every
// status transition, output-key and error write funnels through here so
// tests can observe job state transitions without touching raw store
// calls. The initial record is written by the submission API, and
// retryCount is incremented by the retry controller directly.
package jobstate

import (
	"context"

	"github.com/catalystforge/subtitle-worker/config"
	"github.com/catalystforge/subtitle-worker/store"
)

const (
	StatusQueued                  = "queued"
	StatusQueuedRetry             = "queued:retry"
	StatusProcessingDownloadVideo = "processing:downloading_video"
	StatusProcessingExtractAudio  = "processing:extracting_audio"
	StatusProcessingTranscribe    = "processing:transcribing_audio"
	StatusCompleted               = "completed"
	StatusFailedDLQ               = "failed:dlq"
)

// Writer wraps store.Client.HashSetFields with named methods for every
// field the pipeline is allowed to mutate on a job record.
type Writer struct {
	store *store.Client
}

func NewWriter(s *store.Client) *Writer {
	return &Writer{store: s}
}

func (w *Writer) SetStatus(ctx context.Context, jobID, status string) error {
	return w.store.HashSetFields(ctx, config.JobKey(jobID), map[string]string{"status": status})
}

func (w *Writer) SetAudioURL(ctx context.Context, jobID, audioURL string) error {
	return w.store.HashSetFields(ctx, config.JobKey(jobID), map[string]string{"audioUrl": audioURL})
}

func (w *Writer) SetSubtitleURL(ctx context.Context, jobID, subtitleURL string) error {
	return w.store.HashSetFields(ctx, config.JobKey(jobID), map[string]string{"subtitleUrl": subtitleURL})
}

func (w *Writer) SetError(ctx context.Context, jobID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return w.store.HashSetFields(ctx, config.JobKey(jobID), map[string]string{"error": msg})
}

// Get reads the full job:{id} hash.
func (w *Writer) Get(ctx context.Context, jobID string) (map[string]string, error) {
	return w.store.HashGetAll(ctx, config.JobKey(jobID))
}

// GetField reads a single job:{id} field.
func (w *Writer) GetField(ctx context.Context, jobID, field string) (string, bool, error) {
	return w.store.HashGetField(ctx, config.JobKey(jobID), field)
}
