// Package transcribe defines the capability interface for turning an
// audio blob into timed text segments, with two variants selected at
// startup by configuration: a real AssemblyAI-backed provider and an
// in-memory mock for tests.
package transcribe

import (
	"context"

	"github.com/catalystforge/subtitle-worker/srt"
)

// Segment is a single timed transcript entry.
type Segment = srt.Segment

// Client transcribes the audio at audioKey and returns its segments in
// order. Implementations may return an empty slice; C8 treats that as a
// pipeline failure, not Client's concern.
type Client interface {
	Transcribe(ctx context.Context, audioKey string) ([]Segment, error)
}
