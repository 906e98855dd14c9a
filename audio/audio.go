// Package audio extracts an MP3 audio track from a video file via
// ffmpeg, invoked as a subprocess.
package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/catalystforge/subtitle-worker/subprocess"
)

// Extract shells out to ffmpeg to produce an MP3-encoded audio file at
// variable bitrate quality level 2, with no video stream. A non-zero
// exit wraps the captured stderr text.
func Extract(ctx context.Context, videoPath, audioPath string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", videoPath,
		"-vn",
		"-codec:a", "libmp3lame",
		"-qscale:a", "2",
		audioPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := subprocess.LogStdout(cmd); err != nil {
		return fmt.Errorf("attaching ffmpeg stdout logger: %w", err)
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg extraction failed: %w: %s", err, stderr.String())
	}

	return nil
}
