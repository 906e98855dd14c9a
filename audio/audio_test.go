package audio

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// withFakeFFmpeg installs a shell script named ffmpeg on PATH that
// echoes stderrMsg to stderr, writes "fake-mp3-bytes" to its final
// argument (the destination audio path) when exitCode is 0, and exits
// with exitCode.
func withFakeFFmpeg(t *testing.T, exitCode int, stderrMsg string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg script requires a POSIX shell")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "ffmpeg")
	body := "#!/usr/bin/env bash\n"
	if stderrMsg != "" {
		body += "echo '" + stderrMsg + "' 1>&2\n"
	}
	body += "out=\"${@: -1}\"\n"
	if exitCode == 0 {
		body += "echo fake-mp3-bytes > \"$out\"\n"
	}
	body += "exit " + itoa(exitCode) + "\n"

	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}

func TestExtractSucceeds(t *testing.T) {
	withFakeFFmpeg(t, 0, "")
	dir := t.TempDir()
	audioPath := filepath.Join(dir, "out.mp3")

	err := Extract(context.Background(), filepath.Join(dir, "in.mp4"), audioPath)
	require.NoError(t, err)

	data, err := os.ReadFile(audioPath)
	require.NoError(t, err)
	require.Equal(t, "fake-mp3-bytes\n", string(data))
}

func TestExtractFailureIncludesStderr(t *testing.T) {
	withFakeFFmpeg(t, 1, "Invalid data found when processing input")
	dir := t.TempDir()
	audioPath := filepath.Join(dir, "out.mp3")

	err := Extract(context.Background(), filepath.Join(dir, "in.mp4"), audioPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Invalid data found when processing input")
}
