package jobstate

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/catalystforge/subtitle-worker/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T) *Writer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewWriter(store.NewFromRedis(rdb))
}

func TestSetStatusAndGet(t *testing.T) {
	w := newTestWriter(t)
	ctx := context.Background()

	require.NoError(t, w.SetStatus(ctx, "j1", StatusProcessingDownloadVideo))

	status, ok, err := w.GetField(ctx, "j1", "status")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StatusProcessingDownloadVideo, status)
}

func TestSetAudioAndSubtitleURL(t *testing.T) {
	w := newTestWriter(t)
	ctx := context.Background()

	require.NoError(t, w.SetAudioURL(ctx, "j1", "v.mp3"))
	require.NoError(t, w.SetSubtitleURL(ctx, "j1", "v.srt"))

	job, err := w.Get(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, "v.mp3", job["audioUrl"])
	require.Equal(t, "v.srt", job["subtitleUrl"])
}

func TestSetError(t *testing.T) {
	w := newTestWriter(t)
	ctx := context.Background()

	require.NoError(t, w.SetError(ctx, "j1", fmt.Errorf("boom")))

	job, err := w.Get(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, "boom", job["error"])
}
