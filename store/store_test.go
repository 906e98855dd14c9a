package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewFromRedis(rdb)
}

func TestHashFields(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.HashSetFields(ctx, "job:1", map[string]string{
		"status": "queued",
		"id":     "1",
	}))

	v, ok, err := c.HashGetField(ctx, "job:1", "status")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "queued", v)

	_, ok, err = c.HashGetField(ctx, "job:1", "missing")
	require.NoError(t, err)
	require.False(t, ok)

	all, err := c.HashGetAll(ctx, "job:1")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"status": "queued", "id": "1"}, all)
}

func TestHashIncr(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	n, err := c.HashIncr(ctx, "job:1", "retryCount", 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = c.HashIncr(ctx, "job:1", "retryCount", 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestListPushAndBlockingPop(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.ListPushRight(ctx, "queue:low", "j1"))

	list, val, ok, err := c.ListBlockingPopRight(ctx, time.Second, "queue:high", "queue:low")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "queue:low", list)
	require.Equal(t, "j1", val)
}

func TestListBlockingPopPrefersFirstNonEmpty(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.ListPushRight(ctx, "queue:low", "lowjob"))
	require.NoError(t, c.ListPushRight(ctx, "queue:high", "highjob"))

	list, val, ok, err := c.ListBlockingPopRight(ctx, time.Second, "queue:high", "queue:low")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "queue:high", list)
	require.Equal(t, "highjob", val)
}

func TestListBlockingPopTimeout(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, _, ok, err := c.ListBlockingPopRight(ctx, 50*time.Millisecond, "queue:empty")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSetOperations(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetAdd(ctx, "jobs:processing", "j1"))
	require.NoError(t, c.SetAdd(ctx, "jobs:processing", "j2"))

	members, err := c.SetMembers(ctx, "jobs:processing")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"j1", "j2"}, members)

	n, err := c.SetLen(ctx, "jobs:processing")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	require.NoError(t, c.SetRemove(ctx, "jobs:processing", "j1"))
	members, err = c.SetMembers(ctx, "jobs:processing")
	require.NoError(t, err)
	require.Equal(t, []string{"j2"}, members)
}

func TestListLenAndDelete(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.ListPushRight(ctx, "queue:dlq", "a"))
	require.NoError(t, c.ListPushRight(ctx, "queue:dlq", "b"))

	n, err := c.ListLen(ctx, "queue:dlq")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	require.NoError(t, c.ListDelete(ctx, "queue:dlq"))
	n, err = c.ListLen(ctx, "queue:dlq")
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

func TestMultiExec(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.ListPushRight(ctx, "queue:high", "a"))
	require.NoError(t, c.ListPushRight(ctx, "queue:low", "b"))

	var highLen, lowLen *redis.IntCmd
	err := c.MultiExec(ctx, func(pipe redis.Pipeliner) error {
		highLen = pipe.LLen(ctx, "queue:high")
		lowLen = pipe.LLen(ctx, "queue:low")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), highLen.Val())
	require.Equal(t, int64(1), lowLen.Val())
}

func TestSetNX(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "bootstrap:lock", "worker-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.SetNX(ctx, "bootstrap:lock", "worker-2", time.Second)
	require.NoError(t, err)
	require.False(t, ok)
}
