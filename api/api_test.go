package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/catalystforge/subtitle-worker/config"
	"github.com/catalystforge/subtitle-worker/jobstate"
	"github.com/catalystforge/subtitle-worker/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*store.Client, http.Handler) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewFromRedis(rdb)
	state := jobstate.NewWriter(s)
	return s, NewRouter(s, state, "secret-token")
}

func TestCreateJobDefaultsToLowPriority(t *testing.T) {
	s, router := newTestRouter(t)

	body := strings.NewReader(`{"videoUrl":"s3://bucket/v.mp4"}`)
	req := httptest.NewRequest(http.MethodPost, "/jobs", body)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp createJobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.ID)

	n, err := s.ListLen(context.Background(), config.KeyQueueLow)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	fields, err := s.HashGetAll(context.Background(), config.JobKey(resp.ID))
	require.NoError(t, err)
	require.NotEmpty(t, fields["createdAt"])
	_, parseErr := time.Parse(time.RFC3339, fields["createdAt"])
	require.NoError(t, parseErr)
}

func TestCreateJobsAreDequeuedInFIFOOrder(t *testing.T) {
	s, router := newTestRouter(t)

	createJob := func(videoURL string) string {
		req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(`{"videoUrl":"`+videoURL+`"}`))
		req.Header.Set("Authorization", "Bearer secret-token")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)
		var resp createJobResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		return resp.ID
	}

	firstID := createJob("s3://bucket/a.mp4")
	secondID := createJob("s3://bucket/b.mp4")

	ctx := context.Background()
	_, poppedFirst, ok, err := s.ListBlockingPopRight(ctx, time.Second, config.KeyQueueLow)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, firstID, poppedFirst)

	_, poppedSecond, ok, err := s.ListBlockingPopRight(ctx, time.Second, config.KeyQueueLow)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, secondID, poppedSecond)
}

func TestCreateJobHighPriorityGoesToHighQueue(t *testing.T) {
	s, router := newTestRouter(t)

	body := strings.NewReader(`{"videoUrl":"s3://bucket/v.mp4","priority":"high"}`)
	req := httptest.NewRequest(http.MethodPost, "/jobs", body)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	n, err := s.ListLen(context.Background(), config.KeyQueueHigh)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestCreateJobRejectsMissingVideoURL(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateJobRequiresAuth(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(`{"videoUrl":"s3://bucket/v.mp4"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetJobReturnsFields(t *testing.T) {
	s, router := newTestRouter(t)
	ctx := context.Background()

	require.NoError(t, s.HashSetFields(ctx, config.JobKey("job-1"), map[string]string{
		"id":     "job-1",
		"status": jobstate.StatusCompleted,
	}))

	req := httptest.NewRequest(http.MethodGet, "/jobs/job-1", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var fields map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&fields))
	require.Equal(t, jobstate.StatusCompleted, fields["status"])
}

func TestGetJobNotFound(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/jobs/missing", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboardReportsQueueDepths(t *testing.T) {
	s, router := newTestRouter(t)
	ctx := context.Background()

	require.NoError(t, s.ListPushRight(ctx, config.KeyQueueHigh, "a"))
	require.NoError(t, s.ListPushRight(ctx, config.KeyQueueLow, "b"))
	require.NoError(t, s.ListPushRight(ctx, config.KeyQueueLow, "c"))
	require.NoError(t, s.SetAdd(ctx, config.KeyJobsProcessing, "d"))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot FleetSnapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snapshot))
	require.Equal(t, int64(1), snapshot.HighQueueLen)
	require.Equal(t, int64(2), snapshot.LowQueueLen)
	require.Equal(t, int64(0), snapshot.DLQLen)
	require.Equal(t, int64(1), snapshot.ProcessingCount)
}
