// Package api implements the job submission and dashboard snapshot HTTP
// surfaces: POST /jobs, GET /jobs/:id, GET /dashboard.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/catalystforge/subtitle-worker/config"
	apierrors "github.com/catalystforge/subtitle-worker/errors"
	"github.com/catalystforge/subtitle-worker/jobstate"
	"github.com/catalystforge/subtitle-worker/store"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
)

// FleetSnapshot is the read-only multi-op view of queue depths and
// in-flight work, served by GET /dashboard.
type FleetSnapshot struct {
	HighQueueLen    int64 `json:"highQueueLen"`
	LowQueueLen     int64 `json:"lowQueueLen"`
	DLQLen          int64 `json:"dlqLen"`
	ProcessingCount int64 `json:"processingCount"`
}

// Handlers bundles the dependencies the job submission and dashboard
// endpoints need.
type Handlers struct {
	store *store.Client
	state *jobstate.Writer
}

func NewHandlers(s *store.Client, state *jobstate.Writer) *Handlers {
	return &Handlers{store: s, state: state}
}

type createJobRequest struct {
	VideoURL string `json:"videoUrl"`
	Priority string `json:"priority"`
}

type createJobResponse struct {
	ID string `json:"id"`
}

// CreateJob handles POST /jobs.
func (h *Handlers) CreateJob() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req createJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apierrors.WriteHTTPBadRequest(w, "invalid request body", err)
			return
		}
		if req.VideoURL == "" {
			apierrors.WriteHTTPBadRequest(w, "videoUrl is required", nil)
			return
		}

		queueKey := config.KeyQueueLow
		switch req.Priority {
		case "", "low":
			req.Priority = "low"
		case "high":
			queueKey = config.KeyQueueHigh
		default:
			apierrors.WriteHTTPBadRequest(w, "priority must be \"high\" or \"low\"", nil)
			return
		}

		id := uuid.NewString()
		ctx := r.Context()

		if err := h.store.HashSetFields(ctx, config.JobKey(id), map[string]string{
			"id":         id,
			"videoUrl":   req.VideoURL,
			"priority":   req.Priority,
			"createdAt":  config.Clock.GetTime().UTC().Format(time.RFC3339),
			"status":     jobstate.StatusQueued,
			"retryCount": "0",
		}); err != nil {
			apierrors.WriteHTTPInternalServerError(w, "failed to create job", err)
			return
		}
		// LPush pairs with the worker's BRPop (ListBlockingPopRight) on the
		// same list to give FIFO order within one queue.
		if err := h.store.ListPushLeft(ctx, queueKey, id); err != nil {
			apierrors.WriteHTTPInternalServerError(w, "failed to enqueue job", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(createJobResponse{ID: id})
	}
}

// GetJob handles GET /jobs/:id.
func (h *Handlers) GetJob() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id := ps.ByName("id")
		fields, err := h.state.Get(r.Context(), id)
		if err != nil {
			apierrors.WriteHTTPInternalServerError(w, "failed to read job", err)
			return
		}
		if len(fields) == 0 {
			apierrors.WriteHTTPNotFound(w, "job not found", nil)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(fields)
	}
}

// Dashboard handles GET /dashboard.
func (h *Handlers) Dashboard() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		snapshot, err := ReadSnapshot(r.Context(), h.store)
		if err != nil {
			apierrors.WriteHTTPInternalServerError(w, "failed to read dashboard snapshot", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snapshot)
	}
}

// ReadSnapshot reads the four queue-depth gauges atomically in one
// pipelined round-trip, shared by the HTTP handler and the api-server's
// periodic Prometheus republish goroutine.
func ReadSnapshot(ctx context.Context, s *store.Client) (FleetSnapshot, error) {
	var highLen, lowLen, dlqLen, processingLen *redis.IntCmd

	err := s.MultiExec(ctx, func(pipe redis.Pipeliner) error {
		highLen = pipe.LLen(ctx, config.KeyQueueHigh)
		lowLen = pipe.LLen(ctx, config.KeyQueueLow)
		dlqLen = pipe.LLen(ctx, config.KeyQueueDLQ)
		processingLen = pipe.SCard(ctx, config.KeyJobsProcessing)
		return nil
	})
	if err != nil {
		return FleetSnapshot{}, err
	}

	return FleetSnapshot{
		HighQueueLen:    highLen.Val(),
		LowQueueLen:     lowLen.Val(),
		DLQLen:          dlqLen.Val(),
		ProcessingCount: processingLen.Val(),
	}, nil
}
