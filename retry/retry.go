// Package retry classifies pipeline failures and decides whether a job
// is requeued with backoff or sent to the dead-letter queue.
package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/catalystforge/subtitle-worker/config"
	"github.com/catalystforge/subtitle-worker/jobstate"
	"github.com/catalystforge/subtitle-worker/log"
	"github.com/catalystforge/subtitle-worker/metrics"
	"github.com/catalystforge/subtitle-worker/store"
)

// Controller increments a job's retryCount and either schedules a
// delayed requeue onto queue:low or pushes straight to queue:dlq.
type Controller struct {
	store            *store.Client
	state            *jobstate.Writer
	maxRetries       int
	initialBackoffMs int

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewController(s *store.Client, state *jobstate.Writer, maxRetries, initialBackoffMs int) *Controller {
	return &Controller{
		store:            s,
		state:            state,
		maxRetries:       maxRetries,
		initialBackoffMs: initialBackoffMs,
		timers:           make(map[string]*time.Timer),
	}
}

// Handle increments the retry counter for jobID and routes it to either
// a delayed retry or the dead-letter queue. cause is recorded as the
// job's error field.
func (c *Controller) Handle(ctx context.Context, jobID string, cause error) error {
	retryCount, err := c.store.HashIncr(ctx, config.JobKey(jobID), "retryCount", 1)
	if err != nil {
		return fmt.Errorf("incrementing retryCount for job %s: %w", jobID, err)
	}

	if err := c.state.SetError(ctx, jobID, cause); err != nil {
		return fmt.Errorf("recording error for job %s: %w", jobID, err)
	}

	if retryCount <= int64(c.maxRetries) {
		if err := c.state.SetStatus(ctx, jobID, jobstate.StatusQueuedRetry); err != nil {
			return fmt.Errorf("setting queued:retry for job %s: %w", jobID, err)
		}
		backoff := time.Duration(1<<(retryCount-1)) * time.Duration(c.initialBackoffMs) * time.Millisecond
		c.scheduleRequeue(jobID, backoff)
		metrics.Metrics.Pipeline.JobsFailed.WithLabelValues("retry").Inc()
		return nil
	}

	if err := c.state.SetStatus(ctx, jobID, jobstate.StatusFailedDLQ); err != nil {
		return fmt.Errorf("setting failed:dlq for job %s: %w", jobID, err)
	}
	if err := c.store.ListPushRight(ctx, config.KeyQueueDLQ, jobID); err != nil {
		return fmt.Errorf("pushing job %s to dlq: %w", jobID, err)
	}
	metrics.Metrics.Pipeline.JobsFailed.WithLabelValues("dlq").Inc()
	return nil
}

// scheduleRequeue owns a small per-job timer wheel: a map of outstanding
// *time.Timer guarded by a mutex, so a controller shutdown could in
// principle enumerate/cancel them, even though nothing in this spec
// cancels in-flight retries.
func (c *Controller) scheduleRequeue(jobID string, delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.timers[jobID]; ok {
		old.Stop()
	}
	c.timers[jobID] = time.AfterFunc(delay, func() {
		ctx := context.Background()
		// LPush pairs with the worker's BRPop on the same list for FIFO
		// order, matching the submission API's enqueue side.
		if err := c.store.ListPushLeft(ctx, config.KeyQueueLow, jobID); err != nil {
			log.LogError(jobID, "failed to requeue job after retry backoff", err)
		}
		c.mu.Lock()
		delete(c.timers, jobID)
		c.mu.Unlock()
	})
}

// PendingTimers reports how many jobs currently have an outstanding
// retry timer, for tests.
func (c *Controller) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}
