// Package worker implements the pull-dispatch loop: acquire a global
// slot, pop the next job in priority order, run it to completion,
// release the slot.
package worker

import (
	"context"
	"time"

	"github.com/catalystforge/subtitle-worker/config"
	"github.com/catalystforge/subtitle-worker/log"
	"github.com/catalystforge/subtitle-worker/metrics"
	"github.com/catalystforge/subtitle-worker/pipeline"
	"github.com/catalystforge/subtitle-worker/semaphore"
)

// Executor is the narrow pipeline.Executor surface the loop needs.
type Executor interface {
	Run(ctx context.Context, jobID string) error
}

// Loop is one instance per worker thread of control. Multiple Loops may
// share the same store connection pool, either as goroutines in one
// process or as separate processes.
type Loop struct {
	globalSlots *semaphore.Limiter
	executor    Executor
	popper      JobPopper

	// disconnectSleep is the pause after a catastrophic store error,
	// overridable in tests so they don't burn 5 real seconds.
	disconnectSleep time.Duration
}

// JobPopper is the narrow store surface the loop needs to pull the next
// job id in priority order.
type JobPopper interface {
	ListBlockingPopRight(ctx context.Context, timeout time.Duration, lists ...string) (list, value string, ok bool, err error)
}

func NewLoop(globalSlots *semaphore.Limiter, executor Executor, popper JobPopper) *Loop {
	return &Loop{
		globalSlots:     globalSlots,
		executor:        executor,
		popper:          popper,
		disconnectSleep: 5 * time.Second,
	}
}

// Run repeats the acquire/pop/dispatch/release cycle forever until ctx
// is cancelled.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := l.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.LogNoRequestID("worker loop iteration failed, sleeping before retry", "err", err)
			time.Sleep(l.disconnectSleep)
		}
	}
}

func (l *Loop) runOnce(ctx context.Context) (err error) {
	// Step 1: acquire one global slot. Acquire-then-pop so the worker
	// never claims a job it cannot immediately run.
	if err = l.globalSlots.Acquire(ctx); err != nil {
		return err
	}
	metrics.Metrics.Worker.GlobalSlotsInUse.Inc()

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		// The token goes back even when ctx is already cancelled.
		if relErr := l.globalSlots.Release(context.WithoutCancel(ctx)); relErr != nil {
			log.LogNoRequestID("failed to release global semaphore slot", "err", relErr)
		}
		metrics.Metrics.Worker.GlobalSlotsInUse.Dec()
	}
	defer release()

	// Step 2: blocking pop, queue:high before queue:low.
	_, jobID, ok, err := l.popper.ListBlockingPopRight(ctx, 0, config.KeyQueueHigh, config.KeyQueueLow)
	if err != nil {
		release()
		return err
	}
	if !ok {
		release()
		return nil
	}

	// Step 3-4: run the job synchronously, release on every exit path.
	metrics.Metrics.Worker.JobsInFlight.Inc()
	runErr := l.executor.Run(ctx, jobID)
	metrics.Metrics.Worker.JobsInFlight.Dec()
	release()

	if runErr != nil {
		log.LogError(jobID, "pipeline execution returned an error", runErr)
	}
	return nil
}
