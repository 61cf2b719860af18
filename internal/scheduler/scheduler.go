// Package scheduler drives periodic crawl cycles with single-flight
// semantics: a trigger that fires while a cycle is still running is dropped,
// not queued.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// Cycler runs one crawl cycle.
type Cycler interface {
	RunCycle(ctx context.Context) error
}

// Scheduler triggers a Cycler on a fixed interval.
type Scheduler struct {
	cycler   Cycler
	interval time.Duration
	mu       sync.Mutex
	wg       sync.WaitGroup
}

// New creates a scheduler. A zero interval defaults to one hour.
func New(cycler Cycler, interval time.Duration) *Scheduler {
	if interval == 0 {
		interval = time.Hour
	}
	return &Scheduler{cycler: cycler, interval: interval}
}

// Run starts the loop: one immediate cycle, then one per interval. Blocks
// until ctx is cancelled; cancellation both wakes the wait between cycles
// and stops the in-flight cycle at its next poll point. Run returns only
// after the in-flight cycle, if any, has finished.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.TriggerNow(ctx)
	fmt.Fprintf(os.Stderr, "scheduler: running (crawl every %s)\n", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			fmt.Fprintln(os.Stderr, "scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			s.TriggerNow(ctx)
		}
	}
}

// TriggerNow starts one cycle in the background unless a cycle is already in
// flight, in which case the trigger is dropped. The cycle runs off the loop
// so ticks keep flowing during a long cycle and land here, where they are
// dropped, instead of queueing in the ticker and firing a back-to-back cycle.
func (s *Scheduler) TriggerNow(ctx context.Context) {
	if !s.mu.TryLock() {
		fmt.Fprintln(os.Stderr, "scheduler: cycle already running, skipping trigger")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.mu.Unlock()

		if err := s.cycler.RunCycle(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "scheduler: cycle failed: %v\n", err)
		}
	}()
}
