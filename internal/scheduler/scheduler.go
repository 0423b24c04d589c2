// Package scheduler triggers the trading jobs on fixed intervals.
//
// A cycle failure — error or panic — is caught at the cycle boundary,
// logged, and the next scheduled cycle proceeds normally; a cycle must
// never terminate the process.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"spot-botv1/internal/metrics"
)

// Job is one periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration // per-cycle deadline; 0 means no deadline
	Run      func(ctx context.Context) error
}

// Scheduler runs registered jobs until its context is cancelled.
type Scheduler struct {
	jobs []Job
	prom *metrics.Metrics // may be nil
}

// New creates a Scheduler.
func New(prom *metrics.Metrics) *Scheduler {
	return &Scheduler{prom: prom}
}

// Add registers a job. Must be called before Run.
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// Run starts one goroutine per job and blocks until ctx is cancelled and
// every in-flight cycle has finished. The first cycle of each job fires
// after one full interval.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.runJob(ctx, job)
		}(job)
	}
	wg.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	log.Printf("[scheduler] job %s scheduled every %s", job.Name, job.Interval)
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx, job)
		}
	}
}

// runCycle executes one cycle with panic recovery and the job's timeout.
func (s *Scheduler) runCycle(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[scheduler] job %s panicked: %v", job.Name, r)
			if s.prom != nil {
				s.prom.CycleErrorsTotal.WithLabelValues(job.Name).Inc()
			}
		}
	}()

	cctx := ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := job.Run(cctx)
	elapsed := time.Since(start)

	if s.prom != nil {
		s.prom.CyclesTotal.WithLabelValues(job.Name).Inc()
		s.prom.CycleDur.WithLabelValues(job.Name).Observe(elapsed.Seconds())
	}

	if err != nil {
		log.Printf("[scheduler] job %s cycle failed after %s: %v", job.Name, elapsed.Round(time.Millisecond), err)
		if s.prom != nil {
			s.prom.CycleErrorsTotal.WithLabelValues(job.Name).Inc()
		}
	}
}
