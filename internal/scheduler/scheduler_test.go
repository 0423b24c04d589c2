package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRun_FiresRepeatedly(t *testing.T) {
	var runs int64
	s := New(nil)
	s.Add(Job{
		Name:     "tick",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&runs, 1)
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if n := atomic.LoadInt64(&runs); n < 3 {
		t.Errorf("expected at least 3 cycles, got %d", n)
	}
}

func TestRun_PanicDoesNotStopSchedule(t *testing.T) {
	var runs int64
	s := New(nil)
	s.Add(Job{
		Name:     "explosive",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&runs, 1)
			panic("boom")
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if n := atomic.LoadInt64(&runs); n < 2 {
		t.Errorf("a panicking cycle must not stop the schedule, got %d runs", n)
	}
}

func TestRun_ErrorContinues(t *testing.T) {
	var runs int64
	s := New(nil)
	s.Add(Job{
		Name:     "flaky",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&runs, 1)
			return errors.New("transient")
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if n := atomic.LoadInt64(&runs); n < 2 {
		t.Errorf("a failing cycle must not stop the schedule, got %d runs", n)
	}
}

func TestRun_TimeoutImposedOnCycle(t *testing.T) {
	deadlineSeen := make(chan bool, 1)
	s := New(nil)
	s.Add(Job{
		Name:     "slow",
		Interval: 5 * time.Millisecond,
		Timeout:  time.Millisecond,
		Run: func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			select {
			case deadlineSeen <- ok:
			default:
			}
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	select {
	case ok := <-deadlineSeen:
		if !ok {
			t.Error("expected a deadline on the cycle context")
		}
	default:
		t.Fatal("job never ran")
	}
}

func TestRun_MultipleJobsIndependent(t *testing.T) {
	var fast, slow int64
	s := New(nil)
	s.Add(Job{Name: "fast", Interval: 5 * time.Millisecond, Run: func(ctx context.Context) error {
		atomic.AddInt64(&fast, 1)
		return nil
	}})
	s.Add(Job{Name: "slow", Interval: 20 * time.Millisecond, Run: func(ctx context.Context) error {
		atomic.AddInt64(&slow, 1)
		return nil
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if atomic.LoadInt64(&fast) <= atomic.LoadInt64(&slow) {
		t.Errorf("fast job should fire more often: fast=%d slow=%d", fast, slow)
	}
}
