package redis

import (
	"context"
	"log"
	"sync"

	"spot-botv1/internal/decision"
)

// BufferedPublisher wraps a Publisher with a circuit breaker. While the
// circuit is open, decision events are queued locally and replayed once
// Redis is reachable again, so a Redis outage never loses cycle history.
type BufferedPublisher struct {
	pub *Publisher
	cb  *CircuitBreaker

	mu     sync.Mutex
	buffer []decision.Event
	maxBuf int

	OnBuffer func()          // called when an event is queued (for metrics)
	OnFlush  func(count int) // called after a replay
}

// NewBufferedPublisher wraps pub. maxBufferSize <= 0 defaults to 10000.
func NewBufferedPublisher(pub *Publisher, cb *CircuitBreaker, maxBufferSize int) *BufferedPublisher {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bp := &BufferedPublisher{
		pub:    pub,
		cb:     cb,
		buffer: make([]decision.Event, 0, 64),
		maxBuf: maxBufferSize,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go bp.flush()
		}
	}

	return bp
}

// PublishDecision publishes through the breaker; if the circuit is open
// the event is queued instead of dropped.
func (bp *BufferedPublisher) PublishDecision(ctx context.Context, ev decision.Event) error {
	err := bp.cb.Execute(func() error {
		return bp.pub.PublishDecision(ctx, ev)
	})
	if err == ErrCircuitOpen {
		bp.enqueue(ev)
		return nil
	}
	return err
}

func (bp *BufferedPublisher) enqueue(ev decision.Event) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if len(bp.buffer) >= bp.maxBuf {
		// full, drop the oldest event
		bp.buffer = bp.buffer[1:]
	}
	bp.buffer = append(bp.buffer, ev)

	if bp.OnBuffer != nil {
		bp.OnBuffer()
	}
}

// flush replays queued events through the underlying publisher.
func (bp *BufferedPublisher) flush() {
	bp.mu.Lock()
	if len(bp.buffer) == 0 {
		bp.mu.Unlock()
		return
	}
	toFlush := bp.buffer
	bp.buffer = make([]decision.Event, 0, 64)
	bp.mu.Unlock()

	ctx := context.Background()
	flushed := 0
	for _, ev := range toFlush {
		if err := bp.pub.PublishDecision(ctx, ev); err != nil {
			log.Printf("[redis] replay of buffered event failed: %v", err)
			continue
		}
		flushed++
	}

	log.Printf("[redis] flushed %d buffered decision events", flushed)
	if bp.OnFlush != nil {
		bp.OnFlush(flushed)
	}
}

// PendingCount returns the number of queued events awaiting replay.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.buffer)
}
