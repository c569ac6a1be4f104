package events

import (
	"context"
	"sync"
	"time"

	"github.com/soundvault/backend/internal/metrics"
)

// Type identifies the kind of security event.
type Type string

const (
	TypeTokenIssued       Type = "token_issued"
	TypeTokenDenied       Type = "token_denied"
	TypeRateLimited       Type = "rate_limited"
	TypeAbuseDetected     Type = "abuse_detected"
	TypeScopeDenied       Type = "scope_denied"
	TypeDecryptionFailure Type = "decryption_failure"
	TypeServed            Type = "served"
)

// Event is an append-only security record. Events are write-only from this
// subsystem's point of view; an external consumer reads the sink.
type Event struct {
	Type        Type              `json:"type"`
	IdentityKey string            `json:"identity_key"`
	IP          string            `json:"ip,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Sink receives security events. Implementations must tolerate bursts;
// delivery is best-effort.
type Sink interface {
	Write(ctx context.Context, event Event) error
}

// Emitter decouples the request path from sink delivery: Emit never blocks.
// Events are buffered on a channel and drained by a background goroutine;
// under backpressure the event is dropped and counted rather than stalling
// a response.
type Emitter struct {
	sink Sink
	ch   chan Event

	dropped   uint64
	droppedMu sync.Mutex

	wg   sync.WaitGroup
	once sync.Once
}

// NewEmitter creates an emitter draining into the given sink with the given
// buffer size and starts its drain goroutine. Call Close on shutdown.
func NewEmitter(sink Sink, buffer int) *Emitter {
	if buffer <= 0 {
		buffer = 1024
	}
	e := &Emitter{
		sink: sink,
		ch:   make(chan Event, buffer),
	}
	e.wg.Add(1)
	go e.drain()
	return e
}

// Emit enqueues an event without blocking. A full buffer drops the event.
func (e *Emitter) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case e.ch <- event:
	default:
		e.droppedMu.Lock()
		e.dropped++
		e.droppedMu.Unlock()
		metrics.Get().SecurityEventsDropped.Inc()
	}
}

// Dropped returns how many events were discarded under backpressure.
func (e *Emitter) Dropped() uint64 {
	e.droppedMu.Lock()
	defer e.droppedMu.Unlock()
	return e.dropped
}

// Close stops accepting events and waits for the buffer to flush.
func (e *Emitter) Close() {
	e.once.Do(func() {
		close(e.ch)
	})
	e.wg.Wait()
}

func (e *Emitter) drain() {
	defer e.wg.Done()
	for event := range e.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		// Sink errors are best-effort by contract; the sink logs its own failures.
		_ = e.sink.Write(ctx, event)
		cancel()
	}
}
