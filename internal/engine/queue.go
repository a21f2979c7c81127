package engine

import (
	"sync"

	"github.com/roach88/patchwire/internal/ir"
)

// RequestKind distinguishes the work items of the engine queue.
type RequestKind int

const (
	// RequestEvent asks the engine to process an incoming event.
	RequestEvent RequestKind = iota + 1
	// RequestSwitch asks the engine to change the active patch.
	RequestSwitch
)

// Request is one item of engine work.
type Request struct {
	Kind  RequestKind
	Event ir.Event
	Patch int
}

// eventQueue is a thread-safe FIFO queue of requests.
//
// The queue is unbounded so event sources never block on a slow patch.
// Any goroutine may enqueue; only the Run loop dequeues.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type eventQueue struct {
	mu       sync.Mutex
	requests []Request
	closed   bool
	signal   chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		requests: make([]Request, 0, 64),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a request to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(r Request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.requests = append(q.requests, r)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Request{}, false) if the queue is empty.
func (q *eventQueue) TryDequeue() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.requests) == 0 {
		return Request{}, false
	}

	r := q.requests[0]

	// Clear the slot so the sysex buffer can be collected.
	q.requests[0] = Request{}

	if len(q.requests) == 1 {
		q.requests = q.requests[:0]
	} else {
		q.requests = q.requests[1:]
	}

	return r, true
}

// Wait returns a channel that signals when requests may be available.
// The channel is closed when the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

// Close signals that no more requests will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
