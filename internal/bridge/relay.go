package bridge

import (
	"context"
	"iter"
)

// StreamRelay converts push-style fragment arrival into the pull-style lazy
// sequence a live-streaming post call consumes. One producer, one consumer,
// single-use: open a new relay for each prose segment.
//
// A bounded channel carries the fragments; closing it is the "no more is
// coming" signal. Push applies backpressure when the platform consumes slower
// than the agent produces.
type StreamRelay struct {
	ch   chan string
	done chan error
}

const relayBuffer = 64

// OpenRelay starts a live post on t bound to the relay's fragment sequence
// and returns the relay handle. The post runs until Close is called and the
// sequence is exhausted.
func OpenRelay(ctx context.Context, t LiveThread) *StreamRelay {
	r := &StreamRelay{
		ch:   make(chan string, relayBuffer),
		done: make(chan error, 1),
	}
	go func() {
		err := t.PostLive(ctx, r.drain())
		// The post may return before the sequence is exhausted (early
		// consumer stop, or a write failure before the first pull). Keep
		// draining so a blocked Push can never deadlock the producer; the
		// loop ends when Close closes the channel.
		for range r.ch {
		}
		r.done <- err
	}()
	return r
}

// Push enqueues a fragment for the consumer. Must not be called after Close.
func (r *StreamRelay) Push(fragment string) {
	r.ch <- fragment
}

// Close signals end of segment, then waits for the in-flight post to finish
// and returns its error.
func (r *StreamRelay) Close() error {
	close(r.ch)
	return <-r.done
}

// drain yields queued fragments in push order, blocking while the queue is
// empty, and terminates once Close was called and the queue is drained.
func (r *StreamRelay) drain() iter.Seq[string] {
	return func(yield func(string) bool) {
		for f := range r.ch {
			if !yield(f) {
				return
			}
		}
	}
}
