// Package queue implements C5: the bounded, thread-safe FIFO of
// model.Batch values that sits between a side's Extractors and Loaders.
// Grounded on the teacher's database/concurrent.go channel-based fan-out
// (ConcurrentMapFuncWithError), generalized here from a one-shot gather
// into a long-lived multi-producer/multi-consumer queue with a blocking
// Put and a timed Poll, as spec §4.5 requires.
package queue

import (
	"context"
	"time"

	"pgcompare/internal/model"
)

// Queue is a bounded FIFO of batches, capacity counted in batches
// (message-queue-size, default 100). No ordering guarantee across
// producers is implied; Put from a single producer preserves that
// producer's enqueue order because the underlying channel is FIFO.
type Queue struct {
	ch chan model.Batch
}

// New returns a Queue with the given capacity in batches.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan model.Batch, capacity)}
}

// Put blocks until the batch is accepted or ctx is done. A full queue
// blocks the caller (an Extractor shard) rather than dropping the batch —
// spec §8 invariant 4, "no batch is ever dropped".
func (q *Queue) Put(ctx context.Context, b model.Batch) error {
	select {
	case q.ch <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll waits up to timeout for a batch. ok is false on timeout; callers
// (Loaders) treat a timeout as "nothing ready yet", not as an error or as
// end-of-stream — end-of-stream is signaled by an explicit Batch.Sentinel.
func (q *Queue) Poll(timeout time.Duration) (b model.Batch, ok bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case got := <-q.ch:
		return got, true
	case <-timer.C:
		return model.Batch{}, false
	}
}

// Len reports the number of batches currently queued, used by Loaders to
// check that the queue has drained before they finish.
func (q *Queue) Len() int {
	return len(q.ch)
}
