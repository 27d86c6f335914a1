// Package framequeue is the in-process handoff between the capture loop and
// the encoder worker: a bounded single-producer single-consumer ring that
// drops on overflow instead of blocking, so encoder latency never stalls
// capture. The drop counter is the backpressure signal.
package framequeue

import (
	"errors"
	"sync/atomic"

	"github.com/smazurov/camnode/internal/frame"
)

// ErrFull is returned when the consumer has fallen behind and the frame was
// dropped.
var ErrFull = errors.New("framequeue: queue full, frame dropped")

// DefaultCapacity keeps at most four frames of encoder backlog; small on
// purpose to bound latency.
const DefaultCapacity = 4

// Queue is a fixed-capacity SPSC ring of frames. Exactly one goroutine may
// call Push and exactly one may call Pop; the indices are the only shared
// state. Frames are copied in on Push and out on Pop, so neither side retains
// a reference into the ring.
type Queue struct {
	slots      []frame.Frame
	capacity   uint32
	writeIndex atomic.Uint32
	readIndex  atomic.Uint32
	pushed     atomic.Uint64
	dropped    atomic.Uint64
}

// New returns a queue with the given capacity, or DefaultCapacity if n <= 0.
func New(n int) *Queue {
	if n <= 0 {
		n = DefaultCapacity
	}
	return &Queue{
		slots:    make([]frame.Frame, n),
		capacity: uint32(n),
	}
}

// Push copies f into the ring. Returns ErrFull (and counts the drop) when the
// ring has no free slot.
func (q *Queue) Push(f *frame.Frame) error {
	w := q.writeIndex.Load()
	r := q.readIndex.Load()
	if w-r >= q.capacity {
		q.dropped.Add(1)
		return ErrFull
	}
	slot := &q.slots[w%q.capacity]
	data := slot.Data
	*slot = *f
	slot.Data = append(data[:0], f.Data...)
	q.writeIndex.Store(w + 1)
	q.pushed.Add(1)
	return nil
}

// Pop copies the oldest frame into f. Returns false when the ring is empty;
// the consumer is expected to poll with a short sleep, matching its
// soft-real-time cadence.
func (q *Queue) Pop(f *frame.Frame) bool {
	r := q.readIndex.Load()
	w := q.writeIndex.Load()
	if r == w {
		return false
	}
	slot := &q.slots[r%q.capacity]
	data := f.Data
	*f = *slot
	f.Data = append(data[:0], slot.Data...)
	q.readIndex.Store(r + 1)
	return true
}

// Len reports the number of queued frames. Approximate under concurrency.
func (q *Queue) Len() int {
	return int(q.writeIndex.Load() - q.readIndex.Load())
}

// Pushed returns the total number of frames accepted.
func (q *Queue) Pushed() uint64 { return q.pushed.Load() }

// Dropped returns the total number of frames rejected because the ring was
// full.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }
