package shm

import (
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/smazurov/camnode/internal/frame"
)

// RingCapacity is the slot count of every frame ring: one second of history
// at 30 fps.
const RingCapacity = 30

// Ring header layout. writeIndex is mutated by exactly one writer and only
// ever grows; slot = writeIndex mod RingCapacity.
const (
	ringOffWriteIndex    = 0
	ringOffFrameInterval = 4
	ringOffNotify        = 8
	ringHeaderSize       = 64
)

// RingSize is the byte size of a frame ring segment.
const RingSize = ringHeaderSize + RingCapacity*frame.EncodedSize

// Ring is a fixed-capacity, single-writer/multi-reader ring of frames in a
// shared segment. Writes are lock-free; ReadLatest is a best-effort snapshot.
//
// Known limitation, inherited deliberately: a reader copying a slot while the
// writer laps the entire ring (RingCapacity writes within one read) can
// observe a torn frame. At 30 fps that window is one second per read, and the
// lock-free write path is worth the theoretical tear.
type Ring struct {
	seg    *Segment
	notify *Event
}

// CreateRing creates (or attaches to, if it already exists) the named ring.
func CreateRing(name string) (*Ring, error) {
	seg, err := Create(name, RingSize)
	if err != nil {
		return nil, err
	}
	return newRing(seg), nil
}

// OpenRing attaches to an existing ring.
func OpenRing(name string) (*Ring, error) {
	seg, err := Open(name, RingSize)
	if err != nil {
		return nil, err
	}
	return newRing(seg), nil
}

// OpenRingWait attaches to a ring, retrying with a fixed backoff until the
// owning process creates it or the timeout expires.
func OpenRingWait(name string, timeout time.Duration) (*Ring, error) {
	deadline := time.Now().Add(timeout)
	for {
		r, err := OpenRing(name)
		if err == nil {
			return r, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: waited %s for %s", ErrUnavailable, timeout, name)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func newRing(seg *Segment) *Ring {
	return &Ring{
		seg:    seg,
		notify: EventAt(seg.Bytes()[ringOffNotify:]),
	}
}

// Name returns the segment name.
func (r *Ring) Name() string { return r.seg.Name() }

// Owner reports whether this process created the segment.
func (r *Ring) Owner() bool { return r.seg.Owner() }

func (r *Ring) writeIndexPtr() *uint32 {
	return (*uint32)(unsafe.Pointer(&r.seg.Bytes()[ringOffWriteIndex]))
}

func (r *Ring) slot(i uint32) []byte {
	off := ringHeaderSize + int(i)*frame.EncodedSize
	return r.seg.Bytes()[off : off+frame.EncodedSize]
}

// Write copies the frame into the next slot, publishes it by advancing the
// write index, and signals waiting readers. Exactly one goroutine in exactly
// one process may call Write on a given ring; that single-writer assumption
// is what makes the path lock-free.
func (r *Ring) Write(f *frame.Frame) (uint32, error) {
	if r.seg.Bytes() == nil {
		return 0, ErrClosed
	}
	idx := atomic.LoadUint32(r.writeIndexPtr())
	slot := idx % RingCapacity
	if err := f.EncodeTo(r.slot(slot)); err != nil {
		return 0, err
	}
	// Slot bytes are fully written before the index moves: the atomic store
	// is the publish point readers synchronize on.
	atomic.StoreUint32(r.writeIndexPtr(), idx+1)
	r.notify.Signal()
	return slot, nil
}

// ReadLatest copies out the most recently published frame. Returns
// ErrUnavailable when nothing has been written yet.
func (r *Ring) ReadLatest(f *frame.Frame) error {
	if r.seg.Bytes() == nil {
		return ErrClosed
	}
	idx := atomic.LoadUint32(r.writeIndexPtr())
	if idx == 0 {
		return ErrUnavailable
	}
	return f.DecodeFrom(r.slot((idx - 1) % RingCapacity))
}

// WriteIndex returns the monotonic write counter, for polling readers that
// do not use WaitFrame.
func (r *Ring) WriteIndex() uint32 {
	return atomic.LoadUint32(r.writeIndexPtr())
}

// WaitFrame blocks until a frame is published after the given notification
// sequence, or the timeout expires. The returned sequence is passed to the
// next call. Use r.NotifySeq() for the initial value.
func (r *Ring) WaitFrame(last uint32, timeout time.Duration) (uint32, error) {
	return r.notify.Wait(last, timeout)
}

// NotifySeq returns the current notification sequence.
func (r *Ring) NotifySeq() uint32 {
	return r.notify.Seq()
}

// FrameInterval returns the dynamic frame interval hint, zero meaning full
// rate. External processes may lower a channel's rate by writing this field.
func (r *Ring) FrameInterval() time.Duration {
	ms := atomic.LoadUint32((*uint32)(unsafe.Pointer(&r.seg.Bytes()[ringOffFrameInterval])))
	return time.Duration(ms) * time.Millisecond
}

// SetFrameInterval updates the dynamic frame interval hint.
func (r *Ring) SetFrameInterval(d time.Duration) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&r.seg.Bytes()[ringOffFrameInterval])),
		uint32(d/time.Millisecond))
}

// Close detaches without removing the segment.
func (r *Ring) Close() error { return r.seg.Close() }

// Destroy detaches and unlinks. Owner-only.
func (r *Ring) Destroy() error { return r.seg.Destroy() }
