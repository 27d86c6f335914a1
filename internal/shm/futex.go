package shm

import (
	"errors"
	"math"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Futex operation codes from the Linux ABI (uapi/linux/futex.h);
// golang.org/x/sys/unix exposes SYS_FUTEX but not these op constants.
const (
	futexOpWait = 0 // FUTEX_WAIT
	futexOpWake = 1 // FUTEX_WAKE
)

// Cross-process wakeups use futex words embedded in the mapped segments:
// the C original used sem_t, which is not reachable from Go without cgo,
// and a raw futex gives the same wake/wait semantics with bounded timeouts.

func futexWait(addr *uint32, expect uint32, timeout time.Duration) error {
	var tsPtr *unix.Timespec
	if timeout > 0 {
		ts := unix.NsecToTimespec(timeout.Nanoseconds())
		tsPtr = &ts
	}
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexOpWait),
		uintptr(expect),
		uintptr(unsafe.Pointer(tsPtr)),
		0, 0)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		// EAGAIN: the word changed before we slept. EINTR: signal; the
		// caller re-checks its condition either way.
		return nil
	case unix.ETIMEDOUT:
		return ErrTimeout
	default:
		return errno
	}
}

func futexWake(addr *uint32, n int) {
	unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexOpWake),
		uintptr(n), 0, 0, 0)
}

// Event is a broadcast notification word: a writer bumps the sequence and
// wakes all sleepers, readers wait for the sequence to move past a value
// they last observed. Multiple readers may share one Event.
type Event struct {
	word *uint32
}

// EventAt overlays an Event on 4 aligned bytes inside a mapped segment.
func EventAt(buf []byte) *Event {
	return &Event{word: (*uint32)(unsafe.Pointer(&buf[0]))}
}

// Seq returns the current sequence number.
func (e *Event) Seq() uint32 {
	return atomic.LoadUint32(e.word)
}

// Signal advances the sequence and wakes every waiter.
func (e *Event) Signal() {
	atomic.AddUint32(e.word, 1)
	futexWake(e.word, math.MaxInt32)
}

// Wait blocks until the sequence differs from last or the timeout expires,
// returning the sequence observed. A zero timeout waits forever; the daemon
// always passes a bound so loops stay responsive to shutdown.
func (e *Event) Wait(last uint32, timeout time.Duration) (uint32, error) {
	deadline := time.Now().Add(timeout)
	for {
		seq := atomic.LoadUint32(e.word)
		if seq != last {
			return seq, nil
		}
		remaining := timeout
		if timeout > 0 {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return seq, ErrTimeout
			}
		}
		if err := futexWait(e.word, seq, remaining); err != nil {
			if errors.Is(err, ErrTimeout) {
				return atomic.LoadUint32(e.word), ErrTimeout
			}
			return seq, err
		}
	}
}

// Sem is a cross-process counting semaphore over a futex word. Used by the
// zero-copy channel for its new-frame and consumed handshakes.
type Sem struct {
	word *uint32
}

// SemAt overlays a Sem on 4 aligned bytes inside a mapped segment.
func SemAt(buf []byte) *Sem {
	return &Sem{word: (*uint32)(unsafe.Pointer(&buf[0]))}
}

// Value returns the current count.
func (s *Sem) Value() uint32 {
	return atomic.LoadUint32(s.word)
}

// Post increments the semaphore and wakes one waiter.
func (s *Sem) Post() {
	atomic.AddUint32(s.word, 1)
	futexWake(s.word, 1)
}

// Wait decrements the semaphore, blocking up to timeout while the count is
// zero. A zero timeout waits forever.
func (s *Sem) Wait(timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		v := atomic.LoadUint32(s.word)
		if v > 0 {
			if atomic.CompareAndSwapUint32(s.word, v, v-1) {
				return nil
			}
			continue
		}
		remaining := timeout
		if timeout > 0 {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return ErrTimeout
			}
		}
		if err := futexWait(s.word, 0, remaining); err != nil {
			return err
		}
	}
}

// TryWait decrements the semaphore without blocking, reporting success.
func (s *Sem) TryWait() bool {
	for {
		v := atomic.LoadUint32(s.word)
		if v == 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(s.word, v, v-1) {
			return true
		}
	}
}
