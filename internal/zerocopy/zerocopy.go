// Package zerocopy implements the single-slot buffer handoff channel.
//
// Instead of copying frame bytes through a ring, the producer exports the
// hardware buffer's share handles into a one-deep shared-memory mailbox and
// keeps the buffer alive until the consumer acknowledges it. The consumer
// imports the buffer by handle, works on it in place, and posts the consumed
// semaphore to let the producer reuse the buffer. At most one frame is in
// flight at any time.
package zerocopy

import (
	"encoding/binary"
	"math"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/smazurov/camnode/internal/shm"
)

// MaxPlanes is the number of planes a handoff frame can carry. NV12 uses two.
const MaxPlanes = 2

// RawBufSize is the size of the opaque exported-buffer blob carried alongside
// the plane handles. Consumers that import by handle can ignore it; consumers
// that re-export the buffer need the full descriptor.
const RawBufSize = 160

// Slot layout.
const (
	offVersion     = 0
	offNewFrame    = 4
	offConsumed    = 8
	offFrameNumber = 16
	offSec         = 24
	offNsec        = 32
	offWidth       = 40
	offHeight      = 44
	offPlaneCount  = 48
	offShareID     = 52 // 2 x int32
	offPlaneSize   = 64 // 2 x uint64
	offBrightness  = 80
	offRawBuf      = 88
	slotSize       = 256
)

// Handles describes one exported frame: plane share handles plus the metadata
// a consumer needs to import and interpret the buffer.
type Handles struct {
	FrameNumber   uint64
	Timestamp     time.Time
	Width         int32
	Height        int32
	PlaneCount    int32
	ShareID       [MaxPlanes]int32
	PlaneSize     [MaxPlanes]uint64
	BrightnessAvg float32
	RawBuf        [RawBufSize]byte
}

// Channel is the shared-memory mailbox itself. One producer, one consumer.
type Channel struct {
	seg      *shm.Segment
	newFrame *shm.Sem
	consumed *shm.Sem
}

// Create creates or attaches the handoff channel with the given name.
func Create(name string) (*Channel, error) {
	seg, err := shm.Create(name, slotSize)
	if err != nil {
		return nil, err
	}
	return newChannel(seg), nil
}

// Open attaches to an existing handoff channel.
func Open(name string) (*Channel, error) {
	seg, err := shm.Open(name, slotSize)
	if err != nil {
		return nil, err
	}
	return newChannel(seg), nil
}

func newChannel(seg *shm.Segment) *Channel {
	return &Channel{
		seg:      seg,
		newFrame: shm.SemAt(seg.Bytes()[offNewFrame:]),
		consumed: shm.SemAt(seg.Bytes()[offConsumed:]),
	}
}

func (c *Channel) versionPtr() *uint32 {
	return (*uint32)(unsafe.Pointer(&c.seg.Bytes()[offVersion]))
}

// Version returns the publish counter. Zero means nothing was ever published.
func (c *Channel) Version() uint32 {
	return atomic.LoadUint32(c.versionPtr())
}

func (c *Channel) encode(h *Handles) {
	buf := c.seg.Bytes()
	le := binary.LittleEndian
	le.PutUint64(buf[offFrameNumber:], h.FrameNumber)
	le.PutUint64(buf[offSec:], uint64(h.Timestamp.Unix()))
	le.PutUint64(buf[offNsec:], uint64(h.Timestamp.Nanosecond()))
	le.PutUint32(buf[offWidth:], uint32(h.Width))
	le.PutUint32(buf[offHeight:], uint32(h.Height))
	le.PutUint32(buf[offPlaneCount:], uint32(h.PlaneCount))
	for i := 0; i < MaxPlanes; i++ {
		le.PutUint32(buf[offShareID+4*i:], uint32(h.ShareID[i]))
		le.PutUint64(buf[offPlaneSize+8*i:], h.PlaneSize[i])
	}
	le.PutUint32(buf[offBrightness:], math.Float32bits(h.BrightnessAvg))
	copy(buf[offRawBuf:offRawBuf+RawBufSize], h.RawBuf[:])
}

func (c *Channel) decode(h *Handles) {
	buf := c.seg.Bytes()
	le := binary.LittleEndian
	h.FrameNumber = le.Uint64(buf[offFrameNumber:])
	sec := int64(le.Uint64(buf[offSec:]))
	nsec := int64(le.Uint64(buf[offNsec:]))
	h.Timestamp = time.Unix(sec, nsec)
	h.Width = int32(le.Uint32(buf[offWidth:]))
	h.Height = int32(le.Uint32(buf[offHeight:]))
	h.PlaneCount = int32(le.Uint32(buf[offPlaneCount:]))
	for i := 0; i < MaxPlanes; i++ {
		h.ShareID[i] = int32(le.Uint32(buf[offShareID+4*i:]))
		h.PlaneSize[i] = le.Uint64(buf[offPlaneSize+8*i:])
	}
	h.BrightnessAvg = math.Float32frombits(le.Uint32(buf[offBrightness:]))
	copy(h.RawBuf[:], buf[offRawBuf:offRawBuf+RawBufSize])
}

// Publish writes the handles into the slot and wakes the consumer. The slot
// must be free; use Producer for the consumed-gated write path.
func (c *Channel) Publish(h *Handles) {
	c.encode(h)
	atomic.AddUint32(c.versionPtr(), 1)
	c.newFrame.Post()
}

// AwaitConsumed blocks until the consumer acknowledges the frame currently in
// flight. Returns shm.ErrTimeout if the acknowledgment does not arrive in
// time, in which case the slot still belongs to the in-flight frame.
func (c *Channel) AwaitConsumed(timeout time.Duration) error {
	return c.consumed.Wait(timeout)
}

// Next blocks until the producer publishes a frame, then decodes its handles.
// The consumer owns the referenced buffer until it calls MarkConsumed.
func (c *Channel) Next(h *Handles, timeout time.Duration) error {
	if err := c.newFrame.Wait(timeout); err != nil {
		return err
	}
	c.decode(h)
	return nil
}

// MarkConsumed releases the in-flight frame back to the producer. Must be
// called exactly once per frame received via Next, after the consumer is done
// touching the imported buffer.
func (c *Channel) MarkConsumed() {
	c.consumed.Post()
}

// Owner reports whether this process created the channel.
func (c *Channel) Owner() bool { return c.seg.Owner() }

// Close detaches from the channel.
func (c *Channel) Close() error { return c.seg.Close() }

// Destroy detaches and unlinks. Owner-only.
func (c *Channel) Destroy() error { return c.seg.Destroy() }

// ReleaseFunc returns the buffer behind a set of handles to its pool.
type ReleaseFunc func(*Handles)

// Producer sequences handoffs so that a buffer is never released while the
// consumer may still be reading it. The buffer behind frame N-1 is released
// only after frame N has been handed off, which implies N-1 was consumed.
type Producer struct {
	ch      *Channel
	release ReleaseFunc
	pending *Handles
}

// NewProducer wraps a channel with deferred-release bookkeeping. release is
// called exactly once for every frame accepted by Send, and once for the
// final pending frame on Shutdown.
func NewProducer(ch *Channel, release ReleaseFunc) *Producer {
	return &Producer{ch: ch, release: release}
}

// Send hands off a frame. If a previous frame is still unconsumed it waits up
// to timeout for the acknowledgment; on timeout the new frame is dropped and
// released immediately while the pending frame stays in flight. On success
// the previous frame's buffer is released and the new frame becomes pending.
func (p *Producer) Send(h *Handles, timeout time.Duration) error {
	if p.pending != nil {
		if err := p.ch.AwaitConsumed(timeout); err != nil {
			p.release(h)
			return err
		}
		p.release(p.pending)
		p.pending = nil
	}
	p.ch.Publish(h)
	p.pending = h
	return nil
}

// Pending reports whether a frame is still in flight.
func (p *Producer) Pending() bool { return p.pending != nil }

// Shutdown waits briefly for the last in-flight frame to be consumed, then
// releases it regardless. After Shutdown the producer must not be used.
func (p *Producer) Shutdown(timeout time.Duration) {
	if p.pending == nil {
		return
	}
	_ = p.ch.AwaitConsumed(timeout)
	p.release(p.pending)
	p.pending = nil
}
