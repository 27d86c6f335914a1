package channel

import (
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/smazurov/camnode/internal/frame"
	"github.com/smazurov/camnode/internal/shm"
)

// Control word layout.
const (
	ctrlOffVersion = 0
	ctrlOffEvent   = 4
	ctrlOffActive  = 8
	ctrlSize       = 16
)

// ControlWord is the explicit camera-control channel: the switch runtime
// writes the active camera index here, and the per-camera capture processes
// poll it to learn whether they are the active source. It replaces the
// signal-based activate/deactivate protocol of earlier revisions, which
// mutated shared state from signal handlers.
type ControlWord struct {
	seg    *shm.Segment
	update *shm.Event
}

// CreateControlWord creates or attaches to the control channel.
func CreateControlWord() (*ControlWord, error) {
	seg, err := shm.Create(Control, ctrlSize)
	if err != nil {
		return nil, err
	}
	return newControlWord(seg), nil
}

// OpenControlWord attaches to an existing control channel.
func OpenControlWord() (*ControlWord, error) {
	seg, err := shm.Open(Control, ctrlSize)
	if err != nil {
		return nil, err
	}
	return newControlWord(seg), nil
}

func newControlWord(seg *shm.Segment) *ControlWord {
	return &ControlWord{
		seg:    seg,
		update: shm.EventAt(seg.Bytes()[ctrlOffEvent:]),
	}
}

func (c *ControlWord) versionPtr() *uint32 {
	return (*uint32)(unsafe.Pointer(&c.seg.Bytes()[ctrlOffVersion]))
}

func (c *ControlWord) activePtr() *uint32 {
	return (*uint32)(unsafe.Pointer(&c.seg.Bytes()[ctrlOffActive]))
}

// SetActive publishes the active camera and wakes pollers.
func (c *ControlWord) SetActive(cam frame.Camera) {
	atomic.StoreUint32(c.activePtr(), uint32(cam))
	atomic.AddUint32(c.versionPtr(), 1)
	c.update.Signal()
}

// Active returns the currently published active camera and the version.
func (c *ControlWord) Active() (frame.Camera, uint32) {
	version := atomic.LoadUint32(c.versionPtr())
	return frame.Camera(atomic.LoadUint32(c.activePtr())), version
}

// WaitChange blocks until the control word changes after the given event
// sequence or the timeout expires.
func (c *ControlWord) WaitChange(last uint32, timeout time.Duration) (uint32, error) {
	return c.update.Wait(last, timeout)
}

// EventSeq returns the current update event sequence for WaitChange.
func (c *ControlWord) EventSeq() uint32 { return c.update.Seq() }

// Owner reports whether this process created the channel.
func (c *ControlWord) Owner() bool { return c.seg.Owner() }

// Close detaches from the channel.
func (c *ControlWord) Close() error { return c.seg.Close() }

// Destroy detaches and unlinks. Owner-only.
func (c *ControlWord) Destroy() error { return c.seg.Destroy() }
