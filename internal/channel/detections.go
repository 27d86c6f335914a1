package channel

import (
	"bytes"
	"encoding/binary"
	"math"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/smazurov/camnode/internal/shm"
)

// MaxDetections caps the number of objects per inference result.
const MaxDetections = 10

// BBox is a detection bounding box in frame pixel coordinates.
type BBox struct {
	X, Y, W, H int32
}

// Detection is one detected object.
type Detection struct {
	Label      string // truncated to 31 bytes in the shared layout
	Confidence float32
	Box        BBox
}

// DetectionResult is the latest inference output for one frame. Only the most
// recent result is kept; consumers that need history must record it themselves.
type DetectionResult struct {
	FrameNumber uint64
	Timestamp   time.Time
	Detections  []Detection
}

// Detection board layout.
const (
	detOffVersion = 0
	detOffEvent   = 4
	detOffFrame   = 8
	detOffSec     = 16
	detOffNsec    = 24
	detOffCount   = 32
	detOffRecords = 36
	detLabelSize  = 32
	detRecordSize = detLabelSize + 4 + 16 // label + confidence + bbox
	detSize       = detOffRecords + MaxDetections*detRecordSize
)

// DetectionBoard is the single-slot, versioned inference result channel.
// The detector process owns and writes it; the daemon and monitors read.
type DetectionBoard struct {
	seg    *shm.Segment
	update *shm.Event
}

// CreateDetectionBoard creates or attaches to the detections channel.
func CreateDetectionBoard() (*DetectionBoard, error) {
	seg, err := shm.Create(Detections, detSize)
	if err != nil {
		return nil, err
	}
	return newDetectionBoard(seg), nil
}

// OpenDetectionBoard attaches to an existing detections channel.
func OpenDetectionBoard() (*DetectionBoard, error) {
	seg, err := shm.Open(Detections, detSize)
	if err != nil {
		return nil, err
	}
	return newDetectionBoard(seg), nil
}

func newDetectionBoard(seg *shm.Segment) *DetectionBoard {
	return &DetectionBoard{
		seg:    seg,
		update: shm.EventAt(seg.Bytes()[detOffEvent:]),
	}
}

func (d *DetectionBoard) versionPtr() *uint32 {
	return (*uint32)(unsafe.Pointer(&d.seg.Bytes()[detOffVersion]))
}

// Publish overwrites the slot with a new result, bumps the version and wakes
// readers. Results beyond MaxDetections are truncated.
func (d *DetectionBoard) Publish(res DetectionResult) {
	buf := d.seg.Bytes()
	le := binary.LittleEndian
	le.PutUint64(buf[detOffFrame:], res.FrameNumber)
	le.PutUint64(buf[detOffSec:], uint64(res.Timestamp.Unix()))
	le.PutUint64(buf[detOffNsec:], uint64(res.Timestamp.Nanosecond()))

	n := len(res.Detections)
	if n > MaxDetections {
		n = MaxDetections
	}
	le.PutUint32(buf[detOffCount:], uint32(n))
	for i := 0; i < n; i++ {
		rec := buf[detOffRecords+i*detRecordSize:]
		det := res.Detections[i]
		label := []byte(det.Label)
		if len(label) >= detLabelSize {
			label = label[:detLabelSize-1]
		}
		copy(rec[:detLabelSize], label)
		for j := len(label); j < detLabelSize; j++ {
			rec[j] = 0
		}
		le.PutUint32(rec[detLabelSize:], math.Float32bits(det.Confidence))
		le.PutUint32(rec[detLabelSize+4:], uint32(det.Box.X))
		le.PutUint32(rec[detLabelSize+8:], uint32(det.Box.Y))
		le.PutUint32(rec[detLabelSize+12:], uint32(det.Box.W))
		le.PutUint32(rec[detLabelSize+16:], uint32(det.Box.H))
	}

	atomic.AddUint32(d.versionPtr(), 1)
	d.update.Signal()
}

// Read copies out the current result and returns the board version. Callers
// compare versions to detect fresh data.
func (d *DetectionBoard) Read() (DetectionResult, uint32) {
	buf := d.seg.Bytes()
	le := binary.LittleEndian
	version := atomic.LoadUint32(d.versionPtr())

	res := DetectionResult{
		FrameNumber: le.Uint64(buf[detOffFrame:]),
		Timestamp:   time.Unix(int64(le.Uint64(buf[detOffSec:])), int64(le.Uint64(buf[detOffNsec:]))),
	}
	n := int(le.Uint32(buf[detOffCount:]))
	if n > MaxDetections {
		n = MaxDetections
	}
	res.Detections = make([]Detection, n)
	for i := 0; i < n; i++ {
		rec := buf[detOffRecords+i*detRecordSize:]
		label := rec[:detLabelSize]
		if j := bytes.IndexByte(label, 0); j >= 0 {
			label = label[:j]
		}
		res.Detections[i] = Detection{
			Label:      string(label),
			Confidence: math.Float32frombits(le.Uint32(rec[detLabelSize:])),
			Box: BBox{
				X: int32(le.Uint32(rec[detLabelSize+4:])),
				Y: int32(le.Uint32(rec[detLabelSize+8:])),
				W: int32(le.Uint32(rec[detLabelSize+12:])),
				H: int32(le.Uint32(rec[detLabelSize+16:])),
			},
		}
	}
	return res, version
}

// Version returns the current board version.
func (d *DetectionBoard) Version() uint32 {
	return atomic.LoadUint32(d.versionPtr())
}

// WaitUpdate blocks until a result is published after the given event
// sequence or the timeout expires.
func (d *DetectionBoard) WaitUpdate(last uint32, timeout time.Duration) (uint32, error) {
	return d.update.Wait(last, timeout)
}

// EventSeq returns the current update event sequence for WaitUpdate.
func (d *DetectionBoard) EventSeq() uint32 { return d.update.Seq() }

// Owner reports whether this process created the channel.
func (d *DetectionBoard) Owner() bool { return d.seg.Owner() }

// Close detaches from the channel.
func (d *DetectionBoard) Close() error { return d.seg.Close() }

// Destroy detaches and unlinks. Owner-only.
func (d *DetectionBoard) Destroy() error { return d.seg.Destroy() }
