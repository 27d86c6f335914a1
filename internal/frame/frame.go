// Package frame defines the fixed-layout frame record shared between the
// capture daemon and its consumer processes, plus luma extraction used for
// brightness-based camera selection.
//
// The binary layout is written byte-for-byte into shared memory segments, so
// every field sits at an explicit offset. Changing the layout breaks every
// attached consumer; bump the segment names if that ever becomes necessary.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// Format identifies the payload encoding of a frame.
type Format int32

// Payload formats. The numeric values are part of the shared layout.
const (
	FormatJPEG Format = 0
	FormatNV12 Format = 1
	FormatRGB  Format = 2
	FormatH264 Format = 3
)

// String returns the lowercase name of the format.
func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatNV12:
		return "nv12"
	case FormatRGB:
		return "rgb"
	case FormatH264:
		return "h264"
	default:
		return fmt.Sprintf("format(%d)", int32(f))
	}
}

// Camera identifies one of the two physical sensors.
type Camera int32

// Camera indices. Day is the reference camera for switch decisions.
const (
	CameraDay   Camera = 0
	CameraNight Camera = 1
)

// String returns "day" or "night".
func (c Camera) String() string {
	if c == CameraNight {
		return "night"
	}
	return "day"
}

// Other returns the opposite camera.
func (c Camera) Other() Camera {
	if c == CameraDay {
		return CameraNight
	}
	return CameraDay
}

// Zone classifies measured scene brightness into coarse bands.
type Zone uint8

// Brightness zones. The numeric values are part of the shared layout.
const (
	ZoneDark   Zone = 0
	ZoneDim    Zone = 1
	ZoneNormal Zone = 2
	ZoneBright Zone = 3
)

// String returns the lowercase name of the zone.
func (z Zone) String() string {
	switch z {
	case ZoneDark:
		return "dark"
	case ZoneDim:
		return "dim"
	case ZoneNormal:
		return "normal"
	case ZoneBright:
		return "bright"
	default:
		return fmt.Sprintf("zone(%d)", uint8(z))
	}
}

// MaxDataSize is the payload capacity of a frame slot, sized for 1080p NV12.
const MaxDataSize = 1920 * 1080 * 3 / 2

// Field offsets within an encoded frame. Little-endian, 8-byte aligned,
// payload starts at a 64-byte boundary.
const (
	offFrameNumber       = 0
	offTimestampSec      = 8
	offTimestampNsec     = 16
	offCameraID          = 24
	offWidth             = 28
	offHeight            = 32
	offFormat            = 36
	offDataSize          = 40
	offBrightnessAvg     = 48
	offBrightnessLux     = 52
	offBrightnessZone    = 56
	offCorrectionApplied = 57

	// HeaderSize is the encoded size of the metadata preceding the payload.
	HeaderSize = 64

	// EncodedSize is the total size of one frame slot in shared memory.
	EncodedSize = HeaderSize + MaxDataSize
)

// ErrTooLarge is returned when a frame payload exceeds the slot capacity.
var ErrTooLarge = errors.New("frame: payload exceeds slot capacity")

// ErrShortBuffer is returned when an encode/decode buffer is smaller than a slot.
var ErrShortBuffer = errors.New("frame: buffer smaller than encoded frame")

// Frame is one captured image plus its brightness annotations. A frame is
// immutable once handed to a channel; it is destroyed only by being
// overwritten in a ring slot.
type Frame struct {
	FrameNumber uint64
	Timestamp   time.Time
	CameraID    Camera
	Width       int32
	Height      int32
	Format      Format

	BrightnessAvg     float32
	BrightnessLux     uint32
	BrightnessZone    Zone
	CorrectionApplied bool

	Data []byte
}

// EncodeTo writes the frame into dst using the shared slot layout. dst must
// be at least EncodedSize bytes. Only the first HeaderSize+len(Data) bytes
// are touched; stale payload bytes beyond DataSize are never read back.
func (f *Frame) EncodeTo(dst []byte) error {
	if len(f.Data) > MaxDataSize {
		return fmt.Errorf("%w: %d > %d", ErrTooLarge, len(f.Data), MaxDataSize)
	}
	if len(dst) < EncodedSize {
		return ErrShortBuffer
	}

	le := binary.LittleEndian
	le.PutUint64(dst[offFrameNumber:], f.FrameNumber)
	le.PutUint64(dst[offTimestampSec:], uint64(f.Timestamp.Unix()))
	le.PutUint64(dst[offTimestampNsec:], uint64(f.Timestamp.Nanosecond()))
	le.PutUint32(dst[offCameraID:], uint32(f.CameraID))
	le.PutUint32(dst[offWidth:], uint32(f.Width))
	le.PutUint32(dst[offHeight:], uint32(f.Height))
	le.PutUint32(dst[offFormat:], uint32(f.Format))
	le.PutUint64(dst[offDataSize:], uint64(len(f.Data)))
	le.PutUint32(dst[offBrightnessAvg:], math.Float32bits(f.BrightnessAvg))
	le.PutUint32(dst[offBrightnessLux:], f.BrightnessLux)
	dst[offBrightnessZone] = byte(f.BrightnessZone)
	if f.CorrectionApplied {
		dst[offCorrectionApplied] = 1
	} else {
		dst[offCorrectionApplied] = 0
	}
	copy(dst[HeaderSize:], f.Data)
	return nil
}

// DecodeFrom reads a frame from src using the shared slot layout. The payload
// is copied out, so the result stays valid after the slot is overwritten.
func (f *Frame) DecodeFrom(src []byte) error {
	if len(src) < EncodedSize {
		return ErrShortBuffer
	}

	le := binary.LittleEndian
	f.FrameNumber = le.Uint64(src[offFrameNumber:])
	sec := int64(le.Uint64(src[offTimestampSec:]))
	nsec := int64(le.Uint64(src[offTimestampNsec:]))
	f.Timestamp = time.Unix(sec, nsec)
	f.CameraID = Camera(le.Uint32(src[offCameraID:]))
	f.Width = int32(le.Uint32(src[offWidth:]))
	f.Height = int32(le.Uint32(src[offHeight:]))
	f.Format = Format(le.Uint32(src[offFormat:]))
	size := le.Uint64(src[offDataSize:])
	if size > MaxDataSize {
		return fmt.Errorf("%w: stored size %d", ErrTooLarge, size)
	}
	f.BrightnessAvg = math.Float32frombits(le.Uint32(src[offBrightnessAvg:]))
	f.BrightnessLux = le.Uint32(src[offBrightnessLux:])
	f.BrightnessZone = Zone(src[offBrightnessZone])
	f.CorrectionApplied = src[offCorrectionApplied] == 1

	if cap(f.Data) < int(size) {
		f.Data = make([]byte, size)
	} else {
		f.Data = f.Data[:size]
	}
	copy(f.Data, src[HeaderSize:HeaderSize+size])
	return nil
}
