// Package capture defines the contracts to the sensor side of the system and
// the pipeline that fans captured frames out to the shared-memory channels.
// Talking to real sensor hardware, the ISP, and the H.264 encoder happens
// behind the interfaces here; the daemon ships with a simulated source for
// development and tests.
package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/smazurov/camnode/internal/brightness"
	"github.com/smazurov/camnode/internal/frame"
	"github.com/smazurov/camnode/internal/zerocopy"
)

// Source supplies decoded NV12 frames and brightness measurements.
type Source interface {
	// CaptureFrame blocks until the next frame from cam is available and
	// fills f with it.
	CaptureFrame(cam frame.Camera, f *frame.Frame) error
	// ProbeFrame takes a single on-demand frame from cam without waiting for
	// the capture cadence.
	ProbeFrame(cam frame.Camera, f *frame.Frame) error
	// BrightnessSample returns the latest hardware brightness measurement.
	BrightnessSample(cam frame.Camera) (brightness.Sample, error)
}

// HardwareSwitcher reconfigures the sensor pipeline to produce from target.
type HardwareSwitcher interface {
	SwitchCamera(target frame.Camera) error
}

// Encoder compresses an NV12 frame into an H.264 frame.
type Encoder interface {
	Encode(in *frame.Frame, out *frame.Frame) error
}

// HandleExporter exports a captured frame's hardware buffer as share handles
// for the zero-copy path and releases it once the consumer is done.
type HandleExporter interface {
	Export(f *frame.Frame) (*zerocopy.Handles, error)
	Release(h *zerocopy.Handles)
}

// Simulated is an in-process Source that synthesizes flat NV12 frames with a
// configurable per-camera luma level. Used in tests and on machines without
// the sensor pipeline.
type Simulated struct {
	mu       sync.Mutex
	luma     [2]uint8
	lux      [2]uint32
	width    int32
	height   int32
	interval time.Duration
	frameNum uint64

	profileZone frame.Zone
	profile     brightness.Profile
	profileSet  bool
}

// NewSimulated returns a source producing width x height frames at the given
// interval. Both cameras start at a normal daylight level.
func NewSimulated(width, height int32, interval time.Duration) *Simulated {
	return &Simulated{
		luma:     [2]uint8{120, 120},
		lux:      [2]uint32{400, 400},
		width:    width,
		height:   height,
		interval: interval,
	}
}

// SetScene adjusts the synthesized brightness for one camera.
func (s *Simulated) SetScene(cam frame.Camera, luma uint8, lux uint32) {
	s.mu.Lock()
	s.luma[cam] = luma
	s.lux[cam] = lux
	s.mu.Unlock()
}

func (s *Simulated) fill(cam frame.Camera, f *frame.Frame) {
	s.mu.Lock()
	s.frameNum++
	num := s.frameNum
	luma := s.luma[cam]
	lux := s.lux[cam]
	s.mu.Unlock()

	ySize := int(s.width) * int(s.height)
	size := ySize * 3 / 2

	f.FrameNumber = num
	f.Timestamp = time.Now()
	f.CameraID = cam
	f.Width = s.width
	f.Height = s.height
	f.Format = frame.FormatNV12
	f.BrightnessAvg = float32(luma)
	f.BrightnessLux = lux
	f.BrightnessZone = brightness.Classify(float32(luma), lux)
	if len(f.Data) < size {
		f.Data = make([]byte, size)
	} else {
		f.Data = f.Data[:size]
	}
	for i := 0; i < ySize; i++ {
		f.Data[i] = luma
	}
	// Neutral chroma.
	for i := ySize; i < size; i++ {
		f.Data[i] = 128
	}
}

// CaptureFrame paces to the configured interval, then fills f.
func (s *Simulated) CaptureFrame(cam frame.Camera, f *frame.Frame) error {
	time.Sleep(s.interval)
	s.fill(cam, f)
	return nil
}

// ProbeFrame fills f immediately.
func (s *Simulated) ProbeFrame(cam frame.Camera, f *frame.Frame) error {
	s.fill(cam, f)
	return nil
}

// BrightnessSample reports the synthesized scene level.
func (s *Simulated) BrightnessSample(cam frame.Camera) (brightness.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	avg := float32(s.luma[cam])
	lux := s.lux[cam]
	return brightness.Sample{
		FrameNumber: s.frameNum,
		Timestamp:   time.Now(),
		Avg:         avg,
		Lux:         lux,
		Zone:        brightness.Classify(avg, lux),
	}, nil
}

// SwitchCamera is a no-op for the simulated pipeline.
func (s *Simulated) SwitchCamera(frame.Camera) error { return nil }

// ApplyProfile records the low-light denoise tuning the corrector selected.
// A real source pushes this into the ISP.
func (s *Simulated) ApplyProfile(zone frame.Zone, p brightness.Profile) error {
	s.mu.Lock()
	s.profileZone = zone
	s.profile = p
	s.profileSet = true
	s.mu.Unlock()
	return nil
}

// AppliedProfile returns the last profile pushed by the corrector.
func (s *Simulated) AppliedProfile() (frame.Zone, brightness.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profileZone, s.profile, s.profileSet
}

// PassthroughEncoder marks frames as H.264 without compressing them. Stands
// in for the hardware encoder collaborator.
type PassthroughEncoder struct{}

// Encode copies in to out, relabeled as H264.
func (PassthroughEncoder) Encode(in *frame.Frame, out *frame.Frame) error {
	if len(in.Data) == 0 {
		return fmt.Errorf("capture: empty frame %d", in.FrameNumber)
	}
	*out = *in
	out.Data = append(out.Data[:0], in.Data...)
	out.Format = frame.FormatH264
	return nil
}
