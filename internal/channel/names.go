// Package channel defines the fixed set of named shared-memory channels the
// daemon publishes, and the versioned single-slot mailboxes (brightness,
// detections, camera control) layered on raw segments.
//
// The set is deliberately closed: a handful of fixed-layout channels on one
// host, not a general pub/sub bus. New channels mean a new daemon release.
package channel

// Frame ring channels (30-slot, see shm.RingCapacity).
const (
	ActiveFrame = "camnode.active-frame" // NV12 frames from the active camera
	Stream      = "camnode.stream"       // H.264 NAL units from the active camera
	ProbeFrame  = "camnode.probe-frame"  // on-demand NV12 brightness probes
	YoloInput   = "camnode.yolo-input"   // 640x360 NV12 for the inference pipeline
	MJPEGFrame  = "camnode.mjpeg-frame"  // 640x480 NV12 for the web monitor
)

// Single-slot channels.
const (
	Detections = "camnode.detections" // latest inference result, versioned
	Brightness = "camnode.brightness" // per-camera brightness summary, versioned
	Control    = "camnode.control"    // active-camera control word, versioned
)

// Zero-copy mailbox channels, one per camera.
const (
	ZeroCopyDay   = "camnode.zerocopy-day"
	ZeroCopyNight = "camnode.zerocopy-night"
)

// Rings lists every ring channel, in the order the daemon creates them.
func Rings() []string {
	return []string{ActiveFrame, Stream, ProbeFrame, YoloInput, MJPEGFrame}
}
