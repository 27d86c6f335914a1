// Package metrics provides Prometheus metrics for the capture daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camnode",
		Subsystem: "channel",
		Name:      "frames_written_total",
		Help:      "Frames written to a shared-memory channel",
	}, []string{"channel"})

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camnode",
		Subsystem: "channel",
		Name:      "frames_dropped_total",
		Help:      "Frames dropped before reaching a channel",
	}, []string{"channel", "cause"})

	handoffTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camnode",
		Subsystem: "zerocopy",
		Name:      "handoff_timeouts_total",
		Help:      "Zero-copy handoffs abandoned because the consumer was too slow",
	}, []string{"channel"})

	switchTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camnode",
		Subsystem: "switcher",
		Name:      "transitions_total",
		Help:      "Camera switch transitions",
	}, []string{"to", "reason"})

	activeCamera = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "camnode",
		Subsystem: "switcher",
		Name:      "active_camera",
		Help:      "Currently active camera index (0=day, 1=night)",
	})

	brightnessAvg = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camnode",
		Subsystem: "brightness",
		Name:      "avg",
		Help:      "Latest mean-luma brightness sample (0-255)",
	}, []string{"camera"})

	brightnessLux = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camnode",
		Subsystem: "brightness",
		Name:      "lux",
		Help:      "Latest ambient illuminance estimate",
	}, []string{"camera"})

	lowlightActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "camnode",
		Subsystem: "brightness",
		Name:      "lowlight_correction_active",
		Help:      "Whether the low-light correction profile is applied (0/1)",
	})

	encoderQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "camnode",
		Subsystem: "encoder",
		Name:      "queue_depth",
		Help:      "Frames waiting in the capture-to-encoder queue",
	})

	encoderQueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "camnode",
		Subsystem: "encoder",
		Name:      "queue_dropped_total",
		Help:      "Frames dropped because the encoder queue was full",
	})
)

// IncFramesWritten counts one frame written to channel.
func IncFramesWritten(channel string) {
	framesWritten.WithLabelValues(channel).Inc()
}

// IncFramesDropped counts one dropped frame with its cause.
func IncFramesDropped(channel, cause string) {
	framesDropped.WithLabelValues(channel, cause).Inc()
}

// IncHandoffTimeout counts one abandoned zero-copy handoff.
func IncHandoffTimeout(channel string) {
	handoffTimeouts.WithLabelValues(channel).Inc()
}

// IncSwitchTransition counts one camera switch.
func IncSwitchTransition(to, reason string) {
	switchTransitions.WithLabelValues(to, reason).Inc()
}

// SetActiveCamera records the active camera index.
func SetActiveCamera(index int) {
	activeCamera.Set(float64(index))
}

// SetBrightness records the latest brightness sample for a camera.
func SetBrightness(camera string, avg float64, lux uint32) {
	brightnessAvg.WithLabelValues(camera).Set(avg)
	brightnessLux.WithLabelValues(camera).Set(float64(lux))
}

// SetLowlightActive records whether correction is applied.
func SetLowlightActive(active bool) {
	if active {
		lowlightActive.Set(1)
	} else {
		lowlightActive.Set(0)
	}
}

// SetEncoderQueueDepth records the current encoder backlog.
func SetEncoderQueueDepth(depth int) {
	encoderQueueDepth.Set(float64(depth))
}

// IncEncoderQueueDropped counts one frame rejected by the full encoder queue.
func IncEncoderQueueDropped() {
	encoderQueueDropped.Inc()
}
