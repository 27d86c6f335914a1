// Package brightness classifies scene illumination and drives the low-light
// correction state machine for the day camera's sensor pipeline.
package brightness

import (
	"time"

	"github.com/smazurov/camnode/internal/frame"
)

// Zone classification thresholds, on the 0-255 mean-luma scale. Lux gates the
// dark zone so a scene that is only bright because of high sensor gain still
// classifies as dark.
const (
	ThresholdDark    = 50
	ThresholdDim     = 70
	ThresholdBright  = 180
	ThresholdLuxDark = 100
)

// Sample is one brightness measurement taken from a captured frame.
type Sample struct {
	FrameNumber uint64
	Timestamp   time.Time
	Avg         float32
	Lux         uint32
	Zone        frame.Zone
	Corrected   bool
}

// Classify maps a mean-luma average and ambient lux reading onto a zone.
func Classify(avg float32, lux uint32) frame.Zone {
	switch {
	case avg < ThresholdDark || lux < ThresholdLuxDark:
		return frame.ZoneDark
	case avg < ThresholdDim:
		return frame.ZoneDim
	case avg < ThresholdBright:
		return frame.ZoneNormal
	default:
		return frame.ZoneBright
	}
}
