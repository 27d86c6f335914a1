package brightness

import (
	"testing"

	"github.com/smazurov/camnode/internal/frame"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		avg  float32
		lux  uint32
		want frame.Zone
	}{
		{"well below dark threshold", 10, 500, frame.ZoneDark},
		{"just below dark threshold", 49.9, 500, frame.ZoneDark},
		{"bright scene but low lux", 200, 50, frame.ZoneDark},
		{"dim band", 60, 500, frame.ZoneDim},
		{"dim lower edge", 50, 500, frame.ZoneDim},
		{"normal band", 120, 500, frame.ZoneNormal},
		{"normal upper edge", 179.9, 500, frame.ZoneNormal},
		{"bright", 180, 500, frame.ZoneBright},
		{"fully saturated", 255, 10000, frame.ZoneBright},
		{"lux gate exactly at threshold", 120, ThresholdLuxDark, frame.ZoneNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.avg, tt.lux); got != tt.want {
				t.Errorf("Classify(%v, %d) = %v, want %v", tt.avg, tt.lux, got, tt.want)
			}
		})
	}
}

func TestProfileForZone(t *testing.T) {
	dark := ProfileForZone(frame.ZoneDark)
	dim := ProfileForZone(frame.ZoneDim)
	normal := ProfileForZone(frame.ZoneNormal)

	if dark.Denoise3D <= dim.Denoise3D {
		t.Errorf("dark denoise %d should exceed dim %d", dark.Denoise3D, dim.Denoise3D)
	}
	if dim.Denoise3D <= normal.Denoise3D {
		t.Errorf("dim denoise %d should exceed normal %d", dim.Denoise3D, normal.Denoise3D)
	}
	if ProfileForZone(frame.ZoneBright) != normal {
		t.Error("bright zone should restore the normal profile")
	}
}
