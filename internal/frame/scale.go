package frame

import "fmt"

// ErrNotNV12 is returned when a scaling operation receives a non-NV12 frame.
var ErrNotNV12 = fmt.Errorf("frame: scaling requires NV12 payload")

// ScaleNV12 nearest-neighbor downscales src into dst at width x height. Both
// dimensions must be even (NV12 subsamples chroma 2x2). Metadata and
// brightness annotations carry over; only Width, Height and Data change.
//
// Nearest neighbor is deliberate: the outputs feed an inference pipeline and
// a monitoring view, neither of which cares about resampling quality, and the
// capture loop cannot afford a filtered pass per frame.
func ScaleNV12(src *Frame, dst *Frame, width, height int32) error {
	if src.Format != FormatNV12 {
		return ErrNotNV12
	}
	if width <= 0 || height <= 0 || width%2 != 0 || height%2 != 0 {
		return fmt.Errorf("frame: invalid target %dx%d, dimensions must be positive and even", width, height)
	}
	sw, sh := int(src.Width), int(src.Height)
	if sw <= 0 || sh <= 0 {
		return fmt.Errorf("frame: invalid source %dx%d", sw, sh)
	}
	need := sw * sh * 3 / 2
	if len(src.Data) < need {
		return fmt.Errorf("frame: NV12 payload %d bytes, need %d for %dx%d", len(src.Data), need, sw, sh)
	}

	dw, dh := int(width), int(height)
	outSize := dw * dh * 3 / 2
	if cap(dst.Data) < outSize {
		dst.Data = make([]byte, outSize)
	} else {
		dst.Data = dst.Data[:outSize]
	}

	// Luma plane.
	for y := 0; y < dh; y++ {
		srcRow := src.Data[(y*sh/dh)*sw:]
		dstRow := dst.Data[y*dw:]
		for x := 0; x < dw; x++ {
			dstRow[x] = srcRow[x*sw/dw]
		}
	}

	// Interleaved UV plane at half resolution, pairs move together.
	srcUV := src.Data[sw*sh:]
	dstUV := dst.Data[dw*dh:]
	cw, ch := dw/2, dh/2
	scw, sch := sw/2, sh/2
	for y := 0; y < ch; y++ {
		srcRow := srcUV[(y*sch/ch)*scw*2:]
		dstRow := dstUV[y*cw*2:]
		for x := 0; x < cw; x++ {
			sx := x * scw / cw * 2
			dstRow[x*2] = srcRow[sx]
			dstRow[x*2+1] = srcRow[sx+1]
		}
	}

	dst.FrameNumber = src.FrameNumber
	dst.Timestamp = src.Timestamp
	dst.CameraID = src.CameraID
	dst.Width = width
	dst.Height = height
	dst.Format = FormatNV12
	dst.BrightnessAvg = src.BrightnessAvg
	dst.BrightnessLux = src.BrightnessLux
	dst.BrightnessZone = src.BrightnessZone
	dst.CorrectionApplied = src.CorrectionApplied
	return nil
}
