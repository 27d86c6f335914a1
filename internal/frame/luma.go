package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
)

// ErrDecode is returned when luma extraction fails on a malformed payload.
// Callers skip the sample; a bad frame must never stall the capture loop.
var ErrDecode = errors.New("frame: luma extraction failed")

// ITU-R BT.601 luma weights, matching what the ISP reports for Y.
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// MeanLuma computes the average luminance (0-255) of the frame payload.
// NV12 averages the Y plane directly, RGB applies BT.601 weights, JPEG is
// decoded first. H264 payloads carry no decodable pixels here.
func MeanLuma(f *Frame) (float64, error) {
	if f == nil || len(f.Data) == 0 {
		return 0, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	switch f.Format {
	case FormatNV12:
		return meanLumaNV12(f)
	case FormatRGB:
		return meanLumaRGB(f)
	case FormatJPEG:
		return meanLumaJPEG(f.Data)
	default:
		return 0, fmt.Errorf("%w: unsupported format %s", ErrDecode, f.Format)
	}
}

func meanLumaNV12(f *Frame) (float64, error) {
	w, h := int(f.Width), int(f.Height)
	if w <= 0 || h <= 0 {
		return 0, fmt.Errorf("%w: invalid dimensions %dx%d", ErrDecode, w, h)
	}
	ySize := w * h
	if len(f.Data) < ySize*3/2 {
		return 0, fmt.Errorf("%w: nv12 payload %d < %d", ErrDecode, len(f.Data), ySize*3/2)
	}
	var sum uint64
	for _, y := range f.Data[:ySize] {
		sum += uint64(y)
	}
	return float64(sum) / float64(ySize), nil
}

func meanLumaRGB(f *Frame) (float64, error) {
	w, h := int(f.Width), int(f.Height)
	pixels := w * h
	if pixels <= 0 || len(f.Data) < pixels*3 {
		return 0, fmt.Errorf("%w: rgb payload %d for %dx%d", ErrDecode, len(f.Data), w, h)
	}
	var sum float64
	for i := 0; i < pixels; i++ {
		r := f.Data[i*3]
		g := f.Data[i*3+1]
		b := f.Data[i*3+2]
		sum += lumaR*float64(r) + lumaG*float64(g) + lumaB*float64(b)
	}
	return sum / float64(pixels), nil
}

func meanLumaJPEG(data []byte) (float64, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	bounds := img.Bounds()
	pixels := bounds.Dx() * bounds.Dy()
	if pixels == 0 {
		return 0, fmt.Errorf("%w: zero-pixel image", ErrDecode)
	}

	// Grayscale JPEGs already carry luminance; everything else goes through
	// the weighted RGB path.
	if gray, ok := img.(*image.Gray); ok {
		var sum uint64
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			row := gray.Pix[(y-bounds.Min.Y)*gray.Stride:]
			for x := 0; x < bounds.Dx(); x++ {
				sum += uint64(row[x])
			}
		}
		return float64(sum) / float64(pixels), nil
	}

	var sum float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			sum += lumaR*float64(r>>8) + lumaG*float64(g>>8) + lumaB*float64(b>>8)
		}
	}
	return sum / float64(pixels), nil
}
