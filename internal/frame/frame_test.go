package frame

import (
	"errors"
	"testing"
	"time"
)

func TestFrameEncodeDecode(t *testing.T) {
	in := Frame{
		FrameNumber:       99,
		Timestamp:         time.Unix(1700000123, 456789),
		CameraID:          CameraNight,
		Width:             1920,
		Height:            1080,
		Format:            FormatNV12,
		BrightnessAvg:     42.5,
		BrightnessLux:     117,
		BrightnessZone:    ZoneDim,
		CorrectionApplied: true,
		Data:              []byte("payload bytes"),
	}

	buf := make([]byte, EncodedSize)
	if err := in.EncodeTo(buf); err != nil {
		t.Fatalf("EncodeTo failed: %v", err)
	}

	var out Frame
	if err := out.DecodeFrom(buf); err != nil {
		t.Fatalf("DecodeFrom failed: %v", err)
	}

	if out.FrameNumber != in.FrameNumber || out.CameraID != in.CameraID ||
		out.Width != in.Width || out.Height != in.Height || out.Format != in.Format {
		t.Errorf("metadata mismatch: %+v", out)
	}
	if !out.Timestamp.Equal(in.Timestamp) {
		t.Errorf("timestamp %v, want %v", out.Timestamp, in.Timestamp)
	}
	if out.BrightnessAvg != 42.5 || out.BrightnessLux != 117 ||
		out.BrightnessZone != ZoneDim || !out.CorrectionApplied {
		t.Errorf("annotations mismatch: %+v", out)
	}
	if string(out.Data) != string(in.Data) {
		t.Errorf("payload %q, want %q", out.Data, in.Data)
	}
}

func TestFrameEncodeErrors(t *testing.T) {
	f := Frame{Data: make([]byte, MaxDataSize+1)}
	if err := f.EncodeTo(make([]byte, EncodedSize)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("oversized payload: got %v, want ErrTooLarge", err)
	}

	f.Data = nil
	if err := f.EncodeTo(make([]byte, 10)); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("short buffer: got %v, want ErrShortBuffer", err)
	}

	var out Frame
	if err := out.DecodeFrom(make([]byte, 10)); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("short decode buffer: got %v, want ErrShortBuffer", err)
	}
}

func TestFrameDecodeRejectsCorruptSize(t *testing.T) {
	buf := make([]byte, EncodedSize)
	var in Frame
	if err := in.EncodeTo(buf); err != nil {
		t.Fatalf("EncodeTo failed: %v", err)
	}
	// Corrupt the stored payload size beyond the slot capacity.
	buf[40] = 0xFF
	buf[41] = 0xFF
	buf[42] = 0xFF
	buf[43] = 0xFF

	var out Frame
	if err := out.DecodeFrom(buf); !errors.Is(err, ErrTooLarge) {
		t.Errorf("corrupt size: got %v, want ErrTooLarge", err)
	}
}

func TestCameraOther(t *testing.T) {
	if CameraDay.Other() != CameraNight || CameraNight.Other() != CameraDay {
		t.Error("Other() does not flip")
	}
	if CameraDay.String() != "day" || CameraNight.String() != "night" {
		t.Error("camera names wrong")
	}
}
