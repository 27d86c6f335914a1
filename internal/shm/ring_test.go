package shm

import (
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/smazurov/camnode/internal/frame"
)

// testRing creates a ring under a process-unique name and tears it down with
// the test.
func testRing(t *testing.T) *Ring {
	t.Helper()
	name := fmt.Sprintf("camnode-test.%d.%s", os.Getpid(), t.Name())
	ring, err := CreateRing(name)
	if err != nil {
		t.Fatalf("CreateRing failed: %v", err)
	}
	if !ring.Owner() {
		ring.Close()
		t.Fatalf("stale segment %s from a previous run, remove it under /dev/shm", name)
	}
	t.Cleanup(func() { ring.Destroy() })
	return ring
}

func testFrame(num uint64) *frame.Frame {
	return &frame.Frame{
		FrameNumber: num,
		Timestamp:   time.Unix(1700000000, 0),
		CameraID:    frame.CameraDay,
		Width:       4,
		Height:      2,
		Format:      frame.FormatNV12,
		Data:        []byte{10, 20, 30, 40, 50, 60, 70, 80, 90, 100, 110, 120},
	}
}

func TestRingReadBeforeWrite(t *testing.T) {
	ring := testRing(t)

	var f frame.Frame
	if err := ring.ReadLatest(&f); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestRingWriteIndexMonotonic(t *testing.T) {
	ring := testRing(t)

	for i := 1; i <= 2*RingCapacity+5; i++ {
		prev := ring.WriteIndex()
		if _, err := ring.Write(testFrame(uint64(i))); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
		if got := ring.WriteIndex(); got != prev+1 {
			t.Fatalf("write index went %d -> %d, want +1", prev, got)
		}
	}
	if got := ring.WriteIndex(); got != uint32(2*RingCapacity+5) {
		t.Errorf("final write index %d, want %d", got, 2*RingCapacity+5)
	}
}

func TestRingReadLatestTracksWriter(t *testing.T) {
	ring := testRing(t)

	var f frame.Frame
	for i := 1; i <= RingCapacity+3; i++ {
		if _, err := ring.Write(testFrame(uint64(i))); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if err := ring.ReadLatest(&f); err != nil {
			t.Fatalf("ReadLatest failed: %v", err)
		}
		if f.FrameNumber != uint64(i) {
			t.Fatalf("read frame %d after writing %d", f.FrameNumber, i)
		}
	}
}

func TestRingWraparoundReusesOldestSlot(t *testing.T) {
	ring := testRing(t)

	for i := 0; i < RingCapacity; i++ {
		slot, err := ring.Write(testFrame(uint64(i + 1)))
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if slot != uint32(i) {
			t.Fatalf("write %d landed in slot %d", i, slot)
		}
	}

	// Write C+1 must land back in slot 0, overwriting frame 1.
	slot, err := ring.Write(testFrame(uint64(RingCapacity + 1)))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if slot != 0 {
		t.Fatalf("wraparound write landed in slot %d, want 0", slot)
	}

	var f frame.Frame
	if err := f.DecodeFrom(ring.slot(0)); err != nil {
		t.Fatalf("decode slot 0: %v", err)
	}
	if f.FrameNumber != uint64(RingCapacity+1) {
		t.Errorf("slot 0 holds frame %d, want %d", f.FrameNumber, RingCapacity+1)
	}
}

func TestRingPayloadRoundTrip(t *testing.T) {
	ring := testRing(t)

	in := testFrame(42)
	in.BrightnessAvg = 55.5
	in.BrightnessLux = 300
	in.BrightnessZone = frame.ZoneDim
	in.CorrectionApplied = true
	if _, err := ring.Write(in); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var out frame.Frame
	if err := ring.ReadLatest(&out); err != nil {
		t.Fatalf("ReadLatest failed: %v", err)
	}
	if out.FrameNumber != 42 || out.CameraID != frame.CameraDay {
		t.Errorf("metadata mismatch: %+v", out)
	}
	if out.BrightnessAvg != 55.5 || out.BrightnessLux != 300 ||
		out.BrightnessZone != frame.ZoneDim || !out.CorrectionApplied {
		t.Errorf("brightness annotations mismatch: %+v", out)
	}
	if string(out.Data) != string(in.Data) {
		t.Errorf("payload mismatch: %v != %v", out.Data, in.Data)
	}
}

func TestRingRejectsOversizedFrame(t *testing.T) {
	ring := testRing(t)

	f := testFrame(1)
	f.Data = make([]byte, frame.MaxDataSize+1)
	if _, err := ring.Write(f); !errors.Is(err, frame.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if got := ring.WriteIndex(); got != 0 {
		t.Errorf("rejected write advanced index to %d", got)
	}
}

func TestRingWaitFrame(t *testing.T) {
	ring := testRing(t)

	seq := ring.NotifySeq()
	done := make(chan error, 1)
	go func() {
		_, err := ring.WaitFrame(seq, 5*time.Second)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if _, err := ring.Write(testFrame(1)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitFrame failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("WaitFrame never returned")
	}

	if _, err := ring.WaitFrame(ring.NotifySeq(), 50*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout with no writer, got %v", err)
	}
}

func TestRingCreateDegradesToAttach(t *testing.T) {
	ring := testRing(t)

	second, err := CreateRing(ring.Name())
	if err != nil {
		t.Fatalf("second CreateRing failed: %v", err)
	}
	defer second.Close()

	if second.Owner() {
		t.Fatal("second creator must attach, not own")
	}

	// The attachment sees the owner's writes.
	if _, err := ring.Write(testFrame(7)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	var f frame.Frame
	if err := second.ReadLatest(&f); err != nil {
		t.Fatalf("ReadLatest through attachment failed: %v", err)
	}
	if f.FrameNumber != 7 {
		t.Errorf("attachment read frame %d, want 7", f.FrameNumber)
	}

	if err := second.Destroy(); !errors.Is(err, ErrNotOwner) {
		t.Errorf("non-owner Destroy returned %v, want ErrNotOwner", err)
	}
}

func TestRingOpenMissing(t *testing.T) {
	_, err := OpenRing(fmt.Sprintf("camnode-test.%d.missing", os.Getpid()))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestRingFrameInterval(t *testing.T) {
	ring := testRing(t)

	if got := ring.FrameInterval(); got != 0 {
		t.Fatalf("initial interval %s, want 0", got)
	}
	ring.SetFrameInterval(200 * time.Millisecond)
	if got := ring.FrameInterval(); got != 200*time.Millisecond {
		t.Errorf("interval %s, want 200ms", got)
	}
}

func TestRingClosedWrite(t *testing.T) {
	name := fmt.Sprintf("camnode-test.%d.%s", os.Getpid(), t.Name())
	ring, err := CreateRing(name)
	if err != nil {
		t.Fatalf("CreateRing failed: %v", err)
	}
	if err := ring.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}

	if _, err := ring.Write(testFrame(1)); !errors.Is(err, ErrClosed) {
		t.Errorf("Write on destroyed ring returned %v, want ErrClosed", err)
	}
	var f frame.Frame
	if err := ring.ReadLatest(&f); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadLatest on destroyed ring returned %v, want ErrClosed", err)
	}
}

func TestOpenRingWait(t *testing.T) {
	name := fmt.Sprintf("camnode-test.%d.%s", os.Getpid(), t.Name())

	// Nothing ever creates the ring: the wait must give up.
	start := time.Now()
	if _, err := OpenRingWait(name+".missing", 150*time.Millisecond); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
	if time.Since(start) < 150*time.Millisecond {
		t.Error("OpenRingWait gave up before the timeout")
	}

	// Created mid-wait: the retry loop attaches.
	go func() {
		time.Sleep(200 * time.Millisecond)
		ring, err := CreateRing(name)
		if err == nil {
			_, _ = ring.Write(testFrame(1))
		}
	}()
	t.Cleanup(func() { _ = Unlink(name) })

	ring, err := OpenRingWait(name, 2*time.Second)
	if err != nil {
		t.Fatalf("OpenRingWait failed: %v", err)
	}
	defer ring.Close()
	if ring.Owner() {
		t.Error("waiter became owner")
	}
}
