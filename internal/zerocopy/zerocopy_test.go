package zerocopy

import (
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/smazurov/camnode/internal/shm"
)

func testChannel(t *testing.T) *Channel {
	t.Helper()
	name := fmt.Sprintf("camnode-test.%d.%s", os.Getpid(), t.Name())
	ch, err := Create(name)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(func() { _ = ch.Destroy() })
	return ch
}

func handles(n uint64) *Handles {
	return &Handles{
		FrameNumber: n,
		Timestamp:   time.Unix(1700000000, 0),
		Width:       1920,
		Height:      1080,
		PlaneCount:  2,
		ShareID:     [MaxPlanes]int32{int32(n * 10), int32(n*10 + 1)},
		PlaneSize:   [MaxPlanes]uint64{1920 * 1080, 1920 * 1080 / 2},
	}
}

func TestPublishNextRoundTrip(t *testing.T) {
	ch := testChannel(t)
	if ch.Version() != 0 {
		t.Fatalf("fresh channel version = %d, want 0", ch.Version())
	}

	in := handles(5)
	in.BrightnessAvg = 88.5
	in.RawBuf[0] = 0xAB
	in.RawBuf[RawBufSize-1] = 0xCD
	ch.Publish(in)

	var out Handles
	if err := ch.Next(&out, time.Second); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if out.FrameNumber != 5 || out.Width != 1920 || out.Height != 1080 || out.PlaneCount != 2 {
		t.Errorf("metadata mismatch: %+v", out)
	}
	if out.ShareID != in.ShareID || out.PlaneSize != in.PlaneSize {
		t.Errorf("handle mismatch: %+v", out)
	}
	if out.BrightnessAvg != 88.5 || out.RawBuf[0] != 0xAB || out.RawBuf[RawBufSize-1] != 0xCD {
		t.Errorf("blob mismatch: avg=%v raw=[%x..%x]", out.BrightnessAvg, out.RawBuf[0], out.RawBuf[RawBufSize-1])
	}
	if ch.Version() != 1 {
		t.Errorf("version = %d, want 1", ch.Version())
	}
}

func TestNextTimesOutWhenIdle(t *testing.T) {
	ch := testChannel(t)
	var h Handles
	start := time.Now()
	err := ch.Next(&h, 50*time.Millisecond)
	if !errors.Is(err, shm.ErrTimeout) {
		t.Fatalf("got %v, want shm.ErrTimeout", err)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Error("Next returned before the timeout elapsed")
	}
}

// releaseLog records the order in which buffers come back from the producer.
type releaseLog struct {
	frames []uint64
}

func (r *releaseLog) release(h *Handles) {
	r.frames = append(r.frames, h.FrameNumber)
}

func TestProducerReleasesOnlyAfterConsume(t *testing.T) {
	ch := testChannel(t)
	log := &releaseLog{}
	p := NewProducer(ch, log.release)

	// First frame: nothing pending, handed off immediately, nothing released.
	if err := p.Send(handles(1), time.Second); err != nil {
		t.Fatalf("Send(1) failed: %v", err)
	}
	if len(log.frames) != 0 {
		t.Fatalf("released %v before any consumption", log.frames)
	}
	if !p.Pending() {
		t.Fatal("frame 1 should be pending")
	}

	// Consumer picks it up and acknowledges.
	var h Handles
	if err := ch.Next(&h, time.Second); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	ch.MarkConsumed()

	// Second frame: frame 1 was consumed, so its buffer is released and
	// frame 2 takes its place in flight.
	if err := p.Send(handles(2), time.Second); err != nil {
		t.Fatalf("Send(2) failed: %v", err)
	}
	if len(log.frames) != 1 || log.frames[0] != 1 {
		t.Fatalf("released %v, want [1]", log.frames)
	}
}

func TestProducerTimeoutDropsNewFrame(t *testing.T) {
	ch := testChannel(t)
	log := &releaseLog{}
	p := NewProducer(ch, log.release)

	if err := p.Send(handles(1), time.Second); err != nil {
		t.Fatal(err)
	}

	// Consumer never acknowledges frame 1; frame 2 must be dropped and its
	// buffer returned, while frame 1 stays in flight.
	err := p.Send(handles(2), 50*time.Millisecond)
	if !errors.Is(err, shm.ErrTimeout) {
		t.Fatalf("got %v, want shm.ErrTimeout", err)
	}
	if len(log.frames) != 1 || log.frames[0] != 2 {
		t.Fatalf("released %v, want [2]", log.frames)
	}
	if !p.Pending() {
		t.Error("frame 1 should still be pending after the dropped send")
	}

	// A late acknowledgment lets the next send through normally.
	var h Handles
	if err := ch.Next(&h, time.Second); err != nil {
		t.Fatal(err)
	}
	ch.MarkConsumed()
	if err := p.Send(handles(3), time.Second); err != nil {
		t.Fatalf("Send(3) after late ack failed: %v", err)
	}
	if len(log.frames) != 2 || log.frames[1] != 1 {
		t.Fatalf("released %v, want [2 1]", log.frames)
	}
}

func TestProducerShutdownReleasesPending(t *testing.T) {
	ch := testChannel(t)
	log := &releaseLog{}
	p := NewProducer(ch, log.release)

	if err := p.Send(handles(1), time.Second); err != nil {
		t.Fatal(err)
	}
	p.Shutdown(50 * time.Millisecond)
	if len(log.frames) != 1 || log.frames[0] != 1 {
		t.Fatalf("released %v, want [1]", log.frames)
	}
	if p.Pending() {
		t.Error("pending frame survived Shutdown")
	}

	// Shutdown on an empty producer is a no-op.
	p.Shutdown(time.Millisecond)
	if len(log.frames) != 1 {
		t.Errorf("second Shutdown released again: %v", log.frames)
	}
}

func TestConsumerSeesIncreasingFrameNumbers(t *testing.T) {
	ch := testChannel(t)
	log := &releaseLog{}
	p := NewProducer(ch, log.release)

	done := make(chan []uint64)
	go func() {
		var seen []uint64
		var h Handles
		for i := 0; i < 3; i++ {
			if err := ch.Next(&h, time.Second); err != nil {
				break
			}
			seen = append(seen, h.FrameNumber)
			ch.MarkConsumed()
		}
		done <- seen
	}()

	for i := uint64(1); i <= 3; i++ {
		if err := p.Send(handles(i), time.Second); err != nil {
			t.Fatalf("Send(%d) failed: %v", i, err)
		}
	}
	seen := <-done
	if len(seen) != 3 {
		t.Fatalf("consumer saw %v, want 3 frames", seen)
	}
	for i, n := range seen {
		if n != uint64(i+1) {
			t.Errorf("frame %d out of order: %v", n, seen)
		}
	}
}
