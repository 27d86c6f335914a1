package capture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/camnode/internal/brightness"
	"github.com/smazurov/camnode/internal/channel"
	"github.com/smazurov/camnode/internal/events"
	"github.com/smazurov/camnode/internal/frame"
	"github.com/smazurov/camnode/internal/framequeue"
	"github.com/smazurov/camnode/internal/shm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRing(t *testing.T, suffix string) *shm.Ring {
	t.Helper()
	name := fmt.Sprintf("camnode-test.%d.%s.%s", os.Getpid(), t.Name(), suffix)
	r, err := shm.CreateRing(name)
	if err != nil {
		t.Fatalf("CreateRing(%s) failed: %v", suffix, err)
	}
	t.Cleanup(func() { _ = r.Destroy() })
	return r
}

func TestSimulatedSource(t *testing.T) {
	src := NewSimulated(8, 4, 0)
	src.SetScene(frame.CameraDay, 30, 50)

	var f frame.Frame
	if err := src.ProbeFrame(frame.CameraDay, &f); err != nil {
		t.Fatalf("ProbeFrame failed: %v", err)
	}
	if f.Width != 8 || f.Height != 4 || f.Format != frame.FormatNV12 {
		t.Errorf("frame %+v", f)
	}
	if len(f.Data) != 8*4*3/2 {
		t.Errorf("payload size %d", len(f.Data))
	}
	luma, err := frame.MeanLuma(&f)
	if err != nil {
		t.Fatalf("MeanLuma failed: %v", err)
	}
	if luma != 30 {
		t.Errorf("luma %v, want 30", luma)
	}
	if f.BrightnessZone != frame.ZoneDark {
		t.Errorf("zone %v, want dark (low lux)", f.BrightnessZone)
	}

	// Frame numbers increase across captures.
	var g frame.Frame
	src.ProbeFrame(frame.CameraNight, &g)
	if g.FrameNumber <= f.FrameNumber {
		t.Errorf("frame numbers not increasing: %d then %d", f.FrameNumber, g.FrameNumber)
	}
}

func TestSimulatedAppliesProfile(t *testing.T) {
	src := NewSimulated(8, 4, 0)
	if _, _, set := src.AppliedProfile(); set {
		t.Fatal("profile set before any apply")
	}
	want := brightness.ProfileForZone(frame.ZoneDark)
	if err := src.ApplyProfile(frame.ZoneDark, want); err != nil {
		t.Fatalf("ApplyProfile failed: %v", err)
	}
	zone, p, set := src.AppliedProfile()
	if !set || zone != frame.ZoneDark || p != want {
		t.Errorf("AppliedProfile = %v,%+v,%v", zone, p, set)
	}
}

func TestPublishFrameFansOut(t *testing.T) {
	active := testRing(t, "active")
	yolo := testRing(t, "yolo")
	mjpeg := testRing(t, "mjpeg")
	queue := framequeue.New(4)

	src := NewSimulated(1280, 720, 0)
	p := NewPipeline(PipelineOptions{
		Source:     src,
		Hardware:   src,
		ActiveRing: active,
		YoloRing:   yolo,
		MJPEGRing:  mjpeg,
		Queue:      queue,
		Logger:     discardLogger(),
	})

	var f frame.Frame
	if err := p.CaptureActiveFrame(frame.CameraDay, &f); err != nil {
		t.Fatalf("CaptureActiveFrame failed: %v", err)
	}
	if err := p.PublishFrame(&f); err != nil {
		t.Fatalf("PublishFrame failed: %v", err)
	}

	var got frame.Frame
	if err := active.ReadLatest(&got); err != nil {
		t.Fatalf("active ring read failed: %v", err)
	}
	if got.FrameNumber != f.FrameNumber || got.Width != 1280 {
		t.Errorf("active ring frame %+v", got)
	}

	if err := yolo.ReadLatest(&got); err != nil {
		t.Fatalf("yolo ring read failed: %v", err)
	}
	if got.Width != 640 || got.Height != 360 {
		t.Errorf("yolo frame %dx%d, want 640x360", got.Width, got.Height)
	}

	if err := mjpeg.ReadLatest(&got); err != nil {
		t.Fatalf("mjpeg ring read failed: %v", err)
	}
	if got.Width != 640 || got.Height != 480 {
		t.Errorf("mjpeg frame %dx%d, want 640x480", got.Width, got.Height)
	}

	if queue.Len() != 1 {
		t.Errorf("queue depth %d, want 1", queue.Len())
	}
}

func TestAnnotatePublishesBoardAndEvents(t *testing.T) {
	board, err := channel.CreateBrightnessBoard()
	if err != nil {
		t.Fatalf("CreateBrightnessBoard failed: %v", err)
	}
	if !board.Owner() {
		board.Close()
		t.Skip("brightness channel already exists on this host")
	}
	t.Cleanup(func() { _ = board.Destroy() })

	bus := events.New()
	var mu sync.Mutex
	var samples []events.BrightnessSampleEvent
	unsub := bus.Subscribe(func(e events.BrightnessSampleEvent) {
		mu.Lock()
		samples = append(samples, e)
		mu.Unlock()
	})
	defer unsub()

	src := NewSimulated(8, 4, 0)
	src.SetScene(frame.CameraDay, 60, 300)
	p := NewPipeline(PipelineOptions{
		Source:     src,
		Hardware:   src,
		ActiveRing: testRing(t, "active"),
		Board:      board,
		EventBus:   bus,
		Logger:     discardLogger(),
	})

	var f frame.Frame
	if err := p.CaptureActiveFrame(frame.CameraDay, &f); err != nil {
		t.Fatalf("CaptureActiveFrame failed: %v", err)
	}
	if f.BrightnessAvg != 60 || f.BrightnessZone != frame.ZoneDim {
		t.Errorf("annotated frame avg=%v zone=%v", f.BrightnessAvg, f.BrightnessZone)
	}

	sample, version := board.Read(frame.CameraDay)
	if version == 0 {
		t.Fatal("board never published")
	}
	if sample.Avg != 60 || sample.Lux != 300 || sample.Zone != frame.ZoneDim {
		t.Errorf("board sample %+v", sample)
	}

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(samples)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no brightness event delivered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	e := samples[0]
	mu.Unlock()
	if e.Camera != "day" || e.Avg != 60 || e.Zone != "dim" {
		t.Errorf("event %+v", e)
	}
}

func TestCaptureProbeFrameMirrorsToRing(t *testing.T) {
	probe := testRing(t, "probe")
	src := NewSimulated(8, 4, 0)
	p := NewPipeline(PipelineOptions{
		Source:    src,
		Hardware:  src,
		ProbeRing: probe,
		Logger:    discardLogger(),
	})

	var f frame.Frame
	if err := p.CaptureProbeFrame(frame.CameraDay, &f); err != nil {
		t.Fatalf("CaptureProbeFrame failed: %v", err)
	}
	var got frame.Frame
	if err := probe.ReadLatest(&got); err != nil {
		t.Fatalf("probe ring read failed: %v", err)
	}
	if got.FrameNumber != f.FrameNumber {
		t.Errorf("probe ring frame %d, want %d", got.FrameNumber, f.FrameNumber)
	}
}

func TestQueueOverflowEmitsDropEvent(t *testing.T) {
	bus := events.New()
	var mu sync.Mutex
	var drops []events.FrameDropEvent
	unsub := bus.Subscribe(func(e events.FrameDropEvent) {
		mu.Lock()
		drops = append(drops, e)
		mu.Unlock()
	})
	defer unsub()

	src := NewSimulated(8, 4, 0)
	p := NewPipeline(PipelineOptions{
		Source:     src,
		Hardware:   src,
		ActiveRing: testRing(t, "active"),
		Queue:      framequeue.New(1),
		EventBus:   bus,
		Logger:     discardLogger(),
	})

	var f frame.Frame
	src.ProbeFrame(frame.CameraDay, &f)
	p.PublishFrame(&f)
	p.PublishFrame(&f) // queue capacity 1: this one drops

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(drops)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no drop event delivered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	e := drops[0]
	mu.Unlock()
	if e.Channel != channel.Stream || e.Cause != "queue_full" {
		t.Errorf("drop event %+v", e)
	}
}

func TestSwitchCameraUpdatesControlWord(t *testing.T) {
	ctrl, err := channel.CreateControlWord()
	if err != nil {
		t.Fatalf("CreateControlWord failed: %v", err)
	}
	if !ctrl.Owner() {
		ctrl.Close()
		t.Skip("control channel already exists on this host")
	}
	t.Cleanup(func() { _ = ctrl.Destroy() })

	src := NewSimulated(8, 4, 0)
	p := NewPipeline(PipelineOptions{
		Source:   src,
		Hardware: src,
		Control:  ctrl,
		Logger:   discardLogger(),
	})

	if err := p.SwitchCamera(frame.CameraNight); err != nil {
		t.Fatalf("SwitchCamera failed: %v", err)
	}
	if cam, _ := ctrl.Active(); cam != frame.CameraNight {
		t.Errorf("control word %v, want night", cam)
	}
}

func TestEncoderDrainsQueueIntoStreamRing(t *testing.T) {
	stream := testRing(t, "stream")
	queue := framequeue.New(4)

	src := NewSimulated(8, 4, 0)
	p := NewPipeline(PipelineOptions{
		Source:     src,
		Hardware:   src,
		Encoder:    PassthroughEncoder{},
		ActiveRing: testRing(t, "active"),
		StreamRing: stream,
		Queue:      queue,
		Logger:     discardLogger(),
	})

	p.StartEncoder(context.Background())
	defer p.StopEncoder()

	var f frame.Frame
	src.ProbeFrame(frame.CameraDay, &f)
	if err := p.PublishFrame(&f); err != nil {
		t.Fatalf("PublishFrame failed: %v", err)
	}

	// Wait for the worker to encode and write.
	var got frame.Frame
	deadline := time.Now().Add(time.Second)
	for {
		if err := stream.ReadLatest(&got); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stream ring still empty")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got.Format != frame.FormatH264 {
		t.Errorf("stream frame format %v, want h264", got.Format)
	}
	if got.FrameNumber != f.FrameNumber {
		t.Errorf("stream frame %d, want %d", got.FrameNumber, f.FrameNumber)
	}
}
