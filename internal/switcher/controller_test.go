package switcher

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/smazurov/camnode/internal/frame"
)

func testController(t *testing.T, cfg Config) (*Controller, *time.Time) {
	t.Helper()
	c := NewController(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	clock := time.Unix(1700000000, 0)
	c.now = func() time.Time { return clock }
	return c, &clock
}

func TestDeadZoneNeverDecides(t *testing.T) {
	c, clock := testController(t, DefaultConfig())
	// Values between the thresholds (40 and 70) must never trigger, from
	// either active camera.
	for i := 0; i < 100; i++ {
		if d := c.RecordBrightness(frame.CameraDay, 55); d != DecisionNone {
			t.Fatalf("dead-zone sample produced %v while day active", d)
		}
		*clock = clock.Add(time.Second)
	}
	c.NotifyActiveCamera(frame.CameraNight, "test")
	for i := 0; i < 100; i++ {
		if d := c.RecordBrightness(frame.CameraDay, 55); d != DecisionNone {
			t.Fatalf("dead-zone sample produced %v while night active", d)
		}
		*clock = clock.Add(time.Second)
	}
}

func TestDarkeningSwitchesAfterHold(t *testing.T) {
	c, clock := testController(t, DefaultConfig())

	// Dark samples accumulate for 10s before the decision fires.
	for i := 0; i < 10; i++ {
		if d := c.RecordBrightness(frame.CameraDay, 20); d != DecisionNone {
			t.Fatalf("decision %v fired at t=%ds, before the hold elapsed", d, i)
		}
		*clock = clock.Add(time.Second)
	}
	if d := c.RecordBrightness(frame.CameraDay, 20); d != DecisionToNight {
		t.Fatalf("got %v after the hold, want to-night", d)
	}

	// The decision resets the timer: the very next dark sample starts over
	// rather than firing again.
	if d := c.RecordBrightness(frame.CameraDay, 20); d != DecisionNone {
		t.Fatalf("decision %v repeated immediately after firing", d)
	}
}

func TestBrighteningResetsTheDarkTimer(t *testing.T) {
	c, clock := testController(t, DefaultConfig())

	c.RecordBrightness(frame.CameraDay, 20)
	*clock = clock.Add(9 * time.Second)
	// One bright sample clears the accumulated hold.
	c.RecordBrightness(frame.CameraDay, 80)
	*clock = clock.Add(2 * time.Second)
	if d := c.RecordBrightness(frame.CameraDay, 20); d != DecisionNone {
		t.Fatalf("got %v off a reset timer", d)
	}
}

func TestBrighteningSwitchesBackFromNight(t *testing.T) {
	c, clock := testController(t, DefaultConfig())
	c.NotifyActiveCamera(frame.CameraNight, "test")

	// While night is active, decisions come from day probe samples.
	for i := 0; i < 10; i++ {
		if d := c.RecordBrightness(frame.CameraDay, 120); d != DecisionNone {
			t.Fatalf("decision %v fired at probe %d", d, i)
		}
		*clock = clock.Add(time.Second)
	}
	if d := c.RecordBrightness(frame.CameraDay, 120); d != DecisionToDay {
		t.Fatalf("got %v, want to-day", d)
	}
}

func TestNightSamplesNeverDrive(t *testing.T) {
	c, clock := testController(t, DefaultConfig())
	c.NotifyActiveCamera(frame.CameraNight, "test")

	// Bright night-camera samples are diagnostics only.
	for i := 0; i < 30; i++ {
		if d := c.RecordBrightness(frame.CameraNight, 200); d != DecisionNone {
			t.Fatalf("night sample produced %v", d)
		}
		*clock = clock.Add(time.Second)
	}
	st := c.Status()
	if st.Brightness[frame.CameraNight].Samples != 30 {
		t.Errorf("night samples = %d, want 30", st.Brightness[frame.CameraNight].Samples)
	}
	if st.Brightness[frame.CameraNight].LatestValue != 200 {
		t.Errorf("night latest = %v, want 200", st.Brightness[frame.CameraNight].LatestValue)
	}
}

func TestManualModeSuppressesDecisions(t *testing.T) {
	c, clock := testController(t, DefaultConfig())
	c.ForceManual(frame.CameraDay)

	for i := 0; i < 30; i++ {
		if d := c.RecordBrightness(frame.CameraDay, 5); d != DecisionNone {
			t.Fatalf("manual mode produced %v", d)
		}
		*clock = clock.Add(time.Second)
	}
	if target, manual := c.ManualTarget(); !manual || target != frame.CameraDay {
		t.Errorf("ManualTarget = %v,%v, want day,true", target, manual)
	}

	// ResumeAuto restarts the timers; decisions need a fresh full hold.
	c.ResumeAuto()
	if _, manual := c.ManualTarget(); manual {
		t.Error("still manual after ResumeAuto")
	}
	for i := 0; i <= 10; i++ {
		d := c.RecordBrightness(frame.CameraDay, 5)
		if i < 10 && d != DecisionNone {
			t.Fatalf("decision %v before a full hold after resume", d)
		}
		if i == 10 && d != DecisionToNight {
			t.Fatalf("got %v at the end of the hold, want to-night", d)
		}
		*clock = clock.Add(time.Second)
	}
}

func TestSetConfigRestartsHold(t *testing.T) {
	c, clock := testController(t, DefaultConfig())

	c.RecordBrightness(frame.CameraDay, 20)
	*clock = clock.Add(9 * time.Second)

	cfg := DefaultConfig()
	cfg.DayToNightThreshold = 30
	c.SetConfig(cfg)

	// The 9s accumulated under the old tuning must not count.
	*clock = clock.Add(2 * time.Second)
	if d := c.RecordBrightness(frame.CameraDay, 20); d != DecisionNone {
		t.Fatalf("got %v right after retuning", d)
	}
}

func TestWarmupDiscardsPublishes(t *testing.T) {
	c, _ := testController(t, DefaultConfig())
	c.NotifyActiveCamera(frame.CameraNight, "test")

	var published []uint64
	publish := func(f *frame.Frame) error {
		published = append(published, f.FrameNumber)
		return nil
	}

	f := &frame.Frame{Width: 4, Height: 2, Format: frame.FormatNV12, Data: make([]byte, 12)}
	for i := uint64(1); i <= 5; i++ {
		f.FrameNumber = i
		if err := c.PublishFrame(f, publish); err != nil {
			t.Fatalf("PublishFrame(%d) failed: %v", i, err)
		}
	}
	// Default warmup is 3 frames; only 4 and 5 pass.
	if len(published) != 2 || published[0] != 4 || published[1] != 5 {
		t.Errorf("published %v, want [4 5]", published)
	}
	if c.Status().WarmupRemaining != 0 {
		t.Errorf("warmup remaining = %d, want 0", c.Status().WarmupRemaining)
	}
}

func TestStatusSnapshot(t *testing.T) {
	c, _ := testController(t, DefaultConfig())
	c.RecordBrightness(frame.CameraDay, 100)
	c.RecordBrightness(frame.CameraDay, 50)

	st := c.Status()
	if st.Mode != ModeAuto || st.ActiveCamera != frame.CameraDay {
		t.Errorf("status %+v", st)
	}
	day := st.Brightness[frame.CameraDay]
	if day.Samples != 2 || day.LatestValue != 50 || day.Avg != 75 {
		t.Errorf("day stat %+v, want samples=2 latest=50 avg=75", day)
	}
	if st.LastSwitchReason != "init" {
		t.Errorf("reason %q, want init", st.LastSwitchReason)
	}
}

// Twilight walkthrough: day active, the scene darkens below 40 at t=1s, the
// switch decision fires once the 10s hold elapses, and the first three
// post-switch frames are discarded while auto-exposure settles.
func TestDuskScenario(t *testing.T) {
	c, clock := testController(t, DefaultConfig())

	var published int
	publish := func(*frame.Frame) error { published++; return nil }
	f := &frame.Frame{Width: 4, Height: 2, Format: frame.FormatNV12, Data: make([]byte, 12)}

	// Normal daylight for a second.
	c.RecordBrightness(frame.CameraDay, 150)
	c.PublishFrame(f, publish)
	*clock = clock.Add(time.Second)

	// Dusk: one dark sample per second.
	var decision Decision
	fired := -1
	for i := 0; i <= 12; i++ {
		decision = c.RecordBrightness(frame.CameraDay, 25)
		c.PublishFrame(f, publish)
		if decision == DecisionToNight {
			fired = i
			break
		}
		*clock = clock.Add(time.Second)
	}
	if fired != 10 {
		t.Fatalf("to-night fired at dark sample %d, want 10 (after a full 10s hold)", fired)
	}

	// Hardware switches; controller is told.
	c.NotifyActiveCamera(frame.CameraNight, "auto-to-night")
	before := published
	for i := 0; i < 4; i++ {
		c.PublishFrame(f, publish)
	}
	if got := published - before; got != 1 {
		t.Errorf("%d frames passed during warmup, want exactly the 4th", got)
	}
	if c.ActiveCamera() != frame.CameraNight {
		t.Error("active camera not night after switch")
	}
}
