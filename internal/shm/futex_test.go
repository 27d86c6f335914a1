package shm

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestEventSignalWakesWaiter(t *testing.T) {
	buf := make([]byte, 8)
	event := EventAt(buf)

	start := event.Seq()
	done := make(chan uint32, 1)
	go func() {
		seq, err := event.Wait(start, 5*time.Second)
		if err != nil {
			t.Errorf("Wait failed: %v", err)
		}
		done <- seq
	}()

	// Give the waiter a moment to block before signaling.
	time.Sleep(20 * time.Millisecond)
	event.Signal()

	select {
	case seq := <-done:
		if seq != start+1 {
			t.Errorf("observed seq %d, want %d", seq, start+1)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiter never woke up")
	}
}

func TestEventWaitTimeout(t *testing.T) {
	buf := make([]byte, 8)
	event := EventAt(buf)

	begin := time.Now()
	_, err := event.Wait(event.Seq(), 50*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(begin); elapsed < 40*time.Millisecond {
		t.Errorf("returned after %s, expected to wait ~50ms", elapsed)
	}
}

func TestEventStaleSequenceReturnsImmediately(t *testing.T) {
	buf := make([]byte, 8)
	event := EventAt(buf)
	event.Signal()

	// A waiter holding a pre-signal sequence must not block at all.
	seq, err := event.Wait(0, time.Second)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if seq != 1 {
		t.Errorf("seq = %d, want 1", seq)
	}
}

func TestEventBroadcast(t *testing.T) {
	buf := make([]byte, 8)
	event := EventAt(buf)
	start := event.Seq()

	const waiters = 4
	var wg sync.WaitGroup
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := event.Wait(start, 5*time.Second)
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	event.Signal()
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("waiter failed: %v", err)
		}
	}
}

func TestSemPostWait(t *testing.T) {
	buf := make([]byte, 8)
	sem := SemAt(buf)

	if sem.TryWait() {
		t.Fatal("TryWait succeeded on empty semaphore")
	}

	sem.Post()
	sem.Post()
	if got := sem.Value(); got != 2 {
		t.Fatalf("Value = %d, want 2", got)
	}

	if err := sem.Wait(time.Second); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if !sem.TryWait() {
		t.Fatal("TryWait failed with count 1")
	}
	if got := sem.Value(); got != 0 {
		t.Fatalf("Value = %d after two decrements, want 0", got)
	}
}

func TestSemWaitTimeout(t *testing.T) {
	buf := make([]byte, 8)
	sem := SemAt(buf)

	if err := sem.Wait(50 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestSemWaitWakesOnPost(t *testing.T) {
	buf := make([]byte, 8)
	sem := SemAt(buf)

	done := make(chan error, 1)
	go func() {
		done <- sem.Wait(5 * time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	sem.Post()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiter never woke up")
	}
}
