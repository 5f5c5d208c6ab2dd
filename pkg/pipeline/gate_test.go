package pipeline

import (
	"testing"
	"time"
)

func TestGateStartsUnlocked(t *testing.T) {
	g := NewGate()
	done := make(chan struct{})
	go func() {
		g.Acquire()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(50 * time.Millisecond):
		t.Fatalf("Acquire blocked on a fresh gate")
	}
}

func TestGateBlocksSecondAcquireUntilRelease(t *testing.T) {
	g := NewGate()
	g.Acquire()

	second := make(chan struct{})
	go func() {
		g.Acquire()
		close(second)
	}()

	select {
	case <-second:
		t.Fatalf("second Acquire returned before Release")
	case <-time.After(20 * time.Millisecond):
	}

	g.Release()

	select {
	case <-second:
	case <-time.After(50 * time.Millisecond):
		t.Fatalf("second Acquire did not unblock after Release")
	}
}
