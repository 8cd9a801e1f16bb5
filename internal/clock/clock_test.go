package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceFiresDueTimersInOrder(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	var fired []string
	f.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	f.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	f.AfterFunc(10*time.Second, func() { fired = append(fired, "late") })

	f.Advance(5 * time.Second)

	if len(fired) != 2 || fired[0] != "a" || fired[1] != "b" {
		t.Fatalf("unexpected firing order: %v", fired)
	}
	if got := f.Now(); !got.Equal(start.Add(5 * time.Second)) {
		t.Fatalf("expected clock at +5s, got %s", got)
	}
	if f.Pending() != 1 {
		t.Fatalf("expected one pending timer, got %d", f.Pending())
	}
}

func TestFakeTimerStop(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	called := false
	timer := f.AfterFunc(time.Second, func() { called = true })
	if !timer.Stop() {
		t.Fatalf("expected stop to report a pending timer")
	}
	f.Advance(time.Minute)
	if called {
		t.Fatalf("stopped timer fired")
	}
	if timer.Stop() {
		t.Fatalf("second stop should report nothing pending")
	}
}

func TestTickerRearmsAfterEachCall(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	calls := 0
	ticker := NewTicker(f, time.Minute, func() { calls++ })

	ticker.Start(true)
	if calls != 1 {
		t.Fatalf("expected immediate call, got %d", calls)
	}

	f.Advance(3 * time.Minute)
	if calls != 4 {
		t.Fatalf("expected 4 calls after three intervals, got %d", calls)
	}

	ticker.Stop()
	f.Advance(10 * time.Minute)
	if calls != 4 {
		t.Fatalf("ticker kept firing after stop: %d", calls)
	}
	if f.Pending() != 0 {
		t.Fatalf("expected no pending timers after stop, got %d", f.Pending())
	}
}
