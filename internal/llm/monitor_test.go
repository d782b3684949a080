package llm

import (
	"sync"
	"testing"
	"time"
)

func TestMonitor_TransitionsThenReset(t *testing.T) {
	var mu sync.Mutex
	var seen []Status
	m := NewMonitor(10*time.Millisecond, 30*time.Millisecond, func(s Status) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	m.Start()
	time.Sleep(50 * time.Millisecond)
	if got := m.Status(); got != StatusStalling {
		t.Fatalf("expected stalling after both delays, got %s", got)
	}
	m.Stop()
	if got := m.Status(); got != StatusIdle {
		t.Fatalf("expected idle after stop, got %s", got)
	}
	mu.Lock()
	defer mu.Unlock()
	want := []Status{StatusThinking, StatusStalling, StatusIdle}
	if len(seen) != len(want) {
		t.Fatalf("transitions: got %v want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transition %d: got %s want %s", i, seen[i], want[i])
		}
	}
}

func TestMonitor_StopCancelsPending(t *testing.T) {
	m := NewMonitor(20*time.Millisecond, 40*time.Millisecond, nil)
	m.Start()
	m.Stop()
	time.Sleep(60 * time.Millisecond)
	if got := m.Status(); got != StatusIdle {
		t.Fatalf("expected idle, timers should have been cancelled, got %s", got)
	}
}

func TestMonitor_StopWhenIdleIsNoOp(t *testing.T) {
	m := NewMonitor(time.Second, 2*time.Second, nil)
	m.Stop()
	m.Stop()
	if got := m.Status(); got != StatusIdle {
		t.Fatalf("expected idle, got %s", got)
	}
}

func TestMonitor_StallLineNonEmpty(t *testing.T) {
	m := NewMonitor(time.Second, 2*time.Second, nil)
	for i := 0; i < 10; i++ {
		if m.StallLine() == "" {
			t.Fatalf("expected non-empty stall line")
		}
	}
}
