package llm

import (
	"math/rand"
	"sync"
	"time"
)

// Status is the UI-facing state of an outstanding model call.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusThinking Status = "thinking"
	StatusStalling Status = "stalling"
)

var stallLines = []string{
	"That's a deep question — give me a second.",
	"I want to give you a thoughtful response. One moment.",
	"Interesting angle. Let me think about that.",
	"Hold on, I'm weighing a few things here.",
}

// Monitor tracks how long a model call has been outstanding and emits
// idle -> thinking -> stalling transitions. It never cancels or retries
// the underlying call; it exists purely for UX feedback.
type Monitor struct {
	thinkingDelay time.Duration
	stallingDelay time.Duration
	onChange      func(Status)

	mu            sync.Mutex
	status        Status
	thinkingTimer *time.Timer
	stallingTimer *time.Timer
	rng           *rand.Rand
}

// NewMonitor builds a monitor. onChange may be nil; when set it is invoked
// on every status transition, including the reset back to idle.
func NewMonitor(thinkingDelay, stallingDelay time.Duration, onChange func(Status)) *Monitor {
	return &Monitor{
		thinkingDelay: thinkingDelay,
		stallingDelay: stallingDelay,
		onChange:      onChange,
		status:        StatusIdle,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start schedules the thinking and stalling transitions for a new tracked
// call, cancelling any previous schedule first.
func (m *Monitor) Start() {
	m.Stop()
	m.mu.Lock()
	m.thinkingTimer = time.AfterFunc(m.thinkingDelay, func() { m.transition(StatusThinking) })
	m.stallingTimer = time.AfterFunc(m.stallingDelay, func() { m.transition(StatusStalling) })
	m.mu.Unlock()
}

// Stop cancels pending transitions and resets status to idle. Safe to call
// when already idle.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.thinkingTimer != nil {
		m.thinkingTimer.Stop()
		m.thinkingTimer = nil
	}
	if m.stallingTimer != nil {
		m.stallingTimer.Stop()
		m.stallingTimer = nil
	}
	changed := m.status != StatusIdle
	m.status = StatusIdle
	cb := m.onChange
	m.mu.Unlock()
	if changed && cb != nil {
		cb(StatusIdle)
	}
}

// Status reports the current state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// StallLine returns a pseudo-random natural-sounding stalling phrase.
func (m *Monitor) StallLine() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return stallLines[m.rng.Intn(len(stallLines))]
}

func (m *Monitor) transition(s Status) {
	m.mu.Lock()
	m.status = s
	cb := m.onChange
	m.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}
