// Package status provides a thread-safe view of the roast in progress.
// It is read by the HTTP status page and by lifecycle events.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/sweeney/roast-timer/internal/logic"
)

// Config contains runtime configuration for display.
type Config struct {
	LogPath    string
	Broker     string
	HTTPAddr   string
	Unit       string
	ButtonPin  int // negative when no button is wired
	CadenceMs  int64
	DebounceMs int64
}

// Snapshot is a point-in-time view of the process state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Roast         logic.View
	Estimates     logic.EstimateSet
	LastAlert     *logic.Alert
	AlertsFired   int
	Completed     int // roasts logged by this process
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the process started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Active reports whether a roast is under way.
func (s Snapshot) Active() bool {
	return s.Roast.State != "" && s.Roast.State != logic.StateNotStarted && s.Roast.State != logic.StateCompleted
}

// Elapsed returns the roast clock: running while active, frozen at the
// drop once completed, zero otherwise.
func (s Snapshot) Elapsed() time.Duration {
	switch {
	case s.Roast.State == logic.StateCompleted:
		return s.Roast.Marks[logic.PhaseEnd].Elapsed
	case s.Active():
		return s.Now.Sub(s.Roast.Start)
	}
	return 0
}

// Tracker holds mutable state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Roast:     logic.View{State: logic.StateNotStarted},
		},
		now: time.Now,
	}
}

// SetClock replaces the clock used to stamp snapshots.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// SetRoast records the latest view of the active session.
// A new session (state Loaded) resets the alert fields.
func (t *Tracker) SetRoast(v logic.View) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v.State == logic.StateLoaded {
		t.snap.LastAlert = nil
		t.snap.AlertsFired = 0
	}
	if v.State == logic.StateCompleted && t.snap.Roast.State != logic.StateCompleted {
		t.snap.Completed++
	}
	t.snap.Roast = v
}

// SetEstimates records the estimates used for the current roast.
func (t *Tracker) SetEstimates(est logic.EstimateSet) {
	t.mu.Lock()
	t.snap.Estimates = est
	t.mu.Unlock()
}

// Notify records a fired alert. It lets the tracker act as an alert sink.
func (t *Tracker) Notify(_ context.Context, a logic.Alert) error {
	t.mu.Lock()
	t.snap.LastAlert = &a
	t.snap.AlertsFired++
	t.mu.Unlock()
	return nil
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	now := t.now
	t.mu.RUnlock()

	// View.Marks is a map; copy it so callers cannot race SetRoast.
	marks := make(map[logic.Phase]logic.Mark, len(s.Roast.Marks))
	for p, m := range s.Roast.Marks {
		marks[p] = m
	}
	s.Roast.Marks = marks
	if s.LastAlert != nil {
		a := *s.LastAlert
		s.LastAlert = &a
	}
	s.Now = now()
	return s
}
