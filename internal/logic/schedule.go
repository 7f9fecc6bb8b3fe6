package logic

import (
	"fmt"
	"sort"
	"time"
)

// ApproachLead is how far ahead of a predicted phase the approach alert fires.
const ApproachLead = 60 * time.Second

// Threshold is an elapsed time at which an alert fires.
type Threshold struct {
	At      time.Duration
	Message string
	Beeps   int
}

// Alert is a fired threshold.
type Alert struct {
	Threshold Threshold
	Elapsed   time.Duration
	Category  Category
	State     State // state of the interval it fired in
}

// DefaultFirstCrack is the expected first crack start when history has none.
func DefaultFirstCrack(cat Category) time.Duration {
	if cat == CategoryDecaf {
		return 8 * time.Minute
	}
	return 9 * time.Minute
}

// CategoryMilestones returns the fixed pre-first-crack checkpoints.
func CategoryMilestones(cat Category) []Threshold {
	if cat == CategoryDecaf {
		return []Threshold{
			milestone(4*time.Minute, "Yellowing phase checkpoint", 2),
			milestone(6*time.Minute, "Approaching first crack zone (decaf)", 2),
			milestone(8*time.Minute, "Listen for first crack!", 2),
		}
	}
	return []Threshold{
		milestone(5*time.Minute, "Yellowing should be complete", 2),
		milestone(8*time.Minute, "Approaching first crack zone", 2),
		milestone(9*time.Minute, "Listen for first crack!", 2),
	}
}

func milestone(at time.Duration, text string, beeps int) Threshold {
	return Threshold{At: at, Message: FormatElapsed(at) + " - " + text, Beeps: beeps}
}

func seconds(v NullFloat) time.Duration {
	return time.Duration(v.Float64 * float64(time.Second))
}

// predicted adds an approach alert ApproachLead before at and an alert at at.
func predicted(at time.Duration, what string, source string) []Threshold {
	out := make([]Threshold, 0, 2)
	if lead := at - ApproachLead; lead > 0 {
		out = append(out, milestone(lead, fmt.Sprintf("%s expected in ~1 min (%s)", what, source), 1))
	}
	return append(out, milestone(at, fmt.Sprintf("%s expected now (%s)", what, source), 2))
}

// Thresholds builds the alert set for the waiting interval of state.
func Thresholds(state State, cat Category, est EstimateSet) []Threshold {
	var out []Threshold
	switch state {
	case StateLoaded, StateAwaitingTurnaround, StateAwaitingFirstCrackStart:
		out = append(out, CategoryMilestones(cat)...)
		fc := est.Phase(PhaseFirstCrackStart).Time
		if fc.Valid {
			out = append(out, predicted(seconds(fc), "First crack", "history")...)
		} else {
			out = append(out, predicted(DefaultFirstCrack(cat), "First crack", "default")...)
		}
	case StateInFirstCrack:
		if end := est.Phase(PhaseFirstCrackEnd).Time; end.Valid {
			out = append(out, milestone(seconds(end), "First crack ending (history)", 1))
		}
	case StateAwaitingSecondCrackOrDrop:
		if sc := est.Phase(PhaseSecondCrackStart).Time; sc.Valid {
			out = append(out, predicted(seconds(sc), "Second crack", "history")...)
		}
		if drop := est.Phase(PhaseEnd).Time; drop.Valid {
			out = append(out, milestone(seconds(drop), "Typical drop time (history)", 2))
		}
	case StateInSecondCrack:
		if drop := est.Phase(PhaseEnd).Time; drop.Valid {
			out = append(out, milestone(seconds(drop), "Typical drop time (history)", 2))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At < out[j].At })
	return out
}

// Milestones tracks which thresholds of one waiting interval have fired.
// Not safe for concurrent use; it belongs to the goroutine that polls it.
type Milestones struct {
	pending []Threshold
}

// Arm prepares thresholds for an interval that starts at elapsed from.
// Thresholds already crossed at the start are dropped.
func Arm(thresholds []Threshold, from time.Duration) *Milestones {
	m := &Milestones{}
	for _, th := range thresholds {
		if th.At > from {
			m.pending = append(m.pending, th)
		}
	}
	sort.SliceStable(m.pending, func(i, j int) bool { return m.pending[i].At < m.pending[j].At })
	return m
}

// Due returns every pending threshold crossed by elapsed and removes it,
// so each fires exactly once however far elapsed overshoots.
func (m *Milestones) Due(elapsed time.Duration) []Threshold {
	n := 0
	for n < len(m.pending) && m.pending[n].At <= elapsed {
		n++
	}
	if n == 0 {
		return nil
	}
	due := m.pending[:n:n]
	m.pending = m.pending[n:]
	return due
}

// Remaining returns the number of thresholds yet to fire.
func (m *Milestones) Remaining() int {
	return len(m.pending)
}

// Anchor is the immutable timing reference of one waiting interval.
type Anchor struct {
	Start      time.Time
	State      State
	Category   Category
	PhaseName  string
	PhaseStart time.Duration
}

// Anchor returns the timing reference for the current state.
func (s *Session) Anchor() Anchor {
	a := Anchor{Start: s.start, State: s.state, Category: s.category}
	var from Phase
	switch s.state {
	case StateInFirstCrack:
		a.PhaseName, from = "First Crack", PhaseFirstCrackStart
	case StateAwaitingSecondCrackOrDrop:
		a.PhaseName, from = "Development", PhaseFirstCrackEnd
	case StateInSecondCrack:
		a.PhaseName, from = "Second Crack", PhaseSecondCrackStart
	}
	if m, ok := s.marks[from]; ok {
		a.PhaseStart = m.Elapsed
	}
	return a
}

// Elapsed returns now minus the load instant.
func (a Anchor) Elapsed(now time.Time) time.Duration {
	return now.Sub(a.Start)
}

// Label returns the running phase timer for the live line, e.g. "First Crack: 00:42".
func (a Anchor) Label(elapsed time.Duration) string {
	if a.PhaseName == "" {
		return ""
	}
	return a.PhaseName + ": " + FormatElapsed(elapsed-a.PhaseStart)
}
