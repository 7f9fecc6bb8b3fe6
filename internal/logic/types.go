// Package logic contains pure business logic for roast tracking and phase prediction.
// This package has NO external dependencies (no terminal, storage, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"strconv"
	"time"
)

// NullFloat is a float64 that may be absent.
type NullFloat struct {
	Float64 float64
	Valid   bool
}

// Some returns a present NullFloat.
func Some(v float64) NullFloat {
	return NullFloat{Float64: v, Valid: true}
}

// Or returns the value, or def when absent.
func (n NullFloat) Or(def float64) float64 {
	if !n.Valid {
		return def
	}
	return n.Float64
}

// String renders the value with one decimal, or "N/A".
func (n NullFloat) String() string {
	if !n.Valid {
		return "N/A"
	}
	return strconv.FormatFloat(n.Float64, 'f', 1, 64)
}

// Category separates histories that must never inform each other.
type Category string

const (
	CategoryRegular Category = "REGULAR"
	CategoryDecaf   Category = "DECAF"
)

// CategoryOf maps the decaf flag of a record to its category.
func CategoryOf(decaf bool) Category {
	if decaf {
		return CategoryDecaf
	}
	return CategoryRegular
}

// Phase is a tracked stage of the roast.
type Phase string

const (
	PhaseTurnaround       Phase = "TURNAROUND"
	PhaseFirstCrackStart  Phase = "FIRST_CRACK_START"
	PhaseFirstCrackEnd    Phase = "FIRST_CRACK_END"
	PhaseSecondCrackStart Phase = "SECOND_CRACK_START"
	PhaseEnd              Phase = "END"
)

// TrackedPhases lists the phases in roast order.
var TrackedPhases = []Phase{
	PhaseTurnaround,
	PhaseFirstCrackStart,
	PhaseFirstCrackEnd,
	PhaseSecondCrackStart,
	PhaseEnd,
}

// Label returns the short operator-facing name of the phase.
func (p Phase) Label() string {
	switch p {
	case PhaseTurnaround:
		return "Turnaround"
	case PhaseFirstCrackStart:
		return "FC Start"
	case PhaseFirstCrackEnd:
		return "FC End"
	case PhaseSecondCrackStart:
		return "SC Start"
	case PhaseEnd:
		return "Drop"
	}
	return string(p)
}

// State is the position of an active session in the roast sequence.
type State string

const (
	StateNotStarted                State = "NOT_STARTED"
	StateLoaded                    State = "LOADED"
	StateAwaitingTurnaround        State = "AWAITING_TURNAROUND_DATA"
	StateAwaitingFirstCrackStart   State = "AWAITING_FIRST_CRACK_START"
	StateInFirstCrack              State = "IN_FIRST_CRACK"
	StateAwaitingSecondCrackOrDrop State = "AWAITING_SECOND_CRACK_OR_DROP"
	StateInSecondCrack             State = "IN_SECOND_CRACK"
	StateCompleted                 State = "COMPLETED"
)

// Waiting reports whether the state sits between two control points.
func (s State) Waiting() bool {
	switch s {
	case StateAwaitingTurnaround, StateAwaitingFirstCrackStart, StateInFirstCrack,
		StateAwaitingSecondCrackOrDrop, StateInSecondCrack:
		return true
	}
	return false
}

// Reading is a temperature with an optional rate-of-rise.
type Reading struct {
	Temp NullFloat
	ROR  NullFloat
}

// Mark is the stamp recorded at a control point.
type Mark struct {
	Elapsed time.Duration
	Reading Reading
}

// PhaseData is one phase of a persisted record.
type PhaseData struct {
	Time NullFloat // seconds since load
	Temp NullFloat
	ROR  NullFloat
}

// SessionRecord is one completed roast as stored in the log.
type SessionRecord struct {
	ID          string
	RoastedAt   time.Time
	Origin      string
	Decaf       bool
	BatchSize   string
	TargetLevel string
	LoadingTemp NullFloat
	EarlyNotes  string
	YellowTime  NullFloat
	Phases      map[Phase]PhaseData

	// Written before first crack had a distinct start and end.
	LegacyFirstCrack  PhaseData
	LegacySecondCrack PhaseData

	DropTemp     NullFloat
	Rating       NullFloat // 1-10, 5 is ideal
	Color        string
	Notes        string
	TastingNotes string
}

// Category returns the record's category.
func (r SessionRecord) Category() Category {
	return CategoryOf(r.Decaf)
}

func (r SessionRecord) legacy(p Phase) PhaseData {
	switch p {
	case PhaseFirstCrackStart:
		return r.LegacyFirstCrack
	case PhaseSecondCrackStart:
		return r.LegacySecondCrack
	}
	return PhaseData{}
}

// PhaseTime returns the phase time, falling back to the legacy field only
// when the current one is absent.
func (r SessionRecord) PhaseTime(p Phase) NullFloat {
	if v := r.Phases[p].Time; v.Valid {
		return v
	}
	return r.legacy(p).Time
}

// PhaseTemp returns the phase temperature with the same fallback as PhaseTime.
func (r SessionRecord) PhaseTemp(p Phase) NullFloat {
	if v := r.Phases[p].Temp; v.Valid {
		return v
	}
	return r.legacy(p).Temp
}

// TotalMinutes returns the end time in minutes.
func (r SessionRecord) TotalMinutes() NullFloat {
	end := r.PhaseTime(PhaseEnd)
	if !end.Valid {
		return NullFloat{}
	}
	return Some(end.Float64 / 60)
}

// EventType identifies a published roast event.
type EventType string

const (
	EventBegin    EventType = "BEGIN"
	EventMark     EventType = "MARK"
	EventAlert    EventType = "ALERT"
	EventComplete EventType = "COMPLETE"
)

// Event is a roast occurrence to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Category  Category
	State     State
	Phase     Phase // empty unless Type is EventMark
	Elapsed   time.Duration
	Reading   Reading
	Message   string
}
