package logic

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAlreadyStarted is returned by Begin on a session that has begun.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrNotStarted is returned when an operation needs a started session.
	ErrNotStarted = errors.New("session not started")
	// ErrOutOfOrder is returned when a control point arrives before its predecessor.
	ErrOutOfOrder = errors.New("out of order")
	// ErrNonMonotonic is returned when a stamp is earlier than an existing mark.
	ErrNonMonotonic = errors.New("mark earlier than previous mark")
	// ErrNotCompleted is returned by Record before Complete.
	ErrNotCompleted = errors.New("session not completed")
)

// TransitionError describes a rejected control point. The session is left
// in State, its last valid state.
type TransitionError struct {
	Op    string
	Phase Phase
	State State
	Err   error
}

func (e *TransitionError) Error() string {
	if e.Phase != "" {
		return fmt.Sprintf("%s %s from %s: %v", e.Op, e.Phase, e.State, e.Err)
	}
	return fmt.Sprintf("%s from %s: %v", e.Op, e.State, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// markFrom lists the states each phase may be marked from. Turnaround is
// optional, so first crack may also follow the load directly.
var markFrom = map[Phase][]State{
	PhaseTurnaround:       {StateLoaded, StateAwaitingTurnaround},
	PhaseFirstCrackStart:  {StateLoaded, StateAwaitingTurnaround, StateAwaitingFirstCrackStart},
	PhaseFirstCrackEnd:    {StateInFirstCrack},
	PhaseSecondCrackStart: {StateAwaitingSecondCrackOrDrop},
}

var markTo = map[Phase]State{
	PhaseTurnaround:       StateAwaitingFirstCrackStart,
	PhaseFirstCrackStart:  StateInFirstCrack,
	PhaseFirstCrackEnd:    StateAwaitingSecondCrackOrDrop,
	PhaseSecondCrackStart: StateInSecondCrack,
}

// Session is the state of the roast in progress. It is owned by a single
// goroutine; hand other goroutines an Anchor or a View instead.
type Session struct {
	category Category
	state    State
	start    time.Time
	loading  Reading
	marks    map[Phase]Mark
	dropTemp NullFloat
}

// NewSession creates a session in StateNotStarted.
func NewSession() *Session {
	return &Session{
		state: StateNotStarted,
		marks: make(map[Phase]Mark),
	}
}

// Begin stamps the load instant.
func (s *Session) Begin(cat Category, at time.Time) error {
	if s.state != StateNotStarted {
		return &TransitionError{Op: "begin", State: s.state, Err: ErrAlreadyStarted}
	}
	s.category = cat
	s.start = at
	s.state = StateLoaded
	return nil
}

// Load records the charge temperature taken at the load control point.
func (s *Session) Load(r Reading) error {
	if s.state != StateLoaded {
		return &TransitionError{Op: "load", State: s.state, Err: s.orderErr()}
	}
	s.loading = r
	s.state = StateAwaitingTurnaround
	return nil
}

// Mark stamps phase p at the given instant with the supplied readings and
// advances the state. The drop is recorded with Complete.
func (s *Session) Mark(p Phase, at time.Time, r Reading) error {
	if !stateIn(s.state, markFrom[p]) {
		return &TransitionError{Op: "mark", Phase: p, State: s.state, Err: s.orderErr()}
	}
	elapsed, err := s.stamp(at)
	if err != nil {
		return &TransitionError{Op: "mark", Phase: p, State: s.state, Err: err}
	}
	s.marks[p] = Mark{Elapsed: elapsed, Reading: r}
	s.state = markTo[p]
	return nil
}

// Complete stamps the drop and freezes the timeline.
func (s *Session) Complete(at time.Time, end Reading, dropTemp NullFloat) error {
	if s.state != StateAwaitingSecondCrackOrDrop && s.state != StateInSecondCrack {
		return &TransitionError{Op: "complete", State: s.state, Err: s.orderErr()}
	}
	elapsed, err := s.stamp(at)
	if err != nil {
		return &TransitionError{Op: "complete", State: s.state, Err: err}
	}
	s.marks[PhaseEnd] = Mark{Elapsed: elapsed, Reading: end}
	s.dropTemp = dropTemp
	s.state = StateCompleted
	return nil
}

func (s *Session) orderErr() error {
	if s.state == StateNotStarted {
		return ErrNotStarted
	}
	return ErrOutOfOrder
}

// stamp converts at to elapsed time, rejecting anything before the latest mark.
func (s *Session) stamp(at time.Time) (time.Duration, error) {
	elapsed := at.Sub(s.start)
	if elapsed < 0 {
		return 0, ErrNonMonotonic
	}
	for _, m := range s.marks {
		if elapsed < m.Elapsed {
			return 0, ErrNonMonotonic
		}
	}
	return elapsed, nil
}

func stateIn(s State, states []State) bool {
	for _, candidate := range states {
		if s == candidate {
			return true
		}
	}
	return false
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Category returns the session category.
func (s *Session) Category() Category { return s.category }

// StartedAt returns the load instant; zero before Begin.
func (s *Session) StartedAt() time.Time { return s.start }

// LoadingReading returns the charge temperature.
func (s *Session) LoadingReading() Reading { return s.loading }

// DropTemp returns the cooling tray temperature recorded at completion.
func (s *Session) DropTemp() NullFloat { return s.dropTemp }

// MarkOf returns the mark for p, if set.
func (s *Session) MarkOf(p Phase) (Mark, bool) {
	m, ok := s.marks[p]
	return m, ok
}

// Elapsed returns the time since the load; zero before Begin.
func (s *Session) Elapsed(now time.Time) time.Duration {
	if s.state == StateNotStarted {
		return 0
	}
	return now.Sub(s.start)
}

// Between returns the duration from the mark of one phase to another.
// ok is false unless both are marked.
func (s *Session) Between(from, to Phase) (d time.Duration, ok bool) {
	a, okA := s.marks[from]
	b, okB := s.marks[to]
	if !okA || !okB {
		return 0, false
	}
	return b.Elapsed - a.Elapsed, true
}

// FirstCrackDuration returns first-crack-end minus first-crack-start.
func (s *Session) FirstCrackDuration() (time.Duration, bool) {
	return s.Between(PhaseFirstCrackStart, PhaseFirstCrackEnd)
}

// Development returns the time from the end of first crack to the drop.
func (s *Session) Development() (time.Duration, bool) {
	return s.Between(PhaseFirstCrackEnd, PhaseEnd)
}

// View is a copy of the session safe to share with other goroutines.
type View struct {
	Category Category
	State    State
	Start    time.Time
	Loading  Reading
	Marks    map[Phase]Mark
	DropTemp NullFloat
}

// View returns a point-in-time copy of the session.
func (s *Session) View() View {
	marks := make(map[Phase]Mark, len(s.marks))
	for p, m := range s.marks {
		marks[p] = m
	}
	return View{
		Category: s.category,
		State:    s.state,
		Start:    s.start,
		Loading:  s.loading,
		Marks:    marks,
		DropTemp: s.dropTemp,
	}
}

// RecordMeta carries the details gathered outside the state machine.
type RecordMeta struct {
	ID          string
	RoastedAt   time.Time
	Origin      string
	BatchSize   string
	TargetLevel string
	EarlyNotes  string
	Rating      NullFloat
	Color       string
	Notes       string
}

// Record converts a completed session into a log record.
func (s *Session) Record(meta RecordMeta) (SessionRecord, error) {
	if s.state != StateCompleted {
		return SessionRecord{}, &TransitionError{Op: "record", State: s.state, Err: ErrNotCompleted}
	}
	rec := SessionRecord{
		ID:          meta.ID,
		RoastedAt:   meta.RoastedAt,
		Origin:      meta.Origin,
		Decaf:       s.category == CategoryDecaf,
		BatchSize:   meta.BatchSize,
		TargetLevel: meta.TargetLevel,
		LoadingTemp: s.loading.Temp,
		EarlyNotes:  meta.EarlyNotes,
		Phases:      make(map[Phase]PhaseData, len(s.marks)),
		DropTemp:    s.dropTemp,
		Rating:      meta.Rating,
		Color:       meta.Color,
		Notes:       meta.Notes,
	}
	for p, m := range s.marks {
		rec.Phases[p] = PhaseData{
			Time: Some(m.Elapsed.Seconds()),
			Temp: m.Reading.Temp,
			ROR:  m.Reading.ROR,
		}
	}
	return rec, nil
}
