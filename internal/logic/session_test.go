package logic

import (
	"errors"
	"testing"
	"time"
)

var roastStart = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time {
	return roastStart.Add(d)
}

func startedSession(t *testing.T) *Session {
	t.Helper()
	s := NewSession()
	if err := s.Begin(CategoryRegular, roastStart); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := s.Load(Reading{Temp: Some(420)}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func mustMark(t *testing.T, s *Session, p Phase, d time.Duration, r Reading) {
	t.Helper()
	if err := s.Mark(p, at(d), r); err != nil {
		t.Fatalf("Mark(%s): %v", p, err)
	}
}

func TestSessionBegin(t *testing.T) {
	s := NewSession()
	if s.State() != StateNotStarted {
		t.Errorf("expected %s, got %s", StateNotStarted, s.State())
	}
	if err := s.Begin(CategoryDecaf, roastStart); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State() != StateLoaded {
		t.Errorf("expected %s, got %s", StateLoaded, s.State())
	}
	if s.Category() != CategoryDecaf {
		t.Errorf("expected DECAF, got %s", s.Category())
	}
	if !s.StartedAt().Equal(roastStart) {
		t.Errorf("expected start %v, got %v", roastStart, s.StartedAt())
	}

	err := s.Begin(CategoryDecaf, at(time.Second))
	if !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestSessionFullSequence(t *testing.T) {
	s := startedSession(t)
	if s.State() != StateAwaitingTurnaround {
		t.Fatalf("expected %s, got %s", StateAwaitingTurnaround, s.State())
	}

	mustMark(t, s, PhaseTurnaround, 90*time.Second, ParseReading("190"))
	if s.State() != StateAwaitingFirstCrackStart {
		t.Errorf("expected %s, got %s", StateAwaitingFirstCrackStart, s.State())
	}
	mustMark(t, s, PhaseFirstCrackStart, 440*time.Second, ParseReading("385:12"))
	if s.State() != StateInFirstCrack {
		t.Errorf("expected %s, got %s", StateInFirstCrack, s.State())
	}
	mustMark(t, s, PhaseFirstCrackEnd, 520*time.Second, ParseReading("400:9"))
	if s.State() != StateAwaitingSecondCrackOrDrop {
		t.Errorf("expected %s, got %s", StateAwaitingSecondCrackOrDrop, s.State())
	}
	mustMark(t, s, PhaseSecondCrackStart, 600*time.Second, ParseReading("430"))
	if s.State() != StateInSecondCrack {
		t.Errorf("expected %s, got %s", StateInSecondCrack, s.State())
	}
	if err := s.Complete(at(630*time.Second), ParseReading("440"), Some(120)); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if s.State() != StateCompleted {
		t.Errorf("expected %s, got %s", StateCompleted, s.State())
	}

	fc, ok := s.FirstCrackDuration()
	if !ok || fc != 80*time.Second {
		t.Errorf("expected first crack 80s, got %v (ok=%v)", fc, ok)
	}
	dev, ok := s.Development()
	if !ok || dev != 110*time.Second {
		t.Errorf("expected development 110s, got %v (ok=%v)", dev, ok)
	}
	m, _ := s.MarkOf(PhaseFirstCrackStart)
	if m.Reading.ROR != Some(12) {
		t.Errorf("expected ROR 12, got %+v", m.Reading.ROR)
	}
}

func TestSessionTurnaroundOptional(t *testing.T) {
	s := startedSession(t)
	mustMark(t, s, PhaseFirstCrackStart, 440*time.Second, Reading{})
	if s.State() != StateInFirstCrack {
		t.Errorf("expected %s, got %s", StateInFirstCrack, s.State())
	}
	if _, ok := s.MarkOf(PhaseTurnaround); ok {
		t.Error("turnaround should remain unmarked")
	}
}

func TestSessionDropWithoutSecondCrack(t *testing.T) {
	s := startedSession(t)
	mustMark(t, s, PhaseFirstCrackStart, 440*time.Second, Reading{})
	mustMark(t, s, PhaseFirstCrackEnd, 500*time.Second, Reading{})
	if err := s.Complete(at(560*time.Second), Reading{Temp: Some(415)}, NullFloat{}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, ok := s.MarkOf(PhaseSecondCrackStart); ok {
		t.Error("second crack should remain unmarked")
	}
}

func TestSessionFirstCrackEndBeforeStartRejected(t *testing.T) {
	s := startedSession(t)
	mustMark(t, s, PhaseTurnaround, 90*time.Second, Reading{})

	err := s.Mark(PhaseFirstCrackEnd, at(300*time.Second), Reading{})
	if !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransitionError, got %T", err)
	}
	if te.State != StateAwaitingFirstCrackStart {
		t.Errorf("expected error state %s, got %s", StateAwaitingFirstCrackStart, te.State)
	}
	// Session stays where it was
	if s.State() != StateAwaitingFirstCrackStart {
		t.Errorf("expected %s, got %s", StateAwaitingFirstCrackStart, s.State())
	}
	if _, ok := s.MarkOf(PhaseFirstCrackEnd); ok {
		t.Error("rejected mark must not be recorded")
	}
}

func TestSessionCompleteTwiceRejected(t *testing.T) {
	s := startedSession(t)
	mustMark(t, s, PhaseFirstCrackStart, 440*time.Second, Reading{})
	mustMark(t, s, PhaseFirstCrackEnd, 500*time.Second, Reading{})
	if err := s.Complete(at(560*time.Second), Reading{}, NullFloat{}); err != nil {
		t.Fatalf("first Complete: %v", err)
	}
	err := s.Complete(at(600*time.Second), Reading{}, NullFloat{})
	if !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("expected ErrOutOfOrder, got %v", err)
	}
	end, _ := s.MarkOf(PhaseEnd)
	if end.Elapsed != 560*time.Second {
		t.Errorf("expected frozen end 560s, got %v", end.Elapsed)
	}
}

func TestSessionCompleteFromIllegalState(t *testing.T) {
	s := startedSession(t)
	if err := s.Complete(at(time.Minute), Reading{}, NullFloat{}); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("expected ErrOutOfOrder, got %v", err)
	}
	if err := NewSession().Complete(at(time.Minute), Reading{}, NullFloat{}); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
}

func TestSessionMarkBeforeBegin(t *testing.T) {
	err := NewSession().Mark(PhaseTurnaround, roastStart, Reading{})
	if !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
}

func TestSessionNonMonotonicRejected(t *testing.T) {
	s := startedSession(t)
	mustMark(t, s, PhaseTurnaround, 120*time.Second, Reading{})

	err := s.Mark(PhaseFirstCrackStart, at(100*time.Second), Reading{})
	if !errors.Is(err, ErrNonMonotonic) {
		t.Fatalf("expected ErrNonMonotonic, got %v", err)
	}
	if s.State() != StateAwaitingFirstCrackStart {
		t.Errorf("expected %s, got %s", StateAwaitingFirstCrackStart, s.State())
	}

	// Equal elapsed is allowed
	mustMark(t, s, PhaseFirstCrackStart, 120*time.Second, Reading{})
}

func TestSessionBetweenUnmarked(t *testing.T) {
	s := startedSession(t)
	if _, ok := s.Between(PhaseFirstCrackStart, PhaseFirstCrackEnd); ok {
		t.Error("expected ok=false for unmarked phases")
	}
	if _, ok := s.FirstCrackDuration(); ok {
		t.Error("expected ok=false for unmarked first crack")
	}
}

func TestSessionElapsed(t *testing.T) {
	if got := NewSession().Elapsed(at(time.Hour)); got != 0 {
		t.Errorf("expected 0 before begin, got %v", got)
	}
	s := startedSession(t)
	if got := s.Elapsed(at(75 * time.Second)); got != 75*time.Second {
		t.Errorf("expected 75s, got %v", got)
	}
}

func TestSessionViewIsCopy(t *testing.T) {
	s := startedSession(t)
	mustMark(t, s, PhaseTurnaround, 90*time.Second, Reading{})
	v := s.View()
	delete(v.Marks, PhaseTurnaround)
	if _, ok := s.MarkOf(PhaseTurnaround); !ok {
		t.Error("mutating a view changed the session")
	}
}

func TestSessionRecord(t *testing.T) {
	s := startedSession(t)
	if _, err := s.Record(RecordMeta{}); !errors.Is(err, ErrNotCompleted) {
		t.Errorf("expected ErrNotCompleted, got %v", err)
	}

	mustMark(t, s, PhaseTurnaround, 90*time.Second, ParseReading("190"))
	mustMark(t, s, PhaseFirstCrackStart, 440*time.Second, ParseReading("385:12"))
	mustMark(t, s, PhaseFirstCrackEnd, 520*time.Second, Reading{})
	if err := s.Complete(at(580*time.Second), ParseReading("425"), Some(110)); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	rec, err := s.Record(RecordMeta{ID: "abc", Origin: "Colombian", Rating: Some(6)})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.ID != "abc" || rec.Origin != "Colombian" || rec.Decaf {
		t.Errorf("unexpected metadata: %+v", rec)
	}
	if rec.LoadingTemp != Some(420) {
		t.Errorf("expected loading temp 420, got %+v", rec.LoadingTemp)
	}
	if got := rec.PhaseTime(PhaseFirstCrackStart); got != Some(440) {
		t.Errorf("expected FC start 440, got %+v", got)
	}
	if got := rec.Phases[PhaseFirstCrackStart].ROR; got != Some(12) {
		t.Errorf("expected ROR 12, got %+v", got)
	}
	if got := rec.PhaseTime(PhaseSecondCrackStart); got.Valid {
		t.Errorf("expected absent SC, got %v", got.Float64)
	}
	if got := rec.TotalMinutes(); !got.Valid || got.Float64 < 9.66 || got.Float64 > 9.67 {
		t.Errorf("expected ~9.67 minutes, got %+v", got)
	}
	if rec.DropTemp != Some(110) {
		t.Errorf("expected drop temp 110, got %+v", rec.DropTemp)
	}

	// Feeding the record back into the predictor reproduces the marks
	est := Estimate([]SessionRecord{rec}, CategoryRegular)
	if got := est.Phase(PhaseFirstCrackStart).Time; got != Some(440) {
		t.Errorf("expected estimate 440, got %+v", got)
	}
}

func TestTransitionErrorMessage(t *testing.T) {
	err := &TransitionError{Op: "mark", Phase: PhaseFirstCrackEnd, State: StateLoaded, Err: ErrOutOfOrder}
	want := "mark FIRST_CRACK_END from LOADED: out of order"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestStateWaiting(t *testing.T) {
	waiting := map[State]bool{
		StateNotStarted:                false,
		StateLoaded:                    false,
		StateAwaitingTurnaround:        true,
		StateAwaitingFirstCrackStart:   true,
		StateInFirstCrack:              true,
		StateAwaitingSecondCrackOrDrop: true,
		StateInSecondCrack:             true,
		StateCompleted:                 false,
	}
	for s, want := range waiting {
		if got := s.Waiting(); got != want {
			t.Errorf("%s: expected waiting=%v, got %v", s, want, got)
		}
	}
}
