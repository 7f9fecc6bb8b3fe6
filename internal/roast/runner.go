// Package roast drives one interactive roast session from load to log entry.
package roast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/roast-timer/internal/alert"
	"github.com/sweeney/roast-timer/internal/console"
	"github.com/sweeney/roast-timer/internal/logic"
	"github.com/sweeney/roast-timer/internal/mqtt"
	"github.com/sweeney/roast-timer/internal/status"
	"github.com/sweeney/roast-timer/internal/store"
)

// Operator supplies control points and typed answers.
type Operator interface {
	WaitControl(ctx context.Context) (console.Trigger, error)
	Ask(ctx context.Context, prompt string) (string, error)
}

// Meta holds the bean details recorded with every roast.
type Meta struct {
	Origin      string
	BatchSize   string
	TargetLevel string
}

// Runner runs roast sessions. Publisher, Tracker and Bell are optional.
type Runner struct {
	Operator  Operator
	Out       io.Writer
	Report    *console.Report
	Store     store.Store
	Publisher mqtt.Publisher
	Scheduler *alert.Scheduler
	Tracker   *status.Tracker
	Bell      io.Writer
	Log       logrus.FieldLogger
	Unit      string
	Meta      Meta

	// Category skips the decaf question when set.
	Category logic.Category

	Now   func() time.Time
	NewID func() string
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}

func (r *Runner) printf(format string, args ...interface{}) {
	fmt.Fprintf(r.Out, format, args...)
}

func (r *Runner) beep(ctx context.Context, n int) {
	if r.Bell == nil {
		return
	}
	_ = alert.Bell{W: r.Bell}.Notify(ctx, logic.Alert{Threshold: logic.Threshold{Beeps: n}})
}

func (r *Runner) publish(s *logic.Session, typ logic.EventType, p logic.Phase, reading logic.Reading) {
	if r.Tracker != nil {
		r.Tracker.SetRoast(s.View())
	}
	if r.Publisher == nil {
		return
	}
	ev := logic.Event{
		Timestamp: r.now(),
		Type:      typ,
		Category:  s.Category(),
		State:     s.State(),
		Phase:     p,
		Reading:   reading,
	}
	if m, ok := s.MarkOf(p); ok {
		ev.Elapsed = m.Elapsed
	}
	if err := r.Publisher.Publish(ev); err != nil {
		r.Log.WithError(err).WithField("event", typ).Warn("roast: publish failed")
	}
}

// History loads the log and computes estimates for cat. An unreadable log
// degrades to the no-data estimate set.
func (r *Runner) History(ctx context.Context, cat logic.Category) logic.EstimateSet {
	records, err := r.Store.All(ctx)
	if err != nil {
		r.Log.WithError(err).Warn("roast: history unavailable, using default alerts")
		return logic.NoData(cat)
	}
	return logic.Estimate(records, cat)
}

// Run performs one complete session. The roast is only logged once every
// control point has been recorded; an error before that discards it.
func (r *Runner) Run(ctx context.Context) (logic.SessionRecord, error) {
	r.printf("\n=== COFFEE ROAST SESSION ===\n\n")
	r.printf("PRE-ROAST CHECKLIST:\n")
	r.printf("   [ ] Empty the chaff collector\n")
	r.printf("   [ ] Turn OFF cooling mode\n")
	r.printf("   [ ] Close the roast chamber\n\n")
	r.beep(ctx, 1)
	r.printf("Press ENTER when ready to continue...\n")
	if _, err := r.Operator.WaitControl(ctx); err != nil {
		return logic.SessionRecord{}, fmt.Errorf("wait for checklist: %w", err)
	}

	cat := r.Category
	if cat == "" {
		answer, err := r.Operator.Ask(ctx, "Decaf? (y/n, default: n): ")
		if err != nil {
			return logic.SessionRecord{}, fmt.Errorf("ask category: %w", err)
		}
		cat = logic.CategoryOf(strings.EqualFold(answer, "y"))
	}
	r.printf("\n%s %s - %s lb\nTarget: %s\n\n", r.Meta.Origin, cat, r.Meta.BatchSize, r.Meta.TargetLevel)

	est := r.History(ctx, cat)
	r.Report.Estimates(est)
	if r.Tracker != nil {
		r.Tracker.SetEstimates(est)
	}

	s := logic.NewSession()
	r.printf("\nPress ENTER when you LOAD THE BEANS and start the roast...\n")
	trig, err := r.Operator.WaitControl(ctx)
	if err != nil {
		return logic.SessionRecord{}, fmt.Errorf("wait for load: %w", err)
	}
	if err := s.Begin(cat, r.stamp(trig)); err != nil {
		return logic.SessionRecord{}, err
	}
	r.beep(ctx, 1)
	r.printf("\nROAST STARTED!\n\n")
	r.Log.WithField("category", cat).Info("roast: started")
	r.publish(s, logic.EventBegin, "", logic.Reading{})

	loading, err := r.askReading(ctx, "Loading temp")
	if err != nil {
		return logic.SessionRecord{}, err
	}
	if err := s.Load(loading); err != nil {
		return logic.SessionRecord{}, err
	}
	if r.Tracker != nil {
		r.Tracker.SetRoast(s.View())
	}

	var earlyNotes string
	var from time.Duration
	for s.State().Waiting() {
		r.printf("%s\n", controlPrompt(s.State()))
		iv := alert.Interval{
			Anchor:     s.Anchor(),
			Milestones: logic.Arm(logic.Thresholds(s.State(), cat, est), from),
		}
		run := r.Scheduler.Start(ctx, iv)
		trig, err := r.Operator.WaitControl(ctx)
		run.Stop()
		if err != nil {
			return logic.SessionRecord{}, fmt.Errorf("wait for control point: %w", err)
		}
		if reached := run.Reached(); reached > from {
			from = reached
		}

		at := r.stamp(trig)
		p := classify(s.State(), trig.Text)
		r.printf("\n%s at %s\n", p.Label(), logic.FormatElapsed(s.Elapsed(at)))

		if p == logic.PhaseEnd {
			var te *logic.TransitionError
			if err := r.drop(ctx, s, at); errors.As(err, &te) {
				r.rejected(err)
				continue
			} else if err != nil {
				return logic.SessionRecord{}, err
			}
			break
		}

		reading, err := r.askReading(ctx, "Temperature at "+p.Label())
		if err != nil {
			return logic.SessionRecord{}, err
		}
		if err := s.Mark(p, at, reading); err != nil {
			r.rejected(err)
			continue
		}
		r.Log.WithFields(logrus.Fields{"phase": p, "elapsed": logic.FormatElapsed(s.Elapsed(at))}).Info("roast: marked")
		r.publish(s, logic.EventMark, p, reading)
		if m, ok := s.MarkOf(p); ok && m.Elapsed > from {
			from = m.Elapsed
		}

		if p == logic.PhaseTurnaround {
			if earlyNotes, err = r.Operator.Ask(ctx, "Early notes (optional): "); err != nil {
				return logic.SessionRecord{}, fmt.Errorf("ask early notes: %w", err)
			}
		}
	}

	r.printf("\nROAST COMPLETE!\n")
	r.beep(ctx, 3)
	r.Report.Summary(s)

	meta, err := r.askFinish(ctx)
	if err != nil {
		return logic.SessionRecord{}, err
	}
	meta.EarlyNotes = earlyNotes
	rec, err := s.Record(meta)
	if err != nil {
		return logic.SessionRecord{}, err
	}
	if err := r.Store.Append(ctx, rec); err != nil {
		return rec, fmt.Errorf("save roast: %w", err)
	}
	r.Log.WithField("id", rec.ID).Info("roast: logged")
	r.printf("\nRoast logged successfully!\n")
	return rec, nil
}

func (r *Runner) stamp(t console.Trigger) time.Time {
	if t.At.IsZero() {
		return r.now()
	}
	return t.At
}

func (r *Runner) drop(ctx context.Context, s *logic.Session, at time.Time) error {
	end, err := r.askReading(ctx, "End temp")
	if err != nil {
		return err
	}
	answer, err := r.Operator.Ask(ctx, fmt.Sprintf("Drop/cooling tray temp (°%s, or Enter to skip): ", r.Unit))
	if err != nil {
		return fmt.Errorf("ask drop temp: %w", err)
	}
	if err := s.Complete(at, end, logic.ParseNumber(answer)); err != nil {
		return err
	}
	r.Log.WithField("elapsed", logic.FormatElapsed(s.Elapsed(at))).Info("roast: dropped")
	r.publish(s, logic.EventComplete, logic.PhaseEnd, end)
	return nil
}

func (r *Runner) askReading(ctx context.Context, what string) (logic.Reading, error) {
	answer, err := r.Operator.Ask(ctx, fmt.Sprintf("%s (°%s, temp or temp:ror): ", what, r.Unit))
	if err != nil {
		return logic.Reading{}, fmt.Errorf("ask %s: %w", strings.ToLower(what), err)
	}
	return logic.ParseReading(answer), nil
}

func (r *Runner) askFinish(ctx context.Context) (logic.RecordMeta, error) {
	meta := logic.RecordMeta{
		ID:          r.newID(),
		RoastedAt:   r.now(),
		Origin:      r.Meta.Origin,
		BatchSize:   r.Meta.BatchSize,
		TargetLevel: r.Meta.TargetLevel,
	}
	answer, err := r.Operator.Ask(ctx, "\nRoast level (1-10, 5 = ideal, Enter to skip): ")
	if err != nil {
		return meta, fmt.Errorf("ask rating: %w", err)
	}
	meta.Rating = logic.ParseNumber(answer)
	if meta.Rating.Valid && (meta.Rating.Float64 < 1 || meta.Rating.Float64 > 10) {
		r.printf("Rating %s is outside 1-10, leaving it blank\n", answer)
		meta.Rating = logic.NullFloat{}
	}
	if meta.Color, err = r.Operator.Ask(ctx, "Actual roast color/result: "); err != nil {
		return meta, fmt.Errorf("ask color: %w", err)
	}
	if meta.Notes, err = r.Operator.Ask(ctx, "Notes (weather, adjustments, observations): "); err != nil {
		return meta, fmt.Errorf("ask notes: %w", err)
	}
	return meta, nil
}

func (r *Runner) rejected(err error) {
	var te *logic.TransitionError
	if errors.As(err, &te) {
		r.printf("Not recorded: %v\n", te)
	} else {
		r.printf("Not recorded: %v\n", err)
	}
	r.Log.WithError(err).Warn("roast: control point rejected")
}

// classify maps the typed text of a control point to the phase it marks.
func classify(state logic.State, text string) logic.Phase {
	text = strings.ToLower(strings.TrimSpace(text))
	switch state {
	case logic.StateLoaded, logic.StateAwaitingTurnaround:
		if text == "f" {
			return logic.PhaseFirstCrackStart
		}
		return logic.PhaseTurnaround
	case logic.StateAwaitingFirstCrackStart:
		return logic.PhaseFirstCrackStart
	case logic.StateInFirstCrack:
		return logic.PhaseFirstCrackEnd
	case logic.StateAwaitingSecondCrackOrDrop:
		if text == "s" {
			return logic.PhaseSecondCrackStart
		}
	}
	return logic.PhaseEnd
}

func controlPrompt(state logic.State) string {
	switch state {
	case logic.StateAwaitingTurnaround:
		return "At TURNAROUND press ENTER (or type f if FIRST CRACK already started)..."
	case logic.StateAwaitingFirstCrackStart:
		return "When FIRST CRACK STARTS, press ENTER..."
	case logic.StateInFirstCrack:
		return "When FIRST CRACK ENDS, press ENTER..."
	case logic.StateAwaitingSecondCrackOrDrop:
		return "When you DROP THE BEANS press ENTER (or type s at SECOND CRACK)..."
	case logic.StateInSecondCrack:
		return "When you DROP THE BEANS, press ENTER..."
	}
	return ""
}
