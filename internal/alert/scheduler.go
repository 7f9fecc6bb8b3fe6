package alert

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/roast-timer/internal/logic"
)

// Defaults for Scheduler fields left zero.
const (
	DefaultCadence     = 100 * time.Millisecond
	DefaultHold        = 3 * time.Second
	DefaultJoinTimeout = 500 * time.Millisecond
)

// Display is the shared status line the scheduler renders to.
type Display interface {
	// Show renders elapsed time, an optional phase timer and an optional
	// alert message, replacing whatever the line showed before.
	Show(elapsed time.Duration, label, message string)

	// Clear blanks the line.
	Clear()
}

// Interval is one wait between two control points.
type Interval struct {
	Anchor     logic.Anchor
	Milestones *logic.Milestones
}

// Scheduler renders elapsed time and fires alerts during an Interval.
type Scheduler struct {
	Display     Display
	Sink        Sink
	Log         logrus.FieldLogger
	Cadence     time.Duration // render period
	Hold        time.Duration // how long an alert message stays on the line
	JoinTimeout time.Duration // bound on waiting for the loop in Stop

	// Now and Tick are injectable for tests.
	Now  func() time.Time
	Tick func(d time.Duration) (<-chan time.Time, func())
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) ticker() (<-chan time.Time, func()) {
	d := s.Cadence
	if d <= 0 {
		d = DefaultCadence
	}
	if s.Tick != nil {
		return s.Tick(d)
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Run is a started interval.
type Run struct {
	display Display
	log     logrus.FieldLogger
	timeout time.Duration

	stop chan struct{}
	done chan struct{}
	once sync.Once

	// mu guards closed and every write to the display; never held across
	// a sink call
	mu      sync.Mutex
	closed  bool
	fired   int
	reached time.Duration
}

// Start launches the render loop for iv. Callers must call Stop on the
// returned Run before starting the next interval.
func (s *Scheduler) Start(ctx context.Context, iv Interval) *Run {
	timeout := s.JoinTimeout
	if timeout <= 0 {
		timeout = DefaultJoinTimeout
	}
	r := &Run{
		display: s.Display,
		log:     s.Log,
		timeout: timeout,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.loop(ctx, iv, r)
	return r
}

func (s *Scheduler) loop(ctx context.Context, iv Interval, r *Run) {
	defer close(r.done)

	tick, stopTick := s.ticker()
	defer stopTick()

	hold := s.Hold
	if hold <= 0 {
		hold = DefaultHold
	}

	var last time.Duration
	var message string
	var messageUntil time.Time

	for {
		now := s.now()
		elapsed := iv.Anchor.Elapsed(now)
		// Renders never go backwards, even if the clock does.
		if elapsed < last {
			elapsed = last
		}
		last = elapsed

		var due []logic.Alert
		ok := r.locked(func() {
			for _, th := range iv.Milestones.Due(elapsed) {
				due = append(due, logic.Alert{Threshold: th, Elapsed: elapsed, Category: iv.Anchor.Category, State: iv.Anchor.State})
				r.fired++
				message, messageUntil = th.Message, now.Add(hold)
			}
			r.reached = elapsed
			if message != "" && !now.Before(messageUntil) {
				message = ""
			}
			s.Display.Show(elapsed, iv.Anchor.Label(elapsed), message)
		})
		if !ok {
			return
		}

		// Sinks are called outside the gate; Stop must not wait on them.
		for _, a := range due {
			if err := s.Sink.Notify(ctx, a); err != nil {
				s.Log.WithError(err).WithField("message", a.Threshold.Message).Warn("alert: notify failed")
			}
			s.Log.WithFields(logrus.Fields{"elapsed": logic.FormatElapsed(a.Elapsed), "message": a.Threshold.Message}).Info("alert: fired")
		}

		select {
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		case <-tick:
		}
	}
}

// locked runs fn under the display gate unless the run has been stopped.
func (r *Run) locked(fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	fn()
	return true
}

// Stop closes the gate so nothing renders or fires afterwards, waits at
// most the join timeout for the loop to exit, and clears the line. A sink
// call already in flight may finish after Stop returns. Safe to call more
// than once.
func (r *Run) Stop() {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		close(r.stop)
		timer := time.NewTimer(r.timeout)
		defer timer.Stop()
		select {
		case <-r.done:
		case <-timer.C:
			r.log.WithField("timeout", r.timeout).Warn("alert: render loop did not exit in time")
		}
		r.display.Clear()
	})
}

// Done is closed when the render loop has exited.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Fired returns the number of alerts fired so far.
func (r *Run) Fired() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fired
}

// Reached returns the latest elapsed time checked for due alerts. After
// Stop it is the point the next interval should arm from.
func (r *Run) Reached() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reached
}
