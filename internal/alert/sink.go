// Package alert runs the live elapsed-time display and fires milestone
// alerts while the roast waits for the next control point.
package alert

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/roast-timer/internal/logic"
)

// Sink delivers a fired alert. Notify should return quickly; a failing sink
// is logged and never stops the roast.
type Sink interface {
	Notify(ctx context.Context, a logic.Alert) error
}

// Bell rings the terminal bell once per beep.
type Bell struct {
	W io.Writer
}

// Notify writes one BEL character per beep.
func (b Bell) Notify(_ context.Context, a logic.Alert) error {
	n := a.Threshold.Beeps
	if n < 1 {
		n = 1
	}
	if _, err := io.WriteString(b.W, strings.Repeat("\a", n)); err != nil {
		return fmt.Errorf("ring bell: %w", err)
	}
	return nil
}

// Command plays a sound by running an external program once per beep,
// e.g. "afplay /System/Library/Sounds/Glass.aiff". The command runs in the
// background; Notify does not wait for it.
type Command struct {
	Name string
	Args []string
	Log  logrus.FieldLogger
}

// ParseCommand splits a configured command line on whitespace.
// An empty line yields nil.
func ParseCommand(line string, log logrus.FieldLogger) *Command {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	return &Command{Name: fields[0], Args: fields[1:], Log: log}
}

// Notify starts the command.
func (c *Command) Notify(ctx context.Context, a logic.Alert) error {
	n := a.Threshold.Beeps
	if n < 1 {
		n = 1
	}
	go func() {
		for i := 0; i < n; i++ {
			if err := exec.CommandContext(ctx, c.Name, c.Args...).Run(); err != nil {
				c.Log.WithError(err).WithField("command", c.Name).Warn("alert: sound command failed")
				return
			}
		}
	}()
	return nil
}

// Multi fans an alert out to several sinks. Errors are logged, not returned.
type Multi struct {
	Sinks []Sink
	Log   logrus.FieldLogger
}

// Notify calls every sink in order.
func (m Multi) Notify(ctx context.Context, a logic.Alert) error {
	for _, s := range m.Sinks {
		if err := s.Notify(ctx, a); err != nil {
			m.Log.WithError(err).WithField("message", a.Threshold.Message).Warn("alert: sink failed")
		}
	}
	return nil
}

// FakeSink records alerts for test assertions.
type FakeSink struct {
	mu     sync.Mutex
	alerts []logic.Alert

	// Err, if set, is returned by Notify after recording.
	Err error
}

// Notify records the alert.
func (f *FakeSink) Notify(_ context.Context, a logic.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	return f.Err
}

// Alerts returns a copy of the recorded alerts.
func (f *FakeSink) Alerts() []logic.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logic.Alert(nil), f.alerts...)
}
