package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// ReadLines scans r in the background and sends each line, trimmed of
// surrounding space. The channel is closed at EOF or on a read error.
func ReadLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()
	return lines
}

// Trigger is one control point from the operator.
type Trigger struct {
	Text   string    // typed text; empty for Enter or a button press
	At     time.Time // when the trigger arrived
	Button bool
}

// Console reads operator input from typed lines and an optional button.
type Console struct {
	Lines  <-chan string
	Button <-chan time.Time // nil when no button is wired
	Out    *Line
	Now    func() time.Time
}

func (c *Console) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// WaitControl blocks until Enter is pressed, a line is typed or the button
// is pressed. Presses made before the call are discarded.
func (c *Console) WaitControl(ctx context.Context) (Trigger, error) {
	c.drainButton()
	select {
	case <-ctx.Done():
		return Trigger{}, ctx.Err()
	case line, ok := <-c.Lines:
		if !ok {
			return Trigger{}, io.EOF
		}
		return Trigger{Text: line, At: c.now()}, nil
	case at, ok := <-c.Button:
		if !ok {
			// Button watcher stopped; fall back to the keyboard.
			c.Button = nil
			return c.WaitControl(ctx)
		}
		return Trigger{At: at, Button: true}, nil
	}
}

func (c *Console) drainButton() {
	for {
		select {
		case _, ok := <-c.Button:
			if !ok {
				c.Button = nil
				return
			}
		default:
			return
		}
	}
}

// Ask prints prompt and waits for a typed answer.
func (c *Console) Ask(ctx context.Context, prompt string) (string, error) {
	fmt.Fprint(c.Out, prompt)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-c.Lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}
