package logic

import "time"

// ButtonState tracks debounce state for a single push-button input.
type ButtonState struct {
	// Current stable (debounced) state
	Stable bool
	// Pending state during debounce
	Pending bool
	// Whether a pending state is being observed
	HasPending bool
	// Time when pending state was first observed
	PendingSince time.Time
	// Whether we have established a baseline
	Baselined bool
}

// Debouncer turns raw button samples into debounced presses.
type Debouncer struct {
	window  time.Duration
	button  ButtonState
	presses int
}

// NewDebouncer creates a debouncer that requires a level to hold for window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Process takes a new sample and reports whether it completes a press.
// No press is reported until a baseline is established, so a button held
// at startup does not count until it is released and pressed again.
func (d *Debouncer) Process(pressed bool, now time.Time) bool {
	b := &d.button

	if !b.Baselined {
		if !b.HasPending || b.Pending != pressed {
			// Start observing, or restart after a change during baseline
			b.Pending = pressed
			b.HasPending = true
			b.PendingSince = now
			return false
		}
		if now.Sub(b.PendingSince) >= d.window {
			b.Stable = pressed
			b.Baselined = true
			b.HasPending = false
		}
		return false
	}

	if pressed == b.Stable {
		// No change from stable state, clear any pending
		b.HasPending = false
		return false
	}

	if !b.HasPending || b.Pending != pressed {
		b.Pending = pressed
		b.HasPending = true
		b.PendingSince = now
		return false
	}

	if now.Sub(b.PendingSince) < d.window {
		return false
	}

	b.Stable = pressed
	b.HasPending = false
	if pressed {
		d.presses++
		return true
	}
	return false
}

// IsBaselined returns whether the debouncer has established a baseline.
func (d *Debouncer) IsBaselined() bool {
	return d.button.Baselined
}

// Presses returns the number of presses reported since creation.
func (d *Debouncer) Presses() int {
	return d.presses
}
