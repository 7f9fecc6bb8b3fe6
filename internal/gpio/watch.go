package gpio

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/roast-timer/internal/logic"
)

// Watch polls reader every poll interval and sends the time of each
// debounced press. The channel is closed when ctx is done. Presses are
// dropped, not queued, when nobody is receiving.
func Watch(ctx context.Context, reader Reader, poll, debounce time.Duration, log logrus.FieldLogger) <-chan time.Time {
	return watch(ctx, reader, debounce, log, time.Now, func() (<-chan time.Time, func()) {
		t := time.NewTicker(poll)
		return t.C, t.Stop
	})
}

func watch(ctx context.Context, reader Reader, debounce time.Duration, log logrus.FieldLogger,
	now func() time.Time, ticker func() (<-chan time.Time, func())) <-chan time.Time {

	presses := make(chan time.Time, 1)
	go func() {
		defer close(presses)
		tick, stop := ticker()
		defer stop()

		d := logic.NewDebouncer(debounce)
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick:
			}

			pressed, err := reader.Read()
			if err != nil {
				log.WithError(err).Warn("gpio: button read failed")
				continue
			}
			ts := now()
			if !d.Process(pressed, ts) {
				continue
			}
			log.WithField("presses", d.Presses()).Debug("gpio: button pressed")
			select {
			case presses <- ts:
			default:
			}
		}
	}()
	return presses
}
