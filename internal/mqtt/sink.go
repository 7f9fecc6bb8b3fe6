package mqtt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/roast-timer/internal/logic"
)

const (
	// AlertQueueSize bounds the alerts waiting to be published.
	AlertQueueSize = 32

	// AlertFlushTimeout bounds how long Close waits for queued alerts.
	AlertFlushTimeout = 5 * time.Second
)

// ErrAlertQueueFull is returned by Notify when the publish queue is full.
var ErrAlertQueueFull = errors.New("alert queue full")

// AlertSink publishes fired alerts as ALERT events. Publishing happens on
// a single worker goroutine so Notify never waits on the broker.
type AlertSink struct {
	publisher Publisher
	now       func() time.Time
	log       logrus.FieldLogger

	queue chan logic.Event
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewAlertSink starts the publish worker. now may be nil. Close must be
// called to flush pending alerts.
func NewAlertSink(publisher Publisher, now func() time.Time, log logrus.FieldLogger) *AlertSink {
	if now == nil {
		now = time.Now
	}
	s := &AlertSink{
		publisher: publisher,
		now:       now,
		log:       log,
		queue:     make(chan logic.Event, AlertQueueSize),
		done:      make(chan struct{}),
	}
	go s.worker()
	return s
}

func (s *AlertSink) worker() {
	defer close(s.done)
	for ev := range s.queue {
		if err := s.publisher.Publish(ev); err != nil {
			s.log.WithError(err).WithField("message", ev.Message).Warn("mqtt: publish alert failed")
		}
	}
}

// Notify queues the alert for publishing. ctx is unused.
func (s *AlertSink) Notify(_ context.Context, a logic.Alert) error {
	ev := logic.Event{
		Timestamp: s.now(),
		Type:      logic.EventAlert,
		Category:  a.Category,
		State:     a.State,
		Elapsed:   a.Elapsed,
		Message:   a.Threshold.Message,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("alert sink closed")
	}
	select {
	case s.queue <- ev:
		return nil
	default:
		return ErrAlertQueueFull
	}
}

// Close stops accepting alerts and waits up to AlertFlushTimeout for queued
// ones to be published. Safe to call more than once.
func (s *AlertSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	timer := time.NewTimer(AlertFlushTimeout)
	defer timer.Stop()
	select {
	case <-s.done:
	case <-timer.C:
		s.log.WithField("pending", len(s.queue)).Warn("mqtt: gave up flushing alerts")
	}
}
