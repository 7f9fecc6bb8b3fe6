package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/sweeney/roast-timer/internal/logic"
)

func TestFormatPayload(t *testing.T) {
	event := logic.Event{
		Timestamp: time.Date(2026, 1, 3, 12, 34, 56, 0, time.UTC),
		Type:      logic.EventMark,
		Category:  logic.CategoryRegular,
		State:     logic.StateInFirstCrack,
		Phase:     logic.PhaseFirstCrackStart,
		Elapsed:   440 * time.Second,
		Reading:   logic.Reading{Temp: logic.Some(385), ROR: logic.Some(12.5)},
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"roast":{"timestamp":"2026-01-03T12:34:56Z","event":"MARK","category":"REGULAR","state":"IN_FIRST_CRACK","phase":"FIRST_CRACK_START","elapsed":"07:20","seconds":440,"temp":385,"ror":12.5}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatPayloadOmitsAbsentReadings(t *testing.T) {
	event := logic.Event{
		Timestamp: time.Date(2026, 1, 3, 12, 0, 0, 0, time.UTC),
		Type:      logic.EventAlert,
		Category:  logic.CategoryDecaf,
		State:     logic.StateAwaitingFirstCrackStart,
		Elapsed:   4 * time.Minute,
		Message:   "04:00 - Yellowing phase checkpoint",
	}
	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	roast := parsed["roast"]
	for _, key := range []string{"temp", "ror", "phase"} {
		if _, ok := roast[key]; ok {
			t.Errorf("expected %q omitted, got %v", key, roast[key])
		}
	}
	if roast["message"] != "04:00 - Yellowing phase checkpoint" {
		t.Errorf("unexpected message %v", roast["message"])
	}
}

func TestFormatPayloadAllEventTypes(t *testing.T) {
	for _, typ := range []logic.EventType{logic.EventBegin, logic.EventMark, logic.EventAlert, logic.EventComplete} {
		payload, err := FormatPayload(logic.Event{Type: typ, Timestamp: time.Now()})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", typ, err)
		}
		var parsed Payload
		if err := json.Unmarshal(payload, &parsed); err != nil {
			t.Fatalf("%s: invalid JSON: %v", typ, err)
		}
		if parsed.Roast.Event != string(typ) {
			t.Errorf("expected event %s, got %s", typ, parsed.Roast.Event)
		}
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("EST", -5*60*60)
	event := logic.Event{Timestamp: time.Date(2026, 1, 3, 7, 0, 0, 0, loc), Type: logic.EventBegin}
	payload, _ := FormatPayload(event)

	var parsed Payload
	json.Unmarshal(payload, &parsed)
	if parsed.Roast.Timestamp != "2026-01-03T12:00:00Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.Roast.Timestamp)
	}
}

func TestTopics(t *testing.T) {
	if Topic != "kitchen/roaster/events" {
		t.Errorf("unexpected topic: %s", Topic)
	}
	if TopicSystem != "kitchen/roaster/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadStartupOmitsReason(t *testing.T) {
	payload, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "STARTUP",
	})
	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"STARTUP"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()
	event := logic.Event{Type: logic.EventBegin, Timestamp: time.Now(), Category: logic.CategoryRegular}

	if err := f.Publish(event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Events()) != 1 || len(f.Payloads()) != 1 {
		t.Fatalf("expected 1 event and payload, got %d and %d", len(f.Events()), len(f.Payloads()))
	}
	if f.Events()[0].Type != logic.EventBegin {
		t.Errorf("expected BEGIN, got %s", f.Events()[0].Type)
	}
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")
	f.PublishSystemError = errors.New("broker down")

	if err := f.Publish(logic.Event{}); err == nil {
		t.Error("expected publish error")
	}
	if err := f.PublishSystem(SystemEvent{}); err == nil {
		t.Error("expected system publish error")
	}
	if len(f.Events()) != 0 || len(f.SystemEvents()) != 0 {
		t.Error("failed publishes must not be recorded")
	}
}

func TestFakePublisherResetAndClose(t *testing.T) {
	f := NewFakePublisher()
	f.Publish(logic.Event{Type: logic.EventMark})
	f.PublishSystem(SystemEvent{Event: "STARTUP"})
	f.Close()
	f.Connected = true
	if !f.Closed() || !f.IsConnected() {
		t.Error("expected closed and connected")
	}

	f.Reset()
	if len(f.Events()) != 0 || len(f.SystemEvents()) != 0 || f.Closed() || f.IsConnected() {
		t.Error("reset did not clear state")
	}
}

func TestFakePublisherConcurrentUse(t *testing.T) {
	f := NewFakePublisher()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Publish(logic.Event{Type: logic.EventAlert})
		}()
	}
	wg.Wait()
	if len(f.Events()) != 10 {
		t.Errorf("expected 10 events, got %d", len(f.Events()))
	}
}

func TestAlertSinkPublishesAlertEvent(t *testing.T) {
	f := NewFakePublisher()
	now := time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC)
	log, _ := test.NewNullLogger()
	sink := NewAlertSink(f, func() time.Time { return now }, log)

	alert := logic.Alert{
		Threshold: logic.Threshold{At: 5 * time.Minute, Message: "05:00 - Yellowing should be complete", Beeps: 2},
		Elapsed:   5*time.Minute + 100*time.Millisecond,
		Category:  logic.CategoryRegular,
		State:     logic.StateAwaitingFirstCrackStart,
	}
	if err := sink.Notify(context.Background(), alert); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sink.Close()

	events := f.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Type != logic.EventAlert || ev.State != logic.StateAwaitingFirstCrackStart || !ev.Timestamp.Equal(now) {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.Message != alert.Threshold.Message {
		t.Errorf("expected message %q, got %q", alert.Threshold.Message, ev.Message)
	}
}

func TestAlertSinkKeepsOrder(t *testing.T) {
	f := NewFakePublisher()
	log, _ := test.NewNullLogger()
	sink := NewAlertSink(f, nil, log)
	for _, msg := range []string{"a", "b", "c"} {
		if err := sink.Notify(context.Background(), logic.Alert{Threshold: logic.Threshold{Message: msg}}); err != nil {
			t.Fatalf("notify %s: %v", msg, err)
		}
	}
	sink.Close()

	events := f.Events()
	if len(events) != 3 || events[0].Message != "a" || events[2].Message != "c" {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestAlertSinkLogsPublishError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")
	log, hook := test.NewNullLogger()
	sink := NewAlertSink(f, nil, log)
	if err := sink.Notify(context.Background(), logic.Alert{}); err != nil {
		t.Fatalf("queueing should not fail: %v", err)
	}
	sink.Close()

	if len(hook.Entries) != 1 || hook.LastEntry().Level != logrus.WarnLevel {
		t.Errorf("expected one warning, got %+v", hook.Entries)
	}
}

// stalledPublisher blocks every Publish until release is closed.
type stalledPublisher struct {
	*FakePublisher
	release chan struct{}
}

func (p *stalledPublisher) Publish(ev logic.Event) error {
	<-p.release
	return p.FakePublisher.Publish(ev)
}

func TestAlertSinkDoesNotWaitOnBroker(t *testing.T) {
	pub := &stalledPublisher{FakePublisher: NewFakePublisher(), release: make(chan struct{})}
	log, _ := test.NewNullLogger()
	sink := NewAlertSink(pub, nil, log)

	// The worker holds one event; the queue takes AlertQueueSize more.
	start := time.Now()
	var full int
	for i := 0; i < AlertQueueSize+5; i++ {
		if err := sink.Notify(context.Background(), logic.Alert{}); errors.Is(err, ErrAlertQueueFull) {
			full++
		} else if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if took := time.Since(start); took > time.Second {
		t.Errorf("Notify blocked for %v", took)
	}
	if full == 0 {
		t.Error("expected some alerts to be rejected once the queue filled")
	}

	close(pub.release)
	sink.Close()
	if got := len(pub.Events()); got != AlertQueueSize+5-full {
		t.Errorf("expected %d published, got %d", AlertQueueSize+5-full, got)
	}
	if err := sink.Notify(context.Background(), logic.Alert{}); err == nil {
		t.Error("expected error after Close")
	}
}

func TestPublishersImplementInterfaces(t *testing.T) {
	var _ Publisher = (*FakePublisher)(nil)
	var _ Publisher = (*RealPublisher)(nil)
	var _ ConnectionStatus = (*FakePublisher)(nil)
	var _ ConnectionStatus = (*RealPublisher)(nil)
}
