package status

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/roast-timer/internal/logic"
)

var boot = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func inFirstCrack() logic.View {
	return logic.View{
		Category: logic.CategoryRegular,
		State:    logic.StateInFirstCrack,
		Start:    boot.Add(time.Minute),
		Loading:  logic.Reading{Temp: logic.Some(200)},
		Marks: map[logic.Phase]logic.Mark{
			logic.PhaseTurnaround:      {Elapsed: 90 * time.Second, Reading: logic.Reading{Temp: logic.Some(95)}},
			logic.PhaseFirstCrackStart: {Elapsed: 440 * time.Second, Reading: logic.Reading{Temp: logic.Some(385), ROR: logic.Some(12.5)}},
		},
	}
}

func TestNewTracker(t *testing.T) {
	cfg := Config{LogPath: "roast_log.csv", Broker: "tcp://localhost:1883", HTTPAddr: ":8080", ButtonPin: -1}
	tr := NewTracker(boot, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(boot) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, boot)
	}
	if snap.Config.HTTPAddr != ":8080" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":8080")
	}
	if snap.Roast.State != logic.StateNotStarted {
		t.Errorf("expected NOT_STARTED initially, got %q", snap.Roast.State)
	}
	if snap.Active() {
		t.Error("expected no active roast initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestSetRoastAndElapsed(t *testing.T) {
	tr := NewTracker(boot, Config{})
	tr.SetClock(fixedClock(boot.Add(9 * time.Minute)))
	tr.SetRoast(inFirstCrack())

	snap := tr.Snapshot()
	if !snap.Active() {
		t.Fatal("expected active roast")
	}
	if got := snap.Elapsed(); got != 8*time.Minute {
		t.Errorf("Elapsed: got %v, want 8m", got)
	}
	if len(snap.Roast.Marks) != 2 {
		t.Errorf("expected 2 marks, got %d", len(snap.Roast.Marks))
	}
}

func TestCompletedElapsedIsFrozen(t *testing.T) {
	tr := NewTracker(boot, Config{})
	tr.SetClock(fixedClock(boot.Add(time.Hour)))
	v := inFirstCrack()
	v.State = logic.StateCompleted
	v.Marks[logic.PhaseEnd] = logic.Mark{Elapsed: 630 * time.Second}
	tr.SetRoast(v)
	tr.SetRoast(v)

	snap := tr.Snapshot()
	if got := snap.Elapsed(); got != 630*time.Second {
		t.Errorf("Elapsed: got %v, want 10m30s", got)
	}
	if snap.Completed != 1 {
		t.Errorf("Completed: got %d, want 1", snap.Completed)
	}
}

func TestNotifyRecordsAlert(t *testing.T) {
	tr := NewTracker(boot, Config{})
	a := logic.Alert{Threshold: logic.Threshold{At: 5 * time.Minute, Message: "05:00 - Yellowing should be complete"}, Elapsed: 5 * time.Minute}

	if err := tr.Notify(context.Background(), a); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	snap := tr.Snapshot()
	if snap.LastAlert == nil || snap.LastAlert.Threshold.Message != a.Threshold.Message {
		t.Errorf("LastAlert: got %+v", snap.LastAlert)
	}
	if snap.AlertsFired != 1 {
		t.Errorf("AlertsFired: got %d, want 1", snap.AlertsFired)
	}

	// A new roast clears the previous one's alerts.
	tr.SetRoast(logic.View{State: logic.StateLoaded, Start: boot})
	snap = tr.Snapshot()
	if snap.LastAlert != nil || snap.AlertsFired != 0 {
		t.Errorf("expected alerts reset, got %+v / %d", snap.LastAlert, snap.AlertsFired)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(boot, Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}
	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	tr := NewTracker(boot, Config{})
	tr.SetClock(fixedClock(boot.Add(90 * time.Second)))

	if got := tr.Snapshot().Uptime(); got != 90*time.Second {
		t.Errorf("Uptime: got %v, want 90s", got)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(boot, Config{})
	tr.SetRoast(inFirstCrack())

	snap := tr.Snapshot()
	delete(snap.Roast.Marks, logic.PhaseTurnaround)

	if _, ok := tr.Snapshot().Roast.Marks[logic.PhaseTurnaround]; !ok {
		t.Error("mutating a snapshot changed the tracker")
	}
}

func TestFormatJSON(t *testing.T) {
	tr := NewTracker(boot, Config{Broker: "tcp://broker:1883", Unit: "C", ButtonPin: 17})
	tr.SetClock(fixedClock(boot.Add(9 * time.Minute)))
	tr.SetMQTTConnected(true)
	tr.SetRoast(inFirstCrack())
	tr.SetEstimates(logic.EstimateSet{
		Category: logic.CategoryRegular,
		Count:    3,
		Phases: map[logic.Phase]logic.PhaseEstimate{
			logic.PhaseFirstCrackStart: {Time: logic.Some(444), Temp: logic.Some(386)},
		},
	})

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(tr.Snapshot()), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := parsed.Status
	if s.State != "IN_FIRST_CRACK" {
		t.Errorf("state: got %q", s.State)
	}
	if s.Category != "REGULAR" {
		t.Errorf("category: got %q", s.Category)
	}
	if s.Elapsed != "08:00" || s.ElapsedSeconds != 480 {
		t.Errorf("elapsed: got %q / %v", s.Elapsed, s.ElapsedSeconds)
	}
	if len(s.Marks) != 2 || s.Marks[0].Phase != "TURNAROUND" || s.Marks[1].Time != "07:20" {
		t.Errorf("marks: got %+v", s.Marks)
	}
	if s.Marks[0].ROR != nil {
		t.Error("expected absent ROR to be omitted")
	}
	if s.Estimates == nil || s.Estimates.Count != 3 || len(s.Estimates.Phases) != len(logic.TrackedPhases) {
		t.Fatalf("estimates: got %+v", s.Estimates)
	}
	if fc := s.Estimates.Phases[1]; fc.Seconds == nil || *fc.Seconds != 444 {
		t.Errorf("FC estimate: got %+v", fc)
	}
	if s.Estimates.Phases[0].Seconds != nil {
		t.Error("expected unknown estimate to be omitted")
	}
	if !s.MQTT.Connected || s.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("mqtt: got %+v", s.MQTT)
	}
	if s.UptimeSeconds != 540 {
		t.Errorf("uptime: got %d, want 540", s.UptimeSeconds)
	}
	if s.Config.ButtonPin != 17 {
		t.Errorf("button pin: got %d", s.Config.ButtonPin)
	}
	if s.Event != "" || s.Reason != "" {
		t.Error("web JSON should not carry event or reason")
	}
}

func TestFormatJSONIdle(t *testing.T) {
	snap := Snapshot{StartTime: boot, Now: boot}

	out := string(FormatJSON(snap))
	if !strings.Contains(out, `"state": "NOT_STARTED"`) {
		t.Errorf("expected NOT_STARTED state, got %s", out)
	}
	if !strings.Contains(out, `"marks": []`) {
		t.Errorf("expected empty marks array, got %s", out)
	}
	if strings.Contains(out, "estimates") || strings.Contains(out, "last_alert") {
		t.Errorf("expected optional sections omitted, got %s", out)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	tr := NewTracker(boot, Config{})
	tr.SetClock(fixedClock(boot.Add(time.Minute)))

	var parsed StatusJSON
	if err := json.Unmarshal(FormatStatusEvent(tr.Snapshot(), "SHUTDOWN", "SIGTERM"), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("event: got %q", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("reason: got %q", parsed.Status.Reason)
	}
	if parsed.Status.Timestamp != "2026-01-01T12:01:00Z" {
		t.Errorf("timestamp: got %q", parsed.Status.Timestamp)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	out := string(FormatStatusEvent(Snapshot{StartTime: boot, Now: boot}, "STARTUP", ""))
	if strings.Contains(out, "reason") {
		t.Errorf("expected reason omitted, got %s", out)
	}
	if !strings.Contains(out, `"event":"STARTUP"`) {
		t.Errorf("expected STARTUP event, got %s", out)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			tr.SetRoast(inFirstCrack())
		}()
		go func() {
			defer wg.Done()
			_ = tr.Notify(context.Background(), logic.Alert{Elapsed: time.Minute})
		}()
		go func() {
			defer wg.Done()
			_ = FormatJSON(tr.Snapshot())
		}()
	}
	wg.Wait()
}
