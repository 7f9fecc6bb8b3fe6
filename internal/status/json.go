package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/roast-timer/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string         `json:"event,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	State          string         `json:"state"`
	Category       string         `json:"category,omitempty"`
	Elapsed        string         `json:"elapsed"`
	ElapsedSeconds float64        `json:"elapsed_seconds"`
	Marks          []MarkJSON     `json:"marks"`
	Estimates      *EstimatesJSON `json:"estimates,omitempty"`
	LastAlert      *AlertJSON     `json:"last_alert,omitempty"`
	AlertsFired    int            `json:"alerts_fired"`
	Completed      int            `json:"roasts_completed"`
	UptimeSeconds  int64          `json:"uptime_seconds"`
	StartTime      string         `json:"start_time"`
	Timestamp      string         `json:"timestamp"`
	MQTT           MQTTStatus     `json:"mqtt"`
	Config         ConfigJSON     `json:"config"`
}

// MarkJSON is one recorded control point.
type MarkJSON struct {
	Phase   string   `json:"phase"`
	Time    string   `json:"time"`
	Seconds float64  `json:"seconds"`
	Temp    *float64 `json:"temp,omitempty"`
	ROR     *float64 `json:"ror,omitempty"`
}

// EstimatesJSON is the estimate set in use.
type EstimatesJSON struct {
	Count  int                `json:"count"`
	Phases []PhaseEstimateJSON `json:"phases"`
}

// PhaseEstimateJSON is one phase estimate; absent halves are omitted.
type PhaseEstimateJSON struct {
	Phase   string   `json:"phase"`
	Seconds *float64 `json:"seconds,omitempty"`
	Temp    *float64 `json:"temp,omitempty"`
}

// AlertJSON is the most recent alert.
type AlertJSON struct {
	Message string `json:"message"`
	Elapsed string `json:"elapsed"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of the runtime config.
type ConfigJSON struct {
	LogPath    string `json:"log_path"`
	Broker     string `json:"broker"`
	HTTPAddr   string `json:"http_addr"`
	Unit       string `json:"unit"`
	ButtonPin  int    `json:"button_pin"`
	CadenceMs  int64  `json:"cadence_ms"`
	DebounceMs int64  `json:"debounce_ms"`
}

func optional(v logic.NullFloat) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func buildInner(snap Snapshot) StatusInner {
	elapsed := snap.Elapsed()
	inner := StatusInner{
		State:          string(snap.Roast.State),
		Category:       string(snap.Roast.Category),
		Elapsed:        logic.FormatElapsed(elapsed),
		ElapsedSeconds: elapsed.Truncate(time.Second).Seconds(),
		Marks:          []MarkJSON{},
		AlertsFired:    snap.AlertsFired,
		Completed:      snap.Completed,
		UptimeSeconds:  int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:      snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:      snap.Now.UTC().Format(time.RFC3339),
		MQTT:           MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			LogPath:    snap.Config.LogPath,
			Broker:     snap.Config.Broker,
			HTTPAddr:   snap.Config.HTTPAddr,
			Unit:       snap.Config.Unit,
			ButtonPin:  snap.Config.ButtonPin,
			CadenceMs:  snap.Config.CadenceMs,
			DebounceMs: snap.Config.DebounceMs,
		},
	}
	if inner.State == "" {
		inner.State = string(logic.StateNotStarted)
	}

	for _, p := range logic.TrackedPhases {
		m, ok := snap.Roast.Marks[p]
		if !ok {
			continue
		}
		inner.Marks = append(inner.Marks, MarkJSON{
			Phase:   string(p),
			Time:    logic.FormatElapsed(m.Elapsed),
			Seconds: m.Elapsed.Seconds(),
			Temp:    optional(m.Reading.Temp),
			ROR:     optional(m.Reading.ROR),
		})
	}

	if snap.Estimates.Category != "" {
		est := &EstimatesJSON{Count: snap.Estimates.Count, Phases: []PhaseEstimateJSON{}}
		for _, p := range logic.TrackedPhases {
			pe := snap.Estimates.Phase(p)
			est.Phases = append(est.Phases, PhaseEstimateJSON{
				Phase:   string(p),
				Seconds: optional(pe.Time),
				Temp:    optional(pe.Temp),
			})
		}
		inner.Estimates = est
	}

	if snap.LastAlert != nil {
		inner.LastAlert = &AlertJSON{
			Message: snap.LastAlert.Threshold.Message,
			Elapsed: logic.FormatElapsed(snap.LastAlert.Elapsed),
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
