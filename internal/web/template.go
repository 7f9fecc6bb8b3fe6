package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/roast-timer/internal/logic"
	"github.com/sweeney/roast-timer/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"clock": logic.FormatElapsed,
	"seconds": logic.FormatNullClock,
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
{{if .Active}}<meta http-equiv="refresh" content="2">{{end}}
<title>Roast Timer</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.active { color: #b5651d; font-weight: bold; }
.idle { color: #888; }
.alert { color: #c00; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Roast Timer</h1>

<h2>Roast</h2>
<table>
<tr><th>State</th><td id="state" class="{{if .Active}}active{{else}}idle{{end}}">{{.State}}</td></tr>
{{if .Roast.Category}}<tr><th>Category</th><td>{{.Roast.Category}}</td></tr>{{end}}
<tr><th>Elapsed</th><td id="elapsed">{{clock .Elapsed}}</td></tr>
{{if .Roast.Loading.Temp.Valid}}<tr><th>Loading</th><td>{{.Roast.Loading.Temp}}&deg;{{.Config.Unit}}</td></tr>{{end}}
{{if .LastAlert}}<tr><th>Last alert</th><td class="alert">{{.LastAlert.Threshold.Message}}</td></tr>{{end}}
<tr><th>Alerts fired</th><td>{{.AlertsFired}}</td></tr>
</table>

{{if .Marks}}<h2>Marks</h2>
<table>
<tr><th>Phase</th><th>Time</th><th>Temp</th><th>ROR</th></tr>
{{range .Marks}}<tr><td>{{.Label}}</td><td>{{clock .Mark.Elapsed}}</td><td>{{.Mark.Reading.Temp}}</td><td>{{.Mark.Reading.ROR}}</td></tr>
{{end}}</table>{{end}}

{{if .Estimates.Category}}<h2>Historical averages ({{.Estimates.Count}} roasts)</h2>
<table>
<tr><th>Phase</th><th>Time</th><th>Temp</th></tr>
{{range .EstimateRows}}<tr><td>{{.Label}}</td><td>{{seconds .Estimate.Time}}</td><td>{{.Estimate.Temp}}</td></tr>
{{end}}</table>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Roasts logged</th><td>{{.Completed}}</td></tr>
<tr><th>Log</th><td>{{.Config.LogPath}}</td></tr>
<tr><th>Button</th><td>{{if lt .Config.ButtonPin 0}}disabled{{else}}GPIO {{.Config.ButtonPin}} ({{.Config.DebounceMs}}ms debounce){{end}}</td></tr>
<tr><th>Alert cadence</th><td>{{.Config.CadenceMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

type markRow struct {
	Label string
	Mark  logic.Mark
}

type estimateRow struct {
	Label    string
	Estimate logic.PhaseEstimate
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	data := struct {
		status.Snapshot
		State        string
		Active       bool
		Elapsed      time.Duration
		Uptime       time.Duration
		Marks        []markRow
		EstimateRows []estimateRow
	}{
		Snapshot: snap,
		State:    string(snap.Roast.State),
		Active:   snap.Active(),
		Elapsed:  snap.Elapsed(),
		Uptime:   snap.Uptime(),
	}
	if data.State == "" {
		data.State = string(logic.StateNotStarted)
	}
	for _, p := range logic.TrackedPhases {
		if m, ok := snap.Roast.Marks[p]; ok {
			data.Marks = append(data.Marks, markRow{Label: p.Label(), Mark: m})
		}
		data.EstimateRows = append(data.EstimateRows, estimateRow{Label: p.Label(), Estimate: snap.Estimates.Phase(p)})
	}
	return indexTmpl.Execute(w, data)
}
