package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/moisture-sensor/internal/status"
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
	"ago": func(now, t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return now.Sub(t).Truncate(time.Second).String() + " ago"
	},
	"refreshSeconds": func(intervalMs int64) int64 {
		if intervalMs < 5000 {
			return 5
		}
		return intervalMs / 1000
	},
	// A digital probe drives its output high when the soil is dry.
	"moisture": func(s status.Sensor) string {
		if s.Samples == 0 {
			return "UNKNOWN"
		}
		if s.LastValue == 1 {
			return "DRY"
		}
		return "WET"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="{{refreshSeconds .Config.IntervalMs}}">
<title>Moisture Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.dry { color: #b60; font-weight: bold; }
.wet { color: #06b; font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Moisture Sensor</h1>

<h2>Sensors</h2>
<table>
<tr><th>Sensor</th><th>State</th><th>Pins</th><th>Samples</th><th>Last</th></tr>
{{range .Sensors}}{{$m := moisture .}}<tr>
<td>{{.ID}} ({{.Type}})</td>
<td class="{{if eq $m "DRY"}}dry{{else if eq $m "WET"}}wet{{else}}unknown{{end}}">{{$m}}{{if .Samples}} [{{.LastValue}}]{{end}}</td>
<td>pwr {{.PowerPin}} / val {{.SensePin}}</td>
<td>{{.Samples}}</td>
<td>{{ago $.Now .LastSample}}</td>
</tr>
{{else}}<tr><td colspan="5">no sensors</td></tr>
{{end}}</table>

<h2>Sink</h2>
<table>
<tr><th>Kind</th><td>{{.Config.Sink}}</td></tr>
<tr><th>Target</th><td>{{.Config.Target}}</td></tr>
{{if .Config.Exchange}}<tr><th>Exchange</th><td>{{.Config.Exchange}}</td></tr>{{end}}
<tr><th>Encoding</th><td>{{.Config.Encoding}}</td></tr>
<tr><th>Status</th><td class="{{if .SinkConnected}}connected{{else}}disconnected{{end}}">{{if .SinkConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Published</th><td>{{.Published}}</td></tr>
</table>

{{if .Network}}<h2>Network</h2>
<table>
<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>
<tr><th>Gateway</th><td>{{.Network.Gateway}}</td></tr>
</table>
{{end}}
<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Interval</th><td>{{.Config.IntervalMs}}ms</td></tr>
<tr><th>GPIO</th><td>{{.Config.Driver}} {{.Config.Device}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
