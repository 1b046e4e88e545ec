package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/belt-sentinel/internal/status"
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
	"stateClass": func(s string) string {
		switch s {
		case "NORMAL":
			return "normal"
		case "PRE_FALL", "SUDDEN_MOVEMENT":
			return "warning"
		case "FALL_CONFIRMED":
			return "alarm"
		}
		return "unknown"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Belt Sentinel</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.normal { color: green; font-weight: bold; }
.warning { color: orange; font-weight: bold; }
.alarm { color: red; font-weight: bold; }
.unknown { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
button { font-family: monospace; font-size: 1.1em; padding: 8px 16px; }
</style>
</head>
<body>
<h1>Belt Sentinel</h1>

<h2>State</h2>
<table>
<tr><th>Safety State</th><td class="{{stateClass (printf "%s" .State)}}">{{printf "%s" .State}}</td></tr>
{{if .FallEpisodeID}}<tr><th>Fall Episode</th><td>{{.FallEpisodeID}}</td></tr>{{end}}
<tr><th>Escalation</th><td>{{printf "%s" .Escalation}}</td></tr>
{{if not .EscalationDeadline.IsZero}}<tr><th>Deadline</th><td>{{.EscalationDeadline.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>{{end}}
{{if not .LastSampleAt.IsZero}}<tr><th>Last Sample</th><td>{{.LastSampleAt.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>{{end}}
</table>

{{if eq (printf "%s" .State) "FALL_CONFIRMED"}}
<form method="POST" action="/api/ack">
<button type="submit">I'm OK</button>
</form>
{{end}}

<h2>Channels</h2>
<table>
<tr><th>Remote API</th><td class="{{if .RemoteAvailable}}connected{{else}}disconnected{{end}}">{{if .RemoteAvailable}}available{{else}}unavailable{{end}}</td></tr>
<tr><th>GSM Modem</th><td class="{{if .ModemAvailable}}connected{{else}}disconnected{{end}}">{{if .ModemAvailable}}registered{{else}}no network{{end}}</td></tr>
{{if .LastDispatch}}<tr><th>Last Dispatch</th><td>{{.LastDispatch.Channel}} {{printf "%s" .LastDispatch.Kind}} {{printf "%s" .LastDispatch.Outcome}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} — {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Pre-fall</th><td>{{.Counts.PreFall}}</td></tr>
<tr><th>Fall</th><td>{{.Counts.Fall}}</td></tr>
<tr><th>Sudden Movement</th><td>{{.Counts.SuddenMovement}}</td></tr>
<tr><th>Sensor Anomalies</th><td>{{.Counts.Anomalies}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Cooldown</th><td>{{.Config.CooldownMs}}ms</td></tr>
<tr><th>Escalation</th><td>{{.Config.EscalationMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but the template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
