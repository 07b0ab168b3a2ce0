package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/wiegand-reader/internal/status"
	"github.com/sweeney/wiegand-reader/internal/wiegand"
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
	"decoder": status.DecoderLabel,
	"decoderClass": func(s wiegand.State) string {
		switch s {
		case wiegand.Idle, wiegand.Done:
			return "ok"
		case wiegand.Receiving:
			return "busy"
		case wiegand.Error:
			return "err"
		default:
			return "unknown"
		}
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Wiegand Reader</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; font-weight: bold; }
.busy { color: #06c; }
.err { color: red; font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.bits { word-break: break-all; }
</style>
</head>
<body>
<h1>Wiegand Reader</h1>

<h2>Decoder</h2>
<table>
<tr><th>State</th><td id="decoder-state" class="{{decoderClass .Decoder}}">{{decoder .Decoder}}</td></tr>
<tr><th>Capture</th><td>{{if .Suspended}}suspended{{else}}running{{end}}</td></tr>
<tr><th>Lines</th><td>D0={{.Config.D0}} D1={{.Config.D1}} ({{.Config.Backend}})</td></tr>
</table>

<h2>Last Frame</h2>
{{with .LastFrame}}<table>
<tr><th>Received</th><td>{{.Timestamp.UTC.Format "2006-01-02T15:04:05.000Z"}}</td></tr>
<tr><th>Bits</th><td>{{.BitCount}}</td></tr>
<tr><th>Value</th><td id="last-hex">{{.Hex}}</td></tr>
<tr><th>Raw</th><td class="bits">{{.Bits}}</td></tr>
<tr><th>Elapsed</th><td>{{.ElapsedMicros}}us</td></tr>
</table>{{else}}<p>none yet</p>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Frames</th><td>{{.Counts.Frames}}</td></tr>
<tr><th>Errors</th><td>{{.Counts.Errors}}</td></tr>
<tr><th>Overruns</th><td>{{.Counts.Overruns}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Max bit interval</th><td>{{.Config.MaxBitIntervalUs}}us</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render status page: %v", err)
	}
}
