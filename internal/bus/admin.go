package bus

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tailscale.com/tsweb"
)

// maxPublishBytes bounds payloads accepted by the debug publish endpoint.
const maxPublishBytes = 1 << 20

const busPage = `<!doctype html>
<html><head><title>bus</title></head>
<body>
<h1>bus</h1>
<form method="post" action="bus-publish">
<input name="topic" size="40" placeholder="robot/path_completed">
<input name="payload" size="60" placeholder="{}">
<button type="submit">publish</button>
</form>
<pre id="tail"></pre>
<script>
const out = document.getElementById("tail");
new EventSource("bus-tail").onmessage = (e) => {
  out.textContent = e.data + "\n" + out.textContent.slice(0, 20000);
};
</script>
</body></html>`

type tailEvent struct {
	Topic      string          `json:"topic"`
	ReceivedAt string          `json:"received_at"`
	Size       int             `json:"size"`
	Payload    json.RawMessage `json:"payload,omitempty"` // omitted for binary payloads
}

// AttachAdminRoutes attaches bus debugging endpoints to the given HTTP mux
// served at /debug/.
func AttachAdminRoutes(mux *http.ServeMux, b Bus) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("Bus", func() any {
		s := b.Stats()
		return fmt.Sprintf("published=%d delivered=%d dropped=%d", s.Published, s.Delivered, s.Dropped)
	})

	debug.HandleFunc("bus", "publish to and live-tail the message bus", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, busPage)
	})

	debug.HandleSilentFunc("bus-publish", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxPublishBytes)
		topic := strings.TrimSpace(r.FormValue("topic"))
		if topic == "" {
			http.Error(w, "Missing topic", http.StatusBadRequest)
			return
		}
		payload := r.FormValue("payload")
		if payload == "" {
			payload = "{}"
		}
		if err := b.Publish(topic, []byte(payload)); err != nil {
			http.Error(w, "Failed to publish", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Published %d bytes to %q", len(payload), topic))
	})

	// Server-Sent Events for every message on the requested topics (all by default).
	debug.HandleSilentFunc("bus-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := b.Subscribe(r.URL.Query()["topic"]...)
		defer b.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case m, ok := <-c:
				if !ok {
					return
				}
				ev := tailEvent{
					Topic:      m.Topic,
					ReceivedAt: m.ReceivedAt.UTC().Format("15:04:05.000"),
					Size:       len(m.Payload),
				}
				if json.Valid(m.Payload) {
					ev.Payload = m.Payload
				}
				line, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
