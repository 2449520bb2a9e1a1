package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/escalona/flint/internal/events"
)

// sseWriter frames AgentEvents as Server-Sent Events:
// `event: <type>\ndata: <JSON>\n\n`, flushing after every write so
// streamed turns are delivered incrementally.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: flusher}
}

func (s *sseWriter) writeEvent(eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = s.w.Write([]byte("event: " + eventType + "\n"))
	_, _ = s.w.Write(append([]byte("data: "), data...))
	_, _ = s.w.Write([]byte("\n\n"))
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

func (s *sseWriter) forwardAgentEvent(ev events.Event) {
	s.writeEvent(string(ev.Kind), ev)
}

func (s *sseWriter) writeResult(payload any) {
	s.writeEvent("result", payload)
}

func (s *sseWriter) writeError(message string) {
	s.writeEvent("error", map[string]string{"type": "error", "message": message})
}

func wantsSSE(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}
