package facade

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sk8tingusmc/forge/internal/event"
)

// heartbeatInterval keeps intermediary proxies from closing an idle SSE
// connection.
const heartbeatInterval = 30 * time.Second

// sdkEvent gives every event a stable {type, properties} shape on the wire,
// regardless of the concrete Go type behind Data.
type sdkEvent struct {
	Type       event.EventType `json:"type"`
	Properties any             `json:"properties"`
}

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher, rc: http.NewResponseController(w)}, nil
}

func (s *sseWriter) writeEvent(data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: message\ndata: %s\n\n", payload); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseWriter) writeHeartbeat() {
	fmt.Fprint(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// events streams every event published on the bus to a connected client, in
// forge's own sdkEvent envelope. One connection per client; there is no
// session-scoped filtering since forge has no multi-session transcript to
// slice events by.
func (f *Facade) events(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	if err := sse.writeEvent(sdkEvent{Type: "server.connected", Properties: map[string]any{}}); err != nil {
		return
	}

	events := make(chan event.Event, 16)
	unsub := f.bus.SubscribeAll(func(e event.Event) {
		select {
		case events <- e:
		default:
			f.log.Warn().Str("eventType", string(e.Type)).Msg("sse event dropped: channel full")
		}
	})
	defer unsub()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			if err := sse.writeEvent(sdkEvent{Type: e.Type, Properties: e.Data}); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}
