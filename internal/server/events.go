package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const writeDeadline = 60 * time.Second

// handleEvents streams the session's view snapshots as Server-Sent Events.
// The stream ends when the client goes away or the session is closed.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	logger := slog.Default().With("session_id", sess.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		logger.Error("events: streaming not supported", "error", err)
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	snapshots, cancel := sess.Sync.View().Subscribe()
	defer cancel()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				_ = sendEvent(rc, w, "closed", map[string]string{"reason": "session ended"})
				return
			}
			if err := sendEvent(rc, w, "view", snap); err != nil {
				logger.Debug("events: client disconnected during send", "error", err)
				return
			}
		case t := <-heartbeat.C:
			if err := sendEvent(rc, w, "heartbeat", map[string]int64{"ts": t.Unix()}); err != nil {
				logger.Debug("events: client disconnected during heartbeat", "error", err)
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func sendEvent(rc *http.ResponseController, w http.ResponseWriter, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}
	// Not every ResponseWriter supports deadlines.
	_ = rc.SetWriteDeadline(time.Now().Add(writeDeadline))
	return nil
}
