package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"intake-chat/internal/logger"
)

type doctorRow struct {
	ID        string
	CreatedAt time.Time
	Completed int
	Total     int
	Ready     bool
}

// handleDoctorPage lists the live intake sessions with their progress.
func (s *Server) handleDoctorPage(w http.ResponseWriter, r *http.Request) {
	sessions := s.Sessions.List()
	rows := make([]doctorRow, 0, len(sessions))
	for _, sess := range sessions {
		p := sess.State.Progress()
		rows = append(rows, doctorRow{
			ID:        sess.ID,
			CreatedAt: sess.CreatedAt,
			Completed: p.Completed,
			Total:     p.Total,
			Ready:     sess.Ready(),
		})
	}
	s.render(w, "doctor.html", struct{ Sessions []doctorRow }{rows})
}

// handleDoctorStream streams intake events to the doctor dashboard using
// server-sent events until the client disconnects.
func (s *Server) handleDoctorStream(w http.ResponseWriter, r *http.Request) {
	if s.Broker == nil {
		http.Error(w, "event stream disabled", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, cancel := s.Broker.Subscribe(16)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(map[string]interface{}{
				"id":         ev.ID,
				"type":       ev.Type,
				"session_id": ev.SessionID,
				"timestamp":  ev.Timestamp,
			})
			if err != nil {
				logger.Log.WithError(err).Error("Failed to encode stream event")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
