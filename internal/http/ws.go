package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"intake-chat/internal/core"
	"intake-chat/internal/logger"
	"intake-chat/pkg"
)

// checkOrigin admits requests without an Origin header, same-host pages and
// origins on the CORS allow-list.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return originAllowed(s.origins, origin)
}

// originAllowed matches origin the way go-chi/cors does: "*" admits
// anything and a single "*" inside a pattern matches any run of text.
func originAllowed(patterns []string, origin string) bool {
	origin = strings.ToLower(origin)
	for _, p := range patterns {
		p = strings.ToLower(p)
		if p == "*" || p == origin {
			return true
		}
		i := strings.IndexByte(p, '*')
		if i < 0 {
			continue
		}
		prefix, suffix := p[:i], p[i+1:]
		if len(origin) >= len(prefix)+len(suffix) && strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
			return true
		}
	}
	return false
}

// wsRequest is the incoming WebSocket message format.
type wsRequest struct {
	Type    string `json:"type"` // "message", "lookup" or "reset"
	Content string `json:"content"`
}

// wsResponse is the outgoing WebSocket message format.
type wsResponse struct {
	Type           string        `json:"type"` // "loading", "response" or "error"
	Loading        bool          `json:"loading,omitempty"`
	Content        string        `json:"content,omitempty"`
	Failed         bool          `json:"failed,omitempty"`
	Capped         bool          `json:"capped,omitempty"`
	ReadyToInsert  bool          `json:"ready_to_insert,omitempty"`
	MedicationInfo string        `json:"medication_info,omitempty"`
	Progress       *pkg.Progress `json:"progress,omitempty"`
}

// handleWebSocket runs the chat for one session over a WebSocket. Messages
// are handled one at a time in arrival order.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	log := logger.ForSession(sess.ID)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("WebSocket read failed")
			}
			return
		}

		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			s.sendWS(conn, wsResponse{Type: "error", Content: "invalid message format"})
			continue
		}

		switch req.Type {
		case "message":
			s.wsMessage(conn, r, sess, req.Content)
		case "lookup":
			s.wsLookup(conn, r, sess, req.Content)
		case "reset":
			s.Chat.Reset(sess)
			progress := sess.State.Progress()
			s.sendWS(conn, wsResponse{Type: "response", Progress: &progress})
		default:
			s.sendWS(conn, wsResponse{Type: "error", Content: "unknown message type: " + req.Type})
		}
	}
}

func (s *Server) wsMessage(conn *websocket.Conn, r *http.Request, sess *core.Session, content string) {
	s.sendWS(conn, wsResponse{Type: "loading", Loading: true})
	defer s.sendWS(conn, wsResponse{Type: "loading", Loading: false})

	reply, err := s.Chat.SendMessage(r.Context(), sess, content)
	if err != nil {
		s.sendWS(conn, wsResponse{Type: "error", Content: err.Error()})
		return
	}
	s.sendReply(conn, sess, reply)
}

func (s *Server) wsLookup(conn *websocket.Conn, r *http.Request, sess *core.Session, patientID string) {
	s.sendWS(conn, wsResponse{Type: "loading", Loading: true})
	defer s.sendWS(conn, wsResponse{Type: "loading", Loading: false})

	reply, err := s.Chat.LookupPatient(r.Context(), sess, patientID)
	switch {
	case errors.Is(err, core.ErrEmptyPatientID):
		s.sendWS(conn, wsResponse{Type: "error", Content: core.InvalidPatientIDReply})
	case errors.Is(err, core.ErrNoMedications):
		s.sendWS(conn, wsResponse{Type: "error", Content: core.LookupNotFoundReply})
	case err != nil:
		logger.ForSession(sess.ID).WithError(err).Error("Patient lookup failed")
		s.sendWS(conn, wsResponse{Type: "error", Content: core.LookupErrorReply})
	default:
		s.sendReply(conn, sess, reply)
	}
}

func (s *Server) sendReply(conn *websocket.Conn, sess *core.Session, reply *core.Reply) {
	progress := sess.State.Progress()
	s.sendWS(conn, wsResponse{
		Type:           "response",
		Content:        reply.Message,
		Failed:         reply.Failed,
		Capped:         reply.Capped,
		ReadyToInsert:  reply.ReadyToInsert,
		MedicationInfo: reply.MedicationInfo,
		Progress:       &progress,
	})
}

func (s *Server) sendWS(conn *websocket.Conn, resp wsResponse) {
	if err := conn.WriteJSON(resp); err != nil {
		logger.Log.WithError(err).Warn("WebSocket write failed")
	}
}
