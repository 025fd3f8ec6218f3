package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"intake-chat/internal/core"
	"intake-chat/pkg"
)

// handleCreateSession creates a new intake session and returns its id and
// the URL of its chat page.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.Sessions.Create()
	writeJSON(w, http.StatusCreated, map[string]string{
		"session_id": sess.ID,
		"start_url":  "/sessions/" + sess.ID,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.apiSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleAPIMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.apiSession(w, r)
	if !ok {
		return
	}
	var req pkg.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	reply, err := s.Chat.SendMessage(r.Context(), sess, req.Content)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pkg.ChatResponse{
		Reply:         reply.Message,
		Failed:        reply.Failed,
		Capped:        reply.Capped,
		ReadyToInsert: reply.ReadyToInsert,
		Progress:      sess.State.Progress(),
	})
}

func (s *Server) handleAPIReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.apiSession(w, r)
	if !ok {
		return
	}
	s.Chat.Reset(sess)
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Delete(mux.Vars(r)["id"]); err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apiSession(w http.ResponseWriter, r *http.Request) (*core.Session, bool) {
	sess, err := s.Sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return sess, true
}
