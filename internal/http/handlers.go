package http

import (
	"errors"
	"html/template"
	"io"
	"net/http"
	"time"

	"intake-chat/internal/backend"
	"intake-chat/internal/core"
	"intake-chat/internal/logger"
	"intake-chat/internal/render"
	"intake-chat/pkg"
)

// maxImageBytes bounds an uploaded medication photo.
const maxImageBytes = 8 << 20

type pageData struct {
	SessionID    string
	FirstMessage string
	History      []pkg.Message
	Progress     pkg.Progress
}

// turnData is the fragment returned after a patient action: the messages
// added by it plus out-of-band updates to the progress list, the chat input
// and the notice area.
type turnData struct {
	SessionID      string
	Messages       []pkg.Message
	Progress       pkg.Progress
	Notice         string
	MedicationInfo string
}

// handleStart creates a session and sends the browser to its page.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	sess := s.Sessions.Create()
	http.Redirect(w, r, "/sessions/"+sess.ID, http.StatusSeeOther)
}

// handlePatientPage renders the chat interface for a session.
func (s *Server) handlePatientPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.render(w, "patient.html", pageData{
		SessionID:    sess.ID,
		FirstMessage: core.FirstMessage,
		History:      sess.State.History(),
		Progress:     sess.State.Progress(),
	})
}

// handlePostMessage sends one patient message and returns the new chat
// messages. It is triggered via HTMX from the chat form.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	before := len(sess.State.History())
	if _, err := s.Chat.SendMessage(r.Context(), sess, r.FormValue("content")); err != nil {
		s.writeActionError(w, err)
		return
	}
	s.renderTurn(w, sess, before, "", "")
}

// handleImage uploads a medication photo. The extracted text is placed in
// the chat input for the patient to review.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "image is required", http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		http.Error(w, "failed to read image", http.StatusBadRequest)
		return
	}
	if len(data) > maxImageBytes {
		http.Error(w, "image too large", http.StatusRequestEntityTooLarge)
		return
	}

	before := len(sess.State.History())
	reply, err := s.Chat.UploadMedicationImage(r.Context(), sess, backend.Image{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	s.renderTurn(w, sess, before, "", reply.MedicationInfo)
}

// handleLookup fetches a patient's medications on file and sends them as a
// chat message.
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	before := len(sess.State.History())
	_, err := s.Chat.LookupPatient(r.Context(), sess, r.FormValue("patient_id"))
	switch {
	case errors.Is(err, core.ErrEmptyPatientID):
		s.renderTurn(w, sess, before, core.InvalidPatientIDReply, "")
	case errors.Is(err, core.ErrNoMedications):
		s.renderTurn(w, sess, before, core.LookupNotFoundReply, "")
	case err != nil:
		logger.ForSession(sess.ID).WithError(err).Error("Patient lookup failed")
		s.renderTurn(w, sess, before, core.LookupErrorReply, "")
	default:
		s.renderTurn(w, sess, before, "", "")
	}
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.render(w, "progress", sess.State.Progress())
}

// handleReset clears the session and reloads the page.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.Chat.Reset(sess)
	target := "/sessions/" + sess.ID
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	html, err := s.Summarizer.Summarize(r.Context(), sess)
	if err != nil {
		html = template.HTML(template.HTMLEscapeString(core.SummaryErrorReply))
	}
	s.render(w, "summary", html)
}

func (s *Server) handleQuestion(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	answer, err := s.Summarizer.Ask(r.Context(), sess, r.FormValue("question"))
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	s.render(w, "qa", answer)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	recs, err := s.Summarizer.Recommendations(r.Context(), sess)
	data := struct {
		Recommendations *core.Recommendations
		Error           string
	}{Recommendations: recs}
	if err != nil {
		data.Error = core.RecommendationsErrorReply
	}
	s.render(w, "recommendations", data)
}

func (s *Server) handleFollowUp(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.session(w, r); !ok {
		return
	}
	html, err := s.Summarizer.FollowUp(r.Context())
	if err != nil {
		html = template.HTML(template.HTMLEscapeString(core.FollowUpErrorReply))
	}
	s.render(w, "followup", html)
}

// handlePrint serves the record as a standalone printable document.
func (s *Server) handlePrint(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := render.PrintableRecord(w, sess.State.Record(), time.Now()); err != nil {
		logger.ForSession(sess.ID).WithError(err).Error("Failed to render printable record")
	}
}

func (s *Server) renderTurn(w http.ResponseWriter, sess *core.Session, before int, notice, medicationInfo string) {
	history := sess.State.History()
	if before > len(history) {
		before = len(history)
	}
	s.render(w, "turn", turnData{
		SessionID:      sess.ID,
		Messages:       history[before:],
		Progress:       sess.State.Progress(),
		Notice:         notice,
		MedicationInfo: medicationInfo,
	})
}

// writeActionError maps service errors to HTTP statuses.
func (s *Server) writeActionError(w http.ResponseWriter, err error) {
	if core.IsValidationError(err) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	logger.Log.WithError(err).Error("Request failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}
