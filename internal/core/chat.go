package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"intake-chat/internal/backend"
	"intake-chat/internal/cache"
	"intake-chat/internal/events"
	"intake-chat/internal/logger"
	"intake-chat/internal/render"
	"intake-chat/pkg"
)

// ChatService runs the patient side of the intake: every patient action is
// sent to the backend once and the reply is folded into the session state.
type ChatService struct {
	Backend    backend.Client
	Events     events.Publisher
	Lookups    cache.Cache
	MessageCap int
	// PublishTimeout bounds the ready event publish; the reply waits on it.
	PublishTimeout time.Duration
}

const defaultPublishTimeout = 5 * time.Second

// NewChatService constructs a ChatService. Nil publisher and cache disable
// events and lookup caching. A messageCap of zero means no limit.
func NewChatService(client backend.Client, publisher events.Publisher, lookups cache.Cache, messageCap int) *ChatService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if lookups == nil {
		lookups = cache.Nop{}
	}
	return &ChatService{
		Backend:        client,
		Events:         publisher,
		Lookups:        lookups,
		MessageCap:     messageCap,
		PublishTimeout: defaultPublishTimeout,
	}
}

// Reply is the outcome of one patient action.
type Reply struct {
	// Message is the bot message appended to the history, already HTML.
	Message string
	// Failed is set when the backend call failed and Message is an apology.
	Failed bool
	// Capped is set when the message was refused by the message cap.
	Capped bool
	// ReadyToInsert mirrors the backend flag for this turn.
	ReadyToInsert bool
	// MedicationInfo is text extracted from an image, to be placed in the
	// chat input for the patient to review.
	MedicationInfo string
}

// SendMessage forwards one patient message. Backend failures are not
// returned as errors: the apology becomes the bot reply and the state is
// left as it was. Only invalid input yields an error.
func (s *ChatService) SendMessage(ctx context.Context, sess *Session, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid(ErrEmptyMessage)
	}
	log := logger.ForSession(sess.ID)

	if s.MessageCap > 0 && sess.PatientMessages() >= s.MessageCap {
		msg := sess.State.AppendHistory(pkg.RoleBot, render.BotMessage(CapMessage))
		return &Reply{Message: msg.Content, Capped: true}, nil
	}

	sess.State.AppendHistory(pkg.RolePatient, text)
	sess.countPatientMessage()

	snap := sess.State.Snapshot()
	resp, err := s.Backend.ProcessMessage(ctx, pkg.ProcessMessageRequest{
		UserMessage:   text,
		CurrentRecord: snap.Record,
		CurrentPrompt: snap.Turn,
	})
	if err != nil {
		log.WithError(err).Error("Error processing message")
		msg := sess.State.AppendHistory(pkg.RoleBot, render.BotMessage(ErrorReply))
		return &Reply{Message: msg.Content, Failed: true}, nil
	}

	update := UpdateFromJSON(resp.UpdatedRecord, resp.CompletedSections, resp.NextPrompt)
	sess.State.ApplyBackendUpdate(update)

	out := &Reply{ReadyToInsert: bool(resp.ReadyToInsert)}
	text = strings.TrimSpace(string(resp.Message))
	if text == "" && update.NextTurn != nil {
		text = update.NextTurn.Prompt
	}
	if text != "" {
		msg := sess.State.AppendHistory(pkg.RoleBot, render.BotMessage(text))
		out.Message = msg.Content
	}

	if out.ReadyToInsert && sess.MarkReady() {
		s.publishReady(ctx, sess)
	}
	return out, nil
}

func (s *ChatService) publishReady(ctx context.Context, sess *Session) {
	progress := sess.State.Progress()
	ev := events.New(events.TypeIntakeReady, sess.ID, map[string]interface{}{
		"completed_sections": sess.State.CompletedSections(),
		"completed":          progress.Completed,
		"total":              progress.Total,
		"record":             sess.State.Record(),
	})
	// The publish outlives a client that hung up, but not the timeout.
	timeout := s.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := s.Events.Publish(ctx, ev); err != nil {
		logger.ForSession(sess.ID).WithError(err).Warn("Failed to publish intake ready event")
	}
}

// UploadMedicationImage sends a medication photo for text extraction. Any
// record update in the reply is applied; the extracted text is returned for
// the patient to review rather than sent on their behalf.
func (s *ChatService) UploadMedicationImage(ctx context.Context, sess *Session, img backend.Image) (*Reply, error) {
	if len(img.Data) == 0 {
		return nil, invalid(ErrEmptyImage)
	}
	log := logger.ForSession(sess.ID)

	resp, err := s.Backend.ProcessMedicationImage(ctx, img)
	if err != nil {
		log.WithError(err).Error("Error processing medication image")
		msg := sess.State.AppendHistory(pkg.RoleBot, render.BotMessage(ImageErrorReply))
		return &Reply{Message: msg.Content, Failed: true}, nil
	}

	sess.State.ApplyBackendUpdate(UpdateFromJSON(resp.UpdatedRecord, resp.CompletedSections, nil))

	info := strings.TrimSpace(string(resp.MedicationInfo))
	notice := ImageEmptyReply
	if info != "" {
		notice = ImageExtractedReply
	}
	msg := sess.State.AppendHistory(pkg.RoleBot, render.BotMessage(notice))
	return &Reply{Message: msg.Content, MedicationInfo: info}, nil
}

// LookupPatient fetches the medications on file for patientID and, when any
// are found, sends them as a patient message. ErrNoMedications is returned
// when nothing is on file.
func (s *ChatService) LookupPatient(ctx context.Context, sess *Session, patientID string) (*Reply, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, invalid(ErrEmptyPatientID)
	}
	meds, err := s.patientMedications(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return s.SendMessage(ctx, sess, fmt.Sprintf(lookupMessageFormat, patientID, meds))
}

func (s *ChatService) patientMedications(ctx context.Context, patientID string) (string, error) {
	log := logger.WithField("patient_id", patientID)
	key := "meds:" + patientID

	cached, err := s.Lookups.Get(ctx, key)
	if err == nil && cached != "" {
		return cached, nil
	}
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		log.WithError(err).Warn("Lookup cache read failed")
	}

	resp, err := s.Backend.QueryPatientMedications(ctx, patientID)
	if backend.IsStatus(err, http.StatusNotFound) {
		return "", ErrNoMedications
	}
	if err != nil {
		return "", fmt.Errorf("query patient medications: %w", err)
	}
	meds := strings.TrimSpace(string(resp.Medications))
	if meds == "" {
		return "", ErrNoMedications
	}
	if err := s.Lookups.Set(ctx, key, meds); err != nil {
		log.WithError(err).Warn("Lookup cache write failed")
	}
	return meds, nil
}

// Reset discards everything collected in the session.
func (s *ChatService) Reset(sess *Session) {
	sess.Reset()
	logger.ForSession(sess.ID).Info("Session reset")
}
