package pkg

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MessageRole describes who authored a chat message. There are only two
// roles: the patient and the bot.
type MessageRole string

const (
	RolePatient MessageRole = "user"
	RoleBot     MessageRole = "bot"
)

// Message is one entry of the chat history. Content holds the text exactly
// as it is rendered; bot messages are already formatted HTML.
type Message struct {
	Sender    MessageRole `json:"sender"`
	Content   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
}

// ConversationTurn is the prompt most recently issued by the backend. The
// backend owns its shape; the raw JSON is kept so it can be echoed back
// verbatim on the next turn.
type ConversationTurn struct {
	Prompt string
	Field  string
	raw    json.RawMessage
}

// ParseTurn decodes a backend next_prompt value. A missing or null value
// yields (nil, nil).
func ParseTurn(raw json.RawMessage) (*ConversationTurn, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var fields struct {
		Prompt LooseString `json:"prompt"`
		Field  LooseString `json:"field"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decoding turn: %w", err)
	}
	return &ConversationTurn{
		Prompt: string(fields.Prompt),
		Field:  string(fields.Field),
		raw:    append(json.RawMessage(nil), raw...),
	}, nil
}

// MarshalJSON echoes the original backend JSON when there is one.
func (t ConversationTurn) MarshalJSON() ([]byte, error) {
	if len(t.raw) > 0 {
		return t.raw, nil
	}
	out := map[string]string{"prompt": t.Prompt}
	if t.Field != "" {
		out["field"] = t.Field
	}
	return json.Marshal(out)
}

// LooseString decodes any JSON scalar into a string and anything else into
// the empty string, so a badly typed field never fails a whole payload.
type LooseString string

func (s *LooseString) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		*s = ""
		return nil
	}
	switch t := v.(type) {
	case string:
		*s = LooseString(t)
	case float64, bool:
		*s = LooseString(fmt.Sprint(t))
	default:
		*s = ""
	}
	return nil
}

// LooseBool decodes true only from a JSON true.
type LooseBool bool

func (b *LooseBool) UnmarshalJSON(data []byte) error {
	*b = LooseBool(strings.TrimSpace(string(data)) == "true")
	return nil
}

// ProcessMessageRequest is the body sent to the processMessage function.
type ProcessMessageRequest struct {
	UserMessage   string            `json:"userMessage"`
	CurrentRecord PatientRecord     `json:"currentRecord"`
	CurrentPrompt *ConversationTurn `json:"currentPrompt"`
}

// ProcessMessageResponse is the processMessage reply. Record, section and
// prompt fields are left raw so the state manager can vet them.
type ProcessMessageResponse struct {
	UpdatedRecord     json.RawMessage `json:"updated_record,omitempty"`
	CompletedSections json.RawMessage `json:"completedSections,omitempty"`
	Message           LooseString     `json:"message,omitempty"`
	NextPrompt        json.RawMessage `json:"next_prompt,omitempty"`
	ReadyToInsert     LooseBool       `json:"ready_to_insert,omitempty"`
}

// MedicationImageResponse is the processMedicationImage reply.
type MedicationImageResponse struct {
	MedicationInfo    LooseString     `json:"medicationInfo,omitempty"`
	CompletedSections json.RawMessage `json:"completedSections,omitempty"`
	UpdatedRecord     json.RawMessage `json:"updated_record,omitempty"`
}

// DoctorAction selects what doctorSummaryAndQA produces.
type DoctorAction string

const (
	ActionSummary  DoctorAction = "summary"
	ActionQuestion DoctorAction = "question"
)

type DoctorRequest struct {
	Action        DoctorAction  `json:"action"`
	CurrentRecord PatientRecord `json:"currentRecord"`
	Question      string        `json:"question,omitempty"`
}

type DoctorResponse struct {
	Summary LooseString `json:"summary,omitempty"`
	Answer  LooseString `json:"answer,omitempty"`
}

type RecommendationsRequest struct {
	PatientRecord PatientRecord `json:"patientRecord"`
}

// Document is a literature abstract retrieved alongside recommendations.
type Document struct {
	Title   LooseString `json:"title"`
	Content LooseString `json:"content"`
}

type RecommendationsResponse struct {
	Recommendations LooseString `json:"recommendations"`
	Documents       []Document  `json:"documents"`
}

type FollowUpResponse struct {
	HTML LooseString `json:"html"`
}

type MedicationLookupRequest struct {
	PatientID string `json:"patientId"`
}

type MedicationLookupResponse struct {
	Medications LooseString `json:"medications,omitempty"`
}

// ProgressItem is the display projection of one section.
type ProgressItem struct {
	ID        SectionID `json:"id"`
	Label     string    `json:"label"`
	Completed bool      `json:"completed"`
	Tooltip   string    `json:"tooltip"`
}

// Progress is the read model rendered as the progress list.
type Progress struct {
	Items      []ProgressItem    `json:"items"`
	Categories map[Category]bool `json:"categories"`
	Completed  int               `json:"completed"`
	Total      int               `json:"total"`
}

// SessionView is the JSON representation of an intake session.
type SessionView struct {
	ID            string            `json:"session_id"`
	CreatedAt     time.Time         `json:"created_at"`
	Record        PatientRecord     `json:"record"`
	Completed     []SectionID       `json:"completed_sections"`
	CurrentPrompt *ConversationTurn `json:"current_prompt"`
	History       []Message         `json:"history"`
	Progress      Progress          `json:"progress"`
	ReadyToInsert bool              `json:"ready_to_insert"`
}

// ChatRequest represents a message sent by the patient.
type ChatRequest struct {
	Content string `json:"content"`
}

// ChatResponse contains the bot reply for one turn.
type ChatResponse struct {
	Reply         string   `json:"reply"`
	Failed        bool     `json:"failed,omitempty"`
	Capped        bool     `json:"capped,omitempty"`
	ReadyToInsert bool     `json:"ready_to_insert,omitempty"`
	Progress      Progress `json:"progress"`
}
