package core

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"intake-chat/internal/logger"
	"intake-chat/pkg"
)

// State holds everything known about one intake: the patient record, the
// completed sections, the backend's current turn and the chat history.
// All methods are safe for concurrent use.
type State struct {
	mu        sync.Mutex
	record    pkg.PatientRecord
	completed map[pkg.SectionID]struct{}
	turn      *pkg.ConversationTurn
	history   []pkg.Message

	now func() time.Time
	log *logrus.Entry
}

// Snapshot is a point-in-time copy of a State.
type Snapshot struct {
	Record    pkg.PatientRecord
	Completed []pkg.SectionID
	Turn      *pkg.ConversationTurn
}

// NewState returns an empty state.
func NewState() *State {
	s := &State{
		now: time.Now,
		log: logger.WithField("component", "state"),
	}
	s.Reset()
	return s
}

// Reset returns the state to its initial values.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = pkg.NewPatientRecord()
	s.completed = make(map[pkg.SectionID]struct{})
	s.turn = nil
	s.history = nil
}

// ApplyBackendUpdate merges u into the state. The record is merged per
// category, completed ids are added to the set and the turn is replaced when
// u carries one. It never fails: unknown section ids are logged and skipped.
func (s *State) ApplyBackendUpdate(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Record != nil {
		s.record = mergeRecord(s.record, u.Record)
	}
	for _, raw := range u.Completed {
		id, ok := pkg.ParseSectionID(raw)
		if !ok {
			s.log.WithField("section", raw).Warn("Ignoring unknown completed section")
			continue
		}
		s.completed[id] = struct{}{}
	}
	if u.NextTurn != nil {
		s.turn = u.NextTurn
	}
}

// IsSectionComplete reports whether the section id has been completed. The
// id is normalised first, so backend aliases are accepted.
func (s *State) IsSectionComplete(id string) bool {
	sid, ok := pkg.ParseSectionID(id)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, done := s.completed[sid]
	return done
}

// IsCategoryFullyComplete reports whether every section of category is
// complete. Unknown categories are never complete.
func (s *State) IsCategoryFullyComplete(category pkg.Category) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.categoryComplete(category)
}

func (s *State) categoryComplete(category pkg.Category) bool {
	sections := pkg.SectionsOf(category)
	if len(sections) == 0 {
		return false
	}
	for _, sec := range sections {
		if _, ok := s.completed[sec.ID]; !ok {
			return false
		}
	}
	return true
}

// DescribeSection returns the tooltip text for one section of the current
// record.
func (s *State) DescribeSection(category pkg.Category, subsection string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return DescribeSection(s.record, category, subsection)
}

// Record returns a copy of the current record.
func (s *State) Record() pkg.PatientRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Clone()
}

// CurrentTurn returns the turn most recently issued by the backend, or nil.
func (s *State) CurrentTurn() *pkg.ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn
}

// CompletedSections returns the completed ids in display order.
func (s *State) CompletedSections() []pkg.SectionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completedList()
}

func (s *State) completedList() []pkg.SectionID {
	out := make([]pkg.SectionID, 0, len(s.completed))
	for _, sec := range pkg.Sections {
		if _, ok := s.completed[sec.ID]; ok {
			out = append(out, sec.ID)
		}
	}
	return out
}

// Snapshot copies the record, completed ids and turn under one lock.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Record:    s.record.Clone(),
		Completed: s.completedList(),
		Turn:      s.turn,
	}
}

// AppendHistory records one chat message and returns it.
func (s *State) AppendHistory(sender pkg.MessageRole, content string) pkg.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := pkg.Message{Sender: sender, Content: content, Timestamp: s.now().UTC()}
	s.history = append(s.history, msg)
	return msg
}

// History returns a copy of the chat history, oldest first.
func (s *State) History() []pkg.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pkg.Message(nil), s.history...)
}

// Progress projects the state onto the eleven progress items.
func (s *State) Progress() pkg.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := pkg.Progress{
		Items:      make([]pkg.ProgressItem, 0, len(pkg.Sections)),
		Categories: make(map[pkg.Category]bool, len(pkg.Categories)),
		Total:      len(pkg.Sections),
	}
	for _, sec := range pkg.Sections {
		_, done := s.completed[sec.ID]
		if done {
			p.Completed++
		}
		p.Items = append(p.Items, pkg.ProgressItem{
			ID:        sec.ID,
			Label:     sec.Label,
			Completed: done,
			Tooltip:   DescribeSection(s.record, sec.Category, sec.Subsection),
		})
	}
	for _, c := range pkg.Categories {
		p.Categories[c] = s.categoryComplete(c)
	}
	return p
}
