package pkg

import (
	"encoding/json"
	"sort"
	"strings"
)

// Category is one of the three fixed top-level groups of the intake record.
type Category string

const (
	CategorySymptoms   Category = "symptoms"
	CategoryLifestyle  Category = "lifestyle"
	CategoryAdditional Category = "additional"
)

// Categories lists the record categories in display order.
var Categories = []Category{CategorySymptoms, CategoryLifestyle, CategoryAdditional}

// SectionID identifies a tracked (category, subsection) pair, for example
// "symptoms-blood_sugar".
type SectionID string

// Section describes one of the eleven progress items shown to the patient.
type Section struct {
	ID         SectionID
	Category   Category
	Subsection string
	Label      string
}

// Sections is the fixed eleven-item schema in display order.
var Sections = []Section{
	{"symptoms-current", CategorySymptoms, "current", "Past week symptoms"},
	{"symptoms-blood_sugar", CategorySymptoms, "blood_sugar", "Blood sugar levels"},
	{"symptoms-medications", CategorySymptoms, "medications", "Medications"},
	{"symptoms-problems", CategorySymptoms, "problems", "Medication issues"},
	{"lifestyle-diet", CategoryLifestyle, "diet", "Diet"},
	{"lifestyle-activity", CategoryLifestyle, "activity", "Physical activity"},
	{"lifestyle-mental", CategoryLifestyle, "mental", "Mental health"},
	{"lifestyle-cognitive", CategoryLifestyle, "cognitive", "Cognitive function"},
	{"additional-conditions", CategoryAdditional, "conditions", "Other conditions"},
	{"additional-healthcare", CategoryAdditional, "healthcare", "Healthcare providers"},
	{"additional-concerns", CategoryAdditional, "concerns", "Additional concerns"},
}

// sectionAliases maps spellings used by the cloud functions and the progress
// list markup onto canonical section ids.
var sectionAliases = map[string]SectionID{
	"symptoms-blood-sugar": "symptoms-blood_sugar",
	"symptoms-blood":       "symptoms-blood_sugar",
}

// subsectionAliases does the same for bare subsection names.
var subsectionAliases = map[string]string{
	"blood":       "blood_sugar",
	"blood-sugar": "blood_sugar",
}

// ParseSectionID normalises s to a known section id. The second return value
// is false when s does not name one of the eleven sections.
func ParseSectionID(s string) (SectionID, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if alias, ok := sectionAliases[s]; ok {
		return alias, true
	}
	for _, sec := range Sections {
		if string(sec.ID) == s {
			return sec.ID, true
		}
	}
	return "", false
}

// LookupSection returns the section for a category and subsection pair.
func LookupSection(category Category, subsection string) (Section, bool) {
	sub := strings.TrimSpace(strings.ToLower(subsection))
	if alias, ok := subsectionAliases[sub]; ok {
		sub = alias
	}
	for _, sec := range Sections {
		if sec.Category == category && sec.Subsection == sub {
			return sec, true
		}
	}
	return Section{}, false
}

// SectionsOf returns the fixed sections belonging to category.
func SectionsOf(category Category) []Section {
	var out []Section
	for _, sec := range Sections {
		if sec.Category == category {
			out = append(out, sec)
		}
	}
	return out
}

// SymptomSet is a mapping of symptom name to present/absent plus an optional
// free-text "other" entry. It serialises as one flat JSON object.
type SymptomSet struct {
	Flags map[string]bool
	Other string
}

// Present returns the names whose flag is true, sorted.
func (s SymptomSet) Present() []string {
	var names []string
	for name, on := range s.Flags {
		if on {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (s SymptomSet) IsEmpty() bool {
	return len(s.Flags) == 0 && strings.TrimSpace(s.Other) == ""
}

func (s SymptomSet) clone() SymptomSet {
	out := SymptomSet{Flags: make(map[string]bool, len(s.Flags)), Other: s.Other}
	for k, v := range s.Flags {
		out.Flags[k] = v
	}
	return out
}

// MarshalJSON writes the flags and, when set, the "other" text.
func (s SymptomSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.fields("other"))
}

// fields flattens the set into one object, storing the free text under
// otherKey.
func (s SymptomSet) fields(otherKey string) map[string]interface{} {
	m := make(map[string]interface{}, len(s.Flags)+1)
	for k, v := range s.Flags {
		m[k] = v
	}
	if s.Other != "" {
		m[otherKey] = s.Other
	}
	return m
}

type BloodSugar struct {
	CheckFrequency string `json:"check_frequency,omitempty"`
	FastingRange   string `json:"fasting_range,omitempty"`
	PostMealRange  string `json:"post_meal_range,omitempty"`
}

func (b BloodSugar) IsEmpty() bool {
	return b.CheckFrequency == "" && b.FastingRange == "" && b.PostMealRange == ""
}

type Medication struct {
	Name   string `json:"name"`
	Dosage string `json:"dosage,omitempty"`
}

// ProblemsReported is the Problems text for a bare has_problems flag.
const ProblemsReported = "Yes"

type Medications struct {
	List      []Medication
	Adherence string
	Problems  string
}

// MarshalJSON writes the cloud function layout, where problems is an object
// of {has_problems, description}.
func (m Medications) MarshalJSON() ([]byte, error) {
	list := m.List
	if list == nil {
		list = []Medication{}
	}
	description := m.Problems
	if description == ProblemsReported {
		description = ""
	}
	return json.Marshal(map[string]interface{}{
		"taking_medications": len(list) > 0,
		"medication_list":    list,
		"adherence":          m.Adherence,
		"problems": map[string]interface{}{
			"has_problems": m.Problems != "",
			"description":  description,
		},
	})
}

func (m Medications) IsEmpty() bool {
	return len(m.List) == 0 && m.Adherence == "" && m.Problems == ""
}

func (m Medications) clone() Medications {
	out := m
	out.List = append([]Medication{}, m.List...)
	return out
}

type Symptoms struct {
	Current     SymptomSet
	BloodSugar  BloodSugar
	Medications Medications
}

func (s Symptoms) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"current":     s.Current.fields("other_symptoms"),
		"blood_sugar": s.BloodSugar,
		"medications": s.Medications,
	})
}

func (s Symptoms) IsEmpty() bool {
	return s.Current.IsEmpty() && s.BloodSugar.IsEmpty() && s.Medications.IsEmpty()
}

type Diet struct {
	Description               string `json:"overall_health"`
	FruitsVegetablesFrequency string `json:"fruits_vegetables_frequency"`
}

type Activity struct {
	Frequency string `json:"exercise_frequency"`
}

type Mental struct {
	StressLevel string     `json:"stress_level"`
	Symptoms    SymptomSet `json:"symptoms"`
}

func (m Mental) IsEmpty() bool { return m.StressLevel == "" && m.Symptoms.IsEmpty() }

// Status texts the decoder derives from a bare has_changes flag.
const (
	CognitiveChanges   = "Changes noticed"
	CognitiveNoChanges = "No changes noticed"
)

type Cognitive struct {
	Status string
}

// MarshalJSON writes {has_changes, description}. An unanswered section
// stays an empty object so it does not read back as "no changes".
func (c Cognitive) MarshalJSON() ([]byte, error) {
	if c.Status == "" {
		return []byte("{}"), nil
	}
	out := map[string]interface{}{"has_changes": false, "description": ""}
	switch c.Status {
	case CognitiveNoChanges:
	case CognitiveChanges:
		out["has_changes"] = true
	default:
		out["has_changes"] = true
		out["description"] = c.Status
	}
	return json.Marshal(out)
}

type Lifestyle struct {
	Diet      Diet      `json:"diet"`
	Activity  Activity  `json:"activity"`
	Mental    Mental    `json:"mental"`
	Cognitive Cognitive `json:"cognitive"`
}

func (l Lifestyle) IsEmpty() bool {
	return l.Diet == (Diet{}) && l.Activity == (Activity{}) && l.Mental.IsEmpty() && l.Cognitive == (Cognitive{})
}

// Conditions maps a condition name to free-text detail.
type Conditions map[string]string

// MarshalJSON writes yes/no details back as booleans.
func (c Conditions) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(c))
	for k, v := range c {
		switch v {
		case "yes":
			m[k] = true
		case "no":
			m[k] = false
		default:
			m[k] = v
		}
	}
	return json.Marshal(m)
}

// Items returns one "name: detail" entry per condition, sorted by name.
// Underscores in names become spaces and empty details are left off.
func (c Conditions) Items() []string {
	items := make([]string, 0, len(c))
	for _, name := range c.Names() {
		item := strings.ReplaceAll(name, "_", " ")
		if detail := strings.TrimSpace(c[name]); detail != "" {
			item += ": " + detail
		}
		items = append(items, item)
	}
	return items
}

// Names returns the condition names, sorted.
func (c Conditions) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Healthcare struct {
	ProviderName string `json:"provider_details"`
	LastVisit    string `json:"last_visit,omitempty"`
}

type Additional struct {
	Conditions Conditions `json:"conditions"`
	Healthcare Healthcare `json:"healthcare"`
	Concerns   string     `json:"concerns"`
}

func (a Additional) IsEmpty() bool {
	return len(a.Conditions) == 0 && a.Healthcare == (Healthcare{}) && strings.TrimSpace(a.Concerns) == ""
}

// PatientRecord is the structured medical history collected during intake.
// Its shape is fixed; only leaf values are filled in as the conversation
// progresses. It marshals with the cloud functions' field names, since the
// record is sent back to them on every turn.
type PatientRecord struct {
	Symptoms   Symptoms   `json:"symptoms"`
	Lifestyle  Lifestyle  `json:"lifestyle"`
	Additional Additional `json:"additional"`
}

// NewPatientRecord returns the empty-shaped record used at session start.
func NewPatientRecord() PatientRecord {
	return PatientRecord{
		Symptoms: Symptoms{
			Current:     SymptomSet{Flags: map[string]bool{}},
			Medications: Medications{List: []Medication{}},
		},
		Lifestyle: Lifestyle{
			Mental: Mental{Symptoms: SymptomSet{Flags: map[string]bool{}}},
		},
		Additional: Additional{Conditions: Conditions{}},
	}
}

// Clone returns a deep copy of the record.
func (r PatientRecord) Clone() PatientRecord {
	out := r
	out.Symptoms.Current = r.Symptoms.Current.clone()
	out.Symptoms.Medications = r.Symptoms.Medications.clone()
	out.Lifestyle.Mental.Symptoms = r.Lifestyle.Mental.Symptoms.clone()
	out.Additional.Conditions = make(Conditions, len(r.Additional.Conditions))
	for k, v := range r.Additional.Conditions {
		out.Additional.Conditions[k] = v
	}
	return out
}

// CategoryEmpty reports whether category carries no data at all. Unknown
// categories are reported as empty.
func (r PatientRecord) CategoryEmpty(category Category) bool {
	switch category {
	case CategorySymptoms:
		return r.Symptoms.IsEmpty()
	case CategoryLifestyle:
		return r.Lifestyle.IsEmpty()
	case CategoryAdditional:
		return r.Additional.IsEmpty()
	}
	return true
}

// RecordPatch is a partial record supplied by the backend. A nil category
// leaves the stored category untouched; within a category a nil subsection
// leaves the stored subsection untouched and a non-nil one replaces it.
type RecordPatch struct {
	Symptoms   *SymptomsPatch
	Lifestyle  *LifestylePatch
	Additional *AdditionalPatch
}

type SymptomsPatch struct {
	Current     *SymptomSet
	BloodSugar  *BloodSugar
	Medications *Medications
}

type LifestylePatch struct {
	Diet      *Diet
	Activity  *Activity
	Mental    *Mental
	Cognitive *Cognitive
}

type AdditionalPatch struct {
	Conditions *Conditions
	Healthcare *Healthcare
	Concerns   *string
}
