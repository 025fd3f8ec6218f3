package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"intake-chat/internal/logger"
	"intake-chat/pkg"
)

// Update is one backend response as seen by the state manager. Nil or empty
// fields leave the corresponding state untouched.
type Update struct {
	Record    *pkg.RecordPatch
	Completed []string
	NextTurn  *pkg.ConversationTurn
}

// UpdateFromJSON vets the raw updated_record, completedSections and
// next_prompt values of a backend response. Malformed values are logged and
// dropped; it never fails.
func UpdateFromJSON(updatedRecord, completedSections, nextPrompt json.RawMessage) Update {
	var u Update
	var warnings []string

	patch, w := DecodeRecordPatch(updatedRecord)
	u.Record = patch
	warnings = append(warnings, w...)

	completed, w := DecodeCompletedSections(completedSections)
	u.Completed = completed
	warnings = append(warnings, w...)

	turn, err := pkg.ParseTurn(nextPrompt)
	if err != nil {
		warnings = append(warnings, err.Error())
	}
	u.NextTurn = turn

	for _, msg := range warnings {
		logger.Log.WithField("component", "decode").Warn(msg)
	}
	return u
}

// DecodeCompletedSections reads a completedSections value. Anything other
// than a JSON array is reported and treated as empty; non-string elements are
// skipped.
func DecodeCompletedSections(raw json.RawMessage) ([]string, []string) {
	if isAbsent(raw) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, []string{fmt.Sprintf("invalid completedSections data: %s", truncate(string(raw), 80))}
	}
	var ids, warnings []string
	for _, item := range items {
		var id string
		if err := json.Unmarshal(item, &id); err != nil {
			warnings = append(warnings, fmt.Sprintf("ignoring non-string section id %s", truncate(string(item), 40)))
			continue
		}
		ids = append(ids, id)
	}
	return ids, warnings
}

// DecodeRecordPatch converts a backend updated_record fragment into a typed
// patch. The cloud functions use their own field names (exercise_frequency,
// provider_details and so on); those are mapped onto the record fields.
// Values of the wrong JSON type are dropped and reported.
func DecodeRecordPatch(raw json.RawMessage) (*pkg.RecordPatch, []string) {
	if isAbsent(raw) {
		return nil, nil
	}
	d := &decoder{}
	root, ok := d.object(raw, "updated_record")
	if !ok {
		return nil, d.warnings
	}

	patch := &pkg.RecordPatch{}
	for key, val := range root {
		switch pkg.Category(key) {
		case pkg.CategorySymptoms:
			patch.Symptoms = d.symptoms(val)
		case pkg.CategoryLifestyle:
			patch.Lifestyle = d.lifestyle(val)
		case pkg.CategoryAdditional:
			patch.Additional = d.additional(val)
		default:
			d.warnf("ignoring unknown record category %q", key)
		}
	}
	return patch, d.warnings
}

type decoder struct {
	warnings []string
}

func (d *decoder) warnf(format string, args ...interface{}) {
	d.warnings = append(d.warnings, fmt.Sprintf(format, args...))
}

func (d *decoder) object(raw json.RawMessage, path string) (map[string]json.RawMessage, bool) {
	if isAbsent(raw) {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		d.warnf("%s: expected an object, got %s", path, truncate(string(raw), 60))
		return nil, false
	}
	return obj, true
}

// str returns the text under the first of keys that is present, so an
// emptied value still overrides later aliases. List the cloud function's
// name first. Objects and arrays are reported and skipped.
func (d *decoder) str(obj map[string]json.RawMessage, path string, keys ...string) string {
	for _, key := range keys {
		raw, ok := obj[key]
		if !ok || isAbsent(raw) {
			continue
		}
		s, ok := scalar(raw)
		if !ok {
			d.warnf("%s.%s: expected text, got %s", path, key, truncate(string(raw), 60))
			continue
		}
		return strings.TrimSpace(s)
	}
	return ""
}

func (d *decoder) symptoms(raw json.RawMessage) *pkg.SymptomsPatch {
	obj, ok := d.object(raw, "symptoms")
	if !ok {
		return nil
	}
	p := &pkg.SymptomsPatch{}
	for key, val := range obj {
		switch key {
		case "current":
			p.Current = d.symptomSet(val, "symptoms.current", "other_symptoms", "other")
		case "blood_sugar", "blood-sugar":
			if o, ok := d.object(val, "symptoms.blood_sugar"); ok {
				p.BloodSugar = &pkg.BloodSugar{
					CheckFrequency: d.str(o, "symptoms.blood_sugar", "check_frequency"),
					FastingRange:   d.str(o, "symptoms.blood_sugar", "fasting_range"),
					PostMealRange:  d.str(o, "symptoms.blood_sugar", "post_meal_range"),
				}
			}
		case "medications":
			p.Medications = d.medications(val)
		default:
			d.warnf("ignoring unknown subsection symptoms.%s", key)
		}
	}
	return p
}

// symptomSet reads a name -> bool object. Free text is taken from the first
// present of otherKeys.
func (d *decoder) symptomSet(raw json.RawMessage, path string, otherKeys ...string) *pkg.SymptomSet {
	obj, ok := d.object(raw, path)
	if !ok {
		return nil
	}
	set := &pkg.SymptomSet{Flags: make(map[string]bool, len(obj))}
	for key, val := range obj {
		if b, ok := boolean(val); ok {
			set.Flags[key] = b
			continue
		}
		if isAbsent(val) || contains(otherKeys, key) {
			continue
		}
		d.warnf("%s.%s: expected true or false, got %s", path, key, truncate(string(val), 40))
	}
	set.Other = d.str(obj, path, otherKeys...)
	return set
}

func (d *decoder) medications(raw json.RawMessage) *pkg.Medications {
	obj, ok := d.object(raw, "symptoms.medications")
	if !ok {
		return nil
	}
	m := &pkg.Medications{List: []pkg.Medication{}}
	if listRaw, ok := obj["medication_list"]; ok && !isAbsent(listRaw) {
		var items []json.RawMessage
		if err := json.Unmarshal(listRaw, &items); err != nil {
			d.warnf("symptoms.medications.medication_list: expected a list")
		}
		for _, item := range items {
			if s, ok := scalar(item); ok {
				if s = strings.TrimSpace(s); s != "" {
					m.List = append(m.List, pkg.Medication{Name: s})
				}
				continue
			}
			o, ok := d.object(item, "symptoms.medications.medication_list[]")
			if !ok {
				continue
			}
			med := pkg.Medication{
				Name:   d.str(o, "medication", "name", "medication", "drug"),
				Dosage: d.str(o, "medication", "dosage", "dose"),
			}
			if med.Name != "" {
				m.List = append(m.List, med)
			}
		}
	}
	m.Adherence = d.str(obj, "symptoms.medications", "adherence")

	if probRaw, ok := obj["problems"]; ok && !isAbsent(probRaw) {
		if s, ok := scalar(probRaw); ok {
			m.Problems = strings.TrimSpace(s)
		} else if o, ok := d.object(probRaw, "symptoms.medications.problems"); ok {
			m.Problems = d.str(o, "symptoms.medications.problems", "description")
			if m.Problems == "" {
				if has, ok := boolean(o["has_problems"]); ok && has {
					m.Problems = pkg.ProblemsReported
				}
			}
		}
	}
	return m
}

func (d *decoder) lifestyle(raw json.RawMessage) *pkg.LifestylePatch {
	obj, ok := d.object(raw, "lifestyle")
	if !ok {
		return nil
	}
	p := &pkg.LifestylePatch{}
	for key, val := range obj {
		switch key {
		case "diet":
			if o, ok := d.object(val, "lifestyle.diet"); ok {
				p.Diet = &pkg.Diet{
					Description:               d.str(o, "lifestyle.diet", "overall_health", "description"),
					FruitsVegetablesFrequency: d.str(o, "lifestyle.diet", "fruits_vegetables_frequency"),
				}
			}
		case "activity":
			if o, ok := d.object(val, "lifestyle.activity"); ok {
				p.Activity = &pkg.Activity{
					Frequency: d.str(o, "lifestyle.activity", "exercise_frequency", "frequency"),
				}
			}
		case "mental":
			if o, ok := d.object(val, "lifestyle.mental"); ok {
				mental := &pkg.Mental{
					StressLevel: d.str(o, "lifestyle.mental", "stress_level"),
					Symptoms:    pkg.SymptomSet{Flags: map[string]bool{}},
				}
				if s := d.symptomSet(o["symptoms"], "lifestyle.mental.symptoms", "other", "other_symptoms"); s != nil {
					mental.Symptoms = *s
				}
				p.Mental = mental
			}
		case "cognitive":
			if o, ok := d.object(val, "lifestyle.cognitive"); ok {
				status := d.str(o, "lifestyle.cognitive", "description", "status")
				if status == "" {
					if has, ok := boolean(o["has_changes"]); ok {
						status = pkg.CognitiveNoChanges
						if has {
							status = pkg.CognitiveChanges
						}
					}
				}
				p.Cognitive = &pkg.Cognitive{Status: status}
			}
		default:
			d.warnf("ignoring unknown subsection lifestyle.%s", key)
		}
	}
	return p
}

func (d *decoder) additional(raw json.RawMessage) *pkg.AdditionalPatch {
	obj, ok := d.object(raw, "additional")
	if !ok {
		return nil
	}
	p := &pkg.AdditionalPatch{}
	for key, val := range obj {
		switch key {
		case "conditions":
			if c, ok := d.conditions(val); ok {
				p.Conditions = &c
			}
		case "healthcare":
			if o, ok := d.object(val, "additional.healthcare"); ok {
				p.Healthcare = &pkg.Healthcare{
					ProviderName: d.str(o, "additional.healthcare", "provider_details", "provider_name"),
					LastVisit:    d.str(o, "additional.healthcare", "last_visit"),
				}
			}
		case "concerns":
			if s, ok := scalar(val); ok {
				s = strings.TrimSpace(s)
				p.Concerns = &s
			} else if !isAbsent(val) {
				d.warnf("additional.concerns: expected text, got %s", truncate(string(val), 60))
			}
		default:
			d.warnf("ignoring unknown subsection additional.%s", key)
		}
	}
	return p
}

// conditions accepts a name -> detail object, a list of names, or a single
// free-text description.
func (d *decoder) conditions(raw json.RawMessage) (pkg.Conditions, bool) {
	if isAbsent(raw) {
		return nil, false
	}
	out := pkg.Conditions{}
	if s, ok := scalar(raw); ok {
		if s = strings.TrimSpace(s); s != "" {
			out["description"] = s
		}
		return out, true
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if s, ok := scalar(item); ok && strings.TrimSpace(s) != "" {
				out[strings.TrimSpace(s)] = ""
			}
		}
		return out, true
	}
	obj, ok := d.object(raw, "additional.conditions")
	if !ok {
		return nil, false
	}
	for key, val := range obj {
		if b, ok := boolean(val); ok {
			out[key] = yesNo(b)
			continue
		}
		s, ok := scalar(val)
		if !ok {
			d.warnf("additional.conditions.%s: expected text, got %s", key, truncate(string(val), 40))
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out[key] = s
		}
	}
	return out, true
}

func isAbsent(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// scalar converts a JSON string or number to text. Booleans are not
// treated as text.
func scalar(raw json.RawMessage) (string, bool) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case nil:
		return "", true
	}
	return "", false
}

func boolean(raw json.RawMessage) (bool, bool) {
	switch string(bytes.TrimSpace(raw)) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
