package core

import "intake-chat/pkg"

// mergeRecord applies patch onto record category by category. Within a
// category every subsection present in the patch replaces the stored one
// wholesale; absent subsections are kept. Nothing is deep-merged below the
// subsection level.
func mergeRecord(record pkg.PatientRecord, patch *pkg.RecordPatch) pkg.PatientRecord {
	if patch == nil {
		return record
	}
	out := record.Clone()

	if p := patch.Symptoms; p != nil {
		if p.Current != nil {
			out.Symptoms.Current = copySymptomSet(*p.Current)
		}
		if p.BloodSugar != nil {
			out.Symptoms.BloodSugar = *p.BloodSugar
		}
		if p.Medications != nil {
			meds := *p.Medications
			meds.List = append([]pkg.Medication{}, p.Medications.List...)
			out.Symptoms.Medications = meds
		}
	}

	if p := patch.Lifestyle; p != nil {
		if p.Diet != nil {
			out.Lifestyle.Diet = *p.Diet
		}
		if p.Activity != nil {
			out.Lifestyle.Activity = *p.Activity
		}
		if p.Mental != nil {
			out.Lifestyle.Mental = pkg.Mental{
				StressLevel: p.Mental.StressLevel,
				Symptoms:    copySymptomSet(p.Mental.Symptoms),
			}
		}
		if p.Cognitive != nil {
			out.Lifestyle.Cognitive = *p.Cognitive
		}
	}

	if p := patch.Additional; p != nil {
		if p.Conditions != nil {
			conds := make(pkg.Conditions, len(*p.Conditions))
			for k, v := range *p.Conditions {
				conds[k] = v
			}
			out.Additional.Conditions = conds
		}
		if p.Healthcare != nil {
			out.Additional.Healthcare = *p.Healthcare
		}
		if p.Concerns != nil {
			out.Additional.Concerns = *p.Concerns
		}
	}
	return out
}

func copySymptomSet(s pkg.SymptomSet) pkg.SymptomSet {
	out := pkg.SymptomSet{Flags: make(map[string]bool, len(s.Flags)), Other: s.Other}
	for k, v := range s.Flags {
		out.Flags[k] = v
	}
	return out
}
