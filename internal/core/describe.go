package core

import (
	"strings"

	"intake-chat/pkg"
)

// NotCompleted is shown for sections whose category holds no data yet.
const NotCompleted = "Not completed"

// DescribeSection renders a short human-readable summary of one section of
// record, used as the progress tooltip.
func DescribeSection(record pkg.PatientRecord, category pkg.Category, subsection string) string {
	if record.CategoryEmpty(category) {
		return NotCompleted
	}
	sec, ok := pkg.LookupSection(category, subsection)
	if !ok {
		return "Information not available"
	}

	switch sec.ID {
	case "symptoms-current":
		names := humanize(record.Symptoms.Current.Present())
		if other := record.Symptoms.Current.Other; other != "" {
			names = append(names, other)
		}
		if len(names) == 0 {
			return "No current symptoms reported"
		}
		return "Current symptoms: " + strings.Join(names, ", ")

	case "symptoms-blood_sugar":
		bs := record.Symptoms.BloodSugar
		parts := labelled(
			"Check frequency", bs.CheckFrequency,
			"Fasting range", bs.FastingRange,
			"Post-meal range", bs.PostMealRange,
		)
		if len(parts) == 0 {
			return "Blood sugar information not provided"
		}
		return strings.Join(parts, ", ")

	case "symptoms-medications":
		var meds []string
		for _, m := range record.Symptoms.Medications.List {
			if m.Dosage != "" {
				meds = append(meds, m.Name+" ("+m.Dosage+")")
			} else {
				meds = append(meds, m.Name)
			}
		}
		if len(meds) == 0 {
			return "No medications reported"
		}
		return "Medications: " + strings.Join(meds, ", ")

	case "symptoms-problems":
		m := record.Symptoms.Medications
		parts := labelled("Issues", m.Problems, "Adherence", m.Adherence)
		if len(parts) == 0 {
			return "No medication issues reported"
		}
		return "Medication issues: " + strings.Join(parts, ", ")

	case "lifestyle-diet":
		diet := record.Lifestyle.Diet
		parts := labelled("Description", diet.Description, "Fruits/Vegetables", diet.FruitsVegetablesFrequency)
		if len(parts) == 0 {
			return "Diet information not provided"
		}
		return strings.Join(parts, ", ")

	case "lifestyle-activity":
		if f := record.Lifestyle.Activity.Frequency; f != "" {
			return "Exercise frequency: " + f
		}
		return "Physical activity information not provided"

	case "lifestyle-mental":
		mental := record.Lifestyle.Mental
		var parts []string
		names := humanize(mental.Symptoms.Present())
		if mental.Symptoms.Other != "" {
			names = append(names, mental.Symptoms.Other)
		}
		if len(names) > 0 {
			parts = append(parts, "Mental health symptoms: "+strings.Join(names, ", "))
		}
		if mental.StressLevel != "" {
			parts = append(parts, "Stress level: "+mental.StressLevel)
		}
		if len(parts) == 0 {
			return "No mental health symptoms reported"
		}
		return strings.Join(parts, ", ")

	case "lifestyle-cognitive":
		if s := record.Lifestyle.Cognitive.Status; s != "" {
			return "Cognitive changes: " + s
		}
		return "Cognitive information not provided"

	case "additional-conditions":
		items := record.Additional.Conditions.Items()
		if len(items) == 0 {
			return "No additional conditions reported"
		}
		return "Other conditions: " + strings.Join(items, ", ")

	case "additional-healthcare":
		hc := record.Additional.Healthcare
		parts := labelled("Provider", hc.ProviderName, "Last visit", hc.LastVisit)
		if len(parts) == 0 {
			return "No healthcare provider information"
		}
		return "Healthcare provider: " + strings.Join(parts, ", ")

	case "additional-concerns":
		if c := strings.TrimSpace(record.Additional.Concerns); c != "" {
			return "Concerns: " + c
		}
		return "No additional concerns reported"
	}
	return "Information not available"
}

// labelled pairs up label, value arguments and keeps those with a value.
func labelled(pairs ...string) []string {
	var out []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if v := strings.TrimSpace(pairs[i+1]); v != "" {
			out = append(out, pairs[i]+": "+v)
		}
	}
	return out
}

func humanize(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, strings.ReplaceAll(n, "_", " "))
	}
	return out
}
