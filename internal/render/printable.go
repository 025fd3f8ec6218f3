package render

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"intake-chat/pkg"
)

var printTemplate = template.Must(template.New("record").Funcs(template.FuncMap{
	"fallback": orDefault,
	"joined":   joined,
	"listed":   listed,
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Patient Record</title>
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
h1 { color: #2563eb; border-bottom: 2px solid #2563eb; padding-bottom: 10px; }
h2 { color: #1d4ed8; margin-top: 20px; }
.section { margin-bottom: 30px; }
.subsection { margin-left: 20px; }
.generated { color: #6b7280; font-size: 0.9em; }
@media print {
  body { font-size: 12pt; }
  h1 { font-size: 18pt; }
  h2 { font-size: 16pt; }
}
</style>
</head>
<body>
<h1>Patient Record</h1>
<p class="generated">Generated {{.Generated}}</p>
{{with .Record}}
<div class="section">
<h2>Symptoms</h2>
<div class="subsection">
<h3>Current Symptoms</h3>
<p>{{joined .Symptoms.Current.Present .Symptoms.Current.Other "None reported"}}</p>

<h3>Blood Sugar</h3>
<p>Check Frequency: {{fallback .Symptoms.BloodSugar.CheckFrequency "Not provided"}}</p>
<p>Fasting Range: {{fallback .Symptoms.BloodSugar.FastingRange "Not provided"}}</p>
<p>Post-meal Range: {{fallback .Symptoms.BloodSugar.PostMealRange "Not provided"}}</p>

<h3>Medications</h3>
{{if .Symptoms.Medications.List}}<ul>
{{range .Symptoms.Medications.List}}<li>{{.Name}}{{if .Dosage}} ({{.Dosage}}){{end}}</li>
{{end}}</ul>{{else}}<p>None reported</p>{{end}}
<p>Adherence: {{fallback .Symptoms.Medications.Adherence "Not provided"}}</p>
<p>Problems: {{fallback .Symptoms.Medications.Problems "None reported"}}</p>
</div>
</div>

<div class="section">
<h2>Lifestyle</h2>
<div class="subsection">
<h3>Diet</h3>
<p>Description: {{fallback .Lifestyle.Diet.Description "Not provided"}}</p>
<p>Fruits and Vegetables: {{fallback .Lifestyle.Diet.FruitsVegetablesFrequency "Not provided"}}</p>

<h3>Physical Activity</h3>
<p>Frequency: {{fallback .Lifestyle.Activity.Frequency "Not provided"}}</p>

<h3>Mental Health</h3>
<p>{{joined .Lifestyle.Mental.Symptoms.Present .Lifestyle.Mental.Symptoms.Other "No issues reported"}}</p>
{{if .Lifestyle.Mental.StressLevel}}<p>Stress Level: {{.Lifestyle.Mental.StressLevel}}</p>{{end}}

<h3>Cognitive Function</h3>
<p>{{fallback .Lifestyle.Cognitive.Status "Not provided"}}</p>
</div>
</div>

<div class="section">
<h2>Additional Information</h2>
<div class="subsection">
<h3>Other Conditions</h3>
<p>{{listed .Additional.Conditions.Items "None reported"}}</p>

<h3>Healthcare Provider</h3>
<p>Name: {{fallback .Additional.Healthcare.ProviderName "Not provided"}}</p>
<p>Last Visit: {{fallback .Additional.Healthcare.LastVisit "Not provided"}}</p>

<h3>Additional Concerns</h3>
<p>{{fallback .Additional.Concerns "None reported"}}</p>
</div>
</div>
{{end}}
</body>
</html>
`))

// PrintableRecord writes record as a standalone HTML document suitable for
// printing.
func PrintableRecord(w io.Writer, record pkg.PatientRecord, generated time.Time) error {
	data := struct {
		Record    pkg.PatientRecord
		Generated string
	}{record, generated.Format("January 2, 2006 15:04")}
	if err := printTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("render printable record: %w", err)
	}
	return nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func joined(names []string, extra, def string) string {
	items := make([]string, 0, len(names)+1)
	for _, n := range names {
		items = append(items, strings.ReplaceAll(n, "_", " "))
	}
	if extra = strings.TrimSpace(extra); extra != "" {
		items = append(items, extra)
	}
	if len(items) == 0 {
		return def
	}
	return strings.Join(items, ", ")
}

func listed(items []string, def string) string {
	if len(items) == 0 {
		return def
	}
	return strings.Join(items, ", ")
}
