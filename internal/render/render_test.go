package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"intake-chat/pkg"
)

func TestBotMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Thanks for sharing.", "Thanks for sharing."},
		{"question", "How often do you exercise?", "<strong>How often do you exercise?</strong>"},
		{"list", "Your medications:\n- Metformin\n- Lisinopril\nIs that right?",
			"Your medications:<ul><li>Metformin</li><li>Lisinopril</li></ul><strong>Is that right?</strong>"},
		{"question beats list", "- Any side effects?", "<strong>- Any side effects?</strong>"},
		{"lines joined", "Got it.\n\nNext topic.", "Got it.<br>Next topic."},
		{"escaped", "<b>bold</b> & co", "&lt;b&gt;bold&lt;/b&gt; &amp; co"},
		{"crlf", "One\r\nTwo", "One<br>Two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BotMessage(tt.in); got != tt.want {
				t.Errorf("BotMessage(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMarkdownSanitises(t *testing.T) {
	md := NewMarkdown()
	out, err := md.Render("## Plan\n\n- Check feet daily\n\n<script>alert('x')</script><a href=\"javascript:alert(1)\">link</a>")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := string(out)
	if !strings.Contains(html, "<h2") || !strings.Contains(html, "<li>Check feet daily</li>") {
		t.Errorf("markdown not rendered: %s", html)
	}
	if strings.Contains(html, "<script") || strings.Contains(html, "javascript:") {
		t.Errorf("unsafe content kept: %s", html)
	}
}

func TestMarkdownHardWraps(t *testing.T) {
	out, err := NewMarkdown().Render("line one\nline two")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(string(out), "<br") {
		t.Errorf("newline not kept as a break: %s", out)
	}
}

func TestExcerpt(t *testing.T) {
	if got := Excerpt("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := Excerpt("exactly10!", 10); got != "exactly10!" {
		t.Errorf("got %q", got)
	}
	if got := Excerpt("héllo wörld", 5); got != "héllo..." {
		t.Errorf("got %q, want rune-safe cut", got)
	}
}

func TestPrintableRecord(t *testing.T) {
	rec := pkg.NewPatientRecord()
	rec.Symptoms.Current = pkg.SymptomSet{Flags: map[string]bool{"blurred_vision": true, "thirst": false}}
	rec.Symptoms.Medications.List = []pkg.Medication{{Name: "Metformin", Dosage: "500mg"}}
	rec.Additional.Concerns = "<b>cost</b>"
	rec.Additional.Conditions = pkg.Conditions{"description": "asthma", "kidney_disease": "stage 2", "gout": ""}

	var buf bytes.Buffer
	generated := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	if err := PrintableRecord(&buf, rec, generated); err != nil {
		t.Fatalf("PrintableRecord: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Generated March 5, 2024 14:30",
		"<p>blurred vision</p>",
		"<li>Metformin (500mg)</li>",
		"Check Frequency: Not provided",
		"No issues reported",
		"&lt;b&gt;cost&lt;/b&gt;",
		"<p>description: asthma, gout, kidney disease: stage 2</p>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(out, "thirst") {
		t.Error("false symptom printed")
	}
}
