package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"intake-chat/pkg"
)

func TestSummarize(t *testing.T) {
	fb := &fakeBackend{doctorResp: &pkg.DoctorResponse{Summary: "**Chief complaint:** fatigue"}}
	s := NewSummarizer(fb, nil)
	sess := newTestSession()
	sess.State.ApplyBackendUpdate(update(t, `{"symptoms":{"current":{"fatigue":true}}}`, "", ""))

	html, err := s.Summarize(context.Background(), sess)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !strings.Contains(string(html), "<strong>Chief complaint:</strong>") {
		t.Errorf("summary = %s", html)
	}
	req := fb.doctorReqs[0]
	if req.Action != pkg.ActionSummary || !req.CurrentRecord.Symptoms.Current.Flags["fatigue"] {
		t.Errorf("request = %+v", req)
	}
}

func TestSummarizeFailure(t *testing.T) {
	s := NewSummarizer(&fakeBackend{doctorErr: errors.New("503")}, nil)
	if _, err := s.Summarize(context.Background(), newTestSession()); err == nil {
		t.Fatal("expected error")
	}
}

func TestAsk(t *testing.T) {
	fb := &fakeBackend{doctorResp: &pkg.DoctorResponse{Answer: "No, <script>alert(1)</script>none reported."}}
	s := NewSummarizer(fb, nil)

	ans, err := s.Ask(context.Background(), newTestSession(), " Any chest pain? ")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.Contains(string(ans.Question), "<strong>Q:</strong> Any chest pain?") {
		t.Errorf("question = %s", ans.Question)
	}
	if strings.Contains(string(ans.Answer), "<script>") {
		t.Errorf("answer not sanitised: %s", ans.Answer)
	}
	if fb.doctorReqs[0].Question != "Any chest pain?" || fb.doctorReqs[0].Action != pkg.ActionQuestion {
		t.Errorf("request = %+v", fb.doctorReqs[0])
	}
}

func TestAskFailureAndEmpty(t *testing.T) {
	s := NewSummarizer(&fakeBackend{doctorErr: errors.New("boom")}, nil)

	ans, err := s.Ask(context.Background(), newTestSession(), "Dosage?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !ans.Failed || !strings.Contains(string(ans.Answer), "error processing your question") {
		t.Errorf("answer = %+v", ans)
	}

	if _, err := s.Ask(context.Background(), newTestSession(), "  "); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("err = %v, want ErrEmptyQuestion", err)
	}
}

func TestRecommendationsExcerpts(t *testing.T) {
	long := strings.Repeat("a", 250)
	fb := &fakeBackend{recsResp: &pkg.RecommendationsResponse{
		Recommendations: "- Check HbA1c",
		Documents: []pkg.Document{
			{Title: "Long study", Content: pkg.LooseString(long)},
			{Title: "Short note", Content: "brief"},
		},
	}}
	s := NewSummarizer(fb, nil)

	recs, err := s.Recommendations(context.Background(), newTestSession())
	if err != nil {
		t.Fatalf("Recommendations: %v", err)
	}
	if !strings.Contains(string(recs.HTML), "<li>Check HbA1c</li>") {
		t.Errorf("html = %s", recs.HTML)
	}
	if len(recs.Documents) != 2 {
		t.Fatalf("documents = %d", len(recs.Documents))
	}
	first := recs.Documents[0]
	if !first.Truncated || first.Excerpt != strings.Repeat("a", 200)+"..." || first.Content != long {
		t.Errorf("long document = %+v", first)
	}
	second := recs.Documents[1]
	if second.Truncated || second.Excerpt != "brief" {
		t.Errorf("short document = %+v", second)
	}
}

func TestFollowUpSanitised(t *testing.T) {
	fb := &fakeBackend{followResp: &pkg.FollowUpResponse{HTML: `<h2>Next visit</h2><img src=x onerror="alert(1)">`}}
	s := NewSummarizer(fb, nil)

	html, err := s.FollowUp(context.Background())
	if err != nil {
		t.Fatalf("FollowUp: %v", err)
	}
	if !strings.Contains(string(html), "<h2>Next visit</h2>") || strings.Contains(string(html), "onerror") {
		t.Errorf("follow-up = %s", html)
	}
}
