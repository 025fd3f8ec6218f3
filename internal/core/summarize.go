package core

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"intake-chat/internal/backend"
	"intake-chat/internal/logger"
	"intake-chat/internal/render"
	"intake-chat/pkg"
)

// excerptLength is how much of a document is shown before "Read more".
const excerptLength = 200

// Summarizer serves the doctor's tabs: the record summary, questions about
// the record, literature-backed recommendations and follow-up content.
type Summarizer struct {
	Backend  backend.Client
	Markdown *render.Markdown
}

func NewSummarizer(client backend.Client, md *render.Markdown) *Summarizer {
	if md == nil {
		md = render.NewMarkdown()
	}
	return &Summarizer{Backend: client, Markdown: md}
}

// Summarize asks the backend for a summary of the session's record.
func (s *Summarizer) Summarize(ctx context.Context, sess *Session) (template.HTML, error) {
	resp, err := s.Backend.DoctorSummaryAndQA(ctx, pkg.DoctorRequest{
		Action:        pkg.ActionSummary,
		CurrentRecord: sess.State.Record(),
	})
	if err != nil {
		logger.ForSession(sess.ID).WithError(err).Error("Error generating summary")
		return "", fmt.Errorf("generate summary: %w", err)
	}
	return s.Markdown.Render(string(resp.Summary))
}

// Answer is one question and answer pair, rendered.
type Answer struct {
	Question template.HTML
	Answer   template.HTML
	Failed   bool
}

// Ask answers a doctor's question about the record. A failed backend call
// yields the fixed apology as the answer rather than an error.
func (s *Summarizer) Ask(ctx context.Context, sess *Session, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, invalid(ErrEmptyQuestion)
	}
	q, err := s.Markdown.Render("**Q:** " + question)
	if err != nil {
		return nil, err
	}
	out := &Answer{Question: q}

	answer := QuestionErrorReply
	resp, err := s.Backend.DoctorSummaryAndQA(ctx, pkg.DoctorRequest{
		Action:        pkg.ActionQuestion,
		CurrentRecord: sess.State.Record(),
		Question:      question,
	})
	if err != nil {
		logger.ForSession(sess.ID).WithError(err).Error("Error getting answer")
		out.Failed = true
	} else {
		answer = string(resp.Answer)
	}

	if out.Answer, err = s.Markdown.Render("**A:** " + answer); err != nil {
		return nil, err
	}
	return out, nil
}

// DocumentView is a retrieved document prepared for display.
type DocumentView struct {
	Title     string
	Excerpt   string
	Content   string
	Truncated bool
}

type Recommendations struct {
	HTML      template.HTML
	Documents []DocumentView
}

// Recommendations asks the backend for recommendations based on the record
// and the literature it retrieves.
func (s *Summarizer) Recommendations(ctx context.Context, sess *Session) (*Recommendations, error) {
	resp, err := s.Backend.GenerateRecommendations(ctx, sess.State.Record())
	if err != nil {
		logger.ForSession(sess.ID).WithError(err).Error("Error generating recommendations")
		return nil, fmt.Errorf("generate recommendations: %w", err)
	}
	html, err := s.Markdown.Render(string(resp.Recommendations))
	if err != nil {
		return nil, err
	}
	out := &Recommendations{HTML: html, Documents: make([]DocumentView, 0, len(resp.Documents))}
	for _, doc := range resp.Documents {
		content := string(doc.Content)
		excerpt := render.Excerpt(content, excerptLength)
		out.Documents = append(out.Documents, DocumentView{
			Title:     string(doc.Title),
			Excerpt:   excerpt,
			Content:   content,
			Truncated: excerpt != content,
		})
	}
	return out, nil
}

// FollowUp fetches the follow-up page content. The backend returns HTML,
// which is sanitised before use.
func (s *Summarizer) FollowUp(ctx context.Context) (template.HTML, error) {
	resp, err := s.Backend.GenerateFollowUp(ctx)
	if err != nil {
		logger.Log.WithError(err).Error("Error loading follow-up content")
		return "", fmt.Errorf("generate follow-up: %w", err)
	}
	return s.Markdown.Sanitize(string(resp.HTML)), nil
}
