// Package report renders a finished interview: score averages and the most
// frequent strengths and improvements across answered questions.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hubenschmidt/mock-interview/client/internal/session"
)

const topN = 3

// Summary aggregates a session's feedback log.
type Summary struct {
	SessionID          string    `json:"session_id"`
	Reason             string    `json:"reason"`
	Answered           int       `json:"answered"`
	Total              int       `json:"total"`
	TechnicalScore     float64   `json:"technical_score"`     // out of 5
	CommunicationScore float64   `json:"communication_score"` // out of 5
	OverallScore       float64   `json:"overall_score"`       // out of 100
	TopStrengths       []string  `json:"top_strengths"`
	TopImprovements    []string  `json:"top_improvements"`
	FinishedAt         time.Time `json:"finished_at"`
}

// Summarize averages scores to one decimal and ranks strengths and
// improvements by frequency, ties broken by first appearance.
func Summarize(r session.Report) Summary {
	s := Summary{
		SessionID:  r.SessionID,
		Reason:     string(r.Reason),
		Answered:   len(r.FeedbackLog),
		Total:      len(r.Questions),
		FinishedAt: r.FinishedAt,
	}
	if len(r.FeedbackLog) == 0 {
		return s
	}

	var tech, comm, overall float64
	var strengths, improvements []string
	for _, e := range r.FeedbackLog {
		tech += e.Result.TechnicalScore
		comm += e.Result.CommunicationScore
		overall += e.Result.OverallScore
		strengths = append(strengths, e.Result.Strengths...)
		improvements = append(improvements, e.Result.Improvements...)
	}
	n := float64(len(r.FeedbackLog))
	s.TechnicalScore = round1(tech / n)
	s.CommunicationScore = round1(comm / n)
	s.OverallScore = round1(overall / n)
	s.TopStrengths = topFrequent(strengths, topN)
	s.TopImprovements = topFrequent(improvements, topN)
	return s
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func topFrequent(items []string, n int) []string {
	counts := make(map[string]int)
	var order []string
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if counts[item] == 0 {
			order = append(order, item)
		}
		counts[item]++
	}

	// stable insertion sort keeps first-appearance order among equal counts
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && counts[order[j]] > counts[order[j-1]]; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
	if len(order) > n {
		order = order[:n]
	}
	return order
}

// document is what JSONReporter writes.
type document struct {
	Summary   Summary         `json:"summary"`
	Questions []string        `json:"questions"`
	Feedback  []session.Entry `json:"feedback"`
}

// JSONReporter writes the summary and full feedback log to Path.
type JSONReporter struct {
	Path string
}

func (j JSONReporter) Report(ctx context.Context, r session.Report) error {
	doc := document{Summary: Summarize(r), Feedback: r.FeedbackLog}
	for _, q := range r.Questions {
		doc.Questions = append(doc.Questions, q.Text)
	}
	if doc.Feedback == nil {
		doc.Feedback = []session.Entry{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if dir := filepath.Dir(j.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := os.WriteFile(j.Path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// TextReporter prints a human-readable summary.
type TextReporter struct {
	W io.Writer
}

func (t TextReporter) Report(ctx context.Context, r session.Report) error {
	s := Summarize(r)
	var b strings.Builder

	fmt.Fprintf(&b, "Interview %s (%s)\n", s.Reason, s.SessionID)
	fmt.Fprintf(&b, "Answered %d of %d questions\n", s.Answered, s.Total)
	if s.Answered > 0 {
		fmt.Fprintf(&b, "Technical     %.1f / 5\n", s.TechnicalScore)
		fmt.Fprintf(&b, "Communication %.1f / 5\n", s.CommunicationScore)
		fmt.Fprintf(&b, "Overall       %.1f / 100\n", s.OverallScore)
		writeList(&b, "Strengths", s.TopStrengths)
		writeList(&b, "To improve", s.TopImprovements)
	}
	for _, e := range r.FeedbackLog {
		fmt.Fprintf(&b, "\nQ%d. %s\n  %s\n", e.Index+1, e.Question, e.Result.ConciseFeedback)
	}

	_, err := io.WriteString(t.W, b.String())
	return err
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "  - %s\n", item)
	}
}

// Multi fans a report out to several reporters and joins their errors.
type Multi []session.Reporter

func (m Multi) Report(ctx context.Context, r session.Report) error {
	var errs []error
	for _, rep := range m {
		if err := rep.Report(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
