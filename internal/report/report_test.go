package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/mock-interview/client/internal/feedback"
	"github.com/hubenschmidt/mock-interview/client/internal/questions"
	"github.com/hubenschmidt/mock-interview/client/internal/session"
)

func sampleReport() session.Report {
	return session.Report{
		SessionID: "s-1",
		Reason:    session.ReasonCompleted,
		Questions: []questions.Question{{Text: "Q one"}, {Text: "Q two"}, {Text: "Q three"}},
		Answered:  []int{0, 1},
		FeedbackLog: []session.Entry{
			{Index: 0, Question: "Q one", Result: feedback.Result{
				ConciseFeedback: "good", TechnicalScore: 4, CommunicationScore: 3, OverallScore: 75,
				Strengths: []string{"clarity", "examples"}, Improvements: []string{"depth", "pace"},
			}},
			{Index: 1, Question: "Q two", Result: feedback.Result{
				ConciseFeedback: "fine", TechnicalScore: 3, CommunicationScore: 4, OverallScore: 82,
				Strengths: []string{"examples", "structure", "clarity", "confidence"}, Improvements: []string{"pace"},
			}},
		},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleReport())

	assert.Equal(t, 2, s.Answered)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 3.5, s.TechnicalScore)
	assert.Equal(t, 3.5, s.CommunicationScore)
	assert.Equal(t, 78.5, s.OverallScore)
	assert.Equal(t, []string{"clarity", "examples", "structure"}, s.TopStrengths)
	assert.Equal(t, []string{"pace", "depth"}, s.TopImprovements)
}

func TestSummarizeEmptyLog(t *testing.T) {
	r := sampleReport()
	r.FeedbackLog = nil
	s := Summarize(r)
	assert.Equal(t, 0, s.Answered)
	assert.Zero(t, s.OverallScore)
	assert.Empty(t, s.TopStrengths)
}

func TestRoundsToOneDecimal(t *testing.T) {
	r := sampleReport()
	r.FeedbackLog = append(r.FeedbackLog, session.Entry{Index: 2, Result: feedback.Result{TechnicalScore: 5, CommunicationScore: 5, OverallScore: 90}})
	s := Summarize(r)
	assert.Equal(t, 4.0, s.TechnicalScore)
	assert.Equal(t, 82.3, s.OverallScore)
}

func TestJSONReporterWritesDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.json")
	require.NoError(t, JSONReporter{Path: path}.Report(context.Background(), sampleReport()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "s-1", doc.Summary.SessionID)
	assert.Equal(t, []string{"Q one", "Q two", "Q three"}, doc.Questions)
	require.Len(t, doc.Feedback, 2)
	assert.Equal(t, 82.0, doc.Feedback[1].Result.OverallScore)
}

func TestTextReporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TextReporter{W: &buf}.Report(context.Background(), sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "Answered 2 of 3 questions")
	assert.Contains(t, out, "Overall       78.5 / 100")
	assert.Contains(t, out, "  - clarity")
	assert.Contains(t, out, "Q2. Q two")
}

type failingReporter struct{}

func (failingReporter) Report(context.Context, session.Report) error { return errors.New("disk full") }

func TestMultiRunsAllAndJoinsErrors(t *testing.T) {
	var buf bytes.Buffer
	err := Multi{failingReporter{}, TextReporter{W: &buf}}.Report(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NotEmpty(t, buf.String())
}
