// Package feedback obtains the structured evaluation of one finished answer.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hubenschmidt/mock-interview/client/internal/errs"
)

// Result is the evaluation of one answer. It is never mutated after creation.
type Result struct {
	ConciseFeedback    string   `json:"concise_feedback"`
	TechnicalScore     float64  `json:"technical_score"`
	CommunicationScore float64  `json:"communication_score"`
	OverallScore       float64  `json:"overall_score"`
	Strengths          []string `json:"strengths"`
	Improvements       []string `json:"improvements"`
	SuggestedAnswer    string   `json:"suggested_answer"`
}

// Requester acquires feedback for one question and its transcribed answer.
type Requester interface {
	RequestFeedback(ctx context.Context, question, response string) (Result, error)
}

// RequesterFunc adapts a function to Requester.
type RequesterFunc func(ctx context.Context, question, response string) (Result, error)

func (f RequesterFunc) RequestFeedback(ctx context.Context, question, response string) (Result, error) {
	return f(ctx, question, response)
}

// wireResult distinguishes absent fields from zero values.
type wireResult struct {
	ConciseFeedback    *string  `json:"concise_feedback" validate:"required"`
	TechnicalScore     *float64 `json:"technical_score" validate:"required,gte=0,lte=5"`
	CommunicationScore *float64 `json:"communication_score" validate:"required,gte=0,lte=5"`
	OverallScore       *float64 `json:"overall_score" validate:"required,gte=0,lte=100"`
	Strengths          []string `json:"strengths" validate:"required"`
	Improvements       []string `json:"improvements" validate:"required"`
	SuggestedAnswer    *string  `json:"suggested_answer" validate:"required"`
}

var validate = validator.New()

// parseResult decodes and validates a feedback object. Any missing or
// malformed field is a protocol error.
func parseResult(data []byte) (Result, error) {
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		return Result{}, errs.New(errs.KindProtocol, "decode feedback", err)
	}
	if err := validate.Struct(&w); err != nil {
		return Result{}, errs.New(errs.KindProtocol, "validate feedback", fieldErrors(err))
	}
	return Result{
		ConciseFeedback:    *w.ConciseFeedback,
		TechnicalScore:     *w.TechnicalScore,
		CommunicationScore: *w.CommunicationScore,
		OverallScore:       *w.OverallScore,
		Strengths:          w.Strengths,
		Improvements:       w.Improvements,
		SuggestedAnswer:    *w.SuggestedAnswer,
	}, nil
}

func fieldErrors(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid feedback: %s", strings.Join(parts, ", "))
}

// truncate caps s at n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
