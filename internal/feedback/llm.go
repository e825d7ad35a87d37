package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/hubenschmidt/mock-interview/client/internal/errs"
	"github.com/hubenschmidt/mock-interview/client/internal/metrics"
)

const evaluatorSystemPrompt = "You are an experienced technical interviewer. You grade candidate answers strictly and reply with JSON only."

const evaluatorPrompt = `Analyze this interview question and response:

QUESTION: %s
RESPONSE: %s

Provide feedback in this exact JSON format:
{
    "concise_feedback": "Brief summary of performance",
    "technical_score": 1-5,
    "communication_score": 1-5,
    "overall_score": 1-100,
    "strengths": ["list", "of", "strengths"],
    "improvements": ["list", "of", "improvements"],
    "suggested_answer": "Example of good answer"
}

IMPORTANT: Only return valid JSON, no additional text or markdown.`

// LLMConfig selects an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// LLMEvaluator grades answers directly against a chat model, for deployments
// where the analysis server has no feedback endpoint.
type LLMEvaluator struct {
	client openai.Client
	model  string
	policy Policy
}

func NewLLMEvaluator(cfg LLMConfig, p Policy) *LLMEvaluator {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &LLMEvaluator{client: openai.NewClient(opts...), model: model, policy: p}
}

func (e *LLMEvaluator) RequestFeedback(ctx context.Context, question, response string) (Result, error) {
	params := openai.ChatCompletionNewParams{
		Model: e.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(evaluatorSystemPrompt),
			openai.UserMessage(fmt.Sprintf(evaluatorPrompt, truncate(question, maxQuestionLen), truncate(response, maxResponseLen))),
		},
		Temperature: openai.Float(0.3),
	}

	var result Result
	attempt := 0
	op := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, e.policy.Timeout)
		defer cancel()

		completion, err := e.client.Chat.Completions.New(attemptCtx, params)
		if err != nil {
			metrics.FeedbackAttempts.WithLabelValues("openai", "error").Inc()
			return errs.New(errs.KindTransport, "chat completion", err)
		}
		if len(completion.Choices) == 0 {
			metrics.FeedbackAttempts.WithLabelValues("openai", "error").Inc()
			return errs.New(errs.KindProtocol, "chat completion", errors.New("no choices returned"))
		}

		r, err := parseResult([]byte(stripFences(completion.Choices[0].Message.Content)))
		if err != nil {
			metrics.FeedbackAttempts.WithLabelValues("openai", "error").Inc()
			return err
		}
		metrics.FeedbackAttempts.WithLabelValues("openai", "ok").Inc()
		result = r
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.policy.RetryDelay), uint64(max(e.policy.Retries, 0))),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		slog.Warn("feedback attempt failed", "engine", "openai", "attempt", attempt, "retry_in", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		kind, ok := errs.KindOf(err)
		if !ok {
			kind = errs.KindTransport
		}
		return Result{}, errs.Retryable(kind, "evaluate", err)
	}
	return result, nil
}

// stripFences removes a surrounding markdown code fence, which chat models add
// despite being told not to.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if _, after, ok := strings.Cut(text, "```json"); ok {
		before, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(before)
	}
	if _, after, ok := strings.Cut(text, "```"); ok {
		before, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(before)
	}
	return text
}
