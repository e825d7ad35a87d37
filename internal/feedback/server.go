package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hubenschmidt/mock-interview/client/internal/errs"
	"github.com/hubenschmidt/mock-interview/client/internal/metrics"
)

const (
	maxQuestionLen = 1000
	maxResponseLen = 5000
)

// Policy bounds one feedback acquisition.
type Policy struct {
	Timeout    time.Duration // per attempt
	Retries    int
	RetryDelay time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Timeout: 20 * time.Second, Retries: 2, RetryDelay: 1500 * time.Millisecond}
}

type analyzeRequest struct {
	Question string `json:"question"`
	Response string `json:"response"`
}

type analyzeResponse struct {
	Status   string          `json:"status"`
	Feedback json.RawMessage `json:"feedback"`
	Error    string          `json:"error"`
}

// ServerClient calls the analysis server's /analyze_response endpoint.
type ServerClient struct {
	client *resty.Client
}

func NewServerClient(baseURL string, p Policy) *ServerClient {
	c := &ServerClient{}
	c.client = resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(p.Timeout).
		SetRetryCount(p.Retries).
		SetRetryWaitTime(p.RetryDelay).
		SetRetryMaxWaitTime(p.RetryDelay).
		SetRetryAfter(func(*resty.Client, *resty.Response) (time.Duration, error) {
			return p.RetryDelay, nil
		}).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			_, perr := interpret(resp)
			return perr != nil
		}).
		AddRetryHook(func(resp *resty.Response, err error) {
			attempt := 0
			if resp != nil {
				attempt = resp.Request.Attempt
				if err == nil {
					_, err = interpret(resp)
				}
			}
			metrics.FeedbackAttempts.WithLabelValues("server", "retry").Inc()
			slog.Warn("feedback attempt failed", "attempt", attempt, "error", err)
		}).
		SetLogger(slogAdapter{}).
		SetHeader("Content-Type", "application/json")
	return c
}

func (c *ServerClient) RequestFeedback(ctx context.Context, question, response string) (Result, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(analyzeRequest{
			Question: truncate(question, maxQuestionLen),
			Response: truncate(response, maxResponseLen),
		}).
		Post("/analyze_response")
	if err != nil {
		metrics.FeedbackAttempts.WithLabelValues("server", "error").Inc()
		if ctx.Err() != nil {
			return Result{}, errs.New(errs.KindTransport, "analyze_response", err)
		}
		return Result{}, errs.Retryable(errs.KindTransport, "analyze_response", err)
	}

	result, err := interpret(resp)
	if err != nil {
		metrics.FeedbackAttempts.WithLabelValues("server", "error").Inc()
		kind, _ := errs.KindOf(err)
		return Result{}, errs.Retryable(kind, "analyze_response", err)
	}
	metrics.FeedbackAttempts.WithLabelValues("server", "ok").Inc()
	return result, nil
}

// interpret maps a completed HTTP exchange to a Result or a typed error.
func interpret(resp *resty.Response) (Result, error) {
	if resp.IsError() {
		return Result{}, errs.Errorf(errs.KindTransport, "analyze_response", "status %d: %s", resp.StatusCode(), serverMessage(resp.Body()))
	}

	var env analyzeResponse
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return Result{}, errs.New(errs.KindProtocol, "decode response", err)
	}
	if env.Status != "success" {
		return Result{}, errs.Errorf(errs.KindTransport, "analyze_response", "server reported %q: %s", env.Status, env.Error)
	}
	if len(env.Feedback) == 0 {
		return Result{}, errs.New(errs.KindProtocol, "decode response", fmt.Errorf("response has no feedback"))
	}
	return parseResult(env.Feedback)
}

func serverMessage(body []byte) string {
	var env analyzeResponse
	if json.Unmarshal(body, &env) == nil && env.Error != "" {
		return env.Error
	}
	return truncate(strings.TrimSpace(string(body)), 200)
}

// slogAdapter routes resty's internal logging through slog so it never writes
// to the terminal directly.
type slogAdapter struct{}

func (slogAdapter) Errorf(format string, v ...any) { slog.Error(fmt.Sprintf(format, v...)) }
func (slogAdapter) Warnf(format string, v ...any)  { slog.Debug(fmt.Sprintf(format, v...)) }
func (slogAdapter) Debugf(format string, v ...any) { slog.Debug(fmt.Sprintf(format, v...)) }
