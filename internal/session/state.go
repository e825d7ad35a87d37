package session

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hubenschmidt/mock-interview/client/internal/errs"
	"github.com/hubenschmidt/mock-interview/client/internal/feedback"
	"github.com/hubenschmidt/mock-interview/client/internal/live"
	"github.com/hubenschmidt/mock-interview/client/internal/questions"
	"github.com/hubenschmidt/mock-interview/client/internal/score"
)

// State is the controller's lifecycle state.
type State int

const (
	Loading State = iota
	Idle
	Recording
	Stopping
	AwaitingFeedback
	Completed
	Exited
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	case AwaitingFeedback:
		return "awaiting_feedback"
	case Completed:
		return "completed"
	case Exited:
		return "exited"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) terminal() bool {
	return s == Completed || s == Exited
}

var (
	ErrInvalidTransition    = errors.New("action not allowed in the current state")
	ErrNotConnected         = errors.New("live channel is not connected")
	ErrConfirmationDeclined = errors.New("confirmation declined")
	ErrSessionClosed        = errors.New("session closed")
	ErrAlreadyAnswered      = errors.New("question already answered")
)

// UIError is a user-visible error.
type UIError struct {
	Kind      errs.Kind
	Message   string
	Retryable bool
	Index     int
}

func newUIError(err error, index int) *UIError {
	kind, ok := errs.KindOf(err)
	if !ok {
		kind = errs.KindTransport
	}
	return &UIError{Kind: kind, Message: err.Error(), Retryable: errs.IsRetryable(err), Index: index}
}

// Entry is one feedback result tagged with the question it evaluates.
type Entry struct {
	Index    int             `json:"index"`
	Question string          `json:"question"`
	Result   feedback.Result `json:"result"`
}

// Snapshot is a read-only copy of everything a renderer shows.
type Snapshot struct {
	SessionID     string
	State         State
	Index         int
	Total         int
	Question      string
	Answered      []int
	Transcript    string
	Score         score.State
	Positivity    int // percent
	Engagement    int // percent
	Connection    live.State
	Feedback      *feedback.Result // stored result for Index, if answered
	Error         *UIError         // dismissible media or channel error
	FeedbackError *UIError         // pending retryable feedback failure for Index
	CanStart      bool
	CanStop       bool
	CanRetry      bool
}

// Reason says why a session ended.
type Reason string

const (
	ReasonCompleted Reason = "completed"
	ReasonExited    Reason = "exited"
)

// Report is handed to the completion collaborator when the session ends.
type Report struct {
	SessionID   string
	Reason      Reason
	Questions   []questions.Question
	Answered    []int
	FeedbackLog []Entry
	Snapshot    Snapshot
	FinishedAt  time.Time
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
