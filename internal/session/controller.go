// Package session implements the interview session controller: a state machine
// driven by a single event loop. User commands, live channel events, device
// acquisition and feedback results all arrive as messages on one inbox, so no
// state is touched outside the loop goroutine.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hubenschmidt/mock-interview/client/internal/feedback"
	"github.com/hubenschmidt/mock-interview/client/internal/live"
	"github.com/hubenschmidt/mock-interview/client/internal/media"
	"github.com/hubenschmidt/mock-interview/client/internal/metrics"
	"github.com/hubenschmidt/mock-interview/client/internal/questions"
	"github.com/hubenschmidt/mock-interview/client/internal/score"
	"github.com/hubenschmidt/mock-interview/client/internal/transcript"
	"github.com/hubenschmidt/mock-interview/client/internal/upload"
)

// Channel is the live update connection as the controller sees it.
type Channel interface {
	Connect(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Close() error
	State() live.State
	Events() <-chan live.Update
	States() <-chan live.State
	Send(v any) error
}

// Confirmer asks the user a yes/no question. It may block until answered.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// Renderer receives a snapshot after every applied message. It must not call
// back into the controller synchronously.
type Renderer interface {
	Render(Snapshot)
}

type RenderFunc func(Snapshot)

func (f RenderFunc) Render(s Snapshot) { f(s) }

// Reporter receives the session when it completes or is exited.
type Reporter interface {
	Report(ctx context.Context, r Report) error
}

// Deps are the controller's collaborators. Confirmer, Renderer and Reporter
// are optional; without a Confirmer every confirmation is declined.
type Deps struct {
	Device      media.Device
	Constraints media.Constraints
	Uploads     *upload.Pipeline
	Channel     Channel
	Feedback    feedback.Requester
	Confirmer   Confirmer
	Renderer    Renderer
	Reporter    Reporter
	SessionID   string
}

const confirmPrompt = "Recording in progress. Stop recording and move on?"

// errNeedsConfirmation makes a navigation command bounce back to the caller,
// who asks the Confirmer outside the loop and resubmits.
var errNeedsConfirmation = errors.New("confirmation required")

type pendingFeedback struct {
	index int
	token uint64
}

// Controller owns one interview session.
type Controller struct {
	deps Deps
	id   string

	inbox chan any
	done  chan struct{}
	life  context.Context
	stop  context.CancelFunc
	snap  atomic.Pointer[Snapshot]

	// loop-owned
	state      State
	questions  []questions.Question
	index      int
	answered   map[int]bool
	log        []Entry
	answers    map[int]string
	transcript transcript.Accumulator
	scores     *score.Aggregator
	conn       live.State

	capture  media.Capture
	uploader *upload.Uploader

	reply        chan error // reply of the command being applied
	replies      []pendingReply
	acquireToken uint64
	startReply   chan error

	token      uint64
	pending    *pendingFeedback
	failures   map[int]*UIError // retryable feedback failures by question
	visibleErr *UIError
}

func New(qs []questions.Question, deps Deps) *Controller {
	id := deps.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	deps.Constraints = deps.Constraints.WithDefaults()
	life, stop := context.WithCancel(context.Background())
	c := &Controller{
		deps:      deps,
		id:        id,
		inbox:     make(chan any, 64),
		done:      make(chan struct{}),
		life:      life,
		stop:      stop,
		state:     Loading,
		questions: qs,
		answered:  make(map[int]bool),
		answers:   make(map[int]string),
		failures:  make(map[int]*UIError),
		scores:    score.NewAggregator(),
		conn:      live.Disconnected,
	}
	c.publish()
	return c
}

func (c *Controller) ID() string { return c.id }

// Snapshot returns the most recently published state. Safe from any goroutine.
func (c *Controller) Snapshot() Snapshot {
	return *c.snap.Load()
}

// Done is closed once the session has completed or exited.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Run connects the live channel and processes messages until the session
// completes, is exited, or ctx ends. Ending ctx has Exit semantics.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	metrics.SessionsTotal.Inc()
	slog.Info("session started", "session", c.id, "questions", len(c.questions))

	if len(c.questions) == 0 {
		c.finish(ReasonCompleted)
		return nil
	}

	go c.forward()
	go func() {
		err := c.deps.Channel.Connect(c.life)
		c.post(connectDone{err: err})
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session interrupted", "session", c.id, "reason", ctx.Err())
			c.finish(ReasonExited)
			c.flushReplies()
			return ctx.Err()
		case m := <-c.inbox:
			c.handle(m)
			c.publish()
			c.flushReplies()
			if c.state.terminal() {
				return nil
			}
		}
	}
}

// forward turns channel callbacks into loop messages.
func (c *Controller) forward() {
	events := c.deps.Channel.Events()
	states := c.deps.Channel.States()
	for {
		select {
		case <-c.done:
			return
		case u, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.post(liveUpdate{u})
		case s, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			c.post(connState{s})
		}
	}
}

func (c *Controller) post(m any) bool {
	select {
	case c.inbox <- m:
		return true
	case <-c.done:
		return false
	}
}

type command struct {
	apply func() error
	reply chan error
}

// errDeferred tells the loop that the handler will answer the reply later.
var errDeferred = errors.New("deferred")

// do runs fn on the loop and returns its result.
func (c *Controller) do(fn func() error) error {
	reply := make(chan error, 1)
	if !c.post(command{apply: fn, reply: reply}) {
		return ErrSessionClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrSessionClosed
		}
	}
}

type pendingReply struct {
	ch  chan error
	err error
}

// respond queues a command reply. Replies go out after the snapshot is
// published so a caller never observes state older than its own command.
func (c *Controller) respond(ch chan error, err error) {
	c.replies = append(c.replies, pendingReply{ch: ch, err: err})
}

func (c *Controller) flushReplies() {
	for _, r := range c.replies {
		r.ch <- r.err
	}
	c.replies = nil
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	slog.Info("session state", "session", c.id, "from", c.state.String(), "to", s.String(), "question", c.index)
	c.state = s
	metrics.StateTransitions.WithLabelValues(s.String()).Inc()
}

func (c *Controller) publish() {
	s := Snapshot{
		SessionID:     c.id,
		State:         c.state,
		Index:         c.index,
		Total:         len(c.questions),
		Answered:      sortedKeys(c.answered),
		Transcript:    c.transcript.String(),
		Score:         c.scores.State(),
		Positivity:    score.Percent(c.scores.State().Positivity),
		Engagement:    score.Percent(c.scores.State().Engagement),
		Connection:    c.conn,
		Error:         c.visibleErr,
		FeedbackError: c.failures[c.index],
		CanStart:      c.state == Idle && c.conn == live.Connected && !c.answered[c.index] && c.startReply == nil,
		CanStop:       c.state == Recording,
		CanRetry:      c.state == Idle && c.failures[c.index] != nil,
	}
	if c.index < len(c.questions) {
		s.Question = c.questions[c.index].Text
	}
	if r, ok := c.feedbackFor(c.index); ok {
		s.Feedback = &r
	}
	c.snap.Store(&s)

	if c.deps.Renderer != nil {
		c.deps.Renderer.Render(s)
	}
}

func (c *Controller) feedbackFor(i int) (feedback.Result, bool) {
	for _, e := range c.log {
		if e.Index == i {
			return e.Result, true
		}
	}
	return feedback.Result{}, false
}

// finish tears the session down and reports it. Terminal.
func (c *Controller) finish(reason Reason) {
	c.releaseCapture(false)
	c.pending = nil
	c.failStart(ErrSessionClosed)

	if err := c.deps.Channel.Close(); err != nil {
		slog.Warn("live channel close failed", "error", err)
	}

	if reason == ReasonCompleted {
		c.setState(Completed)
	} else {
		c.setState(Exited)
	}
	c.publish()

	report := Report{
		SessionID:   c.id,
		Reason:      reason,
		Questions:   c.questions,
		Answered:    sortedKeys(c.answered),
		FeedbackLog: append([]Entry(nil), c.log...),
		Snapshot:    c.Snapshot(),
		FinishedAt:  time.Now(),
	}
	if c.deps.Reporter != nil {
		if err := c.deps.Reporter.Report(context.WithoutCancel(c.life), report); err != nil {
			slog.Error("session report failed", "session", c.id, "error", err)
		}
	}
	c.stop()
	slog.Info("session finished", "session", c.id, "reason", reason, "answered", len(c.answered), "total", len(c.questions))
}
