package session

import (
	"log/slog"

	"github.com/hubenschmidt/mock-interview/client/internal/errs"
	"github.com/hubenschmidt/mock-interview/client/internal/feedback"
	"github.com/hubenschmidt/mock-interview/client/internal/live"
	"github.com/hubenschmidt/mock-interview/client/internal/media"
	"github.com/hubenschmidt/mock-interview/client/internal/metrics"
	"github.com/hubenschmidt/mock-interview/client/internal/score"
	"github.com/hubenschmidt/mock-interview/client/internal/upload"
)

type connectDone struct{ err error }

type liveUpdate struct{ u live.Update }

type connState struct{ s live.State }

type acquired struct {
	token   uint64
	capture media.Capture
	err     error
}

type feedbackDone struct {
	index  int
	token  uint64
	result feedback.Result
	err    error
}

func (c *Controller) handle(m any) {
	switch m := m.(type) {
	case command:
		c.reply = m.reply
		err := m.apply()
		c.reply = nil
		if err != errDeferred {
			c.respond(m.reply, err)
		}
	case connectDone:
		if m.err != nil {
			slog.Warn("initial live connect failed", "session", c.id, "error", m.err)
		}
		if c.state == Loading {
			c.setState(Idle)
		}
	case connState:
		c.onConnState(m.s)
	case liveUpdate:
		c.onUpdate(m.u)
	case acquired:
		c.onAcquired(m)
	case feedbackDone:
		c.onFeedback(m)
	default:
		slog.Warn("unknown session message", "type", m)
	}
}

// --- public commands ---

// Start acquires the media devices and begins recording the current question.
// It returns once the device has been acquired or has failed.
func (c *Controller) Start() error {
	return c.do(c.start)
}

// Stop ends the recording and requests feedback for the answer.
func (c *Controller) Stop() error {
	return c.do(c.stopRecording)
}

// RetryFeedback repeats a failed feedback request with the stored answer.
func (c *Controller) RetryFeedback() error {
	return c.do(c.retryFeedback)
}

// Next moves to the following question, completing the session after the last.
func (c *Controller) Next() error {
	return c.navigate("next", func() int { return c.index + 1 })
}

// Skip leaves the current question unanswered and moves on.
func (c *Controller) Skip() error {
	return c.navigate("skip", func() int { return c.index + 1 })
}

// Select jumps to question i. Answered questions show their stored feedback.
func (c *Controller) Select(i int) error {
	return c.navigate("select", func() int { return i })
}

// Exit abandons the session from any non-terminal state.
func (c *Controller) Exit() error {
	return c.do(func() error {
		if c.state.terminal() {
			return ErrInvalidTransition
		}
		c.finish(ReasonExited)
		return nil
	})
}

// DismissError clears the visible media or channel error.
func (c *Controller) DismissError() error {
	return c.do(func() error {
		c.visibleErr = nil
		return nil
	})
}

// Reconnect makes one user-triggered attempt to restore the live channel.
func (c *Controller) Reconnect() error {
	select {
	case <-c.done:
		return ErrSessionClosed
	default:
	}
	return c.deps.Channel.Reconnect(c.life)
}

// --- recording ---

func (c *Controller) start() error {
	switch {
	case c.state != Idle || c.startReply != nil:
		return ErrInvalidTransition
	case c.conn != live.Connected:
		return ErrNotConnected
	case c.answered[c.index]:
		return ErrAlreadyAnswered
	}

	c.resetLive()
	c.visibleErr = nil
	c.acquireToken++
	token := c.acquireToken
	c.startReply = c.reply

	device, constraints, ctx := c.deps.Device, c.deps.Constraints, c.life
	go func() {
		capture, err := device.Acquire(ctx, constraints)
		if !c.post(acquired{token: token, capture: capture, err: err}) && capture != nil {
			capture.Release()
		}
	}()

	// The reply channel is answered from onAcquired.
	return errDeferred
}

func (c *Controller) onAcquired(m acquired) {
	if m.token != c.acquireToken || c.startReply == nil || c.state != Idle {
		if m.capture != nil {
			m.capture.Release()
		}
		return
	}

	if m.err != nil {
		slog.Warn("media acquisition failed", "session", c.id, "question", c.index, "error", m.err)
		kind, _ := errs.KindOf(m.err)
		metrics.Errors.WithLabelValues("media", string(kind)).Inc()
		c.visibleErr = newUIError(m.err, c.index)
		c.replyStart(m.err)
		return
	}

	c.capture = m.capture
	c.uploader = c.deps.Uploads.Start(c.life, m.capture, upload.Meta{SessionID: c.id, QuestionIndex: c.index})
	c.setState(Recording)
	c.replyStart(nil)
}

func (c *Controller) replyStart(err error) {
	if c.startReply != nil {
		c.respond(c.startReply, err)
		c.startReply = nil
	}
}

// failStart answers a pending Start and invalidates its acquisition.
func (c *Controller) failStart(err error) {
	if c.startReply == nil {
		return
	}
	c.acquireToken++
	c.replyStart(err)
}

func (c *Controller) stopRecording() error {
	if c.state != Recording {
		return ErrInvalidTransition
	}
	c.setState(Stopping)
	c.publish()

	c.releaseCapture(true)
	c.requestFeedback(c.index, c.transcript.String())
	return nil
}

// releaseCapture stops the uploader and releases the device exactly once.
// flush uploads the trailing partial segment; abandoning an answer skips it.
func (c *Controller) releaseCapture(flush bool) {
	if c.uploader != nil {
		if flush {
			c.uploader.Stop()
		} else {
			c.uploader.Cancel()
		}
		c.uploader = nil
	}
	if c.capture != nil {
		c.capture.Release()
		c.capture = nil
	}
}

// --- feedback ---

func (c *Controller) requestFeedback(index int, answer string) {
	c.token++
	token := c.token
	c.pending = &pendingFeedback{index: index, token: token}
	c.answers[index] = answer
	delete(c.failures, index)
	c.setState(AwaitingFeedback)

	question := c.questions[index].Text
	requester, ctx := c.deps.Feedback, c.life
	go func() {
		result, err := requester.RequestFeedback(ctx, question, answer)
		c.post(feedbackDone{index: index, token: token, result: result, err: err})
	}()
}

func (c *Controller) onFeedback(m feedbackDone) {
	if c.pending == nil || c.pending.token != m.token || m.index != c.index {
		slog.Info("stale feedback discarded", "session", c.id, "question", m.index)
		return
	}
	c.pending = nil
	c.setState(Idle)

	if m.err != nil {
		slog.Error("feedback failed", "session", c.id, "question", m.index, "error", m.err)
		kind, _ := errs.KindOf(m.err)
		metrics.Errors.WithLabelValues("feedback", string(kind)).Inc()
		uiErr := newUIError(m.err, m.index)
		uiErr.Retryable = true
		c.failures[m.index] = uiErr
		return
	}

	c.log = append(c.log, Entry{Index: m.index, Question: c.questions[m.index].Text, Result: m.result})
	c.answered[m.index] = true
	delete(c.answers, m.index)
	slog.Info("feedback received", "session", c.id, "question", m.index, "overall", m.result.OverallScore)
}

func (c *Controller) retryFeedback() error {
	if c.state != Idle || c.failures[c.index] == nil {
		return ErrInvalidTransition
	}
	c.requestFeedback(c.index, c.answers[c.index])
	return nil
}

// --- navigation ---

func (c *Controller) navigate(action string, target func() int) error {
	err := c.do(func() error { return c.changeQuestion(action, target(), false) })
	if err != errNeedsConfirmation {
		return err
	}

	confirmed := c.deps.Confirmer != nil && c.deps.Confirmer.Confirm(c.life, confirmPrompt)
	if !confirmed {
		slog.Info("navigation declined", "session", c.id, "action", action)
		return ErrConfirmationDeclined
	}
	return c.do(func() error { return c.changeQuestion(action, target(), true) })
}

func (c *Controller) changeQuestion(action string, next int, confirmed bool) error {
	switch c.state {
	case Idle, AwaitingFeedback:
	case Recording:
		if !confirmed {
			return errNeedsConfirmation
		}
	default:
		return ErrInvalidTransition
	}

	if action == "select" {
		if next < 0 || next >= len(c.questions) {
			return errs.Errorf(errs.KindValidation, "select", "question %d out of range [0,%d)", next, len(c.questions))
		}
		if next == c.index {
			return nil
		}
	}

	// Nothing more goes out for the question being left.
	c.releaseCapture(false)
	c.failStart(ErrInvalidTransition)
	if c.pending != nil {
		slog.Info("abandoning in-flight feedback", "session", c.id, "question", c.pending.index)
		c.failures[c.pending.index] = &UIError{
			Kind:      errs.KindTransport,
			Message:   "feedback request abandoned",
			Retryable: true,
			Index:     c.pending.index,
		}
		c.pending = nil
	}

	if next >= len(c.questions) {
		c.finish(ReasonCompleted)
		return nil
	}

	slog.Info("question changed", "session", c.id, "action", action, "from", c.index, "to", next)
	c.index = next
	c.resetLive()
	c.setState(Idle)
	c.announceQuestion()
	return nil
}

func (c *Controller) resetLive() {
	c.transcript.Reset()
	c.scores.Reset()
}

// --- live channel ---

func (c *Controller) onConnState(s live.State) {
	c.conn = s
	switch s {
	case live.Connected:
		if c.visibleErr != nil && c.visibleErr.Kind == errs.KindChannel {
			c.visibleErr = nil
		}
		c.announceQuestion()
	case live.Error:
		c.visibleErr = &UIError{
			Kind:      errs.KindChannel,
			Message:   "Live connection lost. Reconnect to record new answers.",
			Retryable: true,
			Index:     c.index,
		}
	}
}

// announceQuestion tells the server which question subsequent uploads belong to.
func (c *Controller) announceQuestion() {
	if c.conn != live.Connected || c.state.terminal() {
		return
	}
	msg := map[string]any{"type": "question", "session_id": c.id, "question_index": c.index}
	if err := c.deps.Channel.Send(msg); err != nil {
		slog.Debug("question marker not sent", "error", err)
	}
}

// onUpdate applies a live event to the current question. Events are accepted
// only while an answer for the current index is being captured or evaluated,
// and events tagged with another index are dropped.
func (c *Controller) onUpdate(u live.Update) {
	switch {
	case c.state != Recording && c.state != Stopping && c.state != AwaitingFeedback:
		metrics.LiveUpdates.WithLabelValues("stale").Inc()
		return
	case u.QuestionIndex != nil && *u.QuestionIndex != c.index:
		metrics.LiveUpdates.WithLabelValues("stale").Inc()
		return
	}

	if u.Transcript != nil {
		c.transcript.Append(*u.Transcript)
	}
	if u.HasSignal() {
		sig := score.Signal{At: u.ReceivedAt}
		if u.Emotion != nil {
			sig.Emotion, sig.HasEmotion = *u.Emotion, true
		}
		if u.Engagement != nil {
			sig.Engagement, sig.HasEngagement = *u.Engagement, true
		}
		c.scores.Apply(sig)
	}
	metrics.LiveUpdates.WithLabelValues("applied").Inc()
}
