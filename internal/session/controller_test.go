package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/mock-interview/client/internal/errs"
	"github.com/hubenschmidt/mock-interview/client/internal/feedback"
	"github.com/hubenschmidt/mock-interview/client/internal/live"
	"github.com/hubenschmidt/mock-interview/client/internal/media"
	"github.com/hubenschmidt/mock-interview/client/internal/questions"
	"github.com/hubenschmidt/mock-interview/client/internal/upload"
)

// --- fakes ---

type fakeChannel struct {
	events     chan live.Update
	states     chan live.State
	connectErr error

	mu         sync.Mutex
	state      live.State
	sent       []map[string]any
	closes     int
	reconnects int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan live.Update, 16), states: make(chan live.State, 16)}
}

func (f *fakeChannel) set(s live.State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
	f.states <- s
}

func (f *fakeChannel) Connect(ctx context.Context) error {
	f.set(live.Connecting)
	if f.connectErr != nil {
		f.set(live.Error)
		return f.connectErr
	}
	f.set(live.Connected)
	return nil
}

func (f *fakeChannel) Reconnect(ctx context.Context) error {
	f.mu.Lock()
	f.reconnects++
	f.mu.Unlock()
	f.set(live.Connected)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeChannel) State() live.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeChannel) Events() <-chan live.Update { return f.events }
func (f *fakeChannel) States() <-chan live.State  { return f.states }

func (f *fakeChannel) Send(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, v.(map[string]any))
	return nil
}

func (f *fakeChannel) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

type fakeCapture struct {
	audio    chan []float32
	once     sync.Once
	releases atomic.Int32
}

func (c *fakeCapture) Audio() <-chan []float32 { return c.audio }

func (c *fakeCapture) Frame(ctx context.Context) ([]byte, error) { return []byte("jpeg"), nil }

func (c *fakeCapture) Release() {
	c.releases.Add(1)
	c.once.Do(func() { close(c.audio) })
}

type fakeDevice struct {
	err error

	mu       sync.Mutex
	captures []*fakeCapture
}

func (d *fakeDevice) Acquire(ctx context.Context, c media.Constraints) (media.Capture, error) {
	if d.err != nil {
		return nil, d.err
	}
	capture := &fakeCapture{audio: make(chan []float32)}
	d.mu.Lock()
	d.captures = append(d.captures, capture)
	d.mu.Unlock()
	return capture, nil
}

func (d *fakeDevice) capture(i int) *fakeCapture {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.captures[i]
}

type nopSender struct{}

func (nopSender) Send(ctx context.Context, kind upload.Kind, payload []byte, m upload.Meta) error {
	return nil
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []Report
}

func (r *recordingReporter) Report(ctx context.Context, rep Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
	return nil
}

func (r *recordingReporter) last(t *testing.T) Report {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, r.reports, 1)
	return r.reports[0]
}

func sampleResult(overall float64) feedback.Result {
	return feedback.Result{
		ConciseFeedback:    "solid",
		TechnicalScore:     4,
		CommunicationScore: 4,
		OverallScore:       overall,
		Strengths:          []string{"clarity"},
		Improvements:       []string{"depth"},
		SuggestedAnswer:    "more depth",
	}
}

type harness struct {
	ctl      *Controller
	channel  *fakeChannel
	device   *fakeDevice
	reporter *recordingReporter
	cancel   context.CancelFunc
	runErr   chan error

	mu      sync.Mutex
	asked   []string // question, answer pairs sent for feedback
	respond func(call int) (feedback.Result, error)
	confirm bool
}

func newHarness(t *testing.T, n int, opts ...func(*harness)) *harness {
	t.Helper()
	h := &harness{
		channel:  newFakeChannel(),
		device:   &fakeDevice{},
		reporter: &recordingReporter{},
		runErr:   make(chan error, 1),
		respond:  func(int) (feedback.Result, error) { return sampleResult(80), nil },
	}
	for _, o := range opts {
		o(h)
	}

	qs := make([]questions.Question, n)
	for i := range qs {
		qs[i] = questions.Question{Text: "question " + string(rune('A'+i))}
	}

	cfg := upload.DefaultConfig()
	cfg.FrameInterval = time.Hour
	requester := feedback.RequesterFunc(func(ctx context.Context, q, a string) (feedback.Result, error) {
		h.mu.Lock()
		h.asked = append(h.asked, q, a)
		call := len(h.asked) / 2
		respond := h.respond
		h.mu.Unlock()
		return respond(call)
	})

	h.ctl = New(qs, Deps{
		Device:   h.device,
		Uploads:  upload.NewPipeline(cfg, nopSender{}),
		Channel:  h.channel,
		Feedback: requester,
		Confirmer: ConfirmFunc(func(ctx context.Context, prompt string) bool {
			h.mu.Lock()
			defer h.mu.Unlock()
			return h.confirm
		}),
		Reporter: h.reporter,
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.runErr <- h.ctl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.ctl.Done()
	})
	return h
}

func (h *harness) waitFor(t *testing.T, what string, pred func(Snapshot) bool) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return pred(h.ctl.Snapshot()) }, 2*time.Second, 2*time.Millisecond, what)
	return h.ctl.Snapshot()
}

func (h *harness) ready(t *testing.T) {
	t.Helper()
	h.waitFor(t, "ready to record", func(s Snapshot) bool { return s.CanStart })
}

func (h *harness) answer(t *testing.T, text string) {
	t.Helper()
	h.ready(t)
	require.NoError(t, h.ctl.Start())
	if text != "" {
		h.channel.events <- live.Update{Transcript: &text}
		h.waitFor(t, "transcript applied", func(s Snapshot) bool { return s.Transcript == text })
	}
	require.NoError(t, h.ctl.Stop())
	h.waitFor(t, "feedback settled", func(s Snapshot) bool { return s.State == Idle })
}

func strp(s string) *string   { return &s }
func f64p(v float64) *float64 { return &v }
func intp(v int) *int         { return &v }

// --- tests ---

func TestStartStopScoresAndTranscript(t *testing.T) {
	h := newHarness(t, 2)
	h.ready(t)

	require.NoError(t, h.ctl.Start())
	assert.Equal(t, Recording, h.ctl.Snapshot().State)

	h.channel.events <- live.Update{Transcript: strp("hello")}
	h.channel.events <- live.Update{Transcript: strp("world")}
	h.channel.events <- live.Update{Emotion: strp("happy"), Engagement: f64p(0.5)}

	snap := h.waitFor(t, "signal applied", func(s Snapshot) bool { return s.Score.Emotion == "happy" })
	assert.Equal(t, "hello world", snap.Transcript)
	assert.Equal(t, 80, snap.Positivity)
	assert.Equal(t, 50, snap.Engagement)

	require.NoError(t, h.ctl.Stop())
	snap = h.waitFor(t, "answered", func(s Snapshot) bool { return len(s.Answered) == 1 })
	assert.Equal(t, Idle, snap.State)
	assert.Equal(t, 0, snap.Index, "feedback does not advance the question")
	require.NotNil(t, snap.Feedback)
	assert.Equal(t, 80.0, snap.Feedback.OverallScore)

	h.mu.Lock()
	assert.Equal(t, []string{"question A", "hello world"}, h.asked)
	h.mu.Unlock()
	assert.Equal(t, int32(1), h.device.capture(0).releases.Load())
}

func TestAnswerTwoSkipLastCompletes(t *testing.T) {
	h := newHarness(t, 3)

	h.answer(t, "first answer")
	require.NoError(t, h.ctl.Next())
	h.answer(t, "second answer")
	require.NoError(t, h.ctl.Next())
	h.ready(t)
	require.NoError(t, h.ctl.Skip())

	require.NoError(t, <-h.runErr)
	snap := h.ctl.Snapshot()
	assert.Equal(t, Completed, snap.State)

	report := h.reporter.last(t)
	assert.Equal(t, ReasonCompleted, report.Reason)
	assert.Equal(t, []int{0, 1}, report.Answered)
	require.Len(t, report.FeedbackLog, 2)
	assert.Equal(t, 0, report.FeedbackLog[0].Index)
	assert.Equal(t, 1, report.FeedbackLog[1].Index)
	assert.Equal(t, 1, h.channel.closeCount())

	assert.ErrorIs(t, h.ctl.Start(), ErrSessionClosed)
}

func TestStartRequiresConnection(t *testing.T) {
	h := newHarness(t, 1, func(h *harness) { h.channel.connectErr = errs.New(errs.KindChannel, "connect", errors.New("refused")) })

	snap := h.waitFor(t, "idle with channel error", func(s Snapshot) bool {
		return s.State == Idle && s.Connection == live.Error
	})
	require.NotNil(t, snap.Error)
	assert.Equal(t, errs.KindChannel, snap.Error.Kind)
	assert.False(t, snap.CanStart)
	assert.ErrorIs(t, h.ctl.Start(), ErrNotConnected)

	require.NoError(t, h.ctl.Reconnect())
	snap = h.waitFor(t, "reconnected", func(s Snapshot) bool { return s.CanStart })
	assert.Nil(t, snap.Error)
}

func TestMediaFailureIsDismissible(t *testing.T) {
	h := newHarness(t, 1, func(h *harness) {
		h.device.err = errs.New(errs.KindPermission, "acquire", errors.New("denied"))
	})
	h.ready(t)

	err := h.ctl.Start()
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindPermission))

	snap := h.ctl.Snapshot()
	assert.Equal(t, Idle, snap.State)
	require.NotNil(t, snap.Error)
	assert.Equal(t, errs.KindPermission, snap.Error.Kind)

	require.NoError(t, h.ctl.DismissError())
	assert.Nil(t, h.ctl.Snapshot().Error)
}

func TestNavigateWhileRecordingNeedsConfirmation(t *testing.T) {
	h := newHarness(t, 3)
	h.ready(t)
	require.NoError(t, h.ctl.Start())
	h.channel.events <- live.Update{Transcript: strp("half an answer"), Emotion: strp("sad")}
	h.waitFor(t, "transcript", func(s Snapshot) bool { return s.Transcript != "" })

	assert.ErrorIs(t, h.ctl.Next(), ErrConfirmationDeclined)
	snap := h.ctl.Snapshot()
	assert.Equal(t, Recording, snap.State)
	assert.Equal(t, 0, snap.Index)
	assert.Equal(t, int32(0), h.device.capture(0).releases.Load())

	h.mu.Lock()
	h.confirm = true
	h.mu.Unlock()
	require.NoError(t, h.ctl.Select(2))

	snap = h.ctl.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Equal(t, 2, snap.Index)
	assert.Equal(t, "", snap.Transcript)
	assert.Equal(t, 50, snap.Positivity)
	assert.Equal(t, int32(1), h.device.capture(0).releases.Load())

	h.mu.Lock()
	assert.Empty(t, h.asked, "abandoned answers are not evaluated")
	h.mu.Unlock()
}

func TestFeedbackFailureIsRetryable(t *testing.T) {
	h := newHarness(t, 2, func(h *harness) {
		h.respond = func(call int) (feedback.Result, error) {
			if call == 1 {
				return feedback.Result{}, errs.Retryable(errs.KindTransport, "analyze_response", context.DeadlineExceeded)
			}
			return sampleResult(70), nil
		}
	})

	h.answer(t, "my answer")
	snap := h.ctl.Snapshot()
	assert.Equal(t, 0, snap.Index)
	assert.Empty(t, snap.Answered)
	require.NotNil(t, snap.FeedbackError)
	assert.True(t, snap.FeedbackError.Retryable)
	assert.True(t, snap.CanRetry)

	require.NoError(t, h.ctl.RetryFeedback())
	snap = h.waitFor(t, "retry succeeded", func(s Snapshot) bool { return len(s.Answered) == 1 })
	assert.Nil(t, snap.FeedbackError)
	assert.Equal(t, 70.0, snap.Feedback.OverallScore)

	h.mu.Lock()
	assert.Equal(t, []string{"question A", "my answer", "question A", "my answer"}, h.asked)
	h.mu.Unlock()

	assert.ErrorIs(t, h.ctl.RetryFeedback(), ErrInvalidTransition)
}

func TestStaleFeedbackIsDiscarded(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, 2, func(h *harness) {
		h.respond = func(int) (feedback.Result, error) {
			<-gate
			return sampleResult(90), nil
		}
	})
	h.ready(t)
	require.NoError(t, h.ctl.Start())
	require.NoError(t, h.ctl.Stop())
	assert.Equal(t, AwaitingFeedback, h.ctl.Snapshot().State)

	require.NoError(t, h.ctl.Next())
	close(gate)

	// a later message proves the feedback result has been through the loop
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, h.ctl.DismissError())

	snap := h.ctl.Snapshot()
	assert.Equal(t, 1, snap.Index)
	assert.Empty(t, snap.Answered)

	require.NoError(t, h.ctl.Select(0))
	snap = h.ctl.Snapshot()
	assert.Nil(t, snap.Feedback)
	require.NotNil(t, snap.FeedbackError, "abandoned feedback can be retried")
	assert.True(t, snap.CanRetry)
}

func TestSelectRules(t *testing.T) {
	h := newHarness(t, 3)
	h.answer(t, "answer zero")

	err := h.ctl.Select(7)
	assert.True(t, errs.Is(err, errs.KindValidation))
	require.NoError(t, h.ctl.Select(0), "selecting the current question is a no-op")

	require.NoError(t, h.ctl.Select(2))
	require.NoError(t, h.ctl.Select(0))
	snap := h.ctl.Snapshot()
	require.NotNil(t, snap.Feedback)
	assert.False(t, snap.CanStart)
	assert.ErrorIs(t, h.ctl.Start(), ErrAlreadyAnswered)

	h.mu.Lock()
	assert.Len(t, h.asked, 2, "revisiting does not re-run feedback")
	h.mu.Unlock()
}

func TestExitWhileRecordingReleasesAndReports(t *testing.T) {
	h := newHarness(t, 3)
	h.answer(t, "only answer")
	require.NoError(t, h.ctl.Next())
	h.ready(t)
	require.NoError(t, h.ctl.Start())

	require.NoError(t, h.ctl.Exit())
	require.NoError(t, <-h.runErr)

	assert.Equal(t, Exited, h.ctl.Snapshot().State)
	assert.Equal(t, int32(1), h.device.capture(1).releases.Load())
	assert.Equal(t, 1, h.channel.closeCount())

	report := h.reporter.last(t)
	assert.Equal(t, ReasonExited, report.Reason)
	assert.Equal(t, []int{0}, report.Answered)
	assert.Len(t, report.FeedbackLog, 1)

	assert.ErrorIs(t, h.ctl.Exit(), ErrSessionClosed)
	assert.ErrorIs(t, h.ctl.Reconnect(), ErrSessionClosed)
}

func TestContextCancelExits(t *testing.T) {
	h := newHarness(t, 2)
	h.ready(t)

	h.cancel()
	assert.ErrorIs(t, <-h.runErr, context.Canceled)
	assert.Equal(t, Exited, h.ctl.Snapshot().State)
	assert.Equal(t, ReasonExited, h.reporter.last(t).Reason)
}

func TestLiveUpdatesAttributedToCurrentQuestionOnly(t *testing.T) {
	h := newHarness(t, 3)
	h.ready(t)

	// idle: nothing is being answered
	h.channel.events <- live.Update{Transcript: strp("ghost")}
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, h.ctl.Start())
	h.channel.events <- live.Update{Transcript: strp("old question"), QuestionIndex: intp(2)}
	h.channel.events <- live.Update{Transcript: strp("current"), QuestionIndex: intp(0)}

	snap := h.waitFor(t, "tagged update applied", func(s Snapshot) bool { return s.Transcript != "" })
	assert.Equal(t, "current", snap.Transcript)
}

func TestQuestionMarkerSentOnConnectAndChange(t *testing.T) {
	h := newHarness(t, 2)
	h.ready(t)
	require.NoError(t, h.ctl.Next())

	h.channel.mu.Lock()
	defer h.channel.mu.Unlock()
	require.Len(t, h.channel.sent, 2)
	assert.Equal(t, 0, h.channel.sent[0]["question_index"])
	assert.Equal(t, 1, h.channel.sent[1]["question_index"])
	assert.Equal(t, h.ctl.ID(), h.channel.sent[1]["session_id"])
}

func TestInvalidTransitions(t *testing.T) {
	h := newHarness(t, 2)
	h.ready(t)

	assert.ErrorIs(t, h.ctl.Stop(), ErrInvalidTransition)
	assert.ErrorIs(t, h.ctl.RetryFeedback(), ErrInvalidTransition)

	require.NoError(t, h.ctl.Start())
	assert.ErrorIs(t, h.ctl.Start(), ErrInvalidTransition)
	assert.ErrorIs(t, h.ctl.RetryFeedback(), ErrInvalidTransition)
}

func TestRendererSeesEveryTransition(t *testing.T) {
	var mu sync.Mutex
	var states []State
	channel := newFakeChannel()
	ctl := New([]questions.Question{{Text: "only"}}, Deps{
		Device:   &fakeDevice{},
		Uploads:  upload.NewPipeline(upload.DefaultConfig(), nopSender{}),
		Channel:  channel,
		Feedback: feedback.RequesterFunc(func(context.Context, string, string) (feedback.Result, error) { return sampleResult(60), nil }),
		Renderer: RenderFunc(func(s Snapshot) {
			mu.Lock()
			defer mu.Unlock()
			if len(states) == 0 || states[len(states)-1] != s.State {
				states = append(states, s.State)
			}
		}),
	})
	go ctl.Run(context.Background())

	require.Eventually(t, func() bool { return ctl.Snapshot().CanStart }, 2*time.Second, 2*time.Millisecond)
	require.NoError(t, ctl.Start())
	require.NoError(t, ctl.Stop())
	require.Eventually(t, func() bool { return len(ctl.Snapshot().Answered) == 1 }, 2*time.Second, 2*time.Millisecond)
	require.NoError(t, ctl.Next())
	<-ctl.Done()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{Loading, Idle, Recording, Stopping, AwaitingFeedback, Idle, Completed}, states)
}

func TestNewFillsPartialConstraints(t *testing.T) {
	c := New(nil, Deps{Constraints: media.Constraints{SampleRate: 8000}})
	defer c.stop()

	assert.Equal(t, 8000, c.deps.Constraints.SampleRate)
	assert.Equal(t, media.DefaultConstraints().BlockDuration, c.deps.Constraints.BlockDuration)
	assert.Equal(t, 1, c.deps.Constraints.Channels)
}
