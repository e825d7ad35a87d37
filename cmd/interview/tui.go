package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hubenschmidt/mock-interview/client/internal/live"
	"github.com/hubenschmidt/mock-interview/client/internal/questions"
	"github.com/hubenschmidt/mock-interview/client/internal/session"
)

var (
	colorText   = lipgloss.Color("#cdd6f4")
	colorMuted  = lipgloss.Color("#a6adc8")
	colorBorder = lipgloss.Color("#45475a")
	colorTitle  = lipgloss.Color("#74c7ec")
	colorGood   = lipgloss.Color("#a6e3a1")
	colorWarn   = lipgloss.Color("#fab387")
	colorBad    = lipgloss.Color("#f38ba8")

	styleApp   = lipgloss.NewStyle().Foreground(colorText).Padding(1, 2)
	stylePane  = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(colorBorder).Padding(0, 1)
	styleTitle = lipgloss.NewStyle().Foreground(colorTitle).Bold(true)
	styleMuted = lipgloss.NewStyle().Foreground(colorMuted)
	styleGood  = lipgloss.NewStyle().Foreground(colorGood)
	styleWarn  = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	styleBad   = lipgloss.NewStyle().Foreground(colorBad).Bold(true)
)

const tuiHelp = "s start · x stop · r retry · n next · k skip · 1-9 select · c reconnect · d dismiss · q quit"

// ─── bridge between the session loop and the program ────────────────────────

type confirmRequest struct {
	prompt string
	answer chan bool
}

// bridge is the session's Renderer and Confirmer. Render only flags that a
// newer snapshot exists; the program pulls it from the controller.
type bridge struct {
	dirty    chan struct{}
	confirms chan confirmRequest
}

func newBridge() *bridge {
	return &bridge{dirty: make(chan struct{}, 1), confirms: make(chan confirmRequest)}
}

func (b *bridge) Render(session.Snapshot) {
	select {
	case b.dirty <- struct{}{}:
	default:
	}
}

func (b *bridge) Confirm(ctx context.Context, prompt string) bool {
	req := confirmRequest{prompt: prompt, answer: make(chan bool, 1)}
	select {
	case b.confirms <- req:
	case <-ctx.Done():
		return false
	}
	select {
	case ok := <-req.answer:
		return ok
	case <-ctx.Done():
		return false
	}
}

// ─── messages ───────────────────────────────────────────────────────────────

type snapshotMsg session.Snapshot

type sessionDoneMsg struct{ snap session.Snapshot }

type confirmMsg confirmRequest

type commandMsg struct {
	op  string
	err error
}

// ─── model ──────────────────────────────────────────────────────────────────

type model struct {
	ctrl    *session.Controller
	bridge  *bridge
	snap    session.Snapshot
	confirm *confirmRequest
	status  string
	width   int
	done    bool
}

func runTUI(ctx context.Context, intake *questions.Intake, deps session.Deps) error {
	b := newBridge()
	deps.Renderer = b
	deps.Confirmer = b
	ctrl := session.New(intake.Questions, deps)

	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Run(ctx) }()

	m := model{ctrl: ctrl, bridge: b, snap: ctrl.Snapshot(), width: 80}
	_, uiErr := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if uiErr != nil {
		_ = ctrl.Exit()
	}

	err := <-runErr
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if errors.Is(uiErr, tea.ErrProgramKilled) {
		uiErr = nil
	}
	return errors.Join(err, uiErr)
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.waitSnapshot(), m.waitConfirm())
}

func (m model) waitSnapshot() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.bridge.dirty:
			return snapshotMsg(m.ctrl.Snapshot())
		case <-m.ctrl.Done():
			return sessionDoneMsg{snap: m.ctrl.Snapshot()}
		}
	}
}

func (m model) waitConfirm() tea.Cmd {
	return func() tea.Msg {
		select {
		case req := <-m.bridge.confirms:
			return confirmMsg(req)
		case <-m.ctrl.Done():
			return nil
		}
	}
}

func command(op string, fn func() error) tea.Cmd {
	return func() tea.Msg { return commandMsg{op: op, err: fn()} }
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case snapshotMsg:
		m.snap = session.Snapshot(msg)
		return m, m.waitSnapshot()

	case sessionDoneMsg:
		m.snap = msg.snap
		m.done = true
		return m, tea.Quit

	case confirmMsg:
		req := confirmRequest(msg)
		m.confirm = &req
		return m, m.waitConfirm()

	case commandMsg:
		m.status = ""
		if msg.err != nil && !errors.Is(msg.err, session.ErrSessionClosed) {
			m.status = fmt.Sprintf("%s: %v", msg.op, msg.err)
		}
		return m, nil

	case tea.KeyMsg:
		if m.confirm != nil {
			key := msg.String()
			m.confirm.answer <- key == "y" || key == "Y"
			m.confirm = nil
			return m, nil
		}
		return m, m.handleKey(msg.String())
	}
	return m, nil
}

func (m model) handleKey(key string) tea.Cmd {
	c := m.ctrl
	switch key {
	case "s":
		return command("start", c.Start)
	case "x":
		return command("stop", c.Stop)
	case "r":
		return command("retry", c.RetryFeedback)
	case "n":
		return command("next", c.Next)
	case "k":
		return command("skip", c.Skip)
	case "c":
		return command("reconnect", c.Reconnect)
	case "d":
		return command("dismiss", c.DismissError)
	case "q", "ctrl+c", "esc":
		return command("exit", c.Exit)
	}
	if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
		i := int(key[0] - '1')
		return command("select", func() error { return c.Select(i) })
	}
	return nil
}

func (m model) View() string {
	s := m.snap
	inner := max(m.width-8, 20)
	var b strings.Builder

	b.WriteString(styleTitle.Render(fmt.Sprintf("Question %d of %d", s.Index+1, s.Total)))
	b.WriteString("  ")
	b.WriteString(stateLabel(s.State))
	b.WriteString("  ")
	b.WriteString(connLabel(s.Connection))
	b.WriteString("\n")
	b.WriteString(stylePane.Width(inner).Render(s.Question))
	b.WriteString("\n")

	fmt.Fprintf(&b, "positivity %s %3d%%   engagement %s %3d%%   emotion %s\n",
		bar(s.Positivity), s.Positivity, bar(s.Engagement), s.Engagement, orDash(s.Score.Emotion))

	transcript := s.Transcript
	if transcript == "" {
		transcript = styleMuted.Render("no transcript yet")
	}
	b.WriteString(stylePane.Width(inner).Render(transcript))
	b.WriteString("\n")

	if f := s.Feedback; f != nil {
		body := fmt.Sprintf("%s\n\ntechnical %.1f/5 · communication %.1f/5 · overall %.0f/100",
			f.ConciseFeedback, f.TechnicalScore, f.CommunicationScore, f.OverallScore)
		if len(f.Strengths) > 0 {
			body += "\n" + styleGood.Render("+ "+strings.Join(f.Strengths, "\n+ "))
		}
		if len(f.Improvements) > 0 {
			body += "\n" + styleWarn.Render("- "+strings.Join(f.Improvements, "\n- "))
		}
		b.WriteString(stylePane.Width(inner).Render(body))
		b.WriteString("\n")
	}
	if e := s.FeedbackError; e != nil {
		b.WriteString(styleBad.Render("feedback failed: "+e.Message) + styleMuted.Render("  (r to retry)") + "\n")
	}
	if e := s.Error; e != nil {
		b.WriteString(styleBad.Render(e.Message) + styleMuted.Render("  (d to dismiss)") + "\n")
	}
	if m.status != "" {
		b.WriteString(styleWarn.Render(m.status) + "\n")
	}
	if m.confirm != nil {
		b.WriteString(styleWarn.Render(m.confirm.prompt+" [y/N]") + "\n")
	}
	b.WriteString(styleMuted.Render(fmt.Sprintf("answered %d/%d · %s", len(s.Answered), s.Total, tuiHelp)))
	return styleApp.Render(b.String())
}

func stateLabel(st session.State) string {
	label := "● " + st.String()
	switch st {
	case session.Recording:
		return styleBad.Render(label)
	case session.Stopping, session.AwaitingFeedback:
		return styleWarn.Render(label)
	default:
		return styleMuted.Render(label)
	}
}

func connLabel(st live.State) string {
	switch st {
	case live.Connected:
		return styleGood.Render("live")
	case live.Error:
		return styleBad.Render("offline (c to reconnect)")
	default:
		return styleMuted.Render(st.String())
	}
}

func bar(percent int) string {
	filled := min(max(percent/5, 0), 20)
	return strings.Repeat("█", filled) + strings.Repeat("░", 20-filled)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
