package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hubenschmidt/mock-interview/client/internal/questions"
	"github.com/hubenschmidt/mock-interview/client/internal/session"
)

const headlessHelp = `commands: start | stop | retry | next | skip | select <n> | reconnect | dismiss | status | wait <duration> | exit`

// console drives a session from line-oriented input. It prints a line per
// visible change and reads confirmation answers from the same input.
type console struct {
	lines <-chan string
	mu    sync.Mutex
	out   io.Writer
	last  session.Snapshot
	seen  bool
}

func runHeadless(ctx context.Context, intake *questions.Intake, deps session.Deps, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go scanLines(in, lines)

	con := &console{lines: lines, out: out}
	deps.Confirmer = con
	deps.Renderer = con
	ctrl := session.New(intake.Questions, deps)

	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Run(ctx) }()
	con.printf("%s\n", headlessHelp)

	input := (<-chan string)(lines)
	for {
		select {
		case err := <-runErr:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case line, ok := <-input:
			if !ok {
				input = nil
				if err := ctrl.Exit(); err != nil && !errors.Is(err, session.ErrSessionClosed) {
					con.printf("exit: %v\n", err)
				}
				continue
			}
			if err := con.dispatch(ctx, ctrl, line); err != nil {
				con.printf("error: %v\n", err)
			}
		}
	}
}

func scanLines(in io.Reader, lines chan<- string) {
	defer close(lines)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines <- line
	}
}

func (c *console) dispatch(ctx context.Context, ctrl *session.Controller, line string) error {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "start":
		return ctrl.Start()
	case "stop":
		return ctrl.Stop()
	case "retry":
		return ctrl.RetryFeedback()
	case "next":
		return ctrl.Next()
	case "skip":
		return ctrl.Skip()
	case "select":
		if len(fields) != 2 {
			return errors.New("usage: select <n>")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("select: %w", err)
		}
		return ctrl.Select(n - 1)
	case "reconnect":
		return ctrl.Reconnect()
	case "dismiss":
		return ctrl.DismissError()
	case "status":
		c.printSnapshot(ctrl.Snapshot())
		return nil
	case "wait":
		if len(fields) != 2 {
			return errors.New("usage: wait <duration>")
		}
		d, err := time.ParseDuration(fields[1])
		if err != nil {
			return fmt.Errorf("wait: %w", err)
		}
		select {
		case <-time.After(d):
		case <-ctx.Done():
		case <-ctrl.Done():
		}
		return nil
	case "exit", "quit":
		return ctrl.Exit()
	case "help":
		c.printf("%s\n", headlessHelp)
		return nil
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func (c *console) Confirm(ctx context.Context, prompt string) bool {
	c.printf("%s [y/N] ", prompt)
	select {
	case line, ok := <-c.lines:
		if !ok {
			return false
		}
		answer := strings.ToLower(line)
		return answer == "y" || answer == "yes"
	case <-ctx.Done():
		return false
	}
}

// Render runs on the session loop. Only changes worth a line are printed.
func (c *console) Render(s session.Snapshot) {
	prev, seen := c.last, c.seen
	c.last, c.seen = s, true

	if !seen || s.State != prev.State || s.Index != prev.Index || s.Connection != prev.Connection {
		c.printf("[%s] question %d/%d conn=%s positivity=%d%% engagement=%d%%\n",
			s.State, s.Index+1, s.Total, s.Connection, s.Positivity, s.Engagement)
	}
	if s.Index != prev.Index || (s.State == session.Idle && prev.State == session.Loading) {
		c.printf("Q%d. %s\n", s.Index+1, s.Question)
	}
	if s.Transcript != prev.Transcript && s.Transcript != "" {
		c.printf("  transcript: %s\n", s.Transcript)
	}
	if s.Error != nil && (prev.Error == nil || *s.Error != *prev.Error) {
		c.printf("  ! %s\n", s.Error.Message)
	}
	if s.FeedbackError != nil && prev.FeedbackError == nil {
		c.printf("  ! feedback failed: %s (retry with 'retry')\n", s.FeedbackError.Message)
	}
	if s.Feedback != nil && (prev.Feedback == nil || s.Index != prev.Index) {
		c.printFeedback(s)
	}
}

func (c *console) printSnapshot(s session.Snapshot) {
	c.printf("[%s] question %d/%d answered=%d conn=%s\n", s.State, s.Index+1, s.Total, len(s.Answered), s.Connection)
	c.printf("Q%d. %s\n", s.Index+1, s.Question)
	if s.Feedback != nil {
		c.printFeedback(s)
	}
}

func (c *console) printFeedback(s session.Snapshot) {
	f := s.Feedback
	c.printf("  feedback: %s\n  technical %.1f/5 communication %.1f/5 overall %.0f/100\n",
		f.ConciseFeedback, f.TechnicalScore, f.CommunicationScore, f.OverallScore)
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}
