package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hubenschmidt/mock-interview/client/internal/questions"
	"github.com/hubenschmidt/mock-interview/client/internal/report"
	"github.com/hubenschmidt/mock-interview/client/internal/session"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "interview",
		Short:         "Live mock-interview client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newQuestionsCmd())
	return root
}

func newRunCmd() *cobra.Command {
	cfg := loadConfig()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an interview session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.questionsFile, "questions", cfg.questionsFile, "question intake file (.yaml or .json)")
	f.StringVar(&cfg.serverURL, "server", cfg.serverURL, "analysis server base URL")
	f.StringVar(&cfg.liveURL, "live-url", cfg.liveURL, "live update websocket URL")
	f.StringVar(&cfg.feedbackEngine, "engine", cfg.feedbackEngine, "feedback engine: server|openai")
	f.StringVar(&cfg.mediaSource, "media", cfg.mediaSource, "media source: synthetic|file")
	f.StringVar(&cfg.mediaAudioFile, "audio-file", cfg.mediaAudioFile, "WAV file replayed as the microphone")
	f.StringVar(&cfg.mediaFramesDir, "frames-dir", cfg.mediaFramesDir, "directory of JPEG frames replayed as the camera")
	f.Float64Var(&cfg.mediaSpeed, "speed", cfg.mediaSpeed, "media replay speed")
	f.StringVar(&cfg.reportFile, "report", cfg.reportFile, "write the session report as JSON to this path")
	f.StringVar(&cfg.metricsAddr, "metrics-addr", cfg.metricsAddr, "serve prometheus metrics on this address")
	f.BoolVar(&cfg.headless, "headless", cfg.headless, "read commands from stdin instead of the terminal UI")
	return cmd
}

func newQuestionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "questions <file>",
		Short: "Validate and print a question intake file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			intake, err := questions.Load(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if intake.JobRole != "" {
				_, _ = fmt.Fprintf(out, "%s", intake.JobRole)
				if intake.Company != "" {
					_, _ = fmt.Fprintf(out, " at %s", intake.Company)
				}
				_, _ = fmt.Fprintln(out)
			}
			for i, q := range intake.Texts() {
				_, _ = fmt.Fprintf(out, "%2d. %s\n", i+1, q)
			}
			return nil
		},
	}
}

func runSession(parent context.Context, cfg config, stdout io.Writer) error {
	closeLog := setupLogging(cfg.logLevel, cfg.logFile, !cfg.headless)
	defer closeLog()

	uploads, err := newUploads(cfg)
	if err != nil {
		return err
	}
	intake, err := questions.Load(cfg.questionsFile)
	if err != nil {
		return err
	}
	device, err := newDevice(cfg)
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	serveMetrics(ctx, cfg.metricsAddr)

	// The TUI owns the terminal until it exits, so its text report is held back.
	var held bytes.Buffer
	text := report.TextReporter{W: stdout}
	if !cfg.headless {
		text.W = &held
	}
	reporters := report.Multi{text}
	if cfg.reportFile != "" {
		reporters = append(reporters, report.JSONReporter{Path: cfg.reportFile})
	}

	deps := session.Deps{
		Device:   device,
		Uploads:  uploads,
		Channel:  newChannel(cfg),
		Feedback: newFeedback(cfg),
		Reporter: reporters,
	}

	slog.Info("interview starting",
		"questions", len(intake.Questions),
		"server", cfg.serverURL,
		"live", cfg.liveURL,
		"engine", cfg.feedbackEngine,
		"media", cfg.mediaSource,
	)

	if cfg.headless {
		return runHeadless(ctx, intake, deps, os.Stdin, stdout)
	}
	err = runTUI(ctx, intake, deps)
	_, _ = io.Copy(stdout, &held)
	return err
}
