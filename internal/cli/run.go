package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agenthands/minutes/internal/core"
	"github.com/agenthands/minutes/internal/core/model"
	"github.com/agenthands/minutes/internal/server"
)

var runCmd = &cobra.Command{
	Use:   "run [transcript-file]",
	Short: "Process a transcript and print the result",
	Long: `Process a transcript and wait for the workflow to finish. The transcript is read
from --transcript or the given file, or from stdin when neither is set or the
file is "-".

With --format text, stage progress goes to stderr and a report to stdout. With
--format json, every workflow event is written to stdout as one JSON line.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		transcript, err := readTranscript(cmd, args)
		if err != nil {
			return err
		}
		auto := cfg.Scheduler.AutoExecute
		if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
			auto = false
		}
		format, _ := cmd.Flags().GetString("format")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := server.Wire(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer c.Close(context.Background())

		events := c.Orchestrator.Events()
		sub := events.Subscribe()
		done := make(chan struct{})
		go func() {
			defer close(done)
			enc := json.NewEncoder(cmd.OutOrStdout())
			for ev := range sub.Events() {
				if format == "json" {
					_ = enc.Encode(ev)
					continue
				}
				printEvent(cmd.ErrOrStderr(), ev)
			}
		}()

		state, runErr := c.Orchestrator.Run(ctx, transcript, core.RunOptions{AutoExecute: auto})
		events.Unsubscribe(sub)
		<-done

		if format != "json" && !errors.Is(runErr, core.ErrEmptyTranscript) {
			printReport(cmd.OutOrStdout(), state)
		}
		return runErr
	},
}

func init() {
	runCmd.Flags().String("transcript", "", "Transcript file")
	runCmd.Flags().Bool("dry-run", false, "Plan actions without touching the calendar")
	runCmd.Flags().String("format", "text", "Output format: text or json")
}

func readTranscript(cmd *cobra.Command, args []string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path, _ := cmd.Flags().GetString("transcript"); path != "" {
		args = []string{path}
	}
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("failed to read transcript: %w", err)
	}
	return string(data), nil
}

func printEvent(w io.Writer, ev model.WorkflowEvent) {
	switch ev.Type {
	case model.EventStageStart:
		fmt.Fprintf(w, "[%d/%d] %s\n", ev.StageIndex, ev.StageCount, ev.Description)
	case model.EventStageComplete:
		for _, l := range ev.Logs {
			if l.Type == model.LogOutput || l.Type == model.LogError {
				fmt.Fprintf(w, "      %s\n", l.Message)
			}
		}
	case model.EventWorkflowError, model.EventWorkflowCancelled:
		if ev.Error != nil {
			fmt.Fprintf(w, "%s at %s: %s\n", ev.Type, ev.Error.Stage, ev.Error.Message)
		}
	}
}

func printReport(w io.Writer, s model.WorkflowState) {
	if s.Analysis != nil {
		fmt.Fprintf(w, "Meeting: %s\n\n", s.Analysis.Title)
	}
	if s.Summary != nil {
		fmt.Fprintf(w, "%s\n\n", strings.TrimSpace(*s.Summary))
	}
	if len(s.ExecutionResults) > 0 {
		fmt.Fprintln(w, "Actions:")
		for _, r := range s.ExecutionResults {
			fmt.Fprintf(w, "  %-8s %-13s %s\n", r.Status, r.ActionType, r.Message)
		}
		fmt.Fprintln(w)
	}
	if len(s.NextSteps) > 0 {
		fmt.Fprintln(w, "Next steps:")
		for i, step := range s.NextSteps {
			fmt.Fprintf(w, "  %d. %s\n", i+1, step)
		}
	}
	if s.Error != nil {
		fmt.Fprintf(w, "Failed at %s (%s): %s\n", s.Error.Stage, s.Error.Kind, s.Error.Message)
	}
}
