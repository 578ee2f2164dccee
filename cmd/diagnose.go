package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/helmcode/kubediag/pkg/formatter"
)

var diagnoseTimeout time.Duration

func NewDiagnoseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnose PROBLEM",
		Short: "Diagnose a Kubernetes problem with an AI plan/execute/analyze loop",
		Long: `Investigate a problem described in plain language. The agent plans read-only
diagnostic steps, runs them against the cluster through the security gate,
interprets each result and stops once a root cause is found or the iteration
budget is spent.

Examples:
  # Diagnose a crashing pod
  kubediag diagnose "pod checkout-7x in namespace shop keeps restarting"

  # Target a named environment and get markdown
  kubediag diagnose "orders API times out" --env prod -o markdown

  # Use a local model
  kubediag diagnose "job migrate fails" --provider ollama --model llama3.1`,
		Args: cobra.ExactArgs(1),
		RunE: runDiagnose,
	}

	cmd.Flags().DurationVar(&diagnoseTimeout, "timeout", 0, "Session timeout (overrides agent.session_timeout)")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Iteration budget (overrides agent.max_iterations)")

	return cmd
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	problem := args[0]

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := newSpinner()
	rt, err := buildRuntime(ctx, s, spinnerProgress(s))
	if err != nil {
		return err
	}
	defer rt.Close()

	printHeader(problem, rt.env.DisplayName, rt.registry.Len())

	timeout := rt.cfg.Agent.SessionTimeout
	if diagnoseTimeout > 0 {
		timeout = diagnoseTimeout
	}
	ctx, cancel := sessionContext(ctx, timeout)
	defer cancel()

	s.Suffix = " Planning diagnosis..."
	s.Start()
	report, err := rt.orchestrator.Diagnose(ctx, problem)
	s.Stop()
	if err != nil {
		return fmt.Errorf("diagnosis failed: %w", err)
	}
	if ctx.Err() != nil {
		rt.log.Warn("diagnosis cut short", zap.Error(ctx.Err()))
		printError("Diagnosis interrupted, reporting partial results")
	} else {
		printSuccess(fmt.Sprintf("Diagnosis complete after %d iterations", report.Iterations))
	}

	return formatter.Display(cmd.OutOrStdout(), report, outputFormat)
}

func printHeader(problem, environment string, toolCount int) {
	cyan := color.New(color.FgCyan, color.Bold)
	fmt.Fprintln(os.Stderr)
	cyan.Fprintln(os.Stderr, "🔍 Kubernetes Diagnosis Agent")
	fmt.Fprintf(os.Stderr, "📝 Problem: %s\n", problem)
	fmt.Fprintf(os.Stderr, "📍 Environment: %s\n", environment)
	fmt.Fprintf(os.Stderr, "🧰 Tools: %d\n", toolCount)
	fmt.Fprintln(os.Stderr)
}
