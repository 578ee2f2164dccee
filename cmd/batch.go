package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/helmcode/kubediag/pkg/formatter"
)

var batchMetricsAddr string

func NewBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Diagnose a list of incidents concurrently",
		Long: `Run one diagnosis session per incident listed in a YAML file. Sessions run
concurrently up to agent.concurrency and share nothing but the cluster
connection and the model client.

The file is either a plain list of problem statements or an object with an
incidents list:

  incidents:
    - problem: "pod checkout-7x in namespace shop keeps restarting"
    - problem: "job migrate in namespace shop fails"

Examples:
  kubediag batch incidents.yaml --concurrency 2 -o json
  kubediag batch incidents.yaml --metrics-addr :9102`,
		Args: cobra.ExactArgs(1),
		RunE: runBatch,
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Sessions in flight (overrides agent.concurrency)")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Iteration budget per session (overrides agent.max_iterations)")
	cmd.Flags().StringVar(&batchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the batch runs")

	return cmd
}

type incidentFile struct {
	Incidents []struct {
		Problem string `yaml:"problem"`
	} `yaml:"incidents"`
}

// loadIncidents reads problem statements from a YAML file.
func loadIncidents(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read incidents: %w", err)
	}

	var problems []string
	if err := yaml.Unmarshal(data, &problems); err != nil {
		var file incidentFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse incidents %s: %w", path, err)
		}
		for _, inc := range file.Incidents {
			problems = append(problems, inc.Problem)
		}
	}
	if len(problems) == 0 {
		return nil, fmt.Errorf("no incidents found in %s", path)
	}
	return problems, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	problems, err := loadIncidents(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := newSpinner()
	rt, err := buildRuntime(ctx, s, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	if batchMetricsAddr != "" {
		srv := serveMetrics(batchMetricsAddr, rt.log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		printSuccess(fmt.Sprintf("Serving metrics on %s/metrics", batchMetricsAddr))
	}

	ctx, cancel := sessionContext(ctx, rt.cfg.Agent.SessionTimeout*time.Duration(len(problems)))
	defer cancel()

	s.Suffix = fmt.Sprintf(" Diagnosing %d incidents (%d at a time)...", len(problems), rt.cfg.Agent.Concurrency)
	s.Start()
	results := rt.orchestrator.RunBatch(ctx, problems)
	s.Stop()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		printError(fmt.Sprintf("%d of %d incidents could not be diagnosed", failed, len(results)))
	} else {
		printSuccess(fmt.Sprintf("Diagnosed %d incidents", len(results)))
	}

	return formatter.DisplayBatch(cmd.OutOrStdout(), results, outputFormat)
}

// serveMetrics exposes the default Prometheus registry in the background.
func serveMetrics(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	return srv
}
