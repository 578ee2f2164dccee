package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/helmcode/kubediag/pkg/analyzer"
	"github.com/helmcode/kubediag/pkg/config"
	"github.com/helmcode/kubediag/pkg/executor"
	"github.com/helmcode/kubediag/pkg/k8s"
	"github.com/helmcode/kubediag/pkg/llm"
	"github.com/helmcode/kubediag/pkg/logging"
	"github.com/helmcode/kubediag/pkg/metrics"
	"github.com/helmcode/kubediag/pkg/orchestrator"
	"github.com/helmcode/kubediag/pkg/planner"
	"github.com/helmcode/kubediag/pkg/reflector"
	"github.com/helmcode/kubediag/pkg/security"
	"github.com/helmcode/kubediag/pkg/tools"
)

// Flags shared by every subcommand.
var (
	configPath   string
	kubeconfig   string
	kubeContext  string
	envName      string
	llmProvider  string
	llmModel     string
	outputFormat string
	verbose      bool

	// Per-command overrides, zero when unset.
	maxIterations int
	concurrency   int
)

// AddGlobalFlags registers the persistent flags on the root command.
func AddGlobalFlags(root *cobra.Command) {
	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to config file (default ./kubediag.yaml or ~/.kubediag/kubediag.yaml)")
	flags.StringVar(&kubeconfig, "kubeconfig", "", "Path to kubeconfig file (overrides the environment's)")
	flags.StringVar(&kubeContext, "context", "", "Kubeconfig context (overrides current-context)")
	flags.StringVarP(&envName, "env", "e", "", "Named environment from the config file")
	flags.StringVar(&llmProvider, "provider", "", "LLM provider (claude, openai, ollama). Defaults to LLM_PROVIDER or claude")
	flags.StringVar(&llmModel, "model", "", "LLM model to use (overrides default)")
	flags.StringVarP(&outputFormat, "output", "o", "human", "Output format (human, markdown, json, yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if llmProvider != "" {
		cfg.LLM.Provider = llmProvider
	}
	if llmModel != "" {
		cfg.LLM.Model = llmModel
	}
	if maxIterations > 0 {
		cfg.Agent.MaxIterations = maxIterations
	}
	if concurrency > 0 {
		cfg.Agent.Concurrency = concurrency
	}
	if verbose {
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// resolveEnvironment applies --kubeconfig and --context on top of the
// selected environment.
func resolveEnvironment(cfg *config.Config) (config.Environment, error) {
	env, err := cfg.ResolveEnvironment(envName)
	if err != nil {
		return env, err
	}
	if kubeconfig != "" {
		env.Kubeconfig = kubeconfig
	}
	if kubeContext != "" {
		env.Context = kubeContext
	}
	env.Kubeconfig = expandHome(env.Kubeconfig)
	return env, nil
}

// Expand home symbol in kubeconfig if needed
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}

// runtime is the fully wired agent for one CLI invocation.
type runtime struct {
	cfg          *config.Config
	env          config.Environment
	log          *zap.Logger
	audit        *security.AuditLogger
	registry     *tools.Registry
	orchestrator *orchestrator.Orchestrator
}

func (r *runtime) Close() {
	if err := r.audit.Close(); err != nil {
		r.log.Warn("failed to close audit log", zap.Error(err))
	}
	_ = r.log.Sync()
}

// buildRuntime connects to the cluster and the model and wires the loop.
// Progress goes to the spinner.
func buildRuntime(ctx context.Context, s *spinner.Spinner, progress func(string, orchestrator.Phase, string)) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		return nil, err
	}
	env, err := resolveEnvironment(cfg)
	if err != nil {
		return nil, err
	}

	s.Suffix = fmt.Sprintf(" Connecting to Kubernetes cluster (%s)...", env.DisplayName)
	s.Start()
	k8sClient, err := k8s.NewClient(env.Kubeconfig, env.Context)
	if err != nil {
		s.Stop()
		return nil, fmt.Errorf("failed to connect to cluster: %w", err)
	}
	version, err := k8sClient.ServerVersion()
	s.Stop()
	if err != nil {
		return nil, err
	}
	printSuccess(fmt.Sprintf("Connected to Kubernetes cluster %s (%s)", env.DisplayName, version))

	registry, err := tools.NewRegistry()
	if err != nil {
		return nil, err
	}
	if err := k8s.RegisterTools(registry, k8sClient); err != nil {
		return nil, err
	}
	if prom := connectPrometheus(ctx, cfg, k8sClient, log); prom != nil {
		if err := registry.Register(metrics.NewPodMetricsTool(prom)); err != nil {
			return nil, err
		}
		printSuccess(fmt.Sprintf("Prometheus metrics available via %s", prom.GetURL()))
	}

	model, err := llm.CreateFromEnv(cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.BaseURL, cfg.LLMOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	audit, err := security.NewAuditLogger(cfg.AuditConfig(), log)
	if err != nil {
		return nil, err
	}
	gate := security.NewGate(registry, security.NewWhitelist(cfg.WhitelistConfig()), audit, requireConfirmation(cfg), log)

	orch := orchestrator.New(
		planner.New(model, registry, log),
		executor.New(gate, cfg.Agent.MaxToolsPerIteration, log),
		analyzer.New(model, log),
		reflector.New(model, log),
		orchestrator.Options{
			Environment:   env.Name,
			MaxIterations: cfg.Agent.MaxIterations,
			Concurrency:   cfg.Agent.Concurrency,
			Progress:      progress,
		},
		log,
	)

	return &runtime{
		cfg:          cfg,
		env:          env,
		log:          log,
		audit:        audit,
		registry:     registry,
		orchestrator: orch,
	}, nil
}

func requireConfirmation(cfg *config.Config) []string {
	if cfg.Security.RequireConfirmation == nil {
		return []string{}
	}
	return cfg.Security.RequireConfirmation
}

// connectPrometheus returns a reachable Prometheus client or nil. A configured
// URL is used as is; otherwise the service is looked up in the cluster.
func connectPrometheus(ctx context.Context, cfg *config.Config, k8sClient *k8s.Client, log *zap.Logger) *metrics.PrometheusClient {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var prom *metrics.PrometheusClient
	switch {
	case cfg.Prometheus.URL != "":
		prom = metrics.NewPrometheusClient(cfg.Prometheus.URL)
	case cfg.Prometheus.AutoDetect:
		svc, err := metrics.DetectPrometheus(ctx, k8sClient.Clientset(), cfg.Prometheus.Namespace)
		if err != nil {
			log.Info("prometheus not detected, get_pod_metrics disabled", zap.Error(err))
			return nil
		}
		if metrics.IsRunningInCluster() {
			prom = metrics.NewPrometheusClient(svc.InClusterURL())
		} else {
			prom = metrics.NewProxyPrometheusClient(k8sClient.Clientset(), svc)
		}
	default:
		return nil
	}

	if err := prom.Ping(ctx); err != nil {
		log.Warn("prometheus unreachable, get_pod_metrics disabled", zap.String("url", prom.GetURL()), zap.Error(err))
		return nil
	}
	return prom
}

// sessionContext bounds a run by the configured session timeout.
func sessionContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

func newSpinner() *spinner.Spinner {
	return spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
}

// spinnerProgress reports loop phases through the spinner suffix.
func spinnerProgress(s *spinner.Spinner) func(string, orchestrator.Phase, string) {
	return func(_ string, phase orchestrator.Phase, detail string) {
		label := phaseLabels[phase]
		if label == "" {
			return
		}
		if detail != "" {
			label = fmt.Sprintf("%s (%s)", label, detail)
		}
		s.Lock()
		s.Suffix = " " + label + "..."
		s.Unlock()
	}
}

var phaseLabels = map[orchestrator.Phase]string{
	orchestrator.PhasePlan:    "Planning diagnosis",
	orchestrator.PhaseExecute: "Running tool",
	orchestrator.PhaseAnalyze: "Analyzing result",
	orchestrator.PhaseReflect: "Reviewing diagnosis",
	orchestrator.PhaseReport:  "Writing report",
}

func printSuccess(msg string) {
	green := color.New(color.FgGreen)
	green.Fprintf(os.Stderr, "✓ %s\n", msg)
}

func printError(msg string) {
	red := color.New(color.FgRed)
	red.Fprintf(os.Stderr, "✗ %s\n", msg)
}
