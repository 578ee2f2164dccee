// Package config loads kubediag settings from a YAML file, KUBEDIAG_*
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/helmcode/kubediag/pkg/llm"
	"github.com/helmcode/kubediag/pkg/security"
)

// EnvPrefix namespaces environment overrides: agent.max_iterations is read
// from KUBEDIAG_AGENT_MAX_ITERATIONS.
const EnvPrefix = "KUBEDIAG"

type Config struct {
	LLM          LLMConfig          `mapstructure:"llm"`
	Agent        AgentConfig        `mapstructure:"agent"`
	Security     SecurityConfig     `mapstructure:"security"`
	Audit        AuditConfig        `mapstructure:"audit"`
	Kubernetes   KubernetesConfig   `mapstructure:"kubernetes"`
	Environments EnvironmentsConfig `mapstructure:"environments"`
	Prometheus   PrometheusConfig   `mapstructure:"prometheus"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

type LLMConfig struct {
	Provider   string        `mapstructure:"provider"` // claude, openai, ollama; empty reads LLM_PROVIDER
	Model      string        `mapstructure:"model"`
	BaseURL    string        `mapstructure:"base_url"`
	MaxTokens  int           `mapstructure:"max_tokens"`
	Timeout    time.Duration `mapstructure:"timeout"`     // per HTTP attempt
	MaxRetries int           `mapstructure:"max_retries"` // on 429 and 5xx replies
}

type AgentConfig struct {
	MaxIterations        int           `mapstructure:"max_iterations"`
	MaxToolsPerIteration int           `mapstructure:"max_tools_per_iteration"`
	Concurrency          int           `mapstructure:"concurrency"`
	SessionTimeout       time.Duration `mapstructure:"session_timeout"` // 0 = no timeout
}

type SecurityConfig struct {
	AllowedNamespaces   []string `mapstructure:"allowed_namespaces"`
	BlockedNamespaces   []string `mapstructure:"blocked_namespaces"`
	AllowedExecCommands []string `mapstructure:"allowed_exec_commands"`
	RequireConfirmation []string `mapstructure:"require_confirmation"`
}

type AuditConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	LogPath    string `mapstructure:"log_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	User       string `mapstructure:"user"`
}

type KubernetesConfig struct {
	Kubeconfig string `mapstructure:"kubeconfig"`
	Context    string `mapstructure:"context"`
}

// Environment is one named cluster a session can target.
type Environment struct {
	Name        string `mapstructure:"name"`
	DisplayName string `mapstructure:"display_name"`
	Kubeconfig  string `mapstructure:"kubeconfig"`
	Context     string `mapstructure:"context"`
	Description string `mapstructure:"description"`
}

type EnvironmentsConfig struct {
	Default  string        `mapstructure:"default"`
	Clusters []Environment `mapstructure:"clusters"`
}

type PrometheusConfig struct {
	URL string `mapstructure:"url"` // empty = auto-detect in cluster
	// Namespace narrows auto-detection to one namespace.
	Namespace  string `mapstructure:"namespace"`
	AutoDetect bool   `mapstructure:"auto_detect"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads configuration. An explicit path must exist; without one,
// kubediag.yaml is looked up in the working directory and ~/.kubediag.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("kubediag")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.kubediag")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; using defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.max_tokens", 4000)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.max_retries", 2)

	v.SetDefault("agent.max_iterations", 10)
	v.SetDefault("agent.max_tools_per_iteration", 5)
	v.SetDefault("agent.concurrency", 4)
	v.SetDefault("agent.session_timeout", 10*time.Minute)

	v.SetDefault("security.allowed_namespaces", []string{})
	v.SetDefault("security.blocked_namespaces", security.DefaultBlockedNamespaces)
	v.SetDefault("security.allowed_exec_commands", security.DefaultAllowedExecCommands)
	v.SetDefault("security.require_confirmation", security.DefaultRequireConfirmation)

	audit := security.DefaultAuditConfig()
	v.SetDefault("audit.enabled", audit.Enabled)
	v.SetDefault("audit.log_path", "./"+audit.Path)
	v.SetDefault("audit.max_size_mb", audit.MaxSizeMB)
	v.SetDefault("audit.max_backups", audit.MaxBackups)
	v.SetDefault("audit.max_age_days", audit.MaxAgeDays)
	v.SetDefault("audit.compress", audit.Compress)
	v.SetDefault("audit.user", audit.User)

	v.SetDefault("kubernetes.kubeconfig", "")
	v.SetDefault("kubernetes.context", "")

	v.SetDefault("environments.default", "default")

	v.SetDefault("prometheus.url", "")
	v.SetDefault("prometheus.namespace", "")
	v.SetDefault("prometheus.auto_detect", true)

	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.development", false)
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.MaxToolsPerIteration <= 0 {
		return fmt.Errorf("agent.max_tools_per_iteration must be positive, got %d", c.Agent.MaxToolsPerIteration)
	}
	if c.Agent.Concurrency <= 0 {
		return fmt.Errorf("agent.concurrency must be positive, got %d", c.Agent.Concurrency)
	}
	if c.Agent.SessionTimeout < 0 {
		return fmt.Errorf("agent.session_timeout must not be negative")
	}
	if !llm.IsSupported(c.LLM.Provider) {
		return fmt.Errorf("unsupported llm.provider %q", c.LLM.Provider)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens)
	}
	if c.LLM.Timeout < 0 || c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.timeout and llm.max_retries must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}

	if c.Audit.Enabled && c.Audit.LogPath == "" {
		return fmt.Errorf("audit.log_path is required when audit is enabled")
	}

	seen := make(map[string]bool, len(c.Environments.Clusters))
	for _, env := range c.Environments.Clusters {
		if env.Name == "" {
			return fmt.Errorf("environments.clusters: name is required")
		}
		if seen[env.Name] {
			return fmt.Errorf("environments.clusters: duplicate name %q", env.Name)
		}
		seen[env.Name] = true
	}
	if len(seen) > 0 && c.Environments.Default != "" && !seen[c.Environments.Default] {
		return fmt.Errorf("environments.default %q is not a configured cluster", c.Environments.Default)
	}
	return nil
}

// LLMOptions converts the llm section into provider client options.
func (c *Config) LLMOptions() []llm.Option {
	return []llm.Option{
		llm.WithMaxTokens(c.LLM.MaxTokens),
		llm.WithTimeout(c.LLM.Timeout),
		llm.WithMaxRetries(c.LLM.MaxRetries),
	}
}

// ResolveEnvironment picks the cluster a session targets. An empty name
// selects environments.default. Without configured clusters the kubernetes
// section describes the single environment. Per-cluster kubeconfig and
// context fall back to the kubernetes section.
func (c *Config) ResolveEnvironment(name string) (Environment, error) {
	if name == "" {
		name = c.Environments.Default
	}

	if len(c.Environments.Clusters) == 0 {
		if name == "" {
			name = "default"
		}
		return Environment{
			Name:        name,
			DisplayName: name,
			Kubeconfig:  c.Kubernetes.Kubeconfig,
			Context:     c.Kubernetes.Context,
		}, nil
	}

	names := make([]string, 0, len(c.Environments.Clusters))
	for _, env := range c.Environments.Clusters {
		if env.Name == name {
			if env.Kubeconfig == "" {
				env.Kubeconfig = c.Kubernetes.Kubeconfig
			}
			if env.Context == "" {
				env.Context = c.Kubernetes.Context
			}
			if env.DisplayName == "" {
				env.DisplayName = env.Name
			}
			return env, nil
		}
		names = append(names, env.Name)
	}
	return Environment{}, fmt.Errorf("unknown environment %q (available: %s)", name, strings.Join(names, ", "))
}

// WhitelistConfig maps the security section onto the whitelist.
func (c *Config) WhitelistConfig() security.WhitelistConfig {
	return security.WhitelistConfig{
		AllowedNamespaces:   c.Security.AllowedNamespaces,
		BlockedNamespaces:   nonNil(c.Security.BlockedNamespaces),
		AllowedExecCommands: nonNil(c.Security.AllowedExecCommands),
	}
}

// AuditConfig maps the audit section onto the audit logger settings.
func (c *Config) AuditConfig() security.AuditConfig {
	return security.AuditConfig{
		Enabled:    c.Audit.Enabled,
		Path:       os.ExpandEnv(c.Audit.LogPath),
		MaxSizeMB:  c.Audit.MaxSizeMB,
		MaxBackups: c.Audit.MaxBackups,
		MaxAgeDays: c.Audit.MaxAgeDays,
		Compress:   c.Audit.Compress,
		User:       c.Audit.User,
	}
}

// nonNil keeps an explicitly emptied list empty instead of letting the
// whitelist fall back to its defaults.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
