package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/helmcode/kubediag/pkg/k8s"
	"github.com/helmcode/kubediag/pkg/metrics"
	"github.com/helmcode/kubediag/pkg/security"
	"github.com/helmcode/kubediag/pkg/tools"
)

func NewToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the diagnostic tools the agent can call",
		Long: `Print every tool the planner may schedule, its arguments and the namespace
policy the security gate enforces. No cluster connection is made.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			registry, err := catalog()
			if err != nil {
				return err
			}
			wl := security.NewWhitelist(cfg.WhitelistConfig())
			return displayTools(cmd.OutOrStdout(), registry, wl, requireConfirmation(cfg), outputFormat)
		},
	}
}

// catalog builds the full tool set without a live cluster or Prometheus.
func catalog() (*tools.Registry, error) {
	registry, err := tools.NewRegistry(k8s.Tools(k8s.NewForClientset(nil, nil))...)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(metrics.NewPodMetricsTool(nil)); err != nil {
		return nil, err
	}
	return registry, nil
}

type toolEntry struct {
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description" yaml:"description"`
	Required    []string      `json:"required,omitempty" yaml:"required,omitempty"`
	Optional    []string      `json:"optional,omitempty" yaml:"optional,omitempty"`
	Confirm     bool          `json:"requires_confirmation,omitempty" yaml:"requires_confirmation,omitempty"`
	Notes       string        `json:"notes,omitempty" yaml:"notes,omitempty"`
	Schema      *tools.Schema `json:"schema,omitempty" yaml:"-"`
}

func toolEntries(registry *tools.Registry, confirm []string) []toolEntry {
	needsConfirm := make(map[string]bool, len(confirm))
	for _, name := range confirm {
		needsConfirm[name] = true
	}

	entries := make([]toolEntry, 0, registry.Len())
	for _, t := range registry.List() {
		schema := t.Schema()
		var optional []string
		for name := range schema.Properties {
			if !schema.Requires(name) {
				optional = append(optional, name)
			}
		}
		sort.Strings(optional)

		e := toolEntry{
			Name:        t.Name(),
			Description: t.Description(),
			Required:    schema.Required,
			Optional:    optional,
			Confirm:     needsConfirm[t.Name()],
			Schema:      &schema,
		}
		if t.Name() == "get_pod_metrics" {
			e.Notes = "available when Prometheus is reachable"
		}
		entries = append(entries, e)
	}
	return entries
}

func displayTools(w io.Writer, registry *tools.Registry, wl *security.Whitelist, confirm []string, format string) error {
	entries := toolEntries(registry, confirm)

	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(entries)
	case "", "human", "markdown", "md":
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}

	bold := color.New(color.Bold)
	bold.Fprintf(w, "🧰 TOOLS (%d):\n", len(entries))
	for _, e := range entries {
		name := color.CyanString("%s", e.Name)
		if e.Confirm {
			name += color.YellowString(" (requires confirmation)")
		}
		fmt.Fprintf(w, "  • %s\n", name)
		fmt.Fprintf(w, "    %s\n", e.Description)
		if len(e.Required) > 0 {
			fmt.Fprintf(w, "    required: %s\n", strings.Join(e.Required, ", "))
		}
		if len(e.Optional) > 0 {
			fmt.Fprintf(w, "    optional: %s\n", strings.Join(e.Optional, ", "))
		}
		if e.Notes != "" {
			fmt.Fprintf(w, "    note: %s\n", e.Notes)
		}
	}

	fmt.Fprintln(w)
	bold.Fprintln(w, "🔒 NAMESPACE POLICY:")
	fmt.Fprintf(w, "  allowed: %s\n", wl.AllowedNamespaces())
	fmt.Fprintf(w, "  blocked: %s\n", wl.BlockedNamespaces())
	return nil
}
