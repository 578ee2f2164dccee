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

	"github.com/helmcode/kubediag/pkg/security"
)

var auditLines int

func NewAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the tool-call audit log",
	}

	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest audit records",
		Example: `  kubediag audit tail -n 50
  kubediag audit tail -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			auditCfg := cfg.AuditConfig()
			if !auditCfg.Enabled {
				printError("Audit logging is disabled")
				return nil
			}
			records, err := security.ReadRecent(auditCfg.Path, auditLines)
			if err != nil {
				return err
			}
			return displayAudit(cmd.OutOrStdout(), records, outputFormat)
		},
	}
	tail.Flags().IntVarP(&auditLines, "lines", "n", 20, "Number of records to show")

	cmd.AddCommand(tail)
	return cmd
}

func displayAudit(w io.Writer, records []map[string]any, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(records)
	case "", "human", "markdown", "md":
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}

	if len(records) == 0 {
		fmt.Fprintln(w, "No audit records")
		return nil
	}
	for _, rec := range records {
		fmt.Fprintln(w, auditLine(rec))
	}
	return nil
}

// auditLine renders one record: tool calls and security events have different shapes.
func auditLine(rec map[string]any) string {
	ts := str(rec["timestamp"])

	if str(rec["type"]) == "security_event" {
		severity := str(rec["severity"])
		label := color.YellowString("%s", strings.ToUpper(severity))
		if severity == string(security.SeverityError) {
			label = color.RedString("%s", strings.ToUpper(severity))
		}
		return fmt.Sprintf("%s %s %s %s", ts, label, str(rec["event_type"]), kv(rec["details"]))
	}

	status := color.GreenString("ok")
	if ok, _ := rec["success"].(bool); !ok {
		status = color.RedString("failed")
	}
	line := fmt.Sprintf("%s %s %s %s", ts, status, str(rec["tool"]), kv(rec["arguments"]))
	if sid := str(rec["session_id"]); sid != "" {
		line += " session=" + sid
	}
	return line
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func kv(v any) string {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return strings.Join(parts, " ")
}
