// Package formatter renders diagnosis reports for the terminal or for machines.
package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/helmcode/kubediag/pkg/model"
	"github.com/helmcode/kubediag/pkg/orchestrator"
)

// Formats lists the supported output formats.
var Formats = []string{"human", "markdown", "json", "yaml"}

// Display writes the report to w in the requested format.
func Display(w io.Writer, report model.Report, format string) error {
	switch format {
	case "json":
		return displayJSON(w, report)
	case "yaml":
		return displayYAML(w, report)
	case "markdown", "md":
		_, err := fmt.Fprint(w, report.Markdown)
		return err
	case "human", "":
		displayHuman(w, report)
		return nil
	default:
		return fmt.Errorf("unknown output format %q (supported: %s)", format, strings.Join(Formats, ", "))
	}
}

// batchEntry is the machine-readable form of one batch result.
type batchEntry struct {
	Problem string        `json:"problem" yaml:"problem"`
	Error   string        `json:"error,omitempty" yaml:"error,omitempty"`
	Report  *model.Report `json:"report,omitempty" yaml:"report,omitempty"`
}

// DisplayBatch writes the outcome of a batch run. The human format prints
// a summary per incident followed by each full report.
func DisplayBatch(w io.Writer, results []orchestrator.BatchResult, format string) error {
	switch format {
	case "json", "yaml":
		entries := make([]batchEntry, len(results))
		for i, r := range results {
			entries[i].Problem = r.Problem
			if r.Err != nil {
				entries[i].Error = r.Err.Error()
				continue
			}
			report := r.Report
			entries[i].Report = &report
		}
		if format == "json" {
			return displayJSON(w, entries)
		}
		return displayYAML(w, entries)

	case "markdown", "md":
		for i, r := range results {
			if i > 0 {
				fmt.Fprint(w, "\n---\n\n")
			}
			if r.Err != nil {
				fmt.Fprintf(w, "# %s\n\nFailed: %s\n", r.Problem, r.Err)
				continue
			}
			fmt.Fprint(w, r.Report.Markdown)
		}
		return nil

	case "human", "":
		displayBatchSummary(w, results)
		for _, r := range results {
			if r.Err == nil {
				displayHuman(w, r.Report)
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown output format %q (supported: %s)", format, strings.Join(Formats, ", "))
	}
}

func displayJSON(w io.Writer, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}

func displayYAML(w io.Writer, v any) error {
	output, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, string(output))
	return err
}

func displayHuman(w io.Writer, r model.Report) {
	// Colors
	red := color.New(color.FgRed, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	cyan := color.New(color.FgCyan, color.Bold)
	white := color.New(color.FgWhite, color.Bold)

	fmt.Fprintln(w)
	white.Fprintf(w, "🔍 DIAGNOSIS: %s\n", r.Problem)
	fmt.Fprintf(w, "   %s\n\n", color.HiBlackString("environment %s · session %s · %d iterations · %s",
		r.Environment, r.SessionID, r.Iterations, r.Duration.Round(time.Millisecond)))

	// Root Cause
	if r.RootCauseFound {
		red.Fprintln(w, "💡 ROOT CAUSE IDENTIFIED:")
	} else {
		yellow.Fprintln(w, "❓ ROOT CAUSE NOT DETERMINED:")
	}
	fmt.Fprintf(w, "%s\n\n", wrapText(r.RootCause, 80, "   "))

	if len(r.Findings) > 0 {
		yellow.Fprintln(w, "⚠️  FINDINGS:")
		for i, f := range r.Findings {
			fmt.Fprintf(w, "   %d. %s\n", i+1, f)
		}
		fmt.Fprintln(w)
	}

	if len(r.Recommendations) > 0 {
		green.Fprintln(w, "🚀 RECOMMENDATIONS:")
		for i, rec := range r.Recommendations {
			fmt.Fprintf(w, "   %d. %s\n", i+1, color.GreenString(rec))
		}
		fmt.Fprintln(w)
	}

	if len(r.Steps) > 0 {
		cyan.Fprintln(w, "🧭 STEPS:")
		for i, s := range r.Steps {
			fmt.Fprintf(w, "   %d. %s %s", i+1, getStepIcon(s), s.ToolName)
			if s.Reason != "" {
				fmt.Fprintf(w, " %s", color.HiBlackString("(%s)", s.Reason))
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w)
	}

	if r.Reflection != nil {
		getScoreColor(r.Reflection.QualityScore).Fprintf(w, "📊 REVIEW QUALITY: %d/10\n", r.Reflection.QualityScore)
		for _, s := range r.Reflection.Suggestions {
			fmt.Fprintf(w, "   • %s\n", s)
		}
		fmt.Fprintln(w)
	}

	// Footer
	fmt.Fprintln(w, strings.Repeat("─", 80))
	fmt.Fprintf(w, "💡 %s\n", color.HiBlackString("Run with -o json, -o yaml or -o markdown for machine-readable output"))
}

func displayBatchSummary(w io.Writer, results []orchestrator.BatchResult) {
	white := color.New(color.FgWhite, color.Bold)
	white.Fprintf(w, "📦 BATCH: %d incidents\n", len(results))
	for i, r := range results {
		switch {
		case r.Err != nil:
			fmt.Fprintf(w, "   %d. ❌ %s: %s\n", i+1, r.Problem, color.RedString(r.Err.Error()))
		case r.Report.RootCauseFound:
			fmt.Fprintf(w, "   %d. 🟢 %s: %s\n", i+1, r.Problem, r.Report.RootCause)
		default:
			fmt.Fprintf(w, "   %d. 🟡 %s: %s\n", i+1, r.Problem, r.Report.RootCause)
		}
	}
}

func getScoreColor(score int) *color.Color {
	switch {
	case score >= 8:
		return color.New(color.FgGreen, color.Bold)
	case score >= 6:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

func getStepIcon(s model.DiagnosticStep) string {
	switch {
	case s.Outcome == model.KindSecurityViolation:
		return "⛔"
	case s.Outcome != "":
		return "❌"
	case s.Status == model.StepCompleted:
		return "✅"
	default:
		return "⏸️"
	}
}

func wrapText(text string, width int, indent string) string {
	var result strings.Builder
	lines := strings.Split(text, "\n")

	for _, line := range lines {
		words := strings.Fields(line)
		if len(words) == 0 {
			result.WriteString("\n")
			continue
		}

		currentLine := indent
		for _, word := range words {
			if currentLine == indent {
				currentLine += word
			} else if len(currentLine)+len(word)+1 > width {
				result.WriteString(currentLine + "\n")
				currentLine = indent + word
			} else {
				currentLine += " " + word
			}
		}

		if currentLine != indent {
			result.WriteString(currentLine + "\n")
		}
	}

	return strings.TrimSuffix(result.String(), "\n")
}
