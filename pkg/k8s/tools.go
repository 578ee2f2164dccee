package k8s

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/duration"

	"github.com/helmcode/kubediag/pkg/tools"
)

const (
	defaultTailLines  = 100
	defaultEventLimit = 20
	podEventLimit     = 5
	maxConfigValueLen = 500
	separator         = "============================================================"
)

// tool adapts a closure to tools.Tool.
type tool struct {
	name        string
	description string
	schema      tools.Schema
	run         func(ctx context.Context, args map[string]any) (string, error)
}

func (t *tool) Name() string         { return t.name }
func (t *tool) Description() string  { return t.description }
func (t *tool) Schema() tools.Schema { return t.schema }
func (t *tool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return t.run(ctx, args)
}

// resourceTool names the object it reads so the gate can screen it.
type resourceTool struct {
	*tool
	resource func(args map[string]any) (kind, name string)
}

func (t *resourceTool) Resource(args map[string]any) (string, string) { return t.resource(args) }

// commandTool exposes its shell command to the gate.
type commandTool struct {
	*tool
}

func (t *commandTool) Command(args map[string]any) string { return tools.StringArg(args, "command", "") }

var (
	namespaceProp = tools.Property{Type: "string", Description: "Kubernetes namespace"}
	podNameProp   = tools.Property{Type: "string", Description: "Pod name"}
	containerProp = tools.Property{Type: "string", Description: "Container name (optional for single-container pods)"}
	tailLinesProp = tools.Property{Type: "integer", Description: "Number of log lines from the end", Default: defaultTailLines}
	jobNameProp   = tools.Property{Type: "string", Description: "Job name"}
)

// Tools returns every diagnostic tool backed by c, in a stable order.
func Tools(c *Client) []tools.Tool {
	return []tools.Tool{
		c.listPodsTool(),
		c.describePodTool(),
		c.podLogsTool(),
		c.previousLogsTool(),
		c.eventsTool(),
		c.listJobsTool(),
		c.describeJobTool(),
		c.jobLogsTool(),
		c.configMapTool(),
		c.deploymentTool(),
		c.getResourceTool(),
		c.execTool(),
		c.restartPodTool(),
	}
}

// RegisterTools adds the cluster tools to reg.
func RegisterTools(reg *tools.Registry, c *Client) error {
	for _, t := range Tools(c) {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("failed to register %s: %w", t.Name(), err)
		}
	}
	return nil
}

func age(ts metav1.Time) string {
	if ts.IsZero() {
		return "<unknown>"
	}
	return duration.HumanDuration(time.Since(ts.Time))
}

// podStatus mirrors the STATUS column of kubectl: a waiting or terminated
// reason wins over the pod phase.
func podStatus(pod *corev1.Pod) string {
	if pod.DeletionTimestamp != nil {
		return "Terminating"
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Waiting != nil && cs.State.Waiting.Reason != "" {
			return cs.State.Waiting.Reason
		}
		if cs.State.Terminated != nil && cs.State.Terminated.Reason != "" {
			return cs.State.Terminated.Reason
		}
	}
	if pod.Status.Reason != "" {
		return pod.Status.Reason
	}
	return string(pod.Status.Phase)
}

func restarts(pod *corev1.Pod) int32 {
	var n int32
	for _, cs := range pod.Status.ContainerStatuses {
		n += cs.RestartCount
	}
	return n
}

func formatResources(rl corev1.ResourceList) string {
	if len(rl) == 0 {
		return "none"
	}
	names := make([]string, 0, len(rl))
	for name := range rl {
		names = append(names, string(name))
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		q := rl[corev1.ResourceName(name)]
		parts = append(parts, fmt.Sprintf("%s=%s", name, q.String()))
	}
	return strings.Join(parts, ", ")
}

func formatState(s corev1.ContainerState) string {
	switch {
	case s.Running != nil:
		return fmt.Sprintf("Running (since %s)", s.Running.StartedAt.UTC().Format(time.RFC3339))
	case s.Waiting != nil:
		if s.Waiting.Message != "" {
			return fmt.Sprintf("Waiting: %s - %s", s.Waiting.Reason, s.Waiting.Message)
		}
		return "Waiting: " + s.Waiting.Reason
	case s.Terminated != nil:
		return fmt.Sprintf("Terminated: %s (exit code %d)", s.Terminated.Reason, s.Terminated.ExitCode)
	default:
		return "Unknown"
	}
}

// eventTime picks the most meaningful timestamp of an event.
func eventTime(e *corev1.Event) time.Time {
	switch {
	case !e.LastTimestamp.IsZero():
		return e.LastTimestamp.Time
	case !e.EventTime.IsZero():
		return e.EventTime.Time
	case !e.FirstTimestamp.IsZero():
		return e.FirstTimestamp.Time
	default:
		return e.CreationTimestamp.Time
	}
}

func sortEventsNewestFirst(events []corev1.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return eventTime(&events[i]).After(eventTime(&events[j]))
	})
}

func formatEvent(e *corev1.Event) string {
	line := fmt.Sprintf("[%s] %s %s/%s: %s", e.Type, e.Reason, strings.ToLower(e.InvolvedObject.Kind), e.InvolvedObject.Name, strings.TrimSpace(e.Message))
	if e.Count > 1 {
		line += fmt.Sprintf(" (x%d)", e.Count)
	}
	return line
}
