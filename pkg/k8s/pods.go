package k8s

import (
	"context"
	"fmt"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"

	"github.com/helmcode/kubediag/pkg/tools"
)

func (c *Client) listPodsTool() tools.Tool {
	return &tool{
		name:        "list_pods",
		description: "List pods in a namespace with status, restart count and age",
		schema: tools.Schema{
			Properties: map[string]tools.Property{
				"namespace":      namespaceProp,
				"label_selector": {Type: "string", Description: "Optional label selector, e.g. app=web"},
			},
			Required: []string{"namespace"},
		},
		run: func(ctx context.Context, args map[string]any) (string, error) {
			ns := tools.StringArg(args, "namespace", "")
			pods, err := c.clientset.CoreV1().Pods(ns).List(ctx, metav1.ListOptions{
				LabelSelector: tools.StringArg(args, "label_selector", ""),
			})
			if err != nil {
				return "", fmt.Errorf("failed to list pods in %s: %w", ns, err)
			}
			if len(pods.Items) == 0 {
				return fmt.Sprintf("No pods found in namespace %s", ns), nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Pods in namespace %s:\n", ns)
			fmt.Fprintf(&b, "%-50s %-20s %-10s %s\n", "NAME", "STATUS", "RESTARTS", "AGE")
			for i := range pods.Items {
				p := &pods.Items[i]
				fmt.Fprintf(&b, "%-50s %-20s %-10d %s\n", p.Name, podStatus(p), restarts(p), age(p.CreationTimestamp))
			}
			return b.String(), nil
		},
	}
}

func (c *Client) describePodTool() tools.Tool {
	return &tool{
		name:        "describe_pod",
		description: "Describe a pod: node, phase, container states including last termination reason, resources and recent events",
		schema: tools.Schema{
			Properties: map[string]tools.Property{"namespace": namespaceProp, "pod_name": podNameProp},
			Required:   []string{"namespace", "pod_name"},
		},
		run: func(ctx context.Context, args map[string]any) (string, error) {
			ns := tools.StringArg(args, "namespace", "")
			name := tools.StringArg(args, "pod_name", "")
			pod, err := c.clientset.CoreV1().Pods(ns).Get(ctx, name, metav1.GetOptions{})
			if err != nil {
				return "", fmt.Errorf("failed to get pod %s: %w", name, err)
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Pod: %s\n", pod.Name)
			fmt.Fprintf(&b, "Namespace: %s\n", pod.Namespace)
			fmt.Fprintf(&b, "Node: %s\n", pod.Spec.NodeName)
			fmt.Fprintf(&b, "Status: %s\n", pod.Status.Phase)
			if pod.Status.Reason != "" {
				fmt.Fprintf(&b, "Reason: %s\n", pod.Status.Reason)
			}
			fmt.Fprintf(&b, "IP: %s\n", pod.Status.PodIP)

			statuses := make(map[string]corev1.ContainerStatus, len(pod.Status.ContainerStatuses))
			for _, cs := range pod.Status.ContainerStatuses {
				statuses[cs.Name] = cs
			}
			b.WriteString("\nContainers:\n")
			for _, ctr := range pod.Spec.Containers {
				fmt.Fprintf(&b, "  - %s (%s)\n", ctr.Name, ctr.Image)
				if cs, ok := statuses[ctr.Name]; ok {
					fmt.Fprintf(&b, "    Ready: %t, Restarts: %d\n", cs.Ready, cs.RestartCount)
					fmt.Fprintf(&b, "    State: %s\n", formatState(cs.State))
					if cs.LastTerminationState.Terminated != nil {
						fmt.Fprintf(&b, "    Last State: %s\n", formatState(cs.LastTerminationState))
					}
				}
				fmt.Fprintf(&b, "    Requests: %s\n", formatResources(ctr.Resources.Requests))
				fmt.Fprintf(&b, "    Limits: %s\n", formatResources(ctr.Resources.Limits))
			}

			if len(pod.Status.Conditions) > 0 {
				b.WriteString("\nConditions:\n")
				for _, cond := range pod.Status.Conditions {
					fmt.Fprintf(&b, "  %s=%s", cond.Type, cond.Status)
					if cond.Reason != "" {
						fmt.Fprintf(&b, " (%s)", cond.Reason)
					}
					b.WriteString("\n")
				}
			}

			events, err := c.objectEvents(ctx, ns, name)
			if err == nil && len(events) > 0 {
				b.WriteString("\nRecent Events:\n")
				for i := range events {
					if i == podEventLimit {
						break
					}
					fmt.Fprintf(&b, "  %s\n", formatEvent(&events[i]))
				}
			}
			return b.String(), nil
		},
	}
}

// objectEvents returns the events about one object, newest first.
func (c *Client) objectEvents(ctx context.Context, namespace, name string) ([]corev1.Event, error) {
	list, err := c.clientset.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{
		FieldSelector: fields.OneTermEqualSelector("involvedObject.name", name).String(),
	})
	if err != nil {
		return nil, err
	}
	events := make([]corev1.Event, 0, len(list.Items))
	for _, e := range list.Items {
		if e.InvolvedObject.Name == name {
			events = append(events, e)
		}
	}
	sortEventsNewestFirst(events)
	return events, nil
}

func logsSchema() tools.Schema {
	return tools.Schema{
		Properties: map[string]tools.Property{
			"namespace":  namespaceProp,
			"pod_name":   podNameProp,
			"container":  containerProp,
			"tail_lines": tailLinesProp,
		},
		Required: []string{"namespace", "pod_name"},
	}
}

func (c *Client) podLogsTool() tools.Tool {
	s := logsSchema()
	s.Properties["previous"] = tools.Property{Type: "boolean", Description: "Read the previous container instance", Default: false}
	return &tool{
		name:        "get_pod_logs",
		description: "Fetch the last lines of a pod's container logs",
		schema:      s,
		run: func(ctx context.Context, args map[string]any) (string, error) {
			return c.podLogs(ctx, args, tools.BoolArg(args, "previous"))
		},
	}
}

func (c *Client) previousLogsTool() tools.Tool {
	return &tool{
		name:        "get_previous_logs",
		description: "Fetch logs of the previous (crashed) container instance, useful for CrashLoopBackOff",
		schema:      logsSchema(),
		run: func(ctx context.Context, args map[string]any) (string, error) {
			return c.podLogs(ctx, args, true)
		},
	}
}

func (c *Client) podLogs(ctx context.Context, args map[string]any, previous bool) (string, error) {
	ns := tools.StringArg(args, "namespace", "")
	name := tools.StringArg(args, "pod_name", "")
	container := tools.StringArg(args, "container", "")
	tail := int64(tools.IntArg(args, "tail_lines", defaultTailLines))
	if tail <= 0 {
		tail = defaultTailLines
	}

	logs, err := c.readLogs(ctx, ns, name, container, tail, previous)
	if err != nil {
		return "", err
	}

	header := fmt.Sprintf("Logs for pod %s", name)
	if container != "" {
		header += fmt.Sprintf(" container %s", container)
	}
	if previous {
		header += " (previous instance)"
	}
	return fmt.Sprintf("%s, last %d lines:\n%s\n%s", header, tail, separator, logs), nil
}

func (c *Client) readLogs(ctx context.Context, namespace, pod, container string, tail int64, previous bool) (string, error) {
	raw, err := c.clientset.CoreV1().Pods(namespace).GetLogs(pod, &corev1.PodLogOptions{
		Container: container,
		TailLines: &tail,
		Previous:  previous,
	}).DoRaw(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read logs of pod %s: %w", pod, err)
	}
	if len(raw) == 0 {
		return "(no log output)", nil
	}
	return string(raw), nil
}

func (c *Client) eventsTool() tools.Tool {
	return &tool{
		name:        "get_events",
		description: "List the most recent events in a namespace, optionally filtered by a field selector",
		schema: tools.Schema{
			Properties: map[string]tools.Property{
				"namespace":      namespaceProp,
				"field_selector": {Type: "string", Description: "Optional field selector, e.g. involvedObject.name=web-1"},
				"limit":          {Type: "integer", Description: "Maximum number of events", Default: defaultEventLimit},
			},
			Required: []string{"namespace"},
		},
		run: func(ctx context.Context, args map[string]any) (string, error) {
			ns := tools.StringArg(args, "namespace", "")
			list, err := c.clientset.CoreV1().Events(ns).List(ctx, metav1.ListOptions{
				FieldSelector: tools.StringArg(args, "field_selector", ""),
			})
			if err != nil {
				return "", fmt.Errorf("failed to list events in %s: %w", ns, err)
			}
			if len(list.Items) == 0 {
				return fmt.Sprintf("No events found in namespace %s", ns), nil
			}

			events := list.Items
			sortEventsNewestFirst(events)
			limit := tools.IntArg(args, "limit", defaultEventLimit)
			if limit <= 0 {
				limit = defaultEventLimit
			}
			limit = min(limit, len(events))

			var b strings.Builder
			fmt.Fprintf(&b, "Events in namespace %s (newest first, %d of %d):\n", ns, limit, len(events))
			for i := 0; i < limit; i++ {
				e := &events[i]
				fmt.Fprintf(&b, "%s  %s\n", eventTime(e).UTC().Format(time.RFC3339), formatEvent(e))
			}
			return b.String(), nil
		},
	}
}

func (c *Client) restartPodTool() tools.Tool {
	return &tool{
		name:        "restart_pod",
		description: "Restart a pod by deleting it so its controller recreates it. Requires confirm=true",
		schema: tools.Schema{
			Properties: map[string]tools.Property{
				"namespace": namespaceProp,
				"pod_name":  podNameProp,
				"confirm":   {Type: "boolean", Description: "Must be true to perform the restart", Default: false},
			},
			Required: []string{"namespace", "pod_name", "confirm"},
		},
		run: func(ctx context.Context, args map[string]any) (string, error) {
			ns := tools.StringArg(args, "namespace", "")
			name := tools.StringArg(args, "pod_name", "")
			if err := c.clientset.CoreV1().Pods(ns).Delete(ctx, name, metav1.DeleteOptions{}); err != nil {
				return "", fmt.Errorf("failed to delete pod %s: %w", name, err)
			}
			return fmt.Sprintf("Pod %s/%s deleted; its controller will recreate it", ns, name), nil
		},
	}
}

func (c *Client) execTool() tools.Tool {
	return &commandTool{tool: &tool{
		name:        "exec_in_pod",
		description: "Run a whitelisted read-only shell command (env, ps, cat, ls, df, nslookup, curl...) inside a container",
		schema: tools.Schema{
			Properties: map[string]tools.Property{
				"namespace": namespaceProp,
				"pod_name":  podNameProp,
				"command":   {Type: "string", Description: "Shell command, run with /bin/sh -c"},
				"container": containerProp,
			},
			Required: []string{"namespace", "pod_name", "command"},
		},
		run: func(ctx context.Context, args map[string]any) (string, error) {
			if c.execer == nil {
				return "", fmt.Errorf("exec is not available for this client")
			}
			ns := tools.StringArg(args, "namespace", "")
			name := tools.StringArg(args, "pod_name", "")
			command := tools.StringArg(args, "command", "")

			stdout, stderr, err := c.execer.Exec(ctx, ns, name, tools.StringArg(args, "container", ""), []string{"/bin/sh", "-c", command})
			if err != nil {
				if stderr != "" {
					return "", fmt.Errorf("exec %q in pod %s: %w: %s", command, name, err, strings.TrimSpace(stderr))
				}
				return "", fmt.Errorf("exec %q in pod %s: %w", command, name, err)
			}

			out := fmt.Sprintf("Command: %s\n%s\n%s", command, separator, stdout)
			if stderr != "" {
				out += "\nstderr:\n" + stderr
			}
			return out, nil
		},
	}}
}
