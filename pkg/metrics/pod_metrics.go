package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/helmcode/kubediag/pkg/tools"
)

const defaultMetricsDuration = "1h"

// PodMetricsTool exposes CPU and memory history of a pod to the planner.
type PodMetricsTool struct {
	prometheus *PrometheusClient
	now        func() time.Time
}

// NewPodMetricsTool creates the get_pod_metrics tool.
func NewPodMetricsTool(p *PrometheusClient) *PodMetricsTool {
	return &PodMetricsTool{prometheus: p, now: time.Now}
}

func (t *PodMetricsTool) Name() string { return "get_pod_metrics" }

func (t *PodMetricsTool) Description() string {
	return "Query Prometheus for a pod's CPU and memory usage against its limits over a period (1h, 30m, 2d): avg, peak, min, current and trend"
}

func (t *PodMetricsTool) Schema() tools.Schema {
	return tools.Schema{
		Properties: map[string]tools.Property{
			"namespace": {Type: "string", Description: "Kubernetes namespace"},
			"pod_name":  {Type: "string", Description: "Pod name or name prefix (a deployment name selects its replicas)"},
			"duration":  {Type: "string", Description: "Lookback window such as 30m, 1h or 2d", Default: defaultMetricsDuration},
		},
		Required: []string{"namespace", "pod_name"},
	}
}

// Collect runs every pod query over the window. Queries that fail or return
// nothing are left out; an error is returned only when every query failed.
func (t *PodMetricsTool) Collect(ctx context.Context, namespace, pod, duration string) (map[string]MetricValue, error) {
	window, err := ParseDuration(duration)
	if err != nil {
		return nil, err
	}
	end := t.now()
	start := end.Add(-window)

	queries := PodQueries()
	out := make(map[string]MetricValue, len(queries))
	var firstErr error
	failed := 0
	for _, q := range queries {
		query := strings.ReplaceAll(q.Query, "POD_NAME", pod)
		query = strings.ReplaceAll(query, "NAMESPACE", namespace)

		values, err := t.prometheus.QueryRange(ctx, query, start, end)
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", q.Name, err)
			}
			continue
		}
		if len(values) == 0 {
			continue
		}
		out[q.Name] = newMetricValue(q, values)
	}
	if failed == len(queries) {
		return nil, firstErr
	}
	return out, nil
}

func (t *PodMetricsTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	ns := tools.StringArg(args, "namespace", "")
	pod := tools.StringArg(args, "pod_name", "")
	duration := tools.StringArg(args, "duration", defaultMetricsDuration)

	data, err := t.Collect(ctx, ns, pod, duration)
	if err != nil {
		return "", fmt.Errorf("failed to collect metrics for %s/%s: %w", ns, pod, err)
	}
	if len(data) == 0 {
		return fmt.Sprintf("No metrics found for pod %s in namespace %s over the last %s", pod, ns, duration), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Metrics for pod %s in namespace %s (last %s):\n", pod, ns, duration)
	for _, q := range PodQueries() {
		m, ok := data[q.Name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s (%s): avg %.1f, peak %.1f, min %.1f, current %.1f, trend %s\n",
			q.Description, m.Unit, m.Average, m.Peak, m.Minimum, m.Current, m.Trend)
	}

	for _, pair := range [][2]string{{"cpu_usage", "cpu_limits"}, {"memory_usage", "memory_limits"}} {
		usage, ok := data[pair[0]]
		limit, hasLimit := data[pair[1]]
		if !ok || !hasLimit || limit.Current <= 0 {
			continue
		}
		percent := usage.Peak / limit.Current * 100
		fmt.Fprintf(&b, "- %s peak is %.0f%% of its limit (%s)\n", strings.TrimSuffix(pair[0], "_usage"), percent, calculateUtilization(percent))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
