package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPodMetricsToolReportsUsageAgainstLimits(t *testing.T) {
	srv := prometheusStub(t, map[string]string{
		"container_memory_working_set_bytes": matrix(60, 90, 124),
		`resource="memory"`:                  matrix(128, 128),
		"container_cpu_usage_seconds_total":  matrix(20, 30, 25),
	})
	tool := NewPodMetricsTool(NewPrometheusClient(srv.URL))

	assert.Equal(t, "get_pod_metrics", tool.Name())
	assert.True(t, tool.Schema().Requires("namespace"))

	out, err := tool.Invoke(context.Background(), map[string]any{"namespace": "shop", "pod_name": "checkout", "duration": "2d"})
	require.NoError(t, err)

	assert.Contains(t, out, "Metrics for pod checkout in namespace shop (last 2d)")
	assert.Contains(t, out, "Memory working set (MB): avg 91.3, peak 124.0, min 60.0, current 124.0, trend increasing")
	assert.Contains(t, out, "CPU usage (millicores): avg 25.0, peak 30.0")
	assert.Contains(t, out, "memory peak is 97% of its limit (critical)")
	assert.NotContains(t, out, "cpu peak", "no cpu limit series")
	assert.NotContains(t, out, "Container restarts")
}

func TestPodMetricsToolNoData(t *testing.T) {
	srv := prometheusStub(t, nil)
	tool := NewPodMetricsTool(NewPrometheusClient(srv.URL))

	out, err := tool.Invoke(context.Background(), map[string]any{"namespace": "shop", "pod_name": "idle"})
	require.NoError(t, err)
	assert.Equal(t, "No metrics found for pod idle in namespace shop over the last 1h", out)
}

func TestPodMetricsToolErrors(t *testing.T) {
	tool := NewPodMetricsTool(NewPrometheusClient("http://127.0.0.1:1"))

	_, err := tool.Invoke(context.Background(), map[string]any{"namespace": "shop", "pod_name": "x"})
	assert.Error(t, err)

	srv := prometheusStub(t, nil)
	tool = NewPodMetricsTool(NewPrometheusClient(srv.URL))
	_, err = tool.Invoke(context.Background(), map[string]any{"namespace": "shop", "pod_name": "x", "duration": "1w"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}
