package metrics

import (
	"time"
)

// MetricValue represents a single metric with its values over time
type MetricValue struct {
	Name    string             `json:"name"`
	Unit    string             `json:"unit"`
	Values  []TimestampedValue `json:"values"`
	Average float64            `json:"average"`
	Peak    float64            `json:"peak"`
	Minimum float64            `json:"minimum"`
	Current float64            `json:"current"`
	Trend   string             `json:"trend"` // "increasing", "decreasing", "stable"
}

// TimestampedValue represents a metric value at a specific time
type TimestampedValue struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// PrometheusQuery represents a Prometheus query configuration
type PrometheusQuery struct {
	Name        string `json:"name"`
	Query       string `json:"query"`
	Unit        string `json:"unit"`
	Description string `json:"description"`
}

// prometheusResponse represents the response from Prometheus API
type prometheusResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Metric map[string]string `json:"metric"`
			Value  []interface{}     `json:"value,omitempty"`
			Values [][]interface{}   `json:"values,omitempty"`
		} `json:"result"`
	} `json:"data"`
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"errorType,omitempty"`
}

// Pod-level queries. POD_NAME is matched as a prefix so a deployment name
// selects all of its replicas.
var (
	CPUUsageQuery = PrometheusQuery{
		Name:        "cpu_usage",
		Query:       `sum(rate(container_cpu_usage_seconds_total{pod=~"POD_NAME.*", namespace="NAMESPACE", container!="", container!="POD"}[5m])) * 1000`,
		Unit:        "millicores",
		Description: "CPU usage",
	}

	CPULimitsQuery = PrometheusQuery{
		Name:        "cpu_limits",
		Query:       `sum(kube_pod_container_resource_limits{pod=~"POD_NAME.*", namespace="NAMESPACE", resource="cpu"}) * 1000`,
		Unit:        "millicores",
		Description: "CPU limits",
	}

	MemoryUsageQuery = PrometheusQuery{
		Name:        "memory_usage",
		Query:       `sum(container_memory_working_set_bytes{pod=~"POD_NAME.*", namespace="NAMESPACE", container!="", container!="POD"}) / 1024 / 1024`,
		Unit:        "MB",
		Description: "Memory working set",
	}

	MemoryLimitsQuery = PrometheusQuery{
		Name:        "memory_limits",
		Query:       `sum(kube_pod_container_resource_limits{pod=~"POD_NAME.*", namespace="NAMESPACE", resource="memory"}) / 1024 / 1024`,
		Unit:        "MB",
		Description: "Memory limits",
	}

	RestartsQuery = PrometheusQuery{
		Name:        "restarts",
		Query:       `sum(kube_pod_container_status_restarts_total{pod=~"POD_NAME.*", namespace="NAMESPACE"})`,
		Unit:        "count",
		Description: "Container restarts",
	}
)

// PodQueries returns the queries run by the pod metrics tool, in display order.
func PodQueries() []PrometheusQuery {
	return []PrometheusQuery{
		CPUUsageQuery,
		CPULimitsQuery,
		MemoryUsageQuery,
		MemoryLimitsQuery,
		RestartsQuery,
	}
}
