package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// PrometheusClient handles communication with the Prometheus HTTP API, either
// directly or through the API server's service proxy.
type PrometheusClient struct {
	url string
	get func(ctx context.Context, path string, params url.Values) ([]byte, error)
}

// NewPrometheusClient creates a client for a Prometheus reachable at prometheusURL.
func NewPrometheusClient(prometheusURL string) *PrometheusClient {
	finalURL := prometheusURL
	// Ensure URL has proper format
	if !strings.HasPrefix(finalURL, "http") {
		finalURL = "http://" + finalURL
	}
	if !strings.HasSuffix(finalURL, "/") {
		finalURL += "/"
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	return &PrometheusClient{
		url: finalURL,
		get: func(ctx context.Context, path string, params url.Values) ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL+path+"?"+params.Encode(), nil)
			if err != nil {
				return nil, fmt.Errorf("failed to create request: %w", err)
			}
			resp, err := httpClient.Do(req)
			if err != nil {
				return nil, fmt.Errorf("query failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to read response: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
			}
			return body, nil
		},
	}
}

// NewProxyPrometheusClient reaches a Prometheus service through the API
// server's service proxy, so no port-forward is needed from outside the cluster.
func NewProxyPrometheusClient(cs kubernetes.Interface, svc ServiceRef) *PrometheusClient {
	return &PrometheusClient{
		url: fmt.Sprintf("proxy://%s/%s:%d/", svc.Namespace, svc.Name, svc.Port),
		get: func(ctx context.Context, path string, params url.Values) ([]byte, error) {
			flat := make(map[string]string, len(params))
			for k := range params {
				flat[k] = params.Get(k)
			}
			body, err := cs.CoreV1().Services(svc.Namespace).
				ProxyGet("http", svc.Name, strconv.Itoa(svc.Port), path, flat).
				DoRaw(ctx)
			if err != nil {
				return nil, fmt.Errorf("query failed: %w", err)
			}
			return body, nil
		},
	}
}

// ServiceRef locates a Prometheus service in the cluster.
type ServiceRef struct {
	Name      string
	Namespace string
	Port      int
}

// InClusterURL is the service DNS address usable from inside the cluster.
func (s ServiceRef) InClusterURL() string {
	return fmt.Sprintf("http://%s.%s.svc.cluster.local:%d", s.Name, s.Namespace, s.Port)
}

// Common Prometheus service names and namespaces
var (
	servicePatterns = []string{
		"prometheus-server",
		"prometheus-service",
		"prometheus",
		"kube-prometheus-stack-prometheus",
		"prometheus-kube-prometheus-prometheus",
		"prometheus-operated",
	}

	prometheusNamespaces = []string{
		"prometheus-system",
		"prometheus",
		"monitoring",
		"kube-prometheus-stack",
		"observability",
		"default",
	}
)

// DetectPrometheus looks for a Prometheus service by well-known names. When
// namespace is set only that namespace is searched.
func DetectPrometheus(ctx context.Context, cs kubernetes.Interface, namespace string) (ServiceRef, error) {
	namespaces := prometheusNamespaces
	if namespace != "" {
		namespaces = []string{namespace}
	}

	for _, ns := range namespaces {
		for _, pattern := range servicePatterns {
			service, err := cs.CoreV1().Services(ns).Get(ctx, pattern, metav1.GetOptions{})
			if err != nil {
				continue
			}
			port := 80
			if len(service.Spec.Ports) > 0 {
				port = int(service.Spec.Ports[0].Port)
			}
			return ServiceRef{Name: service.Name, Namespace: ns, Port: port}, nil
		}
	}

	return ServiceRef{}, fmt.Errorf("could not auto-detect Prometheus service in any of the following namespaces: %v", namespaces)
}

// IsRunningInCluster checks for a mounted service account token.
func IsRunningInCluster() bool {
	_, err := os.Stat("/var/run/secrets/kubernetes.io/serviceaccount/token")
	return err == nil
}

// GetURL returns the Prometheus URL
func (p *PrometheusClient) GetURL() string {
	return p.url
}

// Ping runs a trivial instant query.
func (p *PrometheusClient) Ping(ctx context.Context) error {
	body, err := p.get(ctx, "api/v1/query", url.Values{"query": {"up"}})
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	_, err = decodeResponse(body)
	return err
}

// QueryRange executes a range query. Only the first series is returned.
func (p *PrometheusClient) QueryRange(ctx context.Context, query string, startTime, endTime time.Time) ([]TimestampedValue, error) {
	params := url.Values{}
	params.Add("query", query)
	params.Add("start", strconv.FormatInt(startTime.Unix(), 10))
	params.Add("end", strconv.FormatInt(endTime.Unix(), 10))
	params.Add("step", stepFor(endTime.Sub(startTime)))

	body, err := p.get(ctx, "api/v1/query_range", params)
	if err != nil {
		return nil, err
	}
	promResp, err := decodeResponse(body)
	if err != nil {
		return nil, err
	}

	// Parse results
	var values []TimestampedValue
	if len(promResp.Data.Result) > 0 {
		result := promResp.Data.Result[0]
		for _, valuePoint := range result.Values {
			if len(valuePoint) < 2 {
				continue
			}
			timestamp, _ := valuePoint[0].(float64)
			valueStr, _ := valuePoint[1].(string)
			value, err := strconv.ParseFloat(valueStr, 64)
			if err != nil {
				continue
			}
			values = append(values, TimestampedValue{
				Timestamp: time.Unix(int64(timestamp), 0),
				Value:     value,
			})
		}
	}
	return values, nil
}

func decodeResponse(body []byte) (*prometheusResponse, error) {
	var promResp prometheusResponse
	if err := json.Unmarshal(body, &promResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if promResp.Status != "success" {
		return nil, fmt.Errorf("prometheus API error: %s", promResp.Error)
	}
	return &promResp, nil
}

// stepFor picks a resolution that keeps range queries to a few hundred points.
func stepFor(d time.Duration) string {
	switch {
	case d <= time.Hour:
		return "60" // 1 minute
	case d <= 6*time.Hour:
		return "300" // 5 minutes for short periods
	case d <= 24*time.Hour:
		return "900" // 15 minutes for 1 day
	case d <= 7*24*time.Hour:
		return "3600" // 1 hour for 1 week
	default:
		return "7200" // 2 hours for longer periods
	}
}

var durationRe = regexp.MustCompile(`^(\d+)([hdm])$`)

// ParseDuration parses a lookback such as 30m, 1h or 2d.
func ParseDuration(duration string) (time.Duration, error) {
	matches := durationRe.FindStringSubmatch(strings.TrimSpace(duration))
	if len(matches) != 3 {
		return 0, fmt.Errorf("invalid duration format: %s", duration)
	}

	value, err := strconv.Atoi(matches[1])
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid duration value: %s", matches[1])
	}

	switch matches[2] {
	case "h":
		return time.Duration(value) * time.Hour, nil
	case "d":
		return time.Duration(value) * 24 * time.Hour, nil
	default:
		return time.Duration(value) * time.Minute, nil
	}
}
