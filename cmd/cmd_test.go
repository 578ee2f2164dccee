package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmcode/kubediag/pkg/security"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "incidents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadIncidentsList(t *testing.T) {
	path := writeFile(t, "- pod a crashes\n- job b fails\n")
	problems, err := loadIncidents(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"pod a crashes", "job b fails"}, problems)
}

func TestLoadIncidentsObject(t *testing.T) {
	path := writeFile(t, "incidents:\n  - problem: pod a crashes\n  - problem: service b times out\n")
	problems, err := loadIncidents(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"pod a crashes", "service b times out"}, problems)
}

func TestLoadIncidentsEmpty(t *testing.T) {
	_, err := loadIncidents(writeFile(t, "incidents: []\n"))
	assert.ErrorContains(t, err, "no incidents")

	_, err = loadIncidents(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read incidents")
}

func TestCatalogListsEveryTool(t *testing.T) {
	registry, err := catalog()
	require.NoError(t, err)

	for _, name := range []string{"list_pods", "get_pod_logs", "exec_in_pod", "restart_pod", "get_pod_metrics"} {
		_, ok := registry.Get(name)
		assert.True(t, ok, name)
	}
}

func TestDisplayToolsHuman(t *testing.T) {
	color.NoColor = true
	registry, err := catalog()
	require.NoError(t, err)
	wl := security.NewWhitelist(security.WhitelistConfig{BlockedNamespaces: []string{"kube-system"}})

	var buf bytes.Buffer
	require.NoError(t, displayTools(&buf, registry, wl, []string{"restart_pod"}, "human"))

	out := buf.String()
	assert.Contains(t, out, "restart_pod (requires confirmation)")
	assert.Contains(t, out, "available when Prometheus is reachable")
	assert.Contains(t, out, "blocked: kube-system")
	assert.Contains(t, out, "allowed: all (except blocked)")
}

func TestDisplayToolsJSON(t *testing.T) {
	registry, err := catalog()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, displayTools(&buf, registry, security.NewWhitelist(security.WhitelistConfig{}), nil, "json"))

	var entries []toolEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entries))
	assert.Len(t, entries, registry.Len())
	assert.Equal(t, "list_pods", entries[0].Name)
}

func TestDisplayToolsUnsupportedFormat(t *testing.T) {
	registry, err := catalog()
	require.NoError(t, err)
	err = displayTools(&bytes.Buffer{}, registry, security.NewWhitelist(security.WhitelistConfig{}), nil, "xml")
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestAuditLine(t *testing.T) {
	color.NoColor = true

	call := map[string]any{
		"timestamp":  "2026-01-02T03:04:05Z",
		"tool":       "get_pod_logs",
		"success":    true,
		"session_id": "abc",
		"arguments":  map[string]any{"pod_name": "web", "namespace": "shop"},
	}
	assert.Equal(t, "2026-01-02T03:04:05Z ok get_pod_logs namespace=shop pod_name=web session=abc", auditLine(call))

	event := map[string]any{
		"timestamp":  "2026-01-02T03:04:05Z",
		"type":       "security_event",
		"event_type": "namespace_violation",
		"severity":   "warning",
		"details":    map[string]any{"tool": "list_pods"},
	}
	assert.Equal(t, "2026-01-02T03:04:05Z WARNING namespace_violation tool=list_pods", auditLine(event))
}

func TestDisplayAuditEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, displayAudit(&buf, nil, "human"))
	assert.Equal(t, "No audit records\n", buf.String())
}
