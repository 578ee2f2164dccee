package security

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/helmcode/kubediag/pkg/model"
	"github.com/helmcode/kubediag/pkg/tools"
)

type fakeTool struct {
	name   string
	out    string
	err    error
	calls  int
	schema tools.Schema
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake " + f.name }
func (f *fakeTool) Schema() tools.Schema {
	if f.schema.Properties == nil {
		return tools.Schema{
			Properties: map[string]tools.Property{"namespace": {Type: "string"}},
			Required:   []string{"namespace"},
		}
	}
	return f.schema
}
func (f *fakeTool) Invoke(context.Context, map[string]any) (string, error) {
	f.calls++
	return f.out, f.err
}

type fakeExecTool struct{ fakeTool }

func (f *fakeExecTool) Command(args map[string]any) string { return tools.StringArg(args, "command", "") }

type fakeConfigMapTool struct{ fakeTool }

func (f *fakeConfigMapTool) Resource(args map[string]any) (string, string) {
	return "configmap", tools.StringArg(args, "name", "")
}

func newTestGate(t *testing.T, ts ...tools.Tool) (*Gate, *AuditLogger) {
	t.Helper()
	reg, err := tools.NewRegistry(ts...)
	require.NoError(t, err)

	cfg := DefaultAuditConfig()
	cfg.Path = filepath.Join(t.TempDir(), "audit.log")
	audit, err := NewAuditLogger(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = audit.Close() })

	return NewGate(reg, NewWhitelist(WhitelistConfig{}), audit, nil, zaptest.NewLogger(t)), audit
}

func TestGateInvokeSuccess(t *testing.T) {
	logs := &fakeTool{name: "get_pod_logs", out: "OOMKilled"}
	gate, audit := newTestGate(t, logs)

	out := gate.Invoke(context.Background(), "s-1", "get_pod_logs", map[string]any{"namespace": "team-a"})

	assert.True(t, out.OK())
	assert.Equal(t, "OOMKilled", out.Text())
	assert.Equal(t, 1, logs.calls)

	records, err := audit.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, true, records[0]["success"])
}

func TestGateInvokeUnknownTool(t *testing.T) {
	gate, audit := newTestGate(t)

	out := gate.Invoke(context.Background(), "s-1", "nope", nil)

	assert.Equal(t, model.KindToolNotFound, out.Kind)
	assert.Equal(t, "tool not found: nope", out.Text())
	records, err := audit.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, false, records[0]["success"])
}

func TestGateRejectsBlockedNamespaceBeforeDispatch(t *testing.T) {
	pods := &fakeTool{name: "list_pods", out: "pods"}
	gate, audit := newTestGate(t, pods)

	out := gate.Invoke(context.Background(), "s-1", "list_pods", map[string]any{"namespace": "kube-system"})

	assert.Equal(t, model.KindSecurityViolation, out.Kind)
	assert.Contains(t, out.Text(), "security rejection")
	assert.Zero(t, pods.calls)

	records, err := audit.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "security_event", records[0]["type"])
	assert.Equal(t, "namespace_blocked", records[0]["event_type"])
	assert.Equal(t, false, records[1]["success"])
}

func TestGateRejectsMissingNamespace(t *testing.T) {
	pods := &fakeTool{name: "list_pods"}
	gate, _ := newTestGate(t, pods)

	out := gate.Invoke(context.Background(), "s-1", "list_pods", map[string]any{})

	assert.Equal(t, model.KindSecurityViolation, out.Kind)
	assert.Zero(t, pods.calls)
}

func TestGateRejectsDangerousExec(t *testing.T) {
	exec := &fakeExecTool{fakeTool{name: "exec_in_pod", out: "ok"}}
	gate, _ := newTestGate(t, exec)

	out := gate.Invoke(context.Background(), "s-1", "exec_in_pod", map[string]any{
		"namespace": "team-a",
		"command":   "cat /etc/shadow && rm -rf /",
	})
	assert.Equal(t, model.KindSecurityViolation, out.Kind)
	assert.Zero(t, exec.calls)

	out = gate.Invoke(context.Background(), "s-1", "exec_in_pod", map[string]any{
		"namespace": "team-a",
		"command":   "env",
	})
	assert.True(t, out.OK())
	assert.Equal(t, 1, exec.calls)
}

func TestGateRejectsSensitiveConfigMap(t *testing.T) {
	cm := &fakeConfigMapTool{fakeTool{name: "get_configmap", out: "data"}}
	gate, _ := newTestGate(t, cm)

	out := gate.Invoke(context.Background(), "s-1", "get_configmap", map[string]any{"namespace": "team-a", "name": "kubeconfig"})
	assert.Equal(t, model.KindSecurityViolation, out.Kind)

	out = gate.Invoke(context.Background(), "s-1", "get_configmap", map[string]any{"namespace": "team-a", "name": "app"})
	assert.True(t, out.OK())
}

func TestGateRequiresConfirmation(t *testing.T) {
	restart := &fakeTool{name: "restart_pod", out: "deleted"}
	gate, audit := newTestGate(t, restart)

	out := gate.Invoke(context.Background(), "s-1", "restart_pod", map[string]any{"namespace": "team-a", "pod_name": "p"})
	assert.Equal(t, model.KindSecurityViolation, out.Kind)
	assert.Contains(t, out.Message, "confirm=true")
	assert.Zero(t, restart.calls)

	records, err := audit.Recent(1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, false, records[0]["success"])

	out = gate.Invoke(context.Background(), "s-1", "restart_pod", map[string]any{"namespace": "team-a", "pod_name": "p", "confirm": true})
	assert.True(t, out.OK())
}

func TestGateConvertsToolErrors(t *testing.T) {
	broken := &fakeTool{name: "describe_pod", err: errors.New("pods \"x\" not found")}
	gate, _ := newTestGate(t, broken)

	out := gate.Invoke(context.Background(), "s-1", "describe_pod", map[string]any{"namespace": "team-a"})

	assert.Equal(t, model.KindToolExecution, out.Kind)
	assert.Equal(t, `tool execution failed: pods "x" not found`, out.Text())
}

func TestGateSkipsNamespaceCheckForClusterScopedTools(t *testing.T) {
	nodes := &fakeTool{name: "list_nodes", out: "nodes", schema: tools.Schema{Properties: map[string]tools.Property{}}}
	gate, _ := newTestGate(t, nodes)

	out := gate.Invoke(context.Background(), "s-1", "list_nodes", nil)
	assert.True(t, out.OK())
}

func TestGateChecksOptionalNamespaceWhenSupplied(t *testing.T) {
	services := &fakeTool{name: "list_services", out: "svc dump", schema: tools.Schema{
		Properties: map[string]tools.Property{"namespace": {Type: "string"}},
	}}
	gate, audit := newTestGate(t, services)

	out := gate.Invoke(context.Background(), "s-1", "list_services", map[string]any{"namespace": "kube-system"})
	assert.Equal(t, model.KindSecurityViolation, out.Kind)
	assert.Zero(t, services.calls)

	records, err := audit.Recent(1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, false, records[0]["success"])

	out = gate.Invoke(context.Background(), "s-1", "list_services", map[string]any{})
	assert.True(t, out.OK())
	assert.Equal(t, 1, services.calls)
}

func TestEventType(t *testing.T) {
	assert.Equal(t, "command_rejected", eventType(ErrDangerousCommand))
	assert.Equal(t, "namespace_not_allowed", eventType(ErrEmptyNamespace))
	assert.Equal(t, "access_denied", eventType(errors.New("other")))
}
