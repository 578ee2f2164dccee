package security

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/helmcode/kubediag/pkg/model"
	"github.com/helmcode/kubediag/pkg/tools"
)

// DefaultRequireConfirmation lists tools that mutate the cluster.
var DefaultRequireConfirmation = []string{"restart_pod"}

// Gate is the only path from the executor to a tool. It resolves the tool,
// applies the whitelist, dispatches, and records every call in the audit log.
type Gate struct {
	registry       *tools.Registry
	whitelist      *Whitelist
	audit          *AuditLogger
	requireConfirm map[string]struct{}
	log            *zap.Logger
}

// NewGate wires a gate. audit may be nil, in which case nothing is recorded.
func NewGate(registry *tools.Registry, whitelist *Whitelist, audit *AuditLogger, requireConfirm []string, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	if audit == nil {
		audit, _ = NewAuditLogger(AuditConfig{Enabled: false}, log)
	}
	if requireConfirm == nil {
		requireConfirm = DefaultRequireConfirmation
	}
	return &Gate{
		registry:       registry,
		whitelist:      whitelist,
		audit:          audit,
		requireConfirm: toSet(requireConfirm),
		log:            log,
	}
}

// Registry exposes the tools reachable through the gate.
func (g *Gate) Registry() *tools.Registry { return g.registry }

// Invoke dispatches one tool call. Failures are reported in the returned
// outcome; Invoke never returns a Go error.
func (g *Gate) Invoke(ctx context.Context, sessionID, name string, args map[string]any) model.ToolOutcome {
	if args == nil {
		args = map[string]any{}
	}

	tool, ok := g.registry.Get(name)
	if !ok {
		g.audit.Log(AuditRecord{SessionID: sessionID, Tool: name, Arguments: args, Result: "tool not found", Success: false})
		return model.ToolOutcome{Kind: model.KindToolNotFound, Message: name}
	}

	if err := g.check(name, tool, args); err != nil {
		g.audit.LogSecurityEvent(eventType(err), SeverityWarning, map[string]any{
			"session_id": sessionID,
			"tool":       name,
			"arguments":  SanitizeArguments(args),
			"reason":     err.Error(),
		})
		g.audit.Log(AuditRecord{SessionID: sessionID, Tool: name, Arguments: args, Result: err.Error(), Success: false})
		return model.ToolOutcome{Kind: model.KindSecurityViolation, Message: err.Error()}
	}

	out, err := tool.Invoke(ctx, args)
	if err != nil {
		g.log.Warn("tool invocation failed", zap.String("tool", name), zap.Error(err))
		g.audit.Log(AuditRecord{SessionID: sessionID, Tool: name, Arguments: args, Result: err.Error(), Success: false})
		return model.ToolOutcome{Kind: model.KindToolExecution, Message: err.Error()}
	}

	g.audit.Log(AuditRecord{SessionID: sessionID, Tool: name, Arguments: args, Result: out, Success: true})
	return model.ToolOutcome{Output: out}
}

func (g *Gate) check(name string, tool tools.Tool, args map[string]any) error {
	// A supplied namespace is always checked; an absent one only matters
	// when the tool cannot run without it.
	if _, present := args["namespace"]; present || tool.Schema().Requires("namespace") {
		if err := g.whitelist.CheckNamespace(tools.StringArg(args, "namespace", "")); err != nil {
			return err
		}
	}
	if rt, ok := tool.(tools.ResourceTool); ok {
		kind, resName := rt.Resource(args)
		if err := g.whitelist.CheckResourceAccess(kind, resName, tools.StringArg(args, "namespace", "")); err != nil {
			return err
		}
	}
	if ct, ok := tool.(tools.CommandTool); ok {
		if err := g.whitelist.CheckExecCommand(ct.Command(args)); err != nil {
			return err
		}
	}
	if _, ok := g.requireConfirm[name]; ok && !tools.BoolArg(args, "confirm") {
		return fmt.Errorf("%w: %s", ErrConfirmationRequired, name)
	}
	return nil
}

func eventType(err error) string {
	switch {
	case errors.Is(err, ErrNamespaceBlocked):
		return "namespace_blocked"
	case errors.Is(err, ErrNamespaceNotAllowed), errors.Is(err, ErrEmptyNamespace):
		return "namespace_not_allowed"
	case errors.Is(err, ErrCommandNotAllowed), errors.Is(err, ErrDangerousCommand):
		return "command_rejected"
	case errors.Is(err, ErrSensitiveResource):
		return "sensitive_resource_denied"
	case errors.Is(err, ErrConfirmationRequired):
		return "confirmation_required"
	default:
		return "access_denied"
	}
}
