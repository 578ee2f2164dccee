package security

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
)

var (
	ErrEmptyNamespace       = errors.New("namespace is empty")
	ErrNamespaceBlocked     = errors.New("namespace is blocked")
	ErrNamespaceNotAllowed  = errors.New("namespace is not in the allowed list")
	ErrCommandNotAllowed    = errors.New("command is not in the allowed list")
	ErrDangerousCommand     = errors.New("command matches a dangerous pattern")
	ErrSensitiveResource    = errors.New("access to sensitive resource denied")
	ErrConfirmationRequired = errors.New("operation requires confirm=true")
)

// DefaultBlockedNamespaces are the platform's own system namespaces.
var DefaultBlockedNamespaces = []string{"kube-system", "kube-public", "kube-node-lease"}

// DefaultAllowedExecCommands are the read-only commands exec_in_pod may run.
var DefaultAllowedExecCommands = []string{
	"env", "ps", "cat", "ls", "df", "free",
	"netstat", "ping", "nslookup", "curl", "wget", "top",
}

var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\|\s*rm`),
	regexp.MustCompile(`(?i)\|\s*dd`),
	regexp.MustCompile(`(?i)>\s*/etc/`),
	regexp.MustCompile(`(?i)>\s*/var/`),
	regexp.MustCompile(`(?i)>\s*/usr/`),
	regexp.MustCompile(`(?i)&&\s*rm`),
	regexp.MustCompile(`(?i);\s*rm`),
	regexp.MustCompile(`\$\(`),
	regexp.MustCompile("`"),
}

type sensitiveResource struct {
	kind string
	name string // "*" matches every name
}

var sensitiveResources = []sensitiveResource{
	{kind: "secret", name: "*"},
	{kind: "configmap", name: "kubeconfig"},
}

// WhitelistConfig holds the namespace and command lists.
type WhitelistConfig struct {
	AllowedNamespaces   []string
	BlockedNamespaces   []string
	AllowedExecCommands []string
}

// Whitelist performs namespace, command and resource checks. It is immutable
// after construction and safe for concurrent use.
type Whitelist struct {
	allowed      map[string]struct{}
	blocked      map[string]struct{}
	execCommands map[string]struct{}
}

// NewWhitelist builds a whitelist. Nil blocked or exec lists fall back to the
// defaults; an explicitly empty list disables them.
func NewWhitelist(cfg WhitelistConfig) *Whitelist {
	blocked := cfg.BlockedNamespaces
	if blocked == nil {
		blocked = DefaultBlockedNamespaces
	}
	execCommands := cfg.AllowedExecCommands
	if execCommands == nil {
		execCommands = DefaultAllowedExecCommands
	}
	return &Whitelist{
		allowed:      toSet(cfg.AllowedNamespaces),
		blocked:      toSet(blocked),
		execCommands: toSet(execCommands),
	}
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			set[item] = struct{}{}
		}
	}
	return set
}

// CheckNamespace returns nil when ns may be accessed. The blocklist always
// wins over the allowlist, and an empty allowlist admits every unblocked namespace.
func (w *Whitelist) CheckNamespace(ns string) error {
	if ns == "" {
		return ErrEmptyNamespace
	}
	if _, ok := w.blocked[ns]; ok {
		return fmt.Errorf("%w: %s", ErrNamespaceBlocked, ns)
	}
	if len(w.allowed) > 0 {
		if _, ok := w.allowed[ns]; !ok {
			return fmt.Errorf("%w: %s", ErrNamespaceNotAllowed, ns)
		}
	}
	return nil
}

// CheckExecCommand validates a shell command destined for a container.
func (w *Whitelist) CheckExecCommand(cmd string) error {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return fmt.Errorf("%w: empty command", ErrCommandNotAllowed)
	}

	base := path.Base(fields[0])
	if _, ok := w.execCommands[base]; !ok {
		return fmt.Errorf("%w: %s", ErrCommandNotAllowed, base)
	}

	for _, p := range dangerousPatterns {
		if p.MatchString(cmd) {
			return fmt.Errorf("%w: %s", ErrDangerousCommand, p.String())
		}
	}
	return nil
}

// CheckResourceAccess composes the namespace check with the sensitive
// resource deny table.
func (w *Whitelist) CheckResourceAccess(kind, name, ns string) error {
	if err := w.CheckNamespace(ns); err != nil {
		return err
	}
	kind = strings.ToLower(kind)
	for _, r := range sensitiveResources {
		if r.kind == kind && (r.name == "*" || r.name == name) {
			return fmt.Errorf("%w: %s/%s", ErrSensitiveResource, kind, name)
		}
	}
	return nil
}

// AllowedNamespaces renders the allowlist for display.
func (w *Whitelist) AllowedNamespaces() string {
	if len(w.allowed) == 0 {
		return "all (except blocked)"
	}
	return joinSorted(w.allowed)
}

// BlockedNamespaces renders the blocklist for display.
func (w *Whitelist) BlockedNamespaces() string {
	return joinSorted(w.blocked)
}

func joinSorted(set map[string]struct{}) string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}
