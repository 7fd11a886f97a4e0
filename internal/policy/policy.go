// Package policy implements the policy engine (spec §4.2): ordered rule
// evaluation deciding whether a tool call may execute, plus response
// content sanitization. The rule-matching idiom (compiled glob/regex
// patterns, deny-wins precedence) is grounded on
// agentsdk-go/pkg/security/permission_matcher.go; the sandbox allowlist's
// "single trailing wildcard" pattern style is grounded on the same file's
// globToRegex helper, narrowed to the spec's simpler subset.
package policy

import (
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Decision is the result of evaluating a candidate tool call.
type Decision struct {
	Allowed bool
	Reason  string
	Status  int
	Code    string
	Rule    string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(status int, code, reason string) Decision {
	return Decision{Allowed: false, Status: status, Code: code, Reason: reason, Rule: code}
}

// GitPolicy mirrors config.GitPolicyConfig without importing the config
// package, so that policy stays a leaf dependency.
type GitPolicy struct {
	AllowPush    bool
	AllowPull    bool
	AllowCommit  bool
	RequireTests bool
	TestCommand  string
	CommitRegex  string
	Autostash    bool
}

// SandboxPermission configures the §4.2 rule 6 sandbox-permission-mode gate.
type SandboxPermission struct {
	Mode  string // auto | require | deny
	Allow []string
	Deny  []string
}

// Engine is the process-wide policy engine singleton.
type Engine struct {
	DisallowedTools    map[string]bool
	MaxToolCallsPerTun int
	Git                GitPolicy
	Sandbox            SandboxPermission

	// SandboxTools names the tools that require sandboxed execution and
	// are therefore subject to rule 6. Populated by whoever wires the
	// subprocess runner (shell, python_exec, workspace_test_run).
	SandboxTools map[string]bool
}

func New(disallowed []string, maxToolCallsPerTurn int, git GitPolicy, sandbox SandboxPermission, sandboxTools []string) *Engine {
	dis := make(map[string]bool, len(disallowed))
	for _, t := range disallowed {
		dis[strings.TrimSpace(t)] = true
	}
	st := make(map[string]bool, len(sandboxTools))
	for _, t := range sandboxTools {
		st[t] = true
	}
	return &Engine{
		DisallowedTools:    dis,
		MaxToolCallsPerTun: maxToolCallsPerTurn,
		Git:                git,
		Sandbox:            sandbox,
		SandboxTools:       st,
	}
}

// CallInput bundles the arguments EvaluateToolCall needs.
type CallInput struct {
	ToolName         string
	Params           map[string]any
	ToolCallsExecuted int
}

// EvaluateToolCall runs the ordered rule chain from spec §4.2. Rules are
// checked in order and the first matching denial wins; deny always beats
// allow (there is no "ask" tier in this spec, unlike the teacher's
// three-tier allow/ask/deny matcher).
func (e *Engine) EvaluateToolCall(in CallInput) Decision {
	// 1. Tool allowlist.
	if e.DisallowedTools[in.ToolName] {
		return deny(403, "tool_disallowed", fmt.Sprintf("tool %q is disallowed", in.ToolName))
	}

	// 2. Per-turn quota.
	if in.ToolCallsExecuted >= e.MaxToolCallsPerTun {
		return deny(429, "tool_limit_reached", "per-turn tool call quota exceeded")
	}

	// 3. Git policy.
	if strings.HasPrefix(in.ToolName, "workspace_git_") {
		if d, handled := e.evaluateGit(in); handled {
			return d
		}
	}

	// 4. Shell safety.
	if in.ToolName == "shell" {
		cmd := extractCommand(in.Params)
		if pattern, ok := matchShellBlocklist(cmd); ok {
			return deny(403, "unsafe_shell_command", fmt.Sprintf("command matches blocked pattern %q", pattern))
		}
	}

	// 5. Python safety.
	if in.ToolName == "python_exec" {
		code, _ := in.Params["code"].(string)
		if pattern, ok := matchPythonBlocklist(code); ok {
			return deny(403, "unsafe_python_code", fmt.Sprintf("code matches blocked pattern %q", pattern))
		}
	}

	// 6. Sandbox permissions.
	if e.SandboxTools[in.ToolName] {
		if d, handled := e.evaluateSandboxPermission(in); handled {
			return d
		}
	}

	return allow()
}

func (e *Engine) evaluateGit(in CallInput) (Decision, bool) {
	switch in.ToolName {
	case "workspace_git_push":
		if !e.Git.AllowPush {
			return deny(403, "git_push_disabled", "git push is disabled by policy"), true
		}
	case "workspace_git_pull":
		if !e.Git.AllowPull {
			return deny(403, "git_pull_disabled", "git pull is disabled by policy"), true
		}
	case "workspace_git_commit":
		if !e.Git.AllowCommit {
			return deny(403, "git_commit_disabled", "git commit is disabled by policy"), true
		}
		msg, _ := in.Params["message"].(string)
		if e.Git.CommitRegex != "" {
			re, err := regexp.Compile(e.Git.CommitRegex)
			if err == nil && !re.MatchString(msg) {
				return deny(403, "git_commit_message_rejected", "commit message does not match required pattern"), true
			}
		}
		if e.Git.RequireTests && e.Git.TestCommand != "" {
			cmd := exec.Command("sh", "-c", e.Git.TestCommand)
			if err := cmd.Run(); err != nil {
				return deny(403, "git_commit_tests_failed", "pre-commit test command failed"), true
			}
		}
	}
	return Decision{}, false
}

func (e *Engine) evaluateSandboxPermission(in CallInput) (Decision, bool) {
	target := firstStringParam(in.Params, "path", "file", "target", "command", "cmd")
	switch e.Sandbox.Mode {
	case "deny":
		return deny(403, "sandbox_permission_denied", "sandbox permission mode is deny"), true
	case "require":
		for _, pattern := range e.Sandbox.Deny {
			if matchWildcard(pattern, target) {
				return deny(403, "sandbox_permission_denied", "target matches a denied pattern"), true
			}
		}
		for _, pattern := range e.Sandbox.Allow {
			if matchWildcard(pattern, target) {
				return Decision{}, false
			}
		}
		return deny(403, "sandbox_permission_denied", "target does not match any allowed pattern"), true
	default: // "auto"
		for _, pattern := range e.Sandbox.Deny {
			if matchWildcard(pattern, target) {
				return deny(403, "sandbox_permission_denied", "target matches a denied pattern"), true
			}
		}
		return Decision{}, false
	}
}

// matchWildcard supports a single trailing "*" wildcard, per spec §4.2.
func matchWildcard(pattern, target string) bool {
	if pattern == "" {
		return false
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(target, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == target
}

func firstStringParam(params map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := params[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// extractCommand normalizes the shell tool's argument shape: command, cmd,
// run, args (joined), or an array.
func extractCommand(params map[string]any) string {
	for _, key := range []string{"command", "cmd", "run"} {
		if v, ok := params[key].(string); ok && v != "" {
			return v
		}
	}
	if v, ok := params["args"]; ok {
		switch t := v.(type) {
		case string:
			return t
		case []any:
			parts := make([]string, 0, len(t))
			for _, item := range t {
				if s, ok := item.(string); ok {
					parts = append(parts, s)
				}
			}
			return strings.Join(parts, " ")
		}
	}
	return ""
}

var shellBlocklist = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rm\s+-rf\s+/(\s|$)`),
	regexp.MustCompile(`(?i)\bshutdown\b`),
	regexp.MustCompile(`(?i)\breboot\b`),
	regexp.MustCompile(`(?i)\bsystemctl\s+stop\b`),
	regexp.MustCompile(`(?i)\bmkfs[.\w]*`),
	regexp.MustCompile(`(?i)\bdd\s+if=/dev/`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|\s*:\s*&\s*\}\s*;\s*:`),
	regexp.MustCompile(`(?i)\bchown\s+-R\s+root\b`),
}

func matchShellBlocklist(command string) (string, bool) {
	for _, re := range shellBlocklist {
		if re.MatchString(command) {
			return re.String(), true
		}
	}
	return "", false
}

var pythonBlocklist = []*regexp.Regexp{
	regexp.MustCompile(`os\.remove\(\s*['"]/['"]\s*\)`),
	regexp.MustCompile(`subprocess\.(call|run)\(\s*["']rm\s+-rf`),
	regexp.MustCompile(`shutil\.rmtree\(\s*['"]/['"]\s*\)`),
}

func matchPythonBlocklist(code string) (string, bool) {
	for _, re := range pythonBlocklist {
		if re.MatchString(code) {
			return re.String(), true
		}
	}
	return "", false
}

var (
	pemBlockPattern = regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`)
	base64RunPattern = regexp.MustCompile(`[A-Za-z0-9+/]{32,}={0,2}`)
)

// SanitiseText redacts PEM-wrapped private keys and long opaque base64-like
// runs from text flowing back to the client (spec §4.2 "Sanitization").
func SanitiseText(s string) string {
	s = pemBlockPattern.ReplaceAllString(s, "[REDACTED PRIVATE KEY]")
	if len(s) >= 64 {
		s = base64RunPattern.ReplaceAllStringFunc(s, func(match string) string {
			return "[REDACTED POTENTIAL SECRET]"
		})
	}
	return s
}

// SanitiseContent applies SanitiseText to every string in a slice of
// arbitrary content items (spec's "sanitiseContent(items) -> items").
func SanitiseContent(items []string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = SanitiseText(item)
	}
	return out
}
