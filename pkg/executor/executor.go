// Package executor runs the beacon-local Tier-1 action catalogue. Every
// action is a fixed argument vector — never a shell string built by
// interpolation — with an enforced timeout and captured stdout/stderr.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// restartable is the hard-coded list of units restart_service is allowed
// to target. Anything else is rejected before a subprocess is spawned.
var restartable = map[string]bool{
	"caddy":      true,
	"nginx":      true,
	"postgresql": true,
	"redis":      true,
	"docker":     true,
	"sshd":       true,
}

// Result is the outcome of one action invocation.
type Result struct {
	Success bool
	Output  string
}

// Executor runs the closed Tier-1 action catalogue on the local host.
type Executor struct{}

// New returns an Executor.
func New() *Executor {
	return &Executor{}
}

// Execute runs action (optionally carrying a ":"-separated target, e.g.
// "restart_service: caddy") and returns whether it succeeded along with
// captured output. Unknown actions fail with a diagnostic; the executor
// does not re-check the Tier-1 allowlist beyond restart_service's target —
// the Safety Validator has already gated by action kind.
func (e *Executor) Execute(ctx context.Context, action string) Result {
	kind, arg := splitAction(action)

	switch kind {
	case "restart_service":
		return e.restartService(ctx, arg)
	case "clear_tmp":
		return e.run(ctx, 30*time.Second, "find", "/tmp", "-type", "f", "-mtime", "+1", "-delete")
	case "rotate_logs":
		return e.run(ctx, 30*time.Second, "logrotate", "-f", "/etc/logrotate.conf")
	case "check_disk_usage":
		return e.run(ctx, 10*time.Second, "df", "-h")
	case "check_memory":
		return e.run(ctx, 10*time.Second, "free", "-h")
	case "dns_flush":
		return e.run(ctx, 10*time.Second, "resolvectl", "flush-caches")
	default:
		return Result{Success: false, Output: fmt.Sprintf("unknown action %q", kind)}
	}
}

func (e *Executor) restartService(ctx context.Context, service string) Result {
	if service == "" {
		return Result{Success: false, Output: "restart_service requires a target"}
	}
	if !restartable[service] {
		return Result{Success: false, Output: fmt.Sprintf("%q is not in the restartable list", service)}
	}
	return e.run(ctx, 30*time.Second, "systemctl", "restart", service)
}

// run executes name with argv under a timeout, capturing combined output.
// It never invokes a shell.
func (e *Executor) run(ctx context.Context, timeout time.Duration, name string, arg ...string) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, arg...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return Result{Success: false, Output: fmt.Sprintf("timed out after %s: %s", timeout, out.String())}
	}
	if err != nil {
		return Result{Success: false, Output: strings.TrimSpace(out.String() + "\n" + err.Error())}
	}
	return Result{Success: true, Output: out.String()}
}

// splitAction separates an action kind from its optional target, e.g.
// "restart_service: caddy" -> ("restart_service", "caddy").
func splitAction(action string) (kind, arg string) {
	action = strings.TrimSpace(action)
	idx := strings.IndexAny(action, " :")
	if idx < 0 {
		return action, ""
	}
	kind = action[:idx]
	arg = strings.TrimSpace(strings.TrimLeft(action[idx:], " :"))
	return kind, arg
}
