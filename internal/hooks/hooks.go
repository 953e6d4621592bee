// Package hooks runs the shell commands configured for tier transitions.
package hooks

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bnema/wayidle/internal/logger"
	"github.com/bnema/wayidle/internal/transition"
)

// DefaultTimeout bounds a single hook command.
const DefaultTimeout = time.Minute

// Command is the pair of commands configured for one tier. Either may be empty.
type Command struct {
	OnIdle   string
	OnActive string
}

// Runner runs a tier's commands. It is meant to be driven from a queue
// executor so commands of one tier never overlap and run in order.
//
// The first event a runner sees is the tier's state at registration. An
// initial active state is not a resume, so on_active does not run for it.
type Runner struct {
	command Command
	timeout time.Duration
	shell   string
	seen    atomic.Bool
}

// NewRunner creates a runner for cmd
func NewRunner(cmd Command) *Runner {
	return &Runner{command: cmd, timeout: DefaultTimeout, shell: "/bin/sh"}
}

// Empty reports whether there is nothing to run.
func (r *Runner) Empty() bool {
	return r.command.OnIdle == "" && r.command.OnActive == ""
}

// Handle runs the command matching the event's state. Failures are logged.
func (r *Runner) Handle(event transition.Event) {
	if first := !r.seen.Swap(true); first && event.State == transition.StateActive {
		return
	}
	script := r.command.OnActive
	if event.State == transition.StateIdle {
		script = r.command.OnIdle
	}
	if script == "" {
		return
	}
	if err := r.run(event, script); err != nil {
		logger.Warnf("Hook for tier %s (%s) failed: %v", event.Tier, event.State, err)
	}
}

func (r *Runner) run(event transition.Event, script string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.shell, "-c", script)
	cmd.Env = append(os.Environ(),
		"WAYIDLE_TIER="+event.Tier,
		"WAYIDLE_STATE="+string(event.State),
		"WAYIDLE_TIMEOUT="+event.Timeout.String(),
	)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	// Background children may hold the output pipe open after a kill
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	log := logger.With("tier", event.Tier, "state", event.State, "elapsed", time.Since(start).Round(time.Millisecond))
	if out := strings.TrimSpace(output.String()); out != "" {
		log.Debug("Hook output", "output", out)
	}
	if err != nil {
		return err
	}
	log.Debug("Hook finished", "command", script)
	return nil
}
