// Package execute runs external sanitization tools (mkfs, format, shred)
// under supervision, or records them in dry-run mode.
package execute

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"securewipe/internal/cancel"
	"securewipe/internal/logging"
	"securewipe/internal/progress"
	"securewipe/internal/wipeerr"
)

// Command is a structured description of an external invocation. Arguments
// are passed to the program directly, never through a shell.
type Command struct {
	Name        string
	Args        []string
	Description string
}

// String renders the command for logs and dry-run output.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	for _, p := range append([]string{c.Name}, c.Args...) {
		if p == "" || strings.ContainsAny(p, " \t\"'") {
			p = `"` + strings.ReplaceAll(p, `"`, `\"`) + `"`
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " ")
}

// Runner executes a Command and returns its captured output.
type Runner interface {
	Run(ctx context.Context, cmd Command) (string, error)
}

const (
	defaultPoll  = 500 * time.Millisecond
	defaultGrace = 5 * time.Second
	maxOutput    = 64 << 10
)

// Supervisor starts the child and polls it at a fixed interval so it can
// notice cancellation. On cancellation the child is asked to terminate, then
// killed after the grace period; the supervisor does not wait beyond that.
type Supervisor struct {
	PollInterval time.Duration
	Grace        time.Duration
	Token        *cancel.Token
	Logger       *logging.EnterpriseLogger
}

var _ Runner = (*Supervisor)(nil)

func NewSupervisor(poll time.Duration, token *cancel.Token, logger *logging.EnterpriseLogger) *Supervisor {
	if poll <= 0 {
		poll = defaultPoll
	}
	return &Supervisor{PollInterval: poll, Grace: defaultGrace, Token: token, Logger: logger}
}

func (s *Supervisor) Run(ctx context.Context, cmd Command) (string, error) {
	if s.Token.Cancelled() {
		return "", wipeerr.Cancelled(cmd.Name)
	}

	out := &tailBuffer{limit: maxOutput}
	c := exec.Command(cmd.Name, cmd.Args...)
	c.Stdout = out
	c.Stderr = out

	s.Logger.Log("INFO", "starting external command", "command", cmd.String(), "description", cmd.Description)
	start := time.Now()
	if err := c.Start(); err != nil {
		return "", wipeerr.Mark(err, wipeerr.ErrExternalTool, "start %s", cmd.Name)
	}

	done := make(chan error, 1)
	go func() { done <- c.Wait() }()

	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			output := out.String()
			if err != nil {
				s.Logger.Log("ERROR", "external command failed",
					"command", cmd.String(), "error", err, "output", summarize(output), "duration", time.Since(start))
				return output, wipeerr.Mark(err, wipeerr.ErrExternalTool, "%s failed: %s", cmd.Name, summarize(output))
			}
			s.Logger.Log("INFO", "external command finished", "command", cmd.Name, "duration", time.Since(start))
			return output, nil

		case <-ticker.C:
			if s.Token.Cancelled() || ctx.Err() != nil {
				s.stop(c, done, cmd)
				return out.String(), wipeerr.Cancelled(cmd.Name)
			}
		}
	}
}

func (s *Supervisor) stop(c *exec.Cmd, done <-chan error, cmd Command) {
	s.Logger.Log("WARN", "terminating external command", "command", cmd.Name, "pid", c.Process.Pid)
	if err := terminate(c.Process); err != nil {
		s.Logger.Log("WARN", "terminate failed", "command", cmd.Name, "error", err)
	}

	grace := s.Grace
	if grace <= 0 {
		grace = defaultGrace
	}
	select {
	case <-done:
	case <-time.After(grace):
		_ = c.Process.Kill()
		s.Logger.Log("WARN", "external command killed after grace period", "command", cmd.Name)
	}
}

// summarize returns the last non-empty lines of tool output.
func summarize(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	return strings.TrimSpace(strings.Join(lines, " | "))
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.limit {
		t.buf = append(t.buf[:0], t.buf[len(t.buf)-t.limit:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// DryRunRunner records commands and reports what would run without executing
// anything.
type DryRunRunner struct {
	Emitter progress.Emitter
	Logger  *logging.EnterpriseLogger

	mu       sync.Mutex
	commands []Command
}

var _ Runner = (*DryRunRunner)(nil)

func NewDryRunRunner(emitter progress.Emitter, logger *logging.EnterpriseLogger) *DryRunRunner {
	if emitter == nil {
		emitter = progress.Discard
	}
	return &DryRunRunner{Emitter: emitter, Logger: logger}
}

func (d *DryRunRunner) Run(_ context.Context, cmd Command) (string, error) {
	d.mu.Lock()
	d.commands = append(d.commands, cmd)
	d.mu.Unlock()

	d.Logger.Log("INFO", "dry run - command not executed", "command", cmd.String())
	d.Emitter.Status("[DRY RUN] Would run: " + cmd.String())
	return "", nil
}

// Commands returns the recorded commands in order.
func (d *DryRunRunner) Commands() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Command(nil), d.commands...)
}
