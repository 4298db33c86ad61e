// Package executor runs short-lived external commands under a wall-clock
// limit and captures their output. A command that overruns its limit, or
// whose caller gives up, is killed together with everything it spawned.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/PlumpMath/piso/internal/logging"
)

const (
	// DefaultTimeout applies when a Command does not set one.
	DefaultTimeout = 2 * time.Minute

	// MaxTimeout is the upper bound for any single command.
	MaxTimeout = time.Hour

	// MaxOutputSize is the maximum size of stdout/stderr to capture
	MaxOutputSize = 1024 * 1024 // 1MB

	// waitDelay bounds how long Run waits for output pipes after the
	// process has been killed.
	waitDelay = 5 * time.Second
)

// Command describes one invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Timeout time.Duration
}

// Result is the outcome of a command that was started. TimedOut and
// Canceled results always carry ExitCode -1.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Canceled bool
	Duration time.Duration
}

// Succeeded reports a zero exit that was neither timed out nor canceled.
func (r *Result) Succeeded() bool {
	return r != nil && r.ExitCode == 0 && !r.TimedOut && !r.Canceled
}

// Executor runs commands. The zero value is not usable; call New.
type Executor struct {
	log     *slog.Logger
	workDir string
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// WithWorkDir sets the working directory used when a Command has none.
func WithWorkDir(dir string) Option {
	return func(e *Executor) { e.workDir = dir }
}

// New creates a new Executor instance
func New(opts ...Option) *Executor {
	e := &Executor{log: logging.L("executor")}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run starts the command and waits for it. A non-zero exit, a timeout, or a
// canceled ctx are reported through the Result with a nil error. Run returns
// an error only when the process could not be started at all.
func (e *Executor) Run(ctx context.Context, c Command) (*Result, error) {
	if c.Name == "" {
		return nil, errors.New("executor: empty command name")
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}

	startTime := time.Now()
	if ctx.Err() != nil {
		return &Result{ExitCode: -1, Canceled: true}, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if cmd.Dir == "" {
		cmd.Dir = e.workDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{buf: &stdout, limit: MaxOutputSize}
	cmd.Stderr = &limitedWriter{buf: &stderr, limit: MaxOutputSize}

	// Kill the whole group, not just the direct child, when runCtx ends.
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		e.log.Debug("command failed to start", "command", c.Name, "error", err)
		return nil, fmt.Errorf("executor: start %s: %w", c.Name, err)
	}

	err := cmd.Wait()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(startTime),
	}

	switch {
	case err != nil && runCtx.Err() != nil:
		// The leader may already be gone while group members linger.
		if killErr := killProcessGroup(cmd); killErr != nil {
			e.log.Debug("failed to kill process group", "command", c.Name, "error", killErr)
		}
		result.ExitCode = -1
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			result.TimedOut = true
			e.log.Warn("command timed out", "command", c.Name, "timeout", timeout)
		} else {
			result.Canceled = true
			e.log.Warn("command canceled", "command", c.Name)
		}
	case err != nil:
		// The command exited but something it spawned may still hold the
		// output pipes open.
		if killErr := killProcessGroup(cmd); killErr != nil {
			e.log.Debug("failed to kill process group", "command", c.Name, "error", killErr)
		}
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		case errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil:
			result.ExitCode = cmd.ProcessState.ExitCode()
			e.log.Debug("command left descendants holding its output", "command", c.Name)
		default:
			result.ExitCode = -1
			e.log.Warn("command wait failed", "command", c.Name, "error", err)
		}
	default:
		result.ExitCode = 0
	}

	e.log.Debug("command completed",
		"command", c.Name,
		"exitCode", result.ExitCode,
		logging.KeyDurationMs, result.Duration.Milliseconds(),
	)
	return result, nil
}

// limitedWriter wraps a buffer with a size limit
type limitedWriter struct {
	buf     *bytes.Buffer
	limit   int
	written int
}

func (w *limitedWriter) Write(p []byte) (n int, err error) {
	if w.written >= w.limit {
		// Discard additional data but don't error
		return len(p), nil
	}

	remaining := w.limit - w.written
	data := p
	if len(data) > remaining {
		data = data[:remaining]
	}

	n, err = w.buf.Write(data)
	w.written += n
	return len(p), err // Return original length to avoid short write errors
}
