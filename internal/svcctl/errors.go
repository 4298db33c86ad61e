package svcctl

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCommandFailed matches every strict-mode control command failure.
	ErrCommandFailed = errors.New("svcctl: control command failed")

	// ErrWaitTimeout is returned when a service does not reach the wanted
	// state in time.
	ErrWaitTimeout = errors.New("svcctl: timed out waiting for service state")
)

// CommandError describes a control utility invocation that did not succeed.
// Args are already redacted.
type CommandError struct {
	Utility  string
	Args     []string
	ExitCode int
	TimedOut bool
	Canceled bool
	Output   string
	Err      error
}

func (e *CommandError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "svcctl: %s %s", e.Utility, strings.Join(e.Args, " "))
	switch {
	case e.Err != nil:
		fmt.Fprintf(&b, ": %v", e.Err)
	case e.TimedOut:
		b.WriteString(": timed out")
	case e.Canceled:
		b.WriteString(": canceled")
	default:
		fmt.Fprintf(&b, ": exit code %d", e.ExitCode)
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		fmt.Fprintf(&b, ": %s", firstLines(out, 3))
	}
	return b.String()
}

func (e *CommandError) Unwrap() error { return e.Err }

func (e *CommandError) Is(target error) bool { return target == ErrCommandFailed }

func firstLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	kept := make([]string, 0, n)
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			kept = append(kept, l)
		}
		if len(kept) == n {
			break
		}
	}
	return strings.Join(kept, " | ")
}
