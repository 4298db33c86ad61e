// Package svcctl drives the Windows service control utility (sc.exe) through
// a bounded executor. Every decision re-queries the service manager; nothing
// about a service's state is cached between calls.
package svcctl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PlumpMath/piso/internal/executor"
	"github.com/PlumpMath/piso/internal/logging"
	"github.com/PlumpMath/piso/internal/secmem"
	"github.com/PlumpMath/piso/internal/svcquery"
)

const (
	// DefaultUtility is the control utility resolved from PATH.
	DefaultUtility = "sc.exe"

	// DefaultCommandTimeout bounds every control invocation.
	DefaultCommandTimeout = 2 * time.Minute

	// DefaultPollInterval is the status poll period used by WaitForState.
	DefaultPollInterval = 250 * time.Millisecond

	// ExitServiceDoesNotExist is ERROR_SERVICE_DOES_NOT_EXIST. A service that
	// is marked for deletion still answers queryex successfully, so it is
	// reported as existing until the SCM lets go of it.
	ExitServiceDoesNotExist = 1060
)

// Runner is the bounded executor contract the client depends on.
type Runner interface {
	Run(ctx context.Context, c executor.Command) (*executor.Result, error)
}

// StatusFunc reads a service's status from the service manager.
type StatusFunc func(name string) (svcquery.ServiceInfo, error)

// Policy selects how Issue treats a failed invocation.
type Policy int

const (
	// Strict returns failures to the caller.
	Strict Policy = iota
	// BestEffort logs failures and reports success.
	BestEffort
)

func (p Policy) String() string {
	if p == BestEffort {
		return "best-effort"
	}
	return "strict"
}

// State is the observed lifecycle state of a service.
type State int

const (
	Unregistered State = iota
	Installed
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Installed:
		return "installed"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name for JSON and YAML output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Account is the identity a service runs under. A nil Account, or one with an
// empty Principal, means LocalSystem.
type Account struct {
	Principal string
	Secret    *secmem.SecureString
}

func (a *Account) principal() string {
	if a == nil || a.Principal == "" {
		return LocalSystem
	}
	return a.Principal
}

func (a *Account) hasSecret() bool {
	return a != nil && a.Principal != "" && !a.Secret.Empty()
}

// Client issues control commands for services.
type Client struct {
	runner  Runner
	utility string
	timeout time.Duration
	status  StatusFunc
	poll    time.Duration
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithUtility overrides the control utility path.
func WithUtility(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.utility = path
		}
	}
}

// WithCommandTimeout overrides the per-invocation timeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithStatusFunc overrides the native status source.
func WithStatusFunc(fn StatusFunc) Option {
	return func(c *Client) {
		if fn != nil {
			c.status = fn
		}
	}
}

// WithPollInterval overrides the WaitForState poll period.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.poll = d
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New returns a Client that runs the control utility through runner.
func New(runner Runner, opts ...Option) *Client {
	c := &Client{
		runner:  runner,
		utility: DefaultUtility,
		timeout: DefaultCommandTimeout,
		status:  svcquery.GetStatus,
		poll:    DefaultPollInterval,
		log:     logging.L("svcctl"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// run invokes the utility once and logs the full outcome at debug level when
// it was not a clean zero exit.
func (c *Client) run(ctx context.Context, args []string) (*executor.Result, error) {
	res, err := c.runner.Run(ctx, executor.Command{
		Name:    c.utility,
		Args:    args,
		Timeout: c.timeout,
	})
	if err == nil && res == nil {
		err = errors.New("runner returned no result")
	}
	verb, service := verbAndService(args)
	recordCommand(verb, res, err)
	if err != nil {
		c.log.Debug("control command could not be invoked",
			"verb", verb, logging.KeyService, service, logging.KeyError, err)
		return nil, err
	}
	if !res.Succeeded() {
		c.log.Debug("control command returned non-zero outcome",
			"verb", verb,
			logging.KeyService, service,
			"args", RedactArgs(args),
			"exitCode", res.ExitCode,
			"timedOut", res.TimedOut,
			"canceled", res.Canceled,
			"stdout", res.Stdout,
			"stderr", res.Stderr,
		)
	}
	return res, nil
}

// Issue is the single dispatch point for control commands. Under Strict a
// failed invocation, non-zero exit, timeout, or cancellation is returned as a
// *CommandError. Under BestEffort the same outcomes are logged and Issue
// returns a nil error. The result is returned whenever the utility ran.
func (c *Client) Issue(ctx context.Context, policy Policy, args ...string) (*executor.Result, error) {
	res, err := c.run(ctx, args)
	if err == nil && res.Succeeded() {
		return res, nil
	}

	cmdErr := &CommandError{
		Utility: c.utility,
		Args:    RedactArgs(args),
		Err:     err,
	}
	if res != nil {
		cmdErr.ExitCode = res.ExitCode
		cmdErr.TimedOut = res.TimedOut
		cmdErr.Canceled = res.Canceled
		cmdErr.Output = res.Stdout
		if cmdErr.Output == "" {
			cmdErr.Output = res.Stderr
		}
	}

	if policy == Strict {
		return res, cmdErr
	}
	verb, service := verbAndService(args)
	c.log.Error("best-effort control command failed",
		"verb", verb, logging.KeyService, service, logging.KeyError, cmdErr)
	return res, nil
}

// Exists reports whether a service with this name is registered. Only the
// does-not-exist exit code, or a failure to invoke the utility at all, count
// as absent. Any other failure, including a timeout, counts as present so a
// flaky query never leads to a duplicate create.
func (c *Client) Exists(ctx context.Context, id string) bool {
	res, err := c.run(ctx, QueryArgs(id))
	if err != nil {
		return false
	}
	return res.ExitCode != ExitServiceDoesNotExist
}

// Create registers id as an auto-start service running binPath. It is
// always strict.
func (c *Client) Create(ctx context.Context, id, binPath string, acct *Account) error {
	c.log.Info("creating service",
		logging.KeyService, id, "binPath", binPath, "account", acct.principal())
	_, err := c.Issue(ctx, Strict, CreateArgs(id, binPath, acct)...)
	return err
}

// Start issues `start <id>`.
func (c *Client) Start(ctx context.Context, id string, policy Policy) error {
	_, err := c.Issue(ctx, policy, StartArgs(id)...)
	return err
}

// Stop issues `stop <id>`.
func (c *Client) Stop(ctx context.Context, id string, policy Policy) error {
	_, err := c.Issue(ctx, policy, StopArgs(id)...)
	return err
}

// Delete issues `delete <id>`.
func (c *Client) Delete(ctx context.Context, id string, policy Policy) error {
	_, err := c.Issue(ctx, policy, DeleteArgs(id)...)
	return err
}

// QueryState observes the current state of id. A registered service whose
// status cannot be read, or is pending, is Installed.
func (c *Client) QueryState(ctx context.Context, id string) State {
	if !c.Exists(ctx, id) {
		return Unregistered
	}
	info, err := c.status(id)
	if err != nil {
		if errors.Is(err, svcquery.ErrNotFound) {
			return Unregistered
		}
		c.log.Debug("service status unavailable", logging.KeyService, id, logging.KeyError, err)
		return Installed
	}
	switch info.Status {
	case svcquery.StatusRunning:
		return Running
	case svcquery.StatusStopped, svcquery.StatusDisabled:
		return Stopped
	default:
		return Installed
	}
}

// WaitForState polls until id reaches want, timeout elapses, or ctx is done.
// It returns the last observed state. When the service is already in want it
// returns without waiting.
func (c *Client) WaitForState(ctx context.Context, id string, want State, timeout time.Duration) (State, error) {
	state := c.QueryState(ctx, id)
	if state == want {
		return state, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-timer.C:
			return state, fmt.Errorf("%w: %s is %s after %s, want %s", ErrWaitTimeout, id, state, timeout, want)
		case <-ticker.C:
			state = c.QueryState(ctx, id)
			if state == want {
				return state, nil
			}
		}
	}
}
