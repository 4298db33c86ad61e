// Package deploy stages an executable and runs it as an auto-start service,
// and tears the deployment down again. The manager holds no service state of
// its own: every step re-queries the service manager.
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/PlumpMath/piso/internal/audit"
	"github.com/PlumpMath/piso/internal/executor"
	"github.com/PlumpMath/piso/internal/logging"
	"github.com/PlumpMath/piso/internal/staging"
	"github.com/PlumpMath/piso/internal/svcctl"
)

// DefaultStatusWait bounds the wait for a service to reach running after
// start, or stopped after stop.
const DefaultStatusWait = 30 * time.Second

// Controller is the service control surface the manager drives.
type Controller interface {
	Exists(ctx context.Context, id string) bool
	Create(ctx context.Context, id, binPath string, acct *svcctl.Account) error
	Start(ctx context.Context, id string, policy svcctl.Policy) error
	Stop(ctx context.Context, id string, policy svcctl.Policy) error
	Delete(ctx context.Context, id string, policy svcctl.Policy) error
	QueryState(ctx context.Context, id string) svcctl.State
	WaitForState(ctx context.Context, id string, want svcctl.State, timeout time.Duration) (svcctl.State, error)
}

// Stager prepares and removes the staging directory.
type Stager interface {
	Stage(principal string) ([]string, error)
	Clean() error
}

// Auditor records the actions a deployment takes. *audit.Logger satisfies
// it. Details never carry the credential secret.
type Auditor interface {
	Log(eventType, deploymentID, service string, details map[string]any)
}

// Manager owns one deployment. It is not safe for concurrent use.
type Manager struct {
	spec       Spec
	id         string
	ctl        Controller
	stager     Stager
	statusWait time.Duration
	auditor    Auditor
	log        *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithController replaces the sc.exe backed controller.
func WithController(c Controller) Option {
	return func(m *Manager) {
		if c != nil {
			m.ctl = c
		}
	}
}

// WithStager replaces the filesystem stager.
func WithStager(s Stager) Option {
	return func(m *Manager) {
		if s != nil {
			m.stager = s
		}
	}
}

// WithStatusWait overrides DefaultStatusWait.
func WithStatusWait(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.statusWait = d
		}
	}
}

// WithAuditor records deployment actions to a.
func WithAuditor(a Auditor) Option {
	return func(m *Manager) {
		m.auditor = a
	}
}

// WithLogger sets the base logger; deployment fields are added to it.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// New validates spec and returns a Manager for it. A validation failure is
// a *ConfigError and no Manager is returned.
func New(spec Spec, opts ...Option) (*Manager, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return newManager(spec, opts), nil
}

// Attach returns a Manager for a deployment made earlier, for State and
// Dispose. SourceDir is not required to exist; Deploy on an attached Manager
// fails if it does not.
func Attach(spec Spec, opts ...Option) (*Manager, error) {
	if err := spec.validateTarget(); err != nil {
		return nil, err
	}
	return newManager(spec, opts), nil
}

func newManager(spec Spec, opts []Option) *Manager {
	m := &Manager{
		spec:       spec,
		id:         uuid.NewString(),
		statusWait: DefaultStatusWait,
		log:        logging.L("deploy"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.ctl == nil {
		m.ctl = svcctl.New(executor.New())
	}
	if m.stager == nil {
		m.stager = staging.New(spec.SourceDir, spec.TargetDir())
	}
	m.log = logging.WithDeployment(m.log, m.id, spec.ServiceName)
	return m
}

// ID is the correlation ID carried in every log line of this deployment.
func (m *Manager) ID() string { return m.id }

// ServiceName is the service identity.
func (m *Manager) ServiceName() string { return m.spec.ServiceName }

// TargetDir is the staging directory.
func (m *Manager) TargetDir() string { return m.spec.TargetDir() }

// BinaryPath is the staged executable registered with the service manager.
func (m *Manager) BinaryPath() string {
	return filepath.Join(m.spec.TargetDir(), m.spec.ExecutableName)
}

// State observes the service's current state.
func (m *Manager) State(ctx context.Context) svcctl.State {
	return m.ctl.QueryState(ctx, m.spec.ServiceName)
}

// Deploy stages the files, registers the service if it is not registered
// yet, and starts it. Staging and registration failures are returned and
// nothing is cleaned up; callers Dispose regardless. A service that does not
// reach running in time is logged, not returned.
func (m *Manager) Deploy(ctx context.Context) error {
	if err := m.spec.Validate(); err != nil {
		return err
	}
	started := time.Now()
	m.log.Info("deploying service", "source", m.spec.SourceDir, "target", m.TargetDir())
	m.record(audit.EventDeployStarted, map[string]any{"source": m.spec.SourceDir, "target": m.TargetDir()})

	staged, err := m.stager.Stage(m.principal())
	if err != nil {
		return fmt.Errorf("deploy %s: %w", m.spec.ServiceName, err)
	}
	m.record(audit.EventStaged, map[string]any{"files": staged})
	if !containsName(staged, m.spec.ExecutableName, foldCase) {
		return &ConfigError{
			Field:  "ExecutableName",
			Reason: fmt.Sprintf("%s was not found in %s", m.spec.ExecutableName, m.spec.SourceDir),
		}
	}

	if err := m.install(ctx); err != nil {
		return fmt.Errorf("deploy %s: %w", m.spec.ServiceName, err)
	}

	m.start(ctx)
	m.log.Info("deploy finished", logging.KeyDurationMs, time.Since(started).Milliseconds())
	return nil
}

func (m *Manager) install(ctx context.Context) error {
	if m.ctl.Exists(ctx, m.spec.ServiceName) {
		m.log.Info("service already registered, skipping create")
		return nil
	}
	if err := m.ctl.Create(ctx, m.spec.ServiceName, m.BinaryPath(), m.account()); err != nil {
		return err
	}
	principal := m.principal()
	if principal == "" {
		principal = svcctl.LocalSystem
	}
	m.record(audit.EventServiceCreated, map[string]any{"binPath": m.BinaryPath(), "principal": principal})
	return nil
}

func (m *Manager) start(ctx context.Context) {
	if state := m.ctl.QueryState(ctx, m.spec.ServiceName); state == svcctl.Running {
		m.log.Info("service already running")
		return
	}

	// Start is best-effort, so this only fails when the policy is changed.
	if err := m.ctl.Start(ctx, m.spec.ServiceName, svcctl.BestEffort); err != nil {
		m.log.Warn("start failed", logging.KeyError, err)
	}

	state, err := m.ctl.WaitForState(ctx, m.spec.ServiceName, svcctl.Running, m.statusWait)
	m.record(audit.EventServiceStarted, map[string]any{"state": state.String()})
	if err != nil {
		m.log.Warn("service did not reach running", "state", state, logging.KeyError, err)
		return
	}
	m.log.Info("service running")
}

// Dispose tears the deployment down: the service is stopped and deleted if
// it is registered, the staging directory is removed, and the credential
// secret is wiped. Each step runs even when an earlier one failed or
// panicked, and nothing is returned. Pass a context that is still live; a
// canceled ctx makes every control command report canceled.
func (m *Manager) Dispose(ctx context.Context) {
	m.log.Info("disposing deployment")
	m.guard("uninstall", func() error { return m.uninstall(ctx) })
	m.guard("clean", func() error {
		if err := m.stager.Clean(); err != nil {
			return err
		}
		m.record(audit.EventStagingRemoved, map[string]any{"target": m.TargetDir()})
		return nil
	})
	m.guard("wipe credential", func() error {
		if m.spec.Credential != nil {
			m.spec.Credential.Secret.Zero()
		}
		return nil
	})
	m.guard("audit", func() error {
		m.record(audit.EventDisposed, nil)
		return nil
	})
}

func (m *Manager) uninstall(ctx context.Context) error {
	state := m.ctl.QueryState(ctx, m.spec.ServiceName)
	if state == svcctl.Unregistered {
		m.log.Debug("service not registered, nothing to uninstall")
		return nil
	}

	if state != svcctl.Stopped {
		if err := m.ctl.Stop(ctx, m.spec.ServiceName, svcctl.BestEffort); err != nil {
			return err
		}
		state, err := m.ctl.WaitForState(ctx, m.spec.ServiceName, svcctl.Stopped, m.statusWait)
		if err != nil {
			m.log.Warn("service did not reach stopped", "state", state, logging.KeyError, err)
		}
		m.record(audit.EventServiceStopped, map[string]any{"state": state.String()})
	}
	if err := m.ctl.Delete(ctx, m.spec.ServiceName, svcctl.BestEffort); err != nil {
		return err
	}
	m.record(audit.EventServiceDeleted, nil)
	return nil
}

func (m *Manager) guard(step string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("teardown step panicked", "step", step, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		m.log.Error("teardown step failed", "step", step, logging.KeyError, err)
	}
}

func (m *Manager) record(event string, details map[string]any) {
	if m.auditor != nil {
		m.auditor.Log(event, m.id, m.spec.ServiceName, details)
	}
}

func (m *Manager) principal() string {
	if m.spec.Credential == nil {
		return ""
	}
	return m.spec.Credential.Principal
}

func (m *Manager) account() *svcctl.Account {
	if m.spec.Credential == nil {
		return nil
	}
	return &svcctl.Account{
		Principal: m.spec.Credential.Principal,
		Secret:    m.spec.Credential.Secret,
	}
}
