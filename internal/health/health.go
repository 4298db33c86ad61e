// Package health tracks the latest status of the components of a running
// process host.
package health

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/PlumpMath/piso/internal/logging"
)

var log = logging.L("health")

// Status represents the health status of a component.
type Status string

const (
	Healthy   Status = "healthy"
	Degraded  Status = "degraded"
	Unhealthy Status = "unhealthy"
)

// Check stores the latest health result for a named component.
type Check struct {
	Name      string    `json:"name" yaml:"name"`
	Status    Status    `json:"status" yaml:"status"`
	Message   string    `json:"message,omitempty" yaml:"message,omitempty"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// Monitor tracks health checks for multiple components.
type Monitor struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// NewMonitor creates a new health monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		checks: make(map[string]Check),
	}
}

// Update records the health status for a named component. Transitions are
// logged; repeated updates with the same status are not.
func (m *Monitor) Update(name string, status Status, message string) {
	m.mu.Lock()
	prev, seen := m.checks[name]
	m.checks[name] = Check{
		Name:      name,
		Status:    status,
		Message:   message,
		UpdatedAt: time.Now(),
	}
	m.mu.Unlock()

	if seen && prev.Status == status {
		return
	}
	switch {
	case status != Healthy:
		log.Warn("component degraded", "component", name, "status", string(status), "message", message)
	case seen:
		log.Info("component recovered", "component", name)
	}
}

// Get returns the health check for a named component.
func (m *Monitor) Get(name string) (Check, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.checks[name]
	return c, ok
}

// Overall returns the worst status across all registered checks.
// If no checks are registered, returns Healthy.
func (m *Monitor) Overall() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	worst := Healthy
	for _, c := range m.checks {
		if worse(c.Status, worst) {
			worst = c.Status
		}
	}
	return worst
}

// All returns a snapshot of all current health checks sorted by name.
func (m *Monitor) All() []Check {
	m.mu.RLock()
	result := make([]Check, 0, len(m.checks))
	for _, c := range m.checks {
		result = append(result, c)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Report is a point-in-time summary of a Monitor.
type Report struct {
	Status     Status            `json:"status" yaml:"status"`
	Components map[string]Status `json:"components" yaml:"components"`
}

// Report summarizes the monitor.
func (m *Monitor) Report() Report {
	checks := m.All()
	r := Report{Status: Healthy, Components: make(map[string]Status, len(checks))}
	for _, c := range checks {
		r.Components[c.Name] = c.Status
		if worse(c.Status, r.Status) {
			r.Status = c.Status
		}
	}
	return r
}

// LogValue implements slog.LogValuer.
func (r Report) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(r.Components)+1)
	attrs = append(attrs, slog.String("status", string(r.Status)))
	names := make([]string, 0, len(r.Components))
	for name := range r.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		attrs = append(attrs, slog.String(name, string(r.Components[name])))
	}
	return slog.GroupValue(attrs...)
}

// worse returns true if a is worse than b.
func worse(a, b Status) bool {
	return statusRank(a) > statusRank(b)
}

func statusRank(s Status) int {
	switch s {
	case Healthy:
		return 0
	case Degraded:
		return 1
	case Unhealthy:
		return 2
	default:
		return 0
	}
}
