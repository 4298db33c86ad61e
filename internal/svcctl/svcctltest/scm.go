// Package svcctltest provides an in-memory service manager that answers
// control utility invocations the way sc.exe does, for tests.
package svcctltest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PlumpMath/piso/internal/executor"
	"github.com/PlumpMath/piso/internal/svcquery"
)

// Exit codes returned by the control utility.
const (
	ExitServiceExists          = 1073
	ExitServiceDoesNotExist    = 1060
	ExitServiceAlreadyRunning  = 1056
	ExitServiceNotActive       = 1062
	ExitServiceMarkedForDelete = 1072
)

// Service is one registration in the fake manager.
type Service struct {
	BinPath  string
	Account  string
	Password string
	Status   svcquery.ServiceStatus
	// PendingDelete is set when delete hit a running service. The entry
	// disappears once the service stops.
	PendingDelete bool
}

// SCM implements the svcctl Runner contract and a status func over an
// in-memory registry. Safe for concurrent use.
type SCM struct {
	mu       sync.Mutex
	services map[string]*Service
	calls    [][]string
	forced   map[string]*executor.Result
	errs     map[string]error
	onStart  svcquery.ServiceStatus
}

// New returns an empty manager. Started services report running.
func New() *SCM {
	return &SCM{
		services: make(map[string]*Service),
		forced:   make(map[string]*executor.Result),
		errs:     make(map[string]error),
		onStart:  svcquery.StatusRunning,
	}
}

// Add registers a service directly.
func (s *SCM) Add(name string, svc Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if svc.Status == "" {
		svc.Status = svcquery.StatusStopped
	}
	s.services[name] = &svc
}

// Service returns a copy of the named registration.
func (s *SCM) Service(name string) (Service, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[name]
	if !ok {
		return Service{}, false
	}
	return *svc, true
}

// SetStatus changes the status of a registered service, simulating an
// external actor.
func (s *SCM) SetStatus(name string, status svcquery.ServiceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if svc, ok := s.services[name]; ok {
		svc.Status = status
	}
}

// StartLeaves sets the status a successful start leaves a service in.
func (s *SCM) StartLeaves(status svcquery.ServiceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStart = status
}

// Force makes every invocation of verb return res without touching state.
func (s *SCM) Force(verb string, res executor.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forced[verb] = &res
}

// FailInvocation makes every invocation of verb fail to start with err.
func (s *SCM) FailInvocation(verb string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[verb] = err
}

// Calls returns how many times verb was invoked.
func (s *SCM) Calls(verb string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, args := range s.calls {
		if len(args) > 0 && args[0] == verb {
			n++
		}
	}
	return n
}

// History returns every argument list received, in order.
func (s *SCM) History() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.calls))
	for i, args := range s.calls {
		out[i] = append([]string(nil), args...)
	}
	return out
}

// Run answers one control utility invocation.
func (s *SCM) Run(ctx context.Context, c executor.Command) (*executor.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	args := append([]string(nil), c.Args...)
	s.calls = append(s.calls, args)
	if len(args) < 2 {
		return exit(1639, "", "invalid command line"), nil
	}
	verb, name := args[0], args[1]

	if err := s.errs[verb]; err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return &executor.Result{ExitCode: -1, Canceled: true}, nil
	}
	if res := s.forced[verb]; res != nil {
		copied := *res
		return &copied, nil
	}

	svc, exists := s.services[name]
	switch verb {
	case "queryex":
		if !exists {
			return exit(ExitServiceDoesNotExist, "", "[SC] EnumQueryServicesStatus:OpenService FAILED 1060"), nil
		}
		return exit(0, fmt.Sprintf("SERVICE_NAME: %s\n        STATE              : %s", name, strings.ToUpper(string(svc.Status))), ""), nil
	case "create":
		if exists && svc.PendingDelete {
			return exit(ExitServiceMarkedForDelete, "[SC] CreateService FAILED 1072", ""), nil
		}
		if exists {
			return exit(ExitServiceExists, "[SC] CreateService FAILED 1073", ""), nil
		}
		created := &Service{Status: svcquery.StatusStopped}
		for i := 2; i+1 < len(args); i += 2 {
			switch args[i] {
			case "binPath=":
				created.BinPath = strings.Trim(args[i+1], `"`)
			case "obj=":
				created.Account = args[i+1]
			case "password=":
				created.Password = args[i+1]
			}
		}
		s.services[name] = created
		return exit(0, "[SC] CreateService SUCCESS", ""), nil
	case "start":
		if !exists {
			return exit(ExitServiceDoesNotExist, "[SC] OpenService FAILED 1060", ""), nil
		}
		if svc.Status == svcquery.StatusRunning {
			return exit(ExitServiceAlreadyRunning, "[SC] StartService FAILED 1056", ""), nil
		}
		svc.Status = s.onStart
		return exit(0, "", ""), nil
	case "stop":
		if !exists {
			return exit(ExitServiceDoesNotExist, "[SC] OpenService FAILED 1060", ""), nil
		}
		if svc.Status != svcquery.StatusRunning {
			return exit(ExitServiceNotActive, "[SC] ControlService FAILED 1062", ""), nil
		}
		svc.Status = svcquery.StatusStopped
		if svc.PendingDelete {
			delete(s.services, name)
		}
		return exit(0, "", ""), nil
	case "delete":
		if !exists {
			return exit(ExitServiceDoesNotExist, "[SC] OpenService FAILED 1060", ""), nil
		}
		if svc.PendingDelete {
			return exit(ExitServiceMarkedForDelete, "[SC] DeleteService FAILED 1072", ""), nil
		}
		if svc.Status == svcquery.StatusRunning {
			svc.PendingDelete = true
		} else {
			delete(s.services, name)
		}
		return exit(0, "[SC] DeleteService SUCCESS", ""), nil
	}
	return exit(1639, "", "unknown verb "+verb), nil
}

// Status answers a native status query.
func (s *SCM) Status(name string) (svcquery.ServiceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[name]
	if !ok {
		return svcquery.ServiceInfo{Name: name, Status: svcquery.StatusUnknown}, fmt.Errorf("%w: %s", svcquery.ErrNotFound, name)
	}
	return svcquery.ServiceInfo{
		Name:       name,
		Status:     svc.Status,
		StartType:  "automatic",
		BinaryPath: svc.BinPath,
	}, nil
}

func exit(code int, stdout, stderr string) *executor.Result {
	return &executor.Result{ExitCode: code, Stdout: stdout, Stderr: stderr}
}
