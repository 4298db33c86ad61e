//go:build windows

package main

import (
	"fmt"

	"golang.org/x/sys/windows/svc"
)

// isWindowsService reports whether the process was started by the Windows
// Service Control Manager. Must be called before any console I/O.
func isWindowsService() bool {
	ok, err := svc.IsWindowsService()
	if err != nil {
		return false
	}
	return ok
}

// hostService implements svc.Handler for the Windows SCM.
type hostService struct {
	startFn func() (*host, error)
}

// runAsService runs the host under the Windows Service Control Manager.
// startFn is called once the SCM has accepted the start.
func runAsService(name string, startFn func() (*host, error)) error {
	return svc.Run(name, &hostService{startFn: startFn})
}

// Execute is the SCM callback. It reports SERVICE_RUNNING once startFn
// returns, then blocks until the SCM sends Stop or Shutdown.
func (s *hostService) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	const accepted = svc.AcceptStop | svc.AcceptShutdown

	changes <- svc.Status{State: svc.StartPending}

	h, err := s.startFn()
	if err != nil {
		log.Error("processhost start failed", "error", err)
		changes <- svc.Status{State: svc.StopPending}
		return true, 1
	}

	changes <- svc.Status{State: svc.Running, Accepts: accepted}
	log.Info("running as Windows service", "args", args)

	for cr := range r {
		switch cr.Cmd {
		case svc.Interrogate:
			changes <- cr.CurrentStatus
		case svc.Stop, svc.Shutdown:
			log.Info("SCM requested stop")
			changes <- svc.Status{State: svc.StopPending, WaitHint: uint32(stopGrace.Milliseconds())}
			if err := h.stop(stopGrace); err != nil {
				log.Warn("work loop stopped with error", "error", err)
			}
			return false, 0
		default:
			log.Warn(fmt.Sprintf("unexpected SCM control request #%d", cr.Cmd))
		}
	}
	return false, 0
}
