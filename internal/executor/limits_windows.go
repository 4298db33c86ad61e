//go:build windows

package executor

import (
	"errors"
	"os/exec"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/windows"
)

// setProcessGroup starts the command in a new process group without a
// console window.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
	}
}

// killProcessGroup walks the process tree rooted at the command and kills
// every descendant before the root. Job objects would do this atomically but
// are not used here.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}

	var errs []error
	root, err := process.NewProcess(int32(cmd.Process.Pid))
	if err != nil {
		// Root already exited. Its children still record it as parent.
		for _, orphan := range orphansOf(int32(cmd.Process.Pid)) {
			killTree(orphan, &errs)
		}
		return errors.Join(errs...)
	}

	killTree(root, &errs)
	return errors.Join(errs...)
}

// orphansOf lists running processes whose recorded parent is pid.
func orphansOf(pid int32) []*process.Process {
	all, err := process.Processes()
	if err != nil {
		return nil
	}
	var out []*process.Process
	for _, p := range all {
		if ppid, err := p.Ppid(); err == nil && ppid == pid {
			out = append(out, p)
		}
	}
	return out
}

func killTree(p *process.Process, errs *[]error) {
	children, _ := p.Children()
	for _, child := range children {
		killTree(child, errs)
	}
	if err := p.Kill(); err != nil {
		if exists, _ := process.PidExists(p.Pid); exists {
			*errs = append(*errs, err)
		}
	}
}
