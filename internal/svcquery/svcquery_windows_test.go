//go:build windows

package svcquery

import (
	"errors"
	"testing"

	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"
)

func TestMapWindowsState(t *testing.T) {
	tests := []struct {
		state svc.State
		want  ServiceStatus
	}{
		{svc.Running, StatusRunning},
		{svc.Stopped, StatusStopped},
		{svc.Paused, StatusStopped},
		{svc.StartPending, StatusPending},
		{svc.StopPending, StatusPending},
		{svc.ContinuePending, StatusPending},
		{svc.PausePending, StatusPending},
		{svc.State(99), StatusUnknown},
	}
	for _, tt := range tests {
		if got := mapWindowsState(tt.state); got != tt.want {
			t.Errorf("mapWindowsState(%d) = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestMapWindowsStartType(t *testing.T) {
	if got := mapWindowsStartType(mgr.StartAutomatic); got != "automatic" {
		t.Errorf("automatic: got %s", got)
	}
	if got := mapWindowsStartType(mgr.StartManual); got != "manual" {
		t.Errorf("manual: got %s", got)
	}
	if got := mapWindowsStartType(mgr.StartDisabled); got != "disabled" {
		t.Errorf("disabled: got %s", got)
	}
}

func TestGetStatusMissingService(t *testing.T) {
	_, err := GetStatus("processhost-test-no-such-service")
	if err == nil {
		t.Fatal("expected error for missing service")
	}
	// Without admin rights the SCM connect itself may be refused.
	if !errors.Is(err, ErrNotFound) {
		t.Skipf("could not reach SCM as this user: %v", err)
	}
}
