package svcquery

import (
	"errors"
	"runtime"
	"testing"
)

func TestServiceStatusConstants(t *testing.T) {
	if StatusRunning != ServiceStatus("running") {
		t.Errorf("expected running, got %s", StatusRunning)
	}
	if StatusStopped != ServiceStatus("stopped") {
		t.Errorf("expected stopped, got %s", StatusStopped)
	}
	if StatusPending != ServiceStatus("pending") {
		t.Errorf("expected pending, got %s", StatusPending)
	}
	if StatusDisabled != ServiceStatus("disabled") {
		t.Errorf("expected disabled, got %s", StatusDisabled)
	}
	if StatusUnknown != ServiceStatus("unknown") {
		t.Errorf("expected unknown, got %s", StatusUnknown)
	}
}

func TestServiceInfoIsActive(t *testing.T) {
	active := ServiceInfo{Name: "test", Status: StatusRunning}
	if !active.IsActive() {
		t.Error("running service should be active")
	}
	for _, st := range []ServiceStatus{StatusStopped, StatusPending, StatusDisabled, StatusUnknown} {
		if (ServiceInfo{Name: "test", Status: st}).IsActive() {
			t.Errorf("%s service should not be active", st)
		}
	}
}

func TestGetStatusUnsupportedOffWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("service manager is available on Windows")
	}
	info, err := GetStatus("SampleSvc")
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if info.Status != StatusUnknown {
		t.Fatalf("status = %s, want unknown", info.Status)
	}
	if _, err := IsRunning("SampleSvc"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("IsRunning: expected ErrUnsupported, got %v", err)
	}
}
