// Package svcquery reads the status of a registered OS service directly
// from the service manager.
package svcquery

import "errors"

// ServiceStatus is the normalized run state of a service.
type ServiceStatus string

// ServiceStatus constants.
const (
	StatusRunning  ServiceStatus = "running"
	StatusStopped  ServiceStatus = "stopped"
	StatusPending  ServiceStatus = "pending"
	StatusDisabled ServiceStatus = "disabled"
	StatusUnknown  ServiceStatus = "unknown"
)

var (
	// ErrNotFound is returned when no service with the given name is registered.
	ErrNotFound = errors.New("svcquery: service not found")

	// ErrUnsupported is returned on platforms without a queryable service manager.
	ErrUnsupported = errors.New("svcquery: not supported on this platform")
)

// ServiceInfo describes a system service.
type ServiceInfo struct {
	Name        string        `json:"name" yaml:"name"`
	DisplayName string        `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Status      ServiceStatus `json:"status" yaml:"status"`
	StartType   string        `json:"startType,omitempty" yaml:"startType,omitempty"`
	BinaryPath  string        `json:"binaryPath,omitempty" yaml:"binaryPath,omitempty"`
}

// IsActive returns true if the service is currently running.
func (s ServiceInfo) IsActive() bool {
	return s.Status == StatusRunning
}
