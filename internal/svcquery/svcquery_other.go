//go:build !windows

package svcquery

// IsRunning always fails with ErrUnsupported outside Windows.
func IsRunning(name string) (bool, error) {
	return false, ErrUnsupported
}

// GetStatus always fails with ErrUnsupported outside Windows.
func GetStatus(name string) (ServiceInfo, error) {
	return ServiceInfo{Name: name, Status: StatusUnknown}, ErrUnsupported
}
