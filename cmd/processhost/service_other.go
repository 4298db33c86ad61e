//go:build !windows

package main

import "fmt"

// isWindowsService always returns false on non-Windows platforms.
func isWindowsService() bool { return false }

// runAsService is a stub on non-Windows platforms.
func runAsService(_ string, _ func() (*host, error)) error {
	return fmt.Errorf("Windows service mode is not available on this platform")
}
