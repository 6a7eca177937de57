//go:build !windows

package main

import "fmt"

// isWindowsService always returns false on non-Windows platforms.
func isWindowsService() bool { return false }

// runAsService is a no-op stub on non-Windows platforms; relaycast-host
// relies on systemd/launchd (or a foreground supervisor) instead.
func runAsService(_ func() error, _ func()) error {
	return fmt.Errorf("windows service mode is not available on this platform")
}
