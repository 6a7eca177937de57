//go:build !windows

package control

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// Listen binds the control channel's local pipe at socketPath: a Unix
// domain socket on this platform. A stale socket file from a prior,
// uncleanly-terminated run is removed before binding.
func Listen(socketPath string) (net.Listener, error) {
	_ = os.Remove(socketPath)

	dir := filepath.Dir(socketPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("control: mkdir %s: %w", dir, err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("control: listen %s: %w", socketPath, err)
	}
	if err := os.Chmod(socketPath, 0700); err != nil {
		listener.Close()
		return nil, fmt.Errorf("control: chmod %s: %w", socketPath, err)
	}
	return listener, nil
}

// Dial connects to a control channel bound by Listen.
func Dial(socketPath string) (net.Conn, error) {
	return net.Dial("unix", socketPath)
}
