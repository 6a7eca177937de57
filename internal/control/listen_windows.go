//go:build windows

package control

import (
	"fmt"
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// pipeSecurity restricts the control pipe to the local system and
// interactively logged-in users, matching the model used for the
// root/helper IPC pipe: this channel is local-only but still should not
// be reachable by arbitrary service accounts.
const pipeSecurity = "D:P(A;;GA;;;SY)(A;;GRGW;;;IU)"

// Listen binds the control channel's local pipe at socketPath: a named
// pipe on this platform.
func Listen(socketPath string) (net.Listener, error) {
	cfg := &winio.PipeConfig{
		SecurityDescriptor: pipeSecurity,
		InputBufferSize:    64 * 1024,
		OutputBufferSize:   64 * 1024,
	}
	listener, err := winio.ListenPipe(socketPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("control: listen pipe %s: %w", socketPath, err)
	}
	return listener, nil
}

// Dial connects to a control channel bound by Listen.
func Dial(socketPath string) (net.Conn, error) {
	timeout := 5 * time.Second
	conn, err := winio.DialPipe(socketPath, &timeout)
	if err != nil {
		return nil, fmt.Errorf("control: dial pipe %s: %w", socketPath, err)
	}
	return conn, nil
}
