//go:build windows

package main

import (
	"fmt"
	"sync"

	"golang.org/x/sys/windows/svc"
)

// isWindowsService reports whether the process was started by the Windows
// Service Control Manager. Must be called early — before any console I/O.
func isWindowsService() bool {
	ok, err := svc.IsWindowsService()
	if err != nil {
		return false
	}
	return ok
}

// hostService implements svc.Handler for the Windows SCM.
type hostService struct {
	startFn func() error
	stopFn  func()
	stopOnce sync.Once
}

// runAsService runs relaycast-host under the Windows Service Control
// Manager. startFn blocks until stopFn is invoked or it fails on its own.
func runAsService(startFn func() error, stopFn func()) error {
	h := &hostService{startFn: startFn, stopFn: stopFn}
	return svc.Run(windowsServiceName, h)
}

// Execute is the SCM callback. It signals SERVICE_RUNNING, runs startFn on
// its own goroutine, then blocks until the SCM sends Stop or Shutdown.
func (s *hostService) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	const accepted = svc.AcceptStop | svc.AcceptShutdown

	changes <- svc.Status{State: svc.StartPending}

	errCh := make(chan error, 1)
	go func() { errCh <- s.startFn() }()

	changes <- svc.Status{State: svc.Running, Accepts: accepted}
	log.Info("relaycast-host running as Windows service")

	for {
		select {
		case err := <-errCh:
			if err != nil {
				log.Error("relaycast-host exited with error", "error", err)
				changes <- svc.Status{State: svc.StopPending}
				return true, 1
			}
			changes <- svc.Status{State: svc.StopPending}
			return false, 0
		case cr := <-r:
			switch cr.Cmd {
			case svc.Interrogate:
				changes <- cr.CurrentStatus
			case svc.Stop, svc.Shutdown:
				log.Info("SCM requested stop")
				changes <- svc.Status{State: svc.StopPending}
				s.stopOnce.Do(s.stopFn)
				<-errCh
				return false, 0
			default:
				log.Warn(fmt.Sprintf("unexpected SCM control request #%d", cr.Cmd))
			}
		}
	}
}
