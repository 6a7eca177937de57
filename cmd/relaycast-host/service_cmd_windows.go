//go:build windows

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"
)

const windowsServiceName = "RelayCastHost"

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the relaycast-host Windows service",
}

func init() {
	rootCmd.AddCommand(serviceCmd)
	serviceCmd.AddCommand(serviceInstallCmd)
	serviceCmd.AddCommand(serviceUninstallCmd)
	serviceCmd.AddCommand(serviceStartCmd)
	serviceCmd.AddCommand(serviceStopCmd)
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install relaycast-host as a Windows service",
	RunE: func(cmd *cobra.Command, args []string) error {
		exePath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("determine executable path: %w", err)
		}

		m, err := mgr.Connect()
		if err != nil {
			return fmt.Errorf("connect to SCM (run as Administrator): %w", err)
		}
		defer m.Disconnect()

		s, err := m.CreateService(windowsServiceName, exePath, mgr.Config{
			DisplayName:  "RelayCast Streaming Host",
			Description:  "Low-latency remote-desktop streaming core",
			StartType:    mgr.StartAutomatic,
			ErrorControl: mgr.ErrorNormal,
		}, "run")
		if err != nil {
			return fmt.Errorf("create service: %w", err)
		}
		defer s.Close()

		err = s.SetRecoveryActions([]mgr.RecoveryAction{
			{Type: mgr.ServiceRestart, Delay: 5 * time.Second},
			{Type: mgr.ServiceRestart, Delay: 10 * time.Second},
			{Type: mgr.ServiceRestart, Delay: 30 * time.Second},
		}, 86400)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to set recovery actions: %v\n", err)
		}

		fmt.Printf("Service %q installed.\n", windowsServiceName)
		return nil
	},
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the relaycast-host Windows service",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := mgr.Connect()
		if err != nil {
			return fmt.Errorf("connect to SCM (run as Administrator): %w", err)
		}
		defer m.Disconnect()

		s, err := m.OpenService(windowsServiceName)
		if err != nil {
			return fmt.Errorf("open service: %w", err)
		}
		defer s.Close()

		status, err := s.Query()
		if err == nil && status.State != svc.Stopped {
			_, _ = s.Control(svc.Stop)
			deadline := time.Now().Add(15 * time.Second)
			for time.Now().Before(deadline) {
				st, qErr := s.Query()
				if qErr != nil || st.State == svc.Stopped {
					break
				}
				time.Sleep(500 * time.Millisecond)
			}
		}

		if err := s.Delete(); err != nil {
			return fmt.Errorf("delete service: %w", err)
		}

		fmt.Printf("Service %q uninstalled.\n", windowsServiceName)
		return nil
	},
}

var serviceStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the relaycast-host Windows service",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := mgr.Connect()
		if err != nil {
			return fmt.Errorf("connect to SCM: %w", err)
		}
		defer m.Disconnect()

		s, err := m.OpenService(windowsServiceName)
		if err != nil {
			return fmt.Errorf("open service: %w", err)
		}
		defer s.Close()

		if err := s.Start(); err != nil {
			return fmt.Errorf("start service: %w", err)
		}

		fmt.Printf("Service %q started.\n", windowsServiceName)
		return nil
	},
}

var serviceStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the relaycast-host Windows service",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := mgr.Connect()
		if err != nil {
			return fmt.Errorf("connect to SCM: %w", err)
		}
		defer m.Disconnect()

		s, err := m.OpenService(windowsServiceName)
		if err != nil {
			return fmt.Errorf("open service: %w", err)
		}
		defer s.Close()

		if _, err := s.Control(svc.Stop); err != nil {
			return fmt.Errorf("stop service: %w", err)
		}

		fmt.Printf("Service %q stop requested.\n", windowsServiceName)
		return nil
	},
}
