// Command relaycast-host is the streaming-core process: it owns the
// control channel (§6), accepts session lifecycle commands over it, and
// drives one pipeline.Coordinator per active session.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "relaycast-host",
	Short: "relaycast-host runs the low-latency streaming core",
	Long: `relaycast-host is the process that owns the §6 local control
channel, gathers P2P candidates, negotiates DTLS, and runs the
fragmentation/FEC/NACK/jitter/QoS pipeline for every session a local
supervisor asks it to prepare and start.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the relaycast-host version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to host.yaml (default: platform config dir)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
