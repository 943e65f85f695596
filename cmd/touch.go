/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/allbin/go-ardreset"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const portPollInterval = 100 * time.Millisecond

// touchCmd represents the touch command
var touchCmd = &cobra.Command{
	Use:   "touch <port>",
	Short: "Put a native USB board into its bootloader with the 1200 bps touch",
	Long: `Perform the 1200 bps touch on a native USB board (Leonardo, Micro,
Nano Every) and wait for its bootloader to enumerate.

The bootloader often shows up under a different tty name. The ports that
appear within the wait period are printed, one per line, so the command
can feed an upload tool:

  port=$(ardreset touch /dev/ttyACM0 | tail -n1)

The wait period is taken from --wait or the touch-wait config key.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		portPath := args[0]

		wait := viper.GetDuration("touch-wait")
		if cmd.Flags().Changed("wait") {
			wait, _ = cmd.Flags().GetDuration("wait")
		}

		before, err := ardreset.ListPorts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing ports: %v\n", err)
			os.Exit(1)
		}

		if _, err := resetBoard(portPath, ardreset.ResetTouch, 0); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Touched %s, waiting %s for the bootloader\n", portPath, wait)

		appeared := waitForNewPorts(before, wait)
		if len(appeared) == 0 {
			fmt.Fprintln(os.Stderr, "No new port appeared")
			return
		}
		for _, p := range appeared {
			fmt.Println(p)
		}
	},
}

func init() {
	rootCmd.AddCommand(touchCmd)

	touchCmd.Flags().DurationP("wait", "w", 2*time.Second, "How long to wait for the bootloader port")
}

// waitForNewPorts polls the port list until a port not in before shows
// up or timeout passes
func waitForNewPorts(before []string, timeout time.Duration) []string {
	deadline := time.Now().Add(timeout)
	for {
		ports, err := ardreset.ListPorts()
		if err != nil {
			logger.Debug("port scan failed", zap.Error(err))
		}
		if appeared := newPorts(before, ports); len(appeared) > 0 {
			return appeared
		}
		if !time.Now().Before(deadline) {
			return nil
		}
		time.Sleep(portPollInterval)
	}
}

// newPorts returns the ports in after that are not in before
func newPorts(before, after []string) []string {
	seen := make(map[string]bool, len(before))
	for _, p := range before {
		seen[p] = true
	}
	var out []string
	for _, p := range after {
		if !seen[p] {
			out = append(out, p)
		}
	}
	return out
}
