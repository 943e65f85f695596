/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/allbin/go-ardreset"
	"github.com/spf13/cobra"
)

// rtsCmd represents the rts command
var rtsCmd = &cobra.Command{
	Use:   "rts <port> <state>",
	Short: "Control RTS (Request To Send) signal",
	Long: `Manually set the RTS (Request To Send) signal state.

The RTS signal requests permission to send. Classic boards pulse it
together with DTR during a reset.

Examples:
  ardreset rts /dev/ttyUSB0 high
  ardreset rts /dev/ttyUSB0 low
  ardreset rts /dev/ttyACM0 on
  ardreset rts /dev/ttyACM0 off

Valid states: high, low, on, off, true, false, 1, 0`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		state, err := parseSignalState(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		setSignal(args[0], "RTS", state, ardreset.Port.SetRTS, func(s ardreset.ModemSignals) bool { return s.RTS })
	},
}

func init() {
	rootCmd.AddCommand(rtsCmd)
}
