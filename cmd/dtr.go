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

// dtrCmd represents the dtr command
var dtrCmd = &cobra.Command{
	Use:   "dtr <port> <state>",
	Short: "Control DTR (Data Terminal Ready) signal",
	Long: `Manually set the DTR (Data Terminal Ready) signal state.

The DTR signal indicates that the terminal is ready for communication.
On classic boards (Uno, Mega) DTR is wired to the reset pin through a
capacitor, so a high-to-low transition resets the board.

Examples:
  ardreset dtr /dev/ttyUSB0 high
  ardreset dtr /dev/ttyUSB0 low
  ardreset dtr /dev/ttyACM0 on
  ardreset dtr /dev/ttyACM0 off

Valid states: high, low, on, off, true, false, 1, 0`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		state, err := parseSignalState(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		setSignal(args[0], "DTR", state, ardreset.Port.SetDTR, func(s ardreset.ModemSignals) bool { return s.DTR })
	},
}

func init() {
	rootCmd.AddCommand(dtrCmd)
}
