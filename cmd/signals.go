/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/allbin/go-ardreset"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// signalsCmd represents the signals command
var signalsCmd = &cobra.Command{
	Use:   "signals <port>",
	Short: "Display current modem signal states",
	Long: `Display the current state of all modem control signals.

Shows the state of CTS, DSR, RI, DCD, RTS, and DTR signals for the specified
port. The port is opened without hangup on close, so reading the signals
does not reset a board.

Examples:
  ardreset signals /dev/ttyUSB0
  ardreset signals /dev/ttyACM0

Signal meanings:
  CTS - Clear To Send (input)
  DSR - Data Set Ready (input)
  RI  - Ring Indicator (input)
  DCD - Data Carrier Detect (input)
  RTS - Request To Send (output)
  DTR - Data Terminal Ready (output, drives the reset line on classic boards)`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		portPath := args[0]

		port, err := ardreset.Open(portPath, ardreset.WithHangupOnClose(false))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening port: %v\n", err)
			os.Exit(1)
		}
		defer port.Close()

		signals, err := port.GetModemSignals()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading modem signals: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Modem Signals for %s:\n\n", portPath)
		fmt.Printf("  CTS (Clear To Send):       %s\n", formatSignalState(signals.CTS))
		fmt.Printf("  DSR (Data Set Ready):      %s\n", formatSignalState(signals.DSR))
		fmt.Printf("  RI  (Ring Indicator):      %s\n", formatSignalState(signals.RI))
		fmt.Printf("  DCD (Data Carrier Detect): %s\n", formatSignalState(signals.DCD))
		fmt.Printf("  RTS (Request To Send):     %s\n", formatSignalState(signals.RTS))
		fmt.Printf("  DTR (Data Terminal Ready): %s\n", formatSignalState(signals.DTR))
		fmt.Printf("\n  Control lines: %s\n", signals.Lines())
	},
}

func formatSignalState(state bool) string {
	if state {
		return "HIGH"
	}
	return "LOW"
}

func parseSignalState(state string) (bool, error) {
	switch strings.ToLower(state) {
	case "high", "on", "true", "1":
		return true, nil
	case "low", "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid state: %s (valid: high, low, on, off, true, false, 1, 0)", state)
	}
}

// setSignal drives one output line and reads it back. The port is
// opened without HUPCL so the line keeps its state after exit.
func setSignal(portPath, name string, state bool, set func(ardreset.Port, bool) error, get func(ardreset.ModemSignals) bool) {
	port, err := ardreset.Open(portPath, ardreset.WithHangupOnClose(false))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening port: %v\n", err)
		os.Exit(1)
	}
	defer port.Close()

	if err := set(port, state); err != nil {
		fmt.Fprintf(os.Stderr, "Error setting %s: %v\n", name, err)
		os.Exit(1)
	}

	// Verify the state was set
	current := state
	signals, err := port.GetModemSignals()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not verify %s state: %v\n", name, err)
	} else {
		current = get(signals)
	}

	logger.Debug("signal set", zap.String("port", portPath), zap.String("signal", name), zap.Bool("state", current))
	fmt.Printf("%s set to %s on %s\n", name, formatSignalState(current), portPath)
}

func init() {
	rootCmd.AddCommand(signalsCmd)
}
