/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/allbin/go-ardreset"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset <port>",
	Short: "Reset a board into its bootloader",
	Long: `Reset the board behind a serial port using the control lines.

By default the board is identified from its USB vendor/product ID and reset
according to its catalog policy: classic boards (Uno, Mega) get a DTR/RTS
pulse of their policy length. Ports without a USB identity, and boards not
in the catalog, get a 250 ms pulse.

Native USB boards (Leonardo, Nano Every) are skipped in this mode: nothing
is sent to them. Reset them with --touch or 'ardreset touch'.

Use --pulse or --touch to force a protocol.

Examples:
  ardreset reset /dev/ttyACM0
  ardreset reset /dev/ttyUSB0 --pulse 100ms
  ardreset reset /dev/ttyACM0 --touch`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		portPath := args[0]

		pulse, _ := cmd.Flags().GetDuration("pulse")
		touch, _ := cmd.Flags().GetBool("touch")

		mode, err := resetMode(cmd.Flags().Changed("pulse"), touch)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		s, err := resetBoard(portPath, mode, pulse)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			if errors.Is(err, ardreset.ErrDeviceNotFound) {
				fmt.Fprintln(os.Stderr, "Use 'ardreset list' to see connected boards")
			}
			os.Exit(1)
		}

		if mode == ardreset.ResetAuto && s.Policy.UsesTouch() {
			fmt.Printf("Skipped %s (%s): the board needs the 1200 bps touch, use --touch\n", portPath, sessionBoardName(s))
			return
		}
		fmt.Printf("Reset %s (%s, %s)\n", portPath, sessionBoardName(s), mode)
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().DurationP("pulse", "p", 0, "Force a DTR/RTS pulse of this length (0 uses the board policy)")
	resetCmd.Flags().Bool("touch", false, "Force the 1200 bps touch")
}

// resetMode picks the protocol from the command flags
func resetMode(pulse, touch bool) (ardreset.ResetMode, error) {
	switch {
	case pulse && touch:
		return 0, errors.New("cannot specify both --pulse and --touch")
	case pulse:
		return ardreset.ResetPulse, nil
	case touch:
		return ardreset.ResetTouch, nil
	default:
		return ardreset.ResetAuto, nil
	}
}

// resetBoard runs a reset with the configured catalog and logger
func resetBoard(portPath string, mode ardreset.ResetMode, pulse time.Duration) (*ardreset.Session, error) {
	catalog, err := loadCatalog()
	if err != nil {
		return nil, err
	}

	logger.Debug("resetting board",
		zap.String("port", portPath),
		zap.Stringer("mode", mode),
		zap.Duration("pulse", pulse))

	return ardreset.ResetPort(portPath, mode, pulse,
		ardreset.WithCatalog(catalog),
		ardreset.WithLogger(logger.Named("reset")))
}

func sessionBoardName(s *ardreset.Session) string {
	if s == nil || !s.Recognized {
		return "unknown board"
	}
	entry, _ := mustLoadCatalog().Lookup(s.VendorID, s.ProductID)
	return entry.Action.String()
}
