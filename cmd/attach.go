/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/allbin/go-ardreset"
	"github.com/allbin/go-ardreset/usbhost"
	"github.com/google/gousb"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// attachCmd represents the attach command
var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Bring up a board directly over libusb",
	Long: `Bind a board over libusb, bypassing the kernel tty driver. The board's
CDC ACM function is located, the board is classified and its line settings
(control lines and baud rate) are applied, exactly as an embedded USB host
would do on attach.

With --reset the board is then reset according to its policy; with --touch
the 1200 bps touch is performed.

The kernel driver is detached from the CDC interface while the board is
bound. Root permissions (or a udev rule) are usually required.

Examples:
  sudo ardreset attach --vid 2341 --pid 0043
  sudo ardreset attach --vid 2341 --pid 0043 --reset
  sudo ardreset attach --vid 2341 --pid 8036 --touch`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		vidFlag, _ := cmd.Flags().GetString("vid")
		pidFlag, _ := cmd.Flags().GetString("pid")
		reset, _ := cmd.Flags().GetBool("reset")
		touch, _ := cmd.Flags().GetBool("touch")

		if reset && touch {
			fmt.Fprintln(os.Stderr, "Error: cannot specify both --reset and --touch")
			os.Exit(1)
		}

		vid, err := ardreset.ParseUSBID(vidFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: --vid: %v\n", err)
			os.Exit(1)
		}
		pid, err := ardreset.ParseUSBID(pidFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: --pid: %v\n", err)
			os.Exit(1)
		}

		catalog := mustLoadCatalog()

		if err := attachBoard(catalog, vid, pid, func(dev *ardreset.Device) error {
			switch {
			case reset:
				return dev.ResetTarget()
			case touch:
				return dev.Touch1200bps()
			}
			return nil
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			var se *ardreset.StepError
			if errors.As(err, &se) {
				fmt.Fprintf(os.Stderr, "Failed at step %s (code 0x%02X)\n", se.Step, ardreset.Code(err))
			}
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(attachCmd)

	attachCmd.Flags().String("vid", "", "USB vendor ID (hex)")
	attachCmd.Flags().String("pid", "", "USB product ID (hex)")
	attachCmd.Flags().Bool("reset", false, "Reset the board according to its policy after bring-up")
	attachCmd.Flags().Bool("touch", false, "Perform the 1200 bps touch after bring-up")
	_ = attachCmd.MarkFlagRequired("vid")
	_ = attachCmd.MarkFlagRequired("pid")
}

// attachBoard opens the device, runs bring-up and calls then with the
// ready device before releasing it
func attachBoard(catalog *ardreset.Catalog, vid, pid uint16, then func(*ardreset.Device) error) (err error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	l := logger.Named("usbhost")
	bus, err := usbhost.Open(ctx, vid, pid, l)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, bus.Close())
	}()

	driver := ardreset.NewDriver(bus, nil,
		ardreset.WithDiagnosticSink(ardreset.LogSink{Logger: l}),
		ardreset.WithDriverLogger(logger.Named("driver")),
		ardreset.WithSessionOptions(
			ardreset.WithCatalog(catalog),
			ardreset.WithLogger(logger.Named("reset"))))

	busNum, port := bus.Location()
	dev, err := driver.Init(busNum, port, false)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, driver.Release())
	}()

	entry, _ := catalog.Lookup(vid, pid)
	fmt.Printf("Attached %04x:%04x at address %d\n\n", vid, pid, dev.Address)
	fmt.Printf("  Board:      %s\n", boardName(entry, dev.Recognized))
	fmt.Printf("  Policy:     %s\n", describePolicy(dev.Policy))
	fmt.Printf("  Interfaces: control %d, data %d (config %d)\n", dev.ControlInterface, dev.DataInterface, dev.ConfigValue)
	for i, ep := range dev.Endpoints {
		fmt.Printf("  Endpoint %d: address 0x%02X, max packet %d\n", i, ep.Address, ep.MaxPacketSize)
	}

	if err := then(dev); err != nil {
		return err
	}
	logger.Debug("post bring-up action done", zap.Uint8("address", dev.Address))
	return nil
}
