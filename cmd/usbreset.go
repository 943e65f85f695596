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
	"github.com/spf13/cobra"
)

// usbResetCmd represents the usb-reset command
var usbResetCmd = &cobra.Command{
	Use:   "usb-reset <port|serial>",
	Short: "Reset a board at the USB level",
	Long: `Perform a USB port reset on a board through libusb. This can recover
boards whose USB function is hung, which a reset over the control lines
cannot reach, without physically unplugging them.

The device will re-enumerate after reset, which may cause the port path
to change (e.g., /dev/ttyACM0 might become /dev/ttyACM1). Use serial
numbers to reliably identify devices after reset.

Requirements:
- libusb must be installed
- Root/sudo permissions (or a udev rule) required for USB operations

Examples:
  sudo ardreset usb-reset /dev/ttyACM0          # Reset by port path
  sudo ardreset usb-reset --serial 85736323838351F0E1C1   # Reset by serial number`,
	Args: func(cmd *cobra.Command, args []string) error {
		serialFlag, _ := cmd.Flags().GetString("serial")
		if serialFlag == "" && len(args) != 1 {
			return errors.New("requires either a port path argument or --serial flag")
		}
		if serialFlag != "" && len(args) > 0 {
			return errors.New("cannot specify both port path and --serial flag")
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		serialFlag, _ := cmd.Flags().GetString("serial")
		l := logger.Named("usbhost")

		var err error
		if serialFlag != "" {
			// Reset by serial number
			fmt.Printf("Resetting USB device with serial: %s\n", serialFlag)
			err = usbhost.ResetDeviceBySerial(serialFlag, l)
		} else {
			// Reset by port path
			portPath := args[0]
			fmt.Printf("Resetting USB device: %s\n", portPath)
			err = usbhost.ResetPortDevice(portPath, l)
		}

		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			switch {
			case errors.Is(err, ardreset.ErrUSBInfoNotAvailable):
				fmt.Fprintln(os.Stderr, "This device does not appear to be a USB device")
			case errors.Is(err, usbhost.ErrNoDevice):
				fmt.Fprintln(os.Stderr, "libusb did not find the device, check permissions")
			}
			os.Exit(1)
		}

		fmt.Println("USB device reset successfully")
		fmt.Println("Device will re-enumerate (port path may change)")
		fmt.Println("\nUse 'ardreset list --table' to see updated device list")
	},
}

func init() {
	rootCmd.AddCommand(usbResetCmd)

	usbResetCmd.Flags().StringP("serial", "s", "", "Reset device by serial number")
}
