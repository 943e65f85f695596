// Package ardreset resets and configures Arduino-family boards attached
// over USB CDC ACM.
//
// Boards are identified by USB vendor/product ID against a catalog that
// maps each known board to a reset policy: the baud rate it is brought
// up with and the length of the DTR/RTS reset pulse. Boards with native
// USB (Leonardo, Nano Every) have a zero pulse; they enter the
// bootloader through the 1200 bps touch instead.
//
// # Catalog
//
//	policy, ok := ardreset.DefaultCatalog().Classify(0x2341, 0x0043)
//	// policy == {BaudRate: 115200, ResetPulse: 250}, ok == true
//
// Unknown devices classify to DefaultPolicy with ok == false.
//
// # Resetting a board through its tty
//
// On Linux the cdc_acm driver translates modem line and termios changes
// into the CDC class requests, so an open tty is a Controller:
//
//	s, err := ardreset.ResetPort("/dev/ttyACM0", ardreset.ResetAuto, 0)
//
// ResetAuto follows the board policy, ResetPulse forces a DTR/RTS pulse
// and ResetTouch performs the 1200 bps touch.
//
// # Sessions
//
// A Session binds a Controller to a classified board:
//
//	s := ardreset.NewSession(ctrl, vid, pid, ardreset.WithLogger(logger))
//	err := s.ResetTarget()
//
// ResetDTRRTS drives lines 0, sleeps for the pulse and raises DTR|RTS.
// Touch1200bps raises both lines, sets the line coding to 1200 8N1,
// drops DTR and then RTS with 4 ms between steps. ResetTarget is a no-op
// for zero-pulse boards.
//
// # Bring-up over a USB host bus
//
// Driver performs attach-time enumeration through a Bus: address
// assignment, endpoint discovery of the CDC ACM function, configuration
// selection and the board's initial line settings. Every failure path
// releases what was allocated and reports the failing Step to a
// DiagnosticSink. Package usbhost provides a libusb Bus.
//
// # Port discovery
//
//	boards, err := ardreset.DetectBoards(nil)
//	for _, b := range boards {
//	    fmt.Println(b.Port, b.Name(), b.Policy.BaudRate)
//	}
package ardreset
