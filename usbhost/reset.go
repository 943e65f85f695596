package usbhost

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/gousb"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/allbin/go-ardreset"
)

// Target selects the USB device to reset. Zero Bus/Address match any
// location and an empty Serial matches any serial number.
type Target struct {
	VendorID  uint16
	ProductID uint16
	Bus       int
	Address   int
	Serial    string
}

// ReenumerateWait is how long ResetPortDevice waits after a reset for
// the device to come back
var ReenumerateWait = 2 * time.Second

func (t Target) String() string {
	s := fmt.Sprintf("%04x:%04x", t.VendorID, t.ProductID)
	if t.Bus != 0 || t.Address != 0 {
		s += fmt.Sprintf(" at %03d/%03d", t.Bus, t.Address)
	}
	if t.Serial != "" {
		s += " serial " + t.Serial
	}
	return s
}

// matches compares the descriptor fields of t. Serial is checked after
// opening since it needs a string descriptor read.
func (t Target) matches(desc *gousb.DeviceDesc) bool {
	if uint16(desc.Vendor) != t.VendorID || uint16(desc.Product) != t.ProductID {
		return false
	}
	if t.Bus != 0 && desc.Bus != t.Bus {
		return false
	}
	if t.Address != 0 && desc.Address != t.Address {
		return false
	}
	return true
}

// ResetDevice issues a libusb port reset to every device matching t and
// returns how many were reset
func ResetDevice(ctx *gousb.Context, t Target, logger *zap.Logger) (n int, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	devs, err := ctx.OpenDevices(t.matches)
	defer func() {
		for _, dev := range devs {
			err = multierr.Append(err, dev.Close())
		}
	}()
	if err != nil && len(devs) == 0 {
		return 0, fmt.Errorf("open %s: %w", t, err)
	}

	for _, dev := range devs {
		if t.Serial != "" {
			serial, serr := dev.SerialNumber()
			if serr != nil || serial != t.Serial {
				continue
			}
		}
		if rerr := dev.Reset(); rerr != nil {
			return n, fmt.Errorf("reset %s: %w", t, rerr)
		}
		logger.Info("usb device reset",
			zap.Stringer("target", t),
			zap.Int("bus", dev.Desc.Bus),
			zap.Int("address", dev.Desc.Address))
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoDevice, t)
	}
	return n, nil
}

// TargetForPort resolves the USB device behind a tty through sysfs
func TargetForPort(path string) (Target, error) {
	info, err := ardreset.GetPortInfo(path)
	if err != nil {
		return Target{}, fmt.Errorf("failed to get port info: %w", err)
	}
	return targetFromInfo(info)
}

func targetFromInfo(info *ardreset.PortInfo) (Target, error) {
	vid, pid, ok := info.IDs()
	if !ok || info.BusNumber == "" || info.DeviceNumber == "" {
		return Target{}, ardreset.ErrUSBInfoNotAvailable
	}
	bus, err := strconv.Atoi(info.BusNumber)
	if err != nil {
		return Target{}, fmt.Errorf("%w: bus %q", ardreset.ErrUSBInfoNotAvailable, info.BusNumber)
	}
	addr, err := strconv.Atoi(info.DeviceNumber)
	if err != nil {
		return Target{}, fmt.Errorf("%w: device %q", ardreset.ErrUSBInfoNotAvailable, info.DeviceNumber)
	}
	return Target{
		VendorID:  vid,
		ProductID: pid,
		Bus:       bus,
		Address:   addr,
		Serial:    info.SerialNumber,
	}, nil
}

// ResetPortDevice performs a USB-level reset of the device behind a tty.
// This recovers a board whose CDC function stopped responding, which a
// line-level reset cannot reach. Usually needs root or a udev rule.
func ResetPortDevice(path string, logger *zap.Logger) error {
	t, err := TargetForPort(path)
	if err != nil {
		return err
	}

	ctx := gousb.NewContext()
	defer ctx.Close()

	if _, err := ResetDevice(ctx, t, logger); err != nil {
		return err
	}

	// the tty disappears and comes back during re-enumeration
	time.Sleep(ReenumerateWait)
	return nil
}

// ResetDeviceBySerial resets the board with the given USB serial number.
// Useful when the tty name changed after a reboot.
func ResetDeviceBySerial(serialNumber string, logger *zap.Logger) error {
	ports, err := ardreset.ListPorts()
	if err != nil {
		return err
	}

	for _, portPath := range ports {
		info, err := ardreset.GetPortInfo(portPath)
		if err != nil {
			continue
		}
		if info.SerialNumber == serialNumber {
			return ResetPortDevice(portPath, logger)
		}
	}

	return fmt.Errorf("%w: serial %s", ardreset.ErrDeviceNotFound, serialNumber)
}
