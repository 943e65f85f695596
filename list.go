package ardreset

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// sysfsRoot is the sysfs mount point, replaced in tests
var sysfsRoot = "/sys"

// listDetailedPorts enumerates serial ports with USB metadata, replaced in tests
var listDetailedPorts = enumerator.GetDetailedPortsList

// ListPorts returns the USB serial ports on the system that a board can
// appear as: CDC ACM (ttyACM*) and USB-UART bridges (ttyUSB*).
func ListPorts() ([]string, error) {
	var ports []string

	devDir := "/dev"
	entries, err := os.ReadDir(devDir)
	if err != nil {
		return nil, err
	}

	patterns := []*regexp.Regexp{
		regexp.MustCompile(`^ttyUSB\d+$`), // USB serial adapters (CH340, FTDI, 16U2 clones)
		regexp.MustCompile(`^ttyACM\d+$`), // USB CDC/ACM devices
	}

	for _, entry := range entries {
		name := entry.Name()

		matched := false
		for _, pattern := range patterns {
			if pattern.MatchString(name) {
				matched = true
				break
			}
		}

		if matched {
			fullPath := filepath.Join(devDir, name)
			if isCharacterDevice(fullPath) {
				ports = append(ports, fullPath)
			}
		}
	}

	sort.Strings(ports)
	return ports, nil
}

// isCharacterDevice checks if the given path is a character device
func isCharacterDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// PortInfo holds the USB identity of a serial port
type PortInfo struct {
	Name            string
	Path            string
	Description     string
	VendorID        string
	ProductID       string
	SerialNumber    string
	InterfaceNumber string
	BusNumber       string
	DeviceNumber    string
	Manufacturer    string
	Product         string
}

// IDs parses VendorID and ProductID. ok is false for non-USB ports.
func (i *PortInfo) IDs() (vendorID, productID uint16, ok bool) {
	if i.VendorID == "" || i.ProductID == "" {
		return 0, 0, false
	}
	vid, err := ParseUSBID(i.VendorID)
	if err != nil {
		return 0, 0, false
	}
	pid, err := ParseUSBID(i.ProductID)
	if err != nil {
		return 0, 0, false
	}
	return vid, pid, true
}

// GetPortInfo returns detailed information about a specific port
func GetPortInfo(portPath string) (*PortInfo, error) {
	if !isCharacterDevice(portPath) {
		return nil, ErrDeviceNotFound
	}

	name := filepath.Base(portPath)

	info := &PortInfo{
		Name:        name,
		Path:        portPath,
		Description: getPortDescription(name),
	}

	if strings.HasPrefix(name, "ttyUSB") || strings.HasPrefix(name, "ttyACM") {
		enrichUSBInfo(info)
	}

	return info, nil
}

// getPortDescription provides human-readable descriptions for different port types
func getPortDescription(name string) string {
	switch {
	case strings.HasPrefix(name, "ttyUSB"):
		return "USB Serial Port"
	case strings.HasPrefix(name, "ttyACM"):
		return "USB CDC/ACM Device"
	default:
		return "Serial Port"
	}
}

// enrichUSBInfo fills USB metadata from sysfs. The tty's device link
// points at the interface directory, whose parent is the USB device.
// ttyUSB bridges sit one level deeper, below the usb-serial port node.
func enrichUSBInfo(info *PortInfo) {
	devicePath := filepath.Join(sysfsRoot, "class", "tty", info.Name, "device")
	resolved, err := filepath.EvalSymlinks(devicePath)
	if err != nil {
		return
	}

	interfacePath := resolved
	if readSysfsFile(filepath.Join(interfacePath, "bInterfaceNumber")) == "" {
		interfacePath = filepath.Dir(resolved)
	}
	info.InterfaceNumber = readSysfsFile(filepath.Join(interfacePath, "bInterfaceNumber"))

	usbDevicePath := filepath.Dir(interfacePath)
	info.VendorID = readSysfsFile(filepath.Join(usbDevicePath, "idVendor"))
	info.ProductID = readSysfsFile(filepath.Join(usbDevicePath, "idProduct"))
	info.SerialNumber = readSysfsFile(filepath.Join(usbDevicePath, "serial"))
	info.Manufacturer = readSysfsFile(filepath.Join(usbDevicePath, "manufacturer"))
	info.Product = readSysfsFile(filepath.Join(usbDevicePath, "product"))
	info.BusNumber = readSysfsFile(filepath.Join(usbDevicePath, "busnum"))
	info.DeviceNumber = readSysfsFile(filepath.Join(usbDevicePath, "devnum"))
}

// readSysfsFile returns the trimmed content of a sysfs attribute, or ""
func readSysfsFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Board is a serial port paired with its catalog classification
type Board struct {
	Port         string
	VendorID     uint16
	ProductID    uint16
	SerialNumber string
	Product      string
	Entry        BoardEntry
	Policy       ResetPolicy
	Recognized   bool
}

// Name returns the board family, or "unknown"
func (b Board) Name() string {
	if !b.Recognized {
		return "unknown"
	}
	return b.Entry.Action.String()
}

// DetectBoards lists the USB serial ports and classifies each against
// catalog. Unrecognized devices are included with Recognized false.
func DetectBoards(catalog *Catalog) ([]Board, error) {
	if catalog == nil {
		catalog = DefaultCatalog()
	}

	ports, err := listDetailedPorts()
	if err != nil {
		return nil, err
	}

	var boards []Board
	for _, p := range ports {
		if p == nil || !p.IsUSB {
			continue
		}
		vid, err := ParseUSBID(p.VID)
		if err != nil {
			continue
		}
		pid, err := ParseUSBID(p.PID)
		if err != nil {
			continue
		}
		b := Board{
			Port:         p.Name,
			VendorID:     vid,
			ProductID:    pid,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		}
		b.Policy, b.Recognized = catalog.Classify(vid, pid)
		if b.Recognized {
			b.Entry, _ = catalog.Lookup(vid, pid)
		}
		boards = append(boards, b)
	}

	sort.Slice(boards, func(i, j int) bool {
		return boards[i].Port < boards[j].Port
	})
	return boards, nil
}
