// Package usbhost implements ardreset.Bus on top of libusb through
// github.com/google/gousb. The operating system has already enumerated
// and addressed the device, so address allocation maps onto the address
// libusb reports and the endpoint table is bookkeeping only. Selecting a
// configuration and claiming the CDC control interface are real libusb
// operations and are undone by FreeAddress.
package usbhost

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/gousb"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/allbin/go-ardreset"
)

// ErrNoDevice is returned by Open when no device matches
var ErrNoDevice = errors.New("no USB device with that vendor/product ID")

const recipientInterface = 0x01

// Bus exposes one libusb device as an ardreset.Bus
type Bus struct {
	mu      sync.Mutex
	dev     *gousb.Device
	logger  *zap.Logger
	address uint8
	config  *gousb.Config
	claimed map[uint8]*gousb.Interface
	table   []ardreset.Endpoint
}

var _ ardreset.Bus = (*Bus)(nil)

// Open opens the first device matching vendorID/productID. The kernel
// driver is detached automatically when an interface is claimed.
func Open(ctx *gousb.Context, vendorID, productID uint16, logger *zap.Logger) (*Bus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vendorID), gousb.ID(productID))
	if err != nil {
		return nil, fmt.Errorf("open %04x:%04x: %w", vendorID, productID, err)
	}
	if dev == nil {
		return nil, fmt.Errorf("%w: %04x:%04x", ErrNoDevice, vendorID, productID)
	}
	if err := dev.SetAutoDetach(true); err != nil {
		logger.Debug("auto detach unavailable", zap.Error(err))
	}
	return &Bus{
		dev:     dev,
		logger:  logger,
		claimed: make(map[uint8]*gousb.Interface),
	}, nil
}

// Location returns the bus number and port the device is attached to,
// suitable as the parent/port arguments of Driver.Init
func (b *Bus) Location() (bus, port uint8) {
	return uint8(b.dev.Desc.Bus), uint8(b.dev.Desc.Port)
}

// Close releases any claimed resources and closes the device
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return multierr.Append(b.releaseLocked(), b.dev.Close())
}

func (b *Bus) checkAddress(addr uint8) error {
	if addr != 0 && addr != b.address {
		return fmt.Errorf("%w: %d", ardreset.ErrAddressNotFound, addr)
	}
	return nil
}

// DeviceDescriptor returns the cached libusb device descriptor
func (b *Bus) DeviceDescriptor(addr uint8) (ardreset.DeviceDescriptor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkAddress(addr); err != nil {
		return ardreset.DeviceDescriptor{}, err
	}
	desc := b.dev.Desc
	return ardreset.DeviceDescriptor{
		VendorID:          uint16(desc.Vendor),
		ProductID:         uint16(desc.Product),
		MaxPacketSize0:    uint8(desc.MaxControlPacketSize),
		NumConfigurations: uint8(len(desc.Configs)),
	}, nil
}

// AllocAddress hands out the address the OS assigned. A second
// allocation before FreeAddress yields 0.
func (b *Bus) AllocAddress(parent, port uint8) (uint8, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.address != 0 {
		return 0, nil
	}
	b.address = uint8(b.dev.Desc.Address)
	b.logger.Debug("address allocated",
		zap.Uint8("parent", parent),
		zap.Uint8("port", port),
		zap.Uint8("address", b.address))
	return b.address, nil
}

// FreeAddress releases the configuration and interfaces claimed under addr
func (b *Bus) FreeAddress(addr uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if addr == 0 || addr != b.address {
		return nil
	}
	err := b.releaseLocked()
	b.address = 0
	return err
}

// SetAddress only validates addr; the OS already addressed the device
func (b *Bus) SetAddress(addr uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.checkAddress(addr)
}

func (b *Bus) SetEndpointTable(addr uint8, eps []ardreset.Endpoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkAddress(addr); err != nil {
		return err
	}
	b.table = append(b.table[:0], eps...)
	return nil
}

func (b *Bus) ClearEndpointTable(addr uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.table = nil
	return nil
}

// EndpointTable returns a copy of the registered endpoint table
func (b *Bus) EndpointTable() []ardreset.Endpoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ardreset.Endpoint(nil), b.table...)
}

// ConfigDescriptor returns the index-th configuration in ascending
// configuration value order
func (b *Bus) ConfigDescriptor(addr, index uint8) (ardreset.ConfigDescriptor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkAddress(addr); err != nil {
		return ardreset.ConfigDescriptor{}, err
	}

	numbers := make([]int, 0, len(b.dev.Desc.Configs))
	for n := range b.dev.Desc.Configs {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	if int(index) >= len(numbers) {
		return ardreset.ConfigDescriptor{}, fmt.Errorf("configuration index %d out of range", index)
	}
	return convertConfig(b.dev.Desc.Configs[numbers[index]]), nil
}

// SetConfiguration selects configuration value on the device
func (b *Bus) SetConfiguration(addr, value uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkAddress(addr); err != nil {
		return err
	}
	if b.config != nil {
		if err := b.config.Close(); err != nil {
			return err
		}
		b.config = nil
	}
	cfg, err := b.dev.Config(int(value))
	if err != nil {
		return err
	}
	b.config = cfg
	return nil
}

// Control issues a control transfer. Interface-recipient requests claim
// the addressed interface first, detaching the kernel driver.
func (b *Bus) Control(addr uint8, setup ardreset.SetupPacket, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkAddress(addr); err != nil {
		return err
	}
	if setup.RequestType&0x1f == recipientInterface {
		if err := b.claimLocked(uint8(setup.Index)); err != nil {
			return err
		}
	}
	_, err := b.dev.Control(setup.RequestType, setup.Request, setup.Value, setup.Index, data)
	return err
}

func (b *Bus) claimLocked(num uint8) error {
	if _, ok := b.claimed[num]; ok {
		return nil
	}
	if b.config == nil {
		return fmt.Errorf("claim interface %d: no configuration selected", num)
	}
	intf, err := b.config.Interface(int(num), 0)
	if err != nil {
		return fmt.Errorf("claim interface %d: %w", num, err)
	}
	b.claimed[num] = intf
	return nil
}

func (b *Bus) releaseLocked() error {
	for num, intf := range b.claimed {
		intf.Close()
		delete(b.claimed, num)
	}
	if b.config == nil {
		return nil
	}
	err := b.config.Close()
	b.config = nil
	return err
}

func convertConfig(cfg gousb.ConfigDesc) ardreset.ConfigDescriptor {
	out := ardreset.ConfigDescriptor{Value: uint8(cfg.Number)}
	for _, intf := range cfg.Interfaces {
		if len(intf.AltSettings) == 0 {
			continue
		}
		alt := intf.AltSettings[0]
		desc := ardreset.InterfaceDescriptor{
			Number:   uint8(intf.Number),
			Class:    uint8(alt.Class),
			SubClass: uint8(alt.SubClass),
			Protocol: uint8(alt.Protocol),
		}
		for _, ep := range alt.Endpoints {
			desc.Endpoints = append(desc.Endpoints, convertEndpoint(ep))
		}
		sort.Slice(desc.Endpoints, func(i, j int) bool {
			return desc.Endpoints[i].Address < desc.Endpoints[j].Address
		})
		out.Interfaces = append(out.Interfaces, desc)
	}
	return out
}

func convertEndpoint(ep gousb.EndpointDesc) ardreset.EndpointDescriptor {
	var attr uint8
	switch ep.TransferType {
	case gousb.TransferTypeIsochronous:
		attr = ardreset.TransferIsochronous
	case gousb.TransferTypeBulk:
		attr = ardreset.TransferBulk
	case gousb.TransferTypeInterrupt:
		attr = ardreset.TransferInterrupt
	default:
		attr = ardreset.TransferControl
	}
	return ardreset.EndpointDescriptor{
		Address:       uint8(ep.Address),
		Attributes:    attr,
		MaxPacketSize: uint16(ep.MaxPacketSize),
	}
}
