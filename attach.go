package ardreset

import (
	"errors"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// USB class codes of the two interfaces of a CDC ACM function
const (
	ClassCDCControl uint8 = 0x02
	SubclassACM     uint8 = 0x02
	ClassCDCData    uint8 = 0x0A
)

// Endpoint attribute transfer types
const (
	TransferControl     uint8 = 0x00
	TransferIsochronous uint8 = 0x01
	TransferBulk        uint8 = 0x02
	TransferInterrupt   uint8 = 0x03
)

// Endpoint table slots of a CDC ACM function
const (
	EPControl = iota
	EPDataIn
	EPDataOut
	EPNotify
	maxEndpoints
)

// DeviceDescriptor holds the device descriptor fields the driver needs
type DeviceDescriptor struct {
	VendorID          uint16
	ProductID         uint16
	MaxPacketSize0    uint8
	NumConfigurations uint8
}

// EndpointDescriptor is a parsed endpoint descriptor
type EndpointDescriptor struct {
	Address       uint8
	Attributes    uint8
	MaxPacketSize uint16
	Interval      uint8
}

func (e EndpointDescriptor) IsIn() bool         { return e.Address&0x80 != 0 }
func (e EndpointDescriptor) TransferType() uint8 { return e.Attributes & 0x03 }
func (e EndpointDescriptor) IsBulk() bool       { return e.TransferType() == TransferBulk }
func (e EndpointDescriptor) IsInterrupt() bool  { return e.TransferType() == TransferInterrupt }

// InterfaceDescriptor is a parsed interface descriptor with its endpoints
type InterfaceDescriptor struct {
	Number    uint8
	Class     uint8
	SubClass  uint8
	Protocol  uint8
	Endpoints []EndpointDescriptor
}

// ConfigDescriptor is a parsed configuration descriptor tree
type ConfigDescriptor struct {
	Value      uint8
	Interfaces []InterfaceDescriptor
}

// Endpoint is one entry of a device's endpoint table
type Endpoint struct {
	Address       uint8
	Attributes    uint8
	MaxPacketSize uint16
}

// SetupPacket is a USB control request header
type SetupPacket struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// Bus is the USB host transport a Driver specializes. Address 0 is
// the default address of a freshly attached device.
type Bus interface {
	DeviceDescriptor(addr uint8) (DeviceDescriptor, error)
	AllocAddress(parent, port uint8) (uint8, error)
	FreeAddress(addr uint8) error
	SetAddress(addr uint8) error
	SetEndpointTable(addr uint8, eps []Endpoint) error
	ClearEndpointTable(addr uint8) error
	ConfigDescriptor(addr, index uint8) (ConfigDescriptor, error)
	SetConfiguration(addr, value uint8) error
	Control(addr uint8, setup SetupPacket, data []byte) error
}

// AsyncOper is notified once bring-up completes. A non-nil error
// aborts bring-up.
type AsyncOper interface {
	OnInit(dev *Device) error
}

// AsyncOperFunc adapts a function to AsyncOper
type AsyncOperFunc func(dev *Device) error

func (f AsyncOperFunc) OnInit(dev *Device) error { return f(dev) }

// DiagnosticSink receives failure events. It never affects control flow.
type DiagnosticSink interface {
	NotifyFail(step Step, err error)
}

// LogSink reports diagnostic events as structured warnings
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) NotifyFail(step Step, err error) {
	if s.Logger == nil {
		return
	}
	s.Logger.Warn("usb bring-up failed",
		zap.String("step", string(step)),
		zap.Uint8("code", Code(err)),
		zap.Error(err))
}

// Device is a board that completed bring-up. The embedded Session
// provides the reset operations.
type Device struct {
	*Session

	Address          uint8
	Parent           uint8
	Port             uint8
	LowSpeed         bool
	ConfigValue      uint8
	ControlInterface uint8
	DataInterface    uint8
	Endpoints        []Endpoint

	ready bool
}

// Ready reports whether bring-up finished and the owner accepted the device
func (d *Device) Ready() bool {
	return d != nil && d.ready
}

// Driver binds one attached CDC ACM device, classifies it and brings
// it up with its board's line settings.
type Driver struct {
	mu      sync.Mutex
	bus     Bus
	async   AsyncOper
	sink    DiagnosticSink
	logger  *zap.Logger
	session []SessionOption

	address uint8
	pending *Device // brought up, waiting for OnInit
	dev     *Device
}

// DriverOption configures a Driver
type DriverOption func(*Driver)

// WithDiagnosticSink sets the sink that receives failure events
func WithDiagnosticSink(s DiagnosticSink) DriverOption {
	return func(d *Driver) {
		d.sink = s
	}
}

// WithDriverLogger sets the logger for the driver and its sessions
func WithDriverLogger(l *zap.Logger) DriverOption {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
			d.session = append(d.session, WithLogger(l))
		}
	}
}

// WithSessionOptions passes options to each Session the driver creates
func WithSessionOptions(opts ...SessionOption) DriverOption {
	return func(d *Driver) {
		d.session = append(d.session, opts...)
	}
}

// NewDriver creates a driver on bus. async may be nil.
func NewDriver(bus Bus, async AsyncOper, opts ...DriverOption) *Driver {
	d := &Driver{
		bus:    bus,
		async:  async,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Device returns the bound device, or nil
func (d *Driver) Device() *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dev
}

// Init enumerates the device waiting at address 0 behind parent/port,
// locates its CDC ACM function, classifies the board and applies the
// board's line settings. On any failure the allocated address and
// endpoint table are released and the failing step is reported to the
// diagnostic sink.
//
// AsyncOper.OnInit runs without the driver lock held, so it may call
// back into the driver. Device returns nil until OnInit has accepted
// the device; calling Release from OnInit aborts the bring-up.
func (d *Driver) Init(parent, port uint8, lowSpeed bool) (*Device, error) {
	dev, err := d.bringUp(parent, port, lowSpeed)
	if err != nil {
		return nil, err
	}

	if d.async != nil {
		if err := d.async.OnInit(dev); err != nil {
			return nil, d.abort(dev, stepErr(StepOnInit, err))
		}
	}

	d.mu.Lock()
	if d.pending != dev {
		d.mu.Unlock()
		return nil, d.abort(dev, stepErr(StepOnInit, ErrNotReady))
	}
	d.pending = nil
	dev.ready = true
	d.dev = dev
	d.mu.Unlock()

	d.logger.Info("board configured",
		zap.Uint8("address", dev.Address),
		zap.String("vid", hex16(dev.VendorID)),
		zap.String("pid", hex16(dev.ProductID)),
		zap.Uint32("baud", dev.Policy.BaudRate),
		zap.Uint16("resetMs", dev.Policy.ResetPulse),
		zap.Bool("recognized", dev.Recognized))

	return dev, nil
}

// bringUp runs the enumeration steps under the driver lock. The device
// it returns is pending: bound to the driver but not yet ready.
func (d *Driver) bringUp(parent, port uint8, lowSpeed bool) (dev *Device, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.address != 0 {
		return nil, ErrInUse
	}

	d.logger.Debug("driver init", zap.Uint8("parent", parent), zap.Uint8("port", port))

	defer func() {
		if err == nil {
			return
		}
		if rerr := d.release(); rerr != nil {
			err = multierr.Append(err, rerr)
		}
		d.notify(err)
	}()

	if _, err := d.bus.DeviceDescriptor(0); err != nil {
		return nil, stepErr(StepGetDevDescr, err)
	}

	addr, err := d.bus.AllocAddress(parent, port)
	if err != nil {
		return nil, stepErr(StepSetAddr, err)
	}
	if addr == 0 {
		return nil, stepErr(StepSetAddr, ErrOutOfAddresses)
	}
	d.address = addr

	if err := d.bus.SetAddress(addr); err != nil {
		return nil, stepErr(StepSetAddr, err)
	}

	desc, err := d.bus.DeviceDescriptor(addr)
	if err != nil {
		return nil, stepErr(StepGetDevDescr, err)
	}

	d.logger.Debug("device descriptor",
		zap.Uint8("address", addr),
		zap.String("vid", hex16(desc.VendorID)),
		zap.String("pid", hex16(desc.ProductID)),
		zap.Uint8("configs", desc.NumConfigurations))

	control := Endpoint{MaxPacketSize: uint16(desc.MaxPacketSize0)}
	if err := d.bus.SetEndpointTable(addr, []Endpoint{control}); err != nil {
		return nil, stepErr(StepSetDevTblEntry, err)
	}

	var fn acmFunction
	for i := uint8(0); i < desc.NumConfigurations; i++ {
		cfg, err := d.bus.ConfigDescriptor(addr, i)
		if err != nil {
			return nil, stepErr(StepGetConfDescr, err)
		}
		fn = findACMFunction(cfg)
		if fn.numEP > 1 {
			break
		}
	}
	if fn.numEP < maxEndpoints {
		return nil, stepErr(StepGetConfDescr, ErrDeviceNotSupported)
	}
	fn.endpoints[EPControl] = control

	if err := d.bus.SetEndpointTable(addr, fn.endpoints[:]); err != nil {
		return nil, stepErr(StepSetDevTblEntry, err)
	}

	if err := d.bus.SetConfiguration(addr, fn.configValue); err != nil {
		return nil, stepErr(StepSetConf, err)
	}

	session := NewSession(NewACM(d.bus, addr, fn.controlIface), desc.VendorID, desc.ProductID, d.session...)
	dev = &Device{
		Session:          session,
		Address:          addr,
		Parent:           parent,
		Port:             port,
		LowSpeed:         lowSpeed,
		ConfigValue:      fn.configValue,
		ControlInterface: fn.controlIface,
		DataInterface:    fn.dataIface,
		Endpoints:        append([]Endpoint(nil), fn.endpoints[:]...),
	}

	if err := session.configure(); err != nil {
		return nil, stepErr(StepOnInit, err)
	}

	d.pending = dev
	return dev, nil
}

// abort releases a pending device whose OnInit failed, unless it was
// already released, and reports err
func (d *Driver) abort(dev *Device, err error) error {
	d.mu.Lock()
	if d.pending == dev {
		if rerr := d.release(); rerr != nil {
			err = multierr.Append(err, rerr)
		}
	}
	d.mu.Unlock()
	d.notify(err)
	return err
}

func (d *Driver) notify(err error) {
	if d.sink == nil {
		return
	}
	var se *StepError
	step := StepOnInit
	if errors.As(err, &se) {
		step = se.Step
	}
	d.sink.NotifyFail(step, err)
}

// ResetTarget resets the bound board according to its policy
func (d *Driver) ResetTarget() error {
	dev := d.Device()
	if !dev.Ready() {
		return ErrNotReady
	}
	return dev.ResetTarget()
}

// Release detaches the bound device and frees its bus resources
func (d *Driver) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.release()
}

func (d *Driver) release() error {
	d.pending = nil
	if d.dev != nil {
		d.dev.ready = false
		d.dev = nil
	}
	if d.address == 0 {
		return nil
	}
	addr := d.address
	d.address = 0
	return multierr.Combine(
		d.bus.ClearEndpointTable(addr),
		d.bus.FreeAddress(addr),
	)
}

// acmFunction is the CDC ACM function found in one configuration
type acmFunction struct {
	configValue  uint8
	controlIface uint8
	dataIface    uint8
	endpoints    [maxEndpoints]Endpoint
	numEP        int
}

// findACMFunction picks the notification endpoint of the first CDC ACM
// control interface and the bulk pair of the first CDC data interface.
// numEP counts the control endpoint plus each endpoint found.
func findACMFunction(cfg ConfigDescriptor) acmFunction {
	fn := acmFunction{configValue: cfg.Value, numEP: 1}
	var haveNotify, haveIn, haveOut bool

	for _, iface := range cfg.Interfaces {
		switch {
		case iface.Class == ClassCDCControl && iface.SubClass == SubclassACM && !haveNotify:
			for _, ep := range iface.Endpoints {
				if ep.IsInterrupt() && ep.IsIn() {
					fn.controlIface = iface.Number
					fn.endpoints[EPNotify] = toEndpoint(ep)
					haveNotify = true
					fn.numEP++
					break
				}
			}
		case iface.Class == ClassCDCData && !(haveIn && haveOut):
			for _, ep := range iface.Endpoints {
				if !ep.IsBulk() {
					continue
				}
				if ep.IsIn() && !haveIn {
					fn.endpoints[EPDataIn] = toEndpoint(ep)
					haveIn = true
					fn.numEP++
				} else if !ep.IsIn() && !haveOut {
					fn.endpoints[EPDataOut] = toEndpoint(ep)
					haveOut = true
					fn.numEP++
				}
			}
			if haveIn || haveOut {
				fn.dataIface = iface.Number
			}
		}
	}
	return fn
}

func toEndpoint(ep EndpointDescriptor) Endpoint {
	return Endpoint{
		Address:       ep.Address,
		Attributes:    ep.Attributes,
		MaxPacketSize: ep.MaxPacketSize,
	}
}
