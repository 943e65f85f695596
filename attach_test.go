package ardreset

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"
)

// fakeBus serves one device and records every call by name. fail maps a
// call name to the error it returns.
type fakeBus struct {
	desc    DeviceDescriptor
	configs []ConfigDescriptor
	addr    uint8
	fail    map[string]error

	calls     []string
	allocated uint8
	table     []Endpoint
	config    uint8
	controls  []SetupPacket
	payloads  [][]byte
}

func (b *fakeBus) call(name string) error {
	b.calls = append(b.calls, name)
	return b.fail[name]
}

func (b *fakeBus) DeviceDescriptor(addr uint8) (DeviceDescriptor, error) {
	if err := b.call("DeviceDescriptor"); err != nil {
		return DeviceDescriptor{}, err
	}
	return b.desc, nil
}

func (b *fakeBus) AllocAddress(parent, port uint8) (uint8, error) {
	if err := b.call("AllocAddress"); err != nil {
		return 0, err
	}
	b.allocated = b.addr
	return b.addr, nil
}

func (b *fakeBus) FreeAddress(addr uint8) error {
	err := b.call("FreeAddress")
	b.allocated = 0
	return err
}

func (b *fakeBus) SetAddress(addr uint8) error {
	return b.call("SetAddress")
}

func (b *fakeBus) SetEndpointTable(addr uint8, eps []Endpoint) error {
	if err := b.call("SetEndpointTable"); err != nil {
		return err
	}
	b.table = append([]Endpoint(nil), eps...)
	return nil
}

func (b *fakeBus) ClearEndpointTable(addr uint8) error {
	err := b.call("ClearEndpointTable")
	b.table = nil
	return err
}

func (b *fakeBus) ConfigDescriptor(addr, index uint8) (ConfigDescriptor, error) {
	if err := b.call("ConfigDescriptor"); err != nil {
		return ConfigDescriptor{}, err
	}
	return b.configs[index], nil
}

func (b *fakeBus) SetConfiguration(addr, value uint8) error {
	if err := b.call("SetConfiguration"); err != nil {
		return err
	}
	b.config = value
	return nil
}

func (b *fakeBus) Control(addr uint8, setup SetupPacket, data []byte) error {
	if err := b.call("Control"); err != nil {
		return err
	}
	b.controls = append(b.controls, setup)
	b.payloads = append(b.payloads, data)
	return nil
}

type sinkEvent struct {
	Step Step
	Err  error
}

type fakeSink struct {
	events []sinkEvent
}

func (s *fakeSink) NotifyFail(step Step, err error) {
	s.events = append(s.events, sinkEvent{step, err})
}

// acmConfig is a typical Arduino CDC ACM configuration: control
// interface 0 with an interrupt IN endpoint, data interface 1 with a
// bulk pair.
func acmConfig() ConfigDescriptor {
	return ConfigDescriptor{
		Value: 1,
		Interfaces: []InterfaceDescriptor{
			{
				Number: 0, Class: ClassCDCControl, SubClass: SubclassACM, Protocol: 0x01,
				Endpoints: []EndpointDescriptor{
					{Address: 0x82, Attributes: TransferInterrupt, MaxPacketSize: 8, Interval: 0xFF},
				},
			},
			{
				Number: 1, Class: ClassCDCData,
				Endpoints: []EndpointDescriptor{
					{Address: 0x04, Attributes: TransferBulk, MaxPacketSize: 64},
					{Address: 0x83, Attributes: TransferBulk, MaxPacketSize: 64},
				},
			},
		},
	}
}

func newFakeBus(vid, pid uint16) *fakeBus {
	return &fakeBus{
		desc: DeviceDescriptor{
			VendorID:          vid,
			ProductID:         pid,
			MaxPacketSize0:    8,
			NumConfigurations: 1,
		},
		configs: []ConfigDescriptor{acmConfig()},
		addr:    5,
		fail:    map[string]error{},
	}
}

func TestDriverInit(t *testing.T) {
	bus := newFakeBus(0x2341, 0x0042)
	sink := &fakeSink{}
	var onInit *Device
	async := AsyncOperFunc(func(dev *Device) error {
		onInit = dev
		return nil
	})

	d := NewDriver(bus, async, WithDiagnosticSink(sink), WithDriverLogger(zaptest.NewLogger(t)))
	dev, err := d.Init(1, 2, false)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if !dev.Ready() {
		t.Error("device should be ready after Init")
	}
	if onInit != dev {
		t.Error("OnInit was not called with the device")
	}
	if d.Device() != dev {
		t.Error("driver did not bind the device")
	}
	if len(sink.events) != 0 {
		t.Errorf("unexpected diagnostic events: %v", sink.events)
	}

	if dev.Address != 5 || dev.Parent != 1 || dev.Port != 2 {
		t.Errorf("unexpected location: addr=%d parent=%d port=%d", dev.Address, dev.Parent, dev.Port)
	}
	if dev.Policy != (ResetPolicy{115200, 50}) || !dev.Recognized {
		t.Errorf("mega classified as %+v/%v", dev.Policy, dev.Recognized)
	}
	if dev.ControlInterface != 0 || dev.DataInterface != 1 || dev.ConfigValue != 1 {
		t.Errorf("unexpected function: ctrl=%d data=%d cfg=%d", dev.ControlInterface, dev.DataInterface, dev.ConfigValue)
	}

	wantTable := []Endpoint{
		EPControl: {MaxPacketSize: 8},
		EPDataIn:  {Address: 0x83, Attributes: TransferBulk, MaxPacketSize: 64},
		EPDataOut: {Address: 0x04, Attributes: TransferBulk, MaxPacketSize: 64},
		EPNotify:  {Address: 0x82, Attributes: TransferInterrupt, MaxPacketSize: 8},
	}
	if diff := cmp.Diff(wantTable, bus.table); diff != "" {
		t.Errorf("endpoint table mismatch (-want +got):\n%s", diff)
	}
	if bus.config != 1 {
		t.Errorf("configuration %d selected, want 1", bus.config)
	}

	wantControls := []SetupPacket{
		{RequestType: 0x21, Request: 0x22, Value: 0x03, Index: 0},
		{RequestType: 0x21, Request: 0x20, Index: 0, Length: 7},
	}
	if diff := cmp.Diff(wantControls, bus.controls); diff != "" {
		t.Errorf("control requests mismatch (-want +got):\n%s", diff)
	}
	wantCoding := []byte{0x00, 0xC2, 0x01, 0x00, 0x00, 0x00, 0x08}
	if diff := cmp.Diff(wantCoding, bus.payloads[1]); diff != "" {
		t.Errorf("line coding payload mismatch (-want +got):\n%s", diff)
	}
}

func TestDriverInitTouchBoard(t *testing.T) {
	bus := newFakeBus(0x2341, 0x0036)
	d := NewDriver(bus, nil)

	dev, err := d.Init(0, 1, false)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if dev.Policy.ResetPulse != 0 {
		t.Errorf("leonardo pulse = %d, want 0", dev.Policy.ResetPulse)
	}

	// no line raise for touch boards, only the 57600 line coding
	wantControls := []SetupPacket{
		{RequestType: 0x21, Request: 0x20, Index: 0, Length: 7},
	}
	if diff := cmp.Diff(wantControls, bus.controls); diff != "" {
		t.Errorf("control requests mismatch (-want +got):\n%s", diff)
	}
	wantCoding := []byte{0x00, 0xE1, 0x00, 0x00, 0x00, 0x00, 0x08}
	if diff := cmp.Diff(wantCoding, bus.payloads[0]); diff != "" {
		t.Errorf("line coding payload mismatch (-want +got):\n%s", diff)
	}

	// ResetTarget on a touch board writes nothing
	if err := d.ResetTarget(); err != nil {
		t.Fatalf("ResetTarget failed: %v", err)
	}
	if len(bus.controls) != 1 {
		t.Errorf("ResetTarget issued requests on a touch board: %v", bus.controls[1:])
	}
}

func TestDriverInitFailures(t *testing.T) {
	boom := errors.New("transfer failed")

	tests := []struct {
		name        string
		setup       func(b *fakeBus)
		wantStep    Step
		wantErr     error
		wantRelease bool
	}{
		{
			name:     "initial device descriptor",
			setup:    func(b *fakeBus) { b.fail["DeviceDescriptor"] = boom },
			wantStep: StepGetDevDescr,
			wantErr:  boom,
		},
		{
			name:     "address allocation",
			setup:    func(b *fakeBus) { b.fail["AllocAddress"] = boom },
			wantStep: StepSetAddr,
			wantErr:  boom,
		},
		{
			name:     "address pool exhausted",
			setup:    func(b *fakeBus) { b.addr = 0 },
			wantStep: StepSetAddr,
			wantErr:  ErrOutOfAddresses,
		},
		{
			name:        "set address",
			setup:       func(b *fakeBus) { b.fail["SetAddress"] = boom },
			wantStep:    StepSetAddr,
			wantErr:     boom,
			wantRelease: true,
		},
		{
			name:        "endpoint table",
			setup:       func(b *fakeBus) { b.fail["SetEndpointTable"] = boom },
			wantStep:    StepSetDevTblEntry,
			wantErr:     boom,
			wantRelease: true,
		},
		{
			name:        "configuration descriptor",
			setup:       func(b *fakeBus) { b.fail["ConfigDescriptor"] = boom },
			wantStep:    StepGetConfDescr,
			wantErr:     boom,
			wantRelease: true,
		},
		{
			name: "no cdc function",
			setup: func(b *fakeBus) {
				b.configs = []ConfigDescriptor{{Value: 1, Interfaces: []InterfaceDescriptor{{Number: 0, Class: 0x03}}}}
			},
			wantStep:    StepGetConfDescr,
			wantErr:     ErrDeviceNotSupported,
			wantRelease: true,
		},
		{
			name: "data interface without bulk out",
			setup: func(b *fakeBus) {
				cfg := acmConfig()
				cfg.Interfaces[1].Endpoints = cfg.Interfaces[1].Endpoints[1:]
				b.configs = []ConfigDescriptor{cfg}
			},
			wantStep:    StepGetConfDescr,
			wantErr:     ErrDeviceNotSupported,
			wantRelease: true,
		},
		{
			name:        "set configuration",
			setup:       func(b *fakeBus) { b.fail["SetConfiguration"] = boom },
			wantStep:    StepSetConf,
			wantErr:     boom,
			wantRelease: true,
		},
		{
			name:        "line setup",
			setup:       func(b *fakeBus) { b.fail["Control"] = boom },
			wantStep:    StepOnInit,
			wantErr:     boom,
			wantRelease: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := newFakeBus(0x2341, 0x0043)
			tt.setup(bus)
			sink := &fakeSink{}
			d := NewDriver(bus, nil, WithDiagnosticSink(sink))

			dev, err := d.Init(0, 1, false)
			if err == nil {
				t.Fatal("expected Init to fail")
			}
			if dev != nil {
				t.Error("expected nil device on failure")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if d.Device() != nil {
				t.Error("driver still bound after failure")
			}

			if len(sink.events) != 1 {
				t.Fatalf("expected one diagnostic event, got %v", sink.events)
			}
			if sink.events[0].Step != tt.wantStep {
				t.Errorf("diagnostic step = %q, want %q", sink.events[0].Step, tt.wantStep)
			}

			if bus.allocated != 0 {
				t.Error("address not freed")
			}
			if bus.table != nil {
				t.Error("endpoint table not cleared")
			}
			released := containsCall(bus.calls, "FreeAddress")
			if released != tt.wantRelease {
				t.Errorf("FreeAddress called = %v, want %v (calls %v)", released, tt.wantRelease, bus.calls)
			}

			// driver is reusable after a failed bring-up
			bus.fail = map[string]error{}
			bus.addr = 5
			bus.configs = []ConfigDescriptor{acmConfig()}
			if _, err := d.Init(0, 1, false); err != nil {
				t.Errorf("Init after failure: %v", err)
			}
		})
	}
}

func TestDriverInitAsyncRejects(t *testing.T) {
	bus := newFakeBus(0x2341, 0x0043)
	sink := &fakeSink{}
	rejected := errors.New("not wanted")
	var seen *Device
	d := NewDriver(bus, AsyncOperFunc(func(dev *Device) error {
		seen = dev
		return rejected
	}), WithDiagnosticSink(sink))

	if _, err := d.Init(0, 1, false); !errors.Is(err, rejected) {
		t.Fatalf("expected %v, got %v", rejected, err)
	}
	if seen == nil || seen.Ready() {
		t.Error("OnInit should see the device before it is marked ready")
	}
	if len(sink.events) != 1 || sink.events[0].Step != StepOnInit {
		t.Errorf("unexpected diagnostic events: %v", sink.events)
	}
	if bus.allocated != 0 {
		t.Error("address not freed")
	}
}

// initWithTimeout runs Init and fails the test if it does not return
func initWithTimeout(t *testing.T, d *Driver) (*Device, error) {
	t.Helper()
	type result struct {
		dev *Device
		err error
	}
	done := make(chan result, 1)
	go func() {
		dev, err := d.Init(0, 1, false)
		done <- result{dev, err}
	}()
	select {
	case r := <-done:
		return r.dev, r.err
	case <-time.After(2 * time.Second):
		t.Fatal("Init did not return, OnInit blocked on the driver")
		return nil, nil
	}
}

func TestDriverInitAsyncCallsDriver(t *testing.T) {
	bus := newFakeBus(0x2341, 0x0043)
	var d *Driver
	var seen *Device
	var resetErr, initErr error
	d = NewDriver(bus, AsyncOperFunc(func(dev *Device) error {
		seen = d.Device()
		resetErr = d.ResetTarget()
		_, initErr = d.Init(0, 2, false)
		return nil
	}))

	dev, err := initWithTimeout(t, d)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if seen != nil {
		t.Error("Device should be nil until OnInit accepts the device")
	}
	if !errors.Is(resetErr, ErrNotReady) {
		t.Errorf("ResetTarget during OnInit: expected ErrNotReady, got %v", resetErr)
	}
	if !errors.Is(initErr, ErrInUse) {
		t.Errorf("Init during OnInit: expected ErrInUse, got %v", initErr)
	}
	if d.Device() != dev || !dev.Ready() {
		t.Error("device not bound after OnInit returned")
	}
}

func TestDriverInitAsyncReleases(t *testing.T) {
	bus := newFakeBus(0x2341, 0x0043)
	sink := &fakeSink{}
	var d *Driver
	d = NewDriver(bus, AsyncOperFunc(func(dev *Device) error {
		return d.Release()
	}), WithDiagnosticSink(sink))

	dev, err := initWithTimeout(t, d)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if dev != nil || d.Device() != nil {
		t.Error("released device must not be bound")
	}
	if bus.allocated != 0 || bus.table != nil {
		t.Error("bus resources not released")
	}

	frees := 0
	for _, c := range bus.calls {
		if c == "FreeAddress" {
			frees++
		}
	}
	if frees != 1 {
		t.Errorf("FreeAddress called %d times, want 1", frees)
	}
	if len(sink.events) != 1 || sink.events[0].Step != StepOnInit {
		t.Errorf("unexpected diagnostic events: %v", sink.events)
	}

	// driver is reusable
	d.async = nil
	if _, err := d.Init(0, 1, false); err != nil {
		t.Errorf("Init after release: %v", err)
	}
}

func TestDriverInitConfigScan(t *testing.T) {
	hidOnly := ConfigDescriptor{Value: 1, Interfaces: []InterfaceDescriptor{{Number: 0, Class: 0x03}}}
	controlOnly := acmConfig()
	controlOnly.Interfaces = controlOnly.Interfaces[:1]
	second := acmConfig()
	second.Value = 2

	tests := []struct {
		name       string
		configs    []ConfigDescriptor
		wantConfig uint8
		wantReads  int
		wantErr    error
	}{
		{
			name:       "function in second configuration",
			configs:    []ConfigDescriptor{hidOnly, second},
			wantConfig: 2,
			wantReads:  2,
		},
		{
			name:       "first complete configuration wins",
			configs:    []ConfigDescriptor{acmConfig(), second},
			wantConfig: 1,
			wantReads:  1,
		},
		{
			name:      "partial function stops the scan",
			configs:   []ConfigDescriptor{controlOnly, second},
			wantReads: 1,
			wantErr:   ErrDeviceNotSupported,
		},
		{
			name:      "no configuration has endpoints",
			configs:   []ConfigDescriptor{hidOnly, hidOnly},
			wantReads: 2,
			wantErr:   ErrDeviceNotSupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := newFakeBus(0x2341, 0x0043)
			bus.configs = tt.configs
			bus.desc.NumConfigurations = uint8(len(tt.configs))
			d := NewDriver(bus, nil)

			dev, err := d.Init(0, 1, false)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if err == nil && dev.ConfigValue != tt.wantConfig {
				t.Errorf("configuration %d selected, want %d", dev.ConfigValue, tt.wantConfig)
			}

			reads := 0
			for _, c := range bus.calls {
				if c == "ConfigDescriptor" {
					reads++
				}
			}
			if reads != tt.wantReads {
				t.Errorf("read %d configuration descriptors, want %d", reads, tt.wantReads)
			}
		})
	}
}

func TestDriverInitInUse(t *testing.T) {
	bus := newFakeBus(0x2341, 0x0043)
	sink := &fakeSink{}
	d := NewDriver(bus, nil, WithDiagnosticSink(sink))

	if _, err := d.Init(0, 1, false); err != nil {
		t.Fatalf("first Init failed: %v", err)
	}
	calls := len(bus.calls)

	_, err := d.Init(0, 2, false)
	if !errors.Is(err, ErrInUse) {
		t.Fatalf("expected ErrInUse, got %v", err)
	}
	if Code(err) != CodeInUse {
		t.Errorf("Code = %#x, want %#x", Code(err), CodeInUse)
	}
	if len(bus.calls) != calls {
		t.Errorf("second Init touched the bus: %v", bus.calls[calls:])
	}
	if d.Device() == nil || !d.Device().Ready() {
		t.Error("second Init disturbed the bound device")
	}
	if len(sink.events) != 0 {
		t.Errorf("ErrInUse should not be reported: %v", sink.events)
	}
}

func TestDriverRelease(t *testing.T) {
	bus := newFakeBus(0x2341, 0x0043)
	d := NewDriver(bus, nil)

	dev, err := d.Init(0, 1, false)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := d.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if dev.Ready() {
		t.Error("device still ready after Release")
	}
	if !errors.Is(d.ResetTarget(), ErrNotReady) {
		t.Error("ResetTarget on released driver should fail with ErrNotReady")
	}
	if bus.allocated != 0 || bus.table != nil {
		t.Error("bus resources not released")
	}

	// second release is a no-op
	calls := len(bus.calls)
	if err := d.Release(); err != nil {
		t.Errorf("second Release failed: %v", err)
	}
	if len(bus.calls) != calls {
		t.Errorf("second Release touched the bus: %v", bus.calls[calls:])
	}
}

func TestDriverReleaseCombinesErrors(t *testing.T) {
	bus := newFakeBus(0x2341, 0x0043)
	d := NewDriver(bus, nil)
	if _, err := d.Init(0, 1, false); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	clearErr := errors.New("clear failed")
	freeErr := errors.New("free failed")
	bus.fail["ClearEndpointTable"] = clearErr
	bus.fail["FreeAddress"] = freeErr

	err := d.Release()
	if !errors.Is(err, clearErr) || !errors.Is(err, freeErr) {
		t.Errorf("expected both release errors, got %v", err)
	}
}

func TestDriverResetTarget(t *testing.T) {
	bus := newFakeBus(0x2341, 0x0043)
	r := &recorder{}
	d := NewDriver(bus, nil, WithSessionOptions(WithClock(r)))

	if err := d.ResetTarget(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("ResetTarget before Init: expected ErrNotReady, got %v", err)
	}

	if _, err := d.Init(0, 1, false); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	before := len(bus.controls)
	if err := d.ResetTarget(); err != nil {
		t.Fatalf("ResetTarget failed: %v", err)
	}

	got := bus.controls[before:]
	want := []SetupPacket{
		{RequestType: 0x21, Request: 0x22, Value: 0x00},
		{RequestType: 0x21, Request: 0x22, Value: 0x03},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("reset requests mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]event{sleepEvent(BoardUno.Policy().PulseDuration())}, r.events); diff != "" {
		t.Errorf("pulse sleep mismatch (-want +got):\n%s", diff)
	}
}

func TestFindACMFunction(t *testing.T) {
	fn := findACMFunction(acmConfig())
	if fn.numEP != maxEndpoints {
		t.Fatalf("numEP = %d, want %d", fn.numEP, maxEndpoints)
	}

	// a second control interface must not replace the first
	cfg := acmConfig()
	cfg.Interfaces = append(cfg.Interfaces, InterfaceDescriptor{
		Number: 2, Class: ClassCDCControl, SubClass: SubclassACM,
		Endpoints: []EndpointDescriptor{{Address: 0x85, Attributes: TransferInterrupt, MaxPacketSize: 16}},
	})
	fn = findACMFunction(cfg)
	if fn.controlIface != 0 || fn.endpoints[EPNotify].Address != 0x82 {
		t.Errorf("notify endpoint replaced: iface=%d ep=%#x", fn.controlIface, fn.endpoints[EPNotify].Address)
	}

	// an out interrupt endpoint is not a notification endpoint
	cfg = acmConfig()
	cfg.Interfaces[0].Endpoints[0].Address = 0x02
	if fn := findACMFunction(cfg); fn.numEP != 3 {
		t.Errorf("numEP = %d, want 3", fn.numEP)
	}
}

func TestLogSink(t *testing.T) {
	// must not panic with or without a logger
	LogSink{}.NotifyFail(StepSetAddr, ErrOutOfAddresses)
	LogSink{Logger: zaptest.NewLogger(t)}.NotifyFail(StepSetAddr, ErrOutOfAddresses)
}

func containsCall(calls []string, name string) bool {
	for _, c := range calls {
		if c == name {
			return true
		}
	}
	return false
}
