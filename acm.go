package ardreset

// USB request type and CDC class request codes used on the control pipe
const (
	RequestTypeClassInterfaceOut uint8 = 0x21

	RequestSetLineCoding       uint8 = 0x20
	RequestSetControlLineState uint8 = 0x22
)

// ACM drives the CDC ACM class requests of a device through a Bus
// control pipe. It implements Controller.
type ACM struct {
	bus     Bus
	address uint8
	iface   uint8
}

var _ Controller = (*ACM)(nil)

// NewACM returns a Controller for the CDC control interface iface of
// the device at address addr
func NewACM(bus Bus, addr, iface uint8) *ACM {
	return &ACM{bus: bus, address: addr, iface: iface}
}

// SetControlLineState issues SET_CONTROL_LINE_STATE with lines as wValue
func (a *ACM) SetControlLineState(lines ControlLines) error {
	setup := SetupPacket{
		RequestType: RequestTypeClassInterfaceOut,
		Request:     RequestSetControlLineState,
		Value:       uint16(lines),
		Index:       uint16(a.iface),
	}
	return a.bus.Control(a.address, setup, nil)
}

// SetLineCoding issues SET_LINE_CODING with the 7-byte line coding payload
func (a *ACM) SetLineCoding(lc LineCoding) error {
	data, _ := lc.MarshalBinary()
	setup := SetupPacket{
		RequestType: RequestTypeClassInterfaceOut,
		Request:     RequestSetLineCoding,
		Index:       uint16(a.iface),
		Length:      LineCodingSize,
	}
	return a.bus.Control(a.address, setup, data)
}
