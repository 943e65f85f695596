package ardreset

import (
	"errors"
	"fmt"
)

// Predefined error types for robust error handling
var (
	ErrDeviceNotFound  = errors.New("serial device not found")
	ErrInvalidBaudRate = errors.New("invalid baud rate")
	ErrInvalidConfig   = errors.New("invalid serial configuration")
	ErrPortClosed      = errors.New("serial port is closed")

	// Attach-time errors
	ErrInUse              = errors.New("driver instance already bound to a device")
	ErrAddressNotFound    = errors.New("device address not found in pool")
	ErrOutOfAddresses     = errors.New("out of USB address space")
	ErrDeviceNotSupported = errors.New("device does not expose a CDC ACM function")
	ErrNotReady           = errors.New("device not ready")

	// USB-related errors
	ErrUSBInfoNotAvailable = errors.New("USB device information not available")
	ErrUnknownBoard        = errors.New("unknown board name")
)

// Numeric result codes shared with the USB host layer. Zero is success.
const (
	CodeOK              uint8 = 0x00
	CodeNotSupported    uint8 = 0xD0
	CodeOutOfAddresses  uint8 = 0xD1
	CodeInUse           uint8 = 0xD2
	CodeAddressNotFound uint8 = 0xD6
	CodeEPInfoNull      uint8 = 0xD7
	CodeUnknown         uint8 = 0xFF
)

// TransportError carries a raw result code reported by a Bus implementation.
type TransportError struct {
	Code uint8
}

func (e TransportError) Error() string {
	return fmt.Sprintf("usb transport error 0x%02X", e.Code)
}

// Step names the operation that failed during bring-up or a reset sequence.
type Step string

const (
	StepGetDevDescr     Step = "device descriptor fetch"
	StepSetAddr         Step = "set address"
	StepSetDevTblEntry  Step = "endpoint table registration"
	StepGetConfDescr    Step = "configuration descriptor fetch"
	StepSetConf         Step = "set configuration"
	StepOnInit          Step = "init"
	StepSetControlLines Step = "SetControlLineState"
	StepSetLineCoding   Step = "SetLineCoding"
)

// StepError reports which step of a sequence failed and why.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepErr(step Step, err error) error {
	return &StepError{Step: step, Err: err}
}

// Code maps err onto the numeric code space used by USB host stacks.
// A nil error yields CodeOK.
func Code(err error) uint8 {
	var te TransportError
	switch {
	case err == nil:
		return CodeOK
	case errors.As(err, &te):
		return te.Code
	case errors.Is(err, ErrDeviceNotSupported):
		return CodeNotSupported
	case errors.Is(err, ErrOutOfAddresses):
		return CodeOutOfAddresses
	case errors.Is(err, ErrInUse):
		return CodeInUse
	case errors.Is(err, ErrAddressNotFound):
		return CodeAddressNotFound
	default:
		return CodeUnknown
	}
}
