package ardreset

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Port is an open tty of a USB serial board. The kernel cdc_acm driver
// turns modem line changes into SET_CONTROL_LINE_STATE and termios
// changes into SET_LINE_CODING, so a Port is a Controller.
type Port interface {
	Controller
	Close() error
	Path() string
	Config() Config
	GetModemSignals() (ModemSignals, error)
	SetDTR(state bool) error
	SetRTS(state bool) error
	Drain() error
	FlushInput() error
}

// port is the concrete implementation of the Port interface
type port struct {
	mu     sync.RWMutex
	fd     int
	path   string
	config Config
	closed bool
}

// Ensure port implements Port interface at compile time
var _ Port = (*port)(nil)

// ModemSignals represents modem control signal states
type ModemSignals struct {
	CTS bool // Clear To Send
	DSR bool // Data Set Ready
	RI  bool // Ring Indicator
	DCD bool // Data Carrier Detect
	RTS bool // Request To Send
	DTR bool // Data Terminal Ready
}

// Lines returns the DTR/RTS part of the signals as ControlLines
func (s ModemSignals) Lines() ControlLines {
	var l ControlLines
	if s.DTR {
		l |= LineDTR
	}
	if s.RTS {
		l |= LineRTS
	}
	return l
}

// getBaudRate converts an integer baud rate to the unix constant
func getBaudRate(rate int) (uint32, error) {
	switch rate {
	case 300:
		return unix.B300, nil
	case 600:
		return unix.B600, nil
	case 1200:
		return unix.B1200, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 500000:
		return unix.B500000, nil
	case 921600:
		return unix.B921600, nil
	case 1000000:
		return unix.B1000000, nil
	case 2000000:
		return unix.B2000000, nil
	default:
		return 0, ErrInvalidBaudRate
	}
}

// linesToTIOCM replaces the DTR/RTS bits of status with lines
func linesToTIOCM(status int, lines ControlLines) int {
	status &^= unix.TIOCM_DTR | unix.TIOCM_RTS
	if lines.DTR() {
		status |= unix.TIOCM_DTR
	}
	if lines.RTS() {
		status |= unix.TIOCM_RTS
	}
	return status
}

// signalsFromTIOCM decodes a TIOCMGET status word
func signalsFromTIOCM(status int) ModemSignals {
	return ModemSignals{
		CTS: status&unix.TIOCM_CTS != 0,
		DSR: status&unix.TIOCM_DSR != 0,
		RI:  status&unix.TIOCM_RI != 0,
		DCD: status&unix.TIOCM_CAR != 0,
		RTS: status&unix.TIOCM_RTS != 0,
		DTR: status&unix.TIOCM_DTR != 0,
	}
}

// getModemStatus retrieves modem control signals using unix package
func getModemStatus(fd int) (int, error) {
	return unix.IoctlGetInt(fd, unix.TIOCMGET)
}

// setLines writes DTR and RTS in one TIOCMSET so both change together
func setLines(fd int, lines ControlLines) error {
	status, err := getModemStatus(fd)
	if err != nil {
		return err
	}
	return unix.IoctlSetPointerInt(fd, unix.TIOCMSET, linesToTIOCM(status, lines))
}

// setBit sets or clears one modem bit
func setBit(fd int, bit int, state bool) error {
	if state {
		return unix.IoctlSetPointerInt(fd, unix.TIOCMBIS, bit)
	}
	return unix.IoctlSetPointerInt(fd, unix.TIOCMBIC, bit)
}

// Open opens a serial port with the given device path and options
func Open(device string, opts ...PortOption) (Port, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, err
		}
	}

	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		if err == unix.ENOENT {
			return nil, fmt.Errorf("failed to open %s: %w", device, ErrDeviceNotFound)
		}
		return nil, fmt.Errorf("failed to open %s: %w", device, err)
	}

	if err := configurePort(fd, config); err != nil {
		unix.Close(fd)
		return nil, err
	}

	if config.InitialRTS != nil {
		if err := setBit(fd, unix.TIOCM_RTS, *config.InitialRTS); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("failed to set initial RTS: %w", err)
		}
	}
	if config.InitialDTR != nil {
		if err := setBit(fd, unix.TIOCM_DTR, *config.InitialDTR); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("failed to set initial DTR: %w", err)
		}
	}

	return &port{
		fd:     fd,
		path:   device,
		config: config,
	}, nil
}

// configurePort puts the tty in raw mode with the configured framing
func configurePort(fd int, config Config) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("failed to get termios: %w", err)
	}

	baudRate, err := getBaudRate(config.BaudRate)
	if err != nil {
		return err
	}

	termios.Cflag = unix.CREAD | unix.CLOCAL
	termios.Iflag = 0
	termios.Oflag = 0
	termios.Lflag = 0
	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = 0

	termios.Cflag = (termios.Cflag &^ unix.CBAUD) | baudRate
	termios.Ispeed = baudRate
	termios.Ospeed = baudRate

	switch config.DataBits {
	case 5:
		termios.Cflag |= unix.CS5
	case 6:
		termios.Cflag |= unix.CS6
	case 7:
		termios.Cflag |= unix.CS7
	default:
		termios.Cflag |= unix.CS8
	}

	if config.StopBits == 2 {
		termios.Cflag |= unix.CSTOPB
	}

	switch config.Parity {
	case ParityOdd:
		termios.Cflag |= unix.PARENB | unix.PARODD
	case ParityEven:
		termios.Cflag |= unix.PARENB
	case ParityMark:
		termios.Cflag |= unix.PARENB | unix.PARODD | unix.CMSPAR
	case ParitySpace:
		termios.Cflag |= unix.PARENB | unix.CMSPAR
	}

	if config.HangupOnClose {
		termios.Cflag |= unix.HUPCL
	}

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("failed to set termios: %w", err)
	}
	return nil
}

// Path returns the device path the port was opened with
func (p *port) Path() string {
	return p.path
}

// Config returns the current port configuration
func (p *port) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config
}

// Close closes the serial port
func (p *port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}

	err := unix.Close(p.fd)
	p.closed = true
	return err
}

// SetControlLineState sets DTR and RTS together
func (p *port) SetControlLineState(lines ControlLines) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	return setLines(p.fd, lines)
}

// SetLineCoding reprograms baud rate and framing
func (p *port) SetLineCoding(lc LineCoding) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}

	config := p.config
	if err := config.applyLineCoding(lc); err != nil {
		return err
	}
	if err := configurePort(p.fd, config); err != nil {
		return err
	}
	p.config = config
	return nil
}

// GetModemSignals returns current state of all modem control signals
func (p *port) GetModemSignals() (ModemSignals, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ModemSignals{}, ErrPortClosed
	}

	status, err := getModemStatus(p.fd)
	if err != nil {
		return ModemSignals{}, err
	}
	return signalsFromTIOCM(status), nil
}

// SetDTR sets the DTR signal state
func (p *port) SetDTR(state bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	return setBit(p.fd, unix.TIOCM_DTR, state)
}

// SetRTS sets the RTS signal state
func (p *port) SetRTS(state bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	return setBit(p.fd, unix.TIOCM_RTS, state)
}

// Drain waits until all output written to the port has been transmitted
func (p *port) Drain() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}

	return unix.IoctlSetInt(p.fd, unix.TCSBRK, 1)
}

// FlushInput discards any unread input data
func (p *port) FlushInput() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}

	return unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCIFLUSH)
}
