package ardreset

// Parity represents the parity mode
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

// Config holds the configuration for a serial port
type Config struct {
	BaudRate      int
	DataBits      int
	StopBits      int
	Parity        Parity
	InitialDTR    *bool // nil leaves DTR as the driver set it on open
	InitialRTS    *bool
	HangupOnClose bool // HUPCL: drop DTR/RTS when the port is closed
}

// PortOption is a functional option for configuring a serial port
type PortOption func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaudRate:      115200,
		DataBits:      8,
		StopBits:      1,
		Parity:        ParityNone,
		HangupOnClose: true,
	}
}

// LineCoding returns the CDC line coding equivalent of the config
func (c Config) LineCoding() LineCoding {
	lc := LineCoding{
		BaudRate: uint32(c.BaudRate),
		DataBits: uint8(c.DataBits),
		StopBits: StopBits1,
	}
	if c.StopBits == 2 {
		lc.StopBits = StopBits2
	}
	switch c.Parity {
	case ParityOdd:
		lc.Parity = CDCParityOdd
	case ParityEven:
		lc.Parity = CDCParityEven
	case ParityMark:
		lc.Parity = CDCParityMark
	case ParitySpace:
		lc.Parity = CDCParitySpace
	default:
		lc.Parity = CDCParityNone
	}
	return lc
}

// applyLineCoding updates the framing fields of c from a CDC line
// coding. c is left unchanged on error.
func (c *Config) applyLineCoding(lc LineCoding) error {
	if _, err := getBaudRate(int(lc.BaudRate)); err != nil {
		return err
	}
	if lc.DataBits < 5 || lc.DataBits > 8 {
		return ErrInvalidConfig
	}

	next := *c
	switch lc.StopBits {
	case StopBits1:
		next.StopBits = 1
	case StopBits2:
		next.StopBits = 2
	default:
		return ErrInvalidConfig
	}
	switch lc.Parity {
	case CDCParityNone:
		next.Parity = ParityNone
	case CDCParityOdd:
		next.Parity = ParityOdd
	case CDCParityEven:
		next.Parity = ParityEven
	case CDCParityMark:
		next.Parity = ParityMark
	case CDCParitySpace:
		next.Parity = ParitySpace
	default:
		return ErrInvalidConfig
	}
	next.BaudRate = int(lc.BaudRate)
	next.DataBits = int(lc.DataBits)
	*c = next
	return nil
}

// WithBaudRate sets the baud rate
func WithBaudRate(rate int) PortOption {
	return func(c *Config) error {
		if _, err := getBaudRate(rate); err != nil {
			return err
		}
		c.BaudRate = rate
		return nil
	}
}

// WithDataBits sets the number of data bits (5, 6, 7, or 8)
func WithDataBits(bits int) PortOption {
	return func(c *Config) error {
		if bits < 5 || bits > 8 {
			return ErrInvalidConfig
		}
		c.DataBits = bits
		return nil
	}
}

// WithStopBits sets the number of stop bits (1 or 2)
func WithStopBits(bits int) PortOption {
	return func(c *Config) error {
		if bits != 1 && bits != 2 {
			return ErrInvalidConfig
		}
		c.StopBits = bits
		return nil
	}
}

// WithParity sets the parity mode
func WithParity(parity Parity) PortOption {
	return func(c *Config) error {
		if parity < ParityNone || parity > ParitySpace {
			return ErrInvalidConfig
		}
		c.Parity = parity
		return nil
	}
}

// WithLineCoding sets baud rate and framing from a CDC line coding
func WithLineCoding(lc LineCoding) PortOption {
	return func(c *Config) error {
		return c.applyLineCoding(lc)
	}
}

// WithInitialDTR sets the DTR state applied right after open
func WithInitialDTR(state bool) PortOption {
	return func(c *Config) error {
		c.InitialDTR = &state
		return nil
	}
}

// WithInitialRTS sets the RTS state applied right after open
func WithInitialRTS(state bool) PortOption {
	return func(c *Config) error {
		c.InitialRTS = &state
		return nil
	}
}

// WithHangupOnClose controls whether closing the port drops DTR and RTS
func WithHangupOnClose(enabled bool) PortOption {
	return func(c *Config) error {
		c.HangupOnClose = enabled
		return nil
	}
}
