package ardreset

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// ResetMode selects the protocol ResetPort runs
type ResetMode int

const (
	ResetAuto  ResetMode = iota // follow the board policy (ResetTarget)
	ResetPulse                  // DTR/RTS pulse
	ResetTouch                  // 1200 bps touch
)

func (m ResetMode) String() string {
	switch m {
	case ResetAuto:
		return "auto"
	case ResetPulse:
		return "pulse"
	case ResetTouch:
		return "touch"
	default:
		return fmt.Sprintf("ResetMode(%d)", int(m))
	}
}

// openPort opens the tty for ResetPort, replaced in tests
var openPort = Open

// ResetPort resets the board behind a tty. The board is identified
// from sysfs and classified; ports without USB identity fall back to
// the default policy. A zero pulse in ResetPulse mode uses the policy
// pulse, or the default policy pulse for touch boards. The port is
// closed before returning.
func ResetPort(path string, mode ResetMode, pulse time.Duration, opts ...SessionOption) (s *Session, err error) {
	info, err := GetPortInfo(path)
	if err != nil {
		return nil, err
	}
	vid, pid, _ := info.IDs()

	// HUPCL stays off so closing the port does not pulse the lines again
	p, err := openPort(path, WithHangupOnClose(false))
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, p.Close())
	}()

	s = NewSession(p, vid, pid, opts...)

	switch mode {
	case ResetAuto:
		err = s.ResetTarget()
	case ResetPulse:
		if pulse <= 0 {
			pulse = s.Policy.PulseDuration()
		}
		if pulse <= 0 {
			pulse = DefaultPolicy.PulseDuration()
		}
		err = s.ResetDTRRTS(pulse)
	case ResetTouch:
		err = s.Touch1200bps()
	default:
		err = fmt.Errorf("%w: reset mode %d", ErrInvalidConfig, int(mode))
	}
	return s, err
}
