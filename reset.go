package ardreset

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// touchStepDelay separates the steps of the 1200 bps touch
const touchStepDelay = 4 * time.Millisecond

// Clock provides the blocking delays used between reset steps.
// clock.Clock from github.com/benbjohnson/clock satisfies it.
type Clock interface {
	Sleep(d time.Duration)
}

// Session is the runtime state of one attached board: its identity,
// the policy it resolved to and the control capability used to reset it.
type Session struct {
	VendorID   uint16
	ProductID  uint16
	Policy     ResetPolicy
	Recognized bool

	ctrl    Controller
	clock   Clock
	catalog *Catalog
	logger  *zap.Logger
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithCatalog classifies against c instead of the built-in catalog
func WithCatalog(c *Catalog) SessionOption {
	return func(s *Session) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithClock replaces the wall clock used for reset delays
func WithClock(c Clock) SessionOption {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger used for reset tracing
func WithLogger(l *zap.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSession classifies the device and binds it to ctrl
func NewSession(ctrl Controller, vendorID, productID uint16, opts ...SessionOption) *Session {
	s := &Session{
		VendorID:  vendorID,
		ProductID: productID,
		ctrl:      ctrl,
		clock:     clock.New(),
		catalog:   DefaultCatalog(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Policy, s.Recognized = s.catalog.Classify(vendorID, productID)
	s.logger.Debug("classified device",
		zap.String("vid", hex16(vendorID)),
		zap.String("pid", hex16(productID)),
		zap.Uint32("baud", s.Policy.BaudRate),
		zap.Uint16("resetMs", s.Policy.ResetPulse),
		zap.Bool("recognized", s.Recognized))
	return s
}

// Controller returns the control capability the session drives
func (s *Session) Controller() Controller {
	return s.ctrl
}

// ResetDTRRTS pulses DTR and RTS low for the given duration, then
// raises both. The first failing write aborts the sequence.
func (s *Session) ResetDTRRTS(pulse time.Duration) error {
	if err := s.setLines(0); err != nil {
		return err
	}
	s.clock.Sleep(pulse)
	return s.setLines(LineDTR | LineRTS)
}

// Touch1200bps performs the 1200 bps touch: assert both lines, switch
// the line coding to 1200 8N1, then drop DTR and finally RTS. Any
// failing step aborts with that step's error; earlier steps are not undone.
func (s *Session) Touch1200bps() error {
	if err := s.setLines(LineDTR | LineRTS); err != nil {
		return err
	}
	s.clock.Sleep(touchStepDelay)

	if err := s.setLineCoding(LineCoding8N1(TouchBaudRate)); err != nil {
		return err
	}
	s.clock.Sleep(touchStepDelay)

	if err := s.setLines(LineRTS); err != nil {
		return err
	}
	s.clock.Sleep(touchStepDelay)

	return s.setLines(0)
}

// ResetTarget resets the board according to its policy. Boards that
// need the 1200 bps touch are left alone; call Touch1200bps explicitly
// for them.
func (s *Session) ResetTarget() error {
	if s.Policy.ResetPulse > 0 {
		return s.ResetDTRRTS(s.Policy.PulseDuration())
	}
	s.logger.Debug("reset skipped, board uses 1200 bps touch",
		zap.String("vid", hex16(s.VendorID)),
		zap.String("pid", hex16(s.ProductID)))
	return nil
}

// configure applies the bring-up line state: DTR and RTS are raised
// first for pulse-reset boards, then the line coding is set to the
// policy baud rate.
func (s *Session) configure() error {
	if s.Policy.ResetPulse > 0 {
		if err := s.setLines(LineDTR | LineRTS); err != nil {
			return err
		}
	}
	return s.setLineCoding(LineCoding8N1(s.Policy.BaudRate))
}

func (s *Session) setLines(lines ControlLines) error {
	if err := s.ctrl.SetControlLineState(lines); err != nil {
		s.logger.Warn("control line write failed", zap.Stringer("lines", lines), zap.Error(err))
		return stepErr(StepSetControlLines, err)
	}
	return nil
}

func (s *Session) setLineCoding(lc LineCoding) error {
	if err := s.ctrl.SetLineCoding(lc); err != nil {
		s.logger.Warn("line coding write failed", zap.Uint32("baud", lc.BaudRate), zap.Error(err))
		return stepErr(StepSetLineCoding, err)
	}
	return nil
}
