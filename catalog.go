package ardreset

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BoardAction selects the reset policy of a board family
type BoardAction int

const (
	BoardUno BoardAction = iota
	BoardMega
	BoardLeonardo
	BoardNanoEvery
)

func (a BoardAction) String() string {
	switch a {
	case BoardUno:
		return "uno"
	case BoardMega:
		return "mega"
	case BoardLeonardo:
		return "leonardo"
	case BoardNanoEvery:
		return "nano-every"
	default:
		return fmt.Sprintf("BoardAction(%d)", int(a))
	}
}

// ParseBoardAction converts a board family name to its BoardAction
func ParseBoardAction(name string) (BoardAction, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "uno", "328p":
		return BoardUno, nil
	case "mega", "mega2560":
		return BoardMega, nil
	case "leonardo", "leo", "32u4":
		return BoardLeonardo, nil
	case "nano-every", "nanoevery", "4809":
		return BoardNanoEvery, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownBoard, name)
	}
}

// ResetPolicy describes how a board family is brought up and reset.
// A zero ResetPulse means the board is reset with the 1200 bps touch
// instead of a DTR/RTS pulse.
type ResetPolicy struct {
	BaudRate   uint32
	ResetPulse uint16 // milliseconds
}

// PulseDuration returns the DTR/RTS low time as a time.Duration
func (p ResetPolicy) PulseDuration() time.Duration {
	return time.Duration(p.ResetPulse) * time.Millisecond
}

// UsesTouch reports whether the policy calls for the 1200 bps touch
func (p ResetPolicy) UsesTouch() bool {
	return p.ResetPulse == 0
}

// DefaultPolicy is applied to devices that are not in the catalog.
// Unknown CDC devices are treated as Uno compatible.
var DefaultPolicy = ResetPolicy{BaudRate: 115200, ResetPulse: 250}

var policies = [...]ResetPolicy{
	BoardUno:       {BaudRate: 115200, ResetPulse: 250},
	BoardMega:      {BaudRate: 115200, ResetPulse: 50},
	BoardLeonardo:  {BaudRate: 57600, ResetPulse: 0},
	BoardNanoEvery: {BaudRate: 115200, ResetPulse: 0},
}

// Policy returns the reset policy of the board family
func (a BoardAction) Policy() ResetPolicy {
	if a < 0 || int(a) >= len(policies) {
		return DefaultPolicy
	}
	return policies[a]
}

// BoardEntry binds a USB vendor/product pair to a board family
type BoardEntry struct {
	VendorID  uint16
	ProductID uint16
	Action    BoardAction
}

func (e BoardEntry) String() string {
	return fmt.Sprintf("%04x:%04x %s", e.VendorID, e.ProductID, e.Action)
}

// Built-in board table, taken from the Arduino IDE boards.txt
var builtinBoards = []BoardEntry{
	{0x2341, 0x0043, BoardUno},
	{0x2341, 0x0001, BoardUno},
	{0x2A03, 0x0043, BoardUno},
	{0x2341, 0x0243, BoardUno},

	{0x2341, 0x0010, BoardMega},
	{0x2341, 0x0042, BoardMega},
	{0x2A03, 0x0010, BoardMega},
	{0x2A03, 0x0042, BoardMega},
	{0x2341, 0x0210, BoardMega},
	{0x2341, 0x0242, BoardMega},

	{0x2341, 0x0036, BoardLeonardo},
	{0x2341, 0x8036, BoardLeonardo},
	{0x2A03, 0x0036, BoardLeonardo},
	{0x2A03, 0x8036, BoardLeonardo},

	{0x2341, 0x0058, BoardNanoEvery},
}

// Catalog is an ordered, read-only board table. The first matching
// entry wins. A Catalog is safe for concurrent use.
type Catalog struct {
	entries []BoardEntry
}

var defaultCatalog = NewCatalog(builtinBoards...)

// DefaultCatalog returns the built-in board catalog
func DefaultCatalog() *Catalog {
	return defaultCatalog
}

// NewCatalog creates a catalog from the given entries, in order
func NewCatalog(entries ...BoardEntry) *Catalog {
	c := &Catalog{entries: make([]BoardEntry, len(entries))}
	copy(c.entries, entries)
	return c
}

// With returns a new catalog with extra entries appended after the
// receiver's entries. The receiver is not modified.
func (c *Catalog) With(extra ...BoardEntry) *Catalog {
	merged := make([]BoardEntry, 0, len(c.entries)+len(extra))
	merged = append(merged, c.entries...)
	merged = append(merged, extra...)
	return &Catalog{entries: merged}
}

// Len returns the number of entries
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Entries returns a copy of the catalog entries
func (c *Catalog) Entries() []BoardEntry {
	out := make([]BoardEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Lookup returns the first entry matching vendorID and productID exactly
func (c *Catalog) Lookup(vendorID, productID uint16) (BoardEntry, bool) {
	for _, e := range c.entries {
		if e.VendorID == vendorID && e.ProductID == productID {
			return e, true
		}
	}
	return BoardEntry{}, false
}

// Classify resolves the reset policy for a device. When no entry
// matches it returns DefaultPolicy and false; this is not an error.
func (c *Catalog) Classify(vendorID, productID uint16) (ResetPolicy, bool) {
	if e, ok := c.Lookup(vendorID, productID); ok {
		return e.Action.Policy(), true
	}
	return DefaultPolicy, false
}

// ParseUSBID parses a vendor or product ID written as hex, with or
// without a 0x prefix, as sysfs and lsusb print them.
func ParseUSBID(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid USB ID %q: %w", s, err)
	}
	return uint16(v), nil
}

func hex16(v uint16) string {
	return fmt.Sprintf("%04x", v)
}
