package ardreset

import (
	"encoding/binary"
	"strings"
)

// ControlLines is the wValue bitmask of a CDC SET_CONTROL_LINE_STATE request
type ControlLines uint16

const (
	LineDTR ControlLines = 1 << 0 // Data Terminal Ready
	LineRTS ControlLines = 1 << 1 // Request To Send
)

func (l ControlLines) DTR() bool { return l&LineDTR != 0 }
func (l ControlLines) RTS() bool { return l&LineRTS != 0 }

func (l ControlLines) String() string {
	var parts []string
	if l.DTR() {
		parts = append(parts, "DTR")
	} else {
		parts = append(parts, "dtr")
	}
	if l.RTS() {
		parts = append(parts, "RTS")
	} else {
		parts = append(parts, "rts")
	}
	return strings.Join(parts, "|")
}

// CDC stop bit encodings (bCharFormat)
const (
	StopBits1   uint8 = 0
	StopBits1_5 uint8 = 1
	StopBits2   uint8 = 2
)

// CDC parity encodings (bParityType)
const (
	CDCParityNone  uint8 = 0
	CDCParityOdd   uint8 = 1
	CDCParityEven  uint8 = 2
	CDCParityMark  uint8 = 3
	CDCParitySpace uint8 = 4
)

// LineCodingSize is the wire size of a CDC line coding structure
const LineCodingSize = 7

// TouchBaudRate is the magic rate that makes 1200 bps touch bootloaders reset
const TouchBaudRate = 1200

// LineCoding is the CDC ACM line coding (baud rate and character framing)
type LineCoding struct {
	BaudRate uint32
	StopBits uint8
	Parity   uint8
	DataBits uint8
}

// LineCoding8N1 returns an 8 data bit, no parity, 1 stop bit line coding
func LineCoding8N1(baud uint32) LineCoding {
	return LineCoding{
		BaudRate: baud,
		StopBits: StopBits1,
		Parity:   CDCParityNone,
		DataBits: 8,
	}
}

// MarshalBinary encodes the line coding as sent in SET_LINE_CODING
func (lc LineCoding) MarshalBinary() ([]byte, error) {
	buf := make([]byte, LineCodingSize)
	binary.LittleEndian.PutUint32(buf[0:4], lc.BaudRate)
	buf[4] = lc.StopBits
	buf[5] = lc.Parity
	buf[6] = lc.DataBits
	return buf, nil
}

// Controller is the CDC control capability a reset sequence drives.
// Both the tty Port and the USB-level ACM implement it.
type Controller interface {
	SetControlLineState(lines ControlLines) error
	SetLineCoding(lc LineCoding) error
}
