package iso7816

import (
	"fmt"
)

// Command APDU layout (ISO/IEC 7816-3 cases):
//
//	case 1: CLA INS P1 P2
//	case 2: CLA INS P1 P2 Le
//	case 3: CLA INS P1 P2 Lc Data
//	case 4: CLA INS P1 P2 Lc Data Le
//
// Lc and Le use one byte each (short form) unless Nc > 255 or Ne > 256, in
// which case both switch to the extended form: Lc becomes 00 followed by two
// bytes, and Le takes two bytes (three with a leading 00 when Lc is absent).
// A zero Le byte means the maximum: 256 short, 65536 extended.

const (
	MaxShortLc    = 255
	MaxShortLe    = 256
	MaxExtendedLc = 65535
	MaxExtendedLe = 65536
)

// CommandAPDU is a command sent to the card. Ne is the expected response
// length; 0 means no Le field.
type CommandAPDU struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte
	Ne          int
}

// NewCommandAPDU creates a command.
func NewCommandAPDU(cla Class, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{Class: cla, Instruction: ins, P1: p1, P2: p2, Data: data, Ne: ne}
}

// Bytes encodes the command, picking short or extended lengths as needed.
func (c *CommandAPDU) Bytes() ([]byte, error) {
	nc, ne := len(c.Data), c.Ne
	if nc > MaxExtendedLc {
		return nil, fmt.Errorf("command data too long: %d bytes", nc)
	}
	if ne < 0 || ne > MaxExtendedLe {
		return nil, fmt.Errorf("invalid Ne %d", ne)
	}
	if !c.Instruction.IsValid() {
		return nil, fmt.Errorf("invalid INS 0x%02X", byte(c.Instruction))
	}

	out := make([]byte, 0, 4+3+nc+3)
	out = append(out, byte(c.Class), byte(c.Instruction), c.P1, c.P2)

	extended := nc > MaxShortLc || ne > MaxShortLe

	if nc > 0 {
		if extended {
			out = append(out, 0x00, byte(nc>>8), byte(nc))
		} else {
			out = append(out, byte(nc))
		}
		out = append(out, c.Data...)
	}

	if ne > 0 {
		switch {
		case !extended:
			// 256 wraps to 00
			out = append(out, byte(ne))
		case nc == 0:
			out = append(out, 0x00, byte(ne>>8), byte(ne))
		default:
			out = append(out, byte(ne>>8), byte(ne))
		}
	}

	return out, nil
}

func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s | P1: %02X, P2: %02X | Lc: %d | Le: %d",
		c.Instruction, c.P1, c.P2, len(c.Data), c.Ne)
}

// ResponseAPDU is the card's reply: data field and trailer.
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// ParseResponseAPDU splits raw bytes into data and status word.
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("response too short: length %d", len(raw))
	}

	n := len(raw) - 2
	return &ResponseAPDU{
		Data:   raw[:n:n],
		Status: NewStatusWord(raw[n], raw[n+1]),
	}, nil
}

func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}
