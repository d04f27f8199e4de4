package iso7816

import (
	"fmt"

	"github.com/gregLibert/emv-reader/pkg/bits"
)

// CLA byte (ISO/IEC 7816-4 §5.4.1):
//
//	bit 8     proprietary class (EMV uses 80 for GPO and GET DATA)
//	bit 7     0 = first interindustry (channels 0-3), 1 = further (channels 4-19)
//	bit 5     command chaining
//	bits 4-3  secure messaging, first interindustry only
//	bit 6     secure messaging, further interindustry only
//	bits 2-1  channel (first) / bits 4-1 channel minus 4 (further)

// SecureMessaging is the secure messaging indication carried by CLA.
type SecureMessaging int

const (
	SMNone SecureMessaging = iota
	SMProprietary
	SMHeaderNoProc
	SMHeaderAuth
)

func (sm SecureMessaging) String() string {
	switch sm {
	case SMNone:
		return "None"
	case SMProprietary:
		return "Proprietary"
	case SMHeaderNoProc:
		return "ISO (Header not processed)"
	case SMHeaderAuth:
		return "ISO (Header authenticated)"
	default:
		return "Unknown"
	}
}

// Class is a raw CLA byte.
type Class byte

const (
	ClassInterindustry Class = 0x00
	ClassProprietary   Class = 0x80
)

// NewInterindustryClass encodes an interindustry CLA, choosing the first or
// further range from the channel number.
func NewInterindustryClass(chained bool, sm SecureMessaging, channel uint8) (Class, error) {
	if channel > 19 {
		return 0, fmt.Errorf("channel %d out of range (max 19)", channel)
	}

	var b byte
	if chained {
		b = bits.Set(b, 5)
	}

	if channel <= 3 {
		return Class(b | byte(sm)<<2 | channel), nil
	}

	if sm == SMProprietary || sm == SMHeaderAuth {
		return 0, fmt.Errorf("secure messaging %s not available on channel %d", sm, channel)
	}
	b = bits.Set(b, 7)
	if sm != SMNone {
		b = bits.Set(b, 6)
	}
	return Class(b | (channel - 4)), nil
}

// IsProprietary reports whether bit 8 is set.
func (c Class) IsProprietary() bool {
	return bits.IsSet(byte(c), 8)
}

func (c Class) further() bool {
	return bits.IsSet(byte(c), 7)
}

// IsChained reports the command chaining bit of an interindustry class.
func (c Class) IsChained() bool {
	return !c.IsProprietary() && bits.IsSet(byte(c), 5)
}

// Channel returns the logical channel number (0-19).
func (c Class) Channel() uint8 {
	switch {
	case c.IsProprietary():
		return 0
	case c.further():
		return bits.GetRange(byte(c), 4, 1) + 4
	default:
		return bits.GetRange(byte(c), 2, 1)
	}
}

// SecureMessaging decodes the secure messaging indication.
func (c Class) SecureMessaging() SecureMessaging {
	switch {
	case c.IsProprietary():
		return SMNone
	case c.further():
		if bits.IsSet(byte(c), 6) {
			return SMHeaderNoProc
		}
		return SMNone
	default:
		return SecureMessaging(bits.GetRange(byte(c), 4, 3))
	}
}

// ForGetResponse returns the class to use for GET RESPONSE after a command
// sent with c: same channel, no chaining, interindustry.
func (c Class) ForGetResponse() Class {
	if c.IsProprietary() {
		return ClassInterindustry
	}
	return c &^ Class(bits.Bit(5))
}

func (c Class) String() string {
	if c.IsProprietary() {
		return fmt.Sprintf("CLA %02X (proprietary)", byte(c))
	}
	chaining := ""
	if c.IsChained() {
		chaining = ", chained"
	}
	return fmt.Sprintf("CLA %02X (channel %d, SM %s%s)", byte(c), c.Channel(), c.SecureMessaging(), chaining)
}
