package tlv

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gregLibert/emv-reader/pkg/bits"
)

// BER-TLV ENCODING (ISO/IEC 8825-1, as profiled by EMV Book 3 Annex B):
//
// TAG FIELD:
//   - Bits 8-7 of the first byte: class (universal, application, context, private).
//   - Bit 6 of the first byte: 0 = primitive, 1 = constructed.
//   - Bits 5-1 all set (0x1F): the tag continues on the following bytes, each
//     subsequent byte having bit 8 set while more bytes follow.
//
// LENGTH FIELD:
//   - Short form: one byte, 0x00-0x7F.
//   - Long form: 0x81-0x84, the low 7 bits giving the number of length bytes
//     that follow (big-endian).
//
// PADDING:
// Card responses may carry 0x00 or 0xFF filler before, between or after data
// objects. Decoding stops cleanly when a filler byte appears in tag position.

const (
	maxTagBytes    = 4
	maxLengthBytes = 4
	maxDepth       = 32
)

// Tag is a BER-TLV tag stored big-endian, e.g. 0x9F38 for the PDOL.
type Tag uint32

// Common EMV tags used across the module.
const (
	TagApplicationTemplate      Tag = 0x61
	TagFCITemplate              Tag = 0x6F
	TagRecordTemplate           Tag = 0x70
	TagResponseFormat2          Tag = 0x77
	TagResponseFormat1          Tag = 0x80
	TagCommandTemplate          Tag = 0x83
	TagDFName                   Tag = 0x84
	TagApplicationPriority      Tag = 0x87
	TagSFI                      Tag = 0x88
	TagAIP                      Tag = 0x82
	TagAFL                      Tag = 0x94
	TagAID                      Tag = 0x4F
	TagApplicationLabel         Tag = 0x50
	TagTrack2Equivalent         Tag = 0x57
	TagPAN                      Tag = 0x5A
	TagCardholderName           Tag = 0x5F20
	TagExpirationDate           Tag = 0x5F24
	TagLanguagePreference       Tag = 0x5F2D
	TagFCIProprietaryTemplate   Tag = 0xA5
	TagFCIIssuerDiscretionary   Tag = 0xBF0C
	TagApplicationPreferredName Tag = 0x9F12
	TagPDOL                     Tag = 0x9F38
	TagLogEntry                 Tag = 0x9F4D
	TagLogFormat                Tag = 0x9F4F
	TagATC                      Tag = 0x9F36
	TagPinTryCounter            Tag = 0x9F17
)

// ParseTag parses a hexadecimal tag such as "9F38" or "5f 20".
func ParseTag(s string) (Tag, error) {
	clean := strings.ReplaceAll(s, " ", "")
	if clean == "" || len(clean) > maxTagBytes*2 {
		return 0, fmt.Errorf("invalid tag %q", s)
	}
	v, err := strconv.ParseUint(clean, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid tag %q: %w", s, err)
	}
	return Tag(v), nil
}

// Bytes returns the wire encoding of the tag.
func (t Tag) Bytes() []byte {
	switch {
	case t > 0xFFFFFF:
		return []byte{byte(t >> 24), byte(t >> 16), byte(t >> 8), byte(t)}
	case t > 0xFFFF:
		return []byte{byte(t >> 16), byte(t >> 8), byte(t)}
	case t > 0xFF:
		return []byte{byte(t >> 8), byte(t)}
	default:
		return []byte{byte(t)}
	}
}

// IsConstructed reports whether bit 6 of the first tag byte is set.
func (t Tag) IsConstructed() bool {
	return bits.IsSet(t.Bytes()[0], 6)
}

func (t Tag) String() string {
	return fmt.Sprintf("%X", t.Bytes())
}

// Node is one decoded data object. A primitive node only carries Value; a
// constructed node carries both its raw Value and the decoded Children.
type Node struct {
	Tag      Tag
	Value    []byte
	Children []Node
}

// IsConstructed reports whether the node is a template holding children.
func (n Node) IsConstructed() bool {
	return n.Tag.IsConstructed()
}

// Len returns the declared length of the node, always len(Value).
func (n Node) Len() int {
	return len(n.Value)
}

// Bytes re-encodes the node.
func (n Node) Bytes() []byte {
	return Encode(n.Tag, n.Value)
}

// DecodeError reports malformed or truncated BER-TLV input.
type DecodeError struct {
	Offset int
	Tag    Tag
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Tag != 0 {
		return fmt.Sprintf("tlv: %s (tag %s at offset %d)", e.Reason, e.Tag, e.Offset)
	}
	return fmt.Sprintf("tlv: %s at offset %d", e.Reason, e.Offset)
}

// Decode parses data into its root data objects.
// It never reads past the buffer: truncated input yields a *DecodeError.
func Decode(data []byte) ([]Node, error) {
	return decode(data, 0, 0)
}

func decode(data []byte, base, depth int) ([]Node, error) {
	if depth > maxDepth {
		return nil, &DecodeError{Offset: base, Reason: "templates nested too deeply"}
	}

	var nodes []Node
	off := 0
	for off < len(data) {
		if data[off] == 0x00 || data[off] == 0xFF {
			break
		}

		tag, tagLen, err := readTag(data[off:])
		if err != nil {
			return nil, &DecodeError{Offset: base + off, Reason: err.Error()}
		}
		off += tagLen

		length, lenLen, err := readLength(data[off:])
		if err != nil {
			return nil, &DecodeError{Offset: base + off, Tag: tag, Reason: err.Error()}
		}
		off += lenLen

		if length > len(data)-off {
			return nil, &DecodeError{
				Offset: base + off,
				Tag:    tag,
				Reason: fmt.Sprintf("length %d exceeds remaining %d bytes", length, len(data)-off),
			}
		}

		node := Node{Tag: tag, Value: bytes.Clone(data[off : off+length])}
		if node.Value == nil {
			node.Value = []byte{}
		}

		if tag.IsConstructed() {
			children, err := decode(node.Value, base+off, depth+1)
			if err != nil {
				return nil, err
			}
			if children == nil {
				children = []Node{}
			}
			node.Children = children
		}

		nodes = append(nodes, node)
		off += length
	}

	return nodes, nil
}

// ReadTag reads one tag from the start of data and returns it with the
// number of bytes it used. Data object lists (PDOL, log format) are tag and
// length pairs without values and are walked with ReadTag and ReadLength.
func ReadTag(data []byte) (Tag, int, error) {
	return readTag(data)
}

// ReadLength reads one BER length from the start of data.
func ReadLength(data []byte) (int, int, error) {
	return readLength(data)
}

func readTag(data []byte) (Tag, int, error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("missing tag")
	}

	tag := Tag(data[0])
	if data[0]&0x1F != 0x1F {
		return tag, 1, nil
	}

	for i := 1; ; i++ {
		if i >= len(data) {
			return 0, 0, fmt.Errorf("truncated multi-byte tag")
		}
		if i >= maxTagBytes {
			return 0, 0, fmt.Errorf("tag longer than %d bytes", maxTagBytes)
		}
		tag = tag<<8 | Tag(data[i])
		if !bits.IsSet(data[i], 8) {
			return tag, i + 1, nil
		}
	}
}

func readLength(data []byte) (int, int, error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("missing length")
	}

	first := data[0]
	if !bits.IsSet(first, 8) {
		return int(first), 1, nil
	}

	count := int(first & 0x7F)
	if count == 0 {
		return 0, 0, fmt.Errorf("indefinite length not allowed")
	}
	if count > maxLengthBytes {
		return 0, 0, fmt.Errorf("length field of %d bytes not supported", count)
	}
	if count >= len(data) {
		return 0, 0, fmt.Errorf("truncated length field")
	}

	var length uint64
	for _, b := range data[1 : 1+count] {
		length = length<<8 | uint64(b)
	}
	if length > math.MaxInt32 {
		return 0, 0, fmt.Errorf("length %d too large", length)
	}
	return int(length), 1 + count, nil
}

// EncodeLength returns the BER encoding of a length.
func EncodeLength(n int) []byte {
	switch {
	case n < 0x80:
		return []byte{byte(n)}
	case n <= 0xFF:
		return []byte{0x81, byte(n)}
	case n <= 0xFFFF:
		return []byte{0x82, byte(n >> 8), byte(n)}
	case n <= 0xFFFFFF:
		return []byte{0x83, byte(n >> 16), byte(n >> 8), byte(n)}
	default:
		return []byte{0x84, byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
	}
}

// Encode builds a single data object from a tag and its value.
func Encode(tag Tag, value []byte) []byte {
	out := make([]byte, 0, 4+5+len(value))
	out = append(out, tag.Bytes()...)
	out = append(out, EncodeLength(len(value))...)
	return append(out, value...)
}

// Find returns the first root node carrying tag.
func Find(nodes []Node, tag Tag) (Node, bool) {
	for _, n := range nodes {
		if n.Tag == tag {
			return n, true
		}
	}
	return Node{}, false
}

// FindRecursive walks the tree depth-first and returns the first node
// carrying tag. Only constructed nodes are descended into.
func FindRecursive(nodes []Node, tag Tag) (Node, bool) {
	for _, n := range nodes {
		if n.Tag == tag {
			return n, true
		}
		if n.IsConstructed() {
			if found, ok := FindRecursive(n.Children, tag); ok {
				return found, true
			}
		}
	}
	return Node{}, false
}

// FindAll returns every node carrying tag, in depth-first order.
func FindAll(nodes []Node, tag Tag) []Node {
	var out []Node
	for _, n := range nodes {
		if n.Tag == tag {
			out = append(out, n)
		}
		if n.IsConstructed() {
			out = append(out, FindAll(n.Children, tag)...)
		}
	}
	return out
}
