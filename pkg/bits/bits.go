// Package bits holds the small bit and nibble helpers shared by the ISO 7816
// and EMV layers. Bit positions are numbered 1 (LSB) to 8 (MSB), the way the
// standards number them.
package bits

import "fmt"

// Bit returns a byte with only the n-th bit set (1 to 8).
func Bit(n uint) byte {
	if n < 1 || n > 8 {
		return 0
	}
	return 1 << (n - 1)
}

// IsSet checks if the n-th bit is set (1 to 8).
func IsSet(b byte, n uint) bool {
	return b&Bit(n) != 0
}

// GetRange extracts the value from a range of bits (e.g., bits 4 to 3).
// Example: GetRange(0b00001100, 4, 3) returns 3 (0b11)
func GetRange(b byte, high, low uint) byte {
	if high < low || high > 8 || low < 1 {
		return 0
	}

	width := high - low + 1
	mask := byte((1 << width) - 1)

	return (b >> (low - 1)) & mask
}

// Set returns b with bit n raised.
func Set(b byte, n uint) byte {
	return b | Bit(n)
}

// Nibbles splits data into its 4-bit digits, high nibble first.
func Nibbles(data []byte) []byte {
	out := make([]byte, 0, len(data)*2)
	for _, b := range data {
		out = append(out, b>>4, b&0x0F)
	}
	return out
}

// BCD decodes packed binary-coded decimal into an integer.
// Every nibble must be a decimal digit.
func BCD(data []byte) (int64, error) {
	if len(data) > 9 {
		return 0, fmt.Errorf("BCD value too long: %d bytes", len(data))
	}

	var v int64
	for i, d := range Nibbles(data) {
		if d > 9 {
			return 0, fmt.Errorf("invalid BCD digit 0x%X at nibble %d", d, i)
		}
		v = v*10 + int64(d)
	}
	return v, nil
}

// DigitString renders packed BCD as text, stopping at the first filler
// nibble (0xF) or at a nibble equal to stop. It returns the digits and the
// index of the nibble that ended the scan (len(nibbles) when none did).
func DigitString(data []byte, stop byte) (string, int) {
	nibbles := Nibbles(data)
	out := make([]byte, 0, len(nibbles))
	for i, d := range nibbles {
		if d == 0x0F || d == stop {
			return string(out), i
		}
		if d > 9 {
			return string(out), i
		}
		out = append(out, '0'+d)
	}
	return string(out), len(nibbles)
}

// ToBCD packs the decimal digits of v into n bytes, right-aligned and
// zero-padded. Digits that do not fit are dropped from the left.
// Negative values are encoded as zero.
func ToBCD(v int64, n int) []byte {
	out := make([]byte, n)
	if v < 0 {
		return out
	}
	for i := n - 1; i >= 0 && v > 0; i-- {
		lo := byte(v % 10)
		v /= 10
		hi := byte(v % 10)
		v /= 10
		out[i] = hi<<4 | lo
	}
	return out
}
