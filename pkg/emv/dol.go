package emv

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/gregLibert/emv-reader/pkg/bits"
	"github.com/gregLibert/emv-reader/pkg/codes"
	"github.com/gregLibert/emv-reader/pkg/tlv"
)

// DOLEntry is one element of a data object list: a tag and the number of
// bytes the card wants for it.
type DOLEntry struct {
	Tag    tlv.Tag
	Length int
}

// MaxDOLLength is the largest answer a DOL may ask for: the 83 template
// (83 81 FC + 252 bytes) then fills a short GET PROCESSING OPTIONS.
const MaxDOLLength = 252

// ParseDOL reads a data object list (PDOL 9F38, log format 9F4F). A list
// asking for more than MaxDOLLength bytes in total is a *tlv.DecodeError.
func ParseDOL(data []byte) ([]DOLEntry, error) {
	var entries []DOLEntry
	total := 0
	for off := 0; off < len(data); {
		tag, n, err := tlv.ReadTag(data[off:])
		if err != nil {
			return nil, &tlv.DecodeError{Offset: off, Reason: "DOL: " + err.Error()}
		}
		off += n

		length, n, err := tlv.ReadLength(data[off:])
		if err != nil {
			return nil, &tlv.DecodeError{Offset: off, Tag: tag, Reason: "DOL: " + err.Error()}
		}
		total += length
		if length > MaxDOLLength || total > MaxDOLLength {
			return nil, &tlv.DecodeError{
				Offset: off,
				Tag:    tag,
				Reason: fmt.Sprintf("DOL asks for more than %d bytes", MaxDOLLength),
			}
		}
		off += n

		entries = append(entries, DOLEntry{Tag: tag, Length: length})
	}
	return entries, nil
}

// DOLLength is the number of value bytes the list describes.
func DOLLength(dol []DOLEntry) int {
	total := 0
	for _, e := range dol {
		total += e.Length
	}
	return total
}

// Terminal data tags answered when filling a PDOL.
const (
	tagTTQ                    tlv.Tag = 0x9F66
	tagAmountAuthorised       tlv.Tag = 0x9F02
	tagAmountOther            tlv.Tag = 0x9F03
	tagTerminalCountry        tlv.Tag = 0x9F1A
	tagTransactionCurrency    tlv.Tag = 0x5F2A
	tagTVR                    tlv.Tag = 0x95
	tagTransactionDate        tlv.Tag = 0x9A
	tagTransactionTime        tlv.Tag = 0x9F21
	tagTransactionType        tlv.Tag = 0x9C
	tagUnpredictableNumber    tlv.Tag = 0x9F37
	tagTerminalType           tlv.Tag = 0x9F35
	tagAdditionalCapabilities tlv.Tag = 0x9F40
	tagCryptogramInfo         tlv.Tag = 0x9F27
)

// TerminalData holds the values the reader claims as a terminal when a
// card asks for them in its PDOL.
type TerminalData struct {
	TTQ                    []byte
	Amount                 int64
	OtherAmount            int64
	CountryCode            int
	CurrencyCode           int
	TVR                    []byte
	TransactionType        codes.TransactionType
	TerminalType           byte
	AdditionalCapabilities []byte

	// Date defaults to the current time when zero.
	Date time.Time

	// UnpredictableNumber is random when nil.
	UnpredictableNumber []byte
}

// DefaultTerminalData describes a contactless-capable attended terminal in
// France.
func DefaultTerminalData() TerminalData {
	return TerminalData{
		TTQ:                    []byte{0x36, 0x00, 0x40, 0x00},
		CountryCode:            250,
		CurrencyCode:           978,
		TVR:                    make([]byte, 5),
		TransactionType:        codes.Purchase,
		TerminalType:           0x22,
		AdditionalCapabilities: []byte{0x60, 0x00, 0xF0, 0xA0, 0x01},
	}
}

func (td TerminalData) value(tag tlv.Tag, length int) []byte {
	date := td.Date
	if date.IsZero() {
		date = time.Now()
	}

	switch tag {
	case tagTTQ:
		return td.TTQ
	case tagAmountAuthorised:
		return bits.ToBCD(td.Amount, length)
	case tagAmountOther:
		return bits.ToBCD(td.OtherAmount, length)
	case tagTerminalCountry:
		return bits.ToBCD(int64(td.CountryCode), length)
	case tagTransactionCurrency:
		return bits.ToBCD(int64(td.CurrencyCode), length)
	case tagTVR:
		return td.TVR
	case tagTransactionDate:
		return bcdTriple(date.Year()%100, int(date.Month()), date.Day())
	case tagTransactionTime:
		return bcdTriple(date.Hour(), date.Minute(), date.Second())
	case tagTransactionType:
		return []byte{byte(td.TransactionType)}
	case tagTerminalType:
		return []byte{td.TerminalType}
	case tagAdditionalCapabilities:
		return td.AdditionalCapabilities
	case tagUnpredictableNumber:
		if td.UnpredictableNumber != nil {
			return td.UnpredictableNumber
		}
		un := make([]byte, length)
		_, _ = rand.Read(un)
		return un
	default:
		return nil
	}
}

func bcdTriple(a, b, c int) []byte {
	out := bits.ToBCD(int64(a), 1)
	out = append(out, bits.ToBCD(int64(b), 1)...)
	return append(out, bits.ToBCD(int64(c), 1)...)
}

// FillDOL concatenates the terminal's answer to every DOL entry. Unknown
// tags are zero-filled; values are truncated or left-padded with zeros to
// the requested length.
func FillDOL(dol []DOLEntry, td TerminalData) []byte {
	out := make([]byte, 0, DOLLength(dol))
	for _, e := range dol {
		out = append(out, fit(td.value(e.Tag, e.Length), e.Length)...)
	}
	return out
}

func fit(v []byte, n int) []byte {
	out := make([]byte, n)
	if len(v) >= n {
		copy(out, v[:n])
	} else {
		copy(out[n-len(v):], v)
	}
	return out
}

// describeDOL renders "9F66(4) 9F02(6) ..." for logs.
func describeDOL(dol []DOLEntry) string {
	parts := make([]string, len(dol))
	for i, e := range dol {
		parts[i] = fmt.Sprintf("%s(%d)", e.Tag, e.Length)
	}
	return strings.Join(parts, " ")
}
