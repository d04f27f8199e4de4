package iso7816

import "fmt"

// SELECT (INS A4). P1 says how the target is named, P2 combines the
// response wanted (bits 4-3) with the occurrence (bits 2-1).

// SelectionMethod is P1 of SELECT.
type SelectionMethod byte

const (
	SelectByFileID          SelectionMethod = 0x00
	SelectChildDF           SelectionMethod = 0x01
	SelectEFUnderCurrentDF  SelectionMethod = 0x02
	SelectParentDF          SelectionMethod = 0x03
	SelectByDFName          SelectionMethod = 0x04
	SelectPathFromMF        SelectionMethod = 0x08
	SelectPathFromCurrentDF SelectionMethod = 0x09
)

func (s SelectionMethod) String() string {
	switch s {
	case SelectByFileID:
		return "by file ID"
	case SelectChildDF:
		return "child DF"
	case SelectEFUnderCurrentDF:
		return "EF under current DF"
	case SelectParentDF:
		return "parent DF"
	case SelectByDFName:
		return "by DF name"
	case SelectPathFromMF:
		return "path from MF"
	case SelectPathFromCurrentDF:
		return "path from current DF"
	default:
		return fmt.Sprintf("method %02X", byte(s))
	}
}

// FileOccurrence is bits 2-1 of P2. NextOccurrence walks the applications
// sharing a partial AID.
type FileOccurrence byte

const (
	FirstOrOnlyOccurrence FileOccurrence = 0b00
	LastOccurrence        FileOccurrence = 0b01
	NextOccurrence        FileOccurrence = 0b10
	PreviousOccurrence    FileOccurrence = 0b11
)

// SelectionControl is bits 4-3 of P2.
type SelectionControl byte

const (
	ReturnFCI    SelectionControl = 0b0000
	ReturnFCP    SelectionControl = 0b0100
	ReturnFMD    SelectionControl = 0b1000
	ReturnNoData SelectionControl = 0b1100
)

// NewSelectCommand builds a SELECT. Le is 00 (up to 256 bytes) unless no
// response data is requested; with T=0 the card then answers 61XX and the
// Client fetches the data.
func NewSelectCommand(cla Class, method SelectionMethod, occurrence FileOccurrence, ctrl SelectionControl, data []byte) *CommandAPDU {
	ne := MaxShortLe
	if ctrl == ReturnNoData {
		ne = 0
	}
	return NewCommandAPDU(cla, INS_SELECT, byte(method), byte(ctrl)|byte(occurrence), data, ne)
}

// SelectByAID selects an application by name. A nil aid gives
// 00 A4 04 00 00, which selects the card's default application.
func SelectByAID(cla Class, aid []byte) *CommandAPDU {
	return NewSelectCommand(cla, SelectByDFName, FirstOrOnlyOccurrence, ReturnFCI, aid)
}
