package iso7816

import (
	"fmt"

	"github.com/gregLibert/emv-reader/pkg/bits"
)

// Some status words carry a parameter in SW2:
//
//	61XX  XX bytes still available (GET RESPONSE)
//	6CXX  wrong Le, XX is the right one
//	62XX / 64XX with XX in 02..80  triggering by the card, XX bytes to query
//	63CX  counter X (e.g. PIN tries left)

// StatusWord is the SW1-SW2 trailer of a response.
type StatusWord uint16

// NewStatusWord creates a StatusWord from SW1 and SW2.
func NewStatusWord(sw1, sw2 byte) StatusWord {
	return StatusWord(uint16(sw1)<<8 | uint16(sw2))
}

func (sw StatusWord) SW1() byte { return byte(sw >> 8) }

func (sw StatusWord) SW2() byte { return byte(sw) }

// IsSuccess reports normal processing (9000). 61XX is consumed by Client
// and never reaches callers unless the card keeps chaining forever.
func (sw StatusWord) IsSuccess() bool {
	return sw == SW_NO_ERROR
}

// IsWarning reports 62XX and 63XX.
func (sw StatusWord) IsWarning() bool {
	return sw.SW1() == 0x62 || sw.SW1() == 0x63
}

// IsError reports execution and checking errors (64XX to 6FXX).
func (sw StatusWord) IsError() bool {
	return sw.SW1() >= 0x64 && sw.SW1() <= 0x6F
}

// IsTriggeringByCard reports 62XX/64XX with XX in 02..80.
func (sw StatusWord) IsTriggeringByCard() bool {
	if sw.SW2() < 0x02 || sw.SW2() > 0x80 {
		return false
	}
	return sw.SW1() == 0x62 || sw.SW1() == 0x64
}

// IsCounter reports 63CX.
func (sw StatusWord) IsCounter() bool {
	return sw.SW1() == 0x63 && bits.GetRange(sw.SW2(), 8, 5) == 0x0C
}

// Standard status words (ISO/IEC 7816-4 §5.6, EMV Book 3 Annex A).
const (
	SW_NO_ERROR StatusWord = 0x9000

	SW_WARN_NO_INFO            StatusWord = 0x6200
	SW_WARN_DATA_CORRUPTED     StatusWord = 0x6281
	SW_WARN_EOF_REACHED        StatusWord = 0x6282
	SW_WARN_FILE_DEACTIVATED   StatusWord = 0x6283
	SW_WARN_FCI_BAD_FORMAT     StatusWord = 0x6284
	SW_WARN_NV_CHANGED_NO_INFO StatusWord = 0x6300
	SW_WARN_FILE_FILLED        StatusWord = 0x6381

	SW_ERR_EXEC_NO_INFO   StatusWord = 0x6400
	SW_ERR_MEMORY_FAILURE StatusWord = 0x6581
	SW_ERR_WRONG_LENGTH   StatusWord = 0x6700

	SW_ERR_CMD_INCOMPATIBLE_FILE   StatusWord = 0x6981
	SW_ERR_SECURITY_STATUS_NOT_SAT StatusWord = 0x6982
	SW_ERR_AUTH_METHOD_BLOCKED     StatusWord = 0x6983
	SW_ERR_REF_DATA_NOT_USABLE     StatusWord = 0x6984
	SW_ERR_COND_OF_USE_NOT_SAT     StatusWord = 0x6985
	SW_ERR_CMD_NOT_ALLOWED_NO_EF   StatusWord = 0x6986

	SW_ERR_WRONG_DATA         StatusWord = 0x6A80
	SW_ERR_FUNC_NOT_SUPPORTED StatusWord = 0x6A81
	SW_ERR_FILE_NOT_FOUND     StatusWord = 0x6A82
	SW_ERR_RECORD_NOT_FOUND   StatusWord = 0x6A83
	SW_ERR_NOT_ENOUGH_MEMORY  StatusWord = 0x6A84
	SW_ERR_INCORRECT_P1P2     StatusWord = 0x6A86
	SW_ERR_REF_DATA_NOT_FOUND StatusWord = 0x6A88

	SW_ERR_WRONG_P1P2        StatusWord = 0x6B00
	SW_ERR_INS_INVALID       StatusWord = 0x6D00
	SW_ERR_CLA_NOT_SUPPORTED StatusWord = 0x6E00
	SW_ERR_UNKNOWN           StatusWord = 0x6F00
)

var statusNames = map[StatusWord]string{
	SW_NO_ERROR:                    "No error",
	SW_WARN_NO_INFO:                "Warning: no information given",
	SW_WARN_DATA_CORRUPTED:         "Warning: part of returned data may be corrupted",
	SW_WARN_EOF_REACHED:            "Warning: end of file or record reached",
	SW_WARN_FILE_DEACTIVATED:       "Warning: selected file deactivated",
	SW_WARN_FCI_BAD_FORMAT:         "Warning: FCI not formatted according to ISO 7816-4",
	SW_WARN_NV_CHANGED_NO_INFO:     "Warning: NV memory changed, no information given",
	SW_WARN_FILE_FILLED:            "Warning: file filled up by the last write",
	SW_ERR_EXEC_NO_INFO:            "Execution error: NV memory unchanged",
	SW_ERR_MEMORY_FAILURE:          "Execution error: memory failure",
	SW_ERR_WRONG_LENGTH:            "Wrong length",
	SW_ERR_CMD_INCOMPATIBLE_FILE:   "Command incompatible with file structure",
	SW_ERR_SECURITY_STATUS_NOT_SAT: "Security status not satisfied",
	SW_ERR_AUTH_METHOD_BLOCKED:     "Authentication method blocked",
	SW_ERR_REF_DATA_NOT_USABLE:     "Reference data not usable",
	SW_ERR_COND_OF_USE_NOT_SAT:     "Conditions of use not satisfied",
	SW_ERR_CMD_NOT_ALLOWED_NO_EF:   "Command not allowed (no current EF)",
	SW_ERR_WRONG_DATA:              "Incorrect parameters in the data field",
	SW_ERR_FUNC_NOT_SUPPORTED:      "Function not supported",
	SW_ERR_FILE_NOT_FOUND:          "File or application not found",
	SW_ERR_RECORD_NOT_FOUND:        "Record not found",
	SW_ERR_NOT_ENOUGH_MEMORY:       "Not enough memory space in the file",
	SW_ERR_INCORRECT_P1P2:          "Incorrect parameters P1-P2",
	SW_ERR_REF_DATA_NOT_FOUND:      "Referenced data not found",
	SW_ERR_WRONG_P1P2:              "Wrong parameters P1-P2",
	SW_ERR_INS_INVALID:             "Instruction code not supported or invalid",
	SW_ERR_CLA_NOT_SUPPORTED:       "Class not supported",
	SW_ERR_UNKNOWN:                 "No precise diagnosis",
}

func (sw StatusWord) String() string {
	return fmt.Sprintf("%04X", uint16(sw))
}

// Verbose returns "[XXXX] description", resolving parameterised statuses
// before the fixed table and falling back to the SW1 category.
func (sw StatusWord) Verbose() string {
	sw1, sw2 := sw.SW1(), sw.SW2()

	var desc string
	switch {
	case sw1 == 0x61:
		desc = fmt.Sprintf("Process completed, %d bytes available", sw2)
	case sw1 == 0x6C:
		desc = fmt.Sprintf("Wrong length, correct Le is %d", sw2)
	case sw.IsCounter():
		desc = fmt.Sprintf("Warning: state changed, counter = %d", bits.GetRange(sw2, 4, 1))
	case sw.IsTriggeringByCard():
		desc = fmt.Sprintf("Triggering by the card, %d bytes to query", sw2)
	default:
		if name, ok := statusNames[sw]; ok {
			desc = name
		} else {
			desc = categoryOf(sw1)
		}
	}

	return fmt.Sprintf("[%s] %s", sw, desc)
}

func categoryOf(sw1 byte) string {
	switch sw1 {
	case 0x62:
		return "Warning: NV memory unchanged"
	case 0x63:
		return "Warning: NV memory changed"
	case 0x64:
		return "Execution error: NV memory unchanged"
	case 0x65:
		return "Execution error: NV memory changed"
	case 0x66:
		return "Execution error: security issue"
	case 0x68:
		return "Checking error: function in CLA not supported"
	case 0x69:
		return "Checking error: command not allowed"
	case 0x6A:
		return "Checking error: wrong parameters"
	default:
		return "Unknown status"
	}
}
