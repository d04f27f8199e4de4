package iso7816

import (
	"fmt"

	"github.com/gregLibert/emv-reader/pkg/bits"
)

// Instruction is the INS byte. With an interindustry class, an odd INS asks
// for BER-TLV encoded data (READ BINARY B0 vs B1). INS values 6X and 9X are
// reserved for procedure bytes and never valid.
type Instruction byte

const (
	INS_VERIFY                  Instruction = 0x20
	INS_MANAGE_CHANNEL          Instruction = 0x70
	INS_EXTERNAL_AUTHENTICATE   Instruction = 0x82
	INS_GET_CHALLENGE           Instruction = 0x84
	INS_INTERNAL_AUTHENTICATE   Instruction = 0x88
	INS_SELECT                  Instruction = 0xA4
	INS_GET_PROCESSING_OPTIONS  Instruction = 0xA8
	INS_GENERATE_AC             Instruction = 0xAE
	INS_READ_BINARY             Instruction = 0xB0
	INS_READ_RECORD             Instruction = 0xB2
	INS_GET_RESPONSE            Instruction = 0xC0
	INS_GET_DATA                Instruction = 0xCA
	INS_PUT_DATA                Instruction = 0xDA
	INS_UPDATE_RECORD           Instruction = 0xDC
	INS_APPLICATION_BLOCK       Instruction = 0x1E
	INS_APPLICATION_UNBLOCK     Instruction = 0x18
	INS_CARD_BLOCK              Instruction = 0x16
	INS_PIN_CHANGE_UNBLOCK      Instruction = 0x24
	INS_COMPUTE_CRYPTO_CHECKSUM Instruction = 0x2A
)

var instructionNames = map[Instruction]string{
	INS_VERIFY:                  "VERIFY",
	INS_MANAGE_CHANNEL:          "MANAGE CHANNEL",
	INS_EXTERNAL_AUTHENTICATE:   "EXTERNAL AUTHENTICATE",
	INS_GET_CHALLENGE:           "GET CHALLENGE",
	INS_INTERNAL_AUTHENTICATE:   "INTERNAL AUTHENTICATE",
	INS_SELECT:                  "SELECT",
	INS_GET_PROCESSING_OPTIONS:  "GET PROCESSING OPTIONS",
	INS_GENERATE_AC:             "GENERATE AC",
	INS_READ_BINARY:             "READ BINARY",
	INS_READ_RECORD:             "READ RECORD",
	INS_GET_RESPONSE:            "GET RESPONSE",
	INS_GET_DATA:                "GET DATA",
	INS_PUT_DATA:                "PUT DATA",
	INS_UPDATE_RECORD:           "UPDATE RECORD",
	INS_APPLICATION_BLOCK:       "APPLICATION BLOCK",
	INS_APPLICATION_UNBLOCK:     "APPLICATION UNBLOCK",
	INS_CARD_BLOCK:              "CARD BLOCK",
	INS_PIN_CHANGE_UNBLOCK:      "PIN CHANGE/UNBLOCK",
	INS_COMPUTE_CRYPTO_CHECKSUM: "COMPUTE CRYPTOGRAPHIC CHECKSUM",
}

// IsValid rejects the 6X and 9X ranges.
func (i Instruction) IsValid() bool {
	high := bits.GetRange(byte(i), 8, 5)
	return high != 0x6 && high != 0x9
}

// IsBERTLV reports whether bit 1 asks for BER-TLV data.
func (i Instruction) IsBERTLV() bool {
	return bits.IsSet(byte(i), 1)
}

func (i Instruction) String() string {
	if name, ok := instructionNames[i]; ok {
		return name
	}
	return fmt.Sprintf("INS %02X", byte(i))
}
