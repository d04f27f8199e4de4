package emv

import (
	"github.com/gregLibert/emv-reader/pkg/iso7816"
	"github.com/gregLibert/emv-reader/pkg/tlv"
)

// Payment system environment names.
const (
	PSEName  = "1PAY.SYS.DDF01"
	PPSEName = "2PAY.SYS.DDF01"
)

// SelectPSE selects the payment system environment: PPSE for contactless
// cards, PSE for contact cards.
func SelectPSE(contactless bool) *iso7816.CommandAPDU {
	name := PSEName
	if contactless {
		name = PPSEName
	}
	return iso7816.SelectByAID(iso7816.ClassInterindustry, []byte(name))
}

// SelectAID selects an application. A nil aid yields 00 A4 04 00 00.
func SelectAID(aid []byte) *iso7816.CommandAPDU {
	return iso7816.SelectByAID(iso7816.ClassInterindustry, aid)
}

// GetProcessingOptions wraps the PDOL values in a command template (83).
// With no PDOL the command is 80 A8 00 00 02 83 00 00.
func GetProcessingOptions(pdolData []byte) *iso7816.CommandAPDU {
	return iso7816.NewCommandAPDU(
		iso7816.ClassProprietary,
		iso7816.INS_GET_PROCESSING_OPTIONS,
		0x00, 0x00,
		tlv.Encode(tlv.TagCommandTemplate, pdolData),
		iso7816.MaxShortLe,
	)
}

// ReadRecord reads record rec of the file sfi: 00 B2 rec (sfi<<3|4) 00.
func ReadRecord(sfi, rec byte) *iso7816.CommandAPDU {
	return iso7816.ReadRecord(iso7816.ClassInterindustry, sfi, rec)
}

// GetData fetches a two-byte tagged data object (ATC, PIN try counter,
// log format).
func GetData(tag tlv.Tag) *iso7816.CommandAPDU {
	return iso7816.NewCommandAPDU(
		iso7816.ClassProprietary,
		iso7816.INS_GET_DATA,
		byte(tag>>8), byte(tag),
		nil,
		iso7816.MaxShortLe,
	)
}
