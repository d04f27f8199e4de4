package emv

import (
	"testing"

	"github.com/gregLibert/emv-reader/pkg/tlv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommands(t *testing.T) {
	tests := []struct {
		name string
		raw  func() ([]byte, error)
		want string
	}{
		{"Select PPSE", SelectPSE(true).Bytes, "00A404000E325041592E5359532E444446303100"},
		{"Select PSE", SelectPSE(false).Bytes, "00A404000E315041592E5359532E444446303100"},
		{"Select AID", SelectAID(tlv.Hex("A0000000421010")).Bytes, "00A4040007A000000042101000"},
		{"Select Nil AID", SelectAID(nil).Bytes, "00A4040000"},
		{"GPO Without PDOL", GetProcessingOptions(nil).Bytes, "80A8000002830000"},
		{"GPO With PDOL Data", GetProcessingOptions(tlv.Hex("36004000")).Bytes, "80A800000683043600400000"},
		{"Read Record", ReadRecord(2, 3).Bytes, "00B2031400"},
		{"Read Log Record", ReadRecord(11, 1).Bytes, "00B2015C00"},
		{"Get Data ATC", GetData(tlv.TagATC).Bytes, "80CA9F3600"},
		{"Get Data Log Format", GetData(tlv.TagLogFormat).Bytes, "80CA9F4F00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := tt.raw()
			require.NoError(t, err)
			assert.Equal(t, tt.want, tlv.HexString(raw))
		})
	}
}
