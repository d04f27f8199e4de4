package emv

import (
	"errors"
	"testing"
	"time"

	"github.com/gregLibert/emv-reader/pkg/codes"
	"github.com/gregLibert/emv-reader/pkg/tlv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDOL(t *testing.T) {
	dol, err := ParseDOL(tlv.Hex("9F66 04 9F02 06 5F2A 02 9A 03 DF8101 01"))
	require.NoError(t, err)

	assert.Equal(t, []DOLEntry{
		{Tag: 0x9F66, Length: 4},
		{Tag: 0x9F02, Length: 6},
		{Tag: 0x5F2A, Length: 2},
		{Tag: 0x9A, Length: 3},
		{Tag: 0xDF8101, Length: 1},
	}, dol)
	assert.Equal(t, 16, DOLLength(dol))
	assert.Equal(t, "9F66(4) 9F02(6) 5F2A(2) 9A(3) DF8101(1)", describeDOL(dol))
}

func TestParseDOL_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"Missing Length", tlv.Hex("9F66 04 9F02")},
		{"Truncated Tag", tlv.Hex("9F")},
		{"Truncated Long Length", tlv.Hex("9F02 81")},
		{"Oversized Entry", tlv.Hex("9F66 84 20000000")},
		{"Oversized Total", tlv.Hex("DF01 81 C8 DF02 35")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDOL(tt.raw)
			var decErr *tlv.DecodeError
			require.True(t, errors.As(err, &decErr), "want *tlv.DecodeError, got %v", err)
			assert.Contains(t, decErr.Reason, "DOL")
		})
	}
}

func TestParseDOL_MaxLength(t *testing.T) {
	dol, err := ParseDOL(tlv.Hex("DF01 81 C8 DF02 34"))
	require.NoError(t, err)
	assert.Equal(t, MaxDOLLength, DOLLength(dol))

	cmd, err := GetProcessingOptions(FillDOL(dol, DefaultTerminalData())).Bytes()
	require.NoError(t, err)
	assert.Len(t, cmd, 5+3+MaxDOLLength+1)
	assert.Equal(t, byte(0xFF), cmd[4], "short Lc")
}

func TestFillDOL(t *testing.T) {
	td := DefaultTerminalData()
	td.Amount = 4600
	td.Date = time.Date(2024, time.March, 15, 12, 30, 45, 0, time.UTC)
	td.UnpredictableNumber = tlv.Hex("11223344")
	td.TransactionType = codes.Refund

	tests := []struct {
		name string
		dol  string
		want string
	}{
		{"TTQ", "9F66 04", "36004000"},
		{"Amount", "9F02 06", "000000004600"},
		{"Other Amount", "9F03 06", "000000000000"},
		{"Country And Currency", "9F1A 02 5F2A 02", "02500978"},
		{"Date And Time", "9A 03 9F21 03", "240315123045"},
		{"Transaction Type", "9C 01", "20"},
		{"Terminal Type", "9F35 01", "22"},
		{"TVR", "95 05", "0000000000"},
		{"Unpredictable Number", "9F37 04", "11223344"},
		{"Unknown Tag Zero Filled", "9F4E 03", "000000"},
		{"Truncated Value", "9F66 02", "3600"},
		{"Left Padded Value", "9F35 03", "000022"},
		{"Empty DOL", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dol, err := ParseDOL(tlv.Hex(tt.dol))
			require.NoError(t, err)

			got := FillDOL(dol, td)
			assert.Equal(t, tt.want, tlv.HexString(got))
			assert.Len(t, got, DOLLength(dol))
		})
	}
}

func TestFillDOL_RandomUnpredictableNumber(t *testing.T) {
	dol := []DOLEntry{{Tag: 0x9F37, Length: 4}}

	first := FillDOL(dol, DefaultTerminalData())
	second := FillDOL(dol, DefaultTerminalData())

	assert.Len(t, first, 4)
	assert.Len(t, second, 4)
	assert.NotEqual(t, first, second, "two random numbers should differ")
}
