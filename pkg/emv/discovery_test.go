package emv

import (
	"context"
	"errors"
	"testing"

	"github.com/gregLibert/emv-reader/pkg/iso7816"
	"github.com/gregLibert/emv-reader/pkg/replay"
	"github.com/gregLibert/emv-reader/pkg/tlv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractApplicationLabel(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want string
	}{
		{
			name: "PPSE Answer With Status Word",
			raw: tlv.Hex("6F 3B 84 0E 32 50 41 59 2E 53 59 53 2E 44 44 46 30 31 A5 29 BF 0C 26 61 10 4F 07 A0 00 00 00 42 10 10 " +
				"50 02 43 42 87 01 01 61 12 4F 07 A0 00 00 00 03 10 10 50 04 56 49 53 41 87 01 02 90 00"),
			want: "CB",
		},
		{
			name: "Nil",
			raw:  nil,
			want: "",
		},
		{
			name: "Malformed",
			raw:  tlv.Hex("6F 05 84"),
			want: "",
		},
		{
			name: "Priority Decides Over Order",
			raw: tlv.Hex(
				"61 0F", "4F 07 A0000000031010", "50 01 42", "87 01 02",
				"61 0F", "4F 07 A0000000041010", "50 01 41", "87 01 01",
			),
			want: "A",
		},
		{
			name: "Unlabelled Entries Skipped",
			raw: tlv.Hex(
				"61 0C", "4F 07 A0000000031010", "87 01 01",
				"61 0F", "4F 07 A0000000041010", "50 01 41", "87 01 02",
			),
			want: "A",
		},
		{
			name: "Missing Priority Sorts Last",
			raw: tlv.Hex(
				"61 0C", "4F 07 A0000000031010", "50 01 42",
				"61 0F", "4F 07 A0000000041010", "50 01 41", "87 01 05",
			),
			want: "A",
		},
		{
			name: "Priority Zero Means None",
			raw: tlv.Hex(
				"61 0F", "4F 07 A0000000031010", "50 01 42", "87 01 80",
				"61 0F", "4F 07 A0000000041010", "50 01 41", "87 01 0F",
			),
			want: "A",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractApplicationLabel(tt.raw))
		})
	}
}

func TestApplicationTemplate_ZeroPriority(t *testing.T) {
	app := ApplicationTemplate{AID: tlv.Hex("A0000000031010"), ApplicationPriorityIndicator: []byte{0x80}}

	c, ok := app.Candidate()
	require.True(t, ok)
	assert.Nil(t, c.Priority)
}

func TestSortCandidates(t *testing.T) {
	p := func(n int) *int { return &n }

	c := []Candidate{
		{Label: "none-1"},
		{Label: "two-1", Priority: p(2)},
		{Label: "one", Priority: p(1)},
		{Label: "none-2"},
		{Label: "two-2", Priority: p(2)},
	}
	sortCandidates(c)

	var got []string
	for _, x := range c {
		got = append(got, x.Label)
	}
	assert.Equal(t, []string{"one", "two-1", "two-2", "none-1", "none-2"}, got)
}

func TestDiscovery_PPSE(t *testing.T) {
	client := iso7816.NewClient(loadPlayer(t, "ppse_visa"))
	d := NewDiscovery(client, true, nil)

	sel, err := d.Select(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sel)

	assert.Equal(t, "A0000000421010", tlv.HexString(sel.Candidate.AID))
	assert.Equal(t, "CB", sel.Candidate.Label)
	assert.Equal(t, "9F66049F02065F2A029F1A02", tlv.HexString(sel.FCI.PDOL()))

	candidates := d.Candidates()
	require.Len(t, candidates, 2)
	assert.Equal(t, "VISA", candidates[1].Label)

	assert.Equal(t, []DiscoveryState{
		StateStart,
		StateEnvironmentSelected,
		StateCandidatesEnumerated,
		StateApplicationSelected,
	}, d.History())

	// The transcript does not answer the VISA entry: discovery ends.
	sel, err = d.Select(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sel)
	assert.Equal(t, StateFailed, d.State())
	assert.Equal(t, []DiscoveryState{
		StateStart,
		StateEnvironmentSelected,
		StateCandidatesEnumerated,
		StateApplicationSelected,
		StateCandidatesEnumerated,
		StateFailed,
	}, d.History())

	sel, err = d.Select(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, sel)
}

func TestDiscovery_PSEDirectoryFile(t *testing.T) {
	client := iso7816.NewClient(loadPlayer(t, "pse_log"))
	d := NewDiscovery(client, false, nil)

	sel, err := d.Select(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sel)

	assert.Equal(t, "A0000000031010", tlv.HexString(sel.Candidate.AID))
	assert.Equal(t, "VISACREDIT", sel.Candidate.Label)
	require.NotNil(t, sel.Candidate.Priority)
	assert.Equal(t, 1, *sel.Candidate.Priority)
}

func TestDiscovery_BruteForceRecovery(t *testing.T) {
	client := iso7816.NewClient(loadPlayer(t, "bruteforce_visa"))
	d := NewDiscovery(client, true, [][]byte{tlv.Hex("A0000000041010"), tlv.Hex("A0000000031010")})

	sel, err := d.Select(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sel)

	assert.Equal(t, "A0000000031010", tlv.HexString(sel.Candidate.AID))
	assert.Equal(t, "VISA", sel.FCI.Label())
	assert.Equal(t, []DiscoveryState{
		StateStart,
		StateCandidatesEnumerated,
		StateApplicationSelected,
	}, d.History())
}

func TestDiscovery_EmptyEnvironmentUsesFallback(t *testing.T) {
	tr := &replay.Transcript{
		Name: "empty PPSE",
		Exchanges: []replay.Exchange{
			{Command: "00A404000E325041592E5359532E444446303100", Response: "6F10840E325041592E5359532E44444630319000"},
			{Command: "00A4040007A000000003101000", Response: "6F098407A00000000310109000"},
		},
	}
	client := iso7816.NewClient(newPlayer(t, tr))
	d := NewDiscovery(client, true, [][]byte{tlv.Hex("A0000000031010")})

	sel, err := d.Select(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sel)
	assert.Equal(t, []DiscoveryState{
		StateStart,
		StateEnvironmentSelected,
		StateCandidatesEnumerated,
		StateApplicationSelected,
	}, d.History())
}

func TestDiscovery_TransportErrorWithoutFallback(t *testing.T) {
	tr := &replay.Transcript{
		Name: "broken reader",
		Exchanges: []replay.Exchange{
			{Command: "00A404000E325041592E5359532E444446303100", Error: "reader unplugged"},
		},
	}
	client := iso7816.NewClient(newPlayer(t, tr))
	d := NewDiscovery(client, true, nil)

	sel, err := d.Select(context.Background())
	assert.Nil(t, sel)

	var transportErr *iso7816.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, StateFailed, d.State())
}

func TestDiscovery_InvalidTransition(t *testing.T) {
	d := NewDiscovery(nil, true, nil)

	err := d.moveTo(StateApplicationSelected)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "START -> APPLICATION_SELECTED")
	assert.Equal(t, StateStart, d.State())
	assert.Equal(t, "STATE(9)", DiscoveryState(9).String())
}
