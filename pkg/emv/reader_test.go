package emv

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gregLibert/emv-reader/pkg/codes"
	"github.com/gregLibert/emv-reader/pkg/iso7816"
	"github.com/gregLibert/emv-reader/pkg/replay"
	"github.com/gregLibert/emv-reader/pkg/scheme"
	"github.com/gregLibert/emv-reader/pkg/tlv"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func loadPlayer(t *testing.T, name string) *replay.Player {
	t.Helper()

	tr, err := replay.Load(filepath.Join("testdata", name+".yaml"))
	require.NoError(t, err)
	return newPlayer(t, tr)
}

func newPlayer(t *testing.T, tr *replay.Transcript) *replay.Player {
	t.Helper()

	p, err := replay.NewPlayer(tr)
	require.NoError(t, err)
	return p
}

type failingCard struct{}

func (failingCard) Transmit([]byte) ([]byte, error) {
	return nil, errors.New("card removed")
}

func readerOptions(contactless bool, fallback ...string) Options {
	opts := Options{Contactless: contactless, Terminal: DefaultTerminalData()}
	for _, aid := range fallback {
		opts.FallbackAIDs = append(opts.FallbackAIDs, tlv.Hex(aid))
	}
	return opts
}

func TestReadCard_PPSEVisa(t *testing.T) {
	client := iso7816.NewClient(loadPlayer(t, "ppse_visa"))

	card, err := NewReader(client, readerOptions(true)).ReadCard(context.Background())
	require.NoError(t, err)
	require.NotNil(t, card)

	assert.Equal(t, "A0000000421010", tlv.HexString(card.AID))
	assert.Equal(t, "4999999999999999", card.PAN)
	assert.Equal(t, scheme.Visa, card.Scheme)
	assert.Equal(t, "CB", card.Label)
	assert.Equal(t, "09/2015", card.Expiry.String())
	assert.Empty(t, card.FirstName)
	assert.Empty(t, card.LastName)
	assert.Empty(t, card.Payments)

	require.NotNil(t, card.TransactionCounter)
	assert.Equal(t, 18, *card.TransactionCounter)
	assert.Nil(t, card.PinTryCounter)
}

func TestReadCard_PPSEMastercard(t *testing.T) {
	client := iso7816.NewClient(loadPlayer(t, "ppse_mastercard"))

	card, err := NewReader(client, readerOptions(true)).ReadCard(context.Background())
	require.NoError(t, err)
	require.NotNil(t, card)

	assert.Equal(t, "A0000000421010", tlv.HexString(card.AID))
	assert.Equal(t, "5599999999999999", card.PAN)
	assert.Equal(t, scheme.Mastercard, card.Scheme)
	assert.Equal(t, "CB", card.Label)
	assert.Equal(t, "09/2015", card.Expiry.String())
	assert.Empty(t, card.FirstName)
	assert.Empty(t, card.LastName)
}

func TestReadCard_PSEWithLog(t *testing.T) {
	client := iso7816.NewClient(loadPlayer(t, "pse_log"))

	card, err := NewReader(client, readerOptions(false)).ReadCard(context.Background())
	require.NoError(t, err)
	require.NotNil(t, card)

	assert.Equal(t, "A0000000031010", tlv.HexString(card.AID))
	assert.Equal(t, "4979670123453600", card.PAN)
	assert.Equal(t, scheme.Visa, card.Scheme)
	assert.Equal(t, "VISACREDIT", card.Label)
	assert.Equal(t, "02/2016", card.Expiry.String())
	assert.Empty(t, card.FirstName)
	assert.Empty(t, card.LastName)

	require.Len(t, card.Payments, 1)
	p := card.Payments[0]
	assert.Equal(t, int64(4600), p.Amount)
	assert.Equal(t, "40", p.Cryptogram)
	assert.Equal(t, codes.Refund, p.TransactionType)
	assert.Equal(t, "EUR", p.Currency.Alpha)
	assert.Equal(t, "FR", p.TerminalCountry.Alpha2())
	assert.False(t, p.Date.IsZero())

	require.NotNil(t, card.TransactionCounter)
	assert.Equal(t, 7, *card.TransactionCounter)
	require.NotNil(t, card.PinTryCounter)
	assert.Equal(t, 3, *card.PinTryCounter)
}

func TestReadCard_BruteForce(t *testing.T) {
	player := loadPlayer(t, "bruteforce_visa")
	client := iso7816.NewClient(player)

	opts := readerOptions(true, "A0000000041010", "A0000000031010")
	card, err := NewReader(client, opts).ReadCard(context.Background())
	require.NoError(t, err)
	require.NotNil(t, card)

	assert.Equal(t, "A0000000031010", tlv.HexString(card.AID))
	assert.Equal(t, "5772829193253472", card.PAN)
	assert.Equal(t, scheme.Visa, card.Scheme)
	assert.Equal(t, "VISA", card.Label)
	assert.Equal(t, "08/2014", card.Expiry.String())
	assert.Empty(t, card.FirstName)
	assert.Empty(t, card.LastName)

	history := player.History()
	require.GreaterOrEqual(t, len(history), 3)
	assert.Equal(t, []string{
		"00A404000E325041592E5359532E444446303100",
		"00A4040007A000000004101000",
		"00A4040007A000000003101000",
	}, history[:3])
}

func TestReadCard_NextApplicationAfterRefusedGPO(t *testing.T) {
	player := loadPlayer(t, "gpo_refused")
	client := iso7816.NewClient(player)

	card, err := NewReader(client, readerOptions(true)).ReadCard(context.Background())
	require.NoError(t, err)
	require.NotNil(t, card)

	assert.Equal(t, "A0000000043060", tlv.HexString(card.AID))
	assert.Equal(t, scheme.Maestro, card.Scheme)
	assert.Equal(t, "MAESTRO", card.Label)
	assert.Equal(t, "6759000000000000001", card.PAN)
	assert.Equal(t, "12/2027", card.Expiry.String())
	assert.Equal(t, "MARTIN", card.LastName)
	assert.Equal(t, "PAUL", card.FirstName)
	assert.Contains(t, player.History(), "00A4040007A000000004101000")
}

func TestReadCard_NoApplication(t *testing.T) {
	client := iso7816.NewClient(newPlayer(t, &replay.Transcript{Name: "blank"}))

	card, err := NewReader(client, readerOptions(true, "A0000000031010")).ReadCard(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, card)
}

func TestReadCard_TransportFailure(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"With Fallback AIDs", DefaultOptions()},
		{"Without Fallback AIDs", readerOptions(false)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := iso7816.NewClient(failingCard{})

			card, err := NewReader(client, tt.opts).ReadCard(context.Background())
			assert.Nil(t, card)

			var transportErr *iso7816.TransportError
			require.True(t, errors.As(err, &transportErr), "want *iso7816.TransportError, got %v", err)
			assert.EqualError(t, transportErr.Err, "card removed")
		})
	}
}

func TestReadCard_TransportFailureDuringRecords(t *testing.T) {
	tr := &replay.Transcript{
		Name: "card pulled out",
		Exchanges: []replay.Exchange{
			{Command: "00A4040007A000000003101000", Response: "6F098407A00000000310109000"},
			{Command: "80A8000002830000", Response: "800A1C00100101001801010090 00"},
			{Command: "00B2011400", Error: "card removed"},
		},
	}
	client := iso7816.NewClient(newPlayer(t, tr))

	_, err := NewReader(client, readerOptions(true, "A0000000031010")).ReadCard(context.Background())

	var transportErr *iso7816.TransportError
	require.True(t, errors.As(err, &transportErr), "want *iso7816.TransportError, got %v", err)
	assert.Contains(t, err.Error(), "SFI 2 record 1")
}

func TestReadCard_MissingAFL(t *testing.T) {
	tr := &replay.Transcript{
		Name: "no AFL",
		Exchanges: []replay.Exchange{
			{Command: "00A4040007A000000003101000", Response: "6F098407A00000000310109000"},
			{Command: "80A8000002830000", Response: "7704820220009000"},
		},
	}
	client := iso7816.NewClient(newPlayer(t, tr))

	card, err := NewReader(client, readerOptions(true, "A0000000031010")).ReadCard(context.Background())
	assert.Nil(t, card)

	var decErr *tlv.DecodeError
	require.True(t, errors.As(err, &decErr), "want *tlv.DecodeError, got %v", err)
	assert.Equal(t, tlv.TagAFL, decErr.Tag)
}

func TestReadCard_OversizedPDOL(t *testing.T) {
	tr := &replay.Transcript{
		Name: "PDOL asking for 512 MiB",
		Exchanges: []replay.Exchange{
			{Command: "00A4040007A000000003101000", Response: "6F15 8407A0000000031010 A50A 9F3807 9F668420000000 9000"},
		},
	}
	player := newPlayer(t, tr)
	client := iso7816.NewClient(player)

	card, err := NewReader(client, readerOptions(true, "A0000000031010")).ReadCard(context.Background())
	assert.Nil(t, card)

	var decErr *tlv.DecodeError
	require.True(t, errors.As(err, &decErr), "want *tlv.DecodeError, got %v", err)
	assert.Equal(t, tlv.Tag(0x9F66), decErr.Tag)
	for _, cmd := range player.History() {
		assert.NotContains(t, cmd, "80A8", "no GET PROCESSING OPTIONS may be sent")
	}
}

func TestReadCard_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := iso7816.NewClient(loadPlayer(t, "ppse_visa"))
	_, err := NewReader(client, readerOptions(true)).ReadCard(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	var transportErr *iso7816.TransportError
	assert.True(t, errors.As(err, &transportErr))
}

func TestReadCard_Timeout(t *testing.T) {
	client := iso7816.NewClient(loadPlayer(t, "ppse_visa"))
	client.Timeout = time.Second

	card, err := NewReader(client, readerOptions(true)).ReadCard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "4999999999999999", card.PAN)
}

func traceLogger(t *testing.T) (zerolog.Logger, *bytes.Buffer) {
	t.Helper()

	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	var buf bytes.Buffer
	return zerolog.New(&buf), &buf
}

func TestRead_TraceLogDescribesCardData(t *testing.T) {
	logger, buf := traceLogger(t)
	client := iso7816.NewClient(loadPlayer(t, "pse_log"))

	d := newDiscovery(client, false, nil, logger)
	sel, err := d.Select(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sel)

	x := &extractor{sender: client, terminal: DefaultTerminalData(), log: logger}
	_, err = x.read(context.Background(), sel)
	require.NoError(t, err)

	out := buf.String()
	for _, want := range []string{
		`"message":"payment environment FCI"`,
		`"message":"directory record"`,
		"=== EMV DIRECTORY RECORD ===",
		`"message":"application FCI"`,
		"=== EMV FCI TEMPLATE ===",
		`"message":"processing options"`,
		`"message":"record content"`,
		"70 [",
	} {
		assert.Contains(t, out, want)
	}
}
