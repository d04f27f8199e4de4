// Package emv reads payment applications from EMV cards: it finds the
// application through the payment system environment, runs GET PROCESSING
// OPTIONS and walks the records the card points at to build a Card.
package emv

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gregLibert/emv-reader/pkg/scheme"
	"github.com/gregLibert/emv-reader/pkg/tlv"
	"github.com/rs/zerolog/log"
)

// DefaultFallbackAIDs are tried in order when a card offers no payment
// system environment.
var DefaultFallbackAIDs = [][]byte{
	tlv.Hex("A0000000031010"), // Visa credit/debit
	tlv.Hex("A0000000041010"), // Mastercard
	tlv.Hex("A0000000043060"), // Maestro
	tlv.Hex("A0000000421010"), // CB
	tlv.Hex("A000000025010801"),
	tlv.Hex("A0000000032010"), // Visa Electron
	tlv.Hex("A0000000033010"), // V PAY
	tlv.Hex("A0000001523010"), // Discover
	tlv.Hex("A0000000651010"), // JCB
	tlv.Hex("A000000333010101"),
}

// Options configures a Reader.
type Options struct {
	// Contactless selects the PPSE instead of the PSE.
	Contactless bool

	// FallbackAIDs are selected in order when discovery through the
	// payment environment fails.
	FallbackAIDs [][]byte

	// Terminal answers the card's PDOL.
	Terminal TerminalData
}

// DefaultOptions reads a contactless card with the default AID list.
func DefaultOptions() Options {
	return Options{
		Contactless:  true,
		FallbackAIDs: DefaultFallbackAIDs,
		Terminal:     DefaultTerminalData(),
	}
}

// Reader reads cards through a Sender, usually an *iso7816.Client.
type Reader struct {
	sender Sender
	opts   Options
}

// NewReader creates a Reader.
func NewReader(sender Sender, opts Options) *Reader {
	return &Reader{sender: sender, opts: opts}
}

// ReadCard runs discovery and extraction on the card in the field. It
// returns (nil, nil) when the card holds no readable payment application.
// Transport failures are returned as *iso7816.TransportError, malformed
// mandatory structures as *tlv.DecodeError.
func (r *Reader) ReadCard(ctx context.Context) (*Card, error) {
	logger := log.With().Str("session", uuid.NewString()).Logger()
	start := time.Now()

	discovery := newDiscovery(r.sender, r.opts.Contactless, r.opts.FallbackAIDs, logger)
	x := &extractor{sender: r.sender, terminal: r.opts.Terminal, log: logger}

	for {
		sel, err := discovery.Select(ctx)
		if err != nil {
			return nil, err
		}
		if sel == nil {
			return nil, nil
		}

		card, err := x.read(ctx, sel)
		if errors.Is(err, errProcessingRefused) {
			logger.Debug().Stringer("candidate", sel.Candidate).Err(err).Msg("trying next application")
			continue
		}
		if err != nil {
			return nil, err
		}

		card.Scheme = scheme.Classify(card.AID, card.PAN)
		logger.Info().
			Str("aid", tlv.HexString(card.AID)).
			Stringer("scheme", card.Scheme).
			Int("payments", len(card.Payments)).
			Dur("elapsed", time.Since(start)).
			Msg("card read")
		return card, nil
	}
}
