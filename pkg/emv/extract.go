package emv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gregLibert/emv-reader/pkg/bits"
	"github.com/gregLibert/emv-reader/pkg/tlv"
	"github.com/rs/zerolog"
)

// errProcessingRefused is returned when the selected application answers
// GET PROCESSING OPTIONS with an error status.
var errProcessingRefused = errors.New("processing options refused")

// extractor reads the records of a selected application into a Card.
type extractor struct {
	sender   Sender
	terminal TerminalData
	log      zerolog.Logger
}

func (x *extractor) read(ctx context.Context, sel *Selection) (*Card, error) {
	card := &Card{
		AID:                      sel.Candidate.AID,
		Label:                    sel.Candidate.Label,
		ApplicationPreferredName: strings.TrimSpace(string(sel.FCI.ProprietaryTemplate.ApplicationPreferredName)),
		LanguagePreference:       string(sel.FCI.ProprietaryTemplate.LanguagePreference),
	}
	if card.Label == "" {
		card.Label = sel.FCI.Label()
	}

	gpo, err := x.processingOptions(ctx, sel.FCI)
	if err != nil {
		return nil, err
	}

	afl, err := findAFL(gpo)
	if err != nil {
		return nil, err
	}
	entries, err := ParseAFL(afl)
	if err != nil {
		return nil, err
	}

	// Format 2 answers may already carry track 2 or the PAN.
	absorb(card, gpo)

	for _, e := range entries {
		if !e.Valid() {
			x.log.Debug().Stringer("afl", e).Msg("skipping invalid AFL entry")
			continue
		}
		if err := x.readRange(ctx, e, card); err != nil {
			return nil, err
		}
	}

	if loc, ok := sel.FCI.LogLocation(); ok {
		payments, err := x.readLog(ctx, loc)
		if err != nil {
			return nil, err
		}
		card.Payments = payments
	}

	if card.TransactionCounter, err = x.readCounter(ctx, tlv.TagATC); err != nil {
		return nil, err
	}
	if card.PinTryCounter, err = x.readCounter(ctx, tlv.TagPinTryCounter); err != nil {
		return nil, err
	}

	return card, nil
}

// processingOptions sends GET PROCESSING OPTIONS, answering the PDOL when
// the application has one, and returns the decoded response.
func (x *extractor) processingOptions(ctx context.Context, fci *FCI) ([]tlv.Node, error) {
	var pdolData []byte
	if raw := fci.PDOL(); len(raw) > 0 {
		dol, err := ParseDOL(raw)
		if err != nil {
			return nil, fmt.Errorf("application PDOL: %w", err)
		}
		x.log.Debug().Str("pdol", describeDOL(dol)).Msg("filling PDOL")
		pdolData = FillDOL(dol, x.terminal)
	}

	trace, err := x.sender.Send(ctx, GetProcessingOptions(pdolData))
	if err != nil {
		return nil, fmt.Errorf("get processing options: %w", err)
	}

	resp := trace.Response()
	if !resp.Status.IsSuccess() {
		return nil, fmt.Errorf("%w: %s", errProcessingRefused, resp.Status.Verbose())
	}

	nodes, err := tlv.Decode(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("get processing options response: %w", err)
	}
	x.log.Trace().Func(func(e *zerolog.Event) {
		e.Str("tree", tlv.DescribeTree(nodes))
	}).Msg("processing options")
	return nodes, nil
}

func (x *extractor) readRange(ctx context.Context, e AFLEntry, card *Card) error {
	for rec := int(e.FirstRecord); rec <= int(e.LastRecord); rec++ {
		trace, err := x.sender.Send(ctx, ReadRecord(e.SFI, byte(rec)))
		if err != nil {
			return fmt.Errorf("reading SFI %d record %d: %w", e.SFI, rec, err)
		}

		resp := trace.Response()
		if !resp.Status.IsSuccess() {
			x.log.Debug().Uint8("sfi", e.SFI).Int("record", rec).Str("status", resp.Status.Verbose()).Msg("record not readable")
			continue
		}

		nodes, err := tlv.Decode(resp.Data)
		if err != nil {
			x.log.Debug().Uint8("sfi", e.SFI).Int("record", rec).Err(err).Msg("malformed record")
			continue
		}
		x.log.Trace().Uint8("sfi", e.SFI).Int("record", rec).Func(func(ev *zerolog.Event) {
			ev.Str("tree", tlv.DescribeTree(nodes))
		}).Msg("record content")
		if tmpl, ok := tlv.Find(nodes, tlv.TagRecordTemplate); ok {
			nodes = tmpl.Children
		}
		absorb(card, nodes)
	}
	return nil
}

// readLog fetches the log format with GET DATA and parses every log
// record. A card without log format yields no payments.
func (x *extractor) readLog(ctx context.Context, loc LogEntry) ([]PaymentRecord, error) {
	trace, err := x.sender.Send(ctx, GetData(tlv.TagLogFormat))
	if err != nil {
		return nil, fmt.Errorf("get log format: %w", err)
	}

	resp := trace.Response()
	if !resp.Status.IsSuccess() {
		x.log.Debug().Str("status", resp.Status.Verbose()).Msg("log format unavailable")
		return nil, nil
	}

	format, err := parseLogFormat(resp.Data)
	if err != nil || len(format) == 0 {
		x.log.Debug().Err(err).Msg("unusable log format")
		return nil, nil
	}
	x.log.Debug().Stringer("log", loc).Str("format", describeDOL(format)).Msg("reading transaction log")

	var payments []PaymentRecord
	for rec := 1; rec <= int(loc.Records); rec++ {
		trace, err := x.sender.Send(ctx, ReadRecord(loc.SFI, byte(rec)))
		if err != nil {
			return nil, fmt.Errorf("reading log record %d: %w", rec, err)
		}

		resp := trace.Response()
		if !resp.Status.IsSuccess() {
			x.log.Debug().Int("record", rec).Str("status", resp.Status.Verbose()).Msg("log record not readable")
			continue
		}

		p, ok := parseLogRecord(format, resp.Data)
		if !ok {
			x.log.Debug().Int("record", rec).Msg("log record does not match its format")
			continue
		}
		payments = append(payments, p)
	}
	return payments, nil
}

// readCounter reads a counter with GET DATA. Cards that do not expose it
// yield nil.
func (x *extractor) readCounter(ctx context.Context, tag tlv.Tag) (*int, error) {
	trace, err := x.sender.Send(ctx, GetData(tag))
	if err != nil {
		return nil, fmt.Errorf("get data %s: %w", tag, err)
	}

	resp := trace.Response()
	if !resp.Status.IsSuccess() {
		x.log.Debug().Stringer("tag", tag).Str("status", resp.Status.Verbose()).Msg("counter unavailable")
		return nil, nil
	}

	v, err := tlv.GetValue(resp.Data, tag)
	if err != nil || len(v) == 0 || len(v) > 4 {
		x.log.Debug().Stringer("tag", tag).Msg("unreadable counter")
		return nil, nil
	}

	n := 0
	for _, b := range v {
		n = n<<8 | int(b)
	}
	return &n, nil
}

// absorb copies the cardholder data found in nodes into card. Fields
// already populated are kept.
func absorb(card *Card, nodes []tlv.Node) {
	if n, ok := tlv.FindRecursive(nodes, tlv.TagPAN); ok && card.PAN == "" {
		card.PAN, _ = bits.DigitString(n.Value, 0x0F)
	}

	if n, ok := tlv.FindRecursive(nodes, tlv.TagExpirationDate); ok && card.Expiry.IsZero() {
		if len(n.Value) >= 2 {
			card.Expiry, _ = parseExpiry(n.Value[0], n.Value[1])
		}
	}

	if n, ok := tlv.FindRecursive(nodes, tlv.TagTrack2Equivalent); ok {
		pan, expiry, ok := parseTrack2(n.Value)
		if ok && card.PAN == "" {
			card.PAN = pan
		}
		if ok && card.Expiry.IsZero() {
			card.Expiry = expiry
		}
	}

	if n, ok := tlv.FindRecursive(nodes, tlv.TagCardholderName); ok && card.LastName == "" && card.FirstName == "" {
		card.LastName, card.FirstName = parseName(n.Value)
	}

	if n, ok := tlv.FindRecursive(nodes, tlv.TagApplicationLabel); ok && card.Label == "" {
		card.Label = strings.TrimSpace(string(n.Value))
	}
	if n, ok := tlv.FindRecursive(nodes, tlv.TagApplicationPreferredName); ok && card.ApplicationPreferredName == "" {
		card.ApplicationPreferredName = strings.TrimSpace(string(n.Value))
	}
	if n, ok := tlv.FindRecursive(nodes, tlv.TagLanguagePreference); ok && card.LanguagePreference == "" {
		card.LanguagePreference = string(n.Value)
	}
}

// parseExpiry reads the BCD year and month bytes of 5F24 (YYMMDD).
func parseExpiry(yy, mm byte) (ExpiryDate, bool) {
	year, err := bits.BCD([]byte{yy})
	if err != nil {
		return ExpiryDate{}, false
	}
	month, err := bits.BCD([]byte{mm})
	if err != nil || month < 1 || month > 12 {
		return ExpiryDate{}, false
	}
	return ExpiryDate{Year: 2000 + int(year), Month: time.Month(month)}, true
}

// parseTrack2 splits track 2 equivalent data (57): PAN, separator D, then
// expiry as YYMM.
func parseTrack2(data []byte) (string, ExpiryDate, bool) {
	pan, sep := bits.DigitString(data, 0x0D)
	nibbles := bits.Nibbles(data)
	if pan == "" || sep+4 >= len(nibbles) || nibbles[sep] != 0x0D {
		return "", ExpiryDate{}, false
	}

	d := nibbles[sep+1 : sep+5]
	expiry, ok := parseExpiry(d[0]<<4|d[1], d[2]<<4|d[3])
	if !ok {
		return "", ExpiryDate{}, false
	}
	return pan, expiry, true
}

// parseName splits a cardholder name "LAST/FIRST".
func parseName(data []byte) (last, first string) {
	name := strings.TrimSpace(string(data))
	last, first, _ = strings.Cut(name, "/")
	return strings.TrimSpace(last), strings.TrimSpace(first)
}
