package emv

import (
	"context"
	"fmt"
	"slices"

	"github.com/gregLibert/emv-reader/pkg/iso7816"
	"github.com/gregLibert/emv-reader/pkg/tlv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DiscoveryState is a step of application discovery.
type DiscoveryState int

const (
	StateStart DiscoveryState = iota
	StateEnvironmentSelected
	StateCandidatesEnumerated
	StateApplicationSelected
	StateFailed
)

var stateNames = map[DiscoveryState]string{
	StateStart:                "START",
	StateEnvironmentSelected:  "ENVIRONMENT_SELECTED",
	StateCandidatesEnumerated: "CANDIDATES_ENUMERATED",
	StateApplicationSelected:  "APPLICATION_SELECTED",
	StateFailed:               "FAILED",
}

func (s DiscoveryState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATE(%d)", int(s))
}

// transitions lists the allowed moves. Start goes straight to
// CandidatesEnumerated when the payment environment cannot be selected and
// the fallback list is used instead. ApplicationSelected goes back to
// CandidatesEnumerated when the selected application refuses to process.
var transitions = map[DiscoveryState][]DiscoveryState{
	StateStart:                {StateEnvironmentSelected, StateCandidatesEnumerated, StateFailed},
	StateEnvironmentSelected:  {StateCandidatesEnumerated, StateFailed},
	StateCandidatesEnumerated: {StateApplicationSelected, StateFailed},
	StateApplicationSelected:  {StateCandidatesEnumerated},
}

// maxDirectoryRecords bounds the READ RECORD loop over a PSE directory.
const maxDirectoryRecords = 32

// Candidate is an application the reader may select.
type Candidate struct {
	AID   []byte
	Label string

	// Priority is the low nibble of the priority indicator (87). Nil sorts
	// after every present priority.
	Priority *int
}

func (c Candidate) String() string {
	if c.Label == "" {
		return tlv.HexString(c.AID)
	}
	return fmt.Sprintf("%s (%s)", tlv.HexString(c.AID), c.Label)
}

// Selection is the application discovery ended on.
type Selection struct {
	Candidate Candidate
	FCI       *FCI
}

// Sender is the part of iso7816.Client discovery and extraction need.
type Sender interface {
	Send(ctx context.Context, cmd *iso7816.CommandAPDU) (iso7816.Trace, error)
}

// Discovery finds the payment application of a card. It is used once per
// read and is not safe for concurrent use.
type Discovery struct {
	sender      Sender
	contactless bool
	fallback    [][]byte
	log         zerolog.Logger

	state      DiscoveryState
	history    []DiscoveryState
	candidates []Candidate
	next       int
}

// NewDiscovery prepares discovery over sender. fallback is the ordered AID
// list tried when the card has no usable payment environment.
func NewDiscovery(sender Sender, contactless bool, fallback [][]byte) *Discovery {
	return newDiscovery(sender, contactless, fallback, log.Logger)
}

func newDiscovery(sender Sender, contactless bool, fallback [][]byte, logger zerolog.Logger) *Discovery {
	return &Discovery{
		sender:      sender,
		contactless: contactless,
		fallback:    fallback,
		log:         logger,
		state:       StateStart,
		history:     []DiscoveryState{StateStart},
	}
}

// State returns the current state.
func (d *Discovery) State() DiscoveryState {
	return d.state
}

// History returns every state visited, in order.
func (d *Discovery) History() []DiscoveryState {
	return slices.Clone(d.history)
}

// Candidates returns the enumerated candidates in selection order.
func (d *Discovery) Candidates() []Candidate {
	return slices.Clone(d.candidates)
}

func (d *Discovery) moveTo(to DiscoveryState) error {
	if !slices.Contains(transitions[d.state], to) {
		return fmt.Errorf("invalid discovery transition %s -> %s", d.state, to)
	}
	d.log.Debug().Stringer("from", d.state).Stringer("to", to).Msg("discovery")
	d.state = to
	d.history = append(d.history, to)
	return nil
}

func (d *Discovery) fail(err error) error {
	if moveErr := d.moveTo(StateFailed); moveErr != nil {
		return moveErr
	}
	return err
}

// Select runs discovery up to the next selectable application. Called
// again after a selection, it resumes with the following candidate. It
// returns (nil, nil) once every candidate was tried; transport failures
// are returned as errors.
func (d *Discovery) Select(ctx context.Context) (*Selection, error) {
	switch d.state {
	case StateFailed:
		return nil, nil
	case StateStart:
		if err := d.enumerate(ctx); err != nil {
			return nil, err
		}
	case StateApplicationSelected:
		if err := d.moveTo(StateCandidatesEnumerated); err != nil {
			return nil, err
		}
	}

	for d.next < len(d.candidates) {
		c := d.candidates[d.next]
		d.next++

		trace, err := d.sender.Send(ctx, SelectAID(c.AID))
		if err != nil {
			return nil, d.fail(fmt.Errorf("selecting %s: %w", c, err))
		}

		resp := trace.Response()
		if !resp.Status.IsSuccess() {
			d.log.Debug().Stringer("candidate", c).Str("status", resp.Status.Verbose()).Msg("application not selectable")
			continue
		}

		fci, err := ParseFCI(resp.Data)
		if err != nil {
			d.log.Debug().Stringer("candidate", c).Err(err).Msg("unreadable application FCI")
			continue
		}

		d.log.Trace().Func(func(e *zerolog.Event) {
			e.Str("fci", fci.Describe())
		}).Msg("application FCI")

		if err := d.moveTo(StateApplicationSelected); err != nil {
			return nil, err
		}
		d.log.Info().Stringer("candidate", c).Msg("application selected")
		return &Selection{Candidate: c, FCI: fci}, nil
	}

	d.log.Info().Int("candidates", len(d.candidates)).Msg("no selectable payment application")
	return nil, d.fail(nil)
}

// enumerate selects the payment environment and builds the candidate list,
// falling back to the configured AIDs when the card offers none.
func (d *Discovery) enumerate(ctx context.Context) error {
	env := SelectPSE(d.contactless)

	trace, err := d.sender.Send(ctx, env)
	if err != nil {
		if len(d.fallback) == 0 {
			return d.fail(fmt.Errorf("selecting payment environment: %w", err))
		}
		d.log.Warn().Err(err).Msg("payment environment unreachable, trying known AIDs")
		return d.useFallback()
	}

	resp := trace.Response()
	if !resp.Status.IsSuccess() {
		d.log.Warn().Str("status", resp.Status.Verbose()).Msg("no payment environment, trying known AIDs")
		return d.useFallback()
	}

	if err := d.moveTo(StateEnvironmentSelected); err != nil {
		return err
	}

	candidates, err := d.directory(ctx, resp.Data)
	if err != nil {
		return d.fail(err)
	}
	if len(candidates) == 0 {
		d.log.Debug().Msg("payment environment lists no application, trying known AIDs")
		return d.useFallback()
	}

	sortCandidates(candidates)
	d.candidates = candidates
	return d.moveTo(StateCandidatesEnumerated)
}

func (d *Discovery) useFallback() error {
	d.candidates = make([]Candidate, 0, len(d.fallback))
	for _, aid := range d.fallback {
		d.candidates = append(d.candidates, Candidate{AID: slices.Clone(aid)})
	}
	return d.moveTo(StateCandidatesEnumerated)
}

// directory collects the entries of a PSE/PPSE answer: the 61 templates
// of its FCI or, for a contact PSE, the records of its directory file.
func (d *Discovery) directory(ctx context.Context, data []byte) ([]Candidate, error) {
	fci, err := ParseFCI(data)
	if err != nil {
		d.log.Debug().Err(err).Msg("unreadable payment environment FCI")
		return nil, nil
	}
	d.log.Trace().Func(func(e *zerolog.Event) {
		e.Str("fci", fci.Describe())
	}).Msg("payment environment FCI")

	var apps []ApplicationTemplate
	if dd := fci.ProprietaryTemplate.IssuerDiscretionaryData; dd != nil {
		apps = dd.Applications
	}

	if sfi, ok := fci.DirectorySFI(); ok && len(apps) == 0 {
		apps, err = d.readDirectory(ctx, sfi)
		if err != nil {
			return nil, err
		}
	}

	var candidates []Candidate
	for _, app := range apps {
		c, ok := app.Candidate()
		if !ok {
			d.log.Debug().Str("aid", tlv.HexString(app.AID)).Msg("directory entry without valid AID")
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func (d *Discovery) readDirectory(ctx context.Context, sfi byte) ([]ApplicationTemplate, error) {
	var apps []ApplicationTemplate
	for rec := 1; rec <= maxDirectoryRecords; rec++ {
		trace, err := d.sender.Send(ctx, ReadRecord(sfi, byte(rec)))
		if err != nil {
			return nil, fmt.Errorf("reading directory record %d: %w", rec, err)
		}

		resp := trace.Response()
		if !resp.Status.IsSuccess() {
			break
		}

		record, err := ParseDirectoryRecord(resp.Data)
		if err != nil {
			d.log.Debug().Int("record", rec).Err(err).Msg("unreadable directory record")
			continue
		}
		d.log.Trace().Int("record", rec).Func(func(e *zerolog.Event) {
			e.Str("record", record.Describe())
		}).Msg("directory record")
		apps = append(apps, record.Applications...)
	}
	return apps, nil
}

// sortCandidates orders by ascending priority. Entries without priority go
// last; ties keep discovery order.
func sortCandidates(c []Candidate) {
	slices.SortStableFunc(c, func(a, b Candidate) int {
		switch {
		case a.Priority == nil && b.Priority == nil:
			return 0
		case a.Priority == nil:
			return 1
		case b.Priority == nil:
			return -1
		default:
			return *a.Priority - *b.Priority
		}
	})
}

// ExtractApplicationLabel returns the label of the highest priority
// directory entry found in a PSE/PPSE answer. Entries without label are
// skipped. It returns "" when there is none or data is not valid TLV.
func ExtractApplicationLabel(data []byte) string {
	nodes, err := tlv.Decode(data)
	if err != nil {
		return ""
	}

	var entries []Candidate
	for _, n := range tlv.FindAll(nodes, tlv.TagApplicationTemplate) {
		var app ApplicationTemplate
		if err := tlv.UnmarshalNodes(n.Children, &app); err != nil {
			continue
		}
		entries = append(entries, app.entry())
	}

	sortCandidates(entries)
	for _, e := range entries {
		if e.Label != "" {
			return e.Label
		}
	}
	return ""
}
