// Package pcsc connects to cards through the PC/SC smart card service.
// A connected Session satisfies iso7816.Transmitter.
package pcsc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ebfe/scard"
	"github.com/rs/zerolog/log"
)

// DefaultPollInterval is how long a single GetStatusChange call blocks
// while waiting for a card.
const DefaultPollInterval = 250 * time.Millisecond

// ErrNoReader is returned when no PC/SC reader matches.
var ErrNoReader = errors.New("no smart card reader found")

// ScardCard abstracts scard.Card for testing.
type ScardCard interface {
	Status() (*scard.CardStatus, error)
	Transmit([]byte) ([]byte, error)
	Disconnect(scard.Disposition) error
}

// ScardContext abstracts scard.Context for testing.
type ScardContext interface {
	ListReaders() ([]string, error)
	GetStatusChange([]scard.ReaderState, time.Duration) error
	Connect(string, scard.ShareMode, scard.Protocol) (ScardCard, error)
	Release() error
}

type realScardContext struct {
	ctx *scard.Context
}

func (r *realScardContext) ListReaders() ([]string, error) {
	readers, err := r.ctx.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("failed to list readers: %w", err)
	}
	return readers, nil
}

func (r *realScardContext) GetStatusChange(rs []scard.ReaderState, timeout time.Duration) error {
	if err := r.ctx.GetStatusChange(rs, timeout); err != nil {
		return fmt.Errorf("failed to get status change: %w", err)
	}
	return nil
}

func (r *realScardContext) Connect(reader string, mode scard.ShareMode, proto scard.Protocol) (ScardCard, error) {
	card, err := r.ctx.Connect(reader, mode, proto)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to reader: %w", err)
	}
	return card, nil
}

func (r *realScardContext) Release() error {
	if err := r.ctx.Release(); err != nil {
		return fmt.Errorf("failed to release context: %w", err)
	}
	return nil
}

// ContextFactory creates a ScardContext.
type ContextFactory func() (ScardContext, error)

// DefaultContextFactory establishes a real PC/SC context.
func DefaultContextFactory() (ScardContext, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("failed to establish scard context: %w", err)
	}
	return &realScardContext{ctx: ctx}, nil
}

// Readers lists the reader names containing filter (all when empty).
func Readers(factory ContextFactory, filter string) ([]string, error) {
	ctx, err := factory()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ctx.Release(); err != nil {
			log.Warn().Err(err).Msg("error releasing pcsc context")
		}
	}()

	all, err := ctx.ListReaders()
	if err != nil {
		return nil, err
	}

	var out []string
	for _, r := range all {
		if filter == "" || strings.Contains(strings.ToLower(r), strings.ToLower(filter)) {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoReader
	}
	return out, nil
}

// Session is a card connected in one reader.
type Session struct {
	Reader string
	ATR    []byte

	ctx  ScardContext
	card ScardCard
}

// Open waits until a card is present in reader, then connects to it with
// T=0 or T=1. It gives up when ctx is done.
func Open(ctx context.Context, factory ContextFactory, reader string, poll time.Duration) (*Session, error) {
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	sc, err := factory()
	if err != nil {
		return nil, err
	}

	s, err := open(ctx, sc, reader, poll)
	if err != nil {
		if relErr := sc.Release(); relErr != nil {
			log.Warn().Err(relErr).Msg("error releasing pcsc context")
		}
		return nil, err
	}
	return s, nil
}

func open(ctx context.Context, sc ScardContext, reader string, poll time.Duration) (*Session, error) {
	if err := waitForCard(ctx, sc, reader, poll); err != nil {
		return nil, err
	}

	// T=0|T=1 avoids "Parameter Incorrect" on readers that reject ProtocolAny.
	card, err := sc.Connect(reader, scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		return nil, err
	}

	s := &Session{Reader: reader, ctx: sc, card: card}
	if status, err := card.Status(); err == nil {
		s.ATR = status.Atr
	} else {
		log.Debug().Err(err).Str("reader", reader).Msg("error getting card status")
	}

	log.Debug().Str("reader", reader).Hex("atr", s.ATR).Msg("card connected")
	return s, nil
}

func waitForCard(ctx context.Context, sc ScardContext, reader string, poll time.Duration) error {
	log.Info().Str("reader", reader).Msg("waiting for card")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rs := []scard.ReaderState{{
			Reader:       reader,
			CurrentState: scard.StateUnaware,
		}}
		if err := sc.GetStatusChange(rs, poll); err != nil {
			if errors.Is(err, scard.ErrTimeout) {
				continue
			}
			return err
		}

		if rs[0].EventState&scard.StatePresent != 0 {
			return nil
		}

		// The state changed without a card: wait out the interval.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

// Transmit sends a raw command APDU.
func (s *Session) Transmit(cmd []byte) ([]byte, error) {
	resp, err := s.card.Transmit(cmd)
	if err != nil {
		return nil, fmt.Errorf("pcsc transmit on %s: %w", s.Reader, err)
	}
	return resp, nil
}

// Close leaves the card powered and releases the PC/SC context.
func (s *Session) Close() error {
	var errs []error
	if err := s.card.Disconnect(scard.LeaveCard); err != nil {
		errs = append(errs, fmt.Errorf("failed to disconnect card: %w", err))
	}
	if err := s.ctx.Release(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
