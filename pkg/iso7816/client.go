package iso7816

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Client drives a card through a Transmitter and resolves the transport
// procedures that T=0 leaks into the application layer:
//
//	61XX  the client sends GET RESPONSE with Le = XX, repeatedly if needed
//	6CXX  the client re-sends the command with Le = XX
//
// Transmissions are serialised by a one-slot semaphore held until the
// underlying Transmit returns, so a transmit abandoned after a timeout still
// completes before the next one starts.

// maxExchanges bounds the transactions spent on a single logical command.
const maxExchanges = 32

// Transmitter abstracts the physical card connection. *scard.Card
// satisfies it.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// TransportError reports a failed exchange with the card: the transmitter
// failed, the response was unusable, or the context expired.
type TransportError struct {
	Command string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Command, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client manages the high-level communication with the card.
type Client struct {
	Card Transmitter

	// Timeout bounds each Transmit call. Zero means no bound beyond the
	// context passed to Send.
	Timeout time.Duration

	sem chan struct{}
}

// NewClient creates a Client over card.
func NewClient(card Transmitter) *Client {
	return &Client{Card: card, sem: make(chan struct{}, 1)}
}

// Send transmits cmd and follows 61XX/6CXX until the card gives a final
// answer. Failures of the exchange itself are returned as *TransportError;
// a non-success status word is not an error.
func (c *Client) Send(ctx context.Context, cmd *CommandAPDU) (Trace, error) {
	var trace Trace

	current := cmd
	for len(trace) < maxExchanges {
		if err := ctx.Err(); err != nil {
			return trace, &TransportError{Command: current.Instruction.String(), Err: err}
		}

		resp, err := c.exchange(ctx, current)
		if err != nil {
			logTrace(trace, err)
			return trace, err
		}
		trace = append(trace, Transaction{Command: current, Response: resp})

		switch resp.Status.SW1() {
		case 0x61:
			current = NewCommandAPDU(cmd.Class.ForGetResponse(), INS_GET_RESPONSE, 0x00, 0x00, nil, leFromSW2(resp.Status.SW2()))
		case 0x6C:
			retry := *current
			retry.Ne = leFromSW2(resp.Status.SW2())
			current = &retry
		default:
			logTrace(trace, nil)
			return trace, nil
		}
	}

	return trace, &TransportError{
		Command: cmd.Instruction.String(),
		Err:     fmt.Errorf("card still chaining after %d exchanges", maxExchanges),
	}
}

// logTrace dumps a finished exchange at trace level.
func logTrace(trace Trace, err error) {
	log.Trace().Err(err).Func(func(e *zerolog.Event) {
		e.Str("trace", trace.Describe())
	}).Msg("exchange")
}

// leFromSW2 maps the 00 shorthand to 256.
func leFromSW2(sw2 byte) int {
	if sw2 == 0 {
		return MaxShortLe
	}
	return int(sw2)
}

func (c *Client) exchange(ctx context.Context, cmd *CommandAPDU) (*ResponseAPDU, error) {
	raw, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", cmd.Instruction, err)
	}

	rawResp, err := c.transmit(ctx, raw)
	if err != nil {
		return nil, &TransportError{Command: cmd.Instruction.String(), Err: err}
	}

	resp, err := ParseResponseAPDU(rawResp)
	if err != nil {
		return nil, &TransportError{Command: cmd.Instruction.String(), Err: err}
	}
	return resp, nil
}

type transmitResult struct {
	resp []byte
	err  error
}

func (c *Client) transmit(ctx context.Context, raw []byte) ([]byte, error) {
	if c.Card == nil || c.sem == nil {
		return nil, errors.New("client not initialised, use NewClient")
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	// Waiting for a previous, abandoned transmit counts against the timeout.
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	done := make(chan transmitResult, 1)
	go func() {
		defer func() { <-c.sem }()
		resp, err := c.Card.Transmit(raw)
		done <- transmitResult{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		log.Debug().Err(ctx.Err()).Msg("transmit abandoned")
		return nil, ctx.Err()
	}
}
