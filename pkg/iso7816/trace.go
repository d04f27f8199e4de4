package iso7816

import (
	"fmt"
	"strings"

	"github.com/gregLibert/emv-reader/pkg/tlv"
)

// Transaction is one command APDU and the response APDU it produced.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess is false when the response is missing.
func (t *Transaction) IsSuccess() bool {
	return t.Response != nil && t.Response.Status.IsSuccess()
}

// Trace is every transaction needed to carry out one logical command,
// including GET RESPONSE calls and 6CXX re-issues.
type Trace []Transaction

// Last returns the final transaction, or nil for an empty trace.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess reports the outcome of the final transaction.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	return last != nil && last.IsSuccess()
}

// Response folds the trace into the logical response: data fields are
// concatenated across GET RESPONSE calls, a 6CXX answer discards what came
// before it, and the status is the last one received.
func (t Trace) Response() *ResponseAPDU {
	last := t.Last()
	if last == nil || last.Response == nil {
		return &ResponseAPDU{}
	}

	var data []byte
	for _, tx := range t {
		if tx.Response == nil {
			continue
		}
		if tx.Response.Status.SW1() == 0x6C {
			data = nil
			continue
		}
		data = append(data, tx.Response.Data...)
	}

	return &ResponseAPDU{Data: data, Status: last.Response.Status}
}

// Describe renders the trace for debugging, one block per transaction.
func (t Trace) Describe() string {
	var sb strings.Builder
	for i, tx := range t {
		if i > 0 {
			sb.WriteString("\n")
		}
		raw, _ := tx.Command.Bytes()
		fmt.Fprintf(&sb, ">> %s\n   %s", tx.Command, tlv.HexString(raw))
		if tx.Response != nil {
			fmt.Fprintf(&sb, "\n<< %s", tx.Response)
			if len(tx.Response.Data) > 0 {
				fmt.Fprintf(&sb, "\n   %s", tlv.HexString(tx.Response.Data))
			}
		}
	}
	return sb.String()
}
