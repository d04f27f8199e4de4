package replay

import (
	"sync"

	"github.com/gregLibert/emv-reader/pkg/iso7816"
	"github.com/gregLibert/emv-reader/pkg/tlv"
)

// Recorder passes commands to a card and keeps every exchange.
type Recorder struct {
	card iso7816.Transmitter

	mu         sync.Mutex
	transcript Transcript
}

// NewRecorder records the session with card under name.
func NewRecorder(card iso7816.Transmitter, name string) *Recorder {
	return &Recorder{card: card, transcript: Transcript{Name: name}}
}

// Transmit implements iso7816.Transmitter.
func (r *Recorder) Transmit(cmd []byte) ([]byte, error) {
	resp, err := r.card.Transmit(cmd)

	e := Exchange{Command: tlv.HexString(cmd)}
	if err != nil {
		e.Error = err.Error()
	} else {
		e.Response = tlv.HexString(resp)
	}

	r.mu.Lock()
	r.transcript.Exchanges = append(r.transcript.Exchanges, e)
	r.mu.Unlock()

	return resp, err
}

// Transcript returns a copy of what was recorded so far.
func (r *Recorder) Transcript() *Transcript {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.transcript
	t.Exchanges = append([]Exchange(nil), r.transcript.Exchanges...)
	return &t
}
