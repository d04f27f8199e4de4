package replay

import (
	"errors"
	"sync"

	"github.com/gregLibert/emv-reader/pkg/tlv"
	"github.com/rs/zerolog/log"
)

// Player answers commands from a transcript. When a command was recorded
// several times the answers are given in order, the last one repeating.
type Player struct {
	mu       sync.Mutex
	name     string
	answers  map[string][]Exchange
	served   map[string]int
	fallback []byte
	history  []string
}

// NewPlayer prepares t for playback.
func NewPlayer(t *Transcript) (*Player, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	status := t.DefaultStatus
	if status == "" {
		status = DefaultStatus
	}

	p := &Player{
		name:     t.Name,
		answers:  make(map[string][]Exchange),
		served:   make(map[string]int),
		fallback: tlv.Hex(status),
	}
	for _, e := range t.Exchanges {
		key := normalize(e.Command)
		p.answers[key] = append(p.answers[key], e)
	}
	return p, nil
}

// Transmit implements iso7816.Transmitter.
func (p *Player) Transmit(cmd []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := tlv.HexString(cmd)
	p.history = append(p.history, key)

	answers, ok := p.answers[key]
	if !ok {
		log.Trace().Str("transcript", p.name).Str("command", key).Msg("unknown command, default status")
		return append([]byte(nil), p.fallback...), nil
	}

	i := p.served[key]
	if i >= len(answers) {
		i = len(answers) - 1
	}
	p.served[key]++

	e := answers[i]
	if e.Error != "" {
		return nil, errors.New(e.Error)
	}
	// validated by NewPlayer
	return tlv.Hex(e.Response), nil
}

// History returns every command received, as uppercase hex.
func (p *Player) History() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.history...)
}
