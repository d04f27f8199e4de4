// Package replay records card sessions to YAML transcripts and plays them
// back as a card. A Player or a Recorder can stand wherever an
// iso7816.Transmitter is expected.
package replay

import (
	"fmt"
	"os"
	"strings"

	"github.com/gregLibert/emv-reader/pkg/tlv"
	"gopkg.in/yaml.v3"
)

// DefaultStatus answers commands a transcript does not know:
// 6A82, file or application not found.
const DefaultStatus = "6A82"

// Exchange is one command and what the card did with it. Error, when set,
// makes the exchange fail at the transport level.
type Exchange struct {
	Command  string `yaml:"command"`
	Response string `yaml:"response,omitempty"`
	Error    string `yaml:"error,omitempty"`
}

// Transcript is a recorded card session. Hex strings may contain spaces.
type Transcript struct {
	Name          string     `yaml:"name"`
	DefaultStatus string     `yaml:"default_status,omitempty"`
	Exchanges     []Exchange `yaml:"exchanges"`
}

// Load reads a transcript file.
func Load(path string) (*Transcript, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and checks a YAML transcript.
func Parse(raw []byte) (*Transcript, error) {
	var t Transcript
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Transcript) validate() error {
	if t.DefaultStatus != "" {
		sw, err := tlv.ParseHex(t.DefaultStatus)
		if err != nil || len(sw) != 2 {
			return fmt.Errorf("default_status %q is not a status word", t.DefaultStatus)
		}
	}
	for i, e := range t.Exchanges {
		if _, err := tlv.ParseHex(e.Command); err != nil || strings.TrimSpace(e.Command) == "" {
			return fmt.Errorf("exchange %d: invalid command %q", i, e.Command)
		}
		if e.Error != "" {
			continue
		}
		resp, err := tlv.ParseHex(e.Response)
		if err != nil {
			return fmt.Errorf("exchange %d: invalid response: %w", i, err)
		}
		if len(resp) < 2 {
			return fmt.Errorf("exchange %d: response without status word", i)
		}
	}
	return nil
}

// Marshal encodes the transcript as YAML.
func (t *Transcript) Marshal() ([]byte, error) {
	return yaml.Marshal(t)
}

// Save writes the transcript to path.
func (t *Transcript) Save(path string) error {
	raw, err := t.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// normalize turns a hex string into the uppercase, space-free form used to
// match commands.
func normalize(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}
