// Package config loads the reader settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gregLibert/emv-reader/pkg/emv"
	"github.com/gregLibert/emv-reader/pkg/tlv"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
)

// Values is the content of the configuration file.
type Values struct {
	Contactless  bool     `toml:"contactless"`
	Reader       string   `toml:"reader,omitempty"`
	TimeoutMS    int      `toml:"timeout_ms" validate:"gte=0,lte=60000"`
	FallbackAIDs []string `toml:"fallback_aids" validate:"dive,aid"`
	LogLevel     string   `toml:"log_level" validate:"oneof=trace debug info warn error"`
	LogFile      string   `toml:"log_file,omitempty"`
	Terminal     Terminal `toml:"terminal"`
}

// Terminal holds what the reader answers when a card asks for terminal
// data in its PDOL.
type Terminal struct {
	Country      int    `toml:"country" validate:"gte=1,lte=999"`
	Currency     int    `toml:"currency" validate:"gte=1,lte=999"`
	TTQ          string `toml:"ttq" validate:"required,hexdata"`
	TerminalType int    `toml:"terminal_type" validate:"gte=0,lte=255"`
}

// Defaults returns the built-in settings: contactless, France, euro.
func Defaults() Values {
	aids := make([]string, 0, len(emv.DefaultFallbackAIDs))
	for _, aid := range emv.DefaultFallbackAIDs {
		aids = append(aids, tlv.HexString(aid))
	}

	return Values{
		Contactless:  true,
		TimeoutMS:    5000,
		FallbackAIDs: aids,
		LogLevel:     "info",
		Terminal: Terminal{
			Country:      250,
			Currency:     978,
			TTQ:          "36004000",
			TerminalType: 0x22,
		},
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("hexdata", validateHexData)
	_ = v.RegisterValidation("aid", validateAID)
	return v
}

// validateHexData accepts hex with optional spaces between bytes.
func validateHexData(fl validator.FieldLevel) bool {
	_, err := tlv.ParseHex(fl.Field().String())
	return err == nil
}

// validateAID accepts 5 to 16 bytes of hex.
func validateAID(fl validator.FieldLevel) bool {
	aid, err := tlv.ParseHex(fl.Field().String())
	return err == nil && len(aid) >= 5 && len(aid) <= 16
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (Values, error) {
	if path == "" {
		return Defaults(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Values{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML over the defaults and validates the result. Keys
// absent from data keep their default value.
func Parse(data []byte) (Values, error) {
	vals := Defaults()
	if err := toml.Unmarshal(data, &vals); err != nil {
		return Values{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := vals.Validate(); err != nil {
		return Values{}, err
	}
	return vals, nil
}

// Validate checks every field.
func (v Values) Validate() error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validation failed: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
}

// Marshal encodes the values as TOML.
func (v Values) Marshal() ([]byte, error) {
	return toml.Marshal(v)
}

// Timeout bounds each card exchange; zero means none.
func (v Values) Timeout() time.Duration {
	return time.Duration(v.TimeoutMS) * time.Millisecond
}

// Level parses LogLevel.
func (v Values) Level() (zerolog.Level, error) {
	return zerolog.ParseLevel(v.LogLevel)
}

// ReaderOptions converts the values for emv.NewReader.
func (v Values) ReaderOptions() (emv.Options, error) {
	opts := emv.Options{
		Contactless: v.Contactless,
		Terminal:    emv.DefaultTerminalData(),
	}

	for _, s := range v.FallbackAIDs {
		aid, err := tlv.ParseHex(s)
		if err != nil {
			return emv.Options{}, fmt.Errorf("fallback AID %q: %w", s, err)
		}
		opts.FallbackAIDs = append(opts.FallbackAIDs, aid)
	}

	ttq, err := tlv.ParseHex(v.Terminal.TTQ)
	if err != nil || len(ttq) != 4 {
		return emv.Options{}, fmt.Errorf("terminal TTQ %q must be 4 bytes of hex", v.Terminal.TTQ)
	}

	opts.Terminal.TTQ = ttq
	opts.Terminal.CountryCode = v.Terminal.Country
	opts.Terminal.CurrencyCode = v.Terminal.Currency
	opts.Terminal.TerminalType = byte(v.Terminal.TerminalType)
	return opts, nil
}
